// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package symbol implements the runtime-library loading and per-symbol
// refcount bookkeeping behind defineSymbol/resolveSymbol/releaseSymbol.
// Opening a shared library and looking up a named symbol is abstracted
// behind the RuntimeLoader/Library interfaces; the framework core never
// talks to the OS loader directly.
package symbol

import (
	"github.com/jlehtine/go-cpluff/status"
)

// Library is a single opened runtime library.
type Library interface {
	// Symbol looks up a named exported symbol, returning the raw
	// exported value: a function, a variable, or, for the runtime-funcs
	// symbol, a *RuntimeFuncs.
	Symbol(name string) (interface{}, error)
	// Close releases the library.
	Close() error
}

// RuntimeLoader opens a runtime library by path; the registry passes
// "<install path>/<library>.so". Opening a shared object and resolving a named symbol from it is
// abstracted behind this interface so the core never links a dynamic
// loading API directly.
type RuntimeLoader interface {
	Open(path string) (Library, error)
}

// RuntimeFuncs are the four ABI entry points a plug-in's runtime-funcs
// symbol points at. Any of them may be nil: absent means no-op, and for
// Create/Start, implicit success with a nil instance.
type RuntimeFuncs struct {
	Create  func(ctx interface{}) (instance interface{}, err error)
	Start   func(instance interface{}) error // non-nil error = failure
	Stop    func(instance interface{})
	Destroy func(instance interface{})
}

// NoSuchSymbolError is returned by Library.Symbol when name is not
// exported by the library.
func NoSuchSymbolError(name string) error {
	return status.Newf(status.Unknown, "symbol %q not found", name)
}
