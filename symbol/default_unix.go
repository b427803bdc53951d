// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

//go:build unix

package symbol

import (
	pl "plugin"

	"github.com/jlehtine/go-cpluff/status"
)

// defaultLoader opens runtime libraries with the standard library's
// plugin package, the only Go equivalent of dlopen/dlsym; see
// DESIGN.md for the platform notes.
type defaultLoader struct{}

// NewDefaultLoader returns the platform RuntimeLoader.
func NewDefaultLoader() RuntimeLoader {
	return defaultLoader{}
}

func (defaultLoader) Open(path string) (Library, error) {
	p, err := pl.Open(path)
	if err != nil {
		return nil, status.Wrap(status.Runtime, err, "opening runtime library %s", path)
	}
	return goPluginLibrary{p: p}, nil
}

type goPluginLibrary struct {
	p *pl.Plugin
}

func (l goPluginLibrary) Symbol(name string) (interface{}, error) {
	sym, err := l.p.Lookup(name)
	if err != nil {
		return nil, NoSuchSymbolError(name)
	}
	return sym, nil
}

func (l goPluginLibrary) Close() error {
	// Go's plugin package provides no Close; opened plugins live for the
	// life of the process. Callers still call Close for symmetry with
	// the Library interface and to let a future platform-specific
	// implementation release native resources.
	return nil
}
