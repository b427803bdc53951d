// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

//go:build !unix

package symbol

import "github.com/jlehtine/go-cpluff/status"

// defaultLoader is the non-Unix fallback: Go's plugin package only
// supports Linux/Darwin/FreeBSD, so on other platforms opening a
// runtime library always fails with Runtime. A declared-but-unopenable
// runtime library fails the resolve step this way rather than panicking.
type defaultLoader struct{}

// NewDefaultLoader returns the platform RuntimeLoader.
func NewDefaultLoader() RuntimeLoader {
	return defaultLoader{}
}

func (defaultLoader) Open(path string) (Library, error) {
	return nil, status.Newf(status.Runtime, "runtime library loading is not supported on this platform")
}
