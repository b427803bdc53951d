// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package goid extracts the calling goroutine's runtime identifier.
//
// The recursive-lock emulation in the root package needs to tell whether
// the goroutine calling Context.lock already owns it, the same question
// a native recursive mutex answers by comparing owner thread ids. Go
// exposes no such id through the standard library, so this package
// parses it out of the header line runtime.Stack always writes first,
// "goroutine 123 [running]:". It is used for nothing except that
// owner comparison.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

// ID returns the current goroutine's runtime-assigned identifier. It is
// never zero, which callers use as the "no owner" sentinel.
func ID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
