// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cpluff

import (
	"sync"
	"sync/atomic"

	"github.com/jlehtine/go-cpluff/internal/goid"
)

// recursiveMutex is a goroutine-reentrant mutex: the goroutine that
// already holds it may lock it again without blocking. Go's sync.Mutex
// has no such mode, and a Context's single lock must survive plug-in
// callbacks calling back into the context on the same goroutine, so
// this records the owning goroutine and a hold count the way a native
// recursive lock records an owner thread and a counter.
//
// It is not a general-purpose primitive: Lock/Unlock calls from a given
// goroutine must nest properly (every Lock eventually Unlocked, in
// reverse order), exactly like the gate it wraps.
type recursiveMutex struct {
	gate  sync.Mutex
	owner atomic.Int64
	depth int
}

// Lock acquires the mutex, or, if the calling goroutine already holds
// it, increments the hold count and returns immediately. It reports
// whether the call was reentrant so callers that also maintain an
// invocation stack can skip re-pushing bookkeeping that only needs to
// exist once per outermost call.
func (m *recursiveMutex) Lock() (reentrant bool) {
	gid := goid.ID()
	if m.owner.Load() == gid {
		m.depth++
		return true
	}
	m.gate.Lock()
	m.owner.Store(gid)
	m.depth = 1
	return false
}

// Unlock releases one hold taken by Lock. The gate is only really
// unlocked once the outermost hold is released.
func (m *recursiveMutex) Unlock() {
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.gate.Unlock()
	}
}

// held reports whether the calling goroutine currently holds the
// mutex, recursively or not.
func (m *recursiveMutex) held() bool {
	return m.owner.Load() == goid.ID()
}
