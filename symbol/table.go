// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package symbol

import (
	"sync"

	"github.com/jlehtine/go-cpluff/status"
)

// handle identifies one successful resolution, so ReleaseSymbol can find
// its refcount entry without the caller needing to keep the pointer
// value unique (two resolutions of the same name may return equal
// pointers).
type handle struct {
	providerID string
	name       string
}

// entry is the per-(provider,name) bookkeeping: Define registers a
// value, Resolve increments its refcount and Release decrements it.
type entry struct {
	value    interface{}
	refcount int
}

// Table is the context-wide define/resolve/release symbol table. It is
// safe for concurrent use; the context additionally serializes all
// mutating calls under its own lock, so Table's internal mutex mainly
// guards against the resolveSymbol/releaseSymbol pair racing with a
// defineSymbol from a different provider.
type Table struct {
	mu      sync.Mutex
	symbols map[string]map[string]*entry // providerID -> name -> entry
	handles map[uintptr]handle           // next handle id -> (provider, name)
	nextID  uintptr
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	return &Table{
		symbols: map[string]map[string]*entry{},
		handles: map[uintptr]handle{},
	}
}

// Define publishes value under name on behalf of providerID. Names are
// unique per providing plug-in; a collision fails with status.Conflict.
func (t *Table) Define(providerID, name string, value interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.symbols[providerID]
	if !ok {
		m = map[string]*entry{}
		t.symbols[providerID] = m
	}
	if _, exists := m[name]; exists {
		return status.Newf(status.Conflict, "plug-in %q already defines symbol %q", providerID, name)
	}
	m[name] = &entry{value: value}
	return nil
}

// Lookup returns the value published under name by providerID without
// affecting its refcount. It is used internally by Resolve once the
// caller has already ensured the provider is active.
func (t *Table) Lookup(providerID, name string) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.symbols[providerID]
	if !ok {
		return nil, false
	}
	e, ok := m[name]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Resolve increments the refcount for (providerID, name) and returns a
// handle token plus the published value. The caller is responsible for
// having already ensured providerID is active.
func (t *Table) Resolve(providerID, name string) (uintptr, interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.symbols[providerID]
	if !ok {
		return 0, nil, status.Newf(status.Unknown, "plug-in %q does not define any symbols", providerID)
	}
	e, ok := m[name]
	if !ok {
		return 0, nil, status.Newf(status.Unknown, "plug-in %q does not define symbol %q", providerID, name)
	}
	e.refcount++
	t.nextID++
	id := t.nextID
	t.handles[id] = handle{providerID: providerID, name: name}
	return id, e.value, nil
}

// Release decrements the refcount for the resolution identified by id.
// It returns the provider identifier and whether the provider's
// refcount across all symbols it publishes has dropped to zero (meaning
// it may leave the "using" set and, if pending-stop, proceed to stop).
func (t *Table) Release(id uintptr) (providerID string, providerIdle bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.handles[id]
	if !ok {
		return "", false, status.Newf(status.Unknown, "symbol handle not found")
	}
	delete(t.handles, id)

	m := t.symbols[h.providerID]
	e, ok := m[h.name]
	if !ok {
		return h.providerID, true, status.Newf(status.Unknown, "symbol %q of plug-in %q is no longer defined", h.name, h.providerID)
	}
	if e.refcount > 0 {
		e.refcount--
	}

	idle := true
	for _, e := range m {
		if e.refcount > 0 {
			idle = false
			break
		}
	}
	return h.providerID, idle, nil
}

// Undefine removes every symbol published by providerID, e.g. when the
// plug-in stops. Outstanding handles into providerID's symbols become
// stale; releasing one reports Unknown and accounts for nothing.
func (t *Table) Undefine(providerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.symbols, providerID)
	for id, h := range t.handles {
		if h.providerID == providerID {
			delete(t.handles, id)
		}
	}
}
