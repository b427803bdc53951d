// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package registry

import (
	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/symbol"
)

// Plugin is a registered plug-in: mutable controller-owned state
// layered on top of an immutable Descriptor.
type Plugin struct {
	ID         string
	Descriptor *descriptor.Descriptor
	State      State

	// Imported/Importing are populated only once State >= Resolved.
	Imported  map[string]*Plugin
	Importing map[string]*Plugin

	Library  symbol.Library
	Funcs    *symbol.RuntimeFuncs
	Instance interface{}

	// created records that the runtime's create function has produced
	// Instance. The instance survives stop/start cycles; it is destroyed
	// when the plug-in unresolves and the runtime library is discarded.
	created bool

	// stateLocked refuses a re-entrant transition on this plug-in,
	// failing fast with Deadlock instead of corrupting state.
	stateLocked bool

	// onTraversal marks a plug-in as having been visited by the current
	// resolve traversal's recursion stack, used to detect cycles: a
	// recursion that re-enters a plug-in with onTraversal set has found
	// a cycle rather than a diamond dependency already fully resolved.
	onTraversal bool

	// preliminary marks a plug-in staged as resolved by a cycle but not
	// yet committed by the enclosing traversal.
	preliminary bool

	// activeOp breaks cycles during the recursive start/stop/unresolve
	// closures: a traversal that re-enters a plug-in with activeOp set
	// treats it as already handled by an enclosing call.
	activeOp bool
}

func newPlugin(id string, d *descriptor.Descriptor) *Plugin {
	return &Plugin{
		ID:         id,
		Descriptor: d,
		State:      Installed,
		Imported:   map[string]*Plugin{},
		Importing: map[string]*Plugin{},
	}
}
