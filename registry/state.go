// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package registry implements the plug-in lifecycle controller: the
// per-plugin state machine and directed dependency graph, and the
// install/resolve/start/stop/unresolve/uninstall operations that mutate
// them. Every exported method on Controller assumes its caller already
// holds whatever serialization the embedding context provides (the
// cpluff package's recursive context lock); registry itself does no
// locking of its own.
package registry

// State is a plug-in's position in the lifecycle state machine.
type State int

const (
	Uninstalled State = iota
	Installed
	Resolved
	Starting
	Active
	Stopping
)

func (s State) String() string {
	switch s {
	case Uninstalled:
		return "uninstalled"
	case Installed:
		return "installed"
	case Resolved:
		return "resolved"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}
