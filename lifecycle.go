// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cpluff

import (
	"time"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/registry"
	"github.com/jlehtine/go-cpluff/status"
)

// Install registers d with the context. It fails with status.Conflict
// if d's identifier is already installed. The descriptor's extension
// points and extensions become queryable immediately, regardless of
// whether the plug-ins they depend on are themselves installed.
func (c *Context) Install(d *descriptor.Descriptor) error {
	held := c.lock()
	defer c.unlock(held)
	return c.installLocked(d)
}

func (c *Context) installLocked(d *descriptor.Descriptor) error {
	start := time.Now()
	_, err := c.ctrl.Install(d)
	c.telemetry.ObserveOperation("install", start, outcomeLabel(err))
	if err != nil {
		c.logEvent(status.SeverityError, "install "+d.ID+" failed: "+err.Error(), d.ID)
		return err
	}
	return nil
}

// Resolve transitions id to resolved, recursively resolving its
// mandatory imports.
func (c *Context) Resolve(id string) error {
	return c.runOperation("resolve", id, c.ctrl.Resolve)
}

// Start transitions id to active, resolving it and starting its
// imported plug-ins first if necessary.
func (c *Context) Start(id string) error {
	return c.runOperation("start", id, c.ctrl.Start)
}

// Stop transitions id out of active, stopping its active importers
// first. If callers still hold symbols resolved from id, the stop is
// deferred until the last of them is released; Stop then returns ok
// with the plug-in still active.
func (c *Context) Stop(id string) error {
	held := c.lock()
	defer c.unlock(held)

	if _, ok := c.ctrl.Plugin(id); !ok {
		return status.Newf(status.Unknown, "plug-in %q is not installed", id)
	}
	if c.usingCount[id] > 0 {
		c.pendingStop[id] = true
		c.logEvent(status.SeverityWarning,
			"stop of plug-in "+id+" deferred until its resolved symbols are released", id)
		return nil
	}

	start := time.Now()
	err := c.ctrl.Stop(id)
	c.telemetry.ObserveOperation("stop", start, outcomeLabel(err))
	if err != nil {
		c.logEvent(status.SeverityError, "stop "+id+" failed: "+err.Error(), id)
		return err
	}
	c.drainPendingStops()
	return nil
}

// Unresolve transitions id back to installed.
func (c *Context) Unresolve(id string) error {
	return c.runOperation("unresolve", id, c.ctrl.Unresolve)
}

// Uninstall transitions id to uninstalled and forgets it. Any extension
// or extension-point registrations it contributed are dropped; existing
// Extensions contributed by other plug-ins that point at a dropped
// extension point remain queryable, but their ExtensionPoint lookups
// report the point as missing.
func (c *Context) Uninstall(id string) error {
	held := c.lock()
	defer c.unlock(held)
	err := c.uninstallLocked(id)
	c.drainPendingStops()
	return err
}

func (c *Context) uninstallLocked(id string) error {
	start := time.Now()
	err := c.ctrl.Uninstall(id)
	c.telemetry.ObserveOperation("uninstall", start, outcomeLabel(err))
	if err != nil {
		c.logEvent(status.SeverityError, "uninstall "+id+" failed: "+err.Error(), id)
		return err
	}
	return nil
}

// StopAll stops every active plug-in, in reverse start order.
func (c *Context) StopAll() error {
	return c.runGlobalOperation("stop-all", c.ctrl.StopAll)
}

// UninstallAll stops and uninstalls every registered plug-in.
func (c *Context) UninstallAll() error {
	return c.runGlobalOperation("uninstall-all", c.ctrl.UninstallAll)
}

// GetState returns id's current lifecycle state. An identifier not
// known to the context reports Uninstalled alongside an Unknown error.
func (c *Context) GetState(id string) (registry.State, error) {
	held := c.lock()
	defer c.unlock(held)
	st, ok := c.ctrl.GetState(id)
	if !ok {
		return registry.Uninstalled, status.Newf(status.Unknown, "plug-in %q is not installed", id)
	}
	return st, nil
}

// PluginInfo is a use-counted view of a plug-in's descriptor plus its
// current state, returned by GetPluginInfo. Callers must pass it to
// ReleaseInfo when done.
type PluginInfo struct {
	Descriptor *descriptor.Descriptor
	State      registry.State
}

// GetPluginInfo returns a use-counted snapshot of id's descriptor and
// current state. The caller must call ReleaseInfo exactly once on the
// returned value.
func (c *Context) GetPluginInfo(id string) (*PluginInfo, error) {
	held := c.lock()
	defer c.unlock(held)
	p, ok := c.ctrl.Plugin(id)
	if !ok {
		return nil, status.Newf(status.Unknown, "plug-in %q is not installed", id)
	}
	c.retainDescriptor(p.Descriptor)
	return &PluginInfo{Descriptor: p.Descriptor, State: p.State}, nil
}

// GetPluginsInfo returns a use-counted snapshot of every installed
// plug-in.
func (c *Context) GetPluginsInfo() []*PluginInfo {
	held := c.lock()
	defer c.unlock(held)
	plugins := c.ctrl.Plugins()
	out := make([]*PluginInfo, len(plugins))
	for i, p := range plugins {
		c.retainDescriptor(p.Descriptor)
		out[i] = &PluginInfo{Descriptor: p.Descriptor, State: p.State}
	}
	return out
}

// ReleaseInfo drops the use-count taken by GetPluginInfo or
// GetPluginsInfo.
func (c *Context) ReleaseInfo(info *PluginInfo) {
	held := c.lock()
	defer c.unlock(held)
	c.releaseDescriptor(info.Descriptor)
}

func (c *Context) retainDescriptor(d *descriptor.Descriptor) {
	c.descRefs[d]++
}

func (c *Context) releaseDescriptor(d *descriptor.Descriptor) {
	if c.descRefs[d] <= 1 {
		delete(c.descRefs, d)
		return
	}
	c.descRefs[d]--
}

// runOperation wraps a single-plugin registry.Controller operation with
// locking, telemetry, and error logging.
func (c *Context) runOperation(name, id string, op func(string) error) error {
	held := c.lock()
	defer c.unlock(held)
	start := time.Now()
	err := op(id)
	c.telemetry.ObserveOperation(name, start, outcomeLabel(err))
	if err != nil {
		c.logEvent(status.SeverityError, name+" "+id+" failed: "+err.Error(), id)
		return err
	}
	c.drainPendingStops()
	return nil
}

func (c *Context) runGlobalOperation(name string, op func() error) error {
	held := c.lock()
	defer c.unlock(held)
	start := time.Now()
	err := op()
	c.telemetry.ObserveOperation(name, start, outcomeLabel(err))
	if err != nil {
		c.logEvent(status.SeverityError, name+" failed: "+err.Error(), "")
		return err
	}
	c.drainPendingStops()
	return nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if e, ok := err.(*status.Error); ok {
		return e.Code.String()
	}
	return "error"
}
