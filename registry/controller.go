// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package registry

import (
	"path/filepath"
	"sort"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/status"
	"github.com/jlehtine/go-cpluff/symbol"
)

// Hooks are the collaborators the controller needs but does not own:
// event delivery and runtime-library opening live one layer up, in the
// cpluff package, so that registry itself stays free of the context's
// locking and observer-fan-out concerns.
type Hooks struct {
	// OnTransition is invoked synchronously after a plug-in's in-memory
	// state has changed and before the triggering operation returns to
	// its caller.
	OnTransition func(pluginID string, old, new State)
	Loader       symbol.RuntimeLoader
}

type edge struct {
	parent *Plugin
	target *Plugin
}

type resolveCtx struct {
	touched      []*Plugin
	edges        []edge
	clearedOrder []*Plugin
}

// Controller owns the plug-in graph and implements the lifecycle
// operations. It performs no locking of its own: callers (the cpluff
// package) serialize all access under the context lock.
type Controller struct {
	plugins map[string]*Plugin
	started []*Plugin // start order; tail is most recently started
	hooks   Hooks
}

// New creates an empty Controller.
func New(hooks Hooks) *Controller {
	return &Controller{
		plugins: map[string]*Plugin{},
		hooks:   hooks,
	}
}

// Plugin returns the registered plugin record for id, if any.
func (c *Controller) Plugin(id string) (*Plugin, bool) {
	p, ok := c.plugins[id]
	return p, ok
}

// Plugins returns every registered plugin, in unspecified order.
func (c *Controller) Plugins() []*Plugin {
	out := make([]*Plugin, 0, len(c.plugins))
	for _, p := range c.plugins {
		out = append(out, p)
	}
	return out
}

// StartedPlugins returns the plug-ins currently active, in start order.
func (c *Controller) StartedPlugins() []*Plugin {
	out := make([]*Plugin, len(c.started))
	copy(out, c.started)
	return out
}

// GetState returns the current state of id.
func (c *Controller) GetState(id string) (State, bool) {
	p, ok := c.plugins[id]
	if !ok {
		return Uninstalled, false
	}
	return p.State, true
}

func (c *Controller) emit(id string, old, new State) {
	if old == new {
		return
	}
	if c.hooks.OnTransition != nil {
		c.hooks.OnTransition(id, old, new)
	}
}

// Install registers a freshly loaded descriptor. It fails with Conflict
// if the identifier is already known.
func (c *Controller) Install(d *descriptor.Descriptor) (*Plugin, error) {
	if _, exists := c.plugins[d.ID]; exists {
		return nil, status.Newf(status.Conflict, "plug-in %q is already installed", d.ID)
	}
	p := newPlugin(d.ID, d)
	c.plugins[d.ID] = p
	c.emit(d.ID, Uninstalled, Installed)
	return p, nil
}

// Resolve transitions id from installed to resolved, recursively
// resolving its mandatory imports. See resolveOne for the cycle
// handling and rollback behavior.
func (c *Controller) Resolve(id string) error {
	p, ok := c.plugins[id]
	if !ok {
		return status.Newf(status.Unknown, "plug-in %q is not installed", id)
	}
	rc := &resolveCtx{}
	if err := c.resolveOne(p, rc); err != nil {
		c.rollback(rc)
		return err
	}
	c.commit(rc)
	return nil
}

func (c *Controller) resolveOne(p *Plugin, rc *resolveCtx) error {
	if p.State >= Resolved {
		return nil
	}
	if p.onTraversal {
		// Recursion re-entered a plug-in already on the current
		// traversal stack: a circular dependency. Stage it as
		// preliminarily resolved; its state-locked flag stays set and
		// no event fires until the whole traversal commits.
		p.preliminary = true
		return nil
	}
	if p.stateLocked {
		return status.Newf(status.Deadlock, "plug-in %q is already undergoing a state transition", p.ID)
	}

	p.stateLocked = true
	p.onTraversal = true
	rc.touched = append(rc.touched, p)

	for _, imp := range p.Descriptor.Imports {
		target, ok := c.plugins[imp.PluginID]
		if !ok {
			if imp.Optional {
				continue
			}
			return status.Newf(status.Dependency, "plug-in %q requires missing plug-in %q", p.ID, imp.PluginID)
		}
		if imp.Match != descriptor.MatchNone && !imp.Match.Satisfies(target.Descriptor.Version, imp.Version) {
			if imp.Optional {
				continue
			}
			return status.Newf(status.Dependency, "plug-in %q requires %q version %s, found %s",
				p.ID, imp.PluginID, imp.Version, target.Descriptor.Version)
		}
		if err := c.resolveOne(target, rc); err != nil {
			return err
		}
		if _, already := p.Imported[target.ID]; !already {
			p.Imported[target.ID] = target
			target.Importing[p.ID] = p
			rc.edges = append(rc.edges, edge{parent: p, target: target})
		}
	}

	if p.Descriptor.RuntimeLibrary != "" {
		lib, err := c.hooks.Loader.Open(runtimeLibraryPath(p.Descriptor))
		if err != nil {
			return status.Wrap(status.Runtime, err, "opening runtime library for plug-in %q", p.ID)
		}
		p.Library = lib
		if p.Descriptor.RuntimeFuncs != "" {
			sym, err := lib.Symbol(p.Descriptor.RuntimeFuncs)
			if err != nil {
				return status.Wrap(status.Runtime, err, "resolving runtime-funcs symbol for plug-in %q", p.ID)
			}
			funcs, ok := sym.(*symbol.RuntimeFuncs)
			if !ok {
				return status.Newf(status.Runtime, "runtime-funcs symbol for plug-in %q has an unexpected type", p.ID)
			}
			p.Funcs = funcs
		}
	}

	rc.clearedOrder = append(rc.clearedOrder, p)
	p.onTraversal = false
	return nil
}

func (c *Controller) rollback(rc *resolveCtx) {
	for _, e := range rc.edges {
		delete(e.parent.Imported, e.target.ID)
		delete(e.target.Importing, e.parent.ID)
	}
	for _, p := range rc.touched {
		p.stateLocked = false
		p.onTraversal = false
		p.preliminary = false
	}
}

func (c *Controller) commit(rc *resolveCtx) {
	for _, p := range rc.clearedOrder {
		old := p.State
		p.State = Resolved
		p.stateLocked = false
		p.preliminary = false
		c.emit(p.ID, old, Resolved)
	}
}

func runtimeLibraryPath(d *descriptor.Descriptor) string {
	return filepath.Join(d.Path, d.RuntimeLibrary+".so")
}

// Start transitions id to active, resolving it first if necessary and
// starting its imported plug-ins before it, depth first. Start is not
// transitively forced on importing plug-ins (the reverse direction).
func (c *Controller) Start(id string) error {
	p, ok := c.plugins[id]
	if !ok {
		return status.Newf(status.Unknown, "plug-in %q is not installed", id)
	}
	return c.startPlugin(p)
}

func (c *Controller) startPlugin(p *Plugin) error {
	if p.State == Active {
		return nil
	}
	if p.stateLocked {
		return status.Newf(status.Deadlock, "plug-in %q is already undergoing a state transition", p.ID)
	}
	if p.activeOp {
		// A start closure higher up the stack is already handling this
		// plug-in: a dependency cycle. It becomes active when that call
		// unwinds.
		return nil
	}
	if err := c.Resolve(p.ID); err != nil {
		return err
	}

	p.activeOp = true
	defer func() { p.activeOp = false }()

	// Imported plug-ins start first, in declared import order.
	for _, imp := range p.Descriptor.Imports {
		dep, ok := p.Imported[imp.PluginID]
		if !ok {
			continue
		}
		if err := c.startPlugin(dep); err != nil {
			return err
		}
	}

	p.stateLocked = true
	old := p.State
	p.State = Starting
	c.emit(p.ID, old, Starting)

	var err error
	if p.Funcs != nil && !p.created && p.Funcs.Create != nil {
		p.Instance, err = p.Funcs.Create(nil)
		if err == nil {
			p.created = true
		}
	}
	if err == nil && p.Funcs != nil && p.Funcs.Start != nil {
		err = p.Funcs.Start(p.Instance)
	}
	if err != nil {
		old2 := p.State
		p.State = Stopping
		c.emit(p.ID, old2, Stopping)
		if p.Funcs != nil && p.Funcs.Stop != nil {
			p.Funcs.Stop(p.Instance)
		}
		if p.Funcs != nil && p.Funcs.Destroy != nil {
			p.Funcs.Destroy(p.Instance)
		}
		p.Instance = nil
		p.created = false
		old3 := p.State
		p.State = Resolved
		c.emit(p.ID, old3, Resolved)
		p.stateLocked = false
		return status.Wrap(status.Runtime, err, "plug-in %q failed to start", p.ID)
	}

	c.started = append(c.started, p)
	old4 := p.State
	p.State = Active
	c.emit(p.ID, old4, Active)
	p.stateLocked = false
	return nil
}

// Stop transitions id out of active, first stopping every plug-in that
// currently imports it and is active, in reverse order of their own
// start.
func (c *Controller) Stop(id string) error {
	p, ok := c.plugins[id]
	if !ok {
		return status.Newf(status.Unknown, "plug-in %q is not installed", id)
	}
	return c.stopPlugin(p)
}

func (c *Controller) stopPlugin(p *Plugin) error {
	if p.State < Active || p.activeOp {
		return nil
	}
	if p.stateLocked {
		return status.Newf(status.Deadlock, "plug-in %q is already undergoing a state transition", p.ID)
	}

	p.activeOp = true
	defer func() { p.activeOp = false }()

	var importers []*Plugin
	for i := len(c.started) - 1; i >= 0; i-- {
		s := c.started[i]
		if _, ok := p.Importing[s.ID]; ok {
			importers = append(importers, s)
		}
	}
	for _, imp := range importers {
		if err := c.stopPlugin(imp); err != nil {
			return err
		}
	}

	p.stateLocked = true
	old := p.State
	p.State = Stopping
	c.emit(p.ID, old, Stopping)

	// The instance is stopped but kept: it is destroyed when the plug-in
	// unresolves, so a later restart reuses it without a fresh create.
	if p.Funcs != nil && p.Funcs.Stop != nil {
		p.Funcs.Stop(p.Instance)
	}
	c.removeFromStarted(p)

	old2 := p.State
	p.State = Resolved
	c.emit(p.ID, old2, Resolved)
	p.stateLocked = false
	return nil
}

func (c *Controller) removeFromStarted(p *Plugin) {
	for i, s := range c.started {
		if s == p {
			c.started = append(c.started[:i], c.started[i+1:]...)
			return
		}
	}
}

// StopAll stops every active plug-in, tail to head of the start order.
// By termination the started list is empty.
func (c *Controller) StopAll() error {
	for len(c.started) > 0 {
		last := c.started[len(c.started)-1]
		if err := c.Stop(last.ID); err != nil {
			return err
		}
	}
	return nil
}

// Unresolve transitions id back to installed, stopping it first (which
// handles the reverse-import closure) and unresolving every plug-in
// that imports it first, again reverse-closure, before removing its own
// import edges and closing its runtime library.
func (c *Controller) Unresolve(id string) error {
	p, ok := c.plugins[id]
	if !ok {
		return status.Newf(status.Unknown, "plug-in %q is not installed", id)
	}
	return c.unresolvePlugin(p)
}

func (c *Controller) unresolvePlugin(p *Plugin) error {
	if p.State <= Installed || p.activeOp {
		return nil
	}
	if p.stateLocked {
		return status.Newf(status.Deadlock, "plug-in %q is already undergoing a state transition", p.ID)
	}
	if err := c.stopPlugin(p); err != nil {
		return err
	}

	p.activeOp = true
	defer func() { p.activeOp = false }()

	var importerIDs []string
	for iid := range p.Importing {
		importerIDs = append(importerIDs, iid)
	}
	sort.Strings(importerIDs)
	for _, iid := range importerIDs {
		imp, ok := c.plugins[iid]
		if !ok {
			continue
		}
		if err := c.unresolvePlugin(imp); err != nil {
			return err
		}
	}

	if p.State <= Installed {
		return nil
	}

	p.stateLocked = true
	var targetIDs []string
	for tid := range p.Imported {
		targetIDs = append(targetIDs, tid)
	}
	for _, tid := range targetIDs {
		t := p.Imported[tid]
		delete(t.Importing, p.ID)
		delete(p.Imported, tid)
	}
	if p.Funcs != nil && p.created && p.Funcs.Destroy != nil {
		p.Funcs.Destroy(p.Instance)
	}
	p.Instance = nil
	p.created = false
	if p.Library != nil {
		_ = p.Library.Close()
		p.Library = nil
		p.Funcs = nil
	}
	old := p.State
	p.State = Installed
	c.emit(p.ID, old, Installed)
	p.stateLocked = false
	return nil
}

// Uninstall transitions id to uninstalled and removes it from the
// identifier map. The controller has no notion of extensions; dropping
// the extension and extension-point registrations contributed by id is
// the caller's bookkeeping (it lives in the cpluff package).
func (c *Controller) Uninstall(id string) error {
	p, ok := c.plugins[id]
	if !ok {
		return status.Newf(status.Unknown, "plug-in %q is not installed", id)
	}
	if err := c.Unresolve(id); err != nil {
		return err
	}
	old := p.State
	p.State = Uninstalled
	c.emit(id, old, Uninstalled)
	delete(c.plugins, id)
	return nil
}

// UninstallAll stops and uninstalls every registered plug-in.
func (c *Controller) UninstallAll() error {
	if err := c.StopAll(); err != nil {
		return err
	}
	for len(c.plugins) > 0 {
		var id string
		for k := range c.plugins {
			id = k
			break
		}
		if err := c.Uninstall(id); err != nil {
			return err
		}
	}
	return nil
}
