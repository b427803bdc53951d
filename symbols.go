// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cpluff

import (
	"github.com/jlehtine/go-cpluff/registry"
	"github.com/jlehtine/go-cpluff/status"
)

// Symbol is one successful resolution of a named runtime symbol. The
// caller holds it until ReleaseSymbol; the providing plug-in cannot
// complete a requested stop while unreleased resolutions remain.
type Symbol struct {
	// Value is the value the providing plug-in published.
	Value interface{}

	provider string
	consumer string
	handle   uintptr
	released bool
}

// Provider returns the identifier of the plug-in that published the
// symbol.
func (s *Symbol) Provider() string {
	return s.provider
}

// DefineSymbol publishes value under name on behalf of providerID.
// Only a plug-in in starting or active state may publish symbols; a
// call outside those states is an invocation-context violation and
// fails fatally. Names are unique per providing plug-in.
func (c *Context) DefineSymbol(providerID, name string, value interface{}) error {
	held := c.lock()
	defer c.unlock(held)

	p, ok := c.ctrl.Plugin(providerID)
	if !ok {
		return status.Newf(status.Unknown, "plug-in %q is not installed", providerID)
	}
	if p.State != registry.Starting && p.State != registry.Active {
		triggerFatal("DefineSymbol called for plug-in " + providerID + " in state " + p.State.String())
		return status.Newf(status.Runtime, "plug-in %q may not define symbols in state %s", providerID, p.State)
	}
	if err := c.symbols.Define(providerID, name, value); err != nil {
		c.logEvent(status.SeverityError, "defining symbol "+name+" failed: "+err.Error(), providerID)
		return err
	}
	return nil
}

// ResolveSymbol looks up pluginID, ensures it is active (starting it,
// and its imports, if necessary) and resolves the named symbol on
// behalf of the host. Every successful resolution must be matched by
// one ReleaseSymbol call.
func (c *Context) ResolveSymbol(pluginID, name string) (*Symbol, error) {
	return c.resolveSymbol("", pluginID, name)
}

// ResolveSymbolAs is ResolveSymbol on behalf of the plug-in identified
// by consumerID. Resolutions made this way are recorded as a runtime
// dependency of the consumer: if the consumer stops while still holding
// them, the framework releases them on its behalf with a warning.
func (c *Context) ResolveSymbolAs(consumerID, pluginID, name string) (*Symbol, error) {
	return c.resolveSymbol(consumerID, pluginID, name)
}

func (c *Context) resolveSymbol(consumerID, pluginID, name string) (*Symbol, error) {
	held := c.lock()
	defer c.unlock(held)

	if _, ok := c.ctrl.Plugin(pluginID); !ok {
		return nil, status.Newf(status.Unknown, "plug-in %q is not installed", pluginID)
	}
	if err := c.ctrl.Start(pluginID); err != nil {
		c.logEvent(status.SeverityError, "resolving symbol "+name+" failed: "+err.Error(), pluginID)
		return nil, err
	}
	handle, value, err := c.symbols.Resolve(pluginID, name)
	if err != nil {
		c.logEvent(status.SeverityError, "resolving symbol "+name+" failed: "+err.Error(), pluginID)
		return nil, err
	}
	c.usingCount[pluginID]++
	s := &Symbol{Value: value, provider: pluginID, consumer: consumerID, handle: handle}
	if consumerID != "" {
		c.heldSymbols[consumerID] = append(c.heldSymbols[consumerID], s)
	}
	return s, nil
}

// ReleaseSymbol drops one resolution taken by ResolveSymbol. Once the
// provider's last resolution is released, a stop previously deferred on
// it proceeds.
func (c *Context) ReleaseSymbol(s *Symbol) {
	held := c.lock()
	defer c.unlock(held)
	c.releaseSymbolLocked(s)
	c.drainPendingStops()
}

func (c *Context) releaseSymbolLocked(s *Symbol) {
	if s == nil || s.released {
		return
	}
	s.released = true
	if _, _, err := c.symbols.Release(s.handle); err != nil {
		// The provider's symbols were force-undefined by a stop or
		// uninstall before this release; nothing left to account for.
		return
	}
	if c.usingCount[s.provider] > 0 {
		c.usingCount[s.provider]--
	}
	if c.usingCount[s.provider] == 0 {
		delete(c.usingCount, s.provider)
	}
	if s.consumer != "" {
		list := c.heldSymbols[s.consumer]
		for i, other := range list {
			if other == s {
				c.heldSymbols[s.consumer] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(c.heldSymbols[s.consumer]) == 0 {
			delete(c.heldSymbols, s.consumer)
		}
	}
}

// autoReleaseSymbols releases every symbol still held by consumerID,
// used when a plug-in stops without releasing its resolutions.
func (c *Context) autoReleaseSymbols(consumerID string) {
	held := c.heldSymbols[consumerID]
	if len(held) == 0 {
		return
	}
	c.logEvent(status.SeverityWarning,
		"plug-in "+consumerID+" stopped without releasing its resolved symbols, releasing them now", consumerID)
	for _, s := range append([]*Symbol(nil), held...) {
		c.releaseSymbolLocked(s)
	}
	delete(c.heldSymbols, consumerID)
}

// drainPendingStops completes stops that were deferred because the
// subject plug-in still had resolved symbols outstanding. Each
// completed stop may itself release symbols and unblock further
// deferred stops, so the drain iterates to a fixed point. Called at the
// end of every public operation that can release symbols, never from
// inside a controller traversal.
func (c *Context) drainPendingStops() {
	for {
		var ready []string
		for id := range c.pendingStop {
			if c.usingCount[id] == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return
		}
		for _, id := range ready {
			delete(c.pendingStop, id)
			st, ok := c.ctrl.GetState(id)
			if !ok || st != registry.Active {
				continue
			}
			if err := c.ctrl.Stop(id); err != nil {
				c.logEvent(status.SeverityError, "deferred stop of "+id+" failed: "+err.Error(), id)
			}
		}
	}
}
