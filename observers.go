// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cpluff

import (
	"github.com/jlehtine/go-cpluff/registry"
	"github.com/jlehtine/go-cpluff/status"
)

// AddEventListener registers fn to be notified of every plug-in state
// transition. Registering a listener from inside a listener callback is
// forbidden and fails fatally.
func (c *Context) AddEventListener(fn EventListener) int {
	held := c.lock()
	defer c.unlock(held)
	if c.insideAny(inListener) {
		triggerFatal("AddEventListener called from inside an event-listener callback")
		return -1
	}
	c.listenersSeq++
	id := c.listenersSeq
	// Copy-on-write: replace the whole map so a concurrent delivery
	// iterating a snapshot never observes a half-updated map.
	next := make(map[int]EventListener, len(c.listeners)+1)
	for k, v := range c.listeners {
		next[k] = v
	}
	next[id] = fn
	c.listeners = next
	return id
}

// RemoveEventListener unregisters a listener previously returned by
// AddEventListener.
func (c *Context) RemoveEventListener(id int) {
	held := c.lock()
	defer c.unlock(held)
	if c.insideAny(inListener) {
		triggerFatal("RemoveEventListener called from inside an event-listener callback")
		return
	}
	next := make(map[int]EventListener, len(c.listeners))
	for k, v := range c.listeners {
		if k != id {
			next[k] = v
		}
	}
	c.listeners = next
}

// AddLogger registers fn to receive log events at or above minSeverity.
// Registering a logger from inside a logger callback is forbidden and
// fails fatally.
func (c *Context) AddLogger(fn LoggerFunc, minSeverity status.Severity) int {
	held := c.lock()
	defer c.unlock(held)
	if c.insideAny(inLogger) {
		triggerFatal("AddLogger called from inside a logger callback")
		return -1
	}
	c.loggersSeq++
	id := c.loggersSeq
	next := make(map[int]loggerReg, len(c.loggers)+1)
	for k, v := range c.loggers {
		next[k] = v
	}
	next[id] = loggerReg{fn: fn, minLevel: minSeverity}
	c.loggers = next
	c.recomputeMinLogLevel()
	return id
}

// RemoveLogger unregisters a logger previously returned by AddLogger.
func (c *Context) RemoveLogger(id int) {
	held := c.lock()
	defer c.unlock(held)
	if c.insideAny(inLogger) {
		triggerFatal("RemoveLogger called from inside a logger callback")
		return
	}
	next := make(map[int]loggerReg, len(c.loggers))
	for k, v := range c.loggers {
		if k != id {
			next[k] = v
		}
	}
	c.loggers = next
	c.recomputeMinLogLevel()
}

func (c *Context) recomputeMinLogLevel() {
	if len(c.loggers) == 0 {
		c.hasLoggers = false
		return
	}
	c.hasLoggers = true
	min := status.SeverityError
	for _, l := range c.loggers {
		if l.minLevel < min {
			min = l.minLevel
		}
	}
	c.minLogLevel = min
}

// logEvent delivers a log message to every registered logger at or
// above its minimum severity, plus the internal diagnostic logger. A
// below-threshold call short-circuits before acquiring any observer
// snapshot.
func (c *Context) logEvent(severity status.Severity, message, activatingPluginID string) {
	c.logInternal(severity, message)

	if c.hasLoggers && severity < c.minLogLevel {
		return
	}
	loggers := c.loggers
	if len(loggers) == 0 {
		return
	}
	pop := c.enter(inLogger)
	defer pop()
	for _, l := range loggers {
		if severity >= l.minLevel {
			l.fn(severity, message, activatingPluginID)
		}
	}
}

func (c *Context) logInternal(severity status.Severity, message string) {
	switch severity {
	case status.SeverityError:
		c.log.Error(message)
	case status.SeverityWarning:
		c.log.Warn(message)
	case status.SeverityInfo:
		c.log.Info(message)
	default:
		c.log.Debug(message)
	}
}

// onTransition is the registry.Hooks.OnTransition callback: it updates
// the context-level bookkeeping keyed to specific transitions, then
// delivers the state-change event to every registered listener, all
// before the triggering operation returns to its caller. It runs under
// the context lock, possibly deep inside a controller traversal, so it
// never initiates controller operations of its own.
func (c *Context) onTransition(pluginID string, old, new registry.State) {
	switch {
	case old == registry.Uninstalled && new == registry.Installed:
		if p, ok := c.ctrl.Plugin(pluginID); ok {
			c.retainDescriptor(p.Descriptor)
			c.registerContributions(p.Descriptor)
		}
	case old == registry.Stopping && new == registry.Resolved:
		// Symbols are published from starting/active state only; a
		// stopped plug-in's definitions go away with it, as do any
		// resolutions it failed to release.
		c.autoReleaseSymbols(pluginID)
		c.symbols.Undefine(pluginID)
		delete(c.usingCount, pluginID)
		delete(c.pendingStop, pluginID)
	case new == registry.Uninstalled:
		if p, ok := c.ctrl.Plugin(pluginID); ok {
			c.removeContributions(pluginID)
			c.symbols.Undefine(pluginID)
			delete(c.usingCount, pluginID)
			delete(c.pendingStop, pluginID)
			c.releaseDescriptor(p.Descriptor)
		}
	}

	c.telemetry.ObserveTransition(pluginID, old.String(), new.String())
	c.logEvent(status.SeverityDebug, "plug-in "+pluginID+" transitioned from "+old.String()+" to "+new.String(), pluginID)

	listeners := c.listeners
	if len(listeners) == 0 {
		return
	}
	pop := c.enter(inListener)
	defer pop()
	for _, l := range listeners {
		l(pluginID, old, new)
	}
}
