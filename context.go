// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package cpluff implements the top-level plug-in framework context: the
// registry of plug-ins, extension points, extensions, and observers,
// layered over the descriptor, registry, source, and symbol packages.
package cpluff

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/internal/logging"
	"github.com/jlehtine/go-cpluff/internal/telemetry"
	"github.com/jlehtine/go-cpluff/registry"
	"github.com/jlehtine/go-cpluff/source"
	"github.com/jlehtine/go-cpluff/status"
	"github.com/jlehtine/go-cpluff/symbol"
)

const defaultDescriptorFile = "plugin.xml"

// invocationKind marks which kind of callback, if any, the current
// goroutine is nested inside of. It backs the callback re-entrancy
// guards below; the state-locked deadlock refusal is separate and lives
// in registry.
type invocationKind int

const (
	inLogger invocationKind = iota
	inListener
	inStart
	inStop
	inCreate
	inDestroy
)

// EventListener is notified after a plug-in's in-memory state has
// changed, before the triggering operation returns to its caller.
type EventListener func(pluginID string, old, new registry.State)

// LoggerFunc receives log events at or above the severity it was
// registered with.
type LoggerFunc func(severity status.Severity, message, activatingPluginID string)

// FatalErrorHandler is invoked for conditions classified as fatal (e.g.
// a forbidden re-entrant operation). It is process-wide, not
// per-context.
type FatalErrorHandler func(message string)

var (
	fatalMu      sync.Mutex
	fatalHandler FatalErrorHandler
)

// SetFatalErrorHandler installs the process-wide fatal-error handler.
func SetFatalErrorHandler(h FatalErrorHandler) {
	fatalMu.Lock()
	defer fatalMu.Unlock()
	fatalHandler = h
}

func triggerFatal(message string) {
	fatalMu.Lock()
	h := fatalHandler
	fatalMu.Unlock()
	if h != nil {
		h(message)
		return
	}
	// No handler installed: a fatal condition must invoke the handler
	// and not return, and in its absence abort the process. A panic is
	// the idiomatic Go analogue of abort() here: it unwinds with a
	// stack trace instead of silently corrupting state.
	panic("cpluff: fatal error: " + message)
}

type loggerReg struct {
	fn       LoggerFunc
	minLevel status.Severity
}

// Context owns one population of plug-ins and one set of observers. All
// exported methods are safe for concurrent use; they serialize through
// a single recursiveMutex, since Go's sync.Mutex has no recursive mode
// of its own (see DESIGN.md).
type Context struct {
	id string

	mu recursiveMutex

	ctrl    *registry.Controller
	symbols *symbol.Table
	loader  symbol.RuntimeLoader

	descriptorFile string
	sources        []source.Source

	listenersSeq int
	listeners    map[int]EventListener
	loggersSeq   int
	loggers      map[int]loggerReg
	minLogLevel  status.Severity
	hasLoggers   bool

	log       logging.Logger
	telemetry *telemetry.Registry

	descRefs map[*descriptor.Descriptor]int32

	extPoints  map[string]extPointReg
	extensions []extReg

	invoking []invocationKind

	// usingCount tracks, per provider plug-in id, how many of its published
	// symbols are currently resolved by callers; see symbols.go.
	usingCount  map[string]int
	pendingStop map[string]bool
	heldSymbols map[string][]*Symbol
}

// Option configures a Context at creation time.
type Option func(*Context)

// WithDescriptorFile overrides the default descriptor filename used by
// filesystem sources registered without their own override.
func WithDescriptorFile(name string) Option {
	return func(c *Context) { c.descriptorFile = name }
}

// WithRuntimeLoader overrides the default platform RuntimeLoader, e.g.
// with a stub for tests.
func WithRuntimeLoader(l symbol.RuntimeLoader) Option {
	return func(c *Context) { c.loader = l }
}

// WithLogger overrides the internal diagnostic logger (distinct from the
// logger observer channel registered with AddLogger).
func WithLogger(l logging.Logger) Option {
	return func(c *Context) { c.log = l }
}

// NewContext creates a new, empty Context.
func NewContext(opts ...Option) *Context {
	c := &Context{
		id:             uuid.NewString(),
		descriptorFile: defaultDescriptorFile,
		symbols:        symbol.NewTable(),
		loader:         symbol.NewDefaultLoader(),
		listeners:      map[int]EventListener{},
		loggers:        map[int]loggerReg{},
		log:            logging.Default(),
		telemetry:      telemetry.NewRegistry(),
		descRefs:       map[*descriptor.Descriptor]int32{},
		extPoints:      map[string]extPointReg{},
		usingCount:     map[string]int{},
		pendingStop:    map[string]bool{},
		heldSymbols:    map[string][]*Symbol{},
	}
	for _, o := range opts {
		o(c)
	}
	// Wrap the configured loader so that any create/start/stop/destroy
	// call it hands back to the registry pushes the matching invocation
	// kind onto c.invoking first. The recursive lock already lets a
	// plug-in's own callback call back into the context on the same
	// goroutine; the pushed kind is what lets the re-entrancy guards
	// (e.g. DestroyContext) recognize that such a call comes from inside
	// a callback.
	wrapped := wrappingLoader{inner: c.loader, ctx: c}
	c.ctrl = registry.New(registry.Hooks{
		OnTransition: c.onTransition,
		Loader:       wrapped,
	})
	return c
}

// ID returns the context's process-unique instance identifier.
func (c *Context) ID() string {
	return c.id
}

// Telemetry returns the context's metrics registry.
func (c *Context) Telemetry() *telemetry.Registry {
	return c.telemetry
}

// lock acquires the context's recursive lock: a goroutine that already
// holds it (directly, or transitively through a callback the context
// invoked on its behalf) reacquires it without blocking. unlock is its
// exact inverse and must be deferred immediately after a successful
// lock, passing back exactly what lock returned.
func (c *Context) lock() (reentrant bool) {
	return c.mu.Lock()
}

func (c *Context) unlock(reentrant bool) {
	c.mu.Unlock()
}

// enter pushes an invocation kind onto the current re-entrancy stack
// and returns a function that pops it.
func (c *Context) enter(kind invocationKind) func() {
	c.invoking = append(c.invoking, kind)
	n := len(c.invoking)
	return func() {
		c.invoking = c.invoking[:n-1]
	}
}

// insideAny reports whether the current goroutine is nested inside any
// of the given invocation kinds.
func (c *Context) insideAny(kinds ...invocationKind) bool {
	for _, have := range c.invoking {
		for _, want := range kinds {
			if have == want {
				return true
			}
		}
	}
	return false
}

// DestroyContext releases a context. Calling it from inside any
// callback the context has invoked (logger, listener, start, stop,
// create, destroy) is a fatal invocation-context violation.
func (c *Context) DestroyContext() {
	held := c.lock()
	defer c.unlock(held)
	if len(c.invoking) > 0 {
		triggerFatal("DestroyContext called from inside a context callback")
		return
	}
	_ = c.ctrl.UninstallAll()
}
