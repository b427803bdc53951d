// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cpluff

import "github.com/jlehtine/go-cpluff/symbol"

// wrappingLoader decorates a symbol.RuntimeLoader so that the
// runtime-funcs struct it hands back to the registry has its four entry
// points wrapped with the context's invocation-kind guard. See
// NewContext for why this is necessary.
type wrappingLoader struct {
	inner symbol.RuntimeLoader
	ctx   *Context
}

func (w wrappingLoader) Open(path string) (symbol.Library, error) {
	lib, err := w.inner.Open(path)
	if err != nil {
		return nil, err
	}
	return wrappingLibrary{lib: lib, ctx: w.ctx}, nil
}

type wrappingLibrary struct {
	lib symbol.Library
	ctx *Context
}

func (w wrappingLibrary) Symbol(name string) (interface{}, error) {
	v, err := w.lib.Symbol(name)
	if err != nil {
		return nil, err
	}
	if funcs, ok := v.(*symbol.RuntimeFuncs); ok {
		return w.ctx.wrapRuntimeFuncs(funcs), nil
	}
	return v, nil
}

func (w wrappingLibrary) Close() error {
	return w.lib.Close()
}

// wrapRuntimeFuncs returns a copy of f whose entry points push the
// matching invocationKind onto c.invoking for the duration of the call.
func (c *Context) wrapRuntimeFuncs(f *symbol.RuntimeFuncs) *symbol.RuntimeFuncs {
	wrapped := &symbol.RuntimeFuncs{}
	if f.Create != nil {
		orig := f.Create
		wrapped.Create = func(arg interface{}) (interface{}, error) {
			pop := c.enter(inCreate)
			defer pop()
			return orig(arg)
		}
	}
	if f.Start != nil {
		orig := f.Start
		wrapped.Start = func(instance interface{}) error {
			pop := c.enter(inStart)
			defer pop()
			return orig(instance)
		}
	}
	if f.Stop != nil {
		orig := f.Stop
		wrapped.Stop = func(instance interface{}) {
			pop := c.enter(inStop)
			defer pop()
			orig(instance)
		}
	}
	if f.Destroy != nil {
		orig := f.Destroy
		wrapped.Destroy = func(instance interface{}) {
			pop := c.enter(inDestroy)
			defer pop()
			orig(instance)
		}
	}
	return wrapped
}
