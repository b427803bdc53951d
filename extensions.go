// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cpluff

import (
	"sort"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/status"
)

// extPointReg ties an extension point registration to the plug-in that
// contributed it, so uninstalling the plug-in can drop it again.
type extPointReg struct {
	point    descriptor.ExtensionPoint
	pluginID string
}

type extReg struct {
	ext      descriptor.Extension
	pluginID string
}

// registerContributions makes d's extension points and extensions
// queryable. Called under the context lock as part of install, before
// the install event is delivered, so listeners already observe them.
func (c *Context) registerContributions(d *descriptor.Descriptor) {
	for _, ep := range d.ExtensionPoints {
		gid := ep.GlobalID()
		if _, exists := c.extPoints[gid]; exists {
			c.logEvent(status.SeverityWarning,
				"extension point "+gid+" is already registered, ignoring duplicate", d.ID)
			continue
		}
		c.extPoints[gid] = extPointReg{point: ep, pluginID: d.ID}
	}
	for _, ex := range d.Extensions {
		c.extensions = append(c.extensions, extReg{ext: ex, pluginID: d.ID})
	}
}

// removeContributions drops every extension point and extension
// contributed by pluginID. Extensions contributed by other plug-ins that
// attach to a removed extension point stay queryable; their
// ExtensionPoint lookup simply reports the point as missing.
func (c *Context) removeContributions(pluginID string) {
	for gid, reg := range c.extPoints {
		if reg.pluginID == pluginID {
			delete(c.extPoints, gid)
		}
	}
	kept := c.extensions[:0]
	for _, reg := range c.extensions {
		if reg.pluginID != pluginID {
			kept = append(kept, reg)
		}
	}
	c.extensions = kept
}

// ExtensionPoint looks up an extension point by its global identifier
// ("<pluginId>.<localId>").
func (c *Context) ExtensionPoint(globalID string) (descriptor.ExtensionPoint, bool) {
	held := c.lock()
	defer c.unlock(held)
	reg, ok := c.extPoints[globalID]
	return reg.point, ok
}

// ExtensionPoints returns every registered extension point, ordered by
// global identifier.
func (c *Context) ExtensionPoints() []descriptor.ExtensionPoint {
	held := c.lock()
	defer c.unlock(held)
	out := make([]descriptor.ExtensionPoint, 0, len(c.extPoints))
	for _, reg := range c.extPoints {
		out = append(out, reg.point)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalID() < out[j].GlobalID() })
	return out
}

// Extensions returns every extension attached to the named extension
// point, in installation order. Extensions are queryable as soon as the
// contributing plug-in is installed, whether or not the extension
// point's plug-in is installed at all.
func (c *Context) Extensions(extensionPointID string) []descriptor.Extension {
	held := c.lock()
	defer c.unlock(held)
	var out []descriptor.Extension
	for _, reg := range c.extensions {
		if reg.ext.ExtensionPointID == extensionPointID {
			out = append(out, reg.ext)
		}
	}
	return out
}

// AllExtensions returns every registered extension, in installation
// order.
func (c *Context) AllExtensions() []descriptor.Extension {
	held := c.lock()
	defer c.unlock(held)
	out := make([]descriptor.Extension, 0, len(c.extensions))
	for _, reg := range c.extensions {
		out = append(out, reg.ext)
	}
	return out
}
