// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package descriptor holds the immutable plug-in metadata model: a
// Descriptor value tree produced by the descriptor loader and never
// mutated after publication. Values in this package are shared-immutable;
// concurrent readers never need to synchronize.
package descriptor

// Descriptor is the immutable metadata tree describing a single plug-in,
// as declared by its plugin.xml. Once returned from the loader a
// Descriptor is never mutated; callers that need to keep one alive past
// the call that produced it hold a use-count via the registry/context
// layer rather than copying it.
type Descriptor struct {
	ID           string // unique, <=63 bytes, ASCII identifier charset
	Name         string // optional human-readable name
	Version      Version
	ProviderName string
	Path         string // absolute install directory path

	ABICompat Version // optional ABI-backwards-compatibility version
	HasABI    bool
	APICompat Version // optional API-backwards-compatibility version
	HasAPI    bool

	RequiredFrameworkVersion string // optional

	RuntimeLibrary string // optional runtime library base name
	RuntimeFuncs   string // optional runtime-funcs symbol name

	Imports         []Import
	ExtensionPoints []ExtensionPoint
	Extensions      []Extension
}

// Import is a declared dependency on another plug-in, optionally
// constrained by version.
type Import struct {
	PluginID string
	Version  Version
	HasVersion bool
	Match    MatchRule
	Optional bool
}

// ExtensionPoint is a named hook a plug-in declares so that other
// plug-ins may contribute Extensions to it.
type ExtensionPoint struct {
	LocalID string
	Name    string
	Schema  string

	pluginID string // set by the loader at publication time
}

// GlobalID returns the extension point's global identifier,
// "<pluginId>.<localId>".
func (e ExtensionPoint) GlobalID() string {
	return e.pluginID + "." + e.LocalID
}

// WithPluginID returns a copy of e with its owning plug-in identifier
// set. Used only by the loader while building a Descriptor.
func (e ExtensionPoint) WithPluginID(id string) ExtensionPoint {
	e.pluginID = id
	return e
}

// Extension is a contribution to a named extension point, carrying a
// configuration element tree.
type Extension struct {
	ExtensionPointID string // global identifier of the target extension point
	LocalID          string // optional
	Name             string

	Configuration *ConfigElement

	pluginID string
}

// GlobalID returns the extension's global identifier, or the empty
// string if it declared no local identifier.
func (e Extension) GlobalID() string {
	if e.LocalID == "" {
		return ""
	}
	return e.pluginID + "." + e.LocalID
}

// WithPluginID returns a copy of e with its owning plug-in identifier
// set. Used only by the loader while building a Descriptor.
func (e Extension) WithPluginID(id string) Extension {
	e.pluginID = id
	return e
}

// Attr is an ordered (name, value) attribute pair on a ConfigElement.
type Attr struct {
	Name  string
	Value string
}

// ConfigElement is a node in an extension's configuration element tree.
// The root element's Name is always "extension" and its Parent is nil.
type ConfigElement struct {
	Name     string
	Attrs    []Attr
	Value    string // leading/trailing whitespace stripped; empty if only whitespace
	Parent   *ConfigElement
	Children []*ConfigElement
}

// Attr returns the value of the named attribute and whether it was
// present.
func (c *ConfigElement) Attr(name string) (string, bool) {
	for _, a := range c.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}
