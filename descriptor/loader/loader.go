// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package loader

import (
	"fmt"
	"strings"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/status"
)

// parserState is one of the nine states of the descriptor loader's push
// parser.
type parserState int

const (
	stateBegin parserState = iota
	statePlugin
	stateBackwardsCompat
	stateRequires
	stateRuntime
	stateExtension
	stateUnknown
	stateEnd
	stateError
)

// Warning is a diagnostic message collected during a load. Messages
// prefixed "warning: " are non-fatal oddities (an unknown attribute or
// element); a message prefixed "error: " records the structural error
// that failed the load.
type Warning struct {
	Message string
}

// configFrame tracks one level of the configuration-element stack built
// while state == stateExtension.
type configFrame struct {
	elem *descriptor.ConfigElement
	buf  strings.Builder
}

// loader holds all mutable parse state for a single Load call. It is not
// reused across calls.
type loader struct {
	state       parserState
	returnState parserState // state to resume once an `unknown` island closes
	unknownDepth int

	d *descriptor.Descriptor

	curImports []descriptor.Import
	curPoints  []descriptor.ExtensionPoint
	curExts    []descriptor.Extension

	curExtension    *descriptor.Extension
	configStack     []*configFrame

	structuralErrors int
	resourceErrors   int
	warnings         []Warning
}

// Load reads a single descriptor from src and returns either a fully
// built, immutable Descriptor or a *status.Error classifying the
// failure as Malformed, Resource, or IO: the load only counts as ok if
// the terminal state is `end` and both error counters are zero.
func Load(src EventSource) (*descriptor.Descriptor, []Warning, error) {
	l := &loader{
		d:     &descriptor.Descriptor{},
		state: stateBegin,
	}

	for {
		ev, err := src.Next()
		if err != nil {
			return nil, l.warnings, err
		}
		if ev.Kind == EventEOF {
			break
		}
		switch ev.Kind {
		case EventStartElement:
			l.start(ev.Name, ev.Attrs)
		case EventEndElement:
			l.end(ev.Name)
		case EventCharData:
			l.chars(ev.Chars)
		}
		if l.state == stateError {
			break
		}
	}

	if l.state != stateEnd || l.structuralErrors > 0 || l.resourceErrors > 0 {
		switch {
		case l.structuralErrors > 0:
			return nil, l.warnings, status.Newf(status.Malformed, "descriptor is malformed (%d structural error(s))", l.structuralErrors)
		case l.resourceErrors > 0:
			return nil, l.warnings, status.Newf(status.Resource, "descriptor load failed due to resource exhaustion")
		default:
			return nil, l.warnings, status.Newf(status.Malformed, "descriptor load ended in unexpected state")
		}
	}

	l.d.Imports = l.curImports[:len(l.curImports):len(l.curImports)]
	l.d.ExtensionPoints = l.curPoints[:len(l.curPoints):len(l.curPoints)]
	l.d.Extensions = l.curExts[:len(l.curExts):len(l.curExts)]
	return l.d, l.warnings, nil
}

func (l *loader) fail(format string, args ...interface{}) {
	l.structuralErrors++
	l.warnings = append(l.warnings, Warning{Message: "error: " + fmt.Sprintf(format, args...)})
	l.state = stateError
}

func (l *loader) warn(format string, args ...interface{}) {
	l.warnings = append(l.warnings, Warning{Message: "warning: " + fmt.Sprintf(format, args...)})
}

func (l *loader) start(name string, attrs []descriptor.Attr) {
	if l.state == stateUnknown {
		l.unknownDepth++
		return
	}

	if l.state == stateExtension {
		l.startConfigElement(name, attrs)
		return
	}

	switch l.state {
	case stateBegin:
		if name != "plugin" {
			l.fail("expected root element <plugin>, got <%s>", name)
			return
		}
		id, ok := attrString(attrs, "id")
		if !ok {
			l.fail("<plugin> missing required attribute 'id'")
			return
		}
		version, ok := attrString(attrs, "version")
		if !ok {
			l.fail("<plugin> missing required attribute 'version'")
			return
		}
		v, err := descriptor.ParseVersion(version)
		if err != nil {
			l.fail("invalid plugin version: %v", err)
			return
		}
		l.d.ID = id
		l.d.Version = v
		l.d.Name, _ = attrString(attrs, "name")
		l.d.ProviderName, _ = attrString(attrs, "provider-name")
		checkKnownAttrs(l, attrs, "id", "version", "name", "provider-name")
		l.state = statePlugin

	case statePlugin:
		switch name {
		case "backwards-compatibility":
			if abi, ok := attrString(attrs, "abi"); ok {
				v, err := descriptor.ParseVersion(abi)
				if err != nil {
					l.fail("invalid abi version: %v", err)
					return
				}
				l.d.ABICompat, l.d.HasABI = v, true
			}
			if api, ok := attrString(attrs, "api"); ok {
				v, err := descriptor.ParseVersion(api)
				if err != nil {
					l.fail("invalid api version: %v", err)
					return
				}
				l.d.APICompat, l.d.HasAPI = v, true
			}
			checkKnownAttrs(l, attrs, "abi", "api")
			l.state = stateBackwardsCompat
		case "requires":
			checkKnownAttrs(l, attrs)
			l.state = stateRequires
		case "runtime":
			lib, ok := attrString(attrs, "library")
			if !ok {
				l.fail("<runtime> missing required attribute 'library'")
				return
			}
			l.d.RuntimeLibrary = lib
			l.d.RuntimeFuncs, _ = attrString(attrs, "funcs")
			checkKnownAttrs(l, attrs, "library", "funcs")
			l.state = stateRuntime
		case "extension-point":
			id, ok := attrString(attrs, "id")
			if !ok {
				l.fail("<extension-point> missing required attribute 'id'")
				return
			}
			ep := descriptor.ExtensionPoint{LocalID: id}
			ep.Name, _ = attrString(attrs, "name")
			ep.Schema, _ = attrString(attrs, "schema")
			checkKnownAttrs(l, attrs, "id", "name", "schema")
			l.curPoints = append(l.curPoints, ep.WithPluginID(l.d.ID))
			// extension-point has no children in the minimum grammar;
			// enter stateUnknown with statePlugin as the return state so
			// the matching end-element pops back via the generic end()
			// handler.
			l.pushUnknownReturn(statePlugin)
		case "extension":
			point, ok := attrString(attrs, "point")
			if !ok {
				l.fail("<extension> missing required attribute 'point'")
				return
			}
			ext := descriptor.Extension{ExtensionPointID: point}
			ext.LocalID, _ = attrString(attrs, "id")
			ext.Name, _ = attrString(attrs, "name")
			checkKnownAttrs(l, attrs, "point", "id", "name")
			ext = ext.WithPluginID(l.d.ID)
			l.curExtension = &ext
			root := &descriptor.ConfigElement{Name: "extension"}
			l.curExtension.Configuration = root
			l.configStack = []*configFrame{{elem: root}}
			l.state = stateExtension
		default:
			l.enterUnknown(name, statePlugin)
		}

	case stateBackwardsCompat:
		l.enterUnknown(name, stateBackwardsCompat)

	case stateRequires:
		if name != "import" {
			l.enterUnknown(name, stateRequires)
			return
		}
		pluginID, ok := attrString(attrs, "plugin")
		if !ok {
			l.fail("<import> missing required attribute 'plugin'")
			return
		}
		imp := descriptor.Import{PluginID: pluginID}
		if v, ok := attrString(attrs, "version"); ok {
			parsed, err := descriptor.ParseVersion(v)
			if err != nil {
				l.fail("invalid import version: %v", err)
				return
			}
			imp.Version, imp.HasVersion = parsed, true
		}
		matchStr, _ := attrString(attrs, "match")
		match, err := descriptor.ParseMatchRule(matchStr)
		if err != nil {
			l.fail("invalid import match rule: %v", err)
			return
		}
		if match != descriptor.MatchNone && !imp.HasVersion {
			l.fail("import of %q has match rule %q but no version", pluginID, matchStr)
			return
		}
		imp.Match = match
		if opt, ok := attrString(attrs, "optional"); ok {
			b, err := parseBool(opt)
			if err != nil {
				l.fail("invalid import 'optional' value %q", opt)
				return
			}
			imp.Optional = b
		}
		checkKnownAttrs(l, attrs, "plugin", "version", "match", "optional")
		l.curImports = append(l.curImports, imp)
		l.pushUnknownReturn(stateRequires)

	case stateRuntime:
		l.enterUnknown(name, stateRuntime)

	default:
		l.enterUnknown(name, l.state)
	}
}

// pushUnknownReturn switches into stateUnknown so that the matching
// end-element (an element with no recognized children, e.g.
// <extension-point/> or <import/>) pops back to ret without requiring a
// dedicated leaf state.
func (l *loader) pushUnknownReturn(ret parserState) {
	l.state = stateUnknown
	l.returnState = ret
	l.unknownDepth = 0
}

func (l *loader) enterUnknown(name string, ret parserState) {
	l.warn("unrecognized element <%s>", name)
	l.state = stateUnknown
	l.returnState = ret
	l.unknownDepth = 0
}

func (l *loader) startConfigElement(name string, attrs []descriptor.Attr) {
	parent := l.configStack[len(l.configStack)-1].elem
	child := &descriptor.ConfigElement{
		Name:   name,
		Attrs:  append([]descriptor.Attr(nil), attrs...),
		Parent: parent,
	}
	parent.Children = append(parent.Children, child)
	l.configStack = append(l.configStack, &configFrame{elem: child})
}

func (l *loader) end(name string) {
	switch l.state {
	case stateUnknown:
		if l.unknownDepth > 0 {
			l.unknownDepth--
			return
		}
		l.state = l.returnState
		return

	case stateExtension:
		top := l.configStack[len(l.configStack)-1]
		trimmed := strings.TrimSpace(top.buf.String())
		top.elem.Value = trimmed
		top.elem.Children = top.elem.Children[:len(top.elem.Children):len(top.elem.Children)]
		l.configStack = l.configStack[:len(l.configStack)-1]
		if len(l.configStack) == 0 {
			// closed </extension>
			l.curExts = append(l.curExts, *l.curExtension)
			l.curExtension = nil
			l.state = statePlugin
		}
		return

	case stateBackwardsCompat:
		if name == "backwards-compatibility" {
			l.state = statePlugin
		}
		return

	case stateRequires:
		if name == "requires" {
			l.state = statePlugin
		}
		return

	case stateRuntime:
		if name == "runtime" {
			l.state = statePlugin
		}
		return

	case statePlugin:
		if name == "plugin" {
			l.state = stateEnd
		}
		return
	}
}

func (l *loader) chars(data string) {
	if l.state != stateExtension {
		return
	}
	top := l.configStack[len(l.configStack)-1]
	top.buf.WriteString(data)
}

func attrString(attrs []descriptor.Attr, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

func checkKnownAttrs(l *loader, attrs []descriptor.Attr, known ...string) {
	for _, a := range attrs {
		found := false
		for _, k := range known {
			if a.Name == k {
				found = true
				break
			}
		}
		if !found {
			l.warn("unrecognized attribute %q", a.Name)
		}
	}
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, status.Newf(status.Malformed, "invalid boolean %q", s)
	}
}
