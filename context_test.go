// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cpluff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/descriptor/loader"
	"github.com/jlehtine/go-cpluff/registry"
	"github.com/jlehtine/go-cpluff/status"
	"github.com/jlehtine/go-cpluff/symbol"
)

// eventLog records listener deliveries as "id:old>new" strings.
type eventLog struct {
	entries []string
}

func (e *eventLog) listener(id string, old, new registry.State) {
	e.entries = append(e.entries, fmt.Sprintf("%s:%s>%s", id, old, new))
}

func (e *eventLog) reset() {
	e.entries = nil
}

func mustDescriptor(t *testing.T, doc string) *descriptor.Descriptor {
	t.Helper()
	d, _, err := loader.Load(loader.NewXMLEventSource(strings.NewReader(doc)))
	if err != nil {
		t.Fatalf("Unexpected descriptor load error: %v", err)
	}
	return d
}

// stubLoader serves runtime-funcs structs from an in-memory map,
// standing in for the platform dynamic library loader.
type stubLoader struct {
	funcs map[string]*symbol.RuntimeFuncs
}

func (l stubLoader) Open(path string) (symbol.Library, error) {
	return stubLibrary{funcs: l.funcs}, nil
}

type stubLibrary struct {
	funcs map[string]*symbol.RuntimeFuncs
}

func (l stubLibrary) Symbol(name string) (interface{}, error) {
	f, ok := l.funcs[name]
	if !ok {
		return nil, symbol.NoSuchSymbolError(name)
	}
	return f, nil
}

func (l stubLibrary) Close() error { return nil }

func TestLoadDescriptorAndInstall(t *testing.T) {
	ctx := NewContext()
	log := &eventLog{}
	ctx.AddEventListener(log.listener)

	st, err := ctx.GetState("minimal")
	if st != registry.Uninstalled {
		t.Fatalf("State before install = %v, want uninstalled", st)
	}
	if !status.Is(err, status.Unknown) {
		t.Fatalf("Expected unknown before install, got %v", err)
	}

	d, err := ctx.LoadDescriptor("testdata/plugins/minimal")
	if err != nil {
		t.Fatalf("LoadDescriptor: %v", err)
	}
	if d.ID != "minimal" || d.Path == "" {
		t.Fatalf("Unexpected descriptor: id=%q path=%q", d.ID, d.Path)
	}

	if err := ctx.Install(d); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if st, err := ctx.GetState("minimal"); err != nil || st != registry.Installed {
		t.Fatalf("State after install = %v/%v, want installed", st, err)
	}

	if err := ctx.Uninstall("minimal"); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if st, _ := ctx.GetState("minimal"); st != registry.Uninstalled {
		t.Fatalf("State after uninstall = %v, want uninstalled", st)
	}

	want := []string{
		"minimal:uninstalled>installed",
		"minimal:installed>uninstalled",
	}
	if diff := cmp.Diff(want, log.entries); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}
}

func TestLoadDescriptorMissingDirectory(t *testing.T) {
	ctx := NewContext()
	if _, err := ctx.LoadDescriptor("testdata/plugins/does-not-exist"); !status.Is(err, status.IO) {
		t.Fatalf("Expected io error, got %v", err)
	}
}

func TestLoadDescriptorMissingFile(t *testing.T) {
	ctx := NewContext()
	if _, err := ctx.LoadDescriptor("testdata"); !status.Is(err, status.IO) {
		// testdata itself has no plugin.xml
		t.Fatalf("Expected io error, got %v", err)
	}
}

func TestInstallConflictKeepsOriginal(t *testing.T) {
	ctx := NewContext()

	if err := ctx.Install(mustDescriptor(t, `<plugin id="d" version="1"/>`)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	err := ctx.Install(mustDescriptor(t, `<plugin id="d" version="2"/>`))
	if !status.Is(err, status.Conflict) {
		t.Fatalf("Expected conflict, got %v", err)
	}

	info, err := ctx.GetPluginInfo("d")
	if err != nil {
		t.Fatalf("GetPluginInfo: %v", err)
	}
	defer ctx.ReleaseInfo(info)
	if info.Descriptor.Version.String() != "1.0.0.0" || info.State != registry.Installed {
		t.Errorf("Unexpected surviving plug-in: %v %v", info.Descriptor.Version, info.State)
	}
}

func TestStartStopSymmetricEvents(t *testing.T) {
	ctx := NewContext()
	log := &eventLog{}
	ctx.AddEventListener(log.listener)

	if err := ctx.Install(mustDescriptor(t, `<plugin id="p" version="1"/>`)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	log.reset()

	if err := ctx.Start("p"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ctx.Stop("p"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	want := []string{
		"p:installed>resolved",
		"p:resolved>starting",
		"p:starting>active",
		"p:active>stopping",
		"p:stopping>resolved",
	}
	if diff := cmp.Diff(want, log.entries); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}

	// Stopping a resolved plug-in is a no-op and emits nothing.
	log.reset()
	if err := ctx.Stop("p"); err != nil {
		t.Fatalf("Second stop: %v", err)
	}
	if len(log.entries) != 0 {
		t.Errorf("Expected no events, got %v", log.entries)
	}
}

func TestRemoveEventListener(t *testing.T) {
	ctx := NewContext()
	log := &eventLog{}
	id := ctx.AddEventListener(log.listener)
	ctx.RemoveEventListener(id)

	if err := ctx.Install(mustDescriptor(t, `<plugin id="p" version="1"/>`)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(log.entries) != 0 {
		t.Errorf("Expected no deliveries to a removed listener, got %v", log.entries)
	}
}

func TestLoggerSeverityFiltering(t *testing.T) {
	ctx := NewContext()

	var errorsOnly, everything []string
	ctx.AddLogger(func(sev status.Severity, msg, _ string) {
		errorsOnly = append(errorsOnly, sev.String())
	}, status.SeverityError)
	ctx.AddLogger(func(sev status.Severity, msg, _ string) {
		everything = append(everything, sev.String())
	}, status.SeverityDebug)

	// An unknown identifier logs at error severity.
	if err := ctx.Resolve("absent"); !status.Is(err, status.Unknown) {
		t.Fatalf("Expected unknown, got %v", err)
	}
	// A duplicate extension point logs at warning severity.
	if err := ctx.Install(mustDescriptor(t, `<plugin id="dup" version="1">
  <extension-point id="x"/>
  <extension-point id="x"/>
</plugin>`)); err != nil {
		t.Fatalf("Install: %v", err)
	}

	var sawWarning bool
	for _, sev := range errorsOnly {
		if sev == "warning" {
			sawWarning = true
		}
	}
	if sawWarning {
		t.Errorf("Error-level logger received a warning: %v", errorsOnly)
	}
	if len(errorsOnly) == 0 {
		t.Errorf("Error-level logger received nothing")
	}
	var warnings int
	for _, sev := range everything {
		if sev == "warning" {
			warnings++
		}
	}
	if warnings == 0 {
		t.Errorf("Debug-level logger missed the warning: %v", everything)
	}
}

func TestRemoveLogger(t *testing.T) {
	ctx := NewContext()
	var got []string
	id := ctx.AddLogger(func(sev status.Severity, msg, _ string) {
		got = append(got, msg)
	}, status.SeverityDebug)
	ctx.RemoveLogger(id)

	_ = ctx.Resolve("absent")
	if len(got) != 0 {
		t.Errorf("Expected no deliveries to a removed logger, got %v", got)
	}
}

func TestFatalOnReentrantLoggerRegistration(t *testing.T) {
	var fatal string
	SetFatalErrorHandler(func(msg string) { fatal = msg })
	defer SetFatalErrorHandler(nil)

	ctx := NewContext()
	ctx.AddLogger(func(sev status.Severity, msg, _ string) {
		ctx.AddLogger(func(status.Severity, string, string) {}, status.SeverityError)
	}, status.SeverityDebug)

	_ = ctx.Resolve("absent")
	if fatal == "" {
		t.Fatalf("Expected a fatal error from re-entrant logger registration")
	}
}

func TestFatalOnDestroyFromListener(t *testing.T) {
	var fatal string
	SetFatalErrorHandler(func(msg string) { fatal = msg })
	defer SetFatalErrorHandler(nil)

	ctx := NewContext()
	ctx.AddEventListener(func(string, registry.State, registry.State) {
		ctx.DestroyContext()
	})
	if err := ctx.Install(mustDescriptor(t, `<plugin id="p" version="1"/>`)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if fatal == "" {
		t.Fatalf("Expected a fatal error from DestroyContext inside a listener")
	}
	// The context survives the refused destroy.
	if st, err := ctx.GetState("p"); err != nil || st != registry.Installed {
		t.Fatalf("State after refused destroy = %v/%v", st, err)
	}
}

func TestGetPluginsInfo(t *testing.T) {
	ctx := NewContext()
	for _, doc := range []string{
		`<plugin id="a" version="1"/>`,
		`<plugin id="b" version="2"/>`,
	} {
		if err := ctx.Install(mustDescriptor(t, doc)); err != nil {
			t.Fatalf("Install: %v", err)
		}
	}

	infos := ctx.GetPluginsInfo()
	if len(infos) != 2 {
		t.Fatalf("Expected 2 infos, got %d", len(infos))
	}
	ids := map[string]bool{}
	for _, info := range infos {
		ids[info.Descriptor.ID] = true
		ctx.ReleaseInfo(info)
	}
	if !ids["a"] || !ids["b"] {
		t.Errorf("Unexpected ids: %v", ids)
	}
}

func TestRuntimeCallbacksThroughContext(t *testing.T) {
	type counters struct {
		create, start, stop, destroy int
	}
	var n counters
	funcs := map[string]*symbol.RuntimeFuncs{}
	ctx := NewContext(WithRuntimeLoader(stubLoader{funcs: funcs}))

	var inner error
	funcs["cb_funcs"] = &symbol.RuntimeFuncs{
		Create: func(_ interface{}) (interface{}, error) {
			n.create++
			return &n, nil
		},
		Start: func(_ interface{}) error {
			n.start++
			inner = ctx.Start("cb")
			return nil
		},
		Stop:    func(_ interface{}) { n.stop++ },
		Destroy: func(_ interface{}) { n.destroy++ },
	}

	if err := ctx.Install(mustDescriptor(t,
		`<plugin id="cb" version="1"><runtime library="libcb" funcs="cb_funcs"/></plugin>`)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := ctx.Start("cb"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n != (counters{create: 1, start: 1}) {
		t.Fatalf("After start: %+v", n)
	}
	if !status.Is(inner, status.Deadlock) {
		t.Fatalf("Expected deadlock from start inside own start, got %v", inner)
	}

	if err := ctx.Stop("cb"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if n != (counters{create: 1, start: 1, stop: 1}) {
		t.Fatalf("After stop: %+v", n)
	}

	if err := ctx.Uninstall("cb"); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}
	if n != (counters{create: 1, start: 1, stop: 1, destroy: 1}) {
		t.Fatalf("After uninstall: %+v", n)
	}
}

func TestDestroyContext(t *testing.T) {
	ctx := NewContext()
	if err := ctx.Install(mustDescriptor(t, `<plugin id="p" version="1"/>`)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := ctx.Start("p"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx.DestroyContext()
	if st, _ := ctx.GetState("p"); st != registry.Uninstalled {
		t.Fatalf("Expected everything uninstalled, got %v", st)
	}
}
