// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cpluff

import (
	gocontext "context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/registry"
	"github.com/jlehtine/go-cpluff/source"
	"github.com/jlehtine/go-cpluff/status"
)

// stubSource offers a fixed descriptor set and records what the scanner
// releases back to it.
type stubSource struct {
	descs    []*descriptor.Descriptor
	err      error
	released []source.Candidate
}

func (s *stubSource) Scan(_ gocontext.Context) ([]source.Candidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]source.Candidate, 0, len(s.descs))
	for _, d := range s.descs {
		out = append(out, source.Candidate{Descriptor: d, Source: s})
	}
	return out, nil
}

func (s *stubSource) Release(cands []source.Candidate) {
	s.released = append(s.released, cands...)
}

func TestScanVersionSelection(t *testing.T) {
	ctx := NewContext()
	older := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="p" version="1.0.0"/>`),
	}}
	newer := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="p" version="1.0.1"/>`),
	}}
	ctx.RegisterSource(older)
	ctx.RegisterSource(newer)

	if err := ctx.Scan(gocontext.Background(), ScanInstall); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	info, err := ctx.GetPluginInfo("p")
	if err != nil {
		t.Fatalf("GetPluginInfo: %v", err)
	}
	defer ctx.ReleaseInfo(info)
	if info.Descriptor.Version.String() != "1.0.1.0" {
		t.Errorf("Installed version = %s, want 1.0.1.0", info.Descriptor.Version)
	}

	if len(older.released) != 1 || older.released[0].Descriptor != older.descs[0] {
		t.Errorf("Expected the losing candidate to be released, got %v", older.released)
	}
	if len(newer.released) != 0 {
		t.Errorf("Did not expect the winning candidate to be released")
	}
}

func TestScanRestartActiveUpgrade(t *testing.T) {
	ctx := NewContext()
	log := &eventLog{}
	ctx.AddEventListener(log.listener)

	src := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="u" version="1"/>`),
	}}
	ctx.RegisterSource(src)
	if err := ctx.Scan(gocontext.Background(), ScanInstall); err != nil {
		t.Fatalf("First scan: %v", err)
	}
	if err := ctx.Start("u"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	src.descs = []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="u" version="2"/>`),
	}
	log.reset()
	if err := ctx.Scan(gocontext.Background(), ScanInstall|ScanUpgrade|ScanRestartActive); err != nil {
		t.Fatalf("Upgrade scan: %v", err)
	}

	want := []string{
		"u:active>stopping",
		"u:stopping>resolved",
		"u:resolved>installed",
		"u:installed>uninstalled",
		"u:uninstalled>installed",
		"u:installed>resolved",
		"u:resolved>starting",
		"u:starting>active",
	}
	if diff := cmp.Diff(want, log.entries); diff != "" {
		t.Errorf("Unexpected events (-want +got):\n%s", diff)
	}

	info, err := ctx.GetPluginInfo("u")
	if err != nil {
		t.Fatalf("GetPluginInfo: %v", err)
	}
	defer ctx.ReleaseInfo(info)
	if info.Descriptor.Version.String() != "2.0.0.0" {
		t.Errorf("Version after upgrade = %s, want 2.0.0.0", info.Descriptor.Version)
	}
	if info.State != registry.Active {
		t.Errorf("State after upgrade = %v, want active", info.State)
	}
}

func TestScanWithoutUpgradeFlagKeepsCurrent(t *testing.T) {
	ctx := NewContext()
	src := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="p" version="1"/>`),
	}}
	ctx.RegisterSource(src)
	if err := ctx.Scan(gocontext.Background(), ScanInstall); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	offered := mustDescriptor(t, `<plugin id="p" version="2"/>`)
	src.descs = []*descriptor.Descriptor{offered}
	src.released = nil
	if err := ctx.Scan(gocontext.Background(), ScanInstall); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	info, err := ctx.GetPluginInfo("p")
	if err != nil {
		t.Fatalf("GetPluginInfo: %v", err)
	}
	defer ctx.ReleaseInfo(info)
	if info.Descriptor.Version.String() != "1.0.0.0" {
		t.Errorf("Version = %s, want the original 1.0.0.0", info.Descriptor.Version)
	}
	if len(src.released) != 1 || src.released[0].Descriptor != offered {
		t.Errorf("Expected the unapplied candidate to be released, got %v", src.released)
	}
}

func TestScanDowngrade(t *testing.T) {
	ctx := NewContext()
	src := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="p" version="2"/>`),
	}}
	ctx.RegisterSource(src)
	if err := ctx.Scan(gocontext.Background(), ScanInstall); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	src.descs = []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="p" version="1"/>`),
	}
	if err := ctx.Scan(gocontext.Background(), ScanInstall|ScanDowngrade); err != nil {
		t.Fatalf("Downgrade scan: %v", err)
	}

	info, err := ctx.GetPluginInfo("p")
	if err != nil {
		t.Fatalf("GetPluginInfo: %v", err)
	}
	defer ctx.ReleaseInfo(info)
	if info.Descriptor.Version.String() != "1.0.0.0" {
		t.Errorf("Version = %s, want 1.0.0.0", info.Descriptor.Version)
	}
}

func TestScanUninstallRemovesAbsent(t *testing.T) {
	ctx := NewContext()
	if err := ctx.Install(mustDescriptor(t, `<plugin id="stale" version="1"/>`)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	src := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="fresh" version="1"/>`),
	}}
	ctx.RegisterSource(src)

	if err := ctx.Scan(gocontext.Background(), ScanInstall|ScanUninstall); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if st, _ := ctx.GetState("stale"); st != registry.Uninstalled {
		t.Errorf("Expected stale plug-in to be uninstalled, got %v", st)
	}
	if st, err := ctx.GetState("fresh"); err != nil || st != registry.Installed {
		t.Errorf("Expected fresh plug-in installed, got %v/%v", st, err)
	}
}

func TestScanStopAllOnInstall(t *testing.T) {
	ctx := NewContext()
	if err := ctx.Install(mustDescriptor(t, `<plugin id="running" version="1"/>`)); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := ctx.Start("running"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="new" version="1"/>`),
	}}
	ctx.RegisterSource(src)

	if err := ctx.Scan(gocontext.Background(), ScanInstall|ScanStopAllOnInstall); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if st, _ := ctx.GetState("running"); st != registry.Resolved {
		t.Errorf("Expected the running plug-in to be stopped, got %v", st)
	}
	if st, _ := ctx.GetState("new"); st != registry.Installed {
		t.Errorf("Expected the new plug-in installed, got %v", st)
	}
}

func TestScanContinuesPastSourceError(t *testing.T) {
	ctx := NewContext()
	bad := &stubSource{err: status.Newf(status.IO, "unreadable source")}
	good := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="ok" version="1"/>`),
	}}
	ctx.RegisterSource(bad)
	ctx.RegisterSource(good)

	err := ctx.Scan(gocontext.Background(), ScanInstall)
	if !status.Is(err, status.IO) {
		t.Fatalf("Expected the source failure to surface, got %v", err)
	}
	if st, serr := ctx.GetState("ok"); serr != nil || st != registry.Installed {
		t.Errorf("Expected the healthy source's plug-in installed, got %v/%v", st, serr)
	}
}

func TestScanAbortsOnResourceError(t *testing.T) {
	ctx := NewContext()
	bad := &stubSource{err: status.Newf(status.Resource, "out of memory")}
	good := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="ok" version="1"/>`),
	}}
	ctx.RegisterSource(bad)
	ctx.RegisterSource(good)

	err := ctx.Scan(gocontext.Background(), ScanInstall)
	if !status.Is(err, status.Resource) {
		t.Fatalf("Expected resource error, got %v", err)
	}
	if st, _ := ctx.GetState("ok"); st != registry.Uninstalled {
		t.Errorf("Expected nothing installed after an aborted scan, got %v", st)
	}
}

func TestUnregisterSource(t *testing.T) {
	ctx := NewContext()
	src := &stubSource{descs: []*descriptor.Descriptor{
		mustDescriptor(t, `<plugin id="p" version="1"/>`),
	}}
	ctx.RegisterSource(src)
	ctx.UnregisterSource(src)

	if err := ctx.Scan(gocontext.Background(), ScanInstall); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if st, _ := ctx.GetState("p"); st != registry.Uninstalled {
		t.Errorf("Expected nothing installed from an unregistered source, got %v", st)
	}
}
