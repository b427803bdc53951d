// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writePlugin(t *testing.T, root, dir, doc string) string {
	t.Helper()
	full := filepath.Join(root, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(full, "plugin.xml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return full
}

func TestScanDirectories(t *testing.T) {
	root := t.TempDir()
	goodDir := writePlugin(t, root, "good", `<plugin id="good" version="1.2"/>`)
	writePlugin(t, root, "broken", `<plugin version="missing-id"/>`)
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "stray-file"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New([]string{root})
	cands, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(cands))
	}
	d := cands[0].Descriptor
	if d.ID != "good" || d.Version.String() != "1.2.0.0" {
		t.Errorf("Unexpected descriptor: %+v", d)
	}
	if d.Path != goodDir {
		t.Errorf("Path = %q, want %q", d.Path, goodDir)
	}
	if cands[0].Source != s {
		t.Errorf("Expected candidate to carry its source")
	}
}

func TestScanCachesUnchangedDescriptors(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "cached", `<plugin id="cached" version="1"/>`)

	s := New([]string{root})
	first, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	second, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("Expected 1 candidate per scan, got %d/%d", len(first), len(second))
	}
	if first[0].Descriptor != second[0].Descriptor {
		t.Errorf("Expected the cached descriptor to be reused for an unchanged directory")
	}
}

func TestScanMissingRootIsSkipped(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "ok", `<plugin id="ok" version="1"/>`)

	s := New([]string{filepath.Join(root, "does-not-exist"), root})
	cands, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(cands) != 1 || cands[0].Descriptor.ID != "ok" {
		t.Fatalf("Expected the readable root to still be scanned, got %v", cands)
	}
}

func TestDescriptorFileOverride(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "alt")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "custom.xml"), []byte(`<plugin id="alt" version="3"/>`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New([]string{root}, WithDescriptorFile("custom.xml"))
	cands, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(cands) != 1 || cands[0].Descriptor.ID != "alt" {
		t.Fatalf("Expected the custom descriptor file to be honored, got %v", cands)
	}
}

func TestAddRoot(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writePlugin(t, rootA, "a", `<plugin id="a" version="1"/>`)
	writePlugin(t, rootB, "b", `<plugin id="b" version="1"/>`)

	s := New([]string{rootA})
	s.AddRoot(rootB)
	cands, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(cands))
	}
}
