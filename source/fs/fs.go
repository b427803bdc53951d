// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package fs implements the default local filesystem plug-in source: it
// scans a registered list of directories, invoking the descriptor
// loader for each candidate subdirectory that contains a descriptor
// file, and returns every descriptor that loaded successfully.
// Directories whose descriptor fails to load are logged and skipped
// rather than aborting the whole scan.
package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/descriptor/loader"
	"github.com/jlehtine/go-cpluff/internal/logging"
	"github.com/jlehtine/go-cpluff/source"
)

const defaultDescriptorFile = "plugin.xml"

// cacheEntry remembers the descriptor produced for a directory so an
// unchanged directory need not be re-parsed on a repeat Scan.
type cacheEntry struct {
	modTime time.Time
	desc    *descriptor.Descriptor
}

// Source scans a fixed set of root directories, one subdirectory per
// plug-in, for a descriptor file.
type Source struct {
	descriptorFile string
	log            logging.Logger

	mu    sync.Mutex
	roots []string
	cache map[string]cacheEntry // directory -> cached parse

	watcher  *fsnotify.Watcher
	onChange func()
}

// Option configures a Source.
type Option func(*Source)

// WithDescriptorFile overrides the default descriptor filename
// ("plugin.xml").
func WithDescriptorFile(name string) Option {
	return func(s *Source) { s.descriptorFile = name }
}

// WithLogger overrides the logger used for per-directory load failures.
func WithLogger(l logging.Logger) Option {
	return func(s *Source) { s.log = l }
}

// New creates a filesystem Source scanning the given root directories.
// Each root is expected to contain one subdirectory per candidate
// plug-in.
func New(roots []string, opts ...Option) *Source {
	s := &Source{
		descriptorFile: defaultDescriptorFile,
		log:            logging.Default(),
		roots:          append([]string(nil), roots...),
		cache:          map[string]cacheEntry{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddRoot registers an additional root directory to scan.
func (s *Source) AddRoot(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots = append(s.roots, dir)
	if s.watcher != nil {
		_ = s.watcher.Add(dir)
	}
}

// Scan implements source.Source. It enumerates every immediate
// subdirectory of every registered root, loads the descriptor file
// found there (if any), and returns every descriptor that parsed
// successfully. A directory with no descriptor file is silently
// skipped; a directory whose descriptor fails to parse is logged at
// warning severity and skipped.
func (s *Source) Scan(_ context.Context) ([]source.Candidate, error) {
	s.mu.Lock()
	roots := append([]string(nil), s.roots...)
	s.mu.Unlock()

	var out []source.Candidate
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			s.log.WithField("root", root).Warnf("cannot read plug-in source directory: %v", err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			desc, err := s.loadDir(dir)
			if err != nil {
				s.log.WithField("path", dir).Warnf("skipping plug-in directory: %v", err)
				continue
			}
			if desc == nil {
				continue
			}
			out = append(out, source.Candidate{Descriptor: desc, Source: s})
		}
	}
	return out, nil
}

func (s *Source) loadDir(dir string) (*descriptor.Descriptor, error) {
	path := filepath.Join(dir, s.descriptorFile)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if entry, ok := s.cache[dir]; ok && entry.modTime.Equal(info.ModTime()) {
		s.mu.Unlock()
		return entry.desc, nil
	}
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	desc, warnings, err := loader.Load(loader.NewXMLEventSource(f))
	for _, w := range warnings {
		s.log.WithField("path", path).Debug(w.Message)
	}
	if err != nil {
		return nil, err
	}
	if abs, aerr := filepath.Abs(dir); aerr == nil {
		desc.Path = abs
	} else {
		desc.Path = dir
	}

	s.mu.Lock()
	s.cache[dir] = cacheEntry{modTime: info.ModTime(), desc: desc}
	s.mu.Unlock()

	return desc, nil
}

// Release drops any cached state associated with candidates the caller
// no longer needs. The filesystem source keeps descriptors cached by
// directory regardless, so Release is a no-op; it exists to satisfy
// source.Source.
func (s *Source) Release(_ []source.Candidate) {}

// WatchAndRescan starts an fsnotify watch on every registered root
// directory and invokes onChange whenever a create, write, remove, or
// rename event fires for an entry directly inside a root (subdirectories
// of a root are not watched, so edits to a plug-in's own descriptor
// file do not trigger it), debounced so a burst
// of filesystem events collapses into a single rescan request. This is
// an opt-in push model alongside the poll-only Scan.
func (s *Source) WatchAndRescan(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	s.mu.Lock()
	for _, root := range s.roots {
		if err := watcher.Add(root); err != nil {
			s.mu.Unlock()
			watcher.Close()
			return err
		}
	}
	s.watcher = watcher
	s.onChange = onChange
	s.mu.Unlock()

	go s.readWatcher(ctx, watcher)
	return nil
}

func (s *Source) readWatcher(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	const debounce = 250 * time.Millisecond
	var timer *time.Timer
	mask := fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename

	fire := func() {
		s.mu.Lock()
		cb := s.onChange
		s.mu.Unlock()
		if cb != nil {
			cb()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if evt.Op&mask == 0 {
				continue
			}
			s.log.WithField("event", evt.String()).Debug("plug-in source directory changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, fire)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.log.Warnf("plug-in source watch error: %v", err)
		}
	}
}
