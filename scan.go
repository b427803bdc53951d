// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package cpluff

import (
	gocontext "context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/jlehtine/go-cpluff/descriptor"
	"github.com/jlehtine/go-cpluff/descriptor/loader"
	"github.com/jlehtine/go-cpluff/source"
	"github.com/jlehtine/go-cpluff/status"
)

// ScanFlags select which changes a Scan call is allowed to apply.
type ScanFlags uint

const (
	// ScanInstall installs candidates whose identifier is not yet known.
	ScanInstall ScanFlags = 1 << iota
	// ScanUpgrade replaces an installed plug-in when a candidate carries
	// a higher version.
	ScanUpgrade
	// ScanDowngrade replaces an installed plug-in when a candidate
	// carries a lower version.
	ScanDowngrade
	// ScanUninstall uninstalls plug-ins no longer offered by any source.
	ScanUninstall
	// ScanStopAllOnInstall forces a context-wide stop before the first
	// install applied by this scan.
	ScanStopAllOnInstall
	// ScanStopAllOnUpgrade forces a context-wide stop before the first
	// upgrade or downgrade applied by this scan.
	ScanStopAllOnUpgrade
	// ScanRestartActive restarts, after the scan, every plug-in that was
	// starting or active when the scan began.
	ScanRestartActive
)

// Has reports whether any flag of mask is set.
func (f ScanFlags) Has(mask ScanFlags) bool {
	return f&mask != 0
}

// RegisterSource adds s to the set of sources Scan fans out over.
func (c *Context) RegisterSource(s source.Source) {
	held := c.lock()
	defer c.unlock(held)
	c.sources = append(c.sources, s)
}

// UnregisterSource removes a previously registered source. Plug-ins
// already installed from it are unaffected.
func (c *Context) UnregisterSource(s source.Source) {
	held := c.lock()
	defer c.unlock(held)
	for i, have := range c.sources {
		if have == s {
			c.sources = append(c.sources[:i], c.sources[i+1:]...)
			return
		}
	}
}

// UnregisterSources removes every registered source.
func (c *Context) UnregisterSources() {
	held := c.lock()
	defer c.unlock(held)
	c.sources = nil
}

// Scan collects candidate descriptors from every registered source,
// keeps the highest version per identifier (first seen wins a tie), and
// applies installs, upgrades, downgrades, and uninstalls as selected by
// flags. Non-fatal per-source and per-plug-in failures do not abort the
// scan; the worst of them is returned once every change that could be
// applied has been. A resource failure aborts immediately.
func (c *Context) Scan(ctx gocontext.Context, flags ScanFlags) error {
	held := c.lock()
	srcs := append([]source.Source(nil), c.sources...)
	c.unlock(held)

	begin := time.Now()
	var worst error

	// Collection happens outside the context lock: source scans are I/O.
	best := map[string]source.Candidate{}
	var order []string
	dropped := map[source.Source][]source.Candidate{}
	for _, s := range srcs {
		cands, err := s.Scan(ctx)
		if err != nil {
			if status.Is(err, status.Resource) {
				return err
			}
			worst = worseStatus(worst, err)
		}
		for _, cand := range cands {
			if cand.Descriptor == nil {
				continue
			}
			id := cand.Descriptor.ID
			cur, seen := best[id]
			if !seen {
				best[id] = cand
				order = append(order, id)
				continue
			}
			if cand.Descriptor.Version.Compare(cur.Descriptor.Version) > 0 {
				dropped[cur.Source] = append(dropped[cur.Source], cur)
				best[id] = cand
			} else {
				dropped[cand.Source] = append(dropped[cand.Source], cand)
			}
		}
	}

	held = c.lock()
	defer c.unlock(held)

	var restart []string
	if flags.Has(ScanRestartActive) {
		for _, p := range c.ctrl.StartedPlugins() {
			restart = append(restart, p.ID)
		}
	}

	var installs, replacements []source.Candidate
	for _, id := range order {
		cand := best[id]
		p, installed := c.ctrl.Plugin(id)
		if !installed {
			if flags.Has(ScanInstall) {
				installs = append(installs, cand)
			} else {
				dropped[cand.Source] = append(dropped[cand.Source], cand)
			}
			continue
		}
		switch cmp := cand.Descriptor.Version.Compare(p.Descriptor.Version); {
		case cmp > 0 && flags.Has(ScanUpgrade):
			replacements = append(replacements, cand)
		case cmp < 0 && flags.Has(ScanDowngrade):
			replacements = append(replacements, cand)
		default:
			dropped[cand.Source] = append(dropped[cand.Source], cand)
		}
	}

	var removals []string
	if flags.Has(ScanUninstall) {
		for _, p := range c.ctrl.Plugins() {
			if _, offered := best[p.ID]; !offered {
				removals = append(removals, p.ID)
			}
		}
		sort.Strings(removals)
	}

	// Stopping policy: at most one context-wide stop, before the first
	// affected change.
	if (len(installs) > 0 && flags.Has(ScanStopAllOnInstall)) ||
		(len(replacements) > 0 && flags.Has(ScanStopAllOnUpgrade)) {
		if err := c.ctrl.StopAll(); err != nil {
			worst = worseStatus(worst, err)
		}
	}

	for _, cand := range replacements {
		if err := c.uninstallLocked(cand.Descriptor.ID); err != nil {
			worst = worseStatus(worst, err)
			dropped[cand.Source] = append(dropped[cand.Source], cand)
			continue
		}
		if err := c.installLocked(cand.Descriptor); err != nil {
			worst = worseStatus(worst, err)
			dropped[cand.Source] = append(dropped[cand.Source], cand)
		}
	}
	for _, cand := range installs {
		if err := c.installLocked(cand.Descriptor); err != nil {
			worst = worseStatus(worst, err)
			dropped[cand.Source] = append(dropped[cand.Source], cand)
		}
	}
	for _, id := range removals {
		if err := c.uninstallLocked(id); err != nil {
			worst = worseStatus(worst, err)
		}
	}

	if flags.Has(ScanRestartActive) {
		for _, id := range restart {
			if _, ok := c.ctrl.Plugin(id); !ok {
				continue
			}
			if err := c.ctrl.Start(id); err != nil {
				worst = worseStatus(worst, err)
				c.logEvent(status.SeverityError, "restarting "+id+" after scan failed: "+err.Error(), id)
			}
		}
	}

	for s, cands := range dropped {
		s.Release(cands)
	}
	c.telemetry.ObserveScan(begin)
	c.drainPendingStops()
	return worst
}

// LoadDescriptor reads and parses the descriptor file in the plug-in
// directory dir, without installing it. The directory's absolute path
// becomes the descriptor's install path.
func (c *Context) LoadDescriptor(dir string) (*descriptor.Descriptor, error) {
	held := c.lock()
	name := c.descriptorFile
	c.unlock(held)

	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		werr := status.Wrap(status.IO, err, "opening descriptor %s", path)
		held = c.lock()
		defer c.unlock(held)
		c.telemetry.ObserveDescriptorError("error")
		c.logEvent(status.SeverityError, werr.Error(), "")
		return nil, werr
	}
	defer f.Close()

	d, warnings, err := loader.Load(loader.NewXMLEventSource(f))

	held = c.lock()
	defer c.unlock(held)
	for _, w := range warnings {
		c.telemetry.ObserveDescriptorError("warning")
		c.logEvent(status.SeverityWarning, path+": "+w.Message, "")
	}
	if err != nil {
		c.telemetry.ObserveDescriptorError("error")
		c.logEvent(status.SeverityError, "loading descriptor "+path+" failed: "+err.Error(), "")
		return nil, err
	}
	if abs, aerr := filepath.Abs(dir); aerr == nil {
		d.Path = abs
	} else {
		d.Path = dir
	}
	return d, nil
}

// worseStatus folds two scan errors into the one with the worse
// severity, keeping the earlier one on a tie.
func worseStatus(a, b error) error {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if statusRank(b) > statusRank(a) {
		return b
	}
	return a
}

func statusRank(err error) int {
	var e *status.Error
	if !errors.As(err, &e) {
		return 5
	}
	switch e.Code {
	case status.IO:
		return 1
	case status.Malformed:
		return 2
	case status.Dependency:
		return 3
	case status.Runtime:
		return 4
	case status.Resource:
		return 6
	default:
		return 5
	}
}
