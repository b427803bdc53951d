// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package source defines the plug-in source abstraction: an opaque
// collaborator that yields candidate descriptors for the context to fold
// and install. The default implementation, in source/fs, scans
// registered filesystem directories; a host may register any other
// Source implementation instead.
package source

import (
	"context"

	"github.com/jlehtine/go-cpluff/descriptor"
)

// Candidate pairs a loaded descriptor with the Source that produced it,
// so the scan-fold step in the cpluff package can report provenance
// and call Release on the owning source once a candidate is consumed or
// dropped.
type Candidate struct {
	Descriptor *descriptor.Descriptor
	Source     Source
}

// Source is the plug-in source abstraction the scanner fans out over.
// Scan may be called repeatedly and must not return duplicate
// identifiers within one call. Release allows the source to free any
// resources associated with descriptors it produced that the caller no
// longer needs (e.g., an in-memory cache entry).
type Source interface {
	Scan(ctx context.Context) ([]Candidate, error)
	Release(candidates []Candidate)
}
