// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package descriptor

import (
	"strconv"
	"strings"

	"github.com/jlehtine/go-cpluff/status"
)

// Version is a 1-to-4-component dotted-decimal version, e.g. "1.2.3.4".
// Missing trailing components default to zero. Components compare
// lexicographically left to right.
type Version [4]uint16

// ParseVersion parses a dotted-decimal version string. More than four
// dot-separated components, or a non-numeric component, is a malformed
// descriptor error.
func ParseVersion(s string) (Version, error) {
	var v Version
	if s == "" {
		return v, nil
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return v, status.Newf(status.Malformed, "version %q has more than four components", s)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return v, status.Newf(status.Malformed, "version %q has non-numeric component %q", s, p)
		}
		v[i] = uint16(n)
	}
	return v, nil
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other.
func (v Version) Compare(other Version) int {
	for i := 0; i < 4; i++ {
		if v[i] < other[i] {
			return -1
		}
		if v[i] > other[i] {
			return 1
		}
	}
	return 0
}

func (v Version) String() string {
	parts := make([]string, 4)
	for i, c := range v {
		parts[i] = strconv.Itoa(int(c))
	}
	return strings.Join(parts, ".")
}

// MatchRule is the version-constraint comparison rule of an Import.
type MatchRule int

const (
	// MatchNone performs no version check.
	MatchNone MatchRule = iota
	// MatchPerfect requires all four components to be equal.
	MatchPerfect
	// MatchEquivalent requires the first two components equal and the
	// candidate to be greater than or equal across all four.
	MatchEquivalent
	// MatchCompatible requires the first component equal and the
	// candidate to be greater than or equal across all four.
	MatchCompatible
	// MatchGreaterOrEqual requires the candidate to be greater than or
	// equal across all four components.
	MatchGreaterOrEqual
)

// ParseMatchRule maps the XML `match` attribute values to a MatchRule.
func ParseMatchRule(s string) (MatchRule, error) {
	switch s {
	case "", "none":
		return MatchNone, nil
	case "perfect":
		return MatchPerfect, nil
	case "equivalent":
		return MatchEquivalent, nil
	case "compatible":
		return MatchCompatible, nil
	case "greaterOrEqual":
		return MatchGreaterOrEqual, nil
	default:
		return MatchNone, status.Newf(status.Malformed, "unknown match rule %q", s)
	}
}

// Satisfies reports whether candidate satisfies required under rule.
func (rule MatchRule) Satisfies(candidate, required Version) bool {
	switch rule {
	case MatchNone:
		return true
	case MatchPerfect:
		return candidate.Compare(required) == 0
	case MatchEquivalent:
		return candidate[0] == required[0] && candidate[1] == required[1] && candidate.Compare(required) >= 0
	case MatchCompatible:
		return candidate[0] == required[0] && candidate.Compare(required) >= 0
	case MatchGreaterOrEqual:
		return candidate.Compare(required) >= 0
	default:
		return false
	}
}
