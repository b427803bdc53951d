// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package descriptor

import (
	"testing"

	"github.com/jlehtine/go-cpluff/status"
)

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"", Version{0, 0, 0, 0}, false},
		{"1", Version{1, 0, 0, 0}, false},
		{"1.2", Version{1, 2, 0, 0}, false},
		{"1.2.3", Version{1, 2, 3, 0}, false},
		{"1.2.3.4", Version{1, 2, 3, 4}, false},
		{"0.0.0.0", Version{0, 0, 0, 0}, false},
		{"1.2.3.4.5", Version{}, true},
		{"1.x", Version{}, true},
		{"a", Version{}, true},
		{"1..2", Version{}, true},
		{"-1", Version{}, true},
	}
	for _, c := range cases {
		got, err := ParseVersion(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseVersion(%q): expected error", c.in)
			} else if !status.Is(err, status.Malformed) {
				t.Errorf("ParseVersion(%q): expected malformed, got %v", c.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseVersion(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseVersion(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"1.0.0", "1.0.1", -1},
		{"2", "1.9.9.9", 1},
		{"1.2.3.4", "1.2.3.5", -1},
	}
	for _, c := range cases {
		a, err := ParseVersion(c.a)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", c.a, err)
		}
		b, err := ParseVersion(c.b)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", c.b, err)
		}
		if got := a.Compare(b); got != c.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestVersionString(t *testing.T) {
	v, err := ParseVersion("1.2")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := v.String(); got != "1.2.0.0" {
		t.Errorf("String() = %q, want %q", got, "1.2.0.0")
	}
}

func TestParseMatchRule(t *testing.T) {
	cases := []struct {
		in      string
		want    MatchRule
		wantErr bool
	}{
		{"", MatchNone, false},
		{"none", MatchNone, false},
		{"perfect", MatchPerfect, false},
		{"equivalent", MatchEquivalent, false},
		{"compatible", MatchCompatible, false},
		{"greaterOrEqual", MatchGreaterOrEqual, false},
		{"GreaterOrEqual", MatchNone, true},
		{"bogus", MatchNone, true},
	}
	for _, c := range cases {
		got, err := ParseMatchRule(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseMatchRule(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMatchRule(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseMatchRule(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMatchRuleSatisfies(t *testing.T) {
	cases := []struct {
		rule      MatchRule
		candidate string
		required  string
		want      bool
	}{
		{MatchNone, "0.1", "9.9", true},

		{MatchPerfect, "1.2.3.4", "1.2.3.4", true},
		{MatchPerfect, "1.2.3", "1.2.3.0", true},
		{MatchPerfect, "1.2.3.5", "1.2.3.4", false},

		{MatchEquivalent, "1.2.5", "1.2.3", true},
		{MatchEquivalent, "1.2.3", "1.2.3", true},
		{MatchEquivalent, "1.3.0", "1.2.3", false},
		{MatchEquivalent, "1.2.2", "1.2.3", false},

		{MatchCompatible, "1.9.0", "1.2.3", true},
		{MatchCompatible, "2.0.0", "1.2.3", false},
		{MatchCompatible, "1.2.2", "1.2.3", false},

		{MatchGreaterOrEqual, "2.0", "1.9", true},
		{MatchGreaterOrEqual, "1.9", "1.9", true},
		{MatchGreaterOrEqual, "1.8.9", "1.9", false},
	}
	for _, c := range cases {
		candidate, err := ParseVersion(c.candidate)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", c.candidate, err)
		}
		required, err := ParseVersion(c.required)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", c.required, err)
		}
		if got := c.rule.Satisfies(candidate, required); got != c.want {
			t.Errorf("rule %v: Satisfies(%q, %q) = %v, want %v", c.rule, c.candidate, c.required, got, c.want)
		}
	}
}
