// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package detid

import (
	"strings"
	"testing"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/hashscope"
)

func TestID(t *testing.T) {
	hash := "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	tests := []struct {
		prefix string
		length int
		want   string
	}{
		{"RUN", 8, "RUN-01234567"},
		{"TLE", 12, "TLE-0123456789ab"},
		{"X", 0, "X-"},
		{"X", 100, "X-0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"},
	}
	for _, test := range tests {
		if got := ID(test.prefix, hash, test.length); got != test.want {
			t.Errorf("ID(%q, hash, %d) = %q, want %q", test.prefix, test.length, got, test.want)
		}
	}
	if got := ID("RUN", strings.TrimPrefix(hash, "sha256:"), 8); got != "RUN-01234567" {
		t.Errorf("ID with bare hex = %q, want RUN-01234567", got)
	}
}

func TestRunIDFromCommitHash(t *testing.T) {
	clock := "2026-02-21T00:00:00Z"
	manifest := hashscope.Manifest{
		ScopeVersion: hashscope.ScopeVersion,
		Inputs:       []hashscope.FileRef{},
		Prompts:      []hashscope.FileRef{},
		Schemas:      []hashscope.FileRef{},
		Policies:     []hashscope.FileRef{},
		Parameters:   hashscope.Parameters{Clock: &clock, Deterministic: true, PayloadSHA256: canonical.SHA256(nil)},
		Exclusions:   hashscope.DefaultExclusions,
	}

	first, err := CommitHash(manifest)
	if err != nil {
		t.Fatal(err)
	}
	second, err := CommitHash(manifest)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("CommitHash not stable: %s vs %s", first, second)
	}

	value, err := canonical.ToValue(manifest)
	if err != nil {
		t.Fatal(err)
	}
	generic, err := CommitHashOf(value)
	if err != nil {
		t.Fatal(err)
	}
	if generic != first {
		t.Errorf("CommitHashOf(decoded) = %s, want %s", generic, first)
	}

	runID := RunID(first)
	if runID != "RUN-"+first[len("sha256:"):len("sha256:")+8] {
		t.Errorf("RunID() = %s, want first 8 hex characters of %s", runID, first)
	}
}

func TestEntryIDDependsOnBothHashes(t *testing.T) {
	commit := canonical.SHA256([]byte("commit"))
	a := EntryID(commit, canonical.SHA256([]byte("a")))
	b := EntryID(commit, canonical.SHA256([]byte("b")))
	if a == b {
		t.Errorf("EntryID ignored the artifact bytes hash: %s", a)
	}
	if !strings.HasPrefix(a, "TLE-") || len(a) != len("TLE-")+EntryLength {
		t.Errorf("EntryID() = %q, want TLE- plus %d hex characters", a, EntryLength)
	}
	if a != EntryID(commit, canonical.SHA256([]byte("a"))) {
		t.Error("EntryID is not deterministic")
	}
}

func TestSupersessionID(t *testing.T) {
	original := canonical.SHA256([]byte("original"))
	replacement := canonical.SHA256([]byte("replacement"))
	forward := SupersessionID(original, replacement)
	if forward == SupersessionID(replacement, original) {
		t.Error("SupersessionID is symmetric, want direction to matter")
	}
	if !strings.HasPrefix(forward, "SUP-") {
		t.Errorf("SupersessionID() = %q, want SUP- prefix", forward)
	}
}
