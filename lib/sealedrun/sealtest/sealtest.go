// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealtest builds sealed run fixtures for tests of packages
// that consume sealed runs (verification, transparency, packs, CLI).
package sealtest

import (
	"testing"
	"time"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/hashscope"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/testutil"
)

// Clock is the fixed clock used by fixtures unless overridden.
const Clock = "2026-02-21T00:00:00Z"

// ObservedAt is the fixed wall-clock observation time of fixtures.
var ObservedAt = time.Date(2026, 2, 21, 9, 30, 0, 0, time.UTC)

// Options customize [Seal]. The zero value seals payload {"x":1} with
// one input file, a fixed clock, and commitments attached.
type Options struct {
	// Payload defaults to {"x": 1}.
	Payload any

	// Clock defaults to [Clock]. NullClock seals a non-deterministic
	// run with a null clock instead.
	Clock     string
	NullClock bool

	// Inputs maps slash-separated paths under the fixture root to
	// file contents. Defaults to a single file "inputs/h1.txt"
	// containing "h1". Prompts and Policies work the same way and
	// default to none.
	Inputs   map[string]string
	Prompts  map[string]string
	Policies map[string]string

	// NoCommitments omits inputs_commitments.
	NoCommitments bool

	// Envelope overrides the default authority envelope.
	Envelope *sealedrun.AuthorityEnvelope
}

// Fixture is a sealed run and the files it was sealed over.
type Fixture struct {
	// Root is the directory the hash scope paths are relative to.
	Root  string
	Run   *sealedrun.Run
	Scope hashscope.Manifest
}

// Bytes returns the artifact as written to disk.
func (f Fixture) Bytes() []byte {
	return f.Run.Indented()
}

// Envelope returns a valid authority envelope.
func Envelope() sealedrun.AuthorityEnvelope {
	return sealedrun.AuthorityEnvelope{
		Actor:         sealedrun.Actor{ID: "agent-7", Role: "reviewer"},
		AuthorityType: "delegated",
		Scope:         sealedrun.BoundScope{Decisions: []string{"DEC-1"}},
		PolicySnapshot: sealedrun.PolicySnapshot{
			PolicyVersion: "2026.1",
			PolicyHash:    canonical.SHA256([]byte("policy")),
			SchemaVersion: "1.0",
		},
		Refusal: sealedrun.Refusal{
			RefusalAvailable: true,
			ChecksPerformed:  []string{"scope_bound", "policy_loaded"},
		},
		Enforcement: sealedrun.Enforcement{
			EnforcementEmitted: true,
			GateOutcomes:       []sealedrun.GateOutcome{{Gate: "policy", Result: sealedrun.GatePass}},
		},
	}
}

// Seal writes the fixture files under a new temporary directory and
// seals a run over them.
func Seal(t testing.TB, options Options) Fixture {
	t.Helper()
	root := t.TempDir()

	payload := options.Payload
	if payload == nil {
		payload = map[string]any{"x": 1}
	}
	clock := options.Clock
	if clock == "" {
		clock = Clock
	}
	if options.NullClock {
		clock = ""
	}
	inputs := options.Inputs
	if inputs == nil {
		inputs = map[string]string{"inputs/h1.txt": "h1"}
	}

	request := hashscope.Request{
		Root:          root,
		Clock:         clock,
		Deterministic: !options.NullClock,
		Payload:       payload,
		Strict:        true,
	}
	request.Inputs = writeAll(t, root, inputs)
	request.Prompts = writeAll(t, root, options.Prompts)
	request.Policies = writeAll(t, root, options.Policies)

	scope, _, err := hashscope.Build(request)
	if err != nil {
		t.Fatalf("hashscope.Build: %v", err)
	}

	envelope := Envelope()
	if options.Envelope != nil {
		envelope = *options.Envelope
	}
	run, err := sealedrun.Seal(sealedrun.Request{
		Envelope:         envelope,
		Payload:          payload,
		Scope:            scope,
		Commitments:      !options.NoCommitments,
		ArtifactsEmitted: []string{"fixture.manifest.json"},
		ObservedAt:       ObservedAt,
	})
	if err != nil {
		t.Fatalf("sealedrun.Seal: %v", err)
	}
	return Fixture{Root: root, Run: run, Scope: scope}
}

// Mutate returns the artifact bytes after applying edit to a copy of
// the document. Nothing is recomputed, so the result models an
// artifact edited after sealing.
func Mutate(t testing.TB, run *sealedrun.Run, edit func(document map[string]any)) []byte {
	t.Helper()
	document := run.Document()
	edit(document)
	return canonical.Canonicalize(document)
}

func writeAll(t testing.TB, root string, files map[string]string) []string {
	t.Helper()
	paths := make([]string, 0, len(files))
	for relative, content := range files {
		testutil.WriteFile(t, root, relative, content)
		paths = append(paths, relative)
	}
	return paths
}
