// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"encoding/json"
	"fmt"
)

// Status is the outcome of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusWarn Status = "warn"
	StatusSkip Status = "skip"
)

// Category classifies a check by the kind of failure it detects. The
// category of failed checks decides the exit code.
type Category string

const (
	CategoryStructural  Category = "structural"
	CategoryLogic       Category = "logic"
	CategoryHash        Category = "hash"
	CategorySignature   Category = "signature"
	CategoryChain       Category = "chain"
	CategoryIO          Category = "io"
	CategoryDeterminism Category = "determinism"
)

// Check is the result of one verification step.
type Check struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Status   Status   `json:"status"`
	Detail   string   `json:"detail,omitempty"`
}

// Verdict is the overall outcome.
type Verdict string

const (
	Admissible   Verdict = "ADMISSIBLE"
	Inadmissible Verdict = "INADMISSIBLE"
)

// Exit codes.
const (
	ExitAdmissible   = 0
	ExitInadmissible = 1
	ExitStructural   = 2
	ExitHashMismatch = 3
	ExitMissingFile  = 4
)

// Level is an admissibility level. Each level adds one verification
// layer on top of all lower ones.
type Level int

const (
	LevelNone Level = iota - 1
	// L0: structure, envelope, and hashes verify.
	L0
	// L1: deterministic flag, fixed clock, derived run ID.
	L1
	// L2: at least one valid signature.
	L2
	// L3: logged in a verified transparency log.
	L3
	// L4: a multi-signature threshold of two or more is met.
	L4
	// L5: inputs_commitments present and verified.
	L5
	// L6: at least one valid hardware-backed signature.
	L6
)

func (l Level) String() string {
	if l < L0 || l > L6 {
		return "none"
	}
	return fmt.Sprintf("L%d", int(l))
}

// MarshalText encodes the level as its name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// tiers records which level layers were established.
type tiers struct {
	determinism  bool
	signature    bool
	transparency bool
	multisig     bool
	commitments  bool
	hardware     bool
}

// Report is the result of verifying one artifact.
type Report struct {
	// Artifact names the verified input (a path, typically). Set by
	// callers; informational only.
	Artifact    string
	RunID       string
	CommitHash  string
	ContentHash string
	Checks      []Check

	tiers tiers
}

func (r *Report) add(check Check) {
	r.Checks = append(r.Checks, check)
}

// Append records a check computed outside this package, such as a
// pack's manifest cross-check.
func (r *Report) Append(check Check) {
	r.add(check)
}

func (r *Report) pass(name string, category Category, format string, args ...any) {
	r.add(Check{Name: name, Category: category, Status: StatusPass, Detail: fmt.Sprintf(format, args...)})
}

func (r *Report) fail(name string, category Category, format string, args ...any) {
	r.add(Check{Name: name, Category: category, Status: StatusFail, Detail: fmt.Sprintf(format, args...)})
}

func (r *Report) warn(name string, category Category, format string, args ...any) {
	r.add(Check{Name: name, Category: category, Status: StatusWarn, Detail: fmt.Sprintf(format, args...)})
}

func (r *Report) skip(name string, category Category, format string, args ...any) {
	r.add(Check{Name: name, Category: category, Status: StatusSkip, Detail: fmt.Sprintf(format, args...)})
}

// Failed returns the failed checks.
func (r *Report) Failed() []Check {
	var failed []Check
	for _, check := range r.Checks {
		if check.Status == StatusFail {
			failed = append(failed, check)
		}
	}
	return failed
}

// Count returns the number of checks with the given status.
func (r *Report) Count(status Status) int {
	count := 0
	for _, check := range r.Checks {
		if check.Status == status {
			count++
		}
	}
	return count
}

// Verdict is Admissible when no check failed.
func (r *Report) Verdict() Verdict {
	if r.Count(StatusFail) > 0 {
		return Inadmissible
	}
	return Admissible
}

// ExitCode maps the report to a process exit code: 0 when admissible;
// otherwise 4 if a referenced file was missing under strict
// verification, else 2 for any structural failure, else 3 for any hash
// mismatch, else 1.
func (r *Report) ExitCode() int {
	failed := r.Failed()
	if len(failed) == 0 {
		return ExitAdmissible
	}
	has := func(category Category) bool {
		for _, check := range failed {
			if check.Category == category {
				return true
			}
		}
		return false
	}
	switch {
	case has(CategoryIO):
		return ExitMissingFile
	case has(CategoryStructural):
		return ExitStructural
	case has(CategoryHash):
		return ExitHashMismatch
	default:
		return ExitInadmissible
	}
}

// Level returns the highest admissibility level whose layer and every
// lower layer were established. LevelNone means the artifact did not
// reach L0.
func (r *Report) Level() Level {
	if r.Verdict() != Admissible {
		return LevelNone
	}
	layers := []bool{
		r.tiers.determinism,
		r.tiers.signature,
		r.tiers.transparency,
		r.tiers.multisig,
		r.tiers.commitments,
		r.tiers.hardware,
	}
	level := L0
	for _, established := range layers {
		if !established {
			break
		}
		level++
	}
	return level
}

// MarshalJSON encodes the report with its verdict, exit code and
// level.
func (r *Report) MarshalJSON() ([]byte, error) {
	checks := r.Checks
	if checks == nil {
		checks = []Check{}
	}
	return json.Marshal(struct {
		Artifact    string  `json:"artifact,omitempty"`
		RunID       string  `json:"run_id,omitempty"`
		CommitHash  string  `json:"commit_hash,omitempty"`
		ContentHash string  `json:"content_hash,omitempty"`
		Verdict     Verdict `json:"verdict"`
		ExitCode    int     `json:"exit_code"`
		Level       Level   `json:"level"`
		Checks      []Check `json:"checks"`
	}{
		Artifact:    r.Artifact,
		RunID:       r.RunID,
		CommitHash:  r.CommitHash,
		ContentHash: r.ContentHash,
		Verdict:     r.Verdict(),
		ExitCode:    r.ExitCode(),
		Level:       r.Level(),
		Checks:      checks,
	})
}
