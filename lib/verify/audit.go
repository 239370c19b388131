// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/bureau-foundation/sealrun/lib/detid"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
)

// uuidShape matches the canonical 8-4-4-4-12 hex form. Candidates are
// confirmed with uuid.Parse.
var uuidShape = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)

// identifierPaths are the artifact fields holding identifiers. A UUID
// in any of them means an identifier came from a random source.
var identifierPaths = []string{
	"authority_envelope.provenance.run_id",
	"authority_envelope.actor.id",
	"authority_envelope.scope.decisions",
	"authority_envelope.scope.claims",
	"authority_envelope.scope.patches",
	"authority_envelope.scope.prompts",
	"authority_envelope.scope.datasets",
}

// Audit runs the determinism audit alone. In non-strict mode a null
// clock, a false deterministic flag, missing commitments and UUIDs
// outside identifier fields are warnings; strict mode makes them
// failures.
func Audit(data []byte, strict bool) *Report {
	report := &Report{}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		report.fail("structure.json", CategoryStructural, "artifact is not a JSON object")
		return report
	}
	report.RunID = gjson.GetBytes(data, "authority_envelope.provenance.run_id").String()
	report.CommitHash = gjson.GetBytes(data, "commit_hash").String()
	report.ContentHash = gjson.GetBytes(data, "content_hash").String()

	auditChecks(report, data, strict)

	if run, err := sealedrun.Decode(data); err == nil {
		document := run.Document()
		recorded, _ := document[sealedrun.FieldContentHash].(string)
		if recomputed := sealedrun.ComputeContentHash(document); recomputed == recorded {
			report.pass("canonical.content_hash", CategoryHash, "re-serialization matches content_hash")
		} else {
			report.fail("canonical.content_hash", CategoryHash, "recomputed %s, artifact records %q", recomputed, recorded)
		}
		report.tiers.determinism = deterministic(document)
	}
	return report
}

// auditChecks appends the determinism audit checks for data to report.
func auditChecks(report *Report, data []byte, strict bool) {
	soft := report.warn
	if strict {
		soft = report.fail
	}

	scope := gjson.GetBytes(data, "hash_scope")
	if !scope.IsObject() {
		report.fail("hash_scope.present", CategoryDeterminism, "no hash_scope")
		return
	}
	report.pass("hash_scope.present", CategoryDeterminism, "hash_scope found")

	clock := scope.Get("parameters.clock")
	if clock.Type == gjson.String && clock.String() != "" {
		report.pass("hash_scope.clock_fixed", CategoryDeterminism, "clock=%s", clock.String())
	} else {
		soft("hash_scope.clock_fixed", CategoryDeterminism, "clock is %s (non-deterministic)", rawOrMissing(clock))
	}

	if flag := scope.Get("parameters.deterministic"); flag.Type == gjson.True {
		report.pass("hash_scope.deterministic_flag", CategoryDeterminism, "deterministic=true")
	} else {
		soft("hash_scope.deterministic_flag", CategoryDeterminism, "deterministic=%s", rawOrMissing(flag))
	}

	excludesObserved := false
	for _, exclusion := range scope.Get("exclusions").Array() {
		if exclusion.String() == "observed_at" {
			excludesObserved = true
		}
	}
	if excludesObserved {
		report.pass("exclusions.observed_at", CategoryDeterminism, "observed_at excluded")
	} else {
		report.fail("exclusions.observed_at", CategoryDeterminism, "observed_at not in exclusion list")
	}

	commitHash := gjson.GetBytes(data, "commit_hash").String()
	runID := gjson.GetBytes(data, "authority_envelope.provenance.run_id").String()
	switch expected := detid.RunID(commitHash); {
	case commitHash == "" || runID == "":
		soft("ids.run_id_deterministic", CategoryDeterminism, "missing commit_hash or run_id")
	case runID != expected:
		report.fail("ids.run_id_deterministic", CategoryDeterminism, "run_id=%s, derived %s", runID, expected)
	default:
		report.pass("ids.run_id_deterministic", CategoryDeterminism, "run_id=%s derived from commit_hash", runID)
	}

	var inIdentifiers []string
	for _, path := range identifierPaths {
		value := gjson.GetBytes(data, path)
		values := []gjson.Result{value}
		if value.IsArray() {
			values = value.Array()
		}
		for _, item := range values {
			for _, found := range findUUIDs(item.String()) {
				inIdentifiers = append(inIdentifiers, path+"="+found)
			}
		}
	}
	anywhere := findUUIDs(string(data))
	switch {
	case len(inIdentifiers) > 0:
		report.fail("ids.no_uuid", CategoryDeterminism, "UUIDs in identifiers: %s", strings.Join(inIdentifiers, ", "))
	case len(anywhere) > 0:
		soft("ids.no_uuid", CategoryDeterminism, "%d UUID-shaped strings in artifact: %s", len(anywhere), strings.Join(anywhere, ", "))
	default:
		report.pass("ids.no_uuid", CategoryDeterminism, "no UUID-shaped strings")
	}

	committedAt := gjson.GetBytes(data, "committed_at")
	switch {
	case committedAt.Type == gjson.Null && clock.Type == gjson.Null:
		report.pass("timestamps.committed_at_matches_clock", CategoryDeterminism, "both null")
	case committedAt.Type == gjson.String && clock.Type == gjson.String && committedAt.String() == clock.String():
		report.pass("timestamps.committed_at_matches_clock", CategoryDeterminism, "committed_at=%s", committedAt.String())
	default:
		report.fail("timestamps.committed_at_matches_clock", CategoryDeterminism, "committed_at=%s, clock=%s", rawOrMissing(committedAt), rawOrMissing(clock))
	}

	if gjson.GetBytes(data, "inputs_commitments").IsObject() {
		report.pass("commitments.present", CategoryDeterminism, "inputs_commitments found")
	} else {
		soft("commitments.present", CategoryDeterminism, "no inputs_commitments")
	}
}

// findUUIDs returns the distinct valid UUIDs in text, sorted, each
// annotated with its version.
func findUUIDs(text string) []string {
	seen := make(map[string]bool)
	var found []string
	for _, candidate := range uuidShape.FindAllString(text, -1) {
		parsed, err := uuid.Parse(candidate)
		if err != nil {
			continue
		}
		label := fmt.Sprintf("%s (v%d)", strings.ToLower(candidate), parsed.Version())
		if !seen[label] {
			seen[label] = true
			found = append(found, label)
		}
	}
	sort.Strings(found)
	return found
}

func rawOrMissing(result gjson.Result) string {
	if !result.Exists() {
		return "missing"
	}
	return result.Raw
}
