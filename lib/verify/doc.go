// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package verify is the replay and verification engine for sealed
// runs.
//
// [Verify] is a pure function over artifact bytes and [Options]. It
// never stops at the first problem: every check runs (or is recorded as
// skipped when a prerequisite is unusable) and the [Report] lists them
// all, in order:
//
//  1. structure: required fields, types, schema version, hash scope
//  2. authority envelope predicates
//  3. commit hash recomputed from the embedded hash scope, plus the
//     decision payload binding (and, with Options.InputsRoot, the
//     referenced files re-hashed)
//  4. provenance deterministic_inputs_hash against commit_hash
//  5. exclusions: mutating only excluded fields leaves the commit
//     hash unchanged
//  6. inputs_commitments rebuilt from the hash scope leaves
//  7. content hash
//  8. signatures or a multi-signature threshold (when requested)
//  9. transparency log entry and chain (when requested)
//  10. determinism audit (when requested)
//
// A report is admissible only when no check failed. [Report.ExitCode]
// maps the failures to the CLI exit codes, and [Report.Level] reports
// the admissibility level L0 through L6 the artifact reached.
//
// [Audit] runs the determinism audit alone. [VerifyMany] verifies
// independent artifacts concurrently.
package verify
