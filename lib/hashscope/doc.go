// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hashscope builds the hash scope manifest: the explicit,
// sorted list of every input that determines a sealed run's commit
// hash.
//
// A manifest names four categories of files (inputs, prompts, schemas,
// policies), each a list of {path, sha256} records sorted by path, plus
// the run parameters (an externally supplied clock, the deterministic
// flag, and the digest of the decision payload) and the exclusion list
// of field names that may vary without affecting the commit hash.
//
// File order never comes from directory traversal: [Build] sorts the
// declared paths itself, and [ExpandDirectory] sorts walk results
// before returning them. The clock is always the caller's explicit
// value; nothing here reads the wall clock.
//
// Commit hashes are derived from manifests by lib/detid, and Merkle
// commitments by lib/merkle, both over [Manifest.Leaves].
package hashscope
