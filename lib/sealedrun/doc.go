// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealedrun assembles sealed runs: immutable artifacts that
// bind an authority envelope, a decision payload, and a hash scope
// under a commit hash and a content hash.
//
// A [Run] has no setters. Every change, including the excluded
// observed_at timestamp, produces a new Run with a recomputed content
// hash ([Run.Reobserve]); corrections to a decision produce a new run
// plus a [Supersession] record ([Supersede]). On disk the same rule
// holds: [WriteNew] creates files exclusively and nothing in sealrun
// opens an existing artifact for writing.
//
// Sealed run layout:
//
//	{
//	  "schema_version": "1.0",
//	  "authority_envelope": {...},
//	  "decision_payload": <any JSON value>,
//	  "hash_scope": <hashscope.Manifest>,
//	  "commit_hash": "sha256:...",
//	  "inputs_commitments": <merkle.Commitments, optional>,
//	  "committed_at": <clock or null>,
//	  "artifacts_emitted": ["..."],
//	  "content_hash": "sha256:..."
//	}
//
// content_hash is the digest of the canonical artifact with
// content_hash set to "". The bytes signers sign are the canonical
// artifact with content_hash filled in ([Run.CanonicalBytes]).
package sealedrun
