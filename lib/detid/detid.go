// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package detid derives the commit hash and every identifier in the
// system from content hashes. There is no other identifier source:
// nothing in sealrun generates random IDs, so an identifier is always
// reproducible from the bytes it names.
package detid

import (
	"strings"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/hashscope"
)

// Identifier prefixes and lengths (in hex characters).
const (
	RunPrefix          = "RUN"
	RunLength          = 8
	EntryPrefix        = "TLE"
	EntryLength        = 12
	SupersessionPrefix = "SUP"
	SupersessionLength = 12
)

// CommitHash returns sha256(canonical(manifest)).
func CommitHash(manifest hashscope.Manifest) (string, error) {
	return canonical.Digest(manifest)
}

// CommitHashOf returns the commit hash of an already-decoded hash scope
// value. The verifier uses this form so that fields the typed manifest
// does not know about still contribute to the recomputed hash.
func CommitHashOf(scope any) (string, error) {
	return canonical.Digest(scope)
}

// ID returns prefix + "-" + the first length hex characters of hash.
// The "sha256:" prefix is ignored; a length beyond the hex part is
// clamped.
func ID(prefix, hash string, length int) string {
	hexPart := strings.TrimPrefix(hash, canonical.DigestPrefix)
	if length > len(hexPart) {
		length = len(hexPart)
	}
	if length < 0 {
		length = 0
	}
	return prefix + "-" + hexPart[:length]
}

// RunID returns the run identifier for a commit hash.
func RunID(commitHash string) string {
	return ID(RunPrefix, commitHash, RunLength)
}

// EntryID returns the transparency log entry identifier for a sealed
// run: a digest over both the commit hash and the artifact bytes hash,
// so two differently-observed artifacts sharing a commit hash get
// distinct entries.
func EntryID(commitHash, artifactBytesHash string) string {
	digest := canonical.SHA256(canonical.Canonicalize(map[string]any{
		"artifact_bytes_hash": artifactBytesHash,
		"commit_hash":         commitHash,
	}))
	return ID(EntryPrefix, digest, EntryLength)
}

// SupersessionID returns the identifier of a correction record linking
// an original run to its replacement.
func SupersessionID(originalContentHash, replacementContentHash string) string {
	digest := canonical.SHA256(canonical.Canonicalize(map[string]any{
		"superseded_by": replacementContentHash,
		"supersedes":    originalContentHash,
	}))
	return ID(SupersessionPrefix, digest, SupersessionLength)
}
