// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package translog implements the transparency log: an append-only,
// hash-chained NDJSON ledger of sealed runs.
//
// Each line is one [Entry] in canonical JSON. entry_hash is the digest
// of the entry's canonical bytes with entry_hash set to "", and
// prev_entry_hash is the previous entry's entry_hash ([GenesisHash] for
// the first entry). Removing, reordering, or editing any entry breaks
// the chain at a reportable 1-based position.
//
// [FileStore] serializes appends across processes with an exclusive
// flock on "<log>.lock" held for the whole read-last, compute,
// write-next sequence. Each entry is written as one complete line in a
// single write and fsynced. Readers take no lock: they ignore an
// unterminated trailing line, so a reader racing an append sees a valid
// prefix of the chain.
//
// [MemoryStore] holds a log in memory (log excerpts inside admissibility
// packs, tests) and shares all chain logic with FileStore.
//
// A [Head] summarizes a log (entry count, last entry, digest of the log
// bytes). Saved as a CBOR checkpoint, it detects later truncation or
// rewriting of history that a chain walk alone cannot: a log cut back
// to a shorter valid prefix still verifies.
package translog
