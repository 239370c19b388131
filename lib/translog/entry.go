// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package translog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bureau-foundation/sealrun/lib/canonical"
)

// GenesisHash is the prev_entry_hash of the first entry.
var GenesisHash = canonical.DigestPrefix + strings.Repeat("0", 64)

// Record is what a caller supplies to append a sealed run.
type Record struct {
	RunID             string
	CommitHash        string
	ArtifactBytesHash string
	SigningKeyID      string
}

// Entry is one line of the log.
type Entry struct {
	EntryID           string `json:"entry_id"`
	RunID             string `json:"run_id"`
	CommitHash        string `json:"commit_hash"`
	ArtifactBytesHash string `json:"artifact_bytes_hash"`
	SigningKeyID      string `json:"signing_key_id"`
	AppendedAt        string `json:"appended_at"`
	PrevEntryHash     string `json:"prev_entry_hash"`
	EntryHash         string `json:"entry_hash"`
}

// ComputeHash returns the entry hash: the digest of the canonical entry
// with entry_hash set to "".
func (e Entry) ComputeHash() string {
	e.EntryHash = ""
	data, _ := canonical.Marshal(e)
	return canonical.SHA256(data)
}

// Line returns the canonical encoding of the entry plus a newline.
func (e Entry) Line() []byte {
	data, _ := canonical.Marshal(e)
	return append(data, '\n')
}

// parseEntry decodes one log line. Unknown fields are rejected so the
// recomputed hash covers every byte that was written.
func parseEntry(line []byte) (Entry, error) {
	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.DisallowUnknownFields()
	var entry Entry
	if err := decoder.Decode(&entry); err != nil {
		return Entry{}, fmt.Errorf("malformed entry: %w", err)
	}
	if decoder.More() {
		return Entry{}, fmt.Errorf("malformed entry: trailing data")
	}
	return entry, nil
}
