// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package translog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/detid"
)

// Errors.
var (
	ErrNotFound       = errors.New("no log entry for commit hash")
	ErrChainBroken    = errors.New("transparency log chain is broken")
	ErrDuplicateEntry = errors.New("sealed run is already logged")
	ErrRange          = errors.New("log range out of bounds")
)

// LogStore is an append-only transparency log.
type LogStore interface {
	// Append chains a new entry after the current last entry.
	Append(ctx context.Context, record Record) (Entry, error)

	// ReadRange returns entries at 0-based positions [start, end). A
	// negative end means through the last entry.
	ReadRange(start, end int) ([]Entry, error)

	// VerifyChain walks the whole log.
	VerifyChain() (ChainResult, error)

	// Find returns every entry for a commit hash with its 1-based
	// position, or ErrNotFound.
	Find(commitHash string) ([]Located, error)

	// Head summarizes the log.
	Head() (Head, error)
}

// Located is an entry and its 1-based position in the log.
type Located struct {
	Entry    Entry
	Position int
}

// ChainResult is the outcome of a chain walk. BrokenAt is the 1-based
// position of the first entry that fails, or 0 when the chain is valid.
type ChainResult struct {
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	BrokenAt int    `json:"broken_at"`
	Reason   string `json:"reason,omitempty"`
}

// ledger is a parsed log: its complete lines, in order. Blank lines are
// dropped.
type ledger struct {
	lines [][]byte
}

// parseLedger splits log bytes into complete lines. An unterminated
// final line is returned separately as the partial tail.
func parseLedger(data []byte) (ledger, []byte) {
	var parsed ledger
	for len(data) > 0 {
		newline := bytes.IndexByte(data, '\n')
		if newline < 0 {
			return parsed, data
		}
		line := bytes.TrimSpace(data[:newline])
		if len(line) > 0 {
			parsed.lines = append(parsed.lines, line)
		}
		data = data[newline+1:]
	}
	return parsed, nil
}

// verify walks the chain from the first line.
func (l ledger) verify() ChainResult {
	expectedPrev := GenesisHash
	for index, line := range l.lines {
		position := index + 1
		entry, err := parseEntry(line)
		if err != nil {
			return broken(len(l.lines), position, err.Error())
		}
		if computed := entry.ComputeHash(); computed != entry.EntryHash {
			return broken(len(l.lines), position, fmt.Sprintf("entry_hash %s does not match recomputed %s", entry.EntryHash, computed))
		}
		if !bytes.Equal(canonical.Canonicalize(mustValue(line)), line) {
			return broken(len(l.lines), position, "entry is not in canonical form")
		}
		if entry.PrevEntryHash != expectedPrev {
			return broken(len(l.lines), position, fmt.Sprintf("prev_entry_hash %s does not link to %s", entry.PrevEntryHash, expectedPrev))
		}
		expectedPrev = entry.EntryHash
	}
	return ChainResult{Valid: true, Entries: len(l.lines)}
}

func broken(entries, position int, reason string) ChainResult {
	return ChainResult{Valid: false, Entries: entries, BrokenAt: position, Reason: reason}
}

// mustValue parses a line already known to decode as an Entry.
func mustValue(line []byte) any {
	value, err := canonical.Parse(line)
	if err != nil {
		return nil
	}
	return value
}

// last returns the last entry, or false for an empty log.
func (l ledger) last() (Entry, bool, error) {
	if len(l.lines) == 0 {
		return Entry{}, false, nil
	}
	entry, err := parseEntry(l.lines[len(l.lines)-1])
	return entry, err == nil, err
}

// next computes the entry that would follow the ledger. The chain must
// be intact and the run must not already be logged.
func (l ledger) next(record Record, appendedAt string) (Entry, error) {
	if result := l.verify(); !result.Valid {
		return Entry{}, fmt.Errorf("%w at entry %d: %s", ErrChainBroken, result.BrokenAt, result.Reason)
	}
	if record.CommitHash == "" || record.ArtifactBytesHash == "" {
		return Entry{}, errors.New("log record requires commit_hash and artifact_bytes_hash")
	}

	entryID := detid.EntryID(record.CommitHash, record.ArtifactBytesHash)
	for _, line := range l.lines {
		existing, _ := parseEntry(line)
		if existing.EntryID == entryID {
			return Entry{}, fmt.Errorf("%w: %s (%s)", ErrDuplicateEntry, entryID, record.RunID)
		}
	}

	prev := GenesisHash
	if last, ok, _ := l.last(); ok {
		prev = last.EntryHash
	}
	entry := Entry{
		EntryID:           entryID,
		RunID:             record.RunID,
		CommitHash:        record.CommitHash,
		ArtifactBytesHash: record.ArtifactBytesHash,
		SigningKeyID:      record.SigningKeyID,
		AppendedAt:        appendedAt,
		PrevEntryHash:     prev,
	}
	entry.EntryHash = entry.ComputeHash()
	return entry, nil
}

func (l ledger) readRange(start, end int) ([]Entry, error) {
	if end < 0 {
		end = len(l.lines)
	}
	if start < 0 || start > end || end > len(l.lines) {
		return nil, fmt.Errorf("%w: [%d, %d) of %d entries", ErrRange, start, end, len(l.lines))
	}
	entries := make([]Entry, 0, end-start)
	for index := start; index < end; index++ {
		entry, err := parseEntry(l.lines[index])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", index+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (l ledger) find(commitHash string) ([]Located, error) {
	var found []Located
	for index, line := range l.lines {
		entry, err := parseEntry(line)
		if err != nil {
			continue
		}
		if entry.CommitHash == commitHash {
			found = append(found, Located{Entry: entry, Position: index + 1})
		}
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNotFound, commitHash)
	}
	return found, nil
}

// prefixDigest returns the sha256 of the first n lines, each followed
// by a newline.
func (l ledger) prefixDigest(n int) string {
	hasher := sha256.New()
	for _, line := range l.lines[:n] {
		hasher.Write(line)
		hasher.Write([]byte{'\n'})
	}
	return canonical.DigestPrefix + hex.EncodeToString(hasher.Sum(nil))
}

func (l ledger) head() (Head, error) {
	head := Head{Entries: len(l.lines), LogSHA256: l.prefixDigest(len(l.lines))}
	if last, ok, err := l.last(); err != nil {
		return Head{}, fmt.Errorf("last entry: %w", err)
	} else if ok {
		head.LastEntryID = last.EntryID
		head.LastEntryHash = last.EntryHash
	}
	return head, nil
}

func (l ledger) excerpt(through int) ([]byte, error) {
	if through < 0 || through > len(l.lines) {
		return nil, fmt.Errorf("%w: excerpt through %d of %d entries", ErrRange, through, len(l.lines))
	}
	var out []byte
	for _, line := range l.lines[:through] {
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out, nil
}
