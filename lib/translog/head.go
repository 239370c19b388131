// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package translog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/sealrun/lib/codec"
)

// Head summarizes a log at a point in time. LogSHA256 is the digest of
// the first Entries lines, each newline-terminated.
type Head struct {
	Entries       int    `cbor:"entries" json:"entries"`
	LastEntryID   string `cbor:"last_entry_id" json:"last_entry_id"`
	LastEntryHash string `cbor:"last_entry_hash" json:"last_entry_hash"`
	LogSHA256     string `cbor:"log_sha256" json:"log_sha256"`
}

// ErrCheckpointMismatch reports a log that no longer extends a saved
// checkpoint.
var ErrCheckpointMismatch = errors.New("log does not extend checkpoint")

// WriteCheckpoint saves head as CBOR at path, replacing any previous
// checkpoint atomically.
func WriteCheckpoint(path string, head Head) error {
	data, err := codec.Marshal(head)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}
	temp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("creating checkpoint: %w", err)
	}
	tempPath := temp.Name()
	if _, err := temp.Write(data); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("syncing checkpoint: %w", err)
	}
	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing checkpoint: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("installing checkpoint: %w", err)
	}
	return nil
}

// ReadCheckpoint loads a checkpoint written by WriteCheckpoint.
func ReadCheckpoint(path string) (Head, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Head{}, fmt.Errorf("reading checkpoint: %w", err)
	}
	var head Head
	if err := codec.Unmarshal(data, &head); err != nil {
		return Head{}, fmt.Errorf("decoding checkpoint %s: %w", path, err)
	}
	return head, nil
}

// VerifyCheckpoint checks that the log still begins with the entries
// the checkpoint recorded: it is at least as long, and its first
// checkpoint.Entries lines hash to the recorded digest.
func VerifyCheckpoint(store LogStore, checkpoint Head) error {
	if checkpoint.Entries < 0 {
		return fmt.Errorf("%w: negative entry count %d", ErrCheckpointMismatch, checkpoint.Entries)
	}
	current, err := store.Head()
	if err != nil {
		return err
	}
	if current.Entries < checkpoint.Entries {
		return fmt.Errorf("%w: log has %d entries, checkpoint recorded %d (truncated)",
			ErrCheckpointMismatch, current.Entries, checkpoint.Entries)
	}
	prefix, err := prefixDigest(store, checkpoint.Entries)
	if err != nil {
		return err
	}
	if prefix != checkpoint.LogSHA256 {
		return fmt.Errorf("%w: first %d entries hash to %s, checkpoint recorded %s (rewritten)",
			ErrCheckpointMismatch, checkpoint.Entries, prefix, checkpoint.LogSHA256)
	}
	return nil
}

func prefixDigest(store LogStore, n int) (string, error) {
	switch s := store.(type) {
	case *FileStore:
		parsed, err := s.load()
		if err != nil {
			return "", err
		}
		return parsed.prefixDigest(n), nil
	case *MemoryStore:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.ledger.prefixDigest(n), nil
	default:
		entries, err := store.ReadRange(0, n)
		if err != nil {
			return "", err
		}
		var rebuilt ledger
		for _, entry := range entries {
			line := entry.Line()
			rebuilt.lines = append(rebuilt.lines, line[:len(line)-1])
		}
		return rebuilt.prefixDigest(n), nil
	}
}
