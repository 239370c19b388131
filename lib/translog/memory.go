// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package translog

import (
	"context"
	"sync"
	"time"

	"github.com/bureau-foundation/sealrun/lib/clock"
)

// MemoryStore is a LogStore held in memory.
type MemoryStore struct {
	mu     sync.Mutex
	clock  clock.Clock
	ledger ledger
}

// NewMemoryStore returns an empty in-memory log.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{clock: clk}
}

// LoadMemoryStore parses NDJSON log bytes. Lines are kept verbatim so a
// tampered log verifies exactly as it would on disk. An unterminated
// trailing line is ignored.
func LoadMemoryStore(data []byte, clk clock.Clock) *MemoryStore {
	parsed, _ := parseLedger(data)
	return &MemoryStore{clock: clk, ledger: parsed}
}

// Append implements LogStore.
func (s *MemoryStore) Append(ctx context.Context, record Record) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.ledger.next(record, s.clock.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, err
	}
	line := entry.Line()
	s.ledger.lines = append(s.ledger.lines, line[:len(line)-1])
	return entry, nil
}

// ReadRange implements LogStore.
func (s *MemoryStore) ReadRange(start, end int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.readRange(start, end)
}

// VerifyChain implements LogStore.
func (s *MemoryStore) VerifyChain() (ChainResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.verify(), nil
}

// Find implements LogStore.
func (s *MemoryStore) Find(commitHash string) ([]Located, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.find(commitHash)
}

// Head implements LogStore.
func (s *MemoryStore) Head() (Head, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.head()
}

// Bytes returns the log as NDJSON.
func (s *MemoryStore) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, _ := s.ledger.excerpt(len(s.ledger.lines))
	return data
}
