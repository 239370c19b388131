// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package translog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/sealrun/lib/clock"
)

// FileStore is a LogStore backed by an NDJSON file.
type FileStore struct {
	path   string
	clock  clock.Clock
	logger *slog.Logger
}

// OpenFile returns a FileStore for the log at path. The file is created
// on first append; reading a log that does not exist yet yields an
// empty log.
func OpenFile(path string, clk clock.Clock, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, clock: clk, logger: logger}
}

// Path returns the log file path.
func (s *FileStore) Path() string { return s.path }

// LockPath returns the path of the append lock file.
func (s *FileStore) LockPath() string { return s.path + ".lock" }

// Append takes the append lock, verifies the existing chain, and
// writes the next entry as one line followed by fsync. An unterminated
// trailing line left by a crashed writer is truncated first.
func (s *FileStore) Append(ctx context.Context, record Record) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Entry{}, fmt.Errorf("creating log directory: %w", err)
		}
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return Entry{}, err
	}
	defer unlock()

	file, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return Entry{}, fmt.Errorf("opening log: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Entry{}, fmt.Errorf("reading log: %w", err)
	}
	parsed, partial := parseLedger(data)
	if len(partial) > 0 {
		complete := int64(len(data) - len(partial))
		s.logger.Warn("truncating unterminated log line",
			"log", s.path,
			"offset", complete,
			"bytes", len(partial),
		)
		if err := file.Truncate(complete); err != nil {
			return Entry{}, fmt.Errorf("truncating partial line: %w", err)
		}
	}

	entry, err := parsed.next(record, s.clock.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return Entry{}, err
	}

	// O_RDWR without O_APPEND: position explicitly at the (possibly
	// truncated) end so the line lands after the last complete entry.
	end := int64(len(data) - len(partial))
	if _, err := file.WriteAt(entry.Line(), end); err != nil {
		return Entry{}, fmt.Errorf("writing log entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return Entry{}, fmt.Errorf("syncing log: %w", err)
	}

	s.logger.Info("transparency log entry appended",
		"log", s.path,
		"entry_id", entry.EntryID,
		"run_id", entry.RunID,
		"position", len(parsed.lines)+1,
	)
	return entry, nil
}

// lock takes an exclusive flock on the lock file, polling so a
// cancelled context releases the waiter.
func (s *FileStore) lock(ctx context.Context) (func(), error) {
	lockFile, err := os.OpenFile(s.LockPath(), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log lock: %w", err)
	}
	fd := int(lockFile.Fd())
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			lockFile.Close()
			return nil, fmt.Errorf("locking log: %w", err)
		}
		select {
		case <-ctx.Done():
			lockFile.Close()
			return nil, fmt.Errorf("waiting for log lock: %w", ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
	}
	return func() {
		unix.Flock(fd, unix.LOCK_UN)
		lockFile.Close()
	}, nil
}

// load reads the log without locking. A missing file is an empty log.
func (s *FileStore) load() (ledger, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return ledger{}, nil
	}
	if err != nil {
		return ledger{}, fmt.Errorf("reading log: %w", err)
	}
	parsed, _ := parseLedger(data)
	return parsed, nil
}

// ReadRange implements LogStore.
func (s *FileStore) ReadRange(start, end int) ([]Entry, error) {
	parsed, err := s.load()
	if err != nil {
		return nil, err
	}
	return parsed.readRange(start, end)
}

// VerifyChain implements LogStore.
func (s *FileStore) VerifyChain() (ChainResult, error) {
	parsed, err := s.load()
	if err != nil {
		return ChainResult{}, err
	}
	return parsed.verify(), nil
}

// Find implements LogStore.
func (s *FileStore) Find(commitHash string) ([]Located, error) {
	parsed, err := s.load()
	if err != nil {
		return nil, err
	}
	return parsed.find(commitHash)
}

// Head implements LogStore.
func (s *FileStore) Head() (Head, error) {
	parsed, err := s.load()
	if err != nil {
		return Head{}, err
	}
	return parsed.head()
}

// Excerpt returns the log lines up to and including 1-based position
// through, as NDJSON bytes. Admissibility packs carry such a prefix so
// the chain up to the entry can be checked offline.
func (s *FileStore) Excerpt(through int) ([]byte, error) {
	parsed, err := s.load()
	if err != nil {
		return nil, err
	}
	return parsed.excerpt(through)
}
