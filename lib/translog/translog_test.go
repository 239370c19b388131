// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package translog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClock() *clock.FakeClock {
	return clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func record(n int) Record {
	return Record{
		RunID:             fmt.Sprintf("RUN-%08x", n),
		CommitHash:        canonical.SHA256([]byte(fmt.Sprintf("commit-%d", n))),
		ArtifactBytesHash: canonical.SHA256([]byte(fmt.Sprintf("artifact-%d", n))),
		SigningKeyID:      "key-1",
	}
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	return OpenFile(filepath.Join(t.TempDir(), "transparency.ndjson"), testClock(), discardLogger())
}

func appendN(t *testing.T, store LogStore, n int) []Entry {
	t.Helper()
	var entries []Entry
	for i := 0; i < n; i++ {
		entry, err := store.Append(context.Background(), record(i))
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestAppendChains(t *testing.T) {
	store := newFileStore(t)
	entries := appendN(t, store, 3)

	if entries[0].PrevEntryHash != GenesisHash {
		t.Errorf("first prev_entry_hash = %s, want %s", entries[0].PrevEntryHash, GenesisHash)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PrevEntryHash != entries[i-1].EntryHash {
			t.Errorf("entry %d prev_entry_hash = %s, want %s", i+1, entries[i].PrevEntryHash, entries[i-1].EntryHash)
		}
	}
	for i, entry := range entries {
		if entry.EntryHash != entry.ComputeHash() {
			t.Errorf("entry %d hash does not recompute", i+1)
		}
		if !strings.HasPrefix(entry.EntryID, "TLE-") || len(entry.EntryID) != len("TLE-")+12 {
			t.Errorf("entry %d id = %q, want TLE- plus 12 hex", i+1, entry.EntryID)
		}
		if entry.AppendedAt != "2026-03-01T12:00:00Z" {
			t.Errorf("entry %d appended_at = %q", i+1, entry.AppendedAt)
		}
	}

	result, err := store.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.Valid || result.Entries != 3 || result.BrokenAt != 0 {
		t.Errorf("VerifyChain() = %+v, want valid with 3 entries", result)
	}

	read, err := store.ReadRange(0, -1)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(read) != 3 || read[2] != entries[2] {
		t.Errorf("ReadRange(0, -1) = %d entries, want the 3 appended", len(read))
	}
}

func TestEmptyLog(t *testing.T) {
	store := newFileStore(t)
	result, err := store.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.Valid || result.Entries != 0 {
		t.Errorf("VerifyChain() on missing file = %+v, want valid and empty", result)
	}
	if _, err := store.Find(record(0).CommitHash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Find on empty log = %v, want ErrNotFound", err)
	}
}

func TestAppendRejectsDuplicate(t *testing.T) {
	store := newFileStore(t)
	appendN(t, store, 1)
	if _, err := store.Append(context.Background(), record(0)); !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("second Append of same run = %v, want ErrDuplicateEntry", err)
	}

	// Same commit, different artifact bytes: a re-observed artifact is
	// a distinct entry.
	reobserved := record(0)
	reobserved.ArtifactBytesHash = canonical.SHA256([]byte("reobserved"))
	if _, err := store.Append(context.Background(), reobserved); err != nil {
		t.Fatalf("Append(reobserved): %v", err)
	}
	found, err := store.Find(record(0).CommitHash)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 2 || found[0].Position != 1 || found[1].Position != 2 {
		t.Errorf("Find() = %+v, want positions 1 and 2", found)
	}
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func([]string) []string
		brokenAt int
	}{
		{
			name:     "delete middle entry",
			mutate:   func(lines []string) []string { return append(lines[:1:1], lines[2:]...) },
			brokenAt: 2,
		},
		{
			name:     "delete first entry",
			mutate:   func(lines []string) []string { return lines[1:] },
			brokenAt: 1,
		},
		{
			name: "reorder entries",
			mutate: func(lines []string) []string {
				lines[1], lines[2] = lines[2], lines[1]
				return lines
			},
			brokenAt: 2,
		},
		{
			name: "edit run id",
			mutate: func(lines []string) []string {
				lines[2] = strings.Replace(lines[2], "RUN-00000002", "RUN-deadbeef", 1)
				return lines
			},
			brokenAt: 3,
		},
		{
			name: "garbage line",
			mutate: func(lines []string) []string {
				lines[3] = "{not json"
				return lines
			},
			brokenAt: 4,
		},
		{
			name: "non-canonical whitespace",
			mutate: func(lines []string) []string {
				lines[0] = strings.Replace(lines[0], `","`, `", "`, 1)
				return lines
			},
			brokenAt: 1,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := newFileStore(t)
			appendN(t, store, 4)
			writeLines(t, store.Path(), test.mutate(readLines(t, store.Path())))

			result, err := store.VerifyChain()
			if err != nil {
				t.Fatalf("VerifyChain: %v", err)
			}
			if result.Valid || result.BrokenAt != test.brokenAt {
				t.Errorf("VerifyChain() = %+v, want broken at %d", result, test.brokenAt)
			}
			if result.Reason == "" {
				t.Error("broken chain has no reason")
			}
			if _, err := store.Append(context.Background(), record(99)); !errors.Is(err, ErrChainBroken) {
				t.Errorf("Append to broken log = %v, want ErrChainBroken", err)
			}
		})
	}
}

func TestPartialTrailingLine(t *testing.T) {
	store := newFileStore(t)
	appendN(t, store, 2)

	file, err := os.OpenFile(store.Path(), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	file.WriteString(`{"entry_id":"TLE-half`)
	file.Close()

	result, err := store.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.Valid || result.Entries != 2 {
		t.Errorf("reader with partial tail = %+v, want valid with 2 entries", result)
	}

	appended, err := store.Append(context.Background(), record(7))
	if err != nil {
		t.Fatalf("Append after partial line: %v", err)
	}
	lines := readLines(t, store.Path())
	if len(lines) != 3 {
		t.Fatalf("log has %d lines after append, want 3", len(lines))
	}
	if strings.Contains(strings.Join(lines, "\n"), "TLE-half") {
		t.Error("partial line survived the append")
	}
	result, _ = store.VerifyChain()
	if !result.Valid || result.Entries != 3 {
		t.Errorf("VerifyChain() after repair = %+v", result)
	}
	if lines[2] != strings.TrimSuffix(string(appended.Line()), "\n") {
		t.Errorf("last line = %s, want the appended entry", lines[2])
	}
}

func TestConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.ndjson")
	const writers = 8
	const perWriter = 5

	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			// Separate stores share nothing but the file and its lock.
			store := OpenFile(path, testClock(), discardLogger())
			for i := 0; i < perWriter; i++ {
				if _, err := store.Append(context.Background(), record(w*perWriter+i)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Append: %v", err)
	}

	store := OpenFile(path, testClock(), discardLogger())
	result, err := store.VerifyChain()
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.Valid || result.Entries != writers*perWriter {
		t.Errorf("VerifyChain() = %+v, want valid with %d entries", result, writers*perWriter)
	}
}

func TestAppendCancelledContext(t *testing.T) {
	store := newFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Append(ctx, record(0)); !errors.Is(err, context.Canceled) {
		t.Errorf("Append(cancelled) = %v, want context.Canceled", err)
	}
}

func TestReadRangeBounds(t *testing.T) {
	store := NewMemoryStore(testClock())
	appendN(t, store, 3)
	entries, err := store.ReadRange(1, 3)
	if err != nil {
		t.Fatalf("ReadRange(1, 3): %v", err)
	}
	if len(entries) != 2 || entries[0].RunID != record(1).RunID {
		t.Errorf("ReadRange(1, 3) = %+v", entries)
	}
	for _, bounds := range [][2]int{{-1, 2}, {2, 1}, {0, 4}} {
		if _, err := store.ReadRange(bounds[0], bounds[1]); !errors.Is(err, ErrRange) {
			t.Errorf("ReadRange(%d, %d) = %v, want ErrRange", bounds[0], bounds[1], err)
		}
	}
}

func TestMemoryStoreMatchesFileStore(t *testing.T) {
	fileStore := newFileStore(t)
	memory := NewMemoryStore(testClock())
	fileEntries := appendN(t, fileStore, 3)
	memoryEntries := appendN(t, memory, 3)
	for i := range fileEntries {
		if fileEntries[i] != memoryEntries[i] {
			t.Errorf("entry %d differs between stores:\n file   %+v\n memory %+v", i+1, fileEntries[i], memoryEntries[i])
		}
	}

	onDisk, err := os.ReadFile(fileStore.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(memory.Bytes(), onDisk) {
		t.Error("MemoryStore.Bytes() differs from the file log")
	}

	loaded := LoadMemoryStore(onDisk, testClock())
	fileHead, _ := fileStore.Head()
	loadedHead, _ := loaded.Head()
	if fileHead != loadedHead {
		t.Errorf("Head() = %+v, want %+v", loadedHead, fileHead)
	}
}

func TestExcerpt(t *testing.T) {
	store := newFileStore(t)
	appendN(t, store, 3)
	excerpt, err := store.Excerpt(2)
	if err != nil {
		t.Fatalf("Excerpt(2): %v", err)
	}
	loaded := LoadMemoryStore(excerpt, testClock())
	result, _ := loaded.VerifyChain()
	if !result.Valid || result.Entries != 2 {
		t.Errorf("excerpt chain = %+v, want valid with 2 entries", result)
	}
	if _, err := store.Excerpt(4); !errors.Is(err, ErrRange) {
		t.Errorf("Excerpt(4) = %v, want ErrRange", err)
	}
}

func TestCheckpoint(t *testing.T) {
	store := newFileStore(t)
	appendN(t, store, 3)
	head, err := store.Head()
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Entries != 3 || head.LastEntryID == "" || !strings.HasPrefix(head.LogSHA256, "sha256:") {
		t.Fatalf("Head() = %+v", head)
	}

	checkpointPath := filepath.Join(t.TempDir(), "head.cbor")
	if err := WriteCheckpoint(checkpointPath, head); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}
	loaded, err := ReadCheckpoint(checkpointPath)
	if err != nil {
		t.Fatalf("ReadCheckpoint: %v", err)
	}
	if loaded != head {
		t.Errorf("ReadCheckpoint() = %+v, want %+v", loaded, head)
	}

	// Growth is fine.
	if _, err := store.Append(context.Background(), record(50)); err != nil {
		t.Fatal(err)
	}
	if err := VerifyCheckpoint(store, loaded); err != nil {
		t.Errorf("VerifyCheckpoint after append: %v", err)
	}

	// Truncation to a shorter valid prefix still passes a chain walk
	// but not the checkpoint.
	lines := readLines(t, store.Path())
	writeLines(t, store.Path(), lines[:2])
	if result, _ := store.VerifyChain(); !result.Valid {
		t.Fatalf("truncated prefix should still chain: %+v", result)
	}
	if err := VerifyCheckpoint(store, loaded); !errors.Is(err, ErrCheckpointMismatch) {
		t.Errorf("VerifyCheckpoint after truncation = %v, want ErrCheckpointMismatch", err)
	}
}

func TestCheckpointDetectsRewrite(t *testing.T) {
	original := NewMemoryStore(testClock())
	appendN(t, original, 2)
	head, _ := original.Head()

	// A fully rebuilt log with the same length but different history.
	rewritten := NewMemoryStore(testClock())
	for i := 10; i < 12; i++ {
		if _, err := rewritten.Append(context.Background(), record(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := VerifyCheckpoint(rewritten, head); !errors.Is(err, ErrCheckpointMismatch) {
		t.Errorf("VerifyCheckpoint(rewritten) = %v, want ErrCheckpointMismatch", err)
	}
}

func TestAppendRequiresHashes(t *testing.T) {
	store := NewMemoryStore(testClock())
	if _, err := store.Append(context.Background(), Record{RunID: "RUN-1"}); err == nil {
		t.Error("Append with empty hashes succeeded")
	}
}
