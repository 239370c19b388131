// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealedrun

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/sealrun/lib/hashscope"
)

// File name suffixes.
const (
	ArtifactSuffix  = ".json"
	ManifestSuffix  = ".manifest.json"
	SignatureSuffix = ".sig.json"
)

// compactClock is ISO 8601 basic format in UTC, safe in file names.
const compactClock = "20060102T150405Z"

// BaseName returns "<run_id>_<compact clock>". A run without a clock
// uses "unclocked" in place of the timestamp.
func BaseName(runID, clock string) string {
	stamp := "unclocked"
	if parsed, err := hashscope.ParseClock(clock); err == nil {
		stamp = parsed.Format(compactClock)
	}
	return runID + "_" + stamp
}

// FileName returns the artifact file name for a run.
func FileName(run *Run) string {
	return BaseName(run.RunID(), run.Clock()) + ArtifactSuffix
}

// ManifestName returns the standalone manifest file name for a run.
func ManifestName(run *Run) string {
	return BaseName(run.RunID(), run.Clock()) + ManifestSuffix
}

// SignatureName returns the signature file name for a run.
func SignatureName(run *Run) string {
	return BaseName(run.RunID(), run.Clock()) + SignatureSuffix
}

// SignaturePath returns the signature file path next to an artifact
// path.
func SignaturePath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, ArtifactSuffix) + SignatureSuffix
}

// ManifestFile is the standalone hash scope manifest written next to a
// sealed run.
type ManifestFile struct {
	SealedRun  string             `json:"sealed_run"`
	RunID      string             `json:"run_id"`
	CommitHash string             `json:"commit_hash"`
	HashScope  hashscope.Manifest `json:"hash_scope"`
}

// WriteNew creates path and writes data to it, failing if the file
// already exists. The file is synced before returning. Artifacts are
// only ever written through this function, so a written artifact is
// never reopened for modification.
func WriteNew(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return file.Close()
}

// ReplaceNew writes data to a new temporary file in the directory of
// path and renames it over path. The previous file's bytes are never
// modified in place: readers holding it open keep seeing the old
// content. Used only for files that are aggregates of immutable parts
// (the multisig envelope), never for sealed runs.
func ReplaceNew(path string, data []byte) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file for %s: %w", path, err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing %s: %w", temporaryPath, err)
	}
	if err := temporary.Sync(); err != nil {
		temporary.Close()
		return fmt.Errorf("syncing %s: %w", temporaryPath, err)
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}
