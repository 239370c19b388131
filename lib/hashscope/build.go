// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hashscope

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bureau-foundation/sealrun/lib/binhash"
	"github.com/bureau-foundation/sealrun/lib/canonical"
)

// ErrMissingInput is wrapped by [*MissingFileError] so callers can test
// for any missing declared file with errors.Is.
var ErrMissingInput = errors.New("declared input file does not exist")

// MissingFileError reports a declared file that could not be found.
type MissingFileError struct {
	Category string
	Path     string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("%s file %s: %v", e.Category, e.Path, ErrMissingInput)
}

func (e *MissingFileError) Unwrap() error { return ErrMissingInput }

// Warning is a non-fatal problem found while building a manifest in
// non-strict mode.
type Warning struct {
	Category string
	Path     string
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %s", w.Category, w.Path, w.Message)
}

// Request describes one manifest build.
type Request struct {
	// Root is the directory relative paths are resolved against and
	// recorded relative to. Empty means the working directory.
	Root string

	// Clock is the explicit RFC 3339 UTC timestamp. Required when
	// Deterministic is set.
	Clock         string
	Deterministic bool

	Inputs   []string
	Prompts  []string
	Schemas  []string
	Policies []string

	// Exclusions are merged with [DefaultExclusions].
	Exclusions []string

	// Payload is the decision payload whose digest is bound into the
	// manifest parameters. Any JSON-marshalable value.
	Payload any

	// Strict turns a missing declared file into an error. Otherwise
	// the file is omitted and a [Warning] is returned.
	Strict bool
}

// Build hashes every declared file and assembles the manifest. Paths in
// each category are recorded slash-separated relative to the request
// root, sorted, and deduplicated.
func Build(request Request) (Manifest, []Warning, error) {
	manifest := Manifest{ScopeVersion: ScopeVersion}

	switch {
	case request.Clock != "":
		if _, err := ParseClock(request.Clock); err != nil {
			return Manifest{}, nil, err
		}
		clock := request.Clock
		manifest.Parameters.Clock = &clock
	case request.Deterministic:
		return Manifest{}, nil, fmt.Errorf("an explicit clock is required in deterministic mode")
	}
	manifest.Parameters.Deterministic = request.Deterministic

	manifest.Exclusions = mergeExclusions(request.Exclusions)
	for _, exclusion := range manifest.Exclusions {
		if ReservedFields[exclusion] {
			return Manifest{}, nil, fmt.Errorf("exclusion %q names a hashed field", exclusion)
		}
	}

	payloadDigest, err := PayloadDigest(request.Payload, manifest.Exclusions)
	if err != nil {
		return Manifest{}, nil, err
	}
	manifest.Parameters.PayloadSHA256 = payloadDigest

	var warnings []Warning
	categories := []struct {
		name   string
		paths  []string
		target *[]FileRef
	}{
		{CategoryInputs, request.Inputs, &manifest.Inputs},
		{CategoryPrompts, request.Prompts, &manifest.Prompts},
		{CategorySchemas, request.Schemas, &manifest.Schemas},
		{CategoryPolicies, request.Policies, &manifest.Policies},
	}
	for _, category := range categories {
		refs, categoryWarnings, err := hashCategory(request.Root, category.name, category.paths, request.Strict)
		if err != nil {
			return Manifest{}, nil, err
		}
		*category.target = refs
		warnings = append(warnings, categoryWarnings...)
	}

	manifest.normalize()
	return manifest, warnings, nil
}

func hashCategory(root, category string, paths []string, strict bool) ([]FileRef, []Warning, error) {
	byPath := make(map[string]string, len(paths))
	var warnings []Warning

	for _, declared := range paths {
		recorded, onDisk, err := resolve(root, declared)
		if err != nil {
			return nil, nil, fmt.Errorf("%s file %s: %w", category, declared, err)
		}
		if _, seen := byPath[recorded]; seen {
			continue
		}

		info, err := os.Stat(onDisk)
		if errors.Is(err, fs.ErrNotExist) {
			if strict {
				return nil, nil, &MissingFileError{Category: category, Path: recorded}
			}
			warnings = append(warnings, Warning{Category: category, Path: recorded, Message: "file does not exist, omitted from hash scope"})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s file %s: %w", category, recorded, err)
		}
		if info.IsDir() {
			return nil, nil, fmt.Errorf("%s file %s is a directory (use ExpandDirectory)", category, recorded)
		}

		digest, err := binhash.HashFile(onDisk)
		if err != nil {
			return nil, nil, fmt.Errorf("%s file %s: %w", category, recorded, err)
		}
		byPath[recorded] = binhash.FormatDigest(digest)
	}

	refs := make([]FileRef, 0, len(byPath))
	for recorded, digest := range byPath {
		refs = append(refs, FileRef{Path: recorded, SHA256: digest})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, warnings, nil
}

// resolve returns the path to record in the manifest and the path to
// read from disk. Relative paths are recorded as given (cleaned,
// slash-separated) and read from under root. Absolute paths inside root
// are recorded relative to it; absolute paths outside root are recorded
// as-is.
func resolve(root, declared string) (recorded, onDisk string, err error) {
	if declared == "" {
		return "", "", fmt.Errorf("empty path")
	}
	if !filepath.IsAbs(declared) {
		cleaned := filepath.Clean(declared)
		if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return "", "", fmt.Errorf("relative path escapes the scope root")
		}
		return filepath.ToSlash(cleaned), filepath.Join(root, cleaned), nil
	}

	onDisk = filepath.Clean(declared)
	if root != "" {
		absoluteRoot, err := filepath.Abs(root)
		if err != nil {
			return "", "", err
		}
		if relative, err := filepath.Rel(absoluteRoot, onDisk); err == nil && relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(relative), onDisk, nil
		}
	}
	return filepath.ToSlash(onDisk), onDisk, nil
}

// ResolvePath returns the on-disk location of a recorded manifest path
// under root.
func ResolvePath(root, recorded string) string {
	if path.IsAbs(recorded) {
		return filepath.FromSlash(recorded)
	}
	return filepath.Join(root, filepath.FromSlash(recorded))
}

// PayloadDigest returns the digest bound into parameters.payload_sha256:
// the SHA-256 of the canonical payload after every object key named in
// exclusions has been removed, at any depth.
func PayloadDigest(payload any, exclusions []string) (string, error) {
	value, err := canonical.ToValue(payload)
	if err != nil {
		return "", fmt.Errorf("decision payload: %w", err)
	}
	excluded := make(map[string]bool, len(exclusions))
	for _, name := range exclusions {
		excluded[name] = true
	}
	return canonical.SHA256(canonical.Canonicalize(StripExcluded(value, excluded))), nil
}

// StripExcluded returns a copy of value with every object key in
// excluded removed at every depth. The input is not modified.
func StripExcluded(value any, excluded map[string]bool) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, element := range typed {
			if excluded[key] {
				continue
			}
			out[key] = StripExcluded(element, excluded)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for index, element := range typed {
			out[index] = StripExcluded(element, excluded)
		}
		return out
	default:
		return value
	}
}

// ExpandDirectory returns every regular file under dir whose base name
// matches pattern (a [path.Match] pattern; empty matches everything),
// sorted. Hidden files and directories are skipped. The returned paths
// are dir joined with the relative path, suitable for [Request] fields.
func ExpandDirectory(dir, pattern string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := entry.Name()
		if walkPath != dir && strings.HasPrefix(name, ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if pattern != "" {
			matched, err := path.Match(pattern, name)
			if err != nil {
				return fmt.Errorf("pattern %q: %w", pattern, err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, walkPath)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expanding %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
