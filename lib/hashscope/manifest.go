// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hashscope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bureau-foundation/sealrun/lib/binhash"
)

// ScopeVersion is the manifest format version written by [Build].
const ScopeVersion = "1.0"

// Category names, in leaf order.
const (
	CategoryInputs   = "inputs"
	CategoryPrompts  = "prompts"
	CategorySchemas  = "schemas"
	CategoryPolicies = "policies"
)

// Categories lists the file categories in the order their leaves are
// concatenated for Merkle commitments.
var Categories = []string{CategoryInputs, CategoryPrompts, CategorySchemas, CategoryPolicies}

// DefaultExclusions are always present in a manifest's exclusion list.
var DefaultExclusions = []string{"artifacts_emitted", "observed_at"}

// ReservedFields are field names that participate in commit hash
// derivation. An exclusion naming one of them would let a hashed field
// vary, so manifests containing such an exclusion are invalid.
var ReservedFields = map[string]bool{
	"scope_version":      true,
	"inputs":             true,
	"prompts":            true,
	"schemas":            true,
	"policies":           true,
	"parameters":         true,
	"clock":              true,
	"deterministic":      true,
	"payload_sha256":     true,
	"path":               true,
	"sha256":             true,
	"exclusions":         true,
	"hash_scope":         true,
	"commit_hash":        true,
	"content_hash":       true,
	"decision_payload":   true,
	"schema_version":     true,
	"authority_envelope": true,
}

// FileRef is one hashed file in a manifest.
type FileRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Parameters are the non-file inputs to the commit hash.
type Parameters struct {
	// Clock is the explicit RFC 3339 UTC timestamp supplied by the
	// operator or CI job. Nil (JSON null) only for non-deterministic
	// runs.
	Clock *string `json:"clock"`

	Deterministic bool `json:"deterministic"`

	// PayloadSHA256 binds the decision payload (with excluded keys
	// removed) into the commit hash.
	PayloadSHA256 string `json:"payload_sha256"`
}

// Manifest is the hash scope manifest.
type Manifest struct {
	ScopeVersion string     `json:"scope_version"`
	Inputs       []FileRef  `json:"inputs"`
	Prompts      []FileRef  `json:"prompts"`
	Schemas      []FileRef  `json:"schemas"`
	Policies     []FileRef  `json:"policies"`
	Parameters   Parameters `json:"parameters"`
	Exclusions   []string   `json:"exclusions"`
}

// Category returns the file list for a category name, or nil for an
// unknown name.
func (m Manifest) Category(name string) []FileRef {
	switch name {
	case CategoryInputs:
		return m.Inputs
	case CategoryPrompts:
		return m.Prompts
	case CategorySchemas:
		return m.Schemas
	case CategoryPolicies:
		return m.Policies
	}
	return nil
}

// Leaves returns every file record in leaf order: inputs, prompts,
// schemas, policies, each already sorted by path.
func (m Manifest) Leaves() []FileRef {
	leaves := make([]FileRef, 0, len(m.Inputs)+len(m.Prompts)+len(m.Schemas)+len(m.Policies))
	for _, name := range Categories {
		leaves = append(leaves, m.Category(name)...)
	}
	return leaves
}

// Excludes reports whether name is in the manifest's exclusion list.
func (m Manifest) Excludes(name string) bool {
	for _, exclusion := range m.Exclusions {
		if exclusion == name {
			return true
		}
	}
	return false
}

// normalize replaces nil slices with empty ones so the manifest always
// serializes lists as [] rather than null.
func (m *Manifest) normalize() {
	if m.Inputs == nil {
		m.Inputs = []FileRef{}
	}
	if m.Prompts == nil {
		m.Prompts = []FileRef{}
	}
	if m.Schemas == nil {
		m.Schemas = []FileRef{}
	}
	if m.Policies == nil {
		m.Policies = []FileRef{}
	}
	if m.Exclusions == nil {
		m.Exclusions = []string{}
	}
}

// Validate checks a manifest's structure: known scope version, each
// category strictly sorted by path with well-formed digests, a valid
// clock when deterministic, and an exclusion list that is sorted,
// unique, contains the defaults, and names no reserved field. All
// problems are reported together.
func (m Manifest) Validate() error {
	var errs []error

	if m.ScopeVersion != ScopeVersion {
		errs = append(errs, fmt.Errorf("scope_version %q is not %q", m.ScopeVersion, ScopeVersion))
	}

	for _, name := range Categories {
		refs := m.Category(name)
		for index, ref := range refs {
			if ref.Path == "" {
				errs = append(errs, fmt.Errorf("%s[%d]: empty path", name, index))
			}
			if _, err := binhash.ParseDigest(ref.SHA256); err != nil || len(ref.SHA256) != len(binhash.Prefix)+64 {
				errs = append(errs, fmt.Errorf("%s[%d] %s: malformed sha256 %q", name, index, ref.Path, ref.SHA256))
			}
			if index > 0 && refs[index-1].Path >= ref.Path {
				errs = append(errs, fmt.Errorf("%s: %q is not sorted after %q", name, ref.Path, refs[index-1].Path))
			}
		}
	}

	if m.Parameters.Deterministic {
		if m.Parameters.Clock == nil {
			errs = append(errs, fmt.Errorf("parameters.clock is null in deterministic mode"))
		} else if _, err := ParseClock(*m.Parameters.Clock); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := binhash.HexPart(m.Parameters.PayloadSHA256); err != nil {
		errs = append(errs, fmt.Errorf("parameters.payload_sha256: %w", err))
	}

	for _, exclusion := range DefaultExclusions {
		if !m.Excludes(exclusion) {
			errs = append(errs, fmt.Errorf("exclusions: required exclusion %q missing", exclusion))
		}
	}
	for index, exclusion := range m.Exclusions {
		if ReservedFields[exclusion] {
			errs = append(errs, fmt.Errorf("exclusions: %q is a hashed field and cannot be excluded", exclusion))
		}
		if index > 0 && m.Exclusions[index-1] >= exclusion {
			errs = append(errs, fmt.Errorf("exclusions: %q is not sorted after %q", exclusion, m.Exclusions[index-1]))
		}
	}

	return errors.Join(errs...)
}

// Decode strictly decodes a manifest from JSON. Unknown fields are
// rejected: a field the decoder would drop is a field whose effect on
// the commit hash cannot be reasoned about.
func Decode(data []byte) (Manifest, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	var manifest Manifest
	if err := decoder.Decode(&manifest); err != nil {
		return Manifest{}, fmt.Errorf("decoding hash scope: %w", err)
	}
	manifest.normalize()
	return manifest, nil
}

// ParseClock parses an explicit clock value. The value must be RFC 3339
// in UTC with a literal "Z" suffix, so that the string recorded in the
// manifest has exactly one spelling.
func ParseClock(clock string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock %q is not RFC 3339: %w", clock, err)
	}
	if clock[len(clock)-1] != 'Z' {
		return time.Time{}, fmt.Errorf("clock %q must be UTC with a Z suffix", clock)
	}
	return parsed.UTC(), nil
}

// mergeExclusions returns the defaults plus extra, sorted and unique.
func mergeExclusions(extra []string) []string {
	seen := make(map[string]bool, len(DefaultExclusions)+len(extra))
	merged := make([]string, 0, len(DefaultExclusions)+len(extra))
	for _, list := range [][]string{DefaultExclusions, extra} {
		for _, name := range list {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			merged = append(merged, name)
		}
	}
	sort.Strings(merged)
	return merged
}
