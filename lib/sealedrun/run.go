// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealedrun

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bureau-foundation/sealrun/lib/canonical"
)

// SchemaVersion is the sealed run schema written by [Seal].
const SchemaVersion = "1.0"

// Top-level artifact field names.
const (
	FieldSchemaVersion     = "schema_version"
	FieldAuthorityEnvelope = "authority_envelope"
	FieldDecisionPayload   = "decision_payload"
	FieldHashScope         = "hash_scope"
	FieldCommitHash        = "commit_hash"
	FieldInputsCommitments = "inputs_commitments"
	FieldCommittedAt       = "committed_at"
	FieldArtifactsEmitted  = "artifacts_emitted"
	FieldContentHash       = "content_hash"
)

// RequiredFields are the top-level fields every sealed run carries.
var RequiredFields = []string{
	FieldSchemaVersion,
	FieldAuthorityEnvelope,
	FieldDecisionPayload,
	FieldHashScope,
	FieldCommitHash,
	FieldCommittedAt,
	FieldArtifactsEmitted,
	FieldContentHash,
}

// Run is an immutable sealed run. The document is held in the
// canonical value model and never exposed by reference.
type Run struct {
	document map[string]any
}

// Decode parses an artifact without validating it. Any JSON object is
// accepted; deciding whether it is a trustworthy sealed run is the
// verifier's job.
func Decode(data []byte) (*Run, error) {
	value, err := canonical.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("decoding sealed run: %w", err)
	}
	document, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decoding sealed run: top level is %T, want object", value)
	}
	return &Run{document: document}, nil
}

// FromDocument wraps a copy of a document in the canonical value model.
func FromDocument(document map[string]any) *Run {
	return &Run{document: canonical.Clone(document).(map[string]any)}
}

// Document returns a deep copy of the artifact.
func (r *Run) Document() map[string]any {
	return canonical.Clone(r.document).(map[string]any)
}

// CanonicalBytes returns the canonical encoding of the whole artifact,
// content_hash included. These are the bytes signatures cover.
func (r *Run) CanonicalBytes() []byte {
	return canonical.Canonicalize(r.document)
}

// PayloadBytesHash returns the digest of [Run.CanonicalBytes].
func (r *Run) PayloadBytesHash() string {
	return canonical.SHA256(r.CanonicalBytes())
}

// MarshalJSON returns the canonical bytes.
func (r *Run) MarshalJSON() ([]byte, error) {
	return r.CanonicalBytes(), nil
}

// Indented returns the canonical bytes with two-space indentation and
// a trailing newline, for writing to disk. Key order and number
// spelling are preserved, so canonicalizing the file reproduces
// [Run.CanonicalBytes].
func (r *Run) Indented() []byte {
	var buffer bytes.Buffer
	// Indent cannot fail on canonical output.
	_ = json.Indent(&buffer, r.CanonicalBytes(), "", "  ")
	buffer.WriteByte('\n')
	return buffer.Bytes()
}

// CommitHash returns the embedded commit hash.
func (r *Run) CommitHash() string { return stringField(r.document, FieldCommitHash) }

// ContentHash returns the embedded content hash.
func (r *Run) ContentHash() string { return stringField(r.document, FieldContentHash) }

// SchemaVersion returns the embedded schema version.
func (r *Run) SchemaVersion() string { return stringField(r.document, FieldSchemaVersion) }

// RunID returns authority_envelope.provenance.run_id.
func (r *Run) RunID() string {
	return stringField(r.provenance(), "run_id")
}

// ObservedAt returns authority_envelope.provenance.observed_at.
func (r *Run) ObservedAt() string {
	return stringField(r.provenance(), "observed_at")
}

// Clock returns hash_scope.parameters.clock, or "" when it is null.
func (r *Run) Clock() string {
	scope, _ := r.document[FieldHashScope].(map[string]any)
	parameters, _ := scope["parameters"].(map[string]any)
	return stringField(parameters, "clock")
}

// HashScope returns a deep copy of the embedded hash scope value.
func (r *Run) HashScope() any {
	return canonical.Clone(r.document[FieldHashScope])
}

// DecisionPayload returns a deep copy of the embedded payload.
func (r *Run) DecisionPayload() any {
	return canonical.Clone(r.document[FieldDecisionPayload])
}

func (r *Run) provenance() map[string]any {
	envelope, _ := r.document[FieldAuthorityEnvelope].(map[string]any)
	provenance, _ := envelope["provenance"].(map[string]any)
	return provenance
}

// ComputeContentHash returns the content hash of a document: the digest
// of its canonical bytes with content_hash set to "". The document is
// not modified.
func ComputeContentHash(document map[string]any) string {
	blanked := make(map[string]any, len(document))
	for key, value := range document {
		blanked[key] = value
	}
	blanked[FieldContentHash] = ""
	return canonical.SHA256(canonical.Canonicalize(blanked))
}

// Reobserve returns a new run identical to r except for
// provenance.observed_at and the recomputed content hash. The commit
// hash is unchanged because observed_at is excluded from the hash
// scope.
func (r *Run) Reobserve(observedAt time.Time) (*Run, error) {
	document := r.Document()
	envelope, ok := document[FieldAuthorityEnvelope].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("reobserving %s: authority_envelope is not an object", r.RunID())
	}
	provenance, ok := envelope["provenance"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("reobserving %s: provenance is not an object", r.RunID())
	}
	provenance["observed_at"] = FormatObserved(observedAt)
	document[FieldContentHash] = ComputeContentHash(document)
	return &Run{document: document}, nil
}

// FormatObserved formats a wall-clock observation time.
func FormatObserved(observedAt time.Time) string {
	return observedAt.UTC().Format(time.RFC3339Nano)
}

func stringField(object map[string]any, key string) string {
	value, _ := object[key].(string)
	return value
}
