// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealedrun

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/detid"
	"github.com/bureau-foundation/sealrun/lib/hashscope"
	"github.com/bureau-foundation/sealrun/lib/merkle"
)

// Request is the input to [Seal].
type Request struct {
	// Envelope is the authority envelope template. Provenance is
	// overwritten.
	Envelope AuthorityEnvelope

	// Payload is the decision payload. Its digest must match
	// Scope.Parameters.PayloadSHA256.
	Payload any

	// Scope is the hash scope manifest built for this run.
	Scope hashscope.Manifest

	// Commitments attaches inputs_commitments built from Scope.
	Commitments bool

	// ArtifactsEmitted lists companion files written alongside the
	// artifact (the manifest file, typically). Excluded from the
	// commit hash.
	ArtifactsEmitted []string

	// ObservedAt is the wall-clock time of sealing. Excluded from the
	// commit hash.
	ObservedAt time.Time
}

// document is the typed form of a sealed run, used only to build the
// canonical value.
type document struct {
	SchemaVersion     string              `json:"schema_version"`
	AuthorityEnvelope AuthorityEnvelope   `json:"authority_envelope"`
	DecisionPayload   any                 `json:"decision_payload"`
	HashScope         hashscope.Manifest  `json:"hash_scope"`
	CommitHash        string              `json:"commit_hash"`
	InputsCommitments *merkle.Commitments `json:"inputs_commitments,omitempty"`
	CommittedAt       *string             `json:"committed_at"`
	ArtifactsEmitted  []string            `json:"artifacts_emitted"`
	ContentHash       string              `json:"content_hash"`
}

// Seal assembles a sealed run. It fails without producing anything if
// the envelope violates any predicate, the scope is invalid, or the
// payload does not match the digest bound into the scope.
//
// Gaps in the policy snapshot are filled from the scope first: an empty
// policy_hash becomes the Merkle root of the policy files, and empty
// prompt_hashes become the prompt file digests.
func Seal(request Request) (*Run, error) {
	envelope := request.Envelope
	scope := request.Scope

	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("sealing: invalid hash scope: %w", err)
	}

	if envelope.PolicySnapshot.PolicyHash == "" && len(scope.Policies) > 0 {
		root, err := merkle.CategoryRoot(scope, hashscope.CategoryPolicies)
		if err != nil {
			return nil, fmt.Errorf("sealing: policy hash: %w", err)
		}
		envelope.PolicySnapshot.PolicyHash = root
	}
	if len(envelope.PolicySnapshot.PromptHashes) == 0 {
		hashes := make([]string, 0, len(scope.Prompts))
		for _, prompt := range scope.Prompts {
			hashes = append(hashes, prompt.SHA256)
		}
		envelope.PolicySnapshot.PromptHashes = hashes
	}
	normalizeEnvelope(&envelope)

	envelopeValue, err := canonical.ToValue(envelope)
	if err != nil {
		return nil, fmt.Errorf("sealing: %w", err)
	}
	if violations := ValidateEnvelope(envelopeValue); len(violations) > 0 {
		return nil, &EnvelopeError{Violations: violations}
	}

	payload, err := canonical.ToValue(request.Payload)
	if err != nil {
		return nil, fmt.Errorf("sealing: decision payload: %w", err)
	}
	payloadDigest, err := hashscope.PayloadDigest(payload, scope.Exclusions)
	if err != nil {
		return nil, fmt.Errorf("sealing: %w", err)
	}
	if payloadDigest != scope.Parameters.PayloadSHA256 {
		return nil, fmt.Errorf("sealing: decision payload digest %s does not match hash scope payload_sha256 %s",
			payloadDigest, scope.Parameters.PayloadSHA256)
	}

	commitHash, err := detid.CommitHash(scope)
	if err != nil {
		return nil, fmt.Errorf("sealing: commit hash: %w", err)
	}
	clock := ""
	if scope.Parameters.Clock != nil {
		clock = *scope.Parameters.Clock
	}
	envelope.Provenance = Provenance{
		RunID:                   detid.RunID(commitHash),
		CreatedAt:               clock,
		ObservedAt:              FormatObserved(request.ObservedAt),
		DeterministicInputsHash: commitHash,
	}

	built := document{
		SchemaVersion:     SchemaVersion,
		AuthorityEnvelope: envelope,
		DecisionPayload:   payload,
		HashScope:         scope,
		CommitHash:        commitHash,
		CommittedAt:       scope.Parameters.Clock,
		ArtifactsEmitted:  append([]string{}, request.ArtifactsEmitted...),
	}
	if request.Commitments {
		commitments, err := merkle.FromManifest(scope)
		if err != nil {
			return nil, fmt.Errorf("sealing: commitments: %w", err)
		}
		built.InputsCommitments = &commitments
	}

	value, err := canonical.ToValue(built)
	if err != nil {
		return nil, fmt.Errorf("sealing: %w", err)
	}
	documentValue := value.(map[string]any)
	documentValue[FieldContentHash] = ComputeContentHash(documentValue)
	return &Run{document: documentValue}, nil
}

// normalizeEnvelope replaces nil lists with empty ones so they encode
// as [] rather than null.
func normalizeEnvelope(envelope *AuthorityEnvelope) {
	lists := []*[]string{
		&envelope.Scope.Decisions,
		&envelope.Scope.Claims,
		&envelope.Scope.Patches,
		&envelope.Scope.Prompts,
		&envelope.Scope.Datasets,
		&envelope.PolicySnapshot.PromptHashes,
		&envelope.Refusal.ChecksPerformed,
	}
	for _, list := range lists {
		if *list == nil {
			*list = []string{}
		}
	}
	if envelope.Enforcement.GateOutcomes == nil {
		envelope.Enforcement.GateOutcomes = []GateOutcome{}
	}
}
