// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package multisig aggregates signature blocks over one sealed run
// under an M-of-N threshold.
//
// An [Envelope] is a value: [Add] returns a new envelope and leaves its
// input untouched, and every block inside stays exactly as its signer
// produced it. [Verify] counts a signature only if it verifies
// cryptographically against the payload and neither its signer_id nor
// the key material it resolves to has already been counted. signer_id
// is not covered by the signature, so distinct keys are what make
// signers distinct; duplicates and failures are reported but never
// counted.
package multisig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/signing"
)

// Version is the envelope format version.
const Version = "1.0"

// ErrPayloadMismatch is returned by [Add] for a block bound to a
// different payload than the envelope's.
var ErrPayloadMismatch = errors.New("signature block is bound to a different payload")

// Envelope holds signature blocks over one payload.
type Envelope struct {
	Version          string          `json:"version"`
	Threshold        int             `json:"threshold"`
	PayloadBytesHash string          `json:"payload_bytes_hash"`
	Signatures       []signing.Block `json:"signatures"`
}

// New returns an empty envelope for a threshold.
func New(threshold int) Envelope {
	return Envelope{Version: Version, Threshold: threshold, Signatures: []signing.Block{}}
}

// Add returns a copy of envelope with block appended. The first block
// fixes the envelope's payload_bytes_hash; later blocks must match it.
// A block identical to one already present is rejected.
func Add(envelope Envelope, block signing.Block) (Envelope, error) {
	if envelope.PayloadBytesHash != "" && block.PayloadBytesHash != envelope.PayloadBytesHash {
		return Envelope{}, fmt.Errorf("%w: envelope %s, block %s", ErrPayloadMismatch, envelope.PayloadBytesHash, block.PayloadBytesHash)
	}
	for _, existing := range envelope.Signatures {
		if existing == block {
			return Envelope{}, fmt.Errorf("signature from %s with key %s is already in the envelope", block.SignerID, block.SigningKeyID)
		}
	}

	next := Envelope{
		Version:          envelope.Version,
		Threshold:        envelope.Threshold,
		PayloadBytesHash: block.PayloadBytesHash,
		Signatures:       make([]signing.Block, 0, len(envelope.Signatures)+1),
	}
	if next.Version == "" {
		next.Version = Version
	}
	next.Signatures = append(next.Signatures, envelope.Signatures...)
	next.Signatures = append(next.Signatures, block)
	return next, nil
}

// Failure is one signature that did not count.
type Failure struct {
	Index    int
	SignerID string
	Err      error
}

// Result is the outcome of [Verify].
type Result struct {
	Valid         bool
	Threshold     int
	ValidDistinct int
	Total         int
	// Duplicates lists signer IDs that appeared with more than one
	// valid signature; each counted once.
	Duplicates []string
	// SharedKeys lists signing key IDs of valid signatures that were
	// not counted because their key material was already counted.
	SharedKeys []string
	Failures   []Failure
	// HardwareBacked reports whether at least one counted signature
	// came from a hardware-backed signer.
	HardwareBacked bool
}

// Verify checks every signature in the envelope against payload and
// counts valid signatures with distinct signer IDs and distinct keys. threshold overrides
// the envelope's own when positive. The envelope is valid iff the
// distinct count reaches the threshold; a threshold below one is
// treated as one.
func Verify(envelope Envelope, threshold int, payload []byte, keyring *signing.Keyring) Result {
	if threshold <= 0 {
		threshold = envelope.Threshold
	}
	if threshold < 1 {
		threshold = 1
	}

	result := Result{Threshold: threshold, Total: len(envelope.Signatures)}
	counted := make(map[string]bool)
	countedKeys := make(map[string]bool)
	duplicated := make(map[string]bool)
	shared := make(map[string]bool)
	for index, block := range envelope.Signatures {
		if err := signing.Verify(block, payload, keyring); err != nil {
			result.Failures = append(result.Failures, Failure{Index: index, SignerID: block.SignerID, Err: err})
			continue
		}
		fingerprint, _ := keyring.Fingerprint(block.SigningKeyID)
		if counted[block.SignerID] {
			duplicated[block.SignerID] = true
			continue
		}
		if countedKeys[fingerprint] {
			shared[block.SigningKeyID] = true
			continue
		}
		counted[block.SignerID] = true
		countedKeys[fingerprint] = true
		result.ValidDistinct++
		if block.SignerType == signing.SignerHardware {
			result.HardwareBacked = true
		}
	}
	for signerID := range duplicated {
		result.Duplicates = append(result.Duplicates, signerID)
	}
	sort.Strings(result.Duplicates)
	for keyID := range shared {
		result.SharedKeys = append(result.SharedKeys, keyID)
	}
	sort.Strings(result.SharedKeys)
	result.Valid = result.ValidDistinct >= threshold
	return result
}

// Encode returns the indented JSON encoding of an envelope with a
// trailing newline.
func (e Envelope) Encode() []byte {
	data, _ := canonical.Marshal(e)
	var buffer bytes.Buffer
	_ = json.Indent(&buffer, data, "", "  ")
	buffer.WriteByte('\n')
	return buffer.Bytes()
}

// Decode parses a signature file holding either an envelope or a
// single block. A single block becomes an envelope of threshold 1.
func Decode(data []byte) (Envelope, error) {
	if !gjson.ValidBytes(data) {
		return Envelope{}, errors.New("signature file is not valid JSON")
	}
	if !gjson.GetBytes(data, "signatures").Exists() {
		block, err := signing.DecodeBlock(data)
		if err != nil {
			return Envelope{}, err
		}
		return Add(New(1), block)
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	var envelope Envelope
	if err := decoder.Decode(&envelope); err != nil {
		return Envelope{}, fmt.Errorf("decoding signature envelope: %w", err)
	}
	if envelope.Signatures == nil {
		envelope.Signatures = []signing.Block{}
	}
	for index, block := range envelope.Signatures {
		if envelope.PayloadBytesHash != "" && block.PayloadBytesHash != envelope.PayloadBytesHash {
			return Envelope{}, fmt.Errorf("signature %d: %w", index, ErrPayloadMismatch)
		}
	}
	return envelope, nil
}
