// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/bureau-foundation/sealrun/lib/canonical"
)

// Algorithms.
const (
	AlgorithmHMAC    = "hmac-sha256"
	AlgorithmEd25519 = "ed25519"
)

// Signer types.
const (
	SignerSoftware = "software"
	SignerHardware = "hardware"
	SignerExternal = "external"
)

// Block is a signature over one sealed run.
type Block struct {
	SignerType       string `json:"signer_type"`
	SigningKeyID     string `json:"signing_key_id"`
	SignerID         string `json:"signer_id"`
	Role             string `json:"role"`
	Algorithm        string `json:"algorithm"`
	PayloadBytesHash string `json:"payload_bytes_hash"`
	CommitHash       string `json:"commit_hash"`
	Signature        string `json:"signature"`
}

// Identity names who signs and with which key.
type Identity struct {
	KeyID    string
	SignerID string
	Role     string
}

// Signer signs canonical sealed run bytes.
type Signer interface {
	Sign(ctx context.Context, payload []byte) (Block, error)
}

// Message returns the bytes every algorithm signs for payload: the
// lowercase hex of its SHA-256.
func Message(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	message := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(message, sum[:])
	return message
}

// newBlock fills the fields every signer sets identically.
func newBlock(identity Identity, signerType, algorithm string, payload []byte) (Block, error) {
	commitHash := gjson.GetBytes(payload, "commit_hash")
	if commitHash.Type != gjson.String || commitHash.String() == "" {
		return Block{}, fmt.Errorf("payload has no commit_hash; sign a sealed run's canonical bytes")
	}
	signerID := identity.SignerID
	if signerID == "" {
		signerID = identity.KeyID
	}
	return Block{
		SignerType:       signerType,
		SigningKeyID:     identity.KeyID,
		SignerID:         signerID,
		Role:             identity.Role,
		Algorithm:        algorithm,
		PayloadBytesHash: canonical.SHA256(payload),
		CommitHash:       commitHash.String(),
	}, nil
}

// Encode returns the indented JSON encoding of a block, with a trailing
// newline, as written to .sig.json files.
func (b Block) Encode() []byte {
	data, _ := canonical.Marshal(b)
	var buffer bytes.Buffer
	_ = json.Indent(&buffer, data, "", "  ")
	buffer.WriteByte('\n')
	return buffer.Bytes()
}

// DecodeBlock parses a single signature block.
func DecodeBlock(data []byte) (Block, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	var block Block
	if err := decoder.Decode(&block); err != nil {
		return Block{}, fmt.Errorf("decoding signature block: %w", err)
	}
	return block, nil
}
