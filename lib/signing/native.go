// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/bureau-foundation/sealrun/lib/secret"
)

// HMACSigner signs with HMAC-SHA256. The secret is borrowed; the caller
// closes it.
type HMACSigner struct {
	Identity Identity
	Secret   *secret.Buffer
}

// Sign implements [Signer].
func (s *HMACSigner) Sign(_ context.Context, payload []byte) (Block, error) {
	block, err := newBlock(s.Identity, SignerSoftware, AlgorithmHMAC, payload)
	if err != nil {
		return Block{}, err
	}
	mac := hmac.New(sha256.New, s.Secret.Bytes())
	mac.Write(Message(payload))
	block.Signature = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return block, nil
}

// Ed25519Signer signs with an Ed25519 private key held as the 64-byte
// seed||public form. The key is borrowed; the caller closes it.
type Ed25519Signer struct {
	Identity   Identity
	PrivateKey *secret.Buffer
}

// Sign implements [Signer].
func (s *Ed25519Signer) Sign(_ context.Context, payload []byte) (Block, error) {
	if s.PrivateKey.Len() != ed25519.PrivateKeySize {
		return Block{}, fmt.Errorf("ed25519 private key is %d bytes, want %d", s.PrivateKey.Len(), ed25519.PrivateKeySize)
	}
	block, err := newBlock(s.Identity, SignerSoftware, AlgorithmEd25519, payload)
	if err != nil {
		return Block{}, err
	}
	// crypto/ed25519 caches per-key state through weak pointers, which
	// must point into the Go heap, so the locked key is never passed
	// to it directly. The heap copy lives only for this call.
	private := ed25519.NewKeyFromSeed(s.PrivateKey.Bytes()[:ed25519.SeedSize])
	signature := ed25519.Sign(private, Message(payload))
	secret.Zero(private)
	block.Signature = base64.StdEncoding.EncodeToString(signature)
	return block, nil
}

// NewSigner returns the native signer for an algorithm and key.
func NewSigner(algorithm string, identity Identity, key *secret.Buffer) (Signer, error) {
	algorithm, err := NormalizeAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	if algorithm == AlgorithmHMAC {
		return &HMACSigner{Identity: identity, Secret: key}, nil
	}
	return &Ed25519Signer{Identity: identity, PrivateKey: key}, nil
}

// NormalizeAlgorithm maps command-line algorithm names ("hmac",
// "hmac-sha256", "ed25519") to the names recorded in blocks.
func NormalizeAlgorithm(name string) (string, error) {
	switch name {
	case "hmac", AlgorithmHMAC:
		return AlgorithmHMAC, nil
	case AlgorithmEd25519:
		return AlgorithmEd25519, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}
