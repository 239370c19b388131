// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package multisig

import (
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/secret"
	"github.com/bureau-foundation/sealrun/lib/signing"
)

var testPayload = canonical.Canonicalize(map[string]any{
	"commit_hash":  canonical.SHA256([]byte("scope")),
	"content_hash": canonical.SHA256([]byte("content")),
})

type party struct {
	signerID string
	keyID    string
	secret   string
}

func fixture(t *testing.T, parties ...party) (*signing.Keyring, []signing.Block) {
	t.Helper()
	keyring := signing.NewKeyring()
	var blocks []signing.Block
	for _, p := range parties {
		signerSecret, err := secret.NewFromBytes([]byte(p.secret))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { signerSecret.Close() })

		if _, ok := keyring.Lookup(p.keyID); !ok {
			verifySecret, err := secret.NewFromBytes([]byte(p.secret))
			if err != nil {
				t.Fatal(err)
			}
			if err := keyring.Add(p.keyID, signing.Key{Algorithm: signing.AlgorithmHMAC, Secret: verifySecret}); err != nil {
				t.Fatal(err)
			}
		}

		signer := &signing.HMACSigner{Identity: signing.Identity{KeyID: p.keyID, SignerID: p.signerID}, Secret: signerSecret}
		block, err := signer.Sign(context.Background(), testPayload)
		if err != nil {
			t.Fatal(err)
		}
		blocks = append(blocks, block)
	}
	t.Cleanup(func() { keyring.Close() })
	return keyring, blocks
}

func build(t *testing.T, threshold int, blocks ...signing.Block) Envelope {
	t.Helper()
	envelope := New(threshold)
	for _, block := range blocks {
		var err error
		envelope, err = Add(envelope, block)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	return envelope
}

func TestTwoOfTwoDistinctSigners(t *testing.T) {
	keyring, blocks := fixture(t, party{"alice", "key-a", "secret-a"}, party{"bob", "key-b", "secret-b"})
	envelope := build(t, 2, blocks...)

	result := Verify(envelope, 0, testPayload, keyring)
	if !result.Valid || result.ValidDistinct != 2 || result.Total != 2 {
		t.Errorf("Verify() = %+v, want valid 2 of 2", result)
	}
}

func TestInvalidatedSignatureFailsThreshold(t *testing.T) {
	keyring, blocks := fixture(t, party{"alice", "key-a", "secret-a"}, party{"bob", "key-b", "secret-b"})
	blocks[1].Signature = blocks[0].Signature
	envelope := build(t, 2, blocks...)

	result := Verify(envelope, 0, testPayload, keyring)
	if result.Valid {
		t.Errorf("Verify() = %+v, want invalid", result)
	}
	if result.ValidDistinct != 1 || len(result.Failures) != 1 || result.Failures[0].SignerID != "bob" {
		t.Errorf("Verify() = %+v, want one failure from bob", result)
	}
	if !errors.Is(result.Failures[0].Err, signing.ErrInvalidSignature) {
		t.Errorf("failure = %v, want ErrInvalidSignature", result.Failures[0].Err)
	}
}

func TestDuplicateSignerCountsOnce(t *testing.T) {
	keyring, blocks := fixture(t, party{"alice", "key-a", "secret-a"}, party{"alice", "key-a2", "secret-a2"})
	envelope := build(t, 2, blocks...)

	result := Verify(envelope, 0, testPayload, keyring)
	if result.Valid || result.ValidDistinct != 1 {
		t.Errorf("Verify() = %+v, want duplicate signer counted once", result)
	}
	if len(result.Duplicates) != 1 || result.Duplicates[0] != "alice" {
		t.Errorf("Duplicates = %v, want [alice]", result.Duplicates)
	}
}

func TestSharedKeyCountsOnce(t *testing.T) {
	keyring, blocks := fixture(t, party{"alice", "key-a", "secret-a"})
	relabeled := blocks[0]
	relabeled.SignerID = "bob"
	envelope := build(t, 2, blocks[0], relabeled)

	result := Verify(envelope, 0, testPayload, keyring)
	if result.Valid || result.ValidDistinct != 1 {
		t.Errorf("Verify() = %+v, want one key counted once", result)
	}
	if len(result.SharedKeys) != 1 || result.SharedKeys[0] != "key-a" {
		t.Errorf("SharedKeys = %v, want [key-a]", result.SharedKeys)
	}
}

func TestWildcardKeyCountsOnce(t *testing.T) {
	keyring, blocks := fixture(t, party{"carol", "key-c", "secret-c"}, party{"alice", signing.WildcardKeyID, "shared"}, party{"bob", "key-b", "shared"})
	envelope := build(t, 2, blocks[1], blocks[2])

	// key-b resolves through the wildcard to the same secret alice used.
	if result := Verify(envelope, 0, testPayload, keyring); result.Valid || result.ValidDistinct != 1 {
		t.Errorf("Verify() = %+v, want wildcard-resolved key counted once", result)
	}

	envelope = build(t, 2, blocks[1], blocks[0])
	if result := Verify(envelope, 0, testPayload, keyring); !result.Valid || result.ValidDistinct != 2 {
		t.Errorf("Verify() = %+v, want two distinct keys", result)
	}
}

func TestThresholdOverride(t *testing.T) {
	keyring, blocks := fixture(t, party{"alice", "key-a", "secret-a"}, party{"bob", "key-b", "secret-b"})
	envelope := build(t, 1, blocks...)
	if result := Verify(envelope, 3, testPayload, keyring); result.Valid || result.Threshold != 3 {
		t.Errorf("Verify(threshold 3) = %+v, want invalid", result)
	}
	if result := Verify(envelope, 0, testPayload, keyring); !result.Valid || result.Threshold != 1 {
		t.Errorf("Verify(envelope threshold) = %+v, want valid at 1", result)
	}
}

func TestAddDoesNotMutateInput(t *testing.T) {
	_, blocks := fixture(t, party{"alice", "key-a", "secret-a"}, party{"bob", "key-b", "secret-b"})
	first := build(t, 2, blocks[0])
	second, err := Add(first, blocks[1])
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Signatures) != 1 || len(second.Signatures) != 2 {
		t.Errorf("len(first) = %d, len(second) = %d, want 1 and 2", len(first.Signatures), len(second.Signatures))
	}
	if _, err := Add(second, blocks[1]); err == nil {
		t.Error("Add accepted an identical block twice")
	}
}

func TestAddRejectsOtherPayload(t *testing.T) {
	_, blocks := fixture(t, party{"alice", "key-a", "secret-a"}, party{"bob", "key-b", "secret-b"})
	envelope := build(t, 2, blocks[0])
	other := blocks[1]
	other.PayloadBytesHash = canonical.SHA256([]byte("other artifact"))
	if _, err := Add(envelope, other); !errors.Is(err, ErrPayloadMismatch) {
		t.Errorf("Add() = %v, want ErrPayloadMismatch", err)
	}
}

func TestDecodeSingleBlockAndEnvelope(t *testing.T) {
	keyring, blocks := fixture(t, party{"alice", "key-a", "secret-a"}, party{"bob", "key-b", "secret-b"})

	single, err := Decode(blocks[0].Encode())
	if err != nil {
		t.Fatalf("Decode(block): %v", err)
	}
	if single.Threshold != 1 || len(single.Signatures) != 1 {
		t.Errorf("Decode(block) = %+v, want threshold 1 with one signature", single)
	}

	envelope := build(t, 2, blocks...)
	decoded, err := Decode(envelope.Encode())
	if err != nil {
		t.Fatalf("Decode(envelope): %v", err)
	}
	if !Verify(decoded, 0, testPayload, keyring).Valid {
		t.Error("decoded envelope does not verify")
	}

	if _, err := Decode([]byte("{not json")); err == nil {
		t.Error("Decode accepted invalid JSON")
	}
}
