// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/bureau-foundation/sealrun/lib/canonical"
)

// Verification errors. [Verify] wraps exactly one of these.
var (
	ErrUnknownKey           = errors.New("unknown signing key")
	ErrInvalidSignature     = errors.New("signature does not verify")
	ErrPayloadHashMismatch  = errors.New("payload_bytes_hash does not match the artifact")
	ErrCommitHashMismatch   = errors.New("commit_hash does not match the artifact")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
)

// Verify checks a block against canonical sealed run bytes: the block
// must be bound to this payload and commit hash, name a key in the
// keyring with a matching algorithm, and carry a valid signature.
func Verify(block Block, payload []byte, keyring *Keyring) error {
	if block.Algorithm != AlgorithmHMAC && block.Algorithm != AlgorithmEd25519 {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, block.Algorithm)
	}
	if actual := canonical.SHA256(payload); block.PayloadBytesHash != actual {
		return fmt.Errorf("%w: block has %s, artifact is %s", ErrPayloadHashMismatch, block.PayloadBytesHash, actual)
	}
	if actual := gjson.GetBytes(payload, "commit_hash").String(); block.CommitHash != actual {
		return fmt.Errorf("%w: block has %s, artifact has %s", ErrCommitHashMismatch, block.CommitHash, actual)
	}

	key, ok := keyring.Lookup(block.SigningKeyID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, block.SigningKeyID)
	}
	if key.Algorithm != block.Algorithm {
		return fmt.Errorf("%w: key %q is %s, block is %s", ErrInvalidSignature, block.SigningKeyID, key.Algorithm, block.Algorithm)
	}

	signature, err := base64.StdEncoding.DecodeString(block.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not base64", ErrInvalidSignature)
	}
	message := Message(payload)

	switch block.Algorithm {
	case AlgorithmHMAC:
		if key.Secret == nil {
			return fmt.Errorf("%w: key %q has no shared secret", ErrUnknownKey, block.SigningKeyID)
		}
		mac := hmac.New(sha256.New, key.Secret.Bytes())
		mac.Write(message)
		if !hmac.Equal(mac.Sum(nil), signature) {
			return fmt.Errorf("%w: hmac-sha256 with key %q", ErrInvalidSignature, block.SigningKeyID)
		}
	case AlgorithmEd25519:
		if len(key.PublicKey) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: key %q has no ed25519 public key", ErrUnknownKey, block.SigningKeyID)
		}
		if !ed25519.Verify(key.PublicKey, message, signature) {
			return fmt.Errorf("%w: ed25519 with key %q", ErrInvalidSignature, block.SigningKeyID)
		}
	}
	return nil
}
