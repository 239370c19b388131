// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Prefix is the algorithm tag on every formatted digest.
const Prefix = "sha256:"

// HashFile computes the SHA-256 digest of the file at path. The file is
// streamed through the hash function in chunks (via io.Copy) to keep
// memory usage constant regardless of file size.
func HashFile(path string) ([32]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return [32]byte{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// FormatDigest returns the "sha256:<hex>" representation of a digest.
func FormatDigest(digest [32]byte) string {
	return Prefix + hex.EncodeToString(digest[:])
}

// ParseDigest parses a digest string into a 32-byte array. Both the
// prefixed form and bare 64-character lowercase hex are accepted.
func ParseDigest(digestString string) ([32]byte, error) {
	var digest [32]byte
	hexString, err := HexPart(digestString)
	if err != nil {
		return digest, err
	}
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing hash digest: %w", err)
	}
	copy(digest[:], decoded)
	return digest, nil
}

// HexPart returns the lowercase hex portion of a digest string after
// validating its shape. Uppercase hex is rejected: digests are compared
// as strings throughout, so a second spelling of the same digest would
// compare unequal.
func HexPart(digestString string) (string, error) {
	hexString := strings.TrimPrefix(digestString, Prefix)
	if len(hexString) != 64 {
		return "", fmt.Errorf("hash digest %q is %d hex characters, want 64", digestString, len(hexString))
	}
	for index := 0; index < len(hexString); index++ {
		character := hexString[index]
		if (character < '0' || character > '9') && (character < 'a' || character > 'f') {
			return "", fmt.Errorf("hash digest %q contains non-lowercase-hex character %q", digestString, character)
		}
	}
	return hexString, nil
}
