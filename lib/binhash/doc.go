// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash provides SHA-256 content hashing for files referenced
// by a hash scope, and the parsing rules for "sha256:<hex>" digest
// strings.
//
// The API surface:
//
//   - [HashFile] -- streams a file through SHA-256, returning a [32]byte
//     digest with constant memory usage regardless of file size
//   - [FormatDigest] -- converts a [32]byte digest to the prefixed
//     string form used in manifests, artifacts, and log entries
//   - [ParseDigest] -- parses a digest string (prefixed or bare hex)
//     back to a [32]byte array, validating length and encoding
//   - [HexPart] -- strips and validates the prefix, returning the hex
//
// This package has no dependencies on other sealrun packages.
package binhash
