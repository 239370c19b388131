// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts and decrypts signing key files with age
// (filippo.io/age).
//
// A sealed key file holds the age ciphertext of a raw key in one of
// three encodings, detected on read: binary age format, ASCII-armored
// age format ("age -a"), or standard base64 of the binary format (what
// [Encrypt] produces and "sealrun key seal" writes). Identities are
// read from age identity files, comments allowed.
//
// Decrypted key material is returned in a [secret.Buffer]; it never
// exists in a Go string or heap slice that outlives the call.
package sealed
