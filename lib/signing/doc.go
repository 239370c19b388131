// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signing produces and verifies signature blocks over sealed
// run bytes.
//
// Every algorithm signs the same message: the ASCII lowercase hex of
// sha256(payload), where payload is the canonical encoding of the
// sealed run with its content hash ([sealedrun.Run.CanonicalBytes]).
// This is also the exact text the external signer protocol writes to
// its temp file, so a hardware or KMS signer and a software signer
// holding the same key produce interchangeable signatures.
//
// Three [Signer] implementations exist:
//
//   - [HMACSigner]: HMAC-SHA256 with a shared secret
//   - [Ed25519Signer]: Ed25519 with a private key
//   - [ExternalSigner]: delegates to a subprocess (see [ExternalSigner]
//     for the protocol)
//
// Key material lives in [secret.Buffer] values. [LoadSigningKey] reads
// base64 raw keys, OpenSSH Ed25519 private keys, and age-sealed key
// files. [LoadKeyring] reads the YAML keyring verifiers use.
//
// A [Block] is created once and never modified. Adding a signature
// means producing a new block (and, for multisig, a new envelope).
package signing
