// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds signing key material in memory outside the Go
// heap.
//
// [Buffer] allocates with mmap(MAP_ANONYMOUS), locks the pages with
// mlock so they never reach swap, and marks them MADV_DONTDUMP so they
// never reach a core dump. Close zeroes, unlocks, and unmaps. HMAC
// secrets and Ed25519 private keys loaded by lib/signing live in
// Buffers for as long as the signer or keyring holding them.
//
// [ReadFromPath] loads a key file (or stdin) straight into a Buffer and
// zeroes the heap copy it read through.
package secret
