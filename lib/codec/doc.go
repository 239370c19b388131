// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is sealrun's CBOR configuration.
//
// JSON is the format of everything an auditor reads: sealed runs,
// manifests, signature files, and the transparency log. CBOR is used
// for machine-only state, currently the transparency log checkpoint
// files written by "sealrun transparency-head --write-checkpoint".
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items, so
// the same checkpoint always encodes to the same bytes. Struct fields
// use cbor tags; types without them fall back to json tags.
package codec
