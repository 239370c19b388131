// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonical provides the single deterministic byte
// representation used for every hash taken in sealrun.
//
// Canonical JSON here means: object keys sorted by byte order at every
// depth, no insignificant whitespace, UTF-8 without a BOM, minimal
// string escaping, and numbers in plain decimal with no leading zeros,
// no exponent, and no superfluous trailing fractional zeros. The same
// logical value always produces identical bytes, on any platform and in
// any process.
//
// Values are modeled the way encoding/json decodes with UseNumber:
//
//   - nil, bool, string
//   - json.Number (and Go integer/float kinds, accepted for convenience)
//   - []any
//   - map[string]any
//
// For arbitrary Go values (structs with json tags), use [Marshal], which
// routes the value through encoding/json first and then canonicalizes
// the decoded tree. [Canonicalize] is the low-level function over the
// value model.
//
// Digest strings produced by [SHA256] and [Digest] take the form
// "sha256:<64 lowercase hex>". No other package formats hashes of
// canonical bytes; they all call into this one.
package canonical
