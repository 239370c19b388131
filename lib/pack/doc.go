// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pack builds and opens admissibility packs: a single file
// carrying everything needed to verify a sealed run offline.
//
// A pack is a tar archive, optionally compressed as a whole with zstd
// or an LZ4 frame. Its first member is an index (pack.json) listing the
// SHA-256 and size of every other member; [Open] rejects a pack whose
// members do not match the index. Members are:
//
//	pack.json                  index
//	sealed_run.json            the artifact, byte-for-byte as written
//	manifest.json              the standalone hash scope manifest
//	signatures.json            signature block or multisig envelope
//	transparency_log.ndjson    log prefix through the run's entry
//
// Member order and every tar header field are fixed (zero timestamps,
// mode 0644, no owner names) and the compressors run single-threaded,
// so identical contents always produce identical pack bytes.
package pack
