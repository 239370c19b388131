// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the sealrun build version. Values are
// injected at build time with -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/sealrun/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/sealrun
//
// The version is printed by "sealrun version". It is never written
// into sealed runs: an artifact's hashes must not depend on which
// build sealed it.
package version
