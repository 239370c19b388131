// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint error handler.
//
// [Fatal] is the one place a sealrun binary writes raw text to stderr
// and exits. Verdict errors carry an exit code (1 through 4) and are
// reported with it; any other error exits 1.
package process
