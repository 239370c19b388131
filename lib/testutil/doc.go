// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for sealrun packages.
//
// [WriteFile] and [ReadFile] manage fixture files under t.TempDir().
// [Logger] returns a discarding *slog.Logger for library calls whose
// log output a test does not inspect.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no sealrun-internal dependencies.
package testutil
