// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command framework for the sealrun binary.
//
// Commands form a tree of [Command] values dispatched by name. Each
// command declares a params struct whose tagged fields become pflag
// flags through [FlagsFromParams]; [JSONOutput] adds --json. Unknown
// commands and flags get edit-distance suggestions.
//
// Verdict output goes to stdout through [Printer]: one "[PASS]",
// "[FAIL]", "[WARN]" or "[SKIP]" line per check and a final "RESULT:"
// line, styled with lipgloss on terminals. Logs go to stderr through
// [NewCommandLogger]. A command that has printed its verdict returns an
// [*ExitError] carrying the exit code.
package cli
