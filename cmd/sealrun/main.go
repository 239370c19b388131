// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command sealrun seals, signs, logs and verifies decision runs.
package main

import (
	"os"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/commands"
	"github.com/bureau-foundation/sealrun/lib/process"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}
