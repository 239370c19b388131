// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/version"
)

func versionCommand(env environment) *cli.Command {
	var params struct {
		Full bool `flag:"full" desc:"include Go toolchain and platform"`
	}
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("version", &params)
		},
		Run: func(args []string) error {
			if params.Full {
				fmt.Fprintf(env.stdout, "sealrun %s\n", version.Full())
				return nil
			}
			fmt.Fprintf(env.stdout, "sealrun %s\n", version.Info())
			return nil
		},
	}
}
