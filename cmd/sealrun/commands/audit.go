// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/verify"
)

type auditParams struct {
	configParams
	cli.JSONOutput

	Strict bool `flag:"strict" desc:"treat every warning as a failure"`
}

func auditCommand(env environment) *cli.Command {
	var params auditParams
	return &cli.Command{
		Name:    "determinism-audit",
		Summary: "Audit a sealed run for nondeterminism",
		Description: `Check that a sealed run could be reproduced: a hash scope with a fixed
clock and the deterministic flag, observed_at excluded from hashing, a
run ID derived from the commit hash, no random UUIDs, committed_at equal
to the clock, and input commitments present.

Soft findings are warnings unless --strict (or a production config) is
in effect. A UUID in an identifier field always fails.`,
		Usage: "sealrun determinism-audit <artifact> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("determinism-audit", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: sealrun determinism-audit <artifact> [flags]")
			}
			return runAudit(env, &params, args[0])
		},
	}
}

func runAudit(env environment, params *auditParams, artifactPath string) error {
	logger := env.log("determinism-audit")
	cfg, err := params.load()
	if err != nil {
		return err
	}

	data, report := readArtifact(artifactPath)
	if report == nil {
		report = verify.Audit(data, params.Strict || cfg.Verify.Strict)
		report.Artifact = artifactPath
	}
	logger.Info("determinism audit finished",
		"artifact", artifactPath,
		"failed", len(report.Failed()),
		"warnings", report.Count(verify.StatusWarn),
	)

	if done, err := params.EmitJSON(env.stdout, report); done {
		if err != nil {
			return err
		}
		return cli.ExitWith(report.ExitCode())
	}
	printer := env.printer()
	fmt.Fprintf(env.stdout, "== %s\n", artifactPath)
	for _, check := range report.Checks {
		printer.Check(check)
	}
	if report.Verdict() == verify.Admissible {
		printer.Result(true, "DETERMINISM PASS")
	} else {
		printer.Result(false, fmt.Sprintf("DETERMINISM FAIL (exit %d)", report.ExitCode()))
	}
	return cli.ExitWith(report.ExitCode())
}
