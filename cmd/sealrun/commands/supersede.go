// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/verify"
)

type supersedeParams struct {
	configParams
	cli.JSONOutput

	Reason string `flag:"reason" desc:"why the original is superseded (required)"`
	Out    string `flag:"out" desc:"correction record file (default: <supersession_id>.json next to the original)"`
}

func supersedeCommand(env environment) *cli.Command {
	var params supersedeParams
	return &cli.Command{
		Name:    "supersede",
		Summary: "Record that one sealed run replaces another",
		Description: `Write a correction record linking an original sealed run to its
replacement. Sealed runs are never edited: the original stays on disk
and remains verifiable, and the record names both by content hash.

Both artifacts must verify before a record is written.`,
		Usage: "sealrun supersede <original> <replacement> --reason TEXT [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("supersede", &params)
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return errors.New("usage: sealrun supersede <original> <replacement> --reason TEXT [flags]")
			}
			if params.Reason == "" {
				return errors.New("--reason is required")
			}
			return runSupersede(env, &params, args[0], args[1])
		},
	}
}

func runSupersede(env environment, params *supersedeParams, originalPath, replacementPath string) error {
	logger := env.log("supersede")
	if _, err := params.load(); err != nil {
		return err
	}

	runs := make([]*sealedrun.Run, 2)
	for index, path := range []string{originalPath, replacementPath} {
		data, report := readArtifact(path)
		if report == nil {
			report = verify.Verify(data, verify.Options{})
			report.Artifact = path
		}
		if report.Verdict() != verify.Admissible {
			env.printer().Report(report)
			return &cli.ExitError{Code: report.ExitCode()}
		}
		run, err := sealedrun.Decode(data)
		if err != nil {
			return err
		}
		runs[index] = run
	}

	record, err := sealedrun.Supersede(runs[0], runs[1], params.Reason, env.clock.Now())
	if err != nil {
		return err
	}
	data, err := indented(record)
	if err != nil {
		return err
	}
	out := firstNonEmpty(params.Out, filepath.Join(filepath.Dir(originalPath), record.SupersessionID+".json"))
	if err := sealedrun.WriteNew(out, data); err != nil {
		return err
	}
	logger.Info("supersession recorded",
		"supersession_id", record.SupersessionID,
		"supersedes", record.SupersedesRunID,
		"superseded_by", record.SupersededByRunID,
	)

	if done, err := params.EmitJSON(env.stdout, record); done {
		return err
	}
	printer := env.printer()
	printer.Field("supersession_id", record.SupersessionID)
	printer.Field("supersedes", fmt.Sprintf("%s (%s)", record.SupersedesRunID, record.Supersedes))
	printer.Field("superseded_by", fmt.Sprintf("%s (%s)", record.SupersededByRunID, record.SupersededBy))
	printer.Field("record", out)
	printer.Result(true, "SUPERSEDED")
	return nil
}
