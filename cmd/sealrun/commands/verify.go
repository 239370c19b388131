// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/signing"
	"github.com/bureau-foundation/sealrun/lib/translog"
	"github.com/bureau-foundation/sealrun/lib/verify"
)

type verifyParams struct {
	configParams
	cli.JSONOutput

	Keyring         string `flag:"verify-signature" desc:"keyring file; requires a valid signature (default: config verify.keyring)"`
	Signatures      string `flag:"signatures" desc:"signature file (default: <artifact>.sig.json when present)"`
	RequireMultisig int    `flag:"require-multisig" desc:"require M valid signatures from distinct signers"`
	Log             string `flag:"verify-transparency" desc:"transparency log the artifact must be recorded in"`
	Checkpoint      string `flag:"checkpoint" desc:"saved log head the log must still extend"`
	InputsRoot      string `flag:"inputs-root" desc:"re-hash every referenced file under this directory (default under --strict: config paths.inputs_root)"`
	Strict          bool   `flag:"strict" desc:"missing referenced files fail (exit 4) instead of warning"`
	Audit           bool   `flag:"audit" desc:"also run the determinism audit"`
}

func verifyCommand(env environment) *cli.Command {
	var params verifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Verify sealed runs offline",
		Description: `Verify the admissibility of one or more sealed runs.

Every check runs and is reported; verification never stops at the first
failure. Independent artifacts are verified concurrently. The verdict is
ADMISSIBLE only when no check fails, together with the highest
admissibility level (L0 to L6) the artifact reaches.

With --strict every file in the hash scope is re-hashed under
--inputs-root, or under config paths.inputs_root when the flag is not
given.

Exit codes: 0 admissible, 1 inadmissible, 2 schema failure, 3 hash
mismatch, 4 missing referenced file under --strict. With several
artifacts the most severe code wins.`,
		Usage: "sealrun verify <artifact>... [flags]",
		Examples: []cli.Example{
			{
				Description: "Verify structure and hashes only",
				Command:     "sealrun verify run.json",
			},
			{
				Description: "Require a logged, 2-of-N signed artifact whose inputs are still on disk",
				Command:     "sealrun verify run.json --verify-signature keyring.yaml --require-multisig 2 --verify-transparency log.ndjson --inputs-root . --strict",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return errors.New("usage: sealrun verify <artifact>... [flags]")
			}
			if params.Signatures != "" && len(args) > 1 {
				return errors.New("--signatures applies to a single artifact")
			}
			return runVerify(env, &params, args)
		},
	}
}

func runVerify(env environment, params *verifyParams, paths []string) error {
	logger := env.log("verify")
	cfg, err := params.load()
	if err != nil {
		return err
	}

	options := verify.Options{
		RequireMultisig:  params.RequireMultisig,
		InputsRoot:       params.InputsRoot,
		Strict:           params.Strict || cfg.Verify.Strict,
		DeterminismAudit: params.Audit,
	}
	options.StrictAudit = options.Strict
	if options.InputsRoot == "" && options.Strict {
		options.InputsRoot = cfg.Paths.InputsRoot
	}
	if options.RequireMultisig == 0 {
		options.RequireMultisig = cfg.Verify.RequireMultisig
	}

	if keyringPath := firstNonEmpty(params.Keyring, cfg.Verify.Keyring); keyringPath != "" {
		keyring, err := signing.LoadKeyring(keyringPath)
		if err != nil {
			return err
		}
		defer keyring.Close()
		options.Keyring = keyring
	}

	if params.Log != "" {
		options.Log = translog.OpenFile(params.Log, env.clock, logger)
	}
	if params.Checkpoint != "" {
		if options.Log == nil {
			return errors.New("--checkpoint requires --verify-transparency")
		}
		checkpoint, err := translog.ReadCheckpoint(params.Checkpoint)
		if err != nil {
			return err
		}
		options.Checkpoint = &checkpoint
	}

	// Reports keep argument order; unreadable artifacts are reported
	// in place without being verified.
	reports := make([]*verify.Report, len(paths))
	var inputs []verify.Input
	var slots []int
	for index, path := range paths {
		data, failed := readArtifact(path)
		if failed != nil {
			reports[index] = failed
			continue
		}
		input := verify.Input{Name: path, Data: data}
		if options.Keyring != nil || options.RequireMultisig > 0 {
			signatures, err := readSignatures(path, params.Signatures)
			if err != nil {
				return err
			}
			input.Signatures = signatures
		}
		inputs = append(inputs, input)
		slots = append(slots, index)
	}

	ctx, stop := signalContext()
	defer stop()
	verified, err := verify.VerifyMany(ctx, inputs, options)
	if err != nil {
		return err
	}
	for index, report := range verified {
		reports[slots[index]] = report
	}

	codes := make([]int, len(reports))
	for index, report := range reports {
		codes[index] = report.ExitCode()
		logger.Info("artifact verified",
			"artifact", report.Artifact,
			"verdict", report.Verdict(),
			"level", report.Level().String(),
			"failed", len(report.Failed()),
		)
	}
	code := worstExit(codes)

	if params.OutputJSON {
		var result any = reports
		if len(reports) == 1 {
			result = reports[0]
		}
		if err := cli.WriteJSON(env.stdout, result); err != nil {
			return err
		}
		return cli.ExitWith(code)
	}

	printer := env.printer()
	for index, report := range reports {
		if index > 0 {
			fmt.Fprintln(env.stdout)
		}
		printer.Report(report)
	}
	return cli.ExitWith(code)
}

// readSignatures returns the explicit signature file, or the artifact's
// sibling .sig.json when it exists, or nil.
func readSignatures(artifactPath, explicit string) ([]byte, error) {
	if explicit != "" {
		data, err := os.ReadFile(explicit)
		if err != nil {
			return nil, fmt.Errorf("reading signatures: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(sealedrun.SignaturePath(artifactPath))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}
