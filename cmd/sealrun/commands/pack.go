// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/pack"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/signing"
	"github.com/bureau-foundation/sealrun/lib/translog"
	"github.com/bureau-foundation/sealrun/lib/verify"
)

func packCommand(env environment) *cli.Command {
	return &cli.Command{
		Name:    "pack",
		Summary: "Build and verify admissibility packs",
		Description: `An admissibility pack is one file carrying everything needed to verify
a sealed run offline: the artifact, its manifest, its signatures, and
the transparency log up to and including its entry. Packs are
deterministic tar archives, optionally compressed with zstd or lz4.`,
		Subcommands: []*cli.Command{
			packBuildCommand(env),
			packVerifyCommand(env),
		},
	}
}

type packBuildParams struct {
	configParams
	cli.JSONOutput

	Out         string `flag:"out" desc:"pack file to write (default: <artifact>.pack)"`
	Compression string `flag:"compression" default:"zstd" desc:"zstd, lz4 or none"`
	Manifest    string `flag:"manifest" desc:"manifest file (default: the run's .manifest.json next to the artifact, when present)"`
	Signatures  string `flag:"signatures" desc:"signature file (default: <artifact>.sig.json, when present)"`
	Log         string `flag:"log" desc:"transparency log to excerpt through the run's entry"`
}

type packBuildResult struct {
	Pack        string   `json:"pack"`
	Compression string   `json:"compression"`
	Members     []string `json:"members"`
	Size        int      `json:"size"`
}

func packBuildCommand(env environment) *cli.Command {
	var params packBuildParams
	return &cli.Command{
		Name:    "build",
		Summary: "Bundle a sealed run into an admissibility pack",
		Usage:   "sealrun pack build <artifact> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("pack build", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: sealrun pack build <artifact> [flags]")
			}
			return runPackBuild(env, &params, args[0])
		},
	}
}

func runPackBuild(env environment, params *packBuildParams, artifactPath string) error {
	logger := env.log("pack/build")
	if _, err := params.load(); err != nil {
		return err
	}
	compression, err := pack.ParseCompression(params.Compression)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	run, err := sealedrun.Decode(data)
	if err != nil {
		return err
	}
	contents := pack.Contents{SealedRun: data}

	manifestPath := params.Manifest
	if manifestPath == "" {
		manifestPath = filepath.Join(filepath.Dir(artifactPath), sealedrun.ManifestName(run))
	}
	if contents.Manifest, err = readOptional(manifestPath, params.Manifest != ""); err != nil {
		return err
	}
	signaturesPath := firstNonEmpty(params.Signatures, sealedrun.SignaturePath(artifactPath))
	if contents.Signatures, err = readOptional(signaturesPath, params.Signatures != ""); err != nil {
		return err
	}

	if params.Log != "" {
		store := translog.OpenFile(params.Log, env.clock, logger)
		located, err := store.Find(run.CommitHash())
		if err != nil {
			return fmt.Errorf("%s: %w", params.Log, err)
		}
		through := 0
		for _, candidate := range located {
			if candidate.Entry.ArtifactBytesHash == run.PayloadBytesHash() {
				through = candidate.Position
			}
		}
		if through == 0 {
			return fmt.Errorf("%s has no entry for the bytes of %s", params.Log, artifactPath)
		}
		if contents.LogExcerpt, err = store.Excerpt(through); err != nil {
			return err
		}
	}

	var buffer bytes.Buffer
	if err := pack.Build(&buffer, contents, compression); err != nil {
		return err
	}
	out := firstNonEmpty(params.Out, artifactPath+".pack")
	if err := sealedrun.WriteNew(out, buffer.Bytes()); err != nil {
		return err
	}

	result := packBuildResult{Pack: out, Compression: compression.String(), Members: []string{pack.SealedRunMember}, Size: buffer.Len()}
	if contents.Manifest != nil {
		result.Members = append(result.Members, pack.ManifestMember)
	}
	if contents.Signatures != nil {
		result.Members = append(result.Members, pack.SignaturesMember)
	}
	if contents.LogExcerpt != nil {
		result.Members = append(result.Members, pack.LogMember)
	}
	logger.Info("pack written", "pack", out, "compression", result.Compression, "members", len(result.Members))

	if done, err := params.EmitJSON(env.stdout, result); done {
		return err
	}
	printer := env.printer()
	printer.Field("pack", out)
	printer.Field("compression", result.Compression)
	printer.Field("members", fmt.Sprint(result.Members))
	printer.Field("size", fmt.Sprintf("%d bytes", result.Size))
	printer.Result(true, "PACKED")
	return nil
}

// readOptional reads path. A missing file is an error only when the
// path was given explicitly.
func readOptional(path string, explicit bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return nil, nil
	}
	return data, err
}

type packVerifyParams struct {
	configParams
	cli.JSONOutput

	Keyring         string `flag:"verify-signature" desc:"keyring file; requires a valid signature (default: config verify.keyring)"`
	RequireMultisig int    `flag:"require-multisig" desc:"require M valid signatures from distinct signers"`
	Strict          bool   `flag:"strict" desc:"strict verification"`
	Audit           bool   `flag:"audit" desc:"also run the determinism audit"`
}

func packVerifyCommand(env environment) *cli.Command {
	var params packVerifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Verify an admissibility pack offline",
		Description: `Open a pack, check every member against its index, and verify the
sealed run with the pack's own signatures and log excerpt. The log
excerpt is verified as a chain from genesis, so the run's entry is
checked without access to the original log.

Exit codes are those of verify. A pack whose members do not match its
index exits 3.`,
		Usage: "sealrun pack verify <pack> [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("pack verify", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: sealrun pack verify <pack> [flags]")
			}
			return runPackVerify(env, &params, args[0])
		},
	}
}

func runPackVerify(env environment, params *packVerifyParams, packPath string) error {
	logger := env.log("pack/verify")
	cfg, err := params.load()
	if err != nil {
		return err
	}

	file, err := os.Open(packPath)
	if err != nil {
		return fmt.Errorf("opening pack: %w", err)
	}
	contents, compression, err := pack.Open(file)
	file.Close()
	if errors.Is(err, pack.ErrCorrupt) {
		printer := env.printer()
		printer.Check(verify.Check{Name: "pack.index", Category: verify.CategoryHash, Status: verify.StatusFail, Detail: err.Error()})
		printer.Result(false, fmt.Sprintf("%s (exit %d)", verify.Inadmissible, verify.ExitHashMismatch))
		return &cli.ExitError{Code: verify.ExitHashMismatch}
	}
	if err != nil {
		return err
	}

	base := verify.Options{
		RequireMultisig:  params.RequireMultisig,
		Strict:           params.Strict || cfg.Verify.Strict,
		DeterminismAudit: params.Audit,
	}
	base.StrictAudit = base.Strict
	if base.RequireMultisig == 0 {
		base.RequireMultisig = cfg.Verify.RequireMultisig
	}
	if keyringPath := firstNonEmpty(params.Keyring, cfg.Verify.Keyring); keyringPath != "" {
		keyring, err := signing.LoadKeyring(keyringPath)
		if err != nil {
			return err
		}
		defer keyring.Close()
		base.Keyring = keyring
	}

	if base.Keyring == nil && base.RequireMultisig == 0 && contents.Signatures != nil {
		// Nothing to check the signatures against; without a keyring
		// they are carried but not verified.
		logger.Info("pack signatures not checked: no keyring", "pack", packPath)
		contents.Signatures = nil
	}

	report := contents.Verify(base, env.clock)
	report.Artifact = packPath
	logger.Info("pack verified",
		"pack", packPath,
		"compression", compression.String(),
		"verdict", report.Verdict(),
		"level", report.Level().String(),
	)

	if done, err := params.EmitJSON(env.stdout, report); done {
		if err != nil {
			return err
		}
		return cli.ExitWith(report.ExitCode())
	}
	env.printer().Report(report)
	return cli.ExitWith(report.ExitCode())
}
