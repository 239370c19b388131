// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/detid"
	"github.com/bureau-foundation/sealrun/lib/hashscope"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/verify"
)

type sealParams struct {
	configParams
	cli.JSONOutput

	Payload       string   `flag:"payload" desc:"decision payload (JSON or JSONC)"`
	Envelope      string   `flag:"envelope" desc:"authority envelope template (JSON or JSONC)"`
	Clock         string   `flag:"clock" desc:"explicit RFC 3339 UTC clock, e.g. 2026-02-21T00:00:00Z"`
	Deterministic bool     `flag:"deterministic" desc:"mark the run deterministic (requires --clock)"`
	Inputs        []string `flag:"input" desc:"input file (repeatable)"`
	InputDirs     []string `flag:"input-dir" desc:"directory whose files are all inputs (repeatable)"`
	Prompts       []string `flag:"prompt" desc:"prompt file (repeatable)"`
	Schemas       []string `flag:"schema" desc:"schema file (repeatable)"`
	Policies      []string `flag:"policy" desc:"policy file (repeatable)"`
	Root          string   `flag:"root" desc:"directory relative file paths resolve against (default: config paths.inputs_root)"`
	OutDir        string   `flag:"out-dir" desc:"directory to write the artifact and manifest (default: config paths.out_dir)"`
	Exclude       []string `flag:"exclude" desc:"additional payload field excluded from the commit hash (repeatable)"`
	Commitments   bool     `flag:"commitments" desc:"attach per-category Merkle commitments"`
	Strict        bool     `flag:"strict" desc:"fail on a missing declared file instead of omitting it"`
}

type sealResult struct {
	RunID       string   `json:"run_id"`
	CommitHash  string   `json:"commit_hash"`
	ContentHash string   `json:"content_hash"`
	Artifact    string   `json:"artifact"`
	Manifest    string   `json:"manifest"`
	Warnings    []string `json:"warnings"`
}

func sealCommand(env environment) *cli.Command {
	var params sealParams
	return &cli.Command{
		Name:    "seal",
		Summary: "Seal a decision payload into an artifact",
		Description: `Seal a decision payload and authority envelope into a sealed run.

Every declared file is hashed into the hash scope. The commit hash is
computed over the canonical scope, and the run ID is derived from it, so
two seals of the same inputs with the same --clock produce the same
commit hash and run ID. The artifact and a standalone manifest are
written as new files; existing files are never overwritten.

Exit codes: 0 sealed, 1 error, 2 invalid envelope or scope, 4 missing
declared file under --strict.`,
		Usage: "sealrun seal --payload FILE --envelope FILE --clock RFC3339 [flags]",
		Examples: []cli.Example{
			{
				Description: "Seal a deterministic run over one input and one policy",
				Command:     "sealrun seal --payload decision.jsonc --envelope envelope.jsonc --clock 2026-02-21T00:00:00Z --deterministic --input data/h1.txt --policy policy.yaml --commitments",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("seal", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runSeal(env, &params)
		},
	}
}

func runSeal(env environment, params *sealParams) error {
	logger := env.log("seal")
	if params.Payload == "" || params.Envelope == "" {
		return errors.New("--payload and --envelope are required")
	}
	cfg, err := params.load()
	if err != nil {
		return err
	}
	root := firstNonEmpty(params.Root, cfg.Paths.InputsRoot)
	outDir := firstNonEmpty(params.OutDir, cfg.Paths.OutDir)

	payloadJSON, err := readAuthored(params.Payload)
	if err != nil {
		return fmt.Errorf("reading payload: %w", err)
	}
	payload, err := canonical.Parse(payloadJSON)
	if err != nil {
		return fmt.Errorf("payload %s: %w", params.Payload, err)
	}

	envelopeJSON, err := readAuthored(params.Envelope)
	if err != nil {
		return fmt.Errorf("reading envelope: %w", err)
	}
	var envelope sealedrun.AuthorityEnvelope
	if err := decodeStrict(envelopeJSON, &envelope); err != nil {
		return sealFailure(env, fmt.Sprintf("envelope %s: %v", params.Envelope, err), verify.ExitStructural)
	}

	inputs := append([]string{}, params.Inputs...)
	for _, dir := range params.InputDirs {
		absolute, err := filepath.Abs(filepath.Join(root, dir))
		if err != nil {
			return err
		}
		files, err := hashscope.ExpandDirectory(absolute, "")
		if err != nil {
			return err
		}
		inputs = append(inputs, files...)
	}

	scope, warnings, err := hashscope.Build(hashscope.Request{
		Root:          root,
		Clock:         params.Clock,
		Deterministic: params.Deterministic,
		Inputs:        inputs,
		Prompts:       params.Prompts,
		Schemas:       params.Schemas,
		Policies:      params.Policies,
		Exclusions:    params.Exclude,
		Payload:       payload,
		Strict:        params.Strict || cfg.Verify.Strict,
	})
	if errors.Is(err, hashscope.ErrMissingInput) {
		return sealFailure(env, err.Error(), verify.ExitMissingFile)
	}
	if err != nil {
		return sealFailure(env, err.Error(), verify.ExitStructural)
	}
	warningText := make([]string, 0, len(warnings))
	for _, warning := range warnings {
		logger.Warn("declared file omitted from hash scope", "category", warning.Category, "path", warning.Path)
		warningText = append(warningText, warning.String())
	}

	commitHash, err := detid.CommitHash(scope)
	if err != nil {
		return err
	}
	clock := ""
	if scope.Parameters.Clock != nil {
		clock = *scope.Parameters.Clock
	}
	manifestName := sealedrun.BaseName(detid.RunID(commitHash), clock) + sealedrun.ManifestSuffix

	run, err := sealedrun.Seal(sealedrun.Request{
		Envelope:         envelope,
		Payload:          payload,
		Scope:            scope,
		Commitments:      params.Commitments,
		ArtifactsEmitted: []string{manifestName},
		ObservedAt:       env.clock.Now(),
	})
	var envelopeError *sealedrun.EnvelopeError
	if errors.As(err, &envelopeError) {
		// Policy outcomes (a failed gate, no enforcement) are
		// inadmissible; any missing or malformed field is structural.
		code := verify.ExitInadmissible
		printer := env.printer()
		for _, violation := range envelopeError.Violations {
			check := verify.Check{Name: "authority_envelope.enforcement", Category: verify.CategoryLogic, Status: verify.StatusFail, Detail: violation.String()}
			if violation.Kind == sealedrun.Structural {
				check.Name, check.Category = "authority_envelope", verify.CategoryStructural
				code = verify.ExitStructural
			}
			printer.Check(check)
		}
		printer.Result(false, fmt.Sprintf("SEAL FAILED (exit %d)", code))
		return &cli.ExitError{Code: code}
	}
	if err != nil {
		return err
	}

	manifestData, err := indented(sealedrun.ManifestFile{
		SealedRun:  sealedrun.FileName(run),
		RunID:      run.RunID(),
		CommitHash: run.CommitHash(),
		HashScope:  scope,
	})
	if err != nil {
		return err
	}

	artifactPath := filepath.Join(outDir, sealedrun.FileName(run))
	manifestPath := filepath.Join(outDir, manifestName)
	if err := sealedrun.WriteNew(artifactPath, run.Indented()); err != nil {
		return err
	}
	if err := sealedrun.WriteNew(manifestPath, manifestData); err != nil {
		return err
	}
	logger.Info("sealed run written",
		"run_id", run.RunID(),
		"commit_hash", run.CommitHash(),
		"artifact", artifactPath,
	)

	result := sealResult{
		RunID:       run.RunID(),
		CommitHash:  run.CommitHash(),
		ContentHash: run.ContentHash(),
		Artifact:    artifactPath,
		Manifest:    manifestPath,
		Warnings:    warningText,
	}
	if done, err := params.EmitJSON(env.stdout, result); done {
		return err
	}
	printer := env.printer()
	for _, warning := range warningText {
		printer.Check(verify.Check{Name: "hash_scope.files", Status: verify.StatusWarn, Detail: warning})
	}
	printer.Field("run_id", result.RunID)
	printer.Field("commit_hash", result.CommitHash)
	printer.Field("content_hash", result.ContentHash)
	printer.Field("artifact", result.Artifact)
	printer.Field("manifest", result.Manifest)
	printer.Result(true, "SEALED")
	return nil
}

// sealFailure prints a failed seal verdict and returns its exit code.
func sealFailure(env environment, detail string, code int) error {
	printer := env.printer()
	printer.Check(verify.Check{Name: "seal", Status: verify.StatusFail, Detail: detail})
	printer.Result(false, fmt.Sprintf("SEAL FAILED (exit %d)", code))
	return &cli.ExitError{Code: code}
}
