// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/multisig"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/translog"
	"github.com/bureau-foundation/sealrun/lib/verify"
)

type transparencyAppendParams struct {
	configParams
	cli.JSONOutput

	Log          string `flag:"log" desc:"transparency log file (default: config paths.transparency_log)"`
	SigningKeyID string `flag:"signing-key-id" desc:"key ID recorded in the entry (default: first block of <artifact>.sig.json)"`
	VerifyOnly   bool   `flag:"verify-only" desc:"check the chain and the artifact's entry without appending"`
}

type appendResult struct {
	Entry    translog.Entry `json:"entry"`
	Position int            `json:"position"`
}

func transparencyAppendCommand(env environment) *cli.Command {
	var params transparencyAppendParams
	return &cli.Command{
		Name:    "transparency-append",
		Summary: "Record a sealed run in the transparency log",
		Description: `Append a sealed run to a hash-chained, append-only transparency log.

Each entry records the run ID, the commit hash and the hash of the
artifact's canonical bytes, and chains to the previous entry's hash.
The chain is verified before anything is written; a broken chain or an
artifact that is already logged is refused. Concurrent appenders are
serialized with an exclusive lock on <log>.lock.

With --verify-only nothing is written: the chain is walked and the
artifact's entry looked up.`,
		Usage: "sealrun transparency-append <artifact> [flags]",
		Examples: []cli.Example{
			{
				Description: "Log a signed run",
				Command:     "sealrun transparency-append run.json --log transparency_log.ndjson",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("transparency-append", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: sealrun transparency-append <artifact> [flags]")
			}
			return runTransparencyAppend(env, &params, args[0])
		},
	}
}

func runTransparencyAppend(env environment, params *transparencyAppendParams, artifactPath string) error {
	logger := env.log("transparency-append")
	cfg, err := params.load()
	if err != nil {
		return err
	}
	logPath := firstNonEmpty(params.Log, cfg.Paths.TransparencyLog)
	if logPath == "" {
		return errors.New("--log is required")
	}

	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	run, err := sealedrun.Decode(data)
	if err != nil {
		return err
	}
	if run.CommitHash() == "" || run.RunID() == "" {
		return fmt.Errorf("%s is not a sealed run (no commit_hash or run_id)", artifactPath)
	}
	store := translog.OpenFile(logPath, env.clock, logger)
	printer := env.printer()

	if params.VerifyOnly {
		report := &verify.Report{Artifact: artifactPath, RunID: run.RunID(), CommitHash: run.CommitHash()}
		chain, err := store.VerifyChain()
		if err != nil {
			return err
		}
		report.Append(chainCheck(chain))
		report.Append(entryCheck(store, run))
		if done, err := params.EmitJSON(env.stdout, report); done {
			if err != nil {
				return err
			}
			return cli.ExitWith(report.ExitCode())
		}
		for _, check := range report.Checks {
			printer.Check(check)
		}
		if report.Verdict() == verify.Admissible {
			printer.Result(true, "LOG VERIFIED")
		} else {
			printer.Result(false, fmt.Sprintf("LOG VERIFICATION FAILED (exit %d)", report.ExitCode()))
		}
		return cli.ExitWith(report.ExitCode())
	}

	keyID := params.SigningKeyID
	if keyID == "" {
		keyID = signingKeyIDOf(sealedrun.SignaturePath(artifactPath))
	}

	ctx, stop := signalContext()
	defer stop()
	entry, err := store.Append(ctx, translog.Record{
		RunID:             run.RunID(),
		CommitHash:        run.CommitHash(),
		ArtifactBytesHash: run.PayloadBytesHash(),
		SigningKeyID:      keyID,
	})
	switch {
	case errors.Is(err, translog.ErrChainBroken):
		printer.Check(verify.Check{Name: "transparency.chain", Status: verify.StatusFail, Detail: err.Error()})
		printer.Result(false, "APPEND REFUSED (exit 1)")
		return &cli.ExitError{Code: verify.ExitInadmissible}
	case errors.Is(err, translog.ErrDuplicateEntry):
		printer.Check(verify.Check{Name: "transparency.entry", Status: verify.StatusFail, Detail: err.Error()})
		printer.Result(false, "APPEND REFUSED (exit 1)")
		return &cli.ExitError{Code: verify.ExitInadmissible}
	case err != nil:
		return err
	}

	result := appendResult{Entry: entry}
	located, err := store.Find(entry.CommitHash)
	if err != nil {
		return err
	}
	for _, candidate := range located {
		if candidate.Entry.EntryID == entry.EntryID {
			result.Position = candidate.Position
		}
	}
	if done, err := params.EmitJSON(env.stdout, result); done {
		return err
	}
	printer.Field("entry_id", entry.EntryID)
	printer.Field("position", fmt.Sprint(result.Position))
	printer.Field("run_id", entry.RunID)
	printer.Field("entry_hash", entry.EntryHash)
	printer.Field("prev_entry_hash", entry.PrevEntryHash)
	printer.Field("log", logPath)
	printer.Result(true, "APPENDED")
	return nil
}

// chainCheck turns a chain walk into a report check.
func chainCheck(chain translog.ChainResult) verify.Check {
	check := verify.Check{Name: "transparency.chain", Category: verify.CategoryChain, Status: verify.StatusPass}
	if chain.Valid {
		check.Detail = fmt.Sprintf("%d entries chain from genesis", chain.Entries)
		return check
	}
	check.Status = verify.StatusFail
	check.Detail = fmt.Sprintf("chain broken at entry %d: %s", chain.BrokenAt, chain.Reason)
	return check
}

// entryCheck looks up the run's entry and confirms it records these
// artifact bytes.
func entryCheck(store translog.LogStore, run *sealedrun.Run) verify.Check {
	check := verify.Check{Name: "transparency.entry", Category: verify.CategoryChain, Status: verify.StatusFail}
	located, err := store.Find(run.CommitHash())
	if err != nil {
		check.Detail = err.Error()
		return check
	}
	for _, candidate := range located {
		if candidate.Entry.ArtifactBytesHash == run.PayloadBytesHash() {
			check.Status = verify.StatusPass
			check.Detail = fmt.Sprintf("entry %s at position %d", candidate.Entry.EntryID, candidate.Position)
			return check
		}
	}
	check.Detail = fmt.Sprintf("%d entries for commit hash, none for these artifact bytes", len(located))
	return check
}

// signingKeyIDOf returns the key ID of the first signature in the
// signature file at path, or "" when there is none.
func signingKeyIDOf(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	envelope, err := multisig.Decode(data)
	if err != nil || len(envelope.Signatures) == 0 {
		return ""
	}
	return envelope.Signatures[0].SigningKeyID
}

type transparencyHeadParams struct {
	configParams
	cli.JSONOutput

	Log             string `flag:"log" desc:"transparency log file (default: config paths.transparency_log)"`
	WriteCheckpoint string `flag:"write-checkpoint" desc:"save the head to this CBOR checkpoint file"`
	Checkpoint      string `flag:"checkpoint" desc:"require the log to extend this saved checkpoint"`
}

type headResult struct {
	Head       translog.Head        `json:"head"`
	Chain      translog.ChainResult `json:"chain"`
	Checkpoint string               `json:"checkpoint,omitempty"`
	Extends    *bool                `json:"extends_checkpoint,omitempty"`
}

func transparencyHeadCommand(env environment) *cli.Command {
	var params transparencyHeadParams
	return &cli.Command{
		Name:    "transparency-head",
		Summary: "Show, save or check the transparency log head",
		Description: `Summarize a transparency log: entry count, last entry, and the digest
of the whole log. The chain is verified on every call.

A head saved with --write-checkpoint can later be passed to --checkpoint
(here or to verify) to prove the log has only been appended to since:
truncation or any rewrite of an earlier line is detected.`,
		Usage: "sealrun transparency-head [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("transparency-head", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			return runTransparencyHead(env, &params)
		},
	}
}

func runTransparencyHead(env environment, params *transparencyHeadParams) error {
	logger := env.log("transparency-head")
	cfg, err := params.load()
	if err != nil {
		return err
	}
	logPath := firstNonEmpty(params.Log, cfg.Paths.TransparencyLog)
	if logPath == "" {
		return errors.New("--log is required")
	}
	store := translog.OpenFile(logPath, env.clock, logger)

	chain, err := store.VerifyChain()
	if err != nil {
		return err
	}
	head, err := store.Head()
	if err != nil {
		return err
	}
	report := &verify.Report{Artifact: logPath}
	report.Append(chainCheck(chain))
	result := headResult{Head: head, Chain: chain}

	if params.Checkpoint != "" {
		checkpoint, err := translog.ReadCheckpoint(params.Checkpoint)
		if err != nil {
			return err
		}
		check := verify.Check{Name: "transparency.checkpoint", Category: verify.CategoryChain, Status: verify.StatusPass,
			Detail: fmt.Sprintf("log extends checkpoint of %d entries", checkpoint.Entries)}
		extends := true
		if err := translog.VerifyCheckpoint(store, checkpoint); err != nil {
			check.Status = verify.StatusFail
			check.Detail = err.Error()
			extends = false
		}
		report.Append(check)
		result.Extends = &extends
	}

	if params.WriteCheckpoint != "" && report.Verdict() == verify.Admissible {
		if err := translog.WriteCheckpoint(params.WriteCheckpoint, head); err != nil {
			return err
		}
		result.Checkpoint = params.WriteCheckpoint
		logger.Info("checkpoint written", "path", params.WriteCheckpoint, "entries", head.Entries)
	}

	if done, err := params.EmitJSON(env.stdout, result); done {
		if err != nil {
			return err
		}
		return cli.ExitWith(report.ExitCode())
	}
	printer := env.printer()
	for _, check := range report.Checks {
		printer.Check(check)
	}
	printer.Field("entries", fmt.Sprint(head.Entries))
	if head.Entries > 0 {
		printer.Field("last_entry_id", head.LastEntryID)
		printer.Field("last_entry_hash", head.LastEntryHash)
	}
	printer.Field("log_sha256", head.LogSHA256)
	if result.Checkpoint != "" {
		printer.Field("checkpoint", result.Checkpoint)
	}
	if report.Verdict() == verify.Admissible {
		printer.Result(true, "LOG INTACT")
	} else {
		printer.Result(false, fmt.Sprintf("LOG BROKEN (exit %d)", report.ExitCode()))
	}
	return cli.ExitWith(report.ExitCode())
}
