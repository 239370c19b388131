// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/clock"
)

// environment is what every command closes over: where verdicts go,
// the wall clock for excluded timestamp fields, and the logger.
type environment struct {
	stdout io.Writer
	clock  clock.Clock

	// logger is nil in production, where each command builds its own
	// with cli.NewCommandLogger.
	logger *slog.Logger
}

func (e environment) log(command string) *slog.Logger {
	logger := e.logger
	if logger == nil {
		logger = cli.NewCommandLogger()
	}
	return logger.With("command", command)
}

func (e environment) printer() *cli.Printer {
	return cli.NewPrinter(e.stdout)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Root returns the sealrun command tree writing to os.Stdout.
func Root() *cli.Command {
	return newRoot(environment{stdout: os.Stdout, clock: clock.Real()})
}

func newRoot(env environment) *cli.Command {
	return &cli.Command{
		Name: "sealrun",
		Description: `sealrun seals decision runs into tamper-evident artifacts and verifies
their admissibility offline.

A sealed run binds a decision payload and its authority envelope to a
hash scope of every input, prompt, schema and policy file. The commit
hash over that scope is reproducible from the declared inputs alone, so
any verifier can re-derive it without trusting the producer.`,
		Subcommands: []*cli.Command{
			sealCommand(env),
			signCommand(env),
			verifyCommand(env),
			transparencyAppendCommand(env),
			transparencyHeadCommand(env),
			auditCommand(env),
			supersedeCommand(env),
			packCommand(env),
			keyCommand(env),
			versionCommand(env),
		},
	}
}
