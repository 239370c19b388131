// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "sealrun",
		Subcommands: []*Command{
			{Name: "seal", Run: func(args []string) error { called = "seal"; return nil }},
			{Name: "verify", Run: func(args []string) error { called = "verify"; return nil }},
		},
	}

	if err := root.Execute([]string{"verify"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "verify" {
		t.Errorf("dispatched to %q, want %q", called, "verify")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "sealrun",
		Subcommands: []*Command{
			{
				Name: "pack",
				Subcommands: []*Command{
					{
						Name: "build",
						Run: func(args []string) error {
							called = "pack build"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"pack", "build", "run.json"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "pack build" {
		t.Errorf("dispatched to %q, want %q", called, "pack build")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "run.json" {
		t.Errorf("args = %v, want [run.json]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var params struct {
		Log    string `flag:"log" desc:"log path"`
		Strict bool   `flag:"strict"`
	}
	var receivedArgs []string

	command := &Command{
		Name:  "verify",
		Flags: func() *pflag.FlagSet { return FlagsFromParams("verify", &params) },
		Run: func(args []string) error {
			receivedArgs = args
			return nil
		},
	}

	if err := command.Execute([]string{"a.json", "--log", "/tmp/log.ndjson", "--strict", "b.json"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if params.Log != "/tmp/log.ndjson" {
		t.Errorf("log = %q, want /tmp/log.ndjson", params.Log)
	}
	if !params.Strict {
		t.Error("strict = false, want true")
	}
	if strings.Join(receivedArgs, " ") != "a.json b.json" {
		t.Errorf("args = %v, want [a.json b.json]", receivedArgs)
	}
}

func TestCommand_Execute_UnknownCommandSuggests(t *testing.T) {
	root := &Command{
		Name: "sealrun",
		Subcommands: []*Command{
			{Name: "verify", Run: func(args []string) error { return nil }},
			{Name: "supersede", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"verfy"})
	if err == nil {
		t.Fatal("Execute() = nil, want unknown command error")
	}
	if !strings.Contains(err.Error(), `did you mean "verify"`) {
		t.Errorf("error = %q, want a suggestion for verify", err)
	}

	err = root.Execute([]string{"xyzzy"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want unknown command without suggestion", err)
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	var params struct {
		Strict bool `flag:"strict"`
	}
	command := &Command{
		Name:  "verify",
		Flags: func() *pflag.FlagSet { return FlagsFromParams("verify", &params) },
		Run:   func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--strcit"})
	if err == nil {
		t.Fatal("Execute() = nil, want unknown flag error")
	}
	if !strings.Contains(err.Error(), "did you mean --strict?") {
		t.Errorf("error = %q, want a suggestion for --strict", err)
	}
}

func TestCommand_Execute_Help(t *testing.T) {
	var help bytes.Buffer
	var params struct {
		Reason string `flag:"reason" desc:"why the run is superseded"`
	}
	ran := false
	root := &Command{
		Name:       "sealrun",
		HelpOutput: &help,
		Subcommands: []*Command{
			{
				Name:     "supersede",
				Summary:  "record a correction",
				Usage:    "sealrun supersede <original> <replacement> [flags]",
				Examples: []Example{{Description: "replace a run", Command: "sealrun supersede a.json b.json --reason typo"}},
				Flags:    func() *pflag.FlagSet { return FlagsFromParams("supersede", &params) },
				Run:      func(args []string) error { ran = true; return nil },
			},
		},
	}

	if err := root.Execute([]string{"supersede", "--help"}); err != nil {
		t.Fatalf("Execute(--help) error: %v", err)
	}
	if ran {
		t.Error("--help ran the command")
	}
	for _, want := range []string{"sealrun supersede <original>", "--reason", "why the run is superseded", "# replace a run"} {
		if !strings.Contains(help.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, help.String())
		}
	}

	help.Reset()
	if err := root.Execute(nil); err == nil {
		t.Error("Execute(nil) on a command group = nil, want subcommand required")
	}
	if !strings.Contains(help.String(), "supersede") || !strings.Contains(help.String(), "record a correction") {
		t.Errorf("group help missing subcommand listing:\n%s", help.String())
	}
}

func TestExitWith(t *testing.T) {
	if err := ExitWith(0); err != nil {
		t.Errorf("ExitWith(0) = %v, want nil", err)
	}
	var exitError *ExitError
	if err := ExitWith(3); !errors.As(err, &exitError) || exitError.ExitCode() != 3 {
		t.Errorf("ExitWith(3) = %v, want ExitError code 3", err)
	}
}
