// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestBindFlags_BasicTypes(t *testing.T) {
	type params struct {
		Out      string        `flag:"out,o" desc:"output path"`
		Strict   bool          `flag:"strict" desc:"strict mode"`
		Required int           `flag:"require-multisig" desc:"threshold"`
		Timeout  time.Duration `flag:"timeout" desc:"signer timeout"`
		Inputs   []string      `flag:"input" desc:"input files"`
		Untagged string
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	err := flagSet.Parse([]string{
		"-o", "run.json",
		"--strict",
		"--require-multisig", "2",
		"--timeout", "5s",
		"--input", "data/a,b.csv",
		"--input", "data/c.csv",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Out != "run.json" {
		t.Errorf("Out = %q, want run.json", p.Out)
	}
	if !p.Strict {
		t.Error("Strict = false, want true")
	}
	if p.Required != 2 {
		t.Errorf("Required = %d, want 2", p.Required)
	}
	if p.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", p.Timeout)
	}
	if len(p.Inputs) != 2 || p.Inputs[0] != "data/a,b.csv" || p.Inputs[1] != "data/c.csv" {
		t.Errorf("Inputs = %q, want [data/a,b.csv data/c.csv] (paths are not split on commas)", p.Inputs)
	}
	if flagSet.Lookup("untagged") != nil {
		t.Error("untagged field was bound")
	}
}

func TestBindFlags_Defaults(t *testing.T) {
	var p struct {
		Compression string        `flag:"compression" default:"zstd"`
		Limit       int           `flag:"limit" default:"8"`
		Audit       bool          `flag:"audit" default:"true"`
		Timeout     time.Duration `flag:"timeout" default:"30s"`
	}
	flagSet := FlagsFromParams("test", &p)
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Compression != "zstd" || p.Limit != 8 || !p.Audit || p.Timeout != 30*time.Second {
		t.Errorf("defaults = %+v", p)
	}
}

func TestBindFlags_Embedded(t *testing.T) {
	var p struct {
		JSONOutput
		Log string `flag:"log"`
	}
	flagSet := FlagsFromParams("test", &p)
	if err := flagSet.Parse([]string{"--json", "--log", "x"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.OutputJSON || p.Log != "x" {
		t.Errorf("params = %+v, want json and log bound", p)
	}
}

func TestBindFlags_Errors(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(struct{}{}, flagSet); err == nil {
		t.Error("BindFlags accepted a non-pointer")
	}

	var unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported, flagSet); err == nil {
		t.Error("BindFlags accepted an unsupported field type")
	}

	var badDefault struct {
		Count int `flag:"count" default:"many"`
	}
	if err := BindFlags(&badDefault, flagSet); err == nil {
		t.Error("BindFlags accepted an unparseable default")
	}
}
