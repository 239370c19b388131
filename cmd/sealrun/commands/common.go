// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/config"
	"github.com/bureau-foundation/sealrun/lib/verify"
)

// configParams adds --config to a command.
type configParams struct {
	ConfigPath string `flag:"config" desc:"config file (default: $SEALRUN_CONFIG, else built-in defaults)"`
}

func (p configParams) load() (*config.Config, error) {
	cfg, err := config.Resolve(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// readAuthored reads a hand-written JSON or JSONC document (payloads,
// envelope templates) and returns it as standard JSON. Comments and
// trailing commas are removed; nothing else changes.
func readAuthored(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	standard := jsonc.ToJSON(data)
	if !json.Valid(standard) {
		return nil, fmt.Errorf("%s is not valid JSON or JSONC", path)
	}
	return standard, nil
}

// decodeStrict unmarshals JSON into target, rejecting unknown fields.
func decodeStrict(data []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

// indented returns the canonical encoding of value with two-space
// indentation and a trailing newline.
func indented(value any) ([]byte, error) {
	data, err := canonical.Marshal(value)
	if err != nil {
		return nil, err
	}
	var buffer bytes.Buffer
	if err := json.Indent(&buffer, data, "", "  "); err != nil {
		return nil, err
	}
	buffer.WriteByte('\n')
	return buffer.Bytes(), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

// exitPrecedence orders exit codes from most to least severe when
// several artifacts are verified in one invocation.
var exitPrecedence = []int{
	verify.ExitMissingFile,
	verify.ExitStructural,
	verify.ExitHashMismatch,
	verify.ExitInadmissible,
}

// worstExit returns the most severe exit code among codes.
func worstExit(codes []int) int {
	for _, candidate := range exitPrecedence {
		for _, code := range codes {
			if code == candidate {
				return code
			}
		}
	}
	return verify.ExitAdmissible
}

// readArtifact reads an artifact file. A missing or unreadable file is
// reported as a failed io check so it flows through the same verdict
// and exit code path as every other failure.
func readArtifact(path string) ([]byte, *verify.Report) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	report := &verify.Report{Artifact: path}
	detail := err.Error()
	if errors.Is(err, os.ErrNotExist) {
		detail = "artifact file does not exist"
	}
	report.Append(verify.Check{Name: "artifact.read", Category: verify.CategoryIO, Status: verify.StatusFail, Detail: detail})
	return nil, report
}
