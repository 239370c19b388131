// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultExternalTimeout bounds an external signer invocation.
const DefaultExternalTimeout = 30 * time.Second

// ErrExternalSigner is wrapped by every external signer failure.
var ErrExternalSigner = errors.New("external signer failed")

// ExternalSigner delegates signing to a subprocess, for keys held in
// hardware or a KMS.
//
// Protocol: the message ([Message] of the payload, 64 hex characters,
// no newline) is written to a fresh temp file. Command is run with that
// file's path as its only argument. It must exit 0 within Timeout and
// print exactly one line on stdout: the base64 signature. Anything else
// is a failure. Failures are never retried. The temp file is removed
// afterwards.
type ExternalSigner struct {
	Identity Identity

	// Command is the signer executable.
	Command string

	// Algorithm is the algorithm the external key uses, so verifiers
	// know how to check the signature.
	Algorithm string

	// Hardware marks the key as hardware-backed. Blocks are then
	// recorded with signer_type "hardware" instead of "external".
	Hardware bool

	// Timeout defaults to DefaultExternalTimeout.
	Timeout time.Duration

	// TempDir holds the message file. Empty means os.TempDir().
	TempDir string

	Logger *slog.Logger
}

// Sign implements [Signer].
func (s *ExternalSigner) Sign(ctx context.Context, payload []byte) (Block, error) {
	var signatureSize int
	switch s.Algorithm {
	case AlgorithmEd25519:
		signatureSize = ed25519.SignatureSize
	case AlgorithmHMAC:
		signatureSize = sha256.Size
	default:
		return Block{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s.Algorithm)
	}
	if s.Command == "" {
		return Block{}, fmt.Errorf("%w: no command configured", ErrExternalSigner)
	}

	signerType := SignerExternal
	if s.Hardware {
		signerType = SignerHardware
	}
	block, err := newBlock(s.Identity, signerType, s.Algorithm, payload)
	if err != nil {
		return Block{}, err
	}

	messageFile, err := os.CreateTemp(s.TempDir, "sealrun-sign-*.txt")
	if err != nil {
		return Block{}, fmt.Errorf("creating signer message file: %w", err)
	}
	messagePath := messageFile.Name()
	defer os.Remove(messagePath)
	if _, err := messageFile.Write(Message(payload)); err != nil {
		messageFile.Close()
		return Block{}, fmt.Errorf("writing signer message file: %w", err)
	}
	if err := messageFile.Close(); err != nil {
		return Block{}, fmt.Errorf("writing signer message file: %w", err)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}
	runContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(runContext, s.Command, messagePath)
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = time.Second

	started := time.Now()
	runErr := command.Run()
	if errors.Is(runContext.Err(), context.DeadlineExceeded) {
		return Block{}, fmt.Errorf("%w: %s timed out after %s", ErrExternalSigner, s.Command, timeout)
	}
	if runErr != nil {
		return Block{}, fmt.Errorf("%w: %s: %v: %s", ErrExternalSigner, s.Command, runErr, strings.TrimSpace(stderr.String()))
	}

	encoded, err := singleLine(stdout.String())
	if err != nil {
		return Block{}, fmt.Errorf("%w: %s: %v", ErrExternalSigner, s.Command, err)
	}
	signature, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Block{}, fmt.Errorf("%w: %s: signature is not base64: %v", ErrExternalSigner, s.Command, err)
	}
	if len(signature) != signatureSize {
		return Block{}, fmt.Errorf("%w: %s: %s signature is %d bytes, want %d",
			ErrExternalSigner, s.Command, s.Algorithm, len(signature), signatureSize)
	}
	block.Signature = encoded

	if s.Logger != nil {
		s.Logger.Info("external signer produced signature",
			"command", s.Command,
			"signing_key_id", block.SigningKeyID,
			"signer_type", block.SignerType,
			"duration", time.Since(started),
		)
	}
	return block, nil
}

// singleLine returns the only line of output, accepting one trailing
// newline (LF or CRLF).
func singleLine(output string) (string, error) {
	line := strings.TrimSuffix(output, "\n")
	line = strings.TrimSuffix(line, "\r")
	if strings.ContainsAny(line, "\r\n") {
		return "", fmt.Errorf("stdout has more than one line")
	}
	if strings.TrimSpace(line) == "" {
		return "", fmt.Errorf("stdout is empty")
	}
	return strings.TrimSpace(line), nil
}
