// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/multisig"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/signing"
)

type signParams struct {
	configParams
	cli.JSONOutput

	Algorithm   string `flag:"algo" desc:"hmac-sha256 (or hmac) or ed25519 (default: config signing.algorithm)"`
	KeyID       string `flag:"key-id" desc:"signing key ID recorded in the block"`
	KeyFile     string `flag:"key-file" desc:"signing key file: base64 secret or seed, OpenSSH ed25519 key, or age-sealed"`
	AgeIdentity string `flag:"age-identity" desc:"age identity file for a sealed key file"`
	SignerID    string `flag:"signer-id" desc:"identity of the signer (default: the key ID)"`
	Role        string `flag:"role" desc:"role of the signer (default: config signing.role)"`

	ExternalCommand   string        `flag:"external-signer-cmd" desc:"delegate signing to this command (receives a file holding the hex digest)"`
	ExternalAlgorithm string        `flag:"external-algo" desc:"algorithm of the external key (default: config signing.external_algorithm)"`
	Hardware          bool          `flag:"hardware" desc:"the external key is hardware-backed"`
	Timeout           time.Duration `flag:"timeout" desc:"external signer timeout (default: config signing.external_timeout)"`

	Append    bool   `flag:"append" desc:"add the signature to the existing signature file as a multi-signature envelope"`
	Threshold int    `flag:"threshold" desc:"envelope threshold when appending (default: keep the current threshold)"`
	Out       string `flag:"out" desc:"signature file (default: <artifact>.sig.json)"`
}

type signResult struct {
	SignatureFile string        `json:"signature_file"`
	Block         signing.Block `json:"block"`
	Signatures    int           `json:"signatures"`
	Threshold     int           `json:"threshold"`
}

func signCommand(env environment) *cli.Command {
	var params signParams
	return &cli.Command{
		Name:    "sign",
		Summary: "Sign a sealed run",
		Description: `Sign the canonical bytes of a sealed run.

The signed message is the lowercase hex SHA-256 of the artifact's
canonical bytes. The signature block records the commit hash and the
bytes hash it covers, so it cannot be moved to another artifact.

Without --append the signature file must not exist yet. With --append
the new block joins the existing file in a multi-signature envelope,
which replaces the old file by writing a new one and renaming it.`,
		Usage: "sealrun sign <artifact> [flags]",
		Examples: []cli.Example{
			{
				Description: "Sign with an ed25519 key",
				Command:     "sealrun sign run.json --algo ed25519 --key-id release-2026 --key-file release.key",
			},
			{
				Description: "Add a second signer from a hardware token",
				Command:     "sealrun sign run.json --append --threshold 2 --key-id hsm-1 --signer-id bob --external-signer-cmd /usr/local/bin/hsm-sign --hardware",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("sign", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: sealrun sign <artifact> [flags]")
			}
			return runSign(env, &params, args[0])
		},
	}
}

func runSign(env environment, params *signParams, artifactPath string) error {
	logger := env.log("sign")
	cfg, err := params.load()
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
	payload := run.CanonicalBytes()

	keyID := firstNonEmpty(params.KeyID, cfg.Signing.KeyID)
	if keyID == "" {
		return errors.New("--key-id is required")
	}
	identity := signing.Identity{
		KeyID:    keyID,
		SignerID: firstNonEmpty(params.SignerID, cfg.Signing.SignerID, keyID),
		Role:     firstNonEmpty(params.Role, cfg.Signing.Role),
	}

	var signer signing.Signer
	if command := firstNonEmpty(params.ExternalCommand, cfg.Signing.ExternalCommand); command != "" {
		algorithm, err := signing.NormalizeAlgorithm(firstNonEmpty(params.ExternalAlgorithm, cfg.Signing.ExternalAlgorithm))
		if err != nil {
			return err
		}
		timeout := params.Timeout
		if timeout == 0 {
			if timeout, err = cfg.ExternalTimeoutDuration(); err != nil {
				return err
			}
		}
		signer = &signing.ExternalSigner{
			Identity:  identity,
			Command:   command,
			Algorithm: algorithm,
			Hardware:  params.Hardware || cfg.Signing.ExternalHardware,
			Timeout:   timeout,
			Logger:    logger,
		}
	} else {
		algorithm, err := signing.NormalizeAlgorithm(firstNonEmpty(params.Algorithm, cfg.Signing.Algorithm))
		if err != nil {
			return err
		}
		keyFile := firstNonEmpty(params.KeyFile, cfg.Signing.KeyFile)
		if keyFile == "" {
			return errors.New("--key-file or --external-signer-cmd is required")
		}
		key, err := signing.LoadSigningKey(keyFile, algorithm, firstNonEmpty(params.AgeIdentity, cfg.Signing.AgeIdentity))
		if err != nil {
			return err
		}
		defer key.Close()
		if signer, err = signing.NewSigner(algorithm, identity, key); err != nil {
			return err
		}
	}

	ctx, stop := signalContext()
	defer stop()
	block, err := signer.Sign(ctx, payload)
	if err != nil {
		return err
	}

	signaturePath := firstNonEmpty(params.Out, sealedrun.SignaturePath(artifactPath))
	result := signResult{SignatureFile: signaturePath, Block: block, Signatures: 1, Threshold: 1}
	if params.Append {
		envelope, err := appendSignature(signaturePath, block, params.Threshold)
		if err != nil {
			return err
		}
		if err := sealedrun.ReplaceNew(signaturePath, envelope.Encode()); err != nil {
			return err
		}
		result.Signatures = len(envelope.Signatures)
		result.Threshold = envelope.Threshold
	} else {
		if err := sealedrun.WriteNew(signaturePath, block.Encode()); err != nil {
			if errors.Is(err, fs.ErrExist) {
				return fmt.Errorf("%s already exists; use --append to add a signature", signaturePath)
			}
			return err
		}
	}
	logger.Info("artifact signed",
		"run_id", run.RunID(),
		"signing_key_id", block.SigningKeyID,
		"signer_type", block.SignerType,
		"signature_file", signaturePath,
	)

	if done, err := params.EmitJSON(env.stdout, result); done {
		return err
	}
	printer := env.printer()
	printer.Field("run_id", run.RunID())
	printer.Field("signer", fmt.Sprintf("%s (%s, %s)", block.SignerID, block.SignerType, block.Algorithm))
	printer.Field("signing_key_id", block.SigningKeyID)
	printer.Field("payload_bytes_hash", block.PayloadBytesHash)
	printer.Field("signature_file", signaturePath)
	if params.Append {
		printer.Field("signatures", fmt.Sprintf("%d (threshold %d)", result.Signatures, result.Threshold))
	}
	printer.Result(true, "SIGNED")
	return nil
}

// appendSignature adds block to the signature file at path, creating
// an envelope when the file does not exist or holds a single block.
func appendSignature(path string, block signing.Block, threshold int) (multisig.Envelope, error) {
	envelope := multisig.New(1)
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if envelope, err = multisig.Decode(existing); err != nil {
			return multisig.Envelope{}, fmt.Errorf("%s: %w", path, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return multisig.Envelope{}, err
	}
	if threshold > 0 {
		envelope.Threshold = threshold
	}
	return multisig.Add(envelope, block)
}
