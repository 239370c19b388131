// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/ssh"

	"github.com/bureau-foundation/sealrun/cmd/sealrun/cli"
	"github.com/bureau-foundation/sealrun/lib/sealed"
	"github.com/bureau-foundation/sealrun/lib/secret"
	"github.com/bureau-foundation/sealrun/lib/signing"
)

// keySize is the HMAC secret and Ed25519 seed length.
const keySize = 32

func keyCommand(env environment) *cli.Command {
	return &cli.Command{
		Name:    "key",
		Summary: "Generate and seal signing keys",
		Description: `Manage signing key files.

Key files hold standard base64 of an HMAC secret or an Ed25519 seed,
optionally age-encrypted so they can be stored next to the keyring.
Sealed key files are decrypted in locked memory at signing time with
--age-identity.`,
		Subcommands: []*cli.Command{
			keyGenerateCommand(env),
			keySealCommand(env),
			keyAgeIdentityCommand(env),
		},
	}
}

type keyGenerateParams struct {
	cli.JSONOutput

	Algorithm string   `flag:"algo" default:"ed25519" desc:"ed25519 or hmac-sha256 (hmac)"`
	Out       string   `flag:"out" desc:"key file to create (required)"`
	SealTo    []string `flag:"seal-to" desc:"age recipient (age1...) to encrypt the key file to (repeatable)"`
}

type keyResult struct {
	KeyFile   string `json:"key_file"`
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key,omitempty"`
	Sealed    bool   `json:"sealed"`
}

func keyGenerateCommand(env environment) *cli.Command {
	var params keyGenerateParams
	return &cli.Command{
		Name:    "generate",
		Summary: "Generate a new signing key file",
		Usage:   "sealrun key generate --out FILE [--algo ed25519|hmac] [--seal-to age1...]",
		Examples: []cli.Example{
			{
				Description: "Generate an ed25519 key sealed to an age recipient",
				Command:     "sealrun key generate --out release.key --seal-to age1ql3z7hjy54pw3hyww5ayyfg7zqgvc7w3j2elw8zmrj2kg5sfn9aqmcac8p",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("key generate", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if params.Out == "" {
				return errors.New("--out is required")
			}
			return runKeyGenerate(env, &params)
		},
	}
}

func runKeyGenerate(env environment, params *keyGenerateParams) error {
	algorithm, err := signing.NormalizeAlgorithm(params.Algorithm)
	if err != nil {
		return err
	}
	for _, recipient := range params.SealTo {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return err
		}
	}

	material, err := secret.New(keySize)
	if err != nil {
		return err
	}
	defer material.Close()
	if _, err := rand.Read(material.Bytes()); err != nil {
		return fmt.Errorf("reading random key material: %w", err)
	}

	result := keyResult{KeyFile: params.Out, Algorithm: algorithm, Sealed: len(params.SealTo) > 0}
	if algorithm == signing.AlgorithmEd25519 {
		private := ed25519.NewKeyFromSeed(material.Bytes())
		public, err := ssh.NewPublicKey(private.Public())
		secret.Zero(private)
		if err != nil {
			return err
		}
		result.PublicKey = string(bytes.TrimSpace(ssh.MarshalAuthorizedKey(public)))
	}

	encoded := make([]byte, base64.StdEncoding.EncodedLen(keySize))
	base64.StdEncoding.Encode(encoded, material.Bytes())
	defer secret.Zero(encoded)
	if err := writeKeyFile(params.Out, encoded, params.SealTo); err != nil {
		return err
	}
	env.log("key/generate").Info("key generated", "key_file", params.Out, "algorithm", algorithm, "sealed", result.Sealed)

	if done, err := params.EmitJSON(env.stdout, result); done {
		return err
	}
	printer := env.printer()
	printer.Field("key_file", result.KeyFile)
	printer.Field("algorithm", result.Algorithm)
	if result.PublicKey != "" {
		printer.Field("public_key", result.PublicKey)
	}
	printer.Field("sealed", fmt.Sprint(result.Sealed))
	printer.Result(true, "KEY GENERATED")
	return nil
}

type keySealParams struct {
	cli.JSONOutput

	Recipients []string `flag:"recipient" desc:"age recipient (age1...) (repeatable, required)"`
	Out        string   `flag:"out" desc:"sealed key file (default: <key file>.age)"`
}

func keySealCommand(env environment) *cli.Command {
	var params keySealParams
	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt an existing key file to age recipients",
		Usage:   "sealrun key seal <key file> --recipient age1... [--out FILE]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("key seal", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return errors.New("usage: sealrun key seal <key file> --recipient age1... [--out FILE]")
			}
			if len(params.Recipients) == 0 {
				return errors.New("at least one --recipient is required")
			}
			return runKeySeal(env, &params, args[0])
		},
	}
}

func runKeySeal(env environment, params *keySealParams, keyPath string) error {
	for _, recipient := range params.Recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return err
		}
	}
	plaintext, err := secret.ReadFromPath(keyPath)
	if err != nil {
		return err
	}
	defer plaintext.Close()
	if sealed.IsSealed(plaintext.Bytes()) {
		return fmt.Errorf("%s is already sealed", keyPath)
	}

	out := firstNonEmpty(params.Out, keyPath+".age")
	if err := writeKeyFile(out, plaintext.Bytes(), params.Recipients); err != nil {
		return err
	}
	env.log("key/seal").Info("key sealed", "key_file", out, "recipients", len(params.Recipients))

	result := keyResult{KeyFile: out, Sealed: true}
	if done, err := params.EmitJSON(env.stdout, result); done {
		return err
	}
	printer := env.printer()
	printer.Field("key_file", out)
	printer.Result(true, "KEY SEALED")
	return nil
}

func keyAgeIdentityCommand(env environment) *cli.Command {
	var params struct {
		cli.JSONOutput
		Out string `flag:"out" desc:"identity file to create (required)"`
	}
	return &cli.Command{
		Name:    "age-identity",
		Summary: "Generate an age identity for sealing key files",
		Usage:   "sealrun key age-identity --out FILE",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("key age-identity", &params)
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if params.Out == "" {
				return errors.New("--out is required")
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()

			identity := append(append([]byte{}, keypair.PrivateKey.Bytes()...), '\n')
			defer secret.Zero(identity)
			if err := writeKeyFile(params.Out, identity, nil); err != nil {
				return err
			}
			env.log("key/age-identity").Info("age identity generated", "identity_file", params.Out)

			result := keyResult{KeyFile: params.Out, Algorithm: "age-x25519", PublicKey: keypair.PublicKey}
			if done, err := params.EmitJSON(env.stdout, result); done {
				return err
			}
			printer := env.printer()
			printer.Field("identity_file", params.Out)
			printer.Field("recipient", keypair.PublicKey)
			printer.Result(true, "IDENTITY GENERATED")
			return nil
		},
	}
}

// writeKeyFile creates path with mode 0600, failing if it exists. With
// recipients the content is age-encrypted to them first.
func writeKeyFile(path string, content []byte, recipients []string) error {
	if len(recipients) > 0 {
		ciphertext, err := sealed.Encrypt(content, recipients)
		if err != nil {
			return err
		}
		content = []byte(ciphertext + "\n")
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := file.Write(content); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return file.Close()
}
