// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/sealrun/lib/secret"
)

// binaryHeader starts every binary age file.
const binaryHeader = "age-encryption.org/"

// Keypair is an age x25519 keypair. Close releases the private key.
type Keypair struct {
	// PrivateKey is the AGE-SECRET-KEY-1... identity string.
	PrivateKey *secret.Buffer
	// PublicKey is the age1... recipient string.
	PublicKey string
}

// Close releases the private key memory. Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair returns a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{PrivateKey: privateKey, PublicKey: identity.Recipient().String()}, nil
}

// Encrypt encrypts plaintext to the given age recipients (age1...) and
// returns the ciphertext as standard base64.
func Encrypt(plaintext []byte, recipientKeys []string) (string, error) {
	if len(recipientKeys) == 0 {
		return "", fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return "", fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

// Decrypt decrypts ciphertext in any supported encoding with the
// identities in identityData (an age identity file's contents). The
// plaintext is returned in a secret.Buffer owned by the caller.
func Decrypt(ciphertext []byte, identityData *secret.Buffer) (*secret.Buffer, error) {
	identities, err := age.ParseIdentities(strings.NewReader(identityData.String()))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}

	source, err := ciphertextReader(ciphertext)
	if err != nil {
		return nil, err
	}
	reader, err := age.Decrypt(source, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	trimmed := bytes.TrimSpace(plaintext)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("decrypted key is empty")
	}
	buffer, err := secret.NewFromBytes(trimmed)
	secret.Zero(plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

// DecryptFile decrypts the sealed key at path with the age identity
// file at identityPath.
func DecryptFile(path, identityPath string) (*secret.Buffer, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sealed key: %w", err)
	}
	identity, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading age identity: %w", err)
	}
	defer identity.Close()

	plaintext, err := Decrypt(ciphertext, identity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plaintext, nil
}

// IsSealed reports whether data looks like age ciphertext in one of the
// supported encodings.
func IsSealed(data []byte) bool {
	_, err := ciphertextReader(data)
	return err == nil
}

func ciphertextReader(data []byte) (io.Reader, error) {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.HasPrefix(data, []byte(binaryHeader)):
		return bytes.NewReader(data), nil
	case bytes.HasPrefix(trimmed, []byte(armor.Header)):
		return armor.NewReader(bytes.NewReader(trimmed)), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil || !bytes.HasPrefix(decoded, []byte(binaryHeader)) {
		return nil, fmt.Errorf("not age ciphertext (binary, armored, or base64)")
	}
	return bytes.NewReader(decoded), nil
}

// ParsePublicKey validates an age recipient string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}
