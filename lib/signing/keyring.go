// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/secret"
)

// WildcardKeyID is the keyring entry used for any signing key ID that
// has no entry of its own.
const WildcardKeyID = "*"

// Key is verification (and possibly signing) material for one key ID.
type Key struct {
	Algorithm string

	// Secret is the HMAC shared secret, or the Ed25519 private key
	// when the keyring was built from a signing key.
	Secret *secret.Buffer

	// PublicKey is the Ed25519 verification key.
	PublicKey ed25519.PublicKey
}

// Keyring maps signing key IDs to keys.
type Keyring struct {
	keys map[string]Key
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string]Key)}
}

// Add registers a key. Adding an ID twice is an error.
func (k *Keyring) Add(keyID string, key Key) error {
	if keyID == "" {
		return errors.New("keyring: empty key ID")
	}
	if _, exists := k.keys[keyID]; exists {
		return fmt.Errorf("keyring: duplicate key ID %q", keyID)
	}
	k.keys[keyID] = key
	return nil
}

// Lookup returns the key for keyID, falling back to the wildcard key.
func (k *Keyring) Lookup(keyID string) (Key, bool) {
	if k == nil {
		return Key{}, false
	}
	if key, ok := k.keys[keyID]; ok {
		return key, true
	}
	key, ok := k.keys[WildcardKeyID]
	return key, ok
}

// Fingerprint identifies the key material keyID resolves to, so that
// two key IDs backed by the same material (including any IDs resolved
// through the wildcard) share a fingerprint.
func (k *Keyring) Fingerprint(keyID string) (string, bool) {
	key, ok := k.Lookup(keyID)
	if !ok {
		return "", false
	}
	switch {
	case len(key.PublicKey) > 0:
		return key.Algorithm + ":" + canonical.SHA256(key.PublicKey), true
	case key.Secret != nil:
		return key.Algorithm + ":" + canonical.SHA256(key.Secret.Bytes()), true
	default:
		return "", false
	}
}

// IDs returns the registered key IDs, sorted.
func (k *Keyring) IDs() []string {
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close releases every secret held by the keyring.
func (k *Keyring) Close() error {
	var errs []error
	for _, key := range k.keys {
		if key.Secret != nil {
			errs = append(errs, key.Secret.Close())
		}
	}
	return errors.Join(errs...)
}

// KeyFromSigningKey builds the keyring entry matching a signing key
// loaded with [LoadSigningKey]. The buffer is shared, not copied.
func KeyFromSigningKey(algorithm string, signingKey *secret.Buffer) (Key, error) {
	switch algorithm {
	case AlgorithmHMAC:
		return Key{Algorithm: AlgorithmHMAC, Secret: signingKey}, nil
	case AlgorithmEd25519:
		if signingKey.Len() != ed25519.PrivateKeySize {
			return Key{}, fmt.Errorf("ed25519 private key is %d bytes, want %d", signingKey.Len(), ed25519.PrivateKeySize)
		}
		public := ed25519.PrivateKey(signingKey.Bytes()).Public().(ed25519.PublicKey)
		return Key{Algorithm: AlgorithmEd25519, Secret: signingKey, PublicKey: append(ed25519.PublicKey{}, public...)}, nil
	default:
		return Key{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
}

// keyringFile is the YAML keyring format:
//
//	keys:
//	  - id: release-2026
//	    algorithm: ed25519
//	    public_key: ssh-ed25519 AAAAC3Nza...   # or base64 of 32 raw bytes
//	  - id: ci-gate
//	    algorithm: hmac-sha256
//	    secret_file: ci-gate.key               # relative to the keyring file
//	    age_identity: ~/.config/sealrun/age.txt
//	  - id: "*"                                # wildcard
//	    algorithm: ed25519
//	    public_key: ...
type keyringFile struct {
	Keys []keyringEntry `yaml:"keys"`
}

type keyringEntry struct {
	ID          string `yaml:"id"`
	Algorithm   string `yaml:"algorithm"`
	PublicKey   string `yaml:"public_key"`
	SecretFile  string `yaml:"secret_file"`
	AgeIdentity string `yaml:"age_identity"`
}

// LoadKeyring reads a YAML keyring file. Secret file paths are
// resolved relative to the keyring's directory after ${VAR} expansion.
func LoadKeyring(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	var file keyringFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing keyring %s: %w", path, err)
	}
	if len(file.Keys) == 0 {
		return nil, fmt.Errorf("keyring %s has no keys", path)
	}

	keyring := NewKeyring()
	base := filepath.Dir(path)
	for index, entry := range file.Keys {
		key, err := loadEntry(base, entry)
		if err == nil {
			err = keyring.Add(entry.ID, key)
		}
		if err != nil {
			keyring.Close()
			return nil, fmt.Errorf("keyring %s: key %d (%q): %w", path, index, entry.ID, err)
		}
	}
	return keyring, nil
}

func loadEntry(base string, entry keyringEntry) (Key, error) {
	switch entry.Algorithm {
	case AlgorithmEd25519:
		if entry.PublicKey != "" {
			public, err := ParsePublicKey(entry.PublicKey)
			if err != nil {
				return Key{}, err
			}
			return Key{Algorithm: AlgorithmEd25519, PublicKey: public}, nil
		}
		if entry.SecretFile == "" {
			return Key{}, errors.New("ed25519 key needs public_key or secret_file")
		}
	case AlgorithmHMAC:
		if entry.SecretFile == "" {
			return Key{}, errors.New("hmac-sha256 key needs secret_file")
		}
	default:
		return Key{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, entry.Algorithm)
	}

	signingKey, err := LoadSigningKey(resolve(base, entry.SecretFile), entry.Algorithm, resolve(base, entry.AgeIdentity))
	if err != nil {
		return Key{}, err
	}
	return KeyFromSigningKey(entry.Algorithm, signingKey)
}

func resolve(base, path string) string {
	if path == "" {
		return ""
	}
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// ParsePublicKey parses an Ed25519 public key given either as an
// OpenSSH authorized_keys line ("ssh-ed25519 AAAA... comment") or as
// standard base64 of the 32 raw bytes.
func ParsePublicKey(text string) (ed25519.PublicKey, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, ssh.KeyAlgoED25519) {
		parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("parsing OpenSSH public key: %w", err)
		}
		cryptoKey, ok := parsed.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("OpenSSH key type %s has no crypto key", parsed.Type())
		}
		public, ok := cryptoKey.CryptoPublicKey().(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("OpenSSH key type %s is not ed25519", parsed.Type())
		}
		return public, nil
	}

	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("public key is neither an OpenSSH key nor base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
