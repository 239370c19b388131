// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/sealed"
	"github.com/bureau-foundation/sealrun/lib/secret"
)

// testSignerSeedVariable makes the test binary act as an external
// signer when set: it signs the message file named by its argument with
// the base64 Ed25519 seed in the variable.
const testSignerSeedVariable = "SEALRUN_TEST_SIGNER_SEED"

func TestMain(m *testing.M) {
	if seed := os.Getenv(testSignerSeedVariable); seed != "" && len(os.Args) == 2 {
		os.Exit(runTestSigner(seed, os.Args[1]))
	}
	os.Exit(m.Run())
}

func runTestSigner(encodedSeed, messagePath string) int {
	seed, err := base64.StdEncoding.DecodeString(encodedSeed)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	message, err := os.ReadFile(messagePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	signature := ed25519.Sign(ed25519.NewKeyFromSeed(seed), message)
	fmt.Println(base64.StdEncoding.EncodeToString(signature))
	return 0
}

func testPayload(t *testing.T, x int) []byte {
	t.Helper()
	return canonical.Canonicalize(map[string]any{
		"commit_hash":  canonical.SHA256([]byte("scope")),
		"content_hash": canonical.SHA256([]byte(fmt.Sprint(x))),
		"x":            fmt.Sprint(x),
	})
}

func testSeed() []byte {
	return bytes.Repeat([]byte{0x42}, ed25519.SeedSize)
}

func newBuffer(t *testing.T, data []byte) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes(append([]byte{}, data...))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func hmacKeyring(t *testing.T, keyID string, secretBytes []byte) *Keyring {
	t.Helper()
	keyring := NewKeyring()
	if err := keyring.Add(keyID, Key{Algorithm: AlgorithmHMAC, Secret: newBuffer(t, secretBytes)}); err != nil {
		t.Fatal(err)
	}
	return keyring
}

func TestMessageIsHexDigest(t *testing.T) {
	payload := []byte(`{"commit_hash":"x"}`)
	if string(Message(payload)) != strings.TrimPrefix(canonical.SHA256(payload), "sha256:") {
		t.Errorf("Message() = %s, want hex of sha256(payload)", Message(payload))
	}
}

func TestHMACRoundTrip(t *testing.T) {
	payload := testPayload(t, 1)
	signer := &HMACSigner{Identity: Identity{KeyID: "ci", SignerID: "gate-1", Role: "ci"}, Secret: newBuffer(t, []byte("shared"))}

	block, err := signer.Sign(context.Background(), payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if block.SignerType != SignerSoftware || block.Algorithm != AlgorithmHMAC {
		t.Errorf("block = %+v, want software hmac-sha256", block)
	}
	if block.CommitHash != canonical.SHA256([]byte("scope")) {
		t.Errorf("CommitHash = %s, want the payload's commit_hash", block.CommitHash)
	}

	keyring := hmacKeyring(t, "ci", []byte("shared"))
	if err := Verify(block, payload, keyring); err != nil {
		t.Errorf("Verify: %v", err)
	}

	wrongSecret := hmacKeyring(t, "ci", []byte("other"))
	if err := Verify(block, payload, wrongSecret); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify(wrong secret) = %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyErrors(t *testing.T) {
	payload := testPayload(t, 1)
	signer := &HMACSigner{Identity: Identity{KeyID: "ci"}, Secret: newBuffer(t, []byte("shared"))}
	block, err := signer.Sign(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	keyring := hmacKeyring(t, "ci", []byte("shared"))

	if block.SignerID != "ci" {
		t.Errorf("SignerID = %q, want key ID when unset", block.SignerID)
	}

	tests := []struct {
		name    string
		mutate  func(Block) Block
		payload []byte
		want    error
	}{
		{"tampered payload", func(b Block) Block { return b }, testPayload(t, 2), ErrPayloadHashMismatch},
		{"wrong commit hash", func(b Block) Block { b.CommitHash = canonical.SHA256(nil); return b }, payload, ErrCommitHashMismatch},
		{"unknown key", func(b Block) Block { b.SigningKeyID = "nobody"; return b }, payload, ErrUnknownKey},
		{"unsupported algorithm", func(b Block) Block { b.Algorithm = "rsa"; return b }, payload, ErrUnsupportedAlgorithm},
		{"algorithm mismatch", func(b Block) Block { b.Algorithm = AlgorithmEd25519; return b }, payload, ErrInvalidSignature},
		{"garbage signature", func(b Block) Block { b.Signature = "!!"; return b }, payload, ErrInvalidSignature},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := Verify(test.mutate(block), test.payload, keyring)
			if !errors.Is(err, test.want) {
				t.Errorf("Verify() = %v, want %v", err, test.want)
			}
		})
	}
}

func TestWildcardKey(t *testing.T) {
	payload := testPayload(t, 1)
	signer := &HMACSigner{Identity: Identity{KeyID: "rotating-key-17"}, Secret: newBuffer(t, []byte("shared"))}
	block, err := signer.Sign(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	keyring := hmacKeyring(t, WildcardKeyID, []byte("shared"))
	if err := Verify(block, payload, keyring); err != nil {
		t.Errorf("Verify with wildcard key: %v", err)
	}
}

func TestEd25519SeedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "seed.key", base64.StdEncoding.EncodeToString(testSeed())+"\n")

	private, err := LoadSigningKey(path, AlgorithmEd25519, "")
	if err != nil {
		t.Fatalf("LoadSigningKey: %v", err)
	}
	defer private.Close()
	if !bytes.Equal(private.Bytes(), ed25519.NewKeyFromSeed(testSeed())) {
		t.Error("seed file did not expand to the expected private key")
	}

	payload := testPayload(t, 1)
	signer, err := NewSigner("ed25519", Identity{KeyID: "release"}, private)
	if err != nil {
		t.Fatal(err)
	}
	block, err := signer.Sign(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}

	key, err := KeyFromSigningKey(AlgorithmEd25519, private)
	if err != nil {
		t.Fatal(err)
	}
	keyring := NewKeyring()
	keyring.Add("release", Key{Algorithm: AlgorithmEd25519, PublicKey: key.PublicKey})
	if err := Verify(block, payload, keyring); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestEd25519SignsFromLockedMemory(t *testing.T) {
	heapKey := ed25519.NewKeyFromSeed(testSeed())
	locked := newBuffer(t, heapKey)
	signer := &Ed25519Signer{Identity: Identity{KeyID: "release"}, PrivateKey: locked}

	payload := testPayload(t, 1)
	want := base64.StdEncoding.EncodeToString(ed25519.Sign(heapKey, Message(payload)))
	for attempt := range 2 {
		block, err := signer.Sign(context.Background(), payload)
		if err != nil {
			t.Fatalf("Sign #%d: %v", attempt, err)
		}
		if block.Signature != want {
			t.Errorf("Sign #%d signature = %s, want %s", attempt, block.Signature, want)
		}
	}
	if !bytes.Equal(locked.Bytes(), heapKey) {
		t.Error("signing modified the locked key")
	}
}

func TestLoadSigningKeyOpenSSH(t *testing.T) {
	private := ed25519.NewKeyFromSeed(testSeed())
	block, err := ssh.MarshalPrivateKey(private, "test key")
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, t.TempDir(), "id_ed25519", string(pem.EncodeToMemory(block)))

	loaded, err := LoadSigningKey(path, AlgorithmEd25519, "")
	if err != nil {
		t.Fatalf("LoadSigningKey: %v", err)
	}
	defer loaded.Close()
	if !bytes.Equal(loaded.Bytes(), private) {
		t.Error("OpenSSH key loaded different key material")
	}
}

func TestLoadSigningKeyAgeSealed(t *testing.T) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	defer keypair.Close()

	dir := t.TempDir()
	ciphertext, err := sealed.Encrypt([]byte(base64.StdEncoding.EncodeToString([]byte("hmac-secret"))), []string{keypair.PublicKey})
	if err != nil {
		t.Fatal(err)
	}
	keyPath := writeFile(t, dir, "ci.key.age", ciphertext)
	identityPath := writeFile(t, dir, "identity.txt", keypair.PrivateKey.String()+"\n")

	if _, err := LoadSigningKey(keyPath, AlgorithmHMAC, ""); !errors.Is(err, ErrSealedKey) {
		t.Errorf("LoadSigningKey without identity = %v, want ErrSealedKey", err)
	}
	loaded, err := LoadSigningKey(keyPath, AlgorithmHMAC, identityPath)
	if err != nil {
		t.Fatalf("LoadSigningKey: %v", err)
	}
	defer loaded.Close()
	if loaded.String() != "hmac-secret" {
		t.Errorf("decrypted secret = %q, want hmac-secret", loaded.String())
	}
}

func TestLoadSigningKeyRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	short := writeFile(t, dir, "short.key", base64.StdEncoding.EncodeToString([]byte("short")))
	if _, err := LoadSigningKey(short, AlgorithmEd25519, ""); err == nil {
		t.Error("LoadSigningKey accepted a 5-byte ed25519 key")
	}
	notBase64 := writeFile(t, dir, "plain.key", "not base64 at all")
	if _, err := LoadSigningKey(notBase64, AlgorithmHMAC, ""); err == nil {
		t.Error("LoadSigningKey accepted a non-base64 hmac secret")
	}
	if _, err := LoadSigningKey(short, "rsa", ""); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("LoadSigningKey(rsa) = %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestLoadKeyring(t *testing.T) {
	dir := t.TempDir()
	public := ed25519.NewKeyFromSeed(testSeed()).Public().(ed25519.PublicKey)
	sshPublic, err := ssh.NewPublicKey(public)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "ci.key", base64.StdEncoding.EncodeToString([]byte("shared")))
	path := writeFile(t, dir, "keyring.yaml", fmt.Sprintf(`keys:
  - id: release
    algorithm: ed25519
    public_key: %s
  - id: release-raw
    algorithm: ed25519
    public_key: %s
  - id: ci
    algorithm: hmac-sha256
    secret_file: ci.key
`, strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPublic))), base64.StdEncoding.EncodeToString(public)))

	keyring, err := LoadKeyring(path)
	if err != nil {
		t.Fatalf("LoadKeyring: %v", err)
	}
	defer keyring.Close()

	if got := strings.Join(keyring.IDs(), ","); got != "ci,release,release-raw" {
		t.Errorf("IDs() = %s", got)
	}
	for _, id := range []string{"release", "release-raw"} {
		key, _ := keyring.Lookup(id)
		if !bytes.Equal(key.PublicKey, public) {
			t.Errorf("key %s public key mismatch", id)
		}
	}
	ci, _ := keyring.Lookup("ci")
	if ci.Secret == nil || ci.Secret.String() != "shared" {
		t.Error("hmac key secret not loaded")
	}
	if _, ok := keyring.Lookup("absent"); ok {
		t.Error("Lookup(absent) found a key without a wildcard entry")
	}
}

func TestLoadKeyringErrors(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"empty":     "keys: []\n",
		"duplicate": "keys:\n  - {id: a, algorithm: ed25519, public_key: " + base64.StdEncoding.EncodeToString(make([]byte, 32)) + "}\n  - {id: a, algorithm: ed25519, public_key: " + base64.StdEncoding.EncodeToString(make([]byte, 32)) + "}\n",
		"algorithm": "keys:\n  - {id: a, algorithm: rsa}\n",
		"no secret": "keys:\n  - {id: a, algorithm: hmac-sha256}\n",
	}
	for name, content := range tests {
		path := writeFile(t, dir, strings.ReplaceAll(name, " ", "-")+".yaml", content)
		if _, err := LoadKeyring(path); err == nil {
			t.Errorf("LoadKeyring(%s) succeeded, want error", name)
		}
	}
}

func TestExternalSignerRoundTrip(t *testing.T) {
	executable, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(testSignerSeedVariable, base64.StdEncoding.EncodeToString(testSeed()))

	payload := testPayload(t, 1)
	signer := &ExternalSigner{
		Identity:  Identity{KeyID: "hsm-1", SignerID: "officer", Role: "approver"},
		Command:   executable,
		Algorithm: AlgorithmEd25519,
		Hardware:  true,
		TempDir:   t.TempDir(),
	}
	block, err := signer.Sign(context.Background(), payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if block.SignerType != SignerHardware {
		t.Errorf("SignerType = %q, want hardware", block.SignerType)
	}

	software := &Ed25519Signer{Identity: signer.Identity, PrivateKey: newBuffer(t, ed25519.NewKeyFromSeed(testSeed()))}
	softwareBlock, err := software.Sign(context.Background(), payload)
	if err != nil {
		t.Fatal(err)
	}
	if block.Signature != softwareBlock.Signature {
		t.Error("external and software ed25519 signatures over the same message differ")
	}

	keyring := NewKeyring()
	keyring.Add("hsm-1", Key{Algorithm: AlgorithmEd25519, PublicKey: ed25519.NewKeyFromSeed(testSeed()).Public().(ed25519.PublicKey)})
	if err := Verify(block, payload, keyring); err != nil {
		t.Errorf("Verify: %v", err)
	}

	entries, _ := os.ReadDir(signer.TempDir)
	if len(entries) != 0 {
		t.Errorf("message file left behind: %v", entries)
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signer.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExternalSignerProtocolFailures(t *testing.T) {
	validSignature := base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize))
	tests := []struct {
		name    string
		script  string
		timeout time.Duration
		want    string
	}{
		{"non-zero exit", "echo " + validSignature + "; echo denied >&2; exit 3", 0, "denied"},
		{"two lines", "echo " + validSignature + "; echo " + validSignature, 0, "more than one line"},
		{"empty output", "exit 0", 0, "empty"},
		{"not base64", "echo 'not*base64'", 0, "not base64"},
		{"wrong length", "echo " + base64.StdEncoding.EncodeToString([]byte("short")), 0, "want 64"},
		{"timeout", "exec sleep 10", 200 * time.Millisecond, "timed out"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			signer := &ExternalSigner{
				Identity:  Identity{KeyID: "hsm-1"},
				Command:   writeScript(t, test.script),
				Algorithm: AlgorithmEd25519,
				Timeout:   test.timeout,
			}
			_, err := signer.Sign(context.Background(), testPayload(t, 1))
			if !errors.Is(err, ErrExternalSigner) {
				t.Fatalf("Sign() = %v, want ErrExternalSigner", err)
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("Sign() = %v, want mention of %q", err, test.want)
			}
		})
	}
}

func TestExternalSignerReceivesMessagePath(t *testing.T) {
	captured := filepath.Join(t.TempDir(), "captured")
	signature := base64.StdEncoding.EncodeToString(make([]byte, ed25519.SignatureSize))
	signer := &ExternalSigner{
		Identity:  Identity{KeyID: "hsm-1"},
		Command:   writeScript(t, fmt.Sprintf(`[ $# -eq 1 ] || exit 9; cat "$1" > %q; echo %s`, captured, signature)),
		Algorithm: AlgorithmEd25519,
	}
	payload := testPayload(t, 1)
	block, err := signer.Sign(context.Background(), payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if block.SignerType != SignerExternal {
		t.Errorf("SignerType = %q, want external", block.SignerType)
	}
	message, err := os.ReadFile(captured)
	if err != nil {
		t.Fatal(err)
	}
	if string(message) != string(Message(payload)) {
		t.Errorf("signer received %q, want %q", message, Message(payload))
	}
}

func TestSignRequiresCommitHash(t *testing.T) {
	signer := &HMACSigner{Identity: Identity{KeyID: "ci"}, Secret: newBuffer(t, []byte("shared"))}
	if _, err := signer.Sign(context.Background(), []byte(`{"x":1}`)); err == nil {
		t.Error("Sign accepted a payload without commit_hash")
	}
}

func TestBlockEncodeDecode(t *testing.T) {
	signer := &HMACSigner{Identity: Identity{KeyID: "ci", Role: "gate"}, Secret: newBuffer(t, []byte("shared"))}
	block, err := signer.Sign(context.Background(), testPayload(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeBlock(block.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if decoded != block {
		t.Errorf("DecodeBlock(Encode()) = %+v, want %+v", decoded, block)
	}
	if _, err := DecodeBlock([]byte(`{"signature":"x","extra":1}`)); err == nil {
		t.Error("DecodeBlock accepted an unknown field")
	}
}
