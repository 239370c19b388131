// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/clock"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/sealedrun/sealtest"
	"github.com/bureau-foundation/sealrun/lib/translog"
	"github.com/bureau-foundation/sealrun/lib/verify"
)

func testContents(t *testing.T) (Contents, sealtest.Fixture) {
	t.Helper()
	fixture := sealtest.Seal(t, sealtest.Options{})
	manifest, err := canonical.Marshal(sealedrun.ManifestFile{
		SealedRun:  sealedrun.FileName(fixture.Run),
		RunID:      fixture.Run.RunID(),
		CommitHash: fixture.Run.CommitHash(),
		HashScope:  fixture.Scope,
	})
	if err != nil {
		t.Fatal(err)
	}

	store := translog.NewMemoryStore(clock.Fake(sealtest.ObservedAt))
	if _, err := store.Append(context.Background(), translog.Record{
		RunID:             fixture.Run.RunID(),
		CommitHash:        fixture.Run.CommitHash(),
		ArtifactBytesHash: fixture.Run.PayloadBytesHash(),
	}); err != nil {
		t.Fatal(err)
	}
	return Contents{SealedRun: fixture.Bytes(), Manifest: manifest, LogExcerpt: store.Bytes()}, fixture
}

func build(t *testing.T, contents Contents, compression Compression) []byte {
	t.Helper()
	var buffer bytes.Buffer
	if err := Build(&buffer, contents, compression); err != nil {
		t.Fatalf("Build(%s): %v", compression, err)
	}
	return buffer.Bytes()
}

func TestRoundTrip(t *testing.T) {
	contents, _ := testContents(t)
	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(compression.String(), func(t *testing.T) {
			data := build(t, contents, compression)
			opened, detected, err := Open(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if detected != compression {
				t.Errorf("detected compression = %s, want %s", detected, compression)
			}
			if !bytes.Equal(opened.SealedRun, contents.SealedRun) ||
				!bytes.Equal(opened.Manifest, contents.Manifest) ||
				!bytes.Equal(opened.LogExcerpt, contents.LogExcerpt) {
				t.Error("opened contents differ from built contents")
			}
			if opened.Signatures != nil {
				t.Error("absent signatures member came back non-nil")
			}
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	contents, _ := testContents(t)
	for _, compression := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		first := build(t, contents, compression)
		second := build(t, contents, compression)
		if !bytes.Equal(first, second) {
			t.Errorf("%s packs of identical contents differ", compression)
		}
	}
}

func TestOpenDetectsTampering(t *testing.T) {
	contents, _ := testContents(t)
	data := build(t, contents, CompressionNone)
	tampered := bytes.Replace(data, []byte(`"x": 1`), []byte(`"x": 2`), 1)
	if bytes.Equal(tampered, data) {
		t.Fatal("fixture does not contain the payload text")
	}
	if _, _, err := Open(bytes.NewReader(tampered)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Open(tampered) = %v, want ErrCorrupt", err)
	}
}

func TestBuildRequiresSealedRun(t *testing.T) {
	if err := Build(&bytes.Buffer{}, Contents{}, CompressionNone); err == nil {
		t.Error("Build without a sealed run succeeded")
	}
}

func TestParseCompression(t *testing.T) {
	for _, name := range []string{"none", "zstd", "lz4"} {
		compression, err := ParseCompression(name)
		if err != nil {
			t.Fatalf("ParseCompression(%q): %v", name, err)
		}
		if compression.String() != name {
			t.Errorf("ParseCompression(%q).String() = %q", name, compression.String())
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded")
	}
}

func TestContentsVerify(t *testing.T) {
	contents, _ := testContents(t)
	data := build(t, contents, CompressionZstd)
	opened, _, err := Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	report := opened.Verify(verify.Options{}, clock.Fake(sealtest.ObservedAt))
	if report.Verdict() != verify.Admissible {
		t.Fatalf("pack verdict = %s, failed: %+v", report.Verdict(), report.Failed())
	}
	for _, name := range []string{"transparency.entry", "pack.manifest"} {
		found := false
		for _, check := range report.Checks {
			if check.Name == name {
				found = true
				if check.Status != verify.StatusPass {
					t.Errorf("%s = %s (%s)", name, check.Status, check.Detail)
				}
			}
		}
		if !found {
			t.Errorf("check %s missing from pack report", name)
		}
	}

	other := sealtest.Seal(t, sealtest.Options{Payload: map[string]any{"x": 9}})
	mismatched := opened
	mismatched.SealedRun = other.Bytes()
	report = mismatched.Verify(verify.Options{}, clock.Fake(sealtest.ObservedAt))
	if report.Verdict() != verify.Inadmissible {
		t.Error("pack with a foreign manifest and log verified")
	}
}
