// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/clock"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/translog"
	"github.com/bureau-foundation/sealrun/lib/verify"
)

// MaxPackSize bounds the uncompressed size of a pack.
const MaxPackSize = 64 << 20

// FormatVersion is written to the pack index.
const FormatVersion = "1.0"

// Member names.
const (
	IndexMember      = "pack.json"
	SealedRunMember  = "sealed_run.json"
	ManifestMember   = "manifest.json"
	SignaturesMember = "signatures.json"
	LogMember        = "transparency_log.ndjson"
)

// ErrCorrupt reports a pack that does not decode or whose members do
// not match its index.
var ErrCorrupt = errors.New("pack is corrupt")

// Contents are the files carried by a pack. SealedRun is required;
// the rest are optional and omitted when nil.
type Contents struct {
	SealedRun  []byte
	Manifest   []byte
	Signatures []byte
	LogExcerpt []byte
}

// members returns the non-empty members in their fixed order.
func (c Contents) members() []member {
	all := []member{
		{SealedRunMember, c.SealedRun},
		{ManifestMember, c.Manifest},
		{SignaturesMember, c.Signatures},
		{LogMember, c.LogExcerpt},
	}
	present := make([]member, 0, len(all))
	for _, m := range all {
		if m.data != nil {
			present = append(present, m)
		}
	}
	return present
}

type member struct {
	name string
	data []byte
}

// Index is the first member of a pack.
type Index struct {
	Version string       `json:"version"`
	Members []IndexEntry `json:"members"`
}

// IndexEntry describes one pack member.
type IndexEntry struct {
	Name   string `json:"name"`
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
}

// Build writes a pack of contents to w.
func Build(w io.Writer, contents Contents, compression Compression) error {
	if len(contents.SealedRun) == 0 {
		return errors.New("pack: sealed run is required")
	}
	members := contents.members()

	index := Index{Version: FormatVersion}
	for _, m := range members {
		index.Members = append(index.Members, IndexEntry{Name: m.name, Size: len(m.data), SHA256: canonical.SHA256(m.data)})
	}
	indexData, err := canonical.Marshal(index)
	if err != nil {
		return fmt.Errorf("pack: encoding index: %w", err)
	}

	var archive bytes.Buffer
	writer := tar.NewWriter(&archive)
	for _, m := range append([]member{{IndexMember, indexData}}, members...) {
		header := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     m.name,
			Mode:     0o644,
			Size:     int64(len(m.data)),
			ModTime:  time.Unix(0, 0),
			Format:   tar.FormatUSTAR,
		}
		if err := writer.WriteHeader(header); err != nil {
			return fmt.Errorf("pack: writing %s header: %w", m.name, err)
		}
		if _, err := writer.Write(m.data); err != nil {
			return fmt.Errorf("pack: writing %s: %w", m.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("pack: closing archive: %w", err)
	}
	if archive.Len() > MaxPackSize {
		return fmt.Errorf("pack: %d bytes exceeds limit of %d", archive.Len(), MaxPackSize)
	}

	compressed, err := compress(archive.Bytes(), compression)
	if err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("pack: writing: %w", err)
	}
	return nil
}

// Open reads a pack, detecting its compression, and checks every
// member against the index.
func Open(r io.Reader) (Contents, Compression, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxPackSize+1))
	if err != nil {
		return Contents{}, 0, fmt.Errorf("pack: reading: %w", err)
	}
	if len(raw) > MaxPackSize {
		return Contents{}, 0, fmt.Errorf("pack: exceeds %d bytes", MaxPackSize)
	}
	compression := detect(raw)
	archive, err := decompress(raw, compression)
	if err != nil {
		return Contents{}, compression, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	files := make(map[string][]byte)
	var order []string
	reader := tar.NewReader(bytes.NewReader(archive))
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Contents{}, compression, fmt.Errorf("%w: reading archive: %v", ErrCorrupt, err)
		}
		if header.Typeflag != tar.TypeReg {
			return Contents{}, compression, fmt.Errorf("%w: member %s is not a regular file", ErrCorrupt, header.Name)
		}
		if _, duplicate := files[header.Name]; duplicate {
			return Contents{}, compression, fmt.Errorf("%w: duplicate member %s", ErrCorrupt, header.Name)
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			return Contents{}, compression, fmt.Errorf("%w: reading %s: %v", ErrCorrupt, header.Name, err)
		}
		files[header.Name] = data
		order = append(order, header.Name)
	}

	if len(order) == 0 || order[0] != IndexMember {
		return Contents{}, compression, fmt.Errorf("%w: first member is not %s", ErrCorrupt, IndexMember)
	}
	var index Index
	decoder := json.NewDecoder(bytes.NewReader(files[IndexMember]))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&index); err != nil {
		return Contents{}, compression, fmt.Errorf("%w: index: %v", ErrCorrupt, err)
	}
	if index.Version != FormatVersion {
		return Contents{}, compression, fmt.Errorf("%w: index version %q", ErrCorrupt, index.Version)
	}
	if len(index.Members) != len(order)-1 {
		return Contents{}, compression, fmt.Errorf("%w: index lists %d members, archive has %d", ErrCorrupt, len(index.Members), len(order)-1)
	}
	for position, entry := range index.Members {
		if order[position+1] != entry.Name {
			return Contents{}, compression, fmt.Errorf("%w: member %d is %s, index lists %s", ErrCorrupt, position+1, order[position+1], entry.Name)
		}
		data := files[entry.Name]
		if len(data) != entry.Size || canonical.SHA256(data) != entry.SHA256 {
			return Contents{}, compression, fmt.Errorf("%w: %s does not match its index digest", ErrCorrupt, entry.Name)
		}
	}

	contents := Contents{
		SealedRun:  files[SealedRunMember],
		Manifest:   files[ManifestMember],
		Signatures: files[SignaturesMember],
		LogExcerpt: files[LogMember],
	}
	if contents.SealedRun == nil {
		return Contents{}, compression, fmt.Errorf("%w: no %s", ErrCorrupt, SealedRunMember)
	}
	return contents, compression, nil
}

// VerifyOptions returns base with the pack's signatures and log
// excerpt wired in. The keyring and any strictness settings come from
// base.
func (c Contents) VerifyOptions(base verify.Options, clk clock.Clock) verify.Options {
	options := base
	if c.Signatures != nil {
		options.Signatures = c.Signatures
	}
	if c.LogExcerpt != nil {
		options.Log = translog.LoadMemoryStore(c.LogExcerpt, clk)
	}
	return options
}

// Verify verifies the pack's sealed run with [Contents.VerifyOptions]
// and, when the pack carries a manifest, checks that the manifest
// describes the same hash scope and commit hash as the artifact.
func (c Contents) Verify(base verify.Options, clk clock.Clock) *verify.Report {
	report := verify.Verify(c.SealedRun, c.VerifyOptions(base, clk))
	report.Artifact = SealedRunMember
	if c.Manifest != nil {
		report.Append(c.manifestCheck())
	}
	return report
}

func (c Contents) manifestCheck() verify.Check {
	check := verify.Check{Name: "pack.manifest", Category: verify.CategoryHash, Status: verify.StatusPass}
	fail := func(format string, args ...any) verify.Check {
		check.Status = verify.StatusFail
		check.Detail = fmt.Sprintf(format, args...)
		return check
	}

	var manifest struct {
		CommitHash string `json:"commit_hash"`
		HashScope  any    `json:"hash_scope"`
	}
	if err := json.Unmarshal(c.Manifest, &manifest); err != nil {
		return fail("manifest is not valid JSON: %v", err)
	}
	run, err := sealedrun.Decode(c.SealedRun)
	if err != nil {
		return fail("%v", err)
	}
	if manifest.CommitHash != run.CommitHash() {
		return fail("manifest commit_hash %s, artifact %s", manifest.CommitHash, run.CommitHash())
	}
	manifestScope, err := canonical.ToValue(manifest.HashScope)
	if err != nil {
		return fail("manifest hash_scope: %v", err)
	}
	if !bytes.Equal(canonical.Canonicalize(manifestScope), canonical.Canonicalize(run.HashScope())) {
		return fail("manifest hash_scope differs from the artifact's")
	}
	check.Detail = "manifest matches the artifact's hash scope"
	return check
}
