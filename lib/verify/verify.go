// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bureau-foundation/sealrun/lib/binhash"
	"github.com/bureau-foundation/sealrun/lib/canonical"
	"github.com/bureau-foundation/sealrun/lib/detid"
	"github.com/bureau-foundation/sealrun/lib/hashscope"
	"github.com/bureau-foundation/sealrun/lib/merkle"
	"github.com/bureau-foundation/sealrun/lib/multisig"
	"github.com/bureau-foundation/sealrun/lib/sealedrun"
	"github.com/bureau-foundation/sealrun/lib/signing"
	"github.com/bureau-foundation/sealrun/lib/translog"
)

// Options select the optional checks.
type Options struct {
	// Keyring holds the verification keys. Setting Keyring or
	// Signatures requests the signature check.
	Keyring *signing.Keyring

	// Signatures is the content of a signature file: a single block
	// or a multi-signature envelope.
	Signatures []byte

	// RequireMultisig, when positive, is the number of valid
	// signatures from distinct signers required, overriding the
	// envelope's own threshold.
	RequireMultisig int

	// Log requests the transparency check against this log.
	Log translog.LogStore

	// Checkpoint, with Log, additionally requires the log to extend
	// this saved head.
	Checkpoint *translog.Head

	// InputsRoot, when set, re-hashes every file the hash scope
	// references, resolved relative to this directory.
	InputsRoot string

	// Strict turns a missing referenced file into a failure (exit
	// code 4) instead of a warning.
	Strict bool

	// DeterminismAudit appends the determinism audit checks.
	// StrictAudit makes its warnings failures.
	DeterminismAudit bool
	StrictAudit      bool
}

// signatureRequested reports whether check 8 should run.
func (o Options) signatureRequested() bool {
	return o.Keyring != nil || o.Signatures != nil || o.RequireMultisig > 0
}

// verifier carries the state shared between checks of one artifact.
type verifier struct {
	options  Options
	report   *Report
	data     []byte
	document map[string]any

	// scope is the decoded hash scope; scopeOK is false when it could
	// not be decoded and scope-dependent checks are skipped.
	scope   hashscope.Manifest
	scopeOK bool

	commitHash string
}

// Verify runs every requested check over the artifact bytes and
// returns the report. It does not stop at the first failure.
func Verify(data []byte, options Options) *Report {
	v := &verifier{options: options, report: &Report{}, data: data}

	if !v.checkStructure() {
		return v.report
	}
	v.checkEnvelope()
	v.checkCommitHash()
	v.checkReferencedFiles()
	v.checkProvenance()
	v.checkExclusions()
	v.checkCommitments()
	v.checkContentHash()
	v.checkSignatures()
	v.checkTransparency()
	if options.DeterminismAudit {
		auditChecks(v.report, data, options.StrictAudit)
	}
	v.report.tiers.determinism = deterministic(v.document)
	return v.report
}

// laterStages are the checks skipped when the artifact is not a JSON
// object at all.
var laterStages = []struct {
	name     string
	category Category
}{
	{"authority_envelope", CategoryStructural},
	{"hash_scope.commit_hash", CategoryHash},
	{"provenance.inputs_hash", CategoryHash},
	{"hash_scope.exclusions", CategoryLogic},
	{"inputs_commitments", CategoryHash},
	{"content_hash", CategoryHash},
}

// checkStructure is check 1. It returns false when the artifact cannot
// be examined further.
func (v *verifier) checkStructure() bool {
	run, err := sealedrun.Decode(v.data)
	if err != nil {
		v.report.fail("structure.json", CategoryStructural, "%v", err)
		for _, stage := range laterStages {
			v.report.skip(stage.name, stage.category, "artifact is not a JSON object")
		}
		return false
	}
	v.report.pass("structure.json", CategoryStructural, "valid JSON object")
	v.document = run.Document()
	v.report.RunID = run.RunID()
	v.report.CommitHash = run.CommitHash()
	v.report.ContentHash = run.ContentHash()
	v.commitHash = run.CommitHash()

	var missing []string
	for _, field := range sealedrun.RequiredFields {
		if _, ok := v.document[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		v.report.fail("structure.required_fields", CategoryStructural, "missing: %s", strings.Join(missing, ", "))
	} else {
		v.report.pass("structure.required_fields", CategoryStructural, "all %d fields present", len(sealedrun.RequiredFields))
	}

	if problems := fieldTypeProblems(v.document); len(problems) > 0 {
		v.report.fail("structure.types", CategoryStructural, "%s", strings.Join(problems, "; "))
	} else {
		v.report.pass("structure.types", CategoryStructural, "field types valid")
	}

	if version, _ := v.document[sealedrun.FieldSchemaVersion].(string); version == sealedrun.SchemaVersion {
		v.report.pass("structure.schema_version", CategoryStructural, "version=%s", version)
	} else {
		v.report.fail("structure.schema_version", CategoryStructural, "schema_version %v is not %q", v.document[sealedrun.FieldSchemaVersion], sealedrun.SchemaVersion)
	}

	scopeValue, present := v.document[sealedrun.FieldHashScope]
	if !present {
		v.report.fail("structure.hash_scope", CategoryStructural, "hash_scope missing")
		return true
	}
	scope, err := hashscope.Decode(canonical.Canonicalize(scopeValue))
	if err != nil {
		v.report.fail("structure.hash_scope", CategoryStructural, "%v", err)
		return true
	}
	if err := scope.Validate(); err != nil {
		v.report.fail("structure.hash_scope", CategoryStructural, "%s", oneLine(err))
		// The scope decoded; later checks can still use it.
	} else {
		v.report.pass("structure.hash_scope", CategoryStructural, "%d files, %d exclusions", len(scope.Leaves()), len(scope.Exclusions))
	}
	v.scope = scope
	v.scopeOK = true
	return true
}

func fieldTypeProblems(document map[string]any) []string {
	var problems []string
	expect := func(field string, ok bool, want string) {
		if _, present := document[field]; present && !ok {
			problems = append(problems, fmt.Sprintf("%s is %s, want %s", field, typeName(document[field]), want))
		}
	}
	_, ok := document[sealedrun.FieldSchemaVersion].(string)
	expect(sealedrun.FieldSchemaVersion, ok, "string")
	_, ok = document[sealedrun.FieldAuthorityEnvelope].(map[string]any)
	expect(sealedrun.FieldAuthorityEnvelope, ok, "object")
	_, ok = document[sealedrun.FieldHashScope].(map[string]any)
	expect(sealedrun.FieldHashScope, ok, "object")
	_, ok = document[sealedrun.FieldInputsCommitments].(map[string]any)
	expect(sealedrun.FieldInputsCommitments, ok, "object")

	for _, field := range []string{sealedrun.FieldCommitHash, sealedrun.FieldContentHash} {
		value, isString := document[field].(string)
		expect(field, isString, "string")
		if isString {
			if _, err := binhash.HexPart(value); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", field, err))
			}
		}
	}

	committedAt := document[sealedrun.FieldCommittedAt]
	_, isString := committedAt.(string)
	expect(sealedrun.FieldCommittedAt, isString || committedAt == nil, "string or null")

	emitted, isList := document[sealedrun.FieldArtifactsEmitted].([]any)
	expect(sealedrun.FieldArtifactsEmitted, isList, "list")
	for index, item := range emitted {
		if _, ok := item.(string); !ok {
			problems = append(problems, fmt.Sprintf("artifacts_emitted[%d] is %s, want string", index, typeName(item)))
		}
	}
	return problems
}

func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", value)
}

// checkEnvelope is check 2.
func (v *verifier) checkEnvelope() {
	envelope, present := v.document[sealedrun.FieldAuthorityEnvelope]
	if !present {
		v.report.skip("authority_envelope", CategoryStructural, "authority_envelope missing")
		return
	}
	violations := sealedrun.ValidateEnvelope(envelope)
	if len(violations) == 0 {
		v.report.pass("authority_envelope", CategoryStructural, "all envelope predicates hold")
		return
	}
	var structural, logic []string
	for _, violation := range violations {
		if violation.Kind == sealedrun.Logic {
			logic = append(logic, violation.String())
		} else {
			structural = append(structural, violation.String())
		}
	}
	if len(structural) > 0 {
		v.report.fail("authority_envelope", CategoryStructural, "%s", strings.Join(structural, "; "))
	}
	if len(logic) > 0 {
		v.report.fail("authority_envelope.enforcement", CategoryLogic, "%s", strings.Join(logic, "; "))
	}
}

// checkCommitHash is check 3: the commit hash recomputed from the
// embedded scope, and the payload digest bound into it.
func (v *verifier) checkCommitHash() {
	scopeValue, present := v.document[sealedrun.FieldHashScope]
	if !present {
		v.report.skip("hash_scope.commit_hash", CategoryHash, "hash_scope missing")
		return
	}
	recomputed, err := detid.CommitHashOf(scopeValue)
	switch {
	case err != nil:
		v.report.fail("hash_scope.commit_hash", CategoryHash, "recomputing: %v", err)
	case recomputed != v.commitHash:
		v.report.fail("hash_scope.commit_hash", CategoryHash, "recomputed %s, artifact records %s", recomputed, v.commitHash)
	default:
		v.report.pass("hash_scope.commit_hash", CategoryHash, "%s", recomputed)
	}

	bound := boundPayloadDigest(scopeValue)
	actual, err := hashscope.PayloadDigest(v.document[sealedrun.FieldDecisionPayload], exclusionsOf(scopeValue))
	switch {
	case err != nil:
		v.report.fail("hash_scope.payload_binding", CategoryHash, "%v", err)
	case actual != bound:
		v.report.fail("hash_scope.payload_binding", CategoryHash, "decision_payload digests to %s, hash scope binds %s", actual, bound)
	default:
		v.report.pass("hash_scope.payload_binding", CategoryHash, "decision_payload matches payload_sha256")
	}
}

// checkReferencedFiles re-hashes the scope's files when an inputs root
// is configured.
func (v *verifier) checkReferencedFiles() {
	if v.options.InputsRoot == "" {
		return
	}
	if !v.scopeOK {
		v.report.skip("hash_scope.files", CategoryHash, "hash scope could not be decoded")
		return
	}
	leaves := v.scope.Leaves()
	problems := 0
	for _, leaf := range leaves {
		name := "hash_scope.files[" + leaf.Path + "]"
		digest, err := binhash.HashFile(hashscope.ResolvePath(v.options.InputsRoot, leaf.Path))
		switch {
		case errors.Is(err, os.ErrNotExist):
			problems++
			if v.options.Strict {
				v.report.fail(name, CategoryIO, "referenced file is missing")
			} else {
				v.report.warn(name, CategoryIO, "referenced file is missing")
			}
		case err != nil:
			// Only an absent file is an io failure; an unreadable one
			// makes the artifact inadmissible without being missing.
			problems++
			v.report.fail(name, CategoryLogic, "referenced file is unreadable: %v", err)
		case binhash.FormatDigest(digest) != leaf.SHA256:
			problems++
			v.report.fail(name, CategoryHash, "file hashes to %s, hash scope records %s", binhash.FormatDigest(digest), leaf.SHA256)
		}
	}
	if problems == 0 {
		v.report.pass("hash_scope.files", CategoryHash, "%d referenced files re-hashed", len(leaves))
	}
}

// checkProvenance is check 4.
func (v *verifier) checkProvenance() {
	envelope, _ := v.document[sealedrun.FieldAuthorityEnvelope].(map[string]any)
	provenance, _ := envelope["provenance"].(map[string]any)
	inputsHash, _ := provenance["deterministic_inputs_hash"].(string)
	switch {
	case provenance == nil:
		v.report.fail("provenance.inputs_hash", CategoryStructural, "authority_envelope.provenance missing")
	case inputsHash != v.commitHash:
		v.report.fail("provenance.inputs_hash", CategoryHash, "deterministic_inputs_hash %q does not match commit_hash %s", inputsHash, v.commitHash)
	default:
		v.report.pass("provenance.inputs_hash", CategoryHash, "deterministic_inputs_hash matches commit_hash")
	}
}

// checkExclusions is check 5: every declared exclusion must be a field
// that can vary without moving the commit hash. Each excluded key is
// overwritten wherever it occurs in the artifact and the commit hash
// (scope digest plus payload binding) is recomputed.
func (v *verifier) checkExclusions() {
	scopeValue, present := v.document[sealedrun.FieldHashScope]
	if !present {
		v.report.skip("hash_scope.exclusions", CategoryLogic, "hash_scope missing")
		return
	}
	exclusions := exclusionsOf(scopeValue)

	var problems []string
	for _, required := range hashscope.DefaultExclusions {
		if !contains(exclusions, required) {
			problems = append(problems, fmt.Sprintf("required exclusion %q missing", required))
		}
	}
	for _, exclusion := range exclusions {
		if hashscope.ReservedFields[exclusion] {
			problems = append(problems, fmt.Sprintf("%q is a hashed field", exclusion))
		}
	}

	excluded := make(map[string]bool, len(exclusions))
	for _, name := range exclusions {
		excluded[name] = true
	}
	before := commitInputs(v.document, exclusions)
	mutated := mutateExcluded(canonical.Clone(v.document), excluded).(map[string]any)
	if after := commitInputs(mutated, exclusions); after != before {
		problems = append(problems, "mutating excluded fields changes the commit hash")
	}

	if len(problems) > 0 {
		v.report.fail("hash_scope.exclusions", CategoryLogic, "%s", strings.Join(problems, "; "))
		return
	}
	v.report.pass("hash_scope.exclusions", CategoryLogic, "excluded fields %s do not affect commit_hash", strings.Join(exclusions, ", "))
}

// commitInputs returns the two values the commit hash depends on: the
// scope digest and the payload digest.
func commitInputs(document map[string]any, exclusions []string) string {
	scopeDigest, _ := detid.CommitHashOf(document[sealedrun.FieldHashScope])
	payloadDigest, _ := hashscope.PayloadDigest(document[sealedrun.FieldDecisionPayload], exclusions)
	return scopeDigest + " " + payloadDigest
}

// mutateExcluded overwrites the value of every excluded key at every
// depth in place and returns value.
func mutateExcluded(value any, excluded map[string]bool) any {
	switch typed := value.(type) {
	case map[string]any:
		for key, element := range typed {
			if excluded[key] {
				typed[key] = "\x00mutated"
				continue
			}
			typed[key] = mutateExcluded(element, excluded)
		}
	case []any:
		for index, element := range typed {
			typed[index] = mutateExcluded(element, excluded)
		}
	}
	return value
}

// checkCommitments is check 6.
func (v *verifier) checkCommitments() {
	raw, present := v.document[sealedrun.FieldInputsCommitments]
	if !present {
		v.report.skip("inputs_commitments", CategoryHash, "not present")
		return
	}
	if !v.scopeOK {
		v.report.skip("inputs_commitments", CategoryHash, "hash scope could not be decoded")
		return
	}
	expected, err := merkle.FromManifest(v.scope)
	if err != nil {
		v.report.fail("inputs_commitments", CategoryHash, "rebuilding: %v", err)
		return
	}
	expectedValue, _ := canonical.ToValue(expected)
	want := expectedValue.(map[string]any)
	got, _ := raw.(map[string]any)

	var mismatched []string
	keys := make([]string, 0, len(want))
	for key := range want {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if string(canonical.Canonicalize(got[key])) != string(canonical.Canonicalize(want[key])) {
			mismatched = append(mismatched, fmt.Sprintf("%s is %v, rebuilt %v", key, got[key], want[key]))
		}
	}
	if len(mismatched) > 0 {
		v.report.fail("inputs_commitments", CategoryHash, "%s", strings.Join(mismatched, "; "))
		return
	}
	v.report.pass("inputs_commitments", CategoryHash, "root %s over %d leaves", expected.Root, expected.LeafCount)
	v.report.tiers.commitments = true
}

// checkContentHash is check 7.
func (v *verifier) checkContentHash() {
	recorded, _ := v.document[sealedrun.FieldContentHash].(string)
	recomputed := sealedrun.ComputeContentHash(v.document)
	if recorded != recomputed {
		v.report.fail("content_hash", CategoryHash, "recomputed %s, artifact records %q (modified after sealing)", recomputed, recorded)
		return
	}
	v.report.pass("content_hash", CategoryHash, "%s", recomputed)
}

// checkSignatures is check 8.
func (v *verifier) checkSignatures() {
	if !v.options.signatureRequested() {
		return
	}
	name := "signature"
	if v.options.RequireMultisig > 0 {
		name = "signature.multisig"
	}
	if v.options.Signatures == nil {
		v.report.fail(name, CategorySignature, "no signature file supplied")
		return
	}
	if v.options.Keyring == nil {
		v.report.fail(name, CategorySignature, "no verification keyring supplied")
		return
	}
	envelope, err := multisig.Decode(v.options.Signatures)
	if err != nil {
		v.report.fail(name, CategorySignature, "%v", err)
		return
	}

	result := multisig.Verify(envelope, v.options.RequireMultisig, canonical.Canonicalize(v.document), v.options.Keyring)

	var notes []string
	for _, failure := range result.Failures {
		notes = append(notes, fmt.Sprintf("signature %d (%s): %v", failure.Index, failure.SignerID, failure.Err))
	}
	if len(result.Duplicates) > 0 {
		notes = append(notes, "duplicate signers counted once: "+strings.Join(result.Duplicates, ", "))
	}
	if len(result.SharedKeys) > 0 {
		notes = append(notes, "signatures sharing a key counted once: "+strings.Join(result.SharedKeys, ", "))
	}
	summary := fmt.Sprintf("%d of %d signatures valid from distinct signers and keys, threshold %d", result.ValidDistinct, result.Total, result.Threshold)
	if len(notes) > 0 {
		summary += "; " + strings.Join(notes, "; ")
	}
	if !result.Valid {
		v.report.fail(name, CategorySignature, "%s", summary)
		return
	}
	v.report.pass(name, CategorySignature, "%s", summary)
	v.report.tiers.signature = result.ValidDistinct >= 1
	v.report.tiers.multisig = result.Threshold >= 2
	v.report.tiers.hardware = result.HardwareBacked
}

// checkTransparency is check 9.
func (v *verifier) checkTransparency() {
	log := v.options.Log
	if log == nil {
		return
	}
	passed := true

	chain, err := log.VerifyChain()
	switch {
	case err != nil:
		passed = false
		v.report.fail("transparency.chain", CategoryChain, "%v", err)
	case !chain.Valid:
		passed = false
		v.report.fail("transparency.chain", CategoryChain, "chain broken at entry %d: %s", chain.BrokenAt, chain.Reason)
	default:
		v.report.pass("transparency.chain", CategoryChain, "%d entries chain from genesis", chain.Entries)
	}

	artifactHash := artifactBytesHash(v.document)
	found, err := log.Find(v.commitHash)
	if err != nil {
		passed = false
		v.report.fail("transparency.entry", CategoryChain, "%v", err)
	} else {
		var match *translog.Located
		for index := range found {
			if found[index].Entry.ArtifactBytesHash == artifactHash {
				match = &found[index]
				break
			}
		}
		if match == nil {
			passed = false
			v.report.fail("transparency.entry", CategoryChain, "%d entries for commit_hash, none with artifact_bytes_hash %s", len(found), artifactHash)
		} else {
			v.report.pass("transparency.entry", CategoryChain, "%s at position %d", match.Entry.EntryID, match.Position)
		}
	}

	if v.options.Checkpoint != nil {
		if err := translog.VerifyCheckpoint(log, *v.options.Checkpoint); err != nil {
			passed = false
			v.report.fail("transparency.checkpoint", CategoryChain, "%v", err)
		} else {
			v.report.pass("transparency.checkpoint", CategoryChain, "log extends checkpoint of %d entries", v.options.Checkpoint.Entries)
		}
	}
	v.report.tiers.transparency = passed
}

// deterministic reports whether the artifact establishes level L1.
func deterministic(document map[string]any) bool {
	scope, _ := document[sealedrun.FieldHashScope].(map[string]any)
	parameters, _ := scope["parameters"].(map[string]any)
	flag, _ := parameters["deterministic"].(bool)
	clock, _ := parameters["clock"].(string)
	commitHash, _ := document[sealedrun.FieldCommitHash].(string)
	envelope, _ := document[sealedrun.FieldAuthorityEnvelope].(map[string]any)
	provenance, _ := envelope["provenance"].(map[string]any)
	runID, _ := provenance["run_id"].(string)
	committedAt, _ := document[sealedrun.FieldCommittedAt].(string)
	return flag && clock != "" && committedAt == clock && runID == detid.RunID(commitHash)
}

// artifactBytesHash is the digest of the canonical artifact bytes: the
// payload_bytes_hash of its signatures and the artifact_bytes_hash of
// its log entry.
func artifactBytesHash(document map[string]any) string {
	return canonical.SHA256(canonical.Canonicalize(document))
}

func boundPayloadDigest(scopeValue any) string {
	scope, _ := scopeValue.(map[string]any)
	parameters, _ := scope["parameters"].(map[string]any)
	digest, _ := parameters["payload_sha256"].(string)
	return digest
}

func exclusionsOf(scopeValue any) []string {
	scope, _ := scopeValue.(map[string]any)
	list, _ := scope["exclusions"].([]any)
	exclusions := make([]string, 0, len(list))
	for _, item := range list {
		if name, ok := item.(string); ok {
			exclusions = append(exclusions, name)
		}
	}
	return exclusions
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// oneLine joins the lines of a (possibly joined) error.
func oneLine(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}
