// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bureau-foundation/sealrun/lib/verify"
)

func TestPrinterReport(t *testing.T) {
	report := &verify.Report{Artifact: "run.json", RunID: "RUN-0123abcd"}
	report.Append(verify.Check{Name: "structure.json", Category: verify.CategoryStructural, Status: verify.StatusPass})
	report.Append(verify.Check{Name: "content_hash", Category: verify.CategoryHash, Status: verify.StatusFail, Detail: "stored sha256:aa, computed sha256:bb"})
	report.Append(verify.Check{Name: "signature", Category: verify.CategorySignature, Status: verify.StatusSkip})

	var output bytes.Buffer
	NewPrinter(&output).Report(report)
	text := output.String()

	for _, want := range []string{
		"== run.json\n",
		"[PASS] structure.json",
		"[FAIL] content_hash",
		"stored sha256:aa, computed sha256:bb",
		"[SKIP] signature",
		"run_id: RUN-0123abcd",
		"checks: 1 passed, 1 failed, 0 warnings, 1 skipped",
		"failed: content_hash",
		"RESULT: INADMISSIBLE (exit 3)\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "\x1b[") {
		t.Errorf("output to a buffer contains ANSI escapes:\n%q", text)
	}
}

func TestPrinterAdmissible(t *testing.T) {
	report := &verify.Report{}
	report.Append(verify.Check{Name: "structure.json", Category: verify.CategoryStructural, Status: verify.StatusPass})

	var output bytes.Buffer
	NewPrinter(&output).Report(report)
	if !strings.HasSuffix(output.String(), "RESULT: ADMISSIBLE\n") {
		t.Errorf("output = %q, want a final ADMISSIBLE result line", output.String())
	}
	if !strings.Contains(output.String(), "level: L0") {
		t.Errorf("output = %q, want level L0", output.String())
	}
}

func TestWriteJSONNormalizesNilSlices(t *testing.T) {
	var output bytes.Buffer
	params := JSONOutput{OutputJSON: true}
	var checks []verify.Check
	done, err := params.EmitJSON(&output, checks)
	if !done || err != nil {
		t.Fatalf("EmitJSON() = %v, %v", done, err)
	}
	if strings.TrimSpace(output.String()) != "[]" {
		t.Errorf("EmitJSON(nil slice) = %q, want []", output.String())
	}

	params.OutputJSON = false
	if done, _ := params.EmitJSON(&output, checks); done {
		t.Error("EmitJSON without --json reported done")
	}
}
