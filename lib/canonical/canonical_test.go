// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCanonicalizeSortsKeysAtEveryDepth(t *testing.T) {
	value, err := Parse([]byte(`{"b": {"z": 1, "a": [ {"y": true, "x": null} ]}, "a": "s"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := string(Canonicalize(value))
	want := `{"a":"s","b":{"a":[{"x":null,"y":true}],"z":1}}`
	if got != want {
		t.Errorf("Canonicalize() = %s, want %s", got, want)
	}
}

func TestCanonicalizeIsStableAcrossInputFormatting(t *testing.T) {
	first, err := Parse([]byte(`{"x":1,"y":[1,2,3]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second, err := Parse([]byte("{\n  \"y\": [1, 2.0, 3e0],\n  \"x\": 1.000\n}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if string(Canonicalize(first)) != string(Canonicalize(second)) {
		t.Errorf("canonical forms differ:\n%s\n%s", Canonicalize(first), Canonicalize(second))
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		literal string
		want    string
	}{
		{"0", "0"},
		{"-0", "0"},
		{"0.000", "0"},
		{"1", "1"},
		{"-17", "-17"},
		{"1.50", "1.5"},
		{"2.0", "2"},
		{"0.1", "0.1"},
		{"1e3", "1000"},
		{"1E+2", "100"},
		{"1.25e1", "12.5"},
		{"1e-7", "0.0000001"},
		{"-3.1400e-2", "-0.0314"},
		{"123456789012345678901234567890", "123456789012345678901234567890"},
		{"1e4097", "1e4097"},
		{"1e99999999999999999999", "1e99999999999999999999"},
		{"-2.5E-99999999999999999999", "-2.5e-99999999999999999999"},
	}
	for _, test := range tests {
		got, err := FormatNumber(test.literal)
		if err != nil {
			t.Errorf("FormatNumber(%q) error: %v", test.literal, err)
			continue
		}
		if got != test.want {
			t.Errorf("FormatNumber(%q) = %q, want %q", test.literal, got, test.want)
		}
	}
}

func TestFormatNumberRejectsGarbage(t *testing.T) {
	for _, literal := range []string{"", "-", ".5", "1.2.3", "1ex", "1e", "1e+-2", "abc"} {
		if _, err := FormatNumber(literal); err == nil {
			t.Errorf("FormatNumber(%q) succeeded, want error", literal)
		}
	}
}

func TestCanonicalizeHugeExponent(t *testing.T) {
	value, err := Parse([]byte(`{"n":1e99999999999999999999}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got, want := string(Canonicalize(value)), `{"n":1e99999999999999999999}`; got != want {
		t.Errorf("Canonicalize() = %s, want %s", got, want)
	}
}

func TestCanonicalizeStringEscapes(t *testing.T) {
	value := "quote\" back\\ nl\n tab\t ctl\x01 unicode é"
	got := string(Canonicalize(value))
	want := `"quote\" back\\ nl\n tab\t ctl\u0001 unicode é"`
	if got != want {
		t.Errorf("Canonicalize(%q) = %s, want %s", value, got, want)
	}
}

func TestCanonicalizeDoesNotEscapeHTML(t *testing.T) {
	got := string(Canonicalize("<a&b>"))
	if got != `"<a&b>"` {
		t.Errorf("Canonicalize() = %s, want HTML characters unescaped", got)
	}
}

func TestMarshalUsesJSONTags(t *testing.T) {
	type record struct {
		Zeta  string  `json:"zeta"`
		Alpha float64 `json:"alpha"`
		Skip  string  `json:"skip,omitempty"`
	}
	got, err := Marshal(record{Zeta: "z", Alpha: 2.50})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"alpha":2.5,"zeta":"z"}` {
		t.Errorf("Marshal() = %s", got)
	}
}

func TestCanonicalizeGoScalars(t *testing.T) {
	value := map[string]any{"i": 42, "f": 0.25, "n": json.Number("10.10")}
	got := string(Canonicalize(value))
	if got != `{"f":0.25,"i":42,"n":10.1}` {
		t.Errorf("Canonicalize() = %s", got)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	_, err := Parse([]byte(`{"a":1} {"b":2}`))
	if !errors.Is(err, ErrTrailingData) {
		t.Errorf("Parse() error = %v, want ErrTrailingData", err)
	}
}

func TestDigest(t *testing.T) {
	digest, err := Digest(map[string]any{"x": 1})
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	if digest != SHA256([]byte(`{"x":1}`)) {
		t.Errorf("Digest() = %s, want digest of canonical bytes", digest)
	}
	if !strings.HasPrefix(digest, DigestPrefix) || len(digest) != len(DigestPrefix)+64 {
		t.Errorf("Digest() = %q, want sha256:<64 hex>", digest)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := map[string]any{"nested": map[string]any{"list": []any{"a"}}}
	copied := Clone(original).(map[string]any)
	copied["nested"].(map[string]any)["list"].([]any)[0] = "b"
	if original["nested"].(map[string]any)["list"].([]any)[0] != "a" {
		t.Error("Clone shares nested storage with the original")
	}
}
