// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

type sampleHead struct {
	Entries   int    `cbor:"entries"`
	LastEntry string `cbor:"last_entry_id"`
}

type sampleJSONTagged struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleHead{Entries: 42, LastEntry: "TLE-0123456789ab"}
	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleHead
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip = %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(map[string]any{"b": 1, "a": 2, "c": []any{"x"}})
	if err != nil {
		t.Fatal(err)
	}
	for range 10 {
		again, err := Marshal(map[string]any{"c": []any{"x"}, "a": 2, "b": 1})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Marshal not deterministic: %x vs %x", first, again)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	data, err := Marshal(sampleJSONTagged{Version: 1, Name: "head"})
	if err != nil {
		t.Fatal(err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diagnostic, `"version": 1`) || !strings.Contains(diagnostic, `"name": "head"`) {
		t.Errorf("Diagnose() = %s, want json tag names", diagnostic)
	}
}

func TestUnmarshalRejectsUnknownField(t *testing.T) {
	data, err := Marshal(map[string]any{"entries": 1, "surprise": true})
	if err != nil {
		t.Fatal(err)
	}
	var decoded sampleHead
	if err := Unmarshal(data, &decoded); err == nil {
		t.Error("Unmarshal accepted an unknown field")
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var decoded sampleHead
	if err := Unmarshal([]byte{0xff, 0x00}, &decoded); err == nil {
		t.Error("Unmarshal accepted invalid CBOR")
	}
}

func TestAnyMapsDecodeWithStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"k": map[string]any{"inner": 1}})
	if err != nil {
		t.Fatal(err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if _, ok := outer["k"].(map[string]any); !ok {
		t.Errorf("inner map decoded as %T, want map[string]any", outer["k"])
	}
}
