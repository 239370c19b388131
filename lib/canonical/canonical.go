// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"unicode/utf8"
)

// DigestPrefix is the algorithm prefix carried by every digest string.
const DigestPrefix = "sha256:"

// ErrTrailingData is returned by [Parse] when the input holds more than
// one JSON value.
var ErrTrailingData = errors.New("canonical: trailing data after JSON value")

// Marshal encodes v with encoding/json, decodes the result into the
// canonical value model, and returns the canonical bytes. Struct field
// names and omitempty behavior therefore follow the json tags.
func Marshal(v any) ([]byte, error) {
	value, err := ToValue(v)
	if err != nil {
		return nil, err
	}
	return Canonicalize(value), nil
}

// ToValue converts any JSON-marshalable Go value into the canonical
// value model (nil, bool, string, json.Number, []any, map[string]any).
func ToValue(v any) (any, error) {
	if isModelValue(v) {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: encoding %T: %w", v, err)
	}
	return Parse(data)
}

// Parse decodes a single JSON document into the canonical value model.
// Numbers are kept as json.Number so no precision is lost before
// canonical formatting.
func Parse(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("canonical: decoding JSON: %w", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	return value, nil
}

// Canonicalize returns the canonical bytes of a value in the canonical
// value model. It panics if value contains a type outside the model,
// which is a programming error: use [Marshal] for arbitrary Go values.
func Canonicalize(value any) []byte {
	var buffer bytes.Buffer
	writeValue(&buffer, value)
	return buffer.Bytes()
}

// SHA256 returns the "sha256:<hex>" digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// Digest returns the "sha256:<hex>" digest of the canonical bytes of v.
func Digest(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return SHA256(data), nil
}

// Clone returns a deep copy of a value in the canonical value model.
// Scalars are returned as-is.
func Clone(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, element := range typed {
			out[key] = Clone(element)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for index, element := range typed {
			out[index] = Clone(element)
		}
		return out
	default:
		return value
	}
}

func isModelValue(v any) bool {
	switch v.(type) {
	case nil, bool, string, json.Number, []any, map[string]any:
		return true
	}
	return false
}

func writeValue(buffer *bytes.Buffer, value any) {
	switch typed := value.(type) {
	case nil:
		buffer.WriteString("null")
	case bool:
		if typed {
			buffer.WriteString("true")
		} else {
			buffer.WriteString("false")
		}
	case string:
		writeString(buffer, typed)
	case json.Number:
		formatted, err := FormatNumber(typed.String())
		if err != nil {
			panic("canonical: " + err.Error())
		}
		buffer.WriteString(formatted)
	case float64:
		writeFloat(buffer, typed)
	case float32:
		writeFloat(buffer, float64(typed))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		formatted, _ := FormatNumber(fmt.Sprint(typed))
		buffer.WriteString(formatted)
	case []any:
		buffer.WriteByte('[')
		for index, element := range typed {
			if index > 0 {
				buffer.WriteByte(',')
			}
			writeValue(buffer, element)
		}
		buffer.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		buffer.WriteByte('{')
		for index, key := range keys {
			if index > 0 {
				buffer.WriteByte(',')
			}
			writeString(buffer, key)
			buffer.WriteByte(':')
			writeValue(buffer, typed[key])
		}
		buffer.WriteByte('}')
	default:
		panic(fmt.Sprintf("canonical: %s is not a JSON value type", reflect.TypeOf(value)))
	}
}

func writeFloat(buffer *bytes.Buffer, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		panic("canonical: NaN and Inf are not JSON numbers")
	}
	formatted, _ := FormatNumber(strconv.FormatFloat(value, 'f', -1, 64))
	buffer.WriteString(formatted)
}

const hexDigits = "0123456789abcdef"

// writeString emits a JSON string with the minimal escape set. Invalid
// UTF-8 sequences are replaced with U+FFFD, matching encoding/json.
func writeString(buffer *bytes.Buffer, s string) {
	buffer.WriteByte('"')
	for index := 0; index < len(s); {
		character := s[index]
		if character < utf8.RuneSelf {
			switch character {
			case '"':
				buffer.WriteString(`\"`)
			case '\\':
				buffer.WriteString(`\\`)
			case '\b':
				buffer.WriteString(`\b`)
			case '\f':
				buffer.WriteString(`\f`)
			case '\n':
				buffer.WriteString(`\n`)
			case '\r':
				buffer.WriteString(`\r`)
			case '\t':
				buffer.WriteString(`\t`)
			default:
				if character < 0x20 {
					buffer.WriteString(`\u00`)
					buffer.WriteByte(hexDigits[character>>4])
					buffer.WriteByte(hexDigits[character&0xF])
				} else {
					buffer.WriteByte(character)
				}
			}
			index++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[index:])
		if r == utf8.RuneError && size == 1 {
			buffer.WriteString("\ufffd")
		} else {
			buffer.WriteString(s[index : index+size])
		}
		index += size
	}
	buffer.WriteByte('"')
}
