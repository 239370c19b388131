// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package canonical

import (
	"fmt"
	"math/big"
	"strings"
)

// maxExponent bounds exponent expansion. JSON numbers with larger
// exponents are valid but expanding them would allocate unbounded
// memory; they are kept in normalized scientific form instead.
const maxExponent = 4096

// FormatNumber rewrites a JSON number literal into canonical decimal
// form: optional "-", no leading zeros, no exponent, no trailing
// fractional zeros, and "0" for any zero (including "-0" and "0.000").
// The rewrite is purely textual, so it never depends on float
// formatting, rounding mode, or locale.
func FormatNumber(literal string) (string, error) {
	if literal == "" {
		return "", fmt.Errorf("empty number literal")
	}

	negative := false
	rest := literal
	if rest[0] == '-' {
		negative = true
		rest = rest[1:]
	}

	mantissa, exponentText, hasExponent := cutAny(rest, "eE")
	exponent := new(big.Int)
	if hasExponent {
		if _, ok := parseExponent(exponent, exponentText); !ok {
			return "", fmt.Errorf("invalid exponent in number %q", literal)
		}
	}

	integerPart, fractionPart, _ := strings.Cut(mantissa, ".")
	if integerPart == "" || !allDigits(integerPart) || !allDigits(fractionPart) {
		return "", fmt.Errorf("invalid number literal %q", literal)
	}

	digits := integerPart + fractionPart
	trimmed := strings.TrimLeft(digits, "0")
	// point is where the decimal point falls relative to the start of
	// digits once leading zeros are gone. It is a big.Int because the
	// exponent of a well-formed literal is unbounded.
	point := big.NewInt(int64(len(integerPart) - (len(digits) - len(trimmed))))
	point.Add(point, exponent)
	digits = strings.TrimRight(trimmed, "0")

	if digits == "" {
		return "0", nil
	}

	var builder strings.Builder
	if negative {
		builder.WriteByte('-')
	}

	if point.CmpAbs(big.NewInt(maxExponent)) > 0 {
		builder.WriteString(digits[:1])
		if len(digits) > 1 {
			builder.WriteByte('.')
			builder.WriteString(digits[1:])
		}
		builder.WriteString("e")
		builder.WriteString(new(big.Int).Sub(point, big.NewInt(1)).String())
		return builder.String(), nil
	}

	position := int(point.Int64())
	switch {
	case position <= 0:
		builder.WriteString("0.")
		builder.WriteString(strings.Repeat("0", -position))
		builder.WriteString(digits)
	case position >= len(digits):
		builder.WriteString(digits)
		builder.WriteString(strings.Repeat("0", position-len(digits)))
	default:
		builder.WriteString(digits[:position])
		builder.WriteByte('.')
		builder.WriteString(digits[position:])
	}
	return builder.String(), nil
}

// parseExponent parses an optionally signed run of decimal digits
// into target.
func parseExponent(target *big.Int, text string) (*big.Int, bool) {
	unsigned := strings.TrimLeft(text, "+-")
	if len(text)-len(unsigned) > 1 || unsigned == "" || !allDigits(unsigned) {
		return nil, false
	}
	if strings.HasPrefix(text, "+") {
		text = unsigned
	}
	return target.SetString(text, 10)
}

func cutAny(s, separators string) (before, after string, found bool) {
	if index := strings.IndexAny(s, separators); index >= 0 {
		return s[:index], s[index+1:], true
	}
	return s, "", false
}

func allDigits(s string) bool {
	for index := 0; index < len(s); index++ {
		if s[index] < '0' || s[index] > '9' {
			return false
		}
	}
	return true
}
