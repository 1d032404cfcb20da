// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syntax

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// parseNumber converts a numeric token into a constant whose Value is
// the canonical text: integers in decimal, floats in their shortest
// round-trip form, complex literals as the imaginary part's float text.
func parseNumber(text string) (*Constant, error) {
	lower := strings.ToLower(text)
	if strings.HasSuffix(lower, "j") {
		value, err := parseFloatText(text[:len(text)-1])
		if err != nil {
			return nil, err
		}
		return &Constant{Type: ConstComplex, Value: value}, nil
	}

	if len(lower) > 1 && lower[0] == '0' && strings.ContainsRune("xob", rune(lower[1])) {
		base, name := 16, "hexadecimal"
		switch lower[1] {
		case 'o':
			base, name = 8, "octal"
		case 'b':
			base, name = 2, "binary"
		}
		digits, err := stripUnderscores(text[2:], true)
		if err != nil || digits == "" {
			return nil, fmt.Errorf("invalid %s literal %q", name, text)
		}
		value, ok := new(big.Int).SetString(digits, base)
		if !ok {
			return nil, fmt.Errorf("invalid digit in %s literal %q", name, text)
		}
		return &Constant{Type: ConstInt, Value: value.String()}, nil
	}

	if strings.ContainsAny(lower, ".e") {
		value, err := parseFloatText(text)
		if err != nil {
			return nil, err
		}
		return &Constant{Type: ConstFloat, Value: value}, nil
	}

	digits, err := stripUnderscores(text, false)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal literal %q", text)
	}
	if len(digits) > 1 && digits[0] == '0' && strings.Trim(digits, "0") != "" {
		return nil, errors.New("leading zeros in decimal integer literals are not permitted")
	}
	value, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal literal %q", text)
	}
	return &Constant{Type: ConstInt, Value: value.String()}, nil
}

// stripUnderscores removes digit-group underscores, which must sit
// between two digits. afterPrefix allows one directly after a radix
// prefix.
func stripUnderscores(text string, afterPrefix bool) (string, error) {
	if !strings.Contains(text, "_") {
		return text, nil
	}
	isDigitLike := func(c byte) bool { return isHexDigit(c) }
	for index := 0; index < len(text); index++ {
		if text[index] != '_' {
			continue
		}
		previousOK := index > 0 && isDigitLike(text[index-1]) || index == 0 && afterPrefix
		nextOK := index+1 < len(text) && isDigitLike(text[index+1])
		if !previousOK || !nextOK {
			return "", errors.New("misplaced underscore")
		}
	}
	return strings.ReplaceAll(text, "_", ""), nil
}

func parseFloatText(text string) (string, error) {
	// Exponent letters are digit-like for underscore placement, so
	// check the mantissa and exponent separately.
	mantissa, exponent, hasExponent := strings.Cut(strings.ToLower(text), "e")
	whole, fraction, _ := strings.Cut(mantissa, ".")
	for _, part := range []string{whole, fraction, strings.TrimLeft(exponent, "+-")} {
		if strings.HasPrefix(part, "_") || strings.HasSuffix(part, "_") || strings.Contains(part, "__") {
			return "", fmt.Errorf("invalid decimal literal %q", text)
		}
	}
	if hasExponent && strings.TrimLeft(exponent, "+-") == "" {
		return "", fmt.Errorf("invalid decimal literal %q", text)
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return "", fmt.Errorf("invalid decimal literal %q", text)
	}
	return FormatFloat(value), nil
}

// FormatFloat renders a float in its shortest round-trip form: fixed
// notation with a trailing ".0" for decimal exponents in [-4, 16),
// otherwise scientific notation with a signed two-digit exponent.
// Infinities render as "inf" and "-inf".
func FormatFloat(value float64) string {
	switch {
	case math.IsInf(value, 1):
		return "inf"
	case math.IsInf(value, -1):
		return "-inf"
	case math.IsNaN(value):
		return "nan"
	}
	scientific := strconv.FormatFloat(value, 'e', -1, 64)
	exponent, _ := strconv.Atoi(scientific[strings.IndexByte(scientific, 'e')+1:])
	if exponent < -4 || exponent >= 16 {
		return scientific
	}
	fixed := strconv.FormatFloat(value, 'f', -1, 64)
	if !strings.Contains(fixed, ".") {
		fixed += ".0"
	}
	return fixed
}

type literalKind uint8

const (
	literalText literalKind = iota
	literalBytes
	literalFormatted
)

type stringLiteral struct {
	kind  literalKind
	value string
}

// decodeStringLiteral splits a string token into prefix and body and
// resolves escape sequences. Formatted literals are not decoded.
func decodeStringLiteral(text string) (stringLiteral, error) {
	quoteAt := strings.IndexAny(text, "'\"")
	prefix := strings.ToLower(text[:quoteAt])
	body := text[quoteAt:]
	if len(body) >= 6 && (strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, "'''")) {
		body = body[3 : len(body)-3]
	} else {
		body = body[1 : len(body)-1]
	}

	raw := strings.Contains(prefix, "r")
	switch {
	case strings.Contains(prefix, "f"):
		return stringLiteral{kind: literalFormatted}, nil
	case strings.Contains(prefix, "b"):
		for index := 0; index < len(body); index++ {
			if body[index] >= utf8.RuneSelf {
				return stringLiteral{}, errors.New("bytes can only contain ASCII literal characters")
			}
		}
		if raw {
			return stringLiteral{kind: literalBytes, value: body}, nil
		}
		value, err := unescape(body, true)
		return stringLiteral{kind: literalBytes, value: value}, err
	case raw:
		return stringLiteral{kind: literalText, value: body}, nil
	}
	value, err := unescape(body, false)
	return stringLiteral{kind: literalText, value: value}, err
}

var simpleEscapes = map[byte]byte{
	'\\': '\\', '\'': '\'', '"': '"', 'a': '\a', 'b': '\b',
	'f': '\f', 'n': '\n', 'r': '\r', 't': '\t', 'v': '\v',
}

// unescape resolves backslash escapes. For bytes every escape yields a
// single byte; for text, escapes yield code points, with surrogates
// replaced by U+FFFD. Unrecognised escapes are kept verbatim.
func unescape(body string, bytesLiteral bool) (string, error) {
	if !strings.Contains(body, `\`) {
		return body, nil
	}
	var out strings.Builder
	out.Grow(len(body))
	writeCode := func(code uint64) {
		if bytesLiteral {
			out.WriteByte(byte(code))
			return
		}
		r := rune(code)
		if !utf8.ValidRune(r) {
			r = utf8.RuneError
		}
		out.WriteRune(r)
	}
	for index := 0; index < len(body); index++ {
		c := body[index]
		if c != '\\' || index+1 >= len(body) {
			out.WriteByte(c)
			continue
		}
		index++
		c = body[index]
		if c == '\n' {
			continue
		}
		if replacement, ok := simpleEscapes[c]; ok {
			out.WriteByte(replacement)
			continue
		}
		switch {
		case c >= '0' && c <= '7':
			end := index + 1
			for end < len(body) && end < index+3 && body[end] >= '0' && body[end] <= '7' {
				end++
			}
			code, _ := strconv.ParseUint(body[index:end], 8, 32)
			if bytesLiteral && code > 0xff {
				return "", fmt.Errorf("octal escape \\%s out of range for bytes", body[index:end])
			}
			writeCode(code)
			index = end - 1
		case c == 'x':
			code, err := hexEscape(body, index+1, 2, `\x`)
			if err != nil {
				return "", err
			}
			writeCode(code)
			index += 2
		case (c == 'u' || c == 'U') && !bytesLiteral:
			width := 4
			if c == 'U' {
				width = 8
			}
			code, err := hexEscape(body, index+1, width, `\`+string(c))
			if err != nil {
				return "", err
			}
			if code > utf8.MaxRune {
				return "", fmt.Errorf("illegal Unicode character in \\%c escape", c)
			}
			writeCode(code)
			index += width
		case c == 'N' && !bytesLiteral:
			return "", errors.New(`named Unicode escapes (\N{...}) are not supported`)
		default:
			out.WriteByte('\\')
			out.WriteByte(c)
		}
	}
	return out.String(), nil
}

func hexEscape(body string, start, width int, name string) (uint64, error) {
	if start+width > len(body) {
		return 0, fmt.Errorf("truncated %s escape", name)
	}
	code, err := strconv.ParseUint(body[start:start+width], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("truncated %s escape", name)
	}
	return code, nil
}

// quoteText renders text the way a Python repr does: single quotes
// unless the text contains a single quote and no double quote, with
// non-printable characters escaped.
func quoteText(text string) string {
	quote := byte('\'')
	if strings.Contains(text, "'") && !strings.Contains(text, `"`) {
		quote = '"'
	}
	var out strings.Builder
	out.WriteByte(quote)
	for _, r := range text {
		switch {
		case r == rune(quote) || r == '\\':
			out.WriteByte('\\')
			out.WriteRune(r)
		case r == '\n':
			out.WriteString(`\n`)
		case r == '\r':
			out.WriteString(`\r`)
		case r == '\t':
			out.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&out, `\x%02x`, r)
		case r >= 0x80 && !strconv.IsPrint(r):
			switch {
			case r <= 0xff:
				fmt.Fprintf(&out, `\x%02x`, r)
			case r <= 0xffff:
				fmt.Fprintf(&out, `\u%04x`, r)
			default:
				fmt.Fprintf(&out, `\U%08x`, r)
			}
		default:
			out.WriteRune(r)
		}
	}
	out.WriteByte(quote)
	return out.String()
}

// quoteBytes renders a bytes value as a b'...' literal.
func quoteBytes(value string) string {
	quote := byte('\'')
	if strings.Contains(value, "'") && !strings.Contains(value, `"`) {
		quote = '"'
	}
	var out strings.Builder
	out.WriteString("b")
	out.WriteByte(quote)
	for index := 0; index < len(value); index++ {
		c := value[index]
		switch {
		case c == quote || c == '\\':
			out.WriteByte('\\')
			out.WriteByte(c)
		case c == '\n':
			out.WriteString(`\n`)
		case c == '\r':
			out.WriteString(`\r`)
		case c == '\t':
			out.WriteString(`\t`)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&out, `\x%02x`, c)
		default:
			out.WriteByte(c)
		}
	}
	out.WriteByte(quote)
	return out.String()
}
