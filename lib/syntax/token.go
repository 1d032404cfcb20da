// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syntax

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// tokenType classifies a lexer token.
type tokenType uint8

const (
	tokenEOF tokenType = iota
	tokenName
	tokenNumber
	tokenString
	tokenOp
	tokenNewline
	tokenIndent
	tokenDedent
)

func (t tokenType) String() string {
	switch t {
	case tokenEOF:
		return "end of file"
	case tokenName:
		return "name"
	case tokenNumber:
		return "number"
	case tokenString:
		return "string"
	case tokenOp:
		return "operator"
	case tokenNewline:
		return "newline"
	case tokenIndent:
		return "indent"
	case tokenDedent:
		return "dedent"
	default:
		return "unknown"
	}
}

// token is one lexeme. Text is the exact source text; for strings it
// includes the prefix and quotes.
type token struct {
	Type      tokenType
	Text      string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

func (t token) String() string {
	switch t.Type {
	case tokenName, tokenNumber, tokenOp:
		return fmt.Sprintf("%q", t.Text)
	case tokenString:
		return "string literal"
	default:
		return t.Type.String()
	}
}

// operators lists every operator and delimiter, longest first so that
// the lexer can take the first prefix match.
var operators = []string{
	"**=", "//=", ">>=", "<<=", "...",
	"->", ":=", "**", "//", "<<", ">>", "<=", ">=", "==", "!=",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@=",
	"+", "-", "*", "/", "%", "@", "&", "|", "^", "~", "<", ">",
	"(", ")", "[", "]", "{", "}", ",", ":", ".", ";", "=",
}

// keywords cannot be used as identifiers.
var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true,
	"class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true,
	"import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true,
	"with": true, "yield": true,
}

// IsKeyword reports whether name is a reserved word.
func IsKeyword(name string) bool { return keywords[name] }

// IsIdentifier reports whether name is a valid, non-reserved identifier.
func IsIdentifier(name string) bool {
	if name == "" || keywords[name] {
		return false
	}
	for index, r := range name {
		if index == 0 && !isIdentifierStart(r) || !isIdentifierPart(r) {
			return false
		}
	}
	return true
}

func isIdentifierStart(r rune) bool {
	return r == '_' || r < utf8.RuneSelf && ('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z') ||
		r >= utf8.RuneSelf && (unicode.IsLetter(r) || unicode.Is(unicode.Nl, r) || unicode.Is(unicode.Other_ID_Start, r))
}

func isIdentifierPart(r rune) bool {
	return isIdentifierStart(r) || '0' <= r && r <= '9' ||
		r >= utf8.RuneSelf && (unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) ||
			unicode.Is(unicode.Pc, r) || unicode.Is(unicode.Other_ID_Continue, r))
}

// isStringPrefix reports whether text, case-insensitively, is one of
// the accepted string prefixes.
func isStringPrefix(text string) bool {
	switch strings.ToLower(text) {
	case "r", "u", "b", "f", "br", "rb", "fr", "rf":
		return true
	}
	return false
}

// lexer turns source text into tokens, producing INDENT and DEDENT from
// leading whitespace and dropping comments, blank lines and newlines
// inside brackets.
type lexer struct {
	source    string
	offset    int
	line      int
	lineStart int
	depth     int
	indents   []int
	tokens    []token
}

const tabSize = 8

func tokenize(source string) ([]token, error) {
	source = strings.TrimPrefix(source, "\ufeff")
	source = strings.ReplaceAll(source, "\r\n", "\n")
	source = strings.ReplaceAll(source, "\r", "\n")
	lx := &lexer{source: source, line: 1, indents: []int{0}}
	err := lx.run()
	if err != nil {
		// Close the tokens read so far at the failure point, so the
		// parser can still find an earlier error.
		line, column := lx.line, lx.column()
		var failure *Error
		if errors.As(err, &failure) {
			line, column = failure.Line, failure.Column
		}
		lx.tokens = append(lx.tokens, token{Type: tokenEOF, Line: line, Column: column, EndLine: line, EndColumn: column})
	}
	return lx.tokens, err
}

func (lx *lexer) errorf(line, column int, format string, args ...any) error {
	return &Error{Line: line, Column: column, Message: fmt.Sprintf(format, args...)}
}

func (lx *lexer) column() int { return lx.offset - lx.lineStart }

func (lx *lexer) emit(kind tokenType, start, line, column int) {
	lx.tokens = append(lx.tokens, token{
		Type:      kind,
		Text:      lx.source[start:lx.offset],
		Line:      line,
		Column:    column,
		EndLine:   lx.line,
		EndColumn: lx.column(),
	})
}

func (lx *lexer) lastType() tokenType {
	if len(lx.tokens) == 0 {
		return tokenNewline
	}
	return lx.tokens[len(lx.tokens)-1].Type
}

func (lx *lexer) newline() {
	lx.offset++
	lx.line++
	lx.lineStart = lx.offset
}

func (lx *lexer) run() error {
	atLineStart := true
	for {
		if atLineStart && lx.depth == 0 {
			done, err := lx.indentation()
			if err != nil {
				return err
			}
			if done {
				return lx.finish()
			}
			atLineStart = false
		}
		if lx.offset >= len(lx.source) {
			return lx.finish()
		}
		c := lx.source[lx.offset]
		switch {
		case c == ' ' || c == '\t' || c == '\f':
			lx.offset++
		case c == '#':
			lx.skipComment()
		case c == '\\':
			if lx.offset+1 < len(lx.source) && lx.source[lx.offset+1] == '\n' {
				lx.offset++
				lx.newline()
				continue
			}
			return lx.errorf(lx.line, lx.column(), "unexpected character after line continuation character")
		case c == '\n':
			if lx.depth > 0 {
				lx.newline()
				continue
			}
			start, column := lx.offset, lx.column()
			lx.offset++
			lx.tokens = append(lx.tokens, token{
				Type: tokenNewline, Text: lx.source[start:lx.offset],
				Line: lx.line, Column: column, EndLine: lx.line, EndColumn: column + 1,
			})
			lx.line++
			lx.lineStart = lx.offset
			atLineStart = true
		case c == '"' || c == '\'':
			if err := lx.lexString(lx.offset); err != nil {
				return err
			}
		case '0' <= c && c <= '9' || c == '.' && lx.offset+1 < len(lx.source) && isDigit(lx.source[lx.offset+1]):
			if err := lx.lexNumber(); err != nil {
				return err
			}
		default:
			r, _ := utf8.DecodeRuneInString(lx.source[lx.offset:])
			if isIdentifierStart(r) {
				if err := lx.lexName(); err != nil {
					return err
				}
				continue
			}
			if err := lx.lexOperator(); err != nil {
				return err
			}
		}
	}
}

// indentation measures the leading whitespace of a logical line and
// emits INDENT or DEDENT tokens. Blank and comment-only lines are
// consumed without effect. It reports true at end of input.
func (lx *lexer) indentation() (bool, error) {
	for {
		width := 0
	scan:
		for lx.offset < len(lx.source) {
			switch lx.source[lx.offset] {
			case ' ':
				width++
			case '\t':
				width = (width/tabSize + 1) * tabSize
			case '\f':
				width = 0
			default:
				break scan
			}
			lx.offset++
		}
		if lx.offset >= len(lx.source) {
			return true, nil
		}
		switch lx.source[lx.offset] {
		case '#':
			lx.skipComment()
			if lx.offset < len(lx.source) {
				lx.newline()
			}
			continue
		case '\n':
			lx.newline()
			continue
		case '\\':
			if lx.offset+1 < len(lx.source) && lx.source[lx.offset+1] == '\n' {
				lx.offset++
				lx.newline()
				continue
			}
		}
		return false, lx.indent(width)
	}
}

func (lx *lexer) indent(width int) error {
	current := lx.indents[len(lx.indents)-1]
	column := lx.column()
	switch {
	case width > current:
		lx.indents = append(lx.indents, width)
		lx.tokens = append(lx.tokens, token{Type: tokenIndent, Line: lx.line, Column: column, EndLine: lx.line, EndColumn: column})
	case width < current:
		for width < lx.indents[len(lx.indents)-1] {
			lx.indents = lx.indents[:len(lx.indents)-1]
			lx.tokens = append(lx.tokens, token{Type: tokenDedent, Line: lx.line, Column: column, EndLine: lx.line, EndColumn: column})
		}
		if width != lx.indents[len(lx.indents)-1] {
			return lx.errorf(lx.line, column, "unindent does not match any outer indentation level")
		}
	}
	return nil
}

func (lx *lexer) finish() error {
	if lx.depth > 0 {
		return lx.errorf(lx.line, lx.column(), "unexpected end of input inside brackets")
	}
	column := lx.column()
	if lx.lastType() != tokenNewline && lx.lastType() != tokenDedent && lx.lastType() != tokenIndent {
		lx.tokens = append(lx.tokens, token{Type: tokenNewline, Line: lx.line, Column: column, EndLine: lx.line, EndColumn: column})
	}
	for len(lx.indents) > 1 {
		lx.indents = lx.indents[:len(lx.indents)-1]
		lx.tokens = append(lx.tokens, token{Type: tokenDedent, Line: lx.line, Column: column, EndLine: lx.line, EndColumn: column})
	}
	lx.tokens = append(lx.tokens, token{Type: tokenEOF, Line: lx.line, Column: column, EndLine: lx.line, EndColumn: column})
	return nil
}

func (lx *lexer) skipComment() {
	for lx.offset < len(lx.source) && lx.source[lx.offset] != '\n' {
		lx.offset++
	}
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func (lx *lexer) lexName() error {
	start, column := lx.offset, lx.column()
	for lx.offset < len(lx.source) {
		r, width := utf8.DecodeRuneInString(lx.source[lx.offset:])
		if !isIdentifierPart(r) {
			break
		}
		lx.offset += width
	}
	if lx.offset < len(lx.source) && (lx.source[lx.offset] == '"' || lx.source[lx.offset] == '\'') &&
		isStringPrefix(lx.source[start:lx.offset]) {
		return lx.lexString(start)
	}
	lx.emit(tokenName, start, lx.line, column)
	return nil
}

// lexNumber scans the longest numeric literal. Validation and
// conversion happen in the parser.
func (lx *lexer) lexNumber() error {
	start, column := lx.offset, lx.column()
	source := lx.source
	digits := func(accept func(byte) bool) {
		for lx.offset < len(source) && (accept(source[lx.offset]) || source[lx.offset] == '_') {
			lx.offset++
		}
	}
	if source[lx.offset] == '0' && lx.offset+1 < len(source) && strings.ContainsRune("xXoObB", rune(source[lx.offset+1])) {
		lx.offset += 2
		digits(isHexDigit)
	} else {
		digits(isDigit)
		if lx.offset < len(source) && source[lx.offset] == '.' {
			lx.offset++
			digits(isDigit)
		}
		if lx.offset < len(source) && (source[lx.offset] == 'e' || source[lx.offset] == 'E') {
			next := lx.offset + 1
			if next < len(source) && (source[next] == '+' || source[next] == '-') {
				next++
			}
			if next < len(source) && isDigit(source[next]) {
				lx.offset = next
				digits(isDigit)
			}
		}
		if lx.offset < len(source) && (source[lx.offset] == 'j' || source[lx.offset] == 'J') {
			lx.offset++
		}
	}
	lx.emit(tokenNumber, start, lx.line, column)
	return nil
}

// lexString scans a string literal whose prefix begins at start and
// whose opening quote is at the current offset.
func (lx *lexer) lexString(start int) error {
	line, column := lx.line, start-lx.lineStart
	quote := lx.source[lx.offset]
	triple := strings.HasPrefix(lx.source[lx.offset:], strings.Repeat(string(quote), 3))
	if triple {
		lx.offset += 3
	} else {
		lx.offset++
	}
	for {
		if lx.offset >= len(lx.source) {
			if triple {
				return lx.errorf(line, column, "unterminated triple-quoted string literal")
			}
			return lx.errorf(line, column, "unterminated string literal")
		}
		c := lx.source[lx.offset]
		switch {
		case c == '\\':
			lx.offset++
			if lx.offset < len(lx.source) {
				if lx.source[lx.offset] == '\n' {
					lx.newline()
				} else {
					lx.offset++
				}
			}
		case c == '\n':
			if !triple {
				return lx.errorf(line, column, "unterminated string literal")
			}
			lx.newline()
		case c == quote:
			if !triple {
				lx.offset++
				lx.emit(tokenString, start, line, column)
				return nil
			}
			if strings.HasPrefix(lx.source[lx.offset:], strings.Repeat(string(quote), 3)) {
				lx.offset += 3
				lx.emit(tokenString, start, line, column)
				return nil
			}
			lx.offset++
		default:
			lx.offset++
		}
	}
}

func (lx *lexer) lexOperator() error {
	start, column := lx.offset, lx.column()
	rest := lx.source[lx.offset:]
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			lx.offset += len(op)
			switch op {
			case "(", "[", "{":
				lx.depth++
			case ")", "]", "}":
				if lx.depth == 0 {
					return lx.errorf(lx.line, column, "unmatched %q", op)
				}
				lx.depth--
			}
			lx.emit(tokenOp, start, lx.line, column)
			return nil
		}
	}
	r, _ := utf8.DecodeRuneInString(rest)
	if r == utf8.RuneError {
		return lx.errorf(lx.line, column, "invalid UTF-8 in source")
	}
	return lx.errorf(lx.line, column, "invalid character %q (U+%04X)", r, r)
}
