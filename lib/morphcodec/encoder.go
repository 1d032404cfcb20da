// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morphcodec

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/bureau-foundation/quenyan/lib/binhash"
	"github.com/bureau-foundation/quenyan/lib/langprofile"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/payload"
	"github.com/bureau-foundation/quenyan/lib/sourcemap"
	"github.com/bureau-foundation/quenyan/lib/syntax"
	"github.com/bureau-foundation/quenyan/lib/version"
)

// EncoderVersion is recorded in every stream this package writes.
var EncoderVersion = version.Current.String()

// Meta keys framing every stream.
const (
	KeyStreamStart       = "meta:stream_start"
	KeyVersionHeader     = "meta:version_header"
	KeyDictionaryVersion = "meta:dictionary_version"
	KeyStreamEnd         = "meta:stream_end"
)

// Policy selects what happens to constructs without a morpheme.
type Policy int

const (
	// PolicySubstitute writes meta:unknown and keeps the construct's
	// source text so decoding can re-parse it.
	PolicySubstitute Policy = iota
	// PolicyStrict fails the encode.
	PolicyStrict
)

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "substitute"
}

// ParsePolicy accepts "substitute" and "strict".
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "", "substitute":
		return PolicySubstitute, nil
	case "strict":
		return PolicyStrict, nil
	}
	return 0, fmt.Errorf("unknown morpheme policy %q (want substitute or strict)", name)
}

// Options configure one encode call.
type Options struct {
	// Profile is the language profile. When nil it is chosen from Path
	// through Registry, or the built-in registry when Registry is nil.
	Profile  *langprofile.Profile
	Registry *langprofile.Registry
	Path     string

	Policy Policy
	// SourceMap records a source map entry per token.
	SourceMap bool

	Author    string
	License   string
	Timestamp time.Time

	Logger *slog.Logger
}

// Warning records a construct written as meta:unknown.
type Warning struct {
	Token  int
	Key    string
	Node   string
	Line   int
	Column int
}

func (w Warning) String() string {
	return fmt.Sprintf("unknown morpheme %q for %s at line %d, column %d (token %d)", w.Key, w.Node, w.Line, w.Column, w.Token)
}

// EncodedStream is the complete output of an encode. It is not
// modified after [Encoder.Encode] returns.
type EncodedStream struct {
	Dictionary        *morpheme.Dictionary
	DictionaryVersion string
	EncoderVersion    string

	Tokens   []int
	Channels *payload.Channels
	// SourceMap is nil unless requested.
	SourceMap *sourcemap.Map

	SourceHash            string
	SourceLanguage        string
	SourceLanguageVersion string
	SourceEncoding        string

	Warnings []Warning

	Author    string
	License   string
	Timestamp time.Time
}

// Trace renders the tokens as "morpheme<key>". A substituted token
// names the key that was missing: "morpheme<meta:unknown:key>".
func (s *EncodedStream) Trace() []string {
	trace := s.Dictionary.Humanize(s.Tokens)
	for _, warning := range s.Warnings {
		entry, _ := s.Dictionary.Entry(s.Tokens[warning.Token])
		trace[warning.Token] = entry.Morpheme + "<" + morpheme.FallbackKey + ":" + warning.Key + ">"
	}
	return trace
}

// Encoder writes streams against one dictionary. It holds no per-call
// state and may be used concurrently.
type Encoder struct {
	dictionary *morpheme.Dictionary
}

// NewEncoder returns an encoder for dictionary.
func NewEncoder(dictionary *morpheme.Dictionary) *Encoder {
	return &Encoder{dictionary: dictionary}
}

// Dictionary returns the encoder's dictionary.
func (e *Encoder) Dictionary() *morpheme.Dictionary { return e.dictionary }

// Encode decodes source with the profile's encodings, parses it and
// encodes the tree. Source that is not text fails with an error
// wrapping [langprofile.ErrNotText]; source that does not parse fails
// with a [*syntax.Error].
func (e *Encoder) Encode(source []byte, options Options) (*EncodedStream, error) {
	profile, err := selectProfile(options)
	if err != nil {
		return nil, err
	}
	text, encoding, err := profile.DecodeSource(source)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}
	tree, err := syntax.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing source: %w", err)
	}
	return e.encode(tree, profile, options, binhash.SumHex(source), encoding)
}

// EncodeTree encodes an already built tree. The source hash is taken
// over the tree's canonical source text.
func (e *Encoder) EncodeTree(tree *syntax.Module, options Options) (*EncodedStream, error) {
	profile, err := selectProfile(options)
	if err != nil {
		return nil, err
	}
	return e.encode(tree, profile, options, binhash.SumHex([]byte(syntax.Unparse(tree))), "utf-8")
}

func (e *Encoder) encode(tree *syntax.Module, profile *langprofile.Profile, options Options, sourceHash, encoding string) (*EncodedStream, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	w := &writer{
		dictionary: e.dictionary,
		profile:    profile,
		strict:     options.Policy == PolicyStrict || e.dictionary.Strict(),
		channels:   &payload.Channels{},
		logger:     logger,
	}
	if options.SourceMap {
		w.sourceMap = &sourcemap.Builder{}
	}
	w.stream(tree)
	if w.err != nil {
		return nil, w.err
	}

	stream := &EncodedStream{
		Dictionary:            e.dictionary,
		DictionaryVersion:     e.dictionary.Version(),
		EncoderVersion:        EncoderVersion,
		Tokens:                w.tokens,
		Channels:              w.channels,
		SourceHash:            sourceHash,
		SourceLanguage:        profile.Name,
		SourceLanguageVersion: profile.Version,
		SourceEncoding:        encoding,
		Warnings:              w.warnings,
		Author:                options.Author,
		License:               options.License,
		Timestamp:             options.Timestamp,
	}
	if w.sourceMap != nil {
		stream.SourceMap = w.sourceMap.Build(stream.SourceHash, stream.DictionaryVersion, stream.EncoderVersion)
	}
	logger.Debug("encoded stream",
		"tokens", len(w.tokens),
		"payloads", len(w.channels.Entries),
		"warnings", len(w.warnings),
		"language", profile.Name,
	)
	return stream, nil
}

func selectProfile(options Options) (*langprofile.Profile, error) {
	if options.Profile != nil {
		return options.Profile, nil
	}
	registry := options.Registry
	if registry == nil {
		var err error
		if registry, err = langprofile.Builtin(); err != nil {
			return nil, fmt.Errorf("loading language profiles: %w", err)
		}
	}
	profile, err := registry.ForPath(options.Path, "", "")
	if err != nil {
		return nil, fmt.Errorf("selecting language profile: %w", err)
	}
	return profile, nil
}

// writer is the encoding traversal. It implements [syntax.FieldVisitor]
// so every node describes its own fields; payloads are attached to
// owner, the token of the node whose fields are being visited.
type writer struct {
	dictionary *morpheme.Dictionary
	profile    *langprofile.Profile
	strict     bool
	logger     *slog.Logger

	tokens    []int
	channels  *payload.Channels
	sourceMap *sourcemap.Builder
	warnings  []Warning

	owner     int
	ownerNode syntax.Node
	err       error
}

type mark struct {
	token int
	node  syntax.Node
}

func (w *writer) mark() mark { return mark{token: w.owner, node: w.ownerNode} }

func (w *writer) restore(m mark) { w.owner, w.ownerNode = m.token, m.node }

func (w *writer) stream(tree *syntax.Module) {
	w.meta(KeyStreamStart)
	w.meta(KeyVersionHeader)
	w.channels.AddString(w.owner, "encoder_version", EncoderVersion)
	w.meta(KeyDictionaryVersion)
	w.channels.AddString(w.owner, "dictionary_version", w.dictionary.Version())

	key, ok := w.profile.KeyFor(tree)
	if !ok {
		w.fail(&UnknownMorphemeError{Key: tree.Kind(), Node: tree.Kind(), Reason: "profile has no module key"})
		return
	}
	resolution, err := w.dictionary.Resolve(key, true)
	if err != nil {
		w.fail(&UnknownMorphemeError{Key: key, Node: tree.Kind()})
		return
	}
	w.emit(resolution.Code, key, tree)
	tree.Fields(w)
	w.meta(KeyStreamEnd)
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// emit appends a token and makes it the payload owner.
func (w *writer) emit(code int, key string, node syntax.Node) int {
	token := len(w.tokens)
	w.tokens = append(w.tokens, code)
	if w.sourceMap != nil {
		w.sourceMap.Record(token, key, node)
	}
	w.owner, w.ownerNode = token, node
	return token
}

func (w *writer) meta(key string) {
	resolution, err := w.dictionary.Resolve(key, true)
	if err != nil {
		w.fail(fmt.Errorf("dictionary %s cannot frame a stream: %w", w.dictionary.Version(), err))
		return
	}
	w.emit(resolution.Code, key, nil)
}

// resolve finds the code for node. It returns the key that was missing
// when the node cannot be written as itself.
func (w *writer) resolve(node syntax.Node) (code int, key, missing string) {
	key, ok := w.profile.KeyFor(node)
	if !ok {
		return 0, "", node.Kind()
	}
	code, ok = w.dictionary.Code(key)
	if !ok {
		return 0, key, key
	}
	if compare, isCompare := node.(*syntax.Compare); isCompare {
		for _, op := range compare.Ops {
			opKey, ok := w.profile.ComparisonKey(op)
			if !ok {
				return 0, key, "compare:" + op
			}
			if _, ok := w.dictionary.Code(opKey); !ok {
				return 0, key, opKey
			}
		}
	}
	return code, key, ""
}

func (w *writer) unknown(node syntax.Node, missing, reason string) *UnknownMorphemeError {
	span := node.Location()
	return &UnknownMorphemeError{Key: missing, Node: node.Kind(), Line: span.Line, Column: span.Column, Reason: reason}
}

// warn records a substitution for the token just emitted.
func (w *writer) warn(token int, node syntax.Node, missing string) {
	span := node.Location()
	warning := Warning{Token: token, Key: missing, Node: node.Kind(), Line: span.Line, Column: span.Column}
	w.warnings = append(w.warnings, warning)
	w.logger.Warn("substituting unknown morpheme",
		"key", missing,
		"node", warning.Node,
		"line", warning.Line,
		"column", warning.Column,
	)
}

// node writes a statement or expression, substituting it when it has
// no morpheme. kind is "stmt" or "expr".
func (w *writer) node(node syntax.Node, kind string) {
	if w.err != nil {
		return
	}
	code, key, missing := w.resolve(node)
	if missing == "" {
		saved := w.mark()
		w.emit(code, key, node)
		node.Fields(w)
		w.restore(saved)
		return
	}
	if w.strict {
		w.fail(w.unknown(node, missing, ""))
		return
	}
	source, err := fragmentSource(node, kind)
	if err != nil {
		w.fail(w.unknown(node, missing, err.Error()))
		return
	}
	saved := w.mark()
	token := w.emit(w.dictionary.FallbackCode(), morpheme.FallbackKey, node)
	w.channels.AddFragment(token, "source", payload.Fragment{Kind: kind, Source: source})
	w.warn(token, node, missing)
	w.restore(saved)
}

// fragmentSource renders node as source text and checks that parsing
// the text gives the node back.
func fragmentSource(node syntax.Node, kind string) (string, error) {
	source := syntax.Unparse(node)
	reparsed, err := parseFragment(payload.Fragment{Kind: kind, Source: source})
	if err != nil {
		return "", fmt.Errorf("source text does not parse on its own: %w", err)
	}
	if !syntax.Equal(reparsed, node) {
		return "", fmt.Errorf("source text does not reproduce the construct")
	}
	return source, nil
}

// structure writes a supporting node that always owns a marker token:
// parameters, keyword arguments, handlers and comprehension clauses.
// A missing marker is substituted with the fallback code but the
// node's fields are still written in full.
func (w *writer) structure(node syntax.Node) {
	if w.err != nil {
		return
	}
	code, key, missing := w.resolve(node)
	saved := w.mark()
	if missing == "" {
		w.emit(code, key, node)
	} else {
		if w.strict {
			w.fail(w.unknown(node, missing, ""))
			return
		}
		token := w.emit(w.dictionary.FallbackCode(), morpheme.FallbackKey, node)
		w.warn(token, node, missing)
	}
	node.Fields(w)
	w.restore(saved)
}

func (w *writer) stmt(stmt syntax.Stmt) {
	if expression, ok := stmt.(*syntax.ExprStmt); ok {
		w.expr(expression.Value)
		return
	}
	w.node(stmt, "stmt")
}

func (w *writer) expr(expr syntax.Expr) {
	if expr == nil {
		w.fail(fmt.Errorf("encoding tree: missing required expression under token %d", w.owner))
		return
	}
	w.node(expr, "expr")
}

func (w *writer) count(field string, n int) {
	w.channels.AddCount(w.owner, field, n)
}

func (w *writer) Identifier(field string, value *string) {
	w.channels.AddIdentifier(w.owner, field, *value)
}

// OptionalIdentifier writes the empty string for an absent name.
func (w *writer) OptionalIdentifier(field string, value *string) {
	w.channels.AddIdentifier(w.owner, field, *value)
}

func (w *writer) Identifiers(field string, values *[]string) {
	w.count(field, len(*values))
	for _, value := range *values {
		w.channels.AddIdentifier(w.owner, field, value)
	}
}

func (w *writer) String(field string, value *string) {
	w.channels.AddString(w.owner, field, *value)
}

func (w *writer) Number(field string, value *string) {
	w.channels.AddNumber(w.owner, field, *value)
}

func (w *writer) Count(field string, value *int) {
	w.count(field, *value)
}

func (w *writer) Flag(field string, value *bool) {
	w.channels.AddFlag(w.owner, field, *value)
}

func (w *writer) Expr(_ string, value *syntax.Expr) {
	w.expr(*value)
}

func (w *writer) OptionalExpr(field string, value *syntax.Expr) {
	w.channels.AddFlag(w.owner, field, *value != nil)
	if *value != nil {
		w.expr(*value)
	}
}

func (w *writer) Exprs(field string, values *[]syntax.Expr) {
	w.count(field, len(*values))
	for _, value := range *values {
		w.expr(value)
	}
}

func (w *writer) OptionalExprs(field string, values *[]syntax.Expr) {
	w.count(field, len(*values))
	owner := w.owner
	for _, value := range *values {
		w.channels.AddFlag(owner, field, value != nil)
		if value != nil {
			w.expr(value)
		}
	}
}

func (w *writer) Stmts(field string, values *[]syntax.Stmt) {
	w.count(field, len(*values))
	for _, value := range *values {
		w.stmt(value)
	}
}

// Operators writes one token per comparison operator. resolve has
// already checked that every operator has a code.
func (w *writer) Operators(field string, values *[]string) {
	w.count(field, len(*values))
	saved := w.mark()
	for _, op := range *values {
		key, _ := w.profile.ComparisonKey(op)
		code, _ := w.dictionary.Code(key)
		w.emit(code, key, saved.node)
	}
	w.restore(saved)
}

func (w *writer) Arguments(_ string, value **syntax.Arguments) {
	arguments := *value
	if arguments == nil {
		arguments = &syntax.Arguments{}
	}
	arguments.Fields(w)
}

func (w *writer) Args(field string, values *[]*syntax.Arg) {
	w.count(field, len(*values))
	for _, value := range *values {
		w.structure(value)
	}
}

func (w *writer) OptionalArg(field string, value **syntax.Arg) {
	w.channels.AddFlag(w.owner, field, *value != nil)
	if *value != nil {
		w.structure(*value)
	}
}

func (w *writer) Keywords(field string, values *[]*syntax.Keyword) {
	w.count(field, len(*values))
	for _, value := range *values {
		w.structure(value)
	}
}

func (w *writer) Aliases(field string, values *[]*syntax.Alias) {
	w.count(field, len(*values))
	for _, value := range *values {
		value.Fields(w)
	}
}

func (w *writer) WithItems(field string, values *[]*syntax.WithItem) {
	w.count(field, len(*values))
	for _, value := range *values {
		value.Fields(w)
	}
}

func (w *writer) Handlers(field string, values *[]*syntax.ExceptHandler) {
	w.count(field, len(*values))
	for _, value := range *values {
		w.structure(value)
	}
}

func (w *writer) Comprehensions(field string, values *[]*syntax.Comprehension) {
	w.count(field, len(*values))
	for _, value := range *values {
		w.structure(value)
	}
}
