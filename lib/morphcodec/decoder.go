// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package morphcodec

import (
	"fmt"

	"github.com/bureau-foundation/quenyan/lib/langprofile"
	"github.com/bureau-foundation/quenyan/lib/morpheme"
	"github.com/bureau-foundation/quenyan/lib/payload"
	"github.com/bureau-foundation/quenyan/lib/syntax"
)

// MaxDepth bounds statement and expression nesting while decoding.
// Left-associative operator chains nest once per operand, so the bound
// is far above the parser's bracket limit.
const MaxDepth = 50000

// Decode rebuilds a tree with the built-in python profile.
func Decode(dictionary *morpheme.Dictionary, tokens []int, channels *payload.Channels) (*syntax.Module, error) {
	profile, err := langprofile.Python()
	if err != nil {
		return nil, err
	}
	return NewDecoder(dictionary, profile).Decode(tokens, channels)
}

// Decoder rebuilds trees against one dictionary and profile. It holds
// no per-call state and may be used concurrently.
type Decoder struct {
	dictionary *morpheme.Dictionary
	profile    *langprofile.Profile
}

// NewDecoder returns a decoder. The profile must be the one the stream
// was encoded with.
func NewDecoder(dictionary *morpheme.Dictionary, profile *langprofile.Profile) *Decoder {
	return &Decoder{dictionary: dictionary, profile: profile}
}

// Decode rebuilds the tree of a stream. Every token and every payload
// must be consumed exactly.
func (d *Decoder) Decode(tokens []int, channels *payload.Channels) (*syntax.Module, error) {
	if channels == nil {
		channels = &payload.Channels{}
	}
	if err := channels.Validate(len(tokens)); err != nil {
		return nil, &StreamError{Token: 0, Message: "inconsistent payloads", Err: err}
	}
	r := &reader{
		dictionary: d.dictionary,
		profile:    d.profile,
		tokens:     tokens,
		channels:   channels,
		cursor:     payload.NewCursor(channels),
		fallback:   d.dictionary.FallbackCode(),
	}
	module := r.stream()
	if r.err != nil {
		return nil, r.err
	}
	return module, nil
}

type reader struct {
	dictionary *morpheme.Dictionary
	profile    *langprofile.Profile
	tokens     []int
	channels   *payload.Channels
	cursor     *payload.Cursor
	fallback   int

	position int
	depth    int
	err      error
}

func (r *reader) fail(message string, err error) {
	if r.err == nil {
		r.err = &StreamError{Token: max(r.position-1, 0), Message: message, Err: err}
	}
}

func (r *reader) failf(format string, args ...any) {
	r.fail(fmt.Sprintf(format, args...), nil)
}

func (r *reader) remaining() int { return len(r.tokens) - r.position }

// next consumes a token and returns its code and key.
func (r *reader) next() (int, string, bool) {
	if r.err != nil {
		return 0, "", false
	}
	if r.position >= len(r.tokens) {
		r.position++
		r.failf("stream ends early")
		return 0, "", false
	}
	code := r.tokens[r.position]
	r.position++
	key := r.dictionary.Key(code)
	if key == "" {
		r.failf("code %d is outside dictionary %s", code, r.dictionary.Version())
		return 0, "", false
	}
	return code, key, true
}

func (r *reader) expect(key string) {
	_, got, ok := r.next()
	if ok && got != key {
		r.failf("expected %s, found %s", key, got)
	}
}

func (r *reader) stream() *syntax.Module {
	r.expect(KeyStreamStart)
	r.expect(KeyVersionHeader)
	r.text()
	r.expect(KeyDictionaryVersion)
	r.text()

	module := &syntax.Module{}
	moduleKey, _ := r.profile.KeyFor(module)
	r.expect(moduleKey)
	module.Fields(r)
	r.expect(KeyStreamEnd)
	if r.err != nil {
		return nil
	}
	if r.position != len(r.tokens) {
		r.failf("%d tokens after stream end", len(r.tokens)-r.position)
		return nil
	}
	if err := r.cursor.Finish(); err != nil {
		r.fail("payloads left over", err)
		return nil
	}
	return module
}

func (r *reader) text() string {
	if r.err != nil {
		return ""
	}
	value, err := r.cursor.Text()
	if err != nil {
		r.fail("reading string payload", err)
	}
	return value
}

func (r *reader) enter() bool {
	r.depth++
	if r.depth > MaxDepth {
		r.failf("nesting exceeds %d levels", MaxDepth)
		return false
	}
	return true
}

func (r *reader) leave() { r.depth-- }

// construct reads one statement or expression token and builds the
// node it names, with fields populated. A fragment is returned already
// parsed.
func (r *reader) construct(kind string) syntax.Node {
	if !r.enter() {
		return nil
	}
	defer r.leave()

	code, key, ok := r.next()
	if !ok {
		return nil
	}
	if code == r.fallback {
		return r.fragment(kind)
	}
	construct, known := r.profile.Lookup(key)
	if !known {
		r.failf("key %s names no construct in profile %s", key, r.profile.Name)
		return nil
	}
	node := build(construct)
	if node == nil {
		r.failf("key %s cannot appear as a %s", key, kindName(kind))
		return nil
	}
	r.fill(node)
	return node
}

func kindName(kind string) string {
	if kind == "stmt" {
		return "statement"
	}
	return "expression"
}

// fill populates a node's fields and checks its shape.
func (r *reader) fill(node syntax.Node) {
	node.Fields(r)
	if r.err != nil {
		return
	}
	if err := syntax.CheckShape(node); err != nil {
		r.fail("rebuilt node is malformed", err)
	}
}

func (r *reader) fragment(kind string) syntax.Node {
	fragment, err := r.cursor.Fragment()
	if err != nil {
		r.fail("reading structured payload", err)
		return nil
	}
	if fragment.Kind == "stmt" && kind == "expr" {
		r.failf("statement fragment in expression position")
		return nil
	}
	node, err := parseFragment(fragment)
	if err != nil {
		r.fail("parsing structured payload", err)
		return nil
	}
	return node
}

// parseFragment parses the source text of a substituted construct.
func parseFragment(fragment payload.Fragment) (syntax.Node, error) {
	switch fragment.Kind {
	case "stmt":
		stmt, err := syntax.ParseStatement(fragment.Source)
		if err != nil {
			return nil, err
		}
		return stmt, nil
	case "expr":
		expr, err := syntax.ParseExpression(fragment.Source)
		if err != nil {
			return nil, err
		}
		return expr, nil
	}
	return nil, fmt.Errorf("unknown fragment kind %q", fragment.Kind)
}

func (r *reader) stmt() syntax.Stmt {
	switch node := r.construct("stmt").(type) {
	case syntax.Stmt:
		return node
	case syntax.Expr:
		return &syntax.ExprStmt{Value: node}
	case nil:
		return nil
	default:
		r.failf("%s is not a statement", node.Kind())
		return nil
	}
}

func (r *reader) expr() syntax.Expr {
	switch node := r.construct("expr").(type) {
	case syntax.Expr:
		return node
	case nil:
		return nil
	default:
		r.failf("%s is not an expression", node.Kind())
		return nil
	}
}

// marker consumes the token of a supporting node. The fallback code is
// accepted in place of the node's own key.
func (r *reader) marker(node syntax.Node) bool {
	code, key, ok := r.next()
	if !ok {
		return false
	}
	if code == r.fallback {
		return true
	}
	if expected, has := r.profile.KeyFor(node); !has || expected != key {
		r.failf("expected %s marker, found %s", node.Kind(), key)
		return false
	}
	return true
}

// bound rejects list lengths that could not be satisfied by what is
// left of the stream, before anything is allocated for them.
func (r *reader) bound(field string, n, limit int) bool {
	if n > limit {
		r.failf("%s declares %d items, at most %d possible", field, n, limit)
		return false
	}
	return true
}

func (r *reader) count(field string) (int, bool) {
	if r.err != nil {
		return 0, false
	}
	n, err := r.cursor.Count()
	if err != nil {
		r.fail("reading "+field+" count", err)
		return 0, false
	}
	return n, true
}

func (r *reader) flag(field string) bool {
	if r.err != nil {
		return false
	}
	value, err := r.cursor.Flag()
	if err != nil {
		r.fail("reading "+field+" flag", err)
	}
	return value
}

func (r *reader) identifier(field string) string {
	if r.err != nil {
		return ""
	}
	value, err := r.cursor.Identifier()
	if err != nil {
		r.fail("reading "+field, err)
	}
	return value
}

func (r *reader) Identifier(field string, value *string) {
	*value = r.identifier(field)
	if r.err == nil && *value == "" {
		r.failf("%s is empty", field)
	}
}

func (r *reader) OptionalIdentifier(field string, value *string) {
	*value = r.identifier(field)
}

func (r *reader) Identifiers(field string, values *[]string) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, len(r.channels.Identifiers)) {
		return
	}
	names := make([]string, n)
	for index := range names {
		names[index] = r.identifier(field)
	}
	*values = names
}

func (r *reader) String(field string, value *string) {
	if r.err != nil {
		return
	}
	text, err := r.cursor.Text()
	if err != nil {
		r.fail("reading "+field, err)
	}
	*value = text
}

func (r *reader) Number(field string, value *string) {
	if r.err != nil {
		return
	}
	number, err := r.cursor.Number()
	if err != nil {
		r.fail("reading "+field, err)
	}
	*value = number
}

func (r *reader) Count(field string, value *int) {
	*value, _ = r.count(field)
}

func (r *reader) Flag(field string, value *bool) {
	*value = r.flag(field)
}

func (r *reader) Expr(_ string, value *syntax.Expr) {
	if r.err == nil {
		*value = r.expr()
	}
}

func (r *reader) OptionalExpr(field string, value *syntax.Expr) {
	if r.flag(field) {
		*value = r.expr()
	}
}

func (r *reader) Exprs(field string, values *[]syntax.Expr) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, r.remaining()) {
		return
	}
	items := make([]syntax.Expr, 0, n)
	for range n {
		if r.err != nil {
			return
		}
		items = append(items, r.expr())
	}
	*values = items
}

func (r *reader) OptionalExprs(field string, values *[]syntax.Expr) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, len(r.channels.Flags)) {
		return
	}
	items := make([]syntax.Expr, 0, n)
	for range n {
		if r.err != nil {
			return
		}
		var item syntax.Expr
		if r.flag(field) {
			item = r.expr()
		}
		items = append(items, item)
	}
	*values = items
}

func (r *reader) Stmts(field string, values *[]syntax.Stmt) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, r.remaining()) {
		return
	}
	items := make([]syntax.Stmt, 0, n)
	for range n {
		if r.err != nil {
			return
		}
		items = append(items, r.stmt())
	}
	*values = items
}

func (r *reader) Operators(field string, values *[]string) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, r.remaining()) {
		return
	}
	ops := make([]string, 0, n)
	for range n {
		_, key, ok := r.next()
		if !ok {
			return
		}
		op, known := r.profile.ComparisonOperator(key)
		if !known {
			r.failf("%s is not a comparison operator", key)
			return
		}
		ops = append(ops, op)
	}
	*values = ops
}

func (r *reader) Arguments(_ string, value **syntax.Arguments) {
	if r.err != nil {
		return
	}
	arguments := &syntax.Arguments{}
	r.fill(arguments)
	*value = arguments
}

func (r *reader) arg() *syntax.Arg {
	arg := &syntax.Arg{}
	if r.marker(arg) {
		r.fill(arg)
	}
	return arg
}

func (r *reader) Args(field string, values *[]*syntax.Arg) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, r.remaining()) {
		return
	}
	items := make([]*syntax.Arg, 0, n)
	for range n {
		if r.err != nil {
			return
		}
		items = append(items, r.arg())
	}
	*values = items
}

func (r *reader) OptionalArg(field string, value **syntax.Arg) {
	if r.flag(field) {
		*value = r.arg()
	}
}

func (r *reader) Keywords(field string, values *[]*syntax.Keyword) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, r.remaining()) {
		return
	}
	items := make([]*syntax.Keyword, 0, n)
	for range n {
		if r.err != nil {
			return
		}
		keyword := &syntax.Keyword{}
		if r.marker(keyword) {
			r.fill(keyword)
		}
		items = append(items, keyword)
	}
	*values = items
}

func (r *reader) Aliases(field string, values *[]*syntax.Alias) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, len(r.channels.Identifiers)) {
		return
	}
	items := make([]*syntax.Alias, 0, n)
	for range n {
		if r.err != nil {
			return
		}
		alias := &syntax.Alias{}
		r.fill(alias)
		items = append(items, alias)
	}
	*values = items
}

func (r *reader) WithItems(field string, values *[]*syntax.WithItem) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, r.remaining()) {
		return
	}
	items := make([]*syntax.WithItem, 0, n)
	for range n {
		if r.err != nil {
			return
		}
		item := &syntax.WithItem{}
		r.fill(item)
		items = append(items, item)
	}
	*values = items
}

func (r *reader) Handlers(field string, values *[]*syntax.ExceptHandler) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, r.remaining()) {
		return
	}
	items := make([]*syntax.ExceptHandler, 0, n)
	for range n {
		if r.err != nil {
			return
		}
		handler := &syntax.ExceptHandler{}
		if r.marker(handler) {
			r.fill(handler)
		}
		items = append(items, handler)
	}
	*values = items
}

func (r *reader) Comprehensions(field string, values *[]*syntax.Comprehension) {
	n, ok := r.count(field)
	if !ok || !r.bound(field, n, r.remaining()) {
		return
	}
	items := make([]*syntax.Comprehension, 0, n)
	for range n {
		if r.err != nil {
			return
		}
		clause := &syntax.Comprehension{}
		if r.marker(clause) {
			r.fill(clause)
		}
		items = append(items, clause)
	}
	*values = items
}

// nodeConstructors builds the empty node a ClassNode key names.
var nodeConstructors = map[string]func() syntax.Node{
	"FunctionDef":      func() syntax.Node { return &syntax.FunctionDef{} },
	"AsyncFunctionDef": func() syntax.Node { return &syntax.FunctionDef{Async: true} },
	"ClassDef":         func() syntax.Node { return &syntax.ClassDef{} },
	"Return":           func() syntax.Node { return &syntax.Return{} },
	"Delete":           func() syntax.Node { return &syntax.Delete{} },
	"Assign":           func() syntax.Node { return &syntax.Assign{} },
	"AnnAssign":        func() syntax.Node { return &syntax.AnnAssign{} },
	"For":              func() syntax.Node { return &syntax.For{} },
	"While":            func() syntax.Node { return &syntax.While{} },
	"If":               func() syntax.Node { return &syntax.If{} },
	"With":             func() syntax.Node { return &syntax.With{} },
	"Raise":            func() syntax.Node { return &syntax.Raise{} },
	"Try":              func() syntax.Node { return &syntax.Try{} },
	"Assert":           func() syntax.Node { return &syntax.Assert{} },
	"Import":           func() syntax.Node { return &syntax.Import{} },
	"ImportFrom":       func() syntax.Node { return &syntax.ImportFrom{} },
	"Global":           func() syntax.Node { return &syntax.Global{} },
	"Nonlocal":         func() syntax.Node { return &syntax.Nonlocal{} },
	"Pass":             func() syntax.Node { return &syntax.Pass{} },
	"Break":            func() syntax.Node { return &syntax.Break{} },
	"Continue":         func() syntax.Node { return &syntax.Continue{} },
	"Lambda":           func() syntax.Node { return &syntax.Lambda{} },
	"IfExp":            func() syntax.Node { return &syntax.IfExp{} },
	"Dict":             func() syntax.Node { return &syntax.Dict{} },
	"Set":              func() syntax.Node { return &syntax.Set{} },
	"ListComp":         func() syntax.Node { return &syntax.ListComp{} },
	"SetComp":          func() syntax.Node { return &syntax.SetComp{} },
	"DictComp":         func() syntax.Node { return &syntax.DictComp{} },
	"GeneratorExp":     func() syntax.Node { return &syntax.GeneratorExp{} },
	"Await":            func() syntax.Node { return &syntax.Await{} },
	"Yield":            func() syntax.Node { return &syntax.Yield{} },
	"YieldFrom":        func() syntax.Node { return &syntax.YieldFrom{} },
	"Compare":          func() syntax.Node { return &syntax.Compare{} },
	"Call":             func() syntax.Node { return &syntax.Call{} },
	"FormattedString":  func() syntax.Node { return &syntax.FormattedString{} },
	"Attribute":        func() syntax.Node { return &syntax.Attribute{} },
	"Subscript":        func() syntax.Node { return &syntax.Subscript{} },
	"Starred":          func() syntax.Node { return &syntax.Starred{} },
	"Name":             func() syntax.Node { return &syntax.Name{} },
	"List":             func() syntax.Node { return &syntax.List{} },
	"Tuple":            func() syntax.Node { return &syntax.Tuple{} },
	"Slice":            func() syntax.Node { return &syntax.Slice{} },
}

// build returns the empty statement or expression a construct names,
// or nil when the construct cannot stand in either position.
func build(construct langprofile.Construct) syntax.Node {
	switch construct.Class {
	case langprofile.ClassNode:
		if constructor, ok := nodeConstructors[construct.Name]; ok {
			return constructor()
		}
	case langprofile.ClassBinary:
		return &syntax.BinOp{Op: construct.Name}
	case langprofile.ClassUnary:
		return &syntax.UnaryOp{Op: construct.Name}
	case langprofile.ClassBoolean:
		return &syntax.BoolOp{Op: construct.Name}
	case langprofile.ClassAugmented:
		return &syntax.AugAssign{Op: construct.Name}
	case langprofile.ClassConstant:
		return &syntax.Constant{Type: construct.Constant}
	}
	return nil
}
