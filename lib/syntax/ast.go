// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syntax

// Span is the source range of a node: 1-based lines and 0-based byte
// columns, end exclusive. Trees rebuilt from an archive have zero spans.
type Span struct {
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

// Location returns the span itself so that every node embedding a Span
// satisfies [Node].
func (s Span) Location() Span { return s }

// Node is any element of a syntax tree.
type Node interface {
	// Kind names the node type ("FunctionDef", "BinOp"). Variants that
	// differ only in a flag the parser sets from a keyword report their
	// own kind ("AsyncFunctionDef").
	Kind() string
	// Location returns the node's source span.
	Location() Span
	// Fields visits the node's children in canonical order. Fields
	// implied by the node's kind or operator are not visited.
	Fields(v FieldVisitor)
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// FieldVisitor receives a node's fields through pointers, so the same
// traversal can read a tree or populate an empty one. Optional values
// are nil (or "" for identifiers) when absent; OptionalExprs lists may
// hold nil elements.
type FieldVisitor interface {
	Identifier(field string, value *string)
	OptionalIdentifier(field string, value *string)
	Identifiers(field string, values *[]string)
	String(field string, value *string)
	Number(field string, value *string)
	Count(field string, value *int)
	Flag(field string, value *bool)
	Expr(field string, value *Expr)
	OptionalExpr(field string, value *Expr)
	Exprs(field string, values *[]Expr)
	OptionalExprs(field string, values *[]Expr)
	Stmts(field string, values *[]Stmt)
	Operators(field string, values *[]string)
	Arguments(field string, value **Arguments)
	Args(field string, values *[]*Arg)
	OptionalArg(field string, value **Arg)
	Keywords(field string, values *[]*Keyword)
	Aliases(field string, values *[]*Alias)
	WithItems(field string, values *[]*WithItem)
	Handlers(field string, values *[]*ExceptHandler)
	Comprehensions(field string, values *[]*Comprehension)
}

// Module is the root of every tree.
type Module struct {
	Span
	Body []Stmt
}

func (*Module) Kind() string { return "Module" }
func (n *Module) Fields(v FieldVisitor) {
	v.Stmts("body", &n.Body)
}

// Statements.

type FunctionDef struct {
	Span
	Name       string
	Async      bool
	Decorators []Expr
	Args       *Arguments
	Returns    Expr
	Body       []Stmt
}

func (n *FunctionDef) Kind() string {
	if n.Async {
		return "AsyncFunctionDef"
	}
	return "FunctionDef"
}

func (n *FunctionDef) Fields(v FieldVisitor) {
	v.Identifier("name", &n.Name)
	v.Exprs("decorators", &n.Decorators)
	v.Arguments("args", &n.Args)
	v.OptionalExpr("returns", &n.Returns)
	v.Stmts("body", &n.Body)
}

type ClassDef struct {
	Span
	Name       string
	Decorators []Expr
	Bases      []Expr
	Keywords   []*Keyword
	Body       []Stmt
}

func (*ClassDef) Kind() string { return "ClassDef" }
func (n *ClassDef) Fields(v FieldVisitor) {
	v.Identifier("name", &n.Name)
	v.Exprs("decorators", &n.Decorators)
	v.Exprs("bases", &n.Bases)
	v.Keywords("keywords", &n.Keywords)
	v.Stmts("body", &n.Body)
}

type Return struct {
	Span
	Value Expr
}

func (*Return) Kind() string            { return "Return" }
func (n *Return) Fields(v FieldVisitor) { v.OptionalExpr("value", &n.Value) }

type Delete struct {
	Span
	Targets []Expr
}

func (*Delete) Kind() string            { return "Delete" }
func (n *Delete) Fields(v FieldVisitor) { v.Exprs("targets", &n.Targets) }

// Assign is "a = b = value"; Targets holds every left-hand side.
type Assign struct {
	Span
	Targets []Expr
	Value   Expr
}

func (*Assign) Kind() string { return "Assign" }
func (n *Assign) Fields(v FieldVisitor) {
	v.Exprs("targets", &n.Targets)
	v.Expr("value", &n.Value)
}

type AugAssign struct {
	Span
	Target Expr
	Op     string
	Value  Expr
}

func (*AugAssign) Kind() string { return "AugAssign" }
func (n *AugAssign) Fields(v FieldVisitor) {
	v.Expr("target", &n.Target)
	v.Expr("value", &n.Value)
}

type AnnAssign struct {
	Span
	Target     Expr
	Annotation Expr
	Value      Expr
}

func (*AnnAssign) Kind() string { return "AnnAssign" }
func (n *AnnAssign) Fields(v FieldVisitor) {
	v.Expr("target", &n.Target)
	v.Expr("annotation", &n.Annotation)
	v.OptionalExpr("value", &n.Value)
}

type For struct {
	Span
	Async  bool
	Target Expr
	Iter   Expr
	Body   []Stmt
	Orelse []Stmt
}

func (*For) Kind() string { return "For" }
func (n *For) Fields(v FieldVisitor) {
	v.Flag("async", &n.Async)
	v.Expr("target", &n.Target)
	v.Expr("iter", &n.Iter)
	v.Stmts("body", &n.Body)
	v.Stmts("orelse", &n.Orelse)
}

type While struct {
	Span
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

func (*While) Kind() string { return "While" }
func (n *While) Fields(v FieldVisitor) {
	v.Expr("test", &n.Test)
	v.Stmts("body", &n.Body)
	v.Stmts("orelse", &n.Orelse)
}

// If covers elif chains: an elif is an If that is the sole statement of
// its parent's Orelse.
type If struct {
	Span
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

func (*If) Kind() string { return "If" }
func (n *If) Fields(v FieldVisitor) {
	v.Expr("test", &n.Test)
	v.Stmts("body", &n.Body)
	v.Stmts("orelse", &n.Orelse)
}

type With struct {
	Span
	Async bool
	Items []*WithItem
	Body  []Stmt
}

func (*With) Kind() string { return "With" }
func (n *With) Fields(v FieldVisitor) {
	v.Flag("async", &n.Async)
	v.WithItems("items", &n.Items)
	v.Stmts("body", &n.Body)
}

type Raise struct {
	Span
	Exc   Expr
	Cause Expr
}

func (*Raise) Kind() string { return "Raise" }
func (n *Raise) Fields(v FieldVisitor) {
	v.OptionalExpr("exc", &n.Exc)
	v.OptionalExpr("cause", &n.Cause)
}

type Try struct {
	Span
	Body      []Stmt
	Handlers  []*ExceptHandler
	Orelse    []Stmt
	Finalbody []Stmt
}

func (*Try) Kind() string { return "Try" }
func (n *Try) Fields(v FieldVisitor) {
	v.Stmts("body", &n.Body)
	v.Handlers("handlers", &n.Handlers)
	v.Stmts("orelse", &n.Orelse)
	v.Stmts("finalbody", &n.Finalbody)
}

type Assert struct {
	Span
	Test Expr
	Msg  Expr
}

func (*Assert) Kind() string { return "Assert" }
func (n *Assert) Fields(v FieldVisitor) {
	v.Expr("test", &n.Test)
	v.OptionalExpr("msg", &n.Msg)
}

type Import struct {
	Span
	Names []*Alias
}

func (*Import) Kind() string            { return "Import" }
func (n *Import) Fields(v FieldVisitor) { v.Aliases("names", &n.Names) }

// ImportFrom is "from ..module import names". Module is empty for a
// purely relative import; Level counts the leading dots.
type ImportFrom struct {
	Span
	Module string
	Names  []*Alias
	Level  int
}

func (*ImportFrom) Kind() string { return "ImportFrom" }
func (n *ImportFrom) Fields(v FieldVisitor) {
	v.OptionalIdentifier("module", &n.Module)
	v.Aliases("names", &n.Names)
	v.Count("level", &n.Level)
}

type Global struct {
	Span
	Names []string
}

func (*Global) Kind() string            { return "Global" }
func (n *Global) Fields(v FieldVisitor) { v.Identifiers("names", &n.Names) }

type Nonlocal struct {
	Span
	Names []string
}

func (*Nonlocal) Kind() string            { return "Nonlocal" }
func (n *Nonlocal) Fields(v FieldVisitor) { v.Identifiers("names", &n.Names) }

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	Span
	Value Expr
}

func (*ExprStmt) Kind() string            { return "Expr" }
func (n *ExprStmt) Fields(v FieldVisitor) { v.Expr("value", &n.Value) }

type Pass struct{ Span }

func (*Pass) Kind() string { return "Pass" }

func (*Pass) Fields(FieldVisitor) {}

type Break struct{ Span }

func (*Break) Kind() string { return "Break" }

func (*Break) Fields(FieldVisitor) {}

type Continue struct{ Span }

func (*Continue) Kind() string { return "Continue" }

func (*Continue) Fields(FieldVisitor) {}

// Expressions.

// BoolOp is a chain of "and" or "or": Op is "And" or "Or".
type BoolOp struct {
	Span
	Op     string
	Values []Expr
}

func (*BoolOp) Kind() string            { return "BoolOp" }
func (n *BoolOp) Fields(v FieldVisitor) { v.Exprs("values", &n.Values) }

// BinOp is a binary arithmetic or bitwise operation. Op is one of Add,
// Sub, Mult, MatMult, Div, FloorDiv, Mod, Pow, LShift, RShift, BitOr,
// BitXor or BitAnd.
type BinOp struct {
	Span
	Left  Expr
	Op    string
	Right Expr
}

func (*BinOp) Kind() string { return "BinOp" }
func (n *BinOp) Fields(v FieldVisitor) {
	v.Expr("left", &n.Left)
	v.Expr("right", &n.Right)
}

// UnaryOp applies Not, Invert, UAdd or USub.
type UnaryOp struct {
	Span
	Op      string
	Operand Expr
}

func (*UnaryOp) Kind() string            { return "UnaryOp" }
func (n *UnaryOp) Fields(v FieldVisitor) { v.Expr("operand", &n.Operand) }

type Lambda struct {
	Span
	Args *Arguments
	Body Expr
}

func (*Lambda) Kind() string { return "Lambda" }
func (n *Lambda) Fields(v FieldVisitor) {
	v.Arguments("args", &n.Args)
	v.Expr("body", &n.Body)
}

type IfExp struct {
	Span
	Test   Expr
	Body   Expr
	Orelse Expr
}

func (*IfExp) Kind() string { return "IfExp" }
func (n *IfExp) Fields(v FieldVisitor) {
	v.Expr("test", &n.Test)
	v.Expr("body", &n.Body)
	v.Expr("orelse", &n.Orelse)
}

// Dict is a display; a nil key marks a "**mapping" entry.
type Dict struct {
	Span
	Keys   []Expr
	Values []Expr
}

func (*Dict) Kind() string { return "Dict" }
func (n *Dict) Fields(v FieldVisitor) {
	v.OptionalExprs("keys", &n.Keys)
	v.Exprs("values", &n.Values)
}

type Set struct {
	Span
	Elts []Expr
}

func (*Set) Kind() string            { return "Set" }
func (n *Set) Fields(v FieldVisitor) { v.Exprs("elts", &n.Elts) }

type ListComp struct {
	Span
	Elt        Expr
	Generators []*Comprehension
}

func (*ListComp) Kind() string { return "ListComp" }
func (n *ListComp) Fields(v FieldVisitor) {
	v.Expr("elt", &n.Elt)
	v.Comprehensions("generators", &n.Generators)
}

type SetComp struct {
	Span
	Elt        Expr
	Generators []*Comprehension
}

func (*SetComp) Kind() string { return "SetComp" }
func (n *SetComp) Fields(v FieldVisitor) {
	v.Expr("elt", &n.Elt)
	v.Comprehensions("generators", &n.Generators)
}

type DictComp struct {
	Span
	Key        Expr
	Value      Expr
	Generators []*Comprehension
}

func (*DictComp) Kind() string { return "DictComp" }
func (n *DictComp) Fields(v FieldVisitor) {
	v.Expr("key", &n.Key)
	v.Expr("value", &n.Value)
	v.Comprehensions("generators", &n.Generators)
}

type GeneratorExp struct {
	Span
	Elt        Expr
	Generators []*Comprehension
}

func (*GeneratorExp) Kind() string { return "GeneratorExp" }
func (n *GeneratorExp) Fields(v FieldVisitor) {
	v.Expr("elt", &n.Elt)
	v.Comprehensions("generators", &n.Generators)
}

type Await struct {
	Span
	Value Expr
}

func (*Await) Kind() string            { return "Await" }
func (n *Await) Fields(v FieldVisitor) { v.Expr("value", &n.Value) }

type Yield struct {
	Span
	Value Expr
}

func (*Yield) Kind() string            { return "Yield" }
func (n *Yield) Fields(v FieldVisitor) { v.OptionalExpr("value", &n.Value) }

type YieldFrom struct {
	Span
	Value Expr
}

func (*YieldFrom) Kind() string            { return "YieldFrom" }
func (n *YieldFrom) Fields(v FieldVisitor) { v.Expr("value", &n.Value) }

// Compare is a comparison chain "a < b <= c". Ops and Comparators have
// equal length. Ops are Eq, NotEq, Lt, LtE, Gt, GtE, Is, IsNot, In and
// NotIn.
type Compare struct {
	Span
	Left        Expr
	Ops         []string
	Comparators []Expr
}

func (*Compare) Kind() string { return "Compare" }
func (n *Compare) Fields(v FieldVisitor) {
	v.Expr("left", &n.Left)
	v.Operators("ops", &n.Ops)
	v.Exprs("comparators", &n.Comparators)
}

type Call struct {
	Span
	Func     Expr
	Args     []Expr
	Keywords []*Keyword
}

func (*Call) Kind() string { return "Call" }
func (n *Call) Fields(v FieldVisitor) {
	v.Expr("func", &n.Func)
	v.Exprs("args", &n.Args)
	v.Keywords("keywords", &n.Keywords)
}

// FormattedString is an f-string kept as its literal source text,
// including prefixes and quotes. Implicitly concatenated pieces are
// joined with a single space.
type FormattedString struct {
	Span
	Raw string
}

func (*FormattedString) Kind() string            { return "FormattedString" }
func (n *FormattedString) Fields(v FieldVisitor) { v.String("raw", &n.Raw) }

// Constant is a literal. Value holds the canonical text of numbers, the
// decoded text of strings and the raw bytes of bytes literals; it is
// empty for True, False, None and Ellipsis.
type Constant struct {
	Span
	Type  ConstantKind
	Value string
}

// ConstantKind classifies a [Constant].
type ConstantKind uint8

const (
	ConstInt ConstantKind = iota
	ConstFloat
	ConstComplex
	ConstString
	ConstBytes
	ConstTrue
	ConstFalse
	ConstNone
	ConstEllipsis
)

var constantKindNames = [...]string{
	ConstInt:      "int",
	ConstFloat:    "float",
	ConstComplex:  "complex",
	ConstString:   "str",
	ConstBytes:    "bytes",
	ConstTrue:     "True",
	ConstFalse:    "False",
	ConstNone:     "None",
	ConstEllipsis: "Ellipsis",
}

func (k ConstantKind) String() string {
	if int(k) < len(constantKindNames) {
		return constantKindNames[k]
	}
	return "unknown"
}

// Numeric reports whether the kind stores a number in Value.
func (k ConstantKind) Numeric() bool {
	return k == ConstInt || k == ConstFloat || k == ConstComplex
}

// Textual reports whether the kind stores string or bytes data in Value.
func (k ConstantKind) Textual() bool { return k == ConstString || k == ConstBytes }

func (*Constant) Kind() string { return "Constant" }
func (n *Constant) Fields(v FieldVisitor) {
	switch {
	case n.Type.Numeric():
		v.Number("value", &n.Value)
	case n.Type.Textual():
		v.String("value", &n.Value)
	}
}

type Attribute struct {
	Span
	Value Expr
	Attr  string
}

func (*Attribute) Kind() string { return "Attribute" }
func (n *Attribute) Fields(v FieldVisitor) {
	v.Expr("value", &n.Value)
	v.Identifier("attr", &n.Attr)
}

type Subscript struct {
	Span
	Value Expr
	Slice Expr
}

func (*Subscript) Kind() string { return "Subscript" }
func (n *Subscript) Fields(v FieldVisitor) {
	v.Expr("value", &n.Value)
	v.Expr("slice", &n.Slice)
}

type Starred struct {
	Span
	Value Expr
}

func (*Starred) Kind() string            { return "Starred" }
func (n *Starred) Fields(v FieldVisitor) { v.Expr("value", &n.Value) }

type Name struct {
	Span
	ID string
}

func (*Name) Kind() string            { return "Name" }
func (n *Name) Fields(v FieldVisitor) { v.Identifier("id", &n.ID) }

type List struct {
	Span
	Elts []Expr
}

func (*List) Kind() string            { return "List" }
func (n *List) Fields(v FieldVisitor) { v.Exprs("elts", &n.Elts) }

type Tuple struct {
	Span
	Elts []Expr
}

func (*Tuple) Kind() string            { return "Tuple" }
func (n *Tuple) Fields(v FieldVisitor) { v.Exprs("elts", &n.Elts) }

// Slice appears only as a Subscript index or a Tuple element of one.
type Slice struct {
	Span
	Lower Expr
	Upper Expr
	Step  Expr
}

func (*Slice) Kind() string { return "Slice" }
func (n *Slice) Fields(v FieldVisitor) {
	v.OptionalExpr("lower", &n.Lower)
	v.OptionalExpr("upper", &n.Upper)
	v.OptionalExpr("step", &n.Step)
}

// Supporting nodes.

// Arguments is a parameter list. Defaults align with the tail of
// PosOnly followed by Args; KwDefaults aligns with KwOnly and holds nil
// for parameters without a default.
type Arguments struct {
	Span
	PosOnly    []*Arg
	Args       []*Arg
	Vararg     *Arg
	KwOnly     []*Arg
	KwDefaults []Expr
	Kwarg      *Arg
	Defaults   []Expr
}

func (*Arguments) Kind() string { return "arguments" }
func (n *Arguments) Fields(v FieldVisitor) {
	v.Args("posonlyargs", &n.PosOnly)
	v.Args("args", &n.Args)
	v.OptionalArg("vararg", &n.Vararg)
	v.Args("kwonlyargs", &n.KwOnly)
	v.OptionalExprs("kw_defaults", &n.KwDefaults)
	v.OptionalArg("kwarg", &n.Kwarg)
	v.Exprs("defaults", &n.Defaults)
}

type Arg struct {
	Span
	Name       string
	Annotation Expr
}

func (*Arg) Kind() string { return "arg" }
func (n *Arg) Fields(v FieldVisitor) {
	v.Identifier("arg", &n.Name)
	v.OptionalExpr("annotation", &n.Annotation)
}

// Keyword is a "name=value" call argument; an empty Arg is "**value".
type Keyword struct {
	Span
	Arg   string
	Value Expr
}

func (*Keyword) Kind() string { return "keyword" }
func (n *Keyword) Fields(v FieldVisitor) {
	v.OptionalIdentifier("arg", &n.Arg)
	v.Expr("value", &n.Value)
}

// Alias is one imported name; Name may be dotted or "*".
type Alias struct {
	Span
	Name   string
	AsName string
}

func (*Alias) Kind() string { return "alias" }
func (n *Alias) Fields(v FieldVisitor) {
	v.Identifier("name", &n.Name)
	v.OptionalIdentifier("asname", &n.AsName)
}

type WithItem struct {
	Span
	Context Expr
	Vars    Expr
}

func (*WithItem) Kind() string { return "withitem" }
func (n *WithItem) Fields(v FieldVisitor) {
	v.Expr("context_expr", &n.Context)
	v.OptionalExpr("optional_vars", &n.Vars)
}

type ExceptHandler struct {
	Span
	Type Expr
	Name string
	Body []Stmt
}

func (*ExceptHandler) Kind() string { return "ExceptHandler" }
func (n *ExceptHandler) Fields(v FieldVisitor) {
	v.OptionalExpr("type", &n.Type)
	v.OptionalIdentifier("name", &n.Name)
	v.Stmts("body", &n.Body)
}

type Comprehension struct {
	Span
	Async  bool
	Target Expr
	Iter   Expr
	Ifs    []Expr
}

func (*Comprehension) Kind() string { return "comprehension" }
func (n *Comprehension) Fields(v FieldVisitor) {
	v.Flag("async", &n.Async)
	v.Expr("target", &n.Target)
	v.Expr("iter", &n.Iter)
	v.Exprs("ifs", &n.Ifs)
}

func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*Return) stmtNode()      {}
func (*Delete) stmtNode()      {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*AnnAssign) stmtNode()   {}
func (*For) stmtNode()         {}
func (*While) stmtNode()       {}
func (*If) stmtNode()          {}
func (*With) stmtNode()        {}
func (*Raise) stmtNode()       {}
func (*Try) stmtNode()         {}
func (*Assert) stmtNode()      {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*Global) stmtNode()      {}
func (*Nonlocal) stmtNode()    {}
func (*ExprStmt) stmtNode()    {}
func (*Pass) stmtNode()        {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}

func (*BoolOp) exprNode()          {}
func (*BinOp) exprNode()           {}
func (*UnaryOp) exprNode()         {}
func (*Lambda) exprNode()          {}
func (*IfExp) exprNode()           {}
func (*Dict) exprNode()            {}
func (*Set) exprNode()             {}
func (*ListComp) exprNode()        {}
func (*SetComp) exprNode()         {}
func (*DictComp) exprNode()        {}
func (*GeneratorExp) exprNode()    {}
func (*Await) exprNode()           {}
func (*Yield) exprNode()           {}
func (*YieldFrom) exprNode()       {}
func (*Compare) exprNode()         {}
func (*Call) exprNode()            {}
func (*FormattedString) exprNode() {}
func (*Constant) exprNode()        {}
func (*Attribute) exprNode()       {}
func (*Subscript) exprNode()       {}
func (*Starred) exprNode()         {}
func (*Name) exprNode()            {}
func (*List) exprNode()            {}
func (*Tuple) exprNode()           {}
func (*Slice) exprNode()           {}
