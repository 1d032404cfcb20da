// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syntax

import (
	"fmt"
	"strings"
)

// Operator binding strength, loosest first. Children printed at a
// context stronger than their own level are parenthesised.
type precedence int

const (
	precTuple precedence = iota
	precYield
	precTest
	precOr
	precAnd
	precNot
	precCompare
	precBitOr
	precBitXor
	precBitAnd
	precShift
	precArith
	precTerm
	precFactor
	precPower
	precAwait
	precAtom
)

var binaryOperatorText = map[string]struct {
	text  string
	level precedence
}{
	"Add": {"+", precArith}, "Sub": {"-", precArith},
	"Mult": {"*", precTerm}, "MatMult": {"@", precTerm}, "Div": {"/", precTerm},
	"FloorDiv": {"//", precTerm}, "Mod": {"%", precTerm},
	"Pow":    {"**", precPower},
	"LShift": {"<<", precShift}, "RShift": {">>", precShift},
	"BitOr": {"|", precBitOr}, "BitXor": {"^", precBitXor}, "BitAnd": {"&", precBitAnd},
}

var unaryOperatorText = map[string]string{"Not": "not ", "Invert": "~", "UAdd": "+", "USub": "-"}

var compareOperatorText = map[string]string{
	"Eq": "==", "NotEq": "!=", "Lt": "<", "LtE": "<=", "Gt": ">", "GtE": ">=",
	"Is": "is", "IsNot": "is not", "In": "in", "NotIn": "not in",
}

// Unparse prints a module, statement or expression as canonical source.
// Statements are indented by four spaces per level and a module ends
// with a newline.
func Unparse(node Node) string {
	u := &unparser{}
	switch node := node.(type) {
	case *Module:
		// An empty module prints as nothing; pass is only needed
		// where a block requires a body.
		for _, statement := range node.Body {
			u.statement(statement, 0)
		}
	case Stmt:
		u.statement(node, 0)
	case Expr:
		u.expr(node, precTuple)
		return u.out.String()
	case *Arguments:
		u.arguments(node)
		return u.out.String()
	default:
		return "<" + node.Kind() + ">"
	}
	return u.out.String()
}

type unparser struct {
	out strings.Builder
}

func (u *unparser) write(parts ...string) {
	for _, part := range parts {
		u.out.WriteString(part)
	}
}

func (u *unparser) line(indent int, parts ...string) {
	u.out.WriteString(strings.Repeat("    ", indent))
	u.write(parts...)
}

func (u *unparser) statements(body []Stmt, indent int) {
	if len(body) == 0 {
		u.line(indent, "pass\n")
		return
	}
	for _, statement := range body {
		u.statement(statement, indent)
	}
}

func (u *unparser) block(indent int, header func(), body []Stmt) {
	u.out.WriteString(strings.Repeat("    ", indent))
	header()
	u.write(":\n")
	u.statements(body, indent+1)
}

func (u *unparser) statement(statement Stmt, indent int) {
	switch s := statement.(type) {
	case *FunctionDef:
		u.decorators(s.Decorators, indent)
		u.block(indent, func() {
			if s.Async {
				u.write("async ")
			}
			u.write("def ", s.Name, "(")
			u.arguments(s.Args)
			u.write(")")
			if s.Returns != nil {
				u.write(" -> ")
				u.expr(s.Returns, precTest)
			}
		}, s.Body)
	case *ClassDef:
		u.decorators(s.Decorators, indent)
		u.block(indent, func() {
			u.write("class ", s.Name)
			if len(s.Bases) > 0 || len(s.Keywords) > 0 {
				u.write("(")
				u.callArguments(s.Bases, s.Keywords)
				u.write(")")
			}
		}, s.Body)
	case *Return:
		u.line(indent, "return")
		if s.Value != nil {
			u.write(" ")
			u.expr(s.Value, precTest)
		}
		u.write("\n")
	case *Delete:
		u.line(indent, "del ")
		u.exprList(s.Targets, precTest)
		u.write("\n")
	case *Assign:
		u.line(indent)
		for _, target := range s.Targets {
			u.expr(target, precTest)
			u.write(" = ")
		}
		u.expr(s.Value, precTest)
		u.write("\n")
	case *AugAssign:
		u.line(indent)
		u.expr(s.Target, precTest)
		u.write(" ", binaryOperatorText[s.Op].text, "= ")
		u.expr(s.Value, precTest)
		u.write("\n")
	case *AnnAssign:
		u.line(indent)
		u.expr(s.Target, precTest)
		u.write(": ")
		u.expr(s.Annotation, precTest)
		if s.Value != nil {
			u.write(" = ")
			u.expr(s.Value, precTest)
		}
		u.write("\n")
	case *For:
		u.block(indent, func() {
			if s.Async {
				u.write("async ")
			}
			u.write("for ")
			u.expr(s.Target, precTest)
			u.write(" in ")
			u.expr(s.Iter, precTest)
		}, s.Body)
		u.orelse(s.Orelse, indent)
	case *While:
		u.block(indent, func() {
			u.write("while ")
			u.expr(s.Test, precTest)
		}, s.Body)
		u.orelse(s.Orelse, indent)
	case *If:
		u.ifChain(s, indent, "if ")
	case *With:
		u.block(indent, func() {
			if s.Async {
				u.write("async ")
			}
			u.write("with ")
			for index, item := range s.Items {
				if index > 0 {
					u.write(", ")
				}
				u.expr(item.Context, precTest)
				if item.Vars != nil {
					u.write(" as ")
					u.expr(item.Vars, precTest)
				}
			}
		}, s.Body)
	case *Raise:
		u.line(indent, "raise")
		if s.Exc != nil {
			u.write(" ")
			u.expr(s.Exc, precTest)
			if s.Cause != nil {
				u.write(" from ")
				u.expr(s.Cause, precTest)
			}
		}
		u.write("\n")
	case *Try:
		u.line(indent, "try:\n")
		u.statements(s.Body, indent+1)
		for _, handler := range s.Handlers {
			u.block(indent, func() {
				u.write("except")
				if handler.Type != nil {
					u.write(" ")
					u.expr(handler.Type, precTest)
					if handler.Name != "" {
						u.write(" as ", handler.Name)
					}
				}
			}, handler.Body)
		}
		u.orelse(s.Orelse, indent)
		if len(s.Finalbody) > 0 {
			u.line(indent, "finally:\n")
			u.statements(s.Finalbody, indent+1)
		}
	case *Assert:
		u.line(indent, "assert ")
		u.expr(s.Test, precTest)
		if s.Msg != nil {
			u.write(", ")
			u.expr(s.Msg, precTest)
		}
		u.write("\n")
	case *Import:
		u.line(indent, "import ", aliasList(s.Names), "\n")
	case *ImportFrom:
		u.line(indent, "from ", strings.Repeat(".", s.Level), s.Module, " import ", aliasList(s.Names), "\n")
	case *Global:
		u.line(indent, "global ", strings.Join(s.Names, ", "), "\n")
	case *Nonlocal:
		u.line(indent, "nonlocal ", strings.Join(s.Names, ", "), "\n")
	case *ExprStmt:
		u.line(indent)
		u.expr(s.Value, precYield)
		u.write("\n")
	case *Pass:
		u.line(indent, "pass\n")
	case *Break:
		u.line(indent, "break\n")
	case *Continue:
		u.line(indent, "continue\n")
	default:
		panic(fmt.Sprintf("syntax: cannot unparse statement %T", statement))
	}
}

func (u *unparser) decorators(decorators []Expr, indent int) {
	for _, decorator := range decorators {
		u.line(indent, "@")
		u.expr(decorator, precTest)
		u.write("\n")
	}
}

func (u *unparser) orelse(body []Stmt, indent int) {
	if len(body) == 0 {
		return
	}
	u.line(indent, "else:\n")
	u.statements(body, indent+1)
}

func (u *unparser) ifChain(s *If, indent int, keyword string) {
	u.block(indent, func() {
		u.write(keyword)
		u.expr(s.Test, precTest)
	}, s.Body)
	if len(s.Orelse) == 1 {
		if nested, ok := s.Orelse[0].(*If); ok {
			u.ifChain(nested, indent, "elif ")
			return
		}
	}
	u.orelse(s.Orelse, indent)
}

func aliasList(names []*Alias) string {
	parts := make([]string, len(names))
	for index, alias := range names {
		parts[index] = alias.Name
		if alias.AsName != "" {
			parts[index] += " as " + alias.AsName
		}
	}
	return strings.Join(parts, ", ")
}

func (u *unparser) arguments(a *Arguments) {
	if a == nil {
		return
	}
	first := true
	separator := func() {
		if !first {
			u.write(", ")
		}
		first = false
	}
	positional := append(append([]*Arg{}, a.PosOnly...), a.Args...)
	defaultsFrom := len(positional) - len(a.Defaults)
	for index, arg := range positional {
		separator()
		var value Expr
		if index >= defaultsFrom {
			value = a.Defaults[index-defaultsFrom]
		}
		u.parameter(arg, value)
		if index == len(a.PosOnly)-1 {
			u.write(", /")
		}
	}
	if a.Vararg != nil || len(a.KwOnly) > 0 {
		separator()
		u.write("*")
		if a.Vararg != nil {
			u.parameter(a.Vararg, nil)
		}
	}
	for index, arg := range a.KwOnly {
		separator()
		var value Expr
		if index < len(a.KwDefaults) {
			value = a.KwDefaults[index]
		}
		u.parameter(arg, value)
	}
	if a.Kwarg != nil {
		separator()
		u.write("**")
		u.parameter(a.Kwarg, nil)
	}
}

func (u *unparser) parameter(arg *Arg, value Expr) {
	u.write(arg.Name)
	if arg.Annotation != nil {
		u.write(": ")
		u.expr(arg.Annotation, precTest)
	}
	if value == nil {
		return
	}
	if arg.Annotation != nil {
		u.write(" = ")
	} else {
		u.write("=")
	}
	u.expr(value, precTest)
}

func (u *unparser) exprList(values []Expr, context precedence) {
	for index, value := range values {
		if index > 0 {
			u.write(", ")
		}
		u.expr(value, context)
	}
}

func (u *unparser) callArguments(args []Expr, keywords []*Keyword) {
	u.exprList(args, precTest)
	for index, keyword := range keywords {
		if index > 0 || len(args) > 0 {
			u.write(", ")
		}
		if keyword.Arg == "" {
			u.write("**")
			u.expr(keyword.Value, precBitOr)
			continue
		}
		u.write(keyword.Arg, "=")
		u.expr(keyword.Value, precTest)
	}
}

// wrap parenthesises print when the node binds looser than context.
func (u *unparser) wrap(level, context precedence, print func()) {
	if level < context {
		u.write("(")
		print()
		u.write(")")
		return
	}
	print()
}

func (u *unparser) expr(expr Expr, context precedence) {
	switch e := expr.(type) {
	case *BoolOp:
		level, word := precOr, " or "
		if e.Op == "And" {
			level, word = precAnd, " and "
		}
		u.wrap(level, context, func() {
			for index, value := range e.Values {
				if index > 0 {
					u.write(word)
				}
				u.expr(value, level+1)
			}
		})
	case *BinOp:
		operator := binaryOperatorText[e.Op]
		left, right := operator.level, operator.level+1
		if e.Op == "Pow" {
			left, right = operator.level+1, operator.level
		}
		u.wrap(operator.level, context, func() {
			u.expr(e.Left, left)
			u.write(" ", operator.text, " ")
			u.expr(e.Right, right)
		})
	case *UnaryOp:
		level := precFactor
		if e.Op == "Not" {
			level = precNot
		}
		u.wrap(level, context, func() {
			u.write(unaryOperatorText[e.Op])
			u.expr(e.Operand, level)
		})
	case *Lambda:
		u.wrap(precTest, context, func() {
			u.write("lambda")
			if e.Args != nil && (len(e.Args.PosOnly)+len(e.Args.Args)+len(e.Args.KwOnly) > 0 || e.Args.Vararg != nil || e.Args.Kwarg != nil) {
				u.write(" ")
				u.arguments(e.Args)
			}
			u.write(": ")
			u.expr(e.Body, precTest)
		})
	case *IfExp:
		u.wrap(precTest, context, func() {
			u.expr(e.Body, precOr)
			u.write(" if ")
			u.expr(e.Test, precOr)
			u.write(" else ")
			u.expr(e.Orelse, precTest)
		})
	case *Dict:
		u.write("{")
		for index := range e.Values {
			if index > 0 {
				u.write(", ")
			}
			if e.Keys[index] == nil {
				u.write("**")
				u.expr(e.Values[index], precBitOr)
				continue
			}
			u.expr(e.Keys[index], precTest)
			u.write(": ")
			u.expr(e.Values[index], precTest)
		}
		u.write("}")
	case *Set:
		u.write("{")
		u.exprList(e.Elts, precTest)
		u.write("}")
	case *ListComp:
		u.write("[")
		u.expr(e.Elt, precTest)
		u.comprehensions(e.Generators)
		u.write("]")
	case *SetComp:
		u.write("{")
		u.expr(e.Elt, precTest)
		u.comprehensions(e.Generators)
		u.write("}")
	case *DictComp:
		u.write("{")
		u.expr(e.Key, precTest)
		u.write(": ")
		u.expr(e.Value, precTest)
		u.comprehensions(e.Generators)
		u.write("}")
	case *GeneratorExp:
		u.write("(")
		u.expr(e.Elt, precTest)
		u.comprehensions(e.Generators)
		u.write(")")
	case *Await:
		u.wrap(precAwait, context, func() {
			u.write("await ")
			u.expr(e.Value, precAtom)
		})
	case *Yield:
		u.write("(yield")
		if e.Value != nil {
			u.write(" ")
			u.expr(e.Value, precTest)
		}
		u.write(")")
	case *YieldFrom:
		u.write("(yield from ")
		u.expr(e.Value, precTest)
		u.write(")")
	case *Compare:
		u.wrap(precCompare, context, func() {
			u.expr(e.Left, precCompare+1)
			for index, op := range e.Ops {
				u.write(" ", compareOperatorText[op], " ")
				u.expr(e.Comparators[index], precCompare+1)
			}
		})
	case *Call:
		u.expr(e.Func, precAtom)
		u.write("(")
		u.callArguments(e.Args, e.Keywords)
		u.write(")")
	case *FormattedString:
		u.write(e.Raw)
	case *Constant:
		u.constant(e)
	case *Attribute:
		if constant, ok := e.Value.(*Constant); ok && constant.Type == ConstInt {
			u.write("(")
			u.constant(constant)
			u.write(")")
		} else {
			u.expr(e.Value, precAtom)
		}
		u.write(".", e.Attr)
	case *Subscript:
		u.expr(e.Value, precAtom)
		u.write("[")
		if tuple, ok := e.Slice.(*Tuple); ok && len(tuple.Elts) > 0 {
			u.exprList(tuple.Elts, precTest)
			if len(tuple.Elts) == 1 {
				u.write(",")
			}
		} else {
			u.expr(e.Slice, precTest)
		}
		u.write("]")
	case *Starred:
		u.write("*")
		u.expr(e.Value, precBitOr)
	case *Name:
		u.write(e.ID)
	case *List:
		u.write("[")
		u.exprList(e.Elts, precTest)
		u.write("]")
	case *Tuple:
		u.write("(")
		u.exprList(e.Elts, precTest)
		if len(e.Elts) == 1 {
			u.write(",")
		}
		u.write(")")
	case *Slice:
		if e.Lower != nil {
			u.expr(e.Lower, precTest)
		}
		u.write(":")
		if e.Upper != nil {
			u.expr(e.Upper, precTest)
		}
		if e.Step != nil {
			u.write(":")
			u.expr(e.Step, precTest)
		}
	default:
		panic(fmt.Sprintf("syntax: cannot unparse expression %T", expr))
	}
}

func (u *unparser) comprehensions(generators []*Comprehension) {
	for _, clause := range generators {
		if clause.Async {
			u.write(" async")
		}
		u.write(" for ")
		u.expr(clause.Target, precTest)
		u.write(" in ")
		u.expr(clause.Iter, precOr)
		for _, condition := range clause.Ifs {
			u.write(" if ")
			u.expr(condition, precOr)
		}
	}
}

func (u *unparser) constant(c *Constant) {
	switch c.Type {
	case ConstInt:
		u.write(c.Value)
	case ConstFloat:
		u.write(floatSource(c.Value))
	case ConstComplex:
		u.write(floatSource(c.Value), "j")
	case ConstString:
		u.write(quoteText(c.Value))
	case ConstBytes:
		u.write(quoteBytes(c.Value))
	case ConstTrue:
		u.write("True")
	case ConstFalse:
		u.write("False")
	case ConstNone:
		u.write("None")
	case ConstEllipsis:
		u.write("...")
	}
}

// floatSource turns canonical float text back into a literal; infinity
// has no literal, so it is written as an overflowing one.
func floatSource(value string) string {
	if value == "inf" {
		return "1e309"
	}
	return value
}
