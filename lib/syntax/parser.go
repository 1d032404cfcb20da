// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syntax

import (
	"errors"
	"fmt"
	"strings"
)

// MaxNesting bounds bracket, block and unary nesting while parsing.
const MaxNesting = 1000

// Parse parses source text into a module.
func Parse(source string) (*Module, error) {
	var module *Module
	if err := parse(source, func(p *parser) { module = p.parseModule() }); err != nil {
		return nil, err
	}
	return module, nil
}

// ParseExpression parses source holding exactly one expression.
func ParseExpression(source string) (Expr, error) {
	var expr Expr
	err := parse(source, func(p *parser) {
		if p.peek().Type == tokenEOF {
			p.fail(p.peek(), "expected an expression")
		}
		if p.isKeyword("yield") {
			expr = p.parseYield()
		} else {
			expr = p.parseTestListStar()
		}
		p.expectType(tokenNewline)
		p.expectType(tokenEOF)
	})
	if err != nil {
		return nil, err
	}
	return expr, nil
}

// parse runs rule over the tokens of source. When the lexer stopped
// early the parser still runs over what it read, and whichever error
// sits first in the source is returned.
func parse(source string, rule func(p *parser)) error {
	tokens, lexErr := tokenize(source)
	p := &parser{tokens: tokens}
	parseErr := p.guard(func() { rule(p) })
	if lexErr == nil {
		return parseErr
	}
	var early, late *Error
	if errors.As(parseErr, &early) && errors.As(lexErr, &late) && early.before(late) {
		return parseErr
	}
	return lexErr
}

// ParseStatement parses source holding exactly one statement.
func ParseStatement(source string) (Stmt, error) {
	module, err := Parse(source)
	if err != nil {
		return nil, err
	}
	if len(module.Body) != 1 {
		return nil, &Error{Line: 1, Message: fmt.Sprintf("expected one statement, found %d", len(module.Body))}
	}
	return module.Body[0], nil
}

type parser struct {
	tokens []token
	pos    int
	prev   token
	depth  int
}

// bailout carries a syntax error out of the recursive descent.
type bailout struct{ err *Error }

func (p *parser) guard(parse func()) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			failure, ok := recovered.(bailout)
			if !ok {
				panic(recovered)
			}
			err = failure.err
		}
	}()
	parse()
	return nil
}

func (p *parser) fail(at token, format string, args ...any) {
	panic(bailout{&Error{Line: at.Line, Column: at.Column, Message: fmt.Sprintf(format, args...)}})
}

func (p *parser) enter() {
	p.depth++
	if p.depth > MaxNesting {
		p.fail(p.peek(), "too many nested levels (limit %d)", MaxNesting)
	}
}

func (p *parser) leave() { p.depth-- }

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+offset]
}

func (p *parser) next() token {
	current := p.tokens[p.pos]
	if current.Type != tokenEOF {
		p.pos++
	}
	// Layout tokens sit past the end of the last statement; a span
	// closes on the last token with source text.
	switch current.Type {
	case tokenNewline, tokenIndent, tokenDedent, tokenEOF:
	default:
		p.prev = current
	}
	return current
}

func (p *parser) isOp(text string) bool {
	current := p.peek()
	return current.Type == tokenOp && current.Text == text
}

func (p *parser) isKeyword(word string) bool {
	current := p.peek()
	return current.Type == tokenName && current.Text == word
}

func (p *parser) acceptOp(text string) bool {
	if p.isOp(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) acceptKeyword(word string) bool {
	if p.isKeyword(word) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expectOp(text string) token {
	if !p.isOp(text) {
		p.fail(p.peek(), "expected %q, found %s", text, p.peek())
	}
	return p.next()
}

func (p *parser) expectKeyword(word string) token {
	if !p.isKeyword(word) {
		p.fail(p.peek(), "expected %q, found %s", word, p.peek())
	}
	return p.next()
}

func (p *parser) expectType(kind tokenType) token {
	if p.peek().Type != kind {
		p.fail(p.peek(), "expected %s, found %s", kind, p.peek())
	}
	return p.next()
}

func (p *parser) expectName() token {
	current := p.peek()
	if current.Type != tokenName || keywords[current.Text] {
		p.fail(current, "expected a name, found %s", current)
	}
	return p.next()
}

// spanFrom closes a span opened at start with the last consumed token.
func (p *parser) spanFrom(start token) Span {
	return Span{Line: start.Line, Column: start.Column, EndLine: p.prev.EndLine, EndColumn: p.prev.EndColumn}
}

func (p *parser) spanAfter(start Span) Span {
	return Span{Line: start.Line, Column: start.Column, EndLine: p.prev.EndLine, EndColumn: p.prev.EndColumn}
}

// endsSimpleStatement reports whether the current token closes a simple
// statement.
func (p *parser) endsSimpleStatement() bool {
	current := p.peek()
	return current.Type == tokenNewline || current.Type == tokenEOF || p.isOp(";")
}

// startsExpression reports whether the current token can begin an
// expression, which decides whether a trailing comma ends a list.
func (p *parser) startsExpression() bool {
	current := p.peek()
	switch current.Type {
	case tokenNumber, tokenString:
		return true
	case tokenName:
		if !keywords[current.Text] {
			return true
		}
		switch current.Text {
		case "not", "lambda", "await", "None", "True", "False":
			return true
		}
	case tokenOp:
		switch current.Text {
		case "(", "[", "{", "-", "+", "~", "*", "...":
			return true
		}
	}
	return false
}

// Statements.

func (p *parser) parseModule() *Module {
	start := p.peek()
	module := &Module{}
	for p.peek().Type != tokenEOF {
		if p.peek().Type == tokenNewline {
			p.next()
			continue
		}
		module.Body = append(module.Body, p.parseStatement()...)
	}
	if len(module.Body) > 0 {
		module.Span = p.spanFrom(start)
	}
	return module
}

func (p *parser) parseStatement() []Stmt {
	current := p.peek()
	if current.Type == tokenIndent {
		p.fail(current, "unexpected indent")
	}
	if current.Type == tokenOp && current.Text == "@" {
		return []Stmt{p.parseDecorated()}
	}
	if current.Type == tokenName {
		switch current.Text {
		case "if":
			return []Stmt{p.parseIf()}
		case "while":
			return []Stmt{p.parseWhile()}
		case "for":
			return []Stmt{p.parseFor(current, false)}
		case "try":
			return []Stmt{p.parseTry()}
		case "with":
			return []Stmt{p.parseWith(current, false)}
		case "def":
			return []Stmt{p.parseFunction(current, nil, false)}
		case "class":
			return []Stmt{p.parseClass(current, nil)}
		case "async":
			return []Stmt{p.parseAsync(nil)}
		}
	}
	return p.parseSimpleStatements()
}

func (p *parser) parseSimpleStatements() []Stmt {
	statements := []Stmt{p.parseSmallStatement()}
	for p.acceptOp(";") {
		if p.peek().Type == tokenNewline || p.peek().Type == tokenEOF {
			break
		}
		statements = append(statements, p.parseSmallStatement())
	}
	if p.peek().Type != tokenEOF {
		p.expectType(tokenNewline)
	}
	return statements
}

func (p *parser) parseSmallStatement() Stmt {
	start := p.peek()
	if start.Type == tokenName {
		switch start.Text {
		case "pass":
			p.next()
			return &Pass{Span: p.spanFrom(start)}
		case "break":
			p.next()
			return &Break{Span: p.spanFrom(start)}
		case "continue":
			p.next()
			return &Continue{Span: p.spanFrom(start)}
		case "return":
			p.next()
			statement := &Return{}
			if !p.endsSimpleStatement() {
				statement.Value = p.parseTestListStar()
			}
			statement.Span = p.spanFrom(start)
			return statement
		case "raise":
			p.next()
			statement := &Raise{}
			if !p.endsSimpleStatement() {
				statement.Exc = p.parseTest()
				if p.acceptKeyword("from") {
					statement.Cause = p.parseTest()
				}
			}
			statement.Span = p.spanFrom(start)
			return statement
		case "global":
			p.next()
			return &Global{Names: p.parseNameList(), Span: p.spanFrom(start)}
		case "nonlocal":
			p.next()
			return &Nonlocal{Names: p.parseNameList(), Span: p.spanFrom(start)}
		case "del":
			p.next()
			statement := &Delete{}
			for {
				target := p.parseExprOrStar()
				p.checkTarget(target, "delete")
				statement.Targets = append(statement.Targets, target)
				if !p.acceptOp(",") || !p.startsExpression() {
					break
				}
			}
			statement.Span = p.spanFrom(start)
			return statement
		case "assert":
			p.next()
			statement := &Assert{Test: p.parseTest()}
			if p.acceptOp(",") {
				statement.Msg = p.parseTest()
			}
			statement.Span = p.spanFrom(start)
			return statement
		case "import":
			return p.parseImport()
		case "from":
			return p.parseImportFrom()
		}
	}
	return p.parseExpressionStatement()
}

func (p *parser) parseNameList() []string {
	names := []string{p.expectName().Text}
	for p.acceptOp(",") {
		names = append(names, p.expectName().Text)
	}
	return names
}

func (p *parser) parseDottedName() string {
	parts := []string{p.expectName().Text}
	for p.acceptOp(".") {
		parts = append(parts, p.expectName().Text)
	}
	return strings.Join(parts, ".")
}

func (p *parser) parseImport() Stmt {
	start := p.expectKeyword("import")
	statement := &Import{}
	for {
		aliasStart := p.peek()
		alias := &Alias{Name: p.parseDottedName()}
		if p.acceptKeyword("as") {
			alias.AsName = p.expectName().Text
		}
		alias.Span = p.spanFrom(aliasStart)
		statement.Names = append(statement.Names, alias)
		if !p.acceptOp(",") {
			break
		}
	}
	statement.Span = p.spanFrom(start)
	return statement
}

func (p *parser) parseImportFrom() Stmt {
	start := p.expectKeyword("from")
	statement := &ImportFrom{}
	for {
		if p.acceptOp(".") {
			statement.Level++
		} else if p.acceptOp("...") {
			statement.Level += 3
		} else {
			break
		}
	}
	if !p.isKeyword("import") {
		statement.Module = p.parseDottedName()
	}
	p.expectKeyword("import")
	if star := p.peek(); p.acceptOp("*") {
		statement.Names = []*Alias{{Name: "*", Span: p.spanFrom(star)}}
		statement.Span = p.spanFrom(start)
		return statement
	}
	parenthesised := p.acceptOp("(")
	for {
		aliasStart := p.peek()
		alias := &Alias{Name: p.expectName().Text}
		if p.acceptKeyword("as") {
			alias.AsName = p.expectName().Text
		}
		alias.Span = p.spanFrom(aliasStart)
		statement.Names = append(statement.Names, alias)
		if !p.acceptOp(",") {
			break
		}
		if parenthesised && p.isOp(")") {
			break
		}
	}
	if parenthesised {
		p.expectOp(")")
	}
	statement.Span = p.spanFrom(start)
	return statement
}

var augmentedOperators = map[string]string{
	"+=": "Add", "-=": "Sub", "*=": "Mult", "@=": "MatMult", "/=": "Div",
	"//=": "FloorDiv", "%=": "Mod", "**=": "Pow", "<<=": "LShift",
	">>=": "RShift", "|=": "BitOr", "^=": "BitXor", "&=": "BitAnd",
}

func (p *parser) parseExpressionStatement() Stmt {
	start := p.peek()
	var first Expr
	if p.isKeyword("yield") {
		first = p.parseYield()
	} else {
		first = p.parseTestListStar()
	}

	if p.isOp(":") {
		p.next()
		p.checkSingleTarget(first, start)
		statement := &AnnAssign{Target: first, Annotation: p.parseTest()}
		if p.acceptOp("=") {
			statement.Value = p.parseAssignedValue()
		}
		statement.Span = p.spanFrom(start)
		return statement
	}

	if current := p.peek(); current.Type == tokenOp {
		if op, ok := augmentedOperators[current.Text]; ok {
			p.next()
			p.checkSingleTarget(first, start)
			statement := &AugAssign{Target: first, Op: op, Value: p.parseAssignedValue()}
			statement.Span = p.spanFrom(start)
			return statement
		}
	}

	if p.isOp("=") {
		targets := []Expr{first}
		var value Expr
		for p.acceptOp("=") {
			value = p.parseAssignedValue()
			if p.isOp("=") {
				targets = append(targets, value)
			}
		}
		for _, target := range targets {
			p.checkTarget(target, "assign to")
		}
		statement := &Assign{Targets: targets, Value: value}
		statement.Span = p.spanFrom(start)
		return statement
	}

	return &ExprStmt{Value: first, Span: p.spanFrom(start)}
}

func (p *parser) parseAssignedValue() Expr {
	if p.isKeyword("yield") {
		return p.parseYield()
	}
	return p.parseTestListStar()
}

func (p *parser) checkSingleTarget(target Expr, at token) {
	switch target.(type) {
	case *Name, *Attribute, *Subscript:
	default:
		p.fail(at, "illegal target for annotation or augmented assignment")
	}
}

func (p *parser) checkTarget(target Expr, verb string) {
	switch target := target.(type) {
	case *Name, *Attribute, *Subscript:
	case *Tuple:
		for _, element := range target.Elts {
			p.checkTarget(element, verb)
		}
	case *List:
		for _, element := range target.Elts {
			p.checkTarget(element, verb)
		}
	case *Starred:
		if verb == "delete" {
			p.fail(p.prev, "cannot delete starred")
		}
		p.checkTarget(target.Value, verb)
	default:
		location := target.Location()
		p.fail(token{Line: location.Line, Column: location.Column}, "cannot %s %s", verb, describe(target))
	}
}

func describe(expr Expr) string {
	switch expr := expr.(type) {
	case *Constant:
		return "literal"
	case *Call:
		return "function call"
	case *Compare:
		return "comparison"
	case *BinOp, *UnaryOp, *BoolOp:
		return "expression"
	default:
		return strings.ToLower(expr.Kind())
	}
}

func (p *parser) parseBlock() []Stmt {
	p.expectOp(":")
	p.enter()
	defer p.leave()
	if p.peek().Type != tokenNewline {
		return p.parseSimpleStatements()
	}
	p.next()
	if p.peek().Type != tokenIndent {
		p.fail(p.peek(), "expected an indented block")
	}
	p.next()
	var body []Stmt
	for p.peek().Type != tokenDedent && p.peek().Type != tokenEOF {
		body = append(body, p.parseStatement()...)
	}
	p.expectType(tokenDedent)
	return body
}

func (p *parser) parseIf() Stmt {
	start := p.next()
	statement := &If{Test: p.parseTest()}
	statement.Body = p.parseBlock()
	switch {
	case p.isKeyword("elif"):
		statement.Orelse = []Stmt{p.parseIf()}
	case p.acceptKeyword("else"):
		statement.Orelse = p.parseBlock()
	}
	statement.Span = p.spanFrom(start)
	return statement
}

func (p *parser) parseWhile() Stmt {
	start := p.expectKeyword("while")
	statement := &While{Test: p.parseTest()}
	statement.Body = p.parseBlock()
	if p.acceptKeyword("else") {
		statement.Orelse = p.parseBlock()
	}
	statement.Span = p.spanFrom(start)
	return statement
}

func (p *parser) parseFor(start token, async bool) Stmt {
	p.expectKeyword("for")
	statement := &For{Async: async, Target: p.parseTargetList()}
	p.checkTarget(statement.Target, "assign to")
	p.expectKeyword("in")
	statement.Iter = p.parseTestListStar()
	statement.Body = p.parseBlock()
	if p.acceptKeyword("else") {
		statement.Orelse = p.parseBlock()
	}
	statement.Span = p.spanFrom(start)
	return statement
}

func (p *parser) parseTry() Stmt {
	start := p.expectKeyword("try")
	statement := &Try{Body: p.parseBlock()}
	for p.isKeyword("except") {
		handlerStart := p.next()
		handler := &ExceptHandler{}
		if !p.isOp(":") {
			if p.isOp("*") {
				p.fail(p.peek(), "except* is not supported")
			}
			handler.Type = p.parseTest()
			if p.acceptKeyword("as") {
				handler.Name = p.expectName().Text
			}
		}
		handler.Body = p.parseBlock()
		handler.Span = p.spanFrom(handlerStart)
		statement.Handlers = append(statement.Handlers, handler)
	}
	if len(statement.Handlers) > 0 && p.acceptKeyword("else") {
		statement.Orelse = p.parseBlock()
	}
	if p.acceptKeyword("finally") {
		statement.Finalbody = p.parseBlock()
	}
	if len(statement.Handlers) == 0 && len(statement.Finalbody) == 0 {
		p.fail(p.peek(), "expected 'except' or 'finally' block")
	}
	statement.Span = p.spanFrom(start)
	return statement
}

func (p *parser) parseWith(start token, async bool) Stmt {
	p.expectKeyword("with")
	statement := &With{Async: async}
	for {
		itemStart := p.peek()
		item := &WithItem{Context: p.parseTest()}
		if p.acceptKeyword("as") {
			item.Vars = p.parseExprOrStar()
			p.checkTarget(item.Vars, "assign to")
		}
		item.Span = p.spanFrom(itemStart)
		statement.Items = append(statement.Items, item)
		if !p.acceptOp(",") {
			break
		}
	}
	statement.Body = p.parseBlock()
	statement.Span = p.spanFrom(start)
	return statement
}

func (p *parser) parseDecorated() Stmt {
	start := p.peek()
	var decorators []Expr
	for p.acceptOp("@") {
		decorators = append(decorators, p.parseTest())
		p.expectType(tokenNewline)
	}
	current := p.peek()
	switch {
	case p.isKeyword("def"):
		return p.parseFunction(start, decorators, false)
	case p.isKeyword("class"):
		return p.parseClass(start, decorators)
	case p.isKeyword("async"):
		return p.parseAsync(decorators)
	}
	p.fail(current, "expected a function or class definition after decorator")
	return nil
}

func (p *parser) parseAsync(decorators []Expr) Stmt {
	start := p.expectKeyword("async")
	switch {
	case p.isKeyword("def"):
		return p.parseFunction(start, decorators, true)
	case decorators != nil:
	case p.isKeyword("for"):
		return p.parseFor(start, true)
	case p.isKeyword("with"):
		return p.parseWith(start, true)
	}
	p.fail(p.peek(), "expected 'def', 'for' or 'with' after 'async'")
	return nil
}

func (p *parser) parseFunction(start token, decorators []Expr, async bool) Stmt {
	p.expectKeyword("def")
	statement := &FunctionDef{Name: p.expectName().Text, Async: async, Decorators: decorators}
	p.expectOp("(")
	statement.Args = p.parseParameters(")", true)
	p.expectOp(")")
	if p.acceptOp("->") {
		statement.Returns = p.parseTest()
	}
	statement.Body = p.parseBlock()
	statement.Span = p.spanFrom(start)
	return statement
}

func (p *parser) parseClass(start token, decorators []Expr) Stmt {
	p.expectKeyword("class")
	statement := &ClassDef{Name: p.expectName().Text, Decorators: decorators}
	if p.acceptOp("(") {
		statement.Bases, statement.Keywords = p.parseArguments()
	}
	statement.Body = p.parseBlock()
	statement.Span = p.spanFrom(start)
	return statement
}

// parseParameters parses a def or lambda parameter list up to closing.
func (p *parser) parseParameters(closing string, annotations bool) *Arguments {
	arguments := &Arguments{}
	start := p.peek()
	starSeen, slashSeen := false, false
	parameter := func() *Arg {
		nameToken := p.expectName()
		arg := &Arg{Name: nameToken.Text}
		if annotations && p.acceptOp(":") {
			arg.Annotation = p.parseTest()
		}
		arg.Span = p.spanFrom(nameToken)
		return arg
	}
	for !p.isOp(closing) {
		current := p.peek()
		switch {
		case p.acceptOp("/"):
			if slashSeen || starSeen || len(arguments.Args) == 0 {
				p.fail(current, "invalid use of '/' in parameters")
			}
			slashSeen = true
			arguments.PosOnly, arguments.Args = arguments.Args, nil
		case p.acceptOp("**"):
			arguments.Kwarg = parameter()
			p.acceptOp(",")
			if !p.isOp(closing) {
				p.fail(p.peek(), "parameters cannot follow var-keyword parameter")
			}
			continue
		case p.acceptOp("*"):
			if starSeen {
				p.fail(current, "* argument may appear only once")
			}
			starSeen = true
			if p.isOp(",") || p.isOp(closing) {
				if p.isOp(closing) || p.peekAt(1).Type == tokenOp && p.peekAt(1).Text == closing {
					p.fail(current, "named arguments must follow bare *")
				}
			} else {
				arguments.Vararg = parameter()
			}
		default:
			arg := parameter()
			var value Expr
			if p.acceptOp("=") {
				value = p.parseTest()
			}
			if starSeen {
				arguments.KwOnly = append(arguments.KwOnly, arg)
				arguments.KwDefaults = append(arguments.KwDefaults, value)
				break
			}
			arguments.Args = append(arguments.Args, arg)
			if value != nil {
				arguments.Defaults = append(arguments.Defaults, value)
			} else if len(arguments.Defaults) > 0 {
				p.fail(token{Line: arg.Line, Column: arg.Column}, "parameter without a default follows parameter with a default")
			}
		}
		if !p.acceptOp(",") {
			break
		}
	}
	if len(arguments.PosOnly)+len(arguments.Args)+len(arguments.KwOnly) > 0 ||
		arguments.Vararg != nil || arguments.Kwarg != nil {
		arguments.Span = p.spanFrom(start)
	}
	return arguments
}

// Expressions.

func (p *parser) parseTestListStar() Expr {
	start := p.peek()
	first := p.parseTestOrStar()
	if !p.isOp(",") {
		return first
	}
	elements := []Expr{first}
	for p.acceptOp(",") {
		if !p.startsExpression() {
			break
		}
		elements = append(elements, p.parseTestOrStar())
	}
	return &Tuple{Elts: elements, Span: p.spanFrom(start)}
}

// parseTargetList parses a for-loop or comprehension target.
func (p *parser) parseTargetList() Expr {
	start := p.peek()
	first := p.parseExprOrStar()
	if !p.isOp(",") {
		return first
	}
	elements := []Expr{first}
	for p.acceptOp(",") {
		if p.isKeyword("in") {
			break
		}
		elements = append(elements, p.parseExprOrStar())
	}
	return &Tuple{Elts: elements, Span: p.spanFrom(start)}
}

func (p *parser) parseTestOrStar() Expr {
	if p.isOp("*") {
		return p.parseStar()
	}
	return p.parseTest()
}

func (p *parser) parseExprOrStar() Expr {
	if p.isOp("*") {
		return p.parseStar()
	}
	return p.parseExpr()
}

func (p *parser) parseStar() Expr {
	start := p.expectOp("*")
	value := p.parseExpr()
	return &Starred{Value: value, Span: p.spanFrom(start)}
}

func (p *parser) parseTest() Expr {
	p.enter()
	defer p.leave()
	if p.isKeyword("lambda") {
		return p.parseLambda()
	}
	start := p.peek()
	body := p.parseOrTest()
	if !p.acceptKeyword("if") {
		return body
	}
	test := p.parseOrTest()
	p.expectKeyword("else")
	orelse := p.parseTest()
	return &IfExp{Test: test, Body: body, Orelse: orelse, Span: p.spanFrom(start)}
}

func (p *parser) parseLambda() Expr {
	start := p.expectKeyword("lambda")
	args := p.parseParameters(":", false)
	p.expectOp(":")
	body := p.parseTest()
	return &Lambda{Args: args, Body: body, Span: p.spanFrom(start)}
}

func (p *parser) parseYield() Expr {
	start := p.expectKeyword("yield")
	if p.acceptKeyword("from") {
		value := p.parseTest()
		return &YieldFrom{Value: value, Span: p.spanFrom(start)}
	}
	expr := &Yield{}
	if p.startsExpression() {
		expr.Value = p.parseTestListStar()
	}
	expr.Span = p.spanFrom(start)
	return expr
}

func (p *parser) parseBoolChain(word, op string, operand func() Expr) Expr {
	start := p.peek()
	first := operand()
	if !p.isKeyword(word) {
		return first
	}
	values := []Expr{first}
	for p.acceptKeyword(word) {
		values = append(values, operand())
	}
	return &BoolOp{Op: op, Values: values, Span: p.spanFrom(start)}
}

func (p *parser) parseOrTest() Expr {
	return p.parseBoolChain("or", "Or", p.parseAndTest)
}

func (p *parser) parseAndTest() Expr {
	return p.parseBoolChain("and", "And", p.parseNotTest)
}

func (p *parser) parseNotTest() Expr {
	if start := p.peek(); p.acceptKeyword("not") {
		p.enter()
		defer p.leave()
		operand := p.parseNotTest()
		return &UnaryOp{Op: "Not", Operand: operand, Span: p.spanFrom(start)}
	}
	return p.parseComparison()
}

var comparisonOperators = map[string]string{
	"==": "Eq", "!=": "NotEq", "<": "Lt", "<=": "LtE", ">": "Gt", ">=": "GtE",
}

// comparisonOperator consumes a comparison operator if one follows.
func (p *parser) comparisonOperator() (string, bool) {
	current := p.peek()
	if current.Type == tokenOp {
		if op, ok := comparisonOperators[current.Text]; ok {
			p.next()
			return op, true
		}
		return "", false
	}
	switch {
	case p.acceptKeyword("in"):
		return "In", true
	case p.isKeyword("not") && p.peekAt(1).Type == tokenName && p.peekAt(1).Text == "in":
		p.next()
		p.next()
		return "NotIn", true
	case p.acceptKeyword("is"):
		if p.acceptKeyword("not") {
			return "IsNot", true
		}
		return "Is", true
	}
	return "", false
}

func (p *parser) parseComparison() Expr {
	start := p.peek()
	left := p.parseExpr()
	var ops []string
	var comparators []Expr
	for {
		op, ok := p.comparisonOperator()
		if !ok {
			break
		}
		ops = append(ops, op)
		comparators = append(comparators, p.parseExpr())
	}
	if len(ops) == 0 {
		return left
	}
	return &Compare{Left: left, Ops: ops, Comparators: comparators, Span: p.spanFrom(start)}
}

// binaryLevels lists left-associative binary operators from loosest to
// tightest binding.
var binaryLevels = []map[string]string{
	{"|": "BitOr"},
	{"^": "BitXor"},
	{"&": "BitAnd"},
	{"<<": "LShift", ">>": "RShift"},
	{"+": "Add", "-": "Sub"},
	{"*": "Mult", "@": "MatMult", "/": "Div", "//": "FloorDiv", "%": "Mod"},
}

func (p *parser) parseExpr() Expr { return p.parseBinary(0) }

func (p *parser) parseBinary(level int) Expr {
	if level == len(binaryLevels) {
		return p.parseFactor()
	}
	left := p.parseBinary(level + 1)
	for {
		current := p.peek()
		if current.Type != tokenOp {
			return left
		}
		op, ok := binaryLevels[level][current.Text]
		if !ok {
			return left
		}
		p.next()
		right := p.parseBinary(level + 1)
		left = &BinOp{Left: left, Op: op, Right: right, Span: p.spanAfter(left.Location())}
	}
}

var unaryOperators = map[string]string{"+": "UAdd", "-": "USub", "~": "Invert"}

func (p *parser) parseFactor() Expr {
	current := p.peek()
	if current.Type == tokenOp {
		if op, ok := unaryOperators[current.Text]; ok {
			p.next()
			p.enter()
			defer p.leave()
			operand := p.parseFactor()
			return &UnaryOp{Op: op, Operand: operand, Span: p.spanFrom(current)}
		}
	}
	return p.parsePower()
}

func (p *parser) parsePower() Expr {
	base := p.parseAwait()
	if !p.acceptOp("**") {
		return base
	}
	exponent := p.parseFactor()
	return &BinOp{Left: base, Op: "Pow", Right: exponent, Span: p.spanAfter(base.Location())}
}

func (p *parser) parseAwait() Expr {
	if start := p.peek(); p.acceptKeyword("await") {
		value := p.parsePrimary()
		return &Await{Value: value, Span: p.spanFrom(start)}
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() Expr {
	expr := p.parseAtom()
	for {
		switch {
		case p.acceptOp("("):
			args, keywords := p.parseArguments()
			expr = &Call{Func: expr, Args: args, Keywords: keywords, Span: p.spanAfter(expr.Location())}
		case p.acceptOp("["):
			slice := p.parseSubscriptList()
			p.expectOp("]")
			expr = &Subscript{Value: expr, Slice: slice, Span: p.spanAfter(expr.Location())}
		case p.acceptOp("."):
			attr := p.expectName().Text
			expr = &Attribute{Value: expr, Attr: attr, Span: p.spanAfter(expr.Location())}
		default:
			return expr
		}
	}
}

// parseArguments parses a call argument list after the opening
// parenthesis, consuming the closing one.
func (p *parser) parseArguments() ([]Expr, []*Keyword) {
	var args []Expr
	var named []*Keyword
	for !p.isOp(")") {
		start := p.peek()
		switch {
		case p.isOp("*"):
			args = append(args, p.parseStar())
		case p.acceptOp("**"):
			value := p.parseTest()
			named = append(named, &Keyword{Value: value, Span: p.spanFrom(start)})
		case start.Type == tokenName && !keywords[start.Text] && p.peekAt(1).Type == tokenOp && p.peekAt(1).Text == "=":
			p.next()
			p.next()
			value := p.parseTest()
			named = append(named, &Keyword{Arg: start.Text, Value: value, Span: p.spanFrom(start)})
		default:
			value := p.parseTest()
			if p.isKeyword("for") || p.isKeyword("async") {
				generators := p.parseComprehensions()
				value = &GeneratorExp{Elt: value, Generators: generators, Span: p.spanFrom(start)}
			}
			if len(named) > 0 {
				p.fail(start, "positional argument follows keyword argument")
			}
			args = append(args, value)
		}
		if !p.acceptOp(",") {
			break
		}
	}
	p.expectOp(")")
	return args, named
}

func (p *parser) parseSubscriptList() Expr {
	start := p.peek()
	first := p.parseSubscript()
	if !p.isOp(",") {
		return first
	}
	elements := []Expr{first}
	for p.acceptOp(",") {
		if p.isOp("]") {
			break
		}
		elements = append(elements, p.parseSubscript())
	}
	return &Tuple{Elts: elements, Span: p.spanFrom(start)}
}

func (p *parser) parseSubscript() Expr {
	start := p.peek()
	var lower Expr
	if !p.isOp(":") {
		lower = p.parseTest()
		if !p.isOp(":") {
			return lower
		}
	}
	p.expectOp(":")
	slice := &Slice{Lower: lower}
	if !p.isOp(":") && !p.isOp("]") && !p.isOp(",") {
		slice.Upper = p.parseTest()
	}
	if p.acceptOp(":") {
		if !p.isOp("]") && !p.isOp(",") {
			slice.Step = p.parseTest()
		}
	}
	slice.Span = p.spanFrom(start)
	return slice
}

func (p *parser) parseComprehensions() []*Comprehension {
	var generators []*Comprehension
	for p.startsComprehension() {
		start := p.peek()
		clause := &Comprehension{Async: p.acceptKeyword("async")}
		p.expectKeyword("for")
		clause.Target = p.parseTargetList()
		p.checkTarget(clause.Target, "assign to")
		p.expectKeyword("in")
		clause.Iter = p.parseOrTest()
		for p.acceptKeyword("if") {
			clause.Ifs = append(clause.Ifs, p.parseOrTest())
		}
		clause.Span = p.spanFrom(start)
		generators = append(generators, clause)
	}
	return generators
}

func (p *parser) startsComprehension() bool {
	return p.isKeyword("for") || p.isKeyword("async") && p.peekAt(1).Type == tokenName && p.peekAt(1).Text == "for"
}

func (p *parser) parseAtom() Expr {
	start := p.peek()
	switch start.Type {
	case tokenNumber:
		p.next()
		constant, err := parseNumber(start.Text)
		if err != nil {
			p.fail(start, "%v", err)
		}
		constant.Span = p.spanFrom(start)
		return constant
	case tokenString:
		return p.parseStrings()
	case tokenName:
		switch start.Text {
		case "None":
			p.next()
			return &Constant{Type: ConstNone, Span: p.spanFrom(start)}
		case "True":
			p.next()
			return &Constant{Type: ConstTrue, Span: p.spanFrom(start)}
		case "False":
			p.next()
			return &Constant{Type: ConstFalse, Span: p.spanFrom(start)}
		}
		if keywords[start.Text] {
			p.fail(start, "invalid syntax at %q", start.Text)
		}
		p.next()
		return &Name{ID: start.Text, Span: p.spanFrom(start)}
	case tokenOp:
		switch start.Text {
		case "...":
			p.next()
			return &Constant{Type: ConstEllipsis, Span: p.spanFrom(start)}
		case "(":
			return p.parseParenthesised()
		case "[":
			return p.parseListDisplay()
		case "{":
			return p.parseBraceDisplay()
		}
	}
	p.fail(start, "invalid syntax at %s", start)
	return nil
}

func (p *parser) parseParenthesised() Expr {
	p.enter()
	defer p.leave()
	start := p.expectOp("(")
	if p.acceptOp(")") {
		return &Tuple{Span: p.spanFrom(start)}
	}
	if p.isKeyword("yield") {
		value := p.parseYield()
		p.expectOp(")")
		return value
	}
	first := p.parseTestOrStar()
	if p.startsComprehension() {
		generators := p.parseComprehensions()
		p.expectOp(")")
		return &GeneratorExp{Elt: first, Generators: generators, Span: p.spanFrom(start)}
	}
	if p.acceptOp(")") {
		if _, starred := first.(*Starred); starred {
			p.fail(start, "cannot use starred expression here")
		}
		return first
	}
	elements := []Expr{first}
	for p.acceptOp(",") {
		if p.isOp(")") {
			break
		}
		elements = append(elements, p.parseTestOrStar())
	}
	p.expectOp(")")
	return &Tuple{Elts: elements, Span: p.spanFrom(start)}
}

func (p *parser) parseListDisplay() Expr {
	p.enter()
	defer p.leave()
	start := p.expectOp("[")
	if p.acceptOp("]") {
		return &List{Span: p.spanFrom(start)}
	}
	first := p.parseTestOrStar()
	if p.startsComprehension() {
		generators := p.parseComprehensions()
		p.expectOp("]")
		return &ListComp{Elt: first, Generators: generators, Span: p.spanFrom(start)}
	}
	elements := []Expr{first}
	for p.acceptOp(",") {
		if p.isOp("]") {
			break
		}
		elements = append(elements, p.parseTestOrStar())
	}
	p.expectOp("]")
	return &List{Elts: elements, Span: p.spanFrom(start)}
}

func (p *parser) parseBraceDisplay() Expr {
	p.enter()
	defer p.leave()
	start := p.expectOp("{")
	if p.acceptOp("}") {
		return &Dict{Span: p.spanFrom(start)}
	}

	var key Expr
	if !p.acceptOp("**") {
		key = p.parseTestOrStar()
		if !p.isOp(":") {
			return p.parseSetRest(start, key)
		}
		p.expectOp(":")
	}
	value := p.parseTestOrBitwise(key == nil)
	if key != nil && p.startsComprehension() {
		generators := p.parseComprehensions()
		p.expectOp("}")
		return &DictComp{Key: key, Value: value, Generators: generators, Span: p.spanFrom(start)}
	}
	dict := &Dict{Keys: []Expr{key}, Values: []Expr{value}}
	for p.acceptOp(",") {
		if p.isOp("}") {
			break
		}
		if p.acceptOp("**") {
			dict.Keys = append(dict.Keys, nil)
			dict.Values = append(dict.Values, p.parseExpr())
			continue
		}
		entryKey := p.parseTest()
		p.expectOp(":")
		dict.Keys = append(dict.Keys, entryKey)
		dict.Values = append(dict.Values, p.parseTest())
	}
	p.expectOp("}")
	dict.Span = p.spanFrom(start)
	return dict
}

// parseTestOrBitwise parses a dict value: a full test after "key:", a
// bitwise expression after "**".
func (p *parser) parseTestOrBitwise(unpack bool) Expr {
	if unpack {
		return p.parseExpr()
	}
	return p.parseTest()
}

func (p *parser) parseSetRest(start token, first Expr) Expr {
	if p.startsComprehension() {
		generators := p.parseComprehensions()
		p.expectOp("}")
		return &SetComp{Elt: first, Generators: generators, Span: p.spanFrom(start)}
	}
	elements := []Expr{first}
	for p.acceptOp(",") {
		if p.isOp("}") {
			break
		}
		elements = append(elements, p.parseTestOrStar())
	}
	p.expectOp("}")
	return &Set{Elts: elements, Span: p.spanFrom(start)}
}

// parseStrings joins implicitly concatenated string literals.
func (p *parser) parseStrings() Expr {
	start := p.peek()
	var pieces []string
	var raw []string
	formatted, sawBytes, sawText := false, false, false
	var builder strings.Builder
	for p.peek().Type == tokenString {
		current := p.next()
		raw = append(raw, current.Text)
		literal, err := decodeStringLiteral(current.Text)
		if err != nil {
			p.fail(current, "%v", err)
		}
		switch literal.kind {
		case literalFormatted:
			formatted, sawText = true, true
		case literalBytes:
			sawBytes = true
		default:
			sawText = true
		}
		if sawBytes && sawText {
			p.fail(current, "cannot mix bytes and nonbytes literals")
		}
		pieces = append(pieces, literal.value)
	}
	if formatted {
		return &FormattedString{Raw: strings.Join(raw, " "), Span: p.spanFrom(start)}
	}
	for _, piece := range pieces {
		builder.WriteString(piece)
	}
	kind := ConstString
	if sawBytes {
		kind = ConstBytes
	}
	return &Constant{Type: kind, Value: builder.String(), Span: p.spanFrom(start)}
}
