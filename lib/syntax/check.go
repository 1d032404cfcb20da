// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syntax

import (
	"errors"
	"fmt"
)

// ShapeError reports a node whose fields are inconsistent, such as a
// comparison with more operators than operands. The parser never
// produces such nodes; trees rebuilt from untrusted input can.
type ShapeError struct {
	Kind    string
	Message string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("malformed %s node: %s", e.Kind, e.Message)
}

var (
	booleanOperators = map[string]bool{"And": true, "Or": true}
	unaryOperatorSet = map[string]bool{"Not": true, "Invert": true, "UAdd": true, "USub": true}
)

// CheckShape validates a single node's own fields without descending
// into its children.
func CheckShape(node Node) error {
	fail := func(format string, args ...any) error {
		return &ShapeError{Kind: node.Kind(), Message: fmt.Sprintf(format, args...)}
	}
	requireBody := func(body []Stmt) error {
		if len(body) == 0 {
			return fail("empty body")
		}
		return nil
	}
	requireName := func(name string) error {
		if !IsIdentifier(name) {
			return fail("invalid identifier %q", name)
		}
		return nil
	}
	requireExprs := func(field string, values []Expr) error {
		for _, value := range values {
			if value == nil {
				return fail("missing element in %s", field)
			}
		}
		return nil
	}

	switch n := node.(type) {
	case *Module:
		return nil
	case *FunctionDef:
		if n.Args == nil {
			return fail("missing arguments")
		}
		return errors.Join(requireName(n.Name), requireBody(n.Body))
	case *ClassDef:
		return errors.Join(requireName(n.Name), requireBody(n.Body))
	case *Delete:
		if len(n.Targets) == 0 {
			return fail("no targets")
		}
		return requireExprs("targets", n.Targets)
	case *Assign:
		if len(n.Targets) == 0 {
			return fail("no targets")
		}
		return requireExprs("targets", n.Targets)
	case *AugAssign:
		if _, ok := binaryOperatorText[n.Op]; !ok {
			return fail("unknown operator %q", n.Op)
		}
	case *For:
		return requireBody(n.Body)
	case *While:
		return requireBody(n.Body)
	case *If:
		return requireBody(n.Body)
	case *With:
		if len(n.Items) == 0 {
			return fail("no items")
		}
		return requireBody(n.Body)
	case *Raise:
		if n.Exc == nil && n.Cause != nil {
			return fail("cause without exception")
		}
	case *Try:
		if len(n.Handlers) == 0 && len(n.Finalbody) == 0 {
			return fail("neither handlers nor finally block")
		}
		if len(n.Handlers) == 0 && len(n.Orelse) > 0 {
			return fail("else block without handlers")
		}
		return requireBody(n.Body)
	case *ExceptHandler:
		if n.Name != "" && n.Type == nil {
			return fail("name without exception type")
		}
		if n.Name != "" {
			if err := requireName(n.Name); err != nil {
				return err
			}
		}
		return requireBody(n.Body)
	case *Import:
		if len(n.Names) == 0 {
			return fail("no names")
		}
	case *ImportFrom:
		if len(n.Names) == 0 {
			return fail("no names")
		}
		if n.Module == "" && n.Level == 0 {
			return fail("no module and no relative level")
		}
		if n.Level < 0 {
			return fail("negative level %d", n.Level)
		}
	case *Global:
		return checkNames(n.Names, fail)
	case *Nonlocal:
		return checkNames(n.Names, fail)
	case *BoolOp:
		if !booleanOperators[n.Op] {
			return fail("unknown operator %q", n.Op)
		}
		if len(n.Values) < 2 {
			return fail("%d values, need at least 2", len(n.Values))
		}
		return requireExprs("values", n.Values)
	case *BinOp:
		if _, ok := binaryOperatorText[n.Op]; !ok {
			return fail("unknown operator %q", n.Op)
		}
	case *UnaryOp:
		if !unaryOperatorSet[n.Op] {
			return fail("unknown operator %q", n.Op)
		}
	case *Lambda:
		if n.Args == nil {
			return fail("missing arguments")
		}
	case *Dict:
		if len(n.Keys) != len(n.Values) {
			return fail("%d keys for %d values", len(n.Keys), len(n.Values))
		}
		return requireExprs("values", n.Values)
	case *Set:
		if len(n.Elts) == 0 {
			return fail("empty set display")
		}
	case *ListComp:
		return checkGenerators(n.Generators, fail)
	case *SetComp:
		return checkGenerators(n.Generators, fail)
	case *DictComp:
		return checkGenerators(n.Generators, fail)
	case *GeneratorExp:
		return checkGenerators(n.Generators, fail)
	case *Compare:
		if len(n.Ops) == 0 {
			return fail("no operators")
		}
		if len(n.Ops) != len(n.Comparators) {
			return fail("%d operators for %d comparators", len(n.Ops), len(n.Comparators))
		}
		for _, op := range n.Ops {
			if _, ok := compareOperatorText[op]; !ok {
				return fail("unknown operator %q", op)
			}
		}
	case *Constant:
		if n.Type > ConstEllipsis {
			return fail("unknown constant type %d", n.Type)
		}
		if n.Type.Numeric() && n.Value == "" {
			return fail("empty %s value", n.Type)
		}
	case *Attribute:
		return requireName(n.Attr)
	case *Name:
		return requireName(n.ID)
	case *Arguments:
		if len(n.KwDefaults) != len(n.KwOnly) {
			return fail("%d keyword defaults for %d keyword-only parameters", len(n.KwDefaults), len(n.KwOnly))
		}
		if len(n.Defaults) > len(n.PosOnly)+len(n.Args) {
			return fail("%d defaults for %d positional parameters", len(n.Defaults), len(n.PosOnly)+len(n.Args))
		}
		return requireExprs("defaults", n.Defaults)
	case *Arg:
		return requireName(n.Name)
	case *Keyword:
		if n.Arg != "" {
			return requireName(n.Arg)
		}
	case *Alias:
		if n.Name == "" {
			return fail("empty name")
		}
	case *WithItem, *Comprehension:
		return nil
	}
	return nil
}

func checkNames(names []string, fail func(string, ...any) error) error {
	if len(names) == 0 {
		return fail("no names")
	}
	for _, name := range names {
		if !IsIdentifier(name) {
			return fail("invalid identifier %q", name)
		}
	}
	return nil
}

func checkGenerators(generators []*Comprehension, fail func(string, ...any) error) error {
	if len(generators) == 0 {
		return fail("no generators")
	}
	return nil
}

// Check validates every node in the tree rooted at node and returns the
// first shape error found.
func Check(node Node) error {
	var first error
	Inspect(node, func(n Node) bool {
		if first != nil {
			return false
		}
		first = CheckShape(n)
		return first == nil
	})
	return first
}
