// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syntax

// Children returns the direct child nodes of node in field order.
// Absent optional children are skipped.
func Children(node Node) []Node {
	collector := &childCollector{}
	node.Fields(collector)
	return collector.children
}

// Inspect traverses the tree rooted at node in depth-first order,
// calling visit for each node. Children are skipped when visit returns
// false.
func Inspect(node Node, visit func(Node) bool) {
	if node == nil || !visit(node) {
		return
	}
	for _, child := range Children(node) {
		Inspect(child, visit)
	}
}

// Count returns the number of nodes in the tree rooted at node.
func Count(node Node) int {
	total := 0
	Inspect(node, func(Node) bool {
		total++
		return true
	})
	return total
}

type childCollector struct {
	children []Node
}

func (c *childCollector) add(node Node) { c.children = append(c.children, node) }

func (c *childCollector) expr(value Expr) {
	if value != nil {
		c.add(value)
	}
}

func (*childCollector) Identifier(string, *string)         {}
func (*childCollector) OptionalIdentifier(string, *string) {}
func (*childCollector) Identifiers(string, *[]string)      {}
func (*childCollector) String(string, *string)             {}
func (*childCollector) Number(string, *string)             {}
func (*childCollector) Count(string, *int)                 {}
func (*childCollector) Flag(string, *bool)                 {}
func (*childCollector) Operators(string, *[]string)        {}

func (c *childCollector) Expr(_ string, value *Expr)         { c.expr(*value) }
func (c *childCollector) OptionalExpr(_ string, value *Expr) { c.expr(*value) }

func (c *childCollector) Exprs(_ string, values *[]Expr) {
	for _, value := range *values {
		c.expr(value)
	}
}

func (c *childCollector) OptionalExprs(field string, values *[]Expr) { c.Exprs(field, values) }

func (c *childCollector) Stmts(_ string, values *[]Stmt) {
	for _, value := range *values {
		c.add(value)
	}
}

func (c *childCollector) Arguments(_ string, value **Arguments) {
	if *value != nil {
		c.add(*value)
	}
}

func (c *childCollector) Args(_ string, values *[]*Arg) {
	for _, value := range *values {
		c.add(value)
	}
}

func (c *childCollector) OptionalArg(_ string, value **Arg) {
	if *value != nil {
		c.add(*value)
	}
}

func (c *childCollector) Keywords(_ string, values *[]*Keyword) {
	for _, value := range *values {
		c.add(value)
	}
}

func (c *childCollector) Aliases(_ string, values *[]*Alias) {
	for _, value := range *values {
		c.add(value)
	}
}

func (c *childCollector) WithItems(_ string, values *[]*WithItem) {
	for _, value := range *values {
		c.add(value)
	}
}

func (c *childCollector) Handlers(_ string, values *[]*ExceptHandler) {
	for _, value := range *values {
		c.add(value)
	}
}

func (c *childCollector) Comprehensions(_ string, values *[]*Comprehension) {
	for _, value := range *values {
		c.add(value)
	}
}
