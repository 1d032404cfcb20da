// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package syntax

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// Dump renders a tree as a single line such as
//
//	Module(body=[Expr(value=Name(id="x"))])
//
// Spans are omitted and so are empty fields, so trees that differ only
// in source positions dump identically.
func Dump(node Node) string {
	var out strings.Builder
	dumpValue(&out, reflect.ValueOf(node))
	return out.String()
}

// Equal reports whether two trees have the same structure and values,
// ignoring source positions.
func Equal(a, b Node) bool {
	return Dump(a) == Dump(b)
}

var (
	nodeType     = reflect.TypeOf((*Node)(nil)).Elem()
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	spanType     = reflect.TypeOf(Span{})
)

func dumpValue(out *strings.Builder, value reflect.Value) {
	if (value.Kind() == reflect.Interface || value.Kind() == reflect.Pointer) && value.IsNil() || !value.IsValid() {
		out.WriteString("None")
		return
	}
	if value.Kind() == reflect.Interface {
		value = value.Elem()
	}
	if value.Type().Implements(nodeType) && value.Kind() == reflect.Pointer {
		dumpNode(out, value)
		return
	}
	if value.Type().Implements(stringerType) {
		out.WriteString(value.Interface().(fmt.Stringer).String())
		return
	}
	switch value.Kind() {
	case reflect.Slice:
		out.WriteByte('[')
		for index := 0; index < value.Len(); index++ {
			if index > 0 {
				out.WriteString(", ")
			}
			dumpValue(out, value.Index(index))
		}
		out.WriteByte(']')
	case reflect.String:
		out.WriteString(strconv.Quote(value.String()))
	case reflect.Bool:
		if value.Bool() {
			out.WriteString("True")
		} else {
			out.WriteString("False")
		}
	case reflect.Int:
		out.WriteString(strconv.FormatInt(value.Int(), 10))
	default:
		fmt.Fprintf(out, "%v", value.Interface())
	}
}

func dumpNode(out *strings.Builder, value reflect.Value) {
	node := value.Interface().(Node)
	out.WriteString(node.Kind())
	out.WriteByte('(')
	structValue := value.Elem()
	structType := structValue.Type()
	first := true
	for index := 0; index < structType.NumField(); index++ {
		field := structType.Field(index)
		if field.Type == spanType {
			continue
		}
		fieldValue := structValue.Field(index)
		if fieldValue.IsZero() && !field.Type.Implements(stringerType) {
			continue
		}
		if fieldValue.Kind() == reflect.Slice && fieldValue.Len() == 0 {
			continue
		}
		// Async is already part of the kind name.
		if field.Name == "Async" && strings.HasPrefix(node.Kind(), "Async") {
			continue
		}
		if !first {
			out.WriteString(", ")
		}
		first = false
		out.WriteString(snakeCase(field.Name))
		out.WriteByte('=')
		dumpValue(out, fieldValue)
	}
	out.WriteByte(')')
}

// snakeCase converts a Go field name to the dump's field spelling:
// "KwDefaults" becomes "kw_defaults" and "ID" becomes "id".
func snakeCase(name string) string {
	var out strings.Builder
	runes := []rune(name)
	for index, r := range runes {
		if unicode.IsUpper(r) && index > 0 && unicode.IsLower(runes[index-1]) {
			out.WriteByte('_')
		}
		out.WriteRune(unicode.ToLower(r))
	}
	return out.String()
}
