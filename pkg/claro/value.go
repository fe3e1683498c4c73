// Package claro implements the Claro line-oriented scripting language.
package claro

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind discriminates the dynamic value union.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindStr
	KindBool
	KindList
	KindMap
)

var kindNames = map[ValueKind]string{
	KindInt:   "int",
	KindFloat: "float",
	KindStr:   "string",
	KindBool:  "bool",
	KindList:  "list",
	KindMap:   "map",
}

// String returns the human-readable type name.
func (k ValueKind) String() string {
	return kindNames[k]
}

// Value represents a dynamic Claro value. Exactly one of the payload
// fields is meaningful, selected by Kind.
type Value struct {
	Kind ValueKind
	Int  int64
	Num  float64
	Str  string
	Bool bool
	List []Value
	Map  map[string]Value
}

func IntValue(n int64) Value        { return Value{Kind: KindInt, Int: n} }
func FloatValue(f float64) Value    { return Value{Kind: KindFloat, Num: f} }
func StrValue(s string) Value       { return Value{Kind: KindStr, Str: s} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func ListValue(vs []Value) Value    { return Value{Kind: KindList, List: vs} }
func MapValue(m map[string]Value) Value {
	if m == nil {
		m = make(map[string]Value)
	}
	return Value{Kind: KindMap, Map: m}
}

// KindName returns the human-readable type name used in error messages.
func (v Value) KindName() string {
	return kindNames[v.Kind]
}

// String renders the display form used by PRINT and STRING coercion.
func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindStr:
		return v.Str
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.List {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.quoted())
		}
		sb.WriteByte(']')
		return sb.String()
	case KindMap:
		// Keys are sorted so the display form is deterministic.
		keys := make([]string, 0, len(v.Map))
		for k := range v.Map {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%q: %s", k, v.Map[k].quoted())
		}
		sb.WriteByte('}')
		return sb.String()
	}
	return ""
}

// quoted is the display form inside containers, where strings keep quotes.
func (v Value) quoted() string {
	if v.Kind == KindStr {
		return strconv.Quote(v.Str)
	}
	return v.String()
}

// isTruthy returns true if the value is considered logically true.
// Zero numbers, empty strings, and empty containers are falsy.
func isTruthy(v Value) bool {
	switch v.Kind {
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Num != 0
	case KindStr:
		return v.Str != ""
	case KindBool:
		return v.Bool
	case KindList:
		return len(v.List) > 0
	case KindMap:
		return len(v.Map) > 0
	}
	return false
}

// isNumeric reports whether the value participates in arithmetic.
func (v Value) isNumeric() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

// asFloat returns the numeric payload widened to float64.
func (v Value) asFloat() float64 {
	if v.Kind == KindInt {
		return float64(v.Int)
	}
	return v.Num
}

// valuesEqual implements the == operator across the union. Int and
// float compare numerically; mismatched kinds are unequal.
func valuesEqual(a, b Value) bool {
	if a.isNumeric() && b.isNumeric() {
		return a.asFloat() == b.asFloat()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindStr:
		return a.Str == b.Str
	case KindBool:
		return a.Bool == b.Bool
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !valuesEqual(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !valuesEqual(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// copyEnv clones a variable environment for copy-in/merge-out call
// scoping. Container payloads are shared, matching the reference
// semantics of the original runtime.
func copyEnv(env map[string]Value) map[string]Value {
	out := make(map[string]Value, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}
