package claro

import (
	"strings"
	"testing"
)

func TestEvalArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected string
		hasError bool
	}{
		{"integer addition", "1 + 2", "3", false},
		{"integer subtraction", "10 - 4", "6", false},
		{"integer multiplication", "6 * 7", "42", false},
		{"division yields float", "10 / 4", "2.5", false},
		{"division with whole result", "10 / 2", "5", false},
		{"modulo", "10 % 3", "1", false},
		{"precedence", "2 + 3 * 4", "14", false},
		{"parentheses", "(2 + 3) * 4", "20", false},
		{"unary minus", "-5 + 3", "-2", false},
		{"nested unary", "--5", "5", false},
		{"float literal", "1.5 + 2.5", "4", false},
		{"mixed int float", "1 + 0.5", "1.5", false},
		{"division by zero", "1 / 0", "", true},
		{"modulo by zero", "1 % 0", "", true},
		{"string plus number", "\"a\" + 1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := evalExpression(tt.expr, map[string]Value{})
			if tt.hasError {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.expr, v.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.expr, err)
			}
			if v.String() != tt.expected {
				t.Errorf("%q = %q, want %q", tt.expr, v.String(), tt.expected)
			}
		})
	}
}

func TestEvalStringsAndComparison(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected string
		hasError bool
	}{
		{"string concat", `"foo" + "bar"`, "foobar", false},
		{"string equality", `"a" == "a"`, "true", false},
		{"string inequality", `"a" != "b"`, "true", false},
		{"string ordering", `"abc" < "abd"`, "true", false},
		{"numeric comparison", "3 < 5", "true", false},
		{"numeric ge", "5 >= 5", "true", false},
		{"cross kind equality", "1 == 1.0", "true", false},
		{"cross kind inequality", `1 == "1"`, "false", false},
		{"escape sequences", `"a\tb"`, "a\tb", false},
		{"string number ordering", `"a" < 1`, "", true},
		{"unterminated string", `"abc`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := evalExpression(tt.expr, map[string]Value{})
			if tt.hasError {
				if err == nil {
					t.Fatalf("expected error for %q", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.expr, err)
			}
			if v.String() != tt.expected {
				t.Errorf("%q = %q, want %q", tt.expr, v.String(), tt.expected)
			}
		})
	}
}

func TestEvalLogic(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		expected string
	}{
		{"and true", "1 and 2", "2"},
		{"and false", "0 and 2", "0"},
		{"or picks first truthy", "0 or 3", "3"},
		{"or keeps left", "1 or 3", "1"},
		{"not", "not 0", "true"},
		{"not truthy", "not 5", "false"},
		{"combined", "1 < 2 and 2 < 3", "true"},
		{"empty string falsy", `"" or "x"`, "x"},
		{"empty list falsy", "[] or 7", "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := evalExpression(tt.expr, map[string]Value{})
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.expr, err)
			}
			if v.String() != tt.expected {
				t.Errorf("%q = %q, want %q", tt.expr, v.String(), tt.expected)
			}
		})
	}
}

func TestEvalShortCircuit(t *testing.T) {
	env := map[string]Value{"x": IntValue(0)}
	tests := []struct {
		name     string
		expr     string
		expected string
		hasError bool
	}{
		{"and guards division", "x != 0 and 10 / x > 1", "false", false},
		{"or guards division", "x == 0 or 10 / x > 1", "true", false},
		{"and skips unknown variable", "0 and missing", "0", false},
		{"or skips unknown variable", "1 or missing", "1", false},
		{"and skips builtin type error", "0 and len(5)", "0", false},
		{"or skips unknown function", "1 or nope(1)", "1", false},
		{"live side still evaluates", "0 or 10 / 0", "", true},
		{"dead side still parses", "1 or (2 +", "", true},
		{"skipped index not applied", "0 and x[99]", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := evalExpression(tt.expr, env)
			if tt.hasError {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.expr, v.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.expr, err)
			}
			if v.String() != tt.expected {
				t.Errorf("%q = %q, want %q", tt.expr, v.String(), tt.expected)
			}
		})
	}
}

func TestEvalContainers(t *testing.T) {
	env := map[string]Value{
		"xs": ListValue([]Value{IntValue(10), IntValue(20), IntValue(30)}),
		"m":  MapValue(map[string]Value{"a": IntValue(1), "b": StrValue("two")}),
		"s":  StrValue("hello"),
	}

	tests := []struct {
		name     string
		expr     string
		expected string
		hasError bool
	}{
		{"list literal", "[1, 2, 3]", "[1, 2, 3]", false},
		{"list of strings", `["a", "b"]`, `["a", "b"]`, false},
		{"empty list", "[]", "[]", false},
		{"map literal", `{"k": 1}`, `{"k": 1}`, false},
		{"empty map", "{}", "{}", false},
		{"list index", "xs[1]", "20", false},
		{"negative list index", "xs[-1]", "30", false},
		{"index expression", "xs[1 + 1]", "30", false},
		{"string index", "s[1]", "e", false},
		{"map lookup", `m["b"]`, "two", false},
		{"nested index", `[[1, 2], [3, 4]][1][0]`, "3", false},
		{"list index out of range", "xs[3]", "", true},
		{"missing map key", `m["zzz"]`, "", true},
		{"map key must be string", "m[0]", "", true},
		{"list concat", "[1] + [2, 3]", "[1, 2, 3]", false},
		{"len of list", "len(xs)", "3", false},
		{"len of string", "len(s)", "5", false},
		{"len of map", "len(m)", "2", false},
		{"str builtin", "str(42)", "42", false},
		{"int builtin", `int("17")`, "17", false},
		{"int of float", "int(3.9)", "3", false},
		{"float builtin", `float("2.5")`, "2.5", false},
		{"int of garbage", `int("abc")`, "", true},
		{"unknown variable", "nope", "", true},
		{"unknown function", "frobnicate(1)", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := evalExpression(tt.expr, env)
			if tt.hasError {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.expr, v.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tt.expr, err)
			}
			if v.String() != tt.expected {
				t.Errorf("%q = %q, want %q", tt.expr, v.String(), tt.expected)
			}
		})
	}
}

func TestEvalErrorsCarryCategory(t *testing.T) {
	_, err := evalExpression("1 +", map[string]Value{})
	if err == nil {
		t.Fatal("expected error")
	}
	ce, ok := err.(*ClaroError)
	if !ok {
		t.Fatalf("expected *ClaroError, got %T", err)
	}
	if ce.Category != ErrCategoryEvaluation {
		t.Errorf("category = %q, want %q", ce.Category, ErrCategoryEvaluation)
	}
}

func TestEvalTrailingInput(t *testing.T) {
	_, err := evalExpression("1 2", map[string]Value{})
	if err == nil {
		t.Fatal("expected error for trailing token")
	}
	if !strings.Contains(err.Error(), "trailing") {
		t.Errorf("unexpected message: %v", err)
	}
}
