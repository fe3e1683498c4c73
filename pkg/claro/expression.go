package claro

import (
	"math"
	"strconv"
	"strings"
)

// exprParser evaluates a token stream directly to a Value using
// precedence climbing. Precedence, lowest to highest:
// or, and, not, comparison, additive, multiplicative, unary minus,
// indexing, primary.
type exprParser struct {
	tokens []exprToken
	pos    int
	env    map[string]Value

	// skip > 0 while parsing an operand whose value is already decided
	// by a short-circuited and/or. Tokens are still consumed and syntax
	// errors still surface, but nothing is evaluated, so a guarded
	// expression like x != 0 and 10 / x > 1 never divides by zero.
	skip int
}

// evalExpression evaluates a Claro expression against an environment.
func evalExpression(expr string, env map[string]Value) (Value, error) {
	tokens, err := newExprLexer(expr).tokenize()
	if err != nil {
		return Value{}, err
	}
	p := &exprParser{tokens: tokens, env: env}
	v, err := p.parseOr()
	if err != nil {
		return Value{}, err
	}
	if p.current().typ != tokEOF {
		return Value{}, evalError(CodeUnexpectedToken, "trailing input %q", p.current().text)
	}
	return v, nil
}

// eval evaluates an expression, stamping statement context onto any
// evaluation error. Assumes lock is held.
func (b *Interp) eval(expr string, env map[string]Value, ln int) (Value, error) {
	v, err := evalExpression(expr, env)
	if err != nil {
		ce := WrapError(err, "", b.directMode, ln)
		if ce.LineNumber == 0 {
			ce.LineNumber = ln
		}
		ce.DirectMode = b.directMode
		return Value{}, ce
	}
	return v, nil
}

func evalError(code string, format string, args ...interface{}) *ClaroError {
	return NewClaroError(ErrCategoryEvaluation, code, false, 0).WithDetail(format, args...)
}

func (p *exprParser) current() exprToken {
	if p.pos >= len(p.tokens) {
		return exprToken{typ: tokEOF}
	}
	return p.tokens[p.pos]
}

func (p *exprParser) advance() exprToken {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// acceptWord consumes the next token if it is the given keyword.
func (p *exprParser) acceptWord(word string) bool {
	tok := p.current()
	if tok.typ == tokIdent && strings.EqualFold(tok.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) parseOr() (Value, error) {
	left, err := p.parseAnd()
	if err != nil {
		return Value{}, err
	}
	for p.acceptWord("or") {
		if p.skip == 0 && isTruthy(left) {
			// Decided: parse the right side without evaluating it.
			p.skip++
			_, err := p.parseAnd()
			p.skip--
			if err != nil {
				return Value{}, err
			}
			continue
		}
		right, err := p.parseAnd()
		if err != nil {
			return Value{}, err
		}
		left = right
	}
	return left, nil
}

func (p *exprParser) parseAnd() (Value, error) {
	left, err := p.parseNot()
	if err != nil {
		return Value{}, err
	}
	for p.acceptWord("and") {
		if p.skip == 0 && !isTruthy(left) {
			p.skip++
			_, err := p.parseNot()
			p.skip--
			if err != nil {
				return Value{}, err
			}
			continue
		}
		right, err := p.parseNot()
		if err != nil {
			return Value{}, err
		}
		left = right
	}
	return left, nil
}

func (p *exprParser) parseNot() (Value, error) {
	if p.acceptWord("not") {
		v, err := p.parseNot()
		if err != nil {
			return Value{}, err
		}
		return BoolValue(!isTruthy(v)), nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (Value, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return Value{}, err
	}
	tok := p.current()
	if tok.typ != tokOp {
		return left, nil
	}
	switch tok.text {
	case "==", "!=", "<", "<=", ">", ">=":
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return Value{}, err
		}
		if p.skip > 0 {
			return Value{}, nil
		}
		return compareValues(tok.text, left, right)
	}
	return left, nil
}

func (p *exprParser) parseAdditive() (Value, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return Value{}, err
	}
	for {
		tok := p.current()
		if tok.typ != tokOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return Value{}, err
		}
		if p.skip > 0 {
			continue
		}
		if tok.text == "+" {
			left, err = addValues(left, right)
		} else {
			left, err = arithValues("-", left, right)
		}
		if err != nil {
			return Value{}, err
		}
	}
}

func (p *exprParser) parseMultiplicative() (Value, error) {
	left, err := p.parseUnary()
	if err != nil {
		return Value{}, err
	}
	for {
		tok := p.current()
		if tok.typ != tokOp || (tok.text != "*" && tok.text != "/" && tok.text != "%") {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return Value{}, err
		}
		if p.skip > 0 {
			continue
		}
		left, err = arithValues(tok.text, left, right)
		if err != nil {
			return Value{}, err
		}
	}
}

func (p *exprParser) parseUnary() (Value, error) {
	tok := p.current()
	if tok.typ == tokOp && tok.text == "-" {
		p.advance()
		v, err := p.parseUnary()
		if err != nil {
			return Value{}, err
		}
		if p.skip > 0 {
			return Value{}, nil
		}
		switch v.Kind {
		case KindInt:
			return IntValue(-v.Int), nil
		case KindFloat:
			return FloatValue(-v.Num), nil
		case KindBool:
			if v.Bool {
				return IntValue(-1), nil
			}
			return IntValue(0), nil
		}
		return Value{}, evalError(CodeTypeMismatch, "cannot negate %s", v.Kind)
	}
	return p.parsePostfix()
}

// parsePostfix handles index chains like x[0]["key"].
func (p *exprParser) parsePostfix() (Value, error) {
	v, err := p.parsePrimary()
	if err != nil {
		return Value{}, err
	}
	for p.current().typ == tokLBracket {
		p.advance()
		idx, err := p.parseOr()
		if err != nil {
			return Value{}, err
		}
		if p.current().typ != tokRBracket {
			return Value{}, evalError(CodeUnexpectedToken, "expected ] after index")
		}
		p.advance()
		if p.skip > 0 {
			continue
		}
		v, err = indexValue(v, idx)
		if err != nil {
			return Value{}, err
		}
	}
	return v, nil
}

func (p *exprParser) parsePrimary() (Value, error) {
	tok := p.current()
	switch tok.typ {
	case tokInt:
		p.advance()
		return IntValue(tok.intVal), nil
	case tokFloat:
		p.advance()
		return FloatValue(tok.numVal), nil
	case tokString:
		p.advance()
		return StrValue(tok.strVal), nil
	case tokLParen:
		p.advance()
		v, err := p.parseOr()
		if err != nil {
			return Value{}, err
		}
		if p.current().typ != tokRParen {
			return Value{}, evalError(CodeUnexpectedToken, "expected )")
		}
		p.advance()
		return v, nil
	case tokLBracket:
		return p.parseListLiteral()
	case tokLBrace:
		return p.parseMapLiteral()
	case tokIdent:
		return p.parseIdent()
	case tokEOF:
		return Value{}, evalError(CodeExpressionError, "unexpected end of expression")
	}
	return Value{}, evalError(CodeUnexpectedToken, "unexpected token %q", tok.text)
}

func (p *exprParser) parseListLiteral() (Value, error) {
	p.advance() // consume [
	var items []Value
	if p.current().typ == tokRBracket {
		p.advance()
		return ListValue(items), nil
	}
	for {
		v, err := p.parseOr()
		if err != nil {
			return Value{}, err
		}
		items = append(items, v)
		switch p.current().typ {
		case tokComma:
			p.advance()
		case tokRBracket:
			p.advance()
			return ListValue(items), nil
		default:
			return Value{}, evalError(CodeUnexpectedToken, "expected , or ] in list literal")
		}
	}
}

func (p *exprParser) parseMapLiteral() (Value, error) {
	p.advance() // consume {
	items := make(map[string]Value)
	if p.current().typ == tokRBrace {
		p.advance()
		return MapValue(items), nil
	}
	for {
		key := p.current()
		if key.typ != tokString {
			return Value{}, evalError(CodeUnexpectedToken, "map keys must be string literals")
		}
		p.advance()
		if p.current().typ != tokColon {
			return Value{}, evalError(CodeUnexpectedToken, "expected : after map key")
		}
		p.advance()
		v, err := p.parseOr()
		if err != nil {
			return Value{}, err
		}
		items[key.strVal] = v
		switch p.current().typ {
		case tokComma:
			p.advance()
		case tokRBrace:
			p.advance()
			return MapValue(items), nil
		default:
			return Value{}, evalError(CodeUnexpectedToken, "expected , or } in map literal")
		}
	}
}

// parseIdent resolves keywords, builtin calls, and variables.
func (p *exprParser) parseIdent() (Value, error) {
	tok := p.advance()
	name := tok.text
	upper := strings.ToUpper(name)
	switch upper {
	case "TRUE":
		return BoolValue(true), nil
	case "FALSE":
		return BoolValue(false), nil
	}
	if p.current().typ == tokLParen {
		isBuiltin := upper == "LEN" || upper == "STR" || upper == "INT" || upper == "FLOAT"
		if !isBuiltin && p.skip == 0 {
			return Value{}, evalError(CodeExpressionError, "unknown function %q", name)
		}
		p.advance()
		arg, err := p.parseOr()
		if err != nil {
			return Value{}, err
		}
		if p.current().typ != tokRParen {
			return Value{}, evalError(CodeUnexpectedToken, "expected ) after %s argument", upper)
		}
		p.advance()
		if p.skip > 0 {
			return Value{}, nil
		}
		return callBuiltin(upper, arg)
	}
	if p.skip > 0 {
		return Value{}, nil
	}
	if v, ok := p.env[name]; ok {
		return v, nil
	}
	return Value{}, evalError(CodeUnknownVariable, "variable %q is not defined", name)
}

// callBuiltin dispatches the builtin conversion and inspection
// functions.
func callBuiltin(name string, arg Value) (Value, error) {
	switch name {
	case "LEN":
		switch arg.Kind {
		case KindStr:
			return IntValue(int64(len([]rune(arg.Str)))), nil
		case KindList:
			return IntValue(int64(len(arg.List))), nil
		case KindMap:
			return IntValue(int64(len(arg.Map))), nil
		}
		return Value{}, evalError(CodeTypeMismatch, "len() needs a string, list or map, got %s", arg.Kind)
	case "STR":
		return StrValue(arg.String()), nil
	case "INT":
		switch arg.Kind {
		case KindInt:
			return arg, nil
		case KindFloat:
			return IntValue(int64(arg.Num)), nil
		case KindBool:
			if arg.Bool {
				return IntValue(1), nil
			}
			return IntValue(0), nil
		case KindStr:
			n, err := strconv.ParseInt(strings.TrimSpace(arg.Str), 10, 64)
			if err != nil {
				f, ferr := strconv.ParseFloat(strings.TrimSpace(arg.Str), 64)
				if ferr != nil {
					return Value{}, evalError(CodeTypeMismatch, "cannot convert %q to int", arg.Str)
				}
				return IntValue(int64(f)), nil
			}
			return IntValue(n), nil
		}
		return Value{}, evalError(CodeTypeMismatch, "cannot convert %s to int", arg.Kind)
	case "FLOAT":
		switch arg.Kind {
		case KindInt:
			return FloatValue(float64(arg.Int)), nil
		case KindFloat:
			return arg, nil
		case KindBool:
			if arg.Bool {
				return FloatValue(1), nil
			}
			return FloatValue(0), nil
		case KindStr:
			f, err := strconv.ParseFloat(strings.TrimSpace(arg.Str), 64)
			if err != nil {
				return Value{}, evalError(CodeTypeMismatch, "cannot convert %q to float", arg.Str)
			}
			return FloatValue(f), nil
		}
		return Value{}, evalError(CodeTypeMismatch, "cannot convert %s to float", arg.Kind)
	}
	return Value{}, evalError(CodeExpressionError, "unknown function %q", name)
}

// numericOf widens a value to float64 for mixed arithmetic. Bools
// count as 0 and 1.
func numericOf(v Value) (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Num, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func intOf(v Value) (int64, bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// addValues implements +, which also concatenates strings and lists.
func addValues(a, b Value) (Value, error) {
	if a.Kind == KindStr && b.Kind == KindStr {
		return StrValue(a.Str + b.Str), nil
	}
	if a.Kind == KindList && b.Kind == KindList {
		out := make([]Value, 0, len(a.List)+len(b.List))
		out = append(out, a.List...)
		out = append(out, b.List...)
		return ListValue(out), nil
	}
	return arithValues("+", a, b)
}

// arithValues implements the numeric operators. Integer operands stay
// integers except for /, which always produces a float.
func arithValues(op string, a, b Value) (Value, error) {
	if ai, ok := intOf(a); ok {
		if bi, ok := intOf(b); ok {
			switch op {
			case "+":
				return IntValue(ai + bi), nil
			case "-":
				return IntValue(ai - bi), nil
			case "*":
				return IntValue(ai * bi), nil
			case "/":
				if bi == 0 {
					return Value{}, evalError(CodeDivisionByZero, "division by zero")
				}
				return FloatValue(float64(ai) / float64(bi)), nil
			case "%":
				if bi == 0 {
					return Value{}, evalError(CodeDivisionByZero, "modulo by zero")
				}
				return IntValue(ai % bi), nil
			}
		}
	}
	af, aok := numericOf(a)
	bf, bok := numericOf(b)
	if !aok || !bok {
		return Value{}, evalError(CodeTypeMismatch, "cannot apply %s to %s and %s", op, a.Kind, b.Kind)
	}
	switch op {
	case "+":
		return FloatValue(af + bf), nil
	case "-":
		return FloatValue(af - bf), nil
	case "*":
		return FloatValue(af * bf), nil
	case "/":
		if bf == 0 {
			return Value{}, evalError(CodeDivisionByZero, "division by zero")
		}
		return FloatValue(af / bf), nil
	case "%":
		if bf == 0 {
			return Value{}, evalError(CodeDivisionByZero, "modulo by zero")
		}
		return FloatValue(math.Mod(af, bf)), nil
	}
	return Value{}, evalError(CodeExpressionError, "unknown operator %q", op)
}

// compareValues implements the relational operators.
func compareValues(op string, a, b Value) (Value, error) {
	switch op {
	case "==":
		return BoolValue(valuesEqual(a, b)), nil
	case "!=":
		return BoolValue(!valuesEqual(a, b)), nil
	}
	if a.Kind == KindStr && b.Kind == KindStr {
		cmp := strings.Compare(a.Str, b.Str)
		return orderResult(op, cmp), nil
	}
	af, aok := numericOf(a)
	bf, bok := numericOf(b)
	if !aok || !bok {
		return Value{}, evalError(CodeTypeMismatch, "cannot compare %s and %s with %s", a.Kind, b.Kind, op)
	}
	var cmp int
	switch {
	case af < bf:
		cmp = -1
	case af > bf:
		cmp = 1
	}
	return orderResult(op, cmp), nil
}

func orderResult(op string, cmp int) Value {
	switch op {
	case "<":
		return BoolValue(cmp < 0)
	case "<=":
		return BoolValue(cmp <= 0)
	case ">":
		return BoolValue(cmp > 0)
	case ">=":
		return BoolValue(cmp >= 0)
	}
	return BoolValue(false)
}

// indexValue implements subscripting on lists, strings and maps.
// Negative indexes count from the end.
func indexValue(container, index Value) (Value, error) {
	switch container.Kind {
	case KindList:
		i, ok := intOf(index)
		if !ok {
			return Value{}, evalError(CodeTypeMismatch, "list index must be an integer, got %s", index.Kind)
		}
		n := int64(len(container.List))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return Value{}, evalError(CodeIndexOutOfRange, "index %d out of range for list of length %d", index.Int, n)
		}
		return container.List[i], nil
	case KindStr:
		i, ok := intOf(index)
		if !ok {
			return Value{}, evalError(CodeTypeMismatch, "string index must be an integer, got %s", index.Kind)
		}
		runes := []rune(container.Str)
		n := int64(len(runes))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return Value{}, evalError(CodeIndexOutOfRange, "index %d out of range for string of length %d", index.Int, n)
		}
		return StrValue(string(runes[i])), nil
	case KindMap:
		if index.Kind != KindStr {
			return Value{}, evalError(CodeTypeMismatch, "map key must be a string, got %s", index.Kind)
		}
		v, ok := container.Map[index.Str]
		if !ok {
			return Value{}, evalError(CodeIndexOutOfRange, "key %q not present", index.Str)
		}
		return v, nil
	}
	return Value{}, evalError(CodeTypeMismatch, "cannot index %s", container.Kind)
}
