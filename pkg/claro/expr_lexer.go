package claro

import (
	"strconv"
	"strings"
	"unicode"
)

// Token types for expression parsing.
type exprTokenType int

const (
	tokEOF exprTokenType = iota
	tokInt
	tokFloat
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokComma
	tokColon
)

// exprToken is one lexical token of an expression.
type exprToken struct {
	typ    exprTokenType
	text   string
	intVal int64
	numVal float64
	strVal string
}

// exprLexer tokenizes Claro expressions.
type exprLexer struct {
	input string
	pos   int
	char  byte
}

func newExprLexer(input string) *exprLexer {
	l := &exprLexer{input: input}
	l.readChar()
	return l
}

func (l *exprLexer) readChar() {
	if l.pos >= len(l.input) {
		l.char = 0
	} else {
		l.char = l.input[l.pos]
	}
	l.pos++
}

func (l *exprLexer) peekChar() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *exprLexer) skipWhitespace() {
	for l.char == ' ' || l.char == '\t' {
		l.readChar()
	}
}

// readString reads a double-quoted string literal with backslash
// escapes, returning the decoded value.
func (l *exprLexer) readString() (string, error) {
	var sb strings.Builder
	l.readChar() // skip opening quote
	for l.char != '"' {
		if l.char == 0 {
			return "", NewClaroError(ErrCategoryEvaluation, CodeUnexpectedToken, false, 0).
				WithDetail("unterminated string literal")
		}
		if l.char == '\\' {
			l.readChar()
			switch l.char {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"':
				sb.WriteByte('"')
			case '\\':
				sb.WriteByte('\\')
			default:
				sb.WriteByte(l.char)
			}
		} else {
			sb.WriteByte(l.char)
		}
		l.readChar()
	}
	l.readChar() // skip closing quote
	return sb.String(), nil
}

// readNumber reads an integer or floating-point literal.
func (l *exprLexer) readNumber() exprToken {
	start := l.pos - 1
	for unicode.IsDigit(rune(l.char)) {
		l.readChar()
	}
	isFloat := false
	if l.char == '.' && unicode.IsDigit(rune(l.peekChar())) {
		isFloat = true
		l.readChar()
		for unicode.IsDigit(rune(l.char)) {
			l.readChar()
		}
	}
	text := l.input[start : l.pos-1]
	if isFloat {
		f, _ := strconv.ParseFloat(text, 64)
		return exprToken{typ: tokFloat, text: text, numVal: f}
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		// Out-of-range integer literals widen to float.
		f, _ := strconv.ParseFloat(text, 64)
		return exprToken{typ: tokFloat, text: text, numVal: f}
	}
	return exprToken{typ: tokInt, text: text, intVal: n}
}

// readIdent reads an identifier or word operator.
func (l *exprLexer) readIdent() string {
	start := l.pos - 1
	for l.char == '_' || unicode.IsLetter(rune(l.char)) || unicode.IsDigit(rune(l.char)) {
		l.readChar()
	}
	return l.input[start : l.pos-1]
}

// tokenize splits the whole input into tokens.
func (l *exprLexer) tokenize() ([]exprToken, error) {
	var tokens []exprToken
	for {
		l.skipWhitespace()
		if l.char == 0 {
			tokens = append(tokens, exprToken{typ: tokEOF})
			return tokens, nil
		}
		switch {
		case unicode.IsDigit(rune(l.char)):
			tokens = append(tokens, l.readNumber())
		case l.char == '"':
			s, err := l.readString()
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, exprToken{typ: tokString, strVal: s})
		case l.char == '_' || unicode.IsLetter(rune(l.char)):
			tokens = append(tokens, exprToken{typ: tokIdent, text: l.readIdent()})
		case l.char == '(':
			tokens = append(tokens, exprToken{typ: tokLParen, text: "("})
			l.readChar()
		case l.char == ')':
			tokens = append(tokens, exprToken{typ: tokRParen, text: ")"})
			l.readChar()
		case l.char == '[':
			tokens = append(tokens, exprToken{typ: tokLBracket, text: "["})
			l.readChar()
		case l.char == ']':
			tokens = append(tokens, exprToken{typ: tokRBracket, text: "]"})
			l.readChar()
		case l.char == '{':
			tokens = append(tokens, exprToken{typ: tokLBrace, text: "{"})
			l.readChar()
		case l.char == '}':
			tokens = append(tokens, exprToken{typ: tokRBrace, text: "}"})
			l.readChar()
		case l.char == ',':
			tokens = append(tokens, exprToken{typ: tokComma, text: ","})
			l.readChar()
		case l.char == ':':
			tokens = append(tokens, exprToken{typ: tokColon, text: ":"})
			l.readChar()
		case l.char == '=' && l.peekChar() == '=':
			tokens = append(tokens, exprToken{typ: tokOp, text: "=="})
			l.readChar()
			l.readChar()
		case l.char == '!' && l.peekChar() == '=':
			tokens = append(tokens, exprToken{typ: tokOp, text: "!="})
			l.readChar()
			l.readChar()
		case l.char == '<' || l.char == '>':
			op := string(l.char)
			l.readChar()
			if l.char == '=' {
				op += "="
				l.readChar()
			}
			tokens = append(tokens, exprToken{typ: tokOp, text: op})
		case l.char == '+' || l.char == '-' || l.char == '*' || l.char == '/' || l.char == '%':
			tokens = append(tokens, exprToken{typ: tokOp, text: string(l.char)})
			l.readChar()
		default:
			return nil, NewClaroError(ErrCategoryEvaluation, CodeUnexpectedToken, false, 0).
				WithDetail("unexpected character %q", string(l.char))
		}
	}
}
