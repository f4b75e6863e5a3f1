package expr

import (
	"fmt"
	"strings"
)

type tokenType int

const (
	tokIllegal tokenType = iota
	tokEOF
	tokIdent
	tokQuotedIdent
	tokString
	tokNumber
	tokCompare
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
)

func (t tokenType) String() string {
	switch t {
	case tokEOF:
		return "end of input"
	case tokIdent, tokQuotedIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokCompare:
		return "comparison operator"
	case tokAnd, tokOr, tokNot:
		return "boolean operator"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokComma:
		return "','"
	case tokDot:
		return "'.'"
	default:
		return "illegal token"
	}
}

type token struct {
	typ     tokenType
	literal string
	pos     int
}

type lexer struct {
	input string
	pos   int
}

func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.typ == tokEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return token{typ: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]
	switch {
	case ch == '(':
		l.pos++
		return token{typ: tokLParen, literal: "(", pos: start}, nil
	case ch == ')':
		l.pos++
		return token{typ: tokRParen, literal: ")", pos: start}, nil
	case ch == '[':
		l.pos++
		return token{typ: tokLBracket, literal: "[", pos: start}, nil
	case ch == ']':
		l.pos++
		return token{typ: tokRBracket, literal: "]", pos: start}, nil
	case ch == ',':
		l.pos++
		return token{typ: tokComma, literal: ",", pos: start}, nil
	case ch == '.' && !l.digitAt(l.pos+1):
		l.pos++
		return token{typ: tokDot, literal: ".", pos: start}, nil
	case ch == '&':
		l.pos++
		if l.peek() == '&' {
			l.pos++
		}
		return token{typ: tokAnd, literal: "&", pos: start}, nil
	case ch == '|':
		l.pos++
		if l.peek() == '|' {
			l.pos++
		}
		return token{typ: tokOr, literal: "|", pos: start}, nil
	case ch == '~':
		l.pos++
		return token{typ: tokNot, literal: "~", pos: start}, nil
	case ch == '!':
		l.pos++
		if l.peek() == '=' {
			l.pos++
			return token{typ: tokCompare, literal: "!=", pos: start}, nil
		}
		return token{typ: tokNot, literal: "!", pos: start}, nil
	case ch == '=':
		l.pos++
		if l.peek() == '=' {
			l.pos++
		}
		return token{typ: tokCompare, literal: "==", pos: start}, nil
	case ch == '<':
		l.pos++
		switch l.peek() {
		case '=':
			l.pos++
			return token{typ: tokCompare, literal: "<=", pos: start}, nil
		case '>':
			l.pos++
			return token{typ: tokCompare, literal: "!=", pos: start}, nil
		}
		return token{typ: tokCompare, literal: "<", pos: start}, nil
	case ch == '>':
		l.pos++
		if l.peek() == '=' {
			l.pos++
			return token{typ: tokCompare, literal: ">=", pos: start}, nil
		}
		return token{typ: tokCompare, literal: ">", pos: start}, nil
	case ch == '\'' || ch == '"':
		value, err := l.readString(ch)
		if err != nil {
			return token{}, err
		}
		return token{typ: tokString, literal: value, pos: start}, nil
	case ch == '`':
		value, err := l.readQuotedIdent()
		if err != nil {
			return token{}, err
		}
		return token{typ: tokQuotedIdent, literal: value, pos: start}, nil
	case isDigit(ch) || ch == '.' || (ch == '-' && (l.digitAt(l.pos+1) || l.peekAt(l.pos+1) == '.')):
		return l.readNumber()
	case isLetter(ch):
		for l.pos < len(l.input) && (isLetter(l.input[l.pos]) || isDigit(l.input[l.pos])) {
			l.pos++
		}
		return token{typ: tokIdent, literal: l.input[start:l.pos], pos: start}, nil
	}
	return token{}, errorf(start, "unexpected character %q", ch)
}

func (l *lexer) readString(quote byte) (string, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == quote:
			l.pos++
			return b.String(), nil
		case ch == '\\' && l.pos+1 < len(l.input):
			l.pos++
			switch esc := l.input[l.pos]; esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(esc)
			}
		default:
			b.WriteByte(ch)
		}
		l.pos++
	}
	return "", errorf(start, "unterminated string literal")
}

func (l *lexer) readQuotedIdent() (string, error) {
	start := l.pos
	l.pos++
	end := strings.IndexByte(l.input[l.pos:], '`')
	if end < 0 {
		return "", errorf(start, "unterminated quoted identifier")
	}
	name := l.input[l.pos : l.pos+end]
	l.pos += end + 1
	return name, nil
}

func (l *lexer) readNumber() (token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	digits := 0
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
		digits++
	}
	if l.peek() == '.' {
		l.pos++
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
			digits++
		}
	}
	if digits == 0 {
		return token{}, errorf(start, "malformed number")
	}
	if c := l.peek(); c == 'e' || c == 'E' {
		l.pos++
		if c := l.peek(); c == '+' || c == '-' {
			l.pos++
		}
		expDigits := 0
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
			expDigits++
		}
		if expDigits == 0 {
			return token{}, errorf(start, "malformed exponent")
		}
	}
	if l.pos < len(l.input) && isLetter(l.input[l.pos]) {
		return token{}, errorf(start, "malformed number %q", l.input[start:l.pos+1])
	}
	return token{typ: tokNumber, literal: l.input[start:l.pos], pos: start}, nil
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) peek() byte {
	return l.peekAt(l.pos)
}

func (l *lexer) peekAt(i int) byte {
	if i >= len(l.input) {
		return 0
	}
	return l.input[i]
}

func (l *lexer) digitAt(i int) bool {
	return isDigit(l.peekAt(i))
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (t token) String() string {
	if t.typ == tokEOF {
		return t.typ.String()
	}
	return fmt.Sprintf("%s %q", t.typ, t.literal)
}
