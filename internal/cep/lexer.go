package cep

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOperator
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokDot
	tokColon
	tokStar
)

type token struct {
	kind tokenKind
	// text is the literal source for every kind except tokString, where it is
	// the unquoted content.
	text  string
	pos   int
	end   int
	quote byte
}

func (t token) is(keyword string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, keyword)
}

// SyntaxError describes an invalid statement text.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

var twoCharOperators = []string{"==", "!=", "<>", "<=", ">=", "&&", "||", "**", "??", "?."}

// lex splits src into tokens and checks that parentheses and brackets balance.
func lex(src string) ([]token, error) {
	var (
		tokens []token
		stack  []token
	)

	for i := 0; i < len(src); {
		c := src[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
			continue

		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start, end: i})
			continue

		case isDigit(c):
			start := i
			i = scanNumber(src, i)
			tokens = append(tokens, token{kind: tokNumber, text: src[start:i], pos: start, end: i})
			continue

		case c == '\'' || c == '"':
			start := i
			content, next, err := scanString(src, i)
			if err != nil {
				return nil, err
			}
			i = next
			tokens = append(tokens, token{kind: tokString, text: content, pos: start, end: i, quote: c})
			continue
		}

		tok := token{pos: i, end: i + 1, text: src[i : i+1]}
		switch c {
		case '(':
			tok.kind = tokLParen
			stack = append(stack, tok)
		case '[':
			tok.kind = tokLBracket
			stack = append(stack, tok)
		case ')', ']':
			tok.kind = tokRParen
			open := byte('(')
			if c == ']' {
				tok.kind = tokRBracket
				open = '['
			}
			if len(stack) == 0 || stack[len(stack)-1].text[0] != open {
				return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unexpected %q", c)}
			}
			stack = stack[:len(stack)-1]
		case ',':
			tok.kind = tokComma
		case '.':
			tok.kind = tokDot
		case ':':
			tok.kind = tokColon
		case '*':
			tok.kind = tokStar
			if i+1 < len(src) && src[i+1] == '*' {
				tok.kind = tokOperator
				tok.end = i + 2
				tok.text = "**"
			}
		default:
			tok.kind = tokOperator
			matched := false
			for _, op := range twoCharOperators {
				if strings.HasPrefix(src[i:], op) {
					tok.text = op
					tok.end = i + len(op)
					matched = true
					break
				}
			}
			if !matched && !strings.ContainsRune("=<>!+-/%^?&|", rune(c)) {
				return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
		}

		tokens = append(tokens, tok)
		i = tok.end
	}

	if len(stack) > 0 {
		open := stack[len(stack)-1]
		return nil, &SyntaxError{Pos: open.pos, Msg: fmt.Sprintf("unclosed %q", open.text)}
	}

	return tokens, nil
}

func scanNumber(src string, i int) int {
	for i < len(src) && (isDigit(src[i]) || src[i] == '_') {
		i++
	}
	if i+1 < len(src) && src[i] == '.' && isDigit(src[i+1]) {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			i = j
			for i < len(src) && isDigit(src[i]) {
				i++
			}
		}
	}
	return i
}

func scanString(src string, start int) (string, int, error) {
	quote := src[start]
	var sb strings.Builder

	for i := start + 1; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src):
			i++
			switch src[i] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(src[i])
			}
		case c == quote:
			// doubled quote is an escaped quote
			if i+1 < len(src) && src[i+1] == quote {
				sb.WriteByte(quote)
				i++
				continue
			}
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(c)
		}
	}

	return "", 0, &SyntaxError{Pos: start, Msg: "unterminated string literal"}
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
