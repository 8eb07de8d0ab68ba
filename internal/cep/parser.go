package cep

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/glassflow/glassflow-cep/internal/models"
)

type parser struct {
	src    string
	tokens []token
	pos    int
}

// ParseEPL parses a statement of the form
//
//	[insert into Name] select (* | expr [as alias], ...) from Type[(filter)][.win:length(N)]
//	[where expr] [having expr]
//
// into its structured model. Keywords are case-insensitive.
func ParseEPL(text string) (zero models.StatementModel, _ error) {
	tokens, err := lex(text)
	if err != nil {
		return zero, err
	}
	if len(tokens) == 0 {
		return zero, &SyntaxError{Pos: 0, Msg: "empty statement"}
	}

	p := &parser{src: text, tokens: tokens}

	return p.parseStatement()
}

func (p *parser) parseStatement() (zero models.StatementModel, _ error) {
	var m models.StatementModel

	if p.peekKeyword("insert") {
		p.pos++
		if err := p.expectKeyword("into"); err != nil {
			return zero, err
		}
		name, err := p.expectIdent("insert into target")
		if err != nil {
			return zero, err
		}
		m.InsertInto = name
	}

	if err := p.expectKeyword("select"); err != nil {
		return zero, err
	}

	selectTokens := p.until("from")
	if len(selectTokens) == 0 {
		return zero, p.errorf("select clause cannot be empty")
	}
	if len(selectTokens) == 1 && selectTokens[0].kind == tokStar {
		m.Wildcard = true
	} else {
		items, err := p.parseSelectItems(selectTokens)
		if err != nil {
			return zero, err
		}
		m.Select = items
	}

	if err := p.expectKeyword("from"); err != nil {
		return zero, err
	}
	from, err := p.expectIdent("event type")
	if err != nil {
		return zero, err
	}
	m.From = from

	if p.peekKind(tokLParen) {
		filter, err := p.parenthesized()
		if err != nil {
			return zero, err
		}
		if filter == "" {
			return zero, p.errorf("filter of %s cannot be empty", from)
		}
		m.Filter = filter
	}

	if p.peekKind(tokDot) {
		length, err := p.parseView()
		if err != nil {
			return zero, err
		}
		m.WindowLength = length
	}

	if p.peekKeyword("where") {
		p.pos++
		where := p.until("having")
		if len(where) == 0 {
			return zero, p.errorf("where clause cannot be empty")
		}
		m.Where = p.text(where)
	}

	if p.peekKeyword("having") {
		p.pos++
		having := p.until("")
		if len(having) == 0 {
			return zero, p.errorf("having clause cannot be empty")
		}
		m.Having = p.text(having)
	}

	if p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		return zero, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", p.src[tok.pos:tok.end])}
	}

	if err := m.Validate(); err != nil {
		return zero, &SyntaxError{Pos: 0, Msg: err.Error()}
	}

	return m, nil
}

func (p *parser) parseSelectItems(tokens []token) ([]models.SelectItem, error) {
	var (
		items []models.SelectItem
		depth int
		start int
	)

	flush := func(end int) error {
		part := tokens[start:end]
		if len(part) == 0 {
			pos := len(p.src)
			if end < len(tokens) {
				pos = tokens[end].pos
			}
			return &SyntaxError{Pos: pos, Msg: "empty select item"}
		}

		item := models.SelectItem{}
		if n := len(part); n >= 3 && part[n-2].is("as") && part[n-1].kind == tokIdent {
			item.Alias = part[n-1].text
			part = part[:n-2]
		}
		if part[0].kind == tokStar && len(part) == 1 {
			return &SyntaxError{Pos: part[0].pos, Msg: "wildcard cannot be combined with other select items"}
		}
		item.Expression = p.text(part)
		items = append(items, item)
		return nil
	}

	for i, tok := range tokens {
		switch tok.kind {
		case tokLParen, tokLBracket:
			depth++
		case tokRParen, tokRBracket:
			depth--
		case tokComma:
			if depth == 0 {
				if err := flush(i); err != nil {
					return nil, err
				}
				start = i + 1
			}
		}
	}
	if err := flush(len(tokens)); err != nil {
		return nil, err
	}

	return items, nil
}

// parseView parses the ".win:length(N)" view suffix.
func (p *parser) parseView() (int, error) {
	p.pos++ // dot

	if !p.peekKeyword("win") {
		return 0, p.errorf("expected view namespace win")
	}
	p.pos++
	if !p.peekKind(tokColon) {
		return 0, p.errorf("expected ':' after view namespace")
	}
	p.pos++
	if !p.peekKeyword("length") {
		return 0, p.errorf("unsupported view, only win:length is supported")
	}
	p.pos++

	arg, err := p.parenthesized()
	if err != nil {
		return 0, err
	}
	length, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || length <= 0 {
		return 0, p.errorf("window length must be a positive integer, got %q", arg)
	}

	return length, nil
}

// parenthesized consumes a balanced "( ... )" group and returns its inner text.
func (p *parser) parenthesized() (string, error) {
	if !p.peekKind(tokLParen) {
		return "", p.errorf("expected '('")
	}
	open := p.tokens[p.pos]
	p.pos++

	depth := 1
	start := p.pos
	for ; p.pos < len(p.tokens); p.pos++ {
		switch p.tokens[p.pos].kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
			if depth == 0 {
				inner := p.tokens[start:p.pos]
				p.pos++
				return p.text(inner), nil
			}
		}
	}

	return "", &SyntaxError{Pos: open.pos, Msg: "unclosed '('"}
}

// until collects tokens up to (not including) the given keyword at nesting depth
// zero, or up to the end of input when keyword is empty.
func (p *parser) until(keyword string) []token {
	start := p.pos
	depth := 0
	for ; p.pos < len(p.tokens); p.pos++ {
		tok := p.tokens[p.pos]
		switch tok.kind {
		case tokLParen, tokLBracket:
			depth++
		case tokRParen, tokRBracket:
			depth--
		}
		if depth == 0 && keyword != "" && tok.is(keyword) {
			break
		}
	}
	return p.tokens[start:p.pos]
}

func (p *parser) text(tokens []token) string {
	if len(tokens) == 0 {
		return ""
	}
	return strings.TrimSpace(p.src[tokens[0].pos:tokens[len(tokens)-1].end])
}

func (p *parser) peekKind(kind tokenKind) bool {
	return p.pos < len(p.tokens) && p.tokens[p.pos].kind == kind
}

func (p *parser) peekKeyword(keyword string) bool {
	return p.pos < len(p.tokens) && p.tokens[p.pos].is(keyword)
}

func (p *parser) expectKeyword(keyword string) error {
	if !p.peekKeyword(keyword) {
		return p.errorf("expected %q", keyword)
	}
	p.pos++
	return nil
}

func (p *parser) expectIdent(what string) (string, error) {
	if !p.peekKind(tokIdent) {
		return "", p.errorf("expected %s", what)
	}
	name := p.tokens[p.pos].text
	p.pos++
	return name, nil
}

func (p *parser) errorf(format string, args ...any) error {
	pos := len(p.src)
	if p.pos < len(p.tokens) {
		pos = p.tokens[p.pos].pos
	}
	return &SyntaxError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
