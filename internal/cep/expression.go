package cep

import (
	"fmt"
	"strconv"
	"strings"
)

type aggregateFunc string

const (
	aggAvg   aggregateFunc = "avg"
	aggSum   aggregateFunc = "sum"
	aggCount aggregateFunc = "count"
	aggMin   aggregateFunc = "min"
	aggMax   aggregateFunc = "max"
)

var aggregateFuncs = map[string]aggregateFunc{
	"avg":   aggAvg,
	"sum":   aggSum,
	"count": aggCount,
	"min":   aggMin,
	"max":   aggMax,
}

type aggregateRef struct {
	fn aggregateFunc
	// arg is the translated argument, empty for count(*).
	arg  string
	name string
}

// aggregateSet deduplicates the aggregate calls of a statement and assigns each
// distinct call an environment variable.
type aggregateSet struct {
	refs  []aggregateRef
	byKey map[string]int
}

func newAggregateSet() *aggregateSet {
	return &aggregateSet{byKey: make(map[string]int)}
}

func (s *aggregateSet) add(fn aggregateFunc, arg string) string {
	key := string(fn) + "(" + arg + ")"
	if i, ok := s.byKey[key]; ok {
		return s.refs[i].name
	}

	name := "_agg" + strconv.Itoa(len(s.refs))
	s.byKey[key] = len(s.refs)
	s.refs = append(s.refs, aggregateRef{fn: fn, arg: arg, name: name})

	return name
}

type piece struct {
	text string
	glue bool
}

// translate rewrites an expression into expr-lang syntax. Aggregate calls are
// replaced by variables registered in aggs; a nil aggs rejects them.
func translate(src string, aggs *aggregateSet) (string, error) {
	tokens, err := lex(src)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", &SyntaxError{Pos: 0, Msg: "empty expression"}
	}

	return translateTokens(tokens, aggs)
}

func translateTokens(tokens []token, aggs *aggregateSet) (string, error) {
	var out []piece

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch tok.kind {
		case tokString:
			out = append(out, piece{text: strconv.Quote(tok.text)})

		case tokDot:
			out = append(out, piece{text: ".", glue: true})

		case tokOperator:
			switch tok.text {
			case "=":
				out = append(out, piece{text: "=="})
			case "<>":
				out = append(out, piece{text: "!="})
			case "?.":
				out = append(out, piece{text: "?.", glue: true})
			default:
				out = append(out, piece{text: tok.text})
			}

		case tokIdent:
			lower := strings.ToLower(tok.text)

			if fn, ok := aggregateFuncs[lower]; ok && i+1 < len(tokens) && tokens[i+1].kind == tokLParen {
				closing := matchingParen(tokens, i+1)
				name, err := aggregateVar(tok, fn, tokens[i+2:closing], aggs)
				if err != nil {
					return "", err
				}
				out = append(out, piece{text: name})
				i = closing
				continue
			}

			switch lower {
			case "and", "or", "not", "in", "true", "false":
				out = append(out, piece{text: lower})
			case "null":
				out = append(out, piece{text: "nil"})
			case "is":
				op := "=="
				j := i + 1
				if j < len(tokens) && tokens[j].is("not") {
					op = "!="
					j++
				}
				if j >= len(tokens) || !tokens[j].is("null") {
					return "", &SyntaxError{Pos: tok.pos, Msg: "expected null after is"}
				}
				out = append(out, piece{text: op}, piece{text: "nil"})
				i = j
			default:
				out = append(out, piece{text: tok.text})
			}

		default:
			out = append(out, piece{text: tok.text})
		}
	}

	var sb strings.Builder
	for i, p := range out {
		if i > 0 && !p.glue && !out[i-1].glue {
			sb.WriteByte(' ')
		}
		sb.WriteString(p.text)
	}

	return sb.String(), nil
}

func aggregateVar(call token, fn aggregateFunc, args []token, aggs *aggregateSet) (string, error) {
	if aggs == nil {
		return "", &SyntaxError{Pos: call.pos, Msg: fmt.Sprintf("aggregate function %s is not allowed here", fn)}
	}

	if len(args) == 0 {
		return "", &SyntaxError{Pos: call.pos, Msg: fmt.Sprintf("aggregate function %s requires an argument", fn)}
	}

	if len(args) == 1 && args[0].kind == tokStar {
		if fn != aggCount {
			return "", &SyntaxError{Pos: args[0].pos, Msg: fmt.Sprintf("%s(*) is not supported", fn)}
		}
		return aggs.add(fn, ""), nil
	}

	// nested aggregates are rejected by passing a nil set
	arg, err := translateTokens(args, nil)
	if err != nil {
		return "", err
	}

	return aggs.add(fn, arg), nil
}

// matchingParen returns the index of the parenthesis closing the one at open.
// Token streams from lex are balanced.
func matchingParen(tokens []token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch tokens[i].kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(tokens) - 1
}
