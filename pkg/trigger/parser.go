package trigger

import (
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
)

type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
}

// isWordChar accepts the characters that can appear in node paths, event
// references, and limit names.
func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '/' || c == ':' || c == '-'
}

// lex splits the expression into tokens. It never fails: unexpected
// characters become error tokens at parse time via the word fallthrough.
func lex(src string) ([]token, *ParseError) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i, i + 1})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i, i + 1})
			i++
		case c == '=' || c == '<' || c == '>':
			op := string(c)
			end := i + 1
			if end < len(src) && src[end] == '=' {
				op += "="
				end++
			}
			if op == "=" {
				return nil, &ParseError{Pos: i, Message: "single '=' is not an operator, use '=='"}
			}
			toks = append(toks, token{tokOp, op, i, end})
			i = end
		case c == '!':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{tokOp, "!=", i, i + 2})
				i += 2
			} else {
				toks = append(toks, token{tokNot, "!", i, i + 1})
				i++
			}
		case c == '&' && i+1 < len(src) && src[i+1] == '&':
			toks = append(toks, token{tokAnd, "&&", i, i + 2})
			i += 2
		case c == '|' && i+1 < len(src) && src[i+1] == '|':
			toks = append(toks, token{tokOr, "||", i, i + 2})
			i += 2
		case isWordChar(c):
			start := i
			for i < len(src) && isWordChar(src[i]) {
				i++
			}
			word := src[start:i]
			kind := tokWord
			allDigits := true
			for j := 0; j < len(word); j++ {
				if word[j] < '0' || word[j] > '9' {
					allDigits = false
					break
				}
			}
			if allDigits {
				kind = tokNumber
			} else {
				switch strings.ToLower(word) {
				case "and":
					kind = tokAnd
				case "or":
					kind = tokOr
				case "not":
					kind = tokNot
				}
			}
			toks = append(toks, token{kind, word, start, i})
		default:
			return nil, &ParseError{Pos: i, Message: "unexpected character " + strconv.Quote(string(c))}
		}
	}
	toks = append(toks, token{tokEOF, "", len(src), len(src)})
	return toks, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// Parse turns raw trigger text into an expression tree. Precedence is
// NOT > AND > OR; parentheses group explicitly.
func Parse(src string) (Expr, *ParseError) {
	if strings.TrimSpace(src) == "" {
		return nil, &ParseError{Pos: 0, Message: "empty expression"}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, perr := p.parseOr()
	if perr != nil {
		return nil, perr
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &ParseError{Pos: t.pos, Message: "unexpected " + strconv.Quote(t.text)}
	}
	return e, nil
}

func (p *parser) parseOr() (Expr, *ParseError) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	xs := []Expr{first}
	for p.peek().kind == tokOr {
		p.next()
		x, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		xs = append(xs, x)
	}
	if len(xs) == 1 {
		return first, nil
	}
	return &Or{Xs: xs, Src: Span{xs[0].Span().Start, xs[len(xs)-1].Span().End}}, nil
}

func (p *parser) parseAnd() (Expr, *ParseError) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	xs := []Expr{first}
	for p.peek().kind == tokAnd {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		xs = append(xs, x)
	}
	if len(xs) == 1 {
		return first, nil
	}
	return &And{Xs: xs, Src: Span{xs[0].Span().Start, xs[len(xs)-1].Span().End}}, nil
}

func (p *parser) parseUnary() (Expr, *ParseError) {
	if t := p.peek(); t.kind == tokNot {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{X: x, Src: Span{t.pos, x.Span().End}}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, *ParseError) {
	t := p.peek()
	switch t.kind {
	case tokLParen:
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &ParseError{Pos: closing.pos, Message: "expected ')'"}
		}
		return e, nil
	case tokWord:
		return p.parseLeaf()
	case tokEOF:
		return nil, &ParseError{Pos: t.pos, Message: "unexpected end of expression"}
	default:
		return nil, &ParseError{Pos: t.pos, Message: "unexpected " + strconv.Quote(t.text)}
	}
}

// parseLeaf handles the three leaf forms:
//
//	limit.<name> OP <int>
//	<path>:<event>
//	<path> [==|!= <state>]        (bare path means "== complete")
func (p *parser) parseLeaf() (Expr, *ParseError) {
	word := p.next()

	if name, ok := strings.CutPrefix(word.text, "limit."); ok {
		if name == "" {
			return nil, &ParseError{Pos: word.pos, Message: "limit reference without a name"}
		}
		opTok := p.next()
		if opTok.kind != tokOp {
			return nil, &ParseError{Pos: opTok.pos, Message: "limit reference needs a comparison operator"}
		}
		valTok := p.next()
		if valTok.kind != tokNumber {
			return nil, &ParseError{Pos: valTok.pos, Message: "limit comparison needs an integer threshold"}
		}
		val, err := strconv.Atoi(valTok.text)
		if err != nil {
			return nil, &ParseError{Pos: valTok.pos, Message: "invalid threshold " + strconv.Quote(valTok.text)}
		}
		return &Leaf{
			Kind:  LeafLimit,
			Ref:   name,
			Op:    CompareOp(opTok.text),
			Value: val,
			Src:   Span{word.pos, valTok.end},
		}, nil
	}

	if path, event, ok := strings.Cut(word.text, ":"); ok {
		if path == "" || event == "" || strings.Contains(event, ":") {
			return nil, &ParseError{Pos: word.pos, Message: "malformed event reference " + strconv.Quote(word.text)}
		}
		return &Leaf{
			Kind:  LeafEvent,
			Ref:   path,
			Event: event,
			Src:   Span{word.pos, word.end},
		}, nil
	}

	leaf := &Leaf{
		Kind:  LeafState,
		Ref:   word.text,
		Op:    OpEq,
		State: "complete",
		Src:   Span{word.pos, word.end},
	}
	if t := p.peek(); t.kind == tokOp {
		if t.text != "==" && t.text != "!=" {
			return nil, &ParseError{Pos: t.pos, Message: "state comparison supports only '==' and '!='"}
		}
		p.next()
		stateTok := p.next()
		if stateTok.kind != tokWord {
			return nil, &ParseError{Pos: stateTok.pos, Message: "expected a state name"}
		}
		leaf.Op = CompareOp(t.text)
		leaf.State = strings.ToLower(stateTok.text)
		leaf.Src.End = stateTok.end
	}
	return leaf, nil
}
