package expr

import (
	"fmt"
	"math"
	"strconv"
)

type node interface {
	eval(row any) (any, error)
}

type literalNode struct{ value any }

type pathNode struct {
	segments []any // string field names or int indexes
	source   string
}

type notNode struct{ operand node }

type logicalNode struct {
	and         bool
	left, right node
}

type compareNode struct {
	op          string
	left, right node
}

type parser struct {
	tokens []token
	pos    int
}

func parse(src string) (node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok, tok.pos)
	}
	return root, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(words ...string) bool {
	tok := p.peek()
	if tok.kind != tokenOperator && tok.kind != tokenIdent {
		return false
	}
	for _, word := range words {
		if tok.text == word {
			p.pos++
			return true
		}
	}
	return false
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, fmt.Errorf("%w: expected %s, got %s at %d", ErrSyntax, what, tok, tok.pos)
	}
	return tok, nil
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("||", "or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.accept("&&", "and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.accept("!", "not") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tokenOperator {
		return left, nil
	}
	switch tok.text {
	case "==", "===", "!=", "!==", "<", "<=", ">", ">=":
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &compareNode{op: tok.text, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokenNumber:
		return &literalNode{value: tok.number}, nil
	case tokenString:
		return &literalNode{value: tok.text}, nil
	case tokenLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen, `")"`); err != nil {
			return nil, err
		}
		return inner, nil
	case tokenIdent:
		switch tok.text {
		case "true":
			return &literalNode{value: true}, nil
		case "false":
			return &literalNode{value: false}, nil
		case "null":
			return &literalNode{value: nil}, nil
		case "row":
			return p.parsePath()
		}
		return nil, fmt.Errorf("%w: unknown identifier %q at %d", ErrSyntax, tok.text, tok.pos)
	}
	return nil, fmt.Errorf("%w: unexpected %s at %d", ErrSyntax, tok, tok.pos)
}

func (p *parser) parsePath() (node, error) {
	path := &pathNode{source: "row"}
	for {
		switch p.peek().kind {
		case tokenDot:
			p.next()
			field, err := p.expect(tokenIdent, "field name")
			if err != nil {
				return nil, err
			}
			path.segments = append(path.segments, field.text)
			path.source += "." + field.text
		case tokenLBracket:
			p.next()
			key := p.next()
			switch {
			case key.kind == tokenString:
				path.segments = append(path.segments, key.text)
				path.source += "[" + strconv.Quote(key.text) + "]"
			case key.kind == tokenNumber && key.number >= 0 && key.number == math.Trunc(key.number):
				path.segments = append(path.segments, int(key.number))
				path.source += "[" + key.text + "]"
			default:
				return nil, fmt.Errorf("%w: invalid index %s at %d", ErrSyntax, key, key.pos)
			}
			if _, err := p.expect(tokenRBracket, `"]"`); err != nil {
				return nil, err
			}
		default:
			return path, nil
		}
	}
}
