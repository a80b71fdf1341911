package expr

import (
	"fmt"
)

// parser consumes the token stream of one statement. Boolean precedence is
// not > and > or; parentheses group explicitly.
type parser struct {
	statement string
	tokens    []token
	pos       int
	refs      map[string]string // tag -> successor state name
	params    map[string]string // param name -> JSONPath
}

func parseStatement(statement string, refs map[string]string, params map[string]string) (*Node, error) {
	tokens, err := lex(statement)
	if err != nil {
		return nil, err
	}

	p := &parser{statement: statement, tokens: tokens, refs: refs, params: params}

	node, err := p.branch()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.fail(ErrMalformedStatement, "trailing input after statement")
	}
	return node, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.fail(ErrMalformedStatement, "expected %s, found %q", what, t.text)
	}
	return t, nil
}

func (p *parser) fail(err error, format string, args ...any) error {
	return &SyntaxError{
		Statement: p.statement,
		Pos:       p.peek().pos,
		Err:       fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...)),
	}
}

// branch := when-statement | term
func (p *parser) branch() (*Node, error) {
	if p.peek().kind == tokWhen {
		return p.when()
	}
	return p.term()
}

// when := 'when' condition 'then' branch ['else' branch]
// An else clause binds to the nearest when, matching the nesting of the
// native conditional it compiles to.
func (p *parser) when() (*Node, error) {
	if _, err := p.expect(tokWhen, "'when'"); err != nil {
		return nil, err
	}

	cond, err := p.condition()
	if err != nil {
		return nil, err
	}

	if _, err := p.expect(tokThen, "'then'"); err != nil {
		return nil, err
	}

	then, err := p.branch()
	if err != nil {
		return nil, err
	}

	node := &Node{Kind: kindWhen, Cond: cond, Then: then}

	if p.peek().kind == tokElse {
		p.next()
		node.Else, err = p.branch()
		if err != nil {
			return nil, err
		}
	}

	return node, nil
}

// condition := orExpr
func (p *parser) condition() (*Node, error) {
	return p.orExpr()
}

func (p *parser) orExpr() (*Node, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: kindOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) andExpr() (*Node, error) {
	left, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: kindAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) notExpr() (*Node, error) {
	if p.peek().kind == tokNot {
		p.next()
		operand, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: kindNot, Left: operand}, nil
	}
	return p.primaryCond()
}

// primaryCond := 'exist' JSONPath | '(' condition ')' | term op term
func (p *parser) primaryCond() (*Node, error) {
	switch p.peek().kind {
	case tokExist:
		p.next()
		t, err := p.expect(tokPath, "JSONPath after 'exist'")
		if err != nil {
			return nil, err
		}
		return &Node{Kind: kindExist, Path: t.text, Param: p.bindPath(t.text)}, nil

	case tokLParen:
		p.next()
		inner, err := p.condition()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	left, err := p.term()
	if err != nil {
		return nil, err
	}

	op, err := p.expect(tokOp, "comparison operator")
	if err != nil {
		return nil, err
	}

	right, err := p.term()
	if err != nil {
		return nil, err
	}

	return &Node{Kind: kindCmp, Op: op.text, Left: left, Right: right}, nil
}

// term := JSONPath | string | number | list | map | true | false | null | #tag
func (p *parser) term() (*Node, error) {
	t := p.next()

	switch t.kind {
	case tokPath:
		return &Node{Kind: kindPath, Path: t.text, Param: p.bindPath(t.text)}, nil
	case tokString:
		return &Node{Kind: kindLiteral, Value: t.text}, nil
	case tokNumber:
		return &Node{Kind: kindLiteral, Value: t.num}, nil
	case tokTrue:
		return &Node{Kind: kindLiteral, Value: true}, nil
	case tokFalse:
		return &Node{Kind: kindLiteral, Value: false}, nil
	case tokNull:
		return &Node{Kind: kindLiteral, Null: true}, nil
	case tokTag:
		name, ok := p.refs[t.text]
		if !ok {
			return nil, &SyntaxError{
				Statement: p.statement,
				Pos:       t.pos,
				Err:       fmt.Errorf("%w: #%s", ErrUnknownTag, t.text),
			}
		}
		return &Node{Kind: kindLiteral, Value: name}, nil
	case tokLBracket:
		return p.listLiteral()
	case tokLBrace:
		return p.mapLiteral()
	}

	return nil, p.fail(ErrMalformedStatement, "expected term, found %q", t.text)
}

func (p *parser) listLiteral() (*Node, error) {
	list := []any{}

	if p.peek().kind == tokRBracket {
		p.next()
		return &Node{Kind: kindLiteral, Value: list}, nil
	}

	for {
		elem, err := p.literalValue()
		if err != nil {
			return nil, err
		}
		list = append(list, elem)

		t := p.next()
		if t.kind == tokRBracket {
			return &Node{Kind: kindLiteral, Value: list}, nil
		}
		if t.kind != tokComma {
			return nil, p.fail(ErrMalformedStatement, "expected ',' or ']' in list literal")
		}
	}
}

func (p *parser) mapLiteral() (*Node, error) {
	m := map[string]any{}

	if p.peek().kind == tokRBrace {
		p.next()
		return &Node{Kind: kindLiteral, Value: m}, nil
	}

	for {
		key, err := p.expect(tokString, "string key in map literal")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokColon, "':' in map literal"); err != nil {
			return nil, err
		}
		val, err := p.literalValue()
		if err != nil {
			return nil, err
		}
		m[key.text] = val

		t := p.next()
		if t.kind == tokRBrace {
			return &Node{Kind: kindLiteral, Value: m}, nil
		}
		if t.kind != tokComma {
			return nil, p.fail(ErrMalformedStatement, "expected ',' or '}' in map literal")
		}
	}
}

// literalValue parses one element of a list or map literal. Composite
// literals nest; JSONPath terms do not appear inside them.
func (p *parser) literalValue() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		return t.num, nil
	case tokTrue:
		return true, nil
	case tokFalse:
		return false, nil
	case tokNull:
		return nil, nil
	case tokLBracket:
		node, err := p.listLiteral()
		if err != nil {
			return nil, err
		}
		return node.Value, nil
	case tokLBrace:
		node, err := p.mapLiteral()
		if err != nil {
			return nil, err
		}
		return node.Value, nil
	}
	return nil, p.fail(ErrMalformedStatement, "expected literal value, found %q", t.text)
}

func (p *parser) bindPath(path string) string {
	param := paramName(path)
	p.params[param] = path
	return param
}
