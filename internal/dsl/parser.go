package dsl

import "strconv"

// parser is a recursive-descent parser over the token stream. Precedence
// is encoded structurally: expr handles + and -, term handles * and /,
// factor handles literals, references, calls and grouping.
type parser struct {
	lex *lexer
	tok token
}

func newParser(src string) (*parser, *ParseError) {
	p := &parser{lex: newLexer(src)}
	if err := p.bump(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) bump() *ParseError {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) expect(kind tokenKind, what string) (token, *ParseError) {
	if p.tok.kind != kind {
		return token{}, p.errHere("expected %s", what)
	}
	tok := p.tok
	if err := p.bump(); err != nil {
		return token{}, err
	}
	return tok, nil
}

func (p *parser) errHere(format string, args ...any) *ParseError {
	return p.lex.errf(p.tok.line, p.tok.col, format, args...)
}

// Parse parses a bare expression and requires the whole input to be
// consumed. It never returns a partial tree.
func Parse(src string) (Node, error) {
	p, perr := newParser(src)
	if perr != nil {
		return nil, perr
	}
	node, perr := p.parseExpr()
	if perr != nil {
		return nil, perr
	}
	if p.tok.kind != tkEOF {
		return nil, p.errHere("unexpected trailing input %q", p.tok.text)
	}
	return node, nil
}

// ParseMetric parses the `CODE: expr` formula form.
func ParseMetric(src string) (*Formula, error) {
	p, perr := newParser(src)
	if perr != nil {
		return nil, perr
	}
	name, perr := p.expect(tkIdent, "metric name")
	if perr != nil {
		return nil, perr
	}
	if _, perr := p.expect(tkColon, "':' after metric name"); perr != nil {
		return nil, perr
	}
	expr, perr := p.parseExpr()
	if perr != nil {
		return nil, perr
	}
	if p.tok.kind != tkEOF {
		return nil, p.errHere("unexpected trailing input %q", p.tok.text)
	}
	return &Formula{Metric: name.text, Expression: expr}, nil
}

func (p *parser) parseExpr() (Node, *ParseError) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tkPlus || p.tok.kind == tkMinus {
		op := p.tok.text
		if err := p.bump(); err != nil {
			return nil, err
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, *ParseError) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tkStar || p.tok.kind == tkSlash {
		op := p.tok.text
		if err := p.bump(); err != nil {
			return nil, err
		}
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (Node, *ParseError) {
	switch p.tok.kind {
	case tkNumber:
		val, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, p.errHere("invalid number %q", p.tok.text)
		}
		if perr := p.bump(); perr != nil {
			return nil, perr
		}
		return Number{Value: val}, nil
	case tkMinus:
		if err := p.bump(); err != nil {
			return nil, err
		}
		inner, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		if n, ok := inner.(Number); ok {
			return Number{Value: -n.Value}, nil
		}
		return BinaryOp{Op: "-", Left: Number{Value: 0}, Right: inner}, nil
	case tkIdent:
		name := p.tok.text
		if err := p.bump(); err != nil {
			return nil, err
		}
		if p.tok.kind != tkLParen {
			return Identifier{Name: name}, nil
		}
		if err := p.bump(); err != nil {
			return nil, err
		}
		var args []Node
		if p.tok.kind != tkRParen {
			for {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if p.tok.kind != tkComma {
					break
				}
				if err := p.bump(); err != nil {
					return nil, err
				}
			}
		}
		if _, err := p.expect(tkRParen, "')' after call arguments"); err != nil {
			return nil, err
		}
		return Call{Name: name, Args: args}, nil
	case tkLParen:
		if err := p.bump(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, perr := p.expect(tkRParen, "')'"); perr != nil {
			return nil, perr
		}
		return inner, nil
	case tkEOF:
		return nil, p.errHere("unexpected end of input")
	default:
		return nil, p.errHere("unexpected token %q", p.tok.text)
	}
}
