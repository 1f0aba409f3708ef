package query

import (
	"fmt"

	"github.com/githubnext/ace/internal/aceerr"
)

// Grammar (precedence loosest to tightest): or_expr -> and_expr { OR
// and_expr }; and_expr -> unary_expr { [AND] unary_expr } (juxtaposed
// atoms combine with implicit AND); unary_expr -> { "!" } primary;
// primary -> atom | "(" or_expr ")".
type parser struct {
	tokens []Token
	pos    int
}

// ParseQuery parses a query string into its AST, or returns a
// ParseError-kind error on the first malformed token or construct.
func ParseQuery(q string) (Expr, error) {
	tokens, err := Tokenize(q)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}

	if p.check(TokenEOF) {
		return nil, aceerr.New(aceerr.ParseError, "empty query")
	}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.check(TokenEOF) {
		tok := p.current()
		return nil, parseErrorf(tok.Position, "unexpected token: %s", tok.Value)
	}
	return expr, nil
}

func (p *parser) current() Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.current()
	p.pos++
	return tok
}

func (p *parser) check(t TokenType) bool {
	return p.current().Type == t
}

func (p *parser) expect(t TokenType) (Token, error) {
	tok := p.current()
	if tok.Type != t {
		return Token{}, parseErrorf(tok.Position, "expected token type %d, got %d", t, tok.Type)
	}
	return p.advance(), nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []Expr{left}
	for p.check(TokenOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return OrExpr{Operands: operands}, nil
}

func (p *parser) canStartUnary() bool {
	switch p.current().Type {
	case TokenString, TokenNot, TokenLParen:
		return true
	default:
		return false
	}
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	operands := []Expr{left}
	for {
		if p.check(TokenAnd) {
			p.advance()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			operands = append(operands, right)
			continue
		}
		if p.canStartUnary() {
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			operands = append(operands, right)
			continue
		}
		break
	}
	if len(operands) == 1 {
		return operands[0], nil
	}
	return AndExpr{Operands: operands}, nil
}

func (p *parser) parseUnary() (Expr, error) {
	notCount := 0
	for p.check(TokenNot) {
		p.advance()
		notCount++
	}
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for i := 0; i < notCount; i++ {
		expr = NotExpr{Operand: expr}
	}
	return expr, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.current()

	if tok.Type == TokenString {
		p.advance()
		if tok.PropertyKey != "" {
			return PropertyMatch{Key: tok.PropertyKey, Value: tok.Value}, nil
		}
		return StringMatch{Value: tok.Value, CaseSensitive: tok.CaseSensitive}, nil
	}

	if tok.Type == TokenLParen {
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	}

	return nil, parseErrorf(tok.Position, "expected string or '(', got %s", fmt.Sprint(tok.Value))
}
