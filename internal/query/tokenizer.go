// Package query implements the small boolean filter DSL used to
// select ChangeSpecs: quoted/case-sensitive/bare-word string atoms,
// status:/project:/ancestor: property filters, the !!!/@@@/$$$
// shorthands, prefix NOT, and AND/OR with juxtaposed-atom implicit
// AND. tokenizer.go, parser.go, and evaluator.go mirror that three-
// stage pipeline directly.
package query

import (
	"fmt"
	"strings"

	"github.com/githubnext/ace/internal/aceerr"
)

// TokenType is the closed set of lexical token kinds the tokenizer
// produces.
type TokenType int

const (
	TokenString TokenType = iota
	TokenAnd
	TokenOr
	TokenNot
	TokenLParen
	TokenRParen
	TokenEOF
)

// Token is one lexical unit. Value carries the unescaped string body
// for TokenString; PropertyKey is non-empty only for a "key:value"
// property filter atom.
type Token struct {
	Type          TokenType
	Value         string
	PropertyKey   string
	CaseSensitive bool
	Position      int
}

func isKeywordChar(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isBareStringChar(r byte) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

// Tokenize lexes a query string in full, returning its token stream
// terminated by a TokenEOF, or a ParseError-kind error on the first
// malformed construct (an unterminated string, an empty bare word, or
// an unrecognized keyword/character).
func Tokenize(q string) ([]Token, error) {
	var tokens []Token
	pos := 0
	n := len(q)

	for pos < n {
		for pos < n && (q[pos] == ' ' || q[pos] == '\t' || q[pos] == '\r' || q[pos] == '\n') {
			pos++
		}
		if pos >= n {
			break
		}

		c := q[pos]
		switch {
		case c == 'c' && pos+1 < n && q[pos+1] == '"':
			tok, next, err := parseString(q, pos+1, true)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			pos = next

		case c == '"':
			tok, next, err := parseString(q, pos, false)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			pos = next

		case c == '!' && pos+2 < n && q[pos+1] == '!' && q[pos+2] == '!':
			tokens = append(tokens, Token{Type: TokenString, Value: shorthandErrorSuffix, Position: pos})
			pos += 3

		case c == '@' && pos+2 < n && q[pos+1] == '@' && q[pos+2] == '@':
			tokens = append(tokens, Token{Type: TokenString, Value: shorthandRunningAgent, Position: pos})
			pos += 3

		case c == '$' && pos+2 < n && q[pos+1] == '$' && q[pos+2] == '$':
			tokens = append(tokens, Token{Type: TokenString, Value: shorthandRunningProcess, Position: pos})
			pos += 3

		case c == '@':
			tok, next, err := parseBareString(q, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			pos = next

		case isKeywordChar(c):
			tok, next, err := parseKeywordOrProperty(q, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			pos = next

		case c == '!':
			tokens = append(tokens, Token{Type: TokenNot, Value: "!", Position: pos})
			pos++

		case c == '(':
			tokens = append(tokens, Token{Type: TokenLParen, Value: "(", Position: pos})
			pos++

		case c == ')':
			tokens = append(tokens, Token{Type: TokenRParen, Value: ")", Position: pos})
			pos++

		default:
			return nil, parseErrorf(pos, "unexpected character %q", c)
		}
	}

	tokens = append(tokens, Token{Type: TokenEOF, Position: pos})
	return tokens, nil
}

func parseString(q string, pos int, caseSensitive bool) (Token, int, error) {
	start := pos
	pos++ // opening quote
	var b strings.Builder
	for pos < len(q) {
		c := q[pos]
		switch c {
		case '"':
			return Token{Type: TokenString, Value: b.String(), CaseSensitive: caseSensitive, Position: start}, pos + 1, nil
		case '\\':
			if pos+1 >= len(q) {
				return Token{}, 0, parseErrorf(pos, "unterminated escape sequence")
			}
			switch q[pos+1] {
			case '\\':
				b.WriteByte('\\')
			case '"':
				b.WriteByte('"')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				return Token{}, 0, parseErrorf(pos, "invalid escape sequence \\%c", q[pos+1])
			}
			pos += 2
		default:
			b.WriteByte(c)
			pos++
		}
	}
	return Token{}, 0, parseErrorf(start, "unterminated string")
}

func parseBareString(q string, pos int) (Token, int, error) {
	start := pos
	pos++ // @
	valueStart := pos
	for pos < len(q) && isBareStringChar(q[pos]) {
		pos++
	}
	if pos == valueStart {
		return Token{}, 0, parseErrorf(start, "empty bare string after @")
	}
	return Token{Type: TokenString, Value: q[valueStart:pos], Position: start}, pos, nil
}

// propertyKeys are the recognized "key:value" property filter prefixes.
var propertyKeys = map[string]bool{"status": true, "project": true, "ancestor": true}

// parseKeywordOrProperty parses an alphabetic run and, if immediately
// followed by ':', the bare-word value of a property filter atom
// (e.g. status:Mailed); otherwise it must be the AND/OR keyword.
func parseKeywordOrProperty(q string, pos int) (Token, int, error) {
	start := pos
	for pos < len(q) && isKeywordChar(q[pos]) {
		pos++
	}
	word := q[start:pos]

	if pos < len(q) && q[pos] == ':' && propertyKeys[strings.ToLower(word)] {
		pos++ // ':'
		valueStart := pos
		for pos < len(q) && isBareStringChar(q[pos]) {
			pos++
		}
		if pos == valueStart {
			return Token{}, 0, parseErrorf(start, "empty property value for %q", word)
		}
		return Token{Type: TokenString, PropertyKey: strings.ToLower(word), Value: q[valueStart:pos], Position: start}, pos, nil
	}

	switch strings.ToUpper(word) {
	case "AND":
		return Token{Type: TokenAnd, Value: word, Position: start}, pos, nil
	case "OR":
		return Token{Type: TokenOr, Value: word, Position: start}, pos, nil
	default:
		return Token{}, 0, parseErrorf(start, "unknown keyword: %s", word)
	}
}

func parseErrorf(pos int, format string, args ...any) error {
	return aceerr.New(aceerr.ParseError, fmt.Sprintf(format, args...)+fmt.Sprintf(" at position %d", pos))
}
