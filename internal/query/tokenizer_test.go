package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/ace/internal/aceerr"
)

func tokenTypes(tokens []Token) []TokenType {
	types := make([]TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
	}
	return types
}

func TestTokenizeQuotedStringIsCaseInsensitiveByDefault(t *testing.T) {
	tokens, err := Tokenize(`"foobar"`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokenString, tokens[0].Type)
	assert.Equal(t, "foobar", tokens[0].Value)
	assert.False(t, tokens[0].CaseSensitive)
	assert.Equal(t, TokenEOF, tokens[1].Type)
}

func TestTokenizeCaseSensitiveString(t *testing.T) {
	tokens, err := Tokenize(`c"FooBar"`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "FooBar", tokens[0].Value)
	assert.True(t, tokens[0].CaseSensitive)
}

func TestTokenizeStringEscapeSequences(t *testing.T) {
	tokens, err := Tokenize(`"a\"b\\c\nd"`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "a\"b\\c\nd", tokens[0].Value)
}

func TestTokenizeUnterminatedStringErrors(t *testing.T) {
	_, err := Tokenize(`"unterminated`)
	require.Error(t, err)
	assert.True(t, aceerr.Is(err, aceerr.ParseError))
}

func TestTokenizeBareWordShorthand(t *testing.T) {
	tokens, err := Tokenize(`@foobar`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokenString, tokens[0].Type)
	assert.Equal(t, "foobar", tokens[0].Value)
}

func TestTokenizeEmptyBareWordErrors(t *testing.T) {
	_, err := Tokenize(`@`)
	require.Error(t, err)
}

func TestTokenizeErrorSuffixShorthand(t *testing.T) {
	tokens, err := Tokenize(`!!!`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, shorthandErrorSuffix, tokens[0].Value)
}

func TestTokenizeRunningAgentShorthand(t *testing.T) {
	tokens, err := Tokenize(`@@@`)
	require.NoError(t, err)
	assert.Equal(t, shorthandRunningAgent, tokens[0].Value)
}

func TestTokenizeRunningProcessShorthand(t *testing.T) {
	tokens, err := Tokenize(`$$$`)
	require.NoError(t, err)
	assert.Equal(t, shorthandRunningProcess, tokens[0].Value)
}

func TestTokenizeSingleBangIsNot(t *testing.T) {
	tokens, err := Tokenize(`!"draft"`)
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, TokenNot, tokens[0].Type)
	assert.Equal(t, TokenString, tokens[1].Type)
}

func TestTokenizeKeywordsCaseInsensitive(t *testing.T) {
	tokens, err := Tokenize(`"a" and "b" or "c"`)
	require.NoError(t, err)
	assert.Equal(t,
		[]TokenType{TokenString, TokenAnd, TokenString, TokenOr, TokenString, TokenEOF},
		tokenTypes(tokens))
}

func TestTokenizeUnknownKeywordErrors(t *testing.T) {
	_, err := Tokenize(`foo`)
	require.Error(t, err)
	assert.True(t, aceerr.Is(err, aceerr.ParseError))
}

func TestTokenizeParens(t *testing.T) {
	tokens, err := Tokenize(`("a" OR "b")`)
	require.NoError(t, err)
	assert.Equal(t,
		[]TokenType{TokenLParen, TokenString, TokenOr, TokenString, TokenRParen, TokenEOF},
		tokenTypes(tokens))
}

func TestTokenizePropertyFilter(t *testing.T) {
	tokens, err := Tokenize(`status:Mailed`)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "status", tokens[0].PropertyKey)
	assert.Equal(t, "Mailed", tokens[0].Value)
}

func TestTokenizePropertyFilterEmptyValueErrors(t *testing.T) {
	_, err := Tokenize(`status:`)
	require.Error(t, err)
}

func TestTokenizeUnexpectedCharacterErrors(t *testing.T) {
	_, err := Tokenize(`#`)
	require.Error(t, err)
}

func TestTokenizeImplicitAndJuxtaposition(t *testing.T) {
	tokens, err := Tokenize(`"feature" "test"`)
	require.NoError(t, err)
	assert.Equal(t,
		[]TokenType{TokenString, TokenString, TokenEOF},
		tokenTypes(tokens))
}
