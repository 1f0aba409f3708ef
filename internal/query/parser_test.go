package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuerySingleString(t *testing.T) {
	expr, err := ParseQuery(`"foobar"`)
	require.NoError(t, err)
	assert.Equal(t, StringMatch{Value: "foobar"}, expr)
}

func TestParseQueryEmptyErrors(t *testing.T) {
	_, err := ParseQuery(``)
	require.Error(t, err)
}

func TestParseQueryPropertyFilter(t *testing.T) {
	expr, err := ParseQuery(`status:Mailed`)
	require.NoError(t, err)
	assert.Equal(t, PropertyMatch{Key: "status", Value: "Mailed"}, expr)
}

func TestParseQueryNot(t *testing.T) {
	expr, err := ParseQuery(`!"draft"`)
	require.NoError(t, err)
	assert.Equal(t, NotExpr{Operand: StringMatch{Value: "draft"}}, expr)
}

func TestParseQueryDoubleNotNests(t *testing.T) {
	expr, err := ParseQuery(`!!"draft"`)
	require.NoError(t, err)
	assert.Equal(t, NotExpr{Operand: NotExpr{Operand: StringMatch{Value: "draft"}}}, expr)
}

func TestParseQueryExplicitAnd(t *testing.T) {
	expr, err := ParseQuery(`"feature" AND "test"`)
	require.NoError(t, err)
	assert.Equal(t, AndExpr{Operands: []Expr{
		StringMatch{Value: "feature"},
		StringMatch{Value: "test"},
	}}, expr)
}

func TestParseQueryImplicitAndViaJuxtaposition(t *testing.T) {
	expr, err := ParseQuery(`"feature" "test"`)
	require.NoError(t, err)
	assert.Equal(t, AndExpr{Operands: []Expr{
		StringMatch{Value: "feature"},
		StringMatch{Value: "test"},
	}}, expr)
}

func TestParseQueryOr(t *testing.T) {
	expr, err := ParseQuery(`"feature" OR "bugfix"`)
	require.NoError(t, err)
	assert.Equal(t, OrExpr{Operands: []Expr{
		StringMatch{Value: "feature"},
		StringMatch{Value: "bugfix"},
	}}, expr)
}

func TestParseQueryAndBindsTighterThanOr(t *testing.T) {
	expr, err := ParseQuery(`"a" OR "b" AND "c"`)
	require.NoError(t, err)
	assert.Equal(t, OrExpr{Operands: []Expr{
		StringMatch{Value: "a"},
		AndExpr{Operands: []Expr{StringMatch{Value: "b"}, StringMatch{Value: "c"}}},
	}}, expr)
}

func TestParseQueryParenthesesOverridePrecedence(t *testing.T) {
	expr, err := ParseQuery(`("a" OR "b") AND !"skip"`)
	require.NoError(t, err)
	assert.Equal(t, AndExpr{Operands: []Expr{
		OrExpr{Operands: []Expr{StringMatch{Value: "a"}, StringMatch{Value: "b"}}},
		NotExpr{Operand: StringMatch{Value: "skip"}},
	}}, expr)
}

func TestParseQueryWorkedExample(t *testing.T) {
	expr, err := ParseQuery(`project:proj1 AND (!!! OR status:Mailed)`)
	require.NoError(t, err)
	assert.Equal(t, AndExpr{Operands: []Expr{
		PropertyMatch{Key: "project", Value: "proj1"},
		OrExpr{Operands: []Expr{
			StringMatch{Value: shorthandErrorSuffix},
			PropertyMatch{Key: "status", Value: "Mailed"},
		}},
	}}, expr)
}

func TestParseQueryUnmatchedParenErrors(t *testing.T) {
	_, err := ParseQuery(`("a"`)
	require.Error(t, err)
}

func TestParseQueryTrailingTokensError(t *testing.T) {
	_, err := ParseQuery(`"a")`)
	require.Error(t, err)
}

func TestParseQueryCaseSensitiveAtom(t *testing.T) {
	expr, err := ParseQuery(`c"FooBar"`)
	require.NoError(t, err)
	assert.Equal(t, StringMatch{Value: "FooBar", CaseSensitive: true}, expr)
}

func TestToCanonicalStringRoundTrips(t *testing.T) {
	expr, err := ParseQuery(`("a" OR "b") AND !"skip"`)
	require.NoError(t, err)
	assert.Equal(t, `("a" OR "b") AND !"skip"`, ToCanonicalString(expr))
}

func TestToCanonicalStringShorthands(t *testing.T) {
	expr, err := ParseQuery(`!!! OR @@@ OR $$$`)
	require.NoError(t, err)
	assert.Equal(t, `!!! OR @@@ OR $$$`, ToCanonicalString(expr))
}
