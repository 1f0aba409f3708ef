package query

import "strings"

// Expr is the closed set of query AST node types: StringMatch,
// PropertyMatch, NotExpr, AndExpr, OrExpr.
type Expr interface {
	isExpr()
}

// Well-known internal markers the !!!/@@@/$$$ shorthands expand to;
// ToCanonicalString renders them back to their shorthand form rather
// than these internal values.
const (
	shorthandErrorSuffix    = "\x00error-suffix\x00"
	shorthandRunningAgent   = "\x00running-agent\x00"
	shorthandRunningProcess = "\x00running-process\x00"
)

// StringMatch is a substring match against a ChangeSpec's searchable
// text, or one of the !!!/@@@/$$$ shorthands recognized by Value.
type StringMatch struct {
	Value         string
	CaseSensitive bool
}

func (StringMatch) isExpr() {}

// IsErrorSuffix reports whether this atom is the !!! shorthand.
func (s StringMatch) IsErrorSuffix() bool { return s.Value == shorthandErrorSuffix }

// IsRunningAgent reports whether this atom is the @@@ shorthand.
func (s StringMatch) IsRunningAgent() bool { return s.Value == shorthandRunningAgent }

// IsRunningProcess reports whether this atom is the $$$ shorthand.
func (s StringMatch) IsRunningProcess() bool { return s.Value == shorthandRunningProcess }

// PropertyMatch is a "key:value" filter against a specific
// ChangeSpec field: status, project, or ancestor.
type PropertyMatch struct {
	Key   string
	Value string
}

func (PropertyMatch) isExpr() {}

// NotExpr negates its operand.
type NotExpr struct {
	Operand Expr
}

func (NotExpr) isExpr() {}

// AndExpr requires every operand to match.
type AndExpr struct {
	Operands []Expr
}

func (AndExpr) isExpr() {}

// OrExpr requires at least one operand to match.
type OrExpr struct {
	Operands []Expr
}

func (OrExpr) isExpr() {}

func escapeStringValue(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return r.Replace(v)
}

// ToCanonicalString renders expr back to a normalized query string:
// explicit uppercase AND/OR, quoted string atoms, and parens around
// every OR group inside an AND, every AND group inside an OR, and
// every AND/OR operand of a NOT.
func ToCanonicalString(expr Expr) string {
	switch e := expr.(type) {
	case StringMatch:
		switch {
		case e.IsErrorSuffix():
			return "!!!"
		case e.IsRunningAgent():
			return "@@@"
		case e.IsRunningProcess():
			return "$$$"
		}
		escaped := escapeStringValue(e.Value)
		if e.CaseSensitive {
			return `c"` + escaped + `"`
		}
		return `"` + escaped + `"`
	case PropertyMatch:
		return e.Key + ":" + e.Value
	case NotExpr:
		inner := ToCanonicalString(e.Operand)
		switch e.Operand.(type) {
		case AndExpr, OrExpr:
			return "!(" + inner + ")"
		default:
			return "!" + inner
		}
	case AndExpr:
		parts := make([]string, len(e.Operands))
		for i, op := range e.Operands {
			inner := ToCanonicalString(op)
			if _, ok := op.(OrExpr); ok {
				inner = "(" + inner + ")"
			}
			parts[i] = inner
		}
		return strings.Join(parts, " AND ")
	case OrExpr:
		parts := make([]string, len(e.Operands))
		for i, op := range e.Operands {
			inner := ToCanonicalString(op)
			if _, ok := op.(AndExpr); ok {
				inner = "(" + inner + ")"
			}
			parts[i] = inner
		}
		return strings.Join(parts, " OR ")
	default:
		return ""
	}
}
