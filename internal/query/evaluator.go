package query

import (
	"path/filepath"
	"strings"

	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/suffix"
)

// searchableText concatenates every field the DSL's plain string
// atoms search against: name, description, base status, project
// basename, parent, CL, kickstart, commit notes, hook commands,
// comment reviewers and paths, and every commit, hook status line and
// comment suffix rendered exactly as it appears in the project file.
func searchableText(cs *changespec.ChangeSpec) string {
	var b strings.Builder
	write := func(s string) {
		if s == "" {
			return
		}
		b.WriteString(s)
		b.WriteString("\n")
	}

	write(cs.Name)
	write(cs.Description)
	write(string(cs.Status))
	write(filepath.Base(filepath.Dir(cs.FilePath)))
	write(cs.Parent)
	write(cs.CL)
	write(cs.Kickstart)

	for _, ce := range cs.Commits {
		write(ce.Note)
		if ce.Suffix != nil {
			write(ce.Suffix.Render())
		}
	}
	for _, h := range cs.Hooks {
		write(h.DisplayCommand())
		for _, sl := range h.StatusLines {
			if sl.Suffix != nil {
				write(sl.Suffix.Render())
			}
		}
	}
	for _, cm := range cs.Comments {
		write(cm.Reviewer)
		write(cm.Path)
		if cm.Suffix != nil {
			write(cm.Suffix.Render())
		}
	}

	return b.String()
}

func matchString(text string, m StringMatch) bool {
	if m.CaseSensitive {
		return strings.Contains(text, m.Value)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(m.Value))
}

// hasAnyRunningAgentSuffix and hasAnyRunningProcessSuffix back the
// @@@/$$$ shorthands, scanning the same suffix-bearing fields
// changespec.ChangeSpec.HasAnyErrorSuffix already walks for !!!.
func hasAnyRunningAgentSuffix(cs *changespec.ChangeSpec) bool {
	return anySuffixOfKind(cs, suffix.RunningAgent)
}

func hasAnyRunningProcessSuffix(cs *changespec.ChangeSpec) bool {
	return anySuffixOfKind(cs, suffix.RunningProcess)
}

func anySuffixOfKind(cs *changespec.ChangeSpec, kind suffix.Kind) bool {
	if cs.StatusSuffix != nil && cs.StatusSuffix.Kind == kind {
		return true
	}
	for _, ce := range cs.Commits {
		if ce.Suffix != nil && ce.Suffix.Kind == kind {
			return true
		}
	}
	for _, h := range cs.Hooks {
		for _, sl := range h.StatusLines {
			if sl.Suffix != nil && sl.Suffix.Kind == kind {
				return true
			}
		}
	}
	for _, cm := range cs.Comments {
		if cm.Suffix != nil && cm.Suffix.Kind == kind {
			return true
		}
	}
	return false
}

// baseStatus returns the bare Status value status: filters match
// against. The parser already keeps any STATUS suffix (such as READY
// TO MAIL) in StatusSuffix, so no text needs stripping here.
func baseStatus(cs *changespec.ChangeSpec) string {
	return string(cs.Status)
}

func matchStatus(prop PropertyMatch, cs *changespec.ChangeSpec) bool {
	return strings.EqualFold(baseStatus(cs), prop.Value)
}

func matchProject(prop PropertyMatch, cs *changespec.ChangeSpec) bool {
	return strings.EqualFold(filepath.Base(filepath.Dir(cs.FilePath)), prop.Value)
}

// matchAncestor reports whether cs's name or any ancestor in its
// parent chain equals prop.Value, reusing Set.Ancestors for the
// cycle-safe chain walk rather than re-deriving it here. A nil set
// makes this always false.
func matchAncestor(prop PropertyMatch, cs *changespec.ChangeSpec, set *changespec.Set) bool {
	if set == nil {
		return false
	}
	if strings.EqualFold(cs.Name, prop.Value) {
		return true
	}
	for _, ancestor := range set.Ancestors(cs) {
		if strings.EqualFold(ancestor.Name, prop.Value) {
			return true
		}
	}
	return false
}

func matchProperty(prop PropertyMatch, cs *changespec.ChangeSpec, set *changespec.Set) bool {
	switch prop.Key {
	case "status":
		return matchStatus(prop, cs)
	case "project":
		return matchProject(prop, cs)
	case "ancestor":
		return matchAncestor(prop, cs, set)
	default:
		return false
	}
}

func evaluate(expr Expr, text string, cs *changespec.ChangeSpec, set *changespec.Set) bool {
	switch e := expr.(type) {
	case StringMatch:
		switch {
		case e.IsErrorSuffix():
			return cs.HasAnyErrorSuffix()
		case e.IsRunningAgent():
			return hasAnyRunningAgentSuffix(cs)
		case e.IsRunningProcess():
			return hasAnyRunningProcessSuffix(cs)
		default:
			return matchString(text, e)
		}
	case PropertyMatch:
		return matchProperty(e, cs, set)
	case NotExpr:
		return !evaluate(e.Operand, text, cs, set)
	case AndExpr:
		for _, op := range e.Operands {
			if !evaluate(op, text, cs, set) {
				return false
			}
		}
		return true
	case OrExpr:
		for _, op := range e.Operands {
			if evaluate(op, text, cs, set) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Evaluate reports whether expr matches cs. set, the Set cs was parsed
// into, is required for ancestor: filters to walk the parent chain;
// pass nil if the caller has no Set in scope (ancestor: filters then
// always evaluate false).
func Evaluate(expr Expr, cs *changespec.ChangeSpec, set *changespec.Set) bool {
	return evaluate(expr, searchableText(cs), cs, set)
}
