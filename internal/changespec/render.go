package changespec

import (
	"fmt"
	"strings"

	"github.com/githubnext/ace/internal/suffix"
)

func formatTimestampOrEmpty(sl HookStatusLine) string {
	if sl.Timestamp.IsZero() {
		return ""
	}
	return suffix.FormatTimestamp(sl.Timestamp)
}

// Format renders every ChangeSpec in set back to project-file text,
// each record separated by two blank lines. Project-level BUG/RUNNING
// header fields, if set, are emitted first.
func Format(set *Set) string {
	var header strings.Builder
	if set.Bug != "" {
		header.WriteString("BUG: " + set.Bug + "\n")
	}
	if len(set.RunningClaims) > 0 {
		header.WriteString("RUNNING: " + formatRunningClaims(set.RunningClaims) + "\n")
	}

	records := make([]string, 0, len(set.Specs))
	for _, cs := range set.Specs {
		records = append(records, strings.TrimRight(FormatChangeSpec(cs), "\n"))
	}
	body := strings.Join(records, "\n\n\n") + "\n"

	if header.Len() == 0 {
		return body
	}
	return header.String() + "\n" + body
}

func formatRunningClaims(claims []RunningClaim) string {
	parts := make([]string, len(claims))
	for i, c := range claims {
		parts[i] = fmt.Sprintf("(%d, %s, %s)", c.WorkspaceNum, c.Workflow, c.CLName)
	}
	return strings.Join(parts, ", ")
}

// fieldOrder is the deterministic field order spec §6 and the writer
// contract (§4.1) both require: NAME, DESCRIPTION, KICKSTART, PARENT,
// CL, STATUS, TEST TARGETS, COMMITS, HOOKS, COMMENTS. The splice
// writer inserts a previously-absent field immediately before the
// next field in this order that is present, matching "HOOKS before
// the next NAME:, COMMENTS after HOOKS".
var fieldOrder = []string{
	"NAME", "DESCRIPTION", "KICKSTART", "PARENT", "CL", "STATUS",
	"TEST TARGETS", "COMMITS", "HOOKS", "COMMENTS",
}

// renderField renders one field block of cs, or returns nil if the
// field is empty and should be omitted from the record entirely. NAME
// and STATUS are never omitted.
func renderField(field string, cs *ChangeSpec) []string {
	var text string
	switch field {
	case "NAME":
		text = "NAME: " + cs.Name + "\n"
	case "DESCRIPTION":
		if cs.Description == "" {
			return nil
		}
		text = formatMultiline("DESCRIPTION", cs.Description)
	case "KICKSTART":
		if cs.Kickstart == "" {
			return nil
		}
		text = formatMultiline("KICKSTART", cs.Kickstart)
	case "PARENT":
		if cs.Parent == "" {
			return nil
		}
		text = "PARENT: " + cs.Parent + "\n"
	case "CL":
		if cs.CL == "" {
			return nil
		}
		text = "CL: " + cs.CL + "\n"
	case "STATUS":
		statusLine := "STATUS: " + string(cs.Status)
		if cs.StatusSuffix != nil {
			statusLine += cs.StatusSuffix.Render()
		}
		text = statusLine + "\n"
	case "TEST TARGETS":
		if len(cs.TestTargets) == 0 {
			return nil
		}
		text = "TEST TARGETS: " + strings.Join(cs.TestTargets, ", ") + "\n"
	case "COMMITS":
		if len(cs.Commits) == 0 {
			return nil
		}
		var b strings.Builder
		b.WriteString("COMMITS:\n")
		for _, ce := range cs.Commits {
			b.WriteString(formatCommitEntry(ce))
		}
		text = b.String()
	case "HOOKS":
		if len(cs.Hooks) == 0 {
			return nil
		}
		var b strings.Builder
		b.WriteString("HOOKS:\n")
		for _, h := range cs.Hooks {
			b.WriteString(formatHookEntry(h))
		}
		text = b.String()
	case "COMMENTS":
		if len(cs.Comments) == 0 {
			return nil
		}
		var b strings.Builder
		b.WriteString("COMMENTS:\n")
		for _, cm := range cs.Comments {
			b.WriteString(formatCommentEntry(cm))
		}
		text = b.String()
	default:
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// FormatChangeSpec renders one ChangeSpec's field blocks in fieldOrder.
// Used for whole-record rendering (new records, tests); the writer
// itself goes through the field-by-field splice in splice.go so that
// updating one ChangeSpec never touches another field's original text.
func FormatChangeSpec(cs *ChangeSpec) string {
	var b strings.Builder
	for _, field := range fieldOrder {
		lines := renderField(field, cs)
		if lines == nil {
			continue
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func formatMultiline(field, text string) string {
	lines := strings.Split(text, "\n")
	var b strings.Builder
	b.WriteString(field + ": " + lines[0] + "\n")
	for _, l := range lines[1:] {
		b.WriteString("  " + l + "\n")
	}
	return b.String()
}

func formatCommitEntry(ce CommitEntry) string {
	line := "  (" + ce.DisplayNumber() + ") " + ce.Note
	if ce.Suffix != nil {
		line += ce.Suffix.Render()
	}
	var b strings.Builder
	b.WriteString(line + "\n")
	if ce.ChatPath != "" {
		b.WriteString("      | CHAT: " + ce.ChatPath + "\n")
	}
	if ce.DiffPath != "" {
		b.WriteString("      | DIFF: " + ce.DiffPath + "\n")
	}
	return b.String()
}

func formatHookEntry(h HookEntry) string {
	var b strings.Builder
	b.WriteString("  " + h.DisplayCommand() + "\n")
	for _, sl := range h.StatusLines {
		line := "    (" + sl.CommitEntryID + ") [" + formatTimestampOrEmpty(sl) + "] " + string(sl.Status)
		if sl.Duration != "" {
			line += " (" + sl.Duration + ")"
		}
		if sl.Suffix != nil {
			line += sl.Suffix.Render()
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func formatCommentEntry(cm CommentEntry) string {
	line := "  [" + cm.Reviewer + "] " + cm.Path
	if cm.Suffix != nil {
		line += cm.Suffix.Render()
	}
	return line + "\n"
}
