package changespec

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/githubnext/ace/internal/suffix"
)

// RunningClaim is one entry of the project-level RUNNING: field: a
// workspace number claimed for a workflow against a ChangeSpec.
type RunningClaim struct {
	WorkspaceNum int
	Workflow     string
	CLName       string
}

var (
	reNameField       = regexp.MustCompile(`^NAME:\s*(.*)$`)
	reDescField       = regexp.MustCompile(`^DESCRIPTION:\s*(.*)$`)
	reKickstartField  = regexp.MustCompile(`^KICKSTART:\s*(.*)$`)
	reParentField     = regexp.MustCompile(`^PARENT:\s*(.*)$`)
	reCLField         = regexp.MustCompile(`^CL:\s*(.*)$`)
	reStatusField     = regexp.MustCompile(`^STATUS:\s*(.*)$`)
	reTestTargets     = regexp.MustCompile(`^TEST TARGETS:\s*(.*)$`)
	reCommitsHeader   = regexp.MustCompile(`^COMMITS:\s*$`)
	reHooksHeader     = regexp.MustCompile(`^HOOKS:\s*$`)
	reCommentsHeader  = regexp.MustCompile(`^COMMENTS:\s*$`)
	reBugField        = regexp.MustCompile(`^BUG:\s*(.*)$`)
	reRunningField    = regexp.MustCompile(`^RUNNING:\s*(.*)$`)
	reChangeSpecMark  = regexp.MustCompile(`^##\s*ChangeSpec\s*$`)
	reCommitEntryLine = regexp.MustCompile(`^  \((\d+)([a-z]?)\)\s+(.+)$`)
	reChatLine        = regexp.MustCompile(`^\s{6}\|\s*CHAT:\s*(.+)$`)
	reDiffLine        = regexp.MustCompile(`^\s{6}\|\s*DIFF:\s*(.+)$`)
	reHookHeaderLine  = regexp.MustCompile(`^  (\S.*)$`)
	reHookStatusLine  = regexp.MustCompile(`^    \((\S+)\)\s+\[([\d_]*)\]\s+(RUNNING|PASSED|FAILED|DEAD|ZOMBIE|KILLED)(?:\s+\(([^)]+)\))?\s*$`)
	reCommentLine     = regexp.MustCompile(`^  \[([^\]]+)\]\s+(\S+)\s*$`)
	reRunningClaim    = regexp.MustCompile(`\((\d+),\s*([^,]+),\s*([^)]+)\)`)
)

// Parse reads one project file's contents into a Set. Malformed field
// blocks are dropped from the in-memory record (logged, not fatal);
// the source bytes are never mutated by parsing.
func Parse(path string, data []byte) *Set {
	lines := strings.Split(string(data), "\n")
	set := &Set{}

	i := 0
	for i < len(lines) {
		line := lines[i]
		switch {
		case reBugField.MatchString(line):
			set.Bug = strings.TrimSpace(reBugField.FindStringSubmatch(line)[1])
			i++
		case reRunningField.MatchString(line):
			set.RunningClaims = ParseRunningClaims(reRunningField.FindStringSubmatch(line)[1])
			i++
		case reChangeSpecMark.MatchString(line):
			i++
		case reNameField.MatchString(line):
			cs, _, next := parseOneChangeSpec(lines, i, path)
			if cs != nil {
				set.Specs = append(set.Specs, cs)
			}
			i = next
		default:
			i++
		}
	}
	return set
}

// ParseRunningClaims parses the project-level RUNNING: field value,
// a comma-joined list of "(num, workflow, cl_name)" tuples.
func ParseRunningClaims(value string) []RunningClaim {
	var claims []RunningClaim
	for _, m := range reRunningClaim.FindAllStringSubmatch(value, -1) {
		num, err := strconv.Atoi(strings.TrimSpace(m[1]))
		if err != nil {
			continue
		}
		claims = append(claims, RunningClaim{
			WorkspaceNum: num,
			Workflow:     strings.TrimSpace(m[2]),
			CLName:       strings.TrimSpace(m[3]),
		})
	}
	return claims
}

// parseOneChangeSpec parses the ChangeSpec record starting at the
// NAME: line at lines[start]. It returns the parsed record, the line
// spans (within lines) of each of its recognized field blocks keyed
// by field name — used by the splice writer to touch only the field
// blocks that actually changed — and the index of the first line
// belonging to the next record (or EOF).
func parseOneChangeSpec(lines []string, start int, path string) (*ChangeSpec, map[string]fieldSpan, int) {
	cs := &ChangeSpec{
		FilePath:   path,
		LineNumber: start + 1,
	}
	cs.Name = strings.TrimSpace(reNameField.FindStringSubmatch(lines[start])[1])
	spans := map[string]fieldSpan{"NAME": {start, start + 1}}

	i := start + 1
	blankRun := 0
	for i < len(lines) {
		line := lines[i]

		if strings.TrimSpace(line) == "" {
			blankRun++
			if blankRun >= 2 {
				return cs, spans, i + 1
			}
			i++
			continue
		}
		blankRun = 0

		if reNameField.MatchString(line) || reChangeSpecMark.MatchString(line) {
			return cs, spans, i
		}

		fieldStart := i
		switch {
		case reDescField.MatchString(line):
			text, next := collectMultiline(lines, i, reDescField)
			cs.Description = text
			i = next
			spans["DESCRIPTION"] = fieldSpan{fieldStart, i}
		case reKickstartField.MatchString(line):
			text, next := collectMultiline(lines, i, reKickstartField)
			cs.Kickstart = text
			i = next
			spans["KICKSTART"] = fieldSpan{fieldStart, i}
		case reParentField.MatchString(line):
			cs.Parent = strings.TrimSpace(reParentField.FindStringSubmatch(line)[1])
			i++
			spans["PARENT"] = fieldSpan{fieldStart, i}
		case reCLField.MatchString(line):
			cs.CL = strings.TrimSpace(reCLField.FindStringSubmatch(line)[1])
			i++
			spans["CL"] = fieldSpan{fieldStart, i}
		case reStatusField.MatchString(line):
			raw := strings.TrimSpace(reStatusField.FindStringSubmatch(line)[1])
			base, sfx, _ := suffix.Extract(" " + raw)
			cs.Status = Status(strings.TrimSpace(base))
			cs.StatusSuffix = sfx
			i++
			spans["STATUS"] = fieldSpan{fieldStart, i}
		case reTestTargets.MatchString(line):
			raw := strings.TrimSpace(reTestTargets.FindStringSubmatch(line)[1])
			cs.TestTargets = splitCommaList(raw)
			i++
			spans["TEST TARGETS"] = fieldSpan{fieldStart, i}
		case reCommitsHeader.MatchString(line):
			i = parseCommits(lines, i+1, cs)
			spans["COMMITS"] = fieldSpan{fieldStart, i}
		case reHooksHeader.MatchString(line):
			i = parseHooks(lines, i+1, cs)
			spans["HOOKS"] = fieldSpan{fieldStart, i}
		case reCommentsHeader.MatchString(line):
			i = parseComments(lines, i+1, cs)
			spans["COMMENTS"] = fieldSpan{fieldStart, i}
		default:
			// Unrecognized line inside the record body; tolerated and
			// skipped per the parser's tolerant contract, and left
			// outside every field span so the splice writer copies it
			// through verbatim.
			log.Printf("%s:%d: skipping unrecognized line in changespec %q", path, i+1, cs.Name)
			i++
		}
	}
	return cs, spans, i
}

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// collectMultiline gathers a field's first-line value plus any
// following 2-space-indented continuation lines.
func collectMultiline(lines []string, start int, fieldRe *regexp.Regexp) (string, int) {
	first := fieldRe.FindStringSubmatch(lines[start])[1]
	var b strings.Builder
	b.WriteString(first)
	i := start + 1
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			break
		}
		if !strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "   ") {
			break
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimPrefix(line, "  "))
		i++
	}
	return b.String(), i
}

func parseCommits(lines []string, start int, cs *ChangeSpec) int {
	i := start
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			return i
		}
		m := reCommitEntryLine.FindStringSubmatch(line)
		if m == nil {
			return i
		}
		number, err := strconv.Atoi(m[1])
		if err != nil {
			log.Printf("malformed commit entry line %q", line)
			i++
			continue
		}
		note, sfx, _ := suffix.Extract(m[3])
		entry := CommitEntry{
			Number:         number,
			ProposalLetter: m[2],
			Note:           note,
			Suffix:         sfx,
		}
		i++
		for i < len(lines) {
			if cm := reChatLine.FindStringSubmatch(lines[i]); cm != nil {
				entry.ChatPath = strings.TrimSpace(cm[1])
				i++
				continue
			}
			if dm := reDiffLine.FindStringSubmatch(lines[i]); dm != nil {
				entry.DiffPath = strings.TrimSpace(dm[1])
				i++
				continue
			}
			break
		}
		cs.Commits = append(cs.Commits, entry)
	}
	return i
}

func parseHooks(lines []string, start int, cs *ChangeSpec) int {
	i := start
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			return i
		}
		if strings.HasPrefix(line, "    ") {
			// An orphaned status line with no preceding hook header;
			// tolerated and skipped.
			i++
			continue
		}
		m := reHookHeaderLine.FindStringSubmatch(line)
		if m == nil {
			return i
		}
		raw := m[1]
		hook := HookEntry{}
		for len(raw) > 0 && (raw[0] == '!' || raw[0] == '$') {
			switch raw[0] {
			case '!':
				hook.DisableFixHookOnFailure = true
			case '$':
				hook.SkipOnProposal = true
			}
			raw = raw[1:]
		}
		hook.Command = raw
		i++
		for i < len(lines) && strings.HasPrefix(lines[i], "    ") {
			base, sfx, _ := suffix.Extract(lines[i])
			sm := reHookStatusLine.FindStringSubmatch(base)
			if sm == nil {
				log.Printf("malformed hook status line %q", lines[i])
				i++
				continue
			}
			ts, _ := suffix.ParseTimestamp(sm[2])
			hook.StatusLines = append(hook.StatusLines, HookStatusLine{
				CommitEntryID: sm[1],
				Timestamp:     ts,
				Status:        HookStatusLineStatus(sm[3]),
				Duration:      sm[4],
				Suffix:        sfx,
			})
			i++
		}
		cs.Hooks = append(cs.Hooks, hook)
	}
	return i
}

func parseComments(lines []string, start int, cs *ChangeSpec) int {
	i := start
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			return i
		}
		base, sfx, _ := suffix.Extract(line)
		m := reCommentLine.FindStringSubmatch(base)
		if m == nil {
			return i
		}
		cs.Comments = append(cs.Comments, CommentEntry{
			Reviewer: m[1],
			Path:     m[2],
			Suffix:   sfx,
		})
		i++
	}
	return i
}
