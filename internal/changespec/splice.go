package changespec

import (
	"fmt"
	"strings"

	"github.com/githubnext/ace/internal/aceerr"
)

// fieldSpan is the half-open [start, end) line range, within a file's
// line slice, occupied by one field block (header line and any
// continuation/child lines included).
type fieldSpan struct {
	start, end int
}

// locateChangeSpec scans lines for the ChangeSpec record named name,
// returning its parsed form, the spans of its recognized field
// blocks, and the [start, end) line range of the whole record — the
// NAME: line through its terminating blank run or EOF. ok is false if
// no such record exists.
func locateChangeSpec(lines []string, name string) (cs *ChangeSpec, spans map[string]fieldSpan, start, end int, ok bool) {
	i := 0
	for i < len(lines) {
		line := lines[i]
		if !reNameField.MatchString(line) {
			i++
			continue
		}
		parsed, fieldSpans, next := parseOneChangeSpec(lines, i, "")
		if parsed.Name == name {
			return parsed, fieldSpans, i, next, true
		}
		i = next
	}
	return nil, nil, 0, 0, false
}

// spliceChangeSpec locates name within lines, lets mutate edit the
// parsed record, then rebuilds just that record: a field block whose
// rendered text is unchanged by mutate is copied through from the
// original bytes verbatim — malformed content a tolerant parse
// skipped over included — and only a field block mutate actually
// changed is replaced. Every line outside the record, including every
// other ChangeSpec in the file, is untouched. Returns the whole file's
// new lines.
func spliceChangeSpec(lines []string, name string, mutate func(cs *ChangeSpec) error) ([]string, error) {
	cs, spans, recordStart, recordEnd, ok := locateChangeSpec(lines, name)
	if !ok {
		return nil, aceerr.New(aceerr.IOError, fmt.Sprintf("changespec %q not found", name))
	}
	cs.FilePath = "" // provenance is irrelevant to the splice itself

	before := snapshotFields(cs)
	if err := mutate(cs); err != nil {
		return nil, err
	}

	newRecord := rebuildRecord(lines[recordStart:recordEnd], spans, recordStart, cs, before)

	out := make([]string, 0, len(lines)-(recordEnd-recordStart)+len(newRecord))
	out = append(out, lines[:recordStart]...)
	out = append(out, newRecord...)
	out = append(out, lines[recordEnd:]...)
	return out, nil
}

// snapshotFields renders every field of cs before mutate runs, so
// rebuildRecord can tell which fields mutate actually changed.
func snapshotFields(cs *ChangeSpec) map[string]string {
	snap := make(map[string]string, len(fieldOrder))
	for _, field := range fieldOrder {
		snap[field] = strings.Join(renderField(field, cs), "\n")
	}
	return snap
}

// rebuildRecord walks original (the target record's original lines)
// field span by field span: a field whose fresh rendering matches its
// pre-mutate snapshot is copied through verbatim from original,
// preserving anything the parser tolerated inside it; a field whose
// rendering changed is replaced with the fresh rendering; lines
// outside every span (unrecognized content, blank separators) are
// always copied through verbatim. Fields absent from spans that now
// render non-empty are inserted at the position fieldOrder names.
func rebuildRecord(original []string, spans map[string]fieldSpan, recordStart int, cs *ChangeSpec, before map[string]string) []string {
	starts := make(map[int]string, len(spans))
	ends := make(map[int]int, len(spans))
	for field, sp := range spans {
		rel := sp.start - recordStart
		starts[rel] = field
		ends[rel] = sp.end - recordStart
	}

	var out []string
	present := make(map[string]bool, len(spans))
	outStart := make(map[string]int, len(spans))
	i := 0
	for i < len(original) {
		field, isField := starts[i]
		if !isField {
			out = append(out, original[i])
			i++
			continue
		}
		present[field] = true
		outStart[field] = len(out)
		end := ends[i]

		rendered := renderField(field, cs)
		switch {
		case strings.Join(rendered, "\n") == before[field]:
			out = append(out, original[i:end]...)
		case rendered != nil:
			out = append(out, rendered...)
		}
		i = end
	}

	for idx, field := range fieldOrder {
		if present[field] {
			continue
		}
		lines := renderField(field, cs)
		if lines == nil {
			continue
		}
		insertAt := len(out)
		for _, later := range fieldOrder[idx+1:] {
			if pos, ok := outStart[later]; ok {
				insertAt = pos
				break
			}
		}
		if insertAt == len(out) {
			for insertAt > 0 && strings.TrimSpace(out[insertAt-1]) == "" {
				insertAt--
			}
		}
		out = insertLines(out, insertAt, lines)
		for f, pos := range outStart {
			if pos >= insertAt {
				outStart[f] = pos + len(lines)
			}
		}
		outStart[field] = insertAt
	}

	return out
}

// locateHeaderFields finds the project-level BUG: and RUNNING: lines
// in a project file's preamble — the lines before its first
// ChangeSpec record — and the index at which records begin, the
// deterministic insertion point for a header field that doesn't yet
// exist.
func locateHeaderFields(lines []string) (bugSpan, runningSpan fieldSpan, hasBug, hasRunning bool, recordsStart int) {
	recordsStart = len(lines)
	for i, line := range lines {
		switch {
		case reBugField.MatchString(line):
			bugSpan, hasBug = fieldSpan{i, i + 1}, true
		case reRunningField.MatchString(line):
			runningSpan, hasRunning = fieldSpan{i, i + 1}, true
		case reNameField.MatchString(line) || reChangeSpecMark.MatchString(line):
			recordsStart = i
			return
		}
	}
	return
}

// spliceHeader lets mutate edit a freshly parsed Set, then rewrites
// only the BUG:/RUNNING: preamble lines whose rendering actually
// changed, leaving every record and every other preamble line (and
// the file's single shared Set parse cost) otherwise untouched.
func spliceHeader(lines []string, path string, mutate func(set *Set) error) ([]string, error) {
	set := Parse(path, []byte(strings.Join(lines, "\n")))

	beforeBug := formatBugLine(set.Bug)
	beforeRunning := formatRunningLine(set.RunningClaims)

	if err := mutate(set); err != nil {
		return nil, err
	}

	bugSpan, runningSpan, hasBug, hasRunning, recordsStart := locateHeaderFields(lines)
	pre := rebuildHeader(lines[:recordsStart], bugSpan, runningSpan, hasBug, hasRunning, set, beforeBug, beforeRunning)

	out := make([]string, 0, len(pre)+len(lines)-recordsStart)
	out = append(out, pre...)
	out = append(out, lines[recordsStart:]...)
	return out, nil
}

func formatBugLine(bug string) string {
	if bug == "" {
		return ""
	}
	return "BUG: " + bug
}

func formatRunningLine(claims []RunningClaim) string {
	if len(claims) == 0 {
		return ""
	}
	return "RUNNING: " + formatRunningClaims(claims)
}

func rebuildHeader(pre []string, bugSpan, runningSpan fieldSpan, hasBug, hasRunning bool, set *Set, beforeBug, beforeRunning string) []string {
	starts := map[int]string{}
	ends := map[int]int{}
	if hasBug {
		starts[bugSpan.start] = "BUG"
		ends[bugSpan.start] = bugSpan.end
	}
	if hasRunning {
		starts[runningSpan.start] = "RUNNING"
		ends[runningSpan.start] = runningSpan.end
	}

	after := map[string]string{"BUG": formatBugLine(set.Bug), "RUNNING": formatRunningLine(set.RunningClaims)}
	before := map[string]string{"BUG": beforeBug, "RUNNING": beforeRunning}

	var out []string
	present := map[string]bool{}
	outStart := map[string]int{}
	i := 0
	for i < len(pre) {
		field, isField := starts[i]
		if !isField {
			out = append(out, pre[i])
			i++
			continue
		}
		present[field] = true
		outStart[field] = len(out)
		end := ends[i]
		switch {
		case after[field] == before[field]:
			out = append(out, pre[i:end]...)
		case after[field] != "":
			out = append(out, after[field])
		}
		i = end
	}

	for idx, field := range []string{"BUG", "RUNNING"} {
		if present[field] || after[field] == "" {
			continue
		}
		insertAt := len(out)
		for _, later := range []string{"BUG", "RUNNING"}[idx+1:] {
			if pos, ok := outStart[later]; ok {
				insertAt = pos
				break
			}
		}
		out = insertLines(out, insertAt, []string{after[field]})
	}

	return out
}

func insertLines(dst []string, at int, lines []string) []string {
	out := make([]string, 0, len(dst)+len(lines))
	out = append(out, dst[:at]...)
	out = append(out, lines...)
	out = append(out, dst[at:]...)
	return out
}
