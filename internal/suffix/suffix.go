// Package suffix implements the ` - (PREFIX: MSG)` decoration algebra
// that appears on ChangeSpec status, commit entries, hook status
// lines, and comment entries. Parsing and rendering are the only
// places that touch the string form; every other package consumes the
// tagged Suffix value.
package suffix

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/githubnext/ace/internal/gailog"
)

var log = gailog.New("ace:suffix")

// Kind is the tagged variant spec §9 calls for in place of the
// dynamic suffix_type strings in the source.
type Kind int

const (
	// Plain is free-form, unprefixed text (READY TO MAIL, entry
	// references, and anything the parser didn't recognize a prefix for).
	Plain Kind = iota
	// Error marks a suffix requiring attention; blocks READY TO MAIL.
	Error
	// RunningAgent marks a live workflow agent subprocess.
	RunningAgent
	// KilledAgent marks a workflow agent that was terminated.
	KilledAgent
	// RunningProcess marks a live hook subprocess.
	RunningProcess
	// PendingDeadProcess marks a pid that vanished with no exit
	// marker observed yet.
	PendingDeadProcess
	// KilledProcess marks a hook subprocess that was terminated.
	KilledProcess
	// SummarizeComplete marks a FAILED hook whose output has been
	// summarized; fix-hook becomes eligible.
	SummarizeComplete
	// Acknowledged marks a former error accepted on a terminal
	// ChangeSpec (Reverted/Submitted).
	Acknowledged
)

// prefix is the token rendered between " - (" and ": " (or alone, for
// the bare running-agent/process forms with no message yet).
func (k Kind) prefix() string {
	switch k {
	case Error:
		return "!"
	case RunningAgent:
		return "@"
	case KilledAgent:
		return "~@"
	case RunningProcess:
		return "$"
	case PendingDeadProcess:
		return "?$"
	case KilledProcess:
		return "~$"
	case SummarizeComplete:
		return "%"
	case Acknowledged:
		return "~"
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case Error:
		return "error"
	case RunningAgent:
		return "running_agent"
	case KilledAgent:
		return "killed_agent"
	case RunningProcess:
		return "running_process"
	case PendingDeadProcess:
		return "pending_dead_process"
	case KilledProcess:
		return "killed_process"
	case SummarizeComplete:
		return "summarize_complete"
	case Acknowledged:
		return "acknowledged"
	default:
		return "plain"
	}
}

// Suffix is one ` - (PREFIX: MSG)` decoration.
type Suffix struct {
	Kind    Kind
	Message string
}

// IsError reports whether this suffix is the error kind.
func (s Suffix) IsError() bool { return s.Kind == Error }

// Render produces the exact ` - (...)` text this suffix appears as in
// a project file.
func (s Suffix) Render() string {
	p := s.Kind.prefix()
	switch {
	case p == "":
		return fmt.Sprintf(" - (%s)", s.Message)
	case s.Message == "":
		return fmt.Sprintf(" - (%s)", p)
	default:
		return fmt.Sprintf(" - (%s: %s)", p, s.Message)
	}
}

// orderedPrefixes lists recognized prefix tokens longest-match-first
// so "~@:" is tried before "@:" etc.
var orderedPrefixes = []struct {
	token string
	kind  Kind
}{
	{"!:", Error},
	{"~@:", KilledAgent},
	{"~$:", KilledProcess},
	{"?$:", PendingDeadProcess},
	{"%:", SummarizeComplete},
	{"~:", Acknowledged},
	{"@:", RunningAgent},
	{"$:", RunningProcess},
}

// bareTokens are prefixes that may appear alone, with no ": MSG" at
// all — e.g. a freshly-started hook's suffix is literally "(@)" before
// the pgid is known.
var bareTokens = []struct {
	token string
	kind  Kind
}{
	{"~@", KilledAgent},
	{"~$", KilledProcess},
	{"?$", PendingDeadProcess},
	{"@", RunningAgent},
	{"$", RunningProcess},
	{"!", Error},
	{"~", Acknowledged},
	{"%", SummarizeComplete},
}

// Parse interprets the contents between "(" and ")" of a suffix
// fragment (without the surrounding " - (" ")").
func Parse(raw string) Suffix {
	for _, p := range orderedPrefixes {
		if strings.HasPrefix(raw, p.token) {
			msg := strings.TrimSpace(strings.TrimPrefix(raw, p.token))
			return Suffix{Kind: p.kind, Message: msg}
		}
	}
	for _, p := range bareTokens {
		if raw == p.token {
			return Suffix{Kind: p.kind, Message: ""}
		}
	}
	return Suffix{Kind: Plain, Message: raw}
}

var trailingSuffixPattern = regexp.MustCompile(`^(.*)\s-\s\(([^)]*)\)$`)

// Extract splits a trailing ` - (...)` decoration off of line, if
// present. The returned base has the decoration removed and trailing
// whitespace trimmed.
func Extract(line string) (base string, s *Suffix, ok bool) {
	m := trailingSuffixPattern.FindStringSubmatch(line)
	if m == nil {
		return line, nil, false
	}
	parsed := Parse(m[2])
	return strings.TrimRight(m[1], " "), &parsed, true
}

// errorMessages are free-form Error suffix messages the source treats
// as well-known, used only to infer a Kind when the caller doesn't
// supply one explicitly (set_hook_suffix with suffix_type omitted).
var errorMessages = map[string]bool{
	"ZOMBIE":                       true,
	"Hook Command Failed":          true,
	"Unresolved Critique Comments": true,
}

var (
	// agentTimestampPattern matches both the modern "<agent>-YYmmdd_HHMMSS"
	// form (e.g. "fix_hook-251230_151429") and the bare, agent-less
	// "YYmmdd_HHMMSS" form a hand-edited or legacy file may carry with
	// no dash at all.
	agentTimestampPattern = regexp.MustCompile(`^(?:\S+-)?\d{6}_\d{6}$`)
	// legacyBareDigitTimestampPattern matches the oldest bare
	// "YYmmddHHMMSS" form (12 digits, no separator).
	legacyBareDigitTimestampPattern = regexp.MustCompile(`^\d{12}$`)
	allDigitsPattern                = regexp.MustCompile(`^\d+$`)
)

// InferKind guesses a Kind from a bare message when the caller did not
// supply one explicitly, following spec §4.2's "error-set membership,
// then timestamp/pid patterns" order. The three timestamp forms this
// accepts (dashed agent-prefixed, bare 13-char, bare 12-digit) mirror
// the original's is_running_agent_suffix for legacy round-tripping.
func InferKind(message string) Kind {
	if errorMessages[message] {
		return Error
	}
	if agentTimestampPattern.MatchString(message) || legacyBareDigitTimestampPattern.MatchString(message) {
		return RunningAgent
	}
	if allDigitsPattern.MatchString(message) {
		return RunningProcess
	}
	return Plain
}

// TimestampLayout is the canonical local-zoned write format, a
// 13-character underscored form: YYmmdd_HHMMSS.
const TimestampLayout = "060102_150405"

// legacyTimestampLayout is the older bare 12-digit form, still
// accepted on read (spec §9 Open Question #1 — decision recorded in
// DESIGN.md: kept permanently, not just for migration).
const legacyTimestampLayout = "060102150405"

// Location is the fixed local zone every timestamp in a project file
// is rendered and interpreted in.
var Location = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.Local
	}
	return loc
}()

// FormatTimestamp renders t in the canonical modern form.
func FormatTimestamp(t time.Time) string {
	return t.In(Location).Format(TimestampLayout)
}

// ParseTimestamp accepts both the modern 13-char underscored form and
// the legacy bare 12-digit form.
func ParseTimestamp(s string) (time.Time, bool) {
	if t, err := time.ParseInLocation(TimestampLayout, s, Location); err == nil {
		return t, true
	}
	if len(s) == 12 {
		if t, err := time.ParseInLocation(legacyTimestampLayout, s, Location); err == nil {
			log.Printf("accepted legacy 12-digit timestamp %q", s)
			return t, true
		}
	}
	return time.Time{}, false
}

// IsZombie reports whether a timestamp-valued suffix (running_agent,
// running_process) has exceeded the zombie timeout, measured against
// now.
func IsZombie(ts time.Time, now time.Time, timeout time.Duration) bool {
	return now.Sub(ts) > timeout
}

// DefaultZombieTimeout is shared by hook RUNNING staleness, comment
// suffix staleness, and workflow agent staleness (spec §9 Open
// Question #3 — decision recorded in DESIGN.md: kept coupled).
const DefaultZombieTimeout = 2 * time.Hour
