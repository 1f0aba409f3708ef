// Package changespec holds the ChangeSpec record model together with
// the parser and atomic writer for the project file format it is
// persisted in. Every other package in this module operates on the
// types declared here.
package changespec

import (
	"fmt"
	"time"

	"github.com/githubnext/ace/internal/gailog"
	"github.com/githubnext/ace/internal/suffix"
)

var log = gailog.New("ace:changespec")

// Status is the closed set of base ChangeSpec states.
type Status string

const (
	StatusDrafted   Status = "Drafted"
	StatusPreMailed Status = "Pre-Mailed"
	StatusMailed    Status = "Mailed"
	StatusSubmitted Status = "Submitted"
	StatusReverted  Status = "Reverted"
)

// ReadyToMailMessage is the free-form Plain suffix message that marks
// a Drafted ChangeSpec as ready for the VCS mail step.
const ReadyToMailMessage = "READY TO MAIL"

// HookStatusLineStatus is the closed set of terminal/live states a
// HookStatusLine can carry.
type HookStatusLineStatus string

const (
	HookRunning HookStatusLineStatus = "RUNNING"
	HookPassed  HookStatusLineStatus = "PASSED"
	HookFailed  HookStatusLineStatus = "FAILED"
	HookDead    HookStatusLineStatus = "DEAD"
	HookZombie  HookStatusLineStatus = "ZOMBIE"
	HookKilled  HookStatusLineStatus = "KILLED"
)

// CommitEntry is one accepted (N) or proposal (Na) revision.
type CommitEntry struct {
	Number         int
	ProposalLetter string // "" for the accepted entry, "a".."z" for proposals
	Note           string
	ChatPath       string
	DiffPath       string
	Suffix         *suffix.Suffix
}

// DisplayNumber renders the entry id as it appears in the project
// file: "N" for accepted entries, "Na" for proposals.
func (c CommitEntry) DisplayNumber() string {
	if c.ProposalLetter == "" {
		return fmt.Sprintf("%d", c.Number)
	}
	return fmt.Sprintf("%d%s", c.Number, c.ProposalLetter)
}

// IsProposal reports whether this entry is a tentative alternative to
// the accepted entry of the same Number.
func (c CommitEntry) IsProposal() bool { return c.ProposalLetter != "" }

// HookStatusLine records one run of a HookEntry against one commit
// entry id.
type HookStatusLine struct {
	CommitEntryID string // display number, e.g. "1" or "1a"
	Timestamp     time.Time
	Status        HookStatusLineStatus
	Duration      string // raw text, e.g. "12s"; empty until terminal
	Suffix        *suffix.Suffix
}

// HookEntry is one hook command together with its run history.
type HookEntry struct {
	// DisableFixHookOnFailure is the leading "!" prefix: fix-hook will
	// not be triggered for this hook's failures.
	DisableFixHookOnFailure bool
	// SkipOnProposal is the leading "$" prefix: this hook never runs
	// against proposal entries.
	SkipOnProposal bool
	// Command is the hook's shell command with prefix characters
	// already stripped.
	Command     string
	StatusLines []HookStatusLine
}

// DisplayCommand renders the hook command exactly as it appears in
// the project file, prefix characters included.
func (h HookEntry) DisplayCommand() string {
	prefix := ""
	if h.DisableFixHookOnFailure {
		prefix += "!"
	}
	if h.SkipOnProposal {
		prefix += "$"
	}
	return prefix + h.Command
}

// StatusLineFor returns the status line for entryID, if one exists.
func (h HookEntry) StatusLineFor(entryID string) *HookStatusLine {
	for i := range h.StatusLines {
		if h.StatusLines[i].CommitEntryID == entryID {
			return &h.StatusLines[i]
		}
	}
	return nil
}

// LatestStatusLine returns the most recently appended status line, or
// nil if the hook has never run.
func (h HookEntry) LatestStatusLine() *HookStatusLine {
	if len(h.StatusLines) == 0 {
		return nil
	}
	return &h.StatusLines[len(h.StatusLines)-1]
}

// HasRunningStatusLine reports whether any status line is currently
// RUNNING — at most one may be, per spec §8's invariant.
func (h HookEntry) HasRunningStatusLine() bool {
	for _, sl := range h.StatusLines {
		if sl.Status == HookRunning {
			return true
		}
	}
	return false
}

// CommentEntry is one reviewer's (or self-critique's) comment
// artefact reference.
type CommentEntry struct {
	Reviewer string // e.g. "critique" or "critique:me"
	Path     string
	Suffix   *suffix.Suffix
}

// ChangeSpec is one pending code change and all of its derived state.
type ChangeSpec struct {
	Name         string
	Description  string
	Kickstart    string
	Parent       string
	CL           string
	Status       Status
	StatusSuffix *suffix.Suffix
	TestTargets  []string
	Commits      []CommitEntry
	Hooks        []HookEntry
	Comments     []CommentEntry

	// FilePath and LineNumber are provenance only; never persisted.
	FilePath   string
	LineNumber int
}

// HasReadyToMailSuffix reports whether the status carries the
// READY TO MAIL marker.
func (c *ChangeSpec) HasReadyToMailSuffix() bool {
	return c.StatusSuffix != nil && c.StatusSuffix.Kind == suffix.Plain && c.StatusSuffix.Message == ReadyToMailMessage
}

// HasAnyErrorSuffix walks status, commits, hook status lines, and
// comments for any Error-kind suffix.
func (c *ChangeSpec) HasAnyErrorSuffix() bool {
	if c.StatusSuffix != nil && c.StatusSuffix.IsError() {
		return true
	}
	for _, ce := range c.Commits {
		if ce.Suffix != nil && ce.Suffix.IsError() {
			return true
		}
	}
	for _, h := range c.Hooks {
		for _, sl := range h.StatusLines {
			if sl.Suffix != nil && sl.Suffix.IsError() {
				return true
			}
		}
	}
	for _, cm := range c.Comments {
		if cm.Suffix != nil && cm.Suffix.IsError() {
			return true
		}
	}
	return false
}

// CurrentEntry returns the most recently numbered accepted (non-
// proposal) commit entry, or nil if there are none.
func (c *ChangeSpec) CurrentEntry() *CommitEntry {
	var best *CommitEntry
	for i := range c.Commits {
		ce := &c.Commits[i]
		if ce.IsProposal() {
			continue
		}
		if best == nil || ce.Number > best.Number {
			best = ce
		}
	}
	return best
}

// LiveProposalsFor returns every proposal entry sharing the given
// accepted entry number.
func (c *ChangeSpec) LiveProposalsFor(number int) []CommitEntry {
	var out []CommitEntry
	for _, ce := range c.Commits {
		if ce.IsProposal() && ce.Number == number {
			out = append(out, ce)
		}
	}
	return out
}

// CurrentAndProposalEntryIDs returns the display ids of the current
// accepted entry and every live proposal against it — the set a hook
// must have a PASSED status line for before READY TO MAIL can apply.
func (c *ChangeSpec) CurrentAndProposalEntryIDs() []string {
	current := c.CurrentEntry()
	if current == nil {
		return nil
	}
	ids := []string{current.DisplayNumber()}
	for _, p := range c.LiveProposalsFor(current.Number) {
		ids = append(ids, p.DisplayNumber())
	}
	return ids
}

// FindCommit looks up a commit entry by display number ("1" or "1a").
func (c *ChangeSpec) FindCommit(displayNumber string) *CommitEntry {
	for i := range c.Commits {
		if c.Commits[i].DisplayNumber() == displayNumber {
			return &c.Commits[i]
		}
	}
	return nil
}

// FindHook looks up a hook entry by its bare command (no prefix chars).
func (c *ChangeSpec) FindHook(command string) *HookEntry {
	for i := range c.Hooks {
		if c.Hooks[i].Command == command {
			return &c.Hooks[i]
		}
	}
	return nil
}

// FindComment looks up a comment entry by reviewer tag.
func (c *ChangeSpec) FindComment(reviewer string) *CommentEntry {
	for i := range c.Comments {
		if c.Comments[i].Reviewer == reviewer {
			return &c.Comments[i]
		}
	}
	return nil
}

// Set is the in-memory collection of ChangeSpecs parsed from one
// project file, together with the project-level header fields (BUG,
// RUNNING) and a name -> record lookup used by parent chain traversal.
type Set struct {
	Bug           string
	RunningClaims []RunningClaim
	Specs         []*ChangeSpec
}

// ByName returns the ChangeSpec with the given name, or nil.
func (s *Set) ByName(name string) *ChangeSpec {
	for _, cs := range s.Specs {
		if cs.Name == name {
			return cs
		}
	}
	return nil
}

// IsParentReadyForMail reports whether cs's parent (if any) is absent,
// Submitted, or Mailed — one of the three READY TO MAIL conditions.
func (s *Set) IsParentReadyForMail(cs *ChangeSpec) bool {
	if cs.Parent == "" {
		return true
	}
	parent := s.ByName(cs.Parent)
	if parent == nil {
		log.Printf("changespec %q references unknown parent %q; treating as not ready", cs.Name, cs.Parent)
		return false
	}
	return parent.Status == StatusSubmitted || parent.Status == StatusMailed
}

// IsLeaf reports whether cs has no parent, or its parent is Submitted
// — the condition under which background checks bypass the debounce
// cache on the first cycle.
func (s *Set) IsLeaf(cs *ChangeSpec) bool {
	if cs.Parent == "" {
		return true
	}
	parent := s.ByName(cs.Parent)
	return parent != nil && parent.Status == StatusSubmitted
}

// Ancestors walks the parent chain starting at cs, stopping at a cycle.
func (s *Set) Ancestors(cs *ChangeSpec) []*ChangeSpec {
	var out []*ChangeSpec
	visited := map[string]bool{cs.Name: true}
	cur := cs
	for cur.Parent != "" {
		if visited[cur.Parent] {
			log.Printf("cycle detected in parent chain at %q", cur.Parent)
			break
		}
		parent := s.ByName(cur.Parent)
		if parent == nil {
			break
		}
		visited[parent.Name] = true
		out = append(out, parent)
		cur = parent
	}
	return out
}
