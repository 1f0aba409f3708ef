// Package statusengine mechanises the suffix transitions and status
// transitions spec §4.2 describes: setting and clearing suffixes on
// hook status lines and comments, the ChangeSpec status state machine,
// READY TO MAIL derivation, old-proposal cleanup, and terminal-status
// acknowledgement. Every exported function here operates on an
// in-memory *changespec.ChangeSpec or *changespec.Set; callers persist
// the result via changespec.Write/WriteHeader.
package statusengine

import (
	"fmt"

	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/gailog"
	"github.com/githubnext/ace/internal/suffix"
)

var log = gailog.New("ace:statusengine")

// SetHookSuffix sets the suffix on the status line for entryID (or the
// latest status line, if entryID is empty) of the named hook. If
// summary is non-empty, the rendered message becomes "MSG | SUMMARY".
// If kind is the zero value suffix.Plain and message isn't actually
// free-form, the kind is inferred from message's shape.
func SetHookSuffix(cs *changespec.ChangeSpec, command, entryID string, kind suffix.Kind, message, summary string) error {
	hook := cs.FindHook(command)
	if hook == nil {
		return fmt.Errorf("hook %q not found on %q", command, cs.Name)
	}
	line := statusLineFor(hook, entryID)
	if line == nil {
		return fmt.Errorf("no status line for entry %q on hook %q", entryID, command)
	}
	if kind == suffix.Plain && message != "" {
		kind = suffix.InferKind(message)
	}
	rendered := message
	if summary != "" {
		rendered = message + " | " + summary
	}
	line.Suffix = &suffix.Suffix{Kind: kind, Message: rendered}
	return nil
}

// ClearHookSuffix removes the suffix from the targeted status line.
func ClearHookSuffix(cs *changespec.ChangeSpec, command, entryID string) error {
	hook := cs.FindHook(command)
	if hook == nil {
		return fmt.Errorf("hook %q not found on %q", command, cs.Name)
	}
	line := statusLineFor(hook, entryID)
	if line == nil {
		return fmt.Errorf("no status line for entry %q on hook %q", entryID, command)
	}
	line.Suffix = nil
	return nil
}

// UpdateHookStatusLineSuffixType re-infers and overwrites the kind of
// an existing suffix without changing its message.
func UpdateHookStatusLineSuffixType(cs *changespec.ChangeSpec, command, entryID string) error {
	hook := cs.FindHook(command)
	if hook == nil {
		return fmt.Errorf("hook %q not found on %q", command, cs.Name)
	}
	line := statusLineFor(hook, entryID)
	if line == nil || line.Suffix == nil {
		return nil
	}
	line.Suffix.Kind = suffix.InferKind(line.Suffix.Message)
	return nil
}

func statusLineFor(hook *changespec.HookEntry, entryID string) *changespec.HookStatusLine {
	if entryID == "" {
		return hook.LatestStatusLine()
	}
	return hook.StatusLineFor(entryID)
}

// AddCommentEntry appends a comment entry, replacing any existing
// entry for the same reviewer.
func AddCommentEntry(cs *changespec.ChangeSpec, reviewer, path string) {
	for i := range cs.Comments {
		if cs.Comments[i].Reviewer == reviewer {
			cs.Comments[i].Path = path
			cs.Comments[i].Suffix = nil
			return
		}
	}
	cs.Comments = append(cs.Comments, changespec.CommentEntry{Reviewer: reviewer, Path: path})
}

// RemoveCommentEntry deletes the comment entry for reviewer, if present.
func RemoveCommentEntry(cs *changespec.ChangeSpec, reviewer string) {
	out := cs.Comments[:0]
	for _, c := range cs.Comments {
		if c.Reviewer != reviewer {
			out = append(out, c)
		}
	}
	cs.Comments = out
}

// SetCommentSuffix sets the suffix on the named reviewer's comment.
func SetCommentSuffix(cs *changespec.ChangeSpec, reviewer string, kind suffix.Kind, message string) error {
	c := cs.FindComment(reviewer)
	if c == nil {
		return fmt.Errorf("no comment entry for reviewer %q on %q", reviewer, cs.Name)
	}
	if kind == suffix.Plain && message != "" {
		kind = suffix.InferKind(message)
	}
	c.Suffix = &suffix.Suffix{Kind: kind, Message: message}
	return nil
}

// ClearCommentSuffix removes the suffix on the named reviewer's comment.
func ClearCommentSuffix(cs *changespec.ChangeSpec, reviewer string) error {
	c := cs.FindComment(reviewer)
	if c == nil {
		return fmt.Errorf("no comment entry for reviewer %q on %q", reviewer, cs.Name)
	}
	c.Suffix = nil
	return nil
}

// allowedTransitions is the explicit transition table spec §9's Open
// Question #2 asked for (decision recorded in DESIGN.md): Drafted and
// Mailed can move to each other, Mailed can move to Submitted, and any
// status can move to Reverted.
var allowedTransitions = map[changespec.Status][]changespec.Status{
	changespec.StatusDrafted: {changespec.StatusMailed},
	changespec.StatusMailed:  {changespec.StatusDrafted, changespec.StatusSubmitted},
}

// TransitionChangeSpecStatus changes cs's base status. If validate is
// true, the transition must appear in allowedTransitions or be a move
// to Reverted from any status; otherwise it is forced unconditionally.
// Any READY TO MAIL marker is stripped before the new status is set.
func TransitionChangeSpecStatus(cs *changespec.ChangeSpec, newStatus changespec.Status, validate bool) error {
	if validate && newStatus != changespec.StatusReverted {
		allowed := false
		for _, s := range allowedTransitions[cs.Status] {
			if s == newStatus {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("transition %s -> %s is not permitted", cs.Status, newStatus)
		}
	}
	RemoveReadyToMailSuffix(cs)
	cs.Status = newStatus
	return nil
}

// AddReadyToMailSuffix idempotently adds the READY TO MAIL marker.
func AddReadyToMailSuffix(cs *changespec.ChangeSpec) {
	if cs.HasReadyToMailSuffix() {
		return
	}
	cs.StatusSuffix = &suffix.Suffix{Kind: suffix.Plain, Message: changespec.ReadyToMailMessage}
}

// RemoveReadyToMailSuffix idempotently removes the READY TO MAIL marker.
func RemoveReadyToMailSuffix(cs *changespec.ChangeSpec) {
	if cs.HasReadyToMailSuffix() {
		cs.StatusSuffix = nil
	}
}

// ApplyReadyToMailDerivation runs on every fast supervisor cycle for
// each ChangeSpec. The marker is added iff: base status is Drafted; no
// error suffix exists anywhere; the parent is absent, Submitted, or
// Mailed; and every hook has a PASSED status line for the current
// accepted entry and each of its live proposals (skipping
// $-prefixed hooks on proposals). Otherwise the marker is removed.
func ApplyReadyToMailDerivation(set *changespec.Set, cs *changespec.ChangeSpec) {
	if cs.Status != changespec.StatusDrafted {
		log.Printf("%s: not ready to mail: base status is %s, not Drafted", cs.Name, cs.Status)
		RemoveReadyToMailSuffix(cs)
		return
	}
	if cs.HasAnyErrorSuffix() {
		log.Printf("%s: not ready to mail: has an error suffix", cs.Name)
		RemoveReadyToMailSuffix(cs)
		return
	}
	if !set.IsParentReadyForMail(cs) {
		log.Printf("%s: not ready to mail: parent %q is not ready", cs.Name, cs.Parent)
		RemoveReadyToMailSuffix(cs)
		return
	}
	if !AllHooksPassedForEntries(cs, cs.CurrentAndProposalEntryIDs()) {
		log.Printf("%s: not ready to mail: not every hook has passed for the current entries", cs.Name)
		RemoveReadyToMailSuffix(cs)
		return
	}
	AddReadyToMailSuffix(cs)
}

// AllHooksPassedForEntries reports whether every hook has a PASSED
// status line for each of entryIDs, skipping $-prefixed hooks against
// proposal entry ids (they are never expected to run there).
func AllHooksPassedForEntries(cs *changespec.ChangeSpec, entryIDs []string) bool {
	if len(entryIDs) == 0 {
		return false
	}
	for _, h := range cs.Hooks {
		for _, id := range entryIDs {
			if h.SkipOnProposal && isProposalID(id) {
				continue
			}
			line := h.StatusLineFor(id)
			if line == nil || line.Status != changespec.HookPassed {
				return false
			}
		}
	}
	return true
}

func isProposalID(id string) bool {
	return len(id) > 0 && id[len(id)-1] >= 'a' && id[len(id)-1] <= 'z'
}

// CleanupOldProposalSuffixes removes an error suffix from a proposal
// entry once a newer regular entry number has superseded it — the
// fix-hook outcome it described is no longer actionable.
func CleanupOldProposalSuffixes(cs *changespec.ChangeSpec) {
	current := cs.CurrentEntry()
	if current == nil {
		return
	}
	for i := range cs.Commits {
		ce := &cs.Commits[i]
		if ce.IsProposal() && ce.Number < current.Number && ce.Suffix != nil && ce.Suffix.IsError() {
			log.Printf("%s: clearing stale error suffix on superseded proposal %s", cs.Name, ce.DisplayNumber())
			ce.Suffix = nil
		}
	}
}

// AcknowledgeTerminalStatusMarkers rewrites every Error suffix across
// commits, hooks, and comments to Acknowledged once cs reaches a
// terminal status (Reverted or Submitted), preserving the message.
func AcknowledgeTerminalStatusMarkers(cs *changespec.ChangeSpec) {
	if cs.Status != changespec.StatusReverted && cs.Status != changespec.StatusSubmitted {
		return
	}
	acknowledge := func(s *suffix.Suffix) {
		if s != nil && s.IsError() {
			s.Kind = suffix.Acknowledged
		}
	}
	acknowledge(cs.StatusSuffix)
	for i := range cs.Commits {
		acknowledge(cs.Commits[i].Suffix)
	}
	for hi := range cs.Hooks {
		for si := range cs.Hooks[hi].StatusLines {
			acknowledge(cs.Hooks[hi].StatusLines[si].Suffix)
		}
	}
	for i := range cs.Comments {
		acknowledge(cs.Comments[i].Suffix)
	}
}
