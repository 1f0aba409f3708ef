// Package workflows starts, polls, and auto-accepts the three families
// of agent workflows a supervisor cycle drives to completion: fix-hook
// (resolves a summarized FAILED hook by proposing a fix), summarize-hook
// (produces the machine-readable summary fix-hook needs), and crs
// (code-review sync, resolving reviewer or self-critique comments).
// Eligibility, sentinel parsing, and auto-accept are pure functions over
// in-memory changespec values; workspace allocation and persistence are
// the caller's responsibility, matching internal/hooks's layering.
package workflows

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/githubnext/ace/internal/aceerr"
	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/gailog"
	"github.com/githubnext/ace/internal/suffix"
	"github.com/githubnext/ace/internal/vcs"
)

var log = gailog.New("ace:workflows")

// Kind identifies a workflow family. It doubles as the suffix message's
// agent prefix ("<kind>-<timestamp>").
type Kind string

const (
	FixHook       Kind = "fix_hook"
	SummarizeHook Kind = "summarize_hook"
	CRS           Kind = "crs"
)

// outputKind renders the dash-separated form a workflow's output file
// name uses, distinct from the underscore-separated suffix prefix.
func (k Kind) outputKind() string {
	return strings.ReplaceAll(string(k), "_", "-")
}

// HookCommandFailed and UnresolvedCritiqueComments are the well-known
// error suffix messages set_hook_suffix/set_comment_suffix record when
// a completed workflow exits non-zero (or a fix-hook run reports no
// proposal, or auto-accept fails). A run that never writes its
// sentinel gets the "ZOMBIE" error once it passes the zombie timeout.
const (
	HookCommandFailed          = "Hook Command Failed"
	UnresolvedCritiqueComments = "Unresolved Critique Comments"
)

// isProposalEntryID reports whether entryID names a proposal ("2a").
// Duplicated from internal/hooks rather than shared, the same call this
// module's suffix/statusengine split made: the predicate is three lines
// and not worth an import for.
func isProposalEntryID(entryID string) bool {
	return entryID != "" && entryID[len(entryID)-1] >= 'a' && entryID[len(entryID)-1] <= 'z'
}

// NeedsFixHook reports whether hook is eligible for a fix-hook workflow
// against entryID: the entry is not a proposal, its status line is
// FAILED, and the summariser has already attached a summarize_complete
// suffix.
func NeedsFixHook(hook *changespec.HookEntry, entryID string) bool {
	if isProposalEntryID(entryID) {
		return false
	}
	line := hook.StatusLineFor(entryID)
	if line == nil || line.Status != changespec.HookFailed {
		return false
	}
	return line.Suffix != nil && line.Suffix.Kind == suffix.SummarizeComplete
}

// FixHookEntries filters entryIDs down to those NeedsFixHook accepts.
func FixHookEntries(hook *changespec.HookEntry, entryIDs []string) []string {
	var out []string
	for _, id := range entryIDs {
		if NeedsFixHook(hook, id) {
			out = append(out, id)
		}
	}
	return out
}

// NeedsSummarizeHook reports whether hook is eligible for a
// summarize-hook workflow against entryID: the status line is FAILED
// and carries no suffix yet. Both proposal and non-proposal entries are
// eligible — a non-proposal entry proceeds to fix-hook once summarized.
func NeedsSummarizeHook(hook *changespec.HookEntry, entryID string) bool {
	line := hook.StatusLineFor(entryID)
	if line == nil || line.Status != changespec.HookFailed {
		return false
	}
	return line.Suffix == nil
}

// SummarizeHookEntries filters entryIDs down to those NeedsSummarizeHook
// accepts.
func SummarizeHookEntries(hook *changespec.HookEntry, entryIDs []string) []string {
	var out []string
	for _, id := range entryIDs {
		if NeedsSummarizeHook(hook, id) {
			out = append(out, id)
		}
	}
	return out
}

// crsReviewers are the only comment reviewer tags a CRS workflow acts
// on: external critique and self-critique.
var crsReviewers = map[string]bool{"critique": true, "critique:me": true}

// NeedsCRS returns the reviewer tags with an unresolved comment entry
// (no suffix yet — neither running, nor already flagged as an error) on
// a ChangeSpec in Mailed or Drafted status.
func NeedsCRS(cs *changespec.ChangeSpec) []string {
	if cs.Status != changespec.StatusMailed && cs.Status != changespec.StatusDrafted {
		return nil
	}
	var out []string
	for _, c := range cs.Comments {
		if crsReviewers[c.Reviewer] && c.Suffix == nil {
			out = append(out, c.Reviewer)
		}
	}
	return out
}

// AgentSuffixMessage renders the "<kind>-<timestamp>" suffix message a
// started workflow's status line or comment entry carries.
func AgentSuffixMessage(kind Kind, ts time.Time) string {
	return fmt.Sprintf("%s-%s", kind, suffix.FormatTimestamp(ts))
}

var (
	fixHookRunningPattern       = regexp.MustCompile(`^fix_hook-\d{6}_\d{6}$`)
	summarizeHookRunningPattern = regexp.MustCompile(`^summarize_hook-\d{6}_\d{6}$`)
	crsRunningPattern           = regexp.MustCompile(`^crs-\d{6}_\d{6}$`)
	legacyRunningPattern        = regexp.MustCompile(`^\d{6}_\d{6}$`)
)

// RunningWorkflow names one in-flight workflow: the hook command or
// reviewer tag it runs against, and the raw timestamp token its suffix
// message carries (with any "<kind>-" prefix already stripped).
type RunningWorkflow struct {
	Subject   string
	Timestamp string
}

func stripKindPrefix(kind Kind, message string) (string, bool) {
	if prefix := string(kind) + "-"; strings.HasPrefix(message, prefix) {
		return strings.TrimPrefix(message, prefix), true
	}
	if legacyRunningPattern.MatchString(message) {
		return message, true
	}
	return "", false
}

// RunningFixHookWorkflows returns every hook whose latest status line
// is a non-proposal entry carrying a running fix-hook suffix.
func RunningFixHookWorkflows(cs *changespec.ChangeSpec) []RunningWorkflow {
	var out []RunningWorkflow
	for _, h := range cs.Hooks {
		sl := h.LatestStatusLine()
		if sl == nil || sl.Suffix == nil || isProposalEntryID(sl.CommitEntryID) {
			continue
		}
		msg := sl.Suffix.Message
		if !fixHookRunningPattern.MatchString(msg) && !legacyRunningPattern.MatchString(msg) {
			continue
		}
		ts, ok := stripKindPrefix(FixHook, msg)
		if !ok {
			continue
		}
		out = append(out, RunningWorkflow{Subject: h.Command, Timestamp: ts})
	}
	return out
}

// RunningSummarizeHookWorkflows returns every hook whose latest status
// line is a proposal entry carrying a running summarize-hook suffix.
func RunningSummarizeHookWorkflows(cs *changespec.ChangeSpec) []RunningWorkflow {
	var out []RunningWorkflow
	for _, h := range cs.Hooks {
		sl := h.LatestStatusLine()
		if sl == nil || sl.Suffix == nil || !isProposalEntryID(sl.CommitEntryID) {
			continue
		}
		msg := sl.Suffix.Message
		if !summarizeHookRunningPattern.MatchString(msg) && !legacyRunningPattern.MatchString(msg) {
			continue
		}
		ts, ok := stripKindPrefix(SummarizeHook, msg)
		if !ok {
			continue
		}
		out = append(out, RunningWorkflow{Subject: h.Command, Timestamp: ts})
	}
	return out
}

// RunningCRSWorkflows returns every critique/critique:me comment entry
// carrying a running crs suffix.
func RunningCRSWorkflows(cs *changespec.ChangeSpec) []RunningWorkflow {
	var out []RunningWorkflow
	for _, c := range cs.Comments {
		if !crsReviewers[c.Reviewer] || c.Suffix == nil {
			continue
		}
		msg := c.Suffix.Message
		if !crsRunningPattern.MatchString(msg) && !legacyRunningPattern.MatchString(msg) {
			continue
		}
		ts, ok := stripKindPrefix(CRS, msg)
		if !ok {
			continue
		}
		out = append(out, RunningWorkflow{Subject: c.Reviewer, Timestamp: ts})
	}
	return out
}

var safeFilenamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeFilename(name string) string {
	return safeFilenamePattern.ReplaceAllString(name, "-")
}

// OutputPath returns the per-run output file a workflow agent's
// stdout/stderr is redirected to under workflowsDir (typically
// ~/.gai/workflows).
func OutputPath(workflowsDir, name string, kind Kind, timestamp string) string {
	return fmt.Sprintf("%s/%s-%s-%s.txt", strings.TrimRight(workflowsDir, "/"), safeFilename(name), kind.outputKind(), timestamp)
}

// StartBackground spawns command detached (its own session) in workDir
// with stdout+stderr redirected to outputPath, and returns the child's
// pid. Unlike a hook, a workflow agent is expected to write its own
// completion sentinel; no wrapper script is interposed.
func StartBackground(ctx context.Context, workDir, outputPath, command string) (int, error) {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return 0, aceerr.Wrap(aceerr.IOError, "creating workflow output file", err)
	}
	defer outFile.Close()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workDir
	cmd.Stdout = outFile
	cmd.Stderr = outFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, aceerr.Wrap(aceerr.NonZeroExit, "starting workflow "+command, err)
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	log.Printf("started workflow %q pid %d output %s", command, pid, outputPath)
	return pid, nil
}

// CompletionSentinel prefixes the line a workflow agent writes once it
// has finished, up to the proposal id field.
const CompletionSentinel = "===WORKFLOW_COMPLETE==="

var completionPattern = regexp.MustCompile(`===WORKFLOW_COMPLETE=== PROPOSAL_ID: (\S+) EXIT_CODE: (-?\d+)`)

// Completion is the parsed result of a terminated workflow run.
// ProposalID is empty when the agent reported "None".
type Completion struct {
	ProposalID string
	ExitCode   int
}

// ParseCompletion scans content for the last completion sentinel.
func ParseCompletion(content string) (Completion, bool) {
	matches := completionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return Completion{}, false
	}
	last := matches[len(matches)-1]
	code, err := strconv.Atoi(last[2])
	if err != nil {
		code = 1
	}
	id := last[1]
	if id == "None" {
		id = ""
	}
	return Completion{ProposalID: id, ExitCode: code}, true
}

// CheckCompletion reads outputPath and reports the parsed completion,
// if the sentinel is present. ok is false while the workflow is still
// running (including when the output file does not exist yet).
func CheckCompletion(outputPath string) (Completion, bool, error) {
	content, err := os.ReadFile(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Completion{}, false, nil
		}
		return Completion{}, false, aceerr.Wrap(aceerr.IOError, "reading workflow output "+outputPath, err)
	}
	return ParseCompletion(string(content))
}

// IsZombie reports whether a running workflow's suffix timestamp has
// exceeded the zombie threshold — the cue to demote its suffix to the
// error "ZOMBIE" without ever having seen a completion sentinel.
func IsZombie(timestamp string, now time.Time, timeout time.Duration) bool {
	ts, ok := suffix.ParseTimestamp(timestamp)
	if !ok {
		return false
	}
	return suffix.IsZombie(ts, now, timeout)
}

// ProposalRef names a proposal commit entry by its base entry number
// and proposal letter, e.g. "2a" -> {Number: 2, Letter: "a"}.
type ProposalRef struct {
	Number int
	Letter string
}

var proposalIDPattern = regexp.MustCompile(`^(\d+)([a-z]+)$`)

// ParseProposalID parses a proposal display id such as "2a".
func ParseProposalID(id string) (ProposalRef, bool) {
	m := proposalIDPattern.FindStringSubmatch(id)
	if m == nil {
		return ProposalRef{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return ProposalRef{}, false
	}
	return ProposalRef{Number: n, Letter: m[2]}, true
}

// DisplayID renders a ProposalRef as it appears in the project file.
func (p ProposalRef) DisplayID() string {
	return fmt.Sprintf("%d%s", p.Number, p.Letter)
}

// ApplyProposal stages proposalID's diff into workspaceDir and amends
// the working commit with the proposal's note. It does not touch the
// in-memory ChangeSpec; call RenumberHistoryEntries afterward on
// success to promote the proposal.
func ApplyProposal(ctx context.Context, client vcs.Client, cs *changespec.ChangeSpec, proposalID, workspaceDir string) error {
	entry := cs.FindCommit(proposalID)
	if entry == nil {
		return aceerr.New(aceerr.ParseError, fmt.Sprintf("proposal %q not found on %q", proposalID, cs.Name))
	}
	if entry.DiffPath == "" {
		return aceerr.New(aceerr.ParseError, fmt.Sprintf("proposal %q has no diff", proposalID))
	}
	if err := client.ApplyPatch(ctx, workspaceDir, entry.DiffPath); err != nil {
		return err
	}
	return client.Amend(ctx, workspaceDir, entry.Note)
}

// RenumberHistoryEntries promotes the proposal named by ref to its base
// number (clearing the proposal letter) and drops every other commit
// entry sharing that number — the superseded accepted entry and any
// sibling proposals. Reports whether a matching proposal was found.
func RenumberHistoryEntries(cs *changespec.ChangeSpec, ref ProposalRef) bool {
	promoted := false
	out := cs.Commits[:0]
	for _, ce := range cs.Commits {
		if ce.Number != ref.Number {
			out = append(out, ce)
			continue
		}
		if ce.ProposalLetter == ref.Letter {
			ce.ProposalLetter = ""
			out = append(out, ce)
			promoted = true
		}
		// Any other entry of this number — the superseded accepted
		// entry, or a sibling proposal — is dropped.
	}
	cs.Commits = out
	return promoted
}

// AutoAccept runs the full auto-accept procedure for proposalID: apply
// its diff, amend, and renumber history entries to promote it. Failures
// leave cs.Commits untouched so the caller can attach an error suffix
// and retry on a later cycle.
func AutoAccept(ctx context.Context, client vcs.Client, cs *changespec.ChangeSpec, proposalID, workspaceDir string) error {
	ref, ok := ParseProposalID(proposalID)
	if !ok {
		return aceerr.New(aceerr.ParseError, "invalid proposal id "+proposalID)
	}
	if err := ApplyProposal(ctx, client, cs, proposalID, workspaceDir); err != nil {
		return err
	}
	if !RenumberHistoryEntries(cs, ref) {
		return aceerr.New(aceerr.ParseError, "proposal "+proposalID+" vanished before renumbering")
	}
	log.Printf("%s: auto-accepted proposal %s", cs.Name, proposalID)
	return nil
}
