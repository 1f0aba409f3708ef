// Package checks starts, polls, and applies the results of the three
// slow external probes a supervisor cycle runs without blocking: CL
// submission status, reviewer (critique) comment ingestion, and author
// (self-critique) comment ingestion. Like internal/hooks, an arbitrary
// external command's exit code is translated into a completion
// sentinel by a wrapper script this package writes; unlike a workflow
// agent, the probed commands (is_cl_submitted and friends) know nothing
// about this supervisor's wire format.
package checks

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/githubnext/ace/internal/aceerr"
	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/gailog"
	"github.com/githubnext/ace/internal/statusengine"
	"github.com/githubnext/ace/internal/suffix"
)

var log = gailog.New("ace:checks")

// Kind is the closed set of background check families.
type Kind string

const (
	CLSubmitted      Kind = "cl_submitted"
	ReviewerComments Kind = "reviewer_comments"
	AuthorComments   Kind = "author_comments"
)

// ReviewerCheckFailed and AuthorCheckFailed are the error suffix
// messages attached to a critique/critique:me comment entry when its
// background check exits non-zero.
const (
	ReviewerCheckFailed = "Reviewer Comments Check Failed"
	AuthorCheckFailed   = "Author Comments Check Failed"
)

// Cache tracks, per ChangeSpec name, the last time any check ran
// (the shared debounce window spec §4.6 describes) and, per (name,
// kind), whether a check is currently in flight (the in-memory
// single-flight guard). It is safe for concurrent use.
type Cache struct {
	mu          sync.Mutex
	lastChecked map[string]time.Time
	pending     map[string]map[Kind]bool
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{
		lastChecked: make(map[string]time.Time),
		pending:     make(map[string]map[Kind]bool),
	}
}

// ShouldCheck reports whether name is due for a check: either bypass is
// true (the first-cycle leaf-CL exemption), or name has never been
// checked, or debounce has elapsed since its last check.
func (c *Cache) ShouldCheck(name string, bypass bool, debounce time.Duration, now time.Time) bool {
	if bypass {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastChecked[name]
	if !ok {
		return true
	}
	return now.Sub(last) >= debounce
}

// UpdateLastChecked records now as the most recent check time for name.
func (c *Cache) UpdateLastChecked(name string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastChecked[name] = now
}

// ClearCacheEntry drops name's last-checked record, forcing the next
// cycle to check it unconditionally — used once a check produces a
// terminal outcome (e.g. CL submitted) that makes further checks moot.
func (c *Cache) ClearCacheEntry(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastChecked, name)
}

// IsPending reports whether a check of this kind is already in flight
// for name.
func (c *Cache) IsPending(name string, kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[name][kind]
}

// MarkPending records that a check of this kind has been started for
// name.
func (c *Cache) MarkPending(name string, kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[name] == nil {
		c.pending[name] = make(map[Kind]bool)
	}
	c.pending[name][kind] = true
}

// ClearPending records that name's check of this kind has terminated.
func (c *Cache) ClearPending(name string, kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending[name], kind)
}

var clURLPattern = regexp.MustCompile(`^https?://cl/(\d+)`)

// ExtractCLNumber pulls the numeric id out of a "http://cl/123" style
// URL, returning ok=false for an empty or unrecognized URL.
func ExtractCLNumber(clURL string) (string, bool) {
	m := clURLPattern.FindStringSubmatch(clURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// commentNeedsRestart reports whether a critique/critique:me comment
// entry is absent, or present with a non-running suffix (an error from
// a previous attempt) — either way, eligible to be (re)started. A
// present entry with a running_agent suffix is in flight and must not
// be restarted.
func commentNeedsRestart(entry *changespec.CommentEntry) bool {
	if entry == nil {
		return true
	}
	return entry.Suffix != nil && entry.Suffix.Kind != suffix.RunningAgent
}

// NeedsCLSubmittedCheck reports whether cs is eligible for a
// cl_submitted check — its parent (if any) has submitted, its own
// status is Mailed, and it carries a CL URL with a recognizable number
// — returning that number.
func NeedsCLSubmittedCheck(set *changespec.Set, cs *changespec.ChangeSpec) (string, bool) {
	if !set.IsLeaf(cs) || cs.Status != changespec.StatusMailed {
		return "", false
	}
	return ExtractCLNumber(cs.CL)
}

// NeedsReviewerCommentsCheck reports whether cs is eligible for a
// reviewer_comments check: parent submitted, status Mailed, and the
// "critique" comment entry is absent or carries a non-running suffix
// (see commentNeedsRestart).
func NeedsReviewerCommentsCheck(set *changespec.Set, cs *changespec.ChangeSpec) bool {
	if !set.IsLeaf(cs) || cs.Status != changespec.StatusMailed {
		return false
	}
	return commentNeedsRestart(cs.FindComment("critique"))
}

// NeedsAuthorCommentsCheck reports whether cs is eligible for an
// author_comments (self-critique) check: status Drafted or Mailed, no
// reviewer has already commented, and the "critique:me" entry is
// absent or carries a non-running suffix (see commentNeedsRestart).
func NeedsAuthorCommentsCheck(cs *changespec.ChangeSpec) bool {
	if cs.Status != changespec.StatusDrafted && cs.Status != changespec.StatusMailed {
		return false
	}
	if cs.FindComment("critique") != nil {
		return false
	}
	return commentNeedsRestart(cs.FindComment("critique:me"))
}

var safeFilenamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeFilename(name string) string {
	return safeFilenamePattern.ReplaceAllString(name, "-")
}

// OutputPath returns the per-run output file a check's wrapper script
// writes to under checksDir (typically ~/.gai/checks).
func OutputPath(checksDir, name string, kind Kind, timestamp string) string {
	return fmt.Sprintf("%s/%s-%s-%s.txt", trimTrailingSlash(checksDir), safeFilename(name), kind, timestamp)
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// CompletionSentinel prefixes the line a check's wrapper script emits
// once the probed command has exited.
const CompletionSentinel = "===CHECK_COMPLETE==="

func wrapperScript(command string) string {
	return fmt.Sprintf(`#!/bin/bash
(
%s
)
exit_code=$?
echo "%s EXIT_CODE: $exit_code"
exit $exit_code
`, command, CompletionSentinel)
}

// StartBackground writes a wrapper script for command, spawns it
// detached in workDir with stdout+stderr redirected to outputPath, and
// returns the child's pid.
func StartBackground(ctx context.Context, workDir, outputPath, command string) (int, error) {
	wrapperFile, err := os.CreateTemp("", "ace-check-*.sh")
	if err != nil {
		return 0, aceerr.Wrap(aceerr.IOError, "creating check wrapper script", err)
	}
	wrapperPath := wrapperFile.Name()
	if _, err := wrapperFile.WriteString(wrapperScript(command)); err != nil {
		wrapperFile.Close()
		return 0, aceerr.Wrap(aceerr.IOError, "writing check wrapper script", err)
	}
	wrapperFile.Close()
	if err := os.Chmod(wrapperPath, 0o755); err != nil {
		return 0, aceerr.Wrap(aceerr.IOError, "chmod check wrapper script", err)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return 0, aceerr.Wrap(aceerr.IOError, "creating check output file", err)
	}
	defer outFile.Close()

	cmd := exec.CommandContext(ctx, wrapperPath)
	cmd.Dir = workDir
	cmd.Stdout = outFile
	cmd.Stderr = outFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, aceerr.Wrap(aceerr.NonZeroExit, "starting check "+command, err)
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	log.Printf("started check %q pid %d output %s", command, pid, outputPath)
	return pid, nil
}

var completionPattern = regexp.MustCompile(`===CHECK_COMPLETE=== EXIT_CODE: (-?\d+)`)

// CheckComplete reads outputPath and reports the exit code of a
// terminated check run. ok is false while the check is still running,
// including when the output file does not exist yet.
func CheckComplete(outputPath string) (exitCode int, ok bool, err error) {
	content, err := os.ReadFile(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, aceerr.Wrap(aceerr.IOError, "reading check output "+outputPath, err)
	}
	matches := completionPattern.FindAllStringSubmatch(string(content), -1)
	if len(matches) == 0 {
		return 0, false, nil
	}
	last := matches[len(matches)-1]
	code, convErr := strconv.Atoi(last[1])
	if convErr != nil {
		code = 1
	}
	return code, true, nil
}

// ApplyCLSubmittedResult transitions cs to Submitted when exitCode
// reports the CL has landed. The transition is forced (validate=false),
// matching spec §4.6: a submitted CL's status is an external fact, not
// a local state-machine choice.
func ApplyCLSubmittedResult(cs *changespec.ChangeSpec, exitCode int) error {
	if exitCode != 0 {
		return nil
	}
	return statusengine.TransitionChangeSpecStatus(cs, changespec.StatusSubmitted, false)
}

// ApplyReviewerCommentsResult records the outcome of a reviewer_comments
// check: on success, the critique CommentEntry is (re)pointed at
// artifactPath with any suffix cleared; on failure, an error suffix is
// attached so the next cycle's NeedsReviewerCommentsCheck retries it.
func ApplyReviewerCommentsResult(cs *changespec.ChangeSpec, exitCode int, artifactPath string) {
	if exitCode == 0 {
		statusengine.AddCommentEntry(cs, "critique", artifactPath)
		return
	}
	statusengine.AddCommentEntry(cs, "critique", artifactPath)
	_ = statusengine.SetCommentSuffix(cs, "critique", suffix.Error, ReviewerCheckFailed)
}

// ApplyAuthorCommentsResult is ApplyReviewerCommentsResult's
// counterpart for the "critique:me" self-critique entry.
func ApplyAuthorCommentsResult(cs *changespec.ChangeSpec, exitCode int, artifactPath string) {
	if exitCode == 0 {
		statusengine.AddCommentEntry(cs, "critique:me", artifactPath)
		return
	}
	statusengine.AddCommentEntry(cs, "critique:me", artifactPath)
	_ = statusengine.SetCommentSuffix(cs, "critique:me", suffix.Error, AuthorCheckFailed)
}

var commentTimestampPattern = regexp.MustCompile(`(\d{6}_\d{6}|\d{12})$`)

// CheckCommentZombies downgrades any critique/critique:me comment entry
// whose running_agent suffix (a "<workflow-kind>-<timestamp>" message,
// the CRS workflow's own suffix form) has gone stale past timeout,
// marking it a ZOMBIE error so the next cycle's Needs*Check restarts
// it.
func CheckCommentZombies(cs *changespec.ChangeSpec, now time.Time, timeout time.Duration) bool {
	changed := false
	for i := range cs.Comments {
		c := &cs.Comments[i]
		if c.Suffix == nil || c.Suffix.Kind != suffix.RunningAgent {
			continue
		}
		m := commentTimestampPattern.FindString(c.Suffix.Message)
		if m == "" {
			continue
		}
		ts, ok := suffix.ParseTimestamp(m)
		if !ok || !suffix.IsZombie(ts, now, timeout) {
			continue
		}
		c.Suffix = &suffix.Suffix{Kind: suffix.Error, Message: "ZOMBIE"}
		changed = true
	}
	return changed
}
