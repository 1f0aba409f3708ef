// Package hooks starts, polls, and retires hook subprocesses: the
// per-(ChangeSpec, hook, entry id) verification commands a supervisor
// cycle runs to completion exactly once. Workspace allocation and VCS
// checkout are delegated to internal/workspace and internal/vcs; this
// package owns eligibility, process spawning, sentinel parsing, and
// liveness/zombie detection.
package hooks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/githubnext/ace/internal/aceerr"
	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/gailog"
	"github.com/githubnext/ace/internal/suffix"
)

var log = gailog.New("ace:hooks")

// CompletionSentinel prefixes the line a hook's wrapper script emits
// once the wrapped command has exited.
const CompletionSentinel = "===HOOK_COMPLETE==="

// isProposalEntryID reports whether entryID names a proposal ("2a"),
// i.e. ends in a letter.
func isProposalEntryID(entryID string) bool {
	return entryID != "" && entryID[len(entryID)-1] >= 'a' && entryID[len(entryID)-1] <= 'z'
}

// parentEntryID strips the trailing proposal letter off a proposal
// entry id, returning the accepted entry id it is a proposal against.
func parentEntryID(entryID string) string {
	i := len(entryID)
	for i > 0 && entryID[i-1] >= 'a' && entryID[i-1] <= 'z' {
		i--
	}
	return entryID[:i]
}

// parentPassedOrFixException reports whether a proposal entry may run
// hook, per spec §4.4: the parent status line is PASSED, or it carries
// a suffix literally equal to the proposal's entry id (the "this
// proposal exists to fix this hook" exception).
func parentPassedOrFixException(hook *changespec.HookEntry, entryID string) bool {
	parent := hook.StatusLineFor(parentEntryID(entryID))
	if parent == nil {
		return false
	}
	if parent.Suffix != nil && parent.Suffix.Kind == suffix.Plain && parent.Suffix.Message == entryID {
		return true
	}
	return parent.Status == changespec.HookPassed
}

// NeedsRun reports whether hook must be started for entryID: no status
// line exists yet, no status line for this hook is currently RUNNING
// (single-flight per hook), and — for a proposal entry — the parent
// entry has passed or this proposal is the fix for this specific hook.
func NeedsRun(hook *changespec.HookEntry, entryID string) bool {
	if entryID == "" {
		return false
	}
	if hook.SkipOnProposal && isProposalEntryID(entryID) {
		return false
	}
	if hook.StatusLineFor(entryID) != nil {
		return false
	}
	if hook.HasRunningStatusLine() {
		return false
	}
	if isProposalEntryID(entryID) && !parentPassedOrFixException(hook, entryID) {
		return false
	}
	return true
}

// EntriesNeedingRun filters entryIDs down to those NeedsRun accepts.
func EntriesNeedingRun(hook *changespec.HookEntry, entryIDs []string) []string {
	var out []string
	for _, id := range entryIDs {
		if NeedsRun(hook, id) {
			out = append(out, id)
		}
	}
	return out
}

// FormatDuration renders a duration as the compact XhYmZs form used in
// the project file's status lines.
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

var safeFilenamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeFilename mirrors the teacher corpus's convention of collapsing
// anything outside [A-Za-z0-9._-] to a single dash before using a
// ChangeSpec name in a file path.
func safeFilename(name string) string {
	return safeFilenamePattern.ReplaceAllString(name, "-")
}

// OutputPath returns the per-run output file a hook's wrapper script
// writes to under hooksDir (typically ~/.gai/hooks).
func OutputPath(hooksDir, name, timestamp string) string {
	return filepath.Join(hooksDir, fmt.Sprintf("%s-%s.txt", safeFilename(name), timestamp))
}

func wrapperScript(command string) string {
	return fmt.Sprintf(`#!/bin/bash
echo "=== HOOK COMMAND ==="
echo %q
echo "===================="
echo ""
(
%s
) 2>&1
exit_code=$?
echo ""
end_timestamp=$(TZ="America/New_York" date +"%%y%%m%%d_%%H%%M%%S")
echo "%s END_TIMESTAMP: $end_timestamp EXIT_CODE: $exit_code"
exit $exit_code
`, command, command, CompletionSentinel)
}

// StartBackground writes a wrapper script for command, spawns it
// detached (its own session/process group) in workDir with
// stdout+stderr redirected to outputPath, and returns the child's pid.
// The caller is responsible for appending the RUNNING status line.
func StartBackground(ctx context.Context, workDir, outputPath, command string) (int, error) {
	wrapperFile, err := os.CreateTemp("", "ace-hook-*.sh")
	if err != nil {
		return 0, aceerr.Wrap(aceerr.IOError, "creating hook wrapper script", err)
	}
	wrapperPath := wrapperFile.Name()
	if _, err := wrapperFile.WriteString(wrapperScript(command)); err != nil {
		wrapperFile.Close()
		return 0, aceerr.Wrap(aceerr.IOError, "writing hook wrapper script", err)
	}
	wrapperFile.Close()
	if err := os.Chmod(wrapperPath, 0o755); err != nil {
		return 0, aceerr.Wrap(aceerr.IOError, "chmod hook wrapper script", err)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return 0, aceerr.Wrap(aceerr.IOError, "creating hook output file", err)
	}
	defer outFile.Close()

	cmd := exec.CommandContext(ctx, wrapperPath)
	cmd.Dir = workDir
	cmd.Stdout = outFile
	cmd.Stderr = outFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, aceerr.Wrap(aceerr.NonZeroExit, "starting hook "+command, err)
	}
	pid := cmd.Process.Pid
	// Reap the child in the background so it doesn't linger as a
	// zombie; liveness is reconstructed from the file system on
	// subsequent cycles, not from this Wait.
	go func() { _ = cmd.Wait() }()
	log.Printf("started hook %q pid %d output %s", command, pid, outputPath)
	return pid, nil
}

var completionPattern = regexp.MustCompile(`===HOOK_COMPLETE=== END_TIMESTAMP: (\S+) EXIT_CODE: (\d+)`)

// Completion is the parsed result of a terminated hook run.
type Completion struct {
	EndTimestamp string
	ExitCode     int
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
	return Completion{EndTimestamp: last[1], ExitCode: code}, true
}

// CheckCompletion reads the output file for the first RUNNING status
// line on hook and, if the completion sentinel is present, returns an
// updated status line with PASSED/FAILED status, computed duration,
// and — for a FAILED run of a DisableFixHookOnFailure hook — an error
// suffix whose message summarizeFailure builds. Returns ok=false while
// still running.
func CheckCompletion(hook *changespec.HookEntry, hooksDir, changeSpecName string) (changespec.HookStatusLine, bool, error) {
	var running *changespec.HookStatusLine
	for i := range hook.StatusLines {
		if hook.StatusLines[i].Status == changespec.HookRunning {
			running = &hook.StatusLines[i]
			break
		}
	}
	if running == nil {
		return changespec.HookStatusLine{}, false, nil
	}

	outputPath := OutputPath(hooksDir, changeSpecName, running.Timestamp.Format(suffix.TimestampLayout))
	content, err := os.ReadFile(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return changespec.HookStatusLine{}, false, nil
		}
		return changespec.HookStatusLine{}, false, aceerr.Wrap(aceerr.IOError, "reading hook output "+outputPath, err)
	}

	completion, ok := ParseCompletion(string(content))
	if !ok {
		return changespec.HookStatusLine{}, false, nil
	}

	endTime, parsed := suffix.ParseTimestamp(completion.EndTimestamp)
	var duration string
	if parsed {
		duration = FormatDuration(endTime.Sub(running.Timestamp))
	} else {
		duration = FormatDuration(time.Since(running.Timestamp))
	}

	status := changespec.HookPassed
	if completion.ExitCode != 0 {
		status = changespec.HookFailed
	}

	updated := changespec.HookStatusLine{
		CommitEntryID: running.CommitEntryID,
		Timestamp:     running.Timestamp,
		Status:        status,
		Duration:      duration,
	}

	if status == changespec.HookFailed && hook.DisableFixHookOnFailure {
		updated.Suffix = &suffix.Suffix{Kind: suffix.Error, Message: summarizeFailure(outputPath)}
	}

	return updated, true, nil
}

// summarizeFailure produces a short error-suffix message from a failed
// hook's output. The source invokes an external LLM summariser here;
// that collaborator is out of scope (spec §1's "LLM invocation itself"
// non-goal), so this joins the last five non-empty output lines with
// "; ", and returns the source's default "Hook Command Failed" message
// only when the output is unreadable or has no non-empty line.
func summarizeFailure(outputPath string) string {
	f, err := os.Open(outputPath)
	if err != nil {
		return "Hook Command Failed"
	}
	defer f.Close()

	const maxLines = 5
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) > maxLines {
			lines = lines[1:]
		}
	}
	if len(lines) == 0 {
		return "Hook Command Failed"
	}
	return strings.Join(lines, "; ")
}

// IsProcessAlive reports whether pid still exists, consulting gopsutil
// rather than raw os.FindProcess (which always succeeds on Unix).
func IsProcessAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return alive
}

// KillProcessGroup sends SIGTERM to the process group led by pid. A
// permission error or an already-vanished group is treated as
// "handled" per spec §5's "assumed dead" rule — the caller still marks
// the state as killed.
func KillProcessGroup(pid int) error {
	err := syscall.Kill(-pid, syscall.SIGTERM)
	if err != nil && err != syscall.ESRCH && err != syscall.EPERM {
		return aceerr.Wrap(aceerr.IOError, "killing process group", err)
	}
	return nil
}

// DeadDescription renders the timestamped note attached when a RUNNING
// status line's pid has vanished without a completion sentinel.
func DeadDescription(now time.Time) string {
	return fmt.Sprintf("[%s] Process is no longer running. Marked as dead.", suffix.FormatTimestamp(now))
}

// ZombieDescription renders the note attached when a RUNNING hook is
// killed for exceeding the zombie timeout.
func ZombieDescription(now time.Time, age time.Duration) string {
	return fmt.Sprintf("[%s] Killed zombie hook that has been running for %s.", suffix.FormatTimestamp(now), FormatDuration(age))
}

// pidFromSuffix extracts the integer pid from a RunningProcess suffix.
func pidFromSuffix(s *suffix.Suffix) (int, bool) {
	if s == nil || s.Kind != suffix.RunningProcess {
		return 0, false
	}
	pid, err := strconv.Atoi(s.Message)
	if err != nil {
		return 0, false
	}
	return pid, true
}

// CheckLiveness inspects a RUNNING status line whose process has no
// completion sentinel yet and reports the terminal state to transition
// to, if any: a dead pid becomes DEAD/KilledProcess immediately; a live
// pid older than zombieTimeout is SIGTERM'd and becomes DEAD/KilledProcess
// with a zombie description. Returns ok=false if the hook should keep
// running untouched.
func CheckLiveness(line changespec.HookStatusLine, now time.Time, zombieTimeout time.Duration) (changespec.HookStatusLine, bool) {
	pid, hasPID := pidFromSuffix(line.Suffix)
	age := now.Sub(line.Timestamp)

	if hasPID && !IsProcessAlive(pid) {
		line.Status = changespec.HookDead
		line.Suffix = &suffix.Suffix{
			Kind:    suffix.KilledProcess,
			Message: fmt.Sprintf("%d | %s", pid, DeadDescription(now)),
		}
		return line, true
	}

	if age > zombieTimeout {
		if hasPID {
			if err := KillProcessGroup(pid); err != nil {
				log.Printf("killing zombie hook pgid %d: %v", pid, err)
			}
		}
		desc := ZombieDescription(now, age)
		msg := desc
		if line.Suffix != nil && line.Suffix.Message != "" {
			msg = line.Suffix.Message + " | " + desc
		}
		line.Status = changespec.HookDead
		line.Suffix = &suffix.Suffix{Kind: suffix.KilledProcess, Message: msg}
		return line, true
	}

	return line, false
}

// PruneOutputs removes hook output files under hooksDir older than
// maxAge whose path is not in keep (outputs tied to a still-RUNNING
// status line). It is a standalone maintenance helper: neither the
// supervisor loop nor the CLI commands call it.
func PruneOutputs(hooksDir string, keep map[string]bool, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(hooksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, aceerr.Wrap(aceerr.IOError, "reading hooks directory", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(hooksDir, entry.Name())
		if keep[path] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, aceerr.Wrap(aceerr.IOError, "removing stale hook output "+path, err)
		}
		removed++
	}
	return removed, nil
}
