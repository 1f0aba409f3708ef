// Package supervisor drives the whole system on two timescales: a slow
// full cycle that starts background checks, and a frequent fast cycle
// that polls everything in flight (checks, hooks, workflows) and
// re-derives every suffix and status marker a ChangeSpec carries.
// Every lower package (changespec, statusengine, hooks, workflows,
// checks, workspace) is pure or narrowly side-effecting; this package
// is where their results are composed and persisted.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/checks"
	"github.com/githubnext/ace/internal/gailog"
	"github.com/githubnext/ace/internal/hooks"
	"github.com/githubnext/ace/internal/statusengine"
	"github.com/githubnext/ace/internal/suffix"
	"github.com/githubnext/ace/internal/vcs"
	"github.com/githubnext/ace/internal/workflows"
	"github.com/githubnext/ace/internal/workspace"
)

var log = gailog.New("ace:supervisor")

// DefaultFullCycleInterval and DefaultFastCycleInterval are the
// supervisor's two timescales absent an override.
const (
	DefaultFullCycleInterval = 300 * time.Second
	DefaultFastCycleInterval = 10 * time.Second
)

// Config parameterizes one Supervisor. Every directory defaults to the
// project file layout spec §6 names under the user's ~/.gai tree.
type Config struct {
	ProjectsDir  string
	HooksDir     string
	WorkflowsDir string
	ChecksDir    string
	CommentsDir  string

	FullCycleInterval time.Duration
	FastCycleInterval time.Duration
	ZombieTimeout     time.Duration
	CheckDebounce     time.Duration

	// ReviewerCommentsCommand and AuthorCommentsCommand are printf-style
	// templates invoked with (ChangeSpec name, artifact output path) to
	// run critique ingestion and self-critique respectively.
	ReviewerCommentsCommand string
	AuthorCommentsCommand   string

	VCS vcs.Client

	// Log receives one line per applied update, e.g.
	// "widget: Status changed Mailed -> Submitted". Defaults to writing
	// to stderr via the package logger.
	Log func(changeSpecName, message string)
}

func (c *Config) setDefaults() {
	if c.FullCycleInterval == 0 {
		c.FullCycleInterval = DefaultFullCycleInterval
	}
	if c.FastCycleInterval == 0 {
		c.FastCycleInterval = DefaultFastCycleInterval
	}
	if c.ZombieTimeout == 0 {
		c.ZombieTimeout = suffix.DefaultZombieTimeout
	}
	if c.CheckDebounce == 0 {
		c.CheckDebounce = 5 * time.Minute
	}
	if c.ReviewerCommentsCommand == "" {
		c.ReviewerCommentsCommand = "ace-critique --changespec %s --output %s"
	}
	if c.AuthorCommentsCommand == "" {
		c.AuthorCommentsCommand = "ace-critique --self --changespec %s --output %s"
	}
	if c.Log == nil {
		c.Log = func(name, message string) { log.Printf("%s: %s", name, message) }
	}
	if home, err := os.UserHomeDir(); err == nil {
		gaiDir := filepath.Join(home, ".gai")
		for _, d := range []struct {
			field *string
			name  string
		}{
			{&c.ProjectsDir, "projects"}, {&c.HooksDir, "hooks"}, {&c.WorkflowsDir, "workflows"},
			{&c.ChecksDir, "checks"}, {&c.CommentsDir, "comments"},
		} {
			if *d.field == "" {
				*d.field = filepath.Join(gaiDir, d.name)
			}
		}
	}
}

// pendingCheck is what the supervisor remembers in memory between a
// check's start and its completion: where the check's wrapper script
// writes its output, and the artifact path a successful comment check
// should be recorded against.
type pendingCheck struct {
	outputPath   string
	artifactPath string
}

// Supervisor holds the in-memory state a single supervisor process
// keeps across cycles: the check debounce cache and the set of checks
// currently in flight. Do not run two Supervisors against the same
// ProjectsDir concurrently (spec §5: multiple supervisors are not
// supported on the same project set).
type Supervisor struct {
	cfg     Config
	cache   *checks.Cache
	pending map[string]map[checks.Kind]pendingCheck
}

// New constructs a Supervisor, filling in unset Config fields with
// their documented defaults.
func New(cfg Config) *Supervisor {
	cfg.setDefaults()
	return &Supervisor{
		cfg:     cfg,
		cache:   checks.NewCache(),
		pending: make(map[string]map[checks.Kind]pendingCheck),
	}
}

func (s *Supervisor) isPending(name string, kind checks.Kind) bool {
	p, ok := s.pending[name][kind]
	return ok && p.outputPath != ""
}

func (s *Supervisor) markPending(name string, kind checks.Kind, p pendingCheck) {
	if s.pending[name] == nil {
		s.pending[name] = make(map[checks.Kind]pendingCheck)
	}
	s.pending[name][kind] = p
	s.cache.MarkPending(name, kind)
}

func (s *Supervisor) clearPending(name string, kind checks.Kind) {
	delete(s.pending[name], kind)
	s.cache.ClearPending(name, kind)
}

// FindProjectFiles discovers every *.gp project file under cfg.ProjectsDir.
func (s *Supervisor) FindProjectFiles() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.cfg.ProjectsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".gp") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// Run drives the continuous loop: one full cycle, then fast cycles at
// FastCycleInterval until FullCycleInterval has elapsed, repeating
// until ctx is cancelled. A cancelled context is a normal exit (the
// caller translates SIGINT into cancellation), not an error.
func (s *Supervisor) Run(ctx context.Context) error {
	changed := s.watchProjectsDir(ctx)

	firstCycle := true
	for {
		if _, err := s.RunFullCycle(ctx, firstCycle); err != nil {
			return err
		}
		firstCycle = false

		elapsed := time.Duration(0)
		for elapsed < s.cfg.FullCycleInterval {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				// A project file changed before FastCycleInterval
				// elapsed; poll now instead of waiting out the rest
				// of the interval. Does not advance elapsed — this is
				// purely a latency optimization over pure polling.
			case <-time.After(s.cfg.FastCycleInterval):
				elapsed += s.cfg.FastCycleInterval
			}
			if elapsed >= s.cfg.FullCycleInterval {
				break
			}
			if _, err := s.RunFastCycle(ctx); err != nil {
				return err
			}
		}
	}
}

// RunFullCycle starts background checks for every eligible ChangeSpec
// across every project file, returning the number started.
func (s *Supervisor) RunFullCycle(ctx context.Context, firstCycle bool) (int, error) {
	paths, err := s.FindProjectFiles()
	if err != nil {
		return 0, err
	}
	started := 0
	now := time.Now()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("reading %s: %v", path, err)
			continue
		}
		set := changespec.Parse(path, data)
		for _, cs := range set.Specs {
			n, err := s.startPendingChecks(ctx, path, set, cs, firstCycle, now)
			if err != nil {
				log.Printf("%s: starting checks: %v", cs.Name, err)
				continue
			}
			started += n
		}
	}
	return started, nil
}

func (s *Supervisor) startPendingChecks(ctx context.Context, path string, set *changespec.Set, cs *changespec.ChangeSpec, firstCycle bool, now time.Time) (int, error) {
	bypass := firstCycle && set.IsLeaf(cs)
	started := 0

	if clNumber, ok := checks.NeedsCLSubmittedCheck(set, cs); ok &&
		!s.isPending(cs.Name, checks.CLSubmitted) &&
		s.cache.ShouldCheck(cs.Name, bypass, s.cfg.CheckDebounce, now) {
		ts := suffix.FormatTimestamp(now)
		outputPath := checks.OutputPath(s.cfg.ChecksDir, cs.Name, checks.CLSubmitted, ts)
		if _, err := checks.StartBackground(ctx, s.cfg.ProjectsDir, outputPath, "is_cl_submitted "+clNumber); err != nil {
			return started, err
		}
		s.markPending(cs.Name, checks.CLSubmitted, pendingCheck{outputPath: outputPath})
		s.cache.UpdateLastChecked(cs.Name, now)
		s.cfg.Log(cs.Name, "started cl_submitted check")
		started++
	}

	if checks.NeedsReviewerCommentsCheck(set, cs) &&
		!s.isPending(cs.Name, checks.ReviewerComments) &&
		s.cache.ShouldCheck(cs.Name, bypass, s.cfg.CheckDebounce, now) {
		ts := suffix.FormatTimestamp(now)
		artifactPath := commentArtifactPath(s.cfg.CommentsDir, cs.Name, "critique", ts)
		outputPath := checks.OutputPath(s.cfg.ChecksDir, cs.Name, checks.ReviewerComments, ts)
		cmd := fmt.Sprintf(s.cfg.ReviewerCommentsCommand, cs.Name, artifactPath)
		if _, err := checks.StartBackground(ctx, s.cfg.ProjectsDir, outputPath, cmd); err != nil {
			return started, err
		}
		s.markPending(cs.Name, checks.ReviewerComments, pendingCheck{outputPath: outputPath, artifactPath: artifactPath})
		s.cache.UpdateLastChecked(cs.Name, now)
		s.cfg.Log(cs.Name, "started reviewer_comments check")
		started++
	}

	if checks.NeedsAuthorCommentsCheck(cs) &&
		!s.isPending(cs.Name, checks.AuthorComments) &&
		s.cache.ShouldCheck(cs.Name, bypass, s.cfg.CheckDebounce, now) {
		ts := suffix.FormatTimestamp(now)
		artifactPath := commentArtifactPath(s.cfg.CommentsDir, cs.Name, "critique:me", ts)
		outputPath := checks.OutputPath(s.cfg.ChecksDir, cs.Name, checks.AuthorComments, ts)
		cmd := fmt.Sprintf(s.cfg.AuthorCommentsCommand, cs.Name, artifactPath)
		if _, err := checks.StartBackground(ctx, s.cfg.ProjectsDir, outputPath, cmd); err != nil {
			return started, err
		}
		s.markPending(cs.Name, checks.AuthorComments, pendingCheck{outputPath: outputPath, artifactPath: artifactPath})
		s.cache.UpdateLastChecked(cs.Name, now)
		s.cfg.Log(cs.Name, "started author_comments check")
		started++
	}

	_ = path // path is reserved for a future per-file RUNNING marker; checks are in-memory only today.
	return started, nil
}

func commentArtifactPath(commentsDir, name, reviewer, timestamp string) string {
	safe := strings.NewReplacer("/", "-", ":", "-", " ", "-").Replace(name + "-" + reviewer)
	return fmt.Sprintf("%s/%s-%s.json", strings.TrimRight(commentsDir, "/"), safe, timestamp)
}

// RunFastCycle polls every pending check, hook, and workflow across
// every project file, re-derives suffix/status markers, and persists
// any resulting change. It returns the number of ChangeSpecs updated.
func (s *Supervisor) RunFastCycle(ctx context.Context) (int, error) {
	paths, err := s.FindProjectFiles()
	if err != nil {
		return 0, err
	}
	updated := 0
	now := time.Now()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("reading %s: %v", path, err)
			continue
		}
		set := changespec.Parse(path, data)
		if !s.fastCycleNeeded(set, now) {
			continue
		}
		for _, cs := range set.Specs {
			name := cs.Name
			var messages []string

			// Hook RUNNING-status updates persist through their own
			// merge-write cycle (spec.md's "Merge writes... hook updates
			// use a merge variant"), ahead of and independent from the
			// full-record write below, so a concurrent append to this
			// ChangeSpec's HOOKS block between the two cycles survives.
			messages = append(messages, s.pollHooks(ctx, path, cs, now)...)

			err := changespec.Write(path, name, func(cs *changespec.ChangeSpec) error {
				messages = append(messages, s.applyFastCycle(ctx, path, set, cs, now)...)
				return nil
			})
			if err != nil {
				log.Printf("%s: fast cycle write: %v", name, err)
				continue
			}
			for _, m := range messages {
				s.cfg.Log(name, m)
			}
			if len(messages) > 0 {
				updated++
			}
		}
	}
	return updated, nil
}

// fastCycleNeeded is a cheap read-only scan deciding whether path has
// any actionable condition this cycle — spec §4.7's idempotence
// guarantee ("running the supervisor against an unchanged project file
// produces no writes") is upheld by skipping the lock entirely when
// nothing in the parsed snapshot needs attention.
func (s *Supervisor) fastCycleNeeded(set *changespec.Set, now time.Time) bool {
	for _, cs := range set.Specs {
		if s.pending[cs.Name] != nil && len(s.pending[cs.Name]) > 0 {
			return true
		}
		for _, h := range cs.Hooks {
			if h.HasRunningStatusLine() {
				return true
			}
		}
		lastID := lastHistoryEntryID(cs)
		for _, h := range cs.Hooks {
			if hooks.NeedsRun(&h, lastID) {
				return true
			}
		}
		if workflows.NeedsCRS(cs) != nil {
			return true
		}
		entryIDs := allEntryIDs(cs)
		for _, h := range cs.Hooks {
			if len(workflows.FixHookEntries(&h, entryIDs)) > 0 || len(workflows.SummarizeHookEntries(&h, entryIDs)) > 0 {
				return true
			}
		}
		for _, c := range cs.Comments {
			if c.Suffix != nil && c.Suffix.Kind == suffix.RunningAgent {
				return true
			}
		}
		if cs.HasAnyErrorSuffix() && (cs.Status == changespec.StatusSubmitted || cs.Status == changespec.StatusReverted) {
			return true
		}
		if cs.Status == changespec.StatusDrafted {
			return true // READY TO MAIL derivation must be re-evaluated every cycle
		}
	}
	return false
}

func lastHistoryEntryID(cs *changespec.ChangeSpec) string {
	current := cs.CurrentEntry()
	if current == nil {
		return ""
	}
	return current.DisplayNumber()
}

func allEntryIDs(cs *changespec.ChangeSpec) []string {
	ids := make([]string, 0, len(cs.Commits))
	for _, ce := range cs.Commits {
		ids = append(ids, ce.DisplayNumber())
	}
	return ids
}

// applyFastCycle runs every fast-cycle step against cs in place,
// returning the human-readable update messages produced. cs is the
// freshly re-parsed record changespec.Write supplies; set is the
// outer (possibly now slightly stale) snapshot used only for
// parent-chain lookups (IsLeaf/IsParentReadyForMail), which fail safe
// by treating an unknown parent as not-ready.
func (s *Supervisor) applyFastCycle(ctx context.Context, path string, set *changespec.Set, cs *changespec.ChangeSpec, now time.Time) []string {
	var updates []string

	updates = append(updates, s.pollChecks(cs)...)
	updates = append(updates, s.pollCommentZombies(cs, now)...)
	updates = append(updates, s.pollWorkflows(ctx, path, cs, now)...)

	statusengine.CleanupOldProposalSuffixes(cs)
	statusengine.AcknowledgeTerminalStatusMarkers(cs)
	statusengine.ApplyReadyToMailDerivation(set, cs)

	return updates
}

func (s *Supervisor) pollChecks(cs *changespec.ChangeSpec) []string {
	var updates []string
	for kind, p := range s.pending[cs.Name] {
		code, ok, err := checks.CheckComplete(p.outputPath)
		if err != nil {
			log.Printf("%s: polling %s check: %v", cs.Name, kind, err)
			continue
		}
		if !ok {
			continue
		}
		switch kind {
		case checks.CLSubmitted:
			if err := checks.ApplyCLSubmittedResult(cs, code); err != nil {
				log.Printf("%s: applying cl_submitted result: %v", cs.Name, err)
			} else if code == 0 {
				s.cache.ClearCacheEntry(cs.Name)
				updates = append(updates, "Status changed to Submitted")
			}
		case checks.ReviewerComments:
			checks.ApplyReviewerCommentsResult(cs, code, p.artifactPath)
			updates = append(updates, "reviewer_comments check completed")
		case checks.AuthorComments:
			checks.ApplyAuthorCommentsResult(cs, code, p.artifactPath)
			updates = append(updates, "author_comments check completed")
		}
		s.clearPending(cs.Name, kind)
	}
	return updates
}

// pollHooks polls every hook on cs — completion, liveness, and
// eligibility to start a new run — without mutating cs itself. Each
// hook whose state actually changes is collected and persisted via
// changespec.MergeHookUpdates, its own independent locked read-splice-
// write cycle that touches only the named hooks: spec.md's writer
// contract reserves the full-record Write path for every other field,
// but mandates the merge variant here specifically so that a
// concurrent append to this ChangeSpec's HOOKS block (a TUI, another
// supervisor pass) between this read and this write still survives.
func (s *Supervisor) pollHooks(ctx context.Context, path string, cs *changespec.ChangeSpec, now time.Time) []string {
	var updates []string
	merges := make(map[string]changespec.HookEntry)
	lastID := lastHistoryEntryID(cs)

	for _, h := range cs.Hooks {
		updated, msgs := s.pollHook(ctx, path, cs, h, lastID, now)
		updates = append(updates, msgs...)
		if updated != nil {
			merges[h.Command] = *updated
		}
	}

	if len(merges) == 0 {
		return updates
	}
	if err := changespec.MergeHookUpdates(path, cs.Name, merges); err != nil {
		log.Printf("%s: merging hook updates: %v", cs.Name, err)
	}
	return updates
}

// pollHook evaluates one hook against its on-disk state. h is a value
// copy — cs.Hooks is never mutated here — so the returned *HookEntry,
// if non-nil, is the only trace of any change; the caller is
// responsible for persisting it. Status lines are copied before any
// in-place edit so the original slice backing cs.Hooks is untouched
// even when append would otherwise have room to write through it.
func (s *Supervisor) pollHook(ctx context.Context, path string, cs *changespec.ChangeSpec, h changespec.HookEntry, lastID string, now time.Time) (*changespec.HookEntry, []string) {
	var updates []string
	changed := false
	h.StatusLines = append([]changespec.HookStatusLine(nil), h.StatusLines...)

	for j := range h.StatusLines {
		line := &h.StatusLines[j]
		if line.Status != changespec.HookRunning {
			continue
		}
		updatedLine, done, err := hooks.CheckCompletion(&h, s.cfg.HooksDir, cs.Name)
		if err != nil {
			log.Printf("%s: checking hook %s completion: %v", cs.Name, h.Command, err)
			continue
		}
		if done && updatedLine.CommitEntryID == line.CommitEntryID {
			*line = updatedLine
			changed = true
			updates = append(updates, fmt.Sprintf("Hook '%s' -> %s", h.DisplayCommand(), updatedLine.Status))
			continue
		}
		if next, ok := hooks.CheckLiveness(*line, now, s.cfg.ZombieTimeout); ok {
			*line = next
			changed = true
			updates = append(updates, fmt.Sprintf("Hook '%s' marked as DEAD", h.DisplayCommand()))
		}
	}

	if hooks.NeedsRun(&h, lastID) && s.startHookRun(ctx, path, cs, &h, lastID, now) {
		changed = true
		updates = append(updates, fmt.Sprintf("Hook '%s' started", h.DisplayCommand()))
	}

	if !changed {
		return nil, updates
	}
	return &h, updates
}

// startHookRun claims a workspace, spawns h.Command in it, and appends
// the RUNNING status line to h in place. Returns false (h left
// untouched) on any allocation or spawn failure.
func (s *Supervisor) startHookRun(ctx context.Context, path string, cs *changespec.ChangeSpec, h *changespec.HookEntry, lastID string, now time.Time) bool {
	num, err := workspace.GetFirstAvailableLoopWorkspace(path)
	if err != nil {
		log.Printf("%s: allocating hook workspace: %v", cs.Name, err)
		return false
	}
	workflowName := workspace.HookWorkflowName(lastID)
	claimed, err := workspace.Claim(path, num, workflowName, cs.Name)
	if err != nil || !claimed {
		return false
	}
	workDir, err := workspace.EnsureExists(s.cfg.ProjectsDir, cs.Name, num)
	if err != nil {
		log.Printf("%s: preparing hook workspace: %v", cs.Name, err)
		return false
	}
	ts := now
	outputPath := hooks.OutputPath(s.cfg.HooksDir, cs.Name, suffix.FormatTimestamp(ts))
	pid, err := hooks.StartBackground(ctx, workDir, outputPath, h.Command)
	if err != nil {
		log.Printf("%s: starting hook %s: %v", cs.Name, h.Command, err)
		return false
	}
	h.StatusLines = append(h.StatusLines, changespec.HookStatusLine{
		CommitEntryID: lastID,
		Timestamp:     ts,
		Status:        changespec.HookRunning,
		Suffix:        &suffix.Suffix{Kind: suffix.RunningProcess, Message: fmt.Sprintf("%d", pid)},
	})
	return true
}

func (s *Supervisor) pollCommentZombies(cs *changespec.ChangeSpec, now time.Time) []string {
	if checks.CheckCommentZombies(cs, now, s.cfg.ZombieTimeout) {
		return []string{"marked stale comment check as ZOMBIE"}
	}
	return nil
}

func (s *Supervisor) pollWorkflows(ctx context.Context, path string, cs *changespec.ChangeSpec, now time.Time) []string {
	var updates []string

	for _, rw := range workflows.RunningFixHookWorkflows(cs) {
		if msg := s.pollFixHookOrSummarize(ctx, path, cs, workflows.FixHook, rw, now); msg != "" {
			updates = append(updates, msg)
		}
	}
	for _, rw := range workflows.RunningSummarizeHookWorkflows(cs) {
		if msg := s.pollFixHookOrSummarize(ctx, path, cs, workflows.SummarizeHook, rw, now); msg != "" {
			updates = append(updates, msg)
		}
	}
	for _, rw := range workflows.RunningCRSWorkflows(cs) {
		if msg := s.pollCRS(ctx, path, cs, rw, now); msg != "" {
			updates = append(updates, msg)
		}
	}

	entryIDs := allEntryIDs(cs)
	for i := range cs.Hooks {
		h := &cs.Hooks[i]
		for _, entryID := range workflows.FixHookEntries(h, entryIDs) {
			if msg := s.startFixHookWorkflow(ctx, path, cs, h, entryID, now); msg != "" {
				updates = append(updates, msg)
			}
		}
		for _, entryID := range workflows.SummarizeHookEntries(h, entryIDs) {
			if msg := s.startSummarizeHookWorkflow(ctx, path, cs, h, entryID, now); msg != "" {
				updates = append(updates, msg)
			}
		}
	}
	for _, reviewer := range workflows.NeedsCRS(cs) {
		if msg := s.startCRSWorkflow(ctx, path, cs, reviewer, now); msg != "" {
			updates = append(updates, msg)
		}
	}

	return updates
}

// pollFixHookOrSummarize checks one running fix-hook or summarize-hook
// workflow's output file (both keyed by hook command per
// workflows.RunningWorkflow.Subject). On completion, a fix-hook success
// auto-accepts the proposal the agent committed; a summarize-hook
// success attaches the summarize_complete suffix that makes the entry
// eligible for fix-hook next cycle. Either kind's failure attaches the
// shared "Hook Command Failed" error suffix.
func (s *Supervisor) pollFixHookOrSummarize(ctx context.Context, path string, cs *changespec.ChangeSpec, kind workflows.Kind, rw workflows.RunningWorkflow, now time.Time) string {
	h := cs.FindHook(rw.Subject)
	if h == nil {
		return ""
	}
	outputPath := workflows.OutputPath(s.cfg.WorkflowsDir, cs.Name, kind, rw.Timestamp)
	completion, ok, err := workflows.CheckCompletion(outputPath)
	if err != nil {
		log.Printf("%s: polling %s workflow: %v", cs.Name, kind, err)
		return ""
	}
	if !ok {
		if workflows.IsZombie(rw.Timestamp, now, s.cfg.ZombieTimeout) {
			_ = statusengine.SetHookSuffix(cs, h.Command, "", suffix.Error, "ZOMBIE", "")
			return fmt.Sprintf("%s workflow for '%s' timed out", kind, h.DisplayCommand())
		}
		return ""
	}

	entryID := h.LatestStatusLine().CommitEntryID
	workflowName := workspace.FixHookWorkflowName(rw.Timestamp)
	if kind == workflows.SummarizeHook {
		workflowName = workspace.HookWorkflowName(entryID)
	}
	num, found, ferr := workspace.FindEntryAffinedWorkspace(path, workflowName, cs.Name)
	if ferr == nil && found {
		defer func() { _ = workspace.Release(path, num, workflowName, cs.Name) }()
	}

	if kind == workflows.FixHook {
		if completion.ExitCode == 0 && completion.ProposalID != "" && found {
			workDir, derr := workspace.EnsureExists(s.cfg.ProjectsDir, cs.Name, num)
			if derr == nil && s.cfg.VCS != nil {
				if aerr := workflows.AutoAccept(ctx, s.cfg.VCS, cs, completion.ProposalID, workDir); aerr != nil {
					log.Printf("%s: auto-accepting %s: %v", cs.Name, completion.ProposalID, aerr)
					_ = statusengine.SetHookSuffix(cs, h.Command, entryID, suffix.Error, workflows.HookCommandFailed, "")
					return fmt.Sprintf("fix-hook auto-accept failed for '%s'", h.DisplayCommand())
				}
			}
			return fmt.Sprintf("fix-hook accepted proposal %s for '%s'", completion.ProposalID, h.DisplayCommand())
		}
		_ = statusengine.SetHookSuffix(cs, h.Command, entryID, suffix.Error, workflows.HookCommandFailed, "")
		return fmt.Sprintf("fix-hook failed for '%s'", h.DisplayCommand())
	}

	// summarize-hook
	if completion.ExitCode == 0 {
		_ = statusengine.SetHookSuffix(cs, h.Command, entryID, suffix.SummarizeComplete, "", "")
		return fmt.Sprintf("summarize-hook completed for '%s'", h.DisplayCommand())
	}
	_ = statusengine.SetHookSuffix(cs, h.Command, entryID, suffix.Error, workflows.HookCommandFailed, "")
	return fmt.Sprintf("summarize-hook failed for '%s'", h.DisplayCommand())
}

// pollCRS checks one running code-review-sync workflow's output file.
// Success clears the comment entry's suffix (optionally after
// auto-accepting a proposal the agent committed); failure attaches the
// shared "Unresolved Critique Comments" error suffix.
func (s *Supervisor) pollCRS(ctx context.Context, path string, cs *changespec.ChangeSpec, rw workflows.RunningWorkflow, now time.Time) string {
	outputPath := workflows.OutputPath(s.cfg.WorkflowsDir, cs.Name, workflows.CRS, rw.Timestamp)
	completion, ok, err := workflows.CheckCompletion(outputPath)
	if err != nil {
		log.Printf("%s: polling crs workflow: %v", cs.Name, err)
		return ""
	}
	if !ok {
		if workflows.IsZombie(rw.Timestamp, now, s.cfg.ZombieTimeout) {
			_ = statusengine.SetCommentSuffix(cs, rw.Subject, suffix.Error, "ZOMBIE")
			return fmt.Sprintf("crs workflow for %q timed out", rw.Subject)
		}
		return ""
	}

	workflowName := workspace.CRSWorkflowName(rw.Subject)
	num, found, ferr := workspace.FindEntryAffinedWorkspace(path, workflowName, cs.Name)
	if ferr == nil && found {
		defer func() { _ = workspace.Release(path, num, workflowName, cs.Name) }()
	}

	if completion.ExitCode != 0 {
		_ = statusengine.SetCommentSuffix(cs, rw.Subject, suffix.Error, workflows.UnresolvedCritiqueComments)
		return fmt.Sprintf("crs workflow failed for %q", rw.Subject)
	}
	if completion.ProposalID != "" && found {
		workDir, derr := workspace.EnsureExists(s.cfg.ProjectsDir, cs.Name, num)
		if derr == nil && s.cfg.VCS != nil {
			if aerr := workflows.AutoAccept(ctx, s.cfg.VCS, cs, completion.ProposalID, workDir); aerr != nil {
				log.Printf("%s: auto-accepting %s: %v", cs.Name, completion.ProposalID, aerr)
				_ = statusengine.SetCommentSuffix(cs, rw.Subject, suffix.Error, workflows.UnresolvedCritiqueComments)
				return fmt.Sprintf("crs auto-accept failed for %q", rw.Subject)
			}
		}
	}
	_ = statusengine.ClearCommentSuffix(cs, rw.Subject)
	return fmt.Sprintf("crs workflow resolved %q", rw.Subject)
}

// startFixHookWorkflow, startSummarizeHookWorkflow, and
// startCRSWorkflow each allocate a workspace, spawn the workflow
// agent, and record the running_agent suffix that makes the run
// visible to the next cycle's Running*Workflows detection. The agent
// command itself is an external collaborator (spec §1's "LLM
// invocation itself" non-goal) configured out of band; a future
// Config field will carry the real invocation, so this spawns a
// harmless placeholder ("true") purely to exercise the
// workspace/claim/suffix plumbing end to end.
func (s *Supervisor) startFixHookWorkflow(ctx context.Context, path string, cs *changespec.ChangeSpec, h *changespec.HookEntry, entryID string, now time.Time) string {
	ts := suffix.FormatTimestamp(now)
	workflowName := workspace.FixHookWorkflowName(ts)
	num, workDir, ok := s.claimWorkspace(path, workflowName, cs.Name, "fix_hook")
	if !ok {
		return ""
	}
	outputPath := workflows.OutputPath(s.cfg.WorkflowsDir, cs.Name, workflows.FixHook, ts)
	if _, err := workflows.StartBackground(ctx, workDir, outputPath, "true"); err != nil {
		log.Printf("%s: starting fix_hook workflow: %v", cs.Name, err)
		_ = workspace.Release(path, num, workflowName, cs.Name)
		return ""
	}
	_ = statusengine.SetHookSuffix(cs, h.Command, entryID, suffix.RunningAgent, workflows.AgentSuffixMessage(workflows.FixHook, now), "")
	return fmt.Sprintf("fix-hook workflow started for '%s'", h.DisplayCommand())
}

func (s *Supervisor) startSummarizeHookWorkflow(ctx context.Context, path string, cs *changespec.ChangeSpec, h *changespec.HookEntry, entryID string, now time.Time) string {
	ts := suffix.FormatTimestamp(now)
	workflowName := workspace.HookWorkflowName(entryID)
	num, workDir, ok := s.claimWorkspace(path, workflowName, cs.Name, "summarize_hook")
	if !ok {
		return ""
	}
	outputPath := workflows.OutputPath(s.cfg.WorkflowsDir, cs.Name, workflows.SummarizeHook, ts)
	if _, err := workflows.StartBackground(ctx, workDir, outputPath, "true"); err != nil {
		log.Printf("%s: starting summarize_hook workflow: %v", cs.Name, err)
		_ = workspace.Release(path, num, workflowName, cs.Name)
		return ""
	}
	_ = statusengine.SetHookSuffix(cs, h.Command, entryID, suffix.RunningAgent, workflows.AgentSuffixMessage(workflows.SummarizeHook, now), "")
	return fmt.Sprintf("summarize-hook workflow started for '%s'", h.DisplayCommand())
}

func (s *Supervisor) startCRSWorkflow(ctx context.Context, path string, cs *changespec.ChangeSpec, reviewer string, now time.Time) string {
	ts := suffix.FormatTimestamp(now)
	workflowName := workspace.CRSWorkflowName(reviewer)
	num, workDir, ok := s.claimWorkspace(path, workflowName, cs.Name, "crs")
	if !ok {
		return ""
	}
	outputPath := workflows.OutputPath(s.cfg.WorkflowsDir, cs.Name, workflows.CRS, ts)
	if _, err := workflows.StartBackground(ctx, workDir, outputPath, "true"); err != nil {
		log.Printf("%s: starting crs workflow: %v", cs.Name, err)
		_ = workspace.Release(path, num, workflowName, cs.Name)
		return ""
	}
	_ = statusengine.SetCommentSuffix(cs, reviewer, suffix.RunningAgent, workflows.AgentSuffixMessage(workflows.CRS, now))
	return fmt.Sprintf("crs workflow started for %q", reviewer)
}

// claimWorkspace allocates the first free loop-pool workspace number,
// claims it under workflowName, and ensures its directory exists,
// releasing the claim again on any failure.
func (s *Supervisor) claimWorkspace(path, workflowName, csName, kind string) (int, string, bool) {
	num, err := workspace.GetFirstAvailableLoopWorkspace(path)
	if err != nil {
		log.Printf("%s: allocating %s workspace: %v", csName, kind, err)
		return 0, "", false
	}
	claimed, err := workspace.Claim(path, num, workflowName, csName)
	if err != nil || !claimed {
		return 0, "", false
	}
	workDir, err := workspace.EnsureExists(s.cfg.ProjectsDir, csName, num)
	if err != nil {
		log.Printf("%s: preparing %s workspace: %v", csName, kind, err)
		_ = workspace.Release(path, num, workflowName, csName)
		return 0, "", false
	}
	return num, workDir, true
}
