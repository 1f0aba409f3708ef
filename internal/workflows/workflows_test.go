package workflows

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/suffix"
)

func TestNeedsFixHookRequiresSummarizeCompleteOnNonProposal(t *testing.T) {
	hook := &changespec.HookEntry{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
		{CommitEntryID: "2", Status: changespec.HookFailed, Suffix: &suffix.Suffix{Kind: suffix.SummarizeComplete, Message: "timed out"}},
	}}
	assert.True(t, NeedsFixHook(hook, "2"))
}

func TestNeedsFixHookFalseForProposalEntry(t *testing.T) {
	hook := &changespec.HookEntry{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
		{CommitEntryID: "2a", Status: changespec.HookFailed, Suffix: &suffix.Suffix{Kind: suffix.SummarizeComplete, Message: "timed out"}},
	}}
	assert.False(t, NeedsFixHook(hook, "2a"))
}

func TestNeedsFixHookFalseWithoutSummary(t *testing.T) {
	hook := &changespec.HookEntry{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
		{CommitEntryID: "2", Status: changespec.HookFailed},
	}}
	assert.False(t, NeedsFixHook(hook, "2"))
}

func TestFixHookEntriesFiltersEligibleOnly(t *testing.T) {
	hook := &changespec.HookEntry{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
		{CommitEntryID: "2", Status: changespec.HookFailed, Suffix: &suffix.Suffix{Kind: suffix.SummarizeComplete}},
		{CommitEntryID: "2a", Status: changespec.HookFailed, Suffix: &suffix.Suffix{Kind: suffix.SummarizeComplete}},
	}}
	assert.Equal(t, []string{"2"}, FixHookEntries(hook, []string{"2", "2a"}))
}

func TestNeedsSummarizeHookTrueForProposalAndNonProposal(t *testing.T) {
	hook := &changespec.HookEntry{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
		{CommitEntryID: "2", Status: changespec.HookFailed},
		{CommitEntryID: "2a", Status: changespec.HookFailed},
	}}
	assert.True(t, NeedsSummarizeHook(hook, "2"))
	assert.True(t, NeedsSummarizeHook(hook, "2a"))
}

func TestNeedsSummarizeHookFalseWhenSuffixPresent(t *testing.T) {
	hook := &changespec.HookEntry{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
		{CommitEntryID: "2", Status: changespec.HookFailed, Suffix: &suffix.Suffix{Kind: suffix.SummarizeComplete}},
	}}
	assert.False(t, NeedsSummarizeHook(hook, "2"))
}

func TestNeedsCRSRequiresMailedOrDraftedAndUnresolvedComment(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Status:   changespec.StatusMailed,
		Comments: []changespec.CommentEntry{{Reviewer: "critique"}, {Reviewer: "critique:me", Suffix: &suffix.Suffix{Kind: suffix.RunningAgent, Message: "crs-260101_120000"}}},
	}
	assert.Equal(t, []string{"critique"}, NeedsCRS(cs))
}

func TestNeedsCRSFalseForSubmitted(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Status:   changespec.StatusSubmitted,
		Comments: []changespec.CommentEntry{{Reviewer: "critique"}},
	}
	assert.Empty(t, NeedsCRS(cs))
}

func TestAgentSuffixMessageFormat(t *testing.T) {
	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, suffix.Location)
	assert.Equal(t, "fix_hook-260101_120000", AgentSuffixMessage(FixHook, ts))
}

func TestRunningFixHookWorkflowsDetectsNonProposalOnly(t *testing.T) {
	cs := &changespec.ChangeSpec{Hooks: []changespec.HookEntry{
		{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
			{CommitEntryID: "2", Status: changespec.HookRunning, Suffix: &suffix.Suffix{Kind: suffix.RunningAgent, Message: "fix_hook-260101_120000"}},
		}},
		{Command: "bb_lint", StatusLines: []changespec.HookStatusLine{
			{CommitEntryID: "2a", Status: changespec.HookRunning, Suffix: &suffix.Suffix{Kind: suffix.RunningAgent, Message: "fix_hook-260101_120000"}},
		}},
	}}
	running := RunningFixHookWorkflows(cs)
	require.Len(t, running, 1)
	assert.Equal(t, "bb_build", running[0].Subject)
	assert.Equal(t, "260101_120000", running[0].Timestamp)
}

func TestRunningSummarizeHookWorkflowsDetectsProposalOnly(t *testing.T) {
	cs := &changespec.ChangeSpec{Hooks: []changespec.HookEntry{
		{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
			{CommitEntryID: "2a", Status: changespec.HookRunning, Suffix: &suffix.Suffix{Kind: suffix.RunningAgent, Message: "summarize_hook-260101_120000"}},
		}},
	}}
	running := RunningSummarizeHookWorkflows(cs)
	require.Len(t, running, 1)
	assert.Equal(t, "260101_120000", running[0].Timestamp)
}

func TestRunningSummarizeHookWorkflowsAcceptsLegacyFormat(t *testing.T) {
	cs := &changespec.ChangeSpec{Hooks: []changespec.HookEntry{
		{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
			{CommitEntryID: "2a", Status: changespec.HookRunning, Suffix: &suffix.Suffix{Kind: suffix.RunningAgent, Message: "260101_120000"}},
		}},
	}}
	running := RunningSummarizeHookWorkflows(cs)
	require.Len(t, running, 1)
	assert.Equal(t, "260101_120000", running[0].Timestamp)
}

func TestRunningCRSWorkflowsFiltersByReviewer(t *testing.T) {
	cs := &changespec.ChangeSpec{Comments: []changespec.CommentEntry{
		{Reviewer: "critique", Suffix: &suffix.Suffix{Kind: suffix.RunningAgent, Message: "crs-260101_120000"}},
		{Reviewer: "someone-else", Suffix: &suffix.Suffix{Kind: suffix.RunningAgent, Message: "crs-260101_120000"}},
	}}
	running := RunningCRSWorkflows(cs)
	require.Len(t, running, 1)
	assert.Equal(t, "critique", running[0].Subject)
}

func TestOutputPathUsesDashSeparatedKind(t *testing.T) {
	path := OutputPath("/tmp/workflows", "widget", FixHook, "260101_120000")
	assert.Equal(t, filepath.Join("/tmp/workflows", "widget-fix-hook-260101_120000.txt"), path)
}

func TestParseCompletionWithProposal(t *testing.T) {
	content := "agent output\n===WORKFLOW_COMPLETE=== PROPOSAL_ID: 2a EXIT_CODE: 0\n"
	c, ok := ParseCompletion(content)
	require.True(t, ok)
	assert.Equal(t, "2a", c.ProposalID)
	assert.Equal(t, 0, c.ExitCode)
}

func TestParseCompletionNoneProposal(t *testing.T) {
	content := "===WORKFLOW_COMPLETE=== PROPOSAL_ID: None EXIT_CODE: 1\n"
	c, ok := ParseCompletion(content)
	require.True(t, ok)
	assert.Empty(t, c.ProposalID)
	assert.Equal(t, 1, c.ExitCode)
}

func TestParseCompletionAbsentReturnsFalse(t *testing.T) {
	_, ok := ParseCompletion("still running\n")
	assert.False(t, ok)
}

func TestCheckCompletionMissingFileStillRunning(t *testing.T) {
	_, ok, err := CheckCompletion(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStartBackgroundThenCheckCompletion(t *testing.T) {
	workDir := t.TempDir()
	outputPath := filepath.Join(t.TempDir(), "widget-crs-260101_120000.txt")

	pid, err := StartBackground(context.Background(), workDir,
		outputPath, `echo "===WORKFLOW_COMPLETE=== PROPOSAL_ID: None EXIT_CODE: 0"`)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	deadline := time.Now().Add(5 * time.Second)
	var (
		c  Completion
		ok bool
	)
	for time.Now().Before(deadline) {
		c, ok, err = CheckCompletion(outputPath)
		require.NoError(t, err)
		if ok {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.True(t, ok, "expected workflow to complete before deadline")
	assert.Empty(t, c.ProposalID)
	assert.Equal(t, 0, c.ExitCode)
}

func TestIsZombieTrueWhenTimestampStale(t *testing.T) {
	old := time.Now().Add(-3 * time.Hour)
	ts := suffix.FormatTimestamp(old)
	assert.True(t, IsZombie(ts, time.Now(), suffix.DefaultZombieTimeout))
}

func TestIsZombieFalseWhenFresh(t *testing.T) {
	ts := suffix.FormatTimestamp(time.Now())
	assert.False(t, IsZombie(ts, time.Now(), suffix.DefaultZombieTimeout))
}

func TestParseProposalID(t *testing.T) {
	ref, ok := ParseProposalID("12a")
	require.True(t, ok)
	assert.Equal(t, ProposalRef{Number: 12, Letter: "a"}, ref)
	assert.Equal(t, "12a", ref.DisplayID())
}

func TestParseProposalIDRejectsBareNumber(t *testing.T) {
	_, ok := ParseProposalID("12")
	assert.False(t, ok)
}

func TestRenumberHistoryEntriesPromotesAndDropsSiblings(t *testing.T) {
	cs := &changespec.ChangeSpec{Commits: []changespec.CommitEntry{
		{Number: 1},
		{Number: 2, Note: "old accepted"},
		{Number: 2, ProposalLetter: "a", Note: "the fix"},
		{Number: 2, ProposalLetter: "b", Note: "rejected alt"},
	}}
	promoted := RenumberHistoryEntries(cs, ProposalRef{Number: 2, Letter: "a"})
	require.True(t, promoted)
	require.Len(t, cs.Commits, 2)
	assert.Equal(t, 1, cs.Commits[0].Number)
	assert.Equal(t, "2", cs.Commits[1].DisplayNumber())
	assert.Equal(t, "the fix", cs.Commits[1].Note)
}

func TestRenumberHistoryEntriesFalseWhenProposalMissing(t *testing.T) {
	cs := &changespec.ChangeSpec{Commits: []changespec.CommitEntry{{Number: 1}}}
	assert.False(t, RenumberHistoryEntries(cs, ProposalRef{Number: 2, Letter: "a"}))
}

type fakeVCS struct {
	applyErr, amendErr   error
	appliedPath, amended string
}

func (f *fakeVCS) Clean(ctx context.Context, workDir string) error { return nil }
func (f *fakeVCS) Checkout(ctx context.Context, workDir, name string) error {
	return nil
}
func (f *fakeVCS) ApplyPatch(ctx context.Context, workDir, patchPath string) error {
	f.appliedPath = patchPath
	return f.applyErr
}
func (f *fakeVCS) Amend(ctx context.Context, workDir, note string) error {
	f.amended = note
	return f.amendErr
}

func TestAutoAcceptAppliesAmendsAndRenumbers(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Name: "widget",
		Commits: []changespec.CommitEntry{
			{Number: 2, Note: "old"},
			{Number: 2, ProposalLetter: "a", Note: "fixed it", DiffPath: "/tmp/2a.diff"},
		},
	}
	client := &fakeVCS{}
	err := AutoAccept(context.Background(), client, cs, "2a", "/workspace/100")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/2a.diff", client.appliedPath)
	assert.Equal(t, "fixed it", client.amended)
	require.Len(t, cs.Commits, 1)
	assert.Equal(t, "2", cs.Commits[0].DisplayNumber())
}

func TestAutoAcceptFailsOnMissingDiff(t *testing.T) {
	cs := &changespec.ChangeSpec{Commits: []changespec.CommitEntry{
		{Number: 2, ProposalLetter: "a", Note: "fixed it"},
	}}
	err := AutoAccept(context.Background(), &fakeVCS{}, cs, "2a", "/workspace/100")
	assert.Error(t, err)
	assert.Len(t, cs.Commits, 1, "failed auto-accept must leave commits untouched")
}

func TestAutoAcceptPropagatesApplyPatchFailure(t *testing.T) {
	cs := &changespec.ChangeSpec{Commits: []changespec.CommitEntry{
		{Number: 2, ProposalLetter: "a", Note: "fixed it", DiffPath: "/tmp/2a.diff"},
	}}
	client := &fakeVCS{applyErr: errors.New("patch does not apply")}
	err := AutoAccept(context.Background(), client, cs, "2a", "/workspace/100")
	assert.Error(t, err)
	assert.Empty(t, client.amended)
	assert.Len(t, cs.Commits, 1)
}

func TestAutoAcceptRejectsInvalidProposalID(t *testing.T) {
	cs := &changespec.ChangeSpec{}
	err := AutoAccept(context.Background(), &fakeVCS{}, cs, "not-a-proposal", "/workspace/100")
	assert.Error(t, err)
}

