package statusengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/suffix"
)

func passedHook(command, entryID string) changespec.HookEntry {
	return changespec.HookEntry{Command: command, StatusLines: []changespec.HookStatusLine{
		{CommitEntryID: entryID, Status: changespec.HookPassed},
	}}
}

func TestTransitionChangeSpecStatusPermittedTable(t *testing.T) {
	cs := &changespec.ChangeSpec{Status: changespec.StatusDrafted}
	require.NoError(t, TransitionChangeSpecStatus(cs, changespec.StatusMailed, true))
	assert.Equal(t, changespec.StatusMailed, cs.Status)

	require.NoError(t, TransitionChangeSpecStatus(cs, changespec.StatusSubmitted, true))
	assert.Equal(t, changespec.StatusSubmitted, cs.Status)
}

func TestTransitionChangeSpecStatusRejectsInvalid(t *testing.T) {
	cs := &changespec.ChangeSpec{Status: changespec.StatusDrafted}
	err := TransitionChangeSpecStatus(cs, changespec.StatusSubmitted, true)
	assert.Error(t, err)
	assert.Equal(t, changespec.StatusDrafted, cs.Status)
}

func TestTransitionToRevertedAlwaysAllowed(t *testing.T) {
	for _, start := range []changespec.Status{changespec.StatusDrafted, changespec.StatusMailed, changespec.StatusSubmitted} {
		cs := &changespec.ChangeSpec{Status: start}
		require.NoError(t, TransitionChangeSpecStatus(cs, changespec.StatusReverted, true))
		assert.Equal(t, changespec.StatusReverted, cs.Status)
	}
}

func TestTransitionForcedBypassesTable(t *testing.T) {
	cs := &changespec.ChangeSpec{Status: changespec.StatusDrafted}
	require.NoError(t, TransitionChangeSpecStatus(cs, changespec.StatusSubmitted, false))
	assert.Equal(t, changespec.StatusSubmitted, cs.Status)
}

func TestTransitionStripsReadyToMailMarker(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Status:       changespec.StatusDrafted,
		StatusSuffix: &suffix.Suffix{Kind: suffix.Plain, Message: changespec.ReadyToMailMessage},
	}
	require.NoError(t, TransitionChangeSpecStatus(cs, changespec.StatusMailed, true))
	assert.Nil(t, cs.StatusSuffix)
}

func TestReadyToMailDerivationAllConditionsMet(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Name:   "widget",
		Status: changespec.StatusDrafted,
		Commits: []changespec.CommitEntry{
			{Number: 2, Note: "second"},
			{Number: 2, ProposalLetter: "a", Note: "proposal"},
		},
		Hooks: []changespec.HookEntry{{Command: "bb_build", StatusLines: []changespec.HookStatusLine{
			{CommitEntryID: "2", Status: changespec.HookPassed},
			{CommitEntryID: "2a", Status: changespec.HookPassed},
		}}},
	}
	set := &changespec.Set{Specs: []*changespec.ChangeSpec{cs}}

	ApplyReadyToMailDerivation(set, cs)
	assert.True(t, cs.HasReadyToMailSuffix())
}

func TestReadyToMailDerivationBlockedByErrorSuffix(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Name:   "widget",
		Status: changespec.StatusDrafted,
		Commits: []changespec.CommitEntry{{Number: 1}},
		Hooks:  []changespec.HookEntry{passedHook("bb_build", "1")},
		Comments: []changespec.CommentEntry{{Reviewer: "critique", Suffix: &suffix.Suffix{Kind: suffix.Error, Message: "ZOMBIE"}}},
	}
	set := &changespec.Set{Specs: []*changespec.ChangeSpec{cs}}

	ApplyReadyToMailDerivation(set, cs)
	assert.False(t, cs.HasReadyToMailSuffix())
}

func TestReadyToMailDerivationBlockedByParentNotReady(t *testing.T) {
	parent := &changespec.ChangeSpec{Name: "parent", Status: changespec.StatusDrafted}
	cs := &changespec.ChangeSpec{
		Name:    "widget",
		Status:  changespec.StatusDrafted,
		Parent:  "parent",
		Commits: []changespec.CommitEntry{{Number: 1}},
		Hooks:   []changespec.HookEntry{passedHook("bb_build", "1")},
	}
	set := &changespec.Set{Specs: []*changespec.ChangeSpec{parent, cs}}

	ApplyReadyToMailDerivation(set, cs)
	assert.False(t, cs.HasReadyToMailSuffix())
}

func TestReadyToMailDerivationRemovesStaleMarker(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Name:         "widget",
		Status:       changespec.StatusMailed,
		StatusSuffix: &suffix.Suffix{Kind: suffix.Plain, Message: changespec.ReadyToMailMessage},
	}
	set := &changespec.Set{Specs: []*changespec.ChangeSpec{cs}}

	ApplyReadyToMailDerivation(set, cs)
	assert.False(t, cs.HasReadyToMailSuffix())
}

func TestAllHooksPassedForEntriesSkipsProposalForDollarHooks(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Hooks: []changespec.HookEntry{
			{Command: "bb_lint", SkipOnProposal: true, StatusLines: []changespec.HookStatusLine{
				{CommitEntryID: "1", Status: changespec.HookPassed},
			}},
		},
	}
	assert.True(t, AllHooksPassedForEntries(cs, []string{"1", "1a"}))
}

func TestAllHooksPassedForEntriesFalseWhenMissing(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Hooks: []changespec.HookEntry{{Command: "bb_build"}},
	}
	assert.False(t, AllHooksPassedForEntries(cs, []string{"1"}))
}

func TestAcknowledgeTerminalStatusMarkersRewritesErrorToAcknowledged(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Status:       changespec.StatusReverted,
		StatusSuffix: &suffix.Suffix{Kind: suffix.Error, Message: "ZOMBIE"},
		Commits: []changespec.CommitEntry{
			{Number: 1, Suffix: &suffix.Suffix{Kind: suffix.Error, Message: "Hook Command Failed"}},
		},
	}
	AcknowledgeTerminalStatusMarkers(cs)

	assert.Equal(t, suffix.Acknowledged, cs.StatusSuffix.Kind)
	assert.Equal(t, "ZOMBIE", cs.StatusSuffix.Message)
	assert.Equal(t, suffix.Acknowledged, cs.Commits[0].Suffix.Kind)
}

func TestAcknowledgeTerminalStatusMarkersNoopForNonTerminal(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Status:       changespec.StatusDrafted,
		StatusSuffix: &suffix.Suffix{Kind: suffix.Error, Message: "ZOMBIE"},
	}
	AcknowledgeTerminalStatusMarkers(cs)
	assert.Equal(t, suffix.Error, cs.StatusSuffix.Kind)
}

func TestCleanupOldProposalSuffixesClearsSupersededError(t *testing.T) {
	cs := &changespec.ChangeSpec{
		Commits: []changespec.CommitEntry{
			{Number: 1, ProposalLetter: "a", Suffix: &suffix.Suffix{Kind: suffix.Error, Message: "ZOMBIE"}},
			{Number: 2},
		},
	}
	CleanupOldProposalSuffixes(cs)
	assert.Nil(t, cs.Commits[0].Suffix)
}

func TestSetAndClearHookSuffix(t *testing.T) {
	cs := &changespec.ChangeSpec{Hooks: []changespec.HookEntry{
		{Command: "bb_build", StatusLines: []changespec.HookStatusLine{{CommitEntryID: "1", Status: changespec.HookRunning}}},
	}}

	require.NoError(t, SetHookSuffix(cs, "bb_build", "1", suffix.Plain, "424242", ""))
	line := cs.Hooks[0].StatusLineFor("1")
	require.NotNil(t, line.Suffix)
	assert.Equal(t, suffix.RunningProcess, line.Suffix.Kind)

	require.NoError(t, ClearHookSuffix(cs, "bb_build", "1"))
	assert.Nil(t, cs.Hooks[0].StatusLineFor("1").Suffix)
}

func TestAddCommentEntryReplacesSameReviewer(t *testing.T) {
	cs := &changespec.ChangeSpec{}
	AddCommentEntry(cs, "critique", "/a.json")
	AddCommentEntry(cs, "critique", "/b.json")
	require.Len(t, cs.Comments, 1)
	assert.Equal(t, "/b.json", cs.Comments[0].Path)
}

func TestRemoveCommentEntry(t *testing.T) {
	cs := &changespec.ChangeSpec{Comments: []changespec.CommentEntry{{Reviewer: "critique"}, {Reviewer: "critique:me"}}}
	RemoveCommentEntry(cs, "critique")
	require.Len(t, cs.Comments, 1)
	assert.Equal(t, "critique:me", cs.Comments[0].Reviewer)
}
