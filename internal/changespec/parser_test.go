package changespec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProjectFile = `NAME: widget-refactor
DESCRIPTION: Refactor the widget renderer
  to share the layout helper.
PARENT: widget-base
CL: https://example.com/cl/1234
STATUS: Drafted
TEST TARGETS: //widget:all, //widget:smoke
COMMITS:
  (1) initial cut
      | CHAT: /chats/1.json
      | DIFF: /diffs/1.patch
  (1a) fix-hook proposal - (!: ZOMBIE)
HOOKS:
  !bb_build
    (1) [250801_120000] PASSED (12s)
    (1a) [250801_123000] RUNNING - (@)
  $bb_lint
COMMENTS:
  [critique] /comments/critique.json - (~: ZOMBIE)


NAME: second-entry
STATUS: Mailed
`

func TestParseExtractsAllFields(t *testing.T) {
	set := Parse("test.gp", []byte(sampleProjectFile))
	require.Len(t, set.Specs, 2)

	cs := set.ByName("widget-refactor")
	require.NotNil(t, cs)
	assert.Equal(t, "Refactor the widget renderer\nto share the layout helper.", cs.Description)
	assert.Equal(t, "widget-base", cs.Parent)
	assert.Equal(t, "https://example.com/cl/1234", cs.CL)
	assert.Equal(t, StatusDrafted, cs.Status)
	assert.Equal(t, []string{"//widget:all", "//widget:smoke"}, cs.TestTargets)
	require.Len(t, cs.Commits, 2)
	assert.Equal(t, "1", cs.Commits[0].DisplayNumber())
	assert.Equal(t, "/chats/1.json", cs.Commits[0].ChatPath)
	assert.Equal(t, "/diffs/1.patch", cs.Commits[0].DiffPath)
	assert.Equal(t, "1a", cs.Commits[1].DisplayNumber())
	require.NotNil(t, cs.Commits[1].Suffix)
	assert.True(t, cs.Commits[1].Suffix.IsError())

	require.Len(t, cs.Hooks, 2)
	assert.True(t, cs.Hooks[0].DisableFixHookOnFailure)
	assert.Equal(t, "bb_build", cs.Hooks[0].Command)
	require.Len(t, cs.Hooks[0].StatusLines, 2)
	assert.Equal(t, HookPassed, cs.Hooks[0].StatusLines[0].Status)
	assert.Equal(t, "12s", cs.Hooks[0].StatusLines[0].Duration)
	assert.Equal(t, HookRunning, cs.Hooks[0].StatusLines[1].Status)
	assert.True(t, cs.Hooks[1].SkipOnProposal)
	assert.Empty(t, cs.Hooks[1].StatusLines)

	require.Len(t, cs.Comments, 1)
	assert.Equal(t, "critique", cs.Comments[0].Reviewer)

	second := set.ByName("second-entry")
	require.NotNil(t, second)
	assert.Equal(t, StatusMailed, second.Status)
}

func TestParseRunningClaims(t *testing.T) {
	claims := ParseRunningClaims("(101, loop(hooks)-1, widget-refactor), (4, qa, other-cl)")
	require.Len(t, claims, 2)
	assert.Equal(t, RunningClaim{WorkspaceNum: 101, Workflow: "loop(hooks)-1", CLName: "widget-refactor"}, claims[0])
	assert.Equal(t, RunningClaim{WorkspaceNum: 4, Workflow: "qa", CLName: "other-cl"}, claims[1])
}

func TestParseTolerantOfUnrecognizedLines(t *testing.T) {
	input := "NAME: garbled\nTHIS IS NOT A FIELD\nSTATUS: Drafted\n"
	set := Parse("test.gp", []byte(input))
	require.Len(t, set.Specs, 1)
	assert.Equal(t, StatusDrafted, set.Specs[0].Status)
}

func TestRoundTripParseFormatParse(t *testing.T) {
	set := Parse("test.gp", []byte(sampleProjectFile))
	formatted := Format(set)
	reparsed := Parse("test.gp", []byte(formatted))

	require.Len(t, reparsed.Specs, len(set.Specs))
	for i, cs := range set.Specs {
		other := reparsed.Specs[i]
		assert.Equal(t, cs.Name, other.Name)
		assert.Equal(t, cs.Status, other.Status)
		assert.Equal(t, cs.Parent, other.Parent)
		assert.Equal(t, len(cs.Commits), len(other.Commits))
		assert.Equal(t, len(cs.Hooks), len(other.Hooks))
		for j, h := range cs.Hooks {
			assert.Equal(t, h.Command, other.Hooks[j].Command)
			assert.Equal(t, len(h.StatusLines), len(other.Hooks[j].StatusLines))
		}
	}
}
