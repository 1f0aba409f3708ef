package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessagesCarryPrefixAndText(t *testing.T) {
	assert.Contains(t, FormatSuccessMessage("mailed"), "mailed")
	assert.Contains(t, FormatInfoMessage("polling"), "polling")
	assert.Contains(t, FormatWarningMessage("zombie hook"), "zombie hook")
	assert.Contains(t, FormatErrorMessage("parse failed"), "parse failed")
	assert.Contains(t, FormatCountMessage("3 ready to mail"), "3 ready to mail")
	assert.Contains(t, FormatProgressMessage("running fix-hook"), "running fix-hook")
	assert.Contains(t, FormatCommandMessage("hg amend"), "hg amend")
}

func TestFormatErrorWithSuggestionsListsEach(t *testing.T) {
	out := FormatErrorWithSuggestions("hook command failed", []string{"check ~/.gai/hooks/out.log", "rerun the hook"})
	assert.Contains(t, out, "hook command failed")
	assert.Contains(t, out, "check ~/.gai/hooks/out.log")
	assert.Contains(t, out, "rerun the hook")
}

func TestToRelativePathLeavesRelativePathUnchanged(t *testing.T) {
	assert.Equal(t, "relative/path", ToRelativePath("relative/path"))
}
