package changespec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/ace/internal/suffix"
)

func writeTestFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "project.gp")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestWriteMutatesAndPersists(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "NAME: widget\nSTATUS: Drafted\n")

	err := Write(path, "widget", func(cs *ChangeSpec) error {
		cs.Status = StatusMailed
		return nil
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	set := Parse(path, data)
	require.Len(t, set.Specs, 1)
	assert.Equal(t, StatusMailed, set.Specs[0].Status)
}

func TestWriteUnknownNameFails(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "NAME: widget\nSTATUS: Drafted\n")

	err := Write(path, "does-not-exist", func(cs *ChangeSpec) error { return nil })
	assert.Error(t, err)
}

func TestWriteAbortsOnMutateError(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "NAME: widget\nSTATUS: Drafted\n")
	wantErr := assertError{}

	err := Write(path, "widget", func(cs *ChangeSpec) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)

	data, _ := os.ReadFile(path)
	assert.Contains(t, string(data), "STATUS: Drafted")
}

type assertError struct{}

func (assertError) Error() string { return "mutate failed" }

func TestMergeHookUpdatesDropsMissingHookAndKeepsOthers(t *testing.T) {
	dir := t.TempDir()
	contents := "NAME: widget\nSTATUS: Drafted\nHOOKS:\n  bb_build\n  bb_lint\n"
	path := writeTestFile(t, dir, contents)

	updates := map[string]HookEntry{
		"bb_build": {Command: "bb_build", StatusLines: []HookStatusLine{{
			CommitEntryID: "1",
			Status:        HookPassed,
			Duration:      "5s",
		}}},
		"bb_missing": {Command: "bb_missing"},
	}
	require.NoError(t, MergeHookUpdates(path, "widget", updates))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	set := Parse(path, data)
	cs := set.ByName("widget")
	require.NotNil(t, cs)
	require.Len(t, cs.Hooks, 2)
	build := cs.FindHook("bb_build")
	require.NotNil(t, build)
	require.Len(t, build.StatusLines, 1)
	assert.Equal(t, HookPassed, build.StatusLines[0].Status)
	lint := cs.FindHook("bb_lint")
	require.NotNil(t, lint)
	assert.Empty(t, lint.StatusLines)
}

func TestAtomicRenameLeavesNoTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.gp")
	require.NoError(t, AtomicWriteFile(path, []byte("NAME: widget\nSTATUS: Drafted\n")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "project.gp", entries[0].Name())
}

func TestWritePreservesOtherChangeSpecAndMalformedLine(t *testing.T) {
	dir := t.TempDir()
	contents := "NAME: widget\nSTATUS: Drafted\nsome unrecognized line\n\n\n" +
		"NAME: gadget\nSTATUS: Drafted\n"
	path := writeTestFile(t, dir, contents)

	err := Write(path, "widget", func(cs *ChangeSpec) error {
		cs.Status = StatusMailed
		return nil
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "some unrecognized line")
	assert.Contains(t, text, "NAME: gadget\nSTATUS: Drafted")

	set := Parse(path, data)
	require.Len(t, set.Specs, 2)
	assert.Equal(t, StatusMailed, set.Specs[0].Status)
	assert.Equal(t, StatusDrafted, set.Specs[1].Status)
}

func TestWriteLeavesUnmutatedFieldsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	// A HOOKS block containing a malformed status line the parser
	// tolerates and drops from the in-memory model; Write must not
	// touch HOOKS at all here since mutate only edits STATUS.
	contents := "NAME: widget\nSTATUS: Drafted\nHOOKS:\n  bb_build\n    this line is not a valid status line\n"
	path := writeTestFile(t, dir, contents)

	err := Write(path, "widget", func(cs *ChangeSpec) error {
		cs.Status = StatusMailed
		return nil
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "    this line is not a valid status line")
}

func TestRenderedSuffixSurvivesWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "NAME: widget\nSTATUS: Drafted\n")

	err := Write(path, "widget", func(cs *ChangeSpec) error {
		cs.StatusSuffix = &suffix.Suffix{Kind: suffix.Plain, Message: ReadyToMailMessage}
		return nil
	})
	require.NoError(t, err)

	data, _ := os.ReadFile(path)
	assert.Contains(t, string(data), "STATUS: Drafted - (READY TO MAIL)")
}
