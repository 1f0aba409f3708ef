package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/ace/internal/savedqueries"
)

func TestNewQueryCommandStructure(t *testing.T) {
	cmd := NewQueryCommand()
	require.NotNil(t, cmd)
	assert.NotNil(t, cmd.RunE)
	assert.NotNil(t, cmd.Args)
}

func TestResolveQueryArgLiteral(t *testing.T) {
	resolved, err := resolveQueryArg(`"feature" AND status:Mailed`)
	require.NoError(t, err)
	assert.Equal(t, `"feature" AND status:Mailed`, resolved)
}

func TestResolveQueryArgSavedSlotMissingErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	_, err := resolveQueryArg("@5")
	assert.Error(t, err)
}

func TestResolveQueryArgSavedSlotFound(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := savedqueries.New()
	require.NoError(t, err)
	require.NoError(t, store.Set("3", `status:Mailed`))

	resolved, err := resolveQueryArg("@3")
	require.NoError(t, err)
	assert.Equal(t, "status:Mailed", resolved)
}

func TestFindProjectFilesDiscoversGPFiles(t *testing.T) {
	dir := t.TempDir()
	projDir := filepath.Join(dir, "widget")
	require.NoError(t, os.MkdirAll(projDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "widget.gp"), []byte("NAME: widget\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(projDir, "notes.txt"), []byte("ignore"), 0o644))

	paths, err := findProjectFiles(dir)
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestFindProjectFilesMissingDirIsNotError(t *testing.T) {
	paths, err := findProjectFiles(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, paths)
}
