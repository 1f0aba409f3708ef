// Package vcs declares the narrow version-control interface the hook
// and workflow runners consume. The VCS abstraction itself — checkout,
// diff, commit, mail — is an external collaborator out of scope per
// spec §1; this package only specifies the shell-out contract and one
// concrete implementation against it.
package vcs

import (
	"context"
	"errors"
	"os/exec"

	"github.com/githubnext/ace/internal/aceerr"
	"github.com/githubnext/ace/internal/gailog"
)

var log = gailog.New("ace:vcs")

// Client is the set of VCS operations the hook and workflow runners
// need: discard local changes, check out a named ChangeSpec's head,
// apply a proposal's diff without committing, and amend the working
// commit with a new note.
type Client interface {
	Clean(ctx context.Context, workDir string) error
	Checkout(ctx context.Context, workDir, name string) error
	ApplyPatch(ctx context.Context, workDir, patchPath string) error
	Amend(ctx context.Context, workDir, note string) error
}

// ShellClient runs a configurable VCS binary ("hg" by default,
// matching the bb_hg_* helper family this spec is grounded on) as a
// subprocess per operation.
type ShellClient struct {
	Binary string
}

// NewShellClient returns a ShellClient invoking binary for every
// operation.
func NewShellClient(binary string) *ShellClient {
	return &ShellClient{Binary: binary}
}

func (c *ShellClient) run(ctx context.Context, workDir string, args ...string) error {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Dir = workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return aceerr.Wrap(aceerr.MissingSubcommand, c.Binary+" not found", err)
		}
		return aceerr.Wrap(aceerr.NonZeroExit, string(out), err)
	}
	log.Printf("%s %v in %s", c.Binary, args, workDir)
	return nil
}

// Clean discards any uncommitted local changes in workDir.
func (c *ShellClient) Clean(ctx context.Context, workDir string) error {
	return c.run(ctx, workDir, "clean", "--all")
}

// Checkout updates workDir to the named ChangeSpec's head.
func (c *ShellClient) Checkout(ctx context.Context, workDir, name string) error {
	return c.run(ctx, workDir, "update", name)
}

// ApplyPatch imports patchPath into the working directory without
// committing — used to stage a proposal's diff for hook verification.
func (c *ShellClient) ApplyPatch(ctx context.Context, workDir, patchPath string) error {
	return c.run(ctx, workDir, "import", "--no-commit", patchPath)
}

// Amend folds the current working changes into the tip commit with a
// new note.
func (c *ShellClient) Amend(ctx context.Context, workDir, note string) error {
	return c.run(ctx, workDir, "amend", "-m", note)
}
