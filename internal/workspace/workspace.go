// Package workspace grants exclusive use of one of a pool of numbered
// directories to a (workflow, ChangeSpec) pair. Claims are persisted
// in the project file's RUNNING field so they survive supervisor
// restarts, and released by the hook/workflow runners once every
// status line tied to their entry id has terminated.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/githubnext/ace/internal/aceerr"
	"github.com/githubnext/ace/internal/changespec"
	"github.com/githubnext/ace/internal/gailog"
)

var log = gailog.New("ace:workspace")

// InteractivePoolMax is the highest workspace number reserved for
// interactive tasks (qa, reword, diff) run outside the supervisor.
const InteractivePoolMax = 99

// LoopPoolStart is the first workspace number in the pool the
// supervisor allocates from for hook and workflow runs.
const LoopPoolStart = 100

// HookWorkflowName names the entry-scoped workspace claim a hook run
// for entryID uses.
func HookWorkflowName(entryID string) string {
	return fmt.Sprintf("loop(hooks)-%s", entryID)
}

// CRSWorkflowName names the workspace claim a code-review-sync run for
// reviewer uses.
func CRSWorkflowName(reviewer string) string {
	return fmt.Sprintf("loop(crs)-%s", reviewer)
}

// FixHookWorkflowName names the workspace claim a fix-hook run started
// at timestamp ts uses.
func FixHookWorkflowName(ts string) string {
	return fmt.Sprintf("loop(fix-hook)-%s", ts)
}

// Dir resolves the numbered workspace directory under a project's
// workspaces root, e.g. <projectsRoot>/<project>_workspaces/<num>.
func Dir(projectsRoot, projectName string, num int) string {
	return filepath.Join(projectsRoot, projectName+"_workspaces", fmt.Sprintf("%d", num))
}

// Claim atomically appends (num, workflow, clName) to the project
// file's RUNNING field. It fails if num is already claimed by a
// different (workflow, clName) pair.
func Claim(path string, num int, workflow, clName string) (bool, error) {
	claimed := false
	err := changespec.WriteHeader(path, func(set *changespec.Set) error {
		for _, c := range set.RunningClaims {
			if c.WorkspaceNum == num {
				if c.Workflow == workflow && c.CLName == clName {
					claimed = true
					return nil // already ours; idempotent
				}
				return aceerr.New(aceerr.ConcurrentModification,
					fmt.Sprintf("workspace %d already claimed by %s/%s", num, c.Workflow, c.CLName))
			}
		}
		set.RunningClaims = append(set.RunningClaims, changespec.RunningClaim{
			WorkspaceNum: num, Workflow: workflow, CLName: clName,
		})
		claimed = true
		return nil
	})
	if err != nil {
		if aceerr.Is(err, aceerr.ConcurrentModification) {
			return false, nil
		}
		return false, err
	}
	log.Printf("claimed workspace %d for %s/%s", num, workflow, clName)
	return claimed, nil
}

// Release removes the matching claim. It is idempotent: releasing an
// already-unclaimed slot is not an error.
func Release(path string, num int, workflow, clName string) error {
	return changespec.WriteHeader(path, func(set *changespec.Set) error {
		out := set.RunningClaims[:0]
		for _, c := range set.RunningClaims {
			if c.WorkspaceNum == num && c.Workflow == workflow && c.CLName == clName {
				continue
			}
			out = append(out, c)
		}
		set.RunningClaims = out
		return nil
	})
}

// GetClaimedWorkspaces returns every active claim in the project file.
func GetClaimedWorkspaces(path string) ([]changespec.RunningClaim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, aceerr.Wrap(aceerr.IOError, "reading project file", err)
	}
	return changespec.Parse(path, data).RunningClaims, nil
}

// GetFirstAvailableLoopWorkspace scans from LoopPoolStart upward for
// the first workspace number not currently claimed.
func GetFirstAvailableLoopWorkspace(path string) (int, error) {
	claims, err := GetClaimedWorkspaces(path)
	if err != nil {
		return 0, err
	}
	taken := make(map[int]bool, len(claims))
	for _, c := range claims {
		taken[c.WorkspaceNum] = true
	}
	for n := LoopPoolStart; ; n++ {
		if !taken[n] {
			return n, nil
		}
	}
}

// FindEntryAffinedWorkspace returns the workspace number already
// claimed for workflow against clName, if any — used by the workflow
// pollers to find the claim to release once a run has completed.
func FindEntryAffinedWorkspace(path, workflow, clName string) (int, bool, error) {
	claims, err := GetClaimedWorkspaces(path)
	if err != nil {
		return 0, false, err
	}
	for _, c := range claims {
		if c.Workflow == workflow && c.CLName == clName {
			return c.WorkspaceNum, true, nil
		}
	}
	return 0, false, nil
}

// EnsureExists verifies the numbered workspace directory is present on
// disk, creating it and its parent tree if needed. A missing directory
// is therefore not reported as an error; WorkspaceMissing is returned
// only when the directory cannot be created.
func EnsureExists(projectsRoot, projectName string, num int) (string, error) {
	dir := Dir(projectsRoot, projectName, num)
	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		return dir, nil
	}
	if !os.IsNotExist(err) {
		return "", aceerr.Wrap(aceerr.IOError, "statting workspace directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", aceerr.Wrap(aceerr.WorkspaceMissing, "creating workspace directory "+dir, err)
	}
	return dir, nil
}
