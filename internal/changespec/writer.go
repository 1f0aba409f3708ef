package changespec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/githubnext/ace/internal/aceerr"
)

const (
	lockTimeout       = 30 * time.Second
	lockRetryInterval = 50 * time.Millisecond
)

// lockSuffix names the sibling lock file flock holds for the duration
// of a read-modify-write cycle. A dedicated lock file (rather than
// locking the project file itself) avoids interfering with plain
// readers that open the project file without flock.
const lockSuffix = ".lock"

// Write performs a locked read-splice-rename cycle against the
// project file at path: acquire the lock, re-read the file, locate
// the named ChangeSpec, let mutate edit it in place, then replace
// exactly the field blocks mutate changed (spec.md's writer contract,
// §4.1 step 4) — every other field of this record, every other
// ChangeSpec in the file, and any unrecognized content the tolerant
// parser skipped over all round-trip byte-for-byte. mutate returning
// an error aborts with no write.
func Write(path string, name string, mutate func(cs *ChangeSpec) error) error {
	lock := flock.New(path + lockSuffix)
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		return aceerr.Wrap(aceerr.IOError, "acquiring project file lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return aceerr.Wrap(aceerr.IOError, "re-reading project file", err)
	}
	lines := strings.Split(string(data), "\n")

	newLines, err := spliceChangeSpec(lines, name, mutate)
	if err != nil {
		return err
	}

	return AtomicWriteFile(path, []byte(strings.Join(newLines, "\n")))
}

// WriteHeader performs a locked read-splice-rename cycle like Write,
// but gives mutate the whole Set rather than one named ChangeSpec —
// used by the workspace allocator to update the project-level RUNNING
// field without touching any individual record or any other preamble
// content (e.g. BUG).
func WriteHeader(path string, mutate func(set *Set) error) error {
	lock := flock.New(path + lockSuffix)
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		return aceerr.Wrap(aceerr.IOError, "acquiring project file lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(path)
	if err != nil {
		return aceerr.Wrap(aceerr.IOError, "re-reading project file", err)
	}
	lines := strings.Split(string(data), "\n")

	newLines, err := spliceHeader(lines, path, mutate)
	if err != nil {
		return err
	}

	return AtomicWriteFile(path, []byte(strings.Join(newLines, "\n")))
}

// MergeHookUpdates is the merge-write variant: it replaces exactly the
// named hooks given in updates (keyed by bare command), leaving every
// other hook and every other field untouched. A hook named in updates
// that no longer exists in the current file state is dropped silently
// — spec §7's ConcurrentModification policy — rather than failing the
// whole write.
func MergeHookUpdates(path string, name string, updates map[string]HookEntry) error {
	return Write(path, name, func(cs *ChangeSpec) error {
		for command, updated := range updates {
			existing := cs.FindHook(command)
			if existing == nil {
				log.Printf("merge write: hook %q no longer present on %q, dropping update", command, name)
				continue
			}
			*existing = updated
		}
		return nil
	})
}

// AtomicWriteFile writes data to a temp file alongside path, then
// renames it over path. The temp file is removed on any failure.
// Exported for reuse by other packages (internal/savedqueries) that
// need the same locked-write-then-rename discipline without going
// through the project-file-specific Write/WriteHeader helpers.
func AtomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return aceerr.Wrap(aceerr.IOError, "creating temp file", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return aceerr.Wrap(aceerr.IOError, "writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return aceerr.Wrap(aceerr.IOError, "syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return aceerr.Wrap(aceerr.IOError, "closing temp file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return aceerr.Wrap(aceerr.IOError, "renaming temp file over project file", err)
	}
	return nil
}
