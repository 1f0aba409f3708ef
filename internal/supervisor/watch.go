package supervisor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// watchProjectsDir supplements Run's interval-based polling with
// filesystem-change notifications: a new or modified *.gp file (or a
// new project subdirectory) wakes the fast cycle immediately rather
// than waiting out the rest of FastCycleInterval. Best-effort only —
// if the watcher can't be constructed (e.g. inotify limits exhausted),
// Run falls back to polling alone and this returns a nil channel,
// which a select never receives from.
func (s *Supervisor) watchProjectsDir(ctx context.Context) <-chan struct{} {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("fsnotify unavailable, falling back to polling only: %v", err)
		return nil
	}

	if err := addWatchRecursive(watcher, s.cfg.ProjectsDir); err != nil {
		log.Printf("watching %s: %v", s.cfg.ProjectsDir, err)
		_ = watcher.Close()
		return nil
	}

	changed := make(chan struct{}, 1)
	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) && isLikelyDir(event.Name) {
					_ = watcher.Add(event.Name)
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("fsnotify error watching %s: %v", s.cfg.ProjectsDir, err)
			}
		}
	}()
	return changed
}

// addWatchRecursive registers a watch on dir and every subdirectory
// beneath it; ProjectsDir's layout is one subdirectory per project
// (spec §6), so one level would usually suffice, but new nested
// structure should never silently stop being watched.
func addWatchRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if werr := watcher.Add(path); werr != nil {
				log.Printf("watching %s: %v", path, werr)
			}
		}
		return nil
	})
}

func isLikelyDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
