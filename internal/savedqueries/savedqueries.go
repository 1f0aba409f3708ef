// Package savedqueries persists the TUI's numbered query-slot bindings
// (keys "0"-"9") to a small JSON file, so a filter built once with
// internal/query can be recalled by a single keystroke in a later
// session. Grounded on the source's saved_queries.py module, which
// this package ports function-for-function; the locked
// read-modify-write-rename discipline is borrowed from
// internal/changespec rather than reimplemented.
package savedqueries

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/githubnext/ace/internal/aceerr"
	"github.com/githubnext/ace/internal/changespec"
)

// SlotOrder is the key-press order slots are offered in: 1-9 then 0,
// matching the source's KEY_ORDER so "1" is the first slot filled and
// "0" the tenth and last.
var SlotOrder = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "0"}

// MaxSavedQueries is the total number of available slots.
const MaxSavedQueries = len(SlotOrder)

const (
	lockSuffix        = ".lock"
	lockTimeout       = 5 * time.Second
	lockRetryInterval = 25 * time.Millisecond
)

func isValidSlot(slot string) bool {
	for _, s := range SlotOrder {
		if s == slot {
			return true
		}
	}
	return false
}

// DefaultPath returns ~/.gai/saved_queries.json, the path spec §6 names.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", aceerr.Wrap(aceerr.IOError, "resolving home directory", err)
	}
	return filepath.Join(home, ".gai", "saved_queries.json"), nil
}

// Store is a saved-queries file at a fixed path. Tests construct one
// directly against a temp path rather than going through DefaultPath.
type Store struct {
	Path string
}

// New returns a Store backed by DefaultPath.
func New() (*Store, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return &Store{Path: path}, nil
}

// Load reads every saved slot, silently treating a missing file,
// unreadable file, or corrupt JSON as an empty set — the source's
// load_saved_queries swallows OSError/JSONDecodeError the same way,
// since a saved-queries file is a convenience cache, not a source of
// truth a caller should fail hard over.
func (s *Store) Load() map[string]string {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return map[string]string{}
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if isValidSlot(k) {
			out[k] = v
		}
	}
	return out
}

// Get returns the query saved in slot, and whether one was present.
func (s *Store) Get(slot string) (string, bool) {
	query, ok := s.Load()[slot]
	return query, ok
}

// Set saves query to slot, returning an error if slot is not one of
// SlotOrder or the write fails.
func (s *Store) Set(slot, query string) error {
	if !isValidSlot(slot) {
		return aceerr.New(aceerr.IOError, "invalid saved-query slot: "+slot)
	}
	return s.update(func(queries map[string]string) {
		queries[slot] = query
	})
}

// Delete removes slot if present. Deleting an already-empty slot is a
// no-op, matching the source's delete_query.
func (s *Store) Delete(slot string) error {
	return s.update(func(queries map[string]string) {
		delete(queries, slot)
	})
}

// NextAvailableSlot returns the first unused slot in SlotOrder, or ""
// if every slot is occupied.
func (s *Store) NextAvailableSlot() string {
	queries := s.Load()
	for _, slot := range SlotOrder {
		if _, ok := queries[slot]; !ok {
			return slot
		}
	}
	return ""
}

// List returns every occupied slot in SlotOrder, each paired with its
// saved query.
func (s *Store) List() []Entry {
	queries := s.Load()
	var out []Entry
	for _, slot := range SlotOrder {
		if query, ok := queries[slot]; ok {
			out = append(out, Entry{Slot: slot, Query: query})
		}
	}
	return out
}

// Entry is one occupied slot, returned by List in slot order.
type Entry struct {
	Slot  string
	Query string
}

// update performs a locked load-mutate-write cycle against s.Path,
// using the same flock-guarded atomic rename internal/changespec uses
// for project files, so concurrent TUI instances never interleave
// writes or observe a half-written file.
func (s *Store) update(mutate func(queries map[string]string)) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return aceerr.Wrap(aceerr.IOError, "creating saved-queries directory", err)
	}

	lock := flock.New(s.Path + lockSuffix)
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		return aceerr.Wrap(aceerr.IOError, "acquiring saved-queries lock", err)
	}
	defer func() { _ = lock.Unlock() }()

	queries := s.Load()
	mutate(queries)

	data, err := json.MarshalIndent(queries, "", "  ")
	if err != nil {
		return aceerr.Wrap(aceerr.IOError, "marshaling saved queries", err)
	}
	return changespec.AtomicWriteFile(s.Path, data)
}
