package catalog

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SnapshotEntry is one line of a durable snapshot: "<name> : <identifier>".
type SnapshotEntry struct {
	Name       string
	Identifier string
}

// Store caches both collections in memory and owns their durable snapshots.
// Collections are swapped wholesale; readers never observe a partial update.
type Store struct {
	dir string
	log *slog.Logger

	mu       sync.RWMutex
	entities map[Kind][]Entity
	loaded   map[Kind]bool
}

// NewStore creates a Store whose snapshots live in dir.
func NewStore(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		dir:      dir,
		log:      log,
		entities: make(map[Kind][]Entity),
		loaded:   make(map[Kind]bool),
	}
}

// Replace swaps the collection for kind.
func (s *Store) Replace(kind Kind, entities []Entity) {
	cp := make([]Entity, len(entities))
	copy(cp, entities)

	s.mu.Lock()
	s.entities[kind] = cp
	s.loaded[kind] = true
	s.mu.Unlock()
}

// Entities returns a copy of the collection for kind.
func (s *Store) Entities(kind Kind) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Entity, len(s.entities[kind]))
	copy(cp, s.entities[kind])
	return cp
}

// Loaded reports whether a collection has been received since start-up.
func (s *Store) Loaded(kind Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded[kind]
}

// Resolve returns the first entity of kind whose name, secondary name,
// lowercase id or uppercase id equals token.
func (s *Store) Resolve(kind Kind, token string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities[kind] {
		if e.Matches(token) {
			return e, true
		}
	}
	return Entity{}, false
}

// SnapshotPath returns the snapshot file path for kind.
func (s *Store) SnapshotPath(kind Kind) string {
	return filepath.Join(s.dir, kind.SnapshotFile())
}

// ReadSnapshot parses the snapshot for kind. A missing or unreadable file
// yields nil: nothing was published before.
func (s *Store) ReadSnapshot(kind Kind) []SnapshotEntry {
	data, err := os.ReadFile(s.SnapshotPath(kind))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Debug("catalog: snapshot unreadable", "kind", kind, "err", err)
		}
		return nil
	}

	var out []SnapshotEntry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, parseSnapshotLine(line))
	}
	return out
}

// SnapshotTokens returns the sanitized, non-empty names recorded in the
// snapshot for kind, in file order.
func (s *Store) SnapshotTokens(kind Kind) []string {
	var tokens []string
	for _, e := range s.ReadSnapshot(kind) {
		if t := Sanitize(e.Name); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// PersistSnapshot overwrites the snapshot for kind with one line per entity.
// Failures are logged; the in-memory collection is left as is.
func (s *Store) PersistSnapshot(kind Kind, entities []Entity) {
	lines := make([]string, len(entities))
	for i, e := range entities {
		lines[i] = e.StateName() + " : " + e.Identifier()
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.log.Error("catalog: snapshot dir create failed", "kind", kind, "err", err)
		return
	}
	if err := os.WriteFile(s.SnapshotPath(kind), []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		s.log.Error("catalog: snapshot write failed", "kind", kind, "err", err)
	}
}

// parseSnapshotLine splits on the last " : " so names that contain a colon
// survive a round trip. Lines without the separator fall back to the first
// colon, then to the whole line.
func parseSnapshotLine(line string) SnapshotEntry {
	if i := strings.LastIndex(line, " : "); i >= 0 {
		return SnapshotEntry{
			Name:       strings.TrimSpace(line[:i]),
			Identifier: strings.TrimSpace(line[i+3:]),
		}
	}
	if i := strings.Index(line, ":"); i >= 0 {
		return SnapshotEntry{
			Name:       strings.TrimSpace(line[:i]),
			Identifier: strings.TrimSpace(line[i+1:]),
		}
	}
	return SnapshotEntry{Name: line}
}
