// Package snapshot keeps a best-effort local copy of filename to metadata
// mappings. It is never consulted to answer API reads.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
)

// Snapshot is an in-memory map that can be loaded from and saved to a file.
// It is safe for concurrent use.
type Snapshot struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]map[string]interface{}

	// saveMu orders Save calls so the last copy taken is the last one written.
	saveMu sync.Mutex
}

// New returns an empty snapshot bound to path.
func New(path string, logger *slog.Logger) *Snapshot {
	return &Snapshot{
		path:    path,
		logger:  logger,
		entries: make(map[string]map[string]interface{}),
	}
}

// Put records metadata for a file name, replacing any previous entry.
func (s *Snapshot) Put(name string, metadata map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = metadata
}

// Remove drops the entry for a file name.
func (s *Snapshot) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
}

// Get returns the metadata stored for name.
func (s *Snapshot) Get(name string) (map[string]interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.entries[name]
	return m, ok
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Load replaces the in-memory entries with the file contents. A missing or
// empty file leaves the snapshot empty; a corrupt one resets it and returns
// the error.
func (s *Snapshot) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.reset()
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("snapshot file not found, starting empty", slog.String("path", s.path))
			return nil
		}
		return fmt.Errorf("snapshot load: %w", err)
	}

	if strings.TrimSpace(string(data)) == "" {
		s.logger.Warn("snapshot file is empty, nothing to load", slog.String("path", s.path))
		s.reset()
		return nil
	}

	var pairs [][2]json.RawMessage
	if err := json.Unmarshal(data, &pairs); err != nil {
		s.reset()
		return fmt.Errorf("snapshot decode: %w", err)
	}

	entries := make(map[string]map[string]interface{}, len(pairs))
	for _, p := range pairs {
		var name string
		var meta map[string]interface{}
		if err := json.Unmarshal(p[0], &name); err != nil {
			s.reset()
			return fmt.Errorf("snapshot decode name: %w", err)
		}
		if err := json.Unmarshal(p[1], &meta); err != nil {
			s.reset()
			return fmt.Errorf("snapshot decode metadata for %q: %w", name, err)
		}
		entries[name] = meta
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// Save writes all entries to the file atomically as a JSON array of
// [name, metadata] pairs, sorted by name.
func (s *Snapshot) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([][2]interface{}, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, [2]interface{}{name, s.entries[name]})
	}
	data, err := json.Marshal(pairs)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("snapshot encode: %w", err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("snapshot save: %w", err)
	}
	return nil
}

func (s *Snapshot) reset() {
	s.mu.Lock()
	s.entries = make(map[string]map[string]interface{})
	s.mu.Unlock()
}
