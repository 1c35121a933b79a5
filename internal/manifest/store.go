package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store persists the manifest to a JSON file. Load never fails hard: a
// missing, unreadable or schema-mismatched file yields a fresh empty
// manifest, favoring availability over upload history.
type Store struct {
	path   string
	logger *slog.Logger
}

// NewStore creates a store for the manifest file at path
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Path returns the manifest file location
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted manifest. Corrupt content is preserved as a
// .bak sibling before starting fresh so nothing is silently destroyed.
func (s *Store) Load() *Manifest {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("manifest unreadable, starting fresh", "path", s.path, "error", err)
		}
		return New(0)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		s.logger.Warn("manifest corrupt, preserving backup and starting fresh",
			"path", s.path, "error", err)
		s.preserveCorrupt(data)
		return New(0)
	}

	if m.Version != SchemaVersion {
		s.logger.Warn("manifest schema mismatch, preserving backup and starting fresh",
			"path", s.path, "version", m.Version, "expected", SchemaVersion)
		s.preserveCorrupt(data)
		return New(m.Generation)
	}

	if m.Entries == nil {
		m.Entries = make(map[string]FileRecord)
	}

	return &m
}

// Save writes the manifest atomically (temp file + rename) so a crash
// mid-write cannot corrupt the previous durable copy.
func (s *Store) Save(m *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(s.path), ".manifest-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}

	if err := tmpFile.Chmod(0644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed to chmod temp manifest: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp manifest: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace manifest: %w", err)
	}

	return nil
}

// Reset discards all entries, bumps the generation and persists the empty
// manifest immediately. The next run re-uploads everything.
func (s *Store) Reset(current *Manifest) (*Manifest, error) {
	var generation uint64
	if current != nil {
		generation = current.Generation
	}

	fresh := New(generation + 1)
	if err := s.Save(fresh); err != nil {
		return nil, err
	}

	s.logger.Info("manifest reset", "generation", fresh.Generation)
	return fresh, nil
}

// preserveCorrupt saves the unreadable manifest content next to the
// original before it gets overwritten.
func (s *Store) preserveCorrupt(data []byte) {
	bakPath := s.path + ".bak"
	if err := os.WriteFile(bakPath, data, 0644); err != nil {
		s.logger.Warn("failed to preserve corrupt manifest", "path", bakPath, "error", err)
	}
}
