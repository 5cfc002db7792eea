package answercache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONStore persists the learned snapshot as a single JSON file, the same
// array-of-entries format used by the primary snapshot.
type JSONStore struct {
	path string
}

func NewJSONStore(path string) (*JSONStore, error) {
	if path == "" {
		return nil, fmt.Errorf("json store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &JSONStore{path: path}, nil
}

func (s *JSONStore) LoadLearned(_ context.Context) ([]Entry, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read learned snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func (s *JSONStore) SaveLearned(_ context.Context, entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode learned snapshot: %w", err)
	}
	// Write-then-rename so a crash mid-flush never truncates the previous
	// snapshot.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write learned snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace learned snapshot: %w", err)
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }
