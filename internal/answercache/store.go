package answercache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Store persists the learned-entry snapshot. SaveLearned replaces the whole
// prior snapshot (last writer wins, no merge); the primary snapshot is
// never written through this interface.
type Store interface {
	LoadLearned(ctx context.Context) ([]Entry, error)
	SaveLearned(ctx context.Context, entries []Entry) error
	Close() error
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadPrimary reads the seeded read-only snapshot file. A missing file
// yields an empty oracle, not an error, so the service can run cold.
func LoadPrimary(path string) ([]Entry, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read primary snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func decodeSnapshot(raw []byte) ([]Entry, error) {
	// Editors on some platforms save the snapshot with a BOM, which the
	// JSON decoder rejects.
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return entries, nil
}
