package answercache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/okdaichi/townvoice/internal/protocol"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "learned.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	in := []Entry{
		{
			ID:          "e1",
			Question:    "人口は？",
			AnswerText:  "約1700人です。",
			Emotion:     protocol.EmotionNeutral,
			AudioBase64: "b64",
			Vector:      []float32{0.1, 0.2, 0.3},
			CreatedAt:   time.Now().UTC(),
		},
		{
			ID:         "e2",
			Question:   "特産品は？",
			AnswerText: "長命草です。",
			Emotion:    protocol.EmotionJoy,
		},
	}
	if err := store.SaveLearned(ctx, in); err != nil {
		t.Fatalf("SaveLearned() error = %v", err)
	}

	out, err := store.LoadLearned(ctx)
	if err != nil {
		t.Fatalf("LoadLearned() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d entries, want 2", len(out))
	}
	if out[0].ID != "e1" || out[0].AnswerText != "約1700人です。" || len(out[0].Vector) != 3 {
		t.Fatalf("first entry mismatch: %+v", out[0])
	}
	if out[1].Emotion != protocol.EmotionJoy || out[1].Vector != nil {
		t.Fatalf("second entry mismatch: %+v", out[1])
	}

	// Snapshot semantics: a save replaces everything from before.
	if err := store.SaveLearned(ctx, in[:1]); err != nil {
		t.Fatalf("SaveLearned() error = %v", err)
	}
	out, err = store.LoadLearned(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("replace semantics broken: %d entries", len(out))
	}
}

func TestStoreFactorySelection(t *testing.T) {
	ctx := context.Background()

	store, err := NewStore(ctx, StoreConfig{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("got %T, want *MemoryStore", store)
	}

	dir := t.TempDir()
	store, err = NewStore(ctx, StoreConfig{Backend: "auto", SQLitePath: filepath.Join(dir, "c.db")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("auto with sqlite path: got %T, want *SQLiteStore", store)
	}
	store.Close()

	store, err = NewStore(ctx, StoreConfig{Backend: "auto", LearnedPath: filepath.Join(dir, "l.json")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*JSONStore); !ok {
		t.Fatalf("auto with json path: got %T, want *JSONStore", store)
	}

	if _, err := NewStore(ctx, StoreConfig{Backend: "cassandra"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
