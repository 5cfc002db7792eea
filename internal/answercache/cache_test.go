package answercache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/okdaichi/townvoice/internal/embedding"
	"github.com/okdaichi/townvoice/internal/policy"
	"github.com/okdaichi/townvoice/internal/protocol"
)

func newTestCache(t *testing.T, mock *embedding.MockEmbedder, primary, learned []Entry) *Cache {
	t.Helper()
	return New(mock, policy.NewRejectionSet(nil), DefaultSimilarityFloor, primary, learned)
}

func TestLearnThenExactLookup(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	c := newTestCache(t, mock, nil, nil)

	if _, err := c.Learn(context.Background(), "島の人口は？", "約1700人です。", protocol.EmotionNeutral, "b64"); err != nil {
		t.Fatalf("Learn() error = %v", err)
	}

	// Punctuation and spacing differences must not break exact matching.
	m := c.Lookup(context.Background(), "島の人口は")
	if m.Kind != MatchExact {
		t.Fatalf("Lookup kind = %v, want exact", m.Kind)
	}
	if m.Entry.AnswerText != "約1700人です。" {
		t.Fatalf("unexpected answer %q", m.Entry.AnswerText)
	}
}

func TestExactLookupSkipsEmbedding(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	c := newTestCache(t, mock, []Entry{{Question: "特産品は？", AnswerText: "長命草です。", Vector: []float32{1, 0}}}, nil)

	mock.Calls = 0
	if m := c.Lookup(context.Background(), "特産品は"); m.Kind != MatchExact {
		t.Fatalf("Lookup kind = %v, want exact", m.Kind)
	}
	if mock.Calls != 0 {
		t.Fatalf("exact hit should not embed, got %d calls", mock.Calls)
	}
}

func TestSimilarHitAboveFloor(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	mock.Pin("観光名所を教えて", []float32{1, 0, 0})
	c := newTestCache(t, mock, []Entry{
		{Question: "おすすめの観光地は？", AnswerText: "東崎がおすすめです。", Vector: []float32{0.95, 0.05, 0}},
		{Question: "人口は？", AnswerText: "約1700人です。", Vector: []float32{0, 0, 1}},
	}, nil)

	m := c.Lookup(context.Background(), "観光名所を教えて")
	if m.Kind != MatchSimilar {
		t.Fatalf("Lookup kind = %v, want similar", m.Kind)
	}
	if m.Entry.AnswerText != "東崎がおすすめです。" {
		t.Fatalf("matched wrong entry: %q", m.Entry.AnswerText)
	}
	if m.Score < DefaultSimilarityFloor {
		t.Fatalf("score %v below floor", m.Score)
	}
}

func TestBelowFloorIsMiss(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	mock.Pin("今日の天気は", []float32{0, 1})
	c := newTestCache(t, mock, []Entry{
		{Question: "人口は？", AnswerText: "約1700人です。", Vector: []float32{1, 0}},
	}, nil)

	if m := c.Lookup(context.Background(), "今日の天気は"); m.Kind != MatchMiss {
		t.Fatalf("Lookup kind = %v, want miss", m.Kind)
	}
}

func TestSimilarHitWithRejectionAnswerIsRejected(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	mock.Pin("予算について教えて", []float32{1, 0})
	c := newTestCache(t, mock, nil, []Entry{
		{Question: "来年度の予算は？", AnswerText: "申し訳ありません、お答えできません。", Vector: []float32{0.99, 0.01}},
	})

	m := c.Lookup(context.Background(), "予算について教えて")
	if m.Kind != MatchRejected {
		t.Fatalf("Lookup kind = %v, want rejected", m.Kind)
	}
	if m.Entry == nil {
		t.Fatal("rejected match must carry the flagged entry")
	}
}

func TestExactHitBypassesRejectionScreen(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	c := newTestCache(t, mock, []Entry{
		{Question: "来年度の予算は？", AnswerText: "申し訳ありません、お答えできません。"},
	}, nil)

	// Rejection phrases only gate the similarity path.
	if m := c.Lookup(context.Background(), "来年度の予算は"); m.Kind != MatchExact {
		t.Fatalf("Lookup kind = %v, want exact", m.Kind)
	}
}

func TestEmbedFailureDegradesToMiss(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	mock.Err = errors.New("provider down")
	c := newTestCache(t, mock, []Entry{
		{Question: "人口は？", AnswerText: "約1700人です。", Vector: []float32{1, 0}},
	}, nil)

	if m := c.Lookup(context.Background(), "島の人口について"); m.Kind != MatchMiss {
		t.Fatalf("Lookup kind = %v, want miss on embed failure", m.Kind)
	}
	// Exact matching keeps working while the provider is down.
	if m := c.Lookup(context.Background(), "人口は"); m.Kind != MatchExact {
		t.Fatalf("exact path should survive provider outage, got %v", m.Kind)
	}
}

func TestRepairPrimaryRefused(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	c := newTestCache(t, mock, []Entry{
		{Question: "人口は？", AnswerText: "約1700人です。"},
	}, nil)

	m := c.Lookup(context.Background(), "人口は？")
	if m.Kind != MatchExact {
		t.Fatalf("setup lookup failed: %v", m.Kind)
	}
	if err := c.Repair(m.Entry, "new", protocol.EmotionJoy, ""); !errors.Is(err, ErrPrimaryImmutable) {
		t.Fatalf("Repair on primary = %v, want ErrPrimaryImmutable", err)
	}
	if m.Entry.AnswerText != "約1700人です。" {
		t.Fatal("primary entry was mutated")
	}
}

func TestRepairLearnedOverwritesInPlace(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	c := newTestCache(t, mock, nil, nil)

	e, err := c.Learn(context.Background(), "予算は？", "申し訳ありません、お答えできません。", protocol.EmotionSorrow, "oldaudio")
	if err != nil {
		t.Fatalf("Learn() error = %v", err)
	}
	if err := c.Repair(e, "約50億円です。", protocol.EmotionNeutral, "newaudio"); err != nil {
		t.Fatalf("Repair() error = %v", err)
	}

	m := c.Lookup(context.Background(), "予算は")
	if m.Kind != MatchExact || m.Entry.AnswerText != "約50億円です。" {
		t.Fatalf("repaired answer not visible: kind=%v answer=%q", m.Kind, m.Entry.AnswerText)
	}
	if m.Entry.AudioBase64 != "newaudio" {
		t.Fatalf("repaired audio not visible: %q", m.Entry.AudioBase64)
	}
	if got := len(c.LearnedEntries()); got != 1 {
		t.Fatalf("repair must overwrite, not append: %d entries", got)
	}
}

func TestLearnRefusesEmptyKey(t *testing.T) {
	c := newTestCache(t, embedding.NewMockEmbedder(), nil, nil)
	if _, err := c.Learn(context.Background(), "！？。", "answer", protocol.EmotionNeutral, ""); err == nil {
		t.Fatal("expected error for punctuation-only question")
	}
}

func TestLearnSurvivesEmbedFailure(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	mock.Err = errors.New("provider down")
	c := newTestCache(t, mock, nil, nil)

	e, err := c.Learn(context.Background(), "特産品は？", "長命草です。", protocol.EmotionJoy, "")
	if err != nil {
		t.Fatalf("Learn() error = %v", err)
	}
	if len(e.Vector) != 0 {
		t.Fatal("expected text-only entry when embedding fails")
	}
	if m := c.Lookup(context.Background(), "特産品は"); m.Kind != MatchExact {
		t.Fatalf("text-only entry must still exact-match, got %v", m.Kind)
	}
}

func TestAttachAudio(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	c := newTestCache(t, mock, []Entry{
		{Question: "人口は？", AnswerText: "約1700人です。"},
	}, nil)

	e, err := c.Learn(context.Background(), "特産品は？", "長命草です。", protocol.EmotionNeutral, "")
	if err != nil {
		t.Fatal(err)
	}
	c.AttachAudio(e, "audio1")
	if e.AudioBase64 != "audio1" {
		t.Fatalf("audio not attached: %q", e.AudioBase64)
	}
	c.AttachAudio(e, "audio2")
	if e.AudioBase64 != "audio1" {
		t.Fatal("existing audio must not be replaced")
	}

	primary := c.Lookup(context.Background(), "人口は？").Entry
	c.AttachAudio(primary, "audio3")
	if primary.AudioBase64 != "" {
		t.Fatal("primary entries must stay untouched")
	}
}

func TestIndexBackfillOnFirstSimilarityLookup(t *testing.T) {
	mock := embedding.NewMockEmbedder()
	mock.Pin("観光名所を教えて", []float32{1, 0})
	mock.Pin("おすすめの観光地は？", []float32{0.98, 0.02})
	c := newTestCache(t, mock, []Entry{
		{Question: "おすすめの観光地は？", AnswerText: "東崎がおすすめです。"},
	}, nil)

	if got := c.IndexedLen(); got != 0 {
		t.Fatalf("expected cold index, got %d", got)
	}
	if m := c.Lookup(context.Background(), "観光名所を教えて"); m.Kind != MatchSimilar {
		t.Fatalf("Lookup kind = %v, want similar after backfill", m.Kind)
	}
	if got := c.IndexedLen(); got != 1 {
		t.Fatalf("backfill did not persist vectors: %d indexed", got)
	}
}

func TestJSONStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learned.json")
	store, err := NewJSONStore(path)
	if err != nil {
		t.Fatal(err)
	}

	in := []Entry{{
		ID:          "e1",
		Question:    "人口は？",
		AnswerText:  "約1700人です。",
		Emotion:     protocol.EmotionNeutral,
		AudioBase64: "b64",
		Vector:      []float32{0.1, 0.2},
	}}
	if err := store.SaveLearned(context.Background(), in); err != nil {
		t.Fatalf("SaveLearned() error = %v", err)
	}

	out, err := store.LoadLearned(context.Background())
	if err != nil {
		t.Fatalf("LoadLearned() error = %v", err)
	}
	if len(out) != 1 || out[0].Question != "人口は？" || out[0].AnswerText != "約1700人です。" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if len(out[0].Vector) != 2 {
		t.Fatalf("vector not persisted: %+v", out[0].Vector)
	}
}

func TestJSONStoreMissingFile(t *testing.T) {
	store, err := NewJSONStore(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	entries, err := store.LoadLearned(context.Background())
	if err != nil {
		t.Fatalf("LoadLearned() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty snapshot, got %d entries", len(entries))
	}
}

func TestDecodeSnapshotTolerantOfBOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`[{"question":"q","response_text":"a","emotion":"Joy"}]`)...)
	entries, err := decodeSnapshot(raw)
	if err != nil {
		t.Fatalf("decodeSnapshot() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Emotion != protocol.EmotionJoy {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestLoadPrimaryMissingPathIsEmpty(t *testing.T) {
	entries, err := LoadPrimary(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadPrimary() error = %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries, got %v", entries)
	}
}
