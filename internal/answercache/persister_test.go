package answercache

import (
	"context"
	"testing"
	"time"

	"github.com/okdaichi/townvoice/internal/embedding"
	"github.com/okdaichi/townvoice/internal/protocol"
)

func TestPersisterWritesOnFlush(t *testing.T) {
	c := newTestCache(t, embedding.NewMockEmbedder(), nil, nil)
	store := NewMemoryStore()
	p := NewPersister(c, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	if _, err := c.Learn(context.Background(), "人口は？", "約1700人です。", protocol.EmotionNeutral, ""); err != nil {
		t.Fatal(err)
	}
	p.Flush()

	deadline := time.After(2 * time.Second)
	for {
		entries, err := store.LoadLearned(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("flush never reached the store")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("persister did not stop on cancel")
	}
}

func TestPersisterFinalWriteOnShutdown(t *testing.T) {
	c := newTestCache(t, embedding.NewMockEmbedder(), nil, nil)
	store := NewMemoryStore()
	p := NewPersister(c, store)

	if _, err := c.Learn(context.Background(), "特産品は？", "長命草です。", protocol.EmotionJoy, ""); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx)

	entries, err := store.LoadLearned(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("shutdown write missing: %d entries", len(entries))
	}
}

func TestFlushCoalesces(t *testing.T) {
	p := NewPersister(newTestCache(t, embedding.NewMockEmbedder(), nil, nil), NewMemoryStore())

	// No goroutine is draining the signal channel, so repeated flushes
	// must collapse into one pending signal instead of blocking.
	for i := 0; i < 10; i++ {
		p.Flush()
	}
	if len(p.signal) != 1 {
		t.Fatalf("expected 1 pending signal, got %d", len(p.signal))
	}
}
