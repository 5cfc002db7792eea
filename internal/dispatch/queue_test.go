package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	a := NewRequest("a", "", OriginDirect)
	b := NewRequest("b", "", OriginDirect)

	if pos := q.Enqueue(a); pos != 1 {
		t.Fatalf("first position = %d, want 1", pos)
	}
	if pos := q.Enqueue(b); pos != 2 {
		t.Fatalf("second position = %d, want 2", pos)
	}

	got, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID {
		t.Fatal("dequeue order is not FIFO")
	}
	got, _ = q.Dequeue(context.Background())
	if got.ID != b.ID {
		t.Fatal("dequeue order is not FIFO")
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue()
	done := make(chan Request, 1)
	go func() {
		r, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		done <- r
	}()

	select {
	case <-done:
		t.Fatal("Dequeue returned on empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	want := NewRequest("q", "", OriginDirect)
	q.Enqueue(want)
	select {
	case got := <-done:
		if got.ID != want.ID {
			t.Fatal("wrong request delivered")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue never woke up")
	}
}

func TestDequeueHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatal("expected context error")
	}
}

func TestResetDropsPending(t *testing.T) {
	q := NewQueue()
	q.Enqueue(NewRequest("a", "", OriginDirect))
	q.Enqueue(NewRequest("b", "", OriginDirect))

	if dropped := q.Reset(); dropped != 2 {
		t.Fatalf("dropped = %d, want 2", dropped)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after reset: %d", q.Len())
	}
}

func TestOnDepthCallback(t *testing.T) {
	q := NewQueue()
	var depths []int
	q.OnDepth = func(n int) { depths = append(depths, n) }

	q.Enqueue(NewRequest("a", "", OriginDirect))
	q.Enqueue(NewRequest("b", "", OriginDirect))
	q.Dequeue(context.Background())
	q.Reset()

	want := []int{1, 2, 1, 0}
	if len(depths) != len(want) {
		t.Fatalf("depth callbacks = %v, want %v", depths, want)
	}
	for i := range want {
		if depths[i] != want[i] {
			t.Fatalf("depth callbacks = %v, want %v", depths, want)
		}
	}
}
