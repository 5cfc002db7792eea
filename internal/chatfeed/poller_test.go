package chatfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okdaichi/townvoice/internal/dispatch"
)

type captureQueue struct {
	requests []dispatch.Request
}

func (q *captureQueue) Enqueue(r dispatch.Request) int {
	q.requests = append(q.requests, r)
	return len(q.requests)
}

func TestPollOnceEnqueuesFilteredComment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(feedResponse{Comments: []Comment{
			{ID: "c1", Author: "spam", Message: "!superchat"},
			{ID: "c2", Author: "太郎", Message: "与那国の未来について教えて"},
			{ID: "c3", Author: "花子", Message: "throttleで落ちる質問"},
		}})
	}))
	defer srv.Close()

	q := &captureQueue{}
	p := NewPoller(Config{FeedURL: srv.URL}, q, nil)

	if err := p.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce() error = %v", err)
	}

	// One comment per throttle window: the command is filtered, the first
	// real question goes through, the second waits out the window.
	if len(q.requests) != 1 {
		t.Fatalf("enqueued %d requests, want 1", len(q.requests))
	}
	r := q.requests[0]
	if r.Text != "与那国の未来について教えて" || r.Author != "太郎" {
		t.Fatalf("unexpected request: %+v", r)
	}
	if r.Origin != dispatch.OriginAutomated {
		t.Fatalf("origin = %q, want automated", r.Origin)
	}
}

func TestPollOnceSkipsSeenComments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(feedResponse{Comments: []Comment{
			{ID: "c1", Author: "太郎", Message: "人口は？"},
		}})
	}))
	defer srv.Close()

	q := &captureQueue{}
	p := NewPoller(Config{FeedURL: srv.URL, Throttle: time.Nanosecond}, q, nil)

	for i := 0; i < 3; i++ {
		if err := p.pollOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(q.requests) != 1 {
		t.Fatalf("duplicate comment enqueued: %d requests", len(q.requests))
	}
}

func TestThrottleWindowReleases(t *testing.T) {
	q := &captureQueue{}
	p := NewPoller(Config{FeedURL: "http://unused", Throttle: 30 * time.Millisecond}, q, nil)

	p.ingest([]Comment{{ID: "c1", Author: "a", Message: "一問目の質問"}})
	p.ingest([]Comment{{ID: "c2", Author: "b", Message: "二問目の質問"}})
	if len(q.requests) != 1 {
		t.Fatalf("throttle not applied: %d requests", len(q.requests))
	}

	time.Sleep(40 * time.Millisecond)
	p.ingest([]Comment{{ID: "c3", Author: "c", Message: "三問目の質問"}})
	if len(q.requests) != 2 {
		t.Fatalf("throttle never released: %d requests", len(q.requests))
	}
}

func TestPollOnceFeedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPoller(Config{FeedURL: srv.URL}, &captureQueue{}, nil)
	if err := p.pollOnce(context.Background()); err == nil {
		t.Fatal("expected error on feed failure")
	}
}
