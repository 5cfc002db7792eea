// Package chatfeed turns live-stream chat comments into automated
// questions for the dispatcher.
package chatfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/okdaichi/townvoice/internal/brain"
	"github.com/okdaichi/townvoice/internal/dispatch"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultThrottle     = 10 * time.Second
	defaultHTTPTimeout  = 10 * time.Second

	// seenCap bounds the duplicate-suppression set. Old IDs are dropped
	// wholesale when the cap is hit; a re-answered comment is harmless.
	seenCap = 2000
)

// Comment is one chat message from the feed.
type Comment struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Message string `json:"message"`
}

type feedResponse struct {
	Comments []Comment `json:"comments"`
}

// Enqueuer is the subset of the dispatch queue the poller needs.
type Enqueuer interface {
	Enqueue(dispatch.Request) int
}

// Config parameterizes the poller. FeedURL is required; zero durations get
// defaults.
type Config struct {
	FeedURL      string
	PollInterval time.Duration
	// Throttle is the minimum gap between enqueued comments, so a busy
	// chat cannot flood the pipeline.
	Throttle time.Duration
}

// Poller reads the chat feed on an interval, filters comments, and
// enqueues at most one question per throttle window.
type Poller struct {
	cfg    Config
	queue  Enqueuer
	filter *brain.CommentFilter
	client *http.Client

	seen        map[string]struct{}
	lastEnqueue time.Time
}

func NewPoller(cfg Config, queue Enqueuer, filter *brain.CommentFilter) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = defaultThrottle
	}
	if filter == nil {
		filter = brain.NewCommentFilter()
	}
	return &Poller{
		cfg:    cfg,
		queue:  queue,
		filter: filter,
		client: &http.Client{Timeout: defaultHTTPTimeout},
		seen:   make(map[string]struct{}),
	}
}

// Run polls until ctx is cancelled. Feed errors are logged and the next
// tick retries; the poller never takes the service down.
func (p *Poller) Run(ctx context.Context) {
	log.Printf("[chatfeed] polling %s every %s", p.cfg.FeedURL, p.cfg.PollInterval)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[chatfeed] poller stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				log.Printf("[chatfeed] poll failed: %v", err)
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	comments, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	p.ingest(comments)
	return nil
}

func (p *Poller) fetch(ctx context.Context) ([]Comment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.FeedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed status %d", resp.StatusCode)
	}
	var parsed feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return parsed.Comments, nil
}

// ingest enqueues at most one new, filter-passing comment per call, and
// only once the throttle window since the previous enqueue has elapsed.
func (p *Poller) ingest(comments []Comment) {
	if len(p.seen) > seenCap {
		p.seen = make(map[string]struct{})
	}

	throttled := time.Since(p.lastEnqueue) < p.cfg.Throttle
	for _, c := range comments {
		if c.ID == "" {
			continue
		}
		if _, dup := p.seen[c.ID]; dup {
			continue
		}
		p.seen[c.ID] = struct{}{}

		if throttled || !p.filter.ShouldProcess(c.Message) {
			continue
		}
		pos := p.queue.Enqueue(dispatch.NewRequest(c.Message, c.Author, dispatch.OriginAutomated))
		p.lastEnqueue = time.Now()
		throttled = true
		log.Printf("[chatfeed] enqueued comment from %s at position %d", c.Author, pos)
	}
}
