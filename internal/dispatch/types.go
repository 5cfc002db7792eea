// Package dispatch owns the question queue and the single-consumer
// pipeline that answers each question via cache, generation, and speech
// synthesis.
package dispatch

import (
	"time"

	"github.com/google/uuid"
)

// Origin tags where a request came from. Automated requests are synthetic
// and excluded from the answer cache by policy.
type Origin string

const (
	// OriginDirect is an audience question submitted through the API.
	OriginDirect Origin = "direct"
	// OriginAutomated is a question picked up from a chat feed or other
	// machine source.
	OriginAutomated Origin = "automated"
)

// Request is one question waiting for the dispatcher.
type Request struct {
	ID        string
	Text      string
	Author    string
	Origin    Origin
	Bootstrap bool
	CreatedAt time.Time
}

// NewRequest stamps a request with an ID and creation time.
func NewRequest(text, author string, origin Origin) Request {
	return Request{
		ID:        uuid.NewString(),
		Text:      text,
		Author:    author,
		Origin:    origin,
		CreatedAt: time.Now().UTC(),
	}
}

// NewBootstrapRequest builds the synthetic opening-greeting request
// enqueued at startup. It bypasses and never populates the cache.
func NewBootstrapRequest(text string) Request {
	r := NewRequest(text, "", OriginAutomated)
	r.Bootstrap = true
	return r
}

// cacheable reports whether this request may read from or write to the
// answer cache.
func (r Request) cacheable() bool {
	return r.Origin == OriginDirect && !r.Bootstrap
}
