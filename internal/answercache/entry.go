// Package answercache holds known question/answer pairs and answers
// similarity queries over them, so the pipeline can reuse previously
// generated answers instead of re-invoking the expensive providers.
package answercache

import (
	"time"

	"github.com/okdaichi/townvoice/internal/protocol"
)

// Provenance distinguishes the read-only seeded oracle from entries learned
// at runtime.
type Provenance string

const (
	// ProvenancePrimary entries are loaded once at startup and never
	// mutated or evicted by the pipeline.
	ProvenancePrimary Provenance = "primary"
	// ProvenanceLearned entries are appended on cache-miss-then-generate
	// and may be overwritten in place when flagged for repair.
	ProvenanceLearned Provenance = "learned"
)

// Entry is one cached question/answer pair. NormalizedKey is always a pure
// function of Question; Vector is optional and absent while the embedding
// provider is unavailable.
type Entry struct {
	ID            string           `json:"id,omitempty"`
	Question      string           `json:"question"`
	NormalizedKey string           `json:"-"`
	AnswerText    string           `json:"response_text"`
	Emotion       protocol.Emotion `json:"emotion"`
	AudioBase64   string           `json:"audio_b64,omitempty"`
	Vector        []float32        `json:"embedding,omitempty"`
	Provenance    Provenance       `json:"-"`
	CreatedAt     time.Time        `json:"created_at,omitempty"`
}

// MatchKind classifies a cache lookup outcome.
type MatchKind int

const (
	// MatchMiss means no reusable entry was found.
	MatchMiss MatchKind = iota
	// MatchExact means a normalized-key equality hit.
	MatchExact
	// MatchSimilar means an embedding-similarity hit with a usable answer.
	MatchSimilar
	// MatchRejected means a similarity hit whose stored answer is a known
	// "cannot answer" response and must not be served.
	MatchRejected
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchSimilar:
		return "similar"
	case MatchRejected:
		return "rejected"
	default:
		return "miss"
	}
}

// Match is the result of a cache lookup. Entry is nil for MatchMiss; Score
// is only meaningful for similarity outcomes.
type Match struct {
	Kind  MatchKind
	Entry *Entry
	Score float64
}
