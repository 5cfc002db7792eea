package answercache

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okdaichi/townvoice/internal/embedding"
	"github.com/okdaichi/townvoice/internal/policy"
	"github.com/okdaichi/townvoice/internal/protocol"
	"github.com/okdaichi/townvoice/internal/textnorm"
)

// DefaultSimilarityFloor is the minimum cosine similarity for a paraphrase
// hit. Empirically chosen; below it, reuse of semantically distant answers
// produced visible mistakes.
const DefaultSimilarityFloor = 0.75

// ErrPrimaryImmutable is returned when a repair targets a primary entry.
var ErrPrimaryImmutable = errors.New("primary cache entries are immutable")

// Cache is the in-memory semantic answer cache. It is owned by the
// dispatcher: all mutation happens on the dispatcher goroutine, and the
// internal lock only guards against concurrent read-side access (history
// endpoints, the persister snapshotting learned entries).
type Cache struct {
	mu         sync.RWMutex
	embedder   embedding.Embedder
	rejections *policy.RejectionSet
	floor      float64

	entries    []*Entry
	indexBuilt bool
}

// New builds a cache over the loaded primary and learned snapshots.
// Normalized keys are recomputed from the stored question text, never
// trusted from the snapshot.
func New(embedder embedding.Embedder, rejections *policy.RejectionSet, floor float64, primary, learned []Entry) *Cache {
	if floor <= 0 || floor > 1 {
		floor = DefaultSimilarityFloor
	}
	if rejections == nil {
		rejections = policy.NewRejectionSet(nil)
	}
	c := &Cache{
		embedder:   embedder,
		rejections: rejections,
		floor:      floor,
	}
	for i := range primary {
		c.entries = append(c.entries, c.adopt(primary[i], ProvenancePrimary))
	}
	for i := range learned {
		c.entries = append(c.entries, c.adopt(learned[i], ProvenanceLearned))
	}
	return c
}

func (c *Cache) adopt(e Entry, prov Provenance) *Entry {
	e.Provenance = prov
	e.NormalizedKey = textnorm.Normalize(e.Question)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return &e
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// IndexedLen returns the number of entries carrying an embedding vector.
func (c *Cache) IndexedLen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		if len(e.Vector) > 0 {
			n++
		}
	}
	return n
}

// Lookup resolves a question against the cache. Exact normalized-key
// equality short-circuits before any embedding work; the similarity path is
// only reached on exact miss and degrades to a plain miss when the
// embedding provider is unavailable.
func (c *Cache) Lookup(ctx context.Context, question string) Match {
	key := textnorm.Normalize(question)
	if key == "" {
		return Match{Kind: MatchMiss}
	}

	c.mu.RLock()
	for _, e := range c.entries {
		if e.NormalizedKey == key {
			c.mu.RUnlock()
			return Match{Kind: MatchExact, Entry: e, Score: 1}
		}
	}
	c.mu.RUnlock()

	if c.embedder == nil {
		return Match{Kind: MatchMiss}
	}

	queryVec, err := c.embedder.Embed(ctx, question)
	if err != nil {
		// Recoverable degradation: exact-match-only until the provider
		// comes back.
		log.Printf("[cache] query embed failed, similarity disabled for this lookup: %v", err)
		return Match{Kind: MatchMiss}
	}

	c.ensureIndex(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *Entry
	bestScore := -1.0
	for _, e := range c.entries {
		if len(e.Vector) == 0 {
			continue
		}
		if score := embedding.Cosine(queryVec, e.Vector); score > bestScore {
			bestScore = score
			best = e
		}
	}
	if best == nil || bestScore < c.floor {
		return Match{Kind: MatchMiss}
	}
	if c.rejections.Matches(best.AnswerText) {
		return Match{Kind: MatchRejected, Entry: best, Score: bestScore}
	}
	return Match{Kind: MatchSimilar, Entry: best, Score: bestScore}
}

// ensureIndex backfills vectors for snapshot entries that were persisted
// without one. It runs at most once successfully; embed failures leave the
// gate open so a later lookup retries.
func (c *Cache) ensureIndex(ctx context.Context) {
	c.mu.RLock()
	built := c.indexBuilt
	c.mu.RUnlock()
	if built {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexBuilt {
		return
	}
	ok := true
	for _, e := range c.entries {
		if len(e.Vector) > 0 || e.Question == "" {
			continue
		}
		vec, err := c.embedder.Embed(ctx, e.Question)
		if err != nil {
			log.Printf("[cache] index backfill embed failed for %q: %v", truncate(e.Question, 24), err)
			ok = false
			continue
		}
		e.Vector = vec
	}
	if ok {
		c.indexBuilt = true
	}
}

// Learn appends a freshly generated answer as a learned entry and extends
// the embedding index in place. Embedding failure degrades to text-only
// persistence; the entry still participates in exact matching.
func (c *Cache) Learn(ctx context.Context, question, answerText string, emotion protocol.Emotion, audioBase64 string) (*Entry, error) {
	key := textnorm.Normalize(question)
	if key == "" {
		return nil, errors.New("refusing to learn empty cache key")
	}

	e := &Entry{
		ID:            uuid.NewString(),
		Question:      question,
		NormalizedKey: key,
		AnswerText:    answerText,
		Emotion:       emotion,
		AudioBase64:   audioBase64,
		Provenance:    ProvenanceLearned,
		CreatedAt:     time.Now().UTC(),
	}
	if c.embedder != nil {
		if vec, err := c.embedder.Embed(ctx, question); err != nil {
			log.Printf("[cache] learn embed failed, storing text-only: %v", err)
		} else {
			e.Vector = vec
		}
	}

	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
	return e, nil
}

// Repair overwrites a learned entry in place after a regeneration replaced
// its known-bad answer. Primary entries are refused: the seeded oracle is
// immutable even when it contains a rejection phrase.
func (c *Cache) Repair(entry *Entry, answerText string, emotion protocol.Emotion, audioBase64 string) error {
	if entry == nil {
		return errors.New("nil entry")
	}
	if entry.Provenance == ProvenancePrimary {
		return ErrPrimaryImmutable
	}
	c.mu.Lock()
	entry.AnswerText = answerText
	entry.Emotion = emotion
	entry.AudioBase64 = audioBase64
	c.mu.Unlock()
	return nil
}

// AttachAudio stores lazily synthesized audio on a learned entry so the
// next hit serves it directly. Primary entries are left untouched.
func (c *Cache) AttachAudio(entry *Entry, audioBase64 string) {
	if entry == nil || entry.Provenance == ProvenancePrimary {
		return
	}
	c.mu.Lock()
	if entry.AudioBase64 == "" {
		entry.AudioBase64 = audioBase64
	}
	c.mu.Unlock()
}

// LearnedEntries snapshots the current learned set for persistence.
func (c *Cache) LearnedEntries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Provenance == ProvenanceLearned {
			out = append(out, *e)
		}
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
