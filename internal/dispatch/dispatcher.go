package dispatch

import (
	"context"
	"encoding/base64"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/okdaichi/townvoice/internal/answercache"
	"github.com/okdaichi/townvoice/internal/brain"
	"github.com/okdaichi/townvoice/internal/observability"
	"github.com/okdaichi/townvoice/internal/policy"
	"github.com/okdaichi/townvoice/internal/protocol"
	"github.com/okdaichi/townvoice/internal/synth"
)

// DefaultMaxInflight bounds simultaneous generation/synthesis calls. The
// providers are rate- and cost-constrained; the loop itself is sequential.
const DefaultMaxInflight = 3

const defaultHistoryLimit = 20

// EventSink receives pipeline events for fan-out to connected clients.
type EventSink interface {
	PublishProgress(protocol.Progress)
	PublishAnswer(protocol.Answer)
	PublishError(protocol.ErrorEvent)
}

// Flusher is the persister hook triggered after cache writes.
type Flusher interface {
	Flush()
}

// Options wires a Dispatcher. Queue, Cache, Generator, Synthesizer and
// Sink are required; the rest default sensibly.
type Options struct {
	Queue        *Queue
	Cache        *answercache.Cache
	Generator    brain.Generator
	Synthesizer  synth.Synthesizer
	Sink         EventSink
	Persister    Flusher
	Rejections   *policy.RejectionSet
	Metrics      *observability.Metrics
	Window       *observability.StageWindow
	MaxInflight  int64
	HistoryLimit int
}

// Dispatcher is the single consumer of the request queue. It fully
// completes one request, through its terminal event, before dequeuing the
// next; the cache is only mutated from this loop.
type Dispatcher struct {
	queue       *Queue
	cache       *answercache.Cache
	generator   brain.Generator
	synthesizer synth.Synthesizer
	sink        EventSink
	persister   Flusher
	rejections  *policy.RejectionSet
	metrics     *observability.Metrics
	window      *observability.StageWindow
	gate        *semaphore.Weighted

	histMu  sync.RWMutex
	history []protocol.Answer
	histCap int
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = DefaultMaxInflight
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.Rejections == nil {
		opts.Rejections = policy.NewRejectionSet(nil)
	}
	return &Dispatcher{
		queue:       opts.Queue,
		cache:       opts.Cache,
		generator:   opts.Generator,
		synthesizer: opts.Synthesizer,
		sink:        opts.Sink,
		persister:   opts.Persister,
		rejections:  opts.Rejections,
		metrics:     opts.Metrics,
		window:      opts.Window,
		gate:        semaphore.NewWeighted(opts.MaxInflight),
		histCap:     opts.HistoryLimit,
	}
}

// Run consumes the queue until ctx is cancelled. A failed request emits an
// error event for that request only; the loop always continues.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Printf("[dispatch] loop started")
	for {
		req, err := d.queue.Dequeue(ctx)
		if err != nil {
			log.Printf("[dispatch] loop stopped: %v", err)
			return
		}
		d.process(ctx, req)
	}
}

// History returns the most recent answers, newest last.
func (d *Dispatcher) History() []protocol.Answer {
	d.histMu.RLock()
	defer d.histMu.RUnlock()
	out := make([]protocol.Answer, len(d.history))
	copy(out, d.history)
	return out
}

func (d *Dispatcher) process(ctx context.Context, req Request) {
	started := time.Now()

	// Cache check: only real audience questions read the cache. Synthetic
	// prompts would pollute it and must never be served from it.
	var pendingRepair *answercache.Entry
	if req.cacheable() {
		lookupStart := time.Now()
		match := d.cache.Lookup(ctx, req.Text)
		d.observeStage(observability.StageCacheLookup, time.Since(lookupStart))
		d.countCacheLookup(match.Kind)

		switch match.Kind {
		case answercache.MatchExact, answercache.MatchSimilar:
			d.serveFromCache(ctx, req, match)
			d.observeStage(observability.StageTotal, time.Since(started))
			return
		case answercache.MatchRejected:
			// Known-bad learned entries self-heal: regenerate, then
			// overwrite in place.
			pendingRepair = match.Entry
		}
	}

	answer, err := d.generateAndSynthesize(ctx, req)
	if err != nil {
		d.fail(req, err)
		return
	}

	if req.cacheable() && !d.rejections.Matches(answer.AnswerText) {
		d.commitToCache(ctx, req, answer, pendingRepair)
	}

	d.emitAnswer(answer)
	d.countTask("ok")
	d.observeStage(observability.StageTotal, time.Since(started))
}

// serveFromCache emits a cached answer, synthesizing audio lazily when the
// entry has none. A synthesis failure here degrades to a text-only answer;
// cache-served requests never fail outright.
func (d *Dispatcher) serveFromCache(ctx context.Context, req Request, match answercache.Match) {
	entry := match.Entry
	audio := entry.AudioBase64
	if audio == "" {
		if b, err := d.synthesizeGated(ctx, entry.AnswerText); err != nil {
			log.Printf("[dispatch] lazy synthesis failed for %s, serving text only: %v", req.ID, err)
			d.countProviderError("tts")
		} else {
			audio = base64.StdEncoding.EncodeToString(b)
			d.cache.AttachAudio(entry, audio)
		}
	}

	source := protocol.SourceCacheExact
	if match.Kind == answercache.MatchSimilar {
		source = protocol.SourceCacheSimilar
	}
	d.emitAnswer(protocol.Answer{
		Type:        protocol.TypeAnswer,
		RequestID:   req.ID,
		Question:    req.Text,
		Author:      req.Author,
		AnswerText:  entry.AnswerText,
		Emotion:     entry.Emotion,
		AudioBase64: audio,
		Source:      source,
	})
	d.countTask("ok")
}

func (d *Dispatcher) generateAndSynthesize(ctx context.Context, req Request) (protocol.Answer, error) {
	if err := d.gate.Acquire(ctx, 1); err != nil {
		return protocol.Answer{}, &taskError{code: "generation_failure", err: err}
	}
	defer d.gate.Release(1)

	d.emitProgress(req, "thinking", "回答を考えています")
	genStart := time.Now()
	reply, err := d.generator.Generate(ctx, req.Text, req.Author)
	genElapsed := time.Since(genStart)
	d.observeStage(observability.StageGeneration, genElapsed)
	if d.metrics != nil {
		d.metrics.ObserveGenerationLatency(genElapsed)
	}
	if err != nil {
		d.countProviderError("generator")
		return protocol.Answer{}, &taskError{code: "generation_failure", err: err}
	}

	d.emitProgress(req, "synthesizing", "音声を合成しています")
	synthStart := time.Now()
	audio, err := d.synthesizer.Synthesize(ctx, reply.Text)
	d.observeStage(observability.StageSynthesis, time.Since(synthStart))
	if err != nil {
		d.countProviderError("tts")
		return protocol.Answer{}, &taskError{code: "synthesis_failure", err: err}
	}

	return protocol.Answer{
		Type:              protocol.TypeAnswer,
		RequestID:         req.ID,
		Question:          req.Text,
		Author:            req.Author,
		AnswerText:        reply.Text,
		Emotion:           reply.Emotion,
		AudioBase64:       base64.StdEncoding.EncodeToString(audio),
		Source:            protocol.SourceGenerated,
		BootstrapGreeting: req.Bootstrap,
	}, nil
}

func (d *Dispatcher) synthesizeGated(ctx context.Context, text string) ([]byte, error) {
	if err := d.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.gate.Release(1)
	return d.synthesizer.Synthesize(ctx, text)
}

// commitToCache repairs the flagged learned entry when one exists,
// otherwise learns a new entry, then triggers a background flush. A
// flagged primary entry stays untouched and the answer is learned fresh.
func (d *Dispatcher) commitToCache(ctx context.Context, req Request, answer protocol.Answer, pendingRepair *answercache.Entry) {
	if pendingRepair != nil && pendingRepair.Provenance == answercache.ProvenanceLearned {
		if err := d.cache.Repair(pendingRepair, answer.AnswerText, answer.Emotion, answer.AudioBase64); err != nil {
			log.Printf("[dispatch] repair failed for %s: %v", req.ID, err)
		}
	} else {
		if _, err := d.cache.Learn(ctx, req.Text, answer.AnswerText, answer.Emotion, answer.AudioBase64); err != nil {
			log.Printf("[dispatch] learn failed for %s: %v", req.ID, err)
			return
		}
	}
	if d.persister != nil {
		d.persister.Flush()
	}
}

type taskError struct {
	code string
	err  error
}

func (e *taskError) Error() string { return e.code + ": " + e.err.Error() }
func (e *taskError) Unwrap() error { return e.err }

func (d *Dispatcher) fail(req Request, err error) {
	code := "task_failure"
	if te, ok := err.(*taskError); ok {
		code = te.code
	}
	log.Printf("[dispatch] request %s failed (%s): %v", req.ID, code, err)
	d.sink.PublishError(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		RequestID: req.ID,
		Code:      code,
		Detail:    "回答の生成に失敗しました。",
	})
	d.countTask(code)
}

func (d *Dispatcher) emitProgress(req Request, stage, message string) {
	d.sink.PublishProgress(protocol.Progress{
		Type:      protocol.TypeProgress,
		RequestID: req.ID,
		Stage:     stage,
		Message:   message,
	})
}

func (d *Dispatcher) emitAnswer(a protocol.Answer) {
	d.histMu.Lock()
	d.history = append(d.history, a)
	if len(d.history) > d.histCap {
		d.history = d.history[len(d.history)-d.histCap:]
	}
	d.histMu.Unlock()

	d.sink.PublishAnswer(a)
}

func (d *Dispatcher) observeStage(stage string, elapsed time.Duration) {
	if d.window != nil {
		d.window.Observe(stage, elapsed)
	}
}

func (d *Dispatcher) countCacheLookup(kind answercache.MatchKind) {
	if d.metrics != nil {
		d.metrics.CacheLookups.WithLabelValues(kind.String()).Inc()
	}
	if d.window != nil {
		d.window.ObserveIndicator("cache_" + kind.String())
	}
}

func (d *Dispatcher) countTask(status string) {
	if d.metrics != nil {
		d.metrics.TasksProcessed.WithLabelValues(status).Inc()
	}
}

func (d *Dispatcher) countProviderError(provider string) {
	if d.metrics != nil {
		d.metrics.ProviderErrors.WithLabelValues(provider).Inc()
	}
	if d.window != nil {
		d.window.ObserveIndicator(provider + "_error")
	}
}
