package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/okdaichi/townvoice/internal/answercache"
	"github.com/okdaichi/townvoice/internal/brain"
	"github.com/okdaichi/townvoice/internal/chatfeed"
	"github.com/okdaichi/townvoice/internal/config"
	"github.com/okdaichi/townvoice/internal/dispatch"
	"github.com/okdaichi/townvoice/internal/embedding"
	"github.com/okdaichi/townvoice/internal/httpapi"
	"github.com/okdaichi/townvoice/internal/observability"
	"github.com/okdaichi/townvoice/internal/policy"
	"github.com/okdaichi/townvoice/internal/synth"
)

func main() {
	// Local dev convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewStageWindow(256)

	persona, err := brain.LoadPersona(cfg.PersonaPath)
	if err != nil {
		log.Fatalf("persona load failed: %v", err)
	}
	denylist, err := policy.LoadDenylist(cfg.DenylistPath)
	if err != nil {
		log.Fatalf("denylist load failed: %v", err)
	}
	rejections := policy.NewRejectionSet(cfg.RejectionPhrases)

	var (
		generator   brain.Generator
		synthesizer synth.Synthesizer
		embedder    embedding.Embedder
	)
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		log.Printf("GEMINI_API_KEY not set, running with mock providers")
		generator = brain.NewMockGenerator()
		synthesizer = synth.NewMockSynthesizer()
		embedder = embedding.NewMockEmbedder()
	} else {
		generator = brain.NewGeminiGenerator(brain.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GenerationModel,
		}, persona, denylist, nil)
		synthesizer = synth.NewGoogleTTS(synth.GoogleTTSConfig{
			APIKey:       cfg.GeminiAPIKey,
			Voice:        cfg.TTSVoice,
			LanguageCode: cfg.TTSLanguageCode,
			SpeakingRate: cfg.TTSSpeakingRate,
		})
		embedder = embedding.NewGeminiEmbedder(embedding.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.EmbeddingModel,
		})
	}

	ctx := context.Background()
	primary, err := answercache.LoadPrimary(cfg.CachePrimaryPath)
	if err != nil {
		log.Fatalf("primary snapshot load failed: %v", err)
	}
	store, err := answercache.NewStore(ctx, answercache.StoreConfig{
		Backend:     cfg.CacheStore,
		LearnedPath: cfg.CacheLearnedPath,
		SQLitePath:  cfg.CacheSQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		log.Fatalf("cache store init failed: %v", err)
	}
	defer store.Close()

	learned, err := store.LoadLearned(ctx)
	if err != nil {
		log.Fatalf("learned snapshot load failed: %v", err)
	}
	cache := answercache.New(embedder, rejections, cfg.CacheSimilarityFloor, primary, learned)
	log.Printf("answer cache loaded: %d primary, %d learned", len(primary), len(learned))

	persister := answercache.NewPersister(cache, store)
	queue := dispatch.NewQueue()
	queue.OnDepth = func(n int) { metrics.QueueDepth.Set(float64(n)) }

	hub := httpapi.NewHub(metrics)
	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		Queue:        queue,
		Cache:        cache,
		Generator:    generator,
		Synthesizer:  synthesizer,
		Sink:         hub,
		Persister:    persister,
		Rejections:   rejections,
		Metrics:      metrics,
		Window:       window,
		MaxInflight:  cfg.GenerationMaxInflight,
		HistoryLimit: cfg.HistoryLimit,
	})

	api := httpapi.New(cfg, queue, dispatcher, cache, hub, window, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go persister.Run(runCtx)
	go dispatcher.Run(runCtx)

	if cfg.ChatFeedURL != "" {
		poller := chatfeed.NewPoller(chatfeed.Config{
			FeedURL:      cfg.ChatFeedURL,
			PollInterval: cfg.ChatFeedPollInterval,
			Throttle:     cfg.ChatFeedThrottle,
		}, queue, brain.NewCommentFilter())
		go poller.Run(runCtx)
	}

	if greeting := strings.TrimSpace(cfg.BootstrapGreeting); greeting != "" {
		queue.Enqueue(dispatch.NewBootstrapRequest(greeting))
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
