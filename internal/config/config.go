package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the question-answering service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	GeminiAPIKey    string
	GenerationModel string
	EmbeddingModel  string

	TTSVoice        string
	TTSLanguageCode string
	TTSSpeakingRate float64

	PersonaPath  string
	DenylistPath string

	// Rejection phrases marking cached answers as known-bad. Empty means
	// the built-in defaults.
	RejectionPhrases []string

	CacheStore           string
	CachePrimaryPath     string
	CacheLearnedPath     string
	CacheSQLitePath      string
	DatabaseURL          string
	CacheSimilarityFloor float64

	GenerationMaxInflight int64
	HistoryLimit          int

	BootstrapGreeting string

	ChatFeedURL          string
	ChatFeedPollInterval time.Duration
	ChatFeedThrottle     time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "townvoice"),
		ShutdownTimeout:       15 * time.Second,
		GeminiAPIKey:          trimmedEnv("GEMINI_API_KEY"),
		GenerationModel:       envOrDefault("GENERATION_MODEL", "gemini-2.0-flash"),
		EmbeddingModel:        envOrDefault("EMBEDDING_MODEL", "gemini-embedding-001"),
		TTSVoice:              envOrDefault("TTS_VOICE", "ja-JP-Neural2-B"),
		TTSLanguageCode:       envOrDefault("TTS_LANGUAGE_CODE", "ja-JP"),
		TTSSpeakingRate:       1.15,
		PersonaPath:           trimmedEnv("PERSONA_PATH"),
		DenylistPath:          trimmedEnv("DENYLIST_PATH"),
		CacheStore:            envOrDefault("CACHE_STORE", "auto"),
		CachePrimaryPath:      envOrDefault("CACHE_PRIMARY_PATH", "data/faq_cache.json"),
		CacheLearnedPath:      envOrDefault("CACHE_LEARNED_PATH", "data/learned_cache.json"),
		CacheSQLitePath:       trimmedEnv("CACHE_SQLITE_PATH"),
		DatabaseURL:           trimmedEnv("DATABASE_URL"),
		CacheSimilarityFloor:  0.75,
		GenerationMaxInflight: 3,
		HistoryLimit:          20,
		BootstrapGreeting: envOrDefault("BOOTSTRAP_GREETING",
			"配信を見に来てくれた皆さんに、簡単な挨拶をしてください。"),
		ChatFeedURL:          trimmedEnv("CHAT_FEED_URL"),
		ChatFeedPollInterval: 5 * time.Second,
		ChatFeedThrottle:     10 * time.Second,
	}

	if v := trimmedEnv("REJECTION_PHRASES"); v != "" {
		for _, phrase := range strings.Split(v, ",") {
			if phrase = strings.TrimSpace(phrase); phrase != "" {
				cfg.RejectionPhrases = append(cfg.RejectionPhrases, phrase)
			}
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.CacheSimilarityFloor, err = floatFromEnv("CACHE_SIMILARITY_FLOOR", cfg.CacheSimilarityFloor)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSSpeakingRate, err = floatFromEnv("TTS_SPEAKING_RATE", cfg.TTSSpeakingRate)
	if err != nil {
		return Config{}, err
	}
	maxInflight, err := intFromEnv("GENERATION_MAX_INFLIGHT", int(cfg.GenerationMaxInflight))
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationMaxInflight = int64(maxInflight)
	cfg.HistoryLimit, err = intFromEnv("HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatFeedPollInterval, err = durationFromEnv("CHAT_FEED_POLL_INTERVAL", cfg.ChatFeedPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatFeedThrottle, err = durationFromEnv("CHAT_FEED_THROTTLE", cfg.ChatFeedThrottle)
	if err != nil {
		return Config{}, err
	}

	if cfg.CacheSimilarityFloor <= 0 || cfg.CacheSimilarityFloor > 1 {
		return Config{}, fmt.Errorf("CACHE_SIMILARITY_FLOOR must be in (0, 1]")
	}
	if cfg.GenerationMaxInflight <= 0 {
		return Config{}, fmt.Errorf("GENERATION_MAX_INFLIGHT must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if cfg.TTSSpeakingRate <= 0 {
		return Config{}, fmt.Errorf("TTS_SPEAKING_RATE must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
