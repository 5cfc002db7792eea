package answercache

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// StoreConfig selects and parameterizes the learned-snapshot backend.
type StoreConfig struct {
	// Backend is one of "auto", "json", "sqlite", "postgres", "memory".
	Backend     string
	LearnedPath string
	SQLitePath  string
	DatabaseURL string
}

// NewStore builds the learned-snapshot store for the configured backend.
// "auto" prefers postgres when a database URL is set, then sqlite when a
// path is set, then the JSON snapshot, and finally memory.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" || backend == "auto" {
		switch {
		case cfg.DatabaseURL != "":
			backend = "postgres"
		case cfg.SQLitePath != "":
			backend = "sqlite"
		case cfg.LearnedPath != "":
			backend = "json"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "postgres":
		store, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Printf("[cache] learned store: postgres")
		return store, nil
	case "sqlite":
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Printf("[cache] learned store: sqlite at %s", cfg.SQLitePath)
		return store, nil
	case "json":
		store, err := NewJSONStore(cfg.LearnedPath)
		if err != nil {
			return nil, err
		}
		log.Printf("[cache] learned store: json at %s", cfg.LearnedPath)
		return store, nil
	case "memory":
		log.Printf("[cache] learned store: in-memory (learned answers lost on restart)")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache store backend %q", cfg.Backend)
	}
}
