// Package dedupe records recently handled platform events so redelivered
// payloads are processed once.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/studyspot/internal/config"
)

// Store is a set of recently seen event keys
type Store interface {
	// Seen records key and reports whether it was already present. Exactly one
	// concurrent caller for a key gets false.
	Seen(ctx context.Context, key string) (bool, error)
	Close() error
}

// Key builds the de-duplication key for an event
func Key(kind, id string) string {
	return kind + ":" + id
}

// Open creates the store selected by cfg.Backend
func Open(cfg config.DedupeConfig) (Store, error) {
	ttl, err := time.ParseDuration(cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("invalid dedupe ttl: %w", err)
	}

	backend := cfg.Backend
	if backend == "" {
		backend = "memory"
	}

	switch backend {
	case "memory":
		return NewMemoryStore(cfg.Size, ttl), nil
	case "redis":
		return OpenRedis(cfg.Redis, ttl)
	default:
		return nil, fmt.Errorf("unsupported dedupe backend: %s", backend)
	}
}
