package app

import (
	"fmt"
	"math/rand"
	"time"

	"assessd/pkg/auth"
	"assessd/pkg/cache"
	"assessd/pkg/events"
	"assessd/pkg/storage"
	"assessd/pkg/store"
)

const defaultGPQRows = 120

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	TokenSecret string
	TokenTTL    time.Duration
	TokenIssuer string
	GPQRows     int

	// Pre-built collaborators override the URL-based construction; tests
	// inject memory implementations here.
	Store  store.Store
	Cache  cache.TouchCache
	Assets storage.AssetStore
	Events events.Publisher
}

// App is the core application service wiring storage, the timing cache,
// and token auth together.
type App struct {
	store   store.Store
	cache   cache.TouchCache
	tokens  *auth.TokenIssuer
	assets  storage.AssetStore
	events  events.Publisher
	gpqRows int
	locks   keyedLock

	// nowMillis is the single timestamp source for evidence timing; tests
	// replace it to pin the clock. perm draws the wb_seq shuffle and is
	// replaced in tests for a deterministic order.
	nowMillis func() int64
	perm      func(n int) []int
}

// New constructs the application service.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	touchCache := cfg.Cache
	if touchCache == nil {
		touchCache = cache.NewMemoryTouchCache()
	}
	tokens, err := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenTTL, cfg.TokenIssuer)
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	rows := cfg.GPQRows
	if rows <= 0 {
		rows = defaultGPQRows
	}
	return &App{
		store:     dataStore,
		cache:     touchCache,
		tokens:    tokens,
		assets:    cfg.Assets,
		events:    cfg.Events,
		gpqRows:   rows,
		nowMillis: func() int64 { return time.Now().UnixMilli() },
		perm:      rand.Perm,
	}, nil
}

// TokenTTL exposes the access token lifetime for response metadata.
func (a *App) TokenTTL() time.Duration {
	return a.tokens.TTL()
}
