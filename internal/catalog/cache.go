package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaploop/voice-assistant-navidrome/internal/metrics"
)

// ErrNeverRefreshed is returned by Lookup before the first successful refresh.
var ErrNeverRefreshed = errors.New("catalog has never been refreshed")

// Fetcher supplies the full entity set from the remote library.
type Fetcher interface {
	FetchCatalog(ctx context.Context) ([]Entity, error)
}

// CacheConfig tunes lookup behavior
type CacheConfig struct {
	// SimilarityThreshold is the minimum fuzzy score (default: 0.6)
	SimilarityThreshold float64
	// MaxSuggestions caps ranked results per lookup (default: 3)
	MaxSuggestions int
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		SimilarityThreshold: 0.6,
		MaxSuggestions:      3,
	}
}

// snapshot is one immutable catalog version. Readers take the whole pointer
// and never see a partially-built index.
type snapshot struct {
	version   uint64
	byKind    map[Kind][]Entity
	refreshed time.Time
}

// Cache holds the current catalog snapshot. Refresh builds a complete new
// snapshot and swaps it in atomically; lookups are lock-free.
type Cache struct {
	fetcher Fetcher
	logger  zerolog.Logger

	current atomic.Pointer[snapshot]
	version atomic.Uint64

	mu     sync.RWMutex // guards config
	config CacheConfig

	refreshMu sync.Mutex // serializes concurrent Refresh calls
}

// NewCache creates an empty cache; call Refresh before the first Lookup.
func NewCache(logger zerolog.Logger, fetcher Fetcher, config CacheConfig) *Cache {
	if config.SimilarityThreshold <= 0 {
		config.SimilarityThreshold = 0.6
	}
	if config.MaxSuggestions <= 0 {
		config.MaxSuggestions = 3
	}
	return &Cache{
		fetcher: fetcher,
		logger:  logger.With().Str("component", "catalog").Logger(),
		config:  config,
	}
}

// SetConfig swaps lookup thresholds (config hot-reload).
func (c *Cache) SetConfig(config CacheConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if config.SimilarityThreshold > 0 {
		c.config.SimilarityThreshold = config.SimilarityThreshold
	}
	if config.MaxSuggestions > 0 {
		c.config.MaxSuggestions = config.MaxSuggestions
	}
}

// Refresh fetches the full entity set and swaps in a new snapshot.
func (c *Cache) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	start := time.Now()
	entities, err := c.fetcher.FetchCatalog(ctx)
	if err != nil {
		return fmt.Errorf("catalog fetch failed: %w", err)
	}

	version := c.version.Add(1)
	byKind := make(map[Kind][]Entity)
	for _, e := range entities {
		if e.NormalizedName == "" {
			e.NormalizedName = Normalize(e.DisplayName)
		}
		e.Version = version
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	c.current.Store(&snapshot{
		version:   version,
		byKind:    byKind,
		refreshed: time.Now(),
	})

	for kind, list := range byKind {
		metrics.CatalogEntities.WithLabelValues(string(kind)).Set(float64(len(list)))
	}
	metrics.CatalogRefreshes.Inc()

	c.logger.Info().
		Uint64("version", version).
		Int("entities", len(entities)).
		Dur("took", time.Since(start)).
		Msg("Catalog snapshot refreshed")
	return nil
}

// Lookup returns ranked matches for a normalized query within one kind.
// An empty result is not an error; it means no entity matched.
func (c *Cache) Lookup(kind Kind, normalizedQuery string) ([]Match, error) {
	snap := c.current.Load()
	if snap == nil {
		return nil, ErrNeverRefreshed
	}

	c.mu.RLock()
	threshold, limit := c.config.SimilarityThreshold, c.config.MaxSuggestions
	c.mu.RUnlock()

	return rank(snap.byKind[kind], normalizedQuery, threshold, limit), nil
}

// LookupAny searches kinds in priority order and returns the first kind that
// produced matches.
func (c *Cache) LookupAny(normalizedQuery string) ([]Match, error) {
	for _, kind := range Kinds() {
		matches, err := c.Lookup(kind, normalizedQuery)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			return matches, nil
		}
	}
	return nil, nil
}

// Version returns the current snapshot version, 0 if never refreshed.
func (c *Cache) Version() uint64 {
	if snap := c.current.Load(); snap != nil {
		return snap.version
	}
	return 0
}

// Size returns the entity count per kind in the current snapshot.
func (c *Cache) Size() map[Kind]int {
	sizes := make(map[Kind]int)
	if snap := c.current.Load(); snap != nil {
		for kind, list := range snap.byKind {
			sizes[kind] = len(list)
		}
	}
	return sizes
}
