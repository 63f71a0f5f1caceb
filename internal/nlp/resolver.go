package nlp

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zaploop/voice-assistant-navidrome/internal/catalog"
)

// Searcher is an optional remote fallback consulted when the local catalog
// has no match for a spoken target.
type Searcher interface {
	SearchEntities(ctx context.Context, query string) ([]catalog.Entity, error)
}

// ResolverConfig tunes command resolution.
type ResolverConfig struct {
	// VolumeStep is the absolute change applied by relative volume
	// commands (default: 10).
	VolumeStep int
}

// DefaultResolverConfig returns sensible defaults
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{VolumeStep: 10}
}

// Resolver turns a transcript into a structured Command in two phases:
// template matching against the prioritized pattern set, then entity
// binding against the catalog cache. Elliptical targets fall back to the
// conversation context; unmatched targets fall back to the remote search
// when one is configured.
type Resolver struct {
	cache    *catalog.Cache
	contexts *ContextStore
	searcher Searcher // may be nil
	logger   zerolog.Logger

	mu     sync.RWMutex
	config ResolverConfig
}

// NewResolver creates a resolver. searcher may be nil to disable the
// remote search fallback.
func NewResolver(logger zerolog.Logger, cache *catalog.Cache, contexts *ContextStore, searcher Searcher, config ResolverConfig) *Resolver {
	if config.VolumeStep <= 0 {
		config.VolumeStep = 10
	}
	return &Resolver{
		cache:    cache,
		contexts: contexts,
		searcher: searcher,
		logger:   logger.With().Str("component", "resolver").Logger(),
		config:   config,
	}
}

// SetConfig swaps resolution tunables (config hot-reload).
func (r *Resolver) SetConfig(config ResolverConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if config.VolumeStep > 0 {
		r.config.VolumeStep = config.VolumeStep
	}
}

// Resolve maps a transcript to a Command. Control commands (pause, volume,
// navigation) never touch the catalog; play and queue commands bind their
// target to an entity before returning.
func (r *Resolver) Resolve(ctx context.Context, rawText string) (*Command, error) {
	normalized := catalog.Normalize(rawText)
	if normalized == "" {
		return nil, ErrUnknownCommand
	}

	tpl, capture, ok := matchTemplate(normalized)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, rawText)
	}

	cmd := &Command{Kind: tpl.kind, RawText: rawText}

	switch {
	case tpl.hasLevel:
		level, err := strconv.Atoi(capture)
		if err != nil || level > 100 {
			return nil, fmt.Errorf("%w: volume level %q out of range", ErrUnknownCommand, capture)
		}
		cmd.Volume = level

	case tpl.delta != 0:
		r.mu.RLock()
		step := r.config.VolumeStep
		r.mu.RUnlock()
		cmd.Delta = tpl.delta * step

	case tpl.random:
		// Play with no target: the executor picks random songs.

	case tpl.hasTarget:
		if err := r.bindTarget(ctx, cmd, capture); err != nil {
			return nil, err
		}
	}

	r.logger.Debug().
		Str("raw", rawText).
		Str("command", cmd.String()).
		Bool("ambiguous", cmd.Ambiguous).
		Bool("from_context", cmd.FromContext).
		Msg("Command resolved")
	return cmd, nil
}

// bindTarget fills cmd.Target from the captured span. On success the
// resolved entity is written back to the conversation context.
func (r *Resolver) bindTarget(ctx context.Context, cmd *Command, span string) error {
	if span == "" {
		return ErrEmptyTarget
	}

	if isElliptical(span) {
		slot, kind, ok := r.fromContext()
		if !ok {
			return fmt.Errorf("%w: %q refers to nothing", ErrEntityNotFound, span)
		}
		cmd.Target = &Target{Entity: &EntityRef{ID: slot.ID, Kind: kind, Name: slot.Name}}
		cmd.FromContext = true
		r.contexts.Set(kind, slot.ID, slot.Name)
		return nil
	}

	matches, err := r.cache.LookupAny(span)
	if err != nil {
		return err
	}

	if len(matches) == 0 && r.searcher != nil {
		matches, err = r.searchRemote(ctx, span)
		if err != nil {
			r.logger.Warn().Err(err).Str("target", span).Msg("Remote search fallback failed")
		}
	}
	if len(matches) == 0 {
		return fmt.Errorf("%w: %q", ErrEntityNotFound, span)
	}

	best := matches[0].Entity
	cmd.Target = &Target{Entity: &EntityRef{ID: best.ID, Kind: best.Kind, Name: best.DisplayName}}
	if len(matches) > 1 && !matches[0].Exact {
		cmd.Ambiguous = true
		cmd.Suggestions = matches
	}

	r.contexts.Set(best.Kind, best.ID, best.DisplayName)
	return nil
}

// fromContext picks the remembered subject, most specific kind first.
func (r *Resolver) fromContext() (*ContextSlot, catalog.Kind, bool) {
	cc := r.contexts.Get()
	switch {
	case cc.Artist != nil:
		return cc.Artist, catalog.KindArtist, true
	case cc.Album != nil:
		return cc.Album, catalog.KindAlbum, true
	case cc.Genre != nil:
		return cc.Genre, catalog.KindGenre, true
	}
	return nil, "", false
}

func (r *Resolver) searchRemote(ctx context.Context, span string) ([]catalog.Match, error) {
	entities, err := r.searcher.SearchEntities(ctx, span)
	if err != nil || len(entities) == 0 {
		return nil, err
	}
	matches := make([]catalog.Match, 0, len(entities))
	for _, e := range entities {
		if e.NormalizedName == "" {
			e.NormalizedName = catalog.Normalize(e.DisplayName)
		}
		m := catalog.Match{Entity: e, Score: 0.5}
		if e.NormalizedName == span {
			m.Score = 1.0
			m.Exact = true
		}
		matches = append(matches, m)
	}
	return matches, nil
}
