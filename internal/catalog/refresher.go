package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Refresher drives periodic cache refreshes and handles explicit
// invalidation after catalog-mutating commands.
type Refresher struct {
	cache    *Cache
	cron     *cron.Cron
	logger   zerolog.Logger
	interval time.Duration
	trigger  chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
}

// NewRefresher schedules refreshes every interval.
func NewRefresher(logger zerolog.Logger, cache *Cache, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Refresher{
		cache:    cache,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "catalog-refresher").Logger(),
		interval: interval,
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start performs an initial refresh, then runs on the schedule. The initial
// refresh error is returned so startup can fail loudly on a dead server.
func (r *Refresher) Start(ctx context.Context) error {
	if err := r.cache.Refresh(ctx); err != nil {
		return fmt.Errorf("initial catalog refresh: %w", err)
	}

	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(spec, func() { r.Invalidate() }); err != nil {
		return fmt.Errorf("failed to schedule catalog refresh: %w", err)
	}
	r.cron.Start()

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go r.refreshLoop(loopCtx)
	return nil
}

// Invalidate requests an asynchronous refresh. Multiple calls before the
// refresh runs coalesce into one.
func (r *Refresher) Invalidate() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Refresher) refreshLoop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.trigger:
			refreshCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			if err := r.cache.Refresh(refreshCtx); err != nil {
				r.logger.Error().Err(err).Msg("Scheduled catalog refresh failed")
			}
			cancel()
		}
	}
}

// Stop halts the schedule and waits for an in-flight refresh to finish.
func (r *Refresher) Stop() {
	cronCtx := r.cron.Stop()
	<-cronCtx.Done()
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
