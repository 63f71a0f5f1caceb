package recognition

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaploop/voice-assistant-navidrome/internal/metrics"
)

// SelectorConfig tunes the engine selection strategy
type SelectorConfig struct {
	// ConfidenceThreshold is the minimum fast-engine confidence for the
	// fast path (default: 0.7)
	ConfidenceThreshold float64
	// ShortCommandBound is the maximum segment duration eligible for the
	// fast path (default: 2s)
	ShortCommandBound time.Duration
	// AccurateTimeout bounds the accurate-engine escalation (default: 5s)
	AccurateTimeout time.Duration
	// EngineTimeout bounds any single engine call (default: 10s)
	EngineTimeout time.Duration
}

// DefaultSelectorConfig returns sensible defaults
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		ConfidenceThreshold: 0.7,
		ShortCommandBound:   2 * time.Second,
		AccurateTimeout:     5 * time.Second,
		EngineTimeout:       10 * time.Second,
	}
}

// Selector picks a transcript from the fast and accurate engines.
//
// Decision order per segment: accept the fast result immediately when it is
// confident and the segment is short; otherwise escalate to the accurate
// engine under a bounded timeout; if that fails or times out, fall back to
// the fast result tagged low-confidence. Only when both engines fail does
// transcription error out.
type Selector struct {
	fast     Engine
	accurate Engine
	logger   zerolog.Logger

	mu     sync.RWMutex
	config SelectorConfig
}

// NewSelector creates a Selector over the two engines.
func NewSelector(logger zerolog.Logger, fast, accurate Engine, config SelectorConfig) *Selector {
	if config.ConfidenceThreshold <= 0 {
		config.ConfidenceThreshold = 0.7
	}
	if config.ShortCommandBound <= 0 {
		config.ShortCommandBound = 2 * time.Second
	}
	if config.AccurateTimeout <= 0 {
		config.AccurateTimeout = 5 * time.Second
	}
	if config.EngineTimeout <= 0 {
		config.EngineTimeout = 10 * time.Second
	}
	return &Selector{
		fast:     fast,
		accurate: accurate,
		logger:   logger.With().Str("component", "selector").Logger(),
		config:   config,
	}
}

// SetConfig swaps the selection thresholds (config hot-reload).
func (s *Selector) SetConfig(config SelectorConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if config.ConfidenceThreshold > 0 {
		s.config.ConfidenceThreshold = config.ConfidenceThreshold
	}
	if config.ShortCommandBound > 0 {
		s.config.ShortCommandBound = config.ShortCommandBound
	}
	if config.AccurateTimeout > 0 {
		s.config.AccurateTimeout = config.AccurateTimeout
	}
}

func (s *Selector) snapshot() SelectorConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Transcribe runs the selection strategy for one segment.
func (s *Selector) Transcribe(ctx context.Context, seg *AudioSegment) (*Transcript, error) {
	cfg := s.snapshot()

	fastT, fastErr := s.runEngine(ctx, s.fast, seg, cfg.EngineTimeout)

	if fastErr == nil && fastT.Confidence >= cfg.ConfidenceThreshold && seg.Duration() <= cfg.ShortCommandBound {
		s.observe(fastT, "fast")
		return fastT, nil
	}

	if fastErr != nil {
		s.logger.Debug().Err(fastErr).Uint64("seq", seg.Seq).Msg("Fast engine failed, escalating")
	} else {
		s.logger.Debug().
			Float64("confidence", fastT.Confidence).
			Dur("duration", seg.Duration()).
			Uint64("seq", seg.Seq).
			Msg("Fast result not trusted, escalating")
	}

	accT, accErr := s.runEngine(ctx, s.accurate, seg, cfg.AccurateTimeout)
	if accErr == nil {
		s.observe(accT, "accurate")
		return accT, nil
	}

	if fastErr == nil {
		// Accurate engine timed out or errored: a low-confidence fast
		// transcript beats dropping the utterance.
		s.logger.Warn().Err(accErr).Uint64("seq", seg.Seq).Msg("Accurate engine failed, using fast transcript")
		fallback := *fastT
		fallback.LowConfidence = true
		s.observe(&fallback, "fallback")
		return &fallback, nil
	}

	s.logger.Error().
		AnErr("fast_error", fastErr).
		AnErr("accurate_error", accErr).
		Uint64("seq", seg.Seq).
		Msg("Both engines failed")
	return nil, ErrRecognitionUnavailable
}

func (s *Selector) runEngine(ctx context.Context, eng Engine, seg *AudioSegment, timeout time.Duration) (*Transcript, error) {
	engCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t, err := eng.Transcribe(engCtx, seg)
	if err != nil {
		if engCtx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return t, nil
}

func (s *Selector) observe(t *Transcript, path string) {
	metrics.RecognitionLatency.WithLabelValues(string(t.Engine)).Observe(t.Latency.Seconds())
	metrics.EngineSelections.WithLabelValues(string(t.Engine), path).Inc()
	s.logger.Info().
		Str("engine", string(t.Engine)).
		Str("path", path).
		Float64("confidence", t.Confidence).
		Dur("latency", t.Latency).
		Bool("low_confidence", t.LowConfidence).
		Msg("Transcript accepted")
}

// Health reports the first engine error encountered, if any.
func (s *Selector) Health(ctx context.Context) error {
	if err := s.fast.Health(ctx); err != nil {
		return err
	}
	return s.accurate.Health(ctx)
}
