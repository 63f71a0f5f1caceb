package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zaploop/voice-assistant-navidrome/internal/bus"
	"github.com/zaploop/voice-assistant-navidrome/internal/metrics"
	"github.com/zaploop/voice-assistant-navidrome/internal/nlp"
	"github.com/zaploop/voice-assistant-navidrome/internal/recognition"
	"github.com/zaploop/voice-assistant-navidrome/internal/subsonic"
)

// Pipeline errors
var (
	ErrQueueFull = errors.New("utterance queue is full")
	ErrStopped   = errors.New("pipeline is stopped")
)

// Transcriber produces a transcript for one audio segment.
type Transcriber interface {
	Transcribe(ctx context.Context, segment *recognition.AudioSegment) (*recognition.Transcript, error)
}

// CommandResolver maps a transcript onto a structured command.
type CommandResolver interface {
	Resolve(ctx context.Context, text string) (*nlp.Command, error)
}

// CommandExecutor applies a command to the music server.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd *nlp.Command) (*subsonic.Result, error)
}

// AckPublisher delivers terminal acknowledgements to interested consumers.
type AckPublisher interface {
	PublishAck(ctx context.Context, ack *Ack) error
}

// Config tunes the worker pool and per-stage deadlines.
type Config struct {
	Workers           int
	QueueSize         int
	TranscribeTimeout time.Duration
	ResolveTimeout    time.Duration
	ExecuteTimeout    time.Duration
	DrainTimeout      time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:           4,
		QueueSize:         16,
		TranscribeTimeout: 15 * time.Second,
		ResolveTimeout:    2 * time.Second,
		ExecuteTimeout:    30 * time.Second,
		DrainTimeout:      30 * time.Second,
	}
}

// Pipeline moves utterances through transcription, resolution and
// execution on a fixed worker pool. Enqueue never blocks; when the queue
// is full the segment is dropped and reported, since a stale voice
// command is worse than no command.
type Pipeline struct {
	config      Config
	transcriber Transcriber
	resolver    CommandResolver
	executor    CommandExecutor
	publisher   AckPublisher // may be nil
	events      *bus.EventBus
	logger      zerolog.Logger

	queue chan *recognition.AudioSegment
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New assembles a pipeline. publisher and events may be nil.
func New(logger zerolog.Logger, config Config, transcriber Transcriber, resolver CommandResolver, executor CommandExecutor, publisher AckPublisher, events *bus.EventBus) *Pipeline {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	return &Pipeline{
		config:      config,
		transcriber: transcriber,
		resolver:    resolver,
		executor:    executor,
		publisher:   publisher,
		events:      events,
		logger:      logger.With().Str("component", "pipeline").Logger(),
		queue:       make(chan *recognition.AudioSegment, config.QueueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// the queue is closed and drained.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info().Int("workers", p.config.Workers).Int("queue_size", p.config.QueueSize).Msg("Pipeline started")
}

// Enqueue admits one captured segment. Returns ErrQueueFull when the
// bounded queue has no room and ErrStopped after Stop.
func (p *Pipeline) Enqueue(segment *recognition.AudioSegment) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}

	select {
	case p.queue <- segment:
		p.mu.Unlock()
		metrics.QueueDepth.Set(float64(len(p.queue)))
		p.publish(bus.EventTypeUtteranceQueued, map[string]any{"seq": segment.Seq})
		return nil
	default:
		p.mu.Unlock()
		metrics.UtterancesTotal.WithLabelValues("dropped").Inc()
		p.publish(bus.EventTypeUtteranceDropped, map[string]any{"seq": segment.Seq})
		p.logger.Warn().Uint64("seq", segment.Seq).Msg("Queue full, segment dropped")
		return ErrQueueFull
	}
}

// Stop closes the intake and waits for in-flight utterances, up to the
// drain timeout.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info().Msg("Pipeline drained")
	case <-time.After(p.config.DrainTimeout):
		p.logger.Warn().Dur("timeout", p.config.DrainTimeout).Msg("Pipeline drain timed out")
	}
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker", id).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		case segment, ok := <-p.queue:
			if !ok {
				return
			}
			metrics.QueueDepth.Set(float64(len(p.queue)))
			p.process(ctx, logger, segment)
		}
	}
}

// process walks one utterance through every stage. Each stage failure
// terminates the utterance with a spoken failure ack; there are no
// retries at this level.
func (p *Pipeline) process(ctx context.Context, logger zerolog.Logger, segment *recognition.AudioSegment) {
	id := uuid.NewString()
	ack := &Ack{UtteranceID: id}

	transcript, err := p.transcribe(ctx, segment)
	if err != nil {
		p.fail(ctx, logger, ack, StageTranscribing, err)
		return
	}
	ack.Transcript = transcript.Text
	if transcript.LowConfidence {
		ack.Details = map[string]any{"low_confidence": true}
	}
	p.publish(bus.EventTypeTranscriptReady, map[string]any{"utterance_id": id, "text": transcript.Text})

	cmd, err := p.resolve(ctx, transcript.Text)
	if err != nil {
		p.fail(ctx, logger, ack, StageResolving, err)
		return
	}
	ack.Command = cmd.String()
	p.publish(bus.EventTypeCommandResolved, map[string]any{"utterance_id": id, "command": cmd.String()})

	result, err := p.execute(ctx, cmd)
	if err != nil {
		p.fail(ctx, logger, ack, StageExecuting, err)
		return
	}

	ack.Status = AckOK
	ack.Message = result.Message
	if cmd.Ambiguous {
		ack.Status = AckAmbiguous
		if ack.Details == nil {
			ack.Details = map[string]any{}
		}
		names := make([]string, 0, len(cmd.Suggestions))
		for _, m := range cmd.Suggestions {
			names = append(names, m.Entity.DisplayName)
		}
		ack.Details["suggestions"] = names
	}
	for k, v := range result.Details {
		if ack.Details == nil {
			ack.Details = map[string]any{}
		}
		ack.Details[k] = v
	}

	metrics.UtterancesTotal.WithLabelValues(string(ack.Status)).Inc()
	p.publish(bus.EventTypeCommandExecuted, map[string]any{"utterance_id": id, "command": ack.Command})
	p.deliver(ctx, logger, ack)
}

func (p *Pipeline) transcribe(ctx context.Context, segment *recognition.AudioSegment) (*recognition.Transcript, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.config.TranscribeTimeout)
	defer cancel()
	defer p.observeStage(StageTranscribing, time.Now())
	return p.transcriber.Transcribe(stageCtx, segment)
}

func (p *Pipeline) resolve(ctx context.Context, text string) (*nlp.Command, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.config.ResolveTimeout)
	defer cancel()
	defer p.observeStage(StageResolving, time.Now())
	return p.resolver.Resolve(stageCtx, text)
}

func (p *Pipeline) execute(ctx context.Context, cmd *nlp.Command) (*subsonic.Result, error) {
	stageCtx, cancel := context.WithTimeout(ctx, p.config.ExecuteTimeout)
	defer cancel()
	defer p.observeStage(StageExecuting, time.Now())
	return p.executor.Execute(stageCtx, cmd)
}

func (p *Pipeline) fail(ctx context.Context, logger zerolog.Logger, ack *Ack, stage Stage, err error) {
	ack.Status = AckFailed
	ack.Error = err.Error()
	ack.Message = spokenFailure(err)

	metrics.UtterancesTotal.WithLabelValues("failed").Inc()
	p.publish(bus.EventTypeUtteranceFailed, map[string]any{
		"utterance_id": ack.UtteranceID,
		"stage":        string(stage),
		"error":        err.Error(),
	})
	logger.Warn().Str("utterance_id", ack.UtteranceID).Str("stage", string(stage)).Err(err).Msg("Utterance failed")
	p.deliver(ctx, logger, ack)
}

func (p *Pipeline) deliver(ctx context.Context, logger zerolog.Logger, ack *Ack) {
	p.publish(bus.EventTypeUtteranceAcked, map[string]any{
		"utterance_id": ack.UtteranceID,
		"status":       string(ack.Status),
		"message":      ack.Message,
	})
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishAck(ctx, ack); err != nil {
		logger.Error().Err(err).Str("utterance_id", ack.UtteranceID).Msg("Failed to publish ack")
	}
}

func (p *Pipeline) observeStage(stage Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

func (p *Pipeline) publish(eventType bus.EventType, data map[string]any) {
	if p.events != nil {
		p.events.Publish(bus.Event{Type: eventType, Data: data})
	}
}

// spokenFailure maps pipeline errors onto the phrase spoken back to the
// user. Unrecognized errors get a generic apology rather than leaking
// internals into speech.
func spokenFailure(err error) string {
	switch {
	case errors.Is(err, recognition.ErrAudioTooShort), errors.Is(err, recognition.ErrEmptyTranscript):
		return "Non ho sentito nulla"
	case errors.Is(err, recognition.ErrRecognitionUnavailable), errors.Is(err, recognition.ErrTimeout):
		return "Non sono riuscito a capire, riprova"
	case errors.Is(err, nlp.ErrUnknownCommand):
		return "Non ho capito il comando"
	case errors.Is(err, nlp.ErrEntityNotFound):
		return "Non ho trovato quello che hai chiesto"
	case errors.Is(err, subsonic.ErrNothingPlaying):
		return "Non sto riproducendo nulla"
	case errors.Is(err, subsonic.ErrEmptyQueue):
		return "Non ci sono brani da riprodurre"
	case errors.Is(err, subsonic.ErrRemoteUnavailable):
		return "Il server musicale non risponde"
	case errors.Is(err, subsonic.ErrAuthFailed):
		return "Il server musicale ha rifiutato le credenziali"
	default:
		return "Si e verificato un errore, riprova piu tardi"
	}
}
