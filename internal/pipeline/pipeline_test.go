package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaploop/voice-assistant-navidrome/internal/nlp"
	"github.com/zaploop/voice-assistant-navidrome/internal/recognition"
	"github.com/zaploop/voice-assistant-navidrome/internal/subsonic"
)

type fakeTranscriber struct {
	text string
	err  error
	slow time.Duration
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, segment *recognition.AudioSegment) (*recognition.Transcript, error) {
	if f.slow > 0 {
		select {
		case <-time.After(f.slow):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &recognition.Transcript{Text: f.text, Confidence: 0.9}, nil
}

type fakeResolver struct {
	cmd *nlp.Command
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, text string) (*nlp.Command, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cmd, nil
}

type fakeExecutor struct {
	result *subsonic.Result
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, cmd *nlp.Command) (*subsonic.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type captureAcks struct {
	mu   sync.Mutex
	acks []*Ack
	ch   chan *Ack
}

func newCaptureAcks() *captureAcks {
	return &captureAcks{ch: make(chan *Ack, 32)}
}

func (c *captureAcks) PublishAck(ctx context.Context, ack *Ack) error {
	c.mu.Lock()
	c.acks = append(c.acks, ack)
	c.mu.Unlock()
	c.ch <- ack
	return nil
}

func (c *captureAcks) wait(t *testing.T) *Ack {
	t.Helper()
	select {
	case ack := <-c.ch:
		return ack
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ack")
		return nil
	}
}

func segment(seq uint64) *recognition.AudioSegment {
	return &recognition.AudioSegment{Seq: seq, PCM: make([]byte, 32000), SampleRate: 16000}
}

func testPipeline(t *testing.T, tr Transcriber, r CommandResolver, e CommandExecutor, acks AckPublisher, cfg Config) *Pipeline {
	t.Helper()
	p := New(zerolog.Nop(), cfg, tr, r, e, acks, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	p.Start(ctx)
	t.Cleanup(p.Stop)
	return p
}

func TestPipeline_HappyPath(t *testing.T) {
	acks := newCaptureAcks()
	p := testPipeline(t,
		&fakeTranscriber{text: "riproduci beethoven"},
		&fakeResolver{cmd: &nlp.Command{Kind: nlp.CmdPlay, RawText: "riproduci beethoven"}},
		&fakeExecutor{result: &subsonic.Result{Message: "Riproduco Beethoven"}},
		acks, DefaultConfig())

	require.NoError(t, p.Enqueue(segment(1)))

	ack := acks.wait(t)
	assert.Equal(t, AckOK, ack.Status)
	assert.Equal(t, "Riproduco Beethoven", ack.Message)
	assert.Equal(t, "riproduci beethoven", ack.Transcript)
	assert.NotEmpty(t, ack.UtteranceID)
}

func TestPipeline_TranscriptionFailureAcksFailed(t *testing.T) {
	acks := newCaptureAcks()
	p := testPipeline(t,
		&fakeTranscriber{err: recognition.ErrRecognitionUnavailable},
		&fakeResolver{}, &fakeExecutor{}, acks, DefaultConfig())

	require.NoError(t, p.Enqueue(segment(1)))

	ack := acks.wait(t)
	assert.Equal(t, AckFailed, ack.Status)
	assert.NotEmpty(t, ack.Message, "failure acks must carry a spoken message")
	assert.Contains(t, ack.Error, "recognition")
}

func TestPipeline_UnknownCommandAcksFailed(t *testing.T) {
	acks := newCaptureAcks()
	p := testPipeline(t,
		&fakeTranscriber{text: "che tempo fa"},
		&fakeResolver{err: nlp.ErrUnknownCommand},
		&fakeExecutor{}, acks, DefaultConfig())

	require.NoError(t, p.Enqueue(segment(1)))

	ack := acks.wait(t)
	assert.Equal(t, AckFailed, ack.Status)
	assert.Equal(t, "Non ho capito il comando", ack.Message)
	assert.Equal(t, "che tempo fa", ack.Transcript, "failed acks keep the transcript")
}

func TestPipeline_AmbiguousCommandFlagged(t *testing.T) {
	acks := newCaptureAcks()
	cmd := &nlp.Command{Kind: nlp.CmdPlay, Ambiguous: true}
	p := testPipeline(t,
		&fakeTranscriber{text: "riproduci sting"},
		&fakeResolver{cmd: cmd},
		&fakeExecutor{result: &subsonic.Result{Message: "Riproduco Sting"}},
		acks, DefaultConfig())

	require.NoError(t, p.Enqueue(segment(1)))

	ack := acks.wait(t)
	assert.Equal(t, AckAmbiguous, ack.Status)
}

func TestPipeline_QueueFullDropsNewest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1

	acks := newCaptureAcks()
	p := testPipeline(t,
		&fakeTranscriber{text: "pausa", slow: 200 * time.Millisecond},
		&fakeResolver{cmd: &nlp.Command{Kind: nlp.CmdPause}},
		&fakeExecutor{result: &subsonic.Result{Message: "In pausa"}},
		acks, cfg)

	// First segment occupies the worker, second fills the queue; the
	// third must be rejected without blocking.
	require.NoError(t, p.Enqueue(segment(1)))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, p.Enqueue(segment(2)))

	err := p.Enqueue(segment(3))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPipeline_StopDrainsInFlight(t *testing.T) {
	acks := newCaptureAcks()
	cfg := DefaultConfig()
	cfg.Workers = 2

	p := testPipeline(t,
		&fakeTranscriber{text: "pausa", slow: 50 * time.Millisecond},
		&fakeResolver{cmd: &nlp.Command{Kind: nlp.CmdPause}},
		&fakeExecutor{result: &subsonic.Result{Message: "In pausa"}},
		acks, cfg)

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Enqueue(segment(uint64(i))))
	}
	p.Stop()

	acks.mu.Lock()
	got := len(acks.acks)
	acks.mu.Unlock()
	assert.Equal(t, 4, got, "every queued utterance must be acked before shutdown")

	assert.ErrorIs(t, p.Enqueue(segment(99)), ErrStopped)
}

func TestPipeline_SlowTranscriptionHitsStageTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TranscribeTimeout = 20 * time.Millisecond

	acks := newCaptureAcks()
	p := testPipeline(t,
		&fakeTranscriber{text: "pausa", slow: time.Second},
		&fakeResolver{}, &fakeExecutor{}, acks, cfg)

	require.NoError(t, p.Enqueue(segment(1)))

	ack := acks.wait(t)
	assert.Equal(t, AckFailed, ack.Status)
	assert.Contains(t, ack.Error, "context deadline exceeded")
}

func TestPipeline_ExecutionFailureMapsSpokenMessage(t *testing.T) {
	acks := newCaptureAcks()
	p := testPipeline(t,
		&fakeTranscriber{text: "pausa"},
		&fakeResolver{cmd: &nlp.Command{Kind: nlp.CmdPause}},
		&fakeExecutor{err: subsonic.ErrNothingPlaying},
		acks, DefaultConfig())

	require.NoError(t, p.Enqueue(segment(1)))

	ack := acks.wait(t)
	assert.Equal(t, AckFailed, ack.Status)
	assert.Equal(t, "Non sto riproducendo nulla", ack.Message)
}

func TestSpokenFailure_UnknownErrorIsGeneric(t *testing.T) {
	msg := spokenFailure(errors.New("boom"))
	assert.NotContains(t, msg, "boom", "internal errors must not leak into speech")
}
