// Package recognition provides dual-engine speech transcription for voiced.
//
// Two engines are available: a fast streaming recognizer (vosk-server) used
// for short commands, and an accurate recognizer (whisper.cpp server) used
// when the fast result is not trustworthy. The Selector decides which result
// to accept per audio segment.
package recognition

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrRecognitionUnavailable = errors.New("no recognition engine produced a transcript")
	ErrEngineUnavailable      = errors.New("recognition engine unavailable")
	ErrAudioTooShort          = errors.New("audio too short for transcription")
	ErrEmptyTranscript        = errors.New("engine returned empty transcript")
	ErrTimeout                = errors.New("transcription timeout")
)

// EngineKind identifies which transcription strategy produced a result
type EngineKind string

const (
	EngineFast     EngineKind = "fast"
	EngineAccurate EngineKind = "accurate"
)

// Engine is the interface both transcription engines implement
type Engine interface {
	// Name returns the engine identifier (e.g., "vosk", "whisper")
	Name() string

	// Kind returns which selection role this engine plays
	Kind() EngineKind

	// Transcribe converts one audio segment to text
	Transcribe(ctx context.Context, seg *AudioSegment) (*Transcript, error)

	// Health checks if the engine is reachable
	Health(ctx context.Context) error
}

// AudioSegment is one complete utterance worth of PCM audio, produced by the
// upstream capture stage. It is immutable once queued.
type AudioSegment struct {
	Seq        uint64    `json:"seq"`         // Producer sequence number
	PCM        []byte    `json:"-"`           // 16-bit little-endian mono PCM
	SampleRate int       `json:"sample_rate"` // Sample rate in Hz
	Captured   time.Time `json:"captured"`    // When the upstream producer emitted it
}

// Duration returns the audio duration implied by the PCM length.
func (s *AudioSegment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	samples := len(s.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(s.SampleRate)
}

// Transcript is one accepted transcription result for an audio segment.
type Transcript struct {
	Text          string        `json:"text"`
	Confidence    float64       `json:"confidence"` // 0..1
	Engine        EngineKind    `json:"engine"`
	Latency       time.Duration `json:"latency"`
	LowConfidence bool          `json:"low_confidence"` // Set when the selector fell back to an untrusted result
}
