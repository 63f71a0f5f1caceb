// Package ingest accepts captured audio segments over a websocket and
// feeds them into the processing pipeline. Capture and endpointing happen
// on the client; one binary message is one complete utterance.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zaploop/voice-assistant-navidrome/internal/pipeline"
	"github.com/zaploop/voice-assistant-navidrome/internal/recognition"
)

// Config tunes the ingest listener.
type Config struct {
	ListenAddr string
	SampleRate int
	MaxSegment int64
}

// DefaultConfig returns settings for local capture clients.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "127.0.0.1:7700",
		SampleRate: 16000,
		MaxSegment: 2 << 20,
	}
}

// Enqueuer admits segments into the pipeline.
type Enqueuer interface {
	Enqueue(segment *recognition.AudioSegment) error
}

// clientHello is the first message a capture client sends.
type clientHello struct {
	SampleRate int `json:"sample_rate"`
}

// segmentAck is sent back after every binary segment.
type segmentAck struct {
	Seq    uint64 `json:"seq"`
	Status string `json:"status"` // "queued" or "dropped"
}

// Server is the websocket ingest endpoint.
type Server struct {
	config   Config
	enqueuer Enqueuer
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	http     *http.Server
	seq      atomic.Uint64
}

// NewServer builds the listener; call Start to serve.
func NewServer(logger zerolog.Logger, config Config, enqueuer Enqueuer) *Server {
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	if config.MaxSegment <= 0 {
		config.MaxSegment = 2 << 20
	}
	s := &Server{
		config:   config,
		enqueuer: enqueuer,
		logger:   logger.With().Str("component", "ingest").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 4 * 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ingest", s.handleWS)
	s.http = &http.Server{Addr: config.ListenAddr, Handler: mux}
	return s
}

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Ingest listener started")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes the listener and waits for open connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the websocket handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(s.config.MaxSegment)

	sampleRate := s.config.SampleRate
	logger := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("Capture connection dropped")
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var hello clientHello
			if err := json.Unmarshal(data, &hello); err != nil {
				logger.Warn().Err(err).Msg("Bad hello message")
				continue
			}
			if hello.SampleRate > 0 {
				sampleRate = hello.SampleRate
			}

		case websocket.BinaryMessage:
			seq := s.seq.Add(1)
			segment := &recognition.AudioSegment{
				Seq:        seq,
				PCM:        data,
				SampleRate: sampleRate,
				Captured:   time.Now(),
			}

			ack := segmentAck{Seq: seq, Status: "queued"}
			if err := s.enqueuer.Enqueue(segment); err != nil {
				ack.Status = "dropped"
				if !errors.Is(err, pipeline.ErrQueueFull) && !errors.Is(err, pipeline.ErrStopped) {
					logger.Error().Err(err).Msg("Enqueue failed")
				}
			}
			if err := conn.WriteJSON(ack); err != nil {
				logger.Warn().Err(err).Msg("Failed to ack segment")
				return
			}
		}
	}
}
