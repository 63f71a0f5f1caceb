package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// VoskEngine implements the fast recognition strategy against a local
// vosk-server instance speaking its websocket protocol.
type VoskEngine struct {
	serverURL string
	logger    zerolog.Logger
	config    *VoskConfig
}

// VoskConfig holds vosk-server connection configuration
type VoskConfig struct {
	ServerURL  string        `json:"server_url"` // e.g. http://localhost:2700
	ChunkSize  int           `json:"chunk_size"` // PCM bytes per websocket frame
	DialTimout time.Duration `json:"dial_timeout"`
}

// DefaultVoskConfig returns sensible defaults
func DefaultVoskConfig() *VoskConfig {
	return &VoskConfig{
		ServerURL:  "http://localhost:2700",
		ChunkSize:  8000, // 250ms of 16kHz mono PCM
		DialTimout: 3 * time.Second,
	}
}

// NewVoskEngine creates a fast engine backed by vosk-server
func NewVoskEngine(logger zerolog.Logger, config *VoskConfig) *VoskEngine {
	if config == nil {
		config = DefaultVoskConfig()
	}
	return &VoskEngine{
		serverURL: config.ServerURL,
		logger:    logger.With().Str("engine", "vosk").Logger(),
		config:    config,
	}
}

// Name returns the engine identifier
func (e *VoskEngine) Name() string { return "vosk" }

// Kind returns the selection role
func (e *VoskEngine) Kind() EngineKind { return EngineFast }

// voskResult mirrors the final JSON message emitted by vosk-server.
type voskResult struct {
	Text         string `json:"text"`
	Alternatives []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
	Result []struct {
		Word string  `json:"word"`
		Conf float64 `json:"conf"`
	} `json:"result"`
	Partial string `json:"partial"`
}

// Transcribe streams the segment to vosk-server and reads the final result.
func (e *VoskEngine) Transcribe(ctx context.Context, seg *AudioSegment) (*Transcript, error) {
	startTime := time.Now()

	if len(seg.PCM) == 0 {
		return nil, ErrAudioTooShort
	}

	conn, err := e.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	cfgMsg := fmt.Sprintf(`{"config": {"sample_rate": %d, "max_alternatives": 3}}`, seg.SampleRate)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(cfgMsg)); err != nil {
		return nil, fmt.Errorf("failed to send config: %w", err)
	}

	for off := 0; off < len(seg.PCM); off += e.config.ChunkSize {
		end := off + e.config.ChunkSize
		if end > len(seg.PCM) {
			end = len(seg.PCM)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, seg.PCM[off:end]); err != nil {
			return nil, fmt.Errorf("failed to send audio: %w", err)
		}
		// Drain intermediate partial results so the server keeps streaming.
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil, fmt.Errorf("failed to read partial result: %w", err)
		}
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`)); err != nil {
		return nil, fmt.Errorf("failed to send eof: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read final result: %w", err)
	}

	var result voskResult
	if err := json.Unmarshal(msg, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}

	text, confidence := extractVoskResult(&result)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	latency := time.Since(startTime)
	e.logger.Debug().Str("text", text).Float64("confidence", confidence).Dur("latency", latency).Msg("Transcription complete")

	return &Transcript{
		Text:       text,
		Confidence: confidence,
		Engine:     EngineFast,
		Latency:    latency,
	}, nil
}

// extractVoskResult pulls text and confidence from whichever result shape
// the server produced. With max_alternatives set the top alternative carries
// an utterance-level confidence; otherwise word confidences are averaged.
func extractVoskResult(r *voskResult) (string, float64) {
	if len(r.Alternatives) > 0 {
		return r.Alternatives[0].Text, r.Alternatives[0].Confidence
	}
	if r.Text == "" {
		return "", 0
	}
	if len(r.Result) == 0 {
		return r.Text, 0
	}
	var sum float64
	for _, w := range r.Result {
		sum += w.Conf
	}
	return r.Text, sum / float64(len(r.Result))
}

// Health dials the server and closes the connection.
func (e *VoskEngine) Health(ctx context.Context) error {
	conn, err := e.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	return conn.Close()
}

func (e *VoskEngine) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(e.serverURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	dialer := websocket.Dialer{
		NetDialContext: (&net.Dialer{Timeout: e.config.DialTimout}).DialContext,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}
