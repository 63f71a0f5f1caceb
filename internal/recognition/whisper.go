package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// WhisperEngine implements the accurate recognition strategy against a local
// whisper.cpp server (the `server` example binary, /inference endpoint).
type WhisperEngine struct {
	client *http.Client
	logger zerolog.Logger
	config *WhisperConfig
}

// WhisperConfig holds whisper.cpp server configuration
type WhisperConfig struct {
	ServerURL   string        `json:"server_url"` // e.g. http://localhost:8089
	Language    string        `json:"language"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultWhisperConfig returns sensible defaults
func DefaultWhisperConfig() *WhisperConfig {
	return &WhisperConfig{
		ServerURL:   "http://localhost:8089",
		Language:    "it",
		Temperature: 0.0,
		Timeout:     30 * time.Second,
	}
}

// NewWhisperEngine creates an accurate engine backed by a whisper.cpp server
func NewWhisperEngine(logger zerolog.Logger, config *WhisperConfig) *WhisperEngine {
	if config == nil {
		config = DefaultWhisperConfig()
	}
	return &WhisperEngine{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger.With().Str("engine", "whisper").Logger(),
		config: config,
	}
}

// Name returns the engine identifier
func (e *WhisperEngine) Name() string { return "whisper" }

// Kind returns the selection role
func (e *WhisperEngine) Kind() EngineKind { return EngineAccurate }

// Transcribe sends the segment to the whisper.cpp server as a WAV upload.
func (e *WhisperEngine) Transcribe(ctx context.Context, seg *AudioSegment) (*Transcript, error) {
	startTime := time.Now()

	if len(seg.PCM) == 0 {
		return nil, ErrAudioTooShort
	}

	wavData := wrapWAV(seg.PCM, seg.SampleRate, 1)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "segment.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	if err := writer.WriteField("temperature", fmt.Sprintf("%.1f", e.config.Temperature)); err != nil {
		return nil, fmt.Errorf("failed to write temperature field: %w", err)
	}
	if e.config.Language != "" {
		if err := writer.WriteField("language", e.config.Language); err != nil {
			return nil, fmt.Errorf("failed to write language field: %w", err)
		}
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, fmt.Errorf("failed to write response_format field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.config.ServerURL+"/inference", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		e.logger.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Whisper server error")
		return nil, fmt.Errorf("%w: status %d", ErrEngineUnavailable, resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	latency := time.Since(startTime)
	e.logger.Debug().Str("text", text).Dur("latency", latency).Msg("Transcription complete")

	return &Transcript{
		Text: text,
		// whisper.cpp does not report an utterance confidence; treat its
		// output as trusted.
		Confidence: 0.95,
		Engine:     EngineAccurate,
		Latency:    latency,
	}, nil
}

// Health checks the server's health endpoint.
func (e *WhisperEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", e.config.ServerURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrEngineUnavailable, resp.StatusCode)
	}
	return nil
}

// wrapWAV prefixes raw 16-bit PCM with a WAV header.
func wrapWAV(pcmData []byte, sampleRate, channels int) []byte {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	if channels == 0 {
		channels = 1
	}

	bitsPerSample := 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcmData)
	fileSize := 36 + dataSize

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	putLE32(header[4:8], fileSize)
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	putLE32(header[16:20], 16) // Subchunk1Size
	header[20] = 1             // AudioFormat (PCM)
	header[22] = byte(channels)
	putLE32(header[24:28], sampleRate)
	putLE32(header[28:32], byteRate)
	header[32] = byte(blockAlign)
	header[34] = byte(bitsPerSample)

	copy(header[36:40], "data")
	putLE32(header[40:44], dataSize)

	return append(header, pcmData...)
}

func putLE32(b []byte, v int) {
	b[0] = byte(v & 0xff)
	b[1] = byte((v >> 8) & 0xff)
	b[2] = byte((v >> 16) & 0xff)
	b[3] = byte((v >> 24) & 0xff)
}
