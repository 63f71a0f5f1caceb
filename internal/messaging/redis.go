// Package messaging publishes playback acknowledgements to Redis Streams
// so external consumers (a TTS speaker, a notification UI) can react to
// executed commands.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zaploop/voice-assistant-navidrome/internal/pipeline"
)

// Config holds the Redis connection and stream settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	AckStream string
	MaxLen    int64
}

// DefaultConfig returns settings for a local Redis instance.
func DefaultConfig() Config {
	return Config{
		Addr:      "localhost:6379",
		AckStream: "voiced:playback-acks",
		MaxLen:    1000,
	}
}

// Publisher writes acks to a capped Redis stream.
type Publisher struct {
	client *redis.Client
	config Config
	logger zerolog.Logger
}

// NewPublisher connects and verifies the server is reachable.
func NewPublisher(ctx context.Context, logger zerolog.Logger, config Config) (*Publisher, error) {
	if config.AckStream == "" {
		config.AckStream = "voiced:playback-acks"
	}
	if config.MaxLen <= 0 {
		config.MaxLen = 1000
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", config.Addr).Str("stream", config.AckStream).Msg("Connected to Redis")
	return &Publisher{
		client: client,
		config: config,
		logger: logger.With().Str("component", "messaging").Logger(),
	}, nil
}

// PublishAck implements pipeline.AckPublisher via XADD on the ack stream.
// The stream is trimmed approximately to MaxLen.
func (p *Publisher) PublishAck(ctx context.Context, ack *pipeline.Ack) error {
	values := map[string]any{
		"utterance_id": ack.UtteranceID,
		"status":       string(ack.Status),
		"message":      ack.Message,
	}
	if ack.Transcript != "" {
		values["transcript"] = ack.Transcript
	}
	if ack.Command != "" {
		values["command"] = ack.Command
	}
	if ack.Error != "" {
		values["error"] = ack.Error
	}
	if len(ack.Details) > 0 {
		details, err := json.Marshal(ack.Details)
		if err == nil {
			values["details"] = string(details)
		}
	}

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.config.AckStream,
		MaxLen: p.config.MaxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish ack %s: %w", ack.UtteranceID, err)
	}

	p.logger.Debug().Str("utterance_id", ack.UtteranceID).Str("status", string(ack.Status)).Msg("Ack published")
	return nil
}

// Close releases the connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
