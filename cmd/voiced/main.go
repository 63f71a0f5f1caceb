// voiced turns spoken commands into music playback against a
// Subsonic-compatible server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zaploop/voice-assistant-navidrome/internal/bus"
	"github.com/zaploop/voice-assistant-navidrome/internal/catalog"
	"github.com/zaploop/voice-assistant-navidrome/internal/config"
	"github.com/zaploop/voice-assistant-navidrome/internal/ingest"
	"github.com/zaploop/voice-assistant-navidrome/internal/logging"
	"github.com/zaploop/voice-assistant-navidrome/internal/messaging"
	"github.com/zaploop/voice-assistant-navidrome/internal/nlp"
	"github.com/zaploop/voice-assistant-navidrome/internal/pipeline"
	"github.com/zaploop/voice-assistant-navidrome/internal/recognition"
	"github.com/zaploop/voice-assistant-navidrome/internal/subsonic"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "voiced",
		Short: "Offline voice control for Subsonic-compatible music servers",
	}
	root.AddCommand(runCmd(), checkCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the voice command service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify connectivity to the music server and recognition engines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return check()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("voiced", version)
		},
	}
}

// loadEnv pulls credentials from ~/.voiced/.env so passwords stay out of
// the config file.
func loadEnv() {
	if home, err := os.UserHomeDir(); err == nil {
		godotenv.Load(filepath.Join(home, ".voiced", ".env"))
	}
	godotenv.Load()
}

func buildStack(cfg *config.Config, logger *logging.Logger) (*recognition.Selector, *subsonic.Client, *subsonic.Executor, *catalog.Cache, *nlp.Resolver, *bus.EventBus) {
	events := bus.NewEventBus()

	fast := recognition.NewVoskEngine(logger.Component("vosk"), &recognition.VoskConfig{
		ServerURL: cfg.Recognition.FastURL,
	})
	accurate := recognition.NewWhisperEngine(logger.Component("whisper"), &recognition.WhisperConfig{
		ServerURL: cfg.Recognition.AccurateURL,
		Language:  cfg.Recognition.Language,
		Timeout:   cfg.Recognition.EngineTimeout,
	})
	selector := recognition.NewSelector(logger.Component("selector"), fast, accurate, recognition.SelectorConfig{
		ConfidenceThreshold: cfg.Recognition.ConfidenceThreshold,
		ShortCommandBound:   cfg.Recognition.ShortCommandBound,
		AccurateTimeout:     cfg.Recognition.AccurateTimeout,
		EngineTimeout:       cfg.Recognition.EngineTimeout,
	})

	client := subsonic.NewClient(logger.Component("subsonic"), subsonic.Config{
		BaseURL:        cfg.Subsonic.BaseURL,
		Username:       cfg.Subsonic.Username,
		Password:       firstNonEmpty(os.Getenv("VOICED_SUBSONIC_PASSWORD"), cfg.Subsonic.Password),
		ClientName:     cfg.Subsonic.ClientName,
		APIVersion:     cfg.Subsonic.APIVersion,
		Timeout:        cfg.Subsonic.Timeout,
		PoolSize:       cfg.Subsonic.PoolSize,
		MaxRetries:     cfg.Subsonic.MaxRetries,
		RetryBaseDelay: cfg.Subsonic.RetryBaseDelay,
		BackoffFactor:  cfg.Subsonic.BackoffFactor,
		CacheTTL:       cfg.Subsonic.CacheTTL,
		SearchCacheTTL: cfg.Subsonic.SearchCacheTTL,
		CacheMaxSize:   cfg.Subsonic.CacheMaxSize,
		BatchWindow:    cfg.Subsonic.BatchWindow,
		BatchSize:      cfg.Subsonic.BatchSize,
	})
	executor := subsonic.NewExecutor(logger.Component("executor"), client, events)

	cache := catalog.NewCache(logger.Component("catalog"), client, catalog.CacheConfig{
		SimilarityThreshold: cfg.Catalog.SimilarityThreshold,
		MaxSuggestions:      cfg.Catalog.MaxSuggestions,
	})

	contexts := nlp.NewContextStore(cfg.NLP.ContextTimeout)
	resolver := nlp.NewResolver(logger.Component("resolver"), cache, contexts, client, nlp.ResolverConfig{
		VolumeStep: cfg.NLP.VolumeStep,
	})

	return selector, client, executor, cache, resolver, events
}

func run() error {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(&logging.Config{
		LogDir:  cfg.Log.Dir,
		Level:   logging.LogLevel(cfg.Log.Level),
		Console: cfg.Log.Console,
	})
	if err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	defer logger.Close()

	log := logger.Component("main")
	log.Info().Str("version", version).Msg("Starting voiced")

	selector, client, executor, cache, resolver, events := buildStack(cfg, logger)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := catalog.NewRefresher(logger.Component("catalog"), cache, cfg.Catalog.RefreshInterval)
	if err := refresher.Start(ctx); err != nil {
		return err
	}
	defer refresher.Stop()

	var publisher pipeline.AckPublisher
	if cfg.Redis.Enabled {
		redisPub, err := messaging.NewPublisher(ctx, logger.Component("messaging"), messaging.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			AckStream: cfg.Redis.AckStream,
		})
		if err != nil {
			return err
		}
		defer redisPub.Close()
		publisher = redisPub
	}

	pipe := pipeline.New(logger.Component("pipeline"), pipeline.Config{
		Workers:           cfg.Pipeline.Workers,
		QueueSize:         cfg.Pipeline.QueueSize,
		TranscribeTimeout: cfg.Pipeline.TranscribeTimeout,
		ResolveTimeout:    cfg.Pipeline.ResolveTimeout,
		ExecuteTimeout:    cfg.Pipeline.ExecuteTimeout,
		DrainTimeout:      cfg.Pipeline.DrainTimeout,
	}, selector, resolver, executor, publisher, events)
	pipe.Start(ctx)

	ingestServer := ingest.NewServer(logger.Component("ingest"), ingest.Config{
		ListenAddr: cfg.Ingest.ListenAddr,
		SampleRate: cfg.Ingest.SampleRate,
		MaxSegment: int64(cfg.Ingest.MaxSegment),
	}, pipe)

	errCh := make(chan error, 2)
	go func() { errCh <- ingestServer.Start() }()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		log.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("Metrics endpoint started")
	}

	// Per-utterance thresholds pick up config edits without a restart.
	config.Watch(func(fresh *config.Config) {
		selector.SetConfig(recognition.SelectorConfig{
			ConfidenceThreshold: fresh.Recognition.ConfidenceThreshold,
			ShortCommandBound:   fresh.Recognition.ShortCommandBound,
			AccurateTimeout:     fresh.Recognition.AccurateTimeout,
			EngineTimeout:       fresh.Recognition.EngineTimeout,
		})
		cache.SetConfig(catalog.CacheConfig{
			SimilarityThreshold: fresh.Catalog.SimilarityThreshold,
			MaxSuggestions:      fresh.Catalog.MaxSuggestions,
		})
		resolver.SetConfig(nlp.ResolverConfig{VolumeStep: fresh.NLP.VolumeStep})
		log.Info().Msg("Configuration reloaded")
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	ingestServer.Shutdown(shutdownCtx)
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	pipe.Stop()
	return nil
}

// check pings every external dependency and reports per-component status.
func check() error {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(&logging.Config{
		LogDir:  cfg.Log.Dir,
		Level:   logging.LogLevel(cfg.Log.Level),
		Console: false,
	})
	if err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	defer logger.Close()

	selector, client, _, _, _, _ := buildStack(cfg, logger)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	failed := false
	if err := client.Ping(ctx); err != nil {
		failed = true
		fmt.Printf("music server:  FAIL (%v)\n", err)
	} else {
		fmt.Println("music server:  ok")
	}
	if err := selector.Health(ctx); err != nil {
		failed = true
		fmt.Printf("recognition:   FAIL (%v)\n", err)
	} else {
		fmt.Println("recognition:   ok")
	}

	if failed {
		return errors.New("one or more checks failed")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
