package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UtterancesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiced_utterances_total",
			Help: "Total number of utterances processed, by final status",
		},
		[]string{"status"},
	)

	RecognitionLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "voiced_recognition_latency_seconds",
			Help: "Transcription latency per engine",
		},
		[]string{"engine"},
	)

	EngineSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiced_engine_selections_total",
			Help: "Which recognition engine produced the accepted transcript",
		},
		[]string{"engine", "path"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "voiced_stage_duration_seconds",
			Help: "Pipeline stage duration in seconds",
		},
		[]string{"stage"},
	)

	CatalogEntities = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voiced_catalog_entities",
			Help: "Number of entities in the current catalog snapshot",
		},
		[]string{"kind"},
	)

	CatalogRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voiced_catalog_refreshes_total",
			Help: "Total number of catalog snapshot refreshes",
		},
	)

	RemoteCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiced_remote_cache_total",
			Help: "Remote client request cache hits and misses",
		},
		[]string{"result"},
	)

	RemoteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "voiced_remote_retries_total",
			Help: "Total number of retried remote calls",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voiced_pipeline_queue_depth",
			Help: "Number of audio segments waiting in the pipeline queue",
		},
	)
)
