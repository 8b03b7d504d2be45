package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	fileadapter "github.com/couchcryptid/service-request-etl/internal/adapter/file"
	httpadapter "github.com/couchcryptid/service-request-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/service-request-etl/internal/adapter/kafka"
	"github.com/couchcryptid/service-request-etl/internal/adapter/nominatim"
	"github.com/couchcryptid/service-request-etl/internal/config"
	"github.com/couchcryptid/service-request-etl/internal/observability"
	"github.com/couchcryptid/service-request-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	client := nominatim.NewClient(cfg.NominatimBaseURL, cfg.NominatimUserAgent, cfg.NominatimTimeout, logger)
	geocoder := nominatim.NewCachedGeocoder(client, cfg.NominatimCacheSize)

	source := &fileadapter.Source{
		RequestsPath:     cfg.RequestsPath,
		CellsPath:        cfg.CellsPath,
		ObservationsPath: cfg.ObservationsPath,
	}
	store := &fileadapter.Store{
		JoinedPath:     filepath.Join(cfg.OutputDir, "sr_hex_joined.csv.gz"),
		AnonymizedPath: filepath.Join(cfg.OutputDir, "sr_anonymized.csv"),
	}

	// The Kafka sink is feature-flagged via SINK_ENABLED.
	var publisher pipeline.Publisher
	var writer *kafkaadapter.Writer
	if cfg.SinkEnabled {
		writer = kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSinkTopic, logger)
		publisher = writer
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka sink disabled")
	}

	p := pipeline.New(source, store, publisher, geocoder, logger, metrics, pipeline.Options{
		ReferencePlace:  cfg.ReferencePlace,
		Scenario:        cfg.Scenario,
		ObservationYear: cfg.ObservationYear,
		JoinPolicy:      cfg.JoinPolicy,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run the pipeline once and shut down when it finishes.
	exitCode := 0
	go func() {
		defer stop()
		summary, err := p.Run(ctx)
		if err != nil {
			logger.Error("pipeline error", "error", err)
			exitCode = 1
			return
		}
		logger.Info("pipeline run complete",
			"joined", summary.Join.Total,
			"retained", summary.Filter.Retained,
			"matched", summary.Augment.Matched,
			"anonymized", summary.Anonymized,
			"degraded", summary.Degraded,
		)
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	os.Exit(exitCode)
}
