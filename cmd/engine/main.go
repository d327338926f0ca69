package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/lake-raster-engine/internal/adapter/boundaryxml"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/geotiff"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/lake-raster-engine/internal/adapter/kafka"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/kml"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/levels"
	"github.com/couchcryptid/lake-raster-engine/internal/adapter/memo"
	"github.com/couchcryptid/lake-raster-engine/internal/config"
	"github.com/couchcryptid/lake-raster-engine/internal/domain"
	"github.com/couchcryptid/lake-raster-engine/internal/observability"
	"github.com/couchcryptid/lake-raster-engine/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	components := pipeline.Components{
		Reader:   geotiff.NewReader(),
		Boundary: boundaryxml.NewLoader(cfg.BoundaryFiles),
		Levels:   levels.NewLoader(cfg.LevelFiles, logger),
		Points:   kml.NewLoader(logger),
	}

	// Sample publishing is feature-flagged via KAFKA_ENABLED.
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		components.Publisher = publisher
		logger.Info("sample publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("sample publishing disabled")
	}

	engine := pipeline.NewEngine(engineConfig(cfg), components, logger, metrics)

	var analyzer pipeline.Analyzer = engine
	if cfg.MemoEnabled {
		analyzer = memo.New(engine, cfg.DataRoot, cfg.MemoSize, metrics)
		logger.Info("memoization enabled", "size", cfg.MemoSize)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Probe(ctx); err != nil {
		logger.Warn("data root probe failed, waiting for first analysis", "data_root", cfg.DataRoot, "error", err)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, engine, analyzer, logger)

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "data_root", cfg.DataRoot)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func engineConfig(cfg *config.Config) pipeline.EngineConfig {
	enhance := domain.DefaultEnhanceConfig()
	enhance.IntensityMin = uint8(cfg.IntensityMin)
	enhance.IntensityMax = uint8(cfg.IntensityMax)
	enhance.MaxChannelSpread = uint8(cfg.MaxChannelSpread)

	return pipeline.EngineConfig{
		DataRoot:     cfg.DataRoot,
		SamplingFile: cfg.SamplingFile,
		ProxyFactor:  cfg.ProxyFactor,
		Enhance:      enhance,
		Ingest: pipeline.IngestOptions{
			Workers:      cfg.Workers,
			MaskFile:     cfg.MaskFile,
			Canvas:       domain.Canvas{Width: float64(cfg.CanvasWidth), Height: float64(cfg.CanvasHeight)},
			ZeroAsNoData: cfg.ZeroAsNoData,
		},
	}
}
