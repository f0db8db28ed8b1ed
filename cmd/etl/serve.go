package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/weather-station-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/weather-station-etl/internal/adapter/kafka"
	s3adapter "github.com/couchcryptid/weather-station-etl/internal/adapter/s3"
	"github.com/couchcryptid/weather-station-etl/internal/observability"
	"github.com/couchcryptid/weather-station-etl/internal/pipeline"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume raw records from Kafka and load them until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), e)
		},
	}
}

func serve(parent context.Context, e *env) error {
	cfg, logger := e.cfg, e.logger
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := e.connectMongo(ctx)
	if err != nil {
		return err
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewReportWriter(cfg, logger)
	publishers := pipeline.Publishers{writer}

	if cfg.ReportArchiveEnabled() {
		client, err := s3adapter.NewClient(ctx, cfg.AWSRegion, cfg.S3Endpoint)
		if err != nil {
			return err
		}
		publishers = append(publishers, s3adapter.NewReportArchive(client, cfg.ReportS3Bucket, cfg.ReportS3Prefix, logger))
		logger.Info("run report archive enabled", "bucket", cfg.ReportS3Bucket, "prefix", cfg.ReportS3Prefix)
	}

	svc := pipeline.NewService(e.newPipeline(store, metrics), reader, logger, metrics, cfg.BatchSize,
		pipeline.WithPublisher(publishers),
		pipeline.WithStoreReadiness(store.CheckReadiness),
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, svc, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL service. A fatal run stops the process so the batch is redelivered.
	runErr := make(chan error, 1)
	go func() {
		err := svc.Run(ctx)
		if err != nil {
			logger.Error("pipeline error", "error", err)
		}
		runErr <- err
		stop()
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	var pipelineErr error
	select {
	case pipelineErr = <-runErr:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before the shutdown timeout")
	}

	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error("mongo disconnect error", "error", err)
	}

	logger.Info("shutdown complete")
	return pipelineErr
}
