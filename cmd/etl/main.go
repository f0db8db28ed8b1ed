// Command weather-etl loads weather-station observations into MongoDB.
//
//	weather-etl serve                          # consume Kafka until stopped
//	weather-etl run --input day.jsonl          # one batch from a file
//	weather-etl run --input s3://raw/ichtegem.xlsx --source wu_ichtegem --dry-run
//	weather-etl schema --print                 # declare or show the store schema
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/weather-station-etl/internal/config"
	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"github.com/couchcryptid/weather-station-etl/internal/observability"
	"github.com/couchcryptid/weather-station-etl/internal/pipeline"
	mongostore "github.com/couchcryptid/weather-station-etl/internal/store/mongo"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "weather-etl",
		Short:         "Transform, validate, and load weather-station observations",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRunCmd(), newSchemaCmd())
	return root
}

// env is the process-wide setup shared by every command.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	tables domain.SourceTables
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	tables, err := config.LoadSourceTables(cfg.SourceTablesFile)
	if err != nil {
		return nil, err
	}
	logger.Debug("source tables loaded", "tags", len(tables), "sources", tables.Sources())
	return &env{cfg: cfg, logger: logger, tables: tables}, nil
}

func (e *env) schema() domain.StoreSchema {
	return domain.NewStoreSchema(e.tables)
}

func (e *env) connectMongo(ctx context.Context) (*mongostore.Store, error) {
	return mongostore.Connect(ctx, mongostore.Options{
		URI:            e.cfg.MongoURI,
		Database:       e.cfg.MongoDatabase,
		Collection:     e.cfg.MongoCollection,
		ConnectTimeout: e.cfg.MongoConnectTimeout,
		BatchSize:      e.cfg.UpsertBatchSize,
		Schema:         e.schema(),
	}, e.logger)
}

func (e *env) newPipeline(store pipeline.SchemaStore, metrics *observability.Metrics) *pipeline.Pipeline {
	return pipeline.New(store, pipeline.Options{
		Tables:    e.tables,
		Resolvers: domain.DefaultResolvers(e.cfg.PartitionDateLayout),
		Workers:   e.cfg.NormalizeWorkers,
	}, e.logger, metrics)
}
