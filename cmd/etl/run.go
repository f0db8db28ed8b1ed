package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	s3adapter "github.com/couchcryptid/weather-station-etl/internal/adapter/s3"
	"github.com/couchcryptid/weather-station-etl/internal/observability"
	"github.com/couchcryptid/weather-station-etl/internal/pipeline"
	"github.com/couchcryptid/weather-station-etl/internal/store/memory"
	"github.com/spf13/cobra"
)

type runFlags struct {
	input     inputSpec
	dryRun    bool
	reportOut string
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one transform-validate-load batch from a file or S3 object",
		Long: `Run loads one bounded batch and prints its run report.

Inputs:
  *.jsonl  one {"source","context","data"} envelope per line
  *.xlsx   one sheet per day; the sheet name is the partition date (needs --source)

Either may be a local path or an s3://bucket/key URI.

With --dry-run the batch is validated against an in-memory store and nothing
is written to MongoDB or archived.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), e, f, observability.NewMetrics(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&f.input.URI, "input", "i", "", "input file or s3:// URI")
	cmd.Flags().StringVar(&f.input.Source, "source", "", "source tag for workbook rows, e.g. wu_ichtegem")
	cmd.Flags().StringVar(&f.input.Context, "context", "", "partition context for envelopes without one (default: file name)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "validate against an in-memory store")
	cmd.Flags().StringVar(&f.reportOut, "report", "-", "where to write the run report JSON (- for stdout)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runOnce(ctx context.Context, e *env, f runFlags, metrics *observability.Metrics, stdout io.Writer) error {
	cfg, logger := e.cfg, e.logger

	var s3Client s3adapter.API
	if s3adapter.IsURI(f.input.URI) || (cfg.ReportArchiveEnabled() && !f.dryRun) {
		c, err := s3adapter.NewClient(ctx, cfg.AWSRegion, cfg.S3Endpoint)
		if err != nil {
			return err
		}
		s3Client = c
	}

	batch, err := loadInput(ctx, f.input, func(ctx context.Context, uri string) (io.ReadCloser, error) {
		return s3adapter.Open(ctx, s3Client, uri)
	})
	if err != nil {
		return err
	}
	logger.Info("input loaded", "input", f.input.URI, "records", len(batch.Records), "undecodable", len(batch.Undecodable))

	var store pipeline.SchemaStore
	var publisher pipeline.ReportPublisher
	if f.dryRun {
		store = memory.New(e.schema())
	} else {
		ms, err := e.connectMongo(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := ms.Close(context.WithoutCancel(ctx)); err != nil {
				logger.Error("mongo disconnect error", "error", err)
			}
		}()
		store = ms
		if cfg.ReportArchiveEnabled() {
			publisher = s3adapter.NewReportArchive(s3Client, cfg.ReportS3Bucket, cfg.ReportS3Prefix, logger)
		}
	}

	p := e.newPipeline(store, metrics)
	if err := p.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	report, runErr := p.Process(ctx, batch.Records, batch.Undecodable...)

	if publisher != nil {
		if err := publisher.Publish(context.WithoutCancel(ctx), report); err != nil {
			logger.Error("archive run report failed", "error", err, "run_id", report.RunID)
		}
	}
	if err := writeReport(f.reportOut, stdout, report); err != nil {
		return err
	}
	return runErr
}

func writeReport(dest string, stdout io.Writer, report pipeline.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize run report: %w", err)
	}
	data = append(data, '\n')
	if dest == "" || dest == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}
