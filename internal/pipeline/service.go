package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"github.com/couchcryptid/weather-station-etl/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Batch is one extraction from a source. Commit acknowledges the batch and
// is called only after the run that consumed it completed.
type Batch struct {
	Records     []domain.RawRecord
	Undecodable []domain.Rejection
	Commit      func(ctx context.Context) error
}

// Len counts every record the source delivered, decodable or not.
func (b Batch) Len() int {
	return len(b.Records) + len(b.Undecodable)
}

// BatchExtractor reads up to batchSize raw records from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) (Batch, error)
}

// Service drives the Pipeline from a streaming source until the context is
// cancelled or a run aborts.
type Service struct {
	pipeline  *Pipeline
	extractor BatchExtractor
	publisher ReportPublisher
	readiness func(ctx context.Context) error
	logger    *slog.Logger
	metrics   *observability.Metrics
	batchSize int

	ready atomic.Bool
	last  atomic.Pointer[RunReport]
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher sets the sink for run reports.
func WithPublisher(p ReportPublisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithStoreReadiness adds a store probe to CheckReadiness.
func WithStoreReadiness(check func(ctx context.Context) error) ServiceOption {
	return func(s *Service) { s.readiness = check }
}

// NewService creates a Service.
func NewService(p *Pipeline, e BatchExtractor, logger *slog.Logger, metrics *observability.Metrics, batchSize int, opts ...ServiceOption) *Service {
	s := &Service{
		pipeline:  p,
		extractor: e,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckReadiness returns nil once the store schema has been ensured and the
// store answers its probe.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if !s.ready.Load() {
		return errors.New("store schema has not been ensured yet")
	}
	if s.readiness != nil {
		return s.readiness(ctx)
	}
	return nil
}

// LatestReport returns the report of the most recent run, if any.
func (s *Service) LatestReport() (RunReport, bool) {
	r := s.last.Load()
	if r == nil {
		return RunReport{}, false
	}
	return *r, true
}

// Run ensures the store schema, then executes runs until the context is
// cancelled. A fatal run error stops the loop without acknowledging the
// batch, so the source redelivers it on restart.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureSchema(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.ready.Store(true)

	s.logger.Info("pipeline started", "batch_size", s.batchSize)
	s.metrics.PipelineRunning.Set(1)
	defer s.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		cont, err := s.processBatch(ctx, &backoff)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}

// ensureSchema retries with backoff while the store is unavailable.
func (s *Service) ensureSchema(ctx context.Context) error {
	backoff := initialBackoff
	for {
		err := s.pipeline.EnsureSchema(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return fmt.Errorf("ensure schema: %w", err)
		}
		s.logger.Warn("store unavailable, retrying schema setup", "error", err, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// processBatch runs one extract-run-commit cycle. It returns false when the
// loop should stop.
func (s *Service) processBatch(ctx context.Context, backoff *time.Duration) (bool, error) {
	batch, err := s.extractor.ExtractBatch(ctx, s.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		s.metrics.ExtractErrors.Inc()
		s.logger.Error("extract batch failed", "error", err)
		return s.backoffOrStop(ctx, backoff), nil
	}

	if batch.Len() == 0 {
		return ctx.Err() == nil, nil
	}
	s.metrics.BatchSize.Observe(float64(batch.Len()))
	*backoff = initialBackoff

	report, runErr := s.pipeline.Process(ctx, batch.Records, batch.Undecodable...)
	s.last.Store(&report)
	s.publish(ctx, report)
	if runErr != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, runErr
	}

	if batch.Commit != nil {
		if err := batch.Commit(ctx); err != nil {
			s.logger.Warn("commit batch failed", "error", err, "run_id", report.RunID)
		}
	}
	return true, nil
}

func (s *Service) publish(ctx context.Context, report RunReport) {
	if s.publisher == nil {
		return
	}
	// Publish even while shutting down; an aborted run's report is the audit trail.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), report); err != nil {
		s.metrics.PublishErrors.Inc()
		s.logger.Error("publish run report failed", "error", err, "run_id", report.RunID)
	}
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the loop should stop.
func (s *Service) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}
