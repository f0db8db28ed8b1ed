package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/weather-station-etl/internal/domain"
)

// Stage names a pipeline stage. A run report records the last stage that
// completed.
type Stage string

const (
	StageRaw         Stage = "raw"
	StageMapped      Stage = "mapped"
	StageNormalized  Stage = "normalized"
	StageTimestamped Stage = "timestamped"
	StageDeduped     Stage = "deduped"
	StagePersisted   Stage = "persisted"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
)

// RunReport is the audit record of one run. A completed run carries both
// quality reports; an aborted run carries whatever was produced before the
// fatal error, always including the pre-load report once deduplication ran.
type RunReport struct {
	RunID      string                     `json:"run_id"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Status     Status                     `json:"status"`
	Stage      Stage                      `json:"stage"`
	PreLoad    *domain.QualityReport      `json:"pre_load,omitempty"`
	PostLoad   *domain.QualityReport      `json:"post_load,omitempty"`
	Warnings   []domain.ConversionWarning `json:"warnings,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// Duration returns the wall time of the run.
func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ReportPublisher delivers run reports to an audit sink.
type ReportPublisher interface {
	Publish(ctx context.Context, report RunReport) error
}

// Publishers fans a report out to several sinks. Every sink is attempted.
type Publishers []ReportPublisher

// Publish implements ReportPublisher.
func (ps Publishers) Publish(ctx context.Context, report RunReport) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublisherFunc adapts a function to ReportPublisher.
type PublisherFunc func(ctx context.Context, report RunReport) error

// Publish implements ReportPublisher.
func (f PublisherFunc) Publish(ctx context.Context, report RunReport) error {
	return f(ctx, report)
}
