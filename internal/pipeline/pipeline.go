package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"github.com/couchcryptid/weather-station-etl/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SchemaStore is the persistence boundary.
type SchemaStore interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, batch []domain.Observation) (domain.UpsertResult, error)
}

// Options configures a Pipeline.
type Options struct {
	Tables    domain.SourceTables
	Resolvers domain.Resolvers
	Workers   int           // normalization concurrency, default 4
	NewRunID  func() string // default uuid.NewString
}

// Pipeline runs one bounded batch through
// RAW → MAPPED → NORMALIZED → TIMESTAMPED → DEDUPED → PERSISTED. Each stage
// consumes the whole batch before the next starts.
type Pipeline struct {
	mapper    *domain.RecordMapper
	resolvers domain.Resolvers
	store     SchemaStore
	workers   int
	newRunID  func() string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline writing to store.
func New(store SchemaStore, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Tables == nil {
		opts.Tables = domain.DefaultSourceTables()
	}
	if opts.Resolvers == nil {
		opts.Resolvers = domain.DefaultResolvers(domain.DefaultPartitionLayout)
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Pipeline{
		mapper:    domain.NewRecordMapper(opts.Tables),
		resolvers: opts.Resolvers,
		store:     store,
		workers:   opts.Workers,
		newRunID:  opts.NewRunID,
		logger:    logger,
		metrics:   metrics,
	}
}

// EnsureSchema declares the store's structural constraints.
func (p *Pipeline) EnsureSchema(ctx context.Context) error {
	return p.store.EnsureSchema(ctx)
}

// run carries one batch through the stages.
type run struct {
	report   RunReport
	rejected []domain.Rejection
}

func (r *run) reject(rej domain.Rejection) {
	r.rejected = append(r.rejected, rej)
}

// Process runs the batch. upstream lists records the extractor could not
// decode; they count as rejections. Per-record failures never fail the run.
// A fatal error returns the partial report alongside the error.
func (p *Pipeline) Process(ctx context.Context, records []domain.RawRecord, upstream ...domain.Rejection) (RunReport, error) {
	r := &run{report: RunReport{RunID: p.newRunID(), StartedAt: domain.Now()}}
	r.rejected = append(r.rejected, upstream...)
	logger := p.logger.With("run_id", r.report.RunID)

	// RAW
	raw := make([]domain.RawRecord, len(records))
	for i, rec := range records {
		if rec.Ref == "" {
			rec.Ref = fmt.Sprintf("#%d", i)
		}
		raw[i] = rec
	}
	raw, malformed := domain.ExpandBundles(raw)
	for _, rej := range malformed {
		logger.Warn("malformed bundle content, skipping", "ref", rej.Ref, "detail", rej.Detail)
		r.reject(rej)
	}
	p.metrics.RecordsConsumed.Add(float64(len(raw)))
	r.report.Stage = StageRaw

	// MAPPED
	candidates := make([]domain.Candidate, 0, len(raw))
	for _, rec := range raw {
		c, err := p.mapper.Map(rec)
		if err != nil {
			var mapErr *domain.MappingError
			if !errors.As(err, &mapErr) {
				return p.abort(r, err)
			}
			logger.Warn("mapping failed, skipping record", "ref", rec.Ref, "source", rec.Source, "error", err)
			r.reject(mapErr.Rejection())
			continue
		}
		candidates = append(candidates, c)
	}
	r.report.Stage = StageMapped

	// NORMALIZED
	normalized, err := p.normalize(ctx, r, candidates)
	if err != nil {
		return p.abort(r, err)
	}
	for _, w := range r.report.Warnings {
		logger.Debug("conversion warning", "ref", w.Ref, "field", w.Field, "raw", w.Raw)
	}
	r.report.Stage = StageNormalized

	// TIMESTAMPED
	timed := make([]domain.Observation, 0, len(normalized))
	for _, n := range normalized {
		o, err := p.resolvers.Timestamp(n)
		if err != nil {
			var tsErr *domain.TimestampError
			if !errors.As(err, &tsErr) {
				return p.abort(r, err)
			}
			logger.Warn("timestamp unresolvable, skipping record", "ref", n.Ref, "error", err)
			r.reject(tsErr.Rejection())
			continue
		}
		timed = append(timed, o)
	}
	r.report.Stage = StageTimestamped

	// DEDUPED
	dedup := domain.NewDeduplicator()
	accepted := make([]domain.Observation, 0, len(timed))
	for _, o := range timed {
		hashed, first := dedup.Admit(o)
		if !first {
			firstRef, _ := dedup.FirstRef(hashed.RecordHash)
			r.reject(domain.Rejection{Ref: o.Ref, Reason: domain.ReasonDuplicate, Detail: "duplicate of " + firstRef})
			continue
		}
		accepted = append(accepted, hashed)
	}
	r.report.Stage = StageDeduped

	pre := domain.ScoreBatch(domain.PhasePreLoad, accepted, r.rejected)
	r.report.PreLoad = &pre
	for field, n := range pre.RangeViolations {
		if n > 0 {
			p.metrics.RangeViolations.WithLabelValues(string(field)).Add(float64(n))
		}
	}
	logger.Info("pre-load report",
		"total", pre.Total, "accepted", pre.Accepted, "rejected", pre.Rejected,
		"duplicates", pre.DuplicateCount, "range_violations", pre.TotalRangeViolations())

	// PERSISTED
	var res domain.UpsertResult
	if len(accepted) > 0 {
		if err := ctx.Err(); err != nil {
			return p.abort(r, err)
		}
		res, err = p.store.Upsert(ctx, accepted)
		if err != nil {
			return p.abort(r, fmt.Errorf("upsert: %w", err))
		}
	}
	for _, rej := range res.Rejected {
		logger.Warn("store rejected record", "ref", rej.Ref, "reason", rej.Reason, "detail", rej.Detail)
	}
	r.report.Stage = StagePersisted

	post := domain.ScorePostLoad(accepted, r.rejected, res)
	r.report.PostLoad = &post

	for _, rej := range post.Load.Rejected {
		p.metrics.RecordsRejected.WithLabelValues(string(rej.Reason)).Inc()
	}
	for _, rej := range r.rejected {
		p.metrics.RecordsRejected.WithLabelValues(string(rej.Reason)).Inc()
	}
	p.metrics.RecordsUpserted.WithLabelValues("inserted").Add(float64(res.Inserted))
	p.metrics.RecordsUpserted.WithLabelValues("updated").Add(float64(res.Updated))

	r.report.Status = StatusCompleted
	p.finish(r)
	logger.Info("run completed",
		"inserted", res.Inserted, "updated", res.Updated, "store_rejected", len(res.Rejected),
		"error_rate", post.ErrorRate, "duration", r.report.Duration())
	return r.report, nil
}

// normalize converts candidates with a bounded worker group. Results keep
// input order.
func (p *Pipeline) normalize(ctx context.Context, r *run, candidates []domain.Candidate) ([]domain.Normalized, error) {
	out := make([]domain.Normalized, len(candidates))
	warnings := make([][]domain.ConversionWarning, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i], warnings[i] = domain.Normalize(c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, ws := range warnings {
		r.report.Warnings = append(r.report.Warnings, ws...)
	}
	p.metrics.ConversionWarnings.Add(float64(len(r.report.Warnings)))
	return out, nil
}

func (p *Pipeline) abort(r *run, err error) (RunReport, error) {
	r.report.Status = StatusAborted
	r.report.Error = err.Error()
	p.finish(r)
	p.logger.Error("run aborted", "run_id", r.report.RunID, "stage", r.report.Stage, "error", err)
	return r.report, fmt.Errorf("run %s aborted after stage %s: %w", r.report.RunID, r.report.Stage, err)
}

func (p *Pipeline) finish(r *run) {
	r.report.FinishedAt = domain.Now()
	p.metrics.Runs.WithLabelValues(string(r.report.Status)).Inc()
	p.metrics.RunDuration.Observe(r.report.Duration().Seconds())
}
