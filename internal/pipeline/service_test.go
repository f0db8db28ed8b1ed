package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"github.com/couchcryptid/weather-station-etl/internal/observability"
	"github.com/couchcryptid/weather-station-etl/internal/pipeline"
	"github.com/couchcryptid/weather-station-etl/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches []pipeline.Batch
	errs    []error
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) (pipeline.Batch, error) {
	i := int(m.index.Add(1) - 1)
	if i < len(m.errs) && m.errs[i] != nil {
		return pipeline.Batch{}, m.errs[i]
	}
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return pipeline.Batch{}, ctx.Err()
	}
	return m.batches[i], nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []pipeline.RunReport
}

func (r *recordingPublisher) Publish(_ context.Context, report pipeline.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *recordingPublisher) all() []pipeline.RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.RunReport(nil), r.reports...)
}

func newService(t *testing.T, p *pipeline.Pipeline, e pipeline.BatchExtractor, opts ...pipeline.ServiceOption) *pipeline.Service {
	t.Helper()
	return pipeline.NewService(p, e, slog.Default(), observability.NewMetricsForTesting(), 50, opts...)
}

// --- tests ---

func TestService_Run_HappyPath(t *testing.T) {
	store := newStore()
	var committed atomic.Bool
	ext := &mockExtractor{batches: []pipeline.Batch{{
		Records: []domain.RawRecord{wuRecord("a", "12:04 AM", "87 %")},
		Commit: func(context.Context) error {
			committed.Store(true)
			return nil
		},
	}}}
	pub := &recordingPublisher{}
	svc := newService(t, newPipeline(t, store), ext, pipeline.WithPublisher(pub))

	require.Error(t, svc.CheckReadiness(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, svc.Run(ctx))

	assert.True(t, committed.Load())
	assert.Equal(t, 1, store.SchemaCalls())
	assert.Equal(t, 1, store.Len())
	require.NoError(t, svc.CheckReadiness(context.Background()))

	reports := pub.all()
	require.Len(t, reports, 1)
	assert.Equal(t, pipeline.StatusCompleted, reports[0].Status)

	latest, ok := svc.LatestReport()
	require.True(t, ok)
	assert.Equal(t, reports[0].RunID, latest.RunID)
}

func TestService_Run_ContextCancellation(t *testing.T) {
	svc := newService(t, newPipeline(t, newStore()), &mockExtractor{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, svc.Run(ctx))
	_, ok := svc.LatestReport()
	assert.False(t, ok)
}

func TestService_Run_FatalRunStopsWithoutCommit(t *testing.T) {
	store := newStore()
	var committed atomic.Bool
	ext := &mockExtractor{batches: []pipeline.Batch{{
		Records: []domain.RawRecord{wuRecord("a", "12:04 AM", "87 %")},
		Commit: func(context.Context) error {
			committed.Store(true)
			return nil
		},
	}}}
	pub := &recordingPublisher{}
	svc := newService(t, newPipeline(t, &flakyStore{store: store}), ext, pipeline.WithPublisher(pub))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := svc.Run(ctx)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.False(t, committed.Load(), "aborted batch must be redelivered")
	reports := pub.all()
	require.Len(t, reports, 1)
	assert.Equal(t, pipeline.StatusAborted, reports[0].Status)
	assert.NotNil(t, reports[0].PreLoad)
}

func TestService_Run_ExtractErrorBacksOff(t *testing.T) {
	store := newStore()
	ext := &mockExtractor{
		errs: []error{errors.New("broker down"), nil},
		batches: []pipeline.Batch{
			{},
			{Records: []domain.RawRecord{wuRecord("a", "12:04 AM", "87 %")}},
		},
	}
	svc := newService(t, newPipeline(t, store), ext)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, svc.Run(ctx))
	assert.Equal(t, 1, store.Len())
}

func TestService_Run_SchemaRetriesWhileUnavailable(t *testing.T) {
	store := newStore()
	store.SetUnavailable(errors.New("no primary"))
	svc := newService(t, newPipeline(t, store), &mockExtractor{})

	go func() {
		time.Sleep(300 * time.Millisecond)
		store.SetUnavailable(nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc.CheckReadiness(context.Background()) == nil
	}, 1500*time.Millisecond, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestService_Run_SchemaFatalError(t *testing.T) {
	svc := newService(t, newPipeline(t, schemaErrorStore{}), &mockExtractor{})
	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure schema")
}

func TestService_CheckReadiness_ProbesStore(t *testing.T) {
	store := newStore()
	svc := newService(t, newPipeline(t, store), &mockExtractor{}, pipeline.WithStoreReadiness(store.CheckReadiness))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return svc.CheckReadiness(context.Background()) == nil
	}, time.Second, 10*time.Millisecond)

	store.SetUnavailable(errors.New("lost"))
	assert.ErrorIs(t, svc.CheckReadiness(context.Background()), domain.ErrStoreUnavailable)

	cancel()
	require.NoError(t, <-done)
}

// flakyStore ensures its schema but fails every upsert as unreachable.
type flakyStore struct {
	store *memory.Store
}

func (f *flakyStore) EnsureSchema(ctx context.Context) error {
	return f.store.EnsureSchema(ctx)
}

func (f *flakyStore) Upsert(context.Context, []domain.Observation) (domain.UpsertResult, error) {
	return domain.UpsertResult{}, domain.ErrStoreUnavailable
}

type schemaErrorStore struct{}

func (schemaErrorStore) EnsureSchema(context.Context) error {
	return errors.New("validator rejected: unknown $jsonSchema keyword")
}

func (schemaErrorStore) Upsert(context.Context, []domain.Observation) (domain.UpsertResult, error) {
	return domain.UpsertResult{}, nil
}
