// Package memory is an in-process schema store. It applies the same
// structural validation and natural-key upsert rules as the MongoDB store and
// backs dry runs and tests.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/couchcryptid/weather-station-etl/internal/domain"
)

// Store keeps observations keyed by (station_id, timestamp).
type Store struct {
	schema domain.StoreSchema

	mu          sync.Mutex
	docs        map[domain.NaturalKey]domain.Observation
	schemaCalls int
	unavailable error
}

// New returns an empty store enforcing schema.
func New(schema domain.StoreSchema) *Store {
	return &Store{
		schema: schema,
		docs:   make(map[domain.NaturalKey]domain.Observation),
	}
}

// EnsureSchema is idempotent; it only records that it was called.
func (s *Store) EnsureSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, s.unavailable)
	}
	s.schemaCalls++
	return nil
}

// Upsert validates each observation and writes the valid ones in order. An
// existing natural key is replaced (last write wins) and counted as updated.
func (s *Store) Upsert(ctx context.Context, batch []domain.Observation) (domain.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unavailable != nil {
		return domain.UpsertResult{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, s.unavailable)
	}
	if err := ctx.Err(); err != nil {
		return domain.UpsertResult{}, err
	}

	var res domain.UpsertResult
	for _, o := range batch {
		if err := s.schema.Validate(o); err != nil {
			var rej *domain.ValidationRejection
			if errors.As(err, &rej) {
				res.Rejected = append(res.Rejected, rej.Rejection())
				continue
			}
			return res, err
		}
		key := o.Key()
		if _, exists := s.docs[key]; exists {
			res.Updated++
		} else {
			res.Inserted++
		}
		s.docs[key] = o
	}
	return res, nil
}

// CheckReadiness reports the simulated connectivity state.
func (s *Store) CheckReadiness(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, s.unavailable)
	}
	return nil
}

// SetUnavailable makes every subsequent call fail as if the store were
// unreachable. Pass nil to restore.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = err
}

// Snapshot returns the stored observations ordered by station and time.
func (s *Store) Snapshot() []domain.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Observation, 0, len(s.docs))
	for _, o := range s.docs {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b domain.Observation) int {
		return cmp.Or(
			cmp.Compare(a.StationID, b.StationID),
			a.Timestamp.Compare(b.Timestamp),
		)
	})
	return out
}

// Len returns the number of stored observations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// SchemaCalls returns how many times EnsureSchema succeeded.
func (s *Store) SchemaCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemaCalls
}
