// Package mongo implements the schema store on MongoDB: a collection guarded
// by a strict $jsonSchema validator, a unique (station_id, timestamp) index,
// and unordered bulk upserts keyed on that index.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Server error codes the store distinguishes.
const (
	codeNamespaceExists    = 48
	codeDocumentValidation = 121
	codeDuplicateKey       = 11000
)

// DefaultUpsertBatchSize bounds the number of models per bulk write.
const DefaultUpsertBatchSize = 500

// Options configures a Store.
type Options struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	BatchSize      int
	Schema         domain.StoreSchema
}

// Store persists observations in one MongoDB collection.
type Store struct {
	client     *mongodriver.Client
	db         *mongodriver.Database
	collection *mongodriver.Collection
	opts       Options
	logger     *slog.Logger
}

// Connect dials MongoDB and verifies connectivity with a ping. Failures wrap
// domain.ErrStoreUnavailable.
func Connect(ctx context.Context, opts Options, logger *slog.Logger) (*Store, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultUpsertBatchSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	client, err := mongodriver.Connect(ctx, options.Client().
		ApplyURI(opts.URI).
		SetServerSelectionTimeout(opts.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", domain.ErrStoreUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %w", domain.ErrStoreUnavailable, err)
	}

	db := client.Database(opts.Database)
	logger.Info("mongo connected", "database", opts.Database, "collection", opts.Collection)
	return &Store{
		client:     client,
		db:         db,
		collection: db.Collection(opts.Collection),
		opts:       opts,
		logger:     logger,
	}, nil
}

// EnsureSchema creates the collection with its validator, or updates the
// validator with collMod when the collection exists, then declares the
// indexes. Repeated calls leave the same state.
func (s *Store) EnsureSchema(ctx context.Context) error {
	validator := JSONSchema(s.opts.Schema)

	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: s.opts.Collection}})
	if err != nil {
		return fmt.Errorf("%w: list collections: %w", domain.ErrStoreUnavailable, err)
	}

	if len(names) == 0 {
		err = s.db.CreateCollection(ctx, s.opts.Collection, options.CreateCollection().
			SetValidator(validator).
			SetValidationLevel("strict").
			SetValidationAction("error"))
		var cmdErr mongodriver.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Code == codeNamespaceExists {
			err = s.collMod(ctx, validator)
		}
	} else {
		err = s.collMod(ctx, validator)
	}
	if err != nil {
		return fmt.Errorf("declare validator: %w", classify(err))
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, IndexModels()); err != nil {
		return fmt.Errorf("declare indexes: %w", classify(err))
	}
	s.logger.Info("mongo schema ensured", "collection", s.opts.Collection)
	return nil
}

func (s *Store) collMod(ctx context.Context, validator bson.M) error {
	return s.db.RunCommand(ctx, bson.D{
		{Key: "collMod", Value: s.opts.Collection},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "strict"},
		{Key: "validationAction", Value: "error"},
	}).Err()
}

// Upsert writes the batch as unordered ReplaceOne upserts keyed on the
// natural key. Records failing client-side validation are rejected before
// the write; server-side validation and key conflicts are reported per
// record. Within a batch the last observation per key wins and the superseded
// ones count as updates.
func (s *Store) Upsert(ctx context.Context, batch []domain.Observation) (domain.UpsertResult, error) {
	var res domain.UpsertResult

	valid := make([]domain.Observation, 0, len(batch))
	for _, o := range batch {
		if err := s.opts.Schema.Validate(o); err != nil {
			var rej *domain.ValidationRejection
			if errors.As(err, &rej) {
				res.Rejected = append(res.Rejected, rej.Rejection())
				continue
			}
			return res, err
		}
		valid = append(valid, o)
	}

	survivors, superseded := domain.CollapseByKey(valid)
	res.Updated += superseded

	for start := 0; start < len(survivors); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(survivors))
		chunk, err := s.writeChunk(ctx, survivors[start:end])
		if err != nil {
			return res, err
		}
		res.Merge(chunk)
	}
	return res, nil
}

func (s *Store) writeChunk(ctx context.Context, chunk []domain.Observation) (domain.UpsertResult, error) {
	models := make([]mongodriver.WriteModel, len(chunk))
	for i, o := range chunk {
		models[i] = mongodriver.NewReplaceOneModel().
			SetFilter(naturalKeyFilter(o)).
			SetReplacement(toDocument(o)).
			SetUpsert(true)
	}

	out, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	var res domain.UpsertResult
	if out != nil {
		res.Inserted = int(out.UpsertedCount)
		res.Updated = int(out.MatchedCount)
	}
	if err == nil {
		return res, nil
	}

	var bulkErr mongodriver.BulkWriteException
	if !errors.As(err, &bulkErr) || bulkErr.WriteConcernError != nil {
		return res, fmt.Errorf("bulk upsert: %w", classify(err))
	}
	for _, we := range bulkErr.WriteErrors {
		ref := ""
		if we.Index >= 0 && we.Index < len(chunk) {
			ref = chunk[we.Index].Ref
		}
		res.Rejected = append(res.Rejected, domain.Rejection{
			Ref:    ref,
			Reason: writeErrorReason(we.Code),
			Detail: we.Message,
		})
		s.logger.Warn("mongo write rejected", "ref", ref, "code", we.Code, "error", we.Message)
	}
	return res, nil
}

func writeErrorReason(code int) domain.RejectReason {
	switch code {
	case codeDocumentValidation:
		return domain.ReasonSchema
	case codeDuplicateKey:
		return domain.ReasonConflict
	default:
		return domain.ReasonWrite
	}
}

// classify marks connectivity failures as store-unavailable.
func classify(err error) error {
	if mongodriver.IsNetworkError(err) || mongodriver.IsTimeout(err) ||
		errors.Is(err, mongodriver.ErrClientDisconnected) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}

// CheckReadiness pings the server.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of stored observations.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.D{})
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
