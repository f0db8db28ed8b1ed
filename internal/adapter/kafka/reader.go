package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/weather-station-etl/internal/config"
	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"github.com/couchcryptid/weather-station-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// Message headers carrying the raw record's routing metadata.
const (
	HeaderSource  = "source"
	HeaderContext = "context"
)

// Reader consumes raw records from the source topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	logger        *slog.Logger
	flushInterval time.Duration
}

// NewReader creates a consumer-group reader for the configured source topic.
// Offsets are committed explicitly through Batch.Commit.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{reader: r, logger: logger, flushInterval: cfg.BatchFlushInterval}
}

// ExtractBatch blocks for the first message, then keeps fetching until
// batchSize messages arrived or the flush interval elapsed.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) (pipeline.Batch, error) {
	first, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return pipeline.Batch{}, err
	}
	msgs := []kafkago.Message{first}

	fetchCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()
	for len(msgs) < batchSize {
		msg, err := r.reader.FetchMessage(fetchCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break
			}
			return pipeline.Batch{}, err
		}
		msgs = append(msgs, msg)
	}

	batch := pipeline.Batch{
		Records: make([]domain.RawRecord, 0, len(msgs)),
		Commit: func(ctx context.Context) error {
			return r.reader.CommitMessages(ctx, msgs...)
		},
	}
	for _, msg := range msgs {
		rec, err := mapMessageToRawRecord(msg)
		if err != nil {
			ref := messageRef(msg)
			r.logger.Warn("undecodable message", "ref", ref, "error", err)
			batch.Undecodable = append(batch.Undecodable, domain.DecodeRejection(ref, err))
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

// Close leaves the consumer group.
func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRawRecord decodes one message. With a source header the value
// is the bare payload; without one it must be a full envelope.
func mapMessageToRawRecord(msg kafkago.Message) (domain.RawRecord, error) {
	ref := messageRef(msg)
	source := header(msg, HeaderSource)
	if source == "" {
		return domain.DecodeEnvelope(ref, msg.Value)
	}
	data, err := domain.DecodePayload(msg.Value)
	if err != nil {
		return domain.RawRecord{}, err
	}
	return domain.RawRecord{
		Ref:     ref,
		Source:  source,
		Context: header(msg, HeaderContext),
		Data:    data,
	}, nil
}

func messageRef(msg kafkago.Message) string {
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}

func header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
