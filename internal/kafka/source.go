package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/glassflow/glassflow-cep/internal"
	"github.com/glassflow/glassflow-cep/internal/core/stream"
	"github.com/glassflow/glassflow-cep/internal/models"
)

var ErrNotKafkaRecord = errors.New("record was not consumed from kafka")

// Source consumes JSON records from Kafka topics within a consumer group. Each
// topic feeds exactly one upstream source. A partition offset is committed
// once every record before it was acknowledged or skipped as undecodable.
type Source struct {
	client   *kgo.Client
	offsets  *offsetTracker
	byTopic  map[string]models.SourceBinding
	bindings []models.SourceBinding
	log      *slog.Logger
}

func NewSource(cfg models.KafkaSourceConfig, sources []models.SourceConfig, log *slog.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	byTopic := make(map[string]models.SourceBinding, len(sources))
	topics := make([]string, 0, len(sources))
	bindings := make([]models.SourceBinding, 0, len(sources))
	for _, s := range sources {
		topic := s.Topic
		if topic == "" {
			topic = s.ComponentID
		}
		if _, ok := byTopic[topic]; ok {
			return nil, models.ConfigurationError{Msg: fmt.Sprintf("topic %s is bound to more than one source", topic)}
		}

		streamID := s.StreamID
		if streamID == "" {
			streamID = models.DefaultStreamID
		}

		b := models.SourceBinding{
			ComponentID: s.ComponentID,
			StreamID:    streamID,
			Fields:      s.Fields,
		}
		byTopic[topic] = b
		bindings = append(bindings, b)
		topics = append(topics, topic)
	}

	offset := kgo.NewOffset().AtStart()
	if cfg.InitialOffset == models.InitialOffsetLatest {
		offset = kgo.NewOffset().AtEnd()
	}

	offsets := newOffsetTracker()
	release := func(_ context.Context, _ *kgo.Client, partitions map[string][]int32) {
		offsets.forget(partitions)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(internal.KafkaClientID),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(offset),
		kgo.DisableAutoCommit(),
		kgo.OnPartitionsRevoked(release),
		kgo.OnPartitionsLost(release),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Source{
		client:   client,
		offsets:  offsets,
		byTopic:  byTopic,
		bindings: bindings,
		log:      log,
	}, nil
}

// Bindings returns the sources fed by the consumed topics.
func (s *Source) Bindings() []models.SourceBinding {
	return slices.Clone(s.bindings)
}

func (s *Source) Read(ctx context.Context) ([]models.Record, error) {
	fetches := s.client.PollRecords(ctx, internal.FetchBatchSize)
	if fetches.IsClientClosed() {
		return nil, kgo.ErrClientClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fetches.EachError(func(topic string, partition int32, err error) {
		s.log.ErrorContext(ctx, "failed to fetch from kafka",
			slog.String("topic", topic),
			slog.Int("partition", int(partition)),
			slog.Any("error", err))
	})

	var (
		records []models.Record
		skipped []*kgo.Record
	)
	fetches.EachRecord(func(r *kgo.Record) {
		s.offsets.track(r)

		rec, err := s.decode(r)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to decode kafka record",
				slog.String("topic", r.Topic),
				slog.Int64("offset", r.Offset),
				slog.Any("error", err))
			skipped = append(skipped, r)
			return
		}
		records = append(records, rec)
	})

	// Skipped records only move the offset once the records polled before
	// them are acknowledged.
	for _, r := range skipped {
		if err := s.commit(ctx, s.offsets.done(r)); err != nil {
			s.log.ErrorContext(ctx, "failed to commit past undecodable record", slog.Any("error", err))
		}
	}

	return records, nil
}

func (s *Source) commit(ctx context.Context, r *kgo.Record) error {
	if r == nil {
		return nil
	}
	if err := s.client.CommitRecords(ctx, r); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

func (s *Source) decode(r *kgo.Record) (zero models.Record, _ error) {
	b, ok := s.byTopic[r.Topic]
	if !ok {
		return zero, fmt.Errorf("%w: topic %s", stream.ErrUnknownSource, r.Topic)
	}

	values, err := stream.DecodeValues(b.Fields, r.Value)
	if err != nil {
		return zero, err
	}

	rec, err := models.NewRecord(b.ComponentID, b.StreamID, b.Fields, values)
	if err != nil {
		return zero, err
	}
	rec.FranzKafkaOriginal = r

	return rec, nil
}

// Ack commits the partition up to the highest contiguously finished record.
func (s *Source) Ack(ctx context.Context, rec models.Record) error {
	if rec.FranzKafkaOriginal == nil {
		return ErrNotKafkaRecord
	}
	return s.commit(ctx, s.offsets.done(rec.FranzKafkaOriginal))
}

// Reject holds the committed offset of the partition below the record, so it
// is redelivered after a restart or rebalance. Later records of the partition
// are still processed but not committed.
func (s *Source) Reject(ctx context.Context, rec models.Record) error {
	r := rec.FranzKafkaOriginal
	if r == nil {
		return ErrNotKafkaRecord
	}

	s.offsets.reject(r)
	s.log.WarnContext(ctx, "kafka record rejected, partition commits held",
		slog.String("topic", r.Topic),
		slog.Int("partition", int(r.Partition)),
		slog.Int64("offset", r.Offset),
		slog.Int("uncommitted", s.offsets.pending(r.Topic, r.Partition)))
	return nil
}

func (s *Source) Close() error {
	s.client.Close()
	return nil
}
