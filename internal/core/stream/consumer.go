package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/glassflow/glassflow-cep/internal"
)

type ConsumerConfig struct {
	Stream         string
	Name           string
	FilterSubjects []string
	AckWait        time.Duration
}

type Consumer struct {
	consumer jetstream.Consumer
}

// NewNATSConsumer binds a durable consumer to the stream, waiting for the
// stream to be created if it does not exist yet.
func NewNATSConsumer(ctx context.Context, js jetstream.JetStream, cfg ConsumerConfig) (*Consumer, error) {
	stream, err := retry.DoWithData(
		func() (jetstream.Stream, error) {
			return js.Stream(ctx, cfg.Stream)
		},
		retry.Context(ctx),
		retry.Attempts(internal.ConsumerRetries),
		retry.Delay(internal.ConsumerInitialRetryDelay),
		retry.MaxDelay(internal.ConsumerMaxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, jetstream.ErrStreamNotFound)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", cfg.Stream, err)
	}

	//nolint:exhaustruct // optional config
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:           cfg.Name,
		Durable:        cfg.Name,
		AckWait:        cfg.AckWait,
		AckPolicy:      jetstream.AckExplicitPolicy,
		MaxAckPending:  -1,
		FilterSubjects: cfg.FilterSubjects,
	})
	if err != nil {
		return nil, fmt.Errorf("get or create consumer: %w", err)
	}

	return &Consumer{consumer: consumer}, nil
}

// Fetch waits at most internal.FetchMaxWait for up to batchSize messages.
func (c *Consumer) Fetch(batchSize int) ([]jetstream.Msg, error) {
	batch, err := c.consumer.Fetch(batchSize, jetstream.FetchMaxWait(internal.FetchMaxWait))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var msgs []jetstream.Msg
	for msg := range batch.Messages() {
		msgs = append(msgs, msg)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) && !errors.Is(err, nats.ErrTimeout) {
		return msgs, fmt.Errorf("fetch messages: %w", err)
	}

	return msgs, nil
}
