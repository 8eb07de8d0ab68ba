package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/glassflow/glassflow-cep/internal"
)

type NATSClientOption func(*NATSClient)

func WithMaxAge(age time.Duration) NATSClientOption {
	return func(c *NATSClient) {
		c.maxAge = age
	}
}

func WithLogger(log *slog.Logger) NATSClientOption {
	return func(c *NATSClient) {
		c.log = log
	}
}

// NATSClient owns the connection shared by the consumers and publishers of a
// process.
type NATSClient struct {
	nc *nats.Conn
	js jetstream.JetStream

	maxAge time.Duration
	log    *slog.Logger
}

func NewNATSClient(ctx context.Context, url string, opts ...NATSClientOption) (*NATSClient, error) {
	client := &NATSClient{
		maxAge: internal.NATSDefaultMaxAge,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}

	connCtx, cancel := context.WithTimeout(ctx, internal.NATSMaxConnectionWait)
	defer cancel()

	nc, err := retry.DoWithData(
		func() (*nats.Conn, error) {
			return nats.Connect(url, nats.Timeout(internal.NATSConnectionTimeout))
		},
		retry.Context(connCtx),
		retry.Attempts(internal.NATSConnectionRetries),
		retry.Delay(internal.NATSInitialRetryDelay),
		retry.MaxDelay(internal.NATSMaxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			client.log.Warn("retrying connection to NATS",
				slog.String("url", url),
				slog.Uint64("attempt", uint64(n+1)),
				slog.Any("error", err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to connect to JetStream: %w", err)
	}

	client.nc = nc
	client.js = js

	return client, nil
}

func (c *NATSClient) CreateOrUpdateStream(ctx context.Context, name string, subjects ...string) error {
	//nolint:exhaustruct // readability
	sc := jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
		Storage:  jetstream.FileStorage,

		Retention: jetstream.LimitsPolicy,
		MaxAge:    c.maxAge,
		Discard:   jetstream.DiscardOld,
	}

	_, err := c.js.CreateOrUpdateStream(ctx, sc)
	if err != nil {
		return fmt.Errorf("cannot create nats stream %s: %w", name, err)
	}

	return nil
}

func (c *NATSClient) JetStream() jetstream.JetStream {
	return c.js
}

func (c *NATSClient) Close() error {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
