package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/glassflow-cep/internal"
	"github.com/glassflow/glassflow-cep/internal/adapter"
	"github.com/glassflow/glassflow-cep/internal/cep"
	"github.com/glassflow/glassflow-cep/internal/core/stream"
	"github.com/glassflow/glassflow-cep/internal/host"
	"github.com/glassflow/glassflow-cep/internal/host/memory"
	"github.com/glassflow/glassflow-cep/internal/models"
	"github.com/glassflow/glassflow-cep/internal/testutils"
)

func TestNATSPipeline_EndToEnd(t *testing.T) {
	srv := testutils.NewNATSServer(t)
	log := testutils.NewTestLogger()
	ctx := context.Background()

	client, err := stream.NewNATSClient(ctx, srv.URL(), stream.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	conn, err := nats.Connect(srv.URL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	sub, err := conn.SubscribeSync("cep.out.>")
	require.NoError(t, err)

	factory := cep.NewEngine()
	p, err := NewNATSPipeline(ctx, PipelineDeps{NATS: client, Factory: factory, Log: log}, quotesConfig())
	require.NoError(t, err)
	assert.Equal(t, adapter.StateActive, p.Adapter().State())
	assert.Equal(t, []string{"quotes_default"}, p.Adapter().EventTypes())

	runErr := make(chan error, 1)
	go func() {
		runErr <- p.Run(ctx)
	}()

	js := client.JetStream()
	for _, payload := range []string{
		`{"symbol":"AUD/USD","buyPrice":1.0}`,
		`{"symbol":"EUR/USD","buyPrice":5.0}`,
		`{"symbol":"AUD/USD","buyPrice":2.0}`,
	} {
		_, err := js.Publish(ctx, "quotes.default", []byte(payload))
		require.NoError(t, err)
	}

	for _, expected := range []string{`[1.0, 1.0]`, `[1.5, 2.0]`} {
		msg, err := sub.NextMsg(5 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, "cep.out.Result", msg.Subject)
		assert.Equal(t, "Result", msg.Header.Get(internal.ChannelHeader))
		assert.JSONEq(t, expected, string(msg.Data))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	require.NoError(t, p.Shutdown(shutdownCtx))
	require.NoError(t, <-runErr)

	assert.Equal(t, adapter.StateStopped, p.Adapter().State())
	assert.Equal(t, 0, factory.LiveProviders())
}

func TestNATSPipeline_InvalidDefinition(t *testing.T) {
	srv := testutils.NewNATSServer(t)
	log := testutils.NewTestLogger()
	ctx := context.Background()

	client, err := stream.NewNATSClient(ctx, srv.URL(), stream.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cfg := quotesConfig()
	cfg.Sources = nil

	_, err = NewNATSPipeline(ctx, PipelineDeps{NATS: client, Factory: cep.NewEngine(), Log: log}, cfg)
	require.Error(t, err)
}

// onceSource hands out its records on the first read, then idles.
type onceSource struct {
	mu      sync.Mutex
	records []models.Record
}

func (s *onceSource) Read(ctx context.Context) ([]models.Record, error) {
	s.mu.Lock()
	records := s.records
	s.records = nil
	s.mu.Unlock()

	if records != nil {
		return records, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (s *onceSource) Reject(context.Context, models.Record) error {
	return nil
}

type failingEmitter struct {
	err error
}

func (e failingEmitter) Emit(context.Context, string, []any) error {
	return e.err
}

func TestPipeline_DeliveryFailures(t *testing.T) {
	errDownstream := errors.New("output stream unavailable")

	testCases := []struct {
		desc     string
		async    bool
		emitErr  error
		expected error
	}{
		{desc: "async delivery failure stops the pipeline", async: true, emitErr: errDownstream, expected: errDownstream},
		{desc: "async delivery success keeps running", async: true},
		{desc: "inline delivery failure rejects the record", emitErr: errDownstream},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			log := testutils.NewTestLogger()
			ctx := context.Background()

			cfg := quotesConfig().WithDefaults()
			bindings, err := cfg.Bindings()
			require.NoError(t, err)

			rec, err := models.NewRecord("quotes", models.DefaultStreamID, []string{"symbol", "buyPrice"}, []any{"AUD/USD", 1.0})
			require.NoError(t, err)

			failures := NewListenerFailures()
			opts := []cep.Option{cep.WithLogger(log)}
			if tc.async {
				opts = append(opts, cep.WithAsyncDispatch(4), cep.WithListenerErrorHandler(failures.Report))
			}

			var emitter host.Emitter = memory.NewCollector()
			if tc.emitErr != nil {
				emitter = failingEmitter{err: tc.emitErr}
			}
			acks := memory.NewCollector()

			p, err := newPipeline(ctx,
				PipelineDeps{Factory: cep.NewEngine(opts...), Log: log, Failures: failures},
				cfg, bindings,
				&onceSource{records: []models.Record{rec}},
				host.NewCollector(emitter, acks),
				nil,
			)
			require.NoError(t, err)

			runErr := make(chan error, 1)
			go func() {
				runErr <- p.Run(ctx)
			}()

			if tc.expected != nil {
				select {
				case err := <-runErr:
					require.Error(t, err)
					assert.ErrorIs(t, err, ErrResultDelivery)
					assert.ErrorIs(t, err, tc.expected)
				case <-time.After(5 * time.Second):
					t.Fatal("pipeline kept running after a delivery failure")
				}
			} else {
				select {
				case err := <-runErr:
					t.Fatalf("pipeline stopped unexpectedly: %v", err)
				case <-time.After(100 * time.Millisecond):
				}
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			require.NoError(t, p.Shutdown(shutdownCtx))

			if tc.expected == nil {
				require.NoError(t, <-runErr)
			}
			assert.Equal(t, adapter.StateStopped, p.Adapter().State())
		})
	}
}
