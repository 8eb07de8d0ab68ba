package stream

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glassflow/glassflow-cep/internal"
	"github.com/glassflow/glassflow-cep/internal/models"
)

func testDecoder() *RecordDecoder {
	return NewRecordDecoder([]Route{
		{
			Subject: "quotes.default",
			Source:  models.SourceBinding{ComponentID: "quotes", StreamID: "default", Fields: []string{"symbol", "buyPrice"}},
		},
		{
			Subject: "trades.eu",
			Source:  models.SourceBinding{ComponentID: "trades", StreamID: "eu", Fields: []string{"symbol", "volume"}},
		},
	})
}

func TestRecordDecoder(t *testing.T) {
	testCases := []struct {
		desc      string
		subject   string
		header    nats.Header
		data      string
		component string
		stream    string
		values    []any
	}{
		{
			desc:      "subject selects the source",
			subject:   "quotes.default",
			data:      `{"symbol":"AUD/USD","buyPrice":1.05,"extra":true}`,
			component: "quotes",
			stream:    "default",
			values:    []any{"AUD/USD", 1.05},
		},
		{
			desc:      "headers take precedence over the subject",
			subject:   "quotes.default",
			header:    nats.Header{internal.ComponentHeader: []string{"trades"}, internal.StreamHeader: []string{"eu"}},
			data:      `{"symbol":"EUR/USD","volume":10}`,
			component: "trades",
			stream:    "eu",
			values:    []any{"EUR/USD", float64(10)},
		},
		{
			desc:      "missing stream header means the default stream",
			subject:   "anything",
			header:    nats.Header{internal.ComponentHeader: []string{"quotes"}},
			data:      `{"symbol":"AUD/USD"}`,
			component: "quotes",
			stream:    "default",
			values:    []any{"AUD/USD", nil},
		},
		{
			desc:      "null and absent fields decode to nil",
			subject:   "trades.eu",
			data:      `{"symbol":null}`,
			component: "trades",
			stream:    "eu",
			values:    []any{nil, nil},
		},
		{
			desc:      "array payload is read by position",
			subject:   "quotes.default",
			data:      `["AUD/USD", 1.5]`,
			component: "quotes",
			stream:    "default",
			values:    []any{"AUD/USD", 1.5},
		},
	}

	d := testDecoder()
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			rec, err := d.decode(tc.subject, tc.header, []byte(tc.data))
			require.NoError(t, err)
			assert.Equal(t, tc.component, rec.SourceComponent)
			assert.Equal(t, tc.stream, rec.SourceStream)
			assert.Equal(t, tc.values, rec.Values)
		})
	}
}

func TestRecordDecoder_Errors(t *testing.T) {
	testCases := []struct {
		desc    string
		subject string
		header  nats.Header
		data    string
		err     error
	}{
		{desc: "unknown subject", subject: "other", data: `{}`, err: ErrUnknownSource},
		{
			desc:    "unknown header source",
			subject: "quotes.default",
			header:  nats.Header{internal.ComponentHeader: []string{"quotes"}, internal.StreamHeader: []string{"us"}},
			data:    `{}`,
			err:     ErrUnknownSource,
		},
		{desc: "invalid json", subject: "quotes.default", data: `{"symbol":`, err: ErrInvalidPayload},
		{desc: "scalar payload", subject: "quotes.default", data: `42`, err: ErrInvalidPayload},
		{desc: "array of the wrong length", subject: "quotes.default", data: `["AUD/USD"]`, err: ErrInvalidPayload},
	}

	d := testDecoder()
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := d.decode(tc.subject, tc.header, []byte(tc.data))
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestRecordDecoder_Subjects(t *testing.T) {
	assert.ElementsMatch(t, []string{"quotes.default", "trades.eu"}, testDecoder().Subjects())
}
