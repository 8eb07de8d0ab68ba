package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/glassflow/glassflow-cep/internal/core/stream"
	"github.com/glassflow/glassflow-cep/internal/models"
	"github.com/glassflow/glassflow-cep/internal/testutils"
)

func TestNewSource_Validation(t *testing.T) {
	testCases := []struct {
		desc    string
		cfg     models.KafkaSourceConfig
		sources []models.SourceConfig
	}{
		{
			desc: "no brokers",
			cfg:  models.KafkaSourceConfig{ConsumerGroup: "g"},
		},
		{
			desc: "blank broker",
			cfg:  models.KafkaSourceConfig{Brokers: []string{" "}, ConsumerGroup: "g"},
		},
		{
			desc: "invalid offset",
			cfg:  models.KafkaSourceConfig{Brokers: []string{"localhost:9092"}, InitialOffset: "middle"},
		},
		{
			desc: "topic bound twice",
			cfg:  models.KafkaSourceConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"},
			sources: []models.SourceConfig{
				{ComponentID: "a", Topic: "t", Fields: []string{"x"}},
				{ComponentID: "b", Topic: "t", Fields: []string{"x"}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewSource(tc.cfg, tc.sources, testutils.NewTestLogger())
			require.Error(t, err)
			assert.True(t, models.IsConfigurationErr(err))
		})
	}
}

func TestSource_Decode(t *testing.T) {
	s := &Source{
		byTopic: map[string]models.SourceBinding{
			"quotes": {ComponentID: "quotes", StreamID: models.DefaultStreamID, Fields: []string{"symbol", "buyPrice"}},
		},
		log: testutils.NewTestLogger(),
	}

	r := &kgo.Record{Topic: "quotes", Value: []byte(`{"symbol":"AUD/USD","buyPrice":1.05}`), Offset: 7}

	rec, err := s.decode(r)
	require.NoError(t, err)
	assert.Equal(t, "quotes_default", rec.EventTypeName())
	assert.Equal(t, []string{"symbol", "buyPrice"}, rec.Fields)
	assert.Equal(t, []any{"AUD/USD", 1.05}, rec.Values)
	assert.Same(t, r, rec.FranzKafkaOriginal)

	_, err = s.decode(&kgo.Record{Topic: "other", Value: []byte(`{}`)})
	require.ErrorIs(t, err, stream.ErrUnknownSource)

	_, err = s.decode(&kgo.Record{Topic: "quotes", Value: []byte(`oops`)})
	require.ErrorIs(t, err, stream.ErrInvalidPayload)
}

func TestSource_RequiresKafkaRecord(t *testing.T) {
	s := &Source{log: testutils.NewTestLogger()}

	rec, err := models.NewRecord("quotes", "default", []string{"symbol"}, []any{"x"})
	require.NoError(t, err)

	require.ErrorIs(t, s.Ack(context.Background(), rec), ErrNotKafkaRecord)
	require.ErrorIs(t, s.Reject(context.Background(), rec), ErrNotKafkaRecord)
}
