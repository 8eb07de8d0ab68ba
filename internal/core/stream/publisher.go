package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/glassflow/glassflow-cep/internal"
	"github.com/glassflow/glassflow-cep/internal/models"
)

var ErrNotJetStreamRecord = errors.New("record was not consumed from jetstream")

// ChannelPublisher publishes projected results on <prefix>.<channel> as a JSON
// array in the channel field order.
type ChannelPublisher struct {
	js     jetstream.JetStream
	prefix string
}

func NewChannelPublisher(js jetstream.JetStream, prefix string) *ChannelPublisher {
	return &ChannelPublisher{
		js:     js,
		prefix: prefix,
	}
}

func (p *ChannelPublisher) Subject(channel string) string {
	return p.prefix + "." + channel
}

func (p *ChannelPublisher) Emit(ctx context.Context, channel string, values []any) error {
	if values == nil {
		values = []any{}
	}

	data, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}

	msg := nats.NewMsg(p.Subject(channel))
	msg.Data = data
	msg.Header.Set(internal.ChannelHeader, channel)

	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// MsgAcker acknowledges records that were consumed from JetStream.
type MsgAcker struct{}

func (MsgAcker) Ack(_ context.Context, rec models.Record) error {
	msg := rec.JetstreamMsgOriginal
	if msg == nil {
		return ErrNotJetStreamRecord
	}

	err := retry.Do(
		msg.Ack,
		retry.Attempts(internal.AckRetries),
		retry.DelayType(retry.FixedDelay),
	)
	if err != nil {
		return fmt.Errorf("acknowledge message: %w", err)
	}

	return nil
}

// Nak asks for redelivery of a record that could not be processed.
func (MsgAcker) Nak(_ context.Context, rec models.Record) error {
	if rec.JetstreamMsgOriginal == nil {
		return ErrNotJetStreamRecord
	}
	if err := rec.JetstreamMsgOriginal.Nak(); err != nil {
		return fmt.Errorf("nak message: %w", err)
	}
	return nil
}
