package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glassflow/glassflow-cep/internal"
	"github.com/glassflow/glassflow-cep/internal/models"
)

// Source reads decoded records from a JetStream consumer. Messages that can
// never be decoded are terminated so they are not redelivered.
type Source struct {
	consumer *Consumer
	decoder  *RecordDecoder
	acker    MsgAcker
	log      *slog.Logger
}

func NewSource(consumer *Consumer, decoder *RecordDecoder, log *slog.Logger) *Source {
	return &Source{
		consumer: consumer,
		decoder:  decoder,
		log:      log,
	}
}

func (s *Source) Read(ctx context.Context) ([]models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs, err := s.consumer.Fetch(internal.FetchBatchSize)
	if err != nil && len(msgs) == 0 {
		return nil, err
	}

	records := make([]models.Record, 0, len(msgs))
	for _, msg := range msgs {
		rec, decodeErr := s.decoder.Decode(msg)
		if decodeErr != nil {
			s.log.ErrorContext(ctx, "failed to decode message",
				slog.String("subject", msg.Subject()),
				slog.Any("error", decodeErr))
			if termErr := msg.Term(); termErr != nil {
				s.log.ErrorContext(ctx, "failed to terminate message", slog.Any("error", termErr))
			}
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func (s *Source) Reject(ctx context.Context, rec models.Record) error {
	if err := s.acker.Nak(ctx, rec); err != nil {
		return fmt.Errorf("reject record: %w", err)
	}
	return nil
}
