package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/service-request-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes anonymized records to a Kafka topic for downstream
// consumers of the released dataset. It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the sink topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishBatch serializes and publishes a run's anonymized records in a
// single WriteMessages call.
func (w *Writer) PublishBatch(ctx context.Context, records []domain.AnonymizedRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an anonymized record into a Kafka message.
// Records carry no identifiers, so messages are unkeyed; partitioning by a
// stable key would leak grouping information the anonymizer removed.
func serializeToMessage(rec domain.AnonymizedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize anonymized record: %w", err)
	}
	return kafkago.Message{
		Value: data,
		Headers: []kafkago.Header{
			{Key: "request_type", Value: []byte(rec.RequestType)},
			{Key: "creation_window", Value: []byte(rec.Window.Format(time.RFC3339))},
		},
	}, nil
}
