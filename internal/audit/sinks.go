package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/sells-group/carbon-cli/internal/model"
)

// Inserter is the part of the durable store the audit log needs.
type Inserter interface {
	InsertCalculation(ctx context.Context, rec model.AuditRecord) error
}

// StoreSink writes audit rows to the calculations table.
type StoreSink struct {
	store Inserter
}

// NewStoreSink creates a sink over the durable store.
func NewStoreSink(s Inserter) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Write(ctx context.Context, rec model.AuditRecord) error {
	if err := s.store.InsertCalculation(ctx, rec); err != nil {
		return eris.Wrapf(err, "audit: insert %s", rec.ID)
	}
	return nil
}

// MessageWriter is the subset of *kafkago.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaSink publishes audit records as JSON, keyed by calculation ID.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaSink creates a producer for topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return NewKafkaSinkFromWriter(&kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	})
}

// NewKafkaSinkFromWriter wraps an existing writer.
func NewKafkaSinkFromWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Write(ctx context.Context, rec model.AuditRecord) error {
	msg, err := toMessage(rec)
	if err != nil {
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return eris.Wrapf(err, "audit: publish %s", rec.ID)
	}
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}

func toMessage(rec model.AuditRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, eris.Wrapf(err, "audit: encode %s", rec.ID)
	}
	return kafkago.Message{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "variant", Value: []byte(rec.Variant)},
			{Key: "transport_mode", Value: []byte(rec.TransportMode)},
			{Key: "created_at", Value: []byte(rec.CreatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
