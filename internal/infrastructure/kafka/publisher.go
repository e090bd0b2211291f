// Package kafka publishes telemetry records to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultExposureTopic   = "offer-engine.exposures"
	DefaultConversionTopic = "offer-engine.conversions"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a TelemetrySink. Exposures are keyed by their idempotency
// tuple so a compacted topic keeps one record per tuple.
type Publisher struct {
	writer          messageWriter
	exposureTopic   string
	conversionTopic string
}

func NewPublisher(brokers []string, exposureTopic, conversionTopic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}, exposureTopic, conversionTopic), nil
}

func newPublisher(w messageWriter, exposureTopic, conversionTopic string) *Publisher {
	if exposureTopic == "" {
		exposureTopic = DefaultExposureTopic
	}
	if conversionTopic == "" {
		conversionTopic = DefaultConversionTopic
	}
	return &Publisher{writer: w, exposureTopic: exposureTopic, conversionTopic: conversionTopic}
}

func (p *Publisher) WriteExposures(ctx context.Context, records []domain.ExposureRecord) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal exposure: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Topic: p.exposureTopic,
			Key:   []byte(ExposureKey(r.Key())),
			Value: payload,
			Time:  r.OccurredAt.UTC(),
		})
	}
	return p.write(ctx, msgs)
}

func (p *Publisher) WriteConversions(ctx context.Context, records []domain.ConversionRecord) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal conversion: %w", err)
		}
		at := r.OccurredAt
		if at.IsZero() {
			at = time.Now()
		}
		msgs = append(msgs, kafka.Message{
			Topic: p.conversionTopic,
			Key:   []byte(r.ExperimentID + "|" + r.VisitorID),
			Value: payload,
			Time:  at.UTC(),
		})
	}
	return p.write(ctx, msgs)
}

func (p *Publisher) write(ctx context.Context, msgs []kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// ExposureKey renders the tuple as experiment|variant|offer|visitor.
func ExposureKey(k domain.ExposureKey) string {
	return k.ExperimentID + "|" + k.VariantID + "|" + k.OfferID + "|" + k.VisitorID
}
