package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisher_WriteExposures(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher(w, "", "")
	rec := domain.ExposureRecord{ExperimentID: "e1", VariantID: "a", VisitorID: "v1", OfferID: "o1", OccurredAt: time.Unix(10, 0)}

	if err := p.WriteExposures(context.Background(), []domain.ExposureRecord{rec}); err != nil {
		t.Fatalf("WriteExposures: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != DefaultExposureTopic || string(msg.Key) != "e1|a|o1|v1" {
		t.Errorf("message topic/key = %s/%s", msg.Topic, msg.Key)
	}
	var back domain.ExposureRecord
	if err := json.Unmarshal(msg.Value, &back); err != nil || back.OfferID != "o1" {
		t.Errorf("payload = %s (%v)", msg.Value, err)
	}
}

func TestPublisher_WriteConversions(t *testing.T) {
	w := &recordingWriter{}
	p := newPublisher(w, "x", "conv")
	if err := p.WriteConversions(context.Background(), []domain.ConversionRecord{{ID: "c1", ExperimentID: "e1", VisitorID: "v1"}}); err != nil {
		t.Fatalf("WriteConversions: %v", err)
	}
	if len(w.msgs) != 1 || w.msgs[0].Topic != "conv" || w.msgs[0].Time.IsZero() {
		t.Errorf("messages = %+v", w.msgs)
	}
	if err := p.WriteConversions(context.Background(), nil); err != nil || len(w.msgs) != 1 {
		t.Errorf("empty batch wrote messages")
	}
	p.Close()
	if !w.closed {
		t.Error("writer not closed")
	}
}

func TestNewPublisher_RequiresBrokers(t *testing.T) {
	if _, err := NewPublisher(nil, "", ""); err == nil {
		t.Error("expected error without brokers")
	}
}
