package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// memoryClient keeps markers in a map and appends stream entries.
type memoryClient struct {
	markers map[string]bool
	streams map[string][]map[string]interface{}
	xaddErr error
	ttls    []time.Duration
}

func newMemoryClient() *memoryClient {
	return &memoryClient{markers: map[string]bool{}, streams: map[string][]map[string]interface{}{}}
}

func (m *memoryClient) SetNX(ctx context.Context, key string, _ interface{}, ttl time.Duration) *redis.BoolCmd {
	m.ttls = append(m.ttls, ttl)
	if m.markers[key] {
		return redis.NewBoolResult(false, nil)
	}
	m.markers[key] = true
	return redis.NewBoolResult(true, nil)
}

func (m *memoryClient) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	if m.xaddErr != nil {
		return redis.NewStringResult("", m.xaddErr)
	}
	m.streams[a.Stream] = append(m.streams[a.Stream], a.Values.(map[string]interface{}))
	return redis.NewStringResult("1-0", nil)
}

func (m *memoryClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(m.markers, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *memoryClient) Close() error { return nil }

func record(offer string) domain.ExposureRecord {
	return domain.ExposureRecord{ExperimentID: "e1", VariantID: "a", VisitorID: "v1", OfferID: offer, OccurredAt: time.Now()}
}

func TestSink_KeysAreNamespaced(t *testing.T) {
	s := NewSinkWithClient(newMemoryClient(), "", 0)
	key := s.markerKey(domain.ExposureKey{ExperimentID: "e1", VariantID: "a", VisitorID: "v1", OfferID: "o1"})
	if key != "offer-engine:exposure:e1:a:o1:v1" {
		t.Errorf("marker key = %q", key)
	}
	if s.exposureStream() != "offer-engine:exposures" || s.conversionStream() != "offer-engine:conversions" {
		t.Errorf("streams = %q, %q", s.exposureStream(), s.conversionStream())
	}

	custom := NewSinkWithClient(newMemoryClient(), "shop", 0)
	if custom.exposureStream() != "shop:exposures" {
		t.Errorf("custom stream = %q", custom.exposureStream())
	}
}

func TestSink_WriteExposuresDeduplicates(t *testing.T) {
	client := newMemoryClient()
	s := NewSinkWithClient(client, "shop", time.Hour)
	ctx := context.Background()

	if err := s.WriteExposures(ctx, []domain.ExposureRecord{record("o1"), record("o2")}); err != nil {
		t.Fatalf("WriteExposures: %v", err)
	}
	if err := s.WriteExposures(ctx, []domain.ExposureRecord{record("o1")}); err != nil {
		t.Fatalf("WriteExposures again: %v", err)
	}

	entries := client.streams["shop:exposures"]
	if len(entries) != 2 {
		t.Fatalf("stream holds %d entries, want 2", len(entries))
	}
	if entries[0]["experiment_id"] != "e1" || entries[0]["data"] == "" {
		t.Errorf("entry = %+v", entries[0])
	}
	if client.ttls[0] != time.Hour {
		t.Errorf("marker ttl = %s", client.ttls[0])
	}
}

func TestSink_FailedPublishReleasesMarker(t *testing.T) {
	client := newMemoryClient()
	client.xaddErr = errors.New("stream unavailable")
	s := NewSinkWithClient(client, "", 0)
	ctx := context.Background()

	if err := s.WriteExposures(ctx, []domain.ExposureRecord{record("o1")}); !errors.Is(err, client.xaddErr) {
		t.Fatalf("err = %v, want the xadd failure", err)
	}
	if len(client.markers) != 0 {
		t.Errorf("markers = %v, want released", client.markers)
	}

	client.xaddErr = nil
	if err := s.WriteExposures(ctx, []domain.ExposureRecord{record("o1")}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(client.streams["offer-engine:exposures"]) != 1 {
		t.Error("retry after release not published")
	}
}

func TestSink_WriteConversions(t *testing.T) {
	client := newMemoryClient()
	s := NewSinkWithClient(client, "", 0)
	err := s.WriteConversions(context.Background(), []domain.ConversionRecord{
		{ID: "c1", ExperimentID: "e1", VariantID: "a", VisitorID: "v1", ConversionType: "purchase"},
	})
	if err != nil {
		t.Fatalf("WriteConversions: %v", err)
	}
	entries := client.streams["offer-engine:conversions"]
	if len(entries) != 1 || entries[0]["conversion_id"] != "c1" {
		t.Errorf("entries = %+v", entries)
	}
}
