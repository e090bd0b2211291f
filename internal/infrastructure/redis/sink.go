// Package redis delivers telemetry onto Redis streams, deduplicating
// exposures across processes with a SETNX marker per tuple.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces marker keys and stream names.
	Prefix string
	// DedupeTTL bounds how long an exposure marker lives. Zero keeps it forever.
	DedupeTTL time.Duration
}

// StreamClient is the part of *redis.Client the sink uses.
type StreamClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

type Sink struct {
	client    StreamClient
	prefix    string
	dedupeTTL time.Duration
}

func NewSink(cfg Config) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return NewSinkWithClient(client, cfg.Prefix, cfg.DedupeTTL), nil
}

func NewSinkWithClient(client StreamClient, prefix string, dedupeTTL time.Duration) *Sink {
	if prefix == "" {
		prefix = "offer-engine"
	}
	return &Sink{client: client, prefix: prefix, dedupeTTL: dedupeTTL}
}

func (s *Sink) exposureStream() string   { return s.prefix + ":exposures" }
func (s *Sink) conversionStream() string { return s.prefix + ":conversions" }

func (s *Sink) markerKey(k domain.ExposureKey) string {
	return fmt.Sprintf("%s:exposure:%s:%s:%s:%s", s.prefix, k.ExperimentID, k.VariantID, k.OfferID, k.VisitorID)
}

// WriteExposures publishes only the exposures whose marker did not exist yet.
func (s *Sink) WriteExposures(ctx context.Context, records []domain.ExposureRecord) error {
	for _, r := range records {
		fresh, err := s.client.SetNX(ctx, s.markerKey(r.Key()), r.OccurredAt.UnixMilli(), s.dedupeTTL).Result()
		if err != nil {
			return fmt.Errorf("mark exposure: %w", err)
		}
		if !fresh {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		if err := s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.exposureStream(),
			Values: map[string]interface{}{
				"experiment_id": r.ExperimentID,
				"variant_id":    r.VariantID,
				"data":          string(data),
			},
		}).Err(); err != nil {
			// Release the marker so a retry can publish it.
			s.client.Del(ctx, s.markerKey(r.Key()))
			return fmt.Errorf("xadd exposure: %w", err)
		}
	}
	return nil
}

func (s *Sink) WriteConversions(ctx context.Context, records []domain.ConversionRecord) error {
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		if err := s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.conversionStream(),
			Values: map[string]interface{}{
				"conversion_id": r.ID,
				"experiment_id": r.ExperimentID,
				"data":          string(data),
			},
		}).Err(); err != nil {
			return fmt.Errorf("xadd conversion: %w", err)
		}
	}
	return nil
}

func (s *Sink) Close() error {
	return s.client.Close()
}
