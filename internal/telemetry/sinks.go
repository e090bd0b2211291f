package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/interfaces"
)

// MultiSink writes to every sink and joins their errors. One failing sink
// does not stop delivery to the others.
type MultiSink []interfaces.TelemetrySink

func (m MultiSink) WriteExposures(ctx context.Context, records []domain.ExposureRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteExposures(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) WriteConversions(ctx context.Context, records []domain.ConversionRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteConversions(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory. Exposures are upserted on their key.
type MemorySink struct {
	mu          sync.Mutex
	exposures   map[domain.ExposureKey]domain.ExposureRecord
	order       []domain.ExposureKey
	conversions []domain.ConversionRecord
}

func NewMemorySink() *MemorySink {
	return &MemorySink{exposures: map[domain.ExposureKey]domain.ExposureRecord{}}
}

func (m *MemorySink) WriteExposures(_ context.Context, records []domain.ExposureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		k := r.Key()
		if _, ok := m.exposures[k]; ok {
			continue
		}
		m.exposures[k] = r
		m.order = append(m.order, k)
	}
	return nil
}

func (m *MemorySink) WriteConversions(_ context.Context, records []domain.ConversionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversions = append(m.conversions, records...)
	return nil
}

func (m *MemorySink) Exposures() []domain.ExposureRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ExposureRecord, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.exposures[k])
	}
	return out
}

func (m *MemorySink) Conversions() []domain.ConversionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ConversionRecord(nil), m.conversions...)
}
