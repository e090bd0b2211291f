// Package telemetry delivers exposure and conversion events out of band. The
// evaluator only enqueues; a background worker writes to the sink, so a slow
// or failing store never delays or fails an evaluation.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/interfaces"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
)

type Config struct {
	QueueSize      int
	BatchSize      int
	WriteTimeout   time.Duration
	// DedupeVisitors and DedupeTTL bound the exposure dedupe set. A visitor's
	// keys are dropped once it is idle for DedupeTTL or is the least recently
	// seen of DedupeVisitors, which ends its dedupe session.
	DedupeVisitors int
	DedupeTTL      time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.DedupeVisitors <= 0 {
		c.DedupeVisitors = 50000
	}
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = 30 * time.Minute
	}
	return c
}

type envelope struct {
	exposure   *domain.ExposureRecord
	conversion *domain.ConversionRecord
}

// ConversionContext carries the assignments a visitor holds when converting.
type ConversionContext struct {
	Visitor     domain.Visitor
	Assignments []domain.Assignment
	Now         time.Time
}

// Logger deduplicates exposures per (experiment, variant, visitor, offer)
// within a visitor's session and delivers events at most once.
type Logger struct {
	sink   interfaces.TelemetrySink
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	seen   *expirable.LRU[string, map[domain.ExposureKey]struct{}]
	closed bool
	queue  chan envelope
	done   chan struct{}
	newID  func() string
}

// NewLogger starts the delivery worker. Call Close at teardown.
func NewLogger(sink interfaces.TelemetrySink, cfg Config, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	l := &Logger{
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		seen:   expirable.NewLRU[string, map[domain.ExposureKey]struct{}](cfg.DedupeVisitors, nil, cfg.DedupeTTL),
		queue:  make(chan envelope, cfg.QueueSize),
		done:   make(chan struct{}),
		newID:  func() string { return uuid.NewString() },
	}
	go l.run()
	return l
}

// LogExposure enqueues one exposure. It reports false when the exposure was a
// duplicate or could not be queued.
func (l *Logger) LogExposure(rec domain.ExposureRecord) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	key := rec.Key()
	keys, ok := l.seen.Get(rec.VisitorID)
	if !ok {
		keys = map[domain.ExposureKey]struct{}{}
	}
	l.seen.Add(rec.VisitorID, keys)
	if _, dup := keys[key]; dup {
		return false
	}
	keys[key] = struct{}{}
	select {
	case l.queue <- envelope{exposure: &rec}:
		return true
	default:
		// Never written, so a later evaluation may enqueue it again.
		delete(keys, key)
		l.logger.Warn("telemetry queue full, dropping exposure",
			"experiment_id", rec.ExperimentID, "offer_id", rec.OfferID, "error", domain.ErrTelemetryQueueFull)
		return false
	}
}

// LogExposures enqueues each record and returns how many were accepted.
func (l *Logger) LogExposures(records []domain.ExposureRecord) int {
	n := 0
	for _, r := range records {
		if l.LogExposure(r) {
			n++
		}
	}
	return n
}

// LogConversion fans one conversion out to every experiment the visitor is
// assigned to. It returns the number of records queued.
func (l *Logger) LogConversion(cctx ConversionContext, conversionType string, value *decimal.Decimal, orderID string, properties map[string]any) int {
	now := cctx.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0
	}
	n := 0
	for _, as := range cctx.Assignments {
		rec := domain.ConversionRecord{
			ID:             l.newID(),
			ExperimentID:   as.ExperimentID,
			VariantID:      as.VariantID,
			VisitorID:      cctx.Visitor.ID,
			ConversionType: conversionType,
			Value:          value,
			OrderID:        orderID,
			Properties:     properties,
			OccurredAt:     now,
		}
		select {
		case l.queue <- envelope{conversion: &rec}:
			n++
		default:
			l.logger.Warn("telemetry queue full, dropping conversion",
				"experiment_id", as.ExperimentID, "conversion_type", conversionType, "error", domain.ErrTelemetryQueueFull)
		}
	}
	return n
}

// Close stops accepting events and waits for queued ones to be delivered or
// for ctx to expire.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for env := range l.queue {
		exposures, conversions := l.collect(env)
		l.deliver(exposures, conversions)
	}
}

// collect gathers whatever else is already queued, up to the batch size.
func (l *Logger) collect(first envelope) ([]domain.ExposureRecord, []domain.ConversionRecord) {
	var exposures []domain.ExposureRecord
	var conversions []domain.ConversionRecord
	add := func(e envelope) {
		if e.exposure != nil {
			exposures = append(exposures, *e.exposure)
		}
		if e.conversion != nil {
			conversions = append(conversions, *e.conversion)
		}
	}
	add(first)
	for len(exposures)+len(conversions) < l.cfg.BatchSize {
		select {
		case e, ok := <-l.queue:
			if !ok {
				return exposures, conversions
			}
			add(e)
		default:
			return exposures, conversions
		}
	}
	return exposures, conversions
}

func (l *Logger) deliver(exposures []domain.ExposureRecord, conversions []domain.ConversionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.WriteTimeout)
	defer cancel()
	if len(exposures) > 0 {
		if err := l.sink.WriteExposures(ctx, exposures); err != nil {
			l.logger.Error("exposure write failed", "count", len(exposures), "error", domain.Wrap(domain.ErrTelemetryWrite, err))
		}
	}
	if len(conversions) > 0 {
		if err := l.sink.WriteConversions(ctx, conversions); err != nil {
			l.logger.Error("conversion write failed", "count", len(conversions), "error", domain.Wrap(domain.ErrTelemetryWrite, err))
		}
	}
}
