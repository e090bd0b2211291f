// Package engine is the embeddable entry point to the offer engine for
// callers outside this module.
package engine

import (
	"context"
	"log/slog"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/experiment"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure"
	"github.com/Victor-armando18/offer-engine/internal/telemetry"
	"github.com/Victor-armando18/offer-engine/internal/usecase"
	"github.com/Victor-armando18/offer-engine/internal/usecase/conversion"
	"github.com/shopspring/decimal"
)

type Service = usecase.EngineService

type Config struct {
	Catalog     OfferCatalog
	Experiments ExperimentSource
	// Sink receives exposures. Nil disables telemetry.
	Sink      TelemetrySink
	Operators map[string]Operator
	Logger    *slog.Logger
}

// Engine bundles the evaluator with its telemetry logger.
type Engine struct {
	*Service
	experiments ExperimentSource
	telemetry   *telemetry.Logger
	conversions *conversion.UseCase
}

func New(cfg Config) *Engine {
	opts := []usecase.Option{
		usecase.WithRegistry(experiment.NewRegistry()),
		usecase.WithLogger(cfg.Logger),
	}
	if cfg.Experiments != nil {
		opts = append(opts, usecase.WithExperimentSource(cfg.Experiments))
	}
	e := &Engine{experiments: cfg.Experiments}
	if cfg.Sink != nil {
		e.telemetry = telemetry.NewLogger(cfg.Sink, telemetry.Config{}, cfg.Logger)
		opts = append(opts, usecase.WithExposureLogger(e.telemetry))
	}
	e.Service = usecase.NewEngineService(cfg.Catalog, NewPredicateEvaluator(cfg.Operators), opts...)
	if e.telemetry != nil {
		e.conversions = &conversion.UseCase{Assignments: e.Service, Logger: e.telemetry}
	}
	return e
}

// LogConversion records a conversion against every experiment the visitor in
// ectx is assigned to and returns how many records were queued. Running
// experiments are loaded when ectx carries none. Without a sink nothing is
// recorded.
func (e *Engine) LogConversion(ctx context.Context, ectx EvaluationContext, conversionType string, value *decimal.Decimal, orderID string, properties map[string]any) (int, error) {
	if e.conversions == nil {
		return 0, nil
	}
	if ectx.Experiments == nil && e.experiments != nil {
		exps, err := e.experiments.FetchRunningExperiments(ctx)
		if err != nil {
			return 0, domain.Wrap(domain.ErrExperimentFetch, err)
		}
		ectx.Experiments = exps
	}
	return e.conversions.Run(conversion.Request{
		Context:        ectx,
		ConversionType: conversionType,
		Value:          value,
		OrderID:        orderID,
		Properties:     properties,
	}), nil
}

// NewFileEngine serves offers and experiments from a JSON or YAML catalog file.
func NewFileEngine(path string, sink TelemetrySink, logger *slog.Logger) *Engine {
	cat := infrastructure.NewFileCatalog(path, logger)
	return New(Config{Catalog: cat, Experiments: cat, Sink: sink, Logger: logger})
}

// Close flushes queued telemetry.
func (e *Engine) Close(ctx context.Context) error {
	if e.telemetry == nil {
		return nil
	}
	return e.telemetry.Close(ctx)
}
