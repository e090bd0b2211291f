package interfaces

import (
	"context"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/model"
)

// OfferCatalog reads the active offers from the external store. Results are
// filtered to status active and ordered by priority descending. The engine
// never writes to the catalog.
type OfferCatalog interface {
	FetchActiveOffers(ctx context.Context) ([]domain.Offer, error)
}

// ExperimentSource reads the experiments that may currently assign visitors.
type ExperimentSource interface {
	FetchRunningExperiments(ctx context.Context) ([]domain.Experiment, error)
}

// TelemetrySink is a best-effort append-only event store. Implementations
// should treat (experiment, variant, offer, visitor) as a unique key for exposures.
type TelemetrySink interface {
	WriteExposures(ctx context.Context, records []domain.ExposureRecord) error
	WriteConversions(ctx context.Context, records []domain.ConversionRecord) error
}

// ExposureLogger accepts exposures without blocking the caller.
type ExposureLogger interface {
	LogExposures(records []domain.ExposureRecord) int
}

// EvaluatorFacade is the entry point consumed by the storefront.
type EvaluatorFacade interface {
	EvaluateOffersSync(offers []domain.Offer, cart model.ExternalCart, user *domain.User, ectx domain.EvaluationContext, opts domain.Options) domain.EvaluationResult
	EvaluateOffersForCart(ctx context.Context, cart model.ExternalCart, user *domain.User, ectx domain.EvaluationContext, opts domain.Options) (domain.EvaluationResult, error)
}
