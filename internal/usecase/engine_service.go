package usecase

import (
	"context"
	"log/slog"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/engine"
	"github.com/Victor-armando18/offer-engine/internal/domain/experiment"
	"github.com/Victor-armando18/offer-engine/internal/domain/model"
	"github.com/Victor-armando18/offer-engine/internal/interfaces"
)

// EngineService composes normalization, experiment assignment, matching,
// calculation and conflict resolution into the storefront's entry points.
type EngineService struct {
	catalog     interfaces.OfferCatalog
	experiments interfaces.ExperimentSource
	exposures   interfaces.ExposureLogger
	registry    *experiment.Registry
	engine      *engine.Engine
	normalizer  *model.Normalizer
	assigner    *experiment.Assigner
	logger      *slog.Logger
}

type Option func(*EngineService)

// WithExperimentSource loads experiments on the asynchronous path whenever the
// evaluation context does not already carry them.
func WithExperimentSource(src interfaces.ExperimentSource) Option {
	return func(s *EngineService) { s.experiments = src }
}

func WithExposureLogger(l interfaces.ExposureLogger) Option {
	return func(s *EngineService) { s.exposures = l }
}

func WithRegistry(r *experiment.Registry) Option {
	return func(s *EngineService) { s.registry = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *EngineService) { s.logger = l }
}

func NewEngineService(catalog interfaces.OfferCatalog, predicates engine.PredicateEvaluator, opts ...Option) *EngineService {
	s := &EngineService{catalog: catalog, assigner: experiment.NewAssigner()}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.engine = engine.New(predicates, s.logger)
	s.normalizer = model.NewNormalizer(s.logger)
	return s
}

// EvaluateOffersSync evaluates an already loaded offer set. It never fails:
// malformed offers and cart lines are skipped and an empty cart yields an
// empty result.
func (s *EngineService) EvaluateOffersSync(offers []domain.Offer, cart model.ExternalCart, user *domain.User, ectx domain.EvaluationContext, opts domain.Options) domain.EvaluationResult {
	if user != nil {
		ectx.User = user
	}
	normalized, _ := s.normalizer.Normalize(cart)

	assignments := s.assign(ectx)
	eligible := experiment.ApplyVariants(offers, ectx.Experiments, assignments)

	res := s.engine.Run(eligible, normalized, ectx, opts)
	res.Assignments = assignments
	s.recordExposures(res, assignments, ectx)
	return res
}

// EvaluateOffersForCart loads the catalog, and experiments when needed, then
// evaluates. The fetch is the only blocking step. A fetch error, or a context
// cancelled while fetching, returns without touching any shared state.
func (s *EngineService) EvaluateOffersForCart(ctx context.Context, cart model.ExternalCart, user *domain.User, ectx domain.EvaluationContext, opts domain.Options) (domain.EvaluationResult, error) {
	offers, err := s.catalog.FetchActiveOffers(ctx)
	if err != nil {
		return domain.EvaluationResult{}, domain.Wrap(domain.ErrCatalogFetch, err)
	}
	if ectx.Experiments == nil && s.experiments != nil {
		exps, err := s.experiments.FetchRunningExperiments(ctx)
		if err != nil {
			return domain.EvaluationResult{}, domain.Wrap(domain.ErrExperimentFetch, err)
		}
		ectx.Experiments = exps
	}
	if err := ctx.Err(); err != nil {
		return domain.EvaluationResult{}, err
	}
	return s.EvaluateOffersSync(offers, cart, user, ectx, opts), nil
}

// WithoutExposures returns a view of s that evaluates identically but records
// no exposures, for evaluations the shopper is never shown.
func (s *EngineService) WithoutExposures() *EngineService {
	view := *s
	view.exposures = nil
	return &view
}

// Assignments returns the assignments the visitor in ectx holds right now.
func (s *EngineService) Assignments(ectx domain.EvaluationContext) []domain.Assignment {
	return s.assign(ectx)
}

func (s *EngineService) assign(ectx domain.EvaluationContext) []domain.Assignment {
	visitor, ok := ectx.Visitor()
	if !ok || len(ectx.Experiments) == 0 {
		return nil
	}
	computed := s.assigner.AssignAll(ectx.Experiments, visitor, ectx.Now)
	if s.registry == nil {
		return computed
	}

	// A session that just signed in keeps the variants it was bucketed into.
	if visitor.Kind == domain.VisitorUser && ectx.SessionID != "" {
		session := domain.Visitor{ID: ectx.SessionID, Kind: domain.VisitorSession}
		s.registry.Merge(session, visitor)
		s.registry.Forget(session)
	}
	s.registry.Record(computed)
	running := make(map[string]bool, len(computed))
	for _, as := range computed {
		running[as.ExperimentID] = true
	}
	var held []domain.Assignment
	for _, as := range s.registry.Assignments(visitor) {
		if running[as.ExperimentID] {
			held = append(held, as)
		}
	}
	return held
}

func (s *EngineService) recordExposures(res domain.EvaluationResult, assignments []domain.Assignment, ectx domain.EvaluationContext) {
	if s.exposures == nil || len(assignments) == 0 || len(res.ApplicableOffers) == 0 {
		return
	}
	records := make([]domain.ExposureRecord, 0, len(assignments)*len(res.ApplicableOffers))
	for _, as := range assignments {
		for _, ao := range res.ApplicableOffers {
			records = append(records, domain.ExposureRecord{
				ExperimentID: as.ExperimentID,
				VariantID:    as.VariantID,
				VisitorID:    as.Visitor.ID,
				OfferID:      ao.Offer.ID,
				SessionID:    ectx.SessionID,
				Channel:      ectx.Channel,
				OccurredAt:   ectx.Now,
			})
		}
	}
	s.exposures.LogExposures(records)
}
