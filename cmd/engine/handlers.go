package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/model"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/diff"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/sqlite"
	"github.com/Victor-armando18/offer-engine/internal/interfaces"
	"github.com/Victor-armando18/offer-engine/internal/usecase/conversion"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const sessionHeader = "X-Session-Id"

type EvaluateRequest struct {
	Cart      model.ExternalCart `json:"cart"`
	User      *domain.User       `json:"user,omitempty"`
	SessionID string             `json:"session_id,omitempty"`
	Channel   string             `json:"channel,omitempty"`
	// Offers, when present, are evaluated instead of the catalog. Malformed
	// entries are skipped.
	Offers    json.RawMessage    `json:"offers,omitempty"`
	Options   domain.Options     `json:"options"`
}

type PatchRequest struct {
	Request EvaluateRequest   `json:"request"`
	Patch   []json.RawMessage `json:"patch"`
}

type PatchResponse struct {
	Result    domain.EvaluationResult `json:"result"`
	Delta     diff.PlanDelta          `json:"delta"`
	CartDelta json.RawMessage         `json:"cart_delta"`
}

type ConversionRequest struct {
	UserID         string           `json:"user_id,omitempty"`
	SessionID      string           `json:"session_id,omitempty"`
	ConversionType string           `json:"conversion_type"`
	Value          *decimal.Decimal `json:"value,omitempty"`
	OrderID        string           `json:"order_id,omitempty"`
	Properties     map[string]any   `json:"properties,omitempty"`
}

type errorResponse struct {
	Error  string                   `json:"error"`
	Result *domain.EvaluationResult `json:"result,omitempty"`
}

type server struct {
	svc         interfaces.EvaluatorFacade
	// preview evaluates without recording exposures. Nil falls back to svc.
	preview     interfaces.EvaluatorFacade
	conversions *conversion.UseCase
	catalog     interfaces.OfferCatalog
	experiments interfaces.ExperimentSource
	store       *sqlite.Store
	caps        domain.Options
	currency    string
	logger      *slog.Logger
	now         func() time.Time
}

func (s *server) routes(e *echo.Echo) {
	e.POST("/evaluate", s.handleEvaluate)
	e.PATCH("/evaluate", s.handlePatch)
	e.POST("/conversions", s.handleConversion)
	e.GET("/offers", s.handleListOffers)
	e.GET("/experiments", s.handleListExperiments)
	e.GET("/experiments/:id/stats", s.handleExperimentStats)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *server) context(req EvaluateRequest) domain.EvaluationContext {
	return domain.EvaluationContext{
		Now:            s.now().UTC(),
		Channel:        req.Channel,
		SessionID:      req.SessionID,
		User:           req.User,
		CurrencySymbol: s.currency,
	}
}

// evaluate runs one request under the server caps. Anonymous visitors get a
// fresh session id so they can be assigned to experiments.
func (s *server) evaluate(c echo.Context, svc interfaces.EvaluatorFacade, req *EvaluateRequest) (domain.EvaluationResult, error) {
	if req.SessionID == "" && (req.User == nil || req.User.ID == "") {
		req.SessionID = uuid.NewString()
	}
	if req.SessionID != "" {
		c.Response().Header().Set(sessionHeader, req.SessionID)
	}
	opts := s.caps.Tighten(req.Options)
	ectx := s.context(*req)
	offers, inline, err := s.inlineOffers(c, req.Offers)
	if err != nil {
		return domain.EvaluationResult{}, err
	}
	if inline {
		return svc.EvaluateOffersSync(offers, req.Cart, req.User, ectx, opts), nil
	}
	return svc.EvaluateOffersForCart(c.Request().Context(), req.Cart, req.User, ectx, opts)
}

// inlineOffers decodes the offers sent with a request. It reports false when
// none were sent, so the catalog is used instead.
func (s *server) inlineOffers(c echo.Context, raw json.RawMessage) ([]domain.Offer, bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false, nil
	}
	offers, skipped, err := domain.DecodeOffersJSON(raw)
	if err != nil {
		return nil, false, err
	}
	for _, e := range skipped {
		s.logger.WarnContext(c.Request().Context(), "skipping malformed inline offer", "error", e)
	}
	return offers, true, nil
}

func (s *server) previewer() interfaces.EvaluatorFacade {
	if s.preview != nil {
		return s.preview
	}
	return s.svc
}

func (s *server) handleEvaluate(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid evaluation request"})
	}
	res, err := s.evaluate(c, s.svc, &req)
	if err != nil {
		return s.evaluationFailed(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *server) handlePatch(c echo.Context) error {
	var req PatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid patch request"})
	}

	patchBytes, _ := json.Marshal(req.Patch)
	updated, err := infrastructure.ApplyCartPatch(req.Request.Cart, patchBytes)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	}

	// The pre-patch cart is only compared against, never shown.
	before, err := s.evaluate(c, s.previewer(), &req.Request)
	if err != nil {
		return s.evaluationFailed(c, err)
	}
	after := req.Request
	after.Cart = updated
	res, err := s.evaluate(c, s.svc, &after)
	if err != nil {
		return s.evaluationFailed(c, err)
	}

	cartDelta, err := infrastructure.MergeDelta(req.Request.Cart, updated)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	var d diff.Differ
	return c.JSON(http.StatusOK, PatchResponse{Result: res, Delta: d.Diff(before, res), CartDelta: cartDelta})
}

// evaluationFailed answers with an empty result next to the error so the
// storefront can fall back to showing no discounts.
func (s *server) evaluationFailed(c echo.Context, err error) error {
	s.logger.WarnContext(c.Request().Context(), "evaluation failed", "error", err)
	empty := domain.EmptyResult()
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrCatalogFetch) || errors.Is(err, domain.ErrExperimentFetch):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrCatalogDecode):
		status = http.StatusBadRequest
	}
	return c.JSON(status, errorResponse{Error: err.Error(), Result: &empty})
}

func (s *server) handleConversion(c echo.Context) error {
	var req ConversionRequest
	if err := c.Bind(&req); err != nil || req.ConversionType == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "conversion_type is required"})
	}
	ectx := domain.EvaluationContext{Now: s.now().UTC(), SessionID: req.SessionID}
	if req.UserID != "" {
		ectx.User = &domain.User{ID: req.UserID}
	}
	if s.experiments != nil {
		exps, err := s.experiments.FetchRunningExperiments(c.Request().Context())
		if err != nil {
			s.logger.WarnContext(c.Request().Context(), "experiment fetch failed", "error", err)
			return c.JSON(http.StatusBadGateway, errorResponse{Error: domain.Wrap(domain.ErrExperimentFetch, err).Error()})
		}
		ectx.Experiments = exps
	}
	n := s.conversions.Run(conversion.Request{
		Context:        ectx,
		ConversionType: req.ConversionType,
		Value:          req.Value,
		OrderID:        req.OrderID,
		Properties:     req.Properties,
	})
	return c.JSON(http.StatusAccepted, map[string]int{"recorded": n})
}

func (s *server) handleListOffers(c echo.Context) error {
	offers, err := s.catalog.FetchActiveOffers(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: domain.Wrap(domain.ErrCatalogFetch, err).Error()})
	}
	return c.JSON(http.StatusOK, offers)
}

func (s *server) handleListExperiments(c echo.Context) error {
	if s.experiments == nil {
		return c.JSON(http.StatusOK, []domain.Experiment{})
	}
	exps, err := s.experiments.FetchRunningExperiments(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: domain.Wrap(domain.ErrExperimentFetch, err).Error()})
	}
	return c.JSON(http.StatusOK, exps)
}

func (s *server) handleExperimentStats(c echo.Context) error {
	if s.store == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "telemetry store is not configured"})
	}
	stats, err := s.store.Stats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	if stats == nil {
		stats = []sqlite.VariantStats{}
	}
	return c.JSON(http.StatusOK, stats)
}
