package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/sqlite"
	"github.com/Victor-armando18/offer-engine/internal/telemetry"
	"github.com/Victor-armando18/offer-engine/internal/usecase"
	"github.com/Victor-armando18/offer-engine/internal/usecase/conversion"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type stubCatalog struct {
	offers []domain.Offer
	exps   []domain.Experiment
	err    error
}

func (s stubCatalog) FetchActiveOffers(context.Context) ([]domain.Offer, error) {
	return s.offers, s.err
}

func (s stubCatalog) FetchRunningExperiments(context.Context) ([]domain.Experiment, error) {
	return s.exps, s.err
}

type countingConversions struct{ calls int }

func (c *countingConversions) LogConversion(cctx telemetry.ConversionContext, _ string, _ *decimal.Decimal, _ string, _ map[string]any) int {
	c.calls++
	return len(cctx.Assignments)
}

type recordingExposures struct{ records []domain.ExposureRecord }

func (r *recordingExposures) LogExposures(records []domain.ExposureRecord) int {
	r.records = append(r.records, records...)
	return len(records)
}

func newTestServer(t *testing.T, cat stubCatalog, store *sqlite.Store) *echo.Echo {
	e, _ := newRecordingServer(t, cat, store)
	return e
}

func newRecordingServer(t *testing.T, cat stubCatalog, store *sqlite.Store) (*echo.Echo, *recordingExposures) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exposures := &recordingExposures{}
	svc := usecase.NewEngineService(cat, nil,
		usecase.WithExperimentSource(cat),
		usecase.WithExposureLogger(exposures),
		usecase.WithLogger(logger),
	)
	s := &server{
		svc:         svc,
		preview:     svc.WithoutExposures(),
		conversions: &conversion.UseCase{Assignments: svc, Logger: &countingConversions{}},
		catalog:     cat,
		experiments: cat,
		store:       store,
		currency:    "$",
		logger:      logger,
		now:         func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) },
	}
	e := echo.New()
	s.routes(e)
	return e, exposures
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const cartBody = `{"items":[{"product_id":"tee","quantity":1,"product":{"price":"500","categories":["tops"]}}]}`

const minSubtotalOffer = `{"id":"f100","name":"100 off 800","offer_type":"flat_discount","priority":1,
	"conditions":{"min_subtotal":"800"},"params":{"amount":"100"}}`

func TestHandleEvaluate_InlineOffers(t *testing.T) {
	e := newTestServer(t, stubCatalog{}, nil)
	body := `{"cart":` + cartBody + `,"offers":[{"id":"p10","name":"10%","offer_type":"percent_discount","params":{"percent":"10"}}]}`
	rec := do(e, http.MethodPost, "/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var res domain.EvaluationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.TotalDiscount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("total = %s, want 50", res.TotalDiscount)
	}
	if rec.Header().Get(sessionHeader) == "" {
		t.Error("anonymous visitor got no session id")
	}
}

func TestHandleEvaluate_SkipsMalformedInlineOffers(t *testing.T) {
	e := newTestServer(t, stubCatalog{}, nil)
	body := `{"cart":` + cartBody + `,"offers":[
		{"id":"p10","name":"10%","offer_type":"percent_discount","params":{"percent":"10"}},
		{"id":"bad","offer_type":"flat_discount","params":{}}]}`
	rec := do(e, http.MethodPost, "/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var res domain.EvaluationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Plans) != 1 || res.Plans[0].OfferID != "p10" {
		t.Errorf("plans = %+v, want the valid offer only", res.Plans)
	}

	if rec := do(e, http.MethodPost, "/evaluate", `{"cart":`+cartBody+`,"offers":{"id":"p10"}}`); rec.Code != http.StatusBadRequest {
		t.Errorf("non-array offers status = %d, want 400", rec.Code)
	}
}

func TestHandleEvaluate_KeepsSignedInUserWithoutSession(t *testing.T) {
	e := newTestServer(t, stubCatalog{}, nil)
	rec := do(e, http.MethodPost, "/evaluate", `{"cart":`+cartBody+`,"user":{"id":"u1"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(sessionHeader); got != "" {
		t.Errorf("session header = %q, want none", got)
	}
}

func TestHandleEvaluate_CatalogFailure(t *testing.T) {
	e := newTestServer(t, stubCatalog{err: errors.New("db down")}, nil)
	rec := do(e, http.MethodPost, "/evaluate", `{"cart":`+cartBody+`}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Result == nil || len(body.Result.Plans) != 0 || !body.Result.TotalDiscount.IsZero() {
		t.Errorf("fallback result = %+v", body.Result)
	}
}

func TestHandleEvaluate_ServerCapsApply(t *testing.T) {
	flat := func(id, amount string) string {
		return `{"id":"` + id + `","name":"` + id + `","offer_type":"flat_discount","params":{"amount":"` + amount + `"}}`
	}
	e := newTestServer(t, stubCatalog{}, nil)
	body := `{"cart":` + cartBody + `,"offers":[` + flat("a", "10") + `,` + flat("b", "20") + `],"options":{"max_offers":1}}`
	rec := do(e, http.MethodPost, "/evaluate", body)
	var res domain.EvaluationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Plans) != 1 || len(res.RejectedOffers) != 1 {
		t.Errorf("plans = %+v rejected = %+v", res.Plans, res.RejectedOffers)
	}
}

func TestHandlePatch(t *testing.T) {
	e := newTestServer(t, stubCatalog{}, nil)
	body := `{"request":{"cart":` + cartBody + `,"session_id":"s1","offers":[` + minSubtotalOffer + `]},
		"patch":[{"op":"replace","path":"/items/0/quantity","value":2}]}`
	rec := do(e, http.MethodPatch, "/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp PatchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Delta.Added) != 1 || resp.Delta.Added[0] != "f100" {
		t.Errorf("delta = %+v", resp.Delta)
	}
	if !resp.Result.Summary.Payable.Equal(decimal.NewFromInt(900)) {
		t.Errorf("payable = %s", resp.Result.Summary.Payable)
	}
	if len(resp.CartDelta) == 0 {
		t.Error("missing cart delta")
	}

	bad := `{"request":{"cart":` + cartBody + `},"patch":[{"op":"remove","path":"/items/7"}]}`
	if rec := do(e, http.MethodPatch, "/evaluate", bad); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad patch status = %d", rec.Code)
	}
}

func TestHandlePatch_RecordsExposuresForPatchedCartOnly(t *testing.T) {
	exp := domain.Experiment{ID: "e1", Status: domain.ExperimentRunning, Variants: []domain.Variant{{ID: "a", ExperimentID: "e1", Weight: 1}}}
	offers := []domain.Offer{
		{ID: "min800", Name: "min800", Status: domain.OfferActive, Conditions: domain.Conditions{MinSubtotal: decimal.NewFromInt(800)},
			Params: domain.FlatDiscount{Amount: decimal.NewFromInt(100)}},
		{ID: "always", Name: "always", Status: domain.OfferActive, Params: domain.FlatDiscount{Amount: decimal.NewFromInt(10)}},
	}
	e, exposures := newRecordingServer(t, stubCatalog{offers: offers, exps: []domain.Experiment{exp}}, nil)

	body := `{"request":{"cart":` + cartBody + `,"session_id":"s1"},
		"patch":[{"op":"replace","path":"/items/0/quantity","value":2}]}`
	rec := do(e, http.MethodPatch, "/evaluate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	// The patched cart qualifies for both offers, the original for one.
	if len(exposures.records) != 2 {
		t.Fatalf("exposures = %+v, want one per offer of the patched cart", exposures.records)
	}
	for _, r := range exposures.records {
		if r.ExperimentID != "e1" || r.VisitorID != "s1" {
			t.Errorf("exposure = %+v", r)
		}
	}
}

func TestHandleConversion(t *testing.T) {
	exp := domain.Experiment{ID: "e1", Status: domain.ExperimentRunning, Variants: []domain.Variant{{ID: "a", ExperimentID: "e1", Weight: 1}}}
	e := newTestServer(t, stubCatalog{exps: []domain.Experiment{exp}}, nil)

	rec := do(e, http.MethodPost, "/conversions", `{"session_id":"s1","conversion_type":"purchase","value":"99.90"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var got map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["recorded"] != 1 {
		t.Errorf("recorded = %d, want 1", got["recorded"])
	}

	if rec := do(e, http.MethodPost, "/conversions", `{"session_id":"s1"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing type status = %d", rec.Code)
	}
}

func TestHandleExperimentStats(t *testing.T) {
	e := newTestServer(t, stubCatalog{}, nil)
	if rec := do(e, http.MethodGet, "/experiments/e1/stats", ""); rec.Code != http.StatusNotFound {
		t.Errorf("without store status = %d", rec.Code)
	}

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	err = store.WriteExposures(context.Background(), []domain.ExposureRecord{
		{ExperimentID: "e1", VariantID: "a", VisitorID: "v1", OfferID: "o1", OccurredAt: time.Now()},
		{ExperimentID: "e1", VariantID: "a", VisitorID: "v2", OfferID: "o1", OccurredAt: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}

	e = newTestServer(t, stubCatalog{}, store)
	rec := do(e, http.MethodGet, "/experiments/e1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var stats []sqlite.VariantStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 || stats[0].Exposures != 2 || stats[0].Visitors != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t, stubCatalog{}, nil)
	if rec := do(e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
