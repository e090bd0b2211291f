package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/telemetry"
	"github.com/shopspring/decimal"
)

const catalogJSON = `{
  "version": "test",
  "offers": [
    {"id": "base-5", "name": "5% off", "offer_type": "percent_discount", "priority": 1, "params": {"percent": "5"}},
    {"id": "trial-200", "name": "200 off", "offer_type": "flat_discount", "priority": 2, "experiment_only": true,
     "conditions": {"logic": {"has_segment": ["beta"]}}, "params": {"amount": "200"}}
  ],
  "experiments": [
    {"id": "trial", "name": "Trial", "status": "running",
     "variants": [{"id": "on", "experiment_id": "trial", "weight": 1, "activates": ["trial-200"], "suppresses": ["base-5"]}]}
  ]
}`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(catalogJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileEngine_EvaluatesAndFlushesExposures(t *testing.T) {
	sink := telemetry.NewMemorySink()
	eng := NewFileEngine(writeCatalog(t), sink, nil)

	cart := Cart{Items: []CartItem{{ProductID: "coat", Quantity: 1, Product: ProductSnapshot{Price: decimal.NewFromInt(1000)}}}}
	user := &User{ID: "u1", Segments: []string{"beta"}}
	ectx := EvaluationContext{Now: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}

	res, err := eng.EvaluateOffersForCart(context.Background(), cart, user, ectx, Options{})
	if err != nil {
		t.Fatalf("EvaluateOffersForCart: %v", err)
	}
	if len(res.Plans) != 1 || res.Plans[0].OfferID != "trial-200" {
		t.Fatalf("plans = %+v, want the activated offer only", res.Plans)
	}
	if !res.Summary.Payable.Equal(decimal.NewFromInt(800)) {
		t.Errorf("payable = %s, want 800", res.Summary.Payable)
	}

	if err := eng.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got := sink.Exposures()
	if len(got) != 1 || got[0].ExperimentID != "trial" || got[0].VisitorID != "u1" {
		t.Errorf("exposures = %+v", got)
	}
}

func TestFileEngine_LogConversion(t *testing.T) {
	sink := telemetry.NewMemorySink()
	eng := NewFileEngine(writeCatalog(t), sink, nil)
	ectx := EvaluationContext{Now: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), User: &User{ID: "u1"}}
	value := decimal.RequireFromString("49.90")

	n, err := eng.LogConversion(context.Background(), ectx, "purchase", &value, "ord-1", nil)
	if err != nil {
		t.Fatalf("LogConversion: %v", err)
	}
	if n != 1 {
		t.Fatalf("queued = %d, want 1", n)
	}
	if err := eng.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got := sink.Conversions()
	if len(got) != 1 || got[0].ExperimentID != "trial" || got[0].VariantID != "on" || got[0].OrderID != "ord-1" {
		t.Errorf("conversions = %+v", got)
	}
}

func TestNew_LogConversionWithoutSink(t *testing.T) {
	eng := New(Config{})
	n, err := eng.LogConversion(context.Background(), EvaluationContext{SessionID: "s1"}, "purchase", nil, "", nil)
	if err != nil || n != 0 {
		t.Errorf("LogConversion = %d, %v; want 0, nil", n, err)
	}
}

func TestNew_CustomOperator(t *testing.T) {
	eng := New(Config{
		Operators: map[string]Operator{
			"always": func(map[string]any, ...any) any { return true },
		},
	})
	offer := Offer{ID: "op", Name: "op", Status: "active", Params: FlatDiscount{Amount: decimal.NewFromInt(10)}}
	offer.Conditions.Logic = map[string]any{"always": []any{}}

	cart := Cart{Items: []CartItem{{ProductID: "p", Quantity: 1, Product: ProductSnapshot{Price: decimal.NewFromInt(50)}}}}
	res := eng.EvaluateOffersSync([]Offer{offer}, cart, nil, EvaluationContext{Now: time.Now()}, Options{})
	if !res.TotalDiscount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("total = %s, want 10", res.TotalDiscount)
	}
	if err := eng.Close(context.Background()); err != nil {
		t.Errorf("Close without telemetry: %v", err)
	}
}
