package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENGINE_CATALOG_SOURCE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Catalog.Source != CatalogFile || cfg.Catalog.RefreshInterval != time.Minute {
		t.Errorf("catalog = %+v", cfg.Catalog)
	}
	if cfg.Telemetry.QueueSize != 1024 || cfg.Telemetry.BatchSize != 64 {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Engine.Caps.MaxOffers != nil || cfg.Engine.Caps.MaxTotalDiscount != nil {
		t.Errorf("caps = %+v, want none", cfg.Engine.Caps)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("ENGINE_CATALOG_SOURCE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/offers")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ENGINE_MAX_OFFERS", "3")
	t.Setenv("ENGINE_MAX_TOTAL_DISCOUNT", "250.50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Catalog.Source != CatalogPostgres {
		t.Errorf("source = %q", cfg.Catalog.Source)
	}
	if len(cfg.Telemetry.KafkaBrokers) != 2 || cfg.Telemetry.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Telemetry.KafkaBrokers)
	}
	if cfg.Engine.Caps.MaxOffers == nil || *cfg.Engine.Caps.MaxOffers != 3 {
		t.Errorf("max offers = %v", cfg.Engine.Caps.MaxOffers)
	}
	if cfg.Engine.Caps.MaxTotalDiscount == nil || cfg.Engine.Caps.MaxTotalDiscount.String() != "250.5" {
		t.Errorf("max total = %v", cfg.Engine.Caps.MaxTotalDiscount)
	}
}

func TestLoad_PolicyFileTightensCaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	policy := "max_offers: 5\nmax_discount_percent: 30\n"
	if err := os.WriteFile(path, []byte(policy), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENGINE_MAX_OFFERS", "2")
	t.Setenv("ENGINE_POLICY_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg.Engine.Caps.MaxOffers != 2 {
		t.Errorf("max offers = %d, want the stricter 2", *cfg.Engine.Caps.MaxOffers)
	}
	if cfg.Engine.Caps.MaxDiscountPercent == nil || cfg.Engine.Caps.MaxDiscountPercent.String() != "30" {
		t.Errorf("max percent = %v", cfg.Engine.Caps.MaxDiscountPercent)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"unknown source", map[string]string{"ENGINE_CATALOG_SOURCE": "s3"}},
		{"postgres without dsn", map[string]string{"ENGINE_CATALOG_SOURCE": "postgres", "DATABASE_URL": ""}},
		{"bad cap", map[string]string{"ENGINE_MAX_TOTAL_DISCOUNT": "lots"}},
		{"percent out of range", map[string]string{"ENGINE_MAX_DISCOUNT_PERCENT": "120"}},
		{"missing policy file", map[string]string{"ENGINE_POLICY_FILE": "/nonexistent/policy.yaml"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !errors.Is(err, domain.ErrConfigInvalid) {
				t.Fatalf("err = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestLoad_SessionBounds(t *testing.T) {
	t.Setenv("TELEMETRY_DEDUPE_TTL", "5m")
	t.Setenv("ENGINE_ASSIGNMENT_VISITORS", "100")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telemetry.DedupeTTL != 5*time.Minute || cfg.Telemetry.DedupeVisitors != 50000 {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
	if cfg.Engine.AssignmentVisitors != 100 || cfg.Engine.AssignmentTTL != 30*time.Minute {
		t.Errorf("engine = %+v", cfg.Engine)
	}
}
