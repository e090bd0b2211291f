package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/yaml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	CatalogFile     = "file"
	CatalogPostgres = "postgres"
)

// Config holds all configuration for the engine service.
type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	Telemetry TelemetryConfig
	Engine    EngineConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type CatalogConfig struct {
	Source          string
	Path            string
	PostgresDSN     string
	RefreshInterval time.Duration
}

// TelemetryConfig enables each sink whose address is set.
type TelemetryConfig struct {
	QueueSize        int
	BatchSize        int
	WriteTimeout     time.Duration
	DedupeVisitors   int
	DedupeTTL        time.Duration
	SQLitePath       string
	KafkaBrokers     []string
	KafkaExposures   string
	KafkaConversions string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisPrefix      string
	RedisDedupeTTL   time.Duration
}

type EngineConfig struct {
	CurrencySymbol     string
	PolicyFile         string
	AssignmentVisitors int
	AssignmentTTL      time.Duration
	// Caps are the server-side limits. Request options can only tighten them.
	Caps domain.Options
}

// Load loads configuration from environment variables, after reading a .env
// file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ENGINE_HTTP_ADDR", ":8080"),
			ShutdownTimeout: getEnvAsDuration("ENGINE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Catalog: CatalogConfig{
			Source:          strings.ToLower(getEnv("ENGINE_CATALOG_SOURCE", CatalogFile)),
			Path:            getEnv("ENGINE_CATALOG_PATH", "data/catalog.yaml"),
			PostgresDSN:     getEnv("DATABASE_URL", ""),
			RefreshInterval: getEnvAsDuration("ENGINE_CATALOG_REFRESH", time.Minute),
		},
		Telemetry: TelemetryConfig{
			QueueSize:        getEnvAsInt("TELEMETRY_QUEUE_SIZE", 1024),
			BatchSize:        getEnvAsInt("TELEMETRY_BATCH_SIZE", 64),
			WriteTimeout:     getEnvAsDuration("TELEMETRY_WRITE_TIMEOUT", 5*time.Second),
			DedupeVisitors:   getEnvAsInt("TELEMETRY_DEDUPE_VISITORS", 50000),
			DedupeTTL:        getEnvAsDuration("TELEMETRY_DEDUPE_TTL", 30*time.Minute),
			SQLitePath:       getEnv("TELEMETRY_SQLITE_PATH", ""),
			KafkaBrokers:     getEnvAsList("KAFKA_BROKERS"),
			KafkaExposures:   getEnv("KAFKA_EXPOSURE_TOPIC", "offer-engine.exposures"),
			KafkaConversions: getEnv("KAFKA_CONVERSION_TOPIC", "offer-engine.conversions"),
			RedisAddr:        getEnv("REDIS_ADDR", ""),
			RedisPassword:    getEnv("REDIS_PASSWORD", ""),
			RedisDB:          getEnvAsInt("REDIS_DB", 0),
			RedisPrefix:      getEnv("REDIS_PREFIX", "offer-engine"),
			RedisDedupeTTL:   getEnvAsDuration("REDIS_DEDUPE_TTL", 0),
		},
		Engine: EngineConfig{
			CurrencySymbol:     getEnv("ENGINE_CURRENCY_SYMBOL", domain.DefaultCurrencySymbol),
			PolicyFile:         getEnv("ENGINE_POLICY_FILE", ""),
			AssignmentVisitors: getEnvAsInt("ENGINE_ASSIGNMENT_VISITORS", 50000),
			AssignmentTTL:      getEnvAsDuration("ENGINE_ASSIGNMENT_TTL", 30*time.Minute),
		},
	}

	var problems []error
	caps, err := envCaps()
	if err != nil {
		problems = append(problems, err)
	}
	cfg.Engine.Caps = caps
	if cfg.Engine.PolicyFile != "" {
		policy, err := yaml.LoadOptions(cfg.Engine.PolicyFile)
		if err != nil {
			problems = append(problems, err)
		} else {
			cfg.Engine.Caps = cfg.Engine.Caps.Tighten(policy)
		}
	}
	problems = append(problems, cfg.validate()...)
	if len(problems) > 0 {
		return nil, domain.Wrap(domain.ErrConfigInvalid, errors.Join(problems...))
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var problems []error
	switch c.Catalog.Source {
	case CatalogFile:
		if c.Catalog.Path == "" {
			problems = append(problems, fmt.Errorf("ENGINE_CATALOG_PATH is required for the file catalog"))
		}
	case CatalogPostgres:
		if c.Catalog.PostgresDSN == "" {
			problems = append(problems, fmt.Errorf("DATABASE_URL is required for the postgres catalog"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown ENGINE_CATALOG_SOURCE %q", c.Catalog.Source))
	}
	if c.Catalog.RefreshInterval < 0 {
		problems = append(problems, fmt.Errorf("ENGINE_CATALOG_REFRESH must not be negative"))
	}
	if c.Telemetry.QueueSize <= 0 {
		problems = append(problems, fmt.Errorf("TELEMETRY_QUEUE_SIZE must be positive"))
	}
	if c.Telemetry.BatchSize <= 0 {
		problems = append(problems, fmt.Errorf("TELEMETRY_BATCH_SIZE must be positive"))
	}
	if c.Telemetry.DedupeVisitors <= 0 || c.Engine.AssignmentVisitors <= 0 {
		problems = append(problems, fmt.Errorf("TELEMETRY_DEDUPE_VISITORS and ENGINE_ASSIGNMENT_VISITORS must be positive"))
	}
	caps := c.Engine.Caps
	if caps.MaxOffers != nil && *caps.MaxOffers < 0 {
		problems = append(problems, fmt.Errorf("max_offers must not be negative"))
	}
	if caps.MaxTotalDiscount != nil && caps.MaxTotalDiscount.IsNegative() {
		problems = append(problems, fmt.Errorf("max_total_discount must not be negative"))
	}
	if p := caps.MaxDiscountPercent; p != nil && (p.IsNegative() || p.GreaterThan(decimal.NewFromInt(100))) {
		problems = append(problems, fmt.Errorf("max_discount_percent must be between 0 and 100"))
	}
	return problems
}

func envCaps() (domain.Options, error) {
	var opts domain.Options
	var problems []error
	if v := os.Getenv("ENGINE_MAX_OFFERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			problems = append(problems, fmt.Errorf("ENGINE_MAX_OFFERS: %w", err))
		} else {
			opts.MaxOffers = &n
		}
	}
	for _, c := range []struct {
		key string
		dst **decimal.Decimal
	}{
		{"ENGINE_MAX_TOTAL_DISCOUNT", &opts.MaxTotalDiscount},
		{"ENGINE_MAX_DISCOUNT_PERCENT", &opts.MaxDiscountPercent},
	} {
		v := os.Getenv(c.key)
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", c.key, err))
			continue
		}
		*c.dst = &d
	}
	return opts, errors.Join(problems...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
