// Package postgres serves the offer catalog from PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the catalog tables. Definitions are stored as JSON in the
// same shape the file catalog uses.
const Schema = `
CREATE TABLE IF NOT EXISTS offers (
	id         TEXT PRIMARY KEY,
	priority   INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'active',
	definition JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_offers_status_priority ON offers(status, priority DESC);

CREATE TABLE IF NOT EXISTS experiments (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'draft',
	definition JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type PoolConfig struct {
	DSN             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
}

func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// querier is the part of *pgxpool.Pool the catalog uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Catalog implements OfferCatalog and ExperimentSource. It only reads: offers
// and experiments are written by the store's own tooling.
type Catalog struct {
	db     querier
	logger *slog.Logger
}

func NewCatalog(pool *pgxpool.Pool, logger *slog.Logger) *Catalog {
	return newCatalog(pool, logger)
}

func newCatalog(db querier, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{db: db, logger: logger}
}

// Migrate creates the catalog tables when they are missing.
func (c *Catalog) Migrate(ctx context.Context) error {
	_, err := c.db.Exec(ctx, Schema)
	return err
}

func (c *Catalog) FetchActiveOffers(ctx context.Context) ([]domain.Offer, error) {
	defs, err := c.definitions(ctx, "offer", `
		SELECT id, definition FROM offers
		WHERE status = 'active'
		ORDER BY priority DESC, id`)
	if err != nil {
		return nil, err
	}
	offers, skipped := DecodeOffers(defs)
	for _, s := range skipped {
		c.logger.Warn("skipping malformed offer", "error", s)
	}
	return offers, nil
}

func (c *Catalog) FetchRunningExperiments(ctx context.Context) ([]domain.Experiment, error) {
	defs, err := c.definitions(ctx, "experiment", `SELECT id, definition FROM experiments WHERE status = 'running' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	exps, skipped := DecodeExperiments(defs)
	for _, s := range skipped {
		c.logger.Warn("skipping malformed experiment", "error", s)
	}
	return exps, nil
}

func (c *Catalog) definitions(ctx context.Context, kind, query string) ([]Definition, error) {
	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %ss: %w", kind, err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var d Definition
		if err := rows.Scan(&d.ID, &d.Raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %ss: %w", kind, err)
	}
	return defs, nil
}

// Definition is one stored row: its id and JSON definition.
type Definition struct {
	ID  string
	Raw []byte
}

// DecodeOffers turns stored definitions into offers. A definition that does
// not decode, or whose id disagrees with its row, is skipped.
func DecodeOffers(defs []Definition) ([]domain.Offer, []error) {
	var offers []domain.Offer
	var skipped []error
	for _, d := range defs {
		var o domain.Offer
		if err := json.Unmarshal(d.Raw, &o); err != nil {
			skipped = append(skipped, fmt.Errorf("offer %s: %w", d.ID, err))
			continue
		}
		if o.ID != d.ID {
			skipped = append(skipped, domain.Wrapf(domain.ErrInvalidOffer, "row %s holds offer %s", d.ID, o.ID))
			continue
		}
		offers = append(offers, o)
	}
	return offers, skipped
}

func DecodeExperiments(defs []Definition) ([]domain.Experiment, []error) {
	var exps []domain.Experiment
	var skipped []error
	for _, d := range defs {
		var e domain.Experiment
		if err := json.Unmarshal(d.Raw, &e); err != nil {
			skipped = append(skipped, fmt.Errorf("experiment %s: %w", d.ID, err))
			continue
		}
		if e.ID == "" {
			e.ID = d.ID
		}
		for i := range e.Variants {
			if e.Variants[i].ExperimentID == "" {
				e.Variants[i].ExperimentID = e.ID
			}
		}
		if err := e.Validate(); err != nil {
			skipped = append(skipped, err)
			continue
		}
		exps = append(exps, e)
	}
	return exps, skipped
}
