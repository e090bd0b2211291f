// Package sqlite stores experiment telemetry in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS exposures (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id TEXT NOT NULL,
	variant_id    TEXT NOT NULL,
	visitor_id    TEXT NOT NULL,
	offer_id      TEXT NOT NULL,
	session_id    TEXT NOT NULL DEFAULT '',
	channel       TEXT NOT NULL DEFAULT '',
	occurred_at   INTEGER NOT NULL,
	UNIQUE(experiment_id, variant_id, offer_id, visitor_id)
);
CREATE INDEX IF NOT EXISTS idx_exposures_experiment ON exposures(experiment_id, variant_id);

CREATE TABLE IF NOT EXISTS conversions (
	id              TEXT PRIMARY KEY,
	experiment_id   TEXT NOT NULL,
	variant_id      TEXT NOT NULL,
	visitor_id      TEXT NOT NULL,
	conversion_type TEXT NOT NULL,
	value           TEXT NOT NULL DEFAULT '',
	order_id        TEXT NOT NULL DEFAULT '',
	properties_json TEXT NOT NULL DEFAULT '{}',
	occurred_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversions_experiment ON conversions(experiment_id, variant_id);
`

// NewDB opens the database at path with WAL pragmas and applies the schema.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schemaV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

// Store is a TelemetrySink. The unique index on exposures makes repeated
// writes of one exposure tuple a no-op, across processes too.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func Open(path string) (*Store, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) WriteExposures(ctx context.Context, records []domain.ExposureRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO exposures (experiment_id, variant_id, visitor_id, offer_id, session_id, channel, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(experiment_id, variant_id, offer_id, visitor_id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, r.ExperimentID, r.VariantID, r.VisitorID, r.OfferID,
				r.SessionID, r.Channel, r.OccurredAt.UnixMilli()); err != nil {
				return fmt.Errorf("insert exposure %s/%s: %w", r.ExperimentID, r.OfferID, err)
			}
		}
		return nil
	})
}

func (s *Store) WriteConversions(ctx context.Context, records []domain.ConversionRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO conversions (id, experiment_id, variant_id, visitor_id, conversion_type, value, order_id, properties_json, occurred_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range records {
			props, err := json.Marshal(r.Properties)
			if err != nil {
				return fmt.Errorf("marshal properties: %w", err)
			}
			value := ""
			if r.Value != nil {
				value = r.Value.String()
			}
			if _, err := stmt.ExecContext(ctx, r.ID, r.ExperimentID, r.VariantID, r.VisitorID, r.ConversionType,
				value, r.OrderID, string(props), r.OccurredAt.UnixMilli()); err != nil {
				return fmt.Errorf("insert conversion %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ListExposures returns the exposures of one experiment in insertion order.
func (s *Store) ListExposures(ctx context.Context, experimentID string) ([]domain.ExposureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT experiment_id, variant_id, visitor_id, offer_id, session_id, channel, occurred_at
		FROM exposures WHERE experiment_id = ? ORDER BY id`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("query exposures: %w", err)
	}
	defer rows.Close()

	var out []domain.ExposureRecord
	for rows.Next() {
		var r domain.ExposureRecord
		var at int64
		if err := rows.Scan(&r.ExperimentID, &r.VariantID, &r.VisitorID, &r.OfferID, &r.SessionID, &r.Channel, &at); err != nil {
			return nil, fmt.Errorf("scan exposure: %w", err)
		}
		r.OccurredAt = time.UnixMilli(at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListConversions(ctx context.Context, experimentID string) ([]domain.ConversionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, experiment_id, variant_id, visitor_id, conversion_type, value, order_id, properties_json, occurred_at
		FROM conversions WHERE experiment_id = ? ORDER BY occurred_at, id`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	defer rows.Close()

	var out []domain.ConversionRecord
	for rows.Next() {
		var (
			r     domain.ConversionRecord
			value string
			props string
			at    int64
		)
		if err := rows.Scan(&r.ID, &r.ExperimentID, &r.VariantID, &r.VisitorID, &r.ConversionType, &value, &r.OrderID, &props, &at); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		if value != "" {
			d, err := decimal.NewFromString(value)
			if err != nil {
				return nil, fmt.Errorf("conversion %s value: %w", r.ID, err)
			}
			r.Value = &d
		}
		if props != "" && props != "null" {
			if err := json.Unmarshal([]byte(props), &r.Properties); err != nil {
				return nil, fmt.Errorf("conversion %s properties: %w", r.ID, err)
			}
		}
		r.OccurredAt = time.UnixMilli(at).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// VariantStats is the per-variant tally of one experiment.
type VariantStats struct {
	VariantID   string `json:"variant_id"`
	Exposures   int    `json:"exposures"`
	Visitors    int    `json:"visitors"`
	Conversions int    `json:"conversions"`
}

func (s *Store) Stats(ctx context.Context, experimentID string) ([]VariantStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.variant_id,
		       (SELECT COUNT(*) FROM exposures e WHERE e.experiment_id = ? AND e.variant_id = v.variant_id),
		       (SELECT COUNT(DISTINCT visitor_id) FROM exposures e WHERE e.experiment_id = ? AND e.variant_id = v.variant_id),
		       (SELECT COUNT(*) FROM conversions c WHERE c.experiment_id = ? AND c.variant_id = v.variant_id)
		FROM (
			SELECT variant_id FROM exposures WHERE experiment_id = ?
			UNION
			SELECT variant_id FROM conversions WHERE experiment_id = ?
		) v
		ORDER BY v.variant_id`, experimentID, experimentID, experimentID, experimentID, experimentID)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var out []VariantStats
	for rows.Next() {
		var st VariantStats
		if err := rows.Scan(&st.VariantID, &st.Exposures, &st.Visitors, &st.Conversions); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
