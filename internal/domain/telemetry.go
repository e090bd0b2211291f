package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExposureKey is the idempotency boundary for exposures.
type ExposureKey struct {
	ExperimentID string
	VariantID    string
	VisitorID    string
	OfferID      string
}

// ExposureRecord says a visitor had an offer evaluated against them under a variant.
type ExposureRecord struct {
	ExperimentID string    `json:"experiment_id"`
	VariantID    string    `json:"variant_id"`
	VisitorID    string    `json:"visitor_id"`
	OfferID      string    `json:"offer_id"`
	SessionID    string    `json:"session_id,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func (r ExposureRecord) Key() ExposureKey {
	return ExposureKey{
		ExperimentID: r.ExperimentID,
		VariantID:    r.VariantID,
		VisitorID:    r.VisitorID,
		OfferID:      r.OfferID,
	}
}

// ConversionRecord ties a conversion event to one experiment assignment.
type ConversionRecord struct {
	ID             string           `json:"id"`
	ExperimentID   string           `json:"experiment_id"`
	VariantID      string           `json:"variant_id"`
	VisitorID      string           `json:"visitor_id"`
	ConversionType string           `json:"conversion_type"`
	Value          *decimal.Decimal `json:"value,omitempty"`
	OrderID        string           `json:"order_id,omitempty"`
	Properties     map[string]any   `json:"properties,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
