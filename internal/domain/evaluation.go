package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is the signed-in shopper, when there is one.
type User struct {
	ID             string   `json:"id"`
	Segments       []string `json:"segments,omitempty"`
	LifetimeOrders int      `json:"lifetime_orders"`
}

// EvaluationContext is threaded explicitly through every evaluation so the
// result is a function of its arguments: the clock is injected and the visitor
// identity never comes from ambient state.
type EvaluationContext struct {
	Now            time.Time    `json:"now"`
	Channel        string       `json:"channel,omitempty"`
	SessionID      string       `json:"session_id,omitempty"`
	User           *User        `json:"user,omitempty"`
	Experiments    []Experiment `json:"experiments,omitempty"`
	CurrencySymbol string       `json:"currency_symbol,omitempty"`
}

// Visitor resolves the identity used for experiment assignment: the user id
// when signed in, otherwise the session id.
func (c EvaluationContext) Visitor() (Visitor, bool) {
	if c.User != nil && c.User.ID != "" {
		return Visitor{ID: c.User.ID, Kind: VisitorUser}, true
	}
	if c.SessionID != "" {
		return Visitor{ID: c.SessionID, Kind: VisitorSession}, true
	}
	return Visitor{}, false
}

// Options are the global caps applied by the conflict resolver. A nil field
// leaves that cap unbounded.
type Options struct {
	MaxOffers          *int             `json:"max_offers,omitempty" yaml:"max_offers,omitempty"`
	MaxTotalDiscount   *decimal.Decimal `json:"max_total_discount,omitempty" yaml:"max_total_discount,omitempty"`
	MaxDiscountPercent *decimal.Decimal `json:"max_discount_percent,omitempty" yaml:"max_discount_percent,omitempty"`
}

// Tighten combines two option sets keeping the stricter bound of each cap.
func (o Options) Tighten(other Options) Options {
	out := o
	if other.MaxOffers != nil && (out.MaxOffers == nil || *other.MaxOffers < *out.MaxOffers) {
		v := *other.MaxOffers
		out.MaxOffers = &v
	}
	if other.MaxTotalDiscount != nil && (out.MaxTotalDiscount == nil || other.MaxTotalDiscount.LessThan(*out.MaxTotalDiscount)) {
		v := *other.MaxTotalDiscount
		out.MaxTotalDiscount = &v
	}
	if other.MaxDiscountPercent != nil && (out.MaxDiscountPercent == nil || other.MaxDiscountPercent.LessThan(*out.MaxDiscountPercent)) {
		v := *other.MaxDiscountPercent
		out.MaxDiscountPercent = &v
	}
	return out
}

// RejectionReason is the machine-readable code attached to every rejection.
type RejectionReason string

const (
	ReasonExclusivityConflict RejectionReason = "exclusivity_conflict"
	ReasonMaxOffersExceeded   RejectionReason = "max_offers_exceeded"
	ReasonDiscountCapExceeded RejectionReason = "discount_cap_exceeded"
	ReasonConditionsNotMet    RejectionReason = "conditions_not_met"
	ReasonInvalidDefinition   RejectionReason = "invalid_definition"
)

// AffectedLine is the share of a plan's discount carried by one cart line.
type AffectedLine struct {
	LineIndex int             `json:"line_index"`
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Units     int             `json:"units"`
	Discount  decimal.Decimal `json:"discount"`
}

// ApplicationPlan is one offer admitted to the final plan.
type ApplicationPlan struct {
	OfferID          string          `json:"offer_id"`
	OfferName        string          `json:"offer_name"`
	OfferType        OfferType       `json:"offer_type"`
	Priority         int             `json:"priority"`
	ExclusivityGroup string          `json:"exclusivity_group,omitempty"`
	Discount         decimal.Decimal `json:"discount"`
	Lines            []AffectedLine  `json:"lines,omitempty"`
}

// ApplicableOffer passed condition matching and has a computed discount.
type ApplicableOffer struct {
	Offer    Offer           `json:"offer"`
	Discount decimal.Decimal `json:"discount"`
	Lines    []AffectedLine  `json:"lines,omitempty"`
}

// PotentialOffer is a near miss, listed for upsell messaging.
type PotentialOffer struct {
	OfferID           string   `json:"offer_id"`
	OfferName         string   `json:"offer_name"`
	Description       string   `json:"description,omitempty"`
	MissingConditions []string `json:"missing_conditions"`
}

// RejectedOffer passed matching but lost during conflict resolution.
type RejectedOffer struct {
	OfferID        string          `json:"offer_id"`
	OfferName      string          `json:"offer_name"`
	Reason         RejectionReason `json:"reason"`
	WinningOfferID string          `json:"winning_offer_id,omitempty"`
	Detail         string          `json:"detail"`
}

// Summary carries the money totals the storefront displays.
type Summary struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	TotalDiscount decimal.Decimal `json:"total_discount"`
	Payable       decimal.Decimal `json:"payable"`
}

// EvaluationResult is transient: it is recomputed on every cart or offer change.
type EvaluationResult struct {
	ApplicableOffers []ApplicableOffer `json:"applicable_offers"`
	Plans            []ApplicationPlan `json:"plans"`
	TotalDiscount    decimal.Decimal   `json:"total_discount"`
	PotentialOffers  []PotentialOffer  `json:"potential_offers"`
	RejectedOffers   []RejectedOffer   `json:"rejected_offers"`
	RejectionLog     []string          `json:"rejection_log"`
	Summary          Summary           `json:"summary"`
	Assignments      []Assignment      `json:"assignments,omitempty"`
}

// EmptyResult is what an empty cart, or a storefront falling back after an
// evaluation error, works with: no plans and zero discount.
func EmptyResult() EvaluationResult {
	return EvaluationResult{
		ApplicableOffers: []ApplicableOffer{},
		Plans:            []ApplicationPlan{},
		TotalDiscount:    decimal.Zero,
		PotentialOffers:  []PotentialOffer{},
		RejectedOffers:   []RejectedOffer{},
		RejectionLog:     []string{},
	}
}
