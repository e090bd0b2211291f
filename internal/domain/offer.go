// Package domain holds the offer engine's data model: offers, carts in their
// evaluated form, experiments, evaluation results and telemetry records.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// OfferType selects which discount parameters govern an offer.
type OfferType string

const (
	OfferPercentDiscount OfferType = "percent_discount"
	OfferFlatDiscount    OfferType = "flat_discount"
	OfferBuyXGetY        OfferType = "buy_x_get_y"
	OfferFreeItem        OfferType = "free_item"
)

type OfferStatus string

const (
	OfferActive   OfferStatus = "active"
	OfferInactive OfferStatus = "inactive"
)

// Scope restricts a discount to the cart lines matching any listed SKU or
// category. An empty scope covers the whole cart.
type Scope struct {
	SKUs       []string `json:"skus,omitempty" yaml:"skus,omitempty"`
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`
}

func (s Scope) IsEmpty() bool { return len(s.SKUs) == 0 && len(s.Categories) == 0 }

// DiscountParams is the closed set of per-type discount parameters. Exactly
// one implementation is attached to an offer and it determines the offer type.
type DiscountParams interface {
	OfferType() OfferType
	Validate() error
	isDiscountParams()
}

type PercentDiscount struct {
	Percent decimal.Decimal
	Scope   Scope
}

type FlatDiscount struct {
	Amount decimal.Decimal
	Scope  Scope
}

// BuyXGetY grants Get free units for every complete group of Buy+Get units in scope.
type BuyXGetY struct {
	Buy   int
	Get   int
	Scope Scope
}

// FreeItem discounts the designated gift SKU when the shopper has added it.
type FreeItem struct {
	GiftSKU  string
	Quantity int
}

func (PercentDiscount) OfferType() OfferType { return OfferPercentDiscount }
func (FlatDiscount) OfferType() OfferType    { return OfferFlatDiscount }
func (BuyXGetY) OfferType() OfferType        { return OfferBuyXGetY }
func (FreeItem) OfferType() OfferType        { return OfferFreeItem }

func (PercentDiscount) isDiscountParams() {}
func (FlatDiscount) isDiscountParams()    {}
func (BuyXGetY) isDiscountParams()        {}
func (FreeItem) isDiscountParams()        {}

func (p PercentDiscount) Validate() error {
	if p.Percent.IsNegative() || p.Percent.GreaterThan(hundred) {
		return fmt.Errorf("percent %s outside [0,100]", p.Percent)
	}
	return nil
}

func (p FlatDiscount) Validate() error {
	if p.Amount.IsNegative() {
		return fmt.Errorf("flat amount %s is negative", p.Amount)
	}
	return nil
}

func (p BuyXGetY) Validate() error {
	if p.Buy < 1 || p.Get < 1 {
		return fmt.Errorf("buy/get quantities must be positive, got %d/%d", p.Buy, p.Get)
	}
	return nil
}

func (p FreeItem) Validate() error {
	if p.GiftSKU == "" {
		return fmt.Errorf("gift sku is required")
	}
	if p.Quantity < 1 {
		return fmt.Errorf("gift quantity must be positive, got %d", p.Quantity)
	}
	return nil
}

// ItemRequirement demands Quantity units of a SKU or of a category.
type ItemRequirement struct {
	SKU      string `json:"sku,omitempty" yaml:"sku,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	Quantity int    `json:"quantity" yaml:"quantity"`
}

// Conditions are ANDed eligibility checks. Zero values mean "no requirement".
type Conditions struct {
	MinSubtotal       decimal.Decimal   `json:"min_subtotal" yaml:"min_subtotal"`
	RequiredItems     []ItemRequirement `json:"required_items,omitempty" yaml:"required_items,omitempty"`
	Segments          []string          `json:"segments,omitempty" yaml:"segments,omitempty"`
	Channels          []string          `json:"channels,omitempty" yaml:"channels,omitempty"`
	MaxLifetimeOrders *int              `json:"max_lifetime_orders,omitempty" yaml:"max_lifetime_orders,omitempty"`
	Logic             map[string]any    `json:"logic,omitempty" yaml:"logic,omitempty"`
	LogicHint         string            `json:"logic_hint,omitempty" yaml:"logic_hint,omitempty"`
}

// Offer is a store-defined promotional rule. Offers are read-only inputs.
type Offer struct {
	ID               string
	Name             string
	Description      string
	Priority         int
	Status           OfferStatus
	StartsAt         *time.Time
	EndsAt           *time.Time
	Conditions       Conditions
	ExclusivityGroup string
	ExperimentOnly   bool
	Params           DiscountParams
}

// Type reports the offer type, or "" when no parameters are attached.
func (o Offer) Type() OfferType {
	if o.Params == nil {
		return ""
	}
	return o.Params.OfferType()
}

// Validate checks the definition is usable by the calculator.
func (o Offer) Validate() error {
	if o.ID == "" {
		return Wrapf(ErrInvalidOffer, "missing id")
	}
	if o.Params == nil {
		return Wrapf(ErrInvalidOffer, "offer %s has no discount parameters", o.ID)
	}
	if err := o.Params.Validate(); err != nil {
		return Wrapf(ErrInvalidOffer, "offer %s: %v", o.ID, err)
	}
	for _, r := range o.Conditions.RequiredItems {
		if (r.SKU == "") == (r.Category == "") {
			return Wrapf(ErrInvalidOffer, "offer %s: required item needs exactly one of sku or category", o.ID)
		}
	}
	if o.StartsAt != nil && o.EndsAt != nil && !o.EndsAt.After(*o.StartsAt) {
		return Wrapf(ErrInvalidOffer, "offer %s: window ends before it starts", o.ID)
	}
	return nil
}

// InWindow reports whether now falls inside [StartsAt, EndsAt).
func (o Offer) InWindow(now time.Time) bool {
	if o.StartsAt != nil && now.Before(*o.StartsAt) {
		return false
	}
	if o.EndsAt != nil && !now.Before(*o.EndsAt) {
		return false
	}
	return true
}

// offerDoc is the flat wire shape shared by the JSON and YAML catalogs.
type offerDoc struct {
	ID               string      `json:"id" yaml:"id"`
	Name             string      `json:"name" yaml:"name"`
	Description      string      `json:"description,omitempty" yaml:"description,omitempty"`
	OfferType        OfferType   `json:"offer_type" yaml:"offer_type"`
	Priority         int         `json:"priority" yaml:"priority"`
	Status           OfferStatus `json:"status" yaml:"status"`
	StartsAt         *time.Time  `json:"starts_at,omitempty" yaml:"starts_at,omitempty"`
	EndsAt           *time.Time  `json:"ends_at,omitempty" yaml:"ends_at,omitempty"`
	Conditions       Conditions  `json:"conditions" yaml:"conditions"`
	ExclusivityGroup string      `json:"exclusivity_group,omitempty" yaml:"exclusivity_group,omitempty"`
	ExperimentOnly   bool        `json:"experiment_only,omitempty" yaml:"experiment_only,omitempty"`
	Params           paramsDoc   `json:"params" yaml:"params"`
}

type paramsDoc struct {
	Percent      *decimal.Decimal `json:"percent,omitempty" yaml:"percent,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty" yaml:"amount,omitempty"`
	BuyQuantity  int              `json:"buy_quantity,omitempty" yaml:"buy_quantity,omitempty"`
	GetQuantity  int              `json:"get_quantity,omitempty" yaml:"get_quantity,omitempty"`
	GiftSKU      string           `json:"gift_sku,omitempty" yaml:"gift_sku,omitempty"`
	GiftQuantity int              `json:"gift_quantity,omitempty" yaml:"gift_quantity,omitempty"`
	Scope        Scope            `json:"scope" yaml:"scope"`
}

func (d offerDoc) toOffer() (Offer, error) {
	o := Offer{
		ID:               d.ID,
		Name:             d.Name,
		Description:      d.Description,
		Priority:         d.Priority,
		Status:           d.Status,
		StartsAt:         d.StartsAt,
		EndsAt:           d.EndsAt,
		Conditions:       d.Conditions,
		ExclusivityGroup: d.ExclusivityGroup,
		ExperimentOnly:   d.ExperimentOnly,
	}
	if o.Status == "" {
		o.Status = OfferActive
	}

	p := d.Params
	switch d.OfferType {
	case OfferPercentDiscount:
		if p.Percent == nil {
			return o, Wrapf(ErrInvalidOffer, "offer %s: percent_discount requires params.percent", d.ID)
		}
		o.Params = PercentDiscount{Percent: *p.Percent, Scope: p.Scope}
	case OfferFlatDiscount:
		if p.Amount == nil {
			return o, Wrapf(ErrInvalidOffer, "offer %s: flat_discount requires params.amount", d.ID)
		}
		o.Params = FlatDiscount{Amount: *p.Amount, Scope: p.Scope}
	case OfferBuyXGetY:
		if p.BuyQuantity == 0 || p.GetQuantity == 0 {
			return o, Wrapf(ErrInvalidOffer, "offer %s: buy_x_get_y requires params.buy_quantity and params.get_quantity", d.ID)
		}
		o.Params = BuyXGetY{Buy: p.BuyQuantity, Get: p.GetQuantity, Scope: p.Scope}
	case OfferFreeItem:
		if p.GiftSKU == "" {
			return o, Wrapf(ErrInvalidOffer, "offer %s: free_item requires params.gift_sku", d.ID)
		}
		qty := p.GiftQuantity
		if qty == 0 {
			qty = 1
		}
		o.Params = FreeItem{GiftSKU: p.GiftSKU, Quantity: qty}
	default:
		return o, Wrapf(ErrInvalidOffer, "offer %s: unknown offer_type %q", d.ID, d.OfferType)
	}

	if err := o.Validate(); err != nil {
		return o, err
	}
	return o, nil
}

func docFromOffer(o Offer) offerDoc {
	d := offerDoc{
		ID:               o.ID,
		Name:             o.Name,
		Description:      o.Description,
		OfferType:        o.Type(),
		Priority:         o.Priority,
		Status:           o.Status,
		StartsAt:         o.StartsAt,
		EndsAt:           o.EndsAt,
		Conditions:       o.Conditions,
		ExclusivityGroup: o.ExclusivityGroup,
		ExperimentOnly:   o.ExperimentOnly,
	}
	switch p := o.Params.(type) {
	case PercentDiscount:
		d.Params.Percent = &p.Percent
		d.Params.Scope = p.Scope
	case FlatDiscount:
		d.Params.Amount = &p.Amount
		d.Params.Scope = p.Scope
	case BuyXGetY:
		d.Params.BuyQuantity = p.Buy
		d.Params.GetQuantity = p.Get
		d.Params.Scope = p.Scope
	case FreeItem:
		d.Params.GiftSKU = p.GiftSKU
		d.Params.GiftQuantity = p.Quantity
	}
	return d
}

func (o Offer) MarshalJSON() ([]byte, error) {
	return json.Marshal(docFromOffer(o))
}

func (o *Offer) UnmarshalJSON(data []byte) error {
	var d offerDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	off, err := d.toOffer()
	if err != nil {
		return err
	}
	*o = off
	return nil
}

func (o Offer) MarshalYAML() (any, error) {
	return docFromOffer(o), nil
}

func (o *Offer) UnmarshalYAML(node *yaml.Node) error {
	var d offerDoc
	if err := node.Decode(&d); err != nil {
		return err
	}
	off, err := d.toOffer()
	if err != nil {
		return err
	}
	*o = off
	return nil
}

// DecodeOffersJSON decodes a JSON array of offers one element at a time so a
// malformed definition only costs itself. Rejected definitions are returned
// alongside the usable offers.
func DecodeOffersJSON(data []byte) ([]Offer, []error, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, Wrap(ErrCatalogDecode, err)
	}
	offers := make([]Offer, 0, len(raw))
	var skipped []error
	for i, r := range raw {
		var o Offer
		if err := json.Unmarshal(r, &o); err != nil {
			skipped = append(skipped, fmt.Errorf("offer #%d: %w", i, err))
			continue
		}
		offers = append(offers, o)
	}
	return offers, skipped, nil
}

// DecodeOffersYAML is the YAML counterpart of DecodeOffersJSON; nodes is the
// sequence node holding the offer mappings.
func DecodeOffersYAML(nodes []yaml.Node) ([]Offer, []error) {
	offers := make([]Offer, 0, len(nodes))
	var skipped []error
	for i := range nodes {
		var o Offer
		if err := nodes[i].Decode(&o); err != nil {
			skipped = append(skipped, fmt.Errorf("offer #%d (line %d): %w", i, nodes[i].Line, err))
			continue
		}
		offers = append(offers, o)
	}
	return offers, skipped
}
