package model

import (
	"fmt"
	"log/slog"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// ExternalCart is the storefront's cart shape. Only the normalizer reads it.
type ExternalCart struct {
	ID    string             `json:"id,omitempty"`
	Items []ExternalCartItem `json:"items"`
}

type ExternalCartItem struct {
	ProductID string           `json:"product_id"`
	VariantID string           `json:"variant_id,omitempty"`
	Quantity  int              `json:"quantity"`
	Product   ProductSnapshot  `json:"product"`
	Variant   *VariantSnapshot `json:"variant,omitempty"`
}

type ProductSnapshot struct {
	Name       string           `json:"name,omitempty"`
	Price      decimal.Decimal  `json:"price"`
	SalePrice  *decimal.Decimal `json:"sale_price,omitempty"`
	Categories []string         `json:"categories,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
}

type VariantSnapshot struct {
	SKU   string           `json:"sku,omitempty"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

// LineItem is one normalized cart line.
type LineItem struct {
	ProductID string
	VariantID string
	SKU       string
	UnitPrice decimal.Decimal
	Quantity  int
	Tags      []string
}

func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MatchesSKU accepts the product id, the variant id or the variant SKU.
func (l LineItem) MatchesSKU(sku string) bool {
	return sku != "" && (sku == l.ProductID || sku == l.VariantID || sku == l.SKU)
}

func (l LineItem) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// InScope reports whether the line is covered by scope. An empty scope covers every line.
func (l LineItem) InScope(s domain.Scope) bool {
	if s.IsEmpty() {
		return true
	}
	for _, sku := range s.SKUs {
		if l.MatchesSKU(sku) {
			return true
		}
	}
	for _, c := range s.Categories {
		if l.HasTag(c) {
			return true
		}
	}
	return false
}

// Cart is an immutable snapshot. Its subtotal is computed once here and every
// downstream component reads it through Subtotal.
type Cart struct {
	lines    []LineItem
	subtotal decimal.Decimal
	units    int
}

// NewCart copies lines so later changes by the caller never leak into an evaluation.
func NewCart(lines []LineItem) Cart {
	c := Cart{lines: make([]LineItem, len(lines)), subtotal: decimal.Zero}
	for i, l := range lines {
		l.Tags = append([]string(nil), l.Tags...)
		c.lines[i] = l
		c.subtotal = c.subtotal.Add(l.Total())
		c.units += l.Quantity
	}
	c.subtotal = domain.RoundMoney(c.subtotal)
	return c
}

func (c Cart) Subtotal() decimal.Decimal { return c.subtotal }
func (c Cart) Units() int                { return c.units }
func (c Cart) Len() int                  { return len(c.lines) }
func (c Cart) IsEmpty() bool             { return len(c.lines) == 0 }
func (c Cart) Line(i int) LineItem       { return c.lines[i] }

// Lines returns a copy of the cart lines.
func (c Cart) Lines() []LineItem {
	return append([]LineItem(nil), c.lines...)
}

// ScopeSubtotal sums the value of the lines inside scope.
func (c Cart) ScopeSubtotal(s domain.Scope) decimal.Decimal {
	if s.IsEmpty() {
		return c.subtotal
	}
	total := decimal.Zero
	for _, l := range c.lines {
		if l.InScope(s) {
			total = total.Add(l.Total())
		}
	}
	return domain.RoundMoney(total)
}

// QuantityOf counts units matching a SKU.
func (c Cart) QuantityOf(sku string) int {
	n := 0
	for _, l := range c.lines {
		if l.MatchesSKU(sku) {
			n += l.Quantity
		}
	}
	return n
}

// QuantityInCategory counts units carrying a category tag.
func (c Cart) QuantityInCategory(category string) int {
	n := 0
	for _, l := range c.lines {
		if l.HasTag(category) {
			n += l.Quantity
		}
	}
	return n
}

// ToMap exposes the cart to JSONLogic predicates.
func (c Cart) ToMap() map[string]any {
	items := make([]any, len(c.lines))
	tagSet := map[string]bool{}
	tags := []any{}
	for i, l := range c.lines {
		lineTags := make([]any, len(l.Tags))
		for j, t := range l.Tags {
			lineTags[j] = t
			if !tagSet[t] {
				tagSet[t] = true
				tags = append(tags, t)
			}
		}
		items[i] = map[string]any{
			"product_id": l.ProductID,
			"variant_id": l.VariantID,
			"sku":        l.SKU,
			"unit_price": l.UnitPrice.InexactFloat64(),
			"quantity":   l.Quantity,
			"total":      l.Total().InexactFloat64(),
			"tags":       lineTags,
		}
	}
	return map[string]any{
		"subtotal":   c.subtotal.InexactFloat64(),
		"item_count": c.units,
		"line_count": len(c.lines),
		"items":      items,
		"tags":       tags,
	}
}

// Normalizer is the single translation point from the storefront cart shape.
type Normalizer struct {
	logger *slog.Logger
}

func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize converts the external cart. Lines that cannot be priced or have
// no positive quantity are skipped with a warning and reported back.
func (n *Normalizer) Normalize(ext ExternalCart) (Cart, []error) {
	lines := make([]LineItem, 0, len(ext.Items))
	var skipped []error
	for i, it := range ext.Items {
		line, err := normalizeItem(it)
		if err != nil {
			err = fmt.Errorf("cart line #%d: %w", i, err)
			n.logger.Warn("skipping cart line", "cart_id", ext.ID, "line", i, "error", err)
			skipped = append(skipped, err)
			continue
		}
		lines = append(lines, line)
	}
	return NewCart(lines), skipped
}

func normalizeItem(it ExternalCartItem) (LineItem, error) {
	if it.ProductID == "" {
		return LineItem{}, domain.Wrapf(domain.ErrInvalidCart, "missing product id")
	}
	if it.Quantity <= 0 {
		return LineItem{}, domain.Wrapf(domain.ErrInvalidCart, "product %s has non-positive quantity %d", it.ProductID, it.Quantity)
	}

	price := it.Product.Price
	if it.Product.SalePrice != nil {
		price = *it.Product.SalePrice
	}
	sku := it.VariantID
	if it.Variant != nil {
		if it.Variant.Price != nil {
			price = *it.Variant.Price
		}
		if it.Variant.SKU != "" {
			sku = it.Variant.SKU
		}
	}
	if price.IsNegative() {
		return LineItem{}, domain.Wrapf(domain.ErrInvalidCart, "product %s has negative price %s", it.ProductID, price)
	}

	tags := make([]string, 0, len(it.Product.Categories)+len(it.Product.Tags))
	seen := map[string]bool{}
	for _, t := range append(append([]string(nil), it.Product.Categories...), it.Product.Tags...) {
		if t != "" && !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}

	return LineItem{
		ProductID: it.ProductID,
		VariantID: it.VariantID,
		SKU:       sku,
		UnitPrice: domain.RoundMoney(price),
		Quantity:  it.Quantity,
		Tags:      tags,
	}, nil
}
