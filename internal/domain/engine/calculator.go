package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Computation is the discount an offer yields on a cart. A non-empty Missing
// means the offer cannot produce its discount yet and should be shown as a
// potential offer instead.
type Computation struct {
	Discount decimal.Decimal
	Lines    []domain.AffectedLine
	Missing  []string
}

// Calculator computes discounts. It never mutates the cart and never adds a
// gift to it.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

func (c *Calculator) Compute(offer domain.Offer, cart model.Cart) Computation {
	switch p := offer.Params.(type) {
	case domain.PercentDiscount:
		return c.percent(p, cart)
	case domain.FlatDiscount:
		return c.flat(p, cart)
	case domain.BuyXGetY:
		return c.buyXGetY(p, cart)
	case domain.FreeItem:
		return c.freeItem(p, cart)
	}
	return Computation{Discount: decimal.Zero, Missing: []string{"offer has no discount parameters"}}
}

func (c *Calculator) percent(p domain.PercentDiscount, cart model.Cart) Computation {
	idx := scopeLines(cart, p.Scope)
	if len(idx) == 0 {
		return Computation{Discount: decimal.Zero, Missing: []string{scopeHint(p.Scope)}}
	}
	scopeTotal := cart.ScopeSubtotal(p.Scope)
	discount := domain.PercentOf(scopeTotal, p.Percent)
	return Computation{Discount: discount, Lines: allocate(cart, idx, discount)}
}

func (c *Calculator) flat(p domain.FlatDiscount, cart model.Cart) Computation {
	idx := scopeLines(cart, p.Scope)
	if len(idx) == 0 {
		return Computation{Discount: decimal.Zero, Missing: []string{scopeHint(p.Scope)}}
	}
	discount := domain.MinMoney(domain.RoundMoney(p.Amount), cart.ScopeSubtotal(p.Scope))
	return Computation{Discount: discount, Lines: allocate(cart, idx, discount)}
}

// run is a block of identically priced units taken from one cart line.
type run struct {
	line  int
	price decimal.Decimal
	units int
}

// cheapestFirst lists the given lines as runs, cheapest first. Equal prices
// keep cart order so the outcome is deterministic.
func cheapestFirst(cart model.Cart, idx []int) ([]run, int) {
	runs := make([]run, 0, len(idx))
	total := 0
	for _, i := range idx {
		l := cart.Line(i)
		runs = append(runs, run{line: i, price: l.UnitPrice, units: l.Quantity})
		total += l.Quantity
	}
	sort.SliceStable(runs, func(a, b int) bool {
		return runs[a].price.LessThan(runs[b].price)
	})
	return runs, total
}

func (c *Calculator) buyXGetY(p domain.BuyXGetY, cart model.Cart) Computation {
	runs, total := cheapestFirst(cart, scopeLines(cart, p.Scope))
	groupSize := p.Buy + p.Get
	groups := total / groupSize
	if groups == 0 {
		short := groupSize - total
		return Computation{
			Discount: decimal.Zero,
			Missing:  []string{fmt.Sprintf("add %d more eligible %s to get %d free", short, plural(short, "item", "items"), p.Get)},
		}
	}
	return takeFree(cart, runs, groups*p.Get)
}

func (c *Calculator) freeItem(p domain.FreeItem, cart model.Cart) Computation {
	var idx []int
	for i := 0; i < cart.Len(); i++ {
		if cart.Line(i).MatchesSKU(p.GiftSKU) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return Computation{
			Discount: decimal.Zero,
			Missing:  []string{fmt.Sprintf("add the free item %s to cart", p.GiftSKU)},
		}
	}
	runs, _ := cheapestFirst(cart, idx)
	return takeFree(cart, runs, p.Quantity)
}

// takeFree discounts the first n units of runs entirely.
func takeFree(cart model.Cart, runs []run, n int) Computation {
	total := decimal.Zero
	var lines []domain.AffectedLine
	for _, r := range runs {
		if n == 0 {
			break
		}
		take := r.units
		if take > n {
			take = n
		}
		n -= take
		amount := r.price.Mul(decimal.NewFromInt(int64(take)))
		total = total.Add(amount)
		l := cart.Line(r.line)
		lines = append(lines, domain.AffectedLine{
			LineIndex: r.line,
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Units:     take,
			Discount:  domain.RoundMoney(amount),
		})
	}
	sort.Slice(lines, func(a, b int) bool { return lines[a].LineIndex < lines[b].LineIndex })
	return Computation{Discount: domain.RoundMoney(total), Lines: lines}
}

// allocate spreads discount across lines pro rata to their value. Shares are
// rounded to cents and the rounding residue lands on the largest share so the
// lines always sum to discount.
func allocate(cart model.Cart, idx []int, discount decimal.Decimal) []domain.AffectedLine {
	lines := make([]domain.AffectedLine, len(idx))
	weight := decimal.Zero
	for _, i := range idx {
		weight = weight.Add(cart.Line(i).Total())
	}
	allocated := decimal.Zero
	largest := 0
	for k, i := range idx {
		l := cart.Line(i)
		share := decimal.Zero
		if weight.IsPositive() {
			share = domain.RoundMoney(discount.Mul(l.Total()).Div(weight))
		}
		lines[k] = domain.AffectedLine{LineIndex: i, ProductID: l.ProductID, VariantID: l.VariantID, Units: l.Quantity, Discount: share}
		allocated = allocated.Add(share)
		if share.GreaterThan(lines[largest].Discount) {
			largest = k
		}
	}
	if residue := discount.Sub(allocated); !residue.IsZero() && weight.IsPositive() {
		lines[largest].Discount = lines[largest].Discount.Add(residue)
	}
	return lines
}

func scopeLines(cart model.Cart, s domain.Scope) []int {
	var idx []int
	for i := 0; i < cart.Len(); i++ {
		if cart.Line(i).InScope(s) {
			idx = append(idx, i)
		}
	}
	return idx
}

func scopeHint(s domain.Scope) string {
	var parts []string
	if len(s.SKUs) > 0 {
		parts = append(parts, strings.Join(s.SKUs, ", "))
	}
	if len(s.Categories) > 0 {
		parts = append(parts, "an item from "+strings.Join(s.Categories, ", "))
	}
	return "add " + strings.Join(parts, " or ") + " to cart"
}
