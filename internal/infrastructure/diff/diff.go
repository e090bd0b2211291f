// Package diff compares two evaluation results for the same cart, e.g. before
// and after a cart patch.
package diff

import (
	"sort"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/shopspring/decimal"
)

type PlanDelta struct {
	Added          []string        `json:"added"`
	Removed        []string        `json:"removed"`
	Kept           []string        `json:"kept"`
	DiscountChange decimal.Decimal `json:"discount_change"`
	PayableChange  decimal.Decimal `json:"payable_change"`
}

func (d PlanDelta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && d.DiscountChange.IsZero() && d.PayableChange.IsZero()
}

type Differ struct{}

func (d *Differ) Diff(before, after domain.EvaluationResult) PlanDelta {
	was := planIDs(before.Plans)
	now := planIDs(after.Plans)
	delta := PlanDelta{Added: []string{}, Removed: []string{}, Kept: []string{}}
	for id := range now {
		if was[id] {
			delta.Kept = append(delta.Kept, id)
		} else {
			delta.Added = append(delta.Added, id)
		}
	}
	for id := range was {
		if !now[id] {
			delta.Removed = append(delta.Removed, id)
		}
	}
	sort.Strings(delta.Added)
	sort.Strings(delta.Removed)
	sort.Strings(delta.Kept)
	delta.DiscountChange = after.TotalDiscount.Sub(before.TotalDiscount)
	delta.PayableChange = after.Summary.Payable.Sub(before.Summary.Payable)
	return delta
}

func planIDs(plans []domain.ApplicationPlan) map[string]bool {
	ids := make(map[string]bool, len(plans))
	for _, p := range plans {
		ids[p.OfferID] = true
	}
	return ids
}
