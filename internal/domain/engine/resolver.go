package engine

import (
	"fmt"
	"sort"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Candidate is an individually eligible offer with its computed discount.
type Candidate struct {
	Offer    domain.Offer
	Discount decimal.Decimal
	Lines    []domain.AffectedLine
}

type Resolution struct {
	Plans         []domain.ApplicationPlan
	Rejected      []domain.RejectedOffer
	TotalDiscount decimal.Decimal
}

// Resolver turns eligible candidates into one consistent plan.
type Resolver struct {
	CurrencySymbol string
}

// SortCandidates orders by priority desc, discount desc, then offer id asc.
// The order is total, so ties never depend on input order.
func SortCandidates(cands []Candidate) []Candidate {
	out := append([]Candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Offer.Priority != b.Offer.Priority {
			return a.Offer.Priority > b.Offer.Priority
		}
		if c := a.Discount.Cmp(b.Discount); c != 0 {
			return c > 0
		}
		return a.Offer.ID < b.Offer.ID
	})
	return out
}

// Resolve admits candidates greedily: exclusivity first, then the count cap,
// then it drops the lowest-ranked admitted offers until the discount caps hold.
// Offers are included or excluded whole; no discount is truncated.
func (r Resolver) Resolve(cands []Candidate, subtotal decimal.Decimal, opts domain.Options) Resolution {
	sorted := SortCandidates(cands)
	res := Resolution{Plans: []domain.ApplicationPlan{}, Rejected: []domain.RejectedOffer{}}

	var grouped []Candidate
	groupWinner := map[string]Candidate{}
	for _, c := range sorted {
		g := c.Offer.ExclusivityGroup
		if g == "" {
			grouped = append(grouped, c)
			continue
		}
		if winner, taken := groupWinner[g]; taken {
			res.Rejected = append(res.Rejected, domain.RejectedOffer{
				OfferID:        c.Offer.ID,
				OfferName:      c.Offer.Name,
				Reason:         domain.ReasonExclusivityConflict,
				WinningOfferID: winner.Offer.ID,
				Detail:         fmt.Sprintf("cannot be combined with %q (exclusivity group %s)", winner.Offer.Name, g),
			})
			continue
		}
		groupWinner[g] = c
		grouped = append(grouped, c)
	}

	admitted := grouped
	if opts.MaxOffers != nil && len(grouped) > *opts.MaxOffers {
		limit := *opts.MaxOffers
		if limit < 0 {
			limit = 0
		}
		admitted = grouped[:limit]
		for _, c := range grouped[limit:] {
			res.Rejected = append(res.Rejected, domain.RejectedOffer{
				OfferID:   c.Offer.ID,
				OfferName: c.Offer.Name,
				Reason:    domain.ReasonMaxOffersExceeded,
				Detail:    fmt.Sprintf("at most %d offers can be combined", *opts.MaxOffers),
			})
		}
	}

	total := sumDiscount(admitted)
	for len(admitted) > 0 {
		detail, over := r.capViolation(total, subtotal, opts)
		if !over {
			break
		}
		last := admitted[len(admitted)-1]
		admitted = admitted[:len(admitted)-1]
		total = total.Sub(last.Discount)
		res.Rejected = append(res.Rejected, domain.RejectedOffer{
			OfferID:   last.Offer.ID,
			OfferName: last.Offer.Name,
			Reason:    domain.ReasonDiscountCapExceeded,
			Detail:    detail,
		})
	}

	for _, c := range admitted {
		res.Plans = append(res.Plans, domain.ApplicationPlan{
			OfferID:          c.Offer.ID,
			OfferName:        c.Offer.Name,
			OfferType:        c.Offer.Type(),
			Priority:         c.Offer.Priority,
			ExclusivityGroup: c.Offer.ExclusivityGroup,
			Discount:         c.Discount,
			Lines:            c.Lines,
		})
	}

	res.TotalDiscount = clampDiscount(sumDiscount(admitted), subtotal)
	return res
}

func (r Resolver) capViolation(total, subtotal decimal.Decimal, opts domain.Options) (string, bool) {
	if opts.MaxTotalDiscount != nil && total.GreaterThan(*opts.MaxTotalDiscount) {
		return fmt.Sprintf("combined discount would exceed the %s limit", domain.FormatMoney(r.CurrencySymbol, *opts.MaxTotalDiscount)), true
	}
	if opts.MaxDiscountPercent != nil && total.Mul(hundred).GreaterThan(subtotal.Mul(*opts.MaxDiscountPercent)) {
		return fmt.Sprintf("combined discount would exceed %s%% of the subtotal", opts.MaxDiscountPercent.String()), true
	}
	return "", false
}

var hundred = decimal.NewFromInt(100)

func sumDiscount(cands []Candidate) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cands {
		total = total.Add(c.Discount)
	}
	return total
}

// clampDiscount keeps the total inside [0, subtotal] so the payable amount is never negative.
func clampDiscount(total, subtotal decimal.Decimal) decimal.Decimal {
	if total.IsNegative() {
		return decimal.Zero
	}
	if total.GreaterThan(subtotal) {
		return subtotal
	}
	return total
}
