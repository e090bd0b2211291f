// Package engine decides which offers apply to a cart: condition matching,
// discount calculation and conflict resolution. Everything here is pure
// computation over immutable inputs.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/model"
)

type Engine struct {
	matcher    *Matcher
	calculator *Calculator
	logger     *slog.Logger
}

func New(predicates PredicateEvaluator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		matcher:    NewMatcher(predicates, logger),
		calculator: NewCalculator(),
		logger:     logger,
	}
}

// Run evaluates offers against cart. Malformed offers are skipped with a
// warning; they never abort the evaluation of the rest.
func (e *Engine) Run(offers []domain.Offer, cart model.Cart, ectx domain.EvaluationContext, opts domain.Options) domain.EvaluationResult {
	res := domain.EmptyResult()
	res.Summary.Subtotal = cart.Subtotal()
	res.Summary.Payable = cart.Subtotal()
	if cart.IsEmpty() {
		return res
	}

	ordered := append([]domain.Offer(nil), offers...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].ID < ordered[j].ID
	})

	var cands []Candidate
	for _, o := range ordered {
		if err := o.Validate(); err != nil {
			e.logger.Warn("skipping malformed offer", "offer_id", o.ID, "error", err)
			res.RejectionLog = append(res.RejectionLog, logLine(o, domain.ReasonInvalidDefinition, "offer definition is invalid"))
			continue
		}

		m := e.matcher.Match(o, cart, ectx)
		if m.Excluded {
			continue
		}
		if !m.Eligible {
			res.PotentialOffers = append(res.PotentialOffers, potential(o, m.MissingConditions))
			res.RejectionLog = append(res.RejectionLog, logLine(o, domain.ReasonConditionsNotMet, strings.Join(m.MissingConditions, "; ")))
			continue
		}

		comp := e.calculator.Compute(o, cart)
		if len(comp.Missing) > 0 {
			res.PotentialOffers = append(res.PotentialOffers, potential(o, comp.Missing))
			res.RejectionLog = append(res.RejectionLog, logLine(o, domain.ReasonConditionsNotMet, strings.Join(comp.Missing, "; ")))
			continue
		}

		res.ApplicableOffers = append(res.ApplicableOffers, domain.ApplicableOffer{Offer: o, Discount: comp.Discount, Lines: comp.Lines})
		cands = append(cands, Candidate{Offer: o, Discount: comp.Discount, Lines: comp.Lines})
	}

	resolution := Resolver{CurrencySymbol: ectx.CurrencySymbol}.Resolve(cands, cart.Subtotal(), opts)
	res.Plans = resolution.Plans
	res.RejectedOffers = resolution.Rejected
	for _, r := range resolution.Rejected {
		detail := r.Detail
		if r.WinningOfferID != "" {
			detail = fmt.Sprintf("%s; winner %s", detail, r.WinningOfferID)
		}
		res.RejectionLog = append(res.RejectionLog, fmt.Sprintf("%s (%s) not applied [%s]: %s", r.OfferName, r.OfferID, r.Reason, detail))
	}

	res.TotalDiscount = resolution.TotalDiscount
	res.Summary.TotalDiscount = resolution.TotalDiscount
	res.Summary.Payable = cart.Subtotal().Sub(resolution.TotalDiscount)
	return res
}

func potential(o domain.Offer, missing []string) domain.PotentialOffer {
	return domain.PotentialOffer{
		OfferID:           o.ID,
		OfferName:         o.Name,
		Description:       o.Description,
		MissingConditions: append([]string(nil), missing...),
	}
}

func logLine(o domain.Offer, reason domain.RejectionReason, detail string) string {
	return fmt.Sprintf("%s (%s) not applied [%s]: %s", o.Name, o.ID, reason, detail)
}
