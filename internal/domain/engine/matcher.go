package engine

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/model"
)

// MatchResult is the outcome of condition matching for one offer. Excluded
// offers can never be satisfied by editing the cart and are left out of every
// result list.
type MatchResult struct {
	Eligible          bool
	Excluded          bool
	MissingConditions []string
}

type Matcher struct {
	predicates PredicateEvaluator
	logger     *slog.Logger
}

func NewMatcher(predicates PredicateEvaluator, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{predicates: predicates, logger: logger}
}

// Match evaluates every condition independently and ANDs them. Each failing
// condition contributes one human-readable entry.
func (m *Matcher) Match(offer domain.Offer, cart model.Cart, ectx domain.EvaluationContext) MatchResult {
	if offer.Status != domain.OfferActive || !offer.InWindow(ectx.Now) {
		return MatchResult{Excluded: true}
	}
	if len(offer.Conditions.Channels) > 0 && !contains(offer.Conditions.Channels, ectx.Channel) {
		return MatchResult{Excluded: true}
	}

	cond := offer.Conditions
	var missing []string

	if cond.MinSubtotal.IsPositive() && cart.Subtotal().LessThan(cond.MinSubtotal) {
		short := cond.MinSubtotal.Sub(cart.Subtotal())
		missing = append(missing, fmt.Sprintf("add %s more to subtotal", domain.FormatMoney(ectx.CurrencySymbol, short)))
	}

	for _, req := range cond.RequiredItems {
		want := req.Quantity
		if want < 1 {
			want = 1
		}
		if req.SKU != "" {
			if have := cart.QuantityOf(req.SKU); have < want {
				missing = append(missing, fmt.Sprintf("add %d more of %s", want-have, req.SKU))
			}
			continue
		}
		if have := cart.QuantityInCategory(req.Category); have < want {
			missing = append(missing, fmt.Sprintf("add %d more %s from category %s", want-have, plural(want-have, "item", "items"), req.Category))
		}
	}

	if len(cond.Segments) > 0 {
		switch {
		case ectx.User == nil:
			missing = append(missing, fmt.Sprintf("sign in as a %s customer", strings.Join(cond.Segments, " or ")))
		case !intersects(cond.Segments, ectx.User.Segments):
			missing = append(missing, fmt.Sprintf("available to %s customers only", strings.Join(cond.Segments, " or ")))
		}
	}

	if cond.MaxLifetimeOrders != nil {
		switch {
		case ectx.User == nil:
			missing = append(missing, "sign in to check order-history eligibility")
		case ectx.User.LifetimeOrders > *cond.MaxLifetimeOrders:
			missing = append(missing, fmt.Sprintf("available to customers with at most %d previous orders", *cond.MaxLifetimeOrders))
		}
	}

	if len(cond.Logic) > 0 && !m.logicHolds(offer, cart, ectx) {
		hint := cond.LogicHint
		if hint == "" {
			hint = "offer-specific condition not met"
		}
		missing = append(missing, hint)
	}

	return MatchResult{Eligible: len(missing) == 0, MissingConditions: missing}
}

func (m *Matcher) logicHolds(offer domain.Offer, cart model.Cart, ectx domain.EvaluationContext) bool {
	if m.predicates == nil {
		m.logger.Warn("offer has a custom condition but no predicate evaluator is configured", "offer_id", offer.ID)
		return false
	}
	ok, err := m.predicates.Evaluate(offer.Conditions.Logic, PredicateData(cart, ectx))
	if err != nil {
		m.logger.Warn("custom offer condition failed", "offer_id", offer.ID, "error", err)
		return false
	}
	return ok
}

// PredicateData is the document custom conditions are evaluated against.
func PredicateData(cart model.Cart, ectx domain.EvaluationContext) map[string]any {
	var user any
	if ectx.User != nil {
		segs := make([]any, len(ectx.User.Segments))
		for i, s := range ectx.User.Segments {
			segs[i] = s
		}
		user = map[string]any{
			"id":              ectx.User.ID,
			"segments":        segs,
			"lifetime_orders": ectx.User.LifetimeOrders,
		}
	}
	return map[string]any{
		"cart":    cart.ToMap(),
		"user":    user,
		"channel": ectx.Channel,
		"now":     ectx.Now.Unix(),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, s := range a {
		if contains(b, s) {
			return true
		}
	}
	return false
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
