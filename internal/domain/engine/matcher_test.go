package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	"github.com/Victor-armando18/offer-engine/internal/domain/model"
)

type fakePredicates struct {
	result bool
	err    error
	data   map[string]any
}

func (f *fakePredicates) Evaluate(_ map[string]any, data map[string]any) (bool, error) {
	f.data = data
	return f.result, f.err
}

func TestMatcher_MissingConditions(t *testing.T) {
	cart := model.NewCart([]model.LineItem{
		line("tee", "100", 1, "tops"),
		line("socks", "50", 2, "accessories"),
	})

	cases := []struct {
		name string
		cond domain.Conditions
		user *domain.User
		want []string
	}{
		{
			name: "required sku",
			cond: domain.Conditions{RequiredItems: []domain.ItemRequirement{{SKU: "TEE", Quantity: 3}}},
			want: []string{"add 2 more of TEE"},
		},
		{
			name: "required category",
			cond: domain.Conditions{RequiredItems: []domain.ItemRequirement{{Category: "tops", Quantity: 2}}},
			want: []string{"add 1 more item from category tops"},
		},
		{
			name: "segment without user",
			cond: domain.Conditions{Segments: []string{"vip", "gold"}},
			want: []string{"sign in as a vip or gold customer"},
		},
		{
			name: "segment mismatch",
			cond: domain.Conditions{Segments: []string{"vip"}},
			user: &domain.User{ID: "u1", Segments: []string{"new"}},
			want: []string{"available to vip customers only"},
		},
		{
			name: "lifetime orders exceeded",
			cond: domain.Conditions{MaxLifetimeOrders: intPtr(0)},
			user: &domain.User{ID: "u1", LifetimeOrders: 3},
			want: []string{"available to customers with at most 0 previous orders"},
		},
		{
			name: "all conditions reported",
			cond: domain.Conditions{
				MinSubtotal:   dec("250.50"),
				RequiredItems: []domain.ItemRequirement{{SKU: "CAP", Quantity: 1}},
			},
			want: []string{"add ₹50.50 more to subtotal", "add 1 more of CAP"},
		},
		{
			name: "satisfied",
			cond: domain.Conditions{
				MinSubtotal:   dec("200"),
				RequiredItems: []domain.ItemRequirement{{Category: "accessories", Quantity: 2}},
				Segments:      []string{"vip"},
			},
			user: &domain.User{ID: "u1", Segments: []string{"vip"}},
		},
	}

	m := NewMatcher(nil, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := percentOffer("o", "5")
			o.Conditions = tc.cond
			c := ctx()
			c.User = tc.user
			res := m.Match(o, cart, c)
			if res.Excluded {
				t.Fatal("offer excluded")
			}
			if !reflect.DeepEqual(res.MissingConditions, tc.want) {
				t.Errorf("missing = %q, want %q", res.MissingConditions, tc.want)
			}
			if res.Eligible != (len(tc.want) == 0) {
				t.Errorf("eligible = %v", res.Eligible)
			}
		})
	}
}

func TestMatcher_CustomLogic(t *testing.T) {
	cart := model.NewCart([]model.LineItem{line("tee", "100", 1, "tops")})
	o := percentOffer("o", "5")
	o.Conditions.Logic = map[string]any{">=": []any{map[string]any{"var": "cart.subtotal"}, 500}}
	o.Conditions.LogicHint = "spend ₹500 on tops"

	t.Run("false uses hint", func(t *testing.T) {
		p := &fakePredicates{result: false}
		res := NewMatcher(p, nil).Match(o, cart, ctx())
		if res.Eligible || len(res.MissingConditions) != 1 || res.MissingConditions[0] != "spend ₹500 on tops" {
			t.Errorf("res = %+v", res)
		}
		if _, ok := p.data["cart"].(map[string]any); !ok {
			t.Errorf("predicate data has no cart: %v", p.data)
		}
	})

	t.Run("error counts as unmet", func(t *testing.T) {
		p := &fakePredicates{result: true, err: errors.New("boom")}
		if res := NewMatcher(p, nil).Match(o, cart, ctx()); res.Eligible {
			t.Error("eligible despite evaluator error")
		}
	})

	t.Run("true", func(t *testing.T) {
		p := &fakePredicates{result: true}
		if res := NewMatcher(p, nil).Match(o, cart, ctx()); !res.Eligible {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("no evaluator", func(t *testing.T) {
		res := NewMatcher(nil, nil).Match(o, cart, ctx())
		if res.Eligible || res.MissingConditions[0] != "spend ₹500 on tops" {
			t.Errorf("res = %+v", res)
		}
	})
}
