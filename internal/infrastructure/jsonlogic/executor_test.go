package jsonlogic

import (
	"errors"
	"testing"

	"github.com/Victor-armando18/offer-engine/internal/domain"
)

func cartData() map[string]any {
	return map[string]any{
		"cart": map[string]any{
			"subtotal": 1250.0,
			"items": []any{
				map[string]any{"product_id": "tee", "sku": "TEE-M", "quantity": 3, "tags": []any{"tops"}},
				map[string]any{"product_id": "jeans", "sku": "JEANS-32", "quantity": 1, "tags": []any{"denim"}},
			},
		},
		"user":    map[string]any{"id": "u1", "segments": []any{"vip"}},
		"channel": "web",
	}
}

func TestExecutor_Evaluate(t *testing.T) {
	ex := NewExecutor()
	cases := []struct {
		name  string
		logic map[string]any
		want  bool
	}{
		{"plain jsonlogic", map[string]any{">=": []any{map[string]any{"var": "cart.subtotal"}, 1000}}, true},
		{"category quantity", map[string]any{">=": []any{map[string]any{"category_qty": []any{"tops"}}, 3}}, true},
		{"sku quantity", map[string]any{"==": []any{map[string]any{"sku_qty": []any{"JEANS-32"}}, 2}}, false},
		{"segment", map[string]any{"has_segment": []any{"vip"}}, true},
		{"nested custom op", map[string]any{"and": []any{
			map[string]any{"has_segment": []any{"vip"}},
			map[string]any{"==": []any{map[string]any{"var": "channel"}, "web"}},
		}}, true},
		{"rounding", map[string]any{"==": []any{map[string]any{"round": []any{1.005, 1}}, 1.0}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ex.Evaluate(tc.logic, cartData())
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExecutor_CustomOperator(t *testing.T) {
	ex := NewExecutor()
	ex.RegisterCustomOperator("channel_is", func(data map[string]any, args ...any) any {
		return len(args) == 1 && data["channel"] == args[0]
	})
	ok, err := ex.Evaluate(map[string]any{"channel_is": "web"}, cartData())
	if err != nil || !ok {
		t.Errorf("channel_is = %v, %v", ok, err)
	}
}

func TestExecutor_InvalidRule(t *testing.T) {
	ex := NewExecutor()
	_, err := ex.Evaluate(map[string]any{"no_such_operator": []any{1}}, cartData())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, domain.ErrRuleExecutionFailed) {
		t.Errorf("error %v is not ErrRuleExecutionFailed", err)
	}
}
