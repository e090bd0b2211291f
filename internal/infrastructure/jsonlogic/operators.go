package jsonlogic

import (
	"encoding/json"
	"math"
)

// Operator is a custom JSONLogic operator. Args arrive already evaluated.
type Operator func(data map[string]any, args ...any) any

// Round rounds args[0] to args[1] decimal places (default 2).
func Round(_ map[string]any, args ...any) any {
	if len(args) == 0 {
		return 0.0
	}
	places := 2
	if len(args) > 1 {
		places = int(toFloat64(args[1]))
	}
	f := math.Pow(10, float64(places))
	return math.Round(toFloat64(args[0])*f) / f
}

// CategoryQty counts cart units tagged with category args[0].
func CategoryQty(data map[string]any, args ...any) any {
	if len(args) == 0 {
		return 0.0
	}
	want, _ := args[0].(string)
	total := 0.0
	for _, item := range cartItems(data) {
		tags, _ := item["tags"].([]any)
		for _, t := range tags {
			if t == want {
				total += toFloat64(item["quantity"])
				break
			}
		}
	}
	return total
}

// SKUQty counts cart units whose product id, variant id or SKU is args[0].
func SKUQty(data map[string]any, args ...any) any {
	if len(args) == 0 {
		return 0.0
	}
	want, _ := args[0].(string)
	total := 0.0
	for _, item := range cartItems(data) {
		if item["product_id"] == want || item["variant_id"] == want || item["sku"] == want {
			total += toFloat64(item["quantity"])
		}
	}
	return total
}

// HasSegment is true when the signed-in user carries segment args[0].
func HasSegment(data map[string]any, args ...any) any {
	if len(args) == 0 {
		return false
	}
	user, _ := data["user"].(map[string]any)
	segs, _ := user["segments"].([]any)
	for _, s := range segs {
		if s == args[0] {
			return true
		}
	}
	return false
}

func cartItems(data map[string]any) []map[string]any {
	cart, _ := data["cart"].(map[string]any)
	raw, _ := cart["items"].([]any)
	items := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

func toFloat64(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case json.Number:
		f, _ := val.Float64()
		return f
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return 0
	}
}
