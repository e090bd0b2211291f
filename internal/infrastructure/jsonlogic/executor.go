// Package jsonlogic evaluates offers' custom conditions with JSONLogic, extended
// with storefront operators.
package jsonlogic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Victor-armando18/offer-engine/internal/domain"
	jl "github.com/diegoholiveira/jsonlogic/v3"
)

type Executor struct {
	customOps map[string]Operator
}

// NewExecutor returns an executor with the storefront operators registered.
func NewExecutor() *Executor {
	e := &Executor{customOps: map[string]Operator{}}
	e.RegisterCustomOperator("round", Round)
	e.RegisterCustomOperator("category_qty", CategoryQty)
	e.RegisterCustomOperator("sku_qty", SKUQty)
	e.RegisterCustomOperator("has_segment", HasSegment)
	return e
}

func (e *Executor) RegisterCustomOperator(name string, op Operator) {
	e.customOps[name] = op
}

// Evaluate reports whether logic is truthy against data.
func (e *Executor) Evaluate(logic map[string]any, data map[string]any) (bool, error) {
	out, err := e.Execute(logic, data)
	if err != nil {
		return false, err
	}
	return truthy(out), nil
}

// Execute evaluates logic. Custom operators are computed first and replaced by
// their values, wherever they sit in the tree, then the remaining expression
// goes to the JSONLogic library.
func (e *Executor) Execute(logic map[string]any, data map[string]any) (any, error) {
	expanded, err := e.expand(logic, data)
	if err != nil {
		return nil, err
	}
	rule, ok := expanded.(map[string]any)
	if !ok {
		return expanded, nil
	}

	ruleJSON, err := json.Marshal(rule)
	if err != nil {
		return nil, domain.Wrap(domain.ErrRuleExecutionFailed, err)
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, domain.Wrap(domain.ErrRuleExecutionFailed, err)
	}

	var result bytes.Buffer
	if err := jl.Apply(bytes.NewReader(ruleJSON), bytes.NewReader(dataJSON), &result); err != nil {
		return nil, domain.Wrap(domain.ErrRuleExecutionFailed, err)
	}
	s := strings.TrimSpace(result.String())
	if s == "" || s == "null" {
		return nil, nil
	}
	var res any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&res); err != nil {
		return nil, domain.Wrap(domain.ErrRuleExecutionFailed, err)
	}
	return finalize(res), nil
}

func (e *Executor) expand(node any, data map[string]any) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		if len(v) == 1 {
			for name, raw := range v {
				if op, ok := e.customOps[name]; ok {
					args, err := e.args(raw, data)
					if err != nil {
						return nil, err
					}
					return op(data, args...), nil
				}
			}
		}
		out := make(map[string]any, len(v))
		for k, child := range v {
			x, err := e.expand(child, data)
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			x, err := e.expand(child, data)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	default:
		return v, nil
	}
}

// args evaluates a custom operator's arguments, each of which may itself be
// a JSONLogic expression.
func (e *Executor) args(raw any, data map[string]any) ([]any, error) {
	list, ok := raw.([]any)
	if !ok {
		list = []any{raw}
	}
	out := make([]any, len(list))
	for i, a := range list {
		sub, isRule := a.(map[string]any)
		if !isRule {
			out[i] = a
			continue
		}
		v, err := e.Execute(sub, data)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func finalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case []any:
		for i := range t {
			t[i] = finalize(t[i])
		}
	}
	return v
}

// truthy follows JSONLogic truthiness.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
