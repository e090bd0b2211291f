package engine

import (
	"github.com/Victor-armando18/offer-engine/internal/infrastructure/jsonlogic"
)

// Operator is a custom JSONLogic operator usable in conditions.logic.
type Operator = jsonlogic.Operator

// NewPredicateEvaluator returns the JSONLogic evaluator with the built-in
// operators plus any extra ones given.
func NewPredicateEvaluator(extra map[string]Operator) *jsonlogic.Executor {
	ex := jsonlogic.NewExecutor()
	for name, op := range extra {
		ex.RegisterCustomOperator(name, op)
	}
	return ex
}
