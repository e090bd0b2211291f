package engine

// PredicateEvaluator runs an offer's custom JSONLogic condition against the
// evaluation data. Implementations must not mutate data.
type PredicateEvaluator interface {
	Evaluate(logic map[string]any, data map[string]any) (bool, error)
}
