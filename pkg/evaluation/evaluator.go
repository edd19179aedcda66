// Package evaluation scores completed responses and feeds the outcomes
// back into the performance store.
package evaluation

import "context"

// Score is an evaluator's verdict on one response. Overall is in [0,1];
// Metrics carries any sub-metrics the evaluator produces.
type Score struct {
	Overall float64
	Metrics map[string]float64
}

// Evaluator judges the quality of a response to a query. Implementations
// may be heuristic, a local model, or a remote judge; the loop only
// requires the numeric contract and respect for the context deadline.
type Evaluator interface {
	Evaluate(ctx context.Context, query, response string) (*Score, error)
}
