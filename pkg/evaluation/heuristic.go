package evaluation

import (
	"context"
	"strings"
)

// hollowMarkers are phrases that indicate a stub or non-answer rather
// than real content.
var hollowMarkers = []string{
	"todo",
	"not implemented",
	"placeholder",
	"fill this in",
	"i cannot help",
	"i can't help",
	"as an ai",
}

// HeuristicEvaluator scores responses offline from structural signals:
// length adequacy, term overlap with the query, and absence of hollow
// stub content. Cheap and deterministic; the default evaluator when no
// judge is configured.
type HeuristicEvaluator struct{}

// NewHeuristicEvaluator creates the structural scorer.
func NewHeuristicEvaluator() *HeuristicEvaluator {
	return &HeuristicEvaluator{}
}

// Evaluate scores the response. Never returns an error.
func (e *HeuristicEvaluator) Evaluate(_ context.Context, query, response string) (*Score, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return &Score{Overall: 0, Metrics: map[string]float64{
			"length":       0,
			"relevance":    0,
			"completeness": 0,
		}}, nil
	}

	length := lengthAdequacy(trimmed)
	relevance := termOverlap(query, trimmed)
	completeness := 1.0 - hollowPenalty(trimmed)

	overall := 0.3*length + 0.35*relevance + 0.35*completeness
	return &Score{
		Overall: clamp01(overall),
		Metrics: map[string]float64{
			"length":       length,
			"relevance":    relevance,
			"completeness": completeness,
		},
	}, nil
}

// lengthAdequacy saturates at a modest response size; longer is not
// penalized.
func lengthAdequacy(response string) float64 {
	words := len(strings.Fields(response))
	const adequate = 40
	if words >= adequate {
		return 1
	}
	return float64(words) / adequate
}

// termOverlap measures the fraction of significant query terms that
// reappear in the response.
func termOverlap(query, response string) float64 {
	queryTerms := significantTerms(query)
	if len(queryTerms) == 0 {
		return 1
	}

	responseLower := strings.ToLower(response)
	hits := 0
	for term := range queryTerms {
		if strings.Contains(responseLower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

// hollowPenalty charges 0.4 per distinct stub marker found, capped at 1.
func hollowPenalty(response string) float64 {
	responseLower := strings.ToLower(response)
	penalty := 0.0
	for _, marker := range hollowMarkers {
		if strings.Contains(responseLower, marker) {
			penalty += 0.4
		}
	}
	if penalty > 1 {
		return 1
	}
	return penalty
}

func significantTerms(query string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(query)) {
		word := strings.Trim(field, ".,;:!?\"'()[]{}")
		if len(word) >= 4 {
			terms[word] = struct{}{}
		}
	}
	return terms
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
