package features

import (
	"strings"
)

// Domain is the query category used to partition routing arms.
type Domain string

const (
	DomainCode      Domain = "code"
	DomainMath      Domain = "math"
	DomainCreative  Domain = "creative"
	DomainAnalysis  Domain = "analysis"
	DomainReasoning Domain = "reasoning"
	DomainGeneral   Domain = "general"
)

// Domains lists all known domains in classification priority order.
// The first domain whose keywords match wins.
var Domains = []Domain{
	DomainCode,
	DomainMath,
	DomainCreative,
	DomainAnalysis,
	DomainReasoning,
	DomainGeneral,
}

// QueryFeatures captures the signals extracted from a raw query.
// Structural fields feed the complexity score; only Domain and
// ComplexityScore are consumed by routing.
type QueryFeatures struct {
	Domain          Domain
	ComplexityScore float64
	TokenCount      int
	LineCount       int
	NestingDepth    int
	HasCodeBlock    bool
	HasMath         bool
}

// domainKeywords maps each domain to its trigger phrases. Matching is
// case-insensitive with word boundaries, same as routing rule triggers.
var domainKeywords = map[Domain][]string{
	DomainCode: {
		"function", "implement", "code", "debug", "refactor", "compile",
		"sort", "algorithm", "class", "api", "bug", "regex", "script",
	},
	DomainMath: {
		"calculate", "equation", "integral", "derivative", "proof",
		"theorem", "formula", "solve for", "probability",
	},
	DomainCreative: {
		"write a story", "poem", "creative", "fiction", "imagine",
		"character", "plot", "lyrics",
	},
	DomainAnalysis: {
		"analyze", "compare", "evaluate", "summarize", "assess",
		"pros and cons", "review",
	},
	DomainReasoning: {
		"why", "explain", "reason", "think through", "step by step",
		"deduce", "infer", "logical",
	},
}

// Extractor classifies queries into domains and scores their complexity.
// The zero value is ready to use.
type Extractor struct{}

// NewExtractor creates a query feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract derives features from a raw query. Empty input yields the
// general domain with zero complexity.
func (e *Extractor) Extract(query string) QueryFeatures {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return QueryFeatures{Domain: DomainGeneral}
	}

	f := QueryFeatures{
		Domain:       classifyDomain(trimmed),
		TokenCount:   len(strings.Fields(trimmed)),
		LineCount:    strings.Count(trimmed, "\n") + 1,
		NestingDepth: nestingDepth(trimmed),
		HasCodeBlock: strings.Contains(trimmed, "```") || strings.Contains(trimmed, "\t"),
		HasMath:      containsMathNotation(trimmed),
	}
	f.ComplexityScore = complexityScore(f)
	return f
}

// classifyDomain returns the first domain whose keyword set matches,
// in priority order, or general when nothing matches.
func classifyDomain(query string) Domain {
	queryLower := strings.ToLower(query)
	for _, domain := range Domains {
		for _, kw := range domainKeywords[domain] {
			if containsKeyword(queryLower, kw) {
				return domain
			}
		}
	}
	return DomainGeneral
}

// complexityScore combines normalized structural signals into [0,1].
// Each signal is monotonic: longer, deeper or more structured queries
// never score lower, all else equal.
func complexityScore(f QueryFeatures) float64 {
	tokens := normalize(float64(f.TokenCount), 400)
	lines := normalize(float64(f.LineCount), 40)
	depth := normalize(float64(f.NestingDepth), 8)

	score := 0.5*tokens + 0.25*lines + 0.25*depth
	if f.HasCodeBlock {
		score += 0.1
	}
	if f.HasMath {
		score += 0.1
	}
	return clamp01(score)
}

// normalize maps v into [0,1] against a saturation ceiling.
func normalize(v, ceiling float64) float64 {
	if v <= 0 {
		return 0
	}
	if v >= ceiling {
		return 1
	}
	return v / ceiling
}

// nestingDepth reports the maximum bracket nesting across the query.
func nestingDepth(s string) int {
	depth, maxDepth := 0, 0
	for _, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		}
	}
	return maxDepth
}

func containsMathNotation(s string) bool {
	for _, marker := range []string{"∑", "∫", "√", "≤", "≥", "±", "$$", "\\["} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// containsKeyword checks if the query contains the keyword phrase with
// word boundaries on both sides.
func containsKeyword(query, keyword string) bool {
	idx := strings.Index(query, keyword)
	if idx == -1 {
		return false
	}

	if idx > 0 && isWordChar(query[idx-1]) {
		return false
	}

	endIdx := idx + len(keyword)
	if endIdx < len(query) && isWordChar(query[endIdx]) {
		return false
	}

	return true
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
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
