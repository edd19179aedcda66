package evaluation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/zen-systems/adaptgate/pkg/bandit"
	"github.com/zen-systems/adaptgate/pkg/features"
	"github.com/zen-systems/adaptgate/pkg/store"
)

const (
	// DefaultQualityThreshold separates success from failure on the
	// overall score.
	DefaultQualityThreshold = 0.7

	// DefaultTimeout bounds a single evaluator call.
	DefaultTimeout = 30 * time.Second

	// ForgettingDelta is how far the trailing window's mean quality
	// must fall below the established baseline before an arm is
	// flagged as regressed.
	ForgettingDelta = 0.3
)

// Result is the outcome of evaluating one response.
type Result struct {
	Overall  float64
	Metrics  map[string]float64
	Success  bool
	TimedOut bool
}

// LoopConfig holds the loop's tunables. Zero values take defaults.
type LoopConfig struct {
	QualityThreshold float64
	Timeout          time.Duration
}

// Loop scores responses through an injected Evaluator and writes the
// outcomes into the performance store. It always produces a result:
// evaluator timeouts and errors become synthesized failures.
type Loop struct {
	evaluator Evaluator
	extractor *features.Extractor
	store     *store.Store
	threshold float64
	timeout   time.Duration
	debug     bool
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithDebug enables debug logging of synthesized failures.
func WithDebug(debug bool) LoopOption {
	return func(l *Loop) {
		l.debug = debug
	}
}

// NewLoop creates an evaluation loop. Misconfiguration fails here;
// nothing past construction returns an error to the routing caller.
func NewLoop(evaluator Evaluator, extractor *features.Extractor, s *store.Store, cfg LoopConfig, opts ...LoopOption) (*Loop, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.QualityThreshold == 0 {
		cfg.QualityThreshold = DefaultQualityThreshold
	}
	if cfg.QualityThreshold < 0 || cfg.QualityThreshold > 1 {
		return nil, fmt.Errorf("quality threshold %f outside [0,1]", cfg.QualityThreshold)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("evaluation timeout must be positive, got %v", cfg.Timeout)
	}

	l := &Loop{
		evaluator: evaluator,
		extractor: extractor,
		store:     s,
		threshold: cfg.QualityThreshold,
		timeout:   cfg.Timeout,
	}
	if l.extractor == nil {
		l.extractor = features.NewExtractor()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

type evalOutcome struct {
	score *Score
	err   error
}

// Evaluate scores one response, bounded by the configured timeout. A
// timeout, an evaluator error, or a malformed score all synthesize a
// failing result rather than surfacing as an error.
func (l *Loop) Evaluate(ctx context.Context, query, response, provider, model string) Result {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	// Buffered so a late evaluator return after timeout does not leak
	// the goroutine.
	ch := make(chan evalOutcome, 1)
	go func() {
		score, err := l.evaluator.Evaluate(ctx, query, response)
		ch <- evalOutcome{score: score, err: err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			if l.debug {
				log.Printf("[evaluation] %s/%s evaluator error: %v", provider, model, out.err)
			}
			return Result{Metrics: map[string]float64{}}
		}
		if out.score == nil || out.score.Overall < 0 || out.score.Overall > 1 {
			if l.debug {
				log.Printf("[evaluation] %s/%s evaluator returned invalid score", provider, model)
			}
			return Result{Metrics: map[string]float64{}}
		}
		metrics := out.score.Metrics
		if metrics == nil {
			metrics = map[string]float64{}
		}
		return Result{
			Overall: out.score.Overall,
			Metrics: metrics,
			Success: out.score.Overall >= l.threshold,
		}
	case <-ctx.Done():
		if l.debug {
			log.Printf("[evaluation] %s/%s timed out after %v", provider, model, l.timeout)
		}
		return Result{Metrics: map[string]float64{}, TimedOut: true}
	}
}

// EvaluateAndUpdate scores the response and records the outcome against
// the arm derived from the query's features, as one logical step: the
// store sees exactly one fully-applied update per call.
func (l *Loop) EvaluateAndUpdate(ctx context.Context, query, response, provider, model string, cost, latencyMs float64) Result {
	f := l.extractor.Extract(query)
	result := l.Evaluate(ctx, query, response, provider, model)
	l.store.UpdateStats(provider, model, string(f.Domain), f.ComplexityScore, result.Success, cost, result.Overall, latencyMs)
	return result
}

// DetectCatastrophicForgetting reports whether the arm's recent
// performance has collapsed relative to its established baseline.
// Conservative: arms that never crossed the baseline sample threshold,
// or whose trailing window is not yet full, are never flagged.
func (l *Loop) DetectCatastrophicForgetting(provider, model, domain string) bool {
	baseline, recentMean, ready := l.store.ForgettingSignal(provider, model, domain)
	if !ready {
		return false
	}
	return baseline-recentMean >= ForgettingDelta
}

// CompareProviders reports each listed arm's observed metrics, for
// diagnostics across many arms at once.
func (l *Loop) CompareProviders(refs []bandit.ArmRef) []bandit.ArmReport {
	reports := make([]bandit.ArmReport, 0, len(refs))
	for _, ref := range refs {
		rep := bandit.ArmReport{Provider: ref.Provider, Model: ref.Model, Domain: ref.Domain}
		if stats, ok := l.store.GetStats(ref.Provider, ref.Model, ref.Domain); ok {
			rep.Known = true
			rep.Samples = stats.Samples()
			rep.AvgQuality = stats.AvgQuality
			rep.AvgCost = stats.AvgCost
			rep.AvgLatencyMs = stats.AvgLatencyMs
		}
		reports = append(reports, rep)
	}
	return reports
}
