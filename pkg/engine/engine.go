// Package engine wires the feature extractor, bandit router, evaluation
// loop and state manager into the single surface the dispatch layer
// talks to. The engine never calls a provider itself: the caller routes,
// makes its own backend call, then records the outcome.
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/zen-systems/adaptgate/pkg/bandit"
	"github.com/zen-systems/adaptgate/pkg/config"
	"github.com/zen-systems/adaptgate/pkg/evaluation"
	"github.com/zen-systems/adaptgate/pkg/features"
	"github.com/zen-systems/adaptgate/pkg/state"
	"github.com/zen-systems/adaptgate/pkg/store"
)

// Engine is the adaptive routing core. Safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	extractor *features.Extractor
	store     *store.Store
	router    *bandit.Router
	loop      *evaluation.Loop
	state     *state.Manager

	evaluator evaluation.Evaluator
	rng       *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator overrides the evaluator selected by configuration.
func WithEvaluator(ev evaluation.Evaluator) Option {
	return func(e *Engine) {
		e.evaluator = ev
	}
}

// WithRand sets the router's randomness source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// New builds an engine from configuration, restoring any previous
// checkpoint. Misconfiguration fails here and nowhere later.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		extractor: features.NewExtractor(),
		store:     store.New(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.evaluator == nil {
		ev, err := buildEvaluator(cfg)
		if err != nil {
			return nil, err
		}
		e.evaluator = ev
	}

	candidates := make([]bandit.Candidate, 0, len(cfg.Candidates))
	for _, c := range cfg.Candidates {
		candidates = append(candidates, bandit.Candidate{Provider: c.Provider, Model: c.Model})
	}

	var routerOpts []bandit.Option
	if e.rng != nil {
		routerOpts = append(routerOpts, bandit.WithRand(e.rng))
	}
	router, err := bandit.New(e.store, bandit.Config{
		ExplorationRate:         cfg.ExplorationRate,
		MinSamplesForConfidence: cfg.MinSamplesForConfidence,
		QualityWeight:           cfg.QualityWeight,
		CostWeight:              cfg.CostWeight,
		Candidates:              candidates,
	}, routerOpts...)
	if err != nil {
		return nil, err
	}
	e.router = router

	loop, err := evaluation.NewLoop(e.evaluator, e.extractor, e.store, evaluation.LoopConfig{
		QualityThreshold: cfg.QualityThreshold,
		Timeout:          time.Duration(cfg.EvaluationTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	e.loop = loop

	manager, err := state.NewManager(e.store, state.Config{
		Path:           cfg.State.Path,
		AutoSave:       cfg.State.AutoSave,
		VersionsToKeep: cfg.State.VersionsToKeep,
	})
	if err != nil {
		return nil, err
	}
	e.state = manager

	if err := e.state.Load(); err != nil {
		return nil, err
	}
	return e, nil
}

// RouteQuery classifies the query and picks an arm for it.
func (e *Engine) RouteQuery(query string) (bandit.Decision, features.QueryFeatures) {
	f := e.extractor.Extract(query)
	return e.router.Route(f), f
}

// Record scores the backend's response against the routed arm and folds
// the outcome into the store, scheduling an autosave afterwards.
func (e *Engine) Record(ctx context.Context, decision bandit.Decision, query, response string, cost, latencyMs float64) (evaluation.Result, error) {
	if decision.NoViableArm || decision.Provider == "" {
		return evaluation.Result{}, fmt.Errorf("cannot record against a decision with no arm")
	}

	result := e.loop.EvaluateAndUpdate(ctx, query, response, decision.Provider, decision.Model, cost, latencyMs)
	e.state.ScheduleSave()
	return result, nil
}

// DetectForgetting reports whether the arm has regressed from its
// established baseline.
func (e *Engine) DetectForgetting(provider, model, domain string) bool {
	return e.loop.DetectCatastrophicForgetting(provider, model, domain)
}

// CompareProviders reports the listed arms' observed metrics.
func (e *Engine) CompareProviders(refs []bandit.ArmRef) []bandit.ArmReport {
	return e.loop.CompareProviders(refs)
}

// Stats exposes a copy of one arm's statistics.
func (e *Engine) Stats(provider, model, domain string) (store.PerformanceStats, bool) {
	return e.store.GetStats(provider, model, domain)
}

// State returns the engine's state manager, for explicit save/load and
// export/import.
func (e *Engine) State() *state.Manager {
	return e.state
}

// Close flushes pending state to disk when autosave is enabled.
func (e *Engine) Close() error {
	if !e.cfg.State.AutoSave {
		return nil
	}
	return e.state.Flush()
}

// buildEvaluator constructs the configured evaluator kind, failing fast
// on a missing API key.
func buildEvaluator(cfg *config.Config) (evaluation.Evaluator, error) {
	switch cfg.Evaluator.Kind {
	case "heuristic", "":
		return evaluation.NewHeuristicEvaluator(), nil
	case "anthropic":
		return evaluation.NewAnthropicJudge(cfg.AnthropicAPIKey, cfg.Evaluator.Model)
	case "openai":
		return evaluation.NewOpenAIJudge(cfg.OpenAIAPIKey, cfg.Evaluator.Model)
	case "gemini":
		return evaluation.NewGeminiJudge(cfg.GoogleAPIKey, cfg.Evaluator.Model)
	default:
		return nil, fmt.Errorf("unknown evaluator kind %q", cfg.Evaluator.Kind)
	}
}
