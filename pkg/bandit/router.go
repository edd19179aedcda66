// Package bandit implements the explore/exploit routing policy over the
// performance store.
package bandit

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/zen-systems/adaptgate/pkg/features"
	"github.com/zen-systems/adaptgate/pkg/store"
)

const (
	// DefaultExplorationRate is the uniform-random exploration probability.
	DefaultExplorationRate = 0.1

	// DefaultMinSamplesForConfidence is the per-domain sample floor below
	// which routing always explores.
	DefaultMinSamplesForConfidence = 10

	// confidenceSaturation is the sample count at which exploit
	// confidence reaches 1.0.
	confidenceSaturation = 100

	// exploreConfidence is the fixed confidence reported for
	// exploratory picks.
	exploreConfidence = 0.2
)

// Candidate is a configured provider/model pair eligible for routing.
type Candidate struct {
	Provider string
	Model    string
}

// Config holds the router's policy parameters.
type Config struct {
	ExplorationRate         float64
	MinSamplesForConfidence int
	QualityWeight           float64
	CostWeight              float64
	Candidates              []Candidate
}

// DefaultConfig returns the policy defaults with the given candidates.
func DefaultConfig(candidates []Candidate) Config {
	return Config{
		ExplorationRate:         DefaultExplorationRate,
		MinSamplesForConfidence: DefaultMinSamplesForConfidence,
		QualityWeight:           0.7,
		CostWeight:              0.3,
		Candidates:              candidates,
	}
}

// Decision is the ephemeral output of one routing call.
type Decision struct {
	ID          string
	Provider    string
	Model       string
	Domain      string
	Confidence  float64
	Explored    bool
	NoViableArm bool
	Reasons     []string
}

// ArmRef names an arm for diagnostics.
type ArmRef struct {
	Provider string
	Model    string
	Domain   string
}

// ArmReport is one side of a comparison.
type ArmReport struct {
	Provider     string
	Model        string
	Domain       string
	Known        bool
	Samples      int
	AvgQuality   float64
	AvgCost      float64
	AvgLatencyMs float64
}

// Comparison places two arms' observed metrics side by side. Read-only;
// no routing decision is derived here.
type Comparison struct {
	A ArmReport
	B ArmReport
}

// Router selects an arm per request, balancing exploration against the
// best-known candidate. Safe for concurrent use.
type Router struct {
	cfg   Config
	store *store.Store
	randF func() float64
	randN func(int) int
}

// Option configures a Router.
type Option func(*Router)

// WithRand sets the randomness source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(r *Router) {
		r.randF = rng.Float64
		r.randN = rng.Intn
	}
}

// New creates a router over the store. Invalid configuration is
// rejected here; routing itself never fails.
func New(s *store.Store, cfg Config, opts ...Option) (*Router, error) {
	if cfg.ExplorationRate < 0 || cfg.ExplorationRate > 1 {
		return nil, fmt.Errorf("exploration rate %f outside [0,1]", cfg.ExplorationRate)
	}
	if cfg.MinSamplesForConfidence < 0 {
		return nil, fmt.Errorf("min samples for confidence must be non-negative, got %d", cfg.MinSamplesForConfidence)
	}
	if cfg.QualityWeight < 0 || cfg.CostWeight < 0 {
		return nil, fmt.Errorf("score weights must be non-negative, got quality=%f cost=%f", cfg.QualityWeight, cfg.CostWeight)
	}

	r := &Router{
		cfg:   cfg,
		store: s,
		randF: rand.Float64,
		randN: rand.Intn,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ShouldExplore reports whether the next pick for these features should
// be exploratory: always during a domain's cold start, otherwise with
// probability ExplorationRate.
func (r *Router) ShouldExplore(f features.QueryFeatures) bool {
	if r.store.DomainSamples(string(f.Domain)) < r.cfg.MinSamplesForConfidence {
		return true
	}
	return r.randF() < r.cfg.ExplorationRate
}

// Route picks an arm for the query's domain. With no configured
// candidates and no observed arms it reports NoViableArm instead of
// failing; the caller decides the fallback.
func (r *Router) Route(f features.QueryFeatures) Decision {
	domain := string(f.Domain)
	known := r.store.ArmsForDomain(domain)

	if len(known) == 0 && len(r.cfg.Candidates) == 0 {
		return Decision{
			ID:          uuid.NewString(),
			Domain:      domain,
			NoViableArm: true,
			Reasons:     []string{"no candidates configured and no observed arms"},
		}
	}

	if r.ShouldExplore(f) {
		return r.explore(domain, known)
	}

	if len(known) == 0 {
		// Nothing learned for this domain yet; only exploration can act.
		return r.explore(domain, known)
	}
	return r.exploit(domain, known)
}

// explore picks uniformly among the domain's known arms, or among all
// configured candidates when the domain has no data yet.
func (r *Router) explore(domain string, known []store.ArmSnapshot) Decision {
	d := Decision{
		ID:         uuid.NewString(),
		Domain:     domain,
		Confidence: exploreConfidence,
		Explored:   true,
	}

	if len(known) > 0 {
		pick := known[r.randN(len(known))]
		d.Provider = pick.Key.Provider
		d.Model = pick.Key.Model
		d.Reasons = []string{fmt.Sprintf("explored among %d observed arms", len(known))}
		return d
	}

	pick := r.cfg.Candidates[r.randN(len(r.cfg.Candidates))]
	d.Provider = pick.Provider
	d.Model = pick.Model
	d.Reasons = []string{fmt.Sprintf("explored among %d configured candidates", len(r.cfg.Candidates))}
	return d
}

// exploit selects the maximum-scoring known arm. Score rewards quality
// and penalizes cost; ties break by lowest latency, then lexical
// provider/model order for determinism.
func (r *Router) exploit(domain string, known []store.ArmSnapshot) Decision {
	sort.Slice(known, func(i, j int) bool {
		si, sj := r.score(known[i].Stats), r.score(known[j].Stats)
		if si != sj {
			return si > sj
		}
		if known[i].Stats.AvgLatencyMs != known[j].Stats.AvgLatencyMs {
			return known[i].Stats.AvgLatencyMs < known[j].Stats.AvgLatencyMs
		}
		if known[i].Key.Provider != known[j].Key.Provider {
			return known[i].Key.Provider < known[j].Key.Provider
		}
		return known[i].Key.Model < known[j].Key.Model
	})

	best := known[0]
	return Decision{
		ID:         uuid.NewString(),
		Provider:   best.Key.Provider,
		Model:      best.Key.Model,
		Domain:     domain,
		Confidence: confidence(best.Stats.Samples()),
		Reasons: []string{fmt.Sprintf("exploited score=%.3f quality=%.3f cost=%.4f",
			r.score(best.Stats), best.Stats.AvgQuality, best.Stats.AvgCost)},
	}
}

// CompareProviders returns two arms' metrics side by side.
func (r *Router) CompareProviders(a, b ArmRef) Comparison {
	return Comparison{A: r.report(a), B: r.report(b)}
}

func (r *Router) report(ref ArmRef) ArmReport {
	rep := ArmReport{Provider: ref.Provider, Model: ref.Model, Domain: ref.Domain}
	stats, ok := r.store.GetStats(ref.Provider, ref.Model, ref.Domain)
	if !ok {
		return rep
	}
	rep.Known = true
	rep.Samples = stats.Samples()
	rep.AvgQuality = stats.AvgQuality
	rep.AvgCost = stats.AvgCost
	rep.AvgLatencyMs = stats.AvgLatencyMs
	return rep
}

// score is the exploit objective. The cost penalty is bounded so a
// pathological cost observation cannot dominate quality.
func (r *Router) score(st store.PerformanceStats) float64 {
	return r.cfg.QualityWeight*st.AvgQuality - r.cfg.CostWeight*(st.AvgCost/(1+st.AvgCost))
}

// confidence saturates to 1.0 as the sample count grows.
func confidence(samples int) float64 {
	c := float64(samples) / confidenceSaturation
	if c > 1 {
		return 1
	}
	return c
}
