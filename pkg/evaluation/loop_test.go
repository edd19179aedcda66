package evaluation

import (
	"context"
	"testing"
	"time"

	"github.com/zen-systems/adaptgate/pkg/bandit"
	"github.com/zen-systems/adaptgate/pkg/features"
	"github.com/zen-systems/adaptgate/pkg/store"
)

type fixedEvaluator struct {
	overall float64
	err     error
	delay   time.Duration
}

func (e *fixedEvaluator) Evaluate(ctx context.Context, _, _ string) (*Score, error) {
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}
	return &Score{Overall: e.overall, Metrics: map[string]float64{"relevance": e.overall}}, nil
}

func newTestLoop(t *testing.T, s *store.Store, ev Evaluator, cfg LoopConfig) *Loop {
	t.Helper()
	l, err := NewLoop(ev, features.NewExtractor(), s, cfg)
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	return l
}

func TestLoopConfigValidation(t *testing.T) {
	s := store.New()
	ev := &fixedEvaluator{overall: 0.8}

	if _, err := NewLoop(nil, nil, s, LoopConfig{}); err == nil {
		t.Fatalf("expected error for nil evaluator")
	}
	if _, err := NewLoop(ev, nil, nil, LoopConfig{}); err == nil {
		t.Fatalf("expected error for nil store")
	}
	if _, err := NewLoop(ev, nil, s, LoopConfig{QualityThreshold: 1.5}); err == nil {
		t.Fatalf("expected error for threshold out of range")
	}
	if _, err := NewLoop(ev, nil, s, LoopConfig{Timeout: -time.Second}); err == nil {
		t.Fatalf("expected error for negative timeout")
	}
}

func TestEvaluateSuccessThreshold(t *testing.T) {
	s := store.New()

	l := newTestLoop(t, s, &fixedEvaluator{overall: 0.75}, LoopConfig{})
	res := l.Evaluate(context.Background(), "q", "r", "a", "m")
	if !res.Success || res.Overall != 0.75 {
		t.Fatalf("expected success at 0.75 with default threshold, got %+v", res)
	}

	l = newTestLoop(t, s, &fixedEvaluator{overall: 0.65}, LoopConfig{})
	res = l.Evaluate(context.Background(), "q", "r", "a", "m")
	if res.Success {
		t.Fatalf("expected failure below threshold, got %+v", res)
	}

	l = newTestLoop(t, s, &fixedEvaluator{overall: 0.65}, LoopConfig{QualityThreshold: 0.6})
	res = l.Evaluate(context.Background(), "q", "r", "a", "m")
	if !res.Success {
		t.Fatalf("expected success with lowered threshold, got %+v", res)
	}
}

func TestEvaluateTimeoutSynthesizesFailure(t *testing.T) {
	s := store.New()
	slow := &fixedEvaluator{overall: 0.9, delay: 500 * time.Millisecond}
	l := newTestLoop(t, s, slow, LoopConfig{Timeout: 20 * time.Millisecond})

	start := time.Now()
	res := l.Evaluate(context.Background(), "q", "r", "a", "m")
	if time.Since(start) > 200*time.Millisecond {
		t.Fatalf("evaluate did not respect timeout")
	}
	if res.Success || res.Overall != 0 || !res.TimedOut {
		t.Fatalf("expected synthesized timeout failure, got %+v", res)
	}
}

func TestEvaluateErrorSynthesizesFailure(t *testing.T) {
	s := store.New()
	l := newTestLoop(t, s, &fixedEvaluator{err: context.DeadlineExceeded}, LoopConfig{})

	res := l.Evaluate(context.Background(), "q", "r", "a", "m")
	if res.Success || res.Overall != 0 {
		t.Fatalf("expected synthesized failure, got %+v", res)
	}
}

func TestEvaluateAndUpdateRecordsRoutedArmOnly(t *testing.T) {
	s := store.New()
	l := newTestLoop(t, s, &fixedEvaluator{overall: 0.8}, LoopConfig{})

	query := "implement a sort function"
	res := l.EvaluateAndUpdate(context.Background(), query, "here is the code", "anthropic", "m1", 0.01, 700)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	stats, ok := s.GetStats("anthropic", "m1", "code")
	if !ok || stats.Samples() != 1 || stats.Success != 1 {
		t.Fatalf("expected one success on the code arm, got %+v", stats)
	}
	if _, ok := s.GetStats("anthropic", "m1", "general"); ok {
		t.Fatalf("update leaked into another domain")
	}
}

func TestEvaluateAndUpdateOnTimeoutStillUpdates(t *testing.T) {
	s := store.New()
	slow := &fixedEvaluator{overall: 0.9, delay: 500 * time.Millisecond}
	l := newTestLoop(t, s, slow, LoopConfig{Timeout: 20 * time.Millisecond})

	l.EvaluateAndUpdate(context.Background(), "implement parsing code", "resp", "a", "m", 0.01, 100)

	stats, ok := s.GetStats("a", "m", "code")
	if !ok || stats.Failure != 1 || stats.Success != 0 {
		t.Fatalf("timeout must record one failure, got %+v", stats)
	}
}

func TestDetectCatastrophicForgetting(t *testing.T) {
	s := store.New()
	l := newTestLoop(t, s, &fixedEvaluator{overall: 0.9}, LoopConfig{})

	// Never-confident arm is not flagged.
	for i := 0; i < 5; i++ {
		s.UpdateStats("a", "m", "code", 0.5, false, 0.01, 0.2, 500)
	}
	if l.DetectCatastrophicForgetting("a", "m", "code") {
		t.Fatalf("arm below baseline threshold must not be flagged")
	}

	// Established high baseline, then sustained collapse.
	for i := 0; i < 25; i++ {
		s.UpdateStats("b", "m", "code", 0.5, true, 0.01, 0.9, 500)
	}
	if l.DetectCatastrophicForgetting("b", "m", "code") {
		t.Fatalf("healthy arm must not be flagged")
	}
	for i := 0; i < 20; i++ {
		s.UpdateStats("b", "m", "code", 0.5, false, 0.01, 0.4, 500)
	}
	if !l.DetectCatastrophicForgetting("b", "m", "code") {
		t.Fatalf("collapsed arm must be flagged")
	}

	// Training a different domain afterwards does not disturb the verdict
	// or the original domain's quality.
	before, _ := s.GetStats("b", "m", "code")
	for i := 0; i < 30; i++ {
		s.UpdateStats("b", "m", "creative", 0.5, true, 0.01, 0.95, 500)
	}
	after, _ := s.GetStats("b", "m", "code")
	if after.AvgQuality != before.AvgQuality {
		t.Fatalf("cross-domain training changed code quality: %f vs %f", after.AvgQuality, before.AvgQuality)
	}
	if !l.DetectCatastrophicForgetting("b", "m", "code") {
		t.Fatalf("verdict changed by cross-domain training")
	}
	if l.DetectCatastrophicForgetting("b", "m", "creative") {
		t.Fatalf("healthy creative arm must not be flagged")
	}
}

func TestOscillatingArmNotFlagged(t *testing.T) {
	s := store.New()
	l := newTestLoop(t, s, &fixedEvaluator{overall: 0.9}, LoopConfig{})

	// Degrading then improving then degrading, never a sustained collapse.
	qualities := []float64{0.8, 0.6, 0.8, 0.6, 0.8, 0.6, 0.8, 0.6, 0.8, 0.6}
	for i := 0; i < 4; i++ {
		for _, q := range qualities {
			s.UpdateStats("c", "m", "code", 0.5, q >= 0.7, 0.01, q, 500)
		}
	}
	if l.DetectCatastrophicForgetting("c", "m", "code") {
		t.Fatalf("oscillating arm must not be flagged")
	}
}

func TestCompareProvidersBatch(t *testing.T) {
	s := store.New()
	s.UpdateStats("a", "m1", "code", 0.5, true, 0.01, 0.9, 500)
	l := newTestLoop(t, s, &fixedEvaluator{overall: 0.9}, LoopConfig{})

	reports := l.CompareProviders([]bandit.ArmRef{
		{Provider: "a", Model: "m1", Domain: "code"},
		{Provider: "b", Model: "m2", Domain: "code"},
	})
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if !reports[0].Known || reports[0].Samples != 1 {
		t.Fatalf("expected known first arm: %+v", reports[0])
	}
	if reports[1].Known {
		t.Fatalf("expected unknown second arm: %+v", reports[1])
	}
}
