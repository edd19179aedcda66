// Package store holds per-arm performance statistics for adaptive routing.
// An arm is a (provider, model, domain) triple; the store is pure data and
// arithmetic with per-arm locking and no I/O.
package store

import (
	"sort"
	"sync"
)

const (
	// Alpha is the EMA retention weight: each observation contributes
	// 10%, prior history 90%. Stability over responsiveness — a single
	// bad sample must not swing routing.
	Alpha = 0.9

	// QualityPrior seeds quality-derived EMAs before the first observation.
	QualityPrior = 0.5

	// RecentWindow is the number of trailing quality observations kept
	// per arm for regression detection.
	RecentWindow = 10

	// BaselineMinSamples is how many samples an arm needs before its
	// quality baseline is considered established.
	BaselineMinSamples = 20

	// rewardQualityWeight blends quality and the binary outcome into
	// the Mean reward estimate.
	rewardQualityWeight = 0.7
)

// ArmKey identifies a routing arm.
type ArmKey struct {
	Provider string
	Model    string
	Domain   string
}

// PerformanceStats holds one arm's counters and smoothed estimates.
// Mutated only through Store.UpdateStats.
type PerformanceStats struct {
	Success      int
	Failure      int
	Mean         float64
	AvgQuality   float64
	AvgCost      float64
	AvgLatencyMs float64
}

// Samples reports the total observation count.
func (s PerformanceStats) Samples() int {
	return s.Success + s.Failure
}

// ArmSnapshot pairs an arm key with a copy of its stats, for bulk
// export and restore.
type ArmSnapshot struct {
	Key   ArmKey
	Stats PerformanceStats
}

type armEntry struct {
	mu          sync.Mutex
	stats       PerformanceStats
	recent      []float64
	baseline    float64
	baselineSet bool
}

// Store maps arms to their statistics. Lookup and insertion are guarded
// by a read-write mutex; field updates take only the arm's own lock, so
// writes to one arm never block reads of another.
type Store struct {
	mu   sync.RWMutex
	arms map[ArmKey]*armEntry
}

// New creates an empty performance store.
func New() *Store {
	return &Store{arms: make(map[ArmKey]*armEntry)}
}

// UpdateStats records one observed outcome for an arm, creating it on
// first sight. Counters increment, EMAs blend in the observation, and
// the arm's regression bookkeeping advances. Never fails.
func (s *Store) UpdateStats(provider, model, domain string, complexity float64, success bool, cost, quality, latencyMs float64) {
	entry := s.entry(ArmKey{Provider: provider, Model: model, Domain: domain})

	entry.mu.Lock()
	defer entry.mu.Unlock()

	st := &entry.stats
	first := st.Samples() == 0

	outcome := 0.0
	if success {
		st.Success++
		outcome = 1.0
	} else {
		st.Failure++
	}

	st.AvgQuality = ema(st.AvgQuality, quality)
	reward := rewardQualityWeight*quality + (1-rewardQualityWeight)*outcome
	st.Mean = ema(st.Mean, reward)
	if first {
		// Cost and latency have no neutral prior; the first sample seeds them.
		st.AvgCost = cost
		st.AvgLatencyMs = latencyMs
	} else {
		st.AvgCost = ema(st.AvgCost, cost)
		st.AvgLatencyMs = ema(st.AvgLatencyMs, latencyMs)
	}

	if len(entry.recent) == RecentWindow {
		copy(entry.recent, entry.recent[1:])
		entry.recent[RecentWindow-1] = quality
	} else {
		entry.recent = append(entry.recent, quality)
	}

	if st.Samples() >= BaselineMinSamples {
		if !entry.baselineSet || st.AvgQuality > entry.baseline {
			entry.baseline = st.AvgQuality
			entry.baselineSet = true
		}
	}
}

// GetStats returns a copy of the arm's stats, or false for an arm that
// has never been observed. Callers holding the copy are unaffected by
// concurrent updates.
func (s *Store) GetStats(provider, model, domain string) (PerformanceStats, bool) {
	s.mu.RLock()
	entry, ok := s.arms[ArmKey{Provider: provider, Model: model, Domain: domain}]
	s.mu.RUnlock()
	if !ok {
		return PerformanceStats{}, false
	}

	entry.mu.Lock()
	stats := entry.stats
	entry.mu.Unlock()
	return stats, true
}

// ForgettingSignal exposes the inputs for regression detection: the
// arm's established quality baseline and the mean of its trailing
// window. ready is false until the baseline is established and the
// window is full.
func (s *Store) ForgettingSignal(provider, model, domain string) (baseline, recentMean float64, ready bool) {
	s.mu.RLock()
	entry, ok := s.arms[ArmKey{Provider: provider, Model: model, Domain: domain}]
	s.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if !entry.baselineSet || len(entry.recent) < RecentWindow {
		return 0, 0, false
	}

	sum := 0.0
	for _, q := range entry.recent {
		sum += q
	}
	return entry.baseline, sum / float64(len(entry.recent)), true
}

// DomainSamples reports the total sample count across all arms of a domain.
func (s *Store) DomainSamples(domain string) int {
	total := 0
	for _, snap := range s.snapshotDomain(domain) {
		total += snap.Stats.Samples()
	}
	return total
}

// ArmsForDomain returns the known arms of a domain in lexical
// provider/model order, for deterministic iteration.
func (s *Store) ArmsForDomain(domain string) []ArmSnapshot {
	return s.snapshotDomain(domain)
}

// Export copies the whole store as sorted snapshots.
func (s *Store) Export() []ArmSnapshot {
	return s.snapshotDomain("")
}

// Restore replaces the store's contents with the given snapshots.
// Regression bookkeeping starts fresh; windows and baselines are
// runtime state, not part of a checkpoint.
func (s *Store) Restore(snaps []ArmSnapshot) {
	arms := make(map[ArmKey]*armEntry, len(snaps))
	for _, snap := range snaps {
		arms[snap.Key] = &armEntry{stats: snap.Stats}
	}

	s.mu.Lock()
	s.arms = arms
	s.mu.Unlock()
}

// snapshotDomain copies stats for every arm of a domain; an empty
// domain selects all arms.
func (s *Store) snapshotDomain(domain string) []ArmSnapshot {
	s.mu.RLock()
	entries := make(map[ArmKey]*armEntry, len(s.arms))
	for key, entry := range s.arms {
		if domain == "" || key.Domain == domain {
			entries[key] = entry
		}
	}
	s.mu.RUnlock()

	snaps := make([]ArmSnapshot, 0, len(entries))
	for key, entry := range entries {
		entry.mu.Lock()
		snaps = append(snaps, ArmSnapshot{Key: key, Stats: entry.stats})
		entry.mu.Unlock()
	}

	sort.Slice(snaps, func(i, j int) bool {
		a, b := snaps[i].Key, snaps[j].Key
		if a.Provider != b.Provider {
			return a.Provider < b.Provider
		}
		if a.Model != b.Model {
			return a.Model < b.Model
		}
		return a.Domain < b.Domain
	})
	return snaps
}

// entry returns the arm's entry, creating it lazily.
func (s *Store) entry(key ArmKey) *armEntry {
	s.mu.RLock()
	entry, ok := s.arms[key]
	s.mu.RUnlock()
	if ok {
		return entry
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.arms[key]; ok {
		return entry
	}
	entry = &armEntry{stats: PerformanceStats{Mean: QualityPrior, AvgQuality: QualityPrior}}
	s.arms[key] = entry
	return entry
}

func ema(old, observed float64) float64 {
	return Alpha*old + (1-Alpha)*observed
}
