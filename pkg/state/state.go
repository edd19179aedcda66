// Package state checkpoints the performance store to disk and restores
// it. The store itself knows nothing about files or formats.
package state

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zen-systems/adaptgate/pkg/store"
)

// Version identifies the snapshot schema. A mismatch on load is
// incompatible: the store starts empty, never a guessed migration.
const Version = 1

// DefaultDebounce is how long after the last ScheduleSave call the
// autosave actually runs.
const DefaultDebounce = 2 * time.Second

// Snapshot is the durable form of the whole store.
type Snapshot struct {
	Version int         `json:"version"`
	SavedAt int64       `json:"savedAt"`
	Arms    []ArmRecord `json:"arms"`
}

// ArmRecord is one persisted arm.
type ArmRecord struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Domain   string      `json:"domain"`
	Stats    StatsRecord `json:"stats"`
}

// StatsRecord mirrors store.PerformanceStats on disk.
type StatsRecord struct {
	Success      int     `json:"success"`
	Failure      int     `json:"failure"`
	Mean         float64 `json:"mean"`
	AvgQuality   float64 `json:"avgQuality"`
	AvgCost      float64 `json:"avgCost"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
}

// Config holds the manager's persistence settings.
type Config struct {
	Path           string
	AutoSave       bool
	VersionsToKeep int
	Debounce       time.Duration
}

// Manager persists and restores a store. Saves are atomic
// (write-temp-then-rename) and hold no store lock while disk I/O is in
// flight; the snapshot is taken first under the store's own short locks.
type Manager struct {
	store    *store.Store
	path     string
	autoSave bool
	keep     int
	debounce time.Duration

	mu    sync.Mutex // serializes file writes and guards the timer
	timer *time.Timer
}

// NewManager creates a state manager for the store.
func NewManager(s *store.Store, cfg Config) (*Manager, error) {
	if s == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if cfg.VersionsToKeep < 0 {
		return nil, fmt.Errorf("versions to keep must be non-negative, got %d", cfg.VersionsToKeep)
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Debounce < 0 {
		return nil, fmt.Errorf("debounce must be positive, got %v", cfg.Debounce)
	}

	return &Manager{
		store:    s,
		path:     cfg.Path,
		autoSave: cfg.AutoSave,
		keep:     cfg.VersionsToKeep,
		debounce: cfg.Debounce,
	}, nil
}

// Save checkpoints the store to the configured path, rotating prior
// checkpoints up to the retention count.
func (m *Manager) Save() error {
	snapshot := m.snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.rotate(); err != nil {
		return err
	}
	return writeAtomic(m.path, snapshot, true)
}

// Load restores the store from the configured path. A missing file
// means "start empty". A corrupt or incompatible file is logged and
// discarded, also starting empty; Load never fails for either.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	snaps, err := decodeSnapshot(data)
	if err != nil {
		log.Printf("[state] discarding checkpoint %s: %v", m.path, err)
		m.store.Restore(nil)
		return nil
	}

	m.store.Restore(snaps)
	return nil
}

// ExportToFile writes a snapshot to an explicit path, independent of
// the manager's own checkpoint. Formats: "json" (indented),
// "json-compact".
func (m *Manager) ExportToFile(path, format string) error {
	var indent bool
	switch format {
	case "json", "":
		indent = true
	case "json-compact":
		indent = false
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}

	return writeAtomic(path, m.snapshot(), indent)
}

// ImportFromFile replaces the store's contents from an explicit
// snapshot file. Unlike Load, problems here are reported: an explicit
// migration should not silently produce an empty store.
func (m *Manager) ImportFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}

	snaps, err := decodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("invalid snapshot %s: %w", path, err)
	}

	m.store.Restore(snaps)
	return nil
}

// ScheduleSave requests a debounced background save. No-op unless
// autosave is enabled. Repeated calls within the debounce window
// coalesce into one write.
func (m *Manager) ScheduleSave() {
	if !m.autoSave {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Reset(m.debounce)
		return
	}
	m.timer = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		m.timer = nil
		m.mu.Unlock()
		if err := m.Save(); err != nil {
			log.Printf("[state] autosave failed: %v", err)
		}
	})
}

// Flush cancels any pending autosave and saves immediately.
func (m *Manager) Flush() error {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
	return m.Save()
}

// snapshot captures the store under its own short locks, before any I/O.
func (m *Manager) snapshot() Snapshot {
	exported := m.store.Export()
	arms := make([]ArmRecord, 0, len(exported))
	for _, snap := range exported {
		arms = append(arms, ArmRecord{
			Provider: snap.Key.Provider,
			Model:    snap.Key.Model,
			Domain:   snap.Key.Domain,
			Stats: StatsRecord{
				Success:      snap.Stats.Success,
				Failure:      snap.Stats.Failure,
				Mean:         snap.Stats.Mean,
				AvgQuality:   snap.Stats.AvgQuality,
				AvgCost:      snap.Stats.AvgCost,
				AvgLatencyMs: snap.Stats.AvgLatencyMs,
			},
		})
	}
	return Snapshot{Version: Version, SavedAt: time.Now().UnixMilli(), Arms: arms}
}

// rotate shifts prior checkpoints to path.1 .. path.N and drops the
// oldest beyond the retention count. With zero retention the current
// file is simply overwritten by the rename in writeAtomic.
func (m *Manager) rotate() error {
	if m.keep == 0 {
		return nil
	}
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		return nil
	}

	oldest := fmt.Sprintf("%s.%d", m.path, m.keep)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to drop oldest checkpoint: %w", err)
	}
	for i := m.keep - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", m.path, i)
		if _, err := os.Stat(from); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(from, fmt.Sprintf("%s.%d", m.path, i+1)); err != nil {
			return fmt.Errorf("failed to rotate checkpoint: %w", err)
		}
	}
	return os.Rename(m.path, m.path+".1")
}

// writeAtomic marshals the snapshot to a temp file in the target
// directory, then renames it over the destination so a crash mid-write
// never corrupts the previous good checkpoint.
func writeAtomic(path string, snapshot Snapshot, indent bool) error {
	var data []byte
	var err error
	if indent {
		data, err = json.MarshalIndent(snapshot, "", "  ")
	} else {
		data, err = json.Marshal(snapshot)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// decodeSnapshot validates the wire form strictly: wrong version,
// mistyped fields, unnamed arms or out-of-range stats are all
// incompatible.
func decodeSnapshot(data []byte) ([]store.ArmSnapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("corrupt snapshot: %w", err)
	}
	if snapshot.Version != Version {
		return nil, fmt.Errorf("incompatible snapshot version %d (want %d)", snapshot.Version, Version)
	}

	snaps := make([]store.ArmSnapshot, 0, len(snapshot.Arms))
	for i, arm := range snapshot.Arms {
		if arm.Provider == "" || arm.Model == "" || arm.Domain == "" {
			return nil, fmt.Errorf("arm %d: missing provider/model/domain", i)
		}
		st := arm.Stats
		if st.Success < 0 || st.Failure < 0 {
			return nil, fmt.Errorf("arm %d: negative counters", i)
		}
		if st.AvgQuality < 0 || st.AvgQuality > 1 {
			return nil, fmt.Errorf("arm %d: avgQuality %f out of range", i, st.AvgQuality)
		}
		if st.AvgCost < 0 || st.AvgLatencyMs < 0 {
			return nil, fmt.Errorf("arm %d: negative cost or latency", i)
		}
		snaps = append(snaps, store.ArmSnapshot{
			Key: store.ArmKey{Provider: arm.Provider, Model: arm.Model, Domain: arm.Domain},
			Stats: store.PerformanceStats{
				Success:      st.Success,
				Failure:      st.Failure,
				Mean:         st.Mean,
				AvgQuality:   st.AvgQuality,
				AvgCost:      st.AvgCost,
				AvgLatencyMs: st.AvgLatencyMs,
			},
		})
	}
	return snaps, nil
}
