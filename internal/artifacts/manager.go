// Package artifacts tracks the ephemeral resources a run creates and
// reclaims them after a bounded time-to-live. Cleanup is decoupled from
// reporting: operators get a guaranteed window to inspect failed-run
// artifacts before automatic reclamation, and retain-on-failure defers
// deletion until an explicit acknowledgment.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tupyy/platform-verifier/internal/config"
)

// Artifact describes one ephemeral resource tagged with its run. The
// manifest on disk carries the same records so an external garbage collector
// can identify leftovers by run_id and creation time.
type Artifact struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

// CleanupFunc deletes one artifact. Errors are logged, not propagated:
// cleanup is best-effort and the manifest survives for the external GC.
type CleanupFunc func(ctx context.Context) error

type manifest struct {
	RunID     string     `json:"run_id"`
	CreatedAt time.Time  `json:"created_at"`
	Retained  bool       `json:"retained,omitempty"`
	Artifacts []Artifact `json:"artifacts"`
}

type runState struct {
	artifacts []Artifact
	cleanups  map[string]CleanupFunc
	timer     *time.Timer
	retained  bool
}

// Manager owns artifact lifecycles for any number of runs.
type Manager struct {
	cfg config.Artifacts

	mu   sync.Mutex
	runs map[string]*runState
}

func NewManager(cfg config.Artifacts) (*Manager, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts dir %q: %w", cfg.Dir, err)
	}
	return &Manager{
		cfg:  cfg,
		runs: make(map[string]*runState),
	}, nil
}

// Register records an artifact and its cleanup. The manifest on disk is
// rewritten on every registration so a crash never loses track of created
// resources.
func (m *Manager) Register(runID string, a Artifact, cleanup CleanupFunc) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.RunID = runID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.runs[runID]
	if !ok {
		state = &runState{cleanups: make(map[string]CleanupFunc)}
		m.runs[runID] = state
	}
	state.artifacts = append(state.artifacts, a)
	state.cleanups[a.ID] = cleanup

	return m.writeManifestLocked(runID, state)
}

// ScheduleCleanup arms the TTL timer for a run. Deletion happens no earlier
// than ttl after the call and, barring a stalled cleanup fn, well inside the
// grace window. With retain-on-failure set and a failed run, deletion is
// deferred until Acknowledge.
func (m *Manager) ScheduleCleanup(runID string, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.runs[runID]
	if !ok {
		return
	}

	if failed && m.cfg.RetainOnFailure {
		state.retained = true
		if err := m.writeManifestLocked(runID, state); err != nil {
			zap.S().Warnw("failed to update artifact manifest", "run_id", runID, "error", err)
		}
		zap.S().Infow("artifacts retained for inspection; run 'verifier ack <run_id>' to release them",
			"run_id", runID, "artifacts", len(state.artifacts))
		return
	}

	ttl := m.cfg.TTL
	state.timer = time.AfterFunc(ttl, func() {
		m.reclaim(runID)
	})
	zap.S().Infow("artifact cleanup scheduled", "run_id", runID, "ttl", ttl.String())
}

// Acknowledge releases a retained run's artifacts immediately.
func (m *Manager) Acknowledge(runID string) {
	m.mu.Lock()
	state, ok := m.runs[runID]
	if ok {
		state.retained = false
	}
	m.mu.Unlock()
	if ok {
		m.reclaim(runID)
	}
}

// Retained reports whether a run's artifacts are being held for inspection.
func (m *Manager) Retained(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.runs[runID]
	return ok && state.retained
}

// Close stops pending timers without firing them. Used on process teardown;
// the manifests stay behind for the external GC.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, state := range m.runs {
		if state.timer != nil {
			state.timer.Stop()
		}
	}
}

func (m *Manager) reclaim(runID string) {
	m.mu.Lock()
	state, ok := m.runs[runID]
	if !ok || state.retained {
		m.mu.Unlock()
		return
	}
	delete(m.runs, runID)
	m.mu.Unlock()

	log := zap.S().With("run_id", runID)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.GraceWindow)
	defer cancel()

	for _, a := range state.artifacts {
		cleanup := state.cleanups[a.ID]
		if cleanup == nil {
			continue
		}
		if err := cleanup(ctx); err != nil {
			log.Warnw("failed to clean up artifact", "artifact", a.ID, "kind", a.Kind, "error", err)
			continue
		}
		log.Debugw("artifact cleaned up", "artifact", a.ID, "kind", a.Kind)
	}

	if err := os.Remove(m.manifestPath(runID)); err != nil && !os.IsNotExist(err) {
		log.Warnw("failed to remove artifact manifest", "error", err)
	}
	log.Infow("artifacts reclaimed", "count", len(state.artifacts))
}

// Sweep reclaims runs recorded on disk by earlier processes. The in-memory
// timers die with the process that armed them, so a short-lived CLI relies
// on this instead: every manifest in the artifact directory older than the
// ttl is swept, the artifact files it lists removed along with the manifest
// itself. Retained manifests are left alone until AcknowledgeRun. Returns
// the number of runs reclaimed.
func (m *Manager) Sweep() (int, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read artifacts dir %q: %w", m.cfg.Dir, err)
	}

	swept := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(m.cfg.Dir, entry.Name())
		man, err := readManifest(path)
		if err != nil {
			zap.S().Warnw("skipping unreadable artifact manifest", "path", path, "error", err)
			continue
		}
		if man.Retained {
			continue
		}
		if time.Since(man.CreatedAt) < m.cfg.TTL {
			continue
		}
		m.removeRecorded(path, man)
		swept++
	}
	return swept, nil
}

// AcknowledgeRun releases a run recorded on disk regardless of ttl or
// retention. This is the operator's release path for a retained failed run
// once inspection is done.
func (m *Manager) AcknowledgeRun(runID string) error {
	path := m.manifestPath(runID)
	man, err := readManifest(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no artifacts recorded for run %q", runID)
		}
		return err
	}
	m.removeRecorded(path, man)
	return nil
}

func (m *Manager) removeRecorded(path string, man manifest) {
	log := zap.S().With("run_id", man.RunID)
	for _, a := range man.Artifacts {
		if a.Location == "" {
			continue
		}
		if err := os.Remove(a.Location); err != nil && !os.IsNotExist(err) {
			log.Warnw("failed to remove artifact", "artifact", a.ID, "location", a.Location, "error", err)
			continue
		}
		log.Debugw("artifact removed", "artifact", a.ID, "location", a.Location)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnw("failed to remove artifact manifest", "error", err)
		return
	}
	log.Infow("artifacts reclaimed", "count", len(man.Artifacts))
}

func readManifest(path string) (manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest{}, err
	}
	var man manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return manifest{}, fmt.Errorf("failed to decode artifact manifest %q: %w", path, err)
	}
	return man, nil
}

func (m *Manager) manifestPath(runID string) string {
	return filepath.Join(m.cfg.Dir, runID+".json")
}

func (m *Manager) writeManifestLocked(runID string, state *runState) error {
	data, err := json.MarshalIndent(manifest{
		RunID:     runID,
		CreatedAt: time.Now(),
		Retained:  state.retained,
		Artifacts: state.artifacts,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact manifest: %w", err)
	}
	if err := os.WriteFile(m.manifestPath(runID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact manifest: %w", err)
	}
	return nil
}
