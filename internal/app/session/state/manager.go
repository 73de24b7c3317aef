package state

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LaneInfo describes the last load of a lane.
type LaneInfo struct {
	Name     string         `json:"name"`
	Sources  []string       `json:"sources"`
	State    LoadState      `json:"-"`
	Items    int            `json:"items"`
	Rejected map[string]int `json:"rejected,omitempty"`
	LoadedAt *time.Time     `json:"loaded_at,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// RunInfo describes the current or last session run.
type RunInfo struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Outcome   RunOutcome `json:"-"`
}

// Manager tracks session runs and lane loads with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	// Runs
	current       *RunInfo
	last          *RunInfo
	finishedCount int
	stoppedCount  int

	// Lanes
	lanes []LaneInfo
}

// New creates a new state manager for the given number of lanes.
func New(laneCount int) *Manager {
	return &Manager{
		lanes: make([]LaneInfo, laneCount),
	}
}

// BeginRun records the start of a session run and returns its ID.
// A run already in progress is returned unchanged.
func (m *Manager) BeginRun(now time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current.ID
	}
	m.current = &RunInfo{
		ID:        uuid.New().String(),
		StartedAt: now,
		Outcome:   OutcomeRunning,
	}
	return m.current.ID
}

// EndRun records the end of the current run. It is a no-op when no run is
// in progress.
func (m *Manager) EndRun(now time.Time, outcome RunOutcome) (RunInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return RunInfo{}, false
	}
	run := m.current
	run.EndedAt = &now
	run.Outcome = outcome
	switch outcome {
	case OutcomeFinished:
		m.finishedCount++
	case OutcomeStopped, OutcomeRunning:
		m.stoppedCount++
	}

	m.last = run
	m.current = nil
	return *run, true
}

// CurrentRun returns the run in progress.
func (m *Manager) CurrentRun() (RunInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return RunInfo{}, false
	}
	return *m.current, true
}

// LastRun returns the most recently ended run.
func (m *Manager) LastRun() (RunInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return RunInfo{}, false
	}
	return *m.last, true
}

// RunCounts returns the number of finished and stopped runs.
func (m *Manager) RunCounts() (finished, stopped int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.finishedCount, m.stoppedCount
}

// SetLane records the result of a lane load.
func (m *Manager) SetLane(index int, info LaneInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.lanes) {
		return
	}
	info.Sources = slices.Clone(info.Sources)
	info.Rejected = maps.Clone(info.Rejected)
	m.lanes[index] = info
}

// SetLaneItems records a lane's item count after items were dropped.
func (m *Manager) SetLaneItems(index, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.lanes) {
		return
	}
	lane := &m.lanes[index]
	lane.Items = max(0, n)
	if lane.State == LoadReady && lane.Items == 0 {
		lane.State = LoadEmpty
	}
}

// Lanes returns a copy of every lane's info.
func (m *Manager) Lanes() []LaneInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lanes := make([]LaneInfo, len(m.lanes))
	for i, l := range m.lanes {
		l.Sources = slices.Clone(l.Sources)
		l.Rejected = maps.Clone(l.Rejected)
		lanes[i] = l
	}
	return lanes
}
