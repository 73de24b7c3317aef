package session

import (
	"time"

	"github.com/osa030/croquis/internal/app/playback"
	"github.com/osa030/croquis/internal/app/session/state"
	"github.com/osa030/croquis/internal/domain/item"
)

// ItemView is the JSON form of an item.
type ItemView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DisplayRef string `json:"display_ref"`
	Source     string `json:"source"`
	Caption    string `json:"caption,omitempty"`
}

// LaneView is the JSON form of one lane's position.
type LaneView struct {
	Item   *ItemView `json:"item,omitempty"`
	Cursor int       `json:"cursor"`
	Length int       `json:"length"`
}

// ProgressView is the JSON form of playback progress.
type ProgressView struct {
	Phase           string     `json:"phase"`
	RemainingMs     int64      `json:"remaining_ms"`
	Seconds         int        `json:"seconds"`
	PhaseDurationMs int64      `json:"phase_duration_ms"`
	Ratio           float64    `json:"ratio"`
	SessionProgress int        `json:"session_progress"`
	TargetCount     int        `json:"target_count"`
	Lanes           []LaneView `json:"lanes"`
}

// SettingsView is the JSON form of the live settings.
type SettingsView struct {
	IntervalMs  int64   `json:"interval_ms"`
	TargetCount int     `json:"target_count"`
	Shuffle     bool    `json:"shuffle"`
	CueMode     string  `json:"cue_mode"`
	CueEnabled  bool    `json:"cue_enabled"`
	CueVolume   float64 `json:"cue_volume"`
	Layout      string  `json:"layout"`
}

// LaneStatus is the JSON form of a lane's load result.
type LaneStatus struct {
	state.LaneInfo
	State string `json:"state"`
}

// RunView is the JSON form of a session run.
type RunView struct {
	state.RunInfo
	Outcome string `json:"outcome"`
}

// FinishView is sent to presenters when a bounded session finishes.
type FinishView struct {
	RunID   string `json:"run_id,omitempty"`
	Count   int    `json:"count"`
	Image   string `json:"image,omitempty"`
	Message string `json:"message"`
}

// Status represents the current session status with all information.
type Status struct {
	Phase        string       `json:"phase"`
	Finished     bool         `json:"finished"`
	Progress     ProgressView `json:"progress"`
	Settings     SettingsView `json:"settings"`
	Lanes        []LaneStatus `json:"lanes"`
	Run          *RunView     `json:"run,omitempty"`
	LastRun      *RunView     `json:"last_run,omitempty"`
	FinishedRuns int          `json:"finished_runs"`
	StoppedRuns  int          `json:"stopped_runs"`
	Finish       FinishView   `json:"finish"`
	Subscribers  int          `json:"subscribers"`
}

func newItemView(it item.Item) *ItemView {
	if it.IsZero() {
		return nil
	}
	return &ItemView{
		ID:         it.ID,
		Name:       it.Name,
		DisplayRef: it.DisplayRef,
		Source:     string(it.Source),
		Caption:    it.Caption,
	}
}

// NewProgressView converts playback progress to its JSON form.
func NewProgressView(p playback.Progress) ProgressView {
	v := ProgressView{
		Phase:           p.Phase.String(),
		RemainingMs:     p.Remaining.Milliseconds(),
		Seconds:         p.SecondsRemaining(),
		PhaseDurationMs: p.PhaseDuration.Milliseconds(),
		Ratio:           p.Ratio(),
		SessionProgress: p.SessionProgress,
		TargetCount:     p.TargetCount,
		Lanes:           make([]LaneView, len(p.Lanes)),
	}
	for i, l := range p.Lanes {
		v.Lanes[i] = LaneView{Item: newItemView(l.Item), Cursor: l.Cursor, Length: l.Length}
	}
	return v
}

// NewSettingsView converts a playback config to its JSON form.
func NewSettingsView(c playback.Config) SettingsView {
	return SettingsView{
		IntervalMs:  c.Interval.Milliseconds(),
		TargetCount: c.TargetCount,
		Shuffle:     c.Shuffle,
		CueMode:     c.CueMode.String(),
		CueEnabled:  c.CueEnabled,
		CueVolume:   c.CueVolume,
		Layout:      c.Layout.String(),
	}
}

func newRunView(r state.RunInfo, ok bool) *RunView {
	if !ok {
		return nil
	}
	return &RunView{RunInfo: r, Outcome: r.Outcome.String()}
}

// progressKey identifies what a progress update shows, ignoring sub-second
// changes of the remaining time.
type progressKey struct {
	phase    playback.Phase
	seconds  int
	progress int
	target   int
	lanes    [2]LaneView
	items    [2]string
}

func newProgressKey(p playback.Progress) progressKey {
	k := progressKey{
		phase:    p.Phase,
		seconds:  p.SecondsRemaining(),
		progress: p.SessionProgress,
		target:   p.TargetCount,
	}
	for i, l := range p.Lanes {
		if i >= len(k.lanes) {
			break
		}
		k.lanes[i] = LaneView{Cursor: l.Cursor, Length: l.Length}
		k.items[i] = l.Item.ID
	}
	return k
}

const (
	// MinInterval and MaxInterval bound intervals chosen interactively.
	MinInterval = 5 * time.Second
	MaxInterval = 600 * time.Second
	// IntervalStep is the granularity of interactive interval changes.
	IntervalStep = 5 * time.Second
)

// NormalizeInterval snaps d to the nearest IntervalStep and clamps it to
// [MinInterval, MaxInterval].
func NormalizeInterval(d time.Duration) time.Duration {
	d = d.Round(IntervalStep)
	return min(MaxInterval, max(MinInterval, d))
}

// StepInterval moves d by steps IntervalSteps and normalizes the result.
func StepInterval(d time.Duration, steps int) time.Duration {
	return NormalizeInterval(NormalizeInterval(d) + time.Duration(steps)*IntervalStep)
}
