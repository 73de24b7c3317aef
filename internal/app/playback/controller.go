package playback

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/app/cue"
	"github.com/osa030/croquis/internal/domain/item"
	"github.com/osa030/croquis/internal/domain/playlist"
)

// TransitionDuration is the fixed countdown before every automatic advance.
const TransitionDuration = 3 * time.Second

// DefaultInterval is the display duration used when none is configured.
const DefaultInterval = 60 * time.Second

// Errors
var (
	ErrEmptyPlaylist      = errors.New("playlist is empty")
	ErrInvalidInterval    = errors.New("interval must be positive")
	ErrInvalidTargetCount = errors.New("target count must not be negative")
	ErrInvalidVolume      = errors.New("cue volume must be between 0 and 1")
	ErrUnknownLane        = errors.New("unknown lane")
)

// Config holds controller configuration.
type Config struct {
	Interval    time.Duration // Display duration per item
	TargetCount int           // Items per session, 0 = unlimited
	Shuffle     bool          // Shuffle on load
	CueMode     cue.Mode
	CueEnabled  bool
	CueVolume   float64 // 0.0 - 1.0, used by the audio side
	Layout      Layout
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.TargetCount < 0 {
		return ErrInvalidTargetCount
	}
	if c.CueVolume < 0 || c.CueVolume > 1 {
		return ErrInvalidVolume
	}
	return nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used by user-triggered operations.
// Advance always uses the time it is given.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRand sets the random source used for shuffling.
func WithRand(r playlist.Rand) Option {
	return func(c *Controller) {
		c.rng = r
	}
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Phase           Phase
	Finished        bool // Last session reached its target and nothing has started since
	SessionProgress int
	Config          Config
	Progress        Progress
}

// Controller drives a timed, repeatable presentation of playlist items.
// It has no timer of its own: an external clock calls Advance repeatedly and
// every deadline is an absolute time compared against that clock.
// All methods are safe for concurrent use; one mutex serialises them.
type Controller struct {
	mu sync.Mutex

	lanes     []*playlist.Playlist
	config    Config
	defaults  Config
	presenter Presenter
	now       func() time.Time
	rng       playlist.Rand

	// Session state
	phase           Phase
	phaseEnd        time.Time
	phaseDuration   time.Duration
	sessionProgress int
	finished        bool

	// Notifications queued while the lock is held
	pending []Event
}

// NewController creates a new playback controller with empty playlists.
func NewController(config Config, presenter Presenter, opts ...Option) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid playback config")
	}
	if presenter == nil {
		presenter = NopPresenter{}
	}

	c := &Controller{
		config:    config,
		defaults:  config,
		presenter: presenter,
		now:       time.Now,
		phase:     PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	var plOpts []playlist.Option
	if c.rng != nil {
		plOpts = append(plOpts, playlist.WithRand(c.rng))
	}
	c.lanes = make([]*playlist.Playlist, config.Layout.Lanes())
	for i := range c.lanes {
		c.lanes[i] = playlist.New(plOpts...)
	}

	return c, nil
}

// do runs fn under the lock and delivers the notifications it queued after
// the lock is released.
func (c *Controller) do(fn func() error) error {
	c.mu.Lock()
	err := fn()
	events := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, e := range events {
		dispatch(c.presenter, e)
	}
	return err
}

// Start begins a new session on the current item.
// It fails with ErrEmptyPlaylist when there is nothing to show and is a
// no-op while a session is already running.
func (c *Controller) Start() error {
	return c.do(func() error {
		return c.startLocked(c.now())
	})
}

// Stop abandons the running session. The displayed item stays where it is.
func (c *Controller) Stop() {
	_ = c.do(func() error {
		c.stopLocked(false)
		return nil
	})
}

// Toggle starts a session when idle and stops it otherwise.
func (c *Controller) Toggle() error {
	return c.do(func() error {
		if c.phase.Running() {
			c.stopLocked(false)
			return nil
		}
		return c.startLocked(c.now())
	})
}

// Next manually moves every lane forward.
func (c *Controller) Next() {
	_ = c.do(func() error {
		c.moveLocked(c.now(), true)
		return nil
	})
}

// Prev manually moves every lane backward.
func (c *Controller) Prev() {
	_ = c.do(func() error {
		c.moveLocked(c.now(), false)
		return nil
	})
}

// Advance evaluates the phase machine at the given time. It is meant to be
// called on every clock tick regardless of phase.
func (c *Controller) Advance(now time.Time) {
	_ = c.do(func() error {
		c.advanceLocked(now)
		return nil
	})
}

// SetInterval changes the display duration. A Showing phase restarts with
// the new interval; a running countdown is left alone.
func (c *Controller) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}
	return c.do(func() error {
		c.config.Interval = d
		switch c.phase {
		case PhaseShowing:
			c.enterShowingLocked(c.now())
		case PhaseIdle, PhaseFinished:
			c.emitProgressLocked(c.now())
		case PhaseTransitioning:
		}
		return nil
	})
}

// SetTargetCount changes the session length. A running session continues;
// its progress is clamped to the new target.
func (c *Controller) SetTargetCount(n int) error {
	if n < 0 {
		return ErrInvalidTargetCount
	}
	return c.do(func() error {
		c.config.TargetCount = n
		switch {
		case n == 0:
			if c.phase.Running() {
				c.sessionProgress = 0
			}
		case c.phase.Running() && c.sessionProgress == 0:
			c.sessionProgress = 1
		case c.sessionProgress > n:
			c.sessionProgress = n
		}
		c.emitProgressLocked(c.now())
		return nil
	})
}

// SetShuffleEnabled toggles shuffle-on-load. Enabling it also reshuffles
// while keeping the current item in place.
func (c *Controller) SetShuffleEnabled(enabled bool) {
	_ = c.do(func() error {
		c.config.Shuffle = enabled
		if enabled {
			c.reshuffleLocked()
		}
		return nil
	})
}

// SetCueMode sets the cue policy for automatic advances.
func (c *Controller) SetCueMode(mode cue.Mode) {
	_ = c.do(func() error {
		c.config.CueMode = mode
		return nil
	})
}

// SetCueEnabled enables or disables cues.
func (c *Controller) SetCueEnabled(enabled bool) {
	_ = c.do(func() error {
		c.config.CueEnabled = enabled
		return nil
	})
}

// SetCueVolume sets the cue playback volume.
func (c *Controller) SetCueVolume(v float64) error {
	if v < 0 || v > 1 {
		return ErrInvalidVolume
	}
	return c.do(func() error {
		c.config.CueVolume = v
		return nil
	})
}

// Reshuffle shuffles every lane, keeping the current items in view.
func (c *Controller) Reshuffle() {
	_ = c.do(func() error {
		c.reshuffleLocked()
		return nil
	})
}

// Reset stops the session, restores the configured interval, clears the
// target, turns shuffle on and reshuffles.
func (c *Controller) Reset() {
	_ = c.do(func() error {
		c.stopLocked(false)
		c.finished = false
		c.sessionProgress = 0
		c.config.Interval = c.defaults.Interval
		c.config.TargetCount = 0
		c.config.Shuffle = true
		c.reshuffleLocked()
		return nil
	})
}

// Load replaces the items of a lane. Any running session is stopped.
func (c *Controller) Load(lane int, items []item.Item) error {
	return c.do(func() error {
		if lane < 0 || lane >= len(c.lanes) {
			return errors.Wrapf(ErrUnknownLane, "lane %d", lane)
		}
		c.stopLocked(false)
		c.finished = false

		pl := c.lanes[lane]
		pl.Load(items)
		if c.config.Shuffle {
			pl.Shuffle(false)
		}
		zlog.Debug().Msgf("playback: lane loaded: lane=%d items=%d shuffle=%v", lane, pl.Len(), c.config.Shuffle)

		c.emitProgressLocked(c.now())
		return nil
	})
}

// Clear removes every item of a lane. Any running session is stopped.
func (c *Controller) Clear(lane int) error {
	return c.Load(lane, nil)
}

// ReportLoadFailure drops an item whose content could not be displayed
// from every lane holding it and returns those lanes. When it was on display
// the successor takes its place without touching session progress. If no
// item is left anywhere the session is stopped.
func (c *Controller) ReportLoadFailure(itemID string) []int {
	var removed []int
	_ = c.do(func() error {
		wasCurrent := false
		for i, pl := range c.lanes {
			idx := pl.IndexOf(itemID)
			if idx < 0 {
				continue
			}
			if pl.Cursor() == idx {
				wasCurrent = true
			}
			pl.RemoveAt(idx)
			removed = append(removed, i)
			zlog.Warn().Msgf("playback: item dropped after load failure: lane=%d item=%s remaining=%d", i, itemID, pl.Len())
		}
		if len(removed) == 0 {
			return nil
		}
		c.emitLocked(Event{Type: EventItemLoadFailed, ItemID: itemID})

		if !c.hasItemsLocked() {
			c.stopLocked(true)
			return nil
		}
		if wasCurrent {
			c.emitProgressLocked(c.now())
		}
		return nil
	})
	return removed
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Config returns the live configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// LaneCount returns the number of lanes.
func (c *Controller) LaneCount() int {
	return len(c.lanes)
}

// Items returns a copy of a lane's items in display order.
func (c *Controller) Items(lane int) []item.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lane < 0 || lane >= len(c.lanes) {
		return nil
	}
	return c.lanes[lane].Items()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Phase:           c.phase,
		Finished:        c.finished,
		SessionProgress: c.sessionProgress,
		Config:          c.config,
		Progress:        c.progressLocked(c.now()),
	}
}

func (c *Controller) startLocked(now time.Time) error {
	if !c.hasItemsLocked() {
		return ErrEmptyPlaylist
	}
	if c.phase.Running() {
		return nil
	}

	// A previous session, finished or stopped, is never resumed.
	c.finished = false
	c.sessionProgress = 0
	if c.config.TargetCount > 0 {
		c.sessionProgress = 1
	}

	zlog.Debug().Msgf("playback: session started: interval=%v target=%d", c.config.Interval, c.config.TargetCount)
	c.enterShowingLocked(now)
	return nil
}

func (c *Controller) stopLocked(force bool) {
	wasRunning := c.phase.Running()
	if !wasRunning && !force {
		return
	}

	c.phase = PhaseIdle
	c.phaseEnd = time.Time{}
	c.phaseDuration = 0
	c.sessionProgress = 0

	zlog.Debug().Msgf("playback: session stopped: forced=%v", force)
	c.emitLocked(Event{Type: EventPhaseChanged, Phase: PhaseIdle})
	c.emitProgressLocked(c.now())
}

func (c *Controller) advanceLocked(now time.Time) {
	switch c.phase {
	case PhaseIdle, PhaseFinished:
		return

	case PhaseShowing:
		if now.Before(c.phaseEnd) {
			c.emitProgressLocked(now)
			return
		}
		if c.config.TargetCount > 0 && c.sessionProgress >= c.config.TargetCount {
			c.finishLocked()
			return
		}
		c.enterTransitionLocked(now)

	case PhaseTransitioning:
		if now.Before(c.phaseEnd) {
			c.emitProgressLocked(now)
			return
		}
		c.completeTransitionLocked(now)
	}
}

// finishLocked ends a bounded session. The final item has been held for its
// full duration and no countdown follows it.
func (c *Controller) finishLocked() {
	c.phase = PhaseFinished
	c.finished = true
	c.phaseEnd = time.Time{}
	c.phaseDuration = 0

	zlog.Debug().Msgf("playback: session finished: progress=%d target=%d", c.sessionProgress, c.config.TargetCount)
	c.emitLocked(Event{Type: EventPhaseChanged, Phase: PhaseFinished})
	if cue.ShouldFire(c.positionsLocked(), cue.KindSessionFinish, c.config.CueMode, c.config.CueEnabled) {
		c.emitLocked(Event{Type: EventCue, CueReason: cue.ReasonFor(cue.KindSessionFinish, c.config.CueMode)})
	}
	c.emitLocked(Event{Type: EventFinished})

	// Finish is momentary.
	c.phase = PhaseIdle
}

func (c *Controller) enterTransitionLocked(now time.Time) {
	c.phase = PhaseTransitioning
	c.phaseEnd = now.Add(TransitionDuration)
	c.phaseDuration = TransitionDuration

	c.emitLocked(Event{Type: EventPhaseChanged, Phase: PhaseTransitioning})
	c.emitProgressLocked(now)
}

func (c *Controller) completeTransitionLocked(now time.Time) {
	// The cue decision looks at the departing cursor.
	if cue.ShouldFire(c.positionsLocked(), cue.KindAutomatic, c.config.CueMode, c.config.CueEnabled) {
		c.emitLocked(Event{Type: EventCue, CueReason: cue.ReasonFor(cue.KindAutomatic, c.config.CueMode)})
	}

	for _, pl := range c.lanes {
		pl.Advance()
	}
	if c.config.TargetCount > 0 && c.sessionProgress < c.config.TargetCount {
		c.sessionProgress++
	}

	c.enterShowingLocked(now)
}

func (c *Controller) enterShowingLocked(now time.Time) {
	changed := c.phase != PhaseShowing
	c.phase = PhaseShowing
	c.phaseEnd = now.Add(c.config.Interval)
	c.phaseDuration = c.config.Interval

	if changed {
		c.emitLocked(Event{Type: EventPhaseChanged, Phase: PhaseShowing})
	}
	c.emitProgressLocked(now)
}

// moveLocked handles manual navigation. It cancels a running countdown and
// never fires a cue or counts toward the session.
func (c *Controller) moveLocked(now time.Time, forward bool) {
	if !c.hasItemsLocked() {
		return
	}
	if cue.ShouldFire(c.positionsLocked(), cue.KindManual, c.config.CueMode, c.config.CueEnabled) {
		c.emitLocked(Event{Type: EventCue, CueReason: cue.ReasonFor(cue.KindManual, c.config.CueMode)})
	}

	for _, pl := range c.lanes {
		if forward {
			pl.Advance()
		} else {
			pl.Retreat()
		}
	}
	c.finished = false

	if c.phase.Running() {
		c.enterShowingLocked(now)
		return
	}
	c.emitProgressLocked(now)
}

func (c *Controller) reshuffleLocked() {
	for _, pl := range c.lanes {
		pl.Shuffle(true)
	}
	c.emitProgressLocked(c.now())
}

func (c *Controller) hasItemsLocked() bool {
	for _, pl := range c.lanes {
		if !pl.IsEmpty() {
			return true
		}
	}
	return false
}

func (c *Controller) positionsLocked() []cue.Position {
	positions := make([]cue.Position, len(c.lanes))
	for i, pl := range c.lanes {
		positions[i] = pl
	}
	return positions
}

func (c *Controller) progressLocked(now time.Time) Progress {
	p := Progress{
		Phase:           c.phase,
		Lanes:           make([]LaneProgress, len(c.lanes)),
		SessionProgress: c.sessionProgress,
		TargetCount:     c.config.TargetCount,
	}

	if c.phase.Running() {
		p.PhaseDuration = c.phaseDuration
		p.Remaining = c.phaseEnd.Sub(now)
		if p.Remaining < 0 {
			p.Remaining = 0
		}
	} else {
		p.PhaseDuration = c.config.Interval
		p.Remaining = c.config.Interval
	}

	for i, pl := range c.lanes {
		cur, _ := pl.Current()
		p.Lanes[i] = LaneProgress{Item: cur, Cursor: pl.Cursor(), Length: pl.Len()}
	}
	p.Item = p.Lanes[0].Item
	p.Cursor = p.Lanes[0].Cursor
	p.Length = p.Lanes[0].Length

	return p
}

func (c *Controller) emitProgressLocked(now time.Time) {
	c.emitLocked(Event{Type: EventProgress, Phase: c.phase, Progress: c.progressLocked(now)})
}

func (c *Controller) emitLocked(e Event) {
	c.pending = append(c.pending, e)
}
