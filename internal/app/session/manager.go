// Package session provides the session manager.
package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/app/cue"
	"github.com/osa030/croquis/internal/app/filter"
	"github.com/osa030/croquis/internal/app/media"
	"github.com/osa030/croquis/internal/app/notification"
	"github.com/osa030/croquis/internal/app/playback"
	"github.com/osa030/croquis/internal/app/session/state"
	"github.com/osa030/croquis/internal/domain/playlist"
	"github.com/osa030/croquis/internal/infra/config"
)

var (
	ErrInvalidSettings = errors.New("invalid settings")
	ErrUnknownItem     = errors.New("unknown item")
)

// reloadAll asks the reload loop to retry lanes left dirty.
const reloadAll = -1

// CuePlayer plays the sound of a cue.
type CuePlayer interface {
	Play(reason cue.Reason) error
	SetVolume(level float64)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for ticks and run timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
		m.ctrlOpts = append(m.ctrlOpts, playback.WithClock(now))
	}
}

// WithRand sets the random source used for shuffling.
func WithRand(r playlist.Rand) Option {
	return func(m *Manager) {
		m.ctrlOpts = append(m.ctrlOpts, playback.WithRand(r))
	}
}

// WithCuePlayer sets the audio player. Without one cues are only broadcast.
func WithCuePlayer(p CuePlayer) Option {
	return func(m *Manager) {
		m.player = p
	}
}

// Manager manages the presentation session.
type Manager struct {
	mu sync.RWMutex

	// Configuration
	config *config.Config

	// Components
	stateMgr     *state.Manager
	playback     *playback.Controller
	filterChain  *filter.Chain
	notification *notification.Manager
	player       CuePlayer
	sources      []*media.Chain

	now      func() time.Time
	ctrlOpts []playback.Option

	// Last progress broadcast
	lastProgress progressKey

	// Serializes item drops with their lane counts
	failureMu sync.Mutex

	// Lane reloads
	reloadCh    chan int
	reloadDelay time.Duration

	// Channels
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a new session manager.
func NewManager(cfg *config.Config, deps media.Deps, opts ...Option) (*Manager, error) {
	layout, err := playback.ParseLayout(cfg.Layout)
	if err != nil {
		return nil, errors.Wrap(err, "invalid layout")
	}
	mode, err := cue.ParseMode(cfg.Cue.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "invalid cue mode")
	}
	if len(cfg.Lanes) > layout.Lanes() {
		return nil, errors.Newf("%s layout supports %d lane(s), %d configured", layout, layout.Lanes(), len(cfg.Lanes))
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:       cfg,
		stateMgr:     state.New(layout.Lanes()),
		filterChain:  filter.NewChain(),
		notification: notification.NewManager(),
		now:          time.Now,
		reloadCh:     make(chan int, 16),
		reloadDelay:  time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	// Create one source chain per configured lane
	for i, lane := range cfg.Lanes {
		chain, err := media.NewChainFromConfig(lane, deps)
		if err != nil {
			cancel()
			return nil, errors.Wrapf(err, "failed to create sources for lane %d", i)
		}
		m.sources = append(m.sources, chain)
	}

	m.playback, err = playback.NewController(playback.Config{
		Interval:    cfg.Interval(),
		TargetCount: cfg.Session.TargetCount,
		Shuffle:     cfg.ShuffleEnabled(),
		CueMode:     mode,
		CueEnabled:  cfg.CueEnabled(),
		CueVolume:   cfg.CueVolume(),
		Layout:      layout,
	}, &presenter{m: m}, m.ctrlOpts...)
	if err != nil {
		cancel()
		return nil, err
	}

	// Setup filters
	m.setupFilters()

	return m, nil
}

// setupFilters adds every enabled filter to the chain.
func (m *Manager) setupFilters() {
	registered := filter.GetRegistered()
	for _, name := range filter.Names() {
		if !m.config.IsFilterEnabled(name) {
			continue
		}
		f := registered[name]()
		if err := f.ValidateConfig(m.config.FilterSettings(name)); err != nil {
			zlog.Error().Msgf("failed to validate filter config: filter=%s error=%v", name, err)
			continue
		}
		m.filterChain.Add(f)
		zlog.Info().Msgf("filter enabled: %s", name)
	}
}

// Start loads every lane, starts the source watchers and the clock.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.LoadAll(ctx); err != nil {
		return err
	}

	for i, src := range m.sources {
		lane := i
		if err := src.Watch(m.ctx, func(c media.Change) { m.handleChange(lane, c) }); err != nil {
			zlog.Warn().Msgf("lane %d will not follow source changes: %v", lane, err)
		}
	}

	m.wg.Add(2)
	go m.tickLoop()
	go m.reloadLoop()

	zlog.Info().Msgf("session manager started: layout=%s lanes=%d tick=%v", m.config.Layout, len(m.sources), m.config.TickInterval())
	return nil
}

// LoadAll loads every lane. A lane whose sources all fail keeps its
// previous items; only cancellation is returned as an error.
func (m *Manager) LoadAll(ctx context.Context) error {
	for lane := range m.sources {
		if err := m.loadLane(ctx, lane); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// loadLane loads the sources of a lane, filters the items and hands them to
// the controller.
func (m *Manager) loadLane(ctx context.Context, lane int) error {
	src := m.sources[lane]
	now := m.now()
	info := state.LaneInfo{
		Name:     m.laneName(lane),
		Sources:  src.DisplayNames(),
		LoadedAt: &now,
	}

	items, err := src.Load(ctx)
	if err != nil {
		info.State = state.LoadFailed
		info.Error = err.Error()
		info.Items = len(m.playback.Items(lane))
		m.stateMgr.SetLane(lane, info)
		zlog.Error().Msgf("failed to load lane: lane=%s error=%v", info.Name, err)
		return err
	}

	accepted, rejected := m.filterChain.Apply(ctx, items)
	if err := m.playback.Load(lane, accepted); err != nil {
		return err
	}

	info.Items = len(accepted)
	info.Rejected = rejected
	info.State = state.LoadReady
	if len(accepted) == 0 {
		info.State = state.LoadEmpty
	}
	m.stateMgr.SetLane(lane, info)

	zlog.Info().Msgf("lane loaded: lane=%s items=%d rejected=%v", info.Name, len(accepted), rejected)
	m.notification.Publish(notification.TypePlaylistChanged, LaneStatus{LaneInfo: info, State: info.State.String()})
	return nil
}

func (m *Manager) laneName(lane int) string {
	if lane < len(m.config.Lanes) && m.config.Lanes[lane].Name != "" {
		return m.config.Lanes[lane].Name
	}
	if lane == 0 {
		return "main"
	}
	return "second"
}

// handleChange applies a source change. Removed items are dropped right
// away; additions reload the lane once no session is running.
func (m *Manager) handleChange(lane int, c media.Change) {
	switch c.Kind {
	case media.ChangeAdded:
		zlog.Debug().Msgf("source item added: lane=%d item=%s", lane, c.Item.Name)
		m.requestReload(lane)

	case media.ChangeRemoved:
		// Items share IDs across lanes reading the same file
		if err := m.ReportItemFailure(c.Item.ID); err == nil {
			zlog.Info().Msgf("source item removed: lane=%d item=%s", lane, c.Item.Name)
		}
	}
}

func (m *Manager) requestReload(lane int) {
	select {
	case m.reloadCh <- lane:
	default:
		zlog.Debug().Msgf("reload request dropped: lane=%d", lane)
	}
}

// reloadLoop coalesces reload requests. Lanes are only reloaded while no
// session runs because loading stops the session.
func (m *Manager) reloadLoop() {
	defer m.wg.Done()

	dirty := make([]bool, len(m.sources))
	var timer <-chan time.Time

	for {
		select {
		case <-m.ctx.Done():
			return

		case lane := <-m.reloadCh:
			if lane >= 0 && lane < len(dirty) {
				dirty[lane] = true
			}
			if timer == nil && slices.Contains(dirty, true) {
				timer = time.After(m.reloadDelay)
			}

		case <-timer:
			timer = nil
			if m.playback.Phase().Running() {
				zlog.Debug().Msg("session running, lane reload deferred")
				continue
			}
			for lane := range dirty {
				if !dirty[lane] {
					continue
				}
				dirty[lane] = false
				_ = m.loadLane(m.ctx, lane)
			}
		}
	}
}

// tickLoop drives the controller clock.
func (m *Manager) tickLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.playback.Advance(m.now())
		}
	}
}

// StartSession starts a new session.
func (m *Manager) StartSession() error {
	if err := m.playback.Start(); err != nil {
		return err
	}
	zlog.Info().Msg("session start requested")
	return nil
}

// StopSession stops the running session.
func (m *Manager) StopSession() {
	m.playback.Stop()
	zlog.Info().Msg("session stop requested")
}

// ToggleSession starts a stopped session or stops a running one.
func (m *Manager) ToggleSession() error {
	return m.playback.Toggle()
}

// Next shows the next item.
func (m *Manager) Next() {
	m.playback.Next()
}

// Prev shows the previous item.
func (m *Manager) Prev() {
	m.playback.Prev()
}

// Reshuffle shuffles every lane keeping the current items.
func (m *Manager) Reshuffle() {
	m.playback.Reshuffle()
}

// Reset stops the session and restores the initial settings.
func (m *Manager) Reset() {
	m.playback.Reset()
	m.publishSettings()
}

// ReportItemFailure drops an item that could not be displayed from every
// lane holding it.
func (m *Manager) ReportItemFailure(itemID string) error {
	m.failureMu.Lock()
	defer m.failureMu.Unlock()

	lanes := m.playback.ReportLoadFailure(itemID)
	if len(lanes) == 0 {
		return errors.Wrapf(ErrUnknownItem, "item %s", itemID)
	}
	for _, lane := range lanes {
		m.stateMgr.SetLaneItems(lane, len(m.playback.Items(lane)))
	}
	return nil
}

// Settings holds a partial settings update. Nil fields are left unchanged.
type Settings struct {
	IntervalMs  *int64   `json:"interval_ms,omitempty"`
	TargetCount *int     `json:"target_count,omitempty"`
	Shuffle     *bool    `json:"shuffle,omitempty"`
	CueMode     *string  `json:"cue_mode,omitempty"`
	CueEnabled  *bool    `json:"cue_enabled,omitempty"`
	CueVolume   *float64 `json:"cue_volume,omitempty"`
}

// UpdateSettings validates every field before applying any of them.
func (m *Manager) UpdateSettings(s Settings) error {
	var mode cue.Mode
	if s.IntervalMs != nil && *s.IntervalMs <= 0 {
		return errors.Wrapf(ErrInvalidSettings, "interval_ms must be positive, got %d", *s.IntervalMs)
	}
	if s.TargetCount != nil && *s.TargetCount < 0 {
		return errors.Wrapf(ErrInvalidSettings, "target_count must not be negative, got %d", *s.TargetCount)
	}
	if s.CueMode != nil {
		var err error
		if mode, err = cue.ParseMode(*s.CueMode); err != nil {
			return errors.Wrap(ErrInvalidSettings, err.Error())
		}
	}
	if s.CueVolume != nil && (*s.CueVolume < 0 || *s.CueVolume > 1) {
		return errors.Wrapf(ErrInvalidSettings, "cue_volume must be between 0 and 1, got %v", *s.CueVolume)
	}

	if s.IntervalMs != nil {
		if err := m.playback.SetInterval(time.Duration(*s.IntervalMs) * time.Millisecond); err != nil {
			return err
		}
	}
	if s.TargetCount != nil {
		if err := m.playback.SetTargetCount(*s.TargetCount); err != nil {
			return err
		}
	}
	if s.Shuffle != nil {
		m.playback.SetShuffleEnabled(*s.Shuffle)
	}
	if s.CueMode != nil {
		m.playback.SetCueMode(mode)
	}
	if s.CueEnabled != nil {
		m.playback.SetCueEnabled(*s.CueEnabled)
	}
	if s.CueVolume != nil {
		if err := m.playback.SetCueVolume(*s.CueVolume); err != nil {
			return err
		}
	}

	m.publishSettings()
	return nil
}

func (m *Manager) publishSettings() {
	settings := NewSettingsView(m.playback.Config())
	zlog.Info().Msgf("settings updated: %+v", settings)
	m.notification.Publish(notification.TypeSettingsChanged, settings)
}

// GetStatus returns the current session status.
func (m *Manager) GetStatus() *Status {
	snap := m.playback.Snapshot()

	lanes := m.stateMgr.Lanes()
	laneStatus := make([]LaneStatus, len(lanes))
	for i, l := range lanes {
		if l.Name == "" {
			l.Name = m.laneName(i)
		}
		laneStatus[i] = LaneStatus{LaneInfo: l, State: l.State.String()}
	}

	finished, stopped := m.stateMgr.RunCounts()
	return &Status{
		Phase:        snap.Phase.String(),
		Finished:     snap.Finished,
		Progress:     NewProgressView(snap.Progress),
		Settings:     NewSettingsView(snap.Config),
		Lanes:        laneStatus,
		Run:          newRunView(m.stateMgr.CurrentRun()),
		LastRun:      newRunView(m.stateMgr.LastRun()),
		FinishedRuns: finished,
		StoppedRuns:  stopped,
		Finish:       m.finishView(),
		Subscribers:  m.notification.SubscriberCount(),
	}
}

// Snapshot returns the controller state.
func (m *Manager) Snapshot() playback.Snapshot {
	return m.playback.Snapshot()
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

func (m *Manager) finishView() FinishView {
	v := FinishView{
		Image:   m.config.Finish.Image,
		Message: m.config.Finish.Message,
	}
	if run, ok := m.stateMgr.LastRun(); ok && run.Outcome == state.OutcomeFinished {
		v.RunID = run.ID
	}
	v.Count = m.playback.Config().TargetCount
	return v
}

// Done is closed when the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}

// Close stops the background loops and drops every subscriber.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
	m.playback.Stop()
	m.notification.Close()
}

func (m *Manager) onPhaseChange(phase playback.Phase) {
	now := m.now()
	switch phase {
	case playback.PhaseShowing:
		if _, running := m.stateMgr.CurrentRun(); !running {
			id := m.stateMgr.BeginRun(now)
			zlog.Info().Msgf("session started: run_id=%s", id)
		}
	case playback.PhaseIdle:
		if run, ok := m.stateMgr.EndRun(now, state.OutcomeStopped); ok {
			zlog.Info().Msgf("session stopped: run_id=%s duration=%v", run.ID, now.Sub(run.StartedAt))
		}
		m.requestReload(reloadAll)
	case playback.PhaseTransitioning, playback.PhaseFinished:
	}

	m.notification.Publish(notification.TypePhaseChanged, map[string]string{"phase": phase.String()})
}

func (m *Manager) onProgress(p playback.Progress) {
	key := newProgressKey(p)
	m.mu.Lock()
	if key == m.lastProgress {
		m.mu.Unlock()
		return
	}
	m.lastProgress = key
	m.mu.Unlock()

	m.notification.Publish(notification.TypeProgress, NewProgressView(p))
}

func (m *Manager) onCue(reason cue.Reason) {
	m.notification.Publish(notification.TypeCue, map[string]string{"reason": reason.String()})
	if m.player == nil {
		return
	}

	m.player.SetVolume(m.playback.Config().CueVolume)
	if err := m.player.Play(reason); err != nil {
		zlog.Warn().Msgf("failed to play cue: reason=%s error=%v", reason, err)
	}
}

func (m *Manager) onFinish() {
	if run, ok := m.stateMgr.EndRun(m.now(), state.OutcomeFinished); ok {
		zlog.Info().Msgf("session finished: run_id=%s target=%d", run.ID, m.playback.Config().TargetCount)
	}
	m.notification.Publish(notification.TypeFinished, m.finishView())
	m.requestReload(reloadAll)
}

func (m *Manager) onItemLoadFailure(itemID string) {
	m.notification.Publish(notification.TypeItemLoadFailed, map[string]string{"item_id": itemID})
}

// presenter forwards controller notifications to the manager.
type presenter struct {
	m *Manager
}

func (p *presenter) OnPhaseChange(phase playback.Phase) { p.m.onPhaseChange(phase) }
func (p *presenter) OnProgress(pr playback.Progress)    { p.m.onProgress(pr) }
func (p *presenter) OnCue(reason cue.Reason)            { p.m.onCue(reason) }
func (p *presenter) OnFinish()                          { p.m.onFinish() }
func (p *presenter) OnItemLoadFailure(itemID string)    { p.m.onItemLoadFailure(itemID) }
