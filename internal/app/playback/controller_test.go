package playback

import (
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/croquis/internal/app/cue"
	"github.com/osa030/croquis/internal/domain/item"
)

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Set(ms int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = at(ms)
}

type recorder struct {
	mu       sync.Mutex
	phases   []Phase
	progress []Progress
	cues     []cue.Reason
	finishes int
	failures []string

	onFinish func()
}

func (r *recorder) OnPhaseChange(p Phase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, p)
}

func (r *recorder) OnProgress(p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recorder) OnCue(reason cue.Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cues = append(r.cues, reason)
}

func (r *recorder) OnFinish() {
	r.mu.Lock()
	r.finishes++
	fn := r.onFinish
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (r *recorder) OnItemLoadFailure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, id)
}

func (r *recorder) lastPhase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.phases) == 0 {
		return Phase(-1)
	}
	return r.phases[len(r.phases)-1]
}

func (r *recorder) lastProgress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress[len(r.progress)-1]
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = nil
	r.progress = nil
	r.cues = nil
	r.finishes = 0
	r.failures = nil
}

func (r *recorder) count(reason cue.Reason) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cues {
		if c == reason {
			n++
		}
	}
	return n
}

func makeItems(ids ...string) []item.Item {
	items := make([]item.Item, len(ids))
	for i, id := range ids {
		items[i] = item.Item{ID: id, Name: id, DisplayRef: "/refs/" + id + ".png"}
	}
	return items
}

func baseConfig() Config {
	return Config{
		Interval:   5 * time.Second,
		CueMode:    cue.ModeEvery,
		CueEnabled: true,
		CueVolume:  1,
	}
}

func newTestController(t *testing.T, cfg Config, ids ...string) (*Controller, *recorder, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: t0}
	rec := &recorder{}
	c, err := NewController(cfg, rec,
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewPCG(11, 13))),
	)
	require.NoError(t, err)
	if len(ids) > 0 {
		require.NoError(t, c.Load(0, makeItems(ids...)))
	}
	rec.reset()
	return c, rec, clock
}

func currentID(t *testing.T, c *Controller) string {
	t.Helper()
	return c.Snapshot().Progress.Item.ID
}

func TestController_ExampleScenario(t *testing.T) {
	for _, mode := range []cue.Mode{cue.ModeEvery, cue.ModeLast} {
		t.Run(mode.String(), func(t *testing.T) {
			cfg := baseConfig()
			cfg.TargetCount = 2
			cfg.CueMode = mode
			c, rec, _ := newTestController(t, cfg, "A", "B", "C")

			// 1. start at t=0
			require.NoError(t, c.Start())
			snap := c.Snapshot()
			assert.Equal(t, PhaseShowing, snap.Phase)
			assert.Equal(t, "A", snap.Progress.Item.ID)
			assert.Equal(t, 1, snap.SessionProgress)
			assert.Equal(t, []Phase{PhaseShowing}, rec.phases)

			// 2. display time elapses -> countdown until t=8000
			c.Advance(at(5000))
			assert.Equal(t, PhaseTransitioning, c.Phase())
			assert.Equal(t, 3*time.Second, rec.lastProgress().Remaining)

			c.Advance(at(7999))
			assert.Equal(t, PhaseTransitioning, c.Phase())

			// 3. countdown ends -> B, progress 2
			c.Advance(at(8000))
			snap = c.Snapshot()
			assert.Equal(t, PhaseShowing, snap.Phase)
			assert.Equal(t, "B", snap.Progress.Item.ID)
			assert.Equal(t, 2, snap.SessionProgress)
			if mode == cue.ModeEvery {
				assert.Equal(t, []cue.Reason{cue.ReasonEvery}, rec.cues)
			} else {
				assert.Empty(t, rec.cues, "departing index 0 of 3 is not the loop point")
			}

			c.Advance(at(12999))
			assert.Equal(t, PhaseShowing, c.Phase())

			// 4. final item held for its full duration, then finish without countdown
			c.Advance(at(13000))
			assert.Equal(t, 1, rec.finishes)
			assert.Equal(t, 1, rec.count(cue.ReasonSessionFinish))
			assert.Equal(t, []Phase{PhaseShowing, PhaseTransitioning, PhaseShowing, PhaseFinished}, rec.phases)
			assert.NotContains(t, rec.phases[3:], PhaseTransitioning)

			snap = c.Snapshot()
			assert.Equal(t, PhaseIdle, snap.Phase, "finish re-arms to idle")
			assert.True(t, snap.Finished)
			assert.Equal(t, 2, snap.SessionProgress)
			assert.Equal(t, "B", snap.Progress.Item.ID)

			// Further ticks do nothing.
			c.Advance(at(60000))
			assert.Equal(t, 1, rec.finishes)
		})
	}
}

func TestController_StartEmpty(t *testing.T) {
	c, rec, _ := newTestController(t, baseConfig())

	err := c.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyPlaylist))
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Empty(t, rec.phases)
	assert.Empty(t, rec.progress)
}

func TestController_StartWhileRunningIsNoop(t *testing.T) {
	c, rec, clock := newTestController(t, baseConfig(), "A", "B")
	require.NoError(t, c.Start())

	clock.Set(2000)
	rec.reset()
	require.NoError(t, c.Start())
	assert.Empty(t, rec.phases)

	c.Advance(at(5000))
	assert.Equal(t, PhaseTransitioning, c.Phase(), "deadline is still the original one")
}

func TestController_UnboundedSessionLoops(t *testing.T) {
	c, rec, _ := newTestController(t, baseConfig(), "A", "B", "C")
	require.NoError(t, c.Start())

	seen := []string{currentID(t, c)}
	now := 0
	for i := 0; i < 6; i++ {
		now += 5000
		c.Advance(at(now))
		now += 3000
		c.Advance(at(now))
		seen = append(seen, currentID(t, c))
	}

	assert.Equal(t, []string{"A", "B", "C", "A", "B", "C", "A"}, seen)
	assert.Equal(t, 0, c.Snapshot().SessionProgress)
	assert.Equal(t, 0, rec.finishes)
	assert.Equal(t, 6, rec.count(cue.ReasonEvery))
}

func TestController_BoundedSessionExactness(t *testing.T) {
	for target := 1; target <= 6; target++ {
		cfg := baseConfig()
		cfg.TargetCount = target
		c, rec, clock := newTestController(t, cfg, "A", "B", "C")
		require.NoError(t, c.Start())

		maxProgress := 0
		for ms := 0; ms <= 200000 && rec.finishes == 0; ms += 250 {
			// Sprinkle manual navigation; it must never count.
			if ms%23000 == 1750 {
				clock.Set(ms)
				before := c.Snapshot().SessionProgress
				if (ms/23000)%2 == 0 {
					c.Next()
				} else {
					c.Prev()
				}
				assert.Equal(t, before, c.Snapshot().SessionProgress, "manual navigation changed progress")
			}
			c.Advance(at(ms))
			if p := c.Snapshot().SessionProgress; p > maxProgress {
				maxProgress = p
			}
			assert.LessOrEqual(t, c.Snapshot().SessionProgress, target)
		}

		assert.Equal(t, target, maxProgress, "target=%d", target)
		assert.Equal(t, 1, rec.finishes, "target=%d", target)
		assert.Equal(t, target-1, rec.count(cue.ReasonEvery), "automatic advances for target=%d", target)
		assert.Equal(t, 1, rec.count(cue.ReasonSessionFinish), "finish cue for target=%d", target)
	}
}

func TestController_FixedCountdown(t *testing.T) {
	intervals := []time.Duration{time.Second, 5 * time.Second, 90 * time.Second, 10 * time.Minute}

	for _, interval := range intervals {
		t.Run(interval.String(), func(t *testing.T) {
			cfg := baseConfig()
			cfg.Interval = interval
			c, _, _ := newTestController(t, cfg, "A", "B")
			require.NoError(t, c.Start())

			start := t0.Add(interval)
			c.Advance(start)
			require.Equal(t, PhaseTransitioning, c.Phase())
			assert.Equal(t, TransitionDuration, c.Snapshot().Progress.PhaseDuration)

			c.Advance(start.Add(TransitionDuration - time.Millisecond))
			assert.Equal(t, PhaseTransitioning, c.Phase())

			c.Advance(start.Add(TransitionDuration))
			assert.Equal(t, PhaseShowing, c.Phase())
		})
	}
}

func TestController_IrregularTicksDoNotDrift(t *testing.T) {
	c, _, _ := newTestController(t, baseConfig(), "A", "B")
	require.NoError(t, c.Start())

	// Sparse, uneven ticks: the phase ends at the first tick past the deadline.
	for _, ms := range []int{16, 33, 1200, 1201, 4100} {
		c.Advance(at(ms))
		assert.Equal(t, PhaseShowing, c.Phase())
	}
	c.Advance(at(5400))
	require.Equal(t, PhaseTransitioning, c.Phase())

	// Countdown measured from the tick that started it.
	snap := c.Snapshot()
	assert.Equal(t, TransitionDuration, snap.Progress.PhaseDuration)
	c.Advance(at(8399))
	assert.Equal(t, PhaseTransitioning, c.Phase())
	c.Advance(at(8400))
	assert.Equal(t, PhaseShowing, c.Phase())
}

func TestController_ProgressRemaining(t *testing.T) {
	c, rec, _ := newTestController(t, baseConfig(), "A", "B")
	require.NoError(t, c.Start())

	c.Advance(at(1500))
	p := rec.lastProgress()
	assert.Equal(t, 3500*time.Millisecond, p.Remaining)
	assert.Equal(t, 4, p.SecondsRemaining())
	assert.InDelta(t, 0.3, p.Ratio(), 1e-9)
	assert.Equal(t, 0, p.Cursor)
	assert.Equal(t, 2, p.Length)
	assert.Equal(t, "A", p.Item.ID)
}

func TestController_LastModeCue(t *testing.T) {
	cfg := baseConfig()
	cfg.CueMode = cue.ModeLast
	c, rec, _ := newTestController(t, cfg, "A", "B", "C")
	require.NoError(t, c.Start())

	now := 0
	var fired []int
	for i := 0; i < 7; i++ {
		departing := c.Snapshot().Progress.Cursor
		before := len(rec.cues)
		now += 5000
		c.Advance(at(now))
		now += 3000
		c.Advance(at(now))
		if len(rec.cues) > before {
			assert.Equal(t, cue.ReasonLast, rec.cues[len(rec.cues)-1])
			fired = append(fired, departing)
		}
	}
	assert.Equal(t, []int{2, 2}, fired, "only departures from the last index fire")
}

func TestController_LastModeSingleItemNeverFires(t *testing.T) {
	cfg := baseConfig()
	cfg.CueMode = cue.ModeLast
	c, rec, _ := newTestController(t, cfg, "only")
	require.NoError(t, c.Start())

	now := 0
	for i := 0; i < 4; i++ {
		now += 5000
		c.Advance(at(now))
		now += 3000
		c.Advance(at(now))
	}
	assert.Empty(t, rec.cues)
	assert.Equal(t, "only", currentID(t, c))
}

func TestController_CueDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.CueEnabled = false
	cfg.TargetCount = 2
	c, rec, _ := newTestController(t, cfg, "A", "B")
	require.NoError(t, c.Start())

	c.Advance(at(5000))
	c.Advance(at(8000))
	c.Advance(at(13000))
	assert.Equal(t, 1, rec.finishes)
	assert.Empty(t, rec.cues)

	rec.reset()
	c.SetCueEnabled(true)
	require.NoError(t, c.Start())
	c.Advance(at(18000))
	c.Advance(at(21000))
	assert.Equal(t, []cue.Reason{cue.ReasonEvery}, rec.cues)
}

func TestController_ManualNavigationCancelsCountdown(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetCount = 3
	c, rec, clock := newTestController(t, cfg, "A", "B", "C")
	require.NoError(t, c.Start())

	c.Advance(at(5000))
	require.Equal(t, PhaseTransitioning, c.Phase())

	clock.Set(6000)
	rec.reset()
	c.Next()

	snap := c.Snapshot()
	assert.Equal(t, PhaseShowing, snap.Phase)
	assert.Equal(t, "B", snap.Progress.Item.ID)
	assert.Equal(t, 1, snap.SessionProgress)
	assert.Empty(t, rec.cues, "manual navigation never fires a cue")
	assert.Equal(t, []Phase{PhaseShowing}, rec.phases)

	// The abandoned countdown deadline (8000) has no effect.
	c.Advance(at(8000))
	assert.Equal(t, PhaseShowing, c.Phase())
	assert.Equal(t, "B", currentID(t, c))

	// New display deadline is measured from the manual move.
	c.Advance(at(10999))
	assert.Equal(t, PhaseShowing, c.Phase())
	c.Advance(at(11000))
	assert.Equal(t, PhaseTransitioning, c.Phase())
}

func TestController_ManualNavigationWhileShowingResetsDeadline(t *testing.T) {
	c, rec, clock := newTestController(t, baseConfig(), "A", "B", "C")
	require.NoError(t, c.Start())

	clock.Set(4000)
	rec.reset()
	c.Prev()
	assert.Equal(t, "C", currentID(t, c))
	assert.Empty(t, rec.phases, "showing to showing is not a phase change")

	c.Advance(at(5000))
	assert.Equal(t, PhaseShowing, c.Phase())
	c.Advance(at(9000))
	assert.Equal(t, PhaseTransitioning, c.Phase())
}

func TestController_ManualNavigationWhileIdle(t *testing.T) {
	c, rec, _ := newTestController(t, baseConfig(), "A", "B", "C")

	c.Next()
	c.Next()
	assert.Equal(t, "C", currentID(t, c))
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Empty(t, rec.phases)
	require.Len(t, rec.progress, 2)
	assert.Equal(t, 5*time.Second, rec.lastProgress().Remaining, "idle shows the full interval")

	c.Advance(at(100000))
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, "C", currentID(t, c))
}

func TestController_NavigationOnEmptyIsNoop(t *testing.T) {
	c, rec, _ := newTestController(t, baseConfig())
	c.Next()
	c.Prev()
	c.Reshuffle()
	c.Stop()

	assert.Empty(t, rec.phases)
	assert.Empty(t, rec.cues)
}

func TestController_CyclicManualNavigation(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E"}
	c, _, _ := newTestController(t, baseConfig(), ids...)
	c.Next()
	c.Next()
	start := currentID(t, c)

	for i := 0; i < len(ids); i++ {
		c.Next()
	}
	assert.Equal(t, start, currentID(t, c))
	for i := 0; i < len(ids); i++ {
		c.Prev()
	}
	assert.Equal(t, start, currentID(t, c))
}

func TestController_Stop(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetCount = 5
	c, rec, clock := newTestController(t, cfg, "A", "B", "C")
	require.NoError(t, c.Start())
	c.Advance(at(5000))
	c.Advance(at(8000))
	c.Advance(at(13000))
	require.Equal(t, PhaseTransitioning, c.Phase())
	require.Equal(t, 2, c.Snapshot().SessionProgress)

	rec.reset()
	c.Stop()

	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, 0, snap.SessionProgress)
	assert.Equal(t, "B", snap.Progress.Item.ID, "stop keeps the displayed item")
	assert.Equal(t, []Phase{PhaseIdle}, rec.phases)
	assert.Empty(t, rec.cues)

	// Pending countdown is gone.
	c.Advance(at(16000))
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, "B", currentID(t, c))

	// Stopping again is a no-op.
	rec.reset()
	c.Stop()
	assert.Empty(t, rec.phases)
	assert.Empty(t, rec.progress)

	// Start begins a fresh session.
	clock.Set(20000)
	require.NoError(t, c.Start())
	assert.Equal(t, 1, c.Snapshot().SessionProgress)
}

func TestController_StartAfterFinishBeginsNewSession(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetCount = 1
	c, rec, clock := newTestController(t, cfg, "A", "B")
	require.NoError(t, c.Start())
	c.Advance(at(5000))
	require.Equal(t, 1, rec.finishes)
	require.True(t, c.Snapshot().Finished)

	clock.Set(6000)
	require.NoError(t, c.Start())
	snap := c.Snapshot()
	assert.False(t, snap.Finished)
	assert.Equal(t, 1, snap.SessionProgress)
	assert.Equal(t, PhaseShowing, snap.Phase)

	c.Advance(at(11000))
	assert.Equal(t, 2, rec.finishes)
	assert.Equal(t, 2, rec.count(cue.ReasonSessionFinish))
}

func TestController_Toggle(t *testing.T) {
	c, _, _ := newTestController(t, baseConfig(), "A")

	require.NoError(t, c.Toggle())
	assert.Equal(t, PhaseShowing, c.Phase())
	require.NoError(t, c.Toggle())
	assert.Equal(t, PhaseIdle, c.Phase())

	empty, _, _ := newTestController(t, baseConfig())
	assert.ErrorIs(t, empty.Toggle(), ErrEmptyPlaylist)
}

func TestController_ReportLoadFailure(t *testing.T) {
	t.Run("current item replaced by successor", func(t *testing.T) {
		cfg := baseConfig()
		cfg.TargetCount = 3
		c, rec, _ := newTestController(t, cfg, "A", "B", "C")
		require.NoError(t, c.Start())
		c.Advance(at(1000))
		rec.reset()

		c.ReportLoadFailure("A")

		snap := c.Snapshot()
		assert.Equal(t, "B", snap.Progress.Item.ID)
		assert.Equal(t, 2, snap.Progress.Length)
		assert.Equal(t, 1, snap.SessionProgress)
		assert.Equal(t, PhaseShowing, snap.Phase)
		assert.Equal(t, []string{"A"}, rec.failures)
		assert.Empty(t, rec.cues)
		assert.Empty(t, rec.phases)
		assert.Len(t, rec.progress, 1)

		// Timing unaffected.
		c.Advance(at(5000))
		assert.Equal(t, PhaseTransitioning, c.Phase())
	})

	t.Run("other item removed silently", func(t *testing.T) {
		c, rec, _ := newTestController(t, baseConfig(), "A", "B", "C")
		assert.Equal(t, []int{0}, c.ReportLoadFailure("C"))

		assert.Equal(t, "A", currentID(t, c))
		assert.Equal(t, []string{"A", "B"}, item.IDs(c.Items(0)))
		assert.Equal(t, []string{"C"}, rec.failures)
		assert.Empty(t, rec.progress)
	})

	t.Run("last item exhausts playlist and forces stop", func(t *testing.T) {
		c, rec, _ := newTestController(t, baseConfig(), "A")
		require.NoError(t, c.Start())
		rec.reset()

		c.ReportLoadFailure("A")

		assert.Equal(t, PhaseIdle, c.Phase())
		assert.Equal(t, []string{"A"}, rec.failures)
		assert.Equal(t, []Phase{PhaseIdle}, rec.phases)
		assert.ErrorIs(t, c.Start(), ErrEmptyPlaylist)
	})

	t.Run("exhausted while idle still reports idle", func(t *testing.T) {
		c, rec, _ := newTestController(t, baseConfig(), "A")
		c.ReportLoadFailure("A")
		assert.Equal(t, []Phase{PhaseIdle}, rec.phases)
	})

	t.Run("unknown item is ignored", func(t *testing.T) {
		c, rec, _ := newTestController(t, baseConfig(), "A", "B")
		assert.Empty(t, c.ReportLoadFailure("nope"))
		assert.Empty(t, rec.failures)
		assert.Equal(t, 2, c.Snapshot().Progress.Length)
	})
}

func TestController_SetInterval(t *testing.T) {
	c, _, clock := newTestController(t, baseConfig(), "A", "B")
	require.NoError(t, c.Start())

	clock.Set(2000)
	require.NoError(t, c.SetInterval(10*time.Second))

	c.Advance(at(5000))
	assert.Equal(t, PhaseShowing, c.Phase())
	c.Advance(at(11999))
	assert.Equal(t, PhaseShowing, c.Phase())
	c.Advance(at(12000))
	assert.Equal(t, PhaseTransitioning, c.Phase())

	// A running countdown keeps its length; the new interval applies next.
	clock.Set(13000)
	require.NoError(t, c.SetInterval(20*time.Second))
	c.Advance(at(15000))
	assert.Equal(t, PhaseShowing, c.Phase())
	c.Advance(at(34999))
	assert.Equal(t, PhaseShowing, c.Phase())
	c.Advance(at(35000))
	assert.Equal(t, PhaseTransitioning, c.Phase())

	assert.ErrorIs(t, c.SetInterval(0), ErrInvalidInterval)
	assert.ErrorIs(t, c.SetInterval(-time.Second), ErrInvalidInterval)
	assert.Equal(t, 20*time.Second, c.Config().Interval)
}

func TestController_SetTargetCountMidSession(t *testing.T) {
	t.Run("enabling a target counts the current item", func(t *testing.T) {
		c, rec, _ := newTestController(t, baseConfig(), "A", "B", "C")
		require.NoError(t, c.Start())
		require.Equal(t, 0, c.Snapshot().SessionProgress)

		require.NoError(t, c.SetTargetCount(2))
		assert.Equal(t, 1, c.Snapshot().SessionProgress)

		c.Advance(at(5000))
		c.Advance(at(8000))
		c.Advance(at(13000))
		assert.Equal(t, 1, rec.finishes)
	})

	t.Run("lowering below progress clamps", func(t *testing.T) {
		cfg := baseConfig()
		cfg.TargetCount = 5
		c, rec, _ := newTestController(t, cfg, "A", "B", "C")
		require.NoError(t, c.Start())
		c.Advance(at(5000))
		c.Advance(at(8000))
		c.Advance(at(13000))
		c.Advance(at(16000))
		require.Equal(t, 3, c.Snapshot().SessionProgress)

		require.NoError(t, c.SetTargetCount(2))
		assert.Equal(t, 2, c.Snapshot().SessionProgress)

		c.Advance(at(21000))
		assert.Equal(t, 1, rec.finishes)
	})

	t.Run("negative rejected", func(t *testing.T) {
		c, _, _ := newTestController(t, baseConfig(), "A")
		assert.ErrorIs(t, c.SetTargetCount(-1), ErrInvalidTargetCount)
	})
}

func TestController_LoadStopsSessionAndShuffles(t *testing.T) {
	c, rec, _ := newTestController(t, baseConfig(), "A", "B")
	require.NoError(t, c.Start())
	rec.reset()

	c.SetShuffleEnabled(false)
	require.NoError(t, c.Load(0, makeItems("1", "2", "3", "4", "5", "6")))
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, []Phase{PhaseIdle}, rec.phases)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, item.IDs(c.Items(0)))

	c.SetShuffleEnabled(true)
	require.NoError(t, c.Load(0, makeItems("1", "2", "3", "4", "5", "6", "7", "8")))
	ids := item.IDs(c.Items(0))
	assert.NotEqual(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, ids)
	sort.Strings(ids)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8"}, ids)

	assert.ErrorIs(t, c.Load(3, nil), ErrUnknownLane)
}

func TestController_ReshufflePreservesCurrent(t *testing.T) {
	c, _, _ := newTestController(t, baseConfig(), "A", "B", "C", "D", "E")
	require.NoError(t, c.Start())
	c.Next()
	c.Next()
	require.Equal(t, "C", currentID(t, c))

	c.Reshuffle()

	snap := c.Snapshot()
	assert.Equal(t, "C", snap.Progress.Item.ID)
	assert.Equal(t, 0, snap.Progress.Cursor)
	assert.Equal(t, PhaseShowing, snap.Phase)
}

func TestController_Reset(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetCount = 4
	c, _, _ := newTestController(t, cfg, "A", "B", "C")
	require.NoError(t, c.SetInterval(30*time.Second))
	require.NoError(t, c.Start())
	c.Next()

	c.Reset()

	snap := c.Snapshot()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Equal(t, 0, snap.SessionProgress)
	assert.Equal(t, 5*time.Second, snap.Config.Interval)
	assert.Equal(t, 0, snap.Config.TargetCount)
	assert.True(t, snap.Config.Shuffle)
	assert.Equal(t, "B", snap.Progress.Item.ID)
	assert.Equal(t, 0, snap.Progress.Cursor)
}

func TestController_CueSettings(t *testing.T) {
	c, _, _ := newTestController(t, baseConfig(), "A")
	c.SetCueMode(cue.ModeLast)
	c.SetCueEnabled(false)
	require.NoError(t, c.SetCueVolume(0.25))
	assert.ErrorIs(t, c.SetCueVolume(1.5), ErrInvalidVolume)

	cfg := c.Config()
	assert.Equal(t, cue.ModeLast, cfg.CueMode)
	assert.False(t, cfg.CueEnabled)
	assert.Equal(t, 0.25, cfg.CueVolume)
}

func TestController_DualLayout(t *testing.T) {
	cfg := baseConfig()
	cfg.Layout = LayoutDual
	cfg.CueMode = cue.ModeLast
	c, rec, _ := newTestController(t, cfg)
	require.Equal(t, 2, c.LaneCount())
	require.NoError(t, c.Load(0, makeItems("a", "b")))
	require.NoError(t, c.Load(1, makeItems("x", "y", "z")))
	rec.reset()

	require.NoError(t, c.Start())

	// Departing (left, right) cursors: (0,0) (1,1) (0,2) (1,0) (0,1)
	want := []bool{false, true, true, true, false}
	now := 0
	for i, fire := range want {
		before := len(rec.cues)
		now += 5000
		c.Advance(at(now))
		now += 3000
		c.Advance(at(now))
		assert.Equal(t, fire, len(rec.cues) > before, "advance %d", i+1)
	}

	lanes := c.Snapshot().Progress.Lanes
	require.Len(t, lanes, 2)
	assert.Equal(t, "b", lanes[0].Item.ID)
	assert.Equal(t, "z", lanes[1].Item.ID)
}

func TestController_DualLayoutOneLaneEmpty(t *testing.T) {
	cfg := baseConfig()
	cfg.Layout = LayoutDual
	c, rec, _ := newTestController(t, cfg)
	require.NoError(t, c.Load(1, makeItems("x", "y")))

	require.NoError(t, c.Start(), "any non-empty lane is enough")
	p := c.Snapshot().Progress
	assert.True(t, p.Item.IsZero())
	assert.Equal(t, -1, p.Cursor)
	assert.Equal(t, "x", p.Lanes[1].Item.ID)

	c.ReportLoadFailure("x")
	assert.Equal(t, PhaseShowing, c.Phase())
	c.ReportLoadFailure("y")
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, []string{"x", "y"}, rec.failures)
}

func TestController_ReportLoadFailureSharedItem(t *testing.T) {
	cfg := baseConfig()
	cfg.Layout = LayoutDual
	c, rec, _ := newTestController(t, cfg)
	require.NoError(t, c.Load(0, makeItems("a", "b")))
	require.NoError(t, c.Load(1, makeItems("a", "b")))
	require.NoError(t, c.Start())
	rec.reset()

	assert.Equal(t, []int{0, 1}, c.ReportLoadFailure("a"))
	assert.Equal(t, []string{"b"}, item.IDs(c.Items(0)))
	assert.Equal(t, []string{"b"}, item.IDs(c.Items(1)))
	assert.Equal(t, []string{"a"}, rec.failures, "one failure event per item")
	assert.Len(t, rec.progress, 1)
	assert.Equal(t, PhaseShowing, c.Phase())

	// Reporting again finds nothing
	assert.Empty(t, c.ReportLoadFailure("a"))

	assert.Equal(t, []int{0, 1}, c.ReportLoadFailure("b"))
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Equal(t, []string{"a", "b"}, rec.failures)
}

func TestController_PresenterMayCallBack(t *testing.T) {
	cfg := baseConfig()
	cfg.TargetCount = 1
	c, rec, _ := newTestController(t, cfg, "A", "B")

	var snap Snapshot
	rec.onFinish = func() {
		snap = c.Snapshot()
		c.Next()
	}

	require.NoError(t, c.Start())
	c.Advance(at(5000))

	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.True(t, snap.Finished)
	assert.Equal(t, "B", currentID(t, c))
}

func TestController_ChannelPresenter(t *testing.T) {
	ch := NewChannelPresenter(16)
	clock := &fakeClock{t: t0}
	c, err := NewController(baseConfig(), ch, WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, c.Load(0, makeItems("A")))
	require.NoError(t, c.Start())

	var types []EventType
	for len(ch.Events()) > 0 {
		e := <-ch.Events()
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventProgress, EventPhaseChanged, EventProgress}, types)
}

func TestNewController_InvalidConfig(t *testing.T) {
	_, err := NewController(Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NewController(Config{Interval: time.Second, TargetCount: -2}, nil)
	assert.ErrorIs(t, err, ErrInvalidTargetCount)

	_, err = NewController(Config{Interval: time.Second, CueVolume: 2}, nil)
	assert.ErrorIs(t, err, ErrInvalidVolume)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "showing", PhaseShowing.String())
	assert.Equal(t, "transitioning", PhaseTransitioning.String())
	assert.Equal(t, "finished", PhaseFinished.String())
	assert.Equal(t, "unknown", Phase(42).String())
	assert.True(t, PhaseTransitioning.Running())
	assert.False(t, PhaseFinished.Running())
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("Dual")
	require.NoError(t, err)
	assert.Equal(t, LayoutDual, l)
	assert.Equal(t, 2, l.Lanes())

	l, err = ParseLayout("")
	require.NoError(t, err)
	assert.Equal(t, LayoutSingle, l)

	_, err = ParseLayout("triple")
	assert.Error(t, err)
}
