// Package tui renders the session in the terminal and maps keys to session
// operations.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"

	"github.com/osa030/croquis/internal/app/cue"
	"github.com/osa030/croquis/internal/app/notification"
	"github.com/osa030/croquis/internal/app/playback"
	"github.com/osa030/croquis/internal/app/session"
)

const (
	refreshInterval = 100 * time.Millisecond
	cueFlash        = 700 * time.Millisecond
	volumeStep      = 0.1
)

// Session is the part of the session manager the presenter drives.
type Session interface {
	Snapshot() playback.Snapshot
	ToggleSession() error
	Next()
	Prev()
	Reset()
	Reshuffle()
	UpdateSettings(s session.Settings) error
	GetStatus() *session.Status
	GetNotificationManager() *notification.Manager
}

type tickMsg time.Time

type notificationMsg *notification.Notification

// Model is the Bubbletea model of the presenter.
type Model struct {
	session Session
	stream  *notification.ChannelStream

	snapshot playback.Snapshot
	finish   *session.FinishView
	lastCue  string
	cueUntil time.Time
	message  string
	failed   bool
	now      func() time.Time

	width    int
	keys     KeyMap
	help     help.Model
	progress progress.Model
}

// New creates a new Model. The stream should be subscribed to the session's
// notification manager.
func New(s Session, stream *notification.ChannelStream) Model {
	h := help.New()
	h.Styles.ShortKey = lipgloss.NewStyle().Foreground(ColorFgMuted)
	h.Styles.ShortDesc = lipgloss.NewStyle().Foreground(ColorFgMuted)
	h.Styles.FullKey = lipgloss.NewStyle().Foreground(ColorFgMuted)
	h.Styles.FullDesc = lipgloss.NewStyle().Foreground(ColorFgMuted)

	return Model{
		session:  s,
		stream:   stream,
		snapshot: s.Snapshot(),
		now:      time.Now,
		keys:     DefaultKeyMap(),
		help:     h,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(40)),
	}
}

// Run runs the presenter until the user quits or ctx is cancelled.
func Run(ctx context.Context, s Session) error {
	notifManager := s.GetNotificationManager()
	stream := notification.NewChannelStream(64)
	id := notifManager.Subscribe(stream)
	defer notifManager.Unsubscribe(id)

	p := tea.NewProgram(New(s, stream), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "terminal presenter failed")
	}
	return nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForNotification(stream *notification.ChannelStream) tea.Cmd {
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		return notificationMsg(<-stream.C())
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), waitForNotification(m.stream), tea.SetWindowTitle("croquis"))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.progress.Width = max(10, min(80, msg.Width-4))
		return m, nil

	case tickMsg:
		m.snapshot = m.session.Snapshot()
		return m, tickCmd()

	case notificationMsg:
		m.handleNotification(msg)
		return m, waitForNotification(m.stream)

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		m.handleKey(msg)
		m.snapshot = m.session.Snapshot()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleNotification(n *notification.Notification) {
	if n == nil {
		return
	}
	switch n.Type {
	case notification.TypeCue:
		m.cueUntil = m.now().Add(cueFlash)
		if data, ok := n.Data.(map[string]string); ok {
			m.lastCue = data["reason"]
		}
	case notification.TypeFinished:
		if v, ok := n.Data.(session.FinishView); ok {
			m.finish = &v
		}
	case notification.TypeItemLoadFailed:
		m.setMessage("An item could not be shown and was skipped", true)
	case notification.TypePlaylistChanged:
		if lane, ok := n.Data.(session.LaneStatus); ok {
			m.setMessage(fmt.Sprintf("%s: %d items (%s)", lane.Name, lane.Items, lane.State), lane.State == "failed")
		}
	case notification.TypeInitialState, notification.TypePhaseChanged, notification.TypeProgress, notification.TypeSettingsChanged:
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) {
	cfg := m.snapshot.Config

	switch {
	case key.Matches(msg, m.keys.Toggle):
		m.finish = nil
		if err := m.session.ToggleSession(); err != nil {
			if errors.Is(err, playback.ErrEmptyPlaylist) {
				m.setMessage("Nothing to show: the playlist is empty", true)
				return
			}
			m.setMessage(err.Error(), true)
			return
		}
		m.message = ""

	case key.Matches(msg, m.keys.Next):
		m.finish = nil
		m.session.Next()

	case key.Matches(msg, m.keys.Prev):
		m.finish = nil
		m.session.Prev()

	case key.Matches(msg, m.keys.Reset):
		m.finish = nil
		m.session.Reset()
		m.setMessage("Settings reset", false)

	case key.Matches(msg, m.keys.Reshuffle):
		m.session.Reshuffle()
		m.setMessage("Reshuffled", false)

	case key.Matches(msg, m.keys.Slower):
		m.updateInterval(session.StepInterval(cfg.Interval, 1))

	case key.Matches(msg, m.keys.Faster):
		m.updateInterval(session.StepInterval(cfg.Interval, -1))

	case key.Matches(msg, m.keys.TargetUp):
		target := cfg.TargetCount + 1
		m.update(session.Settings{TargetCount: &target})

	case key.Matches(msg, m.keys.TargetDown):
		target := max(0, cfg.TargetCount-1)
		m.update(session.Settings{TargetCount: &target})

	case key.Matches(msg, m.keys.Shuffle):
		shuffle := !cfg.Shuffle
		m.update(session.Settings{Shuffle: &shuffle})

	case key.Matches(msg, m.keys.CueMode):
		mode := cue.ModeLast
		if cfg.CueMode == cue.ModeLast {
			mode = cue.ModeEvery
		}
		name := mode.String()
		m.update(session.Settings{CueMode: &name})

	case key.Matches(msg, m.keys.Cue):
		enabled := !cfg.CueEnabled
		m.update(session.Settings{CueEnabled: &enabled})

	case key.Matches(msg, m.keys.VolumeUp):
		m.updateVolume(cfg.CueVolume + volumeStep)

	case key.Matches(msg, m.keys.VolumeDown):
		m.updateVolume(cfg.CueVolume - volumeStep)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
}

func (m *Model) updateInterval(d time.Duration) {
	ms := d.Milliseconds()
	m.update(session.Settings{IntervalMs: &ms})
}

func (m *Model) updateVolume(v float64) {
	v = math.Round(math.Min(1, math.Max(0, v))*10) / 10
	m.update(session.Settings{CueVolume: &v})
}

func (m *Model) update(s session.Settings) {
	if err := m.session.UpdateSettings(s); err != nil {
		m.setMessage(err.Error(), true)
	}
}

func (m *Model) setMessage(msg string, failed bool) {
	m.message = msg
	m.failed = failed
}

func (m Model) View() string {
	var sb strings.Builder
	snap := m.snapshot
	p := snap.Progress

	// Header
	phase := snap.Phase.String()
	if snap.Finished {
		phase = playback.PhaseFinished.String()
	}
	sb.WriteString(HeaderStyle.Render("croquis"))
	sb.WriteString("  ")
	sb.WriteString(PhaseStyles[phase].Render(strings.ToUpper(phase)))
	if m.now().Before(m.cueUntil) {
		sb.WriteString("  ")
		sb.WriteString(CueFlashStyle.Render("♪ " + m.lastCue))
	}
	sb.WriteString("\n\n")

	// Finish screen
	if snap.Finished && m.finish != nil {
		text := m.finish.Message
		if m.finish.Image != "" {
			text += "\n" + MutedStyle.Render(m.finish.Image)
		}
		sb.WriteString(FinishStyle.Render(text))
		sb.WriteString("\n")
	} else {
		sb.WriteString(m.lanesView(p))
		sb.WriteString("\n")
	}

	// Countdown
	sb.WriteString(CountdownStyle.Render(m.countdown(p)))
	sb.WriteString("\n ")
	sb.WriteString(m.progress.ViewAs(p.Ratio()))
	sb.WriteString("\n\n")

	// Settings
	sb.WriteString(" ")
	sb.WriteString(MutedStyle.Render(settingsLine(snap)))
	sb.WriteString("\n")

	if m.message != "" {
		style := MutedStyle
		if m.failed {
			style = ErrorStyle
		}
		sb.WriteString(" ")
		sb.WriteString(style.Render(m.message))
		sb.WriteString("\n")
	}

	sb.WriteString("\n ")
	sb.WriteString(m.help.View(m.keys))
	sb.WriteString("\n")
	return sb.String()
}

func (m Model) lanesView(p playback.Progress) string {
	boxes := make([]string, 0, len(p.Lanes))
	for _, lane := range p.Lanes {
		var body string
		if lane.Length == 0 {
			body = MutedStyle.Render("(empty)")
		} else {
			body = ItemNameStyle.Render(lane.Item.Name) +
				MutedStyle.Render(fmt.Sprintf("  %d/%d", lane.Cursor+1, lane.Length))
			if lane.Item.Caption != "" {
				body += "\n" + MutedStyle.Render(lane.Item.Caption)
			}
			body += "\n" + MutedStyle.Render(lane.Item.DisplayRef)
		}
		boxes = append(boxes, LaneStyle.Render(body))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (m Model) countdown(p playback.Progress) string {
	secs := p.SecondsRemaining()
	clock := fmt.Sprintf("%d:%02d", secs/60, secs%60)

	counter := ""
	if p.Bounded() {
		counter = fmt.Sprintf("   %d / %d", p.SessionProgress, p.TargetCount)
	}

	switch p.Phase {
	case playback.PhaseTransitioning:
		return fmt.Sprintf("next in %d%s", secs, counter)
	case playback.PhaseShowing:
		return clock + counter
	case playback.PhaseIdle, playback.PhaseFinished:
		return clock + MutedStyle.Render("  press space to start") + counter
	default:
		return clock
	}
}

func settingsLine(snap playback.Snapshot) string {
	cfg := snap.Config
	target := "∞"
	if cfg.TargetCount > 0 {
		target = fmt.Sprintf("%d", cfg.TargetCount)
	}
	cueLabel := "off"
	if cfg.CueEnabled {
		cueLabel = fmt.Sprintf("%s %d%%", cfg.CueMode, int(math.Round(cfg.CueVolume*100)))
	}
	shuffle := "off"
	if cfg.Shuffle {
		shuffle = "on"
	}
	return fmt.Sprintf("interval %v · items %s · cue %s · shuffle %s · %s",
		cfg.Interval, target, cueLabel, shuffle, cfg.Layout)
}
