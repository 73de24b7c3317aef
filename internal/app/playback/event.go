package playback

import (
	"math"
	"time"

	"github.com/osa030/croquis/internal/app/cue"
	"github.com/osa030/croquis/internal/domain/item"
)

// EventType represents a playback event type.
type EventType int

const (
	EventPhaseChanged   EventType = iota // Phase changed
	EventProgress                        // Remaining time or displayed item changed
	EventCue                             // An audio cue should play
	EventFinished                        // Bounded session finished
	EventItemLoadFailed                  // An item could not be displayed and was dropped
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventPhaseChanged:
		return "phase_changed"
	case EventProgress:
		return "progress"
	case EventCue:
		return "cue"
	case EventFinished:
		return "finished"
	case EventItemLoadFailed:
		return "item_load_failed"
	default:
		return "unknown"
	}
}

// LaneProgress describes what one playlist currently shows.
type LaneProgress struct {
	Item   item.Item // Zero when the lane is empty
	Cursor int       // -1 when the lane is empty
	Length int
}

// Progress is the display state pushed to presenters.
// Item, Cursor and Length mirror the first lane.
type Progress struct {
	Phase           Phase
	Remaining       time.Duration // Time left in the current phase
	PhaseDuration   time.Duration // Full length of the current phase
	Item            item.Item
	Cursor          int
	Length          int
	Lanes           []LaneProgress
	SessionProgress int
	TargetCount     int // 0 = unlimited
}

// SecondsRemaining returns the remaining time rounded up to whole seconds.
func (p Progress) SecondsRemaining() int {
	if p.Remaining <= 0 {
		return 0
	}
	return int(math.Ceil(p.Remaining.Seconds()))
}

// Ratio returns the elapsed fraction of the current phase in [0, 1].
func (p Progress) Ratio() float64 {
	if p.PhaseDuration <= 0 {
		return 0
	}
	r := 1 - float64(p.Remaining)/float64(p.PhaseDuration)
	return math.Min(1, math.Max(0, r))
}

// Bounded reports whether the session has a target count.
func (p Progress) Bounded() bool {
	return p.TargetCount > 0
}

// Event represents a playback event.
type Event struct {
	Type      EventType
	Phase     Phase      // EventPhaseChanged
	Progress  Progress   // EventProgress
	CueReason cue.Reason // EventCue
	ItemID    string     // EventItemLoadFailed
}
