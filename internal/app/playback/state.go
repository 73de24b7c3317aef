// Package playback provides the session playback engine: a timer-driven phase
// machine over one or two playlists.
package playback

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Phase represents the session phase.
type Phase int

const (
	PhaseIdle          Phase = iota // No session running
	PhaseShowing                    // Current item is on display
	PhaseTransitioning              // Countdown before the automatic advance
	PhaseFinished                   // Bounded session reached its target (momentary)
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseShowing:
		return "showing"
	case PhaseTransitioning:
		return "transitioning"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Running reports whether a session is in progress.
func (p Phase) Running() bool {
	switch p {
	case PhaseShowing, PhaseTransitioning:
		return true
	case PhaseIdle, PhaseFinished:
		return false
	default:
		return false
	}
}

// Layout is the number of playlists shown side by side.
type Layout int

const (
	LayoutSingle Layout = iota // One playlist
	LayoutDual                 // Two playlists advanced together
)

// String returns the string representation of the layout.
func (l Layout) String() string {
	switch l {
	case LayoutSingle:
		return "single"
	case LayoutDual:
		return "dual"
	default:
		return "unknown"
	}
}

// Lanes returns the number of playlists for the layout.
func (l Layout) Lanes() int {
	if l == LayoutDual {
		return 2
	}
	return 1
}

// ParseLayout parses "single" or "dual".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single", "":
		return LayoutSingle, nil
	case "dual":
		return LayoutDual, nil
	default:
		return LayoutSingle, errors.Newf("unknown layout: %q", s)
	}
}
