// Package cue decides when an audio cue should accompany a playlist move.
// It only decides intent; playing the sound is left to the caller.
package cue

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind is the kind of move being evaluated.
type Kind int

const (
	KindManual        Kind = iota // User navigation (next/prev)
	KindAutomatic                 // Timer-driven advance after the countdown
	KindSessionFinish             // A bounded session reached its target
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindManual:
		return "manual"
	case KindAutomatic:
		return "automatic"
	case KindSessionFinish:
		return "session_finish"
	default:
		return "unknown"
	}
}

// Mode is the configured cue policy for automatic advances.
type Mode int

const (
	ModeEvery Mode = iota // Cue on every automatic advance
	ModeLast              // Cue only when leaving the last item (loop point)
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeEvery:
		return "every"
	case ModeLast:
		return "last"
	default:
		return "unknown"
	}
}

// ParseMode parses "every" or "last".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "every", "":
		return ModeEvery, nil
	case "last":
		return ModeLast, nil
	default:
		return ModeEvery, errors.Newf("unknown cue mode: %q", s)
	}
}

// Reason tells the audio side why a cue fired.
type Reason int

const (
	ReasonEvery Reason = iota
	ReasonLast
	ReasonSessionFinish
)

// String returns the string representation of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonEvery:
		return "every"
	case ReasonLast:
		return "last"
	case ReasonSessionFinish:
		return "session_finish"
	default:
		return "unknown"
	}
}

// ReasonFor maps a fired cue to the reason reported to listeners.
func ReasonFor(kind Kind, mode Mode) Reason {
	if kind == KindSessionFinish {
		return ReasonSessionFinish
	}
	if mode == ModeLast {
		return ReasonLast
	}
	return ReasonEvery
}

// Position is the part of a playlist the trigger looks at.
type Position interface {
	Cursor() int
	Len() int
}

// ShouldFire decides whether a cue fires for a move of the given kind.
// lanes holds the playlists being advanced, evaluated before the move so the
// cursor is the departing position. Under ModeLast a lane "loops" when it
// departs from its last index and has more than one item; any looping lane
// fires the cue.
func ShouldFire(lanes []Position, kind Kind, mode Mode, enabled bool) bool {
	if !enabled {
		return false
	}

	switch kind {
	case KindManual:
		return false
	case KindSessionFinish:
		return true
	case KindAutomatic:
		switch mode {
		case ModeEvery:
			return true
		case ModeLast:
			for _, l := range lanes {
				if loops(l) {
					return true
				}
			}
			return false
		}
	}
	return false
}

func loops(p Position) bool {
	if p == nil {
		return false
	}
	n := p.Len()
	return n > 1 && p.Cursor() == n-1
}
