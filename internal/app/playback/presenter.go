package playback

import (
	"github.com/osa030/croquis/internal/app/cue"
)

// Presenter receives controller notifications. Calls are synchronous and
// happen after the controller has released its lock, so implementations may
// call back into the controller.
type Presenter interface {
	OnPhaseChange(phase Phase)
	OnProgress(p Progress)
	OnCue(reason cue.Reason)
	OnFinish()
	OnItemLoadFailure(itemID string)
}

// NopPresenter ignores every notification.
type NopPresenter struct{}

func (NopPresenter) OnPhaseChange(Phase)      {}
func (NopPresenter) OnProgress(Progress)      {}
func (NopPresenter) OnCue(cue.Reason)         {}
func (NopPresenter) OnFinish()                {}
func (NopPresenter) OnItemLoadFailure(string) {}

// ChannelPresenter forwards notifications as Events on a buffered channel.
// Sends never block; events are dropped when the buffer is full.
type ChannelPresenter struct {
	ch chan Event
}

// NewChannelPresenter creates a ChannelPresenter with the given buffer size.
func NewChannelPresenter(size int) *ChannelPresenter {
	return &ChannelPresenter{ch: make(chan Event, size)}
}

// Events returns the event channel.
func (p *ChannelPresenter) Events() <-chan Event {
	return p.ch
}

func (p *ChannelPresenter) send(e Event) {
	select {
	case p.ch <- e:
	default:
	}
}

func (p *ChannelPresenter) OnPhaseChange(phase Phase) {
	p.send(Event{Type: EventPhaseChanged, Phase: phase})
}

func (p *ChannelPresenter) OnProgress(pr Progress) {
	p.send(Event{Type: EventProgress, Phase: pr.Phase, Progress: pr})
}

func (p *ChannelPresenter) OnCue(reason cue.Reason) {
	p.send(Event{Type: EventCue, CueReason: reason})
}

func (p *ChannelPresenter) OnFinish() {
	p.send(Event{Type: EventFinished, Phase: PhaseFinished})
}

func (p *ChannelPresenter) OnItemLoadFailure(itemID string) {
	p.send(Event{Type: EventItemLoadFailed, ItemID: itemID})
}

// dispatch delivers an event to a presenter.
func dispatch(p Presenter, e Event) {
	switch e.Type {
	case EventPhaseChanged:
		p.OnPhaseChange(e.Phase)
	case EventProgress:
		p.OnProgress(e.Progress)
	case EventCue:
		p.OnCue(e.CueReason)
	case EventFinished:
		p.OnFinish()
	case EventItemLoadFailed:
		p.OnItemLoadFailure(e.ItemID)
	}
}
