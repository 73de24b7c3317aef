// Package audio plays session cues through the system speaker.
package audio

import (
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/app/cue"
)

// SampleRate is the speaker sample rate; every sound is resampled to it.
const SampleRate beep.SampleRate = 44100

// Output is the audio device.
type Output interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Clear()
}

type speakerOutput struct{}

func (speakerOutput) Init(sr beep.SampleRate, bufferSize int) error {
	return speaker.Init(sr, bufferSize)
}
func (speakerOutput) Play(s ...beep.Streamer) { speaker.Play(s...) }
func (speakerOutput) Clear()                  { speaker.Clear() }

// Config represents cue player configuration.
type Config struct {
	CueSound    string  // Audio file for automatic cues, empty = tone
	FinishSound string  // Audio file for the finish cue, empty = cue sound
	Volume      float64 // 0.0 - 1.0
}

// Player plays cue sounds. Play never blocks on the sound finishing.
type Player struct {
	mu     sync.Mutex
	out    Output
	ready  bool
	volume float64
	cue    *Sound
	finish *Sound
}

// Option configures a Player.
type Option func(*Player)

// WithOutput replaces the speaker.
func WithOutput(out Output) Option {
	return func(p *Player) {
		p.out = out
	}
}

// NewPlayer decodes the configured sounds. The speaker is opened lazily on
// the first cue.
func NewPlayer(cfg Config, opts ...Option) (*Player, error) {
	p := &Player{
		out:    speakerOutput{},
		volume: clamp(cfg.Volume),
	}
	for _, opt := range opts {
		opt(p)
	}

	var err error
	if cfg.CueSound != "" {
		p.cue, err = LoadSound(cfg.CueSound, SampleRate)
	} else {
		p.cue, err = Tone(SampleRate, 880, 250*time.Millisecond)
	}
	if err != nil {
		return nil, err
	}

	p.finish = p.cue
	if cfg.FinishSound != "" {
		if p.finish, err = LoadSound(cfg.FinishSound, SampleRate); err != nil {
			return nil, err
		}
	}

	zlog.Debug().Msgf("audio: cue=%q (%v) finish=%q (%v)", p.cue.Title, p.cue.Duration, p.finish.Title, p.finish.Duration)
	return p, nil
}

// Play starts the sound for a cue reason. A cue replaces one still playing.
func (p *Player) Play(reason cue.Reason) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		if err := p.out.Init(SampleRate, SampleRate.N(time.Second/10)); err != nil {
			return errors.Wrap(err, "failed to open speaker")
		}
		p.ready = true
	}

	snd := p.cue
	if reason == cue.ReasonSessionFinish {
		snd = p.finish
	}

	vol := &effects.Volume{
		Streamer: snd.Streamer(),
		Base:     2,
		Volume:   levelToVolume(p.volume),
		Silent:   p.volume <= 0,
	}
	p.out.Clear()
	p.out.Play(vol)
	return nil
}

// SetVolume sets the level (0.0 to 1.0) used by later cues.
func (p *Player) SetVolume(level float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clamp(level)
}

// Volume returns the current level.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// CueTitle returns the title of the automatic cue sound.
func (p *Player) CueTitle() string {
	return p.cue.Title
}

// levelToVolume maps a 0.0-1.0 level to beep's base-2 volume:
// 1.0 -> 0, 0.5 -> -1, 0.25 -> -2, 0 -> -10.
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}

func clamp(level float64) float64 {
	return math.Min(1, math.Max(0, level))
}
