package audio

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/generators"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for files that are not wav, mp3 or flac.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Sound is a decoded cue held in memory so it can be replayed from the start.
type Sound struct {
	Title    string
	Path     string // Empty for the built-in tone
	Duration time.Duration

	buffer *beep.Buffer
}

// Streamer returns a fresh streamer over the whole sound.
func (s *Sound) Streamer() beep.StreamSeeker {
	return s.buffer.Streamer(0, s.buffer.Len())
}

// LoadSound decodes an audio file and resamples it to sampleRate.
func LoadSound(path string, sampleRate beep.SampleRate) (*Sound, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sound %s", path)
	}
	defer f.Close()

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		streamer, format, err = wav.Decode(f)
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode sound %s", path)
	}
	defer streamer.Close()

	var src beep.Streamer = streamer
	if format.SampleRate != sampleRate {
		src = beep.Resample(4, format.SampleRate, sampleRate, streamer)
	}

	buffer := beep.NewBuffer(beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 2})
	buffer.Append(src)
	if buffer.Len() == 0 {
		return nil, errors.Newf("sound %s is empty", path)
	}

	return &Sound{
		Title:    readTitle(path),
		Path:     path,
		Duration: sampleRate.D(buffer.Len()),
		buffer:   buffer,
	}, nil
}

// Tone builds a short sine beep, used when no cue file is configured.
func Tone(sampleRate beep.SampleRate, freq float64, d time.Duration) (*Sound, error) {
	sine, err := generators.SineTone(sampleRate, freq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create tone")
	}

	buffer := beep.NewBuffer(beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 2})
	buffer.Append(beep.Take(sampleRate.N(d), sine))

	return &Sound{
		Title:    "tone",
		Duration: d,
		buffer:   buffer,
	}, nil
}

// readTitle returns "Artist - Title" from the file tags, or the file name.
func readTitle(path string) string {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if err != nil {
		return name
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil || m.Title() == "" {
		return name
	}
	if m.Artist() != "" {
		return m.Artist() + " - " + m.Title()
	}
	return m.Title()
}
