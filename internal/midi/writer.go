package midi

import (
	"fmt"
	"io"
	"math"
	"os"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/ironsheep/sheet-music-mcp/internal/pitch"
)

// TicksPerQuarter is the file's time resolution.
const TicksPerQuarter = 960

// Options control the written file.
type Options struct {
	// Tempo in beats per minute.
	Tempo float64 `toml:"tempo"`

	// Velocity is applied to every note (1-127).
	Velocity uint8 `toml:"velocity"`

	// Channel is the MIDI channel (0-15).
	Channel uint8 `toml:"channel"`

	// TrackName is written as the track's sequence name when set.
	TrackName string `toml:"-"`
}

// DefaultOptions returns 100 BPM, velocity 100 on channel 0.
func DefaultOptions() Options {
	return Options{Tempo: 100, Velocity: 100, Channel: 0}
}

// Validate checks that the options can be encoded.
func (o Options) Validate() error {
	if o.Tempo <= 0 || math.IsNaN(o.Tempo) || math.IsInf(o.Tempo, 0) {
		return fmt.Errorf("tempo must be positive, got %v", o.Tempo)
	}
	if o.Velocity == 0 || o.Velocity > 127 {
		return fmt.Errorf("velocity must be 1-127, got %d", o.Velocity)
	}
	if o.Channel > 15 {
		return fmt.Errorf("channel must be 0-15, got %d", o.Channel)
	}
	return nil
}

// Encode builds a single track Standard MIDI File for notes.
func Encode(notes []pitch.Note, opts Options) (*smf.SMF, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var tr smf.Track
	if opts.TrackName != "" {
		tr.Add(0, smf.MetaTrackSequenceName(opts.TrackName))
	}
	tr.Add(0, smf.MetaTempo(opts.Tempo))

	var now uint32
	for i, ev := range Schedule(notes) {
		if ev.Key < 0 || ev.Key > 127 {
			return nil, fmt.Errorf("note %d: key %d outside MIDI range", i, ev.Key)
		}
		on := beatsToTicks(ev.Start)
		off := beatsToTicks(ev.Start + ev.Length)
		if off <= on {
			off = on + 1
		}
		key := uint8(ev.Key)

		tr.Add(on-now, gomidi.NoteOn(opts.Channel, key, opts.Velocity))
		tr.Add(off-on, gomidi.NoteOff(opts.Channel, key))
		now = off
	}
	tr.Close(0)

	if err := s.Add(tr); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}
	return s, nil
}

// Write encodes notes and writes the file to w.
func Write(w io.Writer, notes []pitch.Note, opts Options) error {
	s, err := Encode(notes, opts)
	if err != nil {
		return err
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write MIDI: %w", err)
	}
	return nil
}

// WriteFile encodes notes and writes them to path.
func WriteFile(path string, notes []pitch.Note, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, notes, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func beatsToTicks(beats float64) uint32 {
	return uint32(math.Round(beats * TicksPerQuarter))
}
