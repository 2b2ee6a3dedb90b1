package midi

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

type noteEvent struct {
	tick uint32
	key  uint8
	on   bool
}

// readNotes decodes a written file back into absolute-tick note events
func readNotes(t *testing.T, data []byte) ([]noteEvent, float64) {
	t.Helper()
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to read back MIDI: %v", err)
	}
	if len(s.Tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(s.Tracks))
	}

	var out []noteEvent
	var tempo float64
	var tick uint32
	for _, ev := range s.Tracks[0] {
		tick += ev.Delta
		var ch, key, vel uint8
		var bpm float64
		msg := gomidi.Message(ev.Message)
		switch {
		case ev.Message.GetMetaTempo(&bpm):
			tempo = bpm
		case msg.GetNoteStart(&ch, &key, &vel):
			out = append(out, noteEvent{tick: tick, key: key, on: true})
		case msg.GetNoteEnd(&ch, &key):
			out = append(out, noteEvent{tick: tick, key: key, on: false})
		}
	}
	return out, tempo
}

func TestWrite_Timing(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, notesWith(beats(1.0), beats(0.5), beats(0.25)), DefaultOptions()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	events, tempo := readNotes(t, buf.Bytes())
	if tempo < 99.9 || tempo > 100.1 {
		t.Errorf("tempo: got %v, want 100", tempo)
	}

	want := []noteEvent{
		{0, 72, true}, {960, 72, false},
		{960, 73, true}, {1440, 73, false},
		{1440, 74, true}, {1680, 74, false},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d note events, got %d: %v", len(want), len(events), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestWrite_MissingDurationHeldDefault(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, notesWith(nil, beats(0.5)), DefaultOptions()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	events, _ := readNotes(t, buf.Bytes())
	if events[1].tick != TicksPerQuarter || events[2].tick != TicksPerQuarter {
		t.Errorf("second note should start after one beat: %v", events)
	}
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, nil, DefaultOptions()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	events, _ := readNotes(t, buf.Bytes())
	if len(events) != 0 {
		t.Errorf("expected no notes, got %v", events)
	}
}

func TestEncode_KeyOutOfRange(t *testing.T) {
	notes := notesWith(beats(1))
	notes[0].Pitch = 200
	if _, err := Encode(notes, DefaultOptions()); err == nil {
		t.Error("expected error for key 200")
	}
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"defaults", func(o *Options) {}, false},
		{"zero tempo", func(o *Options) { o.Tempo = 0 }, true},
		{"zero velocity", func(o *Options) { o.Velocity = 0 }, true},
		{"velocity too high", func(o *Options) { o.Velocity = 128 }, true},
		{"channel 15", func(o *Options) { o.Channel = 15 }, false},
		{"channel 16", func(o *Options) { o.Channel = 16 }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := DefaultOptions()
			tc.mutate(&o)
			err := o.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.mid")
	opts := DefaultOptions()
	opts.TrackName = "Ode to Joy"

	if err := WriteFile(path, notesWith(beats(1), beats(1)), opts); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("MThd")) {
		t.Error("file does not start with an SMF header")
	}
	if !bytes.Contains(data, []byte("Ode to Joy")) {
		t.Error("track name missing from file")
	}
	events, _ := readNotes(t, data)
	if len(events) != 4 {
		t.Errorf("expected 4 note events, got %d", len(events))
	}
}

func TestWriteFile_BadPath(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "out.mid"), nil, DefaultOptions())
	if err == nil {
		t.Error("expected error for missing directory")
	}
}
