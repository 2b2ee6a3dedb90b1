package midi

import "github.com/ironsheep/sheet-music-mcp/internal/pitch"

// DefaultBeats is the length given to notes whose duration was not
// classified, so that later notes still start after them.
const DefaultBeats = 1.0

// Event is one scheduled note, in beats.
type Event struct {
	Key    int     `json:"key"`
	Start  float64 `json:"start"`
	Length float64 `json:"length"`
}

// Schedule lays notes out back to back: each note starts when the previous
// one ends and lasts for its own duration.
func Schedule(notes []pitch.Note) []Event {
	events := make([]Event, len(notes))
	var t float64
	for i, n := range notes {
		length := DefaultBeats
		if n.Duration != nil && *n.Duration > 0 {
			length = *n.Duration
		}
		events[i] = Event{Key: n.Pitch, Start: t, Length: length}
		t += length
	}
	return events
}

// TotalBeats returns the end time of the last event.
func TotalBeats(events []Event) float64 {
	if len(events) == 0 {
		return 0
	}
	last := events[len(events)-1]
	return last.Start + last.Length
}
