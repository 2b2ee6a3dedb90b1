package pitch

// Entry is one diatonic position of the note table.
type Entry struct {
	// Label is the letter name with its octave, for example "C5".
	Label string

	// Key is the MIDI key number (C4 = 60).
	Key int
}

// Letter returns the note letter without octave or accidental.
func (e Entry) Letter() byte {
	if e.Label == "" {
		return 0
	}
	return e.Label[0]
}

// Step bounds of the table. Step 0 is C5, the third space of a treble staff.
// Negative steps move up the staff.
const (
	MinStep = -8
	MaxStep = 10
)

// table maps a step index to its note. Steps outside [MinStep, MaxStep] are
// deliberately absent; symbols landing there are treated as noise.
var table = map[int]Entry{
	-8: {"D6", 86},
	-7: {"C6", 84},
	-6: {"B5", 83},
	-5: {"A5", 81},
	-4: {"G5", 79},
	-3: {"F5", 77},
	-2: {"E5", 76},
	-1: {"D5", 74},
	0:  {"C5", 72},
	1:  {"B4", 71},
	2:  {"A4", 69},
	3:  {"G4", 67},
	4:  {"F4", 65},
	5:  {"E4", 64},
	6:  {"D4", 62},
	7:  {"C4", 60},
	8:  {"B3", 59},
	9:  {"A3", 57},
	10: {"G3", 55},
}

// Lookup returns the note at step, or false if the step is off the table.
func Lookup(step int) (Entry, bool) {
	e, ok := table[step]
	return e, ok
}
