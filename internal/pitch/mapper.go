package pitch

import (
	"errors"
	"math"
	"sort"

	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
)

// ErrNoLineGap is returned by NewGeometry when the line positions cannot
// establish a step size.
var ErrNoLineGap = errors.New("staff lines give no usable gap")

// Note is a resolved note head.
type Note struct {
	Label string `json:"label"`
	Pitch int    `json:"pitch"`

	// Duration in beats. Nil when the symbol was not classified.
	Duration *float64 `json:"duration"`

	// Box is the source symbol's box in page coordinates.
	Box geometry.Box `json:"box"`

	// Step is the signed diatonic offset from the staff's reference step.
	Step int `json:"step"`
}

// Geometry holds the vertical scale of one staff.
type Geometry struct {
	// Gap is half the distance between the first two lines: one diatonic step.
	Gap float64 `json:"gap"`

	// Middle is the y-coordinate of step 0, one step below the second line.
	Middle float64 `json:"middle"`
}

// NewGeometry derives the step scale from ascending line positions. Only the
// first two lines are used.
func NewGeometry(lines []float64) (Geometry, error) {
	if len(lines) < 2 {
		return Geometry{}, ErrNoLineGap
	}
	gap := (lines[1] - lines[0]) / 2
	if gap <= 0 || math.IsNaN(gap) {
		return Geometry{}, ErrNoLineGap
	}
	return Geometry{Gap: gap, Middle: lines[1] + gap}, nil
}

// Step returns the rounded step index of a y-coordinate.
func (g Geometry) Step(y float64) int {
	return int(math.Round((y - g.Middle) / g.Gap))
}

// Resolve returns the table entry for a box, or false if it is off the table.
func (g Geometry) Resolve(b geometry.Box) (Entry, int, bool) {
	step := g.Step(b.Middle().Y)
	e, ok := Lookup(step)
	return e, step, ok
}

// Accidentals are the sharp and flat glyphs detected on one staff.
type Accidentals struct {
	Sharps []geometry.Box
	Flats  []geometry.Box
}

// Stats counts the outcome of mapping one staff.
type Stats struct {
	Mapped     int `json:"mapped"`
	OutOfRange int `json:"out_of_range"`
	Sharpened  int `json:"sharpened"`
	Flattened  int `json:"flattened"`
}

// Map converts the symbols of one staff into notes.
//
// Symbols are processed left to right; durations[i] belongs to symbols[i] and
// missing entries leave the duration nil. A symbol whose step falls off the
// table is dropped and counted in Stats.OutOfRange. If the lines give no
// usable gap every symbol is dropped that way.
//
// Accidentals apply by letter name: a note whose letter equals the letter of
// any sharp on the staff is raised by one semitone and gets a "#" suffix, and
// likewise lowered with a "b" suffix for flats. Both can apply to the same
// note.
func Map(lines []float64, symbols []geometry.Box, acc Accidentals, durations []*float64) ([]Note, Stats) {
	var stats Stats

	g, err := NewGeometry(lines)
	if err != nil {
		stats.OutOfRange = len(symbols)
		return nil, stats
	}

	sharps := g.letters(acc.Sharps)
	flats := g.letters(acc.Flats)

	order := make([]int, len(symbols))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := symbols[order[a]], symbols[order[b]]
		if sa.X != sb.X {
			return sa.X < sb.X
		}
		return sa.Y < sb.Y
	})

	notes := make([]Note, 0, len(symbols))
	for _, i := range order {
		box := symbols[i]
		entry, step, ok := g.Resolve(box)
		if !ok {
			stats.OutOfRange++
			continue
		}

		label, key := entry.Label, entry.Key
		if sharps[entry.Letter()] {
			label += "#"
			key++
			stats.Sharpened++
		}
		if flats[entry.Letter()] {
			label += "b"
			key--
			stats.Flattened++
		}

		var d *float64
		if i < len(durations) {
			d = durations[i]
		}
		notes = append(notes, Note{Label: label, Pitch: key, Duration: d, Box: box, Step: step})
	}
	stats.Mapped = len(notes)
	return notes, stats
}

// letters returns the set of note letters that accidental boxes sit on.
// Accidentals off the table are ignored.
func (g Geometry) letters(boxes []geometry.Box) map[byte]bool {
	set := make(map[byte]bool, len(boxes))
	for _, b := range boxes {
		if e, _, ok := g.Resolve(b); ok {
			set[e.Letter()] = true
		}
	}
	return set
}
