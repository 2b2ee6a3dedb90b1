package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/sheet-music-mcp/internal/detection"
	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
	"github.com/ironsheep/sheet-music-mcp/internal/pitch"
	"github.com/ironsheep/sheet-music-mcp/internal/store"
)

// StaffResult is everything found on one staff.
type StaffResult struct {
	Staff detection.Staff `json:"staff"`

	// Lines are the staff line y-coordinates, top first.
	Lines []float64 `json:"lines"`

	// Scale is the winning note head template scale; zero if nothing matched.
	Scale float64 `json:"scale"`

	// Detections are the raw note head hits before merging.
	Detections []geometry.Box `json:"-"`

	DetectionCount int                `json:"detection_count"`
	Symbols        []detection.Symbol `json:"symbols"`
	Sharps         []detection.Symbol `json:"sharps,omitempty"`
	Flats          []detection.Symbol `json:"flats,omitempty"`

	Notes []pitch.Note `json:"notes"`
	Stats pitch.Stats  `json:"stats"`
}

// Result is the outcome of converting one page.
type Result struct {
	ID     uuid.UUID `json:"id"`
	Input  string    `json:"input,omitempty"`
	Title  string    `json:"title,omitempty"`
	Width  int       `json:"width"`
	Height int       `json:"height"`

	Staffs []StaffResult `json:"staffs"`

	// Rejected are blobs the segmenter did not take for staffs.
	Rejected []geometry.Box `json:"rejected,omitempty"`

	// Notes of every staff in reading order.
	Notes []pitch.Note `json:"notes"`

	Problems []Problem     `json:"problems,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Dropped returns the number of symbols that fell outside the pitch table.
func (r *Result) Dropped() int {
	n := 0
	for _, s := range r.Staffs {
		n += s.Stats.OutOfRange
	}
	return n
}

// StaffBoxes returns the staff boxes in reading order.
func (r *Result) StaffBoxes() []geometry.Box {
	out := make([]geometry.Box, len(r.Staffs))
	for i, s := range r.Staffs {
		out[i] = s.Staff.Box
	}
	return out
}

// Layers returns the debug overlay for the result.
func (r *Result) Layers() imaging.OverlayLayers {
	var layers imaging.OverlayLayers
	for _, s := range r.Staffs {
		layers.Staffs = append(layers.Staffs, s.Staff.Box)
		layers.Lines = append(layers.Lines, s.Lines)
		layers.Detections = append(layers.Detections, s.Detections)

		symbols := detection.SymbolBoxes(s.Symbols)
		symbols = append(symbols, detection.SymbolBoxes(s.Sharps)...)
		symbols = append(symbols, detection.SymbolBoxes(s.Flats)...)
		layers.Symbols = append(layers.Symbols, symbols)

		labels := make([]imaging.Label, len(s.Notes))
		for i, n := range s.Notes {
			labels[i] = imaging.Label{Box: n.Box, Text: n.Label}
		}
		layers.Notes = append(layers.Notes, labels)
	}
	return layers
}

// Run converts the result into a history record. output is the written
// MIDI path, if any.
func (r *Result) Run(output string) store.Run {
	run := store.Run{
		ID:      r.ID,
		Input:   r.Input,
		Output:  output,
		Title:   r.Title,
		Staffs:  len(r.Staffs),
		Notes:   len(r.Notes),
		Dropped: r.Dropped(),
		Elapsed: r.Elapsed,
	}
	for _, p := range r.Problems {
		run.Problems = append(run.Problems, store.Problem{
			Staff:   p.Staff,
			Symbol:  p.Symbol,
			Kind:    string(p.Kind),
			Message: p.Message(),
		})
	}
	return run
}
