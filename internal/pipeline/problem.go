package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/ironsheep/sheet-music-mcp/internal/classify"
	"github.com/ironsheep/sheet-music-mcp/internal/detection"
)

// Errors a conversion can report. Only ErrEmptyPage fails a conversion; the
// others are recorded as Problems.
var (
	ErrEmptyPage       = detection.ErrEmptyPage
	ErrDegenerateLines = detection.ErrDegenerateLines
	ErrNoDetections    = detection.ErrNoDetections
	ErrClassification  = classify.ErrClassification
)

// Kind classifies a Problem.
type Kind string

const (
	KindDegenerateLines Kind = "degenerate_lines"
	KindNoDetections    Kind = "no_detections"
	KindAccidentals     Kind = "accidentals"
	KindClassification  Kind = "classification"
	KindStaff           Kind = "staff"
	KindTitle           Kind = "title"
)

// Problem is a non-fatal failure isolated to one staff or one symbol.
type Problem struct {
	// Staff is the staff index, or -1 for page-level problems.
	Staff int `json:"staff"`

	// Symbol is the symbol index within the staff, or -1.
	Symbol int `json:"symbol"`

	Kind Kind  `json:"kind"`
	Err  error `json:"-"`
}

func (p Problem) Error() string {
	switch {
	case p.Staff < 0:
		return fmt.Sprintf("%s: %v", p.Kind, p.Err)
	case p.Symbol < 0:
		return fmt.Sprintf("staff %d: %s: %v", p.Staff, p.Kind, p.Err)
	default:
		return fmt.Sprintf("staff %d symbol %d: %s: %v", p.Staff, p.Symbol, p.Kind, p.Err)
	}
}

func (p Problem) Unwrap() error { return p.Err }

// Message returns the underlying error text.
func (p Problem) Message() string {
	if p.Err == nil {
		return ""
	}
	return p.Err.Error()
}

func staffProblem(staff int, kind Kind, err error) Problem {
	return Problem{Staff: staff, Symbol: -1, Kind: kind, Err: err}
}

// MarshalJSON writes the error as a message string.
func (p Problem) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Staff   int    `json:"staff"`
		Symbol  int    `json:"symbol"`
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
	}{p.Staff, p.Symbol, p.Kind, p.Message()})
}
