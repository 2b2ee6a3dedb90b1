package classify

import (
	"fmt"
	"sort"
)

// Duration is a note length in beats.
type Duration float64

// The durations the classifier distinguishes.
const (
	Quarter   Duration = 1.0
	Eighth    Duration = 0.5
	Sixteenth Duration = 0.25
)

// Class labels as written by the model's label file.
const (
	LabelQuarter   = "Quarter-Note"
	LabelEighth    = "Eighth-Note"
	LabelSixteenth = "Sixteenth-Note"
)

var durations = map[string]Duration{
	LabelQuarter:   Quarter,
	LabelEighth:    Eighth,
	LabelSixteenth: Sixteenth,
}

// ParseLabel maps a class label to its duration.
func ParseLabel(label string) (Duration, error) {
	d, ok := durations[label]
	if !ok {
		return 0, fmt.Errorf("%w: unknown label %q", ErrClassification, label)
	}
	return d, nil
}

// Labels returns the known class labels in lexical order.
func Labels() []string {
	out := make([]string, 0, len(durations))
	for l := range durations {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Beats returns d as a plain float.
func (d Duration) Beats() float64 { return float64(d) }

// Ptr returns a pointer to d's beat value, the form notes carry.
func (d Duration) Ptr() *float64 {
	v := float64(d)
	return &v
}

func (d Duration) String() string {
	for l, v := range durations {
		if v == d {
			return l
		}
	}
	return fmt.Sprintf("%g beats", float64(d))
}
