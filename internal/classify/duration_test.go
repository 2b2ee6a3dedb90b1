package classify

import (
	"errors"
	"testing"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		label string
		want  Duration
	}{
		{"Quarter-Note", 1.0},
		{"Eighth-Note", 0.5},
		{"Sixteenth-Note", 0.25},
	}
	for _, tc := range tests {
		t.Run(tc.label, func(t *testing.T) {
			got, err := ParseLabel(tc.label)
			if err != nil {
				t.Fatalf("ParseLabel failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseLabel_Unknown(t *testing.T) {
	_, err := ParseLabel("Whole-Note")
	if !errors.Is(err, ErrClassification) {
		t.Errorf("expected ErrClassification, got %v", err)
	}
}

func TestLabels(t *testing.T) {
	labels := Labels()
	if len(labels) != 3 {
		t.Fatalf("expected 3 labels, got %v", labels)
	}
	if labels[0] != LabelEighth || labels[1] != LabelQuarter || labels[2] != LabelSixteenth {
		t.Errorf("labels not sorted: %v", labels)
	}
}

func TestDuration_String(t *testing.T) {
	if Quarter.String() != LabelQuarter {
		t.Errorf("Quarter.String() = %q", Quarter.String())
	}
	if s := Duration(2).String(); s != "2 beats" {
		t.Errorf("Duration(2).String() = %q", s)
	}
}

func TestDuration_Ptr(t *testing.T) {
	p := Eighth.Ptr()
	if p == nil || *p != 0.5 {
		t.Fatalf("Ptr() = %v", p)
	}
	*p = 3
	if Eighth != 0.5 {
		t.Error("Ptr must not alias the constant")
	}
}
