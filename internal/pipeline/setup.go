package pipeline

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/ironsheep/sheet-music-mcp/internal/classify"
	"github.com/ironsheep/sheet-music-mcp/internal/config"
	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
	"github.com/ironsheep/sheet-music-mcp/internal/ocr"
)

// NewClassifier builds the duration classifier described by m.
//
// A fixed duration wins over a model. Without either, the returned
// classifier is nil and notes are left unclassified. The returned close
// function is never nil.
func NewClassifier(m config.Model) (classify.Classifier, func() error, error) {
	noop := func() error { return nil }
	if m.Fixed != "" {
		d, err := classify.ParseLabel(m.Fixed)
		if err != nil {
			return nil, noop, err
		}
		return classify.FixedClassifier{Duration: d}, noop, nil
	}
	if m.Path == "" {
		return nil, noop, nil
	}
	dnn, err := classify.NewDNNClassifier(m.Path, m.Labels)
	if err != nil {
		return nil, noop, err
	}
	return dnn, dnn.Close, nil
}

// OCRTitle returns a TitleFunc backed by Tesseract.
func OCRTitle(language string) TitleFunc {
	return func(page image.Image, candidates, staffs []geometry.Box) (string, error) {
		return ocr.Title(page, candidates, staffs, language)
	}
}

// OutputPath returns where the MIDI file for input goes: next to the input,
// or inside dir when dir is set.
func OutputPath(input, dir string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".mid"
	if dir == "" {
		return filepath.Join(filepath.Dir(input), base)
	}
	return filepath.Join(dir, base)
}
