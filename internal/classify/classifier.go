package classify

import (
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
)

// ErrClassification wraps every failure to assign a duration to a symbol.
var ErrClassification = errors.New("classification failed")

// PatchSize is the square input size of the duration model.
const PatchSize = 96

// Classifier assigns a duration to a prepared patch. Implementations must be
// safe for concurrent use.
type Classifier interface {
	Classify(patch image.Image) (Duration, error)
}

// PatchBox widens a symbol box to take in its stem and flags: the box is
// extended by its own width on both sides and stretched to the full staff
// height, then clamped to bounds.
func PatchBox(symbol, staff geometry.Box, bounds image.Rectangle) geometry.Box {
	b := geometry.Box{
		X: symbol.X - symbol.W,
		Y: staff.Y,
		W: symbol.W * 3,
		H: staff.H,
	}
	return b.Clamp(bounds)
}

// Patch crops the classifier input for symbol from page.
func Patch(page image.Image, symbol, staff geometry.Box) (*image.NRGBA, error) {
	box := PatchBox(symbol, staff, page.Bounds())
	patch, err := imaging.CropBox(page, box, PatchSize, PatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	return patch, nil
}

// ClassifySymbol prepares the patch for symbol and classifies it.
func ClassifySymbol(c Classifier, page image.Image, symbol, staff geometry.Box) (Duration, error) {
	patch, err := Patch(page, symbol, staff)
	if err != nil {
		return 0, err
	}
	d, err := c.Classify(patch)
	if err != nil {
		if errors.Is(err, ErrClassification) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	return d, nil
}

// FixedClassifier assigns the same duration to every patch.
type FixedClassifier struct {
	Duration Duration
}

// Classify returns the fixed duration.
func (f FixedClassifier) Classify(patch image.Image) (Duration, error) {
	if patch == nil || patch.Bounds().Empty() {
		return 0, fmt.Errorf("%w: empty patch", ErrClassification)
	}
	return f.Duration, nil
}
