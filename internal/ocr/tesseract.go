package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
)

// ErrNoTitle is returned when no blob above the first staff can hold a title.
var ErrNoTitle = errors.New("no title region above the first staff")

// Word is one recognized word with its location in page coordinates.
type Word struct {
	Text string `json:"text"`

	// Confidence is Tesseract's score scaled to 0.0-1.0.
	Confidence float64 `json:"confidence"`

	Box geometry.Box `json:"box"`
}

// Result is the text recognized in one region.
type Result struct {
	// Text is the recognized text with original spacing and newlines.
	Text string `json:"text"`

	// Words may be empty when word boxes are unavailable; Text is still set.
	Words []Word `json:"words"`
}

// Recognize runs Tesseract on region of img.
//
// The crop is handed to Tesseract as an in-memory PNG. Word boxes are
// translated back to the coordinates of img.
func Recognize(img image.Image, region geometry.Box, language string) (*Result, error) {
	cropped, err := imaging.CropBox(img, region, 0, 0)
	if err != nil {
		return nil, err
	}
	origin := region.Clamp(img.Bounds()).Rect().Min

	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("failed to encode region: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	result := &Result{Text: text, Words: []Word{}}

	// Return just text if boxes fail
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return result, nil
	}
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		result.Words = append(result.Words, Word{
			Text:       b.Word,
			Confidence: b.Confidence / 100.0,
			Box:        geometry.FromRect(b.Box.Add(origin)),
		})
	}
	return result, nil
}

// TitleRegion picks the largest candidate blob lying entirely above the
// first staff. staffs must be in reading order.
func TitleRegion(candidates, staffs []geometry.Box) (geometry.Box, error) {
	if len(staffs) == 0 {
		return geometry.Box{}, ErrNoTitle
	}
	top := staffs[0].Y

	var best geometry.Box
	found := false
	for _, c := range candidates {
		if !c.Valid() || c.Pt2().Y > top {
			continue
		}
		if !found || c.Area() > best.Area() {
			best, found = c, true
		}
	}
	if !found {
		return geometry.Box{}, ErrNoTitle
	}
	return best, nil
}

// Title recognizes the score title from the blobs the staff segmenter
// rejected. The returned text is collapsed to a single line.
func Title(page image.Image, candidates, staffs []geometry.Box, language string) (string, error) {
	region, err := TitleRegion(candidates, staffs)
	if err != nil {
		return "", err
	}
	result, err := Recognize(page, region, language)
	if err != nil {
		return "", err
	}
	return CleanTitle(result.Text), nil
}

// CleanTitle joins recognized lines and collapses runs of whitespace.
func CleanTitle(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
