package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
)

// CropBox extracts the region covered by box from img.
//
// The box is clamped to the image bounds first; a box that lies entirely
// outside the image is an error. When width and height are both positive the
// crop is resized to exactly width×height (aspect ratio is not preserved,
// matching what the duration classifier was trained on).
func CropBox(img image.Image, box geometry.Box, width, height int) (*image.NRGBA, error) {
	bounds := img.Bounds()
	clamped := box.Clamp(bounds)
	if !clamped.Valid() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", box, bounds)
	}

	rect := clamped.Rect().Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("crop region %v is empty", box)
	}

	cropped := imaging.Crop(img, rect)
	if width > 0 && height > 0 {
		cropped = imaging.Resize(cropped, width, height, imaging.Linear)
	}
	return cropped, nil
}

// EncodePNGBase64 encodes img as PNG and returns it base64-encoded.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
