package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/imgio"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
)

// Label is a box annotated with a short text, e.g. a note name.
type Label struct {
	Box  geometry.Box
	Text string
}

// OverlayLayers holds the intermediate results to draw on a page.
//
// Every layer is optional. Staff-scoped layers are indexed by staff so that
// each staff gets its own hue.
type OverlayLayers struct {
	Staffs     []geometry.Box
	Lines      [][]float64
	Detections [][]geometry.Box
	Symbols    [][]geometry.Box
	Notes      [][]Label
}

// OverlayResult contains a rendered overlay encoded as base64 PNG.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// RenderOverlay draws the layers on a copy of page. The page itself is never
// modified.
//
// Drawing order is staffs, lines, raw detections, merged symbols, labels, so
// that merged boxes stay visible on top of the raw detections they replaced.
func RenderOverlay(page image.Image, layers OverlayLayers) *image.RGBA {
	bounds := page.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, page, bounds.Min, draw.Src)

	n := len(layers.Staffs)
	if len(layers.Symbols) > n {
		n = len(layers.Symbols)
	}
	palette := StaffPalette(n)

	for i, s := range layers.Staffs {
		drawRect(out, s, palette[i].staff)
	}
	for i, lines := range layers.Lines {
		c := paletteAt(palette, i).line
		for _, y := range lines {
			drawHLine(out, int(math.Round(y)), c)
		}
	}
	for i, boxes := range layers.Detections {
		c := paletteAt(palette, i).detection
		for _, b := range boxes {
			drawRect(out, b, c)
		}
	}
	for i, boxes := range layers.Symbols {
		c := paletteAt(palette, i).symbol
		for _, b := range boxes {
			drawRect(out, b, c)
		}
	}
	for i, labels := range layers.Notes {
		c := paletteAt(palette, i).symbol
		for _, l := range labels {
			drawText(out, int(l.Box.X), int(l.Box.Y)-2, l.Text, c)
		}
	}
	return out
}

// Overlay renders the layers and returns the image as base64 PNG.
func Overlay(page image.Image, layers OverlayLayers) (*OverlayResult, error) {
	out := RenderOverlay(page, layers)
	encoded, err := EncodePNGBase64(out)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{
		Width:       out.Bounds().Dx(),
		Height:      out.Bounds().Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// SaveOverlay renders the layers and writes them to path as PNG.
func SaveOverlay(path string, page image.Image, layers OverlayLayers) error {
	if err := imgio.Save(path, RenderOverlay(page, layers), imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

type staffColors struct {
	staff, line, detection, symbol color.NRGBA
}

// StaffPalette returns n evenly spaced hues, one set of shades per staff.
func StaffPalette(n int) []staffColors {
	if n < 1 {
		n = 1
	}
	out := make([]staffColors, n)
	for i := range out {
		hue := math.Mod(float64(i)*360/float64(n)+210, 360)
		out[i] = staffColors{
			staff:     toNRGBA(colorful.Hsv(hue, 0.9, 0.9), 255),
			line:      toNRGBA(colorful.Hsv(hue, 0.5, 1.0), 160),
			detection: toNRGBA(colorful.Hsv(math.Mod(hue+120, 360), 0.4, 0.9), 140),
			symbol:    toNRGBA(colorful.Hsv(math.Mod(hue+180, 360), 1.0, 0.8), 255),
		}
	}
	return out
}

func paletteAt(p []staffColors, i int) staffColors {
	return p[i%len(p)]
}

// toNRGBA returns c with a straight, non-premultiplied alpha.
func toNRGBA(c colorful.Color, alpha uint8) color.NRGBA {
	r, g, b := c.Clamped().RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: alpha}
}

func fill(img *image.RGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

// drawRect outlines box one pixel wide. Edges do not overlap, so each pixel
// is blended once.
func drawRect(img *image.RGBA, box geometry.Box, c color.NRGBA) {
	r := box.Rect().Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	fill(img, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
	if r.Dy() > 1 {
		fill(img, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
	}
	if r.Dy() > 2 {
		fill(img, image.Rect(r.Min.X, r.Min.Y+1, r.Min.X+1, r.Max.Y-1), c)
		if r.Dx() > 1 {
			fill(img, image.Rect(r.Max.X-1, r.Min.Y+1, r.Max.X, r.Max.Y-1), c)
		}
	}
}

func drawHLine(img *image.RGBA, y int, c color.NRGBA) {
	b := img.Bounds()
	fill(img, image.Rect(b.Min.X, y, b.Max.X, y+1), c)
}

func drawText(img *image.RGBA, x, y int, text string, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
