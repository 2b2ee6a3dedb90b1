package imaging

import (
	"fmt"
	"image"
	"image/draw"

	"gocv.io/x/gocv"
)

// GrayMat converts an image to a single-channel 8-bit OpenCV Mat.
//
// The caller owns the returned Mat and must Close it.
func GrayMat(img image.Image) (gocv.Mat, error) {
	gray := ToGray(img)
	b := gray.Bounds()
	if b.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty image")
	}
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, gray.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert image: %w", err)
	}
	// NewMatFromBytes shares the Go buffer; clone so the Mat outlives it.
	owned := mat.Clone()
	mat.Close()
	return owned, nil
}

// BGRMat converts an image to a 3-channel BGR Mat as expected by OpenCV's
// DNN blob helpers.
//
// The caller owns the returned Mat and must Close it.
func BGRMat(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), fmt.Errorf("empty image")
	}

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	src, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert image: %w", err)
	}
	defer src.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(src, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}
