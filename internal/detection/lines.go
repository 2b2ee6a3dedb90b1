package detection

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// StaffLineCount is the number of ruled lines in a standard staff.
const StaffLineCount = 5

// ErrDegenerateLines is returned alongside a best-effort result when fewer
// than five rows carry any horizontal ink.
var ErrDegenerateLines = errors.New("degenerate staff: fewer than 5 line rows")

// LineParams controls staff line location.
type LineParams struct {
	// KernelDivisor sets the horizontal structuring element width as
	// staff width / KernelDivisor. Runs shorter than that are removed, which
	// suppresses note heads, stems and text while keeping the ruled lines.
	KernelDivisor int `toml:"kernel_divisor"`
}

// DefaultLineParams returns the line location parameters.
func DefaultLineParams() LineParams {
	return LineParams{KernelDivisor: 30}
}

// BinarizePage returns an Otsu-thresholded inverted copy of a grayscale page
// (ink = 255). It is computed once per page and shared read-only by the
// per-staff line locators.
func BinarizePage(gray gocv.Mat) gocv.Mat {
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(gray, &inverted)

	bw := gocv.NewMat()
	gocv.Threshold(inverted, &bw, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return bw
}

// HorizontalRuns isolates near-horizontal runs inside one staff's region of a
// binarized page by eroding then dilating with a (cols/KernelDivisor)×1
// rectangle. The caller owns the returned Mat.
func HorizontalRuns(bw gocv.Mat, staff Staff, p LineParams) (gocv.Mat, error) {
	rect := staff.Rect().Intersect(image.Rect(0, 0, bw.Cols(), bw.Rows()))
	if rect.Empty() {
		return gocv.NewMat(), fmt.Errorf("staff %d lies outside the page", staff.Index)
	}

	region := bw.Region(rect)
	defer region.Close()

	divisor := p.KernelDivisor
	if divisor < 1 {
		divisor = 1
	}
	size := rect.Dx() / divisor
	if size < 1 {
		size = 1
	}

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: size, Y: 1})
	defer kernel.Close()

	eroded := gocv.NewMat()
	defer eroded.Close()
	gocv.Erode(region, &eroded, kernel)

	runs := gocv.NewMat()
	gocv.Dilate(eroded, &runs, kernel)
	return runs, nil
}

// RowSums returns the sum of pixel intensities of every row of a
// single-channel 8-bit Mat. Region views are accepted.
func RowSums(m gocv.Mat) []float64 {
	if m.Empty() {
		return []float64{}
	}
	col := gocv.NewMat()
	defer col.Close()
	gocv.Reduce(m, &col, 1, gocv.ReduceSum, gocv.MatTypeCV64F)

	data, err := col.DataPtrFloat64()
	if err != nil {
		return make([]float64, m.Rows())
	}
	return append([]float64(nil), data...)
}

// LocateLines ranks rows by sum and returns the five strongest rows, offset
// by originY and sorted ascending (top line first).
//
// Ties are broken by row index so the result is deterministic. Rows with a
// zero sum are never returned; if fewer than five rows remain the available
// rows are returned together with ErrDegenerateLines.
func LocateLines(rowSums []float64, originY float64) ([]float64, error) {
	idx := make([]int, 0, len(rowSums))
	for i, s := range rowSums {
		if s > 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return rowSums[idx[a]] > rowSums[idx[b]]
	})

	n := StaffLineCount
	if len(idx) < n {
		n = len(idx)
	}
	top := append([]int(nil), idx[:n]...)
	sort.Ints(top)

	lines := make([]float64, n)
	for i, row := range top {
		lines[i] = float64(row) + originY
	}

	if n < StaffLineCount {
		return lines, ErrDegenerateLines
	}
	return lines, nil
}

// StaffLines finds the five staff line y-coordinates of one staff in page
// coordinates. bw must come from BinarizePage.
//
// A degenerate staff still returns its best-effort rows together with
// ErrDegenerateLines; callers decide whether to keep them.
func StaffLines(bw gocv.Mat, staff Staff, p LineParams) ([]float64, error) {
	runs, err := HorizontalRuns(bw, staff, p)
	defer runs.Close()
	if err != nil {
		return nil, err
	}

	origin := float64(staff.Rect().Intersect(image.Rect(0, 0, bw.Cols(), bw.Rows())).Min.Y)
	return LocateLines(RowSums(runs), origin)
}
