package detection

import (
	"errors"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
)

// ErrEmptyPage is returned when the page contains no ink blobs at all.
var ErrEmptyPage = errors.New("empty page: no staff candidates found")

// Staff is one staff system's extent on the page.
type Staff struct {
	// Index is the staff's position in reading order (0 = top).
	Index int `json:"index"`

	geometry.Box
}

// StaffParams controls staff segmentation.
//
// The slack values are in pixels at the page's native resolution. They were
// tuned on ~150 DPI scans; use WithDPI to rescale them for other resolutions.
type StaffParams struct {
	// BlockSize is the adaptive threshold neighbourhood (odd, >= 3).
	BlockSize int `toml:"block_size"`

	// C is subtracted from the local mean. A negative value keeps only pixels
	// noticeably darker than their neighbourhood.
	C float32 `toml:"c"`

	// KernelWidth and KernelHeight size the cross-shaped dilation element.
	KernelWidth  int `toml:"kernel_width"`
	KernelHeight int `toml:"kernel_height"`

	// Iterations is the number of dilation passes used to fuse a staff system
	// into a single blob.
	Iterations int `toml:"iterations"`

	// WidthSlack and HeightSlack are subtracted from the widest candidate's
	// width and height to form the admission thresholds.
	WidthSlack  float64 `toml:"width_slack"`
	HeightSlack float64 `toml:"height_slack"`
}

// DefaultStaffParams returns the segmentation parameters used for typical
// single-column sheet music scans.
func DefaultStaffParams() StaffParams {
	return StaffParams{
		BlockSize:    15,
		C:            -2,
		KernelWidth:  3,
		KernelHeight: 2,
		Iterations:   10,
		WidthSlack:   100,
		HeightSlack:  10,
	}
}

// referenceDPI is the resolution the default slack values were tuned on.
const referenceDPI = 150.0

// WithDPI returns a copy of p with slack values rescaled from the reference
// resolution to dpi. A non-positive dpi leaves p unchanged.
func (p StaffParams) WithDPI(dpi float64) StaffParams {
	if dpi <= 0 {
		return p
	}
	factor := dpi / referenceDPI
	p.WidthSlack *= factor
	p.HeightSlack *= factor
	return p
}

// StaffsResult contains the detected staffs and every rejected candidate.
type StaffsResult struct {
	// Staffs in reading order (top to bottom).
	Staffs []Staff `json:"staffs"`

	// Rejected holds candidate blobs that failed the size thresholds, such as
	// titles, tempo marks and page numbers.
	Rejected []geometry.Box `json:"rejected"`

	// WidthThreshold and HeightThreshold are the admission thresholds derived
	// from the widest candidate.
	WidthThreshold  float64 `json:"width_threshold"`
	HeightThreshold float64 `json:"height_threshold"`

	Count int `json:"count"`
}

// FindStaffs locates staff systems on a grayscale page.
//
// # Algorithm
//
//  1. Invert the page so ink is bright
//  2. Adaptive mean threshold (BlockSize, C) to a binary mask
//  3. Dilate with a small cross element Iterations times so that the lines,
//     note heads and stems of one system fuse into one blob while the blank
//     gap between systems stays open
//  4. Take the bounding box of every external contour as a candidate
//  5. Thresholds are relative to the widest candidate:
//     tw = widest.W - WidthSlack, th = widest.H - HeightSlack
//  6. Keep candidates with W >= tw and H >= th, sorted top to bottom
//
// The widest blob is assumed to be a staff system, which holds for any page
// with at least one full-width staff.
//
// Returns ErrEmptyPage if the mask has no contours.
func FindStaffs(gray gocv.Mat, p StaffParams) (*StaffsResult, error) {
	if gray.Empty() {
		return nil, ErrEmptyPage
	}

	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(gray, &inverted)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.AdaptiveThreshold(inverted, &mask, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, p.BlockSize, p.C)

	kernel := gocv.GetStructuringElement(gocv.MorphCross, image.Point{X: p.KernelWidth, Y: p.KernelHeight})
	defer kernel.Close()
	for i := 0; i < p.Iterations; i++ {
		gocv.Dilate(mask, &mask, kernel)
	}

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	candidates := make([]geometry.Box, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		candidates = append(candidates, geometry.FromRect(gocv.BoundingRect(contours.At(i))))
	}

	return SelectStaffs(candidates, p)
}

// SelectStaffs applies the widest-candidate thresholds to a set of blob
// bounding boxes. It is the pure selection half of FindStaffs.
func SelectStaffs(candidates []geometry.Box, p StaffParams) (*StaffsResult, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyPage
	}

	widest := candidates[0]
	for _, c := range candidates[1:] {
		if c.W > widest.W {
			widest = c
		}
	}
	tw := widest.W - p.WidthSlack
	th := widest.H - p.HeightSlack

	result := &StaffsResult{
		WidthThreshold:  tw,
		HeightThreshold: th,
	}
	var kept []geometry.Box
	for _, c := range candidates {
		if c.W < tw || c.H < th {
			result.Rejected = append(result.Rejected, c)
			continue
		}
		kept = append(kept, c)
	}

	// Contour order is not geometric; restore reading order explicitly.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Y != kept[j].Y {
			return kept[i].Y < kept[j].Y
		}
		return kept[i].X < kept[j].X
	})

	result.Staffs = make([]Staff, len(kept))
	for i, b := range kept {
		result.Staffs[i] = Staff{Index: i, Box: b}
	}
	result.Count = len(result.Staffs)
	return result, nil
}
