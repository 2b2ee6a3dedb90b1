// Package detection locates the musical structure of a scanned score page.
//
// Detection runs in four stages, each usable on its own:
//
//   - Staffs: adaptive thresholding and cross dilation fuse every staff
//     system into one blob; blobs are admitted relative to the widest one
//   - Lines: horizontal erosion and dilation keep only the ruled lines of a
//     staff, and the five rows with the most ink are its lines
//   - Matching: glyph templates are correlated against a staff over a sweep
//     of scales; the scale with the most hits wins
//   - Merging: overlapping raw hits are fused into one Symbol per glyph
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Matching reports positions relative to the staff region; Detections and
// every exported result after it are in page coordinates.
//
// # Errors
//
// ErrEmptyPage is the only failure that should stop a page. ErrDegenerateLines
// and ErrNoDetections are returned with best-effort results so callers can
// record them and continue with the remaining staffs.
//
// # Limitations
//
// Segmentation constants are in pixels and were tuned on ~150 DPI scans.
// StaffParams.WithDPI rescales them; pages far from that resolution, skewed
// scans or multi-column layouts may still need tuning.
package detection
