package detection

import (
	"sort"

	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
)

// Symbol is one physical glyph after overlapping detections were merged.
type Symbol struct {
	geometry.Box

	// Staff is the index of the staff the symbol belongs to.
	Staff int `json:"staff"`

	// Merged is the number of raw detections fused into this symbol.
	Merged int `json:"merged"`
}

// MergeBoxes clusters overlapping boxes into one box per physical symbol.
//
// # Algorithm
//
// Repeatedly pop the first remaining box as an accumulator, then:
//
//  1. Sort the remaining boxes by distance to the accumulator
//  2. Scan them in order. A box is fused when it overlaps the accumulator
//     above threshold in either direction:
//     acc.OverlapRatio(b) > threshold || b.OverlapRatio(acc) > threshold
//  3. The scan stops at the first box whose distance exceeds
//     acc.W/2 + b.W/2, since the remaining boxes are farther still
//  4. After a fusion the accumulator has grown, so go back to step 1
//
// When a full scan fuses nothing, the accumulator is emitted as a Symbol.
// A cluster that grows late can come to overlap a symbol emitted earlier,
// so the pass is repeated over the emitted symbols until it fuses nothing.
// Merged counts are summed across passes.
//
// Boxes with non-positive width or height are discarded. Every returned box
// is the minimal enclosing box of a non-empty subset of the inputs, and every
// input is covered by exactly one output. Merging the output again returns
// the same boxes. Output order follows the order in which accumulators were
// started, which is not significant.
//
// # Limitations
//
// The early exit uses widths only. An accumulator that has grown much taller
// than it is wide can stop a scan before reaching a box that overlaps it
// vertically; note heads are close to square so this does not occur for
// well-formed detections.
func MergeBoxes(boxes []geometry.Box, threshold float64) []Symbol {
	symbols := make([]Symbol, 0, len(boxes))
	for _, b := range boxes {
		if b.Valid() {
			symbols = append(symbols, Symbol{Box: b, Merged: 1})
		}
	}

	for {
		next := mergePass(symbols, threshold)
		if len(next) == len(symbols) {
			return next
		}
		symbols = next
	}
}

// mergePass runs one accumulate-and-emit sweep over symbols.
func mergePass(symbols []Symbol, threshold float64) []Symbol {
	remaining := append([]Symbol(nil), symbols...)

	out := make([]Symbol, 0, len(remaining))
	for len(remaining) > 0 {
		acc := remaining[0]
		remaining = remaining[1:]

		for {
			sortByDistance(remaining, acc.Box)

			fused := -1
			for i, s := range remaining {
				if acc.OverlapRatio(s.Box) > threshold || s.OverlapRatio(acc.Box) > threshold {
					fused = i
					break
				}
				if acc.Distance(s.Box) > acc.W/2+s.W/2 {
					break
				}
			}
			if fused < 0 {
				break
			}

			acc.Box = acc.Merge(remaining[fused].Box)
			acc.Merged += remaining[fused].Merged
			remaining = append(remaining[:fused], remaining[fused+1:]...)
		}

		out = append(out, acc)
	}
	return out
}

// MergeDetections merges detections of one staff and tags the results with
// the staff index.
func MergeDetections(staff int, detections []Detection, threshold float64) []Symbol {
	boxes := make([]geometry.Box, len(detections))
	for i, d := range detections {
		boxes[i] = d.Box
	}
	symbols := MergeBoxes(boxes, threshold)
	for i := range symbols {
		symbols[i].Staff = staff
	}
	return symbols
}

// SortReadingOrder sorts symbols left to right, breaking ties top to bottom.
func SortReadingOrder(symbols []Symbol) {
	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].X != symbols[j].X {
			return symbols[i].X < symbols[j].X
		}
		return symbols[i].Y < symbols[j].Y
	})
}

// SymbolBoxes returns the boxes of symbols.
func SymbolBoxes(symbols []Symbol) []geometry.Box {
	out := make([]geometry.Box, len(symbols))
	for i, s := range symbols {
		out[i] = s.Box
	}
	return out
}

func sortByDistance(symbols []Symbol, ref geometry.Box) {
	sort.SliceStable(symbols, func(i, j int) bool {
		return symbols[i].Distance(ref) < symbols[j].Distance(ref)
	})
}
