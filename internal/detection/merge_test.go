package detection

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
)

const mergeThreshold = 0.3

// boxesEqual compares box sets ignoring order
func boxesEqual(a, b []geometry.Box) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(s []geometry.Box) func(i, j int) bool {
		return func(i, j int) bool {
			if s[i].X != s[j].X {
				return s[i].X < s[j].X
			}
			return s[i].Y < s[j].Y
		}
	}
	a = append([]geometry.Box(nil), a...)
	b = append([]geometry.Box(nil), b...)
	sort.Slice(a, key(a))
	sort.Slice(b, key(b))
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMergeBoxes_Cluster(t *testing.T) {
	boxes := []geometry.Box{
		geometry.NewBox(100, 50, 10, 8),
		geometry.NewBox(101, 51, 10, 8),
		geometry.NewBox(99, 50, 10, 8),
	}

	symbols := MergeBoxes(boxes, mergeThreshold)
	if len(symbols) != 1 {
		t.Fatalf("expected 1 symbol, got %d: %v", len(symbols), symbols)
	}
	for _, b := range boxes {
		if !symbols[0].Contains(b) {
			t.Errorf("symbol %v does not enclose %v", symbols[0].Box, b)
		}
	}
	if symbols[0].Merged != 3 {
		t.Errorf("merged count: got %d, want 3", symbols[0].Merged)
	}
	want := geometry.NewBox(99, 50, 12, 9)
	if symbols[0].Box != want {
		t.Errorf("symbol box: got %v, want minimal %v", symbols[0].Box, want)
	}
}

func TestMergeBoxes_SeparateSymbols(t *testing.T) {
	boxes := []geometry.Box{
		geometry.NewBox(100, 50, 10, 8),
		geometry.NewBox(130, 50, 10, 8),
		geometry.NewBox(101, 50, 10, 8),
		geometry.NewBox(131, 51, 10, 8),
		geometry.NewBox(160, 70, 10, 8),
	}

	symbols := MergeBoxes(boxes, mergeThreshold)
	if len(symbols) != 3 {
		t.Fatalf("expected 3 symbols, got %d: %v", len(symbols), symbols)
	}
	total := 0
	for _, s := range symbols {
		total += s.Merged
	}
	if total != len(boxes) {
		t.Errorf("merged counts sum to %d, want %d", total, len(boxes))
	}
}

func TestMergeBoxes_OneSidedOverlap(t *testing.T) {
	// The small box lies inside the big one: only the small box's ratio is high
	big := geometry.NewBox(0, 0, 40, 40)
	small := geometry.NewBox(10, 10, 5, 5)
	if big.OverlapRatio(small) > mergeThreshold {
		t.Fatal("test setup: big box ratio should be below threshold")
	}

	symbols := MergeBoxes([]geometry.Box{big, small}, mergeThreshold)
	if len(symbols) != 1 || symbols[0].Box != big {
		t.Errorf("expected the contained box to fuse into %v, got %v", big, symbols)
	}
}

func TestMergeBoxes_GrowthEnablesFusion(t *testing.T) {
	// c only overlaps enough once a and b have been fused
	a := geometry.NewBox(0, 0, 10, 10)
	b := geometry.NewBox(6, 0, 10, 10)
	c := geometry.NewBox(12, 0, 10, 10)
	if a.OverlapRatio(c) > 0 || c.OverlapRatio(a) > 0 {
		t.Fatal("test setup: a and c should be disjoint")
	}

	symbols := MergeBoxes([]geometry.Box{a, c, b}, mergeThreshold)
	if len(symbols) != 1 {
		t.Fatalf("expected chain to fuse into 1 symbol, got %v", symbols)
	}
	if symbols[0].Box != geometry.NewBox(0, 0, 22, 10) {
		t.Errorf("symbol box: got %v", symbols[0].Box)
	}
}

func TestMergeBoxes_InvalidDropped(t *testing.T) {
	boxes := []geometry.Box{
		geometry.NewBox(0, 0, 0, 5),
		geometry.NewBox(0, 0, 5, -1),
		geometry.NewBox(20, 20, 5, 5),
	}
	symbols := MergeBoxes(boxes, mergeThreshold)
	if len(symbols) != 1 || symbols[0].Box != boxes[2] {
		t.Errorf("expected only the valid box, got %v", symbols)
	}
}

func TestMergeBoxes_Empty(t *testing.T) {
	if symbols := MergeBoxes(nil, mergeThreshold); len(symbols) != 0 {
		t.Errorf("expected no symbols, got %v", symbols)
	}
}

func TestMergeBoxes_Idempotent(t *testing.T) {
	boxes := []geometry.Box{
		geometry.NewBox(100, 50, 10, 8),
		geometry.NewBox(102, 52, 10, 8),
		geometry.NewBox(140, 40, 10, 8),
		geometry.NewBox(141, 40, 10, 8),
		geometry.NewBox(180, 60, 10, 8),
	}

	first := SymbolBoxes(MergeBoxes(boxes, mergeThreshold))
	second := SymbolBoxes(MergeBoxes(first, mergeThreshold))
	if !boxesEqual(first, second) {
		t.Errorf("second pass changed the result:\n first  %v\n second %v", first, second)
	}
}

func TestMergeBoxes_LateClusterFusesEarlierSymbol(t *testing.T) {
	// The first box is emitted before the three wide boxes grow into a
	// cluster that overlaps it
	boxes := []geometry.Box{
		geometry.NewBox(0, 0, 10, 10),
		geometry.NewBox(6, 2, 20, 6),
		geometry.NewBox(6, -5, 20, 10),
		geometry.NewBox(6, 5, 20, 10),
	}

	symbols := MergeBoxes(boxes, mergeThreshold)
	if len(symbols) != 1 {
		t.Fatalf("expected 1 symbol, got %d: %v", len(symbols), symbols)
	}
	want := geometry.NewBox(0, -5, 26, 20)
	if symbols[0].Box != want {
		t.Errorf("symbol box: got %v, want %v", symbols[0].Box, want)
	}
	if symbols[0].Merged != len(boxes) {
		t.Errorf("merged count: got %d, want %d", symbols[0].Merged, len(boxes))
	}

	again := MergeBoxes(SymbolBoxes(symbols), mergeThreshold)
	if !boxesEqual(SymbolBoxes(symbols), SymbolBoxes(again)) {
		t.Errorf("second pass changed the result: %v -> %v", symbols, again)
	}
}

// noteHeadClusters generates jittered detections around well separated heads
func noteHeadClusters(rng *rand.Rand, heads int) ([]geometry.Box, []geometry.Box) {
	var boxes, centers []geometry.Box
	for h := 0; h < heads; h++ {
		cx := float64(40 + h*40)
		cy := float64(30 + rng.Intn(40))
		centers = append(centers, geometry.NewBox(cx, cy, 12, 10))
		n := 1 + rng.Intn(6)
		for i := 0; i < n; i++ {
			boxes = append(boxes, geometry.NewBox(cx+float64(rng.Intn(5)-2), cy+float64(rng.Intn(5)-2), 12, 10))
		}
	}
	rng.Shuffle(len(boxes), func(i, j int) { boxes[i], boxes[j] = boxes[j], boxes[i] })
	return boxes, centers
}

func TestMergeBoxes_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		heads := 1 + rng.Intn(8)
		boxes, centers := noteHeadClusters(rng, heads)
		symbols := MergeBoxes(boxes, mergeThreshold)

		// One symbol per physical head
		if len(symbols) != heads {
			t.Fatalf("trial %d: expected %d symbols, got %d", trial, heads, len(symbols))
		}

		// Every input is covered and the merged counts account for all inputs
		total := 0
		for _, s := range symbols {
			total += s.Merged
		}
		if total != len(boxes) {
			t.Fatalf("trial %d: merged counts sum to %d, want %d", trial, total, len(boxes))
		}
		for _, b := range boxes {
			covered := false
			for _, s := range symbols {
				if s.Contains(b) {
					covered = true
					break
				}
			}
			if !covered {
				t.Fatalf("trial %d: box %v not covered", trial, b)
			}
		}

		// Each symbol is the minimal enclosing box of the inputs it covers
		for _, s := range symbols {
			var enclosing geometry.Box
			first := true
			for _, b := range boxes {
				if !s.Contains(b) {
					continue
				}
				if first {
					enclosing, first = b, false
				} else {
					enclosing = enclosing.Merge(b)
				}
			}
			if first || enclosing != s.Box {
				t.Fatalf("trial %d: symbol %v is not minimal (inputs span %v)", trial, s.Box, enclosing)
			}
		}

		// Each symbol sits on one generated head
		for _, s := range symbols {
			hits := 0
			for _, c := range centers {
				if s.OverlapRatio(c) > 0.3 {
					hits++
				}
			}
			if hits != 1 {
				t.Fatalf("trial %d: symbol %v matches %d heads", trial, s.Box, hits)
			}
		}

		// Idempotence
		again := SymbolBoxes(MergeBoxes(SymbolBoxes(symbols), mergeThreshold))
		if !boxesEqual(SymbolBoxes(symbols), again) {
			t.Fatalf("trial %d: merge is not idempotent", trial)
		}
	}
}

func TestMergeDetections_TagsStaff(t *testing.T) {
	dets := []Detection{
		{Box: geometry.NewBox(10, 10, 5, 5)},
		{Box: geometry.NewBox(11, 10, 5, 5)},
	}
	symbols := MergeDetections(4, dets, mergeThreshold)
	if len(symbols) != 1 || symbols[0].Staff != 4 {
		t.Errorf("expected one symbol on staff 4, got %v", symbols)
	}
}

func TestSortReadingOrder(t *testing.T) {
	symbols := []Symbol{
		{Box: geometry.NewBox(50, 10, 5, 5)},
		{Box: geometry.NewBox(10, 30, 5, 5)},
		{Box: geometry.NewBox(10, 20, 5, 5)},
	}
	SortReadingOrder(symbols)
	if symbols[0].Y != 20 || symbols[1].Y != 30 || symbols[2].X != 50 {
		t.Errorf("unexpected order: %v", symbols)
	}
}
