package detection

import (
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
)

// ErrNoDetections is returned when no template matches at any scale.
var ErrNoDetections = errors.New("no template matches at any scale")

// MatchParams controls the multi-scale template sweep.
type MatchParams struct {
	// Threshold is the minimum normalized correlation score (0-1].
	Threshold float32 `toml:"threshold"`

	// ScaleMin is the first scale tried. ScaleMax is exclusive.
	ScaleMin  float64 `toml:"scale_min"`
	ScaleMax  float64 `toml:"scale_max"`
	ScaleStep float64 `toml:"scale_step"`

	// Workers bounds the number of scales evaluated concurrently.
	// Zero means GOMAXPROCS.
	Workers int `toml:"workers"`
}

// DefaultMatchParams returns the sweep used for note heads: 0.30 up to (not
// including) 1.00 in steps of 0.03.
func DefaultMatchParams(threshold float32) MatchParams {
	return MatchParams{
		Threshold: threshold,
		ScaleMin:  0.30,
		ScaleMax:  1.00,
		ScaleStep: 0.03,
	}
}

// Scales returns the sweep values. The loop runs over integer percent steps
// so that repeated float addition cannot drift past or short of an endpoint.
func (p MatchParams) Scales() []float64 {
	start := int(math.Round(p.ScaleMin * 100))
	stop := int(math.Round(p.ScaleMax * 100))
	step := int(math.Round(p.ScaleStep * 100))
	if step <= 0 || start <= 0 {
		return nil
	}
	var scales []float64
	for pct := start; pct < stop; pct += step {
		scales = append(scales, float64(pct)/100)
	}
	return scales
}

// TemplateSet is a group of grayscale glyph templates loaded into OpenCV.
//
// The first template defines the reference size for detection boxes.
type TemplateSet struct {
	Name  string
	Names []string
	Mats  []gocv.Mat
}

// NewTemplateSet converts loaded templates to Mats. Close releases them.
func NewTemplateSet(name string, templates []imaging.Template) (*TemplateSet, error) {
	if len(templates) == 0 {
		return nil, fmt.Errorf("template set %q is empty", name)
	}
	set := &TemplateSet{Name: name}
	for _, t := range templates {
		m, err := imaging.GrayMat(t.Image)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("template %s: %w", t.Name, err)
		}
		set.Names = append(set.Names, t.Name)
		set.Mats = append(set.Mats, m)
	}
	return set, nil
}

// Size returns the reference template's width and height.
func (s *TemplateSet) Size() (w, h int) {
	if s == nil || len(s.Mats) == 0 {
		return 0, 0
	}
	return s.Mats[0].Cols(), s.Mats[0].Rows()
}

// Close releases the template Mats.
func (s *TemplateSet) Close() {
	if s == nil {
		return
	}
	for _, m := range s.Mats {
		m.Close()
	}
	s.Mats = nil
}

// Match is one correlation hit in region coordinates.
type Match struct {
	X        int     `json:"x"`
	Y        int     `json:"y"`
	Score    float32 `json:"score"`
	Template int     `json:"template"`
}

// MatchResult is the outcome of a scale sweep.
type MatchResult struct {
	// Positions are the matches at the winning scale.
	Positions []Match `json:"positions"`

	// Scale is the winning scale factor.
	Scale float64 `json:"scale"`

	// Count is len(Positions).
	Count int `json:"count"`

	// MeanScore and MaxScore summarize the winning scale's scores.
	MeanScore float64 `json:"mean_score"`
	MaxScore  float64 `json:"max_score"`

	// PerScale is the total match count at every scale in sweep order.
	PerScale []int `json:"per_scale"`
}

// MatchTemplates correlates every template of set against region over the
// scale sweep and returns the positions found at the best scale.
//
// # Scale Selection
//
// The physical size of note heads relative to the scan is unknown, so each
// scale is evaluated and the one producing the most matches (summed over all
// templates) wins. Ties keep the earliest scale in the sweep. This favours
// scales that also produce more false positives; it is a heuristic, not a
// guarantee. Scales are evaluated concurrently and reduced deterministically.
//
// Templates that become larger than the region at a scale contribute no
// matches at that scale.
//
// Returns ErrNoDetections (with a zero-count result) if nothing matched.
func MatchTemplates(region gocv.Mat, set *TemplateSet, p MatchParams) (*MatchResult, error) {
	scales := p.Scales()
	if len(scales) == 0 {
		return nil, fmt.Errorf("invalid scale sweep %.2f..%.2f step %.2f", p.ScaleMin, p.ScaleMax, p.ScaleStep)
	}
	if set == nil || len(set.Mats) == 0 {
		return nil, fmt.Errorf("no templates")
	}

	perScale := make([][]Match, len(scales))

	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				perScale[i] = matchAtScale(region, set, scales[i], p.Threshold)
			}
		}()
	}
	for i := range scales {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := &MatchResult{PerScale: make([]int, len(scales))}
	for i, positions := range perScale {
		result.PerScale[i] = len(positions)
	}
	best := BestScale(result.PerScale)

	result.Positions = perScale[best]
	result.Scale = scales[best]
	result.Count = len(result.Positions)

	if result.Count == 0 {
		return result, ErrNoDetections
	}

	scores := make([]float64, result.Count)
	for i, m := range result.Positions {
		scores[i] = float64(m.Score)
	}
	result.MeanScore = stat.Mean(scores, nil)
	result.MaxScore = floats.Max(scores)
	return result, nil
}

// BestScale returns the index of the largest count. Ties keep the lowest
// index, so earlier scales in the sweep win.
func BestScale(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

// matchAtScale returns every position scoring at least threshold for all
// templates resized by scale.
func matchAtScale(region gocv.Mat, set *TemplateSet, scale float64, threshold float32) []Match {
	var matches []Match

	for ti, tmpl := range set.Mats {
		if math.Round(float64(tmpl.Cols())*scale) < 1 || math.Round(float64(tmpl.Rows())*scale) < 1 {
			continue
		}
		scaled := gocv.NewMat()
		gocv.Resize(tmpl, &scaled, image.Point{}, scale, scale, gocv.InterpolationCubic)

		if scaled.Empty() || scaled.Rows() > region.Rows() || scaled.Cols() > region.Cols() {
			scaled.Close()
			continue
		}

		scores := gocv.NewMat()
		mask := gocv.NewMat()
		gocv.MatchTemplate(region, scaled, &scores, gocv.TmCcoeffNormed, mask)

		matches = append(matches, scanScores(scores, ti, threshold)...)

		mask.Close()
		scores.Close()
		scaled.Close()
	}
	return matches
}

// scanScores returns the positions of a CV32F score map at or above
// threshold.
func scanScores(scores gocv.Mat, template int, threshold float32) []Match {
	data, err := scores.DataPtrFloat32()
	if err != nil {
		return nil
	}
	var matches []Match
	cols := scores.Cols()
	for i, s := range data {
		if s >= threshold {
			matches = append(matches, Match{X: i % cols, Y: i / cols, Score: s, Template: template})
		}
	}
	return matches
}

// Detection is a template hit in page coordinates.
type Detection struct {
	geometry.Box
	Scale    float64 `json:"scale"`
	Template string  `json:"template"`
	Score    float32 `json:"score"`
}

// Detections translates a sweep result from region to page coordinates.
//
// Every box is sized from the set's reference template times the winning
// scale, regardless of which template produced the hit.
func Detections(staff Staff, set *TemplateSet, result *MatchResult) []Detection {
	if result == nil {
		return nil
	}
	tw, th := set.Size()
	w := float64(tw) * result.Scale
	h := float64(th) * result.Scale

	origin := staff.Rect().Min
	dx, dy := float64(origin.X), float64(origin.Y)
	out := make([]Detection, 0, len(result.Positions))
	for _, m := range result.Positions {
		name := ""
		if m.Template >= 0 && m.Template < len(set.Names) {
			name = set.Names[m.Template]
		}
		out = append(out, Detection{
			Box:      geometry.NewBox(float64(m.X), float64(m.Y), w, h).Translate(dx, dy),
			Scale:    result.Scale,
			Template: name,
			Score:    m.Score,
		})
	}
	return out
}

// DetectInStaff crops staff from the grayscale page and runs the sweep.
func DetectInStaff(gray gocv.Mat, staff Staff, set *TemplateSet, p MatchParams) ([]Detection, *MatchResult, error) {
	rect := staff.Rect().Intersect(image.Rect(0, 0, gray.Cols(), gray.Rows()))
	if rect.Empty() {
		return nil, nil, fmt.Errorf("staff %d lies outside the page", staff.Index)
	}
	region := gray.Region(rect)
	defer region.Close()

	// Clamp the staff to the page so Detections uses the cropped origin.
	clamped := staff
	clamped.Box = geometry.FromRect(rect)

	result, err := MatchTemplates(region, set, p)
	if err != nil {
		return nil, result, err
	}
	return Detections(clamped, set, result), result, nil
}
