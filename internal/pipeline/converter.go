package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ironsheep/sheet-music-mcp/internal/classify"
	"github.com/ironsheep/sheet-music-mcp/internal/config"
	"github.com/ironsheep/sheet-music-mcp/internal/detection"
	"github.com/ironsheep/sheet-music-mcp/internal/geometry"
	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
	"github.com/ironsheep/sheet-music-mcp/internal/pitch"
)

// TitleFunc recognizes a title from the segmenter's rejected blobs.
type TitleFunc func(page image.Image, candidates, staffs []geometry.Box) (string, error)

// Converter turns score pages into notes. It holds no per-page state and is
// safe for concurrent use once built.
type Converter struct {
	cfg        config.Config
	templates  *Templates
	classifier classify.Classifier
	title      TitleFunc
	logger     *log.Logger
}

// Option configures a Converter.
type Option func(*Converter)

// WithClassifier sets the duration classifier. Without one every note is
// left without a duration.
func WithClassifier(c classify.Classifier) Option {
	return func(cv *Converter) { cv.classifier = c }
}

// WithTitle enables title recognition.
func WithTitle(f TitleFunc) Option {
	return func(cv *Converter) { cv.title = f }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(cv *Converter) {
		if l != nil {
			cv.logger = l
		}
	}
}

// New builds a Converter. The templates stay owned by the caller.
func New(cfg config.Config, templates *Templates, opts ...Option) (*Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if templates == nil || templates.Notes == nil {
		return nil, errors.New("note head templates are required")
	}
	c := &Converter{
		cfg:       cfg,
		templates: templates,
		logger:    log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Converter) debugf(format string, args ...any) {
	if c.cfg.Debug() {
		c.logger.Printf("[DEBUG] "+format, args...)
	}
}

// ConvertFile loads an image file and converts it.
func (c *Converter) ConvertFile(ctx context.Context, path string) (*Result, error) {
	page, err := imaging.LoadFile(path)
	if err != nil {
		return nil, err
	}
	result, err := c.Convert(ctx, page)
	if result != nil {
		result.Input = path
	}
	return result, err
}

// Convert runs the whole pipeline on one page.
//
// Staffs are processed concurrently. Failures confined to a staff or symbol
// are collected in Result.Problems; the error is non-nil only for an empty
// page, a cancelled context or a page that cannot be read into OpenCV.
func (c *Converter) Convert(ctx context.Context, page image.Image) (*Result, error) {
	start := time.Now()
	bounds := page.Bounds()
	result := &Result{ID: uuid.New(), Width: bounds.Dx(), Height: bounds.Dy()}

	// Staff boxes and every later stage assume a zero origin.
	if bounds.Min != (image.Point{}) {
		page = imaging.ToGray(page)
	}

	gray, err := imaging.GrayMat(page)
	defer gray.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare page: %w", err)
	}

	staffs, err := detection.FindStaffs(gray, c.cfg.StaffParams())
	if err != nil {
		return nil, fmt.Errorf("staff segmentation: %w", err)
	}
	result.Rejected = staffs.Rejected
	c.debugf("found %d staffs (%d rejected blobs, tw=%.0f th=%.0f)",
		staffs.Count, len(staffs.Rejected), staffs.WidthThreshold, staffs.HeightThreshold)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bw := detection.BinarizePage(gray)
	defer bw.Close()

	results := make([]StaffResult, len(staffs.Staffs))
	problems := make([][]Problem, len(staffs.Staffs))

	var wg sync.WaitGroup
	for i, staff := range staffs.Staffs {
		wg.Add(1)
		go func(i int, staff detection.Staff) {
			defer wg.Done()
			results[i], problems[i] = c.processStaff(ctx, page, gray, bw, staff)
		}(i, staff)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Staffs = results
	for i := range results {
		result.Notes = append(result.Notes, results[i].Notes...)
		result.Problems = append(result.Problems, problems[i]...)
	}

	if c.title != nil {
		title, err := c.title(page, staffs.Rejected, result.StaffBoxes())
		if err != nil {
			c.debugf("title: %v", err)
			result.Problems = append(result.Problems, staffProblem(-1, KindTitle, err))
		}
		result.Title = title
	}

	result.Elapsed = time.Since(start)
	c.debugf("converted page: %d notes, %d problems in %v", len(result.Notes), len(result.Problems), result.Elapsed)
	return result, nil
}

// processStaff runs line location, matching, merging, classification and
// pitch mapping for one staff. It only reads the shared Mats.
func (c *Converter) processStaff(ctx context.Context, page image.Image, gray, bw gocv.Mat, staff detection.Staff) (StaffResult, []Problem) {
	res := StaffResult{Staff: staff}
	var problems []Problem

	lines, err := detection.StaffLines(bw, staff, c.cfg.Lines)
	res.Lines = lines
	switch {
	case errors.Is(err, detection.ErrDegenerateLines):
		problems = append(problems, staffProblem(staff.Index, KindDegenerateLines, err))
	case err != nil:
		return res, append(problems, staffProblem(staff.Index, KindStaff, err))
	}

	dets, match, err := detection.DetectInStaff(gray, staff, c.templates.Notes, c.cfg.MatchParams(c.cfg.Match.Threshold))
	if err != nil {
		kind := KindStaff
		if errors.Is(err, detection.ErrNoDetections) {
			kind = KindNoDetections
		}
		return res, append(problems, staffProblem(staff.Index, kind, err))
	}
	res.Scale = match.Scale
	res.DetectionCount = len(dets)
	for _, d := range dets {
		res.Detections = append(res.Detections, d.Box)
	}

	res.Symbols = detection.MergeDetections(staff.Index, dets, c.cfg.MergeThreshold)
	detection.SortReadingOrder(res.Symbols)
	c.debugf("staff %d: %d detections at scale %.2f merged into %d symbols",
		staff.Index, len(dets), match.Scale, len(res.Symbols))

	var p []Problem
	res.Sharps, p = c.accidentals(gray, staff, c.templates.Sharps, c.cfg.Templates.SharpThreshold)
	problems = append(problems, p...)
	res.Flats, p = c.accidentals(gray, staff, c.templates.Flats, c.cfg.Templates.FlatThreshold)
	problems = append(problems, p...)

	durations := make([]*float64, len(res.Symbols))
	if c.classifier != nil {
		for j, sym := range res.Symbols {
			if ctx.Err() != nil {
				break
			}
			d, err := classify.ClassifySymbol(c.classifier, page, sym.Box, staff.Box)
			if err != nil {
				problems = append(problems, Problem{Staff: staff.Index, Symbol: j, Kind: KindClassification, Err: err})
				continue
			}
			durations[j] = d.Ptr()
		}
	}

	acc := pitch.Accidentals{
		Sharps: detection.SymbolBoxes(res.Sharps),
		Flats:  detection.SymbolBoxes(res.Flats),
	}
	res.Notes, res.Stats = pitch.Map(res.Lines, detection.SymbolBoxes(res.Symbols), acc, durations)
	if res.Stats.OutOfRange > 0 {
		c.debugf("staff %d: dropped %d symbols off the pitch table", staff.Index, res.Stats.OutOfRange)
	}
	return res, problems
}

// accidentals detects and merges one accidental set. An absent set or a
// staff without matches yields no symbols and no problem.
func (c *Converter) accidentals(gray gocv.Mat, staff detection.Staff, set *detection.TemplateSet, threshold float32) ([]detection.Symbol, []Problem) {
	if set == nil {
		return nil, nil
	}
	dets, _, err := detection.DetectInStaff(gray, staff, set, c.cfg.MatchParams(threshold))
	if errors.Is(err, detection.ErrNoDetections) {
		return nil, nil
	}
	if err != nil {
		return nil, []Problem{staffProblem(staff.Index, KindAccidentals, fmt.Errorf("%s: %w", set.Name, err))}
	}
	symbols := detection.MergeDetections(staff.Index, dets, c.cfg.MergeThreshold)
	detection.SortReadingOrder(symbols)
	return symbols, nil
}
