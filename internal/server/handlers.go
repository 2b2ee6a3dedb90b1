package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ironsheep/sheet-music-mcp/internal/detection"
	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
	"github.com/ironsheep/sheet-music-mcp/internal/midi"
	"github.com/ironsheep/sheet-music-mcp/internal/pipeline"
	"github.com/ironsheep/sheet-music-mcp/internal/pitch"
	"github.com/ironsheep/sheet-music-mcp/internal/store"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "score_convert").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads the page from cache
//  4. Runs one pipeline stage, or the whole pipeline
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Individual stages
	case "score_detect_staffs":
		return s.handleDetectStaffs(args)
	case "score_detect_lines":
		return s.handleDetectLines(args)
	case "score_detect_symbols":
		return s.handleDetectSymbols(args)

	// Whole pipeline
	case "score_convert":
		return s.handleConvert(ctx, args)
	case "score_overlay":
		return s.handleOverlay(ctx, args)

	// History
	case "score_history":
		return s.handleHistory(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments and checks for a path.
func decodeArgs(args json.RawMessage, v interface{ path() string }) error {
	if err := json.Unmarshal(args, v); err != nil {
		return err
	}
	if v.path() == "" {
		return errors.New("path is required")
	}
	return nil
}

// page loads path from the cache as a grayscale Mat. The caller closes it.
func (s *Server) page(path string) (image.Image, gocv.Mat, error) {
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, gocv.NewMat(), err
	}
	gray, err := imaging.GrayMat(img)
	if err != nil {
		return nil, gray, err
	}
	return img, gray, nil
}

// selectStaffs returns every staff, or only the one at index when set.
func selectStaffs(staffs []detection.Staff, index *int) ([]detection.Staff, error) {
	if index == nil {
		return staffs, nil
	}
	if *index < 0 || *index >= len(staffs) {
		return nil, fmt.Errorf("staff %d out of range (page has %d)", *index, len(staffs))
	}
	return staffs[*index : *index+1], nil
}

// === Stage Handlers ===

type pathArgs struct {
	Path string `json:"path"`
}

func (a *pathArgs) path() string { return a.Path }

func (s *Server) handleDetectStaffs(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	_, gray, err := s.page(a.Path)
	defer gray.Close()
	if err != nil {
		return nil, err
	}
	return detection.FindStaffs(gray, s.cfg.StaffParams())
}

type detectLinesArgs struct {
	Path  string `json:"path"`
	Staff *int   `json:"staff,omitempty"`
}

func (a *detectLinesArgs) path() string { return a.Path }

type staffLines struct {
	Staff      int             `json:"staff"`
	Lines      []float64       `json:"lines"`
	Geometry   *pitch.Geometry `json:"geometry,omitempty"`
	Degenerate bool            `json:"degenerate"`
	Box        detection.Staff `json:"box"`
}

func (s *Server) handleDetectLines(args json.RawMessage) (interface{}, error) {
	var a detectLinesArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	_, gray, err := s.page(a.Path)
	defer gray.Close()
	if err != nil {
		return nil, err
	}

	found, err := detection.FindStaffs(gray, s.cfg.StaffParams())
	if err != nil {
		return nil, err
	}
	staffs, err := selectStaffs(found.Staffs, a.Staff)
	if err != nil {
		return nil, err
	}

	bw := detection.BinarizePage(gray)
	defer bw.Close()

	out := make([]staffLines, 0, len(staffs))
	for _, staff := range staffs {
		lines, err := detection.StaffLines(bw, staff, s.cfg.Lines)
		if err != nil && !errors.Is(err, detection.ErrDegenerateLines) {
			return nil, err
		}
		entry := staffLines{
			Staff:      staff.Index,
			Lines:      lines,
			Degenerate: err != nil,
			Box:        staff,
		}
		if g, gerr := pitch.NewGeometry(lines); gerr == nil {
			entry.Geometry = &g
		}
		out = append(out, entry)
	}
	return out, nil
}

type detectSymbolsArgs struct {
	Path      string  `json:"path"`
	Staff     *int    `json:"staff,omitempty"`
	Threshold float32 `json:"threshold"`
}

func (a *detectSymbolsArgs) path() string { return a.Path }

type staffSymbols struct {
	Staff      int                    `json:"staff"`
	Match      *detection.MatchResult `json:"match,omitempty"`
	Detections int                    `json:"detections"`
	Symbols    []detection.Symbol     `json:"symbols"`
	Error      string                 `json:"error,omitempty"`
}

func (s *Server) handleDetectSymbols(args json.RawMessage) (interface{}, error) {
	var a detectSymbolsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Threshold == 0 {
		a.Threshold = s.cfg.Match.Threshold
	}
	if a.Threshold < 0 || a.Threshold > 1 {
		return nil, fmt.Errorf("threshold %.2f must be in (0, 1]", a.Threshold)
	}
	if _, err := s.converter(); err != nil {
		return nil, err
	}

	_, gray, err := s.page(a.Path)
	defer gray.Close()
	if err != nil {
		return nil, err
	}
	found, err := detection.FindStaffs(gray, s.cfg.StaffParams())
	if err != nil {
		return nil, err
	}
	staffs, err := selectStaffs(found.Staffs, a.Staff)
	if err != nil {
		return nil, err
	}

	params := s.cfg.MatchParams(a.Threshold)
	out := make([]staffSymbols, 0, len(staffs))
	for _, staff := range staffs {
		dets, match, err := detection.DetectInStaff(gray, staff, s.templates.Notes, params)
		entry := staffSymbols{Staff: staff.Index, Detections: len(dets)}
		if match != nil {
			// Positions are region-relative and can be large; the symbols carry
			// the useful geometry.
			summary := *match
			summary.Positions = nil
			entry.Match = &summary
		}
		if err != nil {
			entry.Error = err.Error()
			out = append(out, entry)
			continue
		}
		entry.Symbols = detection.MergeDetections(staff.Index, dets, s.cfg.MergeThreshold)
		detection.SortReadingOrder(entry.Symbols)
		out = append(out, entry)
	}
	return out, nil
}

// === Pipeline Handlers ===

// convert runs the whole pipeline on a cached page.
func (s *Server) convert(ctx context.Context, path string) (image.Image, *pipeline.Result, error) {
	conv, err := s.converter()
	if err != nil {
		return nil, nil, err
	}
	img, err := s.cache.Load(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := conv.Convert(ctx, img)
	if err != nil {
		return nil, nil, err
	}
	result.Input = path
	return img, result, nil
}

type convertArgs struct {
	Path   string `json:"path"`
	Output string `json:"output"`
	NoMIDI bool   `json:"no_midi"`
}

func (a *convertArgs) path() string { return a.Path }

type convertResult struct {
	ID       uuid.UUID          `json:"id"`
	Title    string             `json:"title,omitempty"`
	Output   string             `json:"output,omitempty"`
	Staffs   int                `json:"staffs"`
	Notes    []pitch.Note       `json:"notes"`
	Dropped  int                `json:"dropped"`
	Beats    float64            `json:"beats"`
	Problems []pipeline.Problem `json:"problems,omitempty"`
	Elapsed  string             `json:"elapsed"`
}

func (s *Server) handleConvert(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a convertArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	_, result, err := s.convert(ctx, a.Path)
	if err != nil {
		return nil, err
	}

	out := convertResult{
		ID:       result.ID,
		Title:    result.Title,
		Staffs:   len(result.Staffs),
		Notes:    result.Notes,
		Dropped:  result.Dropped(),
		Beats:    midi.TotalBeats(midi.Schedule(result.Notes)),
		Problems: result.Problems,
		Elapsed:  result.Elapsed.String(),
	}

	if !a.NoMIDI {
		out.Output = a.Output
		if out.Output == "" {
			out.Output = pipeline.OutputPath(a.Path, s.cfg.OutputDir)
		}
		opts := s.cfg.MIDI
		opts.TrackName = result.Title
		if err := midi.WriteFile(out.Output, result.Notes, opts); err != nil {
			return nil, err
		}
	}

	if s.history != nil {
		if _, err := s.history.Record(result.Run(out.Output)); err != nil {
			return nil, fmt.Errorf("failed to record history: %w", err)
		}
	}
	return out, nil
}

type overlayArgs struct {
	Path   string `json:"path"`
	Output string `json:"output"`
}

func (a *overlayArgs) path() string { return a.Path }

type overlaySaved struct {
	Output string `json:"output"`
	Staffs int    `json:"staffs"`
	Notes  int    `json:"notes"`
}

func (s *Server) handleOverlay(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a overlayArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	img, result, err := s.convert(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	if a.Output == "" {
		return imaging.Overlay(img, result.Layers())
	}
	if err := imaging.SaveOverlay(a.Output, img, result.Layers()); err != nil {
		return nil, err
	}
	return overlaySaved{Output: a.Output, Staffs: len(result.Staffs), Notes: len(result.Notes)}, nil
}

// === History Handlers ===

type historyArgs struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

func (s *Server) handleHistory(args json.RawMessage) (interface{}, error) {
	var a historyArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, err
		}
	}
	if s.history == nil {
		return nil, errors.New("conversion history is disabled")
	}
	if a.ID == "" {
		return s.history.Recent(a.Limit)
	}

	id, err := uuid.Parse(a.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id: %w", err)
	}
	run, ok, err := s.history.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return []store.Run{run}, nil
}
