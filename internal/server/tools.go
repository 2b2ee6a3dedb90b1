package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the scanned score page (PNG, JPEG, GIF or TIFF)",
	}
}

func staffProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Optional staff index (0 = top). Omit for every staff",
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Individual stages
		{
			Name:        "score_detect_staffs",
			Description: "Segment a score page into staff systems. Returns staff boxes top to bottom, the rejected blobs (titles, page numbers) and the admission thresholds.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "score_detect_lines",
			Description: "Locate the five staff lines of each staff. Returns line y-coordinates in page pixels and the derived step geometry; degenerate staffs are flagged.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  pathProperty(),
					"staff": staffProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "score_detect_symbols",
			Description: "Match note head templates over a scale sweep and merge overlapping hits into one box per symbol. Returns the winning scale, per-scale counts and the merged symbols.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  pathProperty(),
					"staff": staffProperty(),
					"threshold": map[string]interface{}{
						"type":        "number",
						"description": "Minimum match score in (0, 1]. Defaults to the configured threshold",
					},
				},
				"required": []string{"path"},
			},
		},

		// Whole pipeline
		{
			Name:        "score_convert",
			Description: "Convert a score page to notes and write a MIDI file. Returns every note with pitch, duration and box, plus non-fatal problems per staff or symbol.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Optional MIDI output path. Defaults to the page name with .mid, in the configured output directory if set",
					},
					"no_midi": map[string]interface{}{
						"type":        "boolean",
						"description": "Only return the notes, do not write a MIDI file",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "score_overlay",
			Description: "Convert a page and draw staffs, lines, raw detections, merged symbols and note labels on a copy. Returns base64 PNG, or saves it when output is given.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"output": map[string]interface{}{
						"type":        "string",
						"description": "Optional PNG path to save the overlay to instead of returning it",
					},
				},
				"required": []string{"path"},
			},
		},

		// History
		{
			Name:        "score_history",
			Description: "List recent conversions newest first, or fetch one run with its problems by id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Optional run id (UUID)",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of runs to list. Default 20",
						"default":     20,
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
