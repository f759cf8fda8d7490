package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

var pathProperty = map[string]any{
	"type":        "string",
	"description": "Absolute path to the plan image (PNG, JPEG, TIFF, BMP, GIF)",
}

var resolutionProperty = map[string]any{
	"type":        "number",
	"description": "Scan resolution in dots per inch. Defaults to the configured resolution",
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Plan Information
		{
			Name:        "plan_load",
			Description: "Load a plan image and return its dimensions, format and the tile grid it would be split into. Sets the image in the server cache for subsequent calls.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},

		// Tiling
		{
			Name:        "plan_tile_grid",
			Description: "Plan the overlapping tile grid for an image and return the grid with a preview of the plan with every tile outlined and numbered.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": pathProperty,
					"max_side": map[string]any{
						"type":        "integer",
						"description": "Longest side of the preview in pixels (default 1600, 0 keeps full size)",
						"default":     1600,
					},
					"line_color": map[string]any{
						"type":        "string",
						"description": "Tile outline colour as hex (default #FF0000)",
						"default":     "#FF0000",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "plan_tile_crop",
			Description: "Return one tile of the grid as base64-encoded PNG, cut at the same window that is sent to the vision model.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": pathProperty,
					"tile_id": map[string]any{
						"type":        "integer",
						"description": "Tile id from plan_tile_grid (row major, from 0)",
					},
					"scale": map[string]any{
						"type":        "number",
						"description": "Optional scale factor (e.g., 0.5 to halve size). Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path", "tile_id"},
			},
		},

		// Evidence
		{
			Name:        "plan_detect_lines",
			Description: "Detect straight line segments in a region of the plan, optionally checking for arrowheads (dimension lines).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":   pathProperty,
					"region": regionSchema("Optional region to search; defaults to the whole plan"),
					"min_length": map[string]any{
						"type":        "integer",
						"description": "Shortest segment reported in pixels (default 20)",
						"default":     20,
					},
					"max_lines": map[string]any{
						"type":        "integer",
						"description": "Maximum segments returned (default 50)",
						"default":     50,
					},
					"detect_arrows": map[string]any{
						"type":        "boolean",
						"description": "Check segment ends for arrowheads",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "plan_ocr_region",
			Description: "Read the text in a region of the plan (dimension labels, scale notation) with word boxes in plan coordinates.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":   pathProperty,
					"region": regionSchema("Region to read; defaults to the whole plan"),
				},
				"required": []string{"path"},
			},
		},

		// Analysis
		{
			Name:        "plan_calibrate_scale",
			Description: "Estimate the plan's pixels-per-millimetre scale from its printed scale notation and dimension lines.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":       pathProperty,
					"resolution": resolutionProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "plan_analyze",
			Description: "Run the full analysis: tile the plan, detect elements in every tile, merge duplicates, calibrate the scale, flag regulatory violations and measure every element.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":       pathProperty,
					"resolution": resolutionProperty,
				},
				"required": []string{"path"},
			},
		},
	}
}

func regionSchema(description string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": description,
		"properties": map[string]any{
			"x1": map[string]any{"type": "integer"},
			"y1": map[string]any{"type": "integer"},
			"x2": map[string]any{"type": "integer"},
			"y2": map[string]any{"type": "integer"},
		},
		"required": []string{"x1", "y1", "x2", "y2"},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"tools": GetToolDefinitions(),
		},
	}
}
