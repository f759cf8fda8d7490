package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/plan-tiler/internal/calibration"
	"github.com/ironsheep/plan-tiler/internal/detection"
	"github.com/ironsheep/plan-tiler/internal/imaging"
	"github.com/ironsheep/plan-tiler/internal/ocr"
	"github.com/ironsheep/plan-tiler/internal/pipeline"
	"github.com/ironsheep/plan-tiler/internal/plan"
	"github.com/ironsheep/plan-tiler/internal/tiling"
)

// Defaults for optional tool arguments.
const (
	defaultPreviewSide = 1600
	defaultLineColor   = "#FF0000"
	defaultMinLength   = 20
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "plan_load", "plan_analyze").
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
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case "plan_load":
		return s.handlePlanLoad(args)

	case "plan_tile_grid":
		return s.handleTileGrid(args)
	case "plan_tile_crop":
		return s.handleTileCrop(args)

	case "plan_detect_lines":
		return s.handleDetectLines(args)
	case "plan_ocr_region":
		return s.handleOCRRegion(ctx, args)

	case "plan_calibrate_scale":
		return s.handleCalibrateScale(ctx, args)
	case "plan_analyze":
		return s.handleAnalyze(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id any, code int, message, data string) *MCPResponse {
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
// On marshal failure it returns an empty string.
func mustMarshalJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

type region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// rect returns the region, or all of bounds when r is nil.
func (r *region) rect(bounds image.Rectangle) image.Rectangle {
	if r == nil {
		return bounds
	}
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2).Add(bounds.Min)
}

// grid plans the configured tile grid for a loaded raster.
func (s *Server) grid(img image.Image) (*tiling.Grid, error) {
	b := img.Bounds()
	return tiling.Plan(b.Dx(), b.Dy(), s.cfg.Tiling)
}

// planImage loads path through the cache and attaches a resolution.
func (s *Server) planImage(path string, dpi float64) (plan.Image, error) {
	img, err := s.cache.Load(path)
	if err != nil {
		return plan.Image{}, err
	}
	if dpi <= 0 {
		dpi = s.cfg.Image.Resolution
	}
	return plan.NewImage(img, dpi), nil
}

// === Plan Information ===

type pathArgs struct {
	Path string `json:"path"`
}

type planLoadResult struct {
	*imaging.Info
	TileSize int `json:"tile_size"`
	Overlap  int `json:"overlap"`
	Columns  int `json:"columns"`
	Rows     int `json:"rows"`
	Tiles    int `json:"tiles"`
}

func (s *Server) handlePlanLoad(args json.RawMessage) (any, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	info, err := imaging.LoadInfo(s.cache, a.Path)
	if err != nil {
		return nil, err
	}
	grid, err := tiling.Plan(info.Width, info.Height, s.cfg.Tiling)
	if err != nil {
		return nil, err
	}
	return &planLoadResult{
		Info:     info,
		TileSize: grid.TileSize,
		Overlap:  grid.Overlap,
		Columns:  grid.Columns,
		Rows:     grid.Rows,
		Tiles:    len(grid.Tiles),
	}, nil
}

// === Tiling ===

type tileGridArgs struct {
	Path      string `json:"path"`
	MaxSide   *int   `json:"max_side"`
	LineColor string `json:"line_color"`
}

type tileGridResult struct {
	Grid    *tiling.Grid           `json:"grid"`
	Preview *imaging.OverlayResult `json:"preview"`
}

func (s *Server) handleTileGrid(args json.RawMessage) (any, error) {
	var a tileGridArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	maxSide := defaultPreviewSide
	if a.MaxSide != nil {
		maxSide = *a.MaxSide
	}
	if a.LineColor == "" {
		a.LineColor = defaultLineColor
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	grid, err := s.grid(img)
	if err != nil {
		return nil, err
	}
	preview, err := imaging.TileOverlay(img, grid.Tiles, maxSide, a.LineColor)
	if err != nil {
		return nil, err
	}
	return &tileGridResult{Grid: grid, Preview: preview}, nil
}

type tileCropArgs struct {
	Path   string  `json:"path"`
	TileID int     `json:"tile_id"`
	Scale  float64 `json:"scale"`
}

func (s *Server) handleTileCrop(args json.RawMessage) (any, error) {
	var a tileCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	grid, err := s.grid(img)
	if err != nil {
		return nil, err
	}
	tile, ok := grid.Tile(a.TileID)
	if !ok {
		return nil, fmt.Errorf("tile %d outside the %d-tile grid", a.TileID, len(grid.Tiles))
	}
	return imaging.CropTile(img, tile, a.Scale)
}

// === Evidence ===

type detectLinesArgs struct {
	Path         string  `json:"path"`
	Region       *region `json:"region"`
	MinLength    int     `json:"min_length"`
	MaxLines     int     `json:"max_lines"`
	DetectArrows bool    `json:"detect_arrows"`
}

func (s *Server) handleDetectLines(args json.RawMessage) (any, error) {
	var a detectLinesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.MinLength == 0 {
		a.MinLength = defaultMinLength
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rect := a.Region.rect(bounds)
	window := plan.Tile{
		X:      rect.Min.X - bounds.Min.X,
		Y:      rect.Min.Y - bounds.Min.Y,
		Width:  rect.Dx(),
		Height: rect.Dy(),
	}
	src, err := imaging.ExtractTile(img, window, 0)
	if err != nil {
		return nil, err
	}

	res := detection.DetectLines(src, detection.LineOptions{
		MinLength:    a.MinLength,
		MaxLines:     a.MaxLines,
		DetectArrows: a.DetectArrows,
	})
	// Report in plan coordinates.
	for i := range res.Lines {
		res.Lines[i].Start.X += window.X
		res.Lines[i].Start.Y += window.Y
		res.Lines[i].End.X += window.X
		res.Lines[i].End.Y += window.Y
	}
	return res, nil
}

type ocrRegionArgs struct {
	Path   string  `json:"path"`
	Region *region `json:"region"`
}

func (s *Server) handleOCRRegion(ctx context.Context, args json.RawMessage) (any, error) {
	var a ocrRegionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.reader == nil {
		return nil, errors.New("OCR is not available")
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return ocr.ReadRegion(ctx, s.reader, img, a.Region.rect(img.Bounds()))
}

// === Analysis ===

type analyzeArgs struct {
	Path       string  `json:"path"`
	Resolution float64 `json:"resolution"`
}

func (s *Server) handleCalibrateScale(ctx context.Context, args json.RawMessage) (any, error) {
	var a analyzeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.planImage(a.Path, a.Resolution)
	if err != nil {
		return nil, err
	}
	cal, err := calibration.New(s.cfg.Calibration, s.reader, s.logger, nil)
	if err != nil {
		return nil, err
	}
	res := cal.Calibrate(ctx, img, nil)
	return &res, nil
}

func (s *Server) handleAnalyze(ctx context.Context, args json.RawMessage) (any, error) {
	var a analyzeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.planImage(a.Path, a.Resolution)
	if err != nil {
		return nil, err
	}
	analyzer, err := pipeline.New(s.cfg, s.detector, s.reader, s.logger)
	if err != nil {
		return nil, err
	}
	return analyzer.Run(ctx, img)
}
