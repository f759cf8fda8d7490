package server

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/detection"
	"github.com/ironsheep/plan-tiler/internal/imaging"
	"github.com/ironsheep/plan-tiler/internal/inference"
	"github.com/ironsheep/plan-tiler/internal/ocr"
	"github.com/ironsheep/plan-tiler/internal/pipeline"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// writePlanFile writes a white grayscale plan with one horizontal wall
// stroke at y=350 and returns its path.
func writePlanFile(t *testing.T, width, height int) string {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 349; y <= 351; y++ {
		for x := 100; x < width-100; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}

	path := filepath.Join(t.TempDir(), "plan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

type fakeReader struct {
	result *ocr.Result
}

func (f *fakeReader) Read(ctx context.Context, img image.Image) (*ocr.Result, error) {
	out := *f.result
	out.Words = append([]ocr.Word(nil), f.result.Words...)
	return &out, nil
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *MCPResponse {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(t, err)

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  params,
	})
	require.NotNil(t, resp)
	return resp
}

// decodeContent unmarshals the text payload of a successful tool call.
func decodeContent(t *testing.T, resp *MCPResponse, v any) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected tool error: %+v", resp.Error)

	result, ok := resp.Result.(map[string]any)
	require.True(t, ok, "Result should be a map")
	content, ok := result["content"].([]map[string]any)
	require.True(t, ok, "content should be a slice")
	require.Len(t, content, 1)
	assert.Equal(t, "text", content[0]["type"])
	require.NoError(t, json.Unmarshal([]byte(content[0]["text"].(string)), v))
}

func TestPlanLoad(t *testing.T) {
	s := newTestServer()
	path := writePlanFile(t, 1400, 700)

	var got struct {
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Format    string `json:"format"`
		Grayscale bool   `json:"grayscale"`
		Columns   int    `json:"columns"`
		Rows      int    `json:"rows"`
		Tiles     int    `json:"tiles"`
		TileSize  int    `json:"tile_size"`
	}
	decodeContent(t, callTool(t, s, "plan_load", map[string]any{"path": path}), &got)

	assert.Equal(t, 1400, got.Width)
	assert.Equal(t, 700, got.Height)
	assert.Equal(t, "png", got.Format)
	assert.True(t, got.Grayscale)
	assert.Equal(t, 3, got.Columns)
	assert.Equal(t, 2, got.Rows)
	assert.Equal(t, 6, got.Tiles)
	assert.Equal(t, 672, got.TileSize)
	assert.Equal(t, 1, s.cache.Len())
}

func TestPlanLoad_Missing(t *testing.T) {
	s := newTestServer()
	resp := callTool(t, s, "plan_load", map[string]any{"path": filepath.Join(t.TempDir(), "absent.png")})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
}

func TestTileGrid(t *testing.T) {
	s := newTestServer()
	path := writePlanFile(t, 1400, 700)

	var got struct {
		Grid    struct{ Tiles []plan.Tile } `json:"grid"`
		Preview imaging.OverlayResult       `json:"preview"`
	}
	decodeContent(t, callTool(t, s, "plan_tile_grid", map[string]any{"path": path, "max_side": 700}), &got)

	require.Len(t, got.Grid.Tiles, 6)
	assert.Equal(t, 728, got.Grid.Tiles[2].X, "last column sits flush with the right edge")
	assert.Equal(t, 6, got.Preview.Tiles)
	assert.LessOrEqual(t, got.Preview.Width, 700)
	assert.NotEmpty(t, got.Preview.ImageBase64)
	assert.Equal(t, imaging.PNGMimeType, got.Preview.MimeType)
}

func TestTileGrid_BadColor(t *testing.T) {
	s := newTestServer()
	path := writePlanFile(t, 800, 600)
	resp := callTool(t, s, "plan_tile_grid", map[string]any{"path": path, "line_color": "red"})
	require.NotNil(t, resp.Error)
}

func TestTileCrop(t *testing.T) {
	s := newTestServer()
	path := writePlanFile(t, 1400, 700)

	var got imaging.CropResult
	decodeContent(t, callTool(t, s, "plan_tile_crop", map[string]any{"path": path, "tile_id": 2}), &got)
	assert.Equal(t, 672, got.Width)
	assert.Equal(t, 672, got.Height)
	assert.NotEmpty(t, got.ImageBase64)

	decodeContent(t, callTool(t, s, "plan_tile_crop", map[string]any{"path": path, "tile_id": 0, "scale": 0.5}), &got)
	assert.Equal(t, 336, got.Width)

	resp := callTool(t, s, "plan_tile_crop", map[string]any{"path": path, "tile_id": 99})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Data, "tile 99")
}

func TestDetectLines(t *testing.T) {
	s := newTestServer()
	path := writePlanFile(t, 800, 500)

	var got detection.LinesResult
	decodeContent(t, callTool(t, s, "plan_detect_lines", map[string]any{
		"path":       path,
		"region":     map[string]any{"x1": 0, "y1": 300, "x2": 800, "y2": 400},
		"min_length": 100,
	}), &got)

	require.NotEmpty(t, got.Lines)
	line := got.Lines[0]
	assert.True(t, line.Horizontal(2), "strongest line should be the wall: %+v", line)
	assert.InDelta(t, 350, line.Start.Y, 3, "line reported in plan coordinates")
	assert.Greater(t, line.Length, 400.0)
}

func TestDetectLines_RegionOutside(t *testing.T) {
	s := newTestServer()
	path := writePlanFile(t, 400, 400)
	resp := callTool(t, s, "plan_detect_lines", map[string]any{
		"path":   path,
		"region": map[string]any{"x1": 300, "y1": 300, "x2": 500, "y2": 500},
	})
	require.NotNil(t, resp.Error)
}

func TestOCRRegion(t *testing.T) {
	reader := &fakeReader{result: &ocr.Result{
		FullText: "3000",
		Words:    []ocr.Word{{Text: "3000", Confidence: 0.9, Bounds: plan.Bounds{X1: 5, Y1: 5, X2: 40, Y2: 15}}},
	}}
	s := New(config.Default(), nil, reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	path := writePlanFile(t, 600, 500)

	var got ocr.Result
	decodeContent(t, callTool(t, s, "plan_ocr_region", map[string]any{
		"path":   path,
		"region": map[string]any{"x1": 100, "y1": 200, "x2": 300, "y2": 300},
	}), &got)

	require.Len(t, got.Words, 1)
	assert.Equal(t, plan.Bounds{X1: 105, Y1: 205, X2: 140, Y2: 215}, got.Words[0].Bounds)
}

func TestOCRRegion_NoReader(t *testing.T) {
	s := newTestServer()
	path := writePlanFile(t, 300, 300)
	resp := callTool(t, s, "plan_ocr_region", map[string]any{"path": path})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Data, "OCR")
}

func TestCalibrateScale(t *testing.T) {
	reader := &fakeReader{result: &ocr.Result{FullText: "GROUND FLOOR PLAN  SCALE 1:100"}}
	s := New(config.Default(), nil, reader, slog.New(slog.NewTextHandler(io.Discard, nil)))
	path := writePlanFile(t, 600, 500)

	var got plan.ScaleCalibration
	decodeContent(t, callTool(t, s, "plan_calibrate_scale", map[string]any{"path": path, "resolution": 254}), &got)

	assert.InDelta(t, 0.1, got.PixelsPerMM, 1e-9)
	assert.False(t, got.Fallback)
	assert.Equal(t, []string{"notation"}, got.Methods)
}

func TestCalibrateScale_Fallback(t *testing.T) {
	s := newTestServer()
	path := writePlanFile(t, 600, 500)

	var got plan.ScaleCalibration
	decodeContent(t, callTool(t, s, "plan_calibrate_scale", map[string]any{"path": path}), &got)

	assert.True(t, got.Fallback)
	assert.InDelta(t, 300/plan.MillimetresPerInch/100, got.PixelsPerMM, 1e-9)
}

func TestAnalyze(t *testing.T) {
	det := inference.DetectorFunc(func(ctx context.Context, req inference.TileRequest) ([]plan.RawDetection, error) {
		if req.Tile.ID != 0 {
			return nil, nil
		}
		return []plan.RawDetection{
			{Type: "wall", Bounds: plan.Bounds{X1: 100, Y1: 345, X2: 400, Y2: 355}, Confidence: 0.9},
		}, nil
	})
	s := New(config.Default(), det, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	path := writePlanFile(t, 1000, 700)

	var got pipeline.Result
	decodeContent(t, callTool(t, s, "plan_analyze", map[string]any{"path": path}), &got)

	assert.NotEmpty(t, got.RunID)
	require.Len(t, got.Elements, 1)
	assert.Equal(t, "wall", got.Elements[0].Type)
	assert.Equal(t, plan.StatusValid, got.Elements[0].Status)
	require.Len(t, got.Measurements, 1)
	assert.Equal(t, plan.KindLength, got.Measurements[0].Kind)
	assert.True(t, got.Calibration.Fallback)
}

func TestAnalyze_NoDetector(t *testing.T) {
	s := newTestServer()
	path := writePlanFile(t, 300, 300)
	resp := callTool(t, s, "plan_analyze", map[string]any{"path": path})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Data, "invalid configuration")
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer()
	resp := callTool(t, s, "image_sample_color", map[string]any{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
	assert.Contains(t, resp.Error.Data, "unknown tool")
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer()
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}
