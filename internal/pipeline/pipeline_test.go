package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/inference"
	"github.com/ironsheep/plan-tiler/internal/metrics"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func whitePage(w, h int) plan.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return plan.NewImage(img, 300)
}

func raw(typ string, x1, y1, x2, y2 float64) plan.RawDetection {
	return plan.RawDetection{Type: typ, Bounds: plan.Bounds{X1: x1, Y1: y1, X2: x2, Y2: y2}, Confidence: 0.9}
}

// floorPlan answers for tile 0 only and fails tile 3.
func floorPlan(ctx context.Context, req inference.TileRequest) ([]plan.RawDetection, error) {
	switch req.Tile.ID {
	case 0:
		return []plan.RawDetection{
			raw("door", 100, 100, 190, 140),
			raw("toilet", 300, 300, 370, 340),
			raw("window", 400, 100, 480, 110),
			raw("wall", 10, 500, 630, 520),
			raw("wall", 10, 600, 310, 620),
		}, nil
	case 3:
		return nil, errors.New("service unavailable")
	default:
		return nil, nil
	}
}

func TestAnalyzer_Run(t *testing.T) {
	a, err := New(config.Default(), inference.DetectorFunc(floorPlan), nil, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := a.Run(context.Background(), whitePage(700, 700))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.RunID == "" {
		t.Error("RunID should be set")
	}
	if len(res.Grid.Tiles) != 4 {
		t.Fatalf("grid: got %d tiles, want 4", len(res.Grid.Tiles))
	}

	if len(res.TileErrors) != 1 || res.TileErrors[0].TileID != 3 {
		t.Fatalf("TileErrors: got %+v, want one for tile 3", res.TileErrors)
	}
	if !errors.Is(res.TileErrors[0], plan.ErrTileInferenceFailure) {
		t.Errorf("tile error %v should wrap ErrTileInferenceFailure", res.TileErrors[0])
	}

	// Toilet 70px long against a 700mm fixture.
	if math.Abs(res.Calibration.PixelsPerMM-0.1) > 1e-9 {
		t.Errorf("PixelsPerMM: got %v, want 0.1", res.Calibration.PixelsPerMM)
	}
	if res.Calibration.Fallback {
		t.Error("calibration should come from the reference object")
	}

	// The door is 900mm wide, below the 1200mm minimum.
	if len(res.Violations) != 1 || res.Violations[0].Rule != "door_min_clear_width" {
		t.Fatalf("Violations: got %+v", res.Violations)
	}
	if res.Violations[0].Severity != plan.SeverityCritical || math.Abs(res.Violations[0].Value-900) > 1e-6 {
		t.Errorf("violation: got %+v, want critical at 900mm", res.Violations[0])
	}

	// The first wall spans 89% of the width and is discarded.
	if len(res.Discards) != 1 || res.Discards[0].Element.Type != "wall" {
		t.Fatalf("Discards: got %+v, want the long wall", res.Discards)
	}
	if !errors.Is(res.Discards[0].Err, plan.ErrConsistencyRejected) {
		t.Errorf("discard error %v should wrap ErrConsistencyRejected", res.Discards[0].Err)
	}
	rejectedID := res.Discards[0].Element.ID

	for _, el := range res.Elements {
		if el.Status != plan.StatusValid {
			t.Errorf("element %d: status %q, want valid", el.ID, el.Status)
		}
	}

	if len(res.Measurements) != 1 {
		t.Fatalf("Measurements: got %+v, want only the short wall", res.Measurements)
	}
	wall := res.Measurements[0]
	if wall.ElementID == rejectedID {
		t.Error("rejected element was measured")
	}
	if wall.Kind != plan.KindLength || math.Abs(wall.Value-3000) > 1e-6 {
		t.Errorf("wall: got %+v, want 3000mm length", wall)
	}
	if want := 0.9 * res.Calibration.Confidence; math.Abs(wall.Accuracy-want) > 1e-9 {
		t.Errorf("Accuracy: got %v, want %v", wall.Accuracy, want)
	}

	for typ, want := range map[string]int{"door": 1, "toilet": 1, "window": 1} {
		if got := res.Tallies[typ]; got != want {
			t.Errorf("tally %s: got %d, want %d", typ, got, want)
		}
	}
	if len(res.Failures) != 0 {
		t.Errorf("Failures: got %+v", res.Failures)
	}

	for _, op := range []string{metrics.OpRun, metrics.OpMerge, metrics.OpCalibration, metrics.OpTileInference} {
		if _, ok := res.Metrics.Operations[op]; !ok {
			t.Errorf("metrics missing %q", op)
		}
	}
}

func TestAnalyzer_RunRecordsCacheHits(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	inner := inference.DetectorFunc(func(ctx context.Context, req inference.TileRequest) ([]plan.RawDetection, error) {
		t.Error("inner detector called on a cached tile")
		return nil, nil
	})
	det := inference.NewCachingDetector(rdb, time.Hour, inner, "gemini/flash", nil)

	cached, _ := json.Marshal([]plan.RawDetection{raw("door", 100, 100, 190, 140)})
	mock.Regexp().ExpectGet(`^plan-tiler:detections:[0-9a-f]{64}$`).SetVal(string(cached))

	a, err := New(config.Default(), det, nil, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := a.Run(context.Background(), whitePage(300, 300))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := res.Metrics.Operations[metrics.OpCacheHit].Count; got != 1 {
		t.Errorf("cache_hit count: got %d, want 1", got)
	}
	if res.Tallies["door"] != 1 {
		t.Errorf("door tally: got %d, want 1 from the cached answer", res.Tallies["door"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

func TestAnalyzer_RunIDsDiffer(t *testing.T) {
	a, err := New(config.Default(), inference.DetectorFunc(floorPlan), nil, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first, err := a.Run(context.Background(), whitePage(300, 300))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := a.Run(context.Background(), whitePage(300, 300))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.RunID == second.RunID {
		t.Errorf("run ids should differ, both %q", first.RunID)
	}
}

func TestAnalyzer_CancelledRunStillReports(t *testing.T) {
	a, err := New(config.Default(), inference.DetectorFunc(floorPlan), nil, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := a.Run(ctx, whitePage(700, 700))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Dispatch.Cancelled != 4 {
		t.Errorf("Cancelled: got %d, want 4", res.Dispatch.Cancelled)
	}
	for _, e := range res.TileErrors {
		if !errors.Is(e, plan.ErrTileCancelled) {
			t.Errorf("tile %d: got %v, want ErrTileCancelled", e.TileID, e.Err)
		}
	}
	if len(res.Elements) != 0 || !res.Calibration.Fallback {
		t.Errorf("got %d elements, fallback=%v; want none and a fallback scale", len(res.Elements), res.Calibration.Fallback)
	}
}

func TestAnalyzer_ResolutionFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Image.Resolution = 150
	a, err := New(cfg, inference.DetectorFunc(floorPlan), nil, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	img := whitePage(200, 200)
	img.Resolution = 0

	res, err := a.Run(context.Background(), img)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Image.Resolution != 150 {
		t.Errorf("Resolution: got %v, want 150", res.Image.Resolution)
	}
}

func TestNew_InvalidConfiguration(t *testing.T) {
	det := inference.DetectorFunc(floorPlan)
	tests := []struct {
		name   string
		mutate func(*config.Config)
		det    inference.Detector
	}{
		{"overlap not below tile size", func(c *config.Config) { c.Tiling.Overlap = c.Tiling.TileSize }, det},
		{"zero concurrency", func(c *config.Config) { c.Dispatch.MaxConcurrentTiles = 0 }, det},
		{"unknown calibration method", func(c *config.Config) { c.Calibration.Methods = []string{"astrology"} }, det},
		{"bad severity", func(c *config.Config) { c.Rules[0].Severity = "fatal" }, det},
		{"no detector", func(c *config.Config) {}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			_, err := New(cfg, tt.det, nil, quietLogger())
			if !errors.Is(err, plan.ErrInvalidConfiguration) {
				t.Errorf("got %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestAnalyzer_RunWithoutPixels(t *testing.T) {
	a, err := New(config.Default(), inference.DetectorFunc(floorPlan), nil, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.Run(context.Background(), plan.Image{}); !errors.Is(err, plan.ErrInvalidConfiguration) {
		t.Errorf("got %v, want ErrInvalidConfiguration", err)
	}
}
