package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestTiling_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tiling  Tiling
		wantErr bool
	}{
		{"default", Tiling{TileSize: 672, Overlap: 64}, false},
		{"zero tile", Tiling{TileSize: 0, Overlap: 0}, true},
		{"negative tile", Tiling{TileSize: -10, Overlap: 2}, true},
		{"overlap equals tile", Tiling{TileSize: 100, Overlap: 100}, true},
		{"overlap exceeds tile", Tiling{TileSize: 100, Overlap: 150}, true},
		{"zero overlap", Tiling{TileSize: 100, Overlap: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tiling.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, plan.ErrInvalidConfiguration) {
				t.Errorf("error %v does not wrap ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestValidate_RejectsBadThresholds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"iou zero", func(c *Config) { c.Merge.IOUThreshold = 0 }},
		{"iou above one", func(c *Config) { c.Merge.IOUThreshold = 1.5 }},
		{"no concurrency", func(c *Config) { c.Dispatch.MaxConcurrentTiles = 0 }},
		{"extent fraction", func(c *Config) { c.Validation.MaxExtentFraction = 0 }},
		{"unknown method", func(c *Config) { c.Elements["beam"] = ElementMethod{Method: "weight"} }},
		{"bad severity", func(c *Config) { c.Rules[0].Severity = "fatal" }},
		{"rule without threshold", func(c *Config) { c.Rules[0].Min = 0 }},
		{"resolution", func(c *Config) { c.Image.Resolution = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, plan.ErrInvalidConfiguration) {
				t.Errorf("Validate() = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	content := `
tiling:
  tile_size: 512
  overlap: 48
dispatch:
  max_concurrent_tiles: 2
  tile_timeout: 15s
merge:
  iou_threshold: 0.4
elements:
  beam:
    method: length
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PLAN_TILE_OVERLAP", "32")
	t.Setenv("PLAN_INFERENCE_PROVIDER", "ollama")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Tiling.TileSize != 512 {
		t.Errorf("TileSize: got %d, want 512", cfg.Tiling.TileSize)
	}
	if cfg.Tiling.Overlap != 32 {
		t.Errorf("Overlap: got %d, want 32 (env override)", cfg.Tiling.Overlap)
	}
	if cfg.Dispatch.TileTimeout != 15*time.Second {
		t.Errorf("TileTimeout: got %v, want 15s", cfg.Dispatch.TileTimeout)
	}
	if cfg.Merge.IOUThreshold != 0.4 {
		t.Errorf("IOUThreshold: got %v, want 0.4", cfg.Merge.IOUThreshold)
	}
	if cfg.Inference.Provider != "ollama" {
		t.Errorf("Provider: got %q, want ollama", cfg.Inference.Provider)
	}
	if _, ok := cfg.Elements["beam"]; !ok {
		t.Error("beam element from YAML missing")
	}
	if _, ok := cfg.Elements["wall"]; !ok {
		t.Error("default wall element lost after YAML merge")
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("tiling:\n  tile_size: 64\n  overlap: 64\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(path)
	if !errors.Is(err, plan.ErrInvalidConfiguration) {
		t.Errorf("Load() = %v, want ErrInvalidConfiguration", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestFallbackPixelsPerMMFor(t *testing.T) {
	cal := Default().Calibration
	got := cal.FallbackPixelsPerMMFor(254)
	// 254 dpi is 10 px/mm; at 1:100 that is 0.1 px per real mm
	if diff := got - 0.1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("FallbackPixelsPerMMFor(254): got %v, want 0.1", got)
	}

	cal.FallbackPixelsPerMM = 0.5
	if got := cal.FallbackPixelsPerMMFor(254); got != 0.5 {
		t.Errorf("explicit fallback: got %v, want 0.5", got)
	}
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("tile dispatched", "tile_id", 3)
	logger.Debug("hidden")

	if !strings.Contains(stderr.String(), "tile dispatched") {
		t.Errorf("stderr output missing message: %q", stderr.String())
	}
	if !strings.Contains(file.String(), `"tile_id":3`) {
		t.Errorf("file output is not JSON: %q", file.String())
	}
	if strings.Contains(stderr.String(), "hidden") {
		t.Error("debug record should be filtered at info level")
	}
}

func TestLog_SlogLevel(t *testing.T) {
	if got := (Log{Level: "debug"}).SlogLevel(); got != slog.LevelDebug {
		t.Errorf("got %v, want debug", got)
	}
	if got := (Log{Level: "nonsense"}).SlogLevel(); got != slog.LevelInfo {
		t.Errorf("got %v, want info", got)
	}
}
