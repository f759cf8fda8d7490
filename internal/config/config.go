// Package config loads and validates the analysis pipeline configuration.
//
// Values are layered: Default() first, then an optional YAML file, then
// PLAN_* environment variables (a .env file in the working directory is read
// before the environment is consulted). Every threshold used by the pipeline
// lives here; the algorithms themselves carry no hidden defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Config holds all configuration values.
type Config struct {
	Image       Image                    `yaml:"image"`
	Tiling      Tiling                   `yaml:"tiling"`
	Dispatch    Dispatch                 `yaml:"dispatch"`
	Merge       Merge                    `yaml:"merge"`
	Validation  Validation               `yaml:"validation"`
	Calibration Calibration              `yaml:"calibration"`
	Rules       []Rule                   `yaml:"rules"`
	Elements    map[string]ElementMethod `yaml:"elements"`
	Inference   Inference                `yaml:"inference"`
	Log         Log                      `yaml:"log"`
}

// Image describes the source raster.
type Image struct {
	// Resolution is the scan resolution in dots per inch. Rasters rarely
	// carry it reliably, so it is configured.
	Resolution float64 `yaml:"resolution"`
}

// Tiling controls the tile grid.
type Tiling struct {
	// TileSize is the vision model's square input resolution in pixels.
	TileSize int `yaml:"tile_size"`

	// Overlap is the number of pixels shared by neighbouring tiles.
	Overlap int `yaml:"overlap"`
}

// Step returns TileSize - Overlap.
func (t Tiling) Step() int {
	return t.TileSize - t.Overlap
}

// Validate rejects grids that cannot cover an image.
func (t Tiling) Validate() error {
	if t.TileSize <= 0 {
		return fmt.Errorf("%w: tile size %d must be positive", plan.ErrInvalidConfiguration, t.TileSize)
	}
	if t.Overlap <= 0 {
		return fmt.Errorf("%w: overlap %d must be positive", plan.ErrInvalidConfiguration, t.Overlap)
	}
	if t.Overlap >= t.TileSize {
		return fmt.Errorf("%w: overlap %d must be smaller than tile size %d",
			plan.ErrInvalidConfiguration, t.Overlap, t.TileSize)
	}
	return nil
}

// Dispatch controls how tiles are sent to the inference collaborator.
type Dispatch struct {
	// MaxConcurrentTiles is the batch size. A batch is a barrier: the next
	// batch starts only after every request in the current one resolved.
	MaxConcurrentTiles int `yaml:"max_concurrent_tiles"`

	// TileTimeout bounds a single inference call. Zero disables the bound.
	TileTimeout time.Duration `yaml:"tile_timeout"`

	// SkipBlankTiles skips tiles that are visually uniform (empty paper).
	SkipBlankTiles bool `yaml:"skip_blank_tiles"`

	// BlankTolerance is the perceptual colour distance under which a pixel
	// counts as background.
	BlankTolerance float64 `yaml:"blank_tolerance"`

	// Enhance applies scan clean-up (grayscale, contrast, sharpen) to tiles
	// before inference.
	Enhance bool `yaml:"enhance"`
}

// Merge controls cross-tile deduplication.
type Merge struct {
	// IOUThreshold is the intersection-over-union above which two same-type
	// detections are considered the same physical element.
	IOUThreshold float64 `yaml:"iou_threshold"`

	// QuantizationDivisor divides the tile size into the bucketing cell.
	QuantizationDivisor int `yaml:"quantization_divisor"`

	// CorroborationBonus multiplies ln(groupSize) when boosting confidence.
	CorroborationBonus float64 `yaml:"corroboration_bonus"`
}

// Validation controls the consistency validator.
type Validation struct {
	// MaxExtentFraction is the largest share of the image width or height a
	// single element may span.
	MaxExtentFraction float64 `yaml:"max_extent_fraction"`

	// MinElementPixels is the smallest larger-side extent kept.
	MinElementPixels float64 `yaml:"min_element_pixels"`
}

// Calibration controls scale consolidation.
type Calibration struct {
	// Methods lists the enabled calibration methods in evaluation order.
	Methods []string `yaml:"methods"`

	// Tolerance is the relative difference under which candidates agree.
	Tolerance float64 `yaml:"tolerance"`

	// MinConfidence drops candidates at or below it before consolidation.
	MinConfidence float64 `yaml:"min_confidence"`

	// AmbiguityPenalty multiplies the final confidence when candidates
	// disagree beyond Tolerance.
	AmbiguityPenalty float64 `yaml:"ambiguity_penalty"`

	// FallbackConfidence is reported when no candidate survives.
	FallbackConfidence float64 `yaml:"fallback_confidence"`

	// FallbackScale is the drawing scale denominator (1:N) assumed when no
	// candidate survives. FallbackPixelsPerMM, when set, takes precedence.
	FallbackScale       float64 `yaml:"fallback_scale"`
	FallbackPixelsPerMM float64 `yaml:"fallback_pixels_per_mm"`

	// ReferenceObjects maps element types to their nominal long-side size
	// in millimetres.
	ReferenceObjects map[string]float64 `yaml:"reference_objects"`

	// OCRLanguage is the Tesseract language code used for annotations.
	OCRLanguage string `yaml:"ocr_language"`
}

// Rule is one regulatory threshold applied to merged elements.
type Rule struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Types     []string `yaml:"types"`
	Dimension string   `yaml:"dimension"`
	Min       float64  `yaml:"min"`
	Max       float64  `yaml:"max"`
	Severity  string   `yaml:"severity"`
}

// ElementMethod selects how an element type is measured.
type ElementMethod struct {
	Method  string  `yaml:"method"`
	DepthMM float64 `yaml:"depth_mm"`
}

// Inference selects and configures the vision collaborator.
type Inference struct {
	Provider     string            `yaml:"provider"`
	Model        string            `yaml:"model"`
	APIKey       string            `yaml:"api_key"`
	ServerURL    string            `yaml:"server_url"`
	Project      string            `yaml:"project"`
	Location     string            `yaml:"location"`
	Region       string            `yaml:"region"`
	ElementTypes []string          `yaml:"element_types"`
	LabelMap     map[string]string `yaml:"label_map"`
	CacheTTL     time.Duration     `yaml:"cache_ttl"`
	Redis        Redis             `yaml:"redis"`
}

// Redis configures the optional inference result cache.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Log configures logging outputs.
type Log struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// SlogLevel returns the parsed log level.
func (l Log) SlogLevel() slog.Level {
	return parseLogLevel(l.Level)
}

// Default returns the documented defaults. The tolerance values (IOU 0.3,
// extent fraction 0.8, calibration tolerance 5%) are empirically tuned.
func Default() Config {
	return Config{
		Image:  Image{Resolution: 300},
		Tiling: Tiling{TileSize: 672, Overlap: 64},
		Dispatch: Dispatch{
			MaxConcurrentTiles: 4,
			TileTimeout:        90 * time.Second,
			BlankTolerance:     0.08,
		},
		Merge: Merge{
			IOUThreshold:        0.3,
			QuantizationDivisor: 10,
			CorroborationBonus:  0.15,
		},
		Validation: Validation{
			MaxExtentFraction: 0.8,
			MinElementPixels:  8,
		},
		Calibration: Calibration{
			Methods:            []string{"notation", "dimension_line", "annotation", "reference_object"},
			Tolerance:          0.05,
			MinConfidence:      0.3,
			AmbiguityPenalty:   0.7,
			FallbackConfidence: 0.2,
			FallbackScale:      100,
			ReferenceObjects: map[string]float64{
				"toilet":        700,
				"bathtub":       1700,
				"parking_space": 5000,
			},
			OCRLanguage: "eng",
		},
		Rules: []Rule{
			{
				Name:      "door_min_clear_width",
				Kind:      "min_clearance",
				Types:     []string{"door", "passage"},
				Dimension: "width",
				Min:       1200,
				Severity:  string(plan.SeverityCritical),
			},
			{
				Name:      "corridor_min_clear_width",
				Kind:      "min_clearance",
				Types:     []string{"corridor"},
				Dimension: "clear_width",
				Min:       1200,
				Severity:  string(plan.SeverityWarning),
			},
		},
		Elements: map[string]ElementMethod{
			"wall":      {Method: "length"},
			"door":      {Method: "count"},
			"window":    {Method: "count"},
			"column":    {Method: "count"},
			"stair":     {Method: "count"},
			"toilet":    {Method: "count"},
			"dimension": {Method: "count"},
			"room":      {Method: "area"},
			"corridor":  {Method: "area"},
			"slab":      {Method: "volume", DepthMM: 200},
		},
		Inference: Inference{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			ElementTypes: []string{
				"wall", "door", "window", "column", "stair", "room",
				"corridor", "slab", "toilet", "dimension",
			},
			LabelMap: map[string]string{
				"Door":   "door",
				"Window": "window",
				"Toilet": "toilet",
				"Stairs": "stair",
			},
			CacheTTL: 24 * time.Hour,
		},
		Log: Log{Level: "INFO"},
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// environment. An empty path skips the file.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parse %s: %v", plan.ErrInvalidConfiguration, path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides values from PLAN_* environment variables.
func applyEnv(cfg *Config) {
	cfg.Image.Resolution = getEnvAsFloat("PLAN_DPI", cfg.Image.Resolution)
	cfg.Tiling.TileSize = getEnvAsInt("PLAN_TILE_SIZE", cfg.Tiling.TileSize)
	cfg.Tiling.Overlap = getEnvAsInt("PLAN_TILE_OVERLAP", cfg.Tiling.Overlap)
	cfg.Dispatch.MaxConcurrentTiles = getEnvAsInt("PLAN_MAX_CONCURRENT_TILES", cfg.Dispatch.MaxConcurrentTiles)
	cfg.Dispatch.TileTimeout = getEnvAsDuration("PLAN_TILE_TIMEOUT", cfg.Dispatch.TileTimeout)
	cfg.Merge.IOUThreshold = getEnvAsFloat("PLAN_IOU_THRESHOLD", cfg.Merge.IOUThreshold)

	cfg.Inference.Provider = getEnv("PLAN_INFERENCE_PROVIDER", cfg.Inference.Provider)
	cfg.Inference.Model = getEnv("PLAN_INFERENCE_MODEL", cfg.Inference.Model)
	cfg.Inference.APIKey = getEnv("PLAN_INFERENCE_API_KEY", cfg.Inference.APIKey)
	cfg.Inference.ServerURL = getEnv("PLAN_INFERENCE_SERVER_URL", cfg.Inference.ServerURL)
	cfg.Inference.Project = getEnv("GOOGLE_CLOUD_PROJECT", cfg.Inference.Project)
	cfg.Inference.Location = getEnv("GOOGLE_CLOUD_LOCATION", cfg.Inference.Location)
	cfg.Inference.Region = getEnv("AWS_REGION", cfg.Inference.Region)
	cfg.Inference.CacheTTL = getEnvAsDuration("PLAN_CACHE_TTL", cfg.Inference.CacheTTL)
	cfg.Inference.Redis.Addr = getEnv("PLAN_REDIS_ADDR", cfg.Inference.Redis.Addr)
	cfg.Inference.Redis.Password = getEnv("PLAN_REDIS_PASSWORD", cfg.Inference.Redis.Password)

	cfg.Log.File = getEnv("PLAN_LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("PLAN_LOG_LEVEL", cfg.Log.Level)
}

// Validate checks every externally supplied parameter. All failures wrap
// plan.ErrInvalidConfiguration.
func (c Config) Validate() error {
	if err := c.Tiling.Validate(); err != nil {
		return err
	}
	if c.Image.Resolution <= 0 {
		return invalid("image resolution %v must be positive", c.Image.Resolution)
	}
	if c.Dispatch.MaxConcurrentTiles <= 0 {
		return invalid("max concurrent tiles %d must be positive", c.Dispatch.MaxConcurrentTiles)
	}
	if c.Dispatch.TileTimeout < 0 {
		return invalid("tile timeout %v must not be negative", c.Dispatch.TileTimeout)
	}
	if !inUnitRange(c.Merge.IOUThreshold) {
		return invalid("IOU threshold %v must be in (0, 1]", c.Merge.IOUThreshold)
	}
	if c.Merge.QuantizationDivisor <= 0 {
		return invalid("quantization divisor %d must be positive", c.Merge.QuantizationDivisor)
	}
	if c.Merge.CorroborationBonus < 0 {
		return invalid("corroboration bonus %v must not be negative", c.Merge.CorroborationBonus)
	}
	if !inUnitRange(c.Validation.MaxExtentFraction) {
		return invalid("max extent fraction %v must be in (0, 1]", c.Validation.MaxExtentFraction)
	}
	if c.Validation.MinElementPixels < 0 {
		return invalid("min element pixels %v must not be negative", c.Validation.MinElementPixels)
	}
	cal := c.Calibration
	if !inUnitRange(cal.Tolerance) {
		return invalid("calibration tolerance %v must be in (0, 1]", cal.Tolerance)
	}
	if cal.MinConfidence < 0 || cal.MinConfidence > 1 {
		return invalid("calibration min confidence %v must be in [0, 1]", cal.MinConfidence)
	}
	if !inUnitRange(cal.AmbiguityPenalty) {
		return invalid("ambiguity penalty %v must be in (0, 1]", cal.AmbiguityPenalty)
	}
	if !inUnitRange(cal.FallbackConfidence) {
		return invalid("fallback confidence %v must be in (0, 1]", cal.FallbackConfidence)
	}
	if cal.FallbackPixelsPerMM <= 0 && cal.FallbackScale <= 0 {
		return invalid("either fallback_pixels_per_mm or fallback_scale must be positive")
	}
	for name, size := range cal.ReferenceObjects {
		if size <= 0 {
			return invalid("reference object %q size %v must be positive", name, size)
		}
	}
	for _, r := range c.Rules {
		if r.Name == "" {
			return invalid("rule without a name")
		}
		if _, err := plan.ParseSeverity(r.Severity); err != nil {
			return invalid("rule %q: %v", r.Name, err)
		}
		if r.Min <= 0 && r.Max <= 0 {
			return invalid("rule %q needs a min or max threshold", r.Name)
		}
	}
	for typ, m := range c.Elements {
		if _, err := plan.ParseMeasurementKind(m.Method); err != nil {
			return invalid("element %q: %v", typ, err)
		}
		if m.DepthMM < 0 {
			return invalid("element %q depth %v must not be negative", typ, m.DepthMM)
		}
	}
	return nil
}

// FallbackPixelsPerMMFor returns the fallback scale at the given resolution.
func (c Calibration) FallbackPixelsPerMMFor(dpi float64) float64 {
	if c.FallbackPixelsPerMM > 0 {
		return c.FallbackPixelsPerMM
	}
	return dpi / plan.MillimetresPerInch / c.FallbackScale
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", plan.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

func inUnitRange(v float64) bool {
	return v > 0 && v <= 1
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
