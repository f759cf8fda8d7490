// Package pipeline runs one plan through every analysis stage.
//
// The stages run in a fixed order: plan the tile grid, dispatch tiles to the
// inference collaborator, lift detections into image coordinates, merge
// duplicates, calibrate the scale once, apply violation rules, validate
// geometry and finally measure. Only dispatch fans out; every other stage is
// synchronous.
//
// Only invalid configuration aborts a run. Tile failures, calibration
// ambiguity, rejected elements and measurement failures are reported in the
// Result alongside the successful output.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/plan-tiler/internal/calibration"
	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/dispatch"
	"github.com/ironsheep/plan-tiler/internal/globalize"
	"github.com/ironsheep/plan-tiler/internal/inference"
	"github.com/ironsheep/plan-tiler/internal/measure"
	"github.com/ironsheep/plan-tiler/internal/merge"
	"github.com/ironsheep/plan-tiler/internal/metrics"
	"github.com/ironsheep/plan-tiler/internal/ocr"
	"github.com/ironsheep/plan-tiler/internal/plan"
	"github.com/ironsheep/plan-tiler/internal/rules"
	"github.com/ironsheep/plan-tiler/internal/tiling"
	"github.com/ironsheep/plan-tiler/internal/validate"
)

// Result is the complete output of one run.
type Result struct {
	RunID        string                    `json:"run_id"`
	Image        plan.Image                `json:"image"`
	Grid         *tiling.Grid              `json:"grid"`
	Dispatch     *dispatch.Result          `json:"dispatch"`
	Calibration  plan.ScaleCalibration     `json:"calibration"`
	Elements     []plan.MergedElement      `json:"elements"`
	Discards     []plan.Discard            `json:"discards,omitempty"`
	Violations   []plan.ViolationFlag      `json:"violations,omitempty"`
	Measurements []plan.Measurement        `json:"measurements"`
	Tallies      map[string]int            `json:"tallies"`
	Failures     []plan.MeasurementFailure `json:"measurement_failures,omitempty"`
	TileErrors   []plan.TileError          `json:"tile_errors,omitempty"`
	Metrics      metrics.Snapshot          `json:"metrics"`
	Duration     time.Duration             `json:"duration"`
}

// Analyzer holds the compiled stages. It is safe to call Run from several
// goroutines; each run gets its own metrics collector.
type Analyzer struct {
	cfg      config.Config
	detector inference.Detector
	reader   ocr.Reader
	engine   *rules.Engine
	calc     *measure.Calculator
	logger   *slog.Logger
}

// New validates cfg and compiles the rule and measurement tables. reader may
// be nil, in which case the OCR-based calibration methods contribute nothing.
func New(cfg config.Config, detector inference.Detector, reader ocr.Reader, logger *slog.Logger) (*Analyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if detector == nil {
		return nil, fmt.Errorf("%w: no inference detector configured", plan.ErrInvalidConfiguration)
	}

	engine, err := rules.New(cfg.Rules, logger)
	if err != nil {
		return nil, err
	}
	calc, err := measure.New(cfg.Elements, logger)
	if err != nil {
		return nil, err
	}
	// Reject unknown calibration methods up front rather than per run.
	if _, err := calibration.New(cfg.Calibration, reader, logger, nil); err != nil {
		return nil, err
	}

	return &Analyzer{
		cfg:      cfg,
		detector: detector,
		reader:   reader,
		engine:   engine,
		calc:     calc,
		logger:   logger,
	}, nil
}

// Run analyses img. An image without a resolution takes the configured one.
func (a *Analyzer) Run(ctx context.Context, img plan.Image) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	m := metrics.NewCollector()

	if img.Pixels == nil {
		return nil, fmt.Errorf("%w: image has no pixels", plan.ErrInvalidConfiguration)
	}
	if img.Resolution <= 0 {
		img.Resolution = a.cfg.Image.Resolution
	}

	grid, err := tiling.Plan(img.Width, img.Height, a.cfg.Tiling)
	if err != nil {
		return nil, err
	}
	logger.Info("analysis started",
		"width", img.Width,
		"height", img.Height,
		"tiles", len(grid.Tiles),
		"columns", grid.Columns,
		"rows", grid.Rows)

	dispatcher := dispatch.New(a.cfg.Dispatch, a.detector, a.cfg.Inference.ElementTypes, logger, m)
	dres, err := dispatcher.Run(ctx, img, grid)
	if err != nil {
		return nil, err
	}

	global, err := globalize.All(grid, dres.Detections)
	if err != nil {
		return nil, fmt.Errorf("globalize: %w", err)
	}

	mergeStart := time.Now()
	elements := merge.New(a.cfg.Merge, grid.TileSize).Merge(global)
	m.RecordTiming(metrics.OpMerge, time.Since(mergeStart))
	logger.Info("detections merged", "detections", len(global), "elements", len(elements))

	calibrator, err := calibration.New(a.cfg.Calibration, a.reader, logger, m)
	if err != nil {
		return nil, err
	}
	cal := calibrator.Calibrate(ctx, img, elements)

	violations := a.engine.Apply(elements, cal)

	kept, discards := validate.New(a.cfg.Validation, logger).Validate(elements, img.Width, img.Height)

	report := a.calc.Calculate(kept, cal)

	m.RecordTiming(metrics.OpRun, time.Since(start))
	res := &Result{
		RunID:        runID,
		Image:        img,
		Grid:         grid,
		Dispatch:     dres,
		Calibration:  cal,
		Elements:     kept,
		Discards:     discards,
		Violations:   violations,
		Measurements: report.Measurements,
		Tallies:      report.Tallies,
		Failures:     report.Failures,
		TileErrors:   dres.Errors,
		Metrics:      m.Snapshot(),
		Duration:     time.Since(start),
	}

	logger.Info("analysis complete",
		"elements", len(kept),
		"discarded", len(discards),
		"violations", len(violations),
		"measurements", len(report.Measurements),
		"measurement_failures", len(report.Failures),
		"tile_errors", len(dres.Errors),
		"pixels_per_mm", cal.PixelsPerMM,
		"scale_confidence", cal.Confidence,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}
