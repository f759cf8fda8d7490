package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/metrics"
	"github.com/ironsheep/plan-tiler/internal/ocr"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Method names.
const (
	MethodNotation        = "notation"
	MethodDimensionLine   = "dimension_line"
	MethodAnnotation      = "annotation"
	MethodReferenceObject = "reference_object"
)

// Input is the evidence available to every method.
type Input struct {
	Image    plan.Image
	Elements []plan.MergedElement

	// Text is the page OCR result, or nil when no reader is configured or
	// it failed.
	Text *ocr.Result
}

// Method proposes a scale. A nil candidate with a nil error means the method
// found no evidence.
type Method interface {
	Name() string
	Estimate(ctx context.Context, in Input) (*plan.ScaleCandidate, error)
}

// Calibrator runs the configured methods and consolidates their candidates.
type Calibrator struct {
	cfg      config.Calibration
	methods  []Method
	reader   ocr.Reader
	logger   *slog.Logger
	metrics  *metrics.Collector
	needsOCR bool
}

// New builds a Calibrator for the methods named in cfg. The reader may be nil,
// in which case OCR-based methods find nothing.
func New(cfg config.Calibration, reader ocr.Reader, logger *slog.Logger, m *metrics.Collector) (*Calibrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Calibrator{cfg: cfg, reader: reader, logger: logger, metrics: m}
	for _, name := range cfg.Methods {
		switch name {
		case MethodNotation:
			c.methods = append(c.methods, Notation{})
			c.needsOCR = true
		case MethodDimensionLine:
			c.methods = append(c.methods, DimensionLine{})
			c.needsOCR = true
		case MethodAnnotation:
			c.methods = append(c.methods, Annotation{})
		case MethodReferenceObject:
			c.methods = append(c.methods, ReferenceObject{Sizes: cfg.ReferenceObjects})
		default:
			return nil, fmt.Errorf("%w: unknown calibration method %q", plan.ErrInvalidConfiguration, name)
		}
	}
	return c, nil
}

// Calibrate runs every method once and consolidates the candidates.
func (c *Calibrator) Calibrate(ctx context.Context, img plan.Image, elements []plan.MergedElement) plan.ScaleCalibration {
	start := time.Now()
	defer func() { c.metrics.RecordTiming(metrics.OpCalibration, time.Since(start)) }()

	in := Input{Image: img, Elements: elements}
	var notes []string

	if c.needsOCR && c.reader != nil && img.Pixels != nil {
		text, err := c.reader.Read(ctx, img.Pixels)
		if err != nil {
			notes = append(notes, fmt.Sprintf("ocr: %v", err))
			c.logger.Warn("page OCR failed", "error", err)
		} else {
			in.Text = text
		}
	}

	var candidates []plan.ScaleCandidate
	for _, m := range c.methods {
		cand, err := m.Estimate(ctx, in)
		switch {
		case err != nil:
			notes = append(notes, fmt.Sprintf("%s: %v", m.Name(), err))
			c.logger.Warn("calibration method failed", "method", m.Name(), "error", err)
		case cand == nil:
			c.logger.Debug("calibration method found no evidence", "method", m.Name())
		default:
			c.logger.Debug("calibration candidate",
				"method", cand.Method,
				"pixels_per_mm", cand.PixelsPerMM,
				"confidence", cand.Confidence)
			candidates = append(candidates, *cand)
		}
	}

	cal := Consolidate(candidates, c.cfg, img.Resolution)
	cal.Notes = append(notes, cal.Notes...)
	c.logger.Info("scale calibrated",
		"pixels_per_mm", cal.PixelsPerMM,
		"confidence", cal.Confidence,
		"methods", cal.Methods,
		"fallback", cal.Fallback,
		"ambiguous", cal.Ambiguous)
	return cal
}
