// Package rules applies regulatory thresholds to merged elements.
//
// A rule is a pure function of an element's type, one real-world dimension
// and a configured bound. Rules only append violation flags; geometry and
// status are never touched, and any number of rules may fire on one element.
package rules

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Dimension names accepted by rules.
const (
	DimWidth      = "width"
	DimClearWidth = "clear_width"
	DimLength     = "length"
	DimDepth      = "depth"
	DimArea       = "area"
)

// Units reported on violation flags.
const (
	UnitMM = "mm"
	UnitM2 = "m2"
)

const mm2PerM2 = 1e6

type rule struct {
	cfg      config.Rule
	severity plan.Severity
	types    map[string]bool
}

// Engine evaluates a fixed rule set.
type Engine struct {
	rules  []rule
	logger *slog.Logger
}

// New compiles the configured rules. Unknown dimensions or severities wrap
// plan.ErrInvalidConfiguration.
func New(cfgs []config.Rule, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{logger: logger}
	for _, c := range cfgs {
		sev, err := plan.ParseSeverity(c.Severity)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", plan.ErrInvalidConfiguration, c.Name, err)
		}
		if !knownDimension(c.Dimension) {
			return nil, fmt.Errorf("%w: rule %q: unknown dimension %q", plan.ErrInvalidConfiguration, c.Name, c.Dimension)
		}
		types := make(map[string]bool, len(c.Types))
		for _, t := range c.Types {
			types[strings.ToLower(t)] = true
		}
		e.rules = append(e.rules, rule{cfg: c, severity: sev, types: types})
	}
	return e, nil
}

// Apply evaluates every rule against every element, appending flags in
// place. It returns all flags raised, in element then rule order.
func (e *Engine) Apply(elements []plan.MergedElement, cal plan.ScaleCalibration) []plan.ViolationFlag {
	var raised []plan.ViolationFlag
	for i := range elements {
		el := &elements[i]
		for _, r := range e.rules {
			flag, ok := r.evaluate(*el, cal)
			if !ok {
				continue
			}
			el.AddViolation(flag)
			raised = append(raised, flag)
			e.logger.Debug("rule violated",
				"rule", flag.Rule,
				"element", el.ID,
				"type", el.Type,
				"value", flag.Value,
				"threshold", flag.Threshold,
				"severity", flag.Severity)
		}
	}
	return raised
}

func (r rule) evaluate(el plan.MergedElement, cal plan.ScaleCalibration) (plan.ViolationFlag, bool) {
	if !r.types[strings.ToLower(el.Type)] {
		return plan.ViolationFlag{}, false
	}
	value, unit, ok := Measure(el, r.cfg.Dimension, cal)
	if !ok {
		return plan.ViolationFlag{}, false
	}

	var threshold float64
	switch {
	case r.cfg.Min > 0 && value < r.cfg.Min:
		threshold = r.cfg.Min
	case r.cfg.Max > 0 && value > r.cfg.Max:
		threshold = r.cfg.Max
	default:
		return plan.ViolationFlag{}, false
	}

	return plan.ViolationFlag{
		Rule:      r.cfg.Name,
		Kind:      r.cfg.Kind,
		Severity:  r.severity,
		Value:     value,
		Threshold: threshold,
		Unit:      unit,
	}, true
}

// Measure returns an element's real-world dimension. An explicit property
// (width_mm, clear_width_mm, length_mm, depth_mm, area_m2) takes precedence
// over the calibrated box. Width and length are the box's larger side; clear
// width and depth are the smaller side.
func Measure(el plan.MergedElement, dimension string, cal plan.ScaleCalibration) (float64, string, bool) {
	dimension = strings.ToLower(dimension)
	if dimension == DimArea {
		if v, ok := el.Properties.Float("area_m2"); ok && v > 0 {
			return v, UnitM2, true
		}
		if cal.PixelsPerMM <= 0 || el.Bounds.Empty() {
			return 0, "", false
		}
		return el.Bounds.Area() / (cal.PixelsPerMM * cal.PixelsPerMM) / mm2PerM2, UnitM2, true
	}

	if v, ok := el.Properties.Float(dimension + "_mm"); ok && v > 0 {
		return v, UnitMM, true
	}
	if cal.PixelsPerMM <= 0 || el.Bounds.Empty() {
		return 0, "", false
	}
	switch dimension {
	case DimWidth, DimLength:
		return cal.ToMM(el.Bounds.LongSide()), UnitMM, true
	case DimClearWidth, DimDepth:
		return cal.ToMM(el.Bounds.ShortSide()), UnitMM, true
	default:
		return 0, "", false
	}
}

func knownDimension(d string) bool {
	switch strings.ToLower(d) {
	case DimWidth, DimClearWidth, DimLength, DimDepth, DimArea:
		return true
	default:
		return false
	}
}
