// Package measure converts validated elements into real-world quantities.
package measure

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Units reported on measurements.
const (
	UnitMM = "mm"
	UnitM2 = "m2"
	UnitM3 = "m3"
)

const (
	mmPerM   = 1e3
	mm2PerM2 = 1e6
)

type method struct {
	kind    plan.MeasurementKind
	depthMM float64
}

// Calculator applies each element type's configured method.
type Calculator struct {
	methods map[string]method
	logger  *slog.Logger
}

// Report is the calculator's output for one run.
type Report struct {
	Measurements []plan.Measurement        `json:"measurements"`
	Tallies      map[string]int            `json:"tallies"`
	Failures     []plan.MeasurementFailure `json:"failures,omitempty"`
}

// New compiles the element method table. Unknown methods wrap
// plan.ErrInvalidConfiguration.
func New(elements map[string]config.ElementMethod, logger *slog.Logger) (*Calculator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Calculator{methods: make(map[string]method, len(elements)), logger: logger}
	for typ, m := range elements {
		kind, err := plan.ParseMeasurementKind(m.Method)
		if err != nil {
			return nil, fmt.Errorf("%w: element %q: %v", plan.ErrInvalidConfiguration, typ, err)
		}
		c.methods[strings.ToLower(typ)] = method{kind: kind, depthMM: m.DepthMM}
	}
	return c, nil
}

// Calculate measures every validated element. Count elements only increment
// their type's tally. Elements that cannot be measured are omitted from the
// measurements and recorded as failures; the rest proceed.
func (c *Calculator) Calculate(elements []plan.MergedElement, cal plan.ScaleCalibration) Report {
	report := Report{Tallies: make(map[string]int)}

	for _, el := range elements {
		if el.Status == plan.StatusRejected {
			continue
		}
		m, ok := c.methods[strings.ToLower(el.Type)]
		if !ok {
			report.fail(el, fmt.Errorf("%w: no measurement method for type %q", plan.ErrElementMeasurementFailure, el.Type))
			continue
		}
		if m.kind == plan.KindCount {
			report.Tallies[el.Type]++
			continue
		}

		value, unit, err := calculate(el, m, cal)
		if err != nil {
			report.fail(el, err)
			c.logger.Debug("measurement failed", "element", el.ID, "type", el.Type, "error", err)
			continue
		}
		report.Measurements = append(report.Measurements, plan.Measurement{
			ElementID:   el.ID,
			ElementType: el.Type,
			Kind:        m.kind,
			Value:       value,
			Unit:        unit,
			Accuracy:    el.Confidence * cal.Confidence,
		})
	}

	sort.SliceStable(report.Measurements, func(i, j int) bool {
		return report.Measurements[i].ElementID < report.Measurements[j].ElementID
	})
	return report
}

func (r *Report) fail(el plan.MergedElement, err error) {
	r.Failures = append(r.Failures, plan.MeasurementFailure{ElementID: el.ID, ElementType: el.Type, Err: err})
}

func calculate(el plan.MergedElement, m method, cal plan.ScaleCalibration) (float64, string, error) {
	switch m.kind {
	case plan.KindLength:
		if v, ok := el.Properties.Float("length_mm"); ok && v > 0 {
			return v, UnitMM, nil
		}
		if err := geometric(el, cal); err != nil {
			return 0, "", err
		}
		return cal.ToMM(el.Bounds.LongSide()), UnitMM, nil

	case plan.KindArea:
		area, err := areaM2(el, cal)
		if err != nil {
			return 0, "", err
		}
		return area, UnitM2, nil

	case plan.KindVolume:
		depth := m.depthMM
		if v, ok := el.Properties.Float("depth_mm"); ok && v > 0 {
			depth = v
		}
		if depth <= 0 {
			return 0, "", fmt.Errorf("%w: no depth for volume of %q", plan.ErrElementMeasurementFailure, el.Type)
		}
		area, err := areaM2(el, cal)
		if err != nil {
			return 0, "", err
		}
		return area * depth / mmPerM, UnitM3, nil

	default:
		return 0, "", fmt.Errorf("%w: unsupported method %q", plan.ErrElementMeasurementFailure, m.kind)
	}
}

func areaM2(el plan.MergedElement, cal plan.ScaleCalibration) (float64, error) {
	if v, ok := el.Properties.Float("area_m2"); ok && v > 0 {
		return v, nil
	}
	if err := geometric(el, cal); err != nil {
		return 0, err
	}
	return el.Bounds.Area() / (cal.PixelsPerMM * cal.PixelsPerMM) / mm2PerM2, nil
}

func geometric(el plan.MergedElement, cal plan.ScaleCalibration) error {
	if cal.PixelsPerMM <= 0 {
		return fmt.Errorf("%w: scale %v px/mm is not positive", plan.ErrElementMeasurementFailure, cal.PixelsPerMM)
	}
	if el.Bounds.Empty() {
		return fmt.Errorf("%w: element has no geometry", plan.ErrElementMeasurementFailure)
	}
	return nil
}
