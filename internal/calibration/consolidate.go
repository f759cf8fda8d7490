package calibration

import (
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Consolidate combines candidates into one calibration. dpi is used only for
// the fallback scale.
func Consolidate(candidates []plan.ScaleCandidate, cfg config.Calibration, dpi float64) plan.ScaleCalibration {
	usable := make([]plan.ScaleCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.PixelsPerMM > 0 && c.Confidence > cfg.MinConfidence {
			usable = append(usable, c)
		}
	}

	if len(usable) == 0 {
		return plan.ScaleCalibration{
			PixelsPerMM: cfg.FallbackPixelsPerMMFor(dpi),
			Confidence:  cfg.FallbackConfidence,
			Methods:     []string{},
			Fallback:    true,
			Notes:       []string{fmt.Sprintf("no candidate above confidence %.2f, using fallback scale", cfg.MinConfidence)},
		}
	}

	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].Confidence != usable[j].Confidence {
			return usable[i].Confidence > usable[j].Confidence
		}
		return usable[i].Method < usable[j].Method
	})

	best := usable[0]
	cal := plan.ScaleCalibration{PixelsPerMM: best.PixelsPerMM, Methods: []string{}}
	var disagree []string
	for _, c := range usable {
		if agrees(c.PixelsPerMM, best.PixelsPerMM, cfg.Tolerance) {
			cal.Confidence += c.Confidence
			cal.Methods = append(cal.Methods, c.Method)
			continue
		}
		disagree = append(disagree, fmt.Sprintf("%s=%.4g", c.Method, c.PixelsPerMM))
	}
	cal.Confidence = math.Min(1, cal.Confidence)

	if len(disagree) > 0 {
		cal.Ambiguous = true
		cal.Confidence *= cfg.AmbiguityPenalty
		cal.Notes = append(cal.Notes, fmt.Errorf("%w: %s=%.4g vs %v",
			plan.ErrCalibrationAmbiguous, best.Method, best.PixelsPerMM, disagree).Error())
	}
	return cal
}

// agrees reports whether v is within the relative tolerance of ref.
func agrees(v, ref, tolerance float64) bool {
	return math.Abs(v-ref) <= tolerance*ref
}
