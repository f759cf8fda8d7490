// Package validate filters merged elements that cannot be real plan content.
package validate

import (
	"fmt"
	"log/slog"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Validator applies size plausibility checks relative to the source image.
type Validator struct {
	cfg    config.Validation
	logger *slog.Logger
}

// New returns a Validator. A nil logger uses slog.Default().
func New(cfg config.Validation, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cfg: cfg, logger: logger}
}

// Validate sets the status of every element and splits them into survivors
// and discards. An element is rejected when its box spans more than
// MaxExtentFraction of the image width or height (a stitching artifact), or
// when its larger side is below MinElementPixels (noise). Every rejection is
// recorded with its reason.
func (v *Validator) Validate(elements []plan.MergedElement, imageWidth, imageHeight int) ([]plan.MergedElement, []plan.Discard) {
	kept := make([]plan.MergedElement, 0, len(elements))
	var discards []plan.Discard

	for _, el := range elements {
		if err := v.check(el, imageWidth, imageHeight); err != nil {
			el.Status = plan.StatusRejected
			discards = append(discards, plan.Discard{Element: el, Reason: err.Error(), Err: err})
			v.logger.Info("element rejected", "element", el.ID, "type", el.Type, "reason", err.Error())
			continue
		}
		el.Status = plan.StatusValid
		kept = append(kept, el)
	}
	return kept, discards
}

func (v *Validator) check(el plan.MergedElement, imageWidth, imageHeight int) error {
	w, h := el.Bounds.Width(), el.Bounds.Height()
	if imageWidth > 0 {
		if frac := w / float64(imageWidth); frac > v.cfg.MaxExtentFraction {
			return fmt.Errorf("%w: spans %.0f%% of image width (limit %.0f%%)",
				plan.ErrConsistencyRejected, frac*100, v.cfg.MaxExtentFraction*100)
		}
	}
	if imageHeight > 0 {
		if frac := h / float64(imageHeight); frac > v.cfg.MaxExtentFraction {
			return fmt.Errorf("%w: spans %.0f%% of image height (limit %.0f%%)",
				plan.ErrConsistencyRejected, frac*100, v.cfg.MaxExtentFraction*100)
		}
	}
	if side := el.Bounds.LongSide(); side < v.cfg.MinElementPixels {
		return fmt.Errorf("%w: larger side %.1fpx below minimum %.1fpx",
			plan.ErrConsistencyRejected, side, v.cfg.MinElementPixels)
	}
	return nil
}
