package calibration

import (
	"context"
	"fmt"
	"image"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/plan-tiler/internal/detection"
	"github.com/ironsheep/plan-tiler/internal/ocr"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

var dimensionValue = regexp.MustCompile(`(?i)^(\d+(?:[.,]\d+)?)\s*(mm|cm|m)?$`)

const (
	minDimensionMM = 100
	maxDimensionMM = 100000

	maxLabels         = 40
	bandHeightFactor  = 3
	horizontalTolDeg  = 2.0
	terminatedBias    = 0.5
	agreementSpread   = 0.1
	minWordConfidence = 0.5
)

// ParseLength reads a dimension label into millimetres. Without a unit,
// integers are millimetres and decimals are metres; a comma followed by
// exactly three digits is a thousands separator.
func ParseLength(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	m := dimensionValue.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	num, unit := m[1], strings.ToLower(m[2])
	decimal := false
	if i := strings.IndexByte(num, ','); i >= 0 {
		if len(num)-i-1 == 3 {
			num = strings.Replace(num, ",", "", 1)
		} else {
			num = strings.Replace(num, ",", ".", 1)
			decimal = true
		}
	}
	if strings.IndexByte(num, '.') >= 0 {
		decimal = true
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}

	switch {
	case unit == "mm":
	case unit == "cm":
		v *= 10
	case unit == "m", unit == "" && decimal:
		v *= 1000
	}
	if v < minDimensionMM || v > maxDimensionMM {
		return 0, false
	}
	return v, true
}

// DimensionLine pairs OCR dimension labels with the horizontal line drawn
// beside them. Each pair gives a ratio of line pixels to labelled
// millimetres; the candidate is their median.
type DimensionLine struct{}

// Name implements Method.
func (DimensionLine) Name() string { return MethodDimensionLine }

// Estimate implements Method.
func (DimensionLine) Estimate(ctx context.Context, in Input) (*plan.ScaleCandidate, error) {
	if in.Text == nil || in.Image.Pixels == nil {
		return nil, nil
	}

	bounds := in.Image.Pixels.Bounds()
	var ratios []float64
	labels := 0
	for _, w := range in.Text.Words {
		if labels >= maxLabels {
			break
		}
		if w.Confidence < minWordConfidence {
			continue
		}
		mm, ok := ParseLength(w.Text)
		if !ok {
			continue
		}
		labels++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if px, ok := lineBeside(in.Image.Pixels, bounds, w); ok {
			ratios = append(ratios, px/mm)
		}
	}
	if len(ratios) == 0 {
		return nil, nil
	}

	med := median(ratios)
	conf := math.Min(0.9, 0.5+0.1*float64(len(ratios)-1)) * agreement(ratios, med)
	return &plan.ScaleCandidate{
		Method:      MethodDimensionLine,
		PixelsPerMM: med,
		Confidence:  conf,
		Detail:      fmt.Sprintf("%d label/line pairs", len(ratios)),
	}, nil
}

// lineBeside searches a full-width band around the label for the nearest
// horizontal line whose span contains the label centre. It returns the line
// length in pixels.
func lineBeside(img image.Image, bounds image.Rectangle, w ocr.Word) (float64, bool) {
	h := math.Max(1, w.Bounds.Height())
	pad := int(math.Ceil(h * bandHeightFactor))
	band := image.Rect(bounds.Min.X, int(w.Bounds.Y1)-pad, bounds.Max.X, int(w.Bounds.Y2)+pad).Intersect(bounds)
	if band.Empty() {
		return 0, false
	}

	res := detection.DetectLines(imaging.Crop(img, band), detection.LineOptions{
		MinLength:    int(math.Max(2*w.Bounds.Width(), 2*h)),
		MaxLines:     20,
		DetectArrows: true,
	})

	cx, cy := w.Bounds.Center()
	cx -= float64(band.Min.X)
	cy -= float64(band.Min.Y)

	best, bestDist := 0.0, math.Inf(1)
	for _, l := range res.Lines {
		if !l.Horizontal(horizontalTolDeg) {
			continue
		}
		if float64(l.Start.X) > cx || float64(l.End.X) < cx {
			continue
		}
		_, my := l.Midpoint()
		dist := math.Abs(my - cy)
		if l.Terminated() {
			dist *= terminatedBias
		}
		if dist < bestDist {
			best, bestDist = l.Length, dist
		}
	}
	return best, best > 0
}

// median returns the empirical median of xs.
func median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

// agreement is the share of ratios within agreementSpread of the median.
func agreement(xs []float64, med float64) float64 {
	if len(xs) == 0 || med <= 0 {
		return 0
	}
	n := 0
	for _, x := range xs {
		if math.Abs(x-med) <= agreementSpread*med {
			n++
		}
	}
	return float64(n) / float64(len(xs))
}
