package calibration

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

// DimensionType is the element type the vision model uses for dimension
// annotations.
const DimensionType = "dimension"

var annotationKeys = []string{"value", "text", "label"}

// Annotation uses dimension elements whose properties carry the labelled
// value. The element's long side is the dimensioned extent.
type Annotation struct{}

// Name implements Method.
func (Annotation) Name() string { return MethodAnnotation }

// Estimate implements Method.
func (Annotation) Estimate(_ context.Context, in Input) (*plan.ScaleCandidate, error) {
	var ratios, confs []float64
	for _, el := range in.Elements {
		if !strings.EqualFold(el.Type, DimensionType) || el.Bounds.Empty() {
			continue
		}
		mm, ok := annotatedLength(el.Properties)
		if !ok {
			continue
		}
		ratios = append(ratios, el.Bounds.LongSide()/mm)
		confs = append(confs, el.Confidence)
	}
	if len(ratios) == 0 {
		return nil, nil
	}

	med := median(ratios)
	conf := math.Min(0.8, 0.5+0.1*float64(len(ratios)-1)) * stat.Mean(confs, nil) * agreement(ratios, med)
	return &plan.ScaleCandidate{
		Method:      MethodAnnotation,
		PixelsPerMM: med,
		Confidence:  conf,
		Detail:      fmt.Sprintf("%d annotated dimensions", len(ratios)),
	}, nil
}

func annotatedLength(p plan.Properties) (float64, bool) {
	if v, ok := p.Float("value_mm"); ok && v > 0 {
		return v, true
	}
	for _, key := range annotationKeys {
		if mm, ok := ParseLength(p.Text(key)); ok {
			return mm, true
		}
	}
	return 0, false
}

// ReferenceObject compares detected objects against their nominal long-side
// size in millimetres.
type ReferenceObject struct {
	Sizes map[string]float64
}

// Name implements Method.
func (ReferenceObject) Name() string { return MethodReferenceObject }

// Estimate implements Method.
func (r ReferenceObject) Estimate(_ context.Context, in Input) (*plan.ScaleCandidate, error) {
	if len(r.Sizes) == 0 {
		return nil, nil
	}
	var ratios, confs []float64
	seen := make(map[string]int)
	for _, el := range in.Elements {
		size, ok := r.Sizes[strings.ToLower(el.Type)]
		if !ok || size <= 0 || el.Bounds.Empty() {
			continue
		}
		ratios = append(ratios, el.Bounds.LongSide()/size)
		confs = append(confs, el.Confidence)
		seen[el.Type]++
	}
	if len(ratios) == 0 {
		return nil, nil
	}

	types := make([]string, 0, len(seen))
	for t, n := range seen {
		types = append(types, fmt.Sprintf("%s x%d", t, n))
	}
	sort.Strings(types)

	med := median(ratios)
	conf := math.Min(0.7, 0.4+0.1*float64(len(ratios)-1)) * stat.Mean(confs, nil) * agreement(ratios, med)
	return &plan.ScaleCandidate{
		Method:      MethodReferenceObject,
		PixelsPerMM: med,
		Confidence:  conf,
		Detail:      strings.Join(types, ", "),
	}, nil
}
