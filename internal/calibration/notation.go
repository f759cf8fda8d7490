package calibration

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

var (
	labelledScale = regexp.MustCompile(`(?i)\b(?:scale|sc|m)\b\.?\s*[:=]?\s*1\s*[:/]\s*(\d{1,5})\b`)
	bareScale     = regexp.MustCompile(`\b1\s*:\s*(\d{1,5})\b`)
)

const (
	maxScaleDenominator = 10000
	labelledConfidence  = 0.8
	bareConfidence      = 0.6
	conflictDiscount    = 0.75
)

// Notation reads a printed drawing scale from the page text.
type Notation struct{}

// Name implements Method.
func (Notation) Name() string { return MethodNotation }

// Estimate implements Method. With several scales printed, the most frequent
// one wins and the confidence is discounted.
func (Notation) Estimate(_ context.Context, in Input) (*plan.ScaleCandidate, error) {
	if in.Text == nil || in.Text.FullText == "" {
		return nil, nil
	}
	if in.Image.Resolution <= 0 {
		return nil, fmt.Errorf("image resolution %v is not positive", in.Image.Resolution)
	}

	type tally struct {
		count    int
		labelled bool
	}
	found := make(map[int]*tally)
	record := func(re *regexp.Regexp, labelled bool) {
		for _, m := range re.FindAllStringSubmatch(in.Text.FullText, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 || n > maxScaleDenominator {
				continue
			}
			t, ok := found[n]
			if !ok {
				t = &tally{}
				found[n] = t
			}
			t.count++
			t.labelled = t.labelled || labelled
		}
	}
	record(labelledScale, true)
	if len(found) == 0 {
		record(bareScale, false)
	}
	if len(found) == 0 {
		return nil, nil
	}

	denoms := make([]int, 0, len(found))
	for n := range found {
		denoms = append(denoms, n)
	}
	sort.Slice(denoms, func(i, j int) bool {
		a, b := found[denoms[i]], found[denoms[j]]
		if a.count != b.count {
			return a.count > b.count
		}
		return denoms[i] < denoms[j]
	})

	n := denoms[0]
	conf := bareConfidence
	if found[n].labelled {
		conf = labelledConfidence
	}
	if len(denoms) > 1 {
		conf *= conflictDiscount
	}

	return &plan.ScaleCandidate{
		Method:      MethodNotation,
		PixelsPerMM: in.Image.Resolution / plan.MillimetresPerInch / float64(n),
		Confidence:  conf,
		Detail:      fmt.Sprintf("1:%d", n),
	}, nil
}
