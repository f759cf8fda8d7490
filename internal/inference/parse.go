package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

// box2DScale is the normalisation range Gemini uses for box_2d.
const box2DScale = 1000

// defaultConfidence is assumed when a provider omits a score.
const defaultConfidence = 0.5

// ParseOptions controls type normalisation.
type ParseOptions struct {
	// ElementTypes restricts results to these types. Empty keeps all.
	ElementTypes []string

	// LabelMap renames provider labels to element types before filtering.
	LabelMap map[string]string
}

type rawItem struct {
	Type       string          `json:"type"`
	Label      string          `json:"label"`
	Class      string          `json:"class"`
	BBox       []float64       `json:"bbox"`
	Box2D      []float64       `json:"box_2d"`
	X          *float64        `json:"x"`
	Y          *float64        `json:"y"`
	Width      *float64        `json:"width"`
	Height     *float64        `json:"height"`
	Confidence *float64        `json:"confidence"`
	Score      *float64        `json:"score"`
	Properties plan.Properties `json:"properties"`
	Value      any             `json:"value"`
	Text       string          `json:"text"`
}

// ParseDetections decodes a provider answer to req into tile-local
// detections. Normalised boxes are scaled by the sent raster's size and every
// box is clipped to the tile. Items without a recognisable box are skipped;
// an answer that is not JSON at all wraps ErrMalformedResponse.
func ParseDetections(text string, req TileRequest, opts ParseOptions) ([]plan.RawDetection, error) {
	tile := req.Tile
	imgW, imgH := req.ImageSize()

	payload := extractJSON(text)
	if payload == "" {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyResponse
		}
		return nil, fmt.Errorf("%w: no JSON found", ErrMalformedResponse)
	}

	items, err := decodeItems(payload)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(opts.ElementTypes))
	for _, t := range opts.ElementTypes {
		allowed[strings.ToLower(t)] = true
	}

	out := make([]plan.RawDetection, 0, len(items))
	for _, it := range items {
		typ := normaliseType(firstNonEmpty(it.Type, it.Label, it.Class), opts.LabelMap)
		if typ == "" || (len(allowed) > 0 && !allowed[typ]) {
			continue
		}
		b, ok := it.bounds(tile, imgW, imgH)
		if !ok {
			continue
		}
		conf := defaultConfidence
		switch {
		case it.Confidence != nil:
			conf = *it.Confidence
		case it.Score != nil:
			conf = *it.Score
		}
		if conf > 1 && conf <= 100 {
			conf /= 100
		}

		props := it.Properties.Clone()
		if it.Value != nil || it.Text != "" {
			if props == nil {
				props = plan.Properties{}
			}
			if it.Value != nil {
				props["value"] = it.Value
			}
			if it.Text != "" {
				props["text"] = it.Text
			}
		}

		out = append(out, plan.RawDetection{
			Type:       typ,
			Bounds:     b,
			Confidence: math.Max(0, math.Min(1, conf)),
			Properties: props,
			TileID:     tile.ID,
		})
	}
	return out, nil
}

func decodeItems(payload string) ([]rawItem, error) {
	var items []rawItem
	if strings.HasPrefix(payload, "[") {
		if err := json.Unmarshal([]byte(payload), &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return items, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for _, key := range []string{"detections", "elements", "objects", "items"} {
		if raw, ok := wrapped[key]; ok {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, key, err)
			}
			return items, nil
		}
	}

	var single rawItem
	if err := json.Unmarshal([]byte(payload), &single); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return []rawItem{single}, nil
}

// bounds resolves whichever box encoding the item uses. imgW and imgH are
// the dimensions of the raster the provider saw.
func (it rawItem) bounds(tile plan.Tile, imgW, imgH int) (plan.Bounds, bool) {
	var b plan.Bounds
	switch {
	case len(it.BBox) == 4:
		b = plan.Bounds{X1: it.BBox[0], Y1: it.BBox[1], X2: it.BBox[2], Y2: it.BBox[3]}
	case len(it.Box2D) == 4:
		w, h := float64(imgW)/box2DScale, float64(imgH)/box2DScale
		b = plan.Bounds{X1: it.Box2D[1] * w, Y1: it.Box2D[0] * h, X2: it.Box2D[3] * w, Y2: it.Box2D[2] * h}
	case it.X != nil && it.Y != nil && it.Width != nil && it.Height != nil:
		b = plan.Bounds{X1: *it.X, Y1: *it.Y, X2: *it.X + *it.Width, Y2: *it.Y + *it.Height}
	default:
		return plan.Bounds{}, false
	}
	b = b.Clamp(float64(tile.Width), float64(tile.Height))
	return b, !b.Empty()
}

// extractJSON strips code fences and prose around the first JSON value.
func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return ""
	}
	closer := byte(']')
	if s[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}

func normaliseType(label string, labelMap map[string]string) string {
	label = strings.TrimSpace(label)
	if mapped, ok := labelMap[label]; ok {
		label = mapped
	}
	label = strings.ToLower(label)
	return strings.ReplaceAll(label, " ", "_")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
