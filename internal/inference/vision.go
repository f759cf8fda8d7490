package inference

import (
	"context"
	"fmt"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

const visionMaxResults = 100

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// VisionDetector uses Cloud Vision object localisation. Vision labels are
// generic ("Door", "Toilet"), so a label map translates them to element
// types; unmapped labels are dropped when element types are configured.
type VisionDetector struct {
	annotate annotateFunc
	close    func() error
	opts     ParseOptions
}

var _ Detector = (*VisionDetector)(nil)

// NewVisionDetector creates a Vision client with application default
// credentials.
func NewVisionDetector(ctx context.Context, opts ParseOptions) (*VisionDetector, error) {
	client, err := gvision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return &VisionDetector{
		annotate: func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return client.BatchAnnotateImages(ctx, req)
		},
		close: client.Close,
		opts:  opts,
	}, nil
}

// Close releases the Vision client.
func (v *VisionDetector) Close() error {
	if v.close == nil {
		return nil
	}
	return v.close()
}

// Detect implements Detector.
func (v *VisionDetector) Detect(ctx context.Context, req TileRequest) ([]plan.RawDetection, error) {
	resp, err := v.annotate(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: req.Image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: visionMaxResults},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision API request failed: %w", err)
	}
	if len(resp.Responses) == 0 {
		return nil, nil
	}
	if resp.Responses[0].Error != nil {
		return nil, fmt.Errorf("vision API error: %s", resp.Responses[0].Error.Message)
	}

	allowed := make(map[string]bool, len(v.opts.ElementTypes))
	for _, t := range v.opts.ElementTypes {
		allowed[t] = true
	}

	imgW, imgH := req.ImageSize()
	sx, sy := float64(imgW), float64(imgH)
	w, h := float64(req.Tile.Width), float64(req.Tile.Height)
	out := make([]plan.RawDetection, 0, len(resp.Responses[0].LocalizedObjectAnnotations))
	for _, obj := range resp.Responses[0].LocalizedObjectAnnotations {
		typ := normaliseType(obj.Name, v.opts.LabelMap)
		if len(allowed) > 0 && !allowed[typ] {
			continue
		}
		verts := obj.GetBoundingPoly().GetNormalizedVertices()
		if len(verts) == 0 {
			continue
		}
		b := plan.Bounds{X1: 1, Y1: 1}
		for _, p := range verts {
			x, y := float64(p.X), float64(p.Y)
			b.X1, b.Y1 = minFloat(b.X1, x), minFloat(b.Y1, y)
			b.X2, b.Y2 = maxFloat(b.X2, x), maxFloat(b.Y2, y)
		}
		b = plan.Bounds{X1: b.X1 * sx, Y1: b.Y1 * sy, X2: b.X2 * sx, Y2: b.Y2 * sy}.Clamp(w, h)
		if b.Empty() {
			continue
		}
		out = append(out, plan.RawDetection{
			Type:       typ,
			Bounds:     b,
			Confidence: float64(obj.Score),
			Properties: plan.Properties{"label": obj.Name},
			TileID:     req.Tile.ID,
		})
	}
	return out, nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
