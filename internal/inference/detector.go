package inference

import (
	"context"
	"errors"

	"github.com/ironsheep/plan-tiler/internal/metrics"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// TileRequest is one tile ready for inference.
type TileRequest struct {
	Tile plan.Tile

	// ImageWidth and ImageHeight are the dimensions of the encoded raster.
	// They exceed the tile's when an edge tile was padded to the model input
	// size. Zero means the tile's own size.
	ImageWidth  int
	ImageHeight int

	Image    []byte
	MIMEType string
	Prompt   string

	// Metrics is the collector of the run the tile belongs to. Decorators
	// that record events use it ahead of their own. May be nil.
	Metrics *metrics.Collector
}

// ImageSize returns the dimensions that normalised coordinates in a provider
// answer refer to.
func (r TileRequest) ImageSize() (width, height int) {
	width, height = r.ImageWidth, r.ImageHeight
	if width <= 0 {
		width = r.Tile.Width
	}
	if height <= 0 {
		height = r.Tile.Height
	}
	return width, height
}

// Detector reports the elements visible in a tile.
type Detector interface {
	Detect(ctx context.Context, req TileRequest) ([]plan.RawDetection, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, req TileRequest) ([]plan.RawDetection, error)

// Detect implements Detector.
func (f DetectorFunc) Detect(ctx context.Context, req TileRequest) ([]plan.RawDetection, error) {
	return f(ctx, req)
}

// ErrMalformedResponse is returned when a provider answer cannot be parsed.
var ErrMalformedResponse = errors.New("malformed inference response")

// ErrEmptyResponse is returned when a provider answers with no content.
var ErrEmptyResponse = errors.New("empty inference response")
