// Package globalize lifts tile-local detections into the plan's global
// coordinate space.
package globalize

import (
	"fmt"
	"math"

	"github.com/ironsheep/plan-tiler/internal/plan"
	"github.com/ironsheep/plan-tiler/internal/tiling"
)

// Detection translates one raw detection by its tile's origin and clamps the
// result to the image. The property bag is copied; the raw detection is not
// retained.
func Detection(d plan.RawDetection, tile plan.Tile, imageWidth, imageHeight int) plan.GlobalDetection {
	b := d.Bounds.Translate(float64(tile.X), float64(tile.Y)).
		Clamp(float64(imageWidth), float64(imageHeight))

	return plan.GlobalDetection{
		Type:       d.Type,
		Bounds:     b,
		Confidence: math.Max(0, math.Min(1, d.Confidence)),
		Properties: d.Properties.Clone(),
		Tiles:      []int{tile.ID},
	}
}

// All globalizes every detection of every tile. It fails only when a
// detection names a tile that is not part of the grid.
func All(grid *tiling.Grid, byTile [][]plan.RawDetection) ([]plan.GlobalDetection, error) {
	n := 0
	for _, ds := range byTile {
		n += len(ds)
	}

	out := make([]plan.GlobalDetection, 0, n)
	for _, ds := range byTile {
		for _, d := range ds {
			tile, ok := grid.Tile(d.TileID)
			if !ok {
				return nil, fmt.Errorf("detection %q refers to tile %d outside the %d-tile grid",
					d.Type, d.TileID, len(grid.Tiles))
			}
			out = append(out, Detection(d, tile, grid.ImageWidth, grid.ImageHeight))
		}
	}
	return out, nil
}
