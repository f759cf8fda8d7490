// Package tiling partitions an oversized plan raster into overlapping tiles
// sized for a vision model's fixed input resolution.
//
// The grid is deterministic: identical dimensions and configuration always
// produce an identical, identically ordered tile list. Tiles are ordered row
// major by origin and numbered from 0 in that order.
//
// # Placement
//
// With tile size T and overlap O the step is S = T - O. Along each axis the
// planner places ceil(dim/S) tiles at origins 0, S, 2S, ...; the last tile is
// placed flush against the far edge (origin dim - T) instead of at its
// regular position, so the image is never finished by a sliver narrower than
// the overlap. A flush origin that coincides with a regular one is emitted
// once. Images smaller than T along an axis get a single clipped tile.
package tiling

import (
	"fmt"
	"image"
	"sort"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Grid is the planned tile layout for one image.
type Grid struct {
	ImageWidth  int         `json:"image_width"`
	ImageHeight int         `json:"image_height"`
	TileSize    int         `json:"tile_size"`
	Overlap     int         `json:"overlap"`
	Step        int         `json:"step"`
	Columns     int         `json:"columns"`
	Rows        int         `json:"rows"`
	Tiles       []plan.Tile `json:"tiles"`
}

// Tile returns the tile with the given id.
func (g *Grid) Tile(id int) (plan.Tile, bool) {
	if id < 0 || id >= len(g.Tiles) {
		return plan.Tile{}, false
	}
	return g.Tiles[id], true
}

// Plan computes the tile grid for an image of the given dimensions.
//
// Returns an error wrapping plan.ErrInvalidConfiguration when the tiling
// parameters cannot cover an image (T <= 0, O <= 0, O >= T) or the image has
// no pixels.
func Plan(width, height int, cfg config.Tiling) (*Grid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image dimensions %dx%d must be positive",
			plan.ErrInvalidConfiguration, width, height)
	}

	xs := axisOrigins(width, cfg.TileSize, cfg.Step())
	ys := axisOrigins(height, cfg.TileSize, cfg.Step())

	tiles := make([]plan.Tile, 0, len(xs)*len(ys))
	for row, y := range ys {
		for col, x := range xs {
			tiles = append(tiles, plan.Tile{
				ID:     len(tiles),
				X:      x,
				Y:      y,
				Width:  minInt(cfg.TileSize, width-x),
				Height: minInt(cfg.TileSize, height-y),
				Row:    row,
				Column: col,
			})
		}
	}

	linkOverlaps(tiles)

	return &Grid{
		ImageWidth:  width,
		ImageHeight: height,
		TileSize:    cfg.TileSize,
		Overlap:     cfg.Overlap,
		Step:        cfg.Step(),
		Columns:     len(xs),
		Rows:        len(ys),
		Tiles:       tiles,
	}, nil
}

// axisOrigins returns the sorted, distinct tile origins along one axis.
func axisOrigins(dim, size, step int) []int {
	if dim <= size {
		return []int{0}
	}

	n := (dim + step - 1) / step
	origins := make([]int, 0, n)
	for i := 0; i < n-1; i++ {
		origins = append(origins, i*step)
	}
	origins = append(origins, dim-size)

	sort.Ints(origins)
	out := origins[:1]
	for _, o := range origins[1:] {
		if o != out[len(out)-1] {
			out = append(out, o)
		}
	}
	return out
}

// linkOverlaps fills each tile's Overlaps with the ids of tiles sharing at
// least one pixel. Only tiles within one row/column step can intersect, but
// the flush row/column may sit behind its predecessor, so a two-step window
// is scanned.
func linkOverlaps(tiles []plan.Tile) {
	for i := range tiles {
		ri := tiles[i].Rect()
		for j := range tiles {
			if i == j {
				continue
			}
			if absInt(tiles[i].Row-tiles[j].Row) > 2 || absInt(tiles[i].Column-tiles[j].Column) > 2 {
				continue
			}
			if !ri.Intersect(tiles[j].Rect()).Empty() {
				tiles[i].Overlaps = append(tiles[i].Overlaps, tiles[j].ID)
			}
		}
	}
}

// Covers reports whether every pixel of a width x height image lies inside at
// least one tile. It returns the first uncovered pixel when coverage fails.
func Covers(tiles []plan.Tile, width, height int) (bool, image.Point) {
	covered := make([]bool, width*height)
	for _, t := range tiles {
		r := t.Rect().Intersect(image.Rect(0, 0, width, height))
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := covered[y*width : (y+1)*width]
			for x := r.Min.X; x < r.Max.X; x++ {
				row[x] = true
			}
		}
	}
	for i, ok := range covered {
		if !ok {
			return false, image.Pt(i%width, i/width)
		}
	}
	return true, image.Point{}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
