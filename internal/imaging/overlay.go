package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

// OverlayResult is the plan with the tile grid drawn over it.
type OverlayResult struct {
	CropResult
	Scale float64 `json:"scale"`
	Tiles int     `json:"tiles"`
}

// TileOverlay draws every tile outline and id onto a copy of the plan, then
// shrinks the result so its longer side is at most maxSide pixels (0 keeps
// the original size). Outline colour alternates so neighbouring overlapping
// tiles stay distinguishable.
func TileOverlay(img image.Image, tiles []plan.Tile, maxSide int, lineHex string) (*OverlayResult, error) {
	line, err := parseHexColor(lineHex)
	if err != nil {
		line = color.RGBA{255, 0, 0, 200}
	}
	alt := color.RGBA{R: line.B, G: line.R, B: line.G, A: line.A}

	bounds := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, bounds.Min, draw.Src)

	for _, t := range tiles {
		c := line
		if (t.Row+t.Column)%2 == 1 {
			c = alt
		}
		strokeRect(canvas, t.Rect(), c)
		drawLabel(canvas, t.X+3, t.Y+3, strconv.Itoa(t.ID), color.White, c)
	}

	var out image.Image = canvas
	scale := 1.0
	if long := maxInt(bounds.Dx(), bounds.Dy()); maxSide > 0 && long > maxSide {
		scale = float64(maxSide) / float64(long)
		out = imaging.Fit(canvas, maxSide, maxSide, imaging.Box)
	}

	res, err := encodeResult(out)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{CropResult: *res, Scale: scale, Tiles: len(tiles)}, nil
}

// strokeRect draws a 2 px outline just inside r.
func strokeRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	for i := 0; i < 2; i++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, r.Min.Y+i, c)
			img.Set(x, r.Max.Y-1-i, c)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.Set(r.Min.X+i, y, c)
			img.Set(r.Max.X-1-i, y, c)
		}
	}
}

// parseHexColor parses "#RRGGBB" or "#RRGGBBAA".
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		return color.RGBA{R: uint8(val >> 16), G: uint8(val >> 8), B: uint8(val), A: 255}, nil
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		return color.RGBA{R: uint8(val >> 24), G: uint8(val >> 16), B: uint8(val >> 8), A: uint8(val)}, nil
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}
}

// drawLabel renders text on a filled background box with its top-left
// corner at (x, y).
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	box := image.Rect(x-1, y-1, x+width+1, y+height+1).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}
