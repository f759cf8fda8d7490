package imaging

import (
	"image"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// blankInkFraction is the share of pixels that may differ from the paper
// colour for a tile to still count as blank (scanner specks).
const blankInkFraction = 0.0002

// IsBlank reports whether a tile is empty paper: almost every pixel lies
// within tolerance (CIE Lab distance) of the tile's dominant paper
// colour. Scanner noise and paper tint are tolerated; a single wall stroke
// is not.
func IsBlank(img image.Image, tolerance float64) bool {
	bounds := img.Bounds()
	if bounds.Empty() {
		return true
	}

	paperColor := estimatePaper(img)
	pr, pg, pb, pa := paperColor.RGBA()

	var sampled, inked int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := img.At(x, y)
			if r, g, b, a := px.RGBA(); r == pr && g == pg && b == pb && a == pa {
				sampled++
				continue
			}
			c, ok := colorful.MakeColor(px)
			if !ok {
				// fully transparent
				continue
			}
			sampled++
			if c.DistanceLab(paperColor) > tolerance {
				inked++
			}
		}
	}
	if sampled == 0 {
		return true
	}
	return float64(inked) <= blankInkFraction*float64(sampled)
}

// estimatePaper returns the brightest of the four corner pixels. Plans are
// dark ink on light paper and corners are the likeliest background.
func estimatePaper(img image.Image) colorful.Color {
	b := img.Bounds()
	corners := []image.Point{
		{b.Min.X, b.Min.Y},
		{b.Max.X - 1, b.Min.Y},
		{b.Min.X, b.Max.Y - 1},
		{b.Max.X - 1, b.Max.Y - 1},
	}

	best := colorful.Color{R: 1, G: 1, B: 1}
	bestL := -1.0
	for _, p := range corners {
		c, ok := colorful.MakeColor(img.At(p.X, p.Y))
		if !ok {
			continue
		}
		if l, _, _ := c.Lab(); l > bestL {
			best, bestL = c, l
		}
	}
	return best
}
