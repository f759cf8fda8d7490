package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// Default hysteresis thresholds for clean line drawings.
const (
	DefaultEdgeLow  = 50
	DefaultEdgeHigh = 150
)

// EdgeMap is a binary edge raster. Pix[y*Width+x] is true on an edge.
type EdgeMap struct {
	Width  int
	Height int
	Pix    []bool
}

// At reports whether (x, y) is an edge pixel. Out of range points are not.
func (m *EdgeMap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Count returns the number of edge pixels.
func (m *EdgeMap) Count() int {
	n := 0
	for _, e := range m.Pix {
		if e {
			n++
		}
	}
	return n
}

// Gray renders the map as a white-on-black raster for inspection.
func (m *EdgeMap) Gray() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, e := range m.Pix {
		if e {
			out.Pix[i] = 255
		}
	}
	return out
}

// Edges performs Canny edge detection and returns the binary edge map.
//
// Parameters:
//   - img: Source raster, colour or grayscale.
//   - low: Hysteresis low threshold (0-255). Weaker gradients are discarded.
//   - high: Hysteresis high threshold (0-255). Stronger gradients are always
//     kept; gradients between low and high survive only next to a strong one.
//
// # Algorithm
//
//  1. Grayscale conversion and a Gaussian blur (radius 1.4) to suppress
//     scanner noise.
//  2. Sobel gradients, magnitude and direction.
//  3. Non-maximum suppression along the gradient direction, thinning strokes
//     to one pixel.
//  4. Double threshold with single-step hysteresis.
//
// Memory is proportional to the pixel count, so callers analysing whole
// sheets should crop to the band of interest first.
func Edges(img image.Image, low, high int) *EdgeMap {
	gray := effect.Grayscale(blur.Gaussian(img, 1.4))
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()

	lum := func(x, y int) float64 {
		x = clamp(x, 0, w-1)
		y = clamp(y, 0, h-1)
		return float64(gray.GrayAt(x+gray.Rect.Min.X, y+gray.Rect.Min.Y).Y) / 255
	}

	mag := make([]float64, w*h)
	dir := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := -lum(x-1, y-1) + lum(x+1, y-1) -
				2*lum(x-1, y) + 2*lum(x+1, y) -
				lum(x-1, y+1) + lum(x+1, y+1)
			gy := -lum(x-1, y-1) - 2*lum(x, y-1) - lum(x+1, y-1) +
				lum(x-1, y+1) + 2*lum(x, y+1) + lum(x+1, y+1)
			mag[y*w+x] = math.Hypot(gx, gy)
			dir[y*w+x] = math.Atan2(gy, gx)
		}
	}

	thin := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			dx, dy := neighbourStep(dir[i])
			if mag[i] >= mag[(y+dy)*w+x+dx] && mag[i] >= mag[(y-dy)*w+x-dx] {
				thin[i] = mag[i]
			}
		}
	}

	lo := float64(low) / 255
	hi := float64(high) / 255
	out := &EdgeMap{Width: w, Height: h, Pix: make([]bool, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := thin[y*w+x]
			switch {
			case v >= hi:
				out.Pix[y*w+x] = true
			case v >= lo:
				out.Pix[y*w+x] = strongNeighbour(thin, w, h, x, y, hi)
			}
		}
	}
	return out
}

// neighbourStep quantises a gradient direction to one of the four pixel
// neighbour axes.
func neighbourStep(angle float64) (int, int) {
	a := math.Mod(angle+math.Pi, math.Pi)
	switch {
	case a < math.Pi/8 || a >= 7*math.Pi/8:
		return 1, 0
	case a < 3*math.Pi/8:
		return 1, 1
	case a < 5*math.Pi/8:
		return 0, 1
	default:
		return -1, 1
	}
}

func strongNeighbour(thin []float64, w, h, x, y int, hi float64) bool {
	for ky := -1; ky <= 1; ky++ {
		for kx := -1; kx <= 1; kx++ {
			px, py := clamp(x+kx, 0, w-1), clamp(y+ky, 0, h-1)
			if thin[py*w+px] >= hi {
				return true
			}
		}
	}
	return false
}

func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
