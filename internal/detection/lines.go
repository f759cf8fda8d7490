package detection

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/plan-tiler/internal/imaging"
)

const (
	numAngles       = 180
	lineTolerance   = 1.5 // max pixel distance from the Hough line
	duplicateAngle  = 3.0 // degrees
	duplicateOffset = 6.0 // pixels
	defaultMaxLines = 50
	defaultMaxGap   = 4
	arrowWingStart  = 4
	arrowWingEnd    = 12
	arrowMinHits    = 5
	inkThreshold    = 128
	thicknessReach  = 10
)

// Point is a pixel position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Line is a detected straight segment.
type Line struct {
	Start         Point   `json:"start"`
	End           Point   `json:"end"`
	Length        float64 `json:"length"`
	AngleDegrees  float64 `json:"angle_degrees"`
	Thickness     int     `json:"thickness"`
	HasArrowStart bool    `json:"has_arrow_start"`
	HasArrowEnd   bool    `json:"has_arrow_end"`
	Votes         int     `json:"votes"`
}

// Horizontal reports whether the segment is within tolDeg of horizontal.
func (l Line) Horizontal(tolDeg float64) bool {
	return math.Abs(l.AngleDegrees) <= tolDeg
}

// Vertical reports whether the segment is within tolDeg of vertical.
func (l Line) Vertical(tolDeg float64) bool {
	return 90-math.Abs(l.AngleDegrees) <= tolDeg
}

// Midpoint returns the segment centre.
func (l Line) Midpoint() (float64, float64) {
	return float64(l.Start.X+l.End.X) / 2, float64(l.Start.Y+l.End.Y) / 2
}

// Terminated reports whether both ends carry an arrowhead or tick.
func (l Line) Terminated() bool {
	return l.HasArrowStart && l.HasArrowEnd
}

// LineOptions tunes DetectLines.
type LineOptions struct {
	// MinLength is the shortest segment reported, in pixels.
	MinLength int

	// MaxLines caps the result. Zero means 50.
	MaxLines int

	// MaxGap is the largest run of missing edge pixels bridged within one
	// segment. Zero means 4.
	MaxGap int

	// DetectArrows checks both ends for arrowheads.
	DetectArrows bool
}

// LinesResult contains detected segments, strongest first.
type LinesResult struct {
	Lines []Line `json:"lines"`
	Count int    `json:"count"`
}

type peak struct {
	rho, theta, votes int
}

// DetectLines finds straight segments using a Hough transform over the
// Canny edge map of img. Results are deterministic for a given raster.
func DetectLines(img image.Image, opts LineOptions) *LinesResult {
	if opts.MaxLines <= 0 {
		opts.MaxLines = defaultMaxLines
	}
	if opts.MaxGap <= 0 {
		opts.MaxGap = defaultMaxGap
	}
	if opts.MinLength < 2 {
		opts.MinLength = 2
	}

	bounds := img.Bounds()
	if bounds.Empty() {
		return &LinesResult{Lines: []Line{}}
	}
	edges := imaging.Edges(img, imaging.DefaultEdgeLow, imaging.DefaultEdgeHigh)

	points := make([]Point, 0, edges.Count())
	for y := 0; y < edges.Height; y++ {
		for x := 0; x < edges.Width; x++ {
			if edges.Pix[y*edges.Width+x] {
				points = append(points, Point{X: x, Y: y})
			}
		}
	}

	cosT, sinT := trigTables()
	maxDist := int(math.Ceil(math.Hypot(float64(edges.Width), float64(edges.Height))))
	rhos := 2*maxDist + 1
	acc := make([]int, rhos*numAngles)
	for _, p := range points {
		for theta := 0; theta < numAngles; theta++ {
			rho := int(math.Round(float64(p.X)*cosT[theta]+float64(p.Y)*sinT[theta])) + maxDist
			acc[rho*numAngles+theta]++
		}
	}

	peaks := findPeaks(acc, rhos, opts.MinLength/2)
	for i := range peaks {
		peaks[i].rho -= maxDist
	}

	lines := make([]Line, 0)
	for _, pk := range peaks {
		if len(lines) >= opts.MaxLines {
			break
		}
		for _, seg := range segments(points, pk, cosT[pk.theta], sinT[pk.theta], opts) {
			if len(lines) >= opts.MaxLines {
				break
			}
			if duplicate(lines, seg) {
				continue
			}
			seg.Thickness = estimateLineThickness(img, seg)
			if opts.DetectArrows {
				seg.HasArrowStart = detectArrowHead(edges, seg.Start, seg.End)
				seg.HasArrowEnd = detectArrowHead(edges, seg.End, seg.Start)
			}
			lines = append(lines, seg)
		}
	}

	for i := range lines {
		lines[i].Start = Point{X: lines[i].Start.X + bounds.Min.X, Y: lines[i].Start.Y + bounds.Min.Y}
		lines[i].End = Point{X: lines[i].End.X + bounds.Min.X, Y: lines[i].End.Y + bounds.Min.Y}
	}

	return &LinesResult{Lines: lines, Count: len(lines)}
}

func trigTables() ([]float64, []float64) {
	cosT := make([]float64, numAngles)
	sinT := make([]float64, numAngles)
	for theta := 0; theta < numAngles; theta++ {
		a := float64(theta) * math.Pi / 180
		cosT[theta] = math.Cos(a)
		sinT[theta] = math.Sin(a)
	}
	return cosT, sinT
}

// findPeaks returns local maxima of the accumulator with at least minVotes,
// ordered by votes then position.
func findPeaks(acc []int, rhos, minVotes int) []peak {
	if minVotes < 1 {
		minVotes = 1
	}
	peaks := make([]peak, 0)
	for r := 0; r < rhos; r++ {
		for theta := 0; theta < numAngles; theta++ {
			v := acc[r*numAngles+theta]
			if v < minVotes || !localMax(acc, rhos, r, theta, v) {
				continue
			}
			peaks = append(peaks, peak{rho: r, theta: theta, votes: v})
		}
	}
	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].votes != peaks[j].votes {
			return peaks[i].votes > peaks[j].votes
		}
		if peaks[i].theta != peaks[j].theta {
			return peaks[i].theta < peaks[j].theta
		}
		return peaks[i].rho < peaks[j].rho
	})
	return peaks
}

func localMax(acc []int, rhos, r, theta, v int) bool {
	for dr := -2; dr <= 2; dr++ {
		nr := r + dr
		if nr < 0 || nr >= rhos {
			continue
		}
		for dt := -2; dt <= 2; dt++ {
			if dr == 0 && dt == 0 {
				continue
			}
			nt := (theta + dt + numAngles) % numAngles
			if acc[nr*numAngles+nt] > v {
				return false
			}
		}
	}
	return true
}

// segments orders the edge pixels near one Hough line along its direction
// and splits them into gap-free runs of at least MinLength.
func segments(points []Point, pk peak, cosA, sinA float64, opts LineOptions) []Line {
	type onLine struct {
		p Point
		t float64
	}
	near := make([]onLine, 0)
	for _, p := range points {
		if math.Abs(float64(p.X)*cosA+float64(p.Y)*sinA-float64(pk.rho)) < lineTolerance {
			near = append(near, onLine{p: p, t: -float64(p.X)*sinA + float64(p.Y)*cosA})
		}
	}
	if len(near) < opts.MinLength/2 {
		return nil
	}
	sort.Slice(near, func(i, j int) bool { return near[i].t < near[j].t })

	var out []Line
	emit := func(run []onLine) {
		seg := newLine(run[0].p, run[len(run)-1].p, len(run))
		if seg.Length >= float64(opts.MinLength) {
			out = append(out, seg)
		}
	}

	start := 0
	for i := 1; i < len(near); i++ {
		if near[i].t-near[i-1].t > float64(opts.MaxGap) {
			emit(near[start:i])
			start = i
		}
	}
	emit(near[start:])
	return out
}

func newLine(a, b Point, votes int) Line {
	if a.X > b.X || (a.X == b.X && a.Y > b.Y) {
		a, b = b, a
	}
	dx := float64(b.X - a.X)
	dy := float64(b.Y - a.Y)
	angle := math.Atan2(dy, dx) * 180 / math.Pi
	if angle <= -90 {
		angle += 180
	}
	return Line{
		Start:        a,
		End:          b,
		Length:       math.Round(math.Hypot(dx, dy)*10) / 10,
		AngleDegrees: math.Round(angle*10) / 10,
		Votes:        votes,
	}
}

// duplicate reports whether seg retraces an accepted segment: nearly the same
// direction, a small perpendicular offset and overlapping extents.
func duplicate(accepted []Line, seg Line) bool {
	mx, my := seg.Midpoint()
	for _, l := range accepted {
		diff := math.Abs(l.AngleDegrees - seg.AngleDegrees)
		if diff > 90 {
			diff = 180 - diff
		}
		if diff > duplicateAngle {
			continue
		}
		dx := float64(l.End.X - l.Start.X)
		dy := float64(l.End.Y - l.Start.Y)
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		ux, uy := dx/length, dy/length
		offX, offY := mx-float64(l.Start.X), my-float64(l.Start.Y)
		perp := math.Abs(offX*uy - offY*ux)
		along := offX*ux + offY*uy
		if perp <= duplicateOffset && along >= -seg.Length/2 && along <= length+seg.Length/2 {
			return true
		}
	}
	return false
}

// estimateLineThickness counts ink pixels across the segment midpoint.
func estimateLineThickness(img image.Image, l Line) int {
	dx := float64(l.End.X - l.Start.X)
	dy := float64(l.End.Y - l.Start.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return 1
	}
	perpX, perpY := -dy/length, dx/length
	mx, my := l.Midpoint()

	b := img.Bounds()
	thickness := 0
	for d := -thicknessReach; d <= thicknessReach; d++ {
		px := int(math.Round(mx+float64(d)*perpX)) + b.Min.X
		py := int(math.Round(my+float64(d)*perpY)) + b.Min.Y
		if image.Pt(px, py).In(b) && grayValue(img, px, py) < inkThreshold {
			thickness++
		}
	}
	if thickness < 1 {
		thickness = 1
	}
	return thickness
}

// detectArrowHead checks for two wings leaving tip at roughly 45 degrees
// back towards other.
func detectArrowHead(edges *imaging.EdgeMap, tip, other Point) bool {
	dx := float64(tip.X - other.X)
	dy := float64(tip.Y - other.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return false
	}
	dx /= length
	dy /= length

	c, s := math.Cos(math.Pi/4), math.Sin(math.Pi/4)
	leftX, leftY := dx*c-dy*s, dx*s+dy*c
	rightX, rightY := dx*c+dy*s, -dx*s+dy*c

	left, right := 0, 0
	for d := arrowWingStart; d <= arrowWingEnd; d++ {
		if edgeNear(edges, tip.X-int(math.Round(float64(d)*leftX)), tip.Y-int(math.Round(float64(d)*leftY))) {
			left++
		}
		if edgeNear(edges, tip.X-int(math.Round(float64(d)*rightX)), tip.Y-int(math.Round(float64(d)*rightY))) {
			right++
		}
	}
	return left >= arrowMinHits && right >= arrowMinHits
}

// edgeNear reports an edge anywhere in the 3x3 neighbourhood of (x, y).
// Canny places edges beside a thin stroke, not on it.
func edgeNear(edges *imaging.EdgeMap, x, y int) bool {
	for ky := -1; ky <= 1; ky++ {
		for kx := -1; kx <= 1; kx++ {
			if edges.At(x+kx, y+ky) {
				return true
			}
		}
	}
	return false
}

// grayValue converts a pixel to grayscale using ITU-R BT.601 luminance weights.
func grayValue(img image.Image, x, y int) uint8 {
	r, g, b, _ := img.At(x, y).RGBA()
	return uint8(float64(r>>8)*0.299 + float64(g>>8)*0.587 + float64(b>>8)*0.114)
}
