package imaging

import (
	"image"
	"image/color"
	"testing"
)

// boxImage draws a filled black square on white paper.
func boxImage(width, height, x1, y1, x2, y2 int) *image.RGBA {
	img := solidImage(width, height, color.White)
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return img
}

func TestEdges_Box(t *testing.T) {
	m := Edges(boxImage(100, 100, 30, 30, 70, 70), DefaultEdgeLow, DefaultEdgeHigh)

	if m.Width != 100 || m.Height != 100 || len(m.Pix) != 100*100 {
		t.Fatalf("dimensions: got %dx%d (%d px)", m.Width, m.Height, len(m.Pix))
	}
	if m.Count() == 0 {
		t.Fatal("no edges found around a high-contrast box")
	}

	// Interior and far background are flat.
	if m.At(50, 50) {
		t.Error("box interior marked as edge")
	}
	if m.At(5, 5) {
		t.Error("background marked as edge")
	}

	// Some pixel on the left border band must be an edge.
	found := false
	for x := 27; x <= 32; x++ {
		if m.At(x, 50) {
			found = true
		}
	}
	if !found {
		t.Error("left border of the box not detected")
	}
}

func TestEdges_Uniform(t *testing.T) {
	m := Edges(solidImage(60, 40, color.Gray{Y: 200}), DefaultEdgeLow, DefaultEdgeHigh)
	if n := m.Count(); n != 0 {
		t.Errorf("uniform image: got %d edge pixels, want 0", n)
	}
}

func TestEdges_Thresholds(t *testing.T) {
	img := boxImage(80, 80, 20, 20, 60, 60)
	loose := Edges(img, 10, 40).Count()
	strict := Edges(img, 200, 250).Count()
	if strict > loose {
		t.Errorf("stricter thresholds found more edges: %d > %d", strict, loose)
	}
}

func TestEdgeMap_AtOutOfRange(t *testing.T) {
	m := &EdgeMap{Width: 2, Height: 2, Pix: []bool{true, true, true, true}}
	for _, p := range []image.Point{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		if m.At(p.X, p.Y) {
			t.Errorf("At(%d,%d) should be false", p.X, p.Y)
		}
	}
}

func TestEdgeMap_Gray(t *testing.T) {
	m := &EdgeMap{Width: 2, Height: 1, Pix: []bool{true, false}}
	g := m.Gray()
	if g.GrayAt(0, 0).Y != 255 || g.GrayAt(1, 0).Y != 0 {
		t.Errorf("Gray: got %v", g.Pix)
	}
}

func TestNeighbourStep(t *testing.T) {
	tests := []struct {
		angle  float64
		dx, dy int
	}{
		{0, 1, 0},
		{3.14159, 1, 0},
		{1.5708, 0, 1},
		{-1.5708, 0, 1},
		{0.785, 1, 1},
		{2.356, -1, 1},
	}
	for _, tt := range tests {
		dx, dy := neighbourStep(tt.angle)
		if dx != tt.dx || dy != tt.dy {
			t.Errorf("neighbourStep(%v): got (%d,%d), want (%d,%d)", tt.angle, dx, dy, tt.dx, tt.dy)
		}
	}
}

func TestClamp(t *testing.T) {
	if clamp(-3, 0, 9) != 0 || clamp(12, 0, 9) != 9 || clamp(4, 0, 9) != 4 {
		t.Error("clamp out of range")
	}
}
