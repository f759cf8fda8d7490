package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

func TestTileOverlay(t *testing.T) {
	img := solidImage(200, 100, color.White)
	tiles := []plan.Tile{
		{ID: 0, X: 0, Y: 0, Width: 120, Height: 100},
		{ID: 1, X: 80, Y: 0, Width: 120, Height: 100, Column: 1},
	}

	result, err := TileOverlay(img, tiles, 0, "#FF0000")
	if err != nil {
		t.Fatalf("TileOverlay failed: %v", err)
	}
	if result.Width != 200 || result.Height != 100 || result.Scale != 1 {
		t.Errorf("got %dx%d scale %v, want 200x100 scale 1", result.Width, result.Height, result.Scale)
	}
	if result.Tiles != 2 {
		t.Errorf("Tiles: got %d, want 2", result.Tiles)
	}

	data, _ := base64.StdEncoding.DecodeString(result.ImageBase64)
	out, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}
	if r, g, b := rgb8(out.At(60, 0)); r != 255 || g != 0 || b != 0 {
		t.Errorf("top edge of tile 0: got (%d,%d,%d), want red", r, g, b)
	}
	if r, g, b := rgb8(out.At(100, 50)); r != 255 || g != 255 || b != 255 {
		t.Errorf("tile interior: got (%d,%d,%d), want untouched white", r, g, b)
	}

	if r, g, b := rgb8(img.At(60, 0)); r != 255 || g != 255 || b != 255 {
		t.Error("TileOverlay modified the source image")
	}
}

func TestTileOverlay_Shrinks(t *testing.T) {
	img := solidImage(400, 200, color.White)
	result, err := TileOverlay(img, []plan.Tile{{ID: 0, Width: 400, Height: 200}}, 100, "")
	if err != nil {
		t.Fatalf("TileOverlay failed: %v", err)
	}
	if result.Width != 100 || result.Height != 50 {
		t.Errorf("dimensions: got %dx%d, want 100x50", result.Width, result.Height)
	}
	if result.Scale != 0.25 {
		t.Errorf("Scale: got %v, want 0.25", result.Scale)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		hex        string
		r, g, b, a uint8
		wantErr    bool
	}{
		{"#FF0000", 255, 0, 0, 255, false},
		{"00FF00", 0, 255, 0, 255, false},
		{"#FF000080", 255, 0, 0, 128, false},
		{"", 0, 0, 0, 0, true},
		{"#FFF", 0, 0, 0, 0, true},
		{"#GGGGGG", 0, 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.hex, func(t *testing.T) {
			c, err := parseHexColor(tt.hex)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.R != tt.r || c.G != tt.g || c.B != tt.b || c.A != tt.a {
				t.Errorf("got (%d,%d,%d,%d), want (%d,%d,%d,%d)", c.R, c.G, c.B, c.A, tt.r, tt.g, tt.b, tt.a)
			}
		})
	}
}

func TestDrawLabel(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 40))
	drawLabel(img, 10, 10, "27", color.White, color.Black)

	var light, dark bool
	for y := 9; y < 25; y++ {
		for x := 9; x < 25; x++ {
			r, _, _ := rgb8(img.At(x, y))
			if r > 200 {
				light = true
			}
			if r < 50 {
				dark = true
			}
		}
	}
	if !light || !dark {
		t.Errorf("label not rendered: light=%v dark=%v", light, dark)
	}
}

func TestDrawLabel_Clipped(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	// must not panic when the label runs past the canvas
	drawLabel(img, 15, 15, "1234", color.White, color.Black)
	drawLabel(img, -5, -5, "0", color.White, color.Black)
	drawLabel(img, 5, 5, "", color.White, color.Black)
}
