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

func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// quadrantImage is red top-left, green top-right, blue bottom-left and white
// bottom-right.
func quadrantImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			switch {
			case x < width/2 && y < height/2:
				c = color.RGBA{255, 0, 0, 255}
			case y < height/2:
				c = color.RGBA{0, 255, 0, 255}
			case x < width/2:
				c = color.RGBA{0, 0, 255, 255}
			default:
				c = color.RGBA{255, 255, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func rgb8(c color.Color) (uint8, uint8, uint8) {
	r, g, b, _ := c.RGBA()
	return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
}

func TestCropTile(t *testing.T) {
	img := quadrantImage(100, 100)

	result, err := CropTile(img, plan.Tile{Width: 50, Height: 50}, 1.0)
	if err != nil {
		t.Fatalf("CropTile failed: %v", err)
	}
	if result.Width != 50 || result.Height != 50 {
		t.Errorf("dimensions: got %dx%d, want 50x50", result.Width, result.Height)
	}
	if result.MimeType != PNGMimeType {
		t.Errorf("MimeType: got %s, want %s", result.MimeType, PNGMimeType)
	}

	data, err := base64.StdEncoding.DecodeString(result.ImageBase64)
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode PNG: %v", err)
	}
	if r, g, b := rgb8(decoded.At(25, 25)); r != 255 || g != 0 || b != 0 {
		t.Errorf("cropped colour: got (%d,%d,%d), want (255,0,0)", r, g, b)
	}
}

func TestCropTile_Scale(t *testing.T) {
	img := solidImage(200, 200, color.RGBA{255, 0, 0, 255})
	tile := plan.Tile{X: 100, Y: 0, Width: 100, Height: 50}

	tests := []struct {
		name         string
		scale        float64
		wantW, wantH int
	}{
		{"up", 2.0, 200, 100},
		{"down", 0.5, 50, 25},
		{"ignored zero", 0, 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CropTile(img, tile, tt.scale)
			if err != nil {
				t.Fatalf("CropTile failed: %v", err)
			}
			if result.Width != tt.wantW || result.Height != tt.wantH {
				t.Errorf("dimensions: got %dx%d, want %dx%d", result.Width, result.Height, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestCropTile_InvalidWindow(t *testing.T) {
	img := solidImage(100, 100, color.White)

	tests := []struct {
		name string
		tile plan.Tile
	}{
		{"negative origin", plan.Tile{X: -1, Width: 50, Height: 50}},
		{"past bottom edge", plan.Tile{Y: 60, Width: 50, Height: 50}},
		{"zero width", plan.Tile{Width: 0, Height: 50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CropTile(img, tt.tile, 1.0); err == nil {
				t.Error("CropTile should fail")
			}
		})
	}
}

func TestExtractTile(t *testing.T) {
	src := quadrantImage(200, 200)
	tile := plan.Tile{ID: 3, X: 100, Y: 100, Width: 100, Height: 100}

	out, err := ExtractTile(src, tile, 0)
	if err != nil {
		t.Fatalf("ExtractTile failed: %v", err)
	}
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 100 {
		t.Errorf("dimensions: got %v, want 100x100", out.Bounds())
	}
	if r, g, b := rgb8(out.At(10, 10)); r != 255 || g != 255 || b != 255 {
		t.Errorf("tile-local (10,10): got (%d,%d,%d), want white", r, g, b)
	}

	// The copy must be detached from the source.
	src.Set(150, 150, color.Black)
	if r, _, _ := rgb8(out.At(50, 50)); r != 255 {
		t.Error("tile payload changed when the source changed")
	}
}

func TestExtractTile_Pads(t *testing.T) {
	src := solidImage(40, 30, color.Black)
	tile := plan.Tile{ID: 0, Width: 40, Height: 30}

	out, err := ExtractTile(src, tile, 64)
	if err != nil {
		t.Fatalf("ExtractTile failed: %v", err)
	}
	if out.Bounds().Dx() != 64 || out.Bounds().Dy() != 64 {
		t.Fatalf("padded dimensions: got %v, want 64x64", out.Bounds())
	}
	if r, _, _ := rgb8(out.At(10, 10)); r != 0 {
		t.Error("tile content should stay at the origin")
	}
	if r, _, _ := rgb8(out.At(50, 50)); r != 255 {
		t.Error("padding should be white paper")
	}
}

func TestExtractTile_OutsideImage(t *testing.T) {
	src := solidImage(100, 100, color.White)
	if _, err := ExtractTile(src, plan.Tile{X: 80, Y: 0, Width: 40, Height: 40}, 0); err == nil {
		t.Error("ExtractTile should reject windows past the image edge")
	}
}

func TestEncodePNG(t *testing.T) {
	data, err := EncodePNG(solidImage(8, 8, color.Black))
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Error("output is not a PNG stream")
	}
}
