package imaging

import (
	"image"
	"image/color"
	"math/rand"
	"testing"
)

func TestIsBlank(t *testing.T) {
	noisy := solidImage(100, 100, color.RGBA{250, 248, 240, 255})
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		x, y := rng.Intn(100), rng.Intn(100)
		noisy.Set(x, y, color.RGBA{245, 244, 238, 255})
	}

	wall := solidImage(100, 100, color.White)
	for x := 0; x < 100; x++ {
		wall.Set(x, 40, color.Black)
	}

	tests := []struct {
		name string
		img  image.Image
		want bool
	}{
		{"white paper", solidImage(100, 100, color.White), true},
		{"tinted noisy paper", noisy, true},
		{"thin wall stroke", wall, false},
		{"box", boxImage(100, 100, 30, 30, 70, 70), false},
		{"empty", image.NewRGBA(image.Rect(0, 0, 0, 0)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBlank(tt.img, 0.08); got != tt.want {
				t.Errorf("IsBlank: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsBlank_DarkCornerIgnored(t *testing.T) {
	img := solidImage(100, 100, color.White)
	img.Set(0, 0, color.Black)
	if !IsBlank(img, 0.08) {
		t.Error("a single dark corner speck should not make paper look inked")
	}
}
