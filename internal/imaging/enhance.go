package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
)

// contrastBoost is the relative contrast change applied to scans. Faded
// pencil and low-toner prints lose walls to the paper colour without it.
const contrastBoost = 0.35

// Enhance cleans up a scanned tile before inference: it drops colour,
// stretches contrast and sharpens strokes. The input is not modified.
func Enhance(img image.Image) image.Image {
	gray := effect.Grayscale(img)
	contrasted := adjust.Contrast(gray, contrastBoost)
	return effect.Sharpen(contrasted)
}
