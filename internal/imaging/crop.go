package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

// PNGMimeType is the MIME type of every encoded payload.
const PNGMimeType = "image/png"

// paper is the fill used when padding edge tiles up to the model resolution.
var paper = color.White

// CropResult is an encoded region of the plan, ready for JSON transport.
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// ExtractTile copies the tile's window out of the source raster. The copy is
// independent of src. When pad is positive and the tile is smaller than
// pad x pad (an image narrower than the tile size), the copy is extended to
// the right and bottom with white paper so tile-local coordinates are kept.
func ExtractTile(src image.Image, tile plan.Tile, pad int) (image.Image, error) {
	rect := tile.Rect().Add(src.Bounds().Min)
	if !rect.In(src.Bounds()) || rect.Empty() {
		return nil, fmt.Errorf("tile %d window %v outside image bounds %v", tile.ID, tile.Rect(), src.Bounds())
	}

	cropped := imaging.Crop(src, rect)
	if pad <= 0 || (tile.Width >= pad && tile.Height >= pad) {
		return cropped, nil
	}

	canvas := imaging.New(maxInt(pad, tile.Width), maxInt(pad, tile.Height), paper)
	return imaging.Paste(canvas, cropped, image.Pt(0, 0)), nil
}

// EncodePNG encodes a raster as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// CropTile extracts one tile and encodes it for transport.
func CropTile(src image.Image, tile plan.Tile, scale float64) (*CropResult, error) {
	out, err := ExtractTile(src, tile, 0)
	if err != nil {
		return nil, err
	}
	if scale != 1.0 && scale > 0 {
		out = imaging.Resize(out, int(float64(tile.Width)*scale), 0, imaging.Lanczos)
	}
	return encodeResult(out)
}

func encodeResult(img image.Image) (*CropResult, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &CropResult{
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:    PNGMimeType,
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
