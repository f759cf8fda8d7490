package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	planimg "github.com/ironsheep/plan-tiler/internal/imaging"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Word is one recognised token with its location.
type Word struct {
	// Text is the recognised token, trimmed.
	Text string `json:"text"`

	// Confidence is the engine's confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Bounds is the token's box in the coordinates of the image passed in.
	Bounds plan.Bounds `json:"bounds"`
}

// Result is the text found in one image.
type Result struct {
	FullText string `json:"full_text"`
	Words    []Word `json:"words"`
}

// Reader extracts words from an image.
type Reader interface {
	Read(ctx context.Context, img image.Image) (*Result, error)
}

// Tesseract reads text with the Tesseract engine.
type Tesseract struct {
	// Language is the Tesseract language code, for example "eng".
	Language string

	// Whitelist optionally restricts recognised characters.
	Whitelist string
}

// NewTesseract returns a reader for the given language.
func NewTesseract(language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{Language: language}
}

// Read runs OCR over img.
//
// If word boxes cannot be extracted (some Tesseract builds), the full text is
// still returned with no words.
func (t *Tesseract) Read(ctx context.Context, img image.Image) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := planimg.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.Language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if t.Whitelist != "" {
		if err := client.SetWhitelist(t.Whitelist); err != nil {
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return &Result{FullText: text, Words: []Word{}}, nil
	}

	origin := img.Bounds().Min
	words := make([]Word, 0, len(boxes))
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}
		words = append(words, Word{
			Text:       word,
			Confidence: box.Confidence / 100.0,
			Bounds: plan.Bounds{
				X1: float64(box.Box.Min.X + origin.X),
				Y1: float64(box.Box.Min.Y + origin.Y),
				X2: float64(box.Box.Max.X + origin.X),
				Y2: float64(box.Box.Max.Y + origin.Y),
			},
		})
	}

	return &Result{FullText: text, Words: words}, nil
}

// Version reports the linked Tesseract version.
func Version() string {
	return gosseract.Version()
}

// ReadRegion runs r over the region rect of img and returns words in img
// coordinates.
func ReadRegion(ctx context.Context, r Reader, img image.Image, rect image.Rectangle) (*Result, error) {
	clipped := rect.Intersect(img.Bounds())
	if clipped.Empty() {
		return nil, fmt.Errorf("OCR region %v outside image bounds %v", rect, img.Bounds())
	}
	rect = clipped

	res, err := r.Read(ctx, imaging.Crop(img, rect))
	if err != nil {
		return nil, err
	}
	for i := range res.Words {
		res.Words[i].Bounds = res.Words[i].Bounds.Translate(float64(rect.Min.X), float64(rect.Min.Y))
	}
	return res, nil
}
