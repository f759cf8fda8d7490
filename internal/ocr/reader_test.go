package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/plan-tiler/internal/plan"
)

// stubReader returns fixed words in the coordinates of the image it is given
// and records the size of that image.
type stubReader struct {
	words []Word
	err   error
	seen  image.Rectangle
}

func (s *stubReader) Read(ctx context.Context, img image.Image) (*Result, error) {
	s.seen = img.Bounds()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]Word, len(s.words))
	copy(out, s.words)
	return &Result{Words: out}, nil
}

func paper(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func TestReadRegion_TranslatesWords(t *testing.T) {
	r := &stubReader{words: []Word{{Text: "3600", Confidence: 0.9, Bounds: plan.Bounds{X1: 10, Y1: 20, X2: 50, Y2: 32}}}}

	res, err := ReadRegion(context.Background(), r, paper(400, 300), image.Rect(100, 50, 300, 150))
	if err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if r.seen.Dx() != 200 || r.seen.Dy() != 100 {
		t.Errorf("reader saw %v, want a 200x100 crop", r.seen)
	}

	want := plan.Bounds{X1: 110, Y1: 70, X2: 150, Y2: 82}
	if len(res.Words) != 1 || res.Words[0].Bounds != want {
		t.Errorf("words: got %+v, want bounds %+v", res.Words, want)
	}
}

func TestReadRegion_ClipsToImage(t *testing.T) {
	r := &stubReader{}
	if _, err := ReadRegion(context.Background(), r, paper(100, 100), image.Rect(50, 50, 500, 500)); err != nil {
		t.Fatalf("ReadRegion failed: %v", err)
	}
	if r.seen.Dx() != 50 || r.seen.Dy() != 50 {
		t.Errorf("reader saw %v, want the clipped 50x50 crop", r.seen)
	}
}

func TestReadRegion_OutsideImage(t *testing.T) {
	if _, err := ReadRegion(context.Background(), &stubReader{}, paper(100, 100), image.Rect(200, 200, 300, 300)); err == nil {
		t.Error("ReadRegion should reject a region outside the image")
	}
}

func TestReadRegion_PropagatesError(t *testing.T) {
	boom := errors.New("engine crashed")
	_, err := ReadRegion(context.Background(), &stubReader{err: boom}, paper(50, 50), image.Rect(0, 0, 50, 50))
	if !errors.Is(err, boom) {
		t.Errorf("error: got %v, want %v", err, boom)
	}
}

func TestTesseract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewTesseract("eng").Read(ctx, paper(10, 10)); !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
}

func TestNewTesseract_DefaultLanguage(t *testing.T) {
	if got := NewTesseract("").Language; got != "eng" {
		t.Errorf("Language: got %q, want eng", got)
	}
}

func TestTesseract_BlankPage(t *testing.T) {
	res, err := NewTesseract("eng").Read(context.Background(), paper(200, 100))
	if err != nil {
		t.Skipf("tesseract unavailable: %v", err)
	}
	if len(res.Words) != 0 {
		t.Errorf("blank page: got %d words, want 0", len(res.Words))
	}
}
