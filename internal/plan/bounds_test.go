package plan

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestBounds_IOU(t *testing.T) {
	tests := []struct {
		name string
		a, b Bounds
		want float64
	}{
		{"identical", Bounds{0, 0, 10, 10}, Bounds{0, 0, 10, 10}, 1},
		{"disjoint", Bounds{0, 0, 10, 10}, Bounds{20, 20, 30, 30}, 0},
		{"touching edges", Bounds{0, 0, 10, 10}, Bounds{10, 0, 20, 10}, 0},
		{"half shifted", Bounds{0, 0, 10, 10}, Bounds{5, 0, 15, 10}, 50.0 / 150.0},
		{"contained", Bounds{0, 0, 10, 10}, Bounds{0, 0, 5, 10}, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.IOU(tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("IOU: got %v, want %v", got, tt.want)
			}
			if sym := tt.b.IOU(tt.a); math.Abs(sym-got) > 1e-9 {
				t.Errorf("IOU not symmetric: %v vs %v", got, sym)
			}
		})
	}
}

func TestBounds_Clamp(t *testing.T) {
	b := Bounds{X1: -5, Y1: 90, X2: 40, Y2: 130}.Clamp(100, 100)
	want := Bounds{X1: 0, Y1: 90, X2: 40, Y2: 100}
	if b != want {
		t.Errorf("Clamp: got %+v, want %+v", b, want)
	}
}

func TestBounds_ClampInverted(t *testing.T) {
	b := Bounds{X1: 50, Y1: 60, X2: 10, Y2: 20}.Clamp(100, 100)
	want := Bounds{X1: 10, Y1: 20, X2: 50, Y2: 60}
	if b != want {
		t.Errorf("Clamp: got %+v, want %+v", b, want)
	}
}

func TestBounds_Sides(t *testing.T) {
	b := Bounds{X1: 10, Y1: 10, X2: 40, Y2: 20}
	if b.LongSide() != 30 || b.ShortSide() != 10 {
		t.Errorf("sides: got long=%v short=%v, want 30 and 10", b.LongSide(), b.ShortSide())
	}
	if b.Area() != 300 {
		t.Errorf("Area: got %v, want 300", b.Area())
	}
	cx, cy := b.Center()
	if cx != 25 || cy != 15 {
		t.Errorf("Center: got (%v,%v), want (25,15)", cx, cy)
	}
}

func TestProperties_Accessors(t *testing.T) {
	p := Properties{"width_mm": "900", "depth": 240.0, "label": " Door A ", "count": 3}

	if v, ok := p.Float("width_mm"); !ok || v != 900 {
		t.Errorf("Float(width_mm): got %v,%v want 900,true", v, ok)
	}
	if v, ok := p.Float("depth"); !ok || v != 240 {
		t.Errorf("Float(depth): got %v,%v want 240,true", v, ok)
	}
	if v, ok := p.Float("count"); !ok || v != 3 {
		t.Errorf("Float(count): got %v,%v want 3,true", v, ok)
	}
	if _, ok := p.Float("missing"); ok {
		t.Error("Float(missing) should not be ok")
	}
	if got := p.Text("label"); got != "Door A" {
		t.Errorf("Text(label): got %q, want %q", got, "Door A")
	}
}

func TestTileError_Unwrap(t *testing.T) {
	err := TileError{TileID: 7, Err: fmt.Errorf("%w: timeout", ErrTileInferenceFailure)}
	if !errors.Is(err, ErrTileInferenceFailure) {
		t.Error("TileError should unwrap to ErrTileInferenceFailure")
	}
}

func TestParseMeasurementKind(t *testing.T) {
	if k, err := ParseMeasurementKind(" Area "); err != nil || k != KindArea {
		t.Errorf("got %v,%v want area,nil", k, err)
	}
	if _, err := ParseMeasurementKind("weight"); err == nil {
		t.Error("expected error for unknown method")
	}
}
