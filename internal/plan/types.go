package plan

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// MillimetresPerInch converts image resolution (dots per inch) into dots per
// millimetre.
const MillimetresPerInch = 25.4

// Image is the immutable source raster for one analysis run.
type Image struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Resolution is the scan resolution in dots per inch.
	Resolution float64 `json:"resolution"`

	// Pixels is the decoded raster. It is never mutated by the pipeline.
	Pixels image.Image `json:"-"`
}

// NewImage wraps a decoded raster with its scan resolution.
func NewImage(img image.Image, dpi float64) Image {
	b := img.Bounds()
	return Image{Width: b.Dx(), Height: b.Dy(), Resolution: dpi, Pixels: img}
}

// Tile is a descriptor of one rectangular window of the source image. It holds
// no pixel data.
type Tile struct {
	ID       int   `json:"id"`
	X        int   `json:"x"`
	Y        int   `json:"y"`
	Width    int   `json:"width"`
	Height   int   `json:"height"`
	Row      int   `json:"row"`
	Column   int   `json:"column"`
	Overlaps []int `json:"overlaps,omitempty"`
}

// Rect returns the tile's global pixel rectangle.
func (t Tile) Rect() image.Rectangle {
	return image.Rect(t.X, t.Y, t.X+t.Width, t.Y+t.Height)
}

// Bounds returns the tile's global rectangle as float bounds.
func (t Tile) Bounds() Bounds {
	return Bounds{
		X1: float64(t.X),
		Y1: float64(t.Y),
		X2: float64(t.X + t.Width),
		Y2: float64(t.Y + t.Height),
	}
}

// Properties is the open property bag attached to detections. Element
// properties vary by type (material, annotation text, explicit dimensions).
type Properties map[string]any

// Text returns the property as a string, or "" if absent.
func (p Properties) Text(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return fmt.Sprint(s)
	}
}

// Float returns the property as a number. Numeric strings are parsed.
func (p Properties) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the bag.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// RawDetection is one element reported by the inference collaborator for a
// single tile, in tile-local coordinates.
type RawDetection struct {
	Type       string     `json:"type"`
	Bounds     Bounds     `json:"bounds"`
	Confidence float64    `json:"confidence"`
	Properties Properties `json:"properties,omitempty"`
	TileID     int        `json:"tile_id"`
}

// GlobalDetection is a RawDetection lifted into image coordinates. Its box
// always lies within the image bounds.
type GlobalDetection struct {
	Type       string     `json:"type"`
	Bounds     Bounds     `json:"bounds"`
	Confidence float64    `json:"confidence"`
	Properties Properties `json:"properties,omitempty"`
	Tiles      []int      `json:"tiles"`

	// Support is the number of raw detections this detection stands for.
	// Zero means one. Merged elements fed back into the merger carry their
	// corroboration count here.
	Support int `json:"support,omitempty"`
}

// Weight returns Support, treating zero as one.
func (d GlobalDetection) Weight() int {
	if d.Support < 1 {
		return 1
	}
	return d.Support
}

// ValidationStatus is set on merged elements by the consistency validator.
type ValidationStatus string

const (
	StatusPending  ValidationStatus = "pending"
	StatusValid    ValidationStatus = "valid"
	StatusRejected ValidationStatus = "rejected"
)

// Severity grades a violation flag.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps a configuration string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityInfo:
		return SeverityInfo, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// ViolationFlag records one rule firing on a merged element.
type ViolationFlag struct {
	Rule      string   `json:"rule"`
	Kind      string   `json:"kind"`
	Severity  Severity `json:"severity"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Unit      string   `json:"unit"`
}

// MergedElement is the unit of truth after deduplication: one physical
// element, possibly corroborated by several tiles.
type MergedElement struct {
	ID            int              `json:"id"`
	Type          string           `json:"type"`
	Bounds        Bounds           `json:"bounds"`
	Confidence    float64          `json:"confidence"`
	Corroboration int              `json:"corroboration"`
	Tiles         []int            `json:"tiles"`
	Properties    Properties       `json:"properties,omitempty"`
	Violations    []ViolationFlag  `json:"violations,omitempty"`
	Status        ValidationStatus `json:"status"`
}

// AddViolation appends a flag. Geometry is never touched.
func (e *MergedElement) AddViolation(f ViolationFlag) {
	e.Violations = append(e.Violations, f)
}

// ScaleCandidate is the output of one calibration method.
type ScaleCandidate struct {
	Method      string  `json:"method"`
	PixelsPerMM float64 `json:"pixels_per_mm"`
	Confidence  float64 `json:"confidence"`
	Detail      string  `json:"detail,omitempty"`
}

// ScaleCalibration is the consolidated pixel-to-millimetre conversion for one
// image. It is read-only once produced.
type ScaleCalibration struct {
	PixelsPerMM float64  `json:"pixels_per_mm"`
	Confidence  float64  `json:"confidence"`
	Methods     []string `json:"methods"`
	Fallback    bool     `json:"fallback"`
	Ambiguous   bool     `json:"ambiguous"`
	Notes       []string `json:"notes,omitempty"`
}

// ToMM converts a pixel length into millimetres.
func (c ScaleCalibration) ToMM(px float64) float64 {
	if c.PixelsPerMM <= 0 {
		return 0
	}
	return px / c.PixelsPerMM
}

// MeasurementKind is the calculation method applied to an element type.
type MeasurementKind string

const (
	KindLength MeasurementKind = "length"
	KindArea   MeasurementKind = "area"
	KindVolume MeasurementKind = "volume"
	KindCount  MeasurementKind = "count"
)

// ParseMeasurementKind maps a configuration string to a MeasurementKind.
func ParseMeasurementKind(s string) (MeasurementKind, error) {
	switch MeasurementKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindLength:
		return KindLength, nil
	case KindArea:
		return KindArea, nil
	case KindVolume:
		return KindVolume, nil
	case KindCount:
		return KindCount, nil
	default:
		return "", fmt.Errorf("unknown measurement method %q", s)
	}
}

// Measurement is a terminal real-world quantity derived from one element.
type Measurement struct {
	ElementID   int             `json:"element_id"`
	ElementType string          `json:"element_type"`
	Kind        MeasurementKind `json:"kind"`
	Value       float64         `json:"value"`
	Unit        string          `json:"unit"`
	Accuracy    float64         `json:"accuracy"`
}
