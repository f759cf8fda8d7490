package plan

import (
	"encoding/json"
	"errors"
)

// Error taxonomy. Only ErrInvalidConfiguration aborts a run; every other kind
// is contained to one tile, one candidate or one element and recorded in the
// run's audit trail.
var (
	ErrInvalidConfiguration      = errors.New("invalid configuration")
	ErrTileInferenceFailure      = errors.New("tile inference failed")
	ErrTileCancelled             = errors.New("tile not dispatched: run cancelled")
	ErrCalibrationAmbiguous      = errors.New("calibration candidates disagree")
	ErrConsistencyRejected       = errors.New("element rejected by consistency check")
	ErrElementMeasurementFailure = errors.New("element measurement failed")
)

// TileError records a tile that contributed no detections.
type TileError struct {
	TileID int   `json:"tile_id"`
	Err    error `json:"-"`
}

// Error implements error.
func (e TileError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying cause for errors.Is.
func (e TileError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the cause so the error survives JSON encoding.
func (e TileError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"tile_id": e.TileID, "error": e.Err.Error()})
}

// Discard records a merged element removed by the consistency validator.
type Discard struct {
	Element MergedElement `json:"element"`
	Reason  string        `json:"reason"`
	Err     error         `json:"-"`
}

// MeasurementFailure records an element that could not be measured.
type MeasurementFailure struct {
	ElementID   int    `json:"element_id"`
	ElementType string `json:"element_type"`
	Err         error  `json:"-"`
}

// Error implements error.
func (f MeasurementFailure) Error() string {
	return f.Err.Error()
}

// Unwrap exposes the underlying cause for errors.Is.
func (f MeasurementFailure) Unwrap() error {
	return f.Err
}

// MarshalJSON renders the cause so the failure survives JSON encoding.
func (f MeasurementFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"element_id":   f.ElementID,
		"element_type": f.ElementType,
		"error":        f.Err.Error(),
	})
}
