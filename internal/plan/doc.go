// Package plan defines the data model shared by every stage of the tiled plan
// analysis pipeline.
//
// A run starts from an immutable Image, which the tiling stage partitions into
// Tile descriptors. Inference produces RawDetection values in tile-local
// coordinates; the globalizer lifts them into GlobalDetection values; the
// merger collapses duplicates into MergedElement values, which the rule
// engine and the consistency validator annotate. Measurement values are the
// terminal output.
//
// # Coordinate System
//
// All boxes use pixel coordinates with the origin at the top-left corner:
//   - X increases rightward, Y increases downward
//   - (X1, Y1) is inclusive, (X2, Y2) is exclusive
//
// Tile-local boxes are relative to the tile origin; global boxes are relative
// to the image origin.
//
// # Units
//
// Real-world lengths are expressed in millimetres. Scale calibration is
// expressed as pixels per millimetre. Areas are reported in square metres
// and volumes in cubic metres.
package plan
