// Package detection finds straight line segments in plan rasters.
//
// Line detection backs the dimension-line calibration method: a dimension
// line is a thin straight stroke, usually closed by arrowheads or ticks, with
// its measured value written alongside. The package finds the strokes; the
// calibration package pairs them with OCR'd labels.
//
// # Algorithm Overview
//
//  1. Edge detection: Canny edges from the imaging package.
//  2. Hough transform: every edge pixel votes for the (rho, theta) lines
//     through it at one-degree resolution.
//  3. Segment extraction: edge pixels near each accumulator peak are ordered
//     along the line and split wherever the gap exceeds MaxGap, so collinear
//     strokes separated by text or symbols become separate segments.
//  4. Deduplication: the two Canny edges of one stroke, and neighbouring
//     accumulator cells, collapse into the longer segment.
//
// # Coordinate System
//
// Coordinates are 0-based image pixels with (0, 0) at the top-left. Segment
// endpoints are ordered left to right (top to bottom for vertical lines), so
// AngleDegrees lies in (-90, 90].
//
// # Performance Considerations
//
// Edge detection allocates per pixel and the Hough accumulator grows with the
// image diagonal. Run DetectLines on bands or tiles, not on whole sheets.
package detection
