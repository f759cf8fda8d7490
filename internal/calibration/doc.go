// Package calibration derives the pixel-to-millimetre scale of a plan.
//
// Several independent methods each propose at most one candidate scale with a
// confidence:
//
//   - notation: a printed drawing scale such as "SCALE 1:100", read by OCR
//   - dimension_line: numeric dimension labels paired with the horizontal
//     dimension line drawn next to them
//   - annotation: dimension elements reported by the vision model with a
//     value property
//   - reference_object: detected objects of known nominal size
//
// # Consolidation
//
// Candidates under the minimum confidence are dropped. The most confident
// candidate supplies the scale. Candidates within the relative tolerance of
// it add their confidence (capped at 1). If any surviving candidate lies
// outside the tolerance, the result is marked ambiguous and its confidence is
// multiplied by the ambiguity penalty. With no candidate left, the configured
// fallback scale is used at the fallback confidence, and measurements carry
// that low confidence forward.
//
// Method failures become notes on the result. Calibration never fails a run.
package calibration
