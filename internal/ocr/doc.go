// Package ocr reads text annotations from plan rasters with Tesseract.
//
// Calibration needs two kinds of text: the scale notation printed in the title
// block ("1:100", "SCALE 1/50") and the numeric labels written alongside
// dimension lines ("3600", "2.40"). Both are read word by word with their
// bounding boxes.
//
// # Prerequisites
//
// Tesseract and its language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// # Readers
//
// Consumers depend on the Reader interface so that tests and alternative
// engines can stand in for Tesseract. Tesseract is the production reader;
// it creates one gosseract client per call, so a single value may be shared
// by concurrent callers.
package ocr
