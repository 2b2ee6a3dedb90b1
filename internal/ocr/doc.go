// Package ocr recognizes the title block of a score using Tesseract.
//
// The staff segmenter rejects blobs that are too small to be a staff system;
// the largest of those above the first staff is taken to be the title and
// names the MIDI track. Recognition failures are never fatal to a
// conversion.
//
// # Prerequisites
//
// Tesseract and its language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
package ocr
