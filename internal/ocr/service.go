// Package ocr extracts text from medication-package photos using the Google
// Cloud Vision API.
//
// The service runs document text detection over a single image and returns
// the full recognized text together with its block/line structure, which the
// identification pipeline uses for span-level matching.
//
// Required Environment Variables:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//
// Cloud Vision API Limitations:
//   - Maximum file size: 20MB for synchronous processing
//   - Supported formats: JPEG, PNG, GIF, BMP, WEBP, RAW, ICO, TIFF
package ocr

import (
	"context"
	"io"
	"time"
)

// Service defines the interface for OCR text extraction.
type Service interface {
	// RecognizeImage extracts text from a package photo.
	// An image with no recognizable text returns ErrNoText.
	RecognizeImage(ctx context.Context, image io.Reader) (*Result, error)
}

// Block is one detected text block, split into lines in reading order.
type Block struct {
	Lines []string `json:"lines"`
}

// Result contains the recognized text with metadata.
type Result struct {
	// Text is the full recognized text in reading order.
	Text string `json:"text"`

	// Blocks preserves the page's block/line structure.
	Blocks []Block `json:"blocks"`

	// Confidence is the average block-level confidence (0.0 to 1.0).
	Confidence float32 `json:"confidence"`

	// LanguageCodes contains the detected languages.
	LanguageCodes []string `json:"language_codes,omitempty"`

	// ProcessedAt is when recognition completed.
	ProcessedAt time.Time `json:"processed_at"`

	// ProcessingDuration is how long recognition took.
	ProcessingDuration time.Duration `json:"processing_duration"`
}
