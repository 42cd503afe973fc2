// Package ocr submits an uploaded document to an external OCR service and
// returns the recognised text.
//
// Two providers implement Service:
//   - HTTPService posts the file as multipart/form-data (field "file") to a
//     configurable endpoint and expects a JSON body of the form
//     {"extracted_text": "...", "ocr_confidence": 97.5, "debug_image_url": "..."}.
//   - VisionService sends the bytes to Google Cloud Vision document text
//     detection and reports the same Result shape.
//
// Every failure of a submission (transport error, non-2xx status, malformed
// JSON) is reported as ErrConversionFailed wrapped in an *OCRError. Nothing is
// retried.
package ocr

import (
	"context"
	"fmt"
	"time"
)

// FieldName is the multipart form field carrying the uploaded file.
const FieldName = "file"

// Service defines the interface for OCR text extraction services.
type Service interface {
	// Recognize submits one document and returns the extracted text.
	Recognize(ctx context.Context, upload Upload) (*Result, error)
}

// Upload is the document handed to the OCR service.
type Upload struct {
	Name      string
	MediaType string
	Data      []byte
}

// Result contains the response of the OCR service.
type Result struct {
	// Text is the extracted text content. Empty when the service omitted it.
	Text string `json:"extracted_text"`

	// Confidence is the optional recognition confidence as a percentage (0-100).
	Confidence *float64 `json:"ocr_confidence,omitempty"`

	// DebugImageURL optionally points at an annotated image produced by the service.
	DebugImageURL string `json:"debug_image_url,omitempty"`

	// ProcessedAt is the timestamp when the response was received.
	ProcessedAt time.Time `json:"-"`

	// ProcessingDuration is how long the round trip took.
	ProcessingDuration time.Duration `json:"-"`
}

// HasConfidence reports whether the service returned a usable confidence.
// A zero score is treated as absent.
func (r *Result) HasConfidence() bool {
	return r != nil && r.Confidence != nil && *r.Confidence > 0
}

// ConfidenceLabel formats the confidence for display, e.g. "97.5%".
func (r *Result) ConfidenceLabel() string {
	if !r.HasConfidence() {
		return ""
	}
	return fmt.Sprintf("%.1f%%", *r.Confidence)
}
