package ocr

import (
	"errors"
	"fmt"
)

// Common OCR submission errors
var (
	// ErrConversionFailed is returned for any failed submission: network
	// failure, non-2xx status or an unreadable response body.
	ErrConversionFailed = errors.New("OCR conversion failed")

	// ErrEmptyUpload is returned when Recognize is called without file bytes.
	ErrEmptyUpload = errors.New("upload contains no data")

	// ErrEndpointNotConfigured is returned when the HTTP provider has no endpoint.
	ErrEndpointNotConfigured = errors.New("OCR endpoint is not configured")

	// ErrMissingCredentials is returned when the Vision provider cannot find
	// GOOGLE_APPLICATION_CREDENTIALS, GOOGLE_CREDENTIALS or default credentials.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrTooManyPages is returned when a PDF exceeds the synchronous page limit
	// of the Vision provider.
	ErrTooManyPages = errors.New("PDF has too many pages (maximum 5 pages for synchronous processing)")
)

// OCRError wraps errors with additional context about the OCR submission failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "decodeResponse").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string

	// StatusCode is the HTTP status returned by the service, if any.
	StatusCode int
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ocr: %s failed (HTTP %d): %s: %v", e.Op, e.StatusCode, e.Details, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return NewOCRError(op, err, details)
}

// conversionFailed builds the uniform failure for a submission. The cause is
// kept in Details so that errors.Is(err, ErrConversionFailed) always holds.
func conversionFailed(op string, status int, cause string) error {
	return &OCRError{
		Op:         op,
		Err:        ErrConversionFailed,
		Details:    cause,
		StatusCode: status,
	}
}
