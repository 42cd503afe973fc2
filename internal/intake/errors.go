package intake

import (
	"errors"
	"fmt"
)

// Validation failures reported by Validator.Validate.
var (
	// ErrFileTooLarge is returned when the file exceeds the configured byte limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedType is returned when the file is neither an image nor a PDF.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrEmptyFile is returned when the file carries no bytes.
	ErrEmptyFile = errors.New("file is empty")
)

// ValidationError describes why a selected file was rejected. Message is the
// user-facing notice text.
type ValidationError struct {
	Op      string
	Err     error
	File    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("intake: %s %q: %v", e.Op, e.File, e.Err)
	}
	return fmt.Sprintf("intake: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *ValidationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func reject(file string, err error, message string) *ValidationError {
	return &ValidationError{Op: "Validate", Err: err, File: file, Message: message}
}
