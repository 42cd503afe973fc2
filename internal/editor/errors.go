package editor

import (
	"errors"
	"fmt"
)

// Command validation errors
var (
	ErrUnknownCommand = errors.New("unknown editor command")
	ErrInvalidLevel   = errors.New("heading level must be between 1 and 4")
	ErrInvalidAlign   = errors.New("alignment must be left, center, right or justify")
	ErrInvalidColor   = errors.New("invalid color")
)

// CommandError reports a rejected editor command.
type CommandError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("editor: %s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("editor: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *CommandError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func commandError(op string, err error, details string) error {
	return &CommandError{Op: op, Err: err, Details: details}
}
