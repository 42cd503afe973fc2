// Package export serialises edited OCR content to downloadable files.
package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"ocrdesk/internal/editor"
)

// Suffix is appended to the original base name of every export.
const Suffix = "edited"

// fallbackBase names exports when the original file name is unknown.
const fallbackBase = "ocr"

// ErrNothingToExport is returned when the content has no visible text.
var ErrNothingToExport = errors.New("nothing to export")

// ExportError wraps a failed export with the operation that failed.
type ExportError struct {
	Op      string
	Err     error
	Details string
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("export: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("export: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ExportError) Unwrap() error {
	return e.Err
}

// Artifact is a serialised export ready to be written or downloaded.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte

	// Pages is the page count of PDF artifacts.
	Pages int
}

// Filename derives the export name from the original upload: the last
// extension is replaced by "_<suffix>.<ext>". An empty base becomes "ocr".
func Filename(original, suffix, ext string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(base) == "" {
		base = fallbackBase
	}
	return fmt.Sprintf("%s_%s.%s", base, suffix, strings.TrimPrefix(ext, "."))
}

// Text exports the plain text of doc.
func Text(doc editor.Document, original string) (*Artifact, error) {
	if doc.IsEmpty() {
		return nil, ErrNothingToExport
	}
	return &Artifact{
		Name:        Filename(original, Suffix, "txt"),
		ContentType: "text/plain; charset=utf-8",
		Data:        []byte(doc.Text()),
	}, nil
}
