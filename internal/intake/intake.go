// Package intake validates files chosen through the picker or dropped onto the
// page, and hands out revocable preview handles for them.
package intake

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF header decoder
	_ "image/jpeg" // register JPEG header decoder
	_ "image/png"  // register PNG header decoder
	"mime"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP header decoder
	_ "golang.org/x/image/tiff" // register TIFF header decoder
	_ "golang.org/x/image/webp" // register WebP header decoder
)

// DefaultMaxBytes is the upload limit used when none is configured.
const DefaultMaxBytes int64 = 20 << 20

const mediaTypePDF = "application/pdf"

// Source records how a file was chosen. Both sources go through the same
// validation.
type Source string

const (
	SourcePicker Source = "picker"
	SourceDrop   Source = "drop"
)

// ParseSource maps a form value to a Source, defaulting to the picker.
func ParseSource(s string) Source {
	if strings.EqualFold(strings.TrimSpace(s), string(SourceDrop)) {
		return SourceDrop
	}
	return SourcePicker
}

// SelectedFile is the document the user intends to convert.
type SelectedFile struct {
	Name      string
	MediaType string
	Size      int64
	Data      []byte
	Source    Source
}

// IsImage reports whether the file is rendered as an image preview.
func (f SelectedFile) IsImage() bool {
	return strings.HasPrefix(f.MediaType, "image/")
}

// IsPDF reports whether the file is rendered as an embedded document preview.
func (f SelectedFile) IsPDF() bool {
	return f.MediaType == mediaTypePDF
}

// Validator checks selected files against the upload policy.
type Validator struct {
	MaxBytes int64
}

// NewValidator returns a validator with the given byte limit. A non-positive
// limit selects DefaultMaxBytes.
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Validator{MaxBytes: maxBytes}
}

// Validate checks size and media type and returns the file with a normalised
// MediaType. The returned error is always a *ValidationError.
func (v *Validator) Validate(f SelectedFile) (SelectedFile, error) {
	if n := int64(len(f.Data)); n > f.Size {
		f.Size = n
	}
	if f.Size == 0 {
		return f, reject(f.Name, ErrEmptyFile, "The selected file is empty.")
	}
	if f.Size > v.MaxBytes {
		return f, reject(f.Name, ErrFileTooLarge,
			fmt.Sprintf("File size must be under %s", humanSize(v.MaxBytes)))
	}

	mediaType, ok := resolveMediaType(f.MediaType, f.Data)
	if !ok {
		return f, reject(f.Name, ErrUnsupportedType, "Only images and PDF files are supported.")
	}
	f.MediaType = mediaType
	return f, nil
}

// resolveMediaType trusts a specific declared type and sniffs the content
// when the declaration is empty or generic.
func resolveMediaType(declared string, data []byte) (string, bool) {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mt = ""
	}
	mt = strings.ToLower(mt)

	if mt == "" || mt == "application/octet-stream" {
		sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(data))
		mt = sniffed
	}
	if accepted(mt) {
		return mt, true
	}
	return mt, false
}

func accepted(mediaType string) bool {
	return mediaType == mediaTypePDF || strings.HasPrefix(mediaType, "image/")
}

// imageSize reads pixel dimensions from the image header. Unknown formats
// report zero.
func imageSize(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func humanSize(n int64) string {
	const mb = 1 << 20
	if n >= mb && n%mb == 0 {
		return fmt.Sprintf("%dMB", n/mb)
	}
	if n >= mb {
		return fmt.Sprintf("%.1fMB", float64(n)/mb)
	}
	return fmt.Sprintf("%dKB", (n+1023)/1024)
}
