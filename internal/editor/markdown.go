package editor

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// FromMarkdown renders Markdown to HTML and imports the result. Raw HTML in
// the source is not passed through.
func FromMarkdown(src string) (Document, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return Document{}, fmt.Errorf("render markdown: %w", err)
	}
	return ParseHTML(buf.String()), nil
}
