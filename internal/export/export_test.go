package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"ocrdesk/internal/editor"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		original, ext, want string
	}{
		{"scan.png", "pdf", "scan_edited.pdf"},
		{"report.final.pdf", "txt", "report.final_edited.txt"},
		{"noext", "txt", "noext_edited.txt"},
		{"", "pdf", "ocr_edited.pdf"},
		{".png", "txt", "ocr_edited.txt"},
		{`C:\Users\me\photo.jpg`, "pdf", "photo_edited.pdf"},
	}
	for _, tt := range tests {
		if got := Filename(tt.original, Suffix, tt.ext); got != tt.want {
			t.Errorf("Filename(%q, %q) = %q, want %q", tt.original, tt.ext, got, tt.want)
		}
	}
}

func TestTextExport(t *testing.T) {
	art, err := Text(editor.FromText("Sample"), "page.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if string(art.Data) != "Sample" {
		t.Fatalf("data = %q", art.Data)
	}
	if art.Name != "page_edited.txt" {
		t.Fatalf("name = %q", art.Name)
	}
	if !strings.HasPrefix(art.ContentType, "text/plain") {
		t.Fatalf("content type = %q", art.ContentType)
	}
}

func TestEmptyContentIsNotExported(t *testing.T) {
	for _, doc := range []editor.Document{editor.NewDocument(), editor.FromText("  \n\t")} {
		if _, err := Text(doc, "a.png"); !errors.Is(err, ErrNothingToExport) {
			t.Fatalf("Text error = %v, want ErrNothingToExport", err)
		}
		if _, err := PDF(doc, "a.png", PDFOptions{}); !errors.Is(err, ErrNothingToExport) {
			t.Fatalf("PDF error = %v, want ErrNothingToExport", err)
		}
	}
}

func TestPDFExport(t *testing.T) {
	doc := editor.ParseHTML(`<h1>Invoice</h1>` +
		`<p style="text-align: justify">Some <strong>bold</strong>, <em>italic</em>, <u>underlined</u> and <s>struck</s> words with a ` +
		`<a href="https://example.com">link</a> and <span style="color: #cc0000">colour</span>. Grüße €</p>` +
		`<blockquote><p>Quoted line</p></blockquote>` +
		`<pre><code>func main() {}</code></pre>` +
		`<p style="text-align: center">centred <code>inline</code></p>`)

	art, err := PDF(doc, "invoice.png", PDFOptions{})
	if err != nil {
		t.Fatalf("PDF() error = %v", err)
	}
	if !bytes.HasPrefix(art.Data, []byte("%PDF-")) {
		t.Fatal("output is not a PDF")
	}
	if art.Pages < 1 {
		t.Fatalf("pages = %d", art.Pages)
	}
	if art.Name != "invoice_edited.pdf" || art.ContentType != "application/pdf" {
		t.Fatalf("artifact = %s %s", art.Name, art.ContentType)
	}
}

func TestPDFLongContentPaginates(t *testing.T) {
	short, err := PDF(editor.FromText("One line"), "", PDFOptions{})
	if err != nil {
		t.Fatal(err)
	}

	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, "A reasonably long line of recognised text that keeps going past the margin "+strings.Repeat("x", 120))
	}
	long, err := PDF(editor.FromText(strings.Join(lines, "\n")), "", PDFOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if long.Pages <= short.Pages {
		t.Fatalf("long content has %d pages, short has %d", long.Pages, short.Pages)
	}
}

func TestPDFPlain(t *testing.T) {
	art, err := PDF(editor.FromText("Sample\nsecond line"), "s.jpg", PDFOptions{Plain: true, FontSize: 12, MarginMM: 20})
	if err != nil {
		t.Fatal(err)
	}
	if art.Pages != 1 {
		t.Fatalf("pages = %d, want 1", art.Pages)
	}
}

func TestEncodeReplacesUnsupportedRunes(t *testing.T) {
	if got := encode("a€b✓"); got != "a\x80b?" {
		t.Fatalf("encode = %q", got)
	}
}
