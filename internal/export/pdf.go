package export

import (
	"bytes"
	"strings"

	"codeberg.org/go-pdf/fpdf"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/encoding/charmap"

	"ocrdesk/internal/editor"
)

const (
	pointsPerMM = 72 / 25.4

	defaultFontSize = 11.0
	defaultMarginMM = 25.4

	lineSpacing  = 1.4
	quoteIndent  = 18.0
	blockSpacing = 0.5

	fontBody = "Helvetica"
	fontCode = "Courier"
)

var headingScale = [...]float64{2.0, 1.5, 1.25, 1.1}

func init() {
	// Page counting must not create a pdfcpu config directory in $HOME.
	api.DisableConfigDir()
}

// PDFOptions controls PDF rendering.
type PDFOptions struct {
	// FontSize is the body font size in points.
	FontSize float64

	// MarginMM is the page margin on every side.
	MarginMM float64

	// Plain renders wrapped plain text only, without formatting.
	Plain bool

	// Title is stored in the document metadata.
	Title string
}

func (o PDFOptions) withDefaults() PDFOptions {
	if o.FontSize <= 0 {
		o.FontSize = defaultFontSize
	}
	if o.MarginMM <= 0 {
		o.MarginMM = defaultMarginMM
	}
	return o
}

// PDF renders doc as a paginated A4 document.
func PDF(doc editor.Document, original string, opts PDFOptions) (*Artifact, error) {
	const op = "PDF"

	if doc.IsEmpty() {
		return nil, ErrNothingToExport
	}
	opts = opts.withDefaults()

	pdf := fpdf.New("P", "pt", "A4", "")
	margin := opts.MarginMM * pointsPerMM
	pdf.SetMargins(margin, margin, margin)
	pdf.SetCellMargin(0)
	pdf.SetCreator("ocrdesk", true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}

	if opts.Plain {
		renderPlain(pdf, doc, opts, margin)
	} else {
		pdf.SetAutoPageBreak(false, margin)
		r := &renderer{pdf: pdf, opts: opts, margin: margin}
		pdf.AddPage()
		r.pageW, r.pageH = pdf.GetPageSize()
		for _, b := range doc.Blocks {
			r.block(b)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &ExportError{Op: op, Err: err, Details: "render PDF"}
	}

	pages, err := pageCount(buf.Bytes())
	if err != nil {
		return nil, &ExportError{Op: op, Err: err, Details: "read back page count"}
	}

	return &Artifact{
		Name:        Filename(original, Suffix, "pdf"),
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
		Pages:       pages,
	}, nil
}

func pageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}

func renderPlain(pdf *fpdf.Fpdf, doc editor.Document, opts PDFOptions, margin float64) {
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()
	pdf.SetFont(fontBody, "", opts.FontSize)
	pdf.MultiCell(0, opts.FontSize*lineSpacing, encode(doc.Text()), "", "L", false)
}

// encode converts UTF-8 to the Windows-1252 encoding of the core fonts.
// Runes outside it become '?'.
func encode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// frag is a measured run of text drawn in one style. Spaces are separate
// frags so justified lines can stretch them.
type frag struct {
	text  string
	marks editor.Marks
	space bool
	w     float64
}

type line struct {
	frags []frag
	w     float64
	last  bool
}

type renderer struct {
	pdf    *fpdf.Fpdf
	opts   PDFOptions
	margin float64
	pageW  float64
	pageH  float64
}

func (r *renderer) block(b editor.Block) {
	size := r.opts.FontSize
	if b.Kind == editor.Heading {
		size *= headingScale[min(max(b.Level, 1), len(headingScale))-1]
	}
	lh := size * lineSpacing

	indent := 0.0
	if b.Quote {
		indent = quoteIndent
	}
	left := r.margin + indent
	width := r.pageW - r.margin - left

	var lines []line
	if b.Kind == editor.CodeBlock {
		lines = r.codeLines(b, size, width)
	} else {
		lines = r.wrap(r.frags(b, size), width, size, b)
	}
	if len(lines) == 0 {
		lines = []line{{last: true}}
	}

	for _, ln := range lines {
		r.ensure(lh)
		y := r.pdf.GetY()
		if b.Kind == editor.CodeBlock {
			r.pdf.SetFillColor(240, 240, 240)
			r.pdf.Rect(left, y, width, lh, "F")
		}
		if b.Quote {
			r.pdf.SetDrawColor(180, 180, 180)
			r.pdf.SetLineWidth(2)
			r.pdf.Line(r.margin+4, y, r.margin+4, y+lh)
		}
		r.drawLine(ln, b, left, y, width, lh, size)
		r.pdf.SetXY(r.margin, y+lh)
	}
	r.pdf.SetY(r.pdf.GetY() + lh*blockSpacing)
}

// ensure starts a new page when h does not fit above the bottom margin.
func (r *renderer) ensure(h float64) {
	if r.pdf.GetY()+h > r.pageH-r.margin {
		r.pdf.AddPage()
		r.pdf.SetXY(r.margin, r.margin)
	}
}

func (r *renderer) setStyle(m editor.Marks, b editor.Block, size float64) {
	family := fontBody
	if m.Code || b.Kind == editor.CodeBlock {
		family = fontCode
	}
	var style strings.Builder
	if m.Bold || b.Kind == editor.Heading {
		style.WriteByte('B')
	}
	if m.Italic || b.Quote {
		style.WriteByte('I')
	}
	if m.Underline || m.Href != "" {
		style.WriteByte('U')
	}
	if m.Strike {
		style.WriteByte('S')
	}
	r.pdf.SetFont(family, style.String(), size)

	switch {
	case m.Color != "":
		if c, err := colorful.Hex(m.Color); err == nil {
			cr, cg, cb := c.RGB255()
			r.pdf.SetTextColor(int(cr), int(cg), int(cb))
			return
		}
		r.pdf.SetTextColor(0, 0, 0)
	case m.Href != "":
		r.pdf.SetTextColor(37, 99, 235)
	default:
		r.pdf.SetTextColor(0, 0, 0)
	}
}

func (r *renderer) measure(text string, m editor.Marks, b editor.Block, size float64) float64 {
	r.setStyle(m, b, size)
	return r.pdf.GetStringWidth(text)
}

// frags splits the block's spans at spaces and measures each piece.
func (r *renderer) frags(b editor.Block, size float64) []frag {
	var out []frag
	for _, s := range b.Spans {
		text := encode(s.Text)
		start := 0
		for i := 0; i <= len(text); i++ {
			if i < len(text) && text[i] != ' ' {
				continue
			}
			if i > start {
				piece := text[start:i]
				out = append(out, frag{text: piece, marks: s.Marks, w: r.measure(piece, s.Marks, b, size)})
			}
			if i < len(text) {
				out = append(out, frag{text: " ", marks: s.Marks, space: true, w: r.measure(" ", s.Marks, b, size)})
			}
			start = i + 1
		}
	}
	return out
}

// wrap breaks frags into lines that fit width. Words longer than a line are
// split between characters.
func (r *renderer) wrap(frags []frag, width, size float64, b editor.Block) []line {
	var lines []line
	var cur line
	var pending []frag // spaces waiting for the next word

	flush := func() {
		lines = append(lines, cur)
		cur = line{}
	}

	for i := 0; i < len(frags); {
		if frags[i].space {
			if len(cur.frags) > 0 {
				pending = append(pending, frags[i])
			}
			i++
			continue
		}

		j := i
		wordW := 0.0
		for j < len(frags) && !frags[j].space {
			wordW += frags[j].w
			j++
		}
		word := frags[i:j]
		i = j

		spaceW := 0.0
		for _, p := range pending {
			spaceW += p.w
		}

		switch {
		case len(cur.frags) == 0 && wordW > width:
			for _, piece := range r.splitWord(word, width, size, b) {
				if len(cur.frags) > 0 {
					flush()
				}
				cur.frags = append(cur.frags, piece...)
				cur.w = sumWidth(piece)
			}
		case len(cur.frags) == 0:
			cur.frags = append(cur.frags, word...)
			cur.w = wordW
		case cur.w+spaceW+wordW <= width:
			cur.frags = append(cur.frags, pending...)
			cur.frags = append(cur.frags, word...)
			cur.w += spaceW + wordW
		default:
			flush()
			if wordW > width {
				for k, piece := range r.splitWord(word, width, size, b) {
					if k > 0 {
						flush()
					}
					cur.frags = append(cur.frags, piece...)
					cur.w = sumWidth(piece)
				}
			} else {
				cur.frags = append(cur.frags, word...)
				cur.w = wordW
			}
		}
		pending = pending[:0]
	}
	if len(cur.frags) > 0 || len(lines) == 0 {
		flush()
	}
	lines[len(lines)-1].last = true
	return lines
}

// splitWord cuts a word into line-sized pieces, character by character.
func (r *renderer) splitWord(word []frag, width, size float64, b editor.Block) [][]frag {
	var pieces [][]frag
	var cur []frag
	curW := 0.0
	for _, f := range word {
		for i := 0; i < len(f.text); i++ {
			ch := f.text[i : i+1]
			w := r.measure(ch, f.marks, b, size)
			if curW+w > width && curW > 0 {
				pieces = append(pieces, cur)
				cur, curW = nil, 0
			}
			if n := len(cur); n > 0 && cur[n-1].marks == f.marks {
				cur[n-1].text += ch
				cur[n-1].w += w
			} else {
				cur = append(cur, frag{text: ch, marks: f.marks, w: w})
			}
			curW += w
		}
	}
	if len(cur) > 0 {
		pieces = append(pieces, cur)
	}
	return pieces
}

func sumWidth(frags []frag) float64 {
	w := 0.0
	for _, f := range frags {
		w += f.w
	}
	return w
}

// codeLines keeps the block's own line breaks and splits overlong lines.
func (r *renderer) codeLines(b editor.Block, size, width float64) []line {
	var lines []line
	for _, text := range strings.Split(b.Text(), "\n") {
		text = encode(strings.ReplaceAll(text, "\t", "    "))
		if text == "" {
			lines = append(lines, line{})
			continue
		}
		word := []frag{{text: text, w: r.measure(text, editor.Marks{}, b, size)}}
		for _, piece := range r.splitWord(word, width, size, b) {
			lines = append(lines, line{frags: piece, w: sumWidth(piece)})
		}
	}
	if len(lines) > 0 {
		lines[len(lines)-1].last = true
	}
	return lines
}

func (r *renderer) drawLine(ln line, b editor.Block, left, y, width, lh, size float64) {
	x := left
	extra := 0.0
	switch b.Align.Effective() {
	case editor.AlignCenter:
		x += (width - ln.w) / 2
	case editor.AlignRight:
		x += width - ln.w
	case editor.AlignJustify:
		if spaces := countSpaces(ln.frags); !ln.last && spaces > 0 {
			extra = (width - ln.w) / float64(spaces)
		}
	}

	r.pdf.SetXY(x, y)
	for _, f := range ln.frags {
		w := f.w
		if f.space {
			w += extra
		}
		r.setStyle(f.marks, b, size)
		fill := f.marks.Code && b.Kind != editor.CodeBlock
		if fill {
			r.pdf.SetFillColor(235, 235, 235)
		}
		r.pdf.CellFormat(w, lh, f.text, "", 0, "L", fill, 0, f.marks.Href)
	}
}

func countSpaces(frags []frag) int {
	n := 0
	for _, f := range frags {
		if f.space {
			n++
		}
	}
	return n
}
