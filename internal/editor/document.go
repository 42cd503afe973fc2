// Package editor implements the rich-text model behind the OCR result editor.
//
// A Document is a list of blocks (paragraphs, headings up to level 4 and code
// blocks), each carrying inline spans with marks. Positions used by commands
// are rune offsets into Document.Text, where blocks are joined by a single
// "\n". The HTML form uses the same tags as the browser editor so content can
// be bound in both directions.
package editor

import (
	"strings"
	"unicode/utf8"
)

// BlockKind is the node type of a block.
type BlockKind int

const (
	Paragraph BlockKind = iota
	Heading
	CodeBlock
)

func (k BlockKind) String() string {
	switch k {
	case Heading:
		return "heading"
	case CodeBlock:
		return "codeBlock"
	default:
		return "paragraph"
	}
}

// MaxHeadingLevel is the deepest heading offered by the toolbar.
const MaxHeadingLevel = 4

// Align is a block text alignment. The zero value is left aligned.
type Align string

const (
	AlignLeft    Align = "left"
	AlignCenter  Align = "center"
	AlignRight   Align = "right"
	AlignJustify Align = "justify"
)

// ParseAlign validates an alignment name.
func ParseAlign(s string) (Align, bool) {
	switch a := Align(strings.ToLower(strings.TrimSpace(s))); a {
	case AlignLeft, AlignCenter, AlignRight, AlignJustify:
		return a, true
	}
	return "", false
}

// Effective returns the alignment with the default filled in.
func (a Align) Effective() Align {
	if a == "" {
		return AlignLeft
	}
	return a
}

// Mark is an inline toggle mark.
type Mark int

const (
	Bold Mark = iota
	Italic
	Underline
	Strike
	Code
)

var markNames = [...]string{"bold", "italic", "underline", "strike", "code"}

func (m Mark) String() string {
	if int(m) < len(markNames) {
		return markNames[m]
	}
	return "unknown"
}

// ParseMark maps a toolbar name to a Mark.
func ParseMark(s string) (Mark, bool) {
	for i, name := range markNames {
		if strings.EqualFold(s, name) {
			return Mark(i), true
		}
	}
	return 0, false
}

// Marks is the full inline formatting of a run of text.
type Marks struct {
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	Underline bool   `json:"underline,omitempty"`
	Strike    bool   `json:"strike,omitempty"`
	Code      bool   `json:"code,omitempty"`
	Href      string `json:"href,omitempty"`
	Color     string `json:"color,omitempty"`
}

// Has reports whether the toggle mark is set.
func (m Marks) Has(k Mark) bool {
	switch k {
	case Bold:
		return m.Bold
	case Italic:
		return m.Italic
	case Underline:
		return m.Underline
	case Strike:
		return m.Strike
	case Code:
		return m.Code
	}
	return false
}

func (m *Marks) set(k Mark, on bool) {
	switch k {
	case Bold:
		m.Bold = on
	case Italic:
		m.Italic = on
	case Underline:
		m.Underline = on
	case Strike:
		m.Strike = on
	case Code:
		m.Code = on
	}
}

// Span is a run of text sharing the same marks.
type Span struct {
	Text  string `json:"text"`
	Marks Marks  `json:"marks"`
}

// Block is one top-level node of the document.
type Block struct {
	Kind  BlockKind `json:"kind"`
	Level int       `json:"level,omitempty"`
	Align Align     `json:"align,omitempty"`
	Quote bool      `json:"quote,omitempty"`
	Spans []Span    `json:"spans,omitempty"`
}

// Text returns the block's plain text.
func (b Block) Text() string {
	var sb strings.Builder
	for _, s := range b.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Len returns the block length in runes.
func (b Block) Len() int {
	n := 0
	for _, s := range b.Spans {
		n += utf8.RuneCountInString(s.Text)
	}
	return n
}

func (b Block) attrs() Block {
	b.Spans = nil
	return b
}

// Document is the editable content. The zero value is not valid; use
// NewDocument or one of the constructors.
type Document struct {
	Blocks []Block `json:"blocks"`
}

// NewDocument returns a document holding one empty paragraph.
func NewDocument() Document {
	return Document{Blocks: []Block{{Kind: Paragraph}}}
}

// FromText builds a document with one paragraph per line.
func FromText(text string) Document {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	blocks := make([]Block, 0, len(lines))
	for _, line := range lines {
		b := Block{Kind: Paragraph}
		if line != "" {
			b.Spans = []Span{{Text: line}}
		}
		blocks = append(blocks, b)
	}
	return Document{Blocks: blocks}.normalize()
}

// Text returns the plain text with blocks separated by "\n".
func (d Document) Text() string {
	parts := make([]string, len(d.Blocks))
	for i, b := range d.Blocks {
		parts[i] = b.Text()
	}
	return strings.Join(parts, "\n")
}

// Len returns the length of Text in runes.
func (d Document) Len() int {
	if len(d.Blocks) == 0 {
		return 0
	}
	n := len(d.Blocks) - 1
	for _, b := range d.Blocks {
		n += b.Len()
	}
	return n
}

// IsEmpty reports whether the document has no visible text.
func (d Document) IsEmpty() bool {
	return strings.TrimSpace(d.Text()) == ""
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := Document{Blocks: make([]Block, len(d.Blocks))}
	for i, b := range d.Blocks {
		out.Blocks[i] = b
		out.Blocks[i].Spans = append([]Span(nil), b.Spans...)
	}
	return out
}

// blockAt returns the index of the block containing pos. A position at the
// end of a block belongs to that block.
func (d Document) blockAt(pos int) int {
	start := 0
	for i, b := range d.Blocks {
		end := start + b.Len()
		if pos <= end {
			return i
		}
		start = end + 1
	}
	return len(d.Blocks) - 1
}

// normalize merges adjacent spans, drops empty ones and enforces the block
// invariants: at least one block, no marks inside code blocks and no line
// breaks outside them.
func (d Document) normalize() Document {
	return d.flatten().document()
}

// cell is one position of the flattened document: a rune, or the break that
// starts a new block.
type cell struct {
	r     rune
	marks Marks
	brk   bool
	attrs Block
}

// flat is the document as a single sequence whose indices are editor positions.
type flat struct {
	head  Block
	cells []cell
}

func (d Document) flatten() flat {
	f := flat{head: Block{Kind: Paragraph}}
	for i, b := range d.Blocks {
		if i == 0 {
			f.head = b.attrs()
		} else {
			f.cells = append(f.cells, cell{brk: true, attrs: b.attrs()})
		}
		for _, s := range b.Spans {
			for _, r := range s.Text {
				f.cells = append(f.cells, cell{r: r, marks: s.Marks})
			}
		}
	}
	return f
}

func (f flat) document() Document {
	cur := f.head
	var blocks []Block
	var sb strings.Builder
	var run Marks

	flush := func() {
		if sb.Len() > 0 {
			cur.Spans = append(cur.Spans, Span{Text: sb.String(), Marks: run})
			sb.Reset()
		}
	}

	for _, c := range f.cells {
		if c.brk {
			flush()
			blocks = append(blocks, cur)
			cur = c.attrs
			continue
		}
		r, m := c.r, c.marks
		if cur.Kind == CodeBlock {
			m = Marks{}
		} else if r == '\n' {
			r = ' '
		}
		if sb.Len() > 0 && m != run {
			flush()
		}
		run = m
		sb.WriteRune(r)
	}
	flush()
	blocks = append(blocks, cur)

	for i := range blocks {
		b := &blocks[i]
		if b.Kind != Heading {
			b.Level = 0
		} else if b.Level < 1 || b.Level > MaxHeadingLevel {
			b.Level = clampLevel(b.Level)
		}
		if b.Kind == CodeBlock {
			b.Align = ""
		}
		if b.Align == AlignLeft {
			b.Align = ""
		}
	}
	return Document{Blocks: blocks}
}

func clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > MaxHeadingLevel {
		return MaxHeadingLevel
	}
	return level
}

// attrsAt returns the attributes of the block containing position pos.
func (f flat) attrsAt(pos int) Block {
	attrs := f.head
	for i := 0; i < pos && i < len(f.cells); i++ {
		if f.cells[i].brk {
			attrs = f.cells[i].attrs
		}
	}
	return attrs
}

// chars returns the indices of formattable runes in [from, to): runes outside
// code blocks.
func (f flat) chars(from, to int) []int {
	var idx []int
	attrs := f.head
	for i := 0; i < to && i < len(f.cells); i++ {
		c := f.cells[i]
		if c.brk {
			attrs = c.attrs
			continue
		}
		if i >= from && attrs.Kind != CodeBlock {
			idx = append(idx, i)
		}
	}
	return idx
}

// marksAt returns the marks a cursor at pos picks up: the rune before it in
// the same block, else the rune after it.
func (f flat) marksAt(pos int) Marks {
	if pos > 0 && pos <= len(f.cells) && !f.cells[pos-1].brk {
		return f.cells[pos-1].marks
	}
	if pos < len(f.cells) && !f.cells[pos].brk {
		return f.cells[pos].marks
	}
	return Marks{}
}

// atBlockEnd reports whether pos is the last position of its block.
func (f flat) atBlockEnd(pos int) bool {
	return pos >= len(f.cells) || f.cells[pos].brk
}

// linkRange finds the extent of the link touching pos.
func (f flat) linkRange(pos int) (int, int, bool) {
	i := -1
	switch {
	case pos < len(f.cells) && !f.cells[pos].brk && f.cells[pos].marks.Href != "":
		i = pos
	case pos > 0 && pos <= len(f.cells) && !f.cells[pos-1].brk && f.cells[pos-1].marks.Href != "":
		i = pos - 1
	default:
		return 0, 0, false
	}
	href := f.cells[i].marks.Href
	from, to := i, i+1
	for from > 0 && !f.cells[from-1].brk && f.cells[from-1].marks.Href == href {
		from--
	}
	for to < len(f.cells) && !f.cells[to].brk && f.cells[to].marks.Href == href {
		to++
	}
	return from, to, true
}
