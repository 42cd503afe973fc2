package editor

import (
	"reflect"
	"strings"
)

// DefaultHistoryDepth bounds the undo stack when no depth is configured.
const DefaultHistoryDepth = 100

// Selection is a range of positions. From == To is a cursor.
type Selection struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Cursor returns an empty selection at pos.
func Cursor(pos int) Selection {
	return Selection{From: pos, To: pos}
}

// Empty reports whether the selection is a cursor.
func (s Selection) Empty() bool {
	return s.From == s.To
}

func (s Selection) clamp(n int) Selection {
	if s.From > s.To {
		s.From, s.To = s.To, s.From
	}
	s.From = min(max(s.From, 0), n)
	s.To = min(max(s.To, 0), n)
	return s
}

// Editor holds a Document with its undo history and the stored marks applied
// to the next insertion. An Editor is not safe for concurrent use.
type Editor struct {
	doc    Document
	stored *Marks
	undo   []Document
	redo   []Document
	depth  int
}

// New returns an editor with an empty document. A non-positive depth selects
// DefaultHistoryDepth.
func New(depth int) *Editor {
	if depth <= 0 {
		depth = DefaultHistoryDepth
	}
	return &Editor{doc: NewDocument(), depth: depth}
}

// Document returns a copy of the current content.
func (e *Editor) Document() Document {
	return e.doc.Clone()
}

// Text returns the plain text of the content.
func (e *Editor) Text() string {
	return e.doc.Text()
}

// HTML returns the content serialised as HTML.
func (e *Editor) HTML() string {
	return e.doc.HTML()
}

// IsEmpty reports whether the content has no visible text.
func (e *Editor) IsEmpty() bool {
	return e.doc.IsEmpty()
}

// Seed replaces the content and starts a fresh history.
func (e *Editor) Seed(doc Document) {
	e.doc = doc.normalize()
	e.stored = nil
	e.undo = nil
	e.redo = nil
}

// SeedText replaces the content with plain text, one paragraph per line.
func (e *Editor) SeedText(text string) {
	e.Seed(FromText(text))
}

// SeedMarkdown replaces the content with rendered Markdown.
func (e *Editor) SeedMarkdown(src string) error {
	doc, err := FromMarkdown(src)
	if err != nil {
		return err
	}
	e.Seed(doc)
	return nil
}

// Clear empties the content and the history.
func (e *Editor) Clear() {
	e.Seed(NewDocument())
}

// SetHTML replaces the content from the client as an undoable edit.
func (e *Editor) SetHTML(src string) {
	e.stored = nil
	e.commit(ParseHTML(src))
}

// SetText replaces the content with plain text as an undoable edit.
func (e *Editor) SetText(text string) {
	e.stored = nil
	e.commit(FromText(text))
}

// CanUndo reports whether Undo would change the content.
func (e *Editor) CanUndo() bool { return len(e.undo) > 0 }

// CanRedo reports whether Redo would change the content.
func (e *Editor) CanRedo() bool { return len(e.redo) > 0 }

// Undo restores the previous content.
func (e *Editor) Undo() bool {
	if len(e.undo) == 0 {
		return false
	}
	prev := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	e.redo = append(e.redo, e.doc)
	e.doc = prev
	e.stored = nil
	return true
}

// Redo reapplies the last undone edit.
func (e *Editor) Redo() bool {
	if len(e.redo) == 0 {
		return false
	}
	next := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]
	e.undo = append(e.undo, e.doc)
	e.doc = next
	e.stored = nil
	return true
}

// commit installs next as the current content. Edits that change nothing are
// not recorded.
func (e *Editor) commit(next Document) {
	if reflect.DeepEqual(next, e.doc) {
		return
	}
	e.undo = append(e.undo, e.doc)
	if over := len(e.undo) - e.depth; over > 0 {
		e.undo = append([]Document(nil), e.undo[over:]...)
	}
	e.redo = nil
	e.doc = next
}

func (e *Editor) editFlat(fn func(f *flat)) {
	f := e.doc.flatten()
	fn(&f)
	e.commit(f.document())
}

func (e *Editor) editBlocks(sel Selection, fn func(blocks []Block)) {
	sel = sel.clamp(e.doc.Len())
	next := e.doc.Clone()
	first, last := next.blockAt(sel.From), next.blockAt(sel.To)
	fn(next.Blocks[first : last+1])
	e.commit(next.normalize())
}

func (e *Editor) cursorMarks(pos int) Marks {
	if e.stored != nil {
		return *e.stored
	}
	m := e.doc.flatten().marksAt(pos)
	m.Href = ""
	return m
}

// ToggleMark adds the mark to every selected rune, or removes it when all of
// them already carry it. On a cursor it toggles the stored marks.
func (e *Editor) ToggleMark(sel Selection, mark Mark) {
	sel = sel.clamp(e.doc.Len())
	if sel.Empty() {
		m := e.cursorMarks(sel.From)
		m.set(mark, !m.Has(mark))
		e.stored = &m
		return
	}
	e.editFlat(func(f *flat) {
		idx := f.chars(sel.From, sel.To)
		all := len(idx) > 0
		for _, i := range idx {
			if !f.cells[i].marks.Has(mark) {
				all = false
				break
			}
		}
		for _, i := range idx {
			f.cells[i].marks.set(mark, !all)
		}
	})
}

// SetParagraph turns the selected blocks into paragraphs.
func (e *Editor) SetParagraph(sel Selection) {
	e.editBlocks(sel, func(blocks []Block) {
		for i := range blocks {
			blocks[i].Kind = Paragraph
			blocks[i].Level = 0
		}
	})
}

// ToggleHeading makes the selected blocks headings of the given level, or
// paragraphs when they already are.
func (e *Editor) ToggleHeading(sel Selection, level int) error {
	if level < 1 || level > MaxHeadingLevel {
		return commandError("ToggleHeading", ErrInvalidLevel, "")
	}
	e.editBlocks(sel, func(blocks []Block) {
		all := true
		for _, b := range blocks {
			if b.Kind != Heading || b.Level != level {
				all = false
				break
			}
		}
		for i := range blocks {
			if all {
				blocks[i].Kind, blocks[i].Level = Paragraph, 0
			} else {
				blocks[i].Kind, blocks[i].Level = Heading, level
			}
		}
	})
	return nil
}

// SetTextAlign aligns the selected paragraphs and headings.
func (e *Editor) SetTextAlign(sel Selection, align string) error {
	a, ok := ParseAlign(align)
	if !ok {
		return commandError("SetTextAlign", ErrInvalidAlign, align)
	}
	e.editBlocks(sel, func(blocks []Block) {
		for i := range blocks {
			if blocks[i].Kind != CodeBlock {
				blocks[i].Align = a
			}
		}
	})
	return nil
}

// ToggleBlockquote wraps the selected blocks in a quote, or unwraps them when
// all are quoted.
func (e *Editor) ToggleBlockquote(sel Selection) {
	e.editBlocks(sel, func(blocks []Block) {
		all := true
		for _, b := range blocks {
			all = all && b.Quote
		}
		for i := range blocks {
			blocks[i].Quote = !all
		}
	})
}

// ToggleCodeBlock turns the selected blocks into code blocks, dropping their
// inline marks, or back into paragraphs.
func (e *Editor) ToggleCodeBlock(sel Selection) {
	e.editBlocks(sel, func(blocks []Block) {
		all := true
		for _, b := range blocks {
			all = all && b.Kind == CodeBlock
		}
		for i := range blocks {
			if all {
				blocks[i].Kind = Paragraph
			} else {
				blocks[i].Kind = CodeBlock
				blocks[i].Align = ""
			}
			blocks[i].Level = 0
		}
	})
}

// SetColor applies a text colour. The value is normalised to #rrggbb.
func (e *Editor) SetColor(sel Selection, value string) error {
	hex, ok := parseColor(value)
	if !ok {
		return commandError("SetColor", ErrInvalidColor, value)
	}
	e.setMarkValue(sel, func(m *Marks) { m.Color = hex })
	return nil
}

// UnsetColor removes the text colour.
func (e *Editor) UnsetColor(sel Selection) {
	e.setMarkValue(sel, func(m *Marks) { m.Color = "" })
}

func (e *Editor) setMarkValue(sel Selection, fn func(m *Marks)) {
	sel = sel.clamp(e.doc.Len())
	if sel.Empty() {
		m := e.cursorMarks(sel.From)
		fn(&m)
		e.stored = &m
		return
	}
	e.editFlat(func(f *flat) {
		for _, i := range f.chars(sel.From, sel.To) {
			fn(&f.cells[i].marks)
		}
	})
}

// SetLink links the selection to href. On a cursor inside a link the whole
// link is updated. An empty or unsafe href does nothing.
func (e *Editor) SetLink(sel Selection, href string) {
	href, ok := SafeHref(href)
	if !ok {
		return
	}
	sel = sel.clamp(e.doc.Len())
	if sel.Empty() {
		if from, to, ok := e.doc.flatten().linkRange(sel.From); ok {
			sel = Selection{From: from, To: to}
		} else {
			m := e.cursorMarks(sel.From)
			m.Href = href
			e.stored = &m
			return
		}
	}
	e.editFlat(func(f *flat) {
		for _, i := range f.chars(sel.From, sel.To) {
			f.cells[i].marks.Href = href
		}
	})
}

// UnsetLink removes links from the selection. On a cursor the whole link
// under it is removed.
func (e *Editor) UnsetLink(sel Selection) {
	sel = sel.clamp(e.doc.Len())
	if sel.Empty() {
		if e.stored != nil {
			e.stored.Href = ""
		}
		from, to, ok := e.doc.flatten().linkRange(sel.From)
		if !ok {
			return
		}
		sel = Selection{From: from, To: to}
	}
	e.editFlat(func(f *flat) {
		for _, i := range f.chars(sel.From, sel.To) {
			f.cells[i].marks.Href = ""
		}
	})
}

// InsertText inserts text at pos. A newline splits the block, except inside
// code blocks where it is kept as text.
func (e *Editor) InsertText(pos int, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return
	}
	pos = Cursor(pos).clamp(e.doc.Len()).From

	e.editFlat(func(f *flat) {
		marks := e.insertMarks(*f, pos)
		attrs := f.attrsAt(pos)

		ins := make([]cell, 0, len(text))
		for _, r := range text {
			if r == '\n' && attrs.Kind != CodeBlock {
				next := attrs
				if attrs.Kind == Heading && f.atBlockEnd(pos) {
					next.Kind, next.Level = Paragraph, 0
				}
				ins = append(ins, cell{brk: true, attrs: next})
				attrs = next
				continue
			}
			c := cell{r: r}
			if attrs.Kind != CodeBlock {
				c.marks = marks
			}
			ins = append(ins, c)
		}
		f.cells = append(f.cells[:pos], append(ins, f.cells[pos:]...)...)
	})
	e.stored = nil
}

// insertMarks returns the marks inherited by inserted text. Links extend only
// when the insertion point is inside them.
func (e *Editor) insertMarks(f flat, pos int) Marks {
	if e.stored != nil {
		return *e.stored
	}
	m := f.marksAt(pos)
	if m.Href != "" {
		if from, to, ok := f.linkRange(pos); !ok || pos == from || pos == to {
			m.Href = ""
		}
	}
	return m
}

// DeleteRange removes the selected text, merging blocks across removed breaks.
func (e *Editor) DeleteRange(sel Selection) {
	sel = sel.clamp(e.doc.Len())
	if sel.Empty() {
		return
	}
	e.editFlat(func(f *flat) {
		f.cells = append(f.cells[:sel.From], f.cells[sel.To:]...)
	})
	e.stored = nil
}
