package editor

import (
	"slices"
	"strconv"
)

// FormatState lists the formatting attributes active over a selection, e.g.
// "bold", "heading:2", "align:center", "link", "color:#ff0000".
type FormatState []string

// Has reports whether the attribute is active.
func (s FormatState) Has(attr string) bool {
	return slices.Contains(s, attr)
}

// Active reports which toolbar states are active for sel. Inline marks are
// active when every selected rune carries them; on a cursor the stored marks
// (or the marks at the cursor) decide. Block attributes are active when every
// touched block shares them.
func (e *Editor) Active(sel Selection) FormatState {
	sel = sel.clamp(e.doc.Len())
	f := e.doc.flatten()

	state := FormatState(e.selectionMarks(f, sel))

	blocks := e.doc.Blocks[e.doc.blockAt(sel.From) : e.doc.blockAt(sel.To)+1]
	first := blocks[0]
	sameKind, sameLevel, quoted := true, true, true
	align, sameAlign := first.Align.Effective(), first.Kind != CodeBlock
	for _, b := range blocks {
		sameKind = sameKind && b.Kind == first.Kind
		sameLevel = sameLevel && b.Level == first.Level
		quoted = quoted && b.Quote
		if b.Kind == CodeBlock || b.Align.Effective() != align {
			sameAlign = false
		}
	}
	if sameKind {
		switch first.Kind {
		case Heading:
			if sameLevel {
				state = append(state, "heading:"+strconv.Itoa(first.Level))
			}
		default:
			state = append(state, first.Kind.String())
		}
	}
	if quoted {
		state = append(state, "blockquote")
	}
	if sameAlign {
		state = append(state, "align:"+string(align))
	}
	return state
}

func (e *Editor) selectionMarks(f flat, sel Selection) []string {
	var out []string
	if sel.Empty() {
		m := f.marksAt(sel.From)
		if e.stored != nil {
			m = *e.stored
		}
		for k := Bold; k <= Code; k++ {
			if m.Has(k) {
				out = append(out, k.String())
			}
		}
		if m.Href != "" {
			out = append(out, "link")
		}
		if m.Color != "" {
			out = append(out, "color:"+m.Color)
		}
		return out
	}

	idx := f.chars(sel.From, sel.To)
	if len(idx) == 0 {
		return nil
	}
	for k := Bold; k <= Code; k++ {
		all := true
		for _, i := range idx {
			if !f.cells[i].marks.Has(k) {
				all = false
				break
			}
		}
		if all {
			out = append(out, k.String())
		}
	}

	linked, color := true, f.cells[idx[0]].marks.Color
	for _, i := range idx {
		m := f.cells[i].marks
		linked = linked && m.Href != ""
		if m.Color != color {
			color = ""
		}
	}
	if linked {
		out = append(out, "link")
	}
	if color != "" {
		out = append(out, "color:"+color)
	}
	return out
}
