package editor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML renders the document with the browser editor's tags: p, h1-h4,
// blockquote, pre>code, strong, em, u, s, code, a and span[style=color].
func (d Document) HTML() string {
	var buf bytes.Buffer
	var quote *html.Node
	for _, b := range d.Blocks {
		n := renderBlock(b)
		if b.Quote {
			if quote == nil {
				quote = element(atom.Blockquote)
			}
			quote.AppendChild(n)
			continue
		}
		if quote != nil {
			render(&buf, quote)
			quote = nil
		}
		render(&buf, n)
	}
	if quote != nil {
		render(&buf, quote)
	}
	return buf.String()
}

func render(buf *bytes.Buffer, n *html.Node) {
	// Writes to a bytes.Buffer do not fail.
	_ = html.Render(buf, n)
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a, Attr: attrs}
}

var headingAtoms = [...]atom.Atom{atom.H1, atom.H2, atom.H3, atom.H4}

func renderBlock(b Block) *html.Node {
	if b.Kind == CodeBlock {
		pre := element(atom.Pre)
		code := element(atom.Code)
		if text := b.Text(); text != "" {
			code.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		}
		pre.AppendChild(code)
		return pre
	}

	var n *html.Node
	if b.Kind == Heading {
		n = element(headingAtoms[clampLevel(b.Level)-1])
	} else {
		n = element(atom.P)
	}
	if a := b.Align.Effective(); a != AlignLeft {
		n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: "text-align: " + string(a)})
	}
	for _, s := range b.Spans {
		n.AppendChild(renderSpan(s))
	}
	return n
}

func renderSpan(s Span) *html.Node {
	n := &html.Node{Type: html.TextNode, Data: s.Text}
	wrap := func(el *html.Node) {
		el.AppendChild(n)
		n = el
	}
	m := s.Marks
	if m.Code {
		wrap(element(atom.Code))
	}
	if m.Strike {
		wrap(element(atom.S))
	}
	if m.Underline {
		wrap(element(atom.U))
	}
	if m.Italic {
		wrap(element(atom.Em))
	}
	if m.Bold {
		wrap(element(atom.Strong))
	}
	if m.Color != "" {
		wrap(element(atom.Span, html.Attribute{Key: "style", Val: "color: " + m.Color}))
	}
	if m.Href != "" {
		wrap(element(atom.A,
			html.Attribute{Key: "href", Val: m.Href},
			html.Attribute{Key: "target", Val: "_blank"},
			html.Attribute{Key: "rel", Val: "noopener noreferrer nofollow"},
		))
	}
	return n
}

// ParseHTML imports an HTML fragment. Unknown elements contribute their text;
// h5 and h6 become level 4 headings; br starts a new block.
func ParseHTML(src string) Document {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(src), ctx)
	if err != nil {
		return FromText(src)
	}

	p := &htmlParser{}
	for _, n := range nodes {
		p.walk(n, Marks{})
	}
	p.close()

	if len(p.blocks) == 0 {
		return NewDocument()
	}
	return Document{Blocks: p.blocks}.normalize()
}

type htmlParser struct {
	blocks []Block
	cur    *Block
	soft   bool // cur came from a container or a line break; dropped if it stays empty
	quote  int
	pre    bool
}

func (p *htmlParser) open(b Block, soft bool) {
	p.close()
	b.Quote = p.quote > 0
	p.cur = &b
	p.soft = soft
}

func (p *htmlParser) close() {
	if p.cur == nil {
		return
	}
	b := *p.cur
	p.cur = nil
	if p.soft && len(b.Spans) == 0 {
		return
	}
	if b.Kind == CodeBlock {
		if n := len(b.Spans); n > 0 {
			b.Spans[n-1].Text = strings.TrimSuffix(b.Spans[n-1].Text, "\n")
		}
	} else {
		for len(b.Spans) > 0 {
			last := &b.Spans[len(b.Spans)-1]
			last.Text = strings.TrimRight(last.Text, " ")
			if last.Text != "" {
				break
			}
			b.Spans = b.Spans[:len(b.Spans)-1]
		}
	}
	p.blocks = append(p.blocks, b)
}

func (p *htmlParser) text(s string, m Marks) {
	if !p.pre {
		s = collapseSpace(s)
		if p.cur == nil && strings.TrimSpace(s) == "" {
			return
		}
	}
	if p.cur == nil {
		p.open(Block{Kind: Paragraph}, false)
	}
	if !p.pre && p.endsWithSpace() {
		s = strings.TrimLeft(s, " ")
	}
	if s == "" {
		return
	}
	if p.cur.Kind == CodeBlock {
		m = Marks{}
	}
	p.cur.Spans = append(p.cur.Spans, Span{Text: s, Marks: m})
}

// endsWithSpace reports whether the open block is empty or ends in a space,
// so that a following leading space collapses.
func (p *htmlParser) endsWithSpace() bool {
	for i := len(p.cur.Spans) - 1; i >= 0; i-- {
		if t := p.cur.Spans[i].Text; t != "" {
			return strings.HasSuffix(t, " ")
		}
	}
	return true
}

func (p *htmlParser) walk(n *html.Node, m Marks) {
	switch n.Type {
	case html.TextNode:
		p.text(n.Data, m)
		return
	case html.ElementNode:
	default:
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Head, atom.Title, atom.Img, atom.Hr:
		return
	case atom.P, atom.Div, atom.Li, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		if p.pre {
			break
		}
		b := Block{Kind: Paragraph, Align: alignOf(n)}
		if level := headingLevel(n.DataAtom); level > 0 {
			b.Kind, b.Level = Heading, level
		}
		p.open(b, n.DataAtom == atom.Div || n.DataAtom == atom.Li)
		p.children(n, m)
		p.close()
		return
	case atom.Pre:
		p.open(Block{Kind: CodeBlock}, false)
		p.pre = true
		p.children(n, Marks{})
		p.pre = false
		p.close()
		return
	case atom.Blockquote:
		p.close()
		p.quote++
		p.children(n, m)
		p.close()
		p.quote--
		return
	case atom.Br:
		if p.pre {
			p.text("\n", m)
		} else if p.cur != nil {
			p.open(p.cur.attrs(), true)
		}
		return
	case atom.Strong, atom.B:
		m.Bold = true
	case atom.Em, atom.I:
		m.Italic = true
	case atom.U, atom.Ins:
		m.Underline = true
	case atom.S, atom.Del, atom.Strike:
		m.Strike = true
	case atom.Code:
		if !p.pre {
			m.Code = true
		}
	case atom.A:
		if href, ok := SafeHref(attr(n, "href")); ok {
			m.Href = href
		}
	case atom.Font:
		if c, ok := parseColor(attr(n, "color")); ok {
			m.Color = c
		}
	}
	if c, ok := parseColor(styleProp(n, "color")); ok {
		m.Color = c
	}
	p.children(n, m)
}

func (p *htmlParser) children(n *html.Node, m Marks) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, m)
	}
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4, atom.H5, atom.H6:
		return 4
	}
	return 0
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func styleProp(n *html.Node, prop string) string {
	for _, decl := range strings.Split(attr(n, "style"), ";") {
		k, v, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), prop) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func alignOf(n *html.Node) Align {
	a, _ := ParseAlign(styleProp(n, "text-align"))
	if a == "" {
		a, _ = ParseAlign(attr(n, "align"))
	}
	return a
}

// parseColor accepts #rgb, #rrggbb and rgb(r, g, b) and returns #rrggbb.
func parseColor(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "", false
	}
	if strings.HasPrefix(v, "rgb(") {
		var r, g, b int
		compact := strings.ReplaceAll(v, " ", "")
		if _, err := fmt.Sscanf(compact, "rgb(%d,%d,%d)", &r, &g, &b); err != nil {
			return "", false
		}
		c := colorful.Color{R: channel(r), G: channel(g), B: channel(b)}
		return c.Hex(), true
	}
	if !strings.HasPrefix(v, "#") {
		v = "#" + v
	}
	if len(v) != 4 && len(v) != 7 {
		return "", false
	}
	c, err := colorful.Hex(v)
	if err != nil {
		return "", false
	}
	return c.Hex(), true
}

func channel(n int) float64 {
	return float64(min(max(n, 0), 255)) / 255
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
