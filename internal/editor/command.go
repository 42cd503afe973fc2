package editor

// Command names accepted by Apply.
const (
	CmdBold       = "bold"
	CmdItalic     = "italic"
	CmdUnderline  = "underline"
	CmdStrike     = "strike"
	CmdCode       = "code"
	CmdParagraph  = "paragraph"
	CmdHeading    = "heading"
	CmdAlign      = "align"
	CmdBlockquote = "blockquote"
	CmdCodeBlock  = "codeBlock"
	CmdColor      = "color"
	CmdUnsetColor = "unsetColor"
	CmdLink       = "link"
	CmdUnlink     = "unlink"
	CmdInsert     = "insert"
	CmdDelete     = "delete"
	CmdUndo       = "undo"
	CmdRedo       = "redo"
)

// Command is a toolbar or keyboard action in wire form.
type Command struct {
	Name  string `json:"command"`
	From  int    `json:"from"`
	To    int    `json:"to"`
	Level int    `json:"level,omitempty"`
	Align string `json:"align,omitempty"`
	Color string `json:"color,omitempty"`
	Href  string `json:"href,omitempty"`
	Text  string `json:"text,omitempty"`
	Pos   int    `json:"pos,omitempty"`
}

// Selection returns the command's target range.
func (c Command) Selection() Selection {
	return Selection{From: c.From, To: c.To}
}

// Apply runs a command against the editor.
func (e *Editor) Apply(cmd Command) error {
	sel := cmd.Selection()
	if m, ok := ParseMark(cmd.Name); ok {
		e.ToggleMark(sel, m)
		return nil
	}

	switch cmd.Name {
	case CmdParagraph:
		e.SetParagraph(sel)
	case CmdHeading:
		return e.ToggleHeading(sel, cmd.Level)
	case CmdAlign:
		return e.SetTextAlign(sel, cmd.Align)
	case CmdBlockquote:
		e.ToggleBlockquote(sel)
	case CmdCodeBlock:
		e.ToggleCodeBlock(sel)
	case CmdColor:
		return e.SetColor(sel, cmd.Color)
	case CmdUnsetColor:
		e.UnsetColor(sel)
	case CmdLink:
		e.SetLink(sel, cmd.Href)
	case CmdUnlink:
		e.UnsetLink(sel)
	case CmdInsert:
		e.InsertText(cmd.Pos, cmd.Text)
	case CmdDelete:
		e.DeleteRange(sel)
	case CmdUndo:
		e.Undo()
	case CmdRedo:
		e.Redo()
	default:
		return commandError("Apply", ErrUnknownCommand, cmd.Name)
	}
	return nil
}
