package workflow

import "ocrdesk/internal/intake"

// FileInfo describes the selected file without its bytes.
type FileInfo struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
	Source    string `json:"source"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	File          *FileInfo             `json:"file,omitempty"`
	Preview       *intake.PreviewHandle `json:"preview,omitempty"`
	Loading       bool                  `json:"loading"`
	HasResult     bool                  `json:"has_result"`
	Confidence    string                `json:"confidence,omitempty"`
	DebugImageURL string                `json:"debug_image_url,omitempty"`
	HTML          string                `json:"html"`
	Text          string                `json:"text"`
	CanUndo       bool                  `json:"can_undo"`
	CanRedo       bool                  `json:"can_redo"`
	CanExport     bool                  `json:"can_export"`
	LinkInput     LinkInput             `json:"link_input"`
	PickerEpoch   uint64                `json:"picker_epoch"`
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Loading:     c.loading,
		HTML:        c.editor.HTML(),
		Text:        c.editor.Text(),
		CanUndo:     c.editor.CanUndo(),
		CanRedo:     c.editor.CanRedo(),
		CanExport:   !c.loading && !c.editor.IsEmpty(),
		LinkInput:   c.link,
		PickerEpoch: c.pickerEpoch,
	}
	if c.file != nil {
		s.File = &FileInfo{
			Name:      c.file.Name,
			MediaType: c.file.MediaType,
			Size:      c.file.Size,
			Source:    string(c.file.Source),
		}
	}
	if c.preview != nil {
		h := *c.preview
		s.Preview = &h
	}
	if c.result != nil {
		s.HasResult = true
		s.Confidence = c.result.ConfidenceLabel()
		s.DebugImageURL = c.result.DebugImageURL
	}
	return s
}
