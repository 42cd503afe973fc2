// Package workflow drives one upload, convert, edit and export session.
//
// A Controller owns the selected file, its preview, the OCR result and the
// editable content. All methods are safe for concurrent use; the OCR request
// runs without holding the lock and a generation counter discards responses
// that arrive after the file was replaced or the session was reset.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ocrdesk/internal/config"
	"ocrdesk/internal/editor"
	"ocrdesk/internal/export"
	"ocrdesk/internal/intake"
	"ocrdesk/internal/logger"
	"ocrdesk/internal/ocr"
)

// Editor placeholders shown while converting and after a failure.
const (
	PlaceholderProcessing = "Processing..."
	PlaceholderError      = "Error processing file."
)

// User-facing notice texts.
const (
	msgNoFile           = "Please select a file."
	msgConversionFailed = "OCR failed. Is the OCR service running?"
)

var (
	// ErrNoFile is returned by Convert when no file is selected.
	ErrNoFile = errors.New("no file selected")

	// ErrBusy is returned by Convert and the exports while a conversion is in flight.
	ErrBusy = errors.New("conversion already in progress")

	// ErrStale is returned when the response arrived after the file was
	// replaced or the session was reset. The response is discarded.
	ErrStale = errors.New("conversion superseded")
)

// Options configures a Controller.
type Options struct {
	MaxUploadBytes int64
	HistoryDepth   int

	// TextFormat is how extracted text is seeded: config.TextFormatPlain or
	// config.TextFormatMarkdown.
	TextFormat string

	PDF export.PDFOptions

	// Previews may be shared between controllers. Nil creates a private store.
	Previews *intake.PreviewStore

	// Notifier receives user notices. Nil discards them.
	Notifier Notifier

	Logger *zerolog.Logger
}

// LinkInput is the state of the link URL input next to the toolbar.
type LinkInput struct {
	Visible bool   `json:"visible"`
	URL     string `json:"url"`
}

// Controller is the conversion workflow state machine.
type Controller struct {
	mu sync.Mutex

	service    ocr.Service
	validator  *intake.Validator
	previews   *intake.PreviewStore
	notifier   Notifier
	textFormat string
	pdfOpts    export.PDFOptions
	log        zerolog.Logger

	file        *intake.SelectedFile
	preview     *intake.PreviewHandle
	result      *ocr.Result
	editor      *editor.Editor
	loading     bool
	generation  uint64
	pickerEpoch uint64
	link        LinkInput
}

// New creates a controller submitting to service.
func New(service ocr.Service, opts Options) *Controller {
	c := &Controller{
		service:    service,
		validator:  intake.NewValidator(opts.MaxUploadBytes),
		previews:   opts.Previews,
		notifier:   opts.Notifier,
		textFormat: opts.TextFormat,
		pdfOpts:    opts.PDF,
		editor:     editor.New(opts.HistoryDepth),
	}
	if c.previews == nil {
		c.previews = intake.NewPreviewStore()
	}
	if c.notifier == nil {
		c.notifier = NotifierFunc(func(Notice) {})
	}
	if opts.Logger != nil {
		c.log = *opts.Logger
	} else {
		c.log = logger.WithComponent("workflow")
	}
	return c
}

func (c *Controller) notify(kind NoticeKind, message, details string) {
	c.notifier.Notify(Notice{Kind: kind, Message: message, Details: details, At: time.Now()})
}

// Select validates f and makes it the current file. A rejected file leaves
// the state untouched and produces exactly one notice.
func (c *Controller) Select(f intake.SelectedFile) (intake.PreviewHandle, error) {
	valid, err := c.validator.Validate(f)
	if err != nil {
		message := err.Error()
		var ve *intake.ValidationError
		if errors.As(err, &ve) {
			message = ve.Message
		}
		c.log.Info().Str("file", f.Name).Str("source", string(f.Source)).Err(err).Msg("File rejected")
		c.notify(NoticeValidation, message, err.Error())
		return intake.PreviewHandle{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.preview != nil {
		c.previews.Revoke(c.preview.Token)
	}
	h := c.previews.Issue(valid)
	c.file = &valid
	c.preview = &h
	c.result = nil
	c.editor.Clear()
	c.link = LinkInput{}
	c.loading = false
	c.generation++

	c.log.Info().
		Str("file", valid.Name).
		Str("media_type", valid.MediaType).
		Int64("size", valid.Size).
		Str("source", string(valid.Source)).
		Msg("File selected")
	return h, nil
}

// Reset returns the session to its initial state and revokes the preview.
// A conversion in flight is discarded when it returns.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.preview != nil {
		c.previews.Revoke(c.preview.Token)
	}
	c.file = nil
	c.preview = nil
	c.result = nil
	c.editor.Clear()
	c.link = LinkInput{}
	c.loading = false
	c.generation++
	c.pickerEpoch++
}

// HasFile reports whether a file is selected.
func (c *Controller) HasFile() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file != nil
}

// Convert submits the selected file to the OCR service and seeds the editor
// with the extracted text.
func (c *Controller) Convert(ctx context.Context) error {
	const op = "Convert"

	c.mu.Lock()
	if c.file == nil {
		c.mu.Unlock()
		c.notify(NoticeNoFile, msgNoFile, "")
		return ErrNoFile
	}
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.loading = true
	c.generation++
	gen := c.generation
	upload := ocr.Upload{Name: c.file.Name, MediaType: c.file.MediaType, Data: c.file.Data}
	c.result = nil
	c.editor.SeedText(PlaceholderProcessing)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.generation == gen {
			c.loading = false
		}
		c.mu.Unlock()
	}()

	start := time.Now()
	res, err := c.service.Recognize(ctx, upload)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.log.Debug().Str("file", upload.Name).Msg("Discarding stale OCR response")
		return ErrStale
	}
	if err != nil || res == nil {
		if err == nil {
			err = ocr.ErrConversionFailed
		}
		c.result = nil
		c.editor.SeedText(PlaceholderError)
		c.mu.Unlock()

		c.log.Error().Err(err).Str("file", upload.Name).Dur("elapsed", time.Since(start)).Msg("OCR conversion failed")
		c.notify(NoticeConversion, msgConversionFailed, err.Error())
		return fmt.Errorf("%s: %w", op, err)
	}
	c.result = res
	c.seed(res.Text)
	c.mu.Unlock()

	c.log.Info().
		Str("file", upload.Name).
		Int("text_length", len(res.Text)).
		Str("confidence", res.ConfidenceLabel()).
		Dur("elapsed", time.Since(start)).
		Msg("OCR conversion completed")
	return nil
}

// seed loads extracted text into the editor. Callers hold c.mu.
func (c *Controller) seed(text string) {
	if c.textFormat == config.TextFormatMarkdown {
		if err := c.editor.SeedMarkdown(text); err == nil {
			return
		}
		c.log.Warn().Msg("Markdown seeding failed, falling back to plain text")
	}
	c.editor.SeedText(text)
}

// OpenPreview resolves the current preview. Tokens of replaced or reset
// previews do not resolve.
func (c *Controller) OpenPreview(token string) (intake.Preview, bool) {
	c.mu.Lock()
	current := c.preview != nil && c.preview.Token == token
	c.mu.Unlock()
	if !current {
		return intake.Preview{}, false
	}
	return c.previews.Open(token)
}

// Apply runs an editor command.
func (c *Controller) Apply(cmd editor.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor.Apply(cmd)
}

// SetHTML replaces the content from the client.
func (c *Controller) SetHTML(html string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.SetHTML(html)
}

// SetText replaces the content with plain text from the client.
func (c *Controller) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.SetText(text)
}

// Active reports the formatting state over sel.
func (c *Controller) Active(sel editor.Selection) editor.FormatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor.Active(sel)
}

// ToggleLinkInput shows or hides the link input.
func (c *Controller) ToggleLinkInput() LinkInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link.Visible = !c.link.Visible
	return c.link
}

// SetLinkURL updates the text of the link input.
func (c *Controller) SetLinkURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.link.URL = url
}

// ApplyLink links sel to the URL in the link input, then hides and clears it.
func (c *Controller) ApplyLink(sel editor.Selection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link.URL != "" {
		c.editor.SetLink(sel, c.link.URL)
	}
	c.link = LinkInput{}
}

// RemoveLink unlinks sel, then hides and clears the link input.
func (c *Controller) RemoveLink(sel editor.Selection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.UnsetLink(sel)
	c.link = LinkInput{}
}

// ExportText serialises the content as plain text. It fails with ErrBusy
// while a conversion is in flight.
func (c *Controller) ExportText() (*export.Artifact, error) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	doc, name := c.editor.Document(), c.fileName()
	c.mu.Unlock()
	return export.Text(doc, name)
}

// ExportPDF renders the content as a PDF. plain selects the unformatted layout.
func (c *Controller) ExportPDF(plain bool) (*export.Artifact, error) {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	doc, name := c.editor.Document(), c.fileName()
	opts := c.pdfOpts
	c.mu.Unlock()

	opts.Plain = plain
	if opts.Title == "" {
		opts.Title = name
	}
	return export.PDF(doc, name, opts)
}

func (c *Controller) fileName() string {
	if c.file == nil {
		return ""
	}
	return c.file.Name
}
