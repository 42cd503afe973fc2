package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ocrdesk/internal/logger"
)

const (
	// maxErrorBody bounds how much of a failed response is kept for diagnostics.
	maxErrorBody = 64 << 10

	// maxResponseBody bounds the JSON document accepted from the service.
	maxResponseBody = 32 << 20
)

// HTTPConfig configures the multipart OCR provider.
type HTTPConfig struct {
	// Endpoint is the absolute URL receiving the POST.
	Endpoint string

	// APIToken is sent as a bearer token when non-empty.
	APIToken string

	// Timeout bounds one submission. Zero means no client-side timeout.
	Timeout time.Duration

	// Client overrides the HTTP client (for testing).
	Client *http.Client
}

// HTTPService implements Service by posting multipart/form-data to an OCR endpoint.
type HTTPService struct {
	endpoint string
	token    string
	client   *http.Client
	log      zerolog.Logger
}

// NewHTTPService creates an OCR client for the configured endpoint.
func NewHTTPService(cfg HTTPConfig) (*HTTPService, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, NewOCRError("NewHTTPService", ErrEndpointNotConfigured, "")
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}

	return &HTTPService{
		endpoint: cfg.Endpoint,
		token:    cfg.APIToken,
		client:   client,
		log:      logger.WithComponent("ocr-http"),
	}, nil
}

// Recognize sends exactly one POST carrying the upload under FieldName.
func (s *HTTPService) Recognize(ctx context.Context, upload Upload) (*Result, error) {
	const op = "Recognize"
	start := time.Now()

	if len(upload.Data) == 0 {
		return nil, NewOCRError(op, ErrEmptyUpload, upload.Name)
	}

	body, contentType, err := encodeMultipart(upload)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to encode multipart body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, body)
	if err != nil {
		return nil, conversionFailed(op, 0, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	s.log.Debug().
		Str("file", upload.Name).
		Str("media_type", upload.MediaType).
		Int("bytes", len(upload.Data)).
		Str("endpoint", s.endpoint).
		Msg("Submitting document for OCR")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, conversionFailed(op, 0, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, conversionFailed(op, resp.StatusCode, strings.TrimSpace(string(slurp)))
	}

	result, err := decodeResponse(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, conversionFailed(op, resp.StatusCode, err.Error())
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(start)

	s.log.Info().
		Str("file", upload.Name).
		Int("text_length", len(result.Text)).
		Bool("has_confidence", result.HasConfidence()).
		Dur("duration", result.ProcessingDuration).
		Msg("OCR response received")

	return result, nil
}

func decodeResponse(r io.Reader) (*Result, error) {
	var result Result
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeMultipart builds the form body. Unlike multipart.Writer.CreateFormFile
// it keeps the declared media type of the part.
func encodeMultipart(upload Upload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := upload.Name
	if name == "" {
		name = "upload"
	}
	mediaType := upload.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldName, quoteEscaper.Replace(name)))
	h.Set("Content-Type", mediaType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
