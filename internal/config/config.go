package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ocrdesk/internal/logger"
)

// Supported OCR providers.
const (
	ProviderHTTP   = "http"
	ProviderVision = "vision"
)

// Supported encodings of the text returned by the OCR service.
const (
	TextFormatPlain    = "plain"
	TextFormatMarkdown = "markdown"
)

type Config struct {
	// Server
	ListenAddr        string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration

	// OCR
	OCRProvider        string
	OCREndpoint        string
	OCRAPIToken        string
	OCRTimeout         time.Duration
	OCRTextFormat      string
	MaxConcurrentOCR   int64
	GoogleCloudProject string

	// Workflow
	MaxUploadBytes     int64
	SessionIdleTimeout time.Duration
	SweepInterval      time.Duration
	EditorHistoryDepth int

	// Export
	PDFFontSize float64
	PDFMarginMM float64

	// UI
	ThemeDefault string

	// Rate limiting (per client)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads configuration from the environment only.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads an optional YAML overlay and then the environment. Keys in
// the file are the lower-case form of the environment names
// (ocr_endpoint, max_upload_bytes, ...); environment variables win.
func LoadFile(path string) (*Config, error) {
	src, err := newSource(path)
	if err != nil {
		return nil, err
	}

	config := &Config{
		ListenAddr:        src.str("LISTEN_ADDR", ":8080"),
		ReadHeaderTimeout: src.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      src.dur("WRITE_TIMEOUT", 120*time.Second),
		ShutdownTimeout:   src.dur("SHUTDOWN_TIMEOUT", 15*time.Second),

		OCRProvider:        strings.ToLower(src.str("OCR_PROVIDER", ProviderHTTP)),
		OCREndpoint:        src.str("OCR_ENDPOINT", "http://localhost:8000/api/ocr/upload/"),
		OCRAPIToken:        src.str("OCR_API_TOKEN", ""),
		OCRTimeout:         src.dur("OCR_TIMEOUT", 90*time.Second),
		OCRTextFormat:      strings.ToLower(src.str("OCR_TEXT_FORMAT", TextFormatPlain)),
		MaxConcurrentOCR:   int64(src.int("MAX_CONCURRENT_OCR", 4)),
		GoogleCloudProject: src.str("GOOGLE_CLOUD_PROJECT", ""),

		MaxUploadBytes:     int64(src.int("MAX_UPLOAD_BYTES", 20<<20)),
		SessionIdleTimeout: src.dur("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SweepInterval:      src.dur("SESSION_SWEEP_INTERVAL", time.Minute),
		EditorHistoryDepth: src.int("EDITOR_HISTORY_DEPTH", 100),

		PDFFontSize: src.float("PDF_FONT_SIZE", 11),
		PDFMarginMM: src.float("PDF_MARGIN_MM", 25.4),

		ThemeDefault: strings.ToLower(src.str("THEME_DEFAULT", "light")),

		RateLimitEvery: src.dur("RATE_LIMIT_EVERY", 300*time.Millisecond),
		RateLimitBurst: src.int("RATE_LIMIT_BURST", 40),

		LogLevel:      src.str("LOG_LEVEL", "info"),
		LogFormat:     src.str("LOG_FORMAT", "console"),
		LogTimeFormat: src.str("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:     src.str("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.OCRProvider {
	case ProviderHTTP:
		u, err := url.Parse(c.OCREndpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("OCR_ENDPOINT must be an absolute http(s) URL, got %q", c.OCREndpoint)
		}
	case ProviderVision:
	default:
		return fmt.Errorf("OCR_PROVIDER must be %q or %q, got %q", ProviderHTTP, ProviderVision, c.OCRProvider)
	}
	if c.OCRTextFormat != TextFormatPlain && c.OCRTextFormat != TextFormatMarkdown {
		return fmt.Errorf("OCR_TEXT_FORMAT must be %q or %q", TextFormatPlain, TextFormatMarkdown)
	}
	if c.ThemeDefault != "light" && c.ThemeDefault != "dark" {
		return fmt.Errorf("THEME_DEFAULT must be light or dark")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// source resolves a key from the environment first and the YAML overlay second.
type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	src := source{file: map[string]string{}}
	if path == "" {
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return src, fmt.Errorf("read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return src, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		src.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return src, nil
}

func (s source) lookup(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return strings.TrimSpace(s.file[key])
}

func (s source) str(key, fallback string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return fallback
}

func (s source) int(key string, fallback int) int {
	n, err := strconv.Atoi(s.lookup(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (s source) float(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s.lookup(key), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func (s source) dur(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s.lookup(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
