package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ocrdesk/internal/config"
	"ocrdesk/internal/ocr"
)

// newOCRService builds the configured provider. The returned close function
// is never nil.
func newOCRService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Service, func(), error) {
	switch cfg.OCRProvider {
	case config.ProviderVision:
		svc, err := ocr.NewVisionService(ctx)
		if err != nil {
			if errors.Is(err, ocr.ErrMissingCredentials) {
				log.Error().Err(err).Msg("Google Cloud credentials not configured")
				return nil, nil, fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
					"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
					"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
					"2. Export GOOGLE_CREDENTIALS with inline JSON\n\n" +
					"3. Use Application Default Credentials (if gcloud is configured):\n" +
					"   gcloud auth application-default login")
			}
			log.Error().Err(err).Msg("Failed to create OCR service")
			return nil, nil, fmt.Errorf("failed to create OCR service: %w", err)
		}
		return svc, func() {
			if err := svc.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Vision client")
			}
		}, nil

	default:
		svc, err := ocr.NewHTTPService(ocr.HTTPConfig{
			Endpoint: cfg.OCREndpoint,
			APIToken: cfg.OCRAPIToken,
			Timeout:  cfg.OCRTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OCR service: %w", err)
		}
		log.Debug().Str("endpoint", cfg.OCREndpoint).Msg("HTTP OCR service created")
		return svc, func() {}, nil
	}
}

// handleOCRError provides user-friendly error messages for OCR failures.
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, ocr.ErrTooManyPages):
		return fmt.Errorf("PDF has too many pages (maximum %d pages). Try splitting into smaller files", ocr.MaxPagesSync)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure your Google Cloud service account has the 'Cloud Vision API User' role")
	case strings.Contains(errStr, "QUOTA_EXCEEDED"):
		return fmt.Errorf("Google Cloud Vision API quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrConversionFailed):
		return fmt.Errorf("OCR service request failed: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}
