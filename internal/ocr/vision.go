package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"ocrdesk/internal/logger"
)

// MaxPagesSync is the maximum number of PDF pages for synchronous processing
const MaxPagesSync = 5

// VisionService implements Service using Google Cloud Vision document text detection.
type VisionService struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewVisionService creates a new OCR service with credentials from environment.
// It expects either GOOGLE_APPLICATION_CREDENTIALS path or GOOGLE_CREDENTIALS JSON in env.
func NewVisionService(ctx context.Context) (*VisionService, error) {
	const op = "NewVisionService"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_CREDENTIALS")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &VisionService{
		client: client,
		log:    logger.WithComponent("ocr-vision"),
	}, nil
}

// Recognize runs document text detection on an image or a PDF.
func (v *VisionService) Recognize(ctx context.Context, upload Upload) (*Result, error) {
	const op = "Recognize"
	start := time.Now()

	if len(upload.Data) == 0 {
		return nil, NewOCRError(op, ErrEmptyUpload, upload.Name)
	}

	var pages []*visionpb.AnnotateImageResponse
	var err error
	if upload.MediaType == "application/pdf" {
		pages, err = v.annotateFile(ctx, upload.Data)
	} else {
		pages, err = v.annotateImage(ctx, upload.Data)
	}
	if err != nil {
		return nil, err
	}

	result, err := collectPages(pages)
	if err != nil {
		return nil, err
	}
	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(start)

	v.log.Info().
		Str("file", upload.Name).
		Int("pages", len(pages)).
		Int("text_length", len(result.Text)).
		Dur("duration", result.ProcessingDuration).
		Msg("Vision OCR completed")

	return result, nil
}

func (v *VisionService) annotateImage(ctx context.Context, data []byte) ([]*visionpb.AnnotateImageResponse, error) {
	const op = "annotateImage"

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: data},
				Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, conversionFailed(op, 0, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, conversionFailed(op, 0, "no response from Vision API")
	}
	return resp.Responses, nil
}

func (v *VisionService) annotateFile(ctx context.Context, data []byte) ([]*visionpb.AnnotateImageResponse, error) {
	const op = "annotateFile"

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  data,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
			},
		},
	}

	resp, err := v.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, conversionFailed(op, 0, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, conversionFailed(op, 0, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, conversionFailed(op, 0, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}
	if len(fileResp.Responses) > MaxPagesSync {
		return nil, WrapOCRError(op, ErrTooManyPages, fmt.Sprintf("document has %d pages", len(fileResp.Responses)))
	}
	return fileResp.Responses, nil
}

// collectPages joins page texts and averages the page confidences.
func collectPages(pages []*visionpb.AnnotateImageResponse) (*Result, error) {
	var text strings.Builder
	var confidenceSum float64
	var confidenceCount int

	for i, page := range pages {
		if page.Error != nil {
			return nil, conversionFailed("collectPages", 0, fmt.Sprintf("page %d: %s", i+1, page.Error.Message))
		}
		annotation := page.FullTextAnnotation
		if annotation == nil {
			continue
		}
		if i > 0 && text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(strings.TrimRight(annotation.Text, "\n"))

		for _, p := range annotation.Pages {
			if p.Confidence > 0 {
				confidenceSum += float64(p.Confidence)
				confidenceCount++
			}
		}
	}

	result := &Result{Text: text.String()}
	if confidenceCount > 0 {
		pct := confidenceSum / float64(confidenceCount) * 100
		result.Confidence = &pct
	}
	return result, nil
}

// Close closes the underlying Vision client.
func (v *VisionService) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
