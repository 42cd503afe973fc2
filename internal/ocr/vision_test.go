package ocr

import (
	"errors"
	"math"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/genproto/googleapis/rpc/status"
)

func TestCollectPagesAveragesConfidence(t *testing.T) {
	pages := []*visionpb.AnnotateImageResponse{
		{FullTextAnnotation: &visionpb.TextAnnotation{
			Text:  "first page\n",
			Pages: []*visionpb.Page{{Confidence: 0.9}},
		}},
		{FullTextAnnotation: &visionpb.TextAnnotation{
			Text:  "second page\n",
			Pages: []*visionpb.Page{{Confidence: 0.7}},
		}},
	}

	res, err := collectPages(pages)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "first page\n\nsecond page" {
		t.Fatalf("text = %q", res.Text)
	}
	if !res.HasConfidence() || math.Abs(*res.Confidence-80) > 0.01 {
		t.Fatalf("confidence = %v", res.Confidence)
	}
}

func TestCollectPagesWithoutText(t *testing.T) {
	res, err := collectPages([]*visionpb.AnnotateImageResponse{{}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "" || res.HasConfidence() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCollectPagesPageError(t *testing.T) {
	_, err := collectPages([]*visionpb.AnnotateImageResponse{{Error: &status.Status{Message: "bad image"}}})
	if !errors.Is(err, ErrConversionFailed) {
		t.Fatalf("error = %v, want ErrConversionFailed", err)
	}
}
