package ocr

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPServiceSendsMultipartFile(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		file, header, err := r.FormFile(FieldName)
		if err != nil {
			t.Errorf("FormFile(%q): %v", FieldName, err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "image-bytes" {
			t.Errorf("payload = %q", data)
		}
		if header.Filename != "receipt.jpg" {
			t.Errorf("filename = %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part content type = %q", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"extracted_text":"Total 12.00","ocr_confidence":88.25,"debug_image_url":"/media/debug.png"}`)
	}))
	defer srv.Close()

	svc, err := NewHTTPService(HTTPConfig{Endpoint: srv.URL, APIToken: "secret"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Recognize(context.Background(), Upload{Name: "receipt.jpg", MediaType: "image/jpeg", Data: []byte("image-bytes")})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.Text != "Total 12.00" {
		t.Fatalf("text = %q", res.Text)
	}
	if !res.HasConfidence() || res.ConfidenceLabel() != "88.2%" && res.ConfidenceLabel() != "88.3%" {
		t.Fatalf("confidence label = %q", res.ConfidenceLabel())
	}
	if res.DebugImageURL != "/media/debug.png" {
		t.Fatalf("debug url = %q", res.DebugImageURL)
	}
	if res.ProcessedAt.IsZero() {
		t.Fatal("ProcessedAt not set")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("server called %d times, want exactly 1", n)
	}
}

func TestHTTPServiceFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			status: http.StatusInternalServerError,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"extracted_text":`)
			},
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			svc, err := NewHTTPService(HTTPConfig{Endpoint: srv.URL})
			if err != nil {
				t.Fatal(err)
			}
			_, err = svc.Recognize(context.Background(), Upload{Name: "a.pdf", MediaType: "application/pdf", Data: []byte("%PDF")})
			if !errors.Is(err, ErrConversionFailed) {
				t.Fatalf("error = %v, want ErrConversionFailed", err)
			}
			var ocrErr *OCRError
			if !errors.As(err, &ocrErr) || ocrErr.StatusCode != tt.status {
				t.Fatalf("status = %+v, want %d", ocrErr, tt.status)
			}
			if n := calls.Load(); n != 1 {
				t.Fatalf("server called %d times, want exactly 1", n)
			}
		})
	}
}

func TestHTTPServiceMissingTextIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	svc, err := NewHTTPService(HTTPConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Recognize(context.Background(), Upload{Name: "a.png", MediaType: "image/png", Data: []byte{1}})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if res.Text != "" || res.HasConfidence() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHTTPServiceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	svc, err := NewHTTPService(HTTPConfig{Endpoint: url})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Recognize(context.Background(), Upload{Name: "a.png", Data: []byte{1}})
	if !errors.Is(err, ErrConversionFailed) {
		t.Fatalf("error = %v, want ErrConversionFailed", err)
	}
}

func TestHTTPServiceRejectsEmptyUpload(t *testing.T) {
	svc, err := NewHTTPService(HTTPConfig{Endpoint: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Recognize(context.Background(), Upload{Name: "a.png"}); !errors.Is(err, ErrEmptyUpload) {
		t.Fatalf("error = %v, want ErrEmptyUpload", err)
	}
}

func TestNewHTTPServiceRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTPService(HTTPConfig{}); !errors.Is(err, ErrEndpointNotConfigured) {
		t.Fatalf("error = %v, want ErrEndpointNotConfigured", err)
	}
}
