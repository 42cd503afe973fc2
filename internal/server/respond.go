package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"ocrdesk/internal/workflow"
)

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Notices []workflow.Notice `json:"notices,omitempty"`
}

// stateResponse is a session snapshot together with the notices queued
// since the previous response.
type stateResponse struct {
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Code       string            `json:"code,omitempty"`
	ID         string            `json:"id"`
	PreviewURL string            `json:"preview_url,omitempty"`
	Notices    []workflow.Notice `json:"notices"`
	workflow.Snapshot
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg, Code: code})
}

func parseJSON[T any](r *http.Request, limit int64) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r.Body, limit))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&out); err != nil {
		return out, err
	}

	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		if err == nil {
			return out, fmt.Errorf("unexpected trailing data")
		}
		return out, err
	}

	return out, nil
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = strings.ReplaceAll(msg, os.TempDir(), "[tmp]")
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func sanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// attachment formats a Content-Disposition header for a download.
func attachment(name string) string {
	return fmt.Sprintf(`attachment; filename="%s"`, strings.NewReplacer(`"`, "'", "\r", "", "\n", "").Replace(name))
}
