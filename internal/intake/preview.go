package intake

import (
	"sync"

	"github.com/google/uuid"
)

// PreviewHandle is a revocable reference to a locally renderable view of a
// selected file.
type PreviewHandle struct {
	Token     string `json:"token"`
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Kind reports how the preview is rendered: "image" or "document".
func (h PreviewHandle) Kind() string {
	if h.MediaType == mediaTypePDF {
		return "document"
	}
	return "image"
}

// Preview is the resolved content behind a handle.
type Preview struct {
	Handle PreviewHandle
	Data   []byte
}

// PreviewStore holds preview content until the owning handle is revoked.
type PreviewStore struct {
	mu      sync.RWMutex
	entries map[string]Preview
}

// NewPreviewStore creates an empty store.
func NewPreviewStore() *PreviewStore {
	return &PreviewStore{entries: make(map[string]Preview)}
}

// Issue registers a preview for f and returns its handle.
func (s *PreviewStore) Issue(f SelectedFile) PreviewHandle {
	h := PreviewHandle{
		Token:     uuid.NewString(),
		Name:      f.Name,
		MediaType: f.MediaType,
	}
	if f.IsImage() {
		h.Width, h.Height = imageSize(f.Data)
	}

	s.mu.Lock()
	s.entries[h.Token] = Preview{Handle: h, Data: f.Data}
	s.mu.Unlock()
	return h
}

// Open resolves a token. Revoked or unknown tokens report false.
func (s *PreviewStore) Open(token string) (Preview, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.entries[token]
	return p, ok
}

// Revoke releases the preview. Revoking twice is a no-op.
func (s *PreviewStore) Revoke(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
}

// Len returns the number of live previews.
func (s *PreviewStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
