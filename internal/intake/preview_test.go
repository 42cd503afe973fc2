package intake

import "testing"

func TestPreviewLifecycle(t *testing.T) {
	store := NewPreviewStore()
	f := SelectedFile{Name: "scan.png", MediaType: "image/png", Data: pngBytes(t, 4, 3)}

	h := store.Issue(f)
	if h.Token == "" {
		t.Fatal("empty token")
	}
	if h.Width != 4 || h.Height != 3 {
		t.Fatalf("dimensions = %dx%d, want 4x3", h.Width, h.Height)
	}
	if h.Kind() != "image" {
		t.Fatalf("kind = %s", h.Kind())
	}

	p, ok := store.Open(h.Token)
	if !ok || len(p.Data) != len(f.Data) {
		t.Fatal("issued preview does not resolve")
	}

	store.Revoke(h.Token)
	store.Revoke(h.Token)
	if _, ok := store.Open(h.Token); ok {
		t.Fatal("revoked preview still resolves")
	}
	if store.Len() != 0 {
		t.Fatalf("len = %d, want 0", store.Len())
	}
}

func TestPreviewUndecodableImageKeepsZeroSize(t *testing.T) {
	store := NewPreviewStore()
	h := store.Issue(SelectedFile{Name: "x.heic", MediaType: "image/heic", Data: []byte("not an image")})
	if h.Width != 0 || h.Height != 0 {
		t.Fatalf("dimensions = %dx%d, want 0x0", h.Width, h.Height)
	}
}

func TestPreviewDocumentKind(t *testing.T) {
	store := NewPreviewStore()
	h := store.Issue(SelectedFile{Name: "a.pdf", MediaType: "application/pdf", Data: []byte("%PDF")})
	if h.Kind() != "document" {
		t.Fatalf("kind = %s", h.Kind())
	}
}
