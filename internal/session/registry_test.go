package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"ocrdesk/internal/intake"
	"ocrdesk/internal/logger"
	"ocrdesk/internal/ocr"
	"ocrdesk/internal/workflow"
)

type nopService struct{}

func (nopService) Recognize(context.Context, ocr.Upload) (*ocr.Result, error) {
	return &ocr.Result{}, nil
}

func newTestRegistry(store *intake.PreviewStore, idle time.Duration) *Registry {
	log := logger.Discard()
	return NewRegistry(func(id string, n workflow.Notifier) *workflow.Controller {
		return workflow.New(nopService{}, workflow.Options{Previews: store, Notifier: n, Logger: &log})
	}, idle)
}

func TestCreateGetDelete(t *testing.T) {
	r := newTestRegistry(nil, time.Minute)
	s := r.Create()

	got, err := r.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if err := r.Delete(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSweepEvictsIdleSessionsAndRevokesPreviews(t *testing.T) {
	store := intake.NewPreviewStore()
	r := newTestRegistry(store, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	idle := r.Create()
	if _, err := idle.Controller.Select(intake.SelectedFile{Name: "a.pdf", MediaType: "application/pdf", Data: []byte("%PDF")}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(45 * time.Second)
	active := r.Create()

	now = now.Add(30 * time.Second)
	if _, err := r.Get(active.ID); err != nil {
		t.Fatal(err)
	}

	if n := r.Sweep(); n != 1 {
		t.Fatalf("evicted %d sessions, want 1", n)
	}
	if _, err := r.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("idle session should be gone")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
	if store.Len() != 0 {
		t.Fatal("evicted session preview was not revoked")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newTestRegistry(nil, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
