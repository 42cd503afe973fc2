// Package server exposes the conversion workflow over HTTP: a JSON API per
// browser session plus the server-rendered pages around it.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"ocrdesk/internal/appctx"
	"ocrdesk/internal/config"
	"ocrdesk/internal/logger"
	"ocrdesk/internal/session"
)

// maxJSONBody bounds command and content request bodies.
const maxJSONBody = 8 << 20

// Server routes requests to sessions.
type Server struct {
	cfg      *config.Config
	sessions *session.Registry
	auth     *appctx.MemoryAuth
	resolver appctx.Resolver
	ocrSem   *semaphore.Weighted
	limits   *limiterSet
	pages    *pageSet
	log      zerolog.Logger
}

// New creates a server for the given registry. auth may be nil, which
// disables sign-up and sign-in.
func New(cfg *config.Config, sessions *session.Registry, auth *appctx.MemoryAuth) (*Server, error) {
	pages, err := loadPages()
	if err != nil {
		return nil, err
	}

	maxOCR := cfg.MaxConcurrentOCR
	if maxOCR <= 0 {
		maxOCR = 1
	}
	theme, ok := appctx.ParseTheme(cfg.ThemeDefault)
	if !ok {
		theme = appctx.ThemeLight
	}

	return &Server{
		cfg:      cfg,
		sessions: sessions,
		auth:     auth,
		resolver: appctx.Resolver{Auth: auth, DefaultTheme: theme},
		ocrSem:   semaphore.NewWeighted(maxOCR),
		limits:   newLimiterSet(cfg.RateLimitEvery, cfg.RateLimitBurst),
		pages:    pages,
		log:      logger.WithComponent("server"),
	}, nil
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", withMethod(http.MethodGet, s.handleHealth))

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleState))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.withSession(s.handleReset))
	mux.HandleFunc("POST /api/sessions/{id}/file", s.withSession(s.handleFile))
	mux.HandleFunc("GET /api/sessions/{id}/preview/{token}", s.withSession(s.handlePreview))
	mux.HandleFunc("POST /api/sessions/{id}/convert", s.withSession(s.handleConvert))
	mux.HandleFunc("POST /api/sessions/{id}/commands", s.withSession(s.handleCommand))
	mux.HandleFunc("POST /api/sessions/{id}/link", s.withSession(s.handleLink))
	mux.HandleFunc("GET /api/sessions/{id}/active", s.withSession(s.handleActive))
	mux.HandleFunc("PUT /api/sessions/{id}/content", s.withSession(s.handleContent))
	mux.HandleFunc("GET /api/sessions/{id}/export/txt", s.withSession(s.handleExportText))
	mux.HandleFunc("GET /api/sessions/{id}/export/pdf", s.withSession(s.handleExportPDF))

	mux.HandleFunc("GET /api/theme", s.handleTheme)
	mux.HandleFunc("POST /api/theme/toggle", s.handleThemeToggle)
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, "not_found", "Not found")
	})

	mux.Handle("GET /static/", http.FileServerFS(staticFS))

	mux.HandleFunc("POST /signIn", s.handleSignIn)
	mux.HandleFunc("POST /signUp", s.handleSignUp)
	mux.HandleFunc("POST /signOut", s.handleSignOut)
	mux.HandleFunc("/", withMethod(http.MethodGet, s.handlePage))

	return withLogging(s.log, withRecovery(s.log, withRateLimit(s.limits, mux)))
}

// Run serves on the configured address until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info().Msg("Shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}
