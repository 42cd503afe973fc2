package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ocrdesk/internal/appctx"
	"ocrdesk/internal/export"
	"ocrdesk/internal/intake"
	"ocrdesk/internal/logger"
	"ocrdesk/internal/server"
	"ocrdesk/internal/session"
	"ocrdesk/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web application",
	Long: `Serve the pages and the session API of the conversion workflow.

Each browser session gets its own workflow controller. Idle sessions are
evicted after SESSION_IDLE_TIMEOUT, which revokes their previews.`,
	Example: `  # Listen on the default address (:8080)
  ocrdesk serve

  # Override the address and use a config file
  ocrdesk serve --listen :9000 --config ocrdesk.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "Listen address (overrides LISTEN_ADDR)")
	serveCmd.Flags().Bool("no-accounts", false, "Disable sign-up and sign-in")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.ListenAddr = addr
	}
	noAccounts, _ := cmd.Flags().GetBool("no-accounts")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeSvc, err := newOCRService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSvc()

	previews := intake.NewPreviewStore()
	pdfOpts := export.PDFOptions{FontSize: cfg.PDFFontSize, MarginMM: cfg.PDFMarginMM}
	registry := session.NewRegistry(func(id string, notices workflow.Notifier) *workflow.Controller {
		sessionLog := logger.WithSession("workflow", id)
		return workflow.New(svc, workflow.Options{
			MaxUploadBytes: cfg.MaxUploadBytes,
			HistoryDepth:   cfg.EditorHistoryDepth,
			TextFormat:     cfg.OCRTextFormat,
			PDF:            pdfOpts,
			Previews:       previews,
			Notifier:       notices,
			Logger:         &sessionLog,
		})
	}, cfg.SessionIdleTimeout)
	defer registry.Close()

	var auth *appctx.MemoryAuth
	if !noAccounts {
		auth = appctx.NewMemoryAuth(0)
	}

	srv, err := server.New(cfg, registry, auth)
	if err != nil {
		return err
	}

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("provider", cfg.OCRProvider).
		Int64("max_upload_bytes", cfg.MaxUploadBytes).
		Int64("max_concurrent_ocr", cfg.MaxConcurrentOCR).
		Msg("Starting server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return registry.Run(gctx, cfg.SweepInterval) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}
