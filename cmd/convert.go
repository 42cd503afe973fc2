package cmd

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ocrdesk/internal/export"
	"ocrdesk/internal/intake"
	"ocrdesk/internal/logger"
	"ocrdesk/internal/workflow"
)

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "OCR-convert an image or PDF and export the text",
	Long: `Run one file through the conversion workflow without the browser.

The file is validated like an upload (image/* or application/pdf, at most
MAX_UPLOAD_BYTES), sent to the configured OCR service, and the extracted text
is written next to the input or into --out-dir as <name>_edited.txt and/or
<name>_edited.pdf. Without --txt or --pdf the text is printed to stdout.`,
	Example: `  # Print the extracted text
  ocrdesk convert scan.png

  # Write scan_edited.txt and scan_edited.pdf into ./out
  ocrdesk convert scan.pdf --txt --pdf --out-dir out

  # Unformatted PDF, longer timeout
  ocrdesk convert scan.pdf --pdf --plain --timeout 300`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().Bool("txt", false, "Write <name>_edited.txt")
	convertCmd.Flags().Bool("pdf", false, "Write <name>_edited.pdf")
	convertCmd.Flags().Bool("plain", false, "Render the PDF without formatting")
	convertCmd.Flags().String("out-dir", "", "Output directory (default: next to the input file)")
	convertCmd.Flags().Int("timeout", 0, "Processing timeout in seconds (default: OCR_TIMEOUT)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("convert")

	writeTxt, _ := cmd.Flags().GetBool("txt")
	writePDF, _ := cmd.Flags().GetBool("pdf")
	plain, _ := cmd.Flags().GetBool("plain")
	outDir, _ := cmd.Flags().GetString("out-dir")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]
	timeout := cfg.OCRTimeout
	if timeoutSecs > 0 {
		timeout = time.Duration(timeoutSecs) * time.Second
	}

	log.Info().
		Str("file", path).
		Bool("txt", writeTxt).
		Bool("pdf", writePDF).
		Bool("plain", plain).
		Dur("timeout", timeout).
		Msg("Starting conversion")

	file, err := readUpload(path, cfg.MaxUploadBytes, log)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
	defer cancelTimeout()

	svc, closeSvc, err := newOCRService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSvc()

	stderr := cmd.ErrOrStderr()
	ctrl := workflow.New(svc, workflow.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		HistoryDepth:   cfg.EditorHistoryDepth,
		TextFormat:     cfg.OCRTextFormat,
		PDF:            export.PDFOptions{FontSize: cfg.PDFFontSize, MarginMM: cfg.PDFMarginMM},
		Notifier: workflow.NotifierFunc(func(n workflow.Notice) {
			fmt.Fprintln(stderr, n.Message)
		}),
		Logger: &log,
	})

	if _, err := ctrl.Select(file); err != nil {
		return err
	}
	if err := ctrl.Convert(ctx); err != nil {
		return handleOCRError(err, log)
	}

	snap := ctrl.Snapshot()
	if snap.Confidence != "" {
		log.Info().Str("confidence", snap.Confidence).Msg("OCR confidence")
	}

	if !writeTxt && !writePDF {
		fmt.Fprintln(cmd.OutOrStdout(), snap.Text)
		return nil
	}

	if outDir == "" {
		outDir = filepath.Dir(path)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if writeTxt {
		if err := writeArtifact(ctrl.ExportText, outDir, log); err != nil {
			return err
		}
	}
	if writePDF {
		if err := writeArtifact(func() (*export.Artifact, error) { return ctrl.ExportPDF(plain) }, outDir, log); err != nil {
			return err
		}
	}
	return nil
}

// readUpload loads a file the same way the browser would hand it over. A file
// larger than limit is not read; its stat size alone fails validation.
func readUpload(path string, limit int64, log zerolog.Logger) (intake.SelectedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("File not found")
			return intake.SelectedFile{}, fmt.Errorf("file not found: %s", path)
		}
		return intake.SelectedFile{}, fmt.Errorf("error accessing file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return intake.SelectedFile{}, fmt.Errorf("path is not a regular file: %s", path)
	}

	if limit <= 0 {
		limit = intake.DefaultMaxBytes
	}
	file := intake.SelectedFile{
		Name:      filepath.Base(path),
		MediaType: mime.TypeByExtension(filepath.Ext(path)),
		Size:      info.Size(),
		Source:    intake.SourcePicker,
	}
	if file.Size > limit {
		log.Warn().Str("file", path).Int64("size", file.Size).Int64("limit", limit).Msg("File exceeds upload limit, not reading")
		return file, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return intake.SelectedFile{}, fmt.Errorf("failed to read file: %w", err)
	}
	file.Data = data
	if file.MediaType == "" {
		file.MediaType = http.DetectContentType(data)
	}
	return file, nil
}

// writeArtifact stores one export. Empty content is skipped silently.
func writeArtifact(build func() (*export.Artifact, error), outDir string, log zerolog.Logger) error {
	art, err := build()
	if errors.Is(err, export.ErrNothingToExport) {
		log.Info().Msg("Nothing to export, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	dest := filepath.Join(outDir, art.Name)
	if err := os.WriteFile(dest, art.Data, 0o644); err != nil {
		log.Error().Err(err).Str("output_file", dest).Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", dest).
		Int("bytes", len(art.Data)).
		Int("pages", art.Pages).
		Msg("Export written")
	return nil
}
