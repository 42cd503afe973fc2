package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ocrdesk/internal/config"
	"ocrdesk/internal/logger"
)

// ConfigEnv names the environment variable holding the optional YAML config path.
const ConfigEnv = "OCRDESK_CONFIG"

var (
	version = "1.0.0"
	commit  = "dev"
)

// cfg is loaded before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ocrdesk",
	Short: "ocrdesk - upload, OCR-convert, edit and export documents",
	Long: `ocrdesk turns scanned images and PDFs into editable text.

Files are sent to an external OCR service, the extracted text is loaded into
a rich-text editor, and the edited result can be downloaded as PDF or plain
text. Run "ocrdesk serve" for the web application or "ocrdesk convert" for a
one-shot conversion from the command line.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = os.Getenv(ConfigEnv)
		}
		loaded, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		if err := logger.Setup(loaded.GetLoggerConfig()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded

		rootLog := logger.WithComponent("root")
		rootLog.Debug().
			Str("config_file", path).
			Str("provider", cfg.OCRProvider).
			Msg("Configuration loaded")
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (env "+ConfigEnv+")")
}
