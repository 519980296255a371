package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/maltedev/dealer-portal-scraper/internal/config"
	"github.com/maltedev/dealer-portal-scraper/internal/jobs"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/maltedev/dealer-portal-scraper/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log *slog.Logger

	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "portal-scraper",
	Short:         "portal-scraper extracts dealer pricing from authenticated supplier portals.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if !cmd.Flags().Changed("log-level") {
			logLevel = cfg.Logging.Level
		}
		if !cmd.Flags().Changed("log-format") && os.Getenv("LOG_FORMAT") != "" {
			logFormat = cfg.Logging.Format
		}
		log = logger.NewWithWriter(os.Stderr, logLevel, logFormat)
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "text or json")
}

// ExecuteContext runs the CLI and returns the process exit code. Fatal
// errors are reported as a single line.
func ExecuteContext(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, abortMessage(err))
		return 1
	}
	return 0
}

func abortMessage(err error) string {
	if models.IsFatal(err) {
		return "aborted: " + err.Error()
	}
	return "error: " + err.Error()
}

func newRunner() *jobs.Runner {
	return jobs.NewRunner(cfg, jobs.PlaywrightLauncher(cfg.Browser), nil, log)
}
