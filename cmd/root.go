// Package cmd defines the paper-annotator CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-annotator/internal/app"
	"github.com/JakeFAU/paper-annotator/internal/config"
	"github.com/JakeFAU/paper-annotator/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

const shutdownTimeout = 30 * time.Second

// newApp is a variable so tests can inject a stub classification service.
var newApp = func(cfg config.Config, logger *zap.Logger) *app.App {
	return app.New(cfg, logger)
}

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "paper-annotator",
		Short: "Download, annotate and classify conference papers.",
		Long: `paper-annotator discovers papers in the NeurIPS archive (or a local
<year>/*.pdf tree), downloads each PDF once, extracts its title and abstract,
labels it with a Gemini model and appends one row per paper to a CSV file.
Re-running is safe: papers already in the CSV are skipped.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, newApp(cfg, logger)))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML/JSON/TOML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newExtractCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// withApp runs fn and always releases the App's services afterwards, even on error.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	runErr := fn(cmd.Context(), a)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := a.Close(ctx)
	_ = a.Logger().Sync()
	return errors.Join(runErr, closeErr)
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
