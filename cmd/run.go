package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/paper-annotator/internal/api"
	"github.com/JakeFAU/paper-annotator/internal/app"
	"github.com/JakeFAU/paper-annotator/internal/paper"
)

type batchOptions struct {
	years       []string
	localRoot   string
	concurrency int
	port        int
}

func (o *batchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&o.years, "years", nil, "only process these years (overrides discovery.years)")
	cmd.Flags().StringVar(&o.localRoot, "local-root", "", "list <root>/<year>/*.pdf instead of crawling the archive")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 0, "override pipeline.concurrency")
	cmd.Flags().IntVar(&o.port, "port", -1, "override server.port (0 disables the progress server)")
}

func (o *batchOptions) apply(a *app.App) *app.App {
	cfg := a.Config()
	if len(o.years) > 0 {
		cfg.Discovery.Years = o.years
	}
	if o.localRoot != "" {
		cfg.Discovery.LocalRoot = o.localRoot
	}
	if o.concurrency > 0 {
		cfg.Pipeline.Concurrency = o.concurrency
	}
	if o.port >= 0 {
		cfg.Server.Port = o.port
	}
	return newApp(cfg, a.Logger())
}

func newRunCmd() *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover, download, annotate and classify papers",
		Long: `Runs the full pipeline: every discovered paper not already present in
the output CSV is downloaded, its title and abstract are extracted, a
category is assigned and a row is appended to the CSV.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, base *app.App) error {
				return runBatch(ctx, opts.apply(base), false)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func newDownloadCmd() *cobra.Command {
	opts := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Discover and download papers without annotating them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, base *app.App) error {
				return runBatch(ctx, opts.apply(base), true)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func runBatch(ctx context.Context, a *app.App, downloadOnly bool) (err error) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	logger := a.Logger()

	items, err := a.Discoverer().Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover papers: %w", err)
	}
	runID, err := a.NewRunID()
	if err != nil {
		return err
	}
	coord, err := a.Pipeline(ctx, runID, downloadOnly)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	logger.Info("run starting",
		zap.String("run_id", runID),
		zap.Int("discovered", len(items)),
		zap.Bool("download_only", downloadOnly),
	)

	serveCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	g, gctx := errgroup.WithContext(serveCtx)
	if port := a.Config().Server.Port; port > 0 {
		var (
			ledger    paper.Ledger
			ledgerErr error
		)
		if !downloadOnly {
			var sink paper.Sink
			if sink, ledgerErr = a.Sink(); ledgerErr == nil {
				ledger = sink
			}
		}
		srv := api.NewServer(coord.Tracker(), ledger, logger,
			api.WithReadiness(readiness(coord.Tracker(), ledgerErr)))
		g.Go(func() error { return srv.ListenAndServe(gctx, port) })
	}

	stats, runErr := coord.Run(ctx, items)
	stopServer()
	if serr := g.Wait(); serr != nil {
		logger.Warn("progress server stopped with error", zap.Error(serr))
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("run complete",
		zap.String("run_id", runID),
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Duration("paced", a.Pacer().Waited()),
	)
	return nil
}

// readiness reports ready once the run has started and, when annotating,
// the output ledger loaded.
func readiness(progress api.ProgressSource, ledgerErr error) func() error {
	return func() error {
		if ledgerErr != nil {
			return fmt.Errorf("ledger unavailable: %w", ledgerErr)
		}
		if progress.Snapshot().StartedAt.IsZero() {
			return errors.New("run not started")
		}
		return nil
	}
}
