package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docsearch/internal/indexer"
	"github.com/dshills/docsearch/internal/mcp"
	"github.com/dshills/docsearch/internal/schedule"
	"github.com/dshills/docsearch/internal/storage"
)

func newWatchCommand(opts *options) *cobra.Command {
	var skipInitial bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the index up to date as files change",
		Long: `Watches every collection root and, once changes settle, re-scans the
collections and embeds what changed. Scheduled jobs from the config file run
alongside. Stops on interrupt.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !skipInitial {
				stats, embedStats, err := a.indexer.Refresh(ctx)
				if err != nil {
					return err
				}
				printUpdateStats(cmd, "", stats)
				printEmbedStats(cmd, embedStats)
			}

			watcher := indexer.NewWatcher(a.indexer, a.cfg.Watch.Debounce.Duration,
				func(stats *indexer.Statistics, embedStats *indexer.EmbedStatistics, err error) {
					rebuilt := embedStats != nil && embedStats.Rebuilt
					if err != nil || (!stats.Changed() && !rebuilt) {
						return
					}
					printUpdateStats(cmd, "", stats)
					if embedStats != nil {
						printEmbedStats(cmd, embedStats)
					}
				})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return watcher.Run(gctx) })
			if err := runScheduler(gctx, g, a); err != nil {
				return err
			}
			cmd.Println("Watching for changes. Press Ctrl+C to stop.")
			return g.Wait()
		}),
	}
	cmd.Flags().BoolVar(&skipInitial, "no-initial", false, "skip the refresh at startup")
	return cmd
}

func newMCPCommand(opts *options, info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server on stdio",
		Long: `Start the Model Context Protocol server for AI assistant integration.
The server speaks JSON-RPC over stdin and stdout; logs go to stderr.

Tools: search, vsearch, query, get, status, update.

Client configuration:
  {
    "mcpServers": {
      "docsearch": {
        "command": "/path/to/docsearch",
        "args": ["mcp"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if info.Version != "" {
				mcp.ServerVersion = info.Version
			}
			a.logger.Info("docsearch MCP server starting",
				zap.String("version", mcp.ServerVersion),
				zap.String("build_mode", storage.BuildMode),
				zap.String("driver", storage.DriverName),
				zap.Bool("vector_extension", storage.VectorExtensionAvailable))
			server := mcp.NewServer(a.store, a.indexer, a.searcher, a.logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				err := server.Serve(gctx, cmd.InOrStdin(), cmd.OutOrStdout())
				// A closed stdin ends the session and the scheduler with it
				stop()
				return err
			})
			if err := runScheduler(gctx, g, a); err != nil {
				return err
			}
			err := g.Wait()
			a.logger.Info("server stopped")
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}
}

// runScheduler adds the cron scheduler to g when any job is configured
func runScheduler(ctx context.Context, g *errgroup.Group, a *app) error {
	s := schedule.NewCronScheduler(a.logger)
	if err := schedule.Register(s, a.indexer, a.cfg.Schedule.Update, a.cfg.Schedule.Cleanup, a.logger); err != nil {
		return err
	}
	if s.Jobs() == 0 {
		return nil
	}
	g.Go(func() error { return s.Run(ctx) })
	return nil
}
