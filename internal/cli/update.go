package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/indexer"
	"github.com/dshills/docsearch/internal/storage"
)

// maxPrintedErrors caps the per-file errors an update prints
const maxPrintedErrors = 10

func newUpdateCommand(opts *options) *cobra.Command {
	var collection string
	var embed bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Re-scan collections for new, changed and removed files",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			var coll *storage.Collection
			if collection != "" {
				var err error
				coll, err = a.store.GetCollection(ctx, collection)
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("collection %q not found", collection)
				}
				if err != nil {
					return err
				}
			}

			var (
				stats      *indexer.Statistics
				embedStats *indexer.EmbedStatistics
				err        error
			)
			switch {
			case embed && coll == nil:
				stats, embedStats, err = a.indexer.Refresh(ctx)
			case embed:
				stats, embedStats, err = a.indexer.RefreshCollection(ctx, coll)
			case coll == nil:
				stats, err = a.indexer.UpdateAll(ctx)
			default:
				stats, err = a.indexer.Update(ctx, coll)
			}
			if err != nil {
				return err
			}
			if embedStats == nil {
				printUpdateStats(cmd, collection, stats)
				return nil
			}
			scanned := *stats
			scanned.NeedsEmbedding = 0 // Embedded below
			printUpdateStats(cmd, collection, &scanned)
			printEmbedStats(cmd, embedStats)
			return nil
		}),
	}
	cmd.Flags().StringVar(&collection, "collection", "", "update only this collection")
	cmd.Flags().BoolVar(&embed, "embed", false, "embed changed documents after the scan")
	return cmd
}

func newEmbedCommand(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed documents that have no vectors",
		Long: `Splits every document without vectors into overlapping chunks and embeds
each chunk. Documents with identical content share one set of vectors.

--force drops all vectors first and embeds everything again, which is needed
after switching to a different embedding model of the same dimension.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			stats, err := a.indexer.Embed(cmd.Context(), force)
			if err != nil {
				return err
			}
			printEmbedStats(cmd, stats)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&force, "force", false, "drop all vectors and re-embed everything")
	return cmd
}

func printUpdateStats(cmd *cobra.Command, collection string, stats *indexer.Statistics) {
	scope := "all collections"
	if collection != "" {
		scope = collection
	}
	cmd.Printf("Updated %s in %s: %d new, %d updated, %d unchanged, %d removed",
		scope, stats.Duration.Round(time.Millisecond), stats.Indexed, stats.Updated, stats.Unchanged, stats.Removed)
	if stats.Failed > 0 {
		cmd.Printf(", %d failed", stats.Failed)
	}
	cmd.Println()
	for i, msg := range stats.ErrorMessages {
		if i == maxPrintedErrors {
			cmd.Printf("  ... and %d more\n", len(stats.ErrorMessages)-maxPrintedErrors)
			break
		}
		cmd.Printf("  %s\n", msg)
	}
	if stats.NeedsEmbedding > 0 {
		cmd.Printf("%d documents need embedding. Run 'docsearch embed'.\n", stats.NeedsEmbedding)
	}
}

func printEmbedStats(cmd *cobra.Command, stats *indexer.EmbedStatistics) {
	if stats.Rebuilt {
		cmd.Printf("Embedding dimension changed to %d; vector table rebuilt\n", stats.Dimension)
	}
	if stats.Cleared > 0 {
		cmd.Printf("Cleared %d vectors\n", stats.Cleared)
	}
	if stats.Embedded == 0 {
		cmd.Println("All documents are embedded.")
		return
	}
	cmd.Printf("Embedded %d documents (%d chunks) in %s\n", stats.Embedded, stats.Chunks, stats.Duration.Round(time.Millisecond))
}
