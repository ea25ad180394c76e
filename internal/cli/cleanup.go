package cli

import (
	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/cache"
)

func newCleanupCommand(opts *options) *cobra.Command {
	var clearCache bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete orphaned vectors and compact the database",
		Long: `Deletes vectors of content no active document carries anymore, then runs
VACUUM. With --cache the model response cache is emptied as well; cached
embeddings and rerank judgments are otherwise kept forever.`,
		Args: cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			var modelCache cache.Store
			if clearCache {
				modelCache = a.cache
			}
			stats, err := a.indexer.Cleanup(cmd.Context(), modelCache)
			if err != nil {
				return err
			}
			cmd.Printf("Deleted %d orphaned vectors\n", stats.OrphanVectors)
			if clearCache {
				cmd.Printf("Cleared %d cache entries\n", stats.CacheEntries)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&clearCache, "cache", false, "also clear the model response cache")
	return cmd
}

func countCache(cmd *cobra.Command, a *app) (int, error) {
	return cache.Count(cmd.Context(), a.cache)
}
