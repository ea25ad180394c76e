package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/config"
	"github.com/dshills/docsearch/internal/storage"
)

func newStatusCommand(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			status, err := a.store.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			// The sqlite backend's entries are already in status
			if a.cfg.Cache.Backend != config.CacheSQLite {
				if n, err := countCache(cmd, a); err == nil {
					status.CacheEntries = n
				}
			}
			if asJSON {
				data, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}
			printStatus(cmd, a, status)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output status as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, a *app, status *storage.Status) {
	cmd.Printf("Index: %s (%.2f MB, %s build)\n", a.cfg.DBPath, status.IndexSizeMB, storage.BuildMode)
	cmd.Printf("Documents: %d active, %d total\n", status.ActiveDocuments, status.TotalDocuments)
	cmd.Printf("Vectors: %d for %d fingerprints\n", status.Vectors, status.EmbeddedHashes)
	if status.VectorDimension > 0 {
		cmd.Printf("Embedding: %s, dimension %d\n", status.VectorModel, status.VectorDimension)
	}
	cmd.Printf("Needs embedding: %d\n", status.NeedsEmbedding)
	cmd.Printf("Cache entries: %d (%s)\n", status.CacheEntries, a.cfg.Cache.Backend)
	cmd.Printf("Path contexts: %d\n", status.PathContexts)
	if !status.LastUpdatedAt.IsZero() {
		cmd.Printf("Last update: %s\n", status.LastUpdatedAt.Local().Format(time.DateTime))
	}

	if len(status.Collections) == 0 {
		return
	}
	cmd.Println()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTION\tACTIVE\tINACTIVE\tROOT")
	for _, cs := range status.Collections {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", cs.Collection.Name, cs.ActiveDocuments, cs.InactiveDocuments, cs.Collection.Root)
	}
	_ = w.Flush()
}
