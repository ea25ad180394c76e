package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/storage"
)

func newCollectionCommand(opts *options) *cobra.Command {
	collectionCmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"collections"},
		Short:   "Manage document collections",
		Long: `A collection is a root directory and a glob pattern. Every matching file
below the root is indexed as a document named <collection>/<relative path>.`,
	}

	var name, glob string
	var noUpdate bool
	addCmd := &cobra.Command{
		Use:   "add <root>",
		Short: "Add a collection and index it",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			coll, err := a.indexer.AddCollection(cmd.Context(), name, args[0], glob)
			if err != nil {
				return err
			}
			cmd.Printf("Collection %s: %s (%s)\n", coll.Name, coll.Root, coll.Glob)
			if noUpdate {
				return nil
			}
			stats, err := a.indexer.Update(cmd.Context(), coll)
			if err != nil {
				return err
			}
			printUpdateStats(cmd, coll.Name, stats)
			return nil
		}),
	}
	addCmd.Flags().StringVar(&name, "name", "", "collection name (default: root directory name)")
	addCmd.Flags().StringVar(&glob, "glob", "", "file pattern relative to the root (default **/*.md)")
	addCmd.Flags().BoolVar(&noUpdate, "no-update", false, "register the collection without indexing it")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List collections",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			status, err := a.store.GetStatus(cmd.Context())
			if err != nil {
				return err
			}
			if len(status.Collections) == 0 {
				cmd.Println("No collections. Add one with: docsearch collection add <root>")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDOCUMENTS\tROOT\tGLOB\tUPDATED")
			for _, cs := range status.Collections {
				c := cs.Collection
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", c.Name, cs.ActiveDocuments, c.Root, c.Glob, c.UpdatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		}),
	}

	removeCmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove a collection; its documents become inactive",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			coll, err := a.store.GetCollection(cmd.Context(), args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("collection %q not found", args[0])
			}
			if err != nil {
				return err
			}
			n, err := a.store.DeleteCollection(cmd.Context(), coll.ID)
			if err != nil {
				return err
			}
			cmd.Printf("Removed collection %s (%d documents deactivated)\n", coll.Name, n)
			cmd.Println("Run 'docsearch cleanup' to drop vectors no document uses anymore.")
			return nil
		}),
	}

	collectionCmd.AddCommand(addCmd, listCmd, removeCmd)
	return collectionCmd
}
