package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/storage"
)

func newGetCommand(opts *options) *cobra.Command {
	var header bool
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Print a document by its display path",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ctx := cmd.Context()
			doc, err := a.store.GetDocumentByDisplayPath(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("document %q not found", args[0])
			}
			if err != nil {
				return err
			}
			if doc, err = a.store.GetDocument(ctx, doc.ID); err != nil {
				return err
			}

			if header {
				cmd.Printf("Path: %s\nTitle: %s\nHash: %s\n", doc.DisplayPath, doc.Title, doc.Hash)
				if pc, err := a.store.FindPathContext(ctx, doc.DisplayPath); err == nil {
					cmd.Printf("Context: %s\n", pc.Context)
				}
				cmd.Println()
			}
			cmd.Print(doc.Body)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&header, "header", false, "print path, title, hash and context before the body")
	return cmd
}
