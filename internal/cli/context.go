package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/docsearch/internal/storage"
)

func newContextCommand(opts *options) *cobra.Command {
	contextCmd := &cobra.Command{
		Use:   "context",
		Short: "Manage path contexts",
		Long: `A path context is a note attached to a display-path prefix, such as
"notes/work" or "notes". Search results show the context of the longest prefix
covering them. An empty prefix ("") sets a global context.`,
	}

	addCmd := &cobra.Command{
		Use:   "add <prefix> <text>",
		Short: "Set the context for a path prefix",
		Args:  cobra.MinimumNArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			text := strings.Join(args[1:], " ")
			if err := a.store.SetPathContext(cmd.Context(), args[0], text); err != nil {
				return err
			}
			cmd.Printf("Context set for %q\n", args[0])
			return nil
		}),
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List path contexts",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, _ []string) error {
			contexts, err := a.store.ListPathContexts(cmd.Context())
			if err != nil {
				return err
			}
			if len(contexts) == 0 {
				cmd.Println("No path contexts.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PREFIX\tCONTEXT")
			for _, pc := range contexts {
				prefix := pc.Prefix
				if prefix == "" {
					prefix = "(global)"
				}
				fmt.Fprintf(w, "%s\t%s\n", prefix, pc.Context)
			}
			return w.Flush()
		}),
	}

	removeCmd := &cobra.Command{
		Use:     "rm <prefix>",
		Aliases: []string{"remove"},
		Short:   "Remove the context of a path prefix",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			err := a.store.DeletePathContext(cmd.Context(), args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no context for %q", args[0])
			}
			if err != nil {
				return err
			}
			cmd.Printf("Context removed for %q\n", args[0])
			return nil
		}),
	}

	contextCmd.AddCommand(addCmd, listCmd, removeCmd)
	return contextCmd
}
