// Package cli implements the docsearch command line.
package cli

import (
	"github.com/spf13/cobra"
)

// BuildInfo is stamped into the binary at link time
type BuildInfo struct {
	Version   string
	BuildTime string
}

// NewRootCommand assembles the command tree
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "docsearch",
		Short: "Local document search with BM25, embeddings and LLM reranking",
		Long: `docsearch indexes collections of text files into SQLite and searches them
three ways: keyword (search), semantic (vsearch) and hybrid with reranking (query).
Embeddings and reranking run against an Ollama-compatible endpoint.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.docsearch/config.toml)")
	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "index database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newCollectionCommand(opts),
		newUpdateCommand(opts),
		newEmbedCommand(opts),
		newSearchCommand(opts, searchModeLexical),
		newSearchCommand(opts, searchModeVector),
		newSearchCommand(opts, searchModeHybrid),
		newGetCommand(opts),
		newContextCommand(opts),
		newStatusCommand(opts),
		newCleanupCommand(opts),
		newWatchCommand(opts),
		newMCPCommand(opts, info),
		newVersionCommand(info),
	)
	return rootCmd
}

// withApp wraps a command body with opening and closing the app
func withApp(opts *options, fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(opts)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}
