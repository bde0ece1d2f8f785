// Package cmd defines and implements the CLI commands for the newscrawl executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "newscrawl",
		Short: "Keyword-driven news article discovery and extraction",
		Long: `newscrawl searches configured news sources for a keyword, renders the
discovered article pages headlessly, and extracts title and body text.
Results can be persisted to Postgres when a database DSN is configured.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus NEWSCRAWL_* env)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newSourcesCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
