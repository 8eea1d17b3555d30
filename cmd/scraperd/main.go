// Command scraperd runs the scraping core as a standalone daemon: an Admin
// HTTP API, a cron-driven scheduler, and the orchestrator coordinating every
// registered Source Adapter.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scraperd",
	Short: "Scraping core daemon: admin API, scheduler, and content pipeline",
	Long: `scraperd polls configured RSS/Atom sources for content matching a set
of keywords, deduplicates and persists it to MongoDB, and exposes an admin
HTTP API to trigger and monitor runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(scrapeOnceCmd)
}

var scrapeOnceCmd = &cobra.Command{
	Use:   "scrape [adapter]",
	Short: "Run a single scraping pass and exit, optionally for one named adapter",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		return runOnce(cmd.Context(), name)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
