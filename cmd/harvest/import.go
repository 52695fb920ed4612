package main

import (
	"github.com/spf13/cobra"

	"litgraph/internal/app"
)

var importDir string

var importCmd = &cobra.Command{
	Use:   "import [source...]",
	Short: "Import pending batch files of each source",
	Long: `Import every batch file newer than the stored cursor of each source.

Sources default to HARVEST_SOURCES and run concurrently. A run holding the
same source elsewhere makes that source fail; the others continue.

Examples:
  harvest import
  harvest import arxiv biorxiv --dir /var/lib/litgraph/harvest`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			if importDir != "" {
				a.Config.Import.Dir = importDir
			}
			sources := args
			if len(sources) == 0 {
				sources = a.Config.Import.Sources
			}
			return a.Harvest(cmd.Context(), sources)
		})
	},
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "Override HARVEST_DIR")
	rootCmd.AddCommand(importCmd)
}
