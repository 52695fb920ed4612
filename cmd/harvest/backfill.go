package main

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"litgraph/internal/app"
	"litgraph/internal/importer"
)

var (
	backfillWorks string
	backfillAPI   bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill [doi...]",
	Short: "Add citations to papers that have none",
	Long: `Merge the reference lists of Crossref works into papers without a
bibliography. Works come either from a file holding one Crossref work object
per line (--works) or from the Crossref API for the given DOIs (--api).
DOIs may also be read from stdin, one per line, when none are given.

Examples:
  harvest backfill --works crossref-2024-01.jsonl
  harvest backfill --api 10.1000/xyz123 10.1000/abc456`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if hasWorks := backfillWorks != ""; hasWorks == backfillAPI {
			return errors.New("choose exactly one of --works or --api")
		}
		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			if backfillAPI {
				dois := args
				if len(dois) == 0 {
					var err error
					if dois, err = readLines(cmd.InOrStdin()); err != nil {
						return err
					}
				}
				return a.Enrichment().Enrich(ctx, dois)
			}

			f, err := os.Open(backfillWorks)
			if err != nil {
				return err
			}
			defer f.Close()
			records, bad, err := importer.ReadCrossrefWorks(f, a.Resolver)
			if err != nil {
				return err
			}
			for _, e := range bad {
				a.Logger.WarnContext(ctx, "skipping crossref work", "file", backfillWorks, "error", e)
			}
			stats, err := a.Backfiller.Add(ctx, records)
			if err != nil {
				return err
			}
			a.Logger.InfoContext(ctx, "backfill finished",
				"records", len(records),
				"added", stats.Added,
				"missing", stats.Missing,
				"mismatch", stats.Mismatch,
				"skipped", stats.Skipped,
			)
			return nil
		})
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillWorks, "works", "", "File of Crossref work objects, one per line")
	backfillCmd.Flags().BoolVar(&backfillAPI, "api", false, "Fetch the works of the given DOIs from Crossref")
	rootCmd.AddCommand(backfillCmd)
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
