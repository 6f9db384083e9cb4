package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/unibase"
	"github.com/hupe1980/unibase/model"
)

func newSearchCmd() *cobra.Command {
	var (
		limit int
		field string
		ef    int
	)

	cmd := &cobra.Command{
		Use:   "search [file]",
		Short: "Find the nearest documents for JSON-lines queries",
		Long: `Search the workspace with query documents read from a JSON-lines file (or
stdin). One JSON line is written per query, in input order:

  {"query":{...},"matches":[{"id":"book-1","score":0.98,"distance":0.02,...}]}

Examples:
  unibase search queries.jsonl --limit 5
  unibase search queries.jsonl --field title --ef 128`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			return withWorkspace(cmd, false, func(ctx context.Context, db *unibase.Unibase) error {
				results, err := db.Search(ctx, queries,
					unibase.WithLimit(limit),
					unibase.WithSearchField(field),
					unibase.WithEF(ef),
				)
				if err != nil {
					return err
				}
				return writeLines(cmd.OutOrStdout(), results)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "m", unibase.DefaultLimit, "maximum number of matches per query")
	cmd.Flags().StringVar(&field, "field", "", "embedding field to search (required with several fields)")
	cmd.Flags().IntVar(&ef, "ef", 0, "graph search beam width (hnsw only)")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>...",
		Short: "Print stored documents by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, false, func(ctx context.Context, db *unibase.Unibase) error {
				var found []model.Document
				var missing []string
				for _, id := range args {
					doc, ok := db.GetByID(id)
					if !ok {
						missing = append(missing, id)
						continue
					}
					found = append(found, doc)
				}
				if err := writeLines(cmd.OutOrStdout(), found); err != nil {
					return err
				}
				if len(missing) > 0 {
					return fmt.Errorf("not found: %v", missing)
				}
				return nil
			})
		},
	}
}
