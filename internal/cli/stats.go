package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hupe1980/unibase"
)

func newStatsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show workspace statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, false, func(ctx context.Context, db *unibase.Unibase) error {
				s := db.Stats()
				out := cmd.OutOrStdout()

				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(s)
				}

				fmt.Fprintf(out, "workspace:  %s\n", s.Workspace)
				fmt.Fprintf(out, "backend:    %s\n", s.Backend)
				fmt.Fprintf(out, "metric:     %s\n", s.Metric)
				fmt.Fprintf(out, "num_docs:   %d\n", s.NumDocs)
				fmt.Fprintf(out, "rows:       %d\n", s.Rows)
				fmt.Fprintf(out, "memory:     %d bytes\n", s.MemoryBytes)
				for _, field := range slices.Sorted(maps.Keys(s.Dimensions)) {
					fmt.Fprintf(out, "field %-12s dim=%d\n", field, s.Dimensions[field])
					if g, ok := s.Graphs[field]; ok {
						fmt.Fprint(out, g.String())
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output statistics as JSON")
	return cmd
}

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Reclaim space held by deleted documents and persist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, true, func(ctx context.Context, db *unibase.Unibase) error {
				return db.Compact(ctx)
			})
		},
	}
}
