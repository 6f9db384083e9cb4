package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hupe1980/unibase"
)

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [file]",
		Short: "Index JSON-lines documents",
		Long: `Index documents read from a JSON-lines file (or stdin) and persist the
workspace. A document whose id already exists replaces the stored one; a
document without id gets a generated one.

Documents that do not fit the schema are reported and skipped.

Examples:
  unibase index books.jsonl
  cat books.jsonl | unibase index -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			return withWorkspace(cmd, true, func(ctx context.Context, db *unibase.Unibase) error {
				report, err := db.Index(ctx, docs)
				for _, r := range report.Rejected {
					log.Warn("Rejected document", "position", r.Position, "id", r.ID, "error", r.Err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "inserted=%d replaced=%d rejected=%d num_docs=%d\n",
					len(report.Inserted), len(report.Replaced), len(report.Rejected), db.NumDocs())
				return nil
			})
		},
	}
}

func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update [file]",
		Short: "Merge JSON-lines documents into stored documents",
		Long: `Update stored documents by id. Given fields and embeddings overwrite the
stored ones; everything else is kept. Unknown ids are reported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readInput(cmd, args)
			if err != nil {
				return err
			}

			return withWorkspace(cmd, true, func(ctx context.Context, db *unibase.Unibase) error {
				report, err := db.Update(ctx, docs)
				for _, r := range report.Rejected {
					log.Warn("Rejected update", "position", r.Position, "id", r.ID, "error", r.Err)
				}
				if err != nil {
					return err
				}
				printMutation(cmd, "updated", report)
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete documents by id",
		Long: `Delete documents by id, given as arguments or as the ids of the
documents in a JSON-lines file. Unknown ids are reported.

Examples:
  unibase delete book-1 book-2
  unibase delete --file stale.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := args
			if file != "" {
				docs, err := readInput(cmd, []string{file})
				if err != nil {
					return err
				}
				for _, d := range docs {
					ids = append(ids, d.ID)
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("no ids given")
			}

			return withWorkspace(cmd, true, func(ctx context.Context, db *unibase.Unibase) error {
				report, err := db.DeleteByID(ctx, ids...)
				if err != nil {
					return err
				}
				printMutation(cmd, "deleted", report)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON-lines file whose document ids are deleted")
	return cmd
}

func printMutation(cmd *cobra.Command, verb string, report unibase.MutationReport) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s=%d not_found=%d rejected=%d\n",
		verb, len(report.Applied), len(report.NotFound), len(report.Rejected))
	for _, id := range report.NotFound {
		log.Info("Document not found", "id", id)
	}
}
