// Package cli implements the command-line interface for unibase.
package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/unibase/internal/config"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute builds the command tree and runs it.
// This is called by main.main().
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd returns the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	var (
		cfgFile string
		debug   bool
	)

	rootCmd := &cobra.Command{
		Use:   "unibase",
		Short: "Document-oriented nearest-neighbor index",
		Long: `unibase stores documents with embedding vectors in a workspace and
answers exact or approximate nearest-neighbor queries against them.

Documents are read and written as JSON lines:
  {"id":"book-1","fields":{"text":"A story"},"embeddings":{"embedding":[0.1,0.2]}}

Examples:
  # Index documents into ./books
  unibase index books.jsonl --workspace ./books

  # Find the 5 nearest documents for each query
  unibase search queries.jsonl --workspace ./books --limit 5

  # Use a graph index stored in S3
  UNIBASE_WORKSPACE_STORE=s3 UNIBASE_WORKSPACE_S3_BUCKET=my-bucket \
    unibase index books.jsonl --workspace books/ --backend hnsw`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(cfgFile); err != nil {
				return err
			}
			if debug {
				config.Get().Log.Level = "debug"
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./unibase.yaml)")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.StringP("workspace", "w", config.DefaultWorkspace, "workspace directory or bucket prefix")
	flags.String("store", config.DefaultStore, "workspace store: local, memory, s3 or minio")
	flags.String("backend", config.DefaultBackend, "index backend for new workspaces: flat or hnsw")
	flags.String("metric", config.DefaultMetric, "distance metric for new workspaces: cosine, l2 or dot")

	// Bind flags to viper
	_ = viper.BindPFlag("workspace.path", flags.Lookup("workspace"))
	_ = viper.BindPFlag("workspace.store", flags.Lookup("store"))
	_ = viper.BindPFlag("index.backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("index.metric", flags.Lookup("metric"))

	rootCmd.AddCommand(
		newIndexCmd(),
		newUpdateCmd(),
		newDeleteCmd(),
		newGetCmd(),
		newSearchCmd(),
		newStatsCmd(),
		newCompactCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// newVersionCmd shows version information
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "unibase %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
			log.Debug("version printed")
		},
	}
}
