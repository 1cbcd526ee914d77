package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var reindexForce bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Index new or changed documents in the knowledge base folder",
	Long:  "Scans the knowledge base folder and updates the document index. The server must be stopped, the index is opened exclusively.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ai := openGenAI(cfg)
		if ai == nil {
			return errors.New("OPENAI_API_KEY is required to build embeddings")
		}
		index, ingester, err := openIngester(cfg, ai, openGoogle(cmd.Context(), cfg))
		if err != nil {
			return err
		}
		defer index.Close()

		report, err := ingester.SyncFolder(cmd.Context(), reindexForce || cfg.ForceReindex)
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d, unchanged %d, failed %d, removed %d\n",
			report.Indexed, report.Unchanged, report.Failed, report.Removed)
		return err
	},
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexForce, "force", false, "Clear the index and processed log before scanning (overrides $FORCE_REINDEX)")
	RootCmd.AddCommand(reindexCmd)
}
