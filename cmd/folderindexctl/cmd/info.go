package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldermcp/folderindex/internal/output"
)

func newInfoCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Show the current state of a folder's index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runInfo(cmd, path, backend)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend override")
	return cmd
}

func runInfo(cmd *cobra.Command, path, backend string) error {
	ctx := cmd.Context()
	f, err := openFolder(ctx, path, backend)
	if err != nil {
		return fmt.Errorf("open folder: %w", err)
	}
	defer f.Close()

	info, err := f.Info(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "folder:     %s", info.Folder)
	out.Statusf("", "state:      %s", info.State)
	out.Statusf("", "documents:  %d", info.DocumentCount)
	out.Statusf("", "embeddings: %d", info.EmbeddingCount)
	out.Statusf("", "dimension:  %d (matches configured embedder: %t)", info.Dimension, info.DimensionMatches)
	return nil
}
