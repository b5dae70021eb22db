package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foldermcp/folderindex/internal/output"
)

type searchOptions struct {
	path    string
	limit   int
	backend string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <path> <query>",
		Short: "Search an already-indexed folder",
		Long: `Search combines keyword (bleve, over each document's keyword
summary) and semantic (embedding) results with reciprocal rank fusion.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.path = args[0]
			query := strings.Join(args[1:], " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Embedding backend override")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if cleanup, err := setupLogging(opts.path); err == nil {
		defer cleanup()
	}

	f, err := openFolder(ctx, opts.path, opts.backend)
	if err != nil {
		return fmt.Errorf("open folder: %w", err)
	}
	defer f.Close()

	results, err := f.Search(ctx, query, opts.limit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := output.New(cmd.OutOrStdout())
	if len(results) == 0 {
		out.Status("", "No results")
		return nil
	}
	for i, r := range results {
		out.Statusf("", "%2d. %-50s score=%.3f %v", i+1, r.DocumentPath, r.Score, r.MatchedTerms)
	}
	return nil
}
