package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/foldermcp/folderindex/internal/lifecycle"
	"github.com/foldermcp/folderindex/internal/output"
	"github.com/foldermcp/folderindex/internal/preflight"
	"github.com/foldermcp/folderindex/pkg/folder"
)

func newIndexCmd() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Scan and index a directory for searching",
		Long: `Index a directory to enable hybrid search over its contents.

This scans files, detects what changed since the last run, chunks and
embeds the changed files, and updates both the vector and keyword
indices. An unchanged folder re-validates and returns immediately.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, backend)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: ollama (default), openai, or onnx")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path, backend string) error {
	if cleanup, err := setupLogging(path); err == nil {
		defer cleanup()
	}

	out := output.New(cmd.OutOrStdout())

	if err := ensurePreflightPassed(ctx, path, out); err != nil {
		return err
	}

	f, err := openFolder(ctx, path, backend)
	if err != nil {
		return fmt.Errorf("open folder: %w", err)
	}
	defer f.Close()

	out.Statusf("🔍", "Scanning %s", f.Path())
	if err := f.Scan(ctx); err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if f.State() == lifecycle.StateActive {
		out.Success("Already up to date")
		return printInfo(ctx, out, f)
	}

	out.Status("⚙️", "Indexing changed files")
	if err := f.Index(ctx); err != nil {
		return fmt.Errorf("index: %w", err)
	}

	out.Success("Index complete")
	return printInfo(ctx, out, f)
}

// ensurePreflightPassed runs system checks once per folder and remembers
// the result in <path>/.folder-mcp, so routine re-indexing doesn't re-walk
// the folder to recheck disk space and descriptor limits every run. A
// stale or missing marker (see preflight.NeedsCheck) triggers a fresh
// check; a critical failure blocks indexing instead of failing partway
// through a scan.
func ensurePreflightPassed(ctx context.Context, path string, out *output.Writer) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	dataDir := filepath.Join(absPath, ".folder-mcp")
	if !preflight.NeedsCheck(dataDir) {
		return nil
	}

	checker := preflight.New(preflight.WithOutput(io.Discard))
	results := checker.RunAll(ctx, absPath, "")
	if checker.HasCriticalFailures(results) {
		out.Status("⚠️", "Preflight check failed")
		for _, r := range results {
			if r.IsCritical() {
				out.Statusf("", "%s: %s", r.Name, r.Message)
			}
		}
		return fmt.Errorf("preflight check failed; run 'folderindexctl doctor %s' for details", path)
	}

	if err := preflight.MarkPassed(dataDir); err != nil {
		return fmt.Errorf("record preflight result: %w", err)
	}
	return nil
}

func printInfo(ctx context.Context, out *output.Writer, f *folder.Folder) error {
	info, err := f.Info(ctx)
	if err != nil {
		return err
	}
	out.Statusf("", "%d documents, %d embeddings, dimension %d", info.DocumentCount, info.EmbeddingCount, info.Dimension)
	return nil
}
