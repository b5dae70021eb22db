package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/foldermcp/folderindex/internal/lifecycle"
	"github.com/foldermcp/folderindex/internal/output"
)

func newWatchCmd() *cobra.Command {
	var backend, metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Index a folder, then keep it current as files change",
		Long: `Watch performs an initial scan and index, then starts a
filesystem watcher that rescans on every batch of changes and
reconciles .gitignore edits, until interrupted with Ctrl+C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, path, backend, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend override")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090); empty disables it")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path, backend, metricsAddr string) error {
	out := output.New(cmd.OutOrStdout())

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() { _ = srv.ListenAndServe() }()
		go func() { <-ctx.Done(); _ = srv.Close() }()
		out.Statusf("📈", "Serving metrics on %s/metrics", metricsAddr)
	}

	f, err := openFolder(ctx, path, backend)
	if err != nil {
		return fmt.Errorf("open folder: %w", err)
	}
	defer f.Close()

	if err := f.Scan(ctx); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if f.State() != lifecycle.StateActive {
		if err := f.Index(ctx); err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}
	out.Successf("Watching %s for changes (Ctrl+C to stop)", f.Path())

	stopWatch, err := f.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer stopWatch()

	go func() {
		for ev := range f.Events() {
			if ev.Kind == lifecycle.EventKindError {
				out.Warningf("fault: %v", ev.Err)
			}
		}
	}()

	<-ctx.Done()
	out.Status("", "Stopping")
	return nil
}
