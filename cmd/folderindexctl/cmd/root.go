// Package cmd provides the CLI commands for folderindexctl.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldermcp/folderindex/internal/profiling"
	"github.com/foldermcp/folderindex/pkg/version"
)

// Profiling flags, shared across every subcommand via PersistentFlags.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// NewRootCmd creates the root command for the folderindexctl CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folderindexctl",
		Short: "Semantic index over a local folder",
		Long: `folderindexctl builds and queries a per-folder semantic index:
hybrid keyword + embedding search over a directory tree, kept current
by watching for changes.

Run 'folderindexctl index <path>' to build an index, then
'folderindexctl search <path> <query>' to query it.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("folderindexctl version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write a CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write a heap profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write an execution trace to file")
	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfiling

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

func startProfiling(_ *cobra.Command, _ []string) error {
	var err error
	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("start cpu profile: %w", err)
		}
	}
	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("start trace: %w", err)
		}
	}
	return nil
}

func stopProfiling(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("write heap profile: %w", err)
		}
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
