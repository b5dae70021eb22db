package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/foldermcp/folderindex/internal/config"
	"github.com/foldermcp/folderindex/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "doctor [path]",
		Short: "Check system requirements before indexing a folder",
		Long: `Doctor runs system diagnostics: disk space, memory, write
permissions, file descriptor limits, and (for the onnx backend) whether
the embedding model has been downloaded.

A passing result is remembered in <path>/.folder-mcp for
preflight.MarkerMaxAge, so 'index' won't repeat the same checks on every
run; --force re-runs them regardless of when they last passed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runDoctor(cmd, path, verbose, jsonOutput, force)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&force, "force", false, "Recheck even if a recent check already passed")

	return cmd
}

func runDoctor(cmd *cobra.Command, path string, verbose, jsonOutput, force bool) error {
	ctx := cmd.Context()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	dataDir := filepath.Join(absPath, ".folder-mcp")

	if !force && !preflight.NeedsCheck(dataDir) {
		age := preflight.MarkerAge(dataDir)
		fmt.Fprintf(cmd.OutOrStdout(), "Already checked %s ago; use --force to recheck.\n", age.Round(time.Second))
		return nil
	}

	onnxModelDir := ""
	if cfg, err := config.Load(path); err == nil {
		onnxModelDir = cfg.Embedding.ONNXModelDir
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)

	results := checker.RunAll(ctx, absPath, onnxModelDir)

	if jsonOutput {
		if err := writeDoctorJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		_ = preflight.ClearMarker(dataDir)
		return fmt.Errorf("system check failed")
	}

	if err := preflight.MarkPassed(dataDir); err != nil {
		return fmt.Errorf("record preflight result: %w", err)
	}
	return nil
}

type doctorJSONResult struct {
	Status   string            `json:"status"`
	Checks   []doctorJSONCheck `json:"checks"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

type doctorJSONCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func writeDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSONResult{
		Status: checker.SummaryStatus(results),
		Checks: make([]doctorJSONCheck, len(results)),
	}
	for i, r := range results {
		out.Checks[i] = doctorJSONCheck{
			Name:     r.Name,
			Status:   doctorStatusString(r.Status),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func doctorStatusString(s preflight.CheckStatus) string {
	switch s {
	case preflight.StatusPass:
		return "pass"
	case preflight.StatusWarn:
		return "warn"
	case preflight.StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}
