package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foldermcp/folderindex/configs"
	"github.com/foldermcp/folderindex/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a .folder-mcp.yaml template for a folder",
		Long: `Init writes a commented .folder-mcp.yaml template into the target
folder so its indexing/embedding/queue settings can be tuned and checked
into version control. It never overwrites an existing file unless --force
is given, and adds .folder-mcp/ to .gitignore if a .gitignore is present.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing .folder-mcp.yaml")
	return cmd
}

func runInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := writeConfigTemplate(out, absPath, force); err != nil {
		return err
	}
	if err := ensureGitignored(out, absPath); err != nil {
		out.Warningf("could not update .gitignore: %v", err)
	}

	out.Success("Ready. Run 'folderindexctl watch' to start indexing.")
	return nil
}

// writeConfigTemplate writes the embedded template to .folder-mcp.yaml
// unless it (or its .yml twin) already exists and force is false.
func writeConfigTemplate(out *output.Writer, folderPath string, force bool) error {
	yamlPath := filepath.Join(folderPath, ".folder-mcp.yaml")
	ymlPath := filepath.Join(folderPath, ".folder-mcp.yml")

	if !force {
		for _, p := range []string{yamlPath, ymlPath} {
			if _, err := os.Stat(p); err == nil {
				out.Statusf("ℹ️ ", "Existing %s preserved", filepath.Base(p))
				return nil
			}
		}
	}

	if err := os.WriteFile(yamlPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write .folder-mcp.yaml: %w", err)
	}
	out.Statusf("📝", "Created %s", yamlPath)
	return nil
}

// ensureGitignored adds .folder-mcp/ to an existing .gitignore. It is a
// no-op (not an error) when no .gitignore exists; folderindexctl does not
// create one on a caller's behalf.
func ensureGitignored(out *output.Writer, folderPath string) error {
	gitignorePath := filepath.Join(folderPath, ".gitignore")

	content, err := os.ReadFile(gitignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, pattern := range []string{".folder-mcp", ".folder-mcp/", "/.folder-mcp", "/.folder-mcp/"} {
		if bytes.Contains(content, []byte(pattern+"\n")) || bytes.HasSuffix(bytes.TrimSpace(content), []byte(pattern)) {
			return nil
		}
	}

	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		content = append(content, '\n')
	}
	content = append(content, []byte("# folderindexctl index data (auto-generated)\n.folder-mcp/\n")...)

	if err := os.WriteFile(gitignorePath, content, 0o644); err != nil {
		return err
	}
	out.Status("📝", "Added .folder-mcp/ to .gitignore")
	return nil
}
