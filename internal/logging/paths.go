package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.folder-mcp/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".folder-mcp", "logs")
	}
	return filepath.Join(home, ".folder-mcp", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// EmbedderLogPath returns the embedder backend log path.
func EmbedderLogPath() string {
	return filepath.Join(DefaultLogDir(), "embedder.log")
}

// LogSource represents the source of logs to view.
type LogSource string

const (
	// LogSourceGo is the Go server logs (default).
	LogSourceGo LogSource = "go"
	// LogSourceEmbedder is the embedder backend logs (e.g. a local Ollama process).
	LogSourceEmbedder LogSource = "embedder"
	// LogSourceAll combines all log sources.
	LogSourceAll LogSource = "all"
)

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.folder-mcp/logs/server.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	// Try global path
	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. No index or search run may have written one yet.\nExpected at: %s", globalPath)
}

// FindLogFileBySource finds log files based on the source type.
// Returns a list of log file paths that exist.
func FindLogFileBySource(source LogSource, explicit string) ([]string, error) {
	// Explicit path takes precedence
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return []string{explicit}, nil
		}
		return nil, fmt.Errorf("log file not found: %s", explicit)
	}

	var paths []string
	var checked []string

	switch source {
	case LogSourceGo:
		goPath := DefaultLogPath()
		checked = append(checked, goPath)
		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}

	case LogSourceEmbedder:
		embedderPath := EmbedderLogPath()
		checked = append(checked, embedderPath)
		if _, err := os.Stat(embedderPath); err == nil {
			paths = append(paths, embedderPath)
		}

	case LogSourceAll:
		goPath := DefaultLogPath()
		embedderPath := EmbedderLogPath()
		checked = append(checked, goPath, embedderPath)

		if _, err := os.Stat(goPath); err == nil {
			paths = append(paths, goPath)
		}
		if _, err := os.Stat(embedderPath); err == nil {
			paths = append(paths, embedderPath)
		}

	default:
		return nil, fmt.Errorf("unknown log source: %s (use: go, embedder, all)", source)
	}

	if len(paths) == 0 {
		hint := getLogHint(source)
		return nil, fmt.Errorf("no log files found for source '%s'.\nChecked: %v\n\n%s", source, checked, hint)
	}

	return paths, nil
}

// ParseLogSource parses a string into a LogSource.
func ParseLogSource(s string) LogSource {
	switch s {
	case "embedder":
		return LogSourceEmbedder
	case "all":
		return LogSourceAll
	default:
		return LogSourceGo
	}
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}

// getLogHint returns a helpful message on how to generate logs for the given source.
func getLogHint(source LogSource) string {
	switch source {
	case LogSourceGo:
		return "To generate Go server logs:\n  folderindexctl index <path>"
	case LogSourceEmbedder:
		return "To generate embedder backend logs, run the configured backend (e.g. `ollama serve`) with its own logging enabled"
	case LogSourceAll:
		return "To generate logs:\n  Go:  folderindexctl index <path>\n  Embedder: run the configured backend (e.g. `ollama serve`) with its own logging enabled"
	default:
		return ""
	}
}
