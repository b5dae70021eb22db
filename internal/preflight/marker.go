package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile is the name of the file that indicates preflight checks have
// passed for a folder's data directory (<folder>/.folder-mcp).
const MarkerFile = ".preflight-passed"

// MarkerMaxAge bounds how long a passed preflight check stays valid. A
// folder that's indexed once and then left running for days on the same
// machine can still drift - disk fills up, an operator lowers the file
// descriptor ulimit - so NeedsCheck calls for a recheck past this age
// instead of trusting a marker forever.
const MarkerMaxAge = 24 * time.Hour

// NeedsCheck returns true if preflight checks should be (re)run: the
// marker file is missing, unreadable, or older than MarkerMaxAge.
func NeedsCheck(dataDir string) bool {
	markerPath := filepath.Join(dataDir, MarkerFile)
	content, err := os.ReadFile(markerPath)
	if err != nil {
		return true
	}

	t, err := time.Parse(time.RFC3339, string(content))
	if err != nil {
		return true
	}

	return time.Since(t) > MarkerMaxAge
}

// MarkPassed creates the marker file to indicate preflight checks passed.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	markerPath := filepath.Join(dataDir, MarkerFile)
	content := []byte(time.Now().Format(time.RFC3339))
	return os.WriteFile(markerPath, content, 0644)
}

// ClearMarker removes the marker file, forcing a re-check on next run.
func ClearMarker(dataDir string) error {
	markerPath := filepath.Join(dataDir, MarkerFile)
	err := os.Remove(markerPath)
	if os.IsNotExist(err) {
		return nil // Already gone
	}
	if err != nil {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the preflight check passed.
// Returns zero if marker doesn't exist or is unreadable.
func MarkerAge(dataDir string) time.Duration {
	markerPath := filepath.Join(dataDir, MarkerFile)
	content, err := os.ReadFile(markerPath)
	if err != nil {
		return 0
	}

	t, err := time.Parse(time.RFC3339, string(content))
	if err != nil {
		return 0
	}

	return time.Since(t)
}
