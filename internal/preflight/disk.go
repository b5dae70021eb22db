package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MinDiskSpaceBytes is the floor free-space requirement regardless of
// corpus size - an empty or near-empty folder still needs room for the
// SQLite metadata database and the bleve keyword index.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// IndexOverheadRatio estimates how much on-disk space indexing a folder
// adds relative to the folder's own source bytes: chunked text plus
// per-chunk metadata in SQLite, the bleve keyword index, and the vector
// store each roughly track corpus size. CheckDiskSpace uses it to scale
// the requirement up for large folders instead of only ever checking the
// fixed 100MB floor, which is only realistic for small ones.
const IndexOverheadRatio = 0.5

// CheckDiskSpace checks whether there's sufficient free disk space at path
// to hold both the floor requirement and the index artifacts a folder of
// path's current size is expected to produce.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)

	required := uint64(MinDiskSpaceBytes)
	if corpusBytes := estimateCorpusBytes(path); corpusBytes > 0 {
		if scaled := uint64(float64(corpusBytes) * IndexOverheadRatio); scaled > required {
			required = scaled
		}
	}

	result.Message = fmt.Sprintf("%s free (minimum: %s)", formatBytes(availableBytes), formatBytes(required))
	if availableBytes < required {
		result.Status = StatusFail
		return result
	}

	result.Status = StatusPass
	return result
}

// estimateCorpusBytes sums file sizes under path, skipping the directories
// a scan would also skip, as a cheap proxy for how much index data a full
// scan will produce. Errors walking individual entries are ignored; a
// partial count is still a useful lower bound.
func estimateCorpusBytes(path string) int64 {
	var total int64
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			switch info.Name() {
			case ".git", ".folder-mcp", "node_modules":
				return filepath.SkipDir
			}
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
