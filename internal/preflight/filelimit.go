package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MinFileDescriptors is the floor file descriptor requirement for a small
// folder - one fsnotify watch per directory plus headroom for the index DB,
// the bleve index, and the embedding backend's HTTP connections.
const MinFileDescriptors = 1024

// DirectoryFDHeadroom is added on top of a folder's own directory count so
// descriptors remain available for things other than fsnotify watches.
const DirectoryFDHeadroom = 768

// CheckFileDescriptors checks whether the file descriptor limit covers both
// the floor requirement and one recursive fsnotify watch per directory
// under path - the hybrid watcher (internal/watcher) opens a watch per
// directory it descends into, so a folder with many subdirectories needs a
// higher limit than the flat floor alone would catch.
func (c *Checker) CheckFileDescriptors(path string) CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	currentLimit := rLimit.Cur

	required := uint64(MinFileDescriptors)
	if dirs := countDirectories(path); dirs > 0 {
		if scaled := dirs + DirectoryFDHeadroom; scaled > required {
			required = scaled
		}
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", currentLimit, required)
	if currentLimit < required {
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
		return result
	}

	result.Status = StatusPass
	return result
}

// countDirectories counts directories under path, skipping the ones a scan
// would also skip, mirroring estimateCorpusBytes in disk.go.
func countDirectories(path string) uint64 {
	var count uint64
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		switch info.Name() {
		case ".git", ".folder-mcp", "node_modules":
			return filepath.SkipDir
		}
		count++
		return nil
	})
	return count
}
