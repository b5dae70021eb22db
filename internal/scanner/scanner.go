package scanner

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/foldermcp/folderindex/internal/gitignore"
	"github.com/foldermcp/folderindex/internal/kerrors"
)

// gitignoreCacheSize bounds the memoized-matcher cache so a long-running
// service watching many nested directories does not grow unbounded.
const gitignoreCacheSize = 1000

// sensitiveFilePatterns are never indexed regardless of ignorePatterns
// configuration, matching the teacher's hard-coded secret-avoidance list.
var sensitiveFilePatterns = []string{
	".env", ".env.*", "*.pem", "*.key", "*.p12", "*.pfx",
	"*credentials*", "*secrets*", "*password*", ".netrc", ".npmrc",
	"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519",
}

var defaultExcludeDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "__pycache__": true,
	".folder-mcp": true,
}

// Scanner implements a single-folder walk, filtered by a Rules matcher and
// a nested-.gitignore cache. It is the core of the FileSystem capability.
type Scanner struct {
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
	cacheMu        sync.RWMutex
}

// New creates a Scanner with a bounded gitignore-matcher cache.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrRead, "create gitignore cache", err)
	}
	return &Scanner{gitignoreCache: cache}, nil
}

// Scan walks folder and returns every file rules permits, skipping
// sensitive files, oversized files, and binary content. It is synchronous;
// callers needing streaming behavior for very large trees can wrap it.
func (s *Scanner) Scan(ctx context.Context, folder string, rules *gitignore.Rules, opts ScanOptions) ([]FileEntry, error) {
	absRoot, err := filepath.Abs(folder)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrRead, "resolve folder path", err)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	var entries []FileEntry
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if walkErr != nil {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}

		if d.IsDir() {
			if defaultExcludeDirs[d.Name()] || (rules != nil && rules.ShouldIgnore(relPath, true)) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}
		if matchesSensitivePattern(d.Name()) {
			return nil
		}
		if rules != nil && rules.ShouldIgnore(relPath, false) {
			return nil
		}
		if s.isNestedGitignored(absRoot, relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}
		if isBinaryFile(path) {
			return nil
		}

		language := DetectLanguage(relPath)
		entries = append(entries, FileEntry{
			Path:        relPath,
			AbsPath:     path,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			ContentType: DetectContentType(language),
			Language:    language,
		})
		return nil
	})
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrRead, "walk folder", err)
	}
	return entries, nil
}

// isNestedGitignored checks every .gitignore between the folder root and
// the file's directory, memoizing each directory's Matcher in the LRU
// cache keyed by absolute directory path. Rules.Load already folds in the
// nested .gitignore files present when it ran; this check reads them again
// through the cache, which InvalidateGitignoreCache empties when a watched
// .gitignore changes.
func (s *Scanner) isNestedGitignored(absRoot, relPath string) bool {
	dir := filepath.Dir(relPath)
	if dir == "." {
		return false
	}
	parts := splitPath(dir)
	currentDir := absRoot
	currentBase := ""
	for _, part := range parts {
		currentDir = filepath.Join(currentDir, part)
		if currentBase == "" {
			currentBase = part
		} else {
			currentBase = filepath.Join(currentBase, part)
		}
		matcher := s.nestedMatcher(currentDir, currentBase)
		if matcher != nil && matcher.Match(relPath, false) {
			return true
		}
	}
	return false
}

func (s *Scanner) nestedMatcher(dir, base string) *gitignore.Matcher {
	s.cacheMu.RLock()
	m, ok := s.gitignoreCache.Get(dir)
	s.cacheMu.RUnlock()
	if ok {
		return m
	}

	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	matcher := gitignore.New()
	if err := matcher.AddFromFile(path, base); err != nil {
		return nil
	}

	s.cacheMu.Lock()
	s.gitignoreCache.Add(dir, matcher)
	s.cacheMu.Unlock()
	return matcher
}

// InvalidateGitignoreCache drops all memoized nested matchers, called when
// a watched .gitignore changes (SPEC_FULL §12's reconciliation path).
func (s *Scanner) InvalidateGitignoreCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gitignoreCache.Purge()
}

func matchesSensitivePattern(name string) bool {
	for _, pattern := range sensitiveFilePatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return false
	}
	return bytes.Contains(buf[:n], []byte{0})
}

func splitPath(p string) []string {
	var parts []string
	var cur string
	for _, r := range p {
		if r == filepath.Separator {
			if cur != "" {
				parts = append(parts, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		parts = append(parts, cur)
	}
	return parts
}
