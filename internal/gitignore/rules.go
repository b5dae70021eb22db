package gitignore

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/foldermcp/folderindex/internal/kerrors"
)

// Rules is the IgnoreRules capability from §6: a folder's combined ignore
// surface, built from its (possibly nested) .gitignore files plus the
// configuration's supportedExtensions/ignorePatterns globs. Gitignore
// syntax is handled by Matcher, which also takes the configured
// ignorePatterns as gitignore patterns; the supportedExtensions globs are
// matched against a file's base name with doublestar's glob syntax.
type Rules struct {
	matcher           *Matcher
	supportedGlobs    []string
	additionalIgnores []string
}

// defaultIgnorePatterns are always active, per §6's configuration table.
var defaultIgnorePatterns = []string{".git", "node_modules", ".folder-mcp"}

// Load reads folder/.gitignore (if present), every nested .gitignore found
// under folder, and combines them with the configured extension and ignore
// globs. It never fails on a missing .gitignore — absence just means no
// gitignore-sourced rules; a nested .gitignore that fails to read only logs
// a warning, since one unreadable nested file must not block the rest of the
// folder's ignore surface from loading.
func Load(folder string, supportedExtensions, ignorePatterns []string) (*Rules, error) {
	m := New()
	for _, p := range defaultIgnorePatterns {
		m.AddPattern(p)
	}
	for _, p := range ignorePatterns {
		m.AddPattern(p)
	}

	root := filepath.Join(folder, ".gitignore")
	if _, err := os.Stat(root); err == nil {
		if err := m.AddFromFile(root, ""); err != nil {
			return nil, kerrors.Read("load root .gitignore", err)
		}
	}

	_ = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping directory while loading nested gitignore rules",
				slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if d.IsDir() || d.Name() != ".gitignore" || path == root {
			return nil
		}
		base, relErr := filepath.Rel(folder, filepath.Dir(path))
		if relErr != nil {
			return nil
		}
		if err := m.AddFromFile(path, base); err != nil {
			slog.Warn("failed to read nested .gitignore",
				slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})

	globs := make([]string, len(supportedExtensions))
	for i, ext := range supportedExtensions {
		if ext != "" && ext[0] != '*' {
			ext = "*" + ext
		}
		globs[i] = ext
	}

	return &Rules{matcher: m, supportedGlobs: globs}, nil
}

// ShouldIgnore reports whether path (relative to folder) should be skipped:
// either it matches a gitignore-derived rule, or it fails to match any
// configured supportedExtensions glob when extensions were configured.
func (r *Rules) ShouldIgnore(path string, isDir bool) bool {
	if r.matcher.Match(path, isDir) {
		return true
	}
	if isDir || len(r.supportedGlobs) == 0 {
		return false
	}
	for _, g := range r.supportedGlobs {
		if ok, _ := doublestar.Match(g, filepath.Base(path)); ok {
			return false
		}
	}
	return true
}

// ParsePatterns extracts the active (non-comment, non-blank) pattern lines
// from a .gitignore file's raw content, in file order.
func ParsePatterns(content string) []string {
	var patterns []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`)) {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// DiffPatterns reports which patterns were added and removed between two
// revisions of a folder's .gitignore content. ReconcileGitignore uses this
// to re-scan only the paths whose ignored status could have flipped, rather
// than re-walking the whole folder on every gitignore edit.
func DiffPatterns(oldContent, newContent string) (added, removed []string) {
	oldSet := make(map[string]struct{})
	for _, p := range ParsePatterns(oldContent) {
		oldSet[p] = struct{}{}
	}
	newSet := make(map[string]struct{})
	for _, p := range ParsePatterns(newContent) {
		newSet[p] = struct{}{}
	}

	for p := range newSet {
		if _, ok := oldSet[p]; !ok {
			added = append(added, p)
		}
	}
	for p := range oldSet {
		if _, ok := newSet[p]; !ok {
			removed = append(removed, p)
		}
	}
	return added, removed
}

// MatchesAnyPattern builds a throwaway Matcher from patterns and reports
// whether path matches any of them. Used by ReconcileGitignore to classify
// a path against just the added/removed pattern set instead of the folder's
// full combined Rules.
func MatchesAnyPattern(path string, patterns []string) bool {
	m := New()
	for _, p := range patterns {
		m.AddPattern(p)
	}
	return m.Match(path, false)
}
