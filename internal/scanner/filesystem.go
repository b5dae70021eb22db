package scanner

import (
	"context"
	"os"
	"path/filepath"

	"github.com/foldermcp/folderindex/internal/gitignore"
	"github.com/foldermcp/folderindex/internal/kerrors"
	"github.com/foldermcp/folderindex/internal/watcher"
)

// FileSystem is the §6 FileSystem capability: scan, metadata, read, watch.
type FileSystem interface {
	Scan(ctx context.Context, folder string) ([]FileEntry, error)
	Metadata(path string) (FileEntry, error)
	Read(path string) ([]byte, error)
	Watch(ctx context.Context, folder string, callback func(watcher.FileEvent)) (stop func() error, err error)
}

// OSFileSystem is the concrete FileSystem backed by the local disk, the
// Scanner walk, and a HybridWatcher for live changes.
type OSFileSystem struct {
	scanner             *Scanner
	rules               *gitignore.Rules
	opts                ScanOptions
	supportedExtensions []string
	ignorePatterns      []string
}

// NewOSFileSystem builds the default FileSystem, loading ignore rules from
// folder (§6's IgnoreRules.load).
func NewOSFileSystem(folder string, supportedExtensions, ignorePatterns []string, opts ScanOptions) (*OSFileSystem, error) {
	s, err := New()
	if err != nil {
		return nil, err
	}
	rules, err := gitignore.Load(folder, supportedExtensions, ignorePatterns)
	if err != nil {
		return nil, err
	}
	return &OSFileSystem{
		scanner:             s,
		rules:               rules,
		opts:                opts,
		supportedExtensions: supportedExtensions,
		ignorePatterns:      ignorePatterns,
	}, nil
}

func (fs *OSFileSystem) Scan(ctx context.Context, folder string) ([]FileEntry, error) {
	return fs.scanner.Scan(ctx, folder, fs.rules, fs.opts)
}

func (fs *OSFileSystem) Metadata(path string) (FileEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileEntry{}, kerrors.Read("stat file", err)
	}
	language := DetectLanguage(path)
	return FileEntry{
		Path:        filepath.Base(path),
		AbsPath:     path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: DetectContentType(language),
		Language:    language,
	}, nil
}

func (fs *OSFileSystem) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerrors.Read("read file", err)
	}
	return data, nil
}

// Watch starts a HybridWatcher over folder and invokes callback for every
// event in every debounced batch until the returned stop func is called or
// ctx is cancelled. A ".gitignore" change also invalidates the scanner's
// nested-matcher cache, since the cached matchers may now be stale.
func (fs *OSFileSystem) Watch(ctx context.Context, folder string, callback func(watcher.FileEvent)) (func() error, error) {
	opts := watcher.DefaultOptions()
	opts.SupportedExtensions = fs.supportedExtensions
	opts.IgnorePatterns = fs.ignorePatterns
	w, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrRead, "create watcher", err)
	}

	go func() {
		for batch := range w.Events() {
			for _, ev := range batch {
				if ev.Operation == watcher.OpGitignoreChange {
					fs.scanner.InvalidateGitignoreCache()
				}
				callback(ev)
			}
		}
	}()

	go func() {
		_ = w.Start(ctx, folder)
	}()

	return w.Stop, nil
}
