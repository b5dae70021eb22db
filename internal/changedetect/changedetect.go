// Package changedetect implements C6 ChangeDetector (§4.6): turning a fresh
// directory scan into the set of FileChanges a folder's TaskQueue should
// process, plus the periodic orphan sweep that removes documents for files
// no longer on disk.
package changedetect

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/foldermcp/folderindex/internal/filestate"
	"github.com/foldermcp/folderindex/internal/fingerprint"
	"github.com/foldermcp/folderindex/internal/kerrors"
	"github.com/foldermcp/folderindex/internal/queue"
	"github.com/foldermcp/folderindex/internal/store"
)

// Kind mirrors queue.Kind's closed enum for the FileChange this package
// produces, kept distinct from queue.Kind so this package has no import-time
// dependency on how the caller schedules work.
type Kind string

const (
	KindAdded    Kind = "added"
	KindModified Kind = "modified"
	KindRemoved  Kind = "removed"
)

// FileChange is one file that should be enqueued for processing (§4.6).
type FileChange struct {
	Path string
	Kind Kind
	Size int64
	Hash fingerprint.Hash
}

// DefaultOrphanInterval is the default cadence for the orphan sweep (§6's
// orphanCleanupIntervalMs default, 1 hour).
const DefaultOrphanInterval = time.Hour

// FileEntry is the minimal shape this package needs from a scan result.
type FileEntry struct {
	Path    string // relative to the folder root
	AbsPath string
	Size    int64
}

// Detector computes FileChanges from a scan and runs the orphan sweep. It is
// one folder's worth of state: the last time orphan cleanup ran.
type Detector struct {
	fileStates     *filestate.Store
	vectors        store.VectorStore
	fs             fingerprint.FileSystem
	orphanInterval time.Duration

	lastOrphanSweep time.Time
}

// New builds a Detector over one folder's FileStateStore and VectorStore.
// A zero orphanInterval defaults to DefaultOrphanInterval.
func New(fileStates *filestate.Store, vectors store.VectorStore, fs fingerprint.FileSystem, orphanInterval time.Duration) *Detector {
	if orphanInterval <= 0 {
		orphanInterval = DefaultOrphanInterval
	}
	if fs == nil {
		fs = fingerprint.OSFileSystem{}
	}
	return &Detector{fileStates: fileStates, vectors: vectors, fs: fs, orphanInterval: orphanInterval}
}

// Detect implements §4.6's per-file algorithm over a fresh scan: hash each
// file, ask FileStateStore for a decision, apply the empty-store global
// override, and record startProcessing for everything that should run.
// Read failures mark the file skipped and are otherwise ignored, matching
// the fingerprint/hasher contract (§4.1) that a hash failure never aborts
// the whole scan.
func (d *Detector) Detect(ctx context.Context, entries []FileEntry) ([]FileChange, error) {
	forceReprocess, err := d.shouldForceReprocess(ctx, len(entries) > 0)
	if err != nil {
		return nil, err
	}

	var changes []FileChange
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		hash, err := fingerprint.Compute(d.fs, entry.AbsPath)
		if err != nil {
			_ = d.fileStates.MarkSkipped(ctx, entry.Path, "", "read failure: "+err.Error())
			continue
		}

		decision, err := d.fileStates.Decide(ctx, entry.Path, string(hash))
		if err != nil {
			return nil, err
		}

		action := decision.Action
		reason := decision.Reason
		if forceReprocess && action == filestate.ActionSkip {
			action = filestate.ActionProcess
			reason = "no embeddings - full reprocess"
		}

		if action == filestate.ActionSkip {
			continue
		}

		kind := KindAdded
		if reason == "content changed" {
			kind = KindModified
		}

		changes = append(changes, FileChange{Path: entry.Path, Kind: kind, Size: entry.Size, Hash: hash})
		if err := d.fileStates.StartProcessing(ctx, entry.Path, string(hash)); err != nil {
			return nil, err
		}
	}

	return changes, nil
}

// shouldForceReprocess implements §4.6's global override: if the VectorStore
// is empty while files exist on disk, every file is forced to process,
// regardless of what FileStateStore's per-file decision says (this covers a
// folder whose database was deleted or never built while file_states rows
// survived from an earlier run).
func (d *Detector) shouldForceReprocess(ctx context.Context, anyFilesOnDisk bool) (bool, error) {
	if !anyFilesOnDisk {
		return false, nil
	}
	stats, err := d.vectors.Stats(ctx)
	if err != nil {
		return false, err
	}
	return stats.EmbeddingCount == 0, nil
}

// ToQueueKind maps a FileChange's Kind to the queue package's Kind enum, for
// callers handing changes to a queue.Queue.
func (k Kind) ToQueueKind() queue.Kind {
	switch k {
	case KindModified:
		return queue.KindUpdate
	case KindRemoved:
		return queue.KindRemove
	default:
		return queue.KindCreate
	}
}

// SweepOrphans implements §4.6's orphan detection: runs at most once per
// orphanInterval, computing storedDocumentPaths - currentOnDiskPaths (with
// path equality per §3 rule 5) and deleting the difference in one batch,
// falling back to individual deletes if the batch fails.
func (d *Detector) SweepOrphans(ctx context.Context, now time.Time, onDiskPaths []string) (deleted int, ran bool, err error) {
	if !d.lastOrphanSweep.IsZero() && now.Sub(d.lastOrphanSweep) < d.orphanInterval {
		return 0, false, nil
	}

	stored, err := d.vectors.AllDocumentPaths(ctx)
	if err != nil {
		return 0, false, err
	}

	onDisk := make(map[string]struct{}, len(onDiskPaths))
	for _, p := range onDiskPaths {
		onDisk[normalizePath(p)] = struct{}{}
	}

	var orphans []string
	for path := range stored {
		if _, ok := onDisk[normalizePath(path)]; !ok {
			orphans = append(orphans, path)
		}
	}

	d.lastOrphanSweep = now
	if len(orphans) == 0 {
		return 0, true, nil
	}

	if err := d.vectors.DeleteDocumentsBatch(ctx, orphans); err != nil {
		return d.deleteIndividually(ctx, orphans)
	}
	for _, path := range orphans {
		_ = d.fileStates.Remove(ctx, path)
	}
	return len(orphans), true, nil
}

func (d *Detector) deleteIndividually(ctx context.Context, paths []string) (int, bool, error) {
	deleted := 0
	var lastErr error
	for _, path := range paths {
		if err := d.vectors.DeleteDocument(ctx, path); err != nil {
			lastErr = err
			continue
		}
		_ = d.fileStates.Remove(ctx, path)
		deleted++
	}
	if deleted == 0 && lastErr != nil {
		return 0, true, kerrors.Wrap(kerrors.ErrDatabaseTransient, "orphan cleanup: all individual deletes failed", lastErr)
	}
	return deleted, true, nil
}

// normalizePath applies §3 rule 5's path equality: case-insensitive on
// Windows, case-sensitive elsewhere. The folder's chosen case-sensitivity
// is fixed by the host OS at indexing time and must not change across runs.
func normalizePath(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(path)
	}
	return path
}
