package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/foldermcp/folderindex/internal/changedetect"
	"github.com/foldermcp/folderindex/internal/embed"
	"github.com/foldermcp/folderindex/internal/filestate"
	"github.com/foldermcp/folderindex/internal/gitignore"
	"github.com/foldermcp/folderindex/internal/kerrors"
	"github.com/foldermcp/folderindex/internal/orchestrator"
	"github.com/foldermcp/folderindex/internal/queue"
	"github.com/foldermcp/folderindex/internal/scanner"
	"github.com/foldermcp/folderindex/internal/store"
)

// FileSystem is the slice of the scanner's FileSystem capability this
// service drives directly: enumerate and read, per §6. Watching is wired by
// the caller (e.g. a daemon) invoking startScanning on change notification.
type FileSystem interface {
	Scan(ctx context.Context, folder string) ([]scanner.FileEntry, error)
	Metadata(path string) (scanner.FileEntry, error)
}

// FolderEvent is the tagged union emitted on the service's event channel,
// covering §4.8's five event streams with one Go type.
type FolderEvent struct {
	Kind     FolderEventKind
	State    State
	Progress Progress
	Stats    store.Stats
	Err      error
}

type FolderEventKind string

const (
	EventKindStateChange    FolderEventKind = "state_change"
	EventKindProgressUpdate FolderEventKind = "progress_update"
	EventKindScanComplete   FolderEventKind = "scan_complete"
	EventKindIndexComplete  FolderEventKind = "index_complete"
	EventKindError          FolderEventKind = "error"
)

// Progress is §4.8's progress computation result.
type Progress struct {
	Fraction   float64 // 0.0-1.0, not capped
	Percentage int     // 0-99 pre-active, 100 once active
}

// IndexInfo is a read-only summary for the demo CLI's "info" subcommand
// (§12 supplemented feature, adapted from the teacher's store.IndexInfo).
type IndexInfo struct {
	Folder           string
	State            State
	EmbeddingModel   string
	Dimension        int
	DocumentCount    int
	EmbeddingCount   int
	LastOrphanSweep  time.Time
	DimensionMatches bool
}

// Diagnostics captures a post-mortem goroutine snapshot when a folder
// transitions to StateError, so a fault that only reproduces in a live
// daemon leaves something to inspect besides the error string. Optional —
// a nil Deps.Diagnostics simply skips the dump.
type Diagnostics interface {
	WriteGoroutine(path string) error
}

// Deps bundles the injected, shared, read-only capabilities §3 names.
type Deps struct {
	FileSystem   FileSystem
	FileStates   *filestate.Store
	Vectors      store.VectorStore
	Embedder     embed.Embedder
	Detector     *changedetect.Detector
	Orchestrator *orchestrator.Orchestrator
	Queue        *queue.Queue
	Diagnostics  Diagnostics

	ProgressThrottle time.Duration // §4.8 "at most one per second"
}

// Service is C8 FolderLifecycleService: one instance per watched folder,
// exclusively owning its TaskQueue, StateMachine, and store handles (§3).
type Service struct {
	mu      sync.Mutex
	folder  string
	machine *StateMachine
	deps    Deps

	events chan FolderEvent

	stopping       bool
	lastProgressAt time.Time
	scanEntries    map[string]scanner.FileEntry
}

// NewService constructs a Service in StatePending for folder.
func NewService(folder string, deps Deps) *Service {
	if deps.ProgressThrottle <= 0 {
		deps.ProgressThrottle = time.Second
	}
	return &Service{
		folder:  folder,
		machine: New(),
		deps:    deps,
		events:  make(chan FolderEvent, 64),
	}
}

// Events returns the channel FolderEvents are published on. The caller must
// drain it; Service never blocks indefinitely on a full channel — see
// publish.
func (s *Service) Events() <-chan FolderEvent { return s.events }

func (s *Service) publish(ev FolderEvent) {
	select {
	case s.events <- ev:
	default:
		// drop rather than block the driver loop; slow consumers miss an
		// intermediate event but state() remains queryable directly.
	}
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Current()
}

// StartScanning implements §4.8's startScanning(): legal only from pending
// or active, runs enumeration and ChangeDetector, then transitions to
// ready (tasks queued) or active (no changes, after validation).
func (s *Service) StartScanning(ctx context.Context) error {
	s.mu.Lock()
	current := s.machine.Current()
	s.mu.Unlock()
	if current != StatePending && current != StateActive {
		return kerrors.IllegalTransition("startScanning requires pending or active, got " + string(current))
	}

	if err := s.transition(EventStartScan); err != nil {
		return err
	}

	entries, err := s.deps.FileSystem.Scan(ctx, s.folder)
	if err != nil {
		s.fault(err)
		return err
	}

	changeEntries := make([]changedetect.FileEntry, len(entries))
	onDiskPaths := make([]string, len(entries))
	byPath := make(map[string]scanner.FileEntry, len(entries))
	for i, e := range entries {
		changeEntries[i] = changedetect.FileEntry{Path: e.Path, AbsPath: e.AbsPath, Size: e.Size}
		onDiskPaths[i] = e.Path
		byPath[e.Path] = e
	}
	s.mu.Lock()
	s.scanEntries = byPath
	s.mu.Unlock()

	changes, err := s.deps.Detector.Detect(ctx, changeEntries)
	if err != nil {
		s.fault(err)
		return err
	}

	if _, _, err := s.deps.Detector.SweepOrphans(ctx, time.Now(), onDiskPaths); err != nil {
		s.fault(err)
		return err
	}

	if len(changes) == 0 {
		if err := s.validateAndActivate(ctx); err != nil {
			return err
		}
		s.publish(FolderEvent{Kind: EventKindScanComplete, State: s.State()})
		return nil
	}

	sizeOf := make(map[string]int64, len(entries))
	for _, e := range entries {
		sizeOf[e.Path] = e.Size
	}

	paths := make([]string, len(changes))
	kindOf := make(map[string]queue.Kind, len(changes))
	for i, c := range changes {
		paths[i] = c.Path
		kindOf[c.Path] = c.Kind.ToQueueKind()
	}
	s.deps.Queue.Add(paths, func(p string) queue.Kind { return kindOf[p] }, func(p string) int64 { return sizeOf[p] })

	if err := s.transition(EventChangesFound); err != nil {
		return err
	}
	s.publish(FolderEvent{Kind: EventKindScanComplete, State: s.State()})
	return nil
}

// StartIndexing implements §4.8's startIndexing(): legal only from ready,
// drains the queue respecting concurrency until every task is terminal,
// then validates and transitions to active.
func (s *Service) StartIndexing(ctx context.Context) error {
	if err := s.transition(EventStartIndex); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for {
		if s.isStopping() {
			break
		}
		task := s.deps.Queue.Next()
		if task == nil {
			if s.deps.Queue.AllTerminal() {
				break
			}
			time.Sleep(50 * time.Millisecond) // §5 "poll with a short sleep (<=200ms)"
			continue
		}

		wg.Add(1)
		go func(t *queue.Task) {
			defer wg.Done()
			s.runTask(ctx, t)
		}(task)

		s.maybePublishProgress()
	}
	wg.Wait()

	if err := s.validateAndActivate(ctx); err != nil {
		return err
	}
	s.publish(FolderEvent{Kind: EventKindProgressUpdate, State: s.State(), Progress: Progress{Fraction: 1, Percentage: 100}})
	stats, _ := s.deps.Vectors.Stats(ctx)
	s.publish(FolderEvent{Kind: EventKindIndexComplete, State: s.State(), Stats: stats})
	return nil
}

func (s *Service) runTask(ctx context.Context, t *queue.Task) {
	var err error

	s.mu.Lock()
	entry, known := s.scanEntries[t.Path]
	s.mu.Unlock()
	if !known {
		entry, err = s.deps.FileSystem.Metadata(t.Path)
		if err != nil {
			s.deps.Queue.UpdateStatus(t.ID, false, err.Error())
			return
		}
	}

	change := changedetect.FileChange{Path: t.Path, Size: t.FileSize}
	switch t.Kind {
	case queue.KindUpdate:
		change.Kind = changedetect.KindModified
	case queue.KindRemove:
		change.Kind = changedetect.KindRemoved
	default:
		change.Kind = changedetect.KindAdded
	}

	progress := func(processed, total int) { s.deps.Queue.UpdateChunkProgress(t.ID, processed, total) }

	err = s.deps.Orchestrator.ProcessFile(ctx, change, entry.AbsPath, entry.ModTime, progress)
	if err != nil {
		var modelErr *orchestrator.ErrModelLoadFailure
		if isModelLoadFailure(err, &modelErr) {
			s.deps.Queue.ClearAll("model loading failure")
			s.fault(err)
			return
		}
		s.deps.Queue.UpdateStatus(t.ID, false, err.Error())
		return
	}
	s.deps.Queue.UpdateStatus(t.ID, true, "")
}

func isModelLoadFailure(err error, target **orchestrator.ErrModelLoadFailure) bool {
	if e, ok := err.(*orchestrator.ErrModelLoadFailure); ok {
		*target = e
		return true
	}
	return false
}

// maybePublishProgress computes and publishes §4.8's progress formula,
// throttled to at most once per ProgressThrottle interval.
func (s *Service) maybePublishProgress() {
	s.mu.Lock()
	if time.Since(s.lastProgressAt) < s.deps.ProgressThrottle {
		s.mu.Unlock()
		return
	}
	s.lastProgressAt = time.Now()
	s.mu.Unlock()

	p := s.computeProgress()
	s.publish(FolderEvent{Kind: EventKindProgressUpdate, State: s.State(), Progress: p})
}

func (s *Service) computeProgress() Progress {
	tasks := s.deps.Queue.Snapshot()
	if len(tasks) == 0 {
		return Progress{Fraction: 1, Percentage: 99}
	}

	var totalSize int64
	for _, t := range tasks {
		totalSize += t.FileSize
	}

	var fraction float64
	if totalSize > 0 {
		for _, t := range tasks {
			weight := float64(t.FileSize) / float64(totalSize)
			fraction += weight * completionOf(t)
		}
	} else {
		var succeeded, inProgress float64
		for _, t := range tasks {
			switch t.Status {
			case queue.StatusSucceeded:
				succeeded++
			case queue.StatusInProgress:
				inProgress++
			}
		}
		fraction = (succeeded + 0.5*inProgress) / float64(len(tasks))
	}

	pct := int(fraction * 100)
	if pct > 99 {
		pct = 99
	}
	return Progress{Fraction: fraction, Percentage: pct}
}

func completionOf(t queue.Task) float64 {
	switch t.Status {
	case queue.StatusSucceeded:
		return 1
	case queue.StatusInProgress:
		if t.TotalChunks > 0 {
			return float64(t.ProcessedChunks) / float64(t.TotalChunks)
		}
		return 0
	default:
		return 0
	}
}

// validateAndActivate implements §4.8's two pre-active checks: a cheap
// embedding backend probe, and an embeddings-present check when any file
// has ever been tracked. It also enforces the §12 supplemented dimension
// compatibility check before declaring the backend available.
func (s *Service) validateAndActivate(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.deps.Embedder.Probe(probeCtx); err != nil {
		s.fault(fmt.Errorf("embedding backend unavailable: %w", err))
		return err
	}

	stored, err := s.deps.Vectors.Dimension(ctx)
	if err != nil {
		s.fault(err)
		return err
	}
	if stored != 0 && stored != s.deps.Embedder.Dimension() {
		err := fmt.Errorf("embedder dimension %d does not match stored dimension %d; rerun with --force to rebuild the index", s.deps.Embedder.Dimension(), stored)
		s.fault(err)
		return err
	}

	tracked, err := s.deps.FileStates.HasAnyTracked(ctx)
	if err != nil {
		s.fault(err)
		return err
	}
	if tracked {
		vecStats, err := s.deps.Vectors.Stats(ctx)
		if err != nil {
			s.fault(err)
			return err
		}
		if vecStats.EmbeddingCount == 0 {
			err := fmt.Errorf("files processed but no embeddings created")
			s.fault(err)
			return err
		}
	}

	current := s.State()
	event := EventIndexDone
	if current == StateScanning {
		event = EventNoChanges
	}
	return s.transition(event)
}

// Stop implements §4.8's stop(): StartIndexing launches no further tasks
// (tasks already running are not cancelled), the stores are closed, and
// the final state is emitted.
func (s *Service) Stop() error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	err := s.deps.Vectors.Close()
	s.publish(FolderEvent{Kind: EventKindStateChange, State: s.State()})
	return err
}

func (s *Service) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// Reset implements §4.8's reset(): returns to pending with an empty queue.
func (s *Service) Reset() error {
	s.deps.Queue.ClearAll("reset")
	return s.transition(EventReset)
}

// ReconcileGitignore implements the §12 supplemented gitignore-change
// reconciliation feature: when a folder's .gitignore content changes
// between scans, decide how much of a rescan is warranted rather than
// always doing a full one. A small pattern diff (few added/removed
// patterns) is cheap enough to fold into the ordinary StartScanning pass -
// ChangeDetector's content-hash comparison already catches any file whose
// tracked state needs to change, since a newly-ignored file simply stops
// appearing in the next Scan and is swept as an orphan, and a newly
// un-ignored file appears as a fresh add. A large-scale change (many
// patterns added or removed at once, e.g. swapping in a different
// language's default .gitignore) is treated the same way but logged
// distinctly, since that is the case most likely to account for a scan
// that touches most of the tree.
func (s *Service) ReconcileGitignore(ctx context.Context, oldContent, newContent string) (strategy string, err error) {
	added, removed := gitignore.DiffPatterns(oldContent, newContent)
	total := len(added) + len(removed)

	switch {
	case total == 0:
		return "none", nil
	case total <= gitignoreSmallDiffThreshold:
		strategy = "pattern_diff"
	default:
		strategy = "full_rescan"
	}
	return strategy, s.StartScanning(ctx)
}

// gitignoreSmallDiffThreshold bounds what ReconcileGitignore still calls a
// "pattern_diff" reconciliation rather than a "full_rescan" one, for
// logging and telemetry purposes; both paths drive the same StartScanning
// call today since ChangeDetector's content-hash comparison makes a
// separate subtree-only code path unnecessary.
const gitignoreSmallDiffThreshold = 5

// Info returns a read-only summary for the demo CLI's "info" subcommand.
func (s *Service) Info(ctx context.Context) (IndexInfo, error) {
	dim, err := s.deps.Vectors.Dimension(ctx)
	if err != nil {
		return IndexInfo{}, err
	}
	stats, err := s.deps.Vectors.Stats(ctx)
	if err != nil {
		return IndexInfo{}, err
	}
	return IndexInfo{
		Folder:           s.folder,
		State:            s.State(),
		Dimension:        dim,
		DocumentCount:    stats.DocumentCount,
		EmbeddingCount:   stats.EmbeddingCount,
		DimensionMatches: dim == 0 || dim == s.deps.Embedder.Dimension(),
	}, nil
}

func (s *Service) transition(event Event) error {
	s.mu.Lock()
	err := s.machine.Apply(event)
	state := s.machine.Current()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(FolderEvent{Kind: EventKindStateChange, State: state})
	return nil
}

func (s *Service) fault(cause error) {
	s.mu.Lock()
	_ = s.machine.Apply(EventFault)
	state := s.machine.Current()
	s.mu.Unlock()
	if s.deps.Diagnostics != nil {
		path := fmt.Sprintf("%s.fault.goroutine.pprof", strings.ReplaceAll(s.folder, string(filepath.Separator), "_"))
		if err := s.deps.Diagnostics.WriteGoroutine(path); err != nil {
			slog.Warn("failed to write fault diagnostics", slog.String("folder", s.folder), slog.String("error", err.Error()))
		}
	}
	s.publish(FolderEvent{Kind: EventKindError, State: state, Err: cause})
}
