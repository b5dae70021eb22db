package folder

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/foldermcp/folderindex/internal/changedetect"
	"github.com/foldermcp/folderindex/internal/chunk"
	"github.com/foldermcp/folderindex/internal/config"
	"github.com/foldermcp/folderindex/internal/embed"
	"github.com/foldermcp/folderindex/internal/filestate"
	"github.com/foldermcp/folderindex/internal/kerrors"
	"github.com/foldermcp/folderindex/internal/lifecycle"
	"github.com/foldermcp/folderindex/internal/orchestrator"
	"github.com/foldermcp/folderindex/internal/parser"
	"github.com/foldermcp/folderindex/internal/profiling"
	"github.com/foldermcp/folderindex/internal/queue"
	"github.com/foldermcp/folderindex/internal/scanner"
	"github.com/foldermcp/folderindex/internal/search"
	"github.com/foldermcp/folderindex/internal/store"
	"github.com/foldermcp/folderindex/internal/telemetry"
	"github.com/foldermcp/folderindex/internal/watcher"
)

// Options overrides config.Load's result for callers that want to skip a
// .folder-mcp.yaml file entirely (tests, one-off tooling) or tune a single
// knob without writing one. Zero-valued fields defer to the loaded config.
type Options struct {
	DBPath          string // defaults to <folder>/.folder-mcp/index.db
	SearchIndexPath string // "" (the default) keeps the keyword index in memory
	Embedding       *config.EmbeddingConfig
	Provider        string // overrides just cfg.Embedding.Provider when Embedding is nil
	FollowSymlinks  bool
	Metrics         *telemetry.MetricsCollector // nil disables Prometheus recording
	Tracer          *telemetry.Tracer           // nil falls back to a no-op tracer
	ErrorReporter   *telemetry.ErrorReporter    // nil disables Sentry reporting
}

// Folder is the public handle on one folder's semantic index: the single
// composition root a caller needs, wrapping C8 FolderLifecycleService and
// the keyword search index it is fused with.
type Folder struct {
	path    string
	cfg     *config.Config
	svc     *lifecycle.Service
	vectors *store.SQLiteStore
	search  *search.Index
	fs      *scanner.OSFileSystem
	embed   embed.Embedder
	fusion  *search.RRFFusion
	metrics *telemetry.MetricsCollector
	tracer  *telemetry.Tracer
	errs    *telemetry.ErrorReporter

	stopWatch func() error
}

// Open wires every collaborator for folder and returns a ready-to-use
// handle in lifecycle.StatePending. Callers that only want a one-shot scan
// and index can stop after Scan/Index; callers that want live updates
// should call Watch.
func Open(ctx context.Context, folderPath string, opts Options) (*Folder, error) {
	absFolder, err := filepath.Abs(folderPath)
	if err != nil {
		return nil, kerrors.Read("resolve folder path", err)
	}

	cfg, err := config.Load(absFolder)
	if err != nil {
		return nil, err
	}
	switch {
	case opts.Embedding != nil:
		cfg.Embedding = *opts.Embedding
	case opts.Provider != "":
		cfg.Embedding.Provider = opts.Provider
	}

	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(absFolder, ".folder-mcp", "index.db")
	}
	vectors, err := store.LoadOrInitialize(dbPath)
	if err != nil {
		return nil, err
	}

	fileStates, err := filestate.New(vectors.DB(), cfg.Queue.MaxRetries)
	if err != nil {
		vectors.Close()
		return nil, err
	}

	embedder, err := embed.New(embed.Config{
		Provider:       cfg.Embedding.Provider,
		Model:          cfg.Embedding.Model,
		Dimensions:     cfg.Embedding.Dimensions,
		BatchSize:      cfg.Embedding.BatchSize,
		OllamaHost:     cfg.Embedding.OllamaHost,
		OpenAIBaseURL:  cfg.Embedding.OpenAIBaseURL,
		OpenAIAPIKey:   cfg.Embedding.OpenAIAPIKey,
		ONNXModelDir:   cfg.Embedding.ONNXModelDir,
		ONNXORTLibPath: cfg.Embedding.ONNXORTLibPath,
	})
	if err != nil {
		vectors.Close()
		return nil, err
	}

	fs, err := scanner.NewOSFileSystem(absFolder, cfg.Indexing.SupportedExtensions, cfg.Indexing.IgnorePatterns, scanner.ScanOptions{
		FollowSymlinks: opts.FollowSymlinks,
	})
	if err != nil {
		vectors.Close()
		return nil, err
	}

	orphanInterval := time.Duration(cfg.Indexing.OrphanCleanupIntervalMs) * time.Millisecond
	detector := changedetect.New(fileStates, vectors, nil, orphanInterval)

	orch := orchestrator.New(fs, parser.New(), chunk.NewSelecting(), embedder, vectors, fileStates, cfg.Indexing.ChunkSize, cfg.Indexing.ChunkOverlap)

	q := queue.New(queue.Config{
		MaxConcurrent: cfg.Queue.MaxConcurrentFiles,
		MaxRetries:    cfg.Queue.MaxRetries,
		RetryDelay:    time.Duration(cfg.Queue.RetryDelayMs) * time.Millisecond,
	})

	searchIdx, err := search.Open(opts.SearchIndexPath)
	if err != nil {
		vectors.Close()
		return nil, err
	}

	svc := lifecycle.NewService(absFolder, lifecycle.Deps{
		FileSystem:       fs,
		FileStates:       fileStates,
		Vectors:          vectors,
		Embedder:         embedder,
		Detector:         detector,
		Orchestrator:     orch,
		Queue:            q,
		Diagnostics:      profiling.NewProfiler(),
		ProgressThrottle: time.Duration(cfg.Indexing.ProgressThrottleMs) * time.Millisecond,
	})

	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewTracer(telemetry.DefaultTracerConfig())
	}

	return &Folder{
		path:    absFolder,
		cfg:     cfg,
		svc:     svc,
		vectors: vectors,
		search:  searchIdx,
		fs:      fs,
		embed:   embedder,
		fusion:  search.NewRRFFusion(),
		metrics: opts.Metrics,
		tracer:  tracer,
		errs:    opts.ErrorReporter,
	}, nil
}

// Path returns the absolute folder path this handle indexes.
func (f *Folder) Path() string { return f.path }

// State returns the current lifecycle state.
func (f *Folder) State() lifecycle.State { return f.svc.State() }

// Events returns the stream of lifecycle events (state changes, progress,
// scan/index completion, faults) for a caller that wants to react live.
func (f *Folder) Events() <-chan lifecycle.FolderEvent { return f.svc.Events() }

// Scan enumerates the folder, detects changes, and queues work. It
// transitions to ready if there is work to do, or directly to active if
// the folder is already up to date.
func (f *Folder) Scan(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "folder.Scan")
	defer span.End()
	err := f.svc.StartScanning(ctx)
	f.reportIfFault("scan", err)
	return err
}

// Index drains the queue Scan populated, embedding and storing every
// changed file, and updates the keyword search index to match. It
// transitions to active once validation passes.
func (f *Folder) Index(ctx context.Context) error {
	ctx, span := f.tracer.Start(ctx, "folder.Index")
	defer span.End()

	start := time.Now()
	err := f.svc.StartIndexing(ctx)
	if err == nil {
		err = f.syncSearchIndex(ctx)
	}
	if f.metrics != nil {
		info, _ := f.svc.Info(ctx)
		f.metrics.ObserveIndex(time.Since(start), info.DocumentCount, err)
	}
	f.reportIfFault("index", err)
	return err
}

// reportIfFault forwards unexpected (non-nil) errors to the configured
// Sentry reporter, tagged with the folder path and operation name. A nil
// ErrorReporter (the default) makes this a no-op.
func (f *Folder) reportIfFault(operation string, err error) {
	if err == nil || f.errs == nil {
		return
	}
	f.errs.Report(context.Background(), operation, err, map[string]string{"folder": f.path})
}

// syncSearchIndex rebuilds keyword summaries for every indexed document.
// The orchestrator already computed and stored each document's keyword
// summary in the vector store via UpdateDocumentSemantics; this step just
// keeps the separate bleve index in sync with it.
func (f *Folder) syncSearchIndex(ctx context.Context) error {
	paths, err := f.vectors.AllDocumentPaths(ctx)
	if err != nil {
		return err
	}
	for path := range paths {
		keywords, err := f.vectors.DocumentKeywords(ctx, path)
		if err != nil {
			continue
		}
		if err := f.search.Upsert(ctx, path, keywords); err != nil {
			return err
		}
	}
	return nil
}

// Stop releases any active watch, lets the lifecycle service launch no
// further tasks (tasks already running are not cancelled), and closes the
// vector store, releasing its file locks, and the keyword index.
func (f *Folder) Stop() error {
	if f.stopWatch != nil {
		_ = f.stopWatch()
	}
	if err := f.svc.Stop(); err != nil {
		return err
	}
	return f.search.Close()
}

// Reset clears queued work and returns the folder to pending, so a
// subsequent Scan starts from a clean slate.
func (f *Folder) Reset() error { return f.svc.Reset() }

// Info returns a snapshot summary of the folder's index state.
func (f *Folder) Info(ctx context.Context) (lifecycle.IndexInfo, error) { return f.svc.Info(ctx) }

// SearchResult is one fused hit from Search.
type SearchResult struct {
	DocumentPath string
	Score        float64
	MatchedTerms []string
}

// Search embeds query, runs it against the vector store and the keyword
// summary index, and fuses the two rankings with reciprocal rank fusion
// (§12 supplemented feature).
func (f *Folder) Search(ctx context.Context, query string, limit int) (results []SearchResult, err error) {
	if limit <= 0 {
		limit = 10
	}
	ctx, span := f.tracer.Start(ctx, "folder.Search")
	defer span.End()

	start := time.Now()
	if f.metrics != nil {
		defer func() { f.metrics.ObserveSearch(time.Since(start), len(results), err) }()
	}
	defer func() { f.reportIfFault("search", err) }()

	vec, err := f.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vectorHits, err := f.vectors.Search(ctx, vec, limit, 0)
	if err != nil {
		return nil, err
	}

	keywordHits, err := f.search.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	fused := f.fusion.Fuse(keywordHits, vectorHits, search.DefaultWeights())
	if len(fused) > limit {
		fused = fused[:limit]
	}

	out := make([]SearchResult, len(fused))
	for i, r := range fused {
		out[i] = SearchResult{DocumentPath: r.DocumentPath, Score: r.RRFScore, MatchedTerms: r.MatchedTerms}
	}
	return out, nil
}

// Watch starts the underlying filesystem watcher and, for every event in
// each debounced batch of changes, runs ReconcileGitignore for a .gitignore
// change and Scan for any other event, per §6's Watch capability and the §12 supplemented gitignore
// reconciliation feature. The returned stop function releases the watcher;
// Close/Stop call it automatically if the caller does not.
func (f *Folder) Watch(ctx context.Context) (stop func() error, err error) {
	var lastGitignore string
	stopFn, err := f.fs.Watch(ctx, f.path, func(ev watcher.FileEvent) {
		if ev.Operation == watcher.OpGitignoreChange {
			content, readErr := f.fs.Read(filepath.Join(f.path, ev.Path))
			newContent := ""
			if readErr == nil {
				newContent = string(content)
			}
			_, _ = f.svc.ReconcileGitignore(ctx, lastGitignore, newContent)
			lastGitignore = newContent
			return
		}
		_ = f.Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	f.stopWatch = stopFn
	return stopFn, nil
}

// Close stops any active watch and releases store/index resources. It is
// equivalent to Stop and is provided so *Folder satisfies io.Closer.
func (f *Folder) Close() error { return f.Stop() }
