// Package queue implements the bounded-concurrency task scheduler (C4) that
// drives one folder's indexing work: a fixed number of file pipelines may be
// in flight at a time, and a failed task is retried with exponential backoff
// before being marked terminally failed.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed enum of task kinds a file change produces.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindRemove Kind = "remove"
)

// Status is the closed enum of task lifecycle states.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusRetryScheduled Status = "retry_scheduled"
)

// Task is the in-memory record described in §3. ChunkProgress fields are
// mutated by the orchestrator as it embeds a file's chunks, so the owning
// service can compute size-weighted progress (§4.8) without polling the
// store.
type Task struct {
	ID              string
	Path            string
	Kind            Kind
	Status          Status
	RetryCount      int
	MaxRetries      int
	FileSize        int64
	ProcessedChunks int
	TotalChunks     int
	LastError       string
	retryAt         time.Time
}

// Config mirrors §4.4's enumerated defaults.
type Config struct {
	MaxConcurrent int
	MaxRetries    int
	RetryDelay    time.Duration
}

// DefaultConfig returns the spec's defaults: 4 concurrent pipelines, 3
// retries, 1 second base backoff.
func DefaultConfig() Config {
	return Config{MaxConcurrent: 4, MaxRetries: 3, RetryDelay: time.Second}
}

// Statistics is the snapshot returned by Queue.Statistics.
type Statistics struct {
	Total      int
	Pending    int
	InProgress int
	Retrying   int
	Succeeded  int
	Failed     int
}

// Queue is a single folder's task scheduler. It holds no goroutines of its
// own — per §9's "explicit driver loop" design note, the caller (C8
// FolderLifecycleService) owns the loop and calls Next/UpdateStatus from it.
type Queue struct {
	mu    sync.Mutex
	cfg   Config
	tasks map[string]*Task
	order []string // preserves add() order for Next()'s scan
}

// New constructs a Queue. A zero-value Config is replaced with DefaultConfig.
func New(cfg Config) *Queue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	return &Queue{cfg: cfg, tasks: make(map[string]*Task)}
}

// Add appends tasks in order, defaulting MaxRetries from the queue's
// configuration when a caller leaves it unset.
func (q *Queue) Add(paths []string, kindOf func(path string) Kind, sizeOf func(path string) int64) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	created := make([]*Task, 0, len(paths))
	for _, p := range paths {
		t := &Task{
			ID:         uuid.NewString(),
			Path:       p,
			Kind:       kindOf(p),
			Status:     StatusPending,
			MaxRetries: q.cfg.MaxRetries,
			FileSize:   sizeOf(p),
		}
		q.tasks[t.ID] = t
		q.order = append(q.order, t.ID)
		created = append(created, t)
	}
	return created
}

// Next returns the next pending (or due-for-retry) task if in-progress count
// is below MaxConcurrent, nil otherwise. Marks the returned task in-progress
// before returning it, so the caller never has to call a separate "claim"
// step (§4.4 invariant: inProgress <= maxConcurrent).
func (q *Queue) Next() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.countLocked(StatusInProgress) >= q.cfg.MaxConcurrent {
		return nil
	}

	now := time.Now()
	for _, id := range q.order {
		t := q.tasks[id]
		switch t.Status {
		case StatusPending:
			t.Status = StatusInProgress
			return t
		case StatusRetryScheduled:
			if !t.retryAt.After(now) {
				t.Status = StatusInProgress
				return t
			}
		}
	}
	return nil
}

// UpdateStatus records a task's terminal or retry-scheduled outcome.
// Success marks the task succeeded. Failure reschedules with exponential
// backoff (retryDelay * 2^retryCount) while retryCount < maxRetries, else
// marks it terminally failed.
func (q *Queue) UpdateStatus(taskID string, success bool, errorMessage string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return
	}

	if success {
		t.Status = StatusSucceeded
		t.LastError = ""
		return
	}

	t.LastError = errorMessage
	if t.RetryCount < t.MaxRetries {
		backoff := q.cfg.RetryDelay * time.Duration(1<<uint(t.RetryCount))
		t.RetryCount++
		t.Status = StatusRetryScheduled
		t.retryAt = time.Now().Add(backoff)
		return
	}
	t.Status = StatusFailed
}

func (q *Queue) countLocked(s Status) int {
	n := 0
	for _, id := range q.order {
		if q.tasks[id].Status == s {
			n++
		}
	}
	return n
}

// Statistics reports the queue's current status breakdown.
func (q *Queue) Statistics() Statistics {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats Statistics
	for _, id := range q.order {
		t := q.tasks[id]
		stats.Total++
		switch t.Status {
		case StatusPending:
			stats.Pending++
		case StatusInProgress:
			stats.InProgress++
		case StatusRetryScheduled:
			stats.Retrying++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// AllTerminal reports whether every task has reached Succeeded or Failed,
// which is the driver loop's signal to stop and validate (§9).
func (q *Queue) AllTerminal() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		s := q.tasks[id].Status
		if s != StatusSucceeded && s != StatusFailed {
			return false
		}
	}
	return true
}

// ClearAll cancels every non-terminal task by marking it failed, used for
// fail-fast on a model-load error (§4.7, §7).
func (q *Queue) ClearAll(reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status == StatusPending || t.Status == StatusInProgress || t.Status == StatusRetryScheduled {
			t.Status = StatusFailed
			t.LastError = reason
		}
	}
}

// UpdateChunkProgress records an in-progress task's embedding progress, used
// by the orchestrator's chunk-progress callback (§4.7) and consumed by the
// service's progress computation (§4.8).
func (q *Queue) UpdateChunkProgress(taskID string, processed, total int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t, ok := q.tasks[taskID]; ok {
		t.ProcessedChunks = processed
		t.TotalChunks = total
	}
}

// Snapshot returns a shallow copy of every task, for progress computation
// and tests; mutating the returned tasks does not affect the queue.
func (q *Queue) Snapshot() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.tasks[id])
	}
	return out
}
