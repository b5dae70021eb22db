package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func kindAlways(k Kind) func(string) Kind { return func(string) Kind { return k } }
func sizeZero(string) int64               { return 0 }

func TestNext_RespectsMaxConcurrent(t *testing.T) {
	q := New(Config{MaxConcurrent: 2, MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Add([]string{"a", "b", "c"}, kindAlways(KindCreate), sizeZero)

	first := q.Next()
	second := q.Next()
	require.NotNil(t, first)
	require.NotNil(t, second)

	third := q.Next()
	require.Nil(t, third, "third task must not start while two are already in progress")

	stats := q.Statistics()
	require.Equal(t, 2, stats.InProgress)
	require.Equal(t, 1, stats.Pending)
}

func TestUpdateStatus_RetriesWithBackoffThenFails(t *testing.T) {
	q := New(Config{MaxConcurrent: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Add([]string{"a"}, kindAlways(KindCreate), sizeZero)

	task := q.Next()
	require.NotNil(t, task)

	q.UpdateStatus(task.ID, false, "boom")
	snap := q.Snapshot()
	require.Equal(t, StatusRetryScheduled, snap[0].Status)
	require.Equal(t, 1, snap[0].RetryCount)

	time.Sleep(5 * time.Millisecond)
	retried := q.Next()
	require.NotNil(t, retried, "retry-scheduled task becomes eligible once its delay elapses")

	q.UpdateStatus(retried.ID, false, "boom again")
	snap = q.Snapshot()
	require.Equal(t, StatusRetryScheduled, snap[0].Status)
	require.Equal(t, 2, snap[0].RetryCount)

	time.Sleep(5 * time.Millisecond)
	last := q.Next()
	require.NotNil(t, last)
	q.UpdateStatus(last.ID, false, "boom forever")

	snap = q.Snapshot()
	require.Equal(t, StatusFailed, snap[0].Status, "attempts exhausted must terminally fail, not retry again")
}

func TestUpdateStatus_Success(t *testing.T) {
	q := New(DefaultConfig())
	q.Add([]string{"a"}, kindAlways(KindCreate), sizeZero)

	task := q.Next()
	q.UpdateStatus(task.ID, true, "")

	stats := q.Statistics()
	require.Equal(t, 1, stats.Succeeded)
	require.True(t, q.AllTerminal())
}

func TestClearAll_FailsEveryNonTerminalTask(t *testing.T) {
	q := New(Config{MaxConcurrent: 4, MaxRetries: 3, RetryDelay: time.Millisecond})
	q.Add([]string{"a", "b"}, kindAlways(KindCreate), sizeZero)
	q.Next() // one moves to in-progress, the other stays pending

	q.ClearAll("model loading failure")

	stats := q.Statistics()
	require.Equal(t, 2, stats.Failed)
	require.True(t, q.AllTerminal())
}
