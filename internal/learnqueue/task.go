// Package learnqueue implements the Async Learning Queue (spec §4.7): a
// bounded in-process FIFO plus a fixed worker pool that runs extraction and
// storage off the caller's request path.
package learnqueue

import (
	"errors"
	"time"

	"github.com/kuzumemory/kuzu-memory/pkg/types"
)

// ErrQueueFull is returned by Enqueue when the queue is saturated and no
// lower-priority (WORKING/SENSORY) task could be evicted to make room.
var ErrQueueFull = errors.New("learnqueue: queue full")

// Status is a task's position in its state machine: queued -> running ->
// (done | failed | dropped).
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusDropped Status = "dropped"
)

// Task is one unit of background learning work: raw content to extract and
// store, plus the provenance tags carried onto every resulting Memory.
type Task struct {
	ID        string
	Content   string
	Source    string
	SessionID string
	AgentID   string
	Metadata  map[string]any

	// TypeHint is a cheap, synchronous pre-classification (extract.QuickGuessType)
	// used only by the eviction policy, which must decide what to drop before
	// the real (asynchronous) extraction pass has run.
	TypeHint types.MemoryType

	// SubmittedAt records admission time; queue order is the order tasks
	// were admitted. The worker sleeps Attempt*Attempt*100ms before running a
	// task with Attempt > 0, but the queue never retries a failed task and
	// never increments Attempt itself.
	SubmittedAt time.Time
	Attempt     int

	// Error holds the last failure reason once Status is StatusFailed.
	Error string
}
