package learnqueue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kuzumemory/kuzu-memory/internal/extract"
	"github.com/kuzumemory/kuzu-memory/internal/storage"
)

// DefaultCapacity is the queue's default bound (spec §4.7: 1024, vs. the
// teacher's 1000).
const DefaultCapacity = 1024

// DefaultWorkers is the default fixed worker pool size.
const DefaultWorkers = 2

// Config tunes a Queue's capacity, worker count, and spill file location.
type Config struct {
	Capacity   int
	NumWorkers int
	// SpillPath is where Drain persists not-yet-completed tasks so they
	// survive a hard process exit. Empty disables spilling.
	SpillPath string
	// Retention overrides the default per-type retention window a
	// completed task's drafts are stored with. Nil means "use each
	// draft's type default."
	Retention extract.RetentionOverride
}

// DefaultConfig returns the spec's defaults.
func DefaultConfig() Config {
	return Config{Capacity: DefaultCapacity, NumWorkers: DefaultWorkers}
}

// Queue is a bounded, priority-aware FIFO plus a fixed worker pool that runs
// each task's content through an Extractor and writes the resulting drafts
// to a MemoryStore. Ported from the teacher's channel-based enrichment queue
// (internal/engine/enrichment_queue.go / enrichment_worker.go), generalized
// from a plain channel to a mutex-guarded slice: a Go channel cannot be
// scanned or have an arbitrary element removed, which the spec's
// drop-oldest-WORKING/SENSORY-first eviction policy requires.
type Queue struct {
	cfg       Config
	extractor extract.Extractor
	store     storage.MemoryStore

	mu     sync.Mutex
	items  []*Task
	closed bool
	cond   *sync.Cond

	statuses sync.Map // task id -> Status
	tasks    sync.Map // task id -> *Task (for Drain's spill snapshot)

	wg sync.WaitGroup
}

// New builds a Queue. A zero Config falls back to DefaultConfig's values
// field by field.
func New(store storage.MemoryStore, extractor extract.Extractor, cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = DefaultWorkers
	}
	q := &Queue{cfg: cfg, extractor: extractor, store: store}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool and, if a spill file exists from a prior
// run, replays its tasks (teacher's RecoverPendingEnrichments idea,
// generalized from "re-walk DB rows with StatusPending" to "re-walk an
// on-disk spill snapshot", since in-flight tasks here may not have reached
// the store at all before a hard exit).
func (q *Queue) Start(ctx context.Context) error {
	for i := 0; i < q.cfg.NumWorkers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	if q.cfg.SpillPath == "" {
		return nil
	}
	recovered, err := loadSpill(q.cfg.SpillPath)
	if err != nil {
		return fmt.Errorf("learnqueue: load spill file: %w", err)
	}
	for _, t := range recovered {
		q.enqueueTask(t)
	}
	if len(recovered) > 0 {
		log.Printf("learnqueue: recovered %d tasks from spill file", len(recovered))
	}
	return nil
}

// Enqueue admits content for background learning and returns its task id.
// Non-blocking: if the queue is saturated, the oldest WORKING/SENSORY task
// is evicted (marked StatusDropped) to make room; if none qualifies,
// ErrQueueFull is returned.
func (q *Queue) Enqueue(content, source, sessionID, agentID string, metadata map[string]any) (string, error) {
	task := &Task{
		ID:          uuid.NewString(),
		Content:     content,
		Source:      source,
		SessionID:   sessionID,
		AgentID:     agentID,
		Metadata:    metadata,
		TypeHint:    extract.QuickGuessType(content),
		SubmittedAt: time.Now().UTC(),
	}
	if !q.enqueueTask(task) {
		return "", ErrQueueFull
	}
	return task.ID, nil
}

// enqueueTask is the shared admission path for both fresh tasks (Enqueue)
// and spill-file replays (Start).
func (q *Queue) enqueueTask(task *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if len(q.items) >= q.cfg.Capacity {
		if !q.evictOldestLowPriorityLocked() {
			return false
		}
	}

	q.items = append(q.items, task)
	q.tasks.Store(task.ID, task)
	q.statuses.Store(task.ID, StatusQueued)
	q.cond.Signal()
	return true
}

// evictOldestLowPriorityLocked drops the oldest WORKING or SENSORY task to
// free a slot. Caller must hold q.mu. Returns false if nothing qualifies.
func (q *Queue) evictOldestLowPriorityLocked() bool {
	for i, t := range q.items {
		if t.TypeHint != "WORKING" && t.TypeHint != "SENSORY" {
			continue
		}
		q.statuses.Store(t.ID, StatusDropped)
		q.tasks.Delete(t.ID)
		log.Printf("learnqueue: queue full (capacity=%d), dropping %s task %s", q.cfg.Capacity, t.TypeHint, t.ID)
		q.items = append(q.items[:i], q.items[i+1:]...)
		return true
	}
	return false
}

// Status returns a task's current state, or false if the id is unknown.
func (q *Queue) Status(taskID string) (Status, bool) {
	v, ok := q.statuses.Load(taskID)
	if !ok {
		return "", false
	}
	return v.(Status), true
}

// Len reports how many tasks are currently queued (not yet picked up by a
// worker).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		task, ok := q.dequeue()
		if !ok {
			return
		}
		q.run(ctx, id, task)
	}
}

// dequeue blocks until a task is available or the queue is closed and
// drained, mirroring `for job := range queue` over the teacher's channel.
func (q *Queue) dequeue() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	task := q.items[0]
	q.items = q.items[1:]
	return task, true
}

func (q *Queue) run(ctx context.Context, workerID int, task *Task) {
	q.statuses.Store(task.ID, StatusRunning)

	if task.Attempt > 0 {
		backoff := time.Duration(task.Attempt*task.Attempt) * 100 * time.Millisecond
		time.Sleep(backoff)
	}

	drafts, err := q.extractor.Extract(ctx, task.Content, task.Source)
	if err != nil {
		q.fail(task, fmt.Errorf("extract: %w", err))
		return
	}

	for _, d := range drafts {
		mem := d.ToMemory(task.Source, task.SessionID, task.AgentID, task.Metadata, q.cfg.Retention)
		if _, err := q.store.Put(ctx, mem, d.EntityNames); err != nil {
			q.fail(task, fmt.Errorf("store put: %w", err))
			return
		}
	}

	q.statuses.Store(task.ID, StatusDone)
	q.tasks.Delete(task.ID)
	log.Printf("learnqueue: worker %d completed task %s (%d drafts)", workerID, task.ID, len(drafts))
}

func (q *Queue) fail(task *Task, err error) {
	task.Error = err.Error()
	q.statuses.Store(task.ID, StatusFailed)
	q.tasks.Delete(task.ID)
	log.Printf("learnqueue: task %s failed: %v", task.ID, err)
}

// Drain stops accepting new tasks and waits up to deadline for in-flight and
// queued tasks to finish. Tasks still unfinished when the deadline elapses
// are persisted to the spill file (if configured) for replay on the next
// Start. Ported from the teacher's stopWorkerPool's timeout-bounded
// WaitGroup.Wait().
func (q *Queue) Drain(deadline time.Duration) error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(deadline):
		return q.spillRemaining()
	}
}

func (q *Queue) spillRemaining() error {
	// q.tasks holds every task that hasn't reached a terminal state
	// (done/failed/dropped) yet, whether still queued or mid-flight in a
	// worker — this is the complete not-yet-completed set.
	var remaining []*Task
	q.tasks.Range(func(_, v any) bool {
		remaining = append(remaining, v.(*Task))
		return true
	})

	if len(remaining) == 0 || q.cfg.SpillPath == "" {
		if len(remaining) > 0 {
			log.Printf("learnqueue: shutdown timeout reached, %d tasks dropped (no spill path configured)", len(remaining))
		}
		return nil
	}

	if err := saveSpill(q.cfg.SpillPath, remaining); err != nil {
		return fmt.Errorf("learnqueue: spill %d tasks: %w", len(remaining), err)
	}
	log.Printf("learnqueue: shutdown timeout reached, spilled %d tasks to %s", len(remaining), q.cfg.SpillPath)
	return nil
}
