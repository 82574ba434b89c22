package scraper

import (
	"context"
	"sync"
	"time"
)

type taskStatus string

const (
	taskPending   taskStatus = "pending"
	taskActive    taskStatus = "active"
	taskCompleted taskStatus = "completed"
	taskFailed    taskStatus = "failed"
	taskStuck     taskStatus = "stuck"
)

// detailTask tracks one scheduled tier-B extraction.
type detailTask struct {
	url       string
	startedAt time.Time
	status    taskStatus
	done      chan struct{}
}

// taskRegistry is the tier-B bookkeeping behind the scheduling budget:
// results + active tasks must stay below the record cap.
type taskRegistry struct {
	mu           sync.Mutex
	tasks        []*detailTask
	stuckTimeout time.Duration
	clock        func() time.Time
}

func newTaskRegistry(stuckTimeout time.Duration) *taskRegistry {
	return &taskRegistry{
		stuckTimeout: stuckTimeout,
		clock:        time.Now,
	}
}

// Add registers a new pending task.
func (r *taskRegistry) Add(url string) *detailTask {
	r.mu.Lock()
	defer r.mu.Unlock()

	task := &detailTask{
		url:       url,
		startedAt: r.clock(),
		status:    taskPending,
		done:      make(chan struct{}),
	}
	r.tasks = append(r.tasks, task)
	return task
}

func (r *taskRegistry) setStatus(task *detailTask, status taskStatus) {
	r.mu.Lock()
	task.status = status
	r.mu.Unlock()
}

// finish moves the task to a terminal status and releases waiters.
// Finishing twice is a no-op so a stuck task that eventually completes
// does not panic.
func (r *taskRegistry) finish(task *detailTask, status taskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-task.done:
		return
	default:
	}
	task.status = status
	close(task.done)
}

// ActiveCount prunes terminal tasks, marks tasks older than the stuck
// timeout as stuck, and returns how many tasks still count against the
// scheduling budget.
func (r *taskRegistry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	kept := r.tasks[:0]
	active := 0
	for _, task := range r.tasks {
		switch task.status {
		case taskCompleted, taskFailed:
			continue
		case taskStuck:
			kept = append(kept, task)
			continue
		}
		if now.Sub(task.startedAt) >= r.stuckTimeout {
			task.status = taskStuck
			kept = append(kept, task)
			continue
		}
		kept = append(kept, task)
		active++
	}
	r.tasks = kept
	return active
}

// WaitAll blocks until every registered task has finished or the context
// is cancelled. All-settled semantics: failures do not short-circuit.
func (r *taskRegistry) WaitAll(ctx context.Context) error {
	r.mu.Lock()
	snapshot := make([]*detailTask, len(r.tasks))
	copy(snapshot, r.tasks)
	r.mu.Unlock()

	for _, task := range snapshot {
		select {
		case <-task.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
