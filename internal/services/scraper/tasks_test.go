package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRegistry_ActiveCountPrunesTerminal(t *testing.T) {
	r := newTaskRegistry(time.Minute)

	a := r.Add("u1")
	b := r.Add("u2")
	r.Add("u3")

	r.finish(a, taskCompleted)
	r.finish(b, taskFailed)

	assert.Equal(t, 1, r.ActiveCount())
	assert.Len(t, r.tasks, 1, "terminal tasks are pruned")
}

func TestTaskRegistry_MarksStuckTasks(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newTaskRegistry(time.Minute)
	r.clock = func() time.Time { return now }

	old := r.Add("u1")
	now = now.Add(2 * time.Minute)
	fresh := r.Add("u2")

	assert.Equal(t, 1, r.ActiveCount(), "stuck tasks leave the budget")
	assert.Equal(t, taskStuck, old.status)
	assert.Equal(t, taskPending, fresh.status)

	// Stuck tasks stay registered but never rejoin the budget.
	assert.Equal(t, 1, r.ActiveCount())
}

func TestTaskRegistry_FinishTwiceIsNoop(t *testing.T) {
	r := newTaskRegistry(time.Minute)
	task := r.Add("u1")

	r.finish(task, taskFailed)
	r.finish(task, taskCompleted)
	assert.Equal(t, taskFailed, task.status)
}

func TestTaskRegistry_WaitAll(t *testing.T) {
	r := newTaskRegistry(time.Minute)
	a := r.Add("u1")
	b := r.Add("u2")

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.finish(a, taskCompleted)
		r.finish(b, taskFailed)
	}()

	require.NoError(t, r.WaitAll(context.Background()))
}

func TestTaskRegistry_WaitAllHonorsContext(t *testing.T) {
	r := newTaskRegistry(time.Minute)
	r.Add("never-finishes")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.WaitAll(ctx), context.DeadlineExceeded)
}
