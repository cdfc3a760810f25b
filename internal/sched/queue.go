// Package sched runs deferred actions on the simulation clock. The clock is
// the sum of tick deltas, so timers are unaffected by wall-clock stalls or
// network loss. A Queue is owned by the tick goroutine and is not safe for
// concurrent use.
package sched

import (
	"container/heap"
	"time"
)

// TaskID identifies a scheduled action for cancellation.
type TaskID uint64

type task struct {
	id     TaskID
	fireAt time.Duration
	seq    uint64
	action func()
	index  int
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Queue orders actions by fire time. Actions sharing a fire time run in the
// order they were scheduled.
type Queue struct {
	now   time.Duration
	seq   uint64
	tasks taskHeap
	byID  map[TaskID]*task
}

func New() *Queue {
	return &Queue{byID: make(map[TaskID]*task)}
}

// Now reports the simulation time reached by the last Advance or RunDue.
func (q *Queue) Now() time.Duration {
	return q.now
}

// At schedules action to run once the clock reaches at.
func (q *Queue) At(at time.Duration, action func()) TaskID {
	q.seq++
	t := &task{id: TaskID(q.seq), fireAt: at, seq: q.seq, action: action}
	heap.Push(&q.tasks, t)
	q.byID[t.id] = t
	return t.id
}

// After schedules action to run d after the current simulation time.
func (q *Queue) After(d time.Duration, action func()) TaskID {
	return q.At(q.now+d, action)
}

// Cancel removes a pending task and reports whether it was still pending.
func (q *Queue) Cancel(id TaskID) bool {
	t, ok := q.byID[id]
	if !ok {
		return false
	}
	delete(q.byID, id)
	heap.Remove(&q.tasks, t.index)
	return true
}

// Pending reports whether id is still waiting to fire.
func (q *Queue) Pending(id TaskID) bool {
	_, ok := q.byID[id]
	return ok
}

// Advance moves the clock to now without running anything. Tasks scheduled
// afterwards are measured from now.
func (q *Queue) Advance(now time.Duration) {
	if now > q.now {
		q.now = now
	}
}

// RunDue advances the clock to now and runs every task due by then,
// including tasks scheduled by the actions themselves. It returns the number
// of actions run.
func (q *Queue) RunDue(now time.Duration) int {
	q.Advance(now)
	ran := 0
	for len(q.tasks) > 0 && q.tasks[0].fireAt <= q.now {
		t := heap.Pop(&q.tasks).(*task)
		delete(q.byID, t.id)
		if t.action != nil {
			t.action()
		}
		ran++
	}
	return ran
}

func (q *Queue) Len() int {
	return len(q.tasks)
}
