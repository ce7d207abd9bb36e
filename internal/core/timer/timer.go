// Package timer is the scheduling primitive used by the game loop: one-shot
// and repeating tasks with cancel handles, driven by explicit Advance calls
// instead of the wall clock. Everything here runs on the loop goroutine.
package timer

import (
	"container/heap"
	"time"
)

// MinInterval is the smallest period accepted by Every.
const MinInterval = time.Millisecond

// Service holds pending tasks ordered by due time, then by schedule order.
type Service struct {
	now   time.Duration
	seq   uint64
	queue taskQueue
}

func NewService() *Service {
	s := &Service{}
	heap.Init(&s.queue)
	return s
}

// Now returns the elapsed scheduler time.
func (s *Service) Now() time.Duration { return s.now }

// Pending returns the number of scheduled, not yet cancelled tasks.
func (s *Service) Pending() int {
	n := 0
	for _, t := range s.queue {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// After runs fn once, d after the current scheduler time.
func (s *Service) After(d time.Duration, fn func()) *Handle {
	if d < 0 {
		d = 0
	}
	return s.push(&task{due: s.now + d, fn: fn})
}

// Every runs fn repeatedly with period d, first firing d from now.
func (s *Service) Every(d time.Duration, fn func()) *Handle {
	if d < MinInterval {
		d = MinInterval
	}
	return s.push(&task{due: s.now + d, every: d, fn: fn})
}

func (s *Service) push(t *task) *Handle {
	s.seq++
	t.seq = s.seq
	heap.Push(&s.queue, t)
	return &Handle{t: t}
}

// Advance moves scheduler time forward by dt and runs every task that came
// due, in order. Each callback sees Now() at its own due time, so timers it
// schedules are due relative to that instant; those falling inside the
// window also run. Returns the number of callbacks executed.
func (s *Service) Advance(dt time.Duration) int {
	target := s.now
	if dt > 0 {
		target += dt
	}
	fired := 0
	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.cancelled {
			heap.Pop(&s.queue)
			continue
		}
		if next.due > target {
			break
		}
		heap.Pop(&s.queue)
		if next.due > s.now {
			s.now = next.due
		}
		if next.every > 0 {
			next.due += next.every
			s.seq++
			next.seq = s.seq
			heap.Push(&s.queue, next)
		} else {
			next.done = true
		}
		next.fn()
		fired++
	}
	s.now = target
	return fired
}

// Handle cancels a scheduled task.
type Handle struct {
	t *task
}

// Cancel stops the task. Returns false if it already ran (one-shot) or was
// cancelled before.
func (h *Handle) Cancel() bool {
	if h == nil || h.t == nil || h.t.cancelled || h.t.done {
		return false
	}
	h.t.cancelled = true
	return true
}

// Active reports whether the task can still fire.
func (h *Handle) Active() bool {
	return h != nil && h.t != nil && !h.t.cancelled && !h.t.done
}

type task struct {
	due       time.Duration
	every     time.Duration
	seq       uint64
	fn        func()
	cancelled bool
	done      bool
	index     int
}

type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
