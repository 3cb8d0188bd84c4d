// Package scheduler implements the discrete-event priority queue that
// drives simulated time. Entries are ordered by (day, insertion counter):
// two actions scheduled for the same day fire in the order they were
// pushed, which fixes every otherwise-ambiguous ordering in the simulator.
package scheduler

import "container/heap"

type entry struct {
	day    int
	seq    uint64
	action Action
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].day != h[j].day {
		return h[i].day < h[j].day
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler is a min-priority queue of future actions keyed by simulated
// day. It is not safe for concurrent use; a run executes on one goroutine.
type Scheduler struct {
	heap entryHeap
	seq  uint64
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule queues an action for the given day. Scheduling an action for the
// current day is legal: it fires after every action already queued for that
// day.
func (s *Scheduler) Schedule(day int, action Action) {
	s.seq++
	heap.Push(&s.heap, entry{day: day, seq: s.seq, action: action})
}

// PopNext removes and returns the earliest entry. The second return is
// false when the queue is empty.
func (s *Scheduler) PopNext() (int, Action, bool) {
	if len(s.heap) == 0 {
		return 0, nil, false
	}
	e := heap.Pop(&s.heap).(entry)
	return e.day, e.action, true
}

// PeekDay returns the day of the earliest entry without removing it.
func (s *Scheduler) PeekDay() (int, bool) {
	if len(s.heap) == 0 {
		return 0, false
	}
	return s.heap[0].day, true
}

// Len returns the number of queued entries.
func (s *Scheduler) Len() int {
	return len(s.heap)
}
