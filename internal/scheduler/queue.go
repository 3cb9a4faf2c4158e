package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

type queueEntry struct {
	event      Event
	enqueuedAt time.Time
	seq        uint64
}

// entryHeap orders by descending priority, then enqueue time, then arrival.
type entryHeap []*queueEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.event.Priority != b.event.Priority {
		return a.event.Priority > b.event.Priority
	}
	if !a.enqueuedAt.Equal(b.enqueuedAt) {
		return a.enqueuedAt.Before(b.enqueuedAt)
	}
	return a.seq < b.seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*queueEntry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// pendingQueue is the shared priority queue of work waiting for a cycle.
type pendingQueue struct {
	mu     sync.Mutex
	h      entryHeap
	seq    uint64
	notify chan struct{}
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{notify: make(chan struct{}, 1)}
}

func (q *pendingQueue) push(ev Event, at time.Time) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.h, &queueEntry{event: ev, enqueuedAt: at, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// popN removes up to n events in priority order without blocking.
func (q *pendingQueue) popN(n int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.h) {
		n = len(q.h)
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, heap.Pop(&q.h).(*queueEntry).event)
	}
	return out
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}
