package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

type deferredEntry struct {
	event Event
	due   time.Time
	seq   uint64
}

type deferredHeap []*deferredEntry

func (h deferredHeap) Len() int { return len(h) }

func (h deferredHeap) Less(i, j int) bool {
	if !h[i].due.Equal(h[j].due) {
		return h[i].due.Before(h[j].due)
	}
	return h[i].seq < h[j].seq
}

func (h deferredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *deferredHeap) Push(x any) { *h = append(*h, x.(*deferredEntry)) }

func (h *deferredHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// deferredSet holds delayed re-submissions until they are due. The
// processing loop drains it, so nothing fires after the scheduler stops.
type deferredSet struct {
	mu  sync.Mutex
	h   deferredHeap
	seq uint64
}

func (d *deferredSet) add(ev Event, due time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	heap.Push(&d.h, &deferredEntry{event: ev, due: due, seq: d.seq})
}

// popDue removes every entry whose due time is not after now.
func (d *deferredSet) popDue(now time.Time) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Event
	for len(d.h) > 0 && !d.h[0].due.After(now) {
		out = append(out, heap.Pop(&d.h).(*deferredEntry).event)
	}
	return out
}

// next reports the earliest due time.
func (d *deferredSet) next() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.h) == 0 {
		return time.Time{}, false
	}
	return d.h[0].due, true
}

// clear drops every pending entry and reports how many were dropped.
func (d *deferredSet) clear() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.h)
	d.h = nil
	return n
}

func (d *deferredSet) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.h)
}
