package platform

import (
	"container/heap"
	"sync"
)

// PriorityQueue is a thread-safe queue ordering invocations by
// (priority_rank DESC, enqueued_at ASC), with the exception that
// invocations for preserve_order types are grouped into per-type FIFOs;
// the main heap holds at most one "head" entry per such type, refilled
// when that entry is consumed.
type PriorityQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	h qheap

	// fifos holds the overflow of preserve_order invocations, keyed by
	// job_type, beyond the one "head" entry already sitting in h.
	fifos map[string][]*Invocation

	// seq is a monotonically increasing tie-breaker so two invocations
	// enqueued in the same instant still order by arrival.
	seq int64

	preserveOrder map[string]bool
}

// NewPriorityQueue creates an empty queue. preserveOrderTypes names the
// job_types whose descriptor sets preserve_order=true.
func NewPriorityQueue(preserveOrderTypes map[string]bool) *PriorityQueue {
	q := &PriorityQueue{
		fifos:         make(map[string][]*Invocation),
		preserveOrder: preserveOrderTypes,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

type qitem struct {
	inv *Invocation
	seq int64
}

type qheap []qitem

func (h qheap) Len() int { return len(h) }
func (h qheap) Less(i, j int) bool {
	if h[i].inv.Priority != h[j].inv.Priority {
		return h[i].inv.Priority > h[j].inv.Priority
	}
	if !h[i].inv.EnqueuedAt.Equal(h[j].inv.EnqueuedAt) {
		return h[i].inv.EnqueuedAt.Before(h[j].inv.EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}
func (h qheap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *qheap) Push(x any)        { *h = append(*h, x.(qitem)) }
func (h *qheap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// headInHeap reports whether jobType currently has a "head" entry sitting
// in the main heap, so Push knows whether a preserve_order arrival should
// become the head or queue behind it.
func (q *PriorityQueue) headInHeap(jobType string) bool {
	for _, it := range q.h {
		if it.inv.JobType == jobType {
			return true
		}
	}
	return false
}

// Push adds inv to the queue. If inv carries a non-empty dedup_key equal to
// that of an already-queued invocation of the same type (in the heap or in
// a preserve_order FIFO overflow), the new invocation is dropped and Push
// returns false (Layer B, §4.4); Push also returns false once the queue is
// closed. The Scheduler records a dropped tick as SKIPPED_DEDUP and
// Manager.Enqueue reports the drop as an error; a delayed push (a retry, or
// an Enqueue with NotBefore) that is dropped is not recorded.
func (q *PriorityQueue) Push(inv *Invocation) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if inv.DedupKey != "" && q.hasDedupCollisionLocked(inv) {
		return false
	}

	q.seq++
	if q.preserveOrder[inv.JobType] {
		if q.headInHeap(inv.JobType) {
			q.fifos[inv.JobType] = append(q.fifos[inv.JobType], inv)
		} else {
			heap.Push(&q.h, qitem{inv: inv, seq: q.seq})
		}
	} else {
		heap.Push(&q.h, qitem{inv: inv, seq: q.seq})
	}
	q.signal()
	return true
}

func (q *PriorityQueue) hasDedupCollisionLocked(inv *Invocation) bool {
	for _, it := range q.h {
		if it.inv.JobType == inv.JobType && it.inv.DedupKey == inv.DedupKey {
			return true
		}
	}
	for _, pending := range q.fifos[inv.JobType] {
		if pending.DedupKey == inv.DedupKey {
			return true
		}
	}
	return false
}

// signal wakes every goroutine blocked in Pop so each can recheck the
// condition under lock. Must be called with q.mu held.
func (q *PriorityQueue) signal() {
	q.cond.Broadcast()
}

// Pop blocks until an item is available or Close is called, in which case
// it returns ErrClosed.
func (q *PriorityQueue) Pop() (*Invocation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.h.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.h.Len() > 0 {
		it := heap.Pop(&q.h).(qitem)
		q.refillHeadLocked(it.inv.JobType)
		return it.inv, nil
	}
	return nil, ErrClosed
}

// refillHeadLocked promotes the next queued invocation of jobType from the
// FIFO overflow into the main heap as the new "head", if any are waiting.
// Must be called with q.mu held.
func (q *PriorityQueue) refillHeadLocked(jobType string) {
	queue := q.fifos[jobType]
	if len(queue) == 0 {
		return
	}
	next := queue[0]
	q.fifos[jobType] = queue[1:]
	q.seq++
	heap.Push(&q.h, qitem{inv: next, seq: q.seq})
}

// PushBack re-enqueues inv at the tail of its priority band with unchanged
// EnqueuedAt, used by the Executor when ConcurrencyGovernor.TryAcquire
// fails at dequeue time (§4.3). It bypasses dedup checks — inv was already
// admitted once.
func (q *PriorityQueue) PushBack(inv *Invocation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.seq++
	if q.preserveOrder[inv.JobType] {
		// inv was this type's head; any same-type entry that took the head
		// slot since then is younger, so it goes back to the front of the
		// FIFO overflow and inv takes the head slot again.
		for i, it := range q.h {
			if it.inv.JobType == inv.JobType {
				heap.Remove(&q.h, i)
				q.fifos[inv.JobType] = append([]*Invocation{it.inv}, q.fifos[inv.JobType]...)
				break
			}
		}
	}
	heap.Push(&q.h, qitem{inv: inv, seq: q.seq})
	q.signal()
}

// Len returns the total number of pending invocations (heap + FIFO
// overflow).
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *PriorityQueue) lenLocked() int {
	n := q.h.Len()
	for _, fq := range q.fifos {
		n += len(fq)
	}
	return n
}

// LenByType returns the number of pending invocations of the given type.
func (q *PriorityQueue) LenByType(jobType string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.h {
		if it.inv.JobType == jobType {
			n++
		}
	}
	n += len(q.fifos[jobType])
	return n
}

// RemoveMatching removes every pending invocation for which predicate
// returns true, returning the count removed. Neither dedup layer calls it:
// deduplication happens in Push and in the Executor's pre-execute check.
func (q *PriorityQueue) RemoveMatching(predicate func(*Invocation) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0

	kept := q.h[:0]
	for _, it := range q.h {
		if predicate(it.inv) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	q.h = kept
	heap.Init(&q.h)

	for jt, items := range q.fifos {
		filtered := items[:0]
		for _, inv := range items {
			if predicate(inv) {
				removed++
				continue
			}
			filtered = append(filtered, inv)
		}
		q.fifos[jt] = filtered
	}

	return removed
}

// Close causes all blocked and future Pop calls to return ErrClosed once
// the queue is drained of buffered items already pushed.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.signal()
}
