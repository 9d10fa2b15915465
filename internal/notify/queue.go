package notify

import (
	"container/heap"
	"sync"

	"earshot/internal/kit"
)

// item is one fully rendered notification awaiting dispatch.
type item struct {
	title    string
	body     string
	speech   bool // speak instead of play-and-announce
	profile  kit.Profile
	settings map[string]any

	messageID string
	priority  int     // numeric priority, higher first
	timestamp float64 // message timestamp, more recent first
	seq       uint64  // enqueue order, breaks exact ties
}

// queue is the only structure shared between the ingestion context and
// the dispatch worker. Ordering: priority descending, then timestamp
// descending, then enqueue order.
type queue struct {
	mu    sync.Mutex
	items itemHeap
	seq   uint64

	// wake is signaled (non-blocking) on push so the worker does not have
	// to rely on its poll interval alone.
	wake chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

func (q *queue) push(it item) {
	q.mu.Lock()
	it.seq = q.seq
	q.seq++
	heap.Push(&q.items, it)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item{}, false
	}
	return heap.Pop(&q.items).(item), true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) drain() int {
	q.mu.Lock()
	n := len(q.items)
	q.items = nil
	q.mu.Unlock()
	return n
}

type itemHeap []item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	if h[i].timestamp != h[j].timestamp {
		return h[i].timestamp > h[j].timestamp
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
