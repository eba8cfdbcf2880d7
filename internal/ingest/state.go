package ingest

import "github.com/JonMunkholm/foodingest/internal/food"

// State is the position of one record in the retry state machine.
type State int

const (
	StatePending State = iota
	StateInFlight
	StateCommitted
	StateFailedRetryable
	StateFailedPermanent
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInFlight:
		return "in-flight"
	case StateCommitted:
		return "committed"
	case StateFailedRetryable:
		return "failed-retryable"
	case StateFailedPermanent:
		return "failed-permanent"
	default:
		return "unknown"
	}
}

// entry tracks one record through the state machine. index is the record's
// position in the invocation input.
type entry struct {
	record   food.FoodRecord
	index    int
	state    State
	attempts int
}

// queue is the FIFO of pending entries. Its capacity is fixed to the number
// of records in the invocation; an entry is never queued twice at once, so
// pushes cannot exceed it. latest holds the highest input index admitted per
// food_name.
type queue struct {
	buf    []*entry
	head   int
	size   int
	latest map[string]int
}

func newQueue(capacity int) *queue {
	if capacity < 1 {
		capacity = 1
	}
	return &queue{buf: make([]*entry, capacity), latest: make(map[string]int)}
}

// admit queues a fresh input entry.
func (q *queue) admit(e *entry) bool {
	if i, ok := q.latest[e.record.FoodName]; !ok || e.index > i {
		q.latest[e.record.FoodName] = e.index
	}
	return q.push(e)
}

// superseded reports whether a later input row shares e's food_name.
func (q *queue) superseded(e *entry) bool {
	i, ok := q.latest[e.record.FoodName]
	return ok && i > e.index
}

func (q *queue) len() int { return q.size }

func (q *queue) push(e *entry) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.size)%len(q.buf)] = e
	q.size++
	e.state = StatePending
	return true
}

// take removes up to n entries from the head.
func (q *queue) take(n int) []*entry {
	if n > q.size {
		n = q.size
	}
	out := make([]*entry, n)
	for i := range out {
		out[i] = q.buf[q.head]
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
	}
	q.size -= n
	return out
}

// drain removes every remaining entry.
func (q *queue) drain() []*entry {
	return q.take(q.size)
}
