package crawler

import (
	"context"
	"sync"
)

// Item is one unit of crawl work. Previous is set on the second attempt
// and carries the classification of the first failure.
type Item struct {
	ID       string
	Retry    bool
	Previous *Classification
}

// Queue is an unbounded FIFO of crawl items. An identifier is live from
// Push until Done; a live identifier cannot be pushed again. The queue
// closes itself once no identifier is live.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Item
	live   map[string]struct{}
	closed bool
}

// NewQueue returns an empty, open queue.
func NewQueue() *Queue {
	q := &Queue{live: make(map[string]struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push adds a new item. It reports false when the identifier is already
// live or the queue is closed.
func (q *Queue) Push(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, ok := q.live[item.ID]; ok {
		return false
	}
	q.live[item.ID] = struct{}{}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// Requeue puts a live item back at the tail for another attempt.
func (q *Queue) Requeue(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, ok := q.live[item.ID]; !ok {
		return false
	}
	q.items = append(q.items, item)
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available, the queue is closed or ctx is
// done. ok is false in the last two cases.
func (q *Queue) Pop(ctx context.Context) (item Item, ok bool) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if ctx.Err() != nil || len(q.items) == 0 {
		return Item{}, false
	}
	item = q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	return item, true
}

// Done releases id. When nothing is live any more the queue closes.
func (q *Queue) Done(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.live, id)
	if len(q.live) == 0 {
		q.closeLocked()
	}
}

// Close stops the queue. Pending items are dropped and blocked Pops return.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
}

func (q *Queue) closeLocked() {
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Live returns the number of live identifiers.
func (q *Queue) Live() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.live)
}
