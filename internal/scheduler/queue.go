package scheduler

import "container/heap"

// dueItem is a heap entry. Entries go stale when their task is removed or
// rescheduled; they are dropped when popped.
type dueItem struct {
	id      string
	nextRun int64
	seq     uint64
}

// dueQueue is a min-heap ordered by nextRun, then insertion sequence.
type dueQueue []dueItem

func (q dueQueue) Len() int { return len(q) }

func (q dueQueue) Less(i, j int) bool {
	if q[i].nextRun != q[j].nextRun {
		return q[i].nextRun < q[j].nextRun
	}
	return q[i].seq < q[j].seq
}

func (q dueQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *dueQueue) Push(x any) { *q = append(*q, x.(dueItem)) }

func (q *dueQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (q *dueQueue) push(item dueItem) { heap.Push(q, item) }

// popDue removes and returns every item with nextRun <= now.
func (q *dueQueue) popDue(now int64) []dueItem {
	var out []dueItem
	for q.Len() > 0 && (*q)[0].nextRun <= now {
		out = append(out, heap.Pop(q).(dueItem))
	}
	return out
}

// peek returns the earliest item without removing it.
func (q dueQueue) peek() (dueItem, bool) {
	if len(q) == 0 {
		return dueItem{}, false
	}
	return q[0], true
}
