package scheduler

import (
	"container/heap"
	"time"
)

// event is one queued note edge.
type event struct {
	beat  float64
	due   time.Time
	track int
	note  int
	off   bool
	seq   uint64
}

// eventQueue is a min-heap ordered by beat. At the same beat releases
// come before starts so a repeated pitch retriggers cleanly.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.beat != b.beat {
		return a.beat < b.beat
	}
	if a.off != b.off {
		return a.off
	}
	return a.seq < b.seq
}

func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *eventQueue) Push(x any) { *q = append(*q, x.(*event)) }

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}

func (q *eventQueue) peek() *event {
	if len(*q) == 0 {
		return nil
	}
	return (*q)[0]
}

func (q *eventQueue) push(e *event) { heap.Push(q, e) }

func (q *eventQueue) pop() *event { return heap.Pop(q).(*event) }
