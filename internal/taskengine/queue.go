package taskengine

import (
	"container/heap"
	"time"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

// queuedJob pairs a job with its admission sequence so equal eligibility
// times fall back to submission order.
type queuedJob struct {
	job domain.Job
	seq uint64
}

// jobQueue orders by next-eligible-run time, not insertion time, so delayed
// retries and fresh jobs cannot starve each other. Not safe for concurrent
// use; the engine serializes access.
type jobQueue struct {
	items []queuedJob
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	heap.Init(q)
	return q
}

func (q *jobQueue) Len() int { return len(q.items) }

func (q *jobQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if !a.job.EligibleAt.Equal(b.job.EligibleAt) {
		return a.job.EligibleAt.Before(b.job.EligibleAt)
	}
	return a.seq < b.seq
}

func (q *jobQueue) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *jobQueue) Push(x any) { q.items = append(q.items, x.(queuedJob)) }

func (q *jobQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

func (q *jobQueue) push(job domain.Job, seq uint64) {
	heap.Push(q, queuedJob{job: job, seq: seq})
}

// peekEligibleAt returns the earliest eligibility time in the queue.
func (q *jobQueue) peekEligibleAt() (time.Time, bool) {
	if len(q.items) == 0 {
		return time.Time{}, false
	}
	return q.items[0].job.EligibleAt, true
}

// popEligible removes and returns the head job if it is eligible at now.
func (q *jobQueue) popEligible(now time.Time) (domain.Job, bool) {
	if len(q.items) == 0 || q.items[0].job.EligibleAt.After(now) {
		return domain.Job{}, false
	}
	item := heap.Pop(q).(queuedJob)
	return item.job, true
}
