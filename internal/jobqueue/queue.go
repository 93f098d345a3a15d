// Package jobqueue serializes image generation jobs onto a single worker and
// collects their outcomes per request.
package jobqueue

import (
	"sync"

	"github.com/kiranshivaraju/insrobot/pkg/models"
)

// Queue is an unbounded FIFO of jobs. Put never blocks; Take blocks until a
// job or the shutdown sentinel is available.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*models.Job
	closed bool
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends a job. It returns ErrQueueClosed once Shutdown has been called.
func (q *Queue) Put(job *models.Job) error {
	if job == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return nil
}

// Take removes and returns the oldest job. A nil job is the shutdown sentinel.
func (q *Queue) Take() *models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job
}

// Shutdown enqueues the sentinel. Jobs already behind it are never handed out
// by a worker that stops on the sentinel. Calling Shutdown twice is a no-op.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = append(q.items, nil)
	q.cond.Signal()
}

// Len reports the number of queued entries, the sentinel included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
