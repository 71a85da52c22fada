package scheduler

import (
	"sort"
	"sync"

	"github.com/Aman-CERP/amanidx/internal/metrics"
)

// queue holds waiting jobs in two FIFO lanes and the per-index lock table.
// All methods require the manager mutex.
type queue struct {
	lanes   [2][]*Job // indexed by Priority
	running map[*Job]struct{}
	locks   map[string]*sync.Mutex
}

func newQueue() *queue {
	return &queue{
		running: make(map[*Job]struct{}),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (q *queue) push(j *Job) {
	q.lanes[j.Priority] = append(q.lanes[j.Priority], j)
	metrics.QueueDepth.WithLabelValues(j.Priority.String()).Inc()
}

func (q *queue) lock(indexID string) *sync.Mutex {
	l, ok := q.locks[indexID]
	if !ok {
		l = &sync.Mutex{}
		q.locks[indexID] = l
	}
	return l
}

// pick removes and returns the first job, high lane first, whose index lock
// it could take. Jobs on busy indexes are skipped. Nil when none is runnable.
func (q *queue) pick() (*Job, *sync.Mutex) {
	for p := PriorityHigh; p >= PriorityLow; p-- {
		lane := q.lanes[p]
		for i, j := range lane {
			l := q.lock(j.Index.ID)
			if !l.TryLock() {
				continue
			}
			q.lanes[p] = append(lane[:i:i], lane[i+1:]...)
			q.running[j] = struct{}{}
			j.State = StateRunning
			metrics.QueueDepth.WithLabelValues(p.String()).Dec()
			return j, l
		}
	}
	return nil, nil
}

// drain empties both lanes and returns the removed jobs.
func (q *queue) drain() []*Job {
	var out []*Job
	for p := PriorityHigh; p >= PriorityLow; p-- {
		out = append(out, q.lanes[p]...)
		metrics.QueueDepth.WithLabelValues(p.String()).Sub(float64(len(q.lanes[p])))
		q.lanes[p] = nil
	}
	return out
}

func (q *queue) queued() int {
	return len(q.lanes[PriorityHigh]) + len(q.lanes[PriorityLow])
}

func (q *queue) idle() bool {
	return q.queued() == 0 && len(q.running) == 0
}

// waiting reports whether a queued job targets the index.
func (q *queue) waiting(indexID string) bool {
	for _, lane := range q.lanes {
		for _, j := range lane {
			if j.Index.ID == indexID {
				return true
			}
		}
	}
	return false
}

// snapshot copies the unfinished jobs accepted by keep, ordered by
// priority then enqueue order.
func (q *queue) snapshot(keep func(*Job) bool) []*Job {
	var out []*Job
	add := func(j *Job) {
		if keep == nil || keep(j) {
			out = append(out, j.snapshot())
		}
	}
	for j := range q.running {
		add(j)
	}
	for _, lane := range q.lanes {
		for _, j := range lane {
			add(j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority > out[b].Priority
		}
		return out[a].seq < out[b].seq
	})
	return out
}
