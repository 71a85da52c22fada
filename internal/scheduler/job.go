package scheduler

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanidx/internal/content"
	"github.com/Aman-CERP/amanidx/internal/indexio"
	"github.com/Aman-CERP/amanidx/internal/transform"
)

// Priority selects the lane a job waits in. High jobs are always picked
// before low ones.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "low"
}

// ParsePriority reads "high" or "low".
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "low", "":
		return PriorityLow, nil
	}
	return PriorityLow, fmt.Errorf("unknown priority %q (expected high or low)", s)
}

// Requester identifies who asked for a job.
type Requester string

// State is the lifecycle stage of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateAbandoned State = "abandoned"
)

// Job is a request to bring one unit of content into one index.
type Job struct {
	ID        uuid.UUID
	ContentID content.ID
	Index     indexio.Index
	Config    *transform.IndexConfig
	Requester Requester
	Priority  Priority
	Params    map[string]string
	Created   time.Time
	State     State

	seq uint64
}

// snapshot copies the job for callers outside the queue lock.
func (j *Job) snapshot() *Job {
	c := *j
	c.Params = maps.Clone(j.Params)
	return &c
}

func (j *Job) String() string {
	return fmt.Sprintf("%s %s -> %s (%s)", j.ID, j.ContentID, j.Index.ID, j.Priority)
}
