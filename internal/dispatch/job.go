package dispatch

import (
	"container/list"
	"context"
	"time"

	"github.com/ironsheep/plotting-mcp/internal/plot"
	"github.com/ironsheep/plotting-mcp/internal/render"
)

// State is the lifecycle position of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job is one admitted render request. Its state is owned by the dispatcher
// and only changes under the dispatcher lock.
type Job struct {
	ID        string
	Spec      *plot.Spec
	Submitted time.Time
	Started   time.Time
	Finished  time.Time

	state State
	elem  *list.Element
	timer *time.Timer

	// ctx is handed to the renderer; cancel withdraws it.
	ctx    context.Context
	cancel context.CancelFunc

	done chan outcome
}

type outcome struct {
	res *render.Result
	err error
}

func newJob(id string, spec *plot.Spec) *Job {
	return &Job{
		ID:        id,
		Spec:      spec,
		Submitted: time.Now(),
		state:     StateQueued,
		done:      make(chan outcome, 1),
	}
}
