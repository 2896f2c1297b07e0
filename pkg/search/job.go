// ABOUTME: Handle of one background search job
// ABOUTME: Batches flow over a bounded channel; Cancel guarantees no batch after it returns

package search

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is a running or finished search
type Job struct {
	ID        string
	Pattern   string
	StartedAt time.Time

	results chan []Result
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	state State
	err   error
	count int
}

func newJob(parent context.Context, pattern string, buffer int) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		ID:        uuid.NewString(),
		Pattern:   pattern,
		StartedAt: time.Now(),
		results:   make(chan []Result, buffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateRunning,
	}
}

// Results streams batches; the channel closes when the job ends
func (j *Job) Results() <-chan []Result {
	return j.results
}

// Cancel stops the job and waits for the scan loop to exit.
// Once it returns no further batch can be received. Cancelling a
// finished job leaves its state unchanged.
func (j *Job) Cancel() {
	j.cancel()
	<-j.done
	if j.State() == StateCancelled {
		for range j.results {
		}
	}
}

// Wait blocks until the job ends and returns its final state and error
func (j *Job) Wait() (State, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state, j.err
}

// Done is closed when the job ends
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// State returns the current state
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the failure cause of a failed job
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Count returns the number of results delivered so far
func (j *Job) Count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

// emit delivers a batch unless the job was cancelled
func (j *Job) emit(batch []Result) bool {
	if j.ctx.Err() != nil {
		return false
	}
	select {
	case j.results <- batch:
		j.mu.Lock()
		j.count += len(batch)
		j.mu.Unlock()
		return true
	case <-j.ctx.Done():
		return false
	}
}

func (j *Job) finish(state State, err error) {
	j.mu.Lock()
	j.state = state
	j.err = err
	j.mu.Unlock()
	j.cancel()
	close(j.results)
	close(j.done)
}

// Collect drains a job and returns every result it delivered
func Collect(j *Job) []Result {
	var out []Result
	for batch := range j.Results() {
		out = append(out, batch...)
	}
	return out
}
