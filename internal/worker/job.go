package worker

import (
	"context"
	"sync"
	"time"

	"github.com/koustreak/s3nav/internal/errs"
	"github.com/koustreak/s3nav/internal/filestore"
)

// State is the lifecycle position of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the job has finished.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Job is one operation running in the background.
type Job struct {
	ID      string
	Op      string
	Bucket  string
	Key     string
	Path    string
	Created time.Time

	ctx    context.Context
	cancel context.CancelFunc

	progress chan filestore.ProgressEvent
	done     chan struct{}

	mu        sync.Mutex
	state     State
	last      filestore.ProgressEvent
	err       error
	cancelled bool
	finished  time.Time
}

// Snapshot is a point-in-time copy of a job's state, safe to serialise.
type Snapshot struct {
	ID               string    `json:"id"`
	Op               string    `json:"op"`
	Bucket           string    `json:"bucket,omitempty"`
	Key              string    `json:"key,omitempty"`
	Path             string    `json:"path,omitempty"`
	State            State     `json:"state"`
	BytesTransferred int64     `json:"bytes_transferred"`
	TotalBytes       int64     `json:"total_bytes"`
	Percent          float64   `json:"percent"`
	Error            string    `json:"error,omitempty"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	Created          time.Time `json:"created"`
	Finished         time.Time `json:"finished"`
}

func newJob(parent context.Context, id, op string) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		ID:       id,
		Op:       op,
		Created:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		progress: make(chan filestore.ProgressEvent, 1),
		done:     make(chan struct{}),
		state:    StateQueued,
	}
}

// Progress delivers progress events. Only the latest undelivered event is
// kept, so a slow reader sees fresh values rather than a backlog. The
// channel is closed when the job finishes.
func (j *Job) Progress() <-chan filestore.ProgressEvent {
	return j.progress
}

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the job's error once it has finished, nil before.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Cancel asks the job to stop. A download aborts at its next chunk and
// fails with a Cancelled error. Cancelling a finished job does nothing.
func (j *Job) Cancel() {
	j.mu.Lock()
	j.cancelled = true
	j.mu.Unlock()
	j.cancel()
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the job's current state.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:               j.ID,
		Op:               j.Op,
		Bucket:           j.Bucket,
		Key:              j.Key,
		Path:             j.Path,
		State:            j.state,
		BytesTransferred: j.last.BytesTransferred,
		TotalBytes:       j.last.TotalBytes,
		Percent:          j.last.Percent(),
		Created:          j.Created,
		Finished:         j.finished,
	}
	if j.state == StateSucceeded && s.TotalBytes > 0 {
		s.Percent = 100
	}
	if j.err != nil {
		s.Error = j.err.Error()
		s.ErrorKind = errs.KindOf(j.err).String()
	}
	return s
}

// sink is handed to the operation. It records progress and reports
// whether the job should go on.
func (j *Job) sink(e filestore.ProgressEvent) bool {
	j.mu.Lock()
	if j.cancelled {
		j.mu.Unlock()
		return false
	}
	j.last = e
	j.mu.Unlock()

	// single producer: the operation's goroutine
	for {
		select {
		case j.progress <- e:
			return true
		default:
			select {
			case <-j.progress:
			default:
			}
		}
	}
}

func (j *Job) setRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StateRunning
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	switch {
	case err == nil:
		j.state = StateSucceeded
	case errs.IsCancelled(err):
		j.state = StateCancelled
	default:
		j.state = StateFailed
	}
	j.err = err
	j.finished = time.Now()
	j.mu.Unlock()

	j.cancel()
	close(j.progress)
	close(j.done)
}
