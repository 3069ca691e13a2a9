// Package worker runs object store operations off the caller's goroutine.
//
// Every operation is a blocking call. The Runner executes them on their own
// goroutines, bounded by a weighted semaphore, and hands back a Job the
// caller can watch (progress, completion) or cancel. Synchronous callers
// that only need the concurrency bound use Do.
//
// Usage:
//
//	r := worker.NewRunner(4, worker.WithLogger(log))
//	defer r.Shutdown(ctx)
//
//	job := r.Download(client, params, "demo", "big.iso", "/tmp/big.iso")
//	for ev := range job.Progress() {
//		fmt.Println(ev.BytesTransferred)
//	}
//	err := job.Err()
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/koustreak/s3nav/internal/errs"
	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/koustreak/s3nav/internal/logger"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultConcurrency is the number of operations run at once.
	DefaultConcurrency = 4

	// DefaultHistory is how many jobs the runner remembers.
	DefaultHistory = 100
)

// Func is the body of a job. It must honour ctx and report progress
// through sink, stopping when sink returns false.
type Func func(ctx context.Context, sink filestore.ProgressSink) error

// Spec describes what a job works on.
type Spec struct {
	Op     string
	Bucket string
	Key    string
	Path   string
}

// Downloader is the part of filestore.Client a download job needs.
type Downloader interface {
	DownloadObjectToFile(ctx context.Context, params filestore.ConnectionParams, bucket, key, localPath string, sink filestore.ProgressSink) error
}

// JobObserver is told when jobs start and stop running.
type JobObserver interface {
	JobStarted()
	JobFinished()
}

type nopJobObserver struct{}

func (nopJobObserver) JobStarted()  {}
func (nopJobObserver) JobFinished() {}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger job lifecycle records go to.
func WithLogger(l *logger.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithObserver sets the job observer.
func WithObserver(o JobObserver) Option {
	return func(r *Runner) { r.observer = o }
}

// WithHistory sets how many jobs are remembered for Get and List. Finished
// jobs beyond that are forgotten oldest first.
func WithHistory(n int) Option {
	return func(r *Runner) { r.history = n }
}

// Runner executes jobs with bounded concurrency.
type Runner struct {
	sem      *semaphore.Weighted
	log      *logger.Logger
	observer JobObserver
	history  int

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu    sync.Mutex
	seq   uint64
	jobs  map[string]*Job
	order []*Job
}

// NewRunner creates a runner that runs at most concurrency jobs at once.
func NewRunner(concurrency int64, opts ...Option) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ctx, stop := context.WithCancel(context.Background())
	r := &Runner{
		sem:      semaphore.NewWeighted(concurrency),
		log:      logger.Nop(),
		observer: nopJobObserver{},
		history:  DefaultHistory,
		ctx:      ctx,
		stop:     stop,
		jobs:     make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Submit starts fn in the background and returns its job at once. The job
// waits in StateQueued until a slot is free.
func (r *Runner) Submit(spec Spec, fn Func) *Job {
	r.mu.Lock()
	r.seq++
	j := newJob(r.ctx, fmt.Sprintf("%s-%d", spec.Op, r.seq), spec.Op)
	j.Bucket, j.Key, j.Path = spec.Bucket, spec.Key, spec.Path
	r.jobs[j.ID] = j
	r.order = append(r.order, j)
	r.prune()
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(j, fn)
	return j
}

// Download starts a background download of key to localPath.
func (r *Runner) Download(client Downloader, params filestore.ConnectionParams, bucket, key, localPath string) *Job {
	spec := Spec{Op: "download", Bucket: bucket, Key: key, Path: localPath}
	return r.Submit(spec, func(ctx context.Context, sink filestore.ProgressSink) error {
		return client.DownloadObjectToFile(ctx, params, bucket, key, localPath, sink)
	})
}

// Do runs fn in a worker slot and waits for it.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return errs.Wrap(errs.ErrKindCancelled, "gave up waiting for a worker", err)
	}
	defer r.sem.Release(1)
	return fn(ctx)
}

// Get returns the job with id.
func (r *Runner) Get(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

// List returns the remembered jobs, oldest first.
func (r *Runner) List() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Job(nil), r.order...)
}

// Shutdown cancels every job and waits for them to return.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) run(j *Job, fn Func) {
	defer r.wg.Done()

	fields := map[string]interface{}{
		"job": j.ID,
		"op":  j.Op,
	}
	if j.Bucket != "" {
		fields["bucket"] = j.Bucket
	}
	if j.Key != "" {
		fields["key"] = j.Key
	}

	if err := r.sem.Acquire(j.ctx, 1); err != nil {
		j.finish(errs.Wrap(errs.ErrKindCancelled, "job cancelled before it started", err))
		r.log.InfoWith("job cancelled while queued", fields)
		return
	}
	defer r.sem.Release(1)

	j.setRunning()
	r.observer.JobStarted()
	start := time.Now()

	err := fn(j.ctx, j.sink)

	r.observer.JobFinished()
	j.finish(err)

	fields["duration_ms"] = time.Since(start).Milliseconds()
	fields["state"] = string(j.State())
	if err != nil && !errs.IsCancelled(err) {
		r.log.WarnWith("job failed", err, fields)
		return
	}
	r.log.InfoWith("job finished", fields)
}

// prune forgets the oldest finished jobs beyond the history limit.
// Must be called with r.mu held.
func (r *Runner) prune() {
	if r.history <= 0 || len(r.order) <= r.history {
		return
	}
	excess := len(r.order) - r.history
	kept := r.order[:0]
	for _, j := range r.order {
		if excess > 0 && j.State().Terminal() {
			delete(r.jobs, j.ID)
			excess--
			continue
		}
		kept = append(kept, j)
	}
	r.order = kept
}
