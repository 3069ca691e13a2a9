package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koustreak/s3nav/internal/errs"
	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/koustreak/s3nav/internal/filestore/minio"
	"github.com/koustreak/s3nav/internal/filestore/s3test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newRunner(t *testing.T, concurrency int64, opts ...Option) *Runner {
	t.Helper()
	r := NewRunner(concurrency, opts...)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	return r
}

// blocker returns a job body that reports it started and then waits for
// release or cancellation.
func blocker(started chan<- struct{}, release <-chan struct{}) Func {
	return func(ctx context.Context, _ filestore.ProgressSink) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return errs.Wrap(errs.ErrKindCancelled, "stopped", ctx.Err())
		}
	}
}

type countingObserver struct {
	started  atomic.Int32
	finished atomic.Int32
}

func (c *countingObserver) JobStarted()  { c.started.Add(1) }
func (c *countingObserver) JobFinished() { c.finished.Add(1) }

func TestRunner_DownloadAgainstStore(t *testing.T) {
	srv := s3test.New(t)
	payload := make([]byte, 100*1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	srv.PutObject("demo", "data.bin", payload)

	client := minio.New()
	defer client.Close()
	obs := &countingObserver{}
	r := newRunner(t, 2, WithObserver(obs))

	dest := filepath.Join(t.TempDir(), "data.bin")
	job := r.Download(client, srv.Params(), "demo", "data.bin", dest)
	assert.Equal(t, "download-1", job.ID)

	var last filestore.ProgressEvent
	for ev := range job.Progress() {
		assert.GreaterOrEqual(t, ev.BytesTransferred, last.BytesTransferred)
		last = ev
	}

	require.NoError(t, job.Wait(waitCtx(t)))
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	snap := job.Snapshot()
	assert.Equal(t, StateSucceeded, snap.State)
	assert.Equal(t, int64(len(payload)), snap.BytesTransferred)
	assert.Equal(t, float64(100), snap.Percent)
	assert.Equal(t, "demo", snap.Bucket)
	assert.Equal(t, dest, snap.Path)
	assert.False(t, snap.Finished.IsZero())

	assert.Equal(t, int32(1), obs.started.Load())
	assert.Equal(t, int32(1), obs.finished.Load())
}

func TestRunner_DownloadFailure(t *testing.T) {
	srv := s3test.New(t)
	srv.CreateBucket("demo")
	client := minio.New()
	defer client.Close()
	r := newRunner(t, 1)

	job := r.Download(client, srv.Params(), "demo", "missing", filepath.Join(t.TempDir(), "x"))
	err := job.Wait(waitCtx(t))
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	snap := job.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	assert.Equal(t, "remote_api", snap.ErrorKind)
	assert.NotEmpty(t, snap.Error)
}

func TestJob_CancelStopsAtNextProgressEvent(t *testing.T) {
	r := newRunner(t, 1)
	started := make(chan struct{})

	job := r.Submit(Spec{Op: "download"}, func(ctx context.Context, sink filestore.ProgressSink) error {
		assert.True(t, sink(filestore.ProgressEvent{BytesTransferred: 1, TotalBytes: 10}))
		close(started)
		<-ctx.Done()
		if !sink(filestore.ProgressEvent{BytesTransferred: 2, TotalBytes: 10}) {
			return errs.New(errs.ErrKindCancelled, "download cancelled")
		}
		return nil
	})

	<-started
	job.Cancel()

	err := job.Wait(waitCtx(t))
	require.Error(t, err)
	assert.True(t, errs.IsCancelled(err))
	assert.Equal(t, StateCancelled, job.State())
	assert.Equal(t, int64(1), job.Snapshot().BytesTransferred)
}

func TestJob_ProgressKeepsLatest(t *testing.T) {
	r := newRunner(t, 1)

	job := r.Submit(Spec{Op: "test"}, func(_ context.Context, sink filestore.ProgressSink) error {
		for i := int64(1); i <= 3; i++ {
			sink(filestore.ProgressEvent{BytesTransferred: i, TotalBytes: 3})
		}
		return nil
	})
	<-job.Done()

	var got []int64
	for ev := range job.Progress() {
		got = append(got, ev.BytesTransferred)
	}
	assert.Equal(t, []int64{3}, got)
}

func TestRunner_BoundsConcurrency(t *testing.T) {
	r := newRunner(t, 1)
	started1, release1 := make(chan struct{}), make(chan struct{})
	var ran2 atomic.Bool

	job1 := r.Submit(Spec{Op: "first"}, blocker(started1, release1))
	<-started1
	job2 := r.Submit(Spec{Op: "second"}, func(context.Context, filestore.ProgressSink) error {
		ran2.Store(true)
		return nil
	})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateRunning, job1.State())
	assert.Equal(t, StateQueued, job2.State())
	assert.False(t, ran2.Load())

	close(release1)
	require.NoError(t, job1.Wait(waitCtx(t)))
	require.NoError(t, job2.Wait(waitCtx(t)))
	assert.True(t, ran2.Load())
}

func TestRunner_CancelWhileQueued(t *testing.T) {
	r := newRunner(t, 1)
	started, release := make(chan struct{}), make(chan struct{})
	defer close(release)
	var ran atomic.Bool

	r.Submit(Spec{Op: "busy"}, blocker(started, release))
	<-started
	queued := r.Submit(Spec{Op: "queued"}, func(context.Context, filestore.ProgressSink) error {
		ran.Store(true)
		return nil
	})
	queued.Cancel()

	err := queued.Wait(waitCtx(t))
	assert.True(t, errs.IsCancelled(err))
	assert.Equal(t, StateCancelled, queued.State())
	assert.False(t, ran.Load())
}

func TestRunner_GetListAndHistory(t *testing.T) {
	r := newRunner(t, 2, WithHistory(2))
	quick := func(context.Context, filestore.ProgressSink) error { return nil }

	j1 := r.Submit(Spec{Op: "op"}, quick)
	require.NoError(t, j1.Wait(waitCtx(t)))
	j2 := r.Submit(Spec{Op: "op"}, quick)
	require.NoError(t, j2.Wait(waitCtx(t)))
	j3 := r.Submit(Spec{Op: "op"}, quick)
	require.NoError(t, j3.Wait(waitCtx(t)))

	got, ok := r.Get(j3.ID)
	require.True(t, ok)
	assert.Same(t, j3, got)

	_, ok = r.Get(j1.ID)
	assert.False(t, ok, "oldest finished job is forgotten")

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, j2.ID, list[0].ID)
	assert.Equal(t, j3.ID, list[1].ID)
}

func TestRunner_ShutdownCancelsRunningJobs(t *testing.T) {
	r := NewRunner(1)
	started := make(chan struct{})
	job := r.Submit(Spec{Op: "long"}, blocker(started, make(chan struct{})))
	<-started

	require.NoError(t, r.Shutdown(waitCtx(t)))
	assert.Equal(t, StateCancelled, job.State())
}

func TestRunner_Do(t *testing.T) {
	r := newRunner(t, 1)

	err := r.Do(context.Background(), func(context.Context) error {
		return errs.New(errs.ErrKindRemoteAPI, "boom")
	})
	assert.True(t, errs.IsRemoteAPI(err))

	started, release := make(chan struct{}), make(chan struct{})
	defer close(release)
	r.Submit(Spec{Op: "busy"}, blocker(started, release))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = r.Do(ctx, func(context.Context) error { return nil })
	assert.True(t, errs.IsCancelled(err), "waiting for a slot honours ctx")
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, StateQueued.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateCancelled.Terminal())
}
