package progress

import (
	"testing"
	"time"

	"github.com/koustreak/s3nav/internal/filestore"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func event(done, total int64) filestore.ProgressEvent {
	return filestore.ProgressEvent{BytesTransferred: done, TotalBytes: total}
}

func TestTracker_SpeedAndETA(t *testing.T) {
	clock := newFakeClock()
	tr := newTrackerWithClock(clock.now)

	clock.advance(2 * time.Second)
	tr.Observe(event(2000, 10000))

	s := tr.Status()
	assert.Equal(t, int64(2000), s.BytesTransferred)
	assert.Equal(t, int64(10000), s.TotalBytes)
	assert.InDelta(t, 1000, s.AverageSpeed, 0.001)
	assert.InDelta(t, 1000, s.CurrentSpeed, 0.001)
	assert.Equal(t, 8*time.Second, s.ETA)
	assert.InDelta(t, 20, s.Percent(), 0.001)
}

func TestTracker_CurrentSpeedUsesRecentWindow(t *testing.T) {
	clock := newFakeClock()
	tr := newTrackerWithClock(clock.now)

	// slow start, then a fast burst
	clock.advance(10 * time.Second)
	tr.Observe(event(1000, 0))
	clock.advance(1 * time.Second)
	tr.Observe(event(11000, 0))

	s := tr.Status()
	assert.InDelta(t, 1000, s.AverageSpeed, 0.001)
	assert.InDelta(t, 10000, s.CurrentSpeed, 0.001)
	assert.Equal(t, time.Duration(0), s.ETA, "no ETA without a total")
	assert.Equal(t, float64(-1), s.Percent())
}

func TestTracker_IgnoresRegressions(t *testing.T) {
	clock := newFakeClock()
	tr := newTrackerWithClock(clock.now)

	clock.advance(time.Second)
	tr.Observe(event(500, 1000))
	tr.Observe(event(100, 1000))

	assert.Equal(t, int64(500), tr.Status().BytesTransferred)
}

func TestTracker_SinkNeverCancels(t *testing.T) {
	tr := NewTracker()
	sink := tr.Sink()

	assert.True(t, sink(event(10, 20)))
	assert.Equal(t, int64(10), tr.Status().BytesTransferred)
}

func TestTracker_Line(t *testing.T) {
	clock := newFakeClock()
	tr := newTrackerWithClock(clock.now)
	clock.advance(2 * time.Second)
	tr.Observe(event(2000, 10000))

	line := tr.Line()
	assert.Contains(t, line, "20.0%")
	assert.Contains(t, line, "2.0 kB / 10 kB")
	assert.Contains(t, line, "1.0 kB/s")
	assert.Contains(t, line, "ETA 8s")

	unknown := newTrackerWithClock(clock.now)
	clock.advance(time.Second)
	unknown.Observe(event(5, 0))
	assert.NotContains(t, unknown.Line(), "%")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "-"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + time.Minute + time.Second, "2h1m1s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestFormatBytesAndSpeed(t *testing.T) {
	assert.Equal(t, "5 B", FormatBytes(5))
	assert.Equal(t, "0 B", FormatBytes(-1))
	assert.Equal(t, "1.5 MB", FormatBytes(1500000))
	assert.Equal(t, "2.0 kB/s", FormatSpeed(2000))
}
