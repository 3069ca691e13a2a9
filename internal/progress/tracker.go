// Package progress turns the progress events of one transfer into the
// figures a user wants to see: percent done, speed and time remaining.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/koustreak/s3nav/internal/filestore"
)

// speedWindow is how far back the current speed looks.
const speedWindow = 5 * time.Second

// Status is a snapshot of one transfer.
type Status struct {
	BytesTransferred int64
	TotalBytes       int64 // 0 when the store did not report a size
	StartTime        time.Time
	LastUpdateTime   time.Time
	CurrentSpeed     float64 // bytes/second over the last few seconds
	AverageSpeed     float64 // bytes/second since start
	ETA              time.Duration
}

// Percent returns the completed share in [0, 100], or -1 when the total is unknown.
func (s Status) Percent() float64 {
	return filestore.ProgressEvent{BytesTransferred: s.BytesTransferred, TotalBytes: s.TotalBytes}.Percent()
}

// Tracker accumulates progress events for one transfer.
type Tracker struct {
	mu      sync.RWMutex
	now     func() time.Time
	status  Status
	samples []sample
}

type sample struct {
	at    time.Time
	bytes int64 // cumulative
}

// NewTracker creates a tracker whose clock starts now.
func NewTracker() *Tracker {
	return newTrackerWithClock(time.Now)
}

func newTrackerWithClock(now func() time.Time) *Tracker {
	start := now()
	return &Tracker{
		now: now,
		status: Status{
			StartTime:      start,
			LastUpdateTime: start,
		},
		samples: []sample{{at: start}},
	}
}

// Observe records one event. Events that would move the byte count
// backwards are ignored.
func (t *Tracker) Observe(e filestore.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.BytesTransferred < t.status.BytesTransferred {
		return
	}
	now := t.now()
	t.status.BytesTransferred = e.BytesTransferred
	if e.TotalBytes > 0 {
		t.status.TotalBytes = e.TotalBytes
	}
	t.status.LastUpdateTime = now

	t.samples = append(t.samples, sample{at: now, bytes: e.BytesTransferred})
	cutoff := now.Add(-speedWindow)
	for len(t.samples) > 2 && t.samples[0].at.Before(cutoff) {
		t.samples = t.samples[1:]
	}

	t.updateSpeed(now)
}

// Sink returns a progress sink that records into t and never cancels.
func (t *Tracker) Sink() filestore.ProgressSink {
	return func(e filestore.ProgressEvent) bool {
		t.Observe(e)
		return true
	}
}

// must be called with the lock held
func (t *Tracker) updateSpeed(now time.Time) {
	first := t.samples[0]
	if d := now.Sub(first.at); d > 0 {
		t.status.CurrentSpeed = float64(t.status.BytesTransferred-first.bytes) / d.Seconds()
	}

	if elapsed := now.Sub(t.status.StartTime); elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.BytesTransferred) / elapsed.Seconds()
	}

	t.status.ETA = 0
	remaining := t.status.TotalBytes - t.status.BytesTransferred
	if t.status.TotalBytes > 0 && remaining > 0 && t.status.AverageSpeed > 0 {
		t.status.ETA = time.Duration(float64(remaining)/t.status.AverageSpeed) * time.Second
	}
}

// Status returns the current snapshot.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Line renders the status as a single progress line, e.g.
// "42.0% 4.2 MB / 10 MB 1.1 MB/s ETA 5s".
func (t *Tracker) Line() string {
	s := t.Status()

	var b strings.Builder
	if p := s.Percent(); p >= 0 {
		fmt.Fprintf(&b, "%5.1f%% ", p)
		b.WriteString(FormatBytes(s.BytesTransferred) + " / " + FormatBytes(s.TotalBytes))
	} else {
		b.WriteString(FormatBytes(s.BytesTransferred))
	}
	b.WriteString(" " + FormatSpeed(s.CurrentSpeed))
	if s.ETA > 0 {
		b.WriteString(" ETA " + FormatDuration(s.ETA))
	}
	return b.String()
}

// FormatSpeed formats speed in human readable format
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	return humanize.Bytes(uint64(bytesPerSecond)) + "/s"
}

// FormatBytes formats bytes in human readable format
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatDuration formats duration in human readable format
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
