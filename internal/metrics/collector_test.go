package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector_Operations(t *testing.T) {
	c := New()
	c.ObserveOperation("list_objects", "ok", 20*time.Millisecond)
	c.ObserveOperation("list_objects", "ok", 30*time.Millisecond)
	c.ObserveOperation("upload_object", "auth", time.Second)

	body := scrape(t, c)
	assert.Contains(t, body, `s3nav_operations_total{op="list_objects",outcome="ok"} 2`)
	assert.Contains(t, body, `s3nav_operations_total{op="upload_object",outcome="auth"} 1`)
	assert.Contains(t, body, `s3nav_operation_duration_seconds_count{op="list_objects"} 2`)
}

func TestCollector_Bytes(t *testing.T) {
	c := New()
	c.AddBytes("upload", 5)
	c.AddBytes("upload", 7)
	c.AddBytes("download", 0)

	body := scrape(t, c)
	assert.Contains(t, body, `s3nav_bytes_total{direction="upload"} 12`)
	assert.NotContains(t, body, `direction="download"`)
}

func TestCollector_InflightJobs(t *testing.T) {
	c := New()
	c.JobStarted()
	c.JobStarted()
	c.JobFinished()

	assert.Contains(t, scrape(t, c), "s3nav_inflight_jobs 1")
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.AddBytes("upload", 1)

	assert.Contains(t, scrape(t, a), "s3nav_bytes_total")
	assert.NotContains(t, scrape(t, b), `s3nav_bytes_total{`)
}
