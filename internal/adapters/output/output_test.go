package output

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

func TestPrometheusMetricsRecordsPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics("test", reg)

	m.ObserveAction(domain.Tick.Kind(), time.Millisecond)
	m.ObserveAction(domain.Tick.Kind(), time.Millisecond)
	m.ObserveAction(domain.IONotify{}.Kind(), time.Millisecond)
	m.ObserveEnrichment("resolved", 20*time.Millisecond)
	m.ObserveEnrichment("hit", 0)
	m.ObserveBanJob("ban", true)
	m.ObserveBanJob("unban", false)
	m.SetQueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actionsDispatched.WithLabelValues("Tick")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actionsDispatched.WithLabelValues("IONotify")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enrichments.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.banJobs.WithLabelValues("ban", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.banJobs.WithLabelValues("unban", "failed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))
}

type fakeProbe struct {
	running bool
	depth   int
	last    time.Time
}

func (p fakeProbe) Running() bool           { return p.running }
func (p fakeProbe) QueueDepth() int         { return p.depth }
func (p fakeProbe) LastDispatch() time.Time { return p.last }

func TestHealthChecker(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		probe   PipelineProbe
		healthy bool
		status  string
	}{
		{"offline", fakeProbe{}, false, "OFFLINE"},
		{"nil probe", nil, false, "OFFLINE"},
		{"idle", fakeProbe{running: true, last: now.Add(-time.Hour)}, true, "HEALTHY"},
		{"busy", fakeProbe{running: true, depth: 3, last: now.Add(-10 * time.Millisecond)}, true, "HEALTHY"},
		{"stalled", fakeProbe{running: true, depth: 3, last: now.Add(-time.Minute)}, false, "STALLED"},
		{"degraded", fakeProbe{running: true, depth: 5000, last: now}, true, "DEGRADED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultHealthCheckerConfig()
			cfg.CheckInterval = 0
			h := NewHealthChecker(tc.probe, cfg)
			h.now = func() time.Time { return now }

			status := h.Check(context.Background())
			assert.Equal(t, tc.healthy, status.Healthy)
			assert.Equal(t, tc.status, status.Status)
		})
	}
}

func TestHealthCheckerServeHTTP(t *testing.T) {
	h := NewHealthChecker(fakeProbe{}, DefaultHealthCheckerConfig())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"OFFLINE"`)
	assert.Contains(t, rec.Body.String(), `"reason":"dispatch loop not running"`)
}

func TestJSONRecorderWritesDecodableLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.jsonl")
	r, err := NewJSONRecorder(JSONRecorderConfig{FilePath: path, Skip: []domain.Kind{domain.Tick.Kind()}})
	require.NoError(t, err)

	want := []domain.Action{
		domain.IONotify{Line: "Failed password from 203.0.113.7", Origin: domain.OriginJournal},
		domain.RequestBan{IP: "203.0.113.7", RequestID: "r1"},
		domain.Quit,
	}
	require.NoError(t, r.Record(domain.Tick))
	for _, a := range want {
		require.NoError(t, r.Record(a))
	}
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []domain.Action
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		a, err := domain.DecodeAction(scanner.Bytes())
		require.NoError(t, err)
		got = append(got, a)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, want, got)
}

func TestMemoryRecorderRing(t *testing.T) {
	r := NewMemoryRecorder(2)
	require.NoError(t, r.Record(domain.Tick))
	require.NoError(t, r.Record(domain.Render))
	require.NoError(t, r.Record(domain.Quit))

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []domain.Kind{"Render", "Quit"}, r.Kinds())
}

func TestMemoryRecorderTrailSkipsKinds(t *testing.T) {
	r := NewMemoryRecorder(3, domain.Tick.Kind(), domain.Render.Kind())
	for _, a := range []domain.Action{domain.Tick, domain.Refresh, domain.Render, domain.Blank, domain.Tick, domain.Quit, domain.Help} {
		require.NoError(t, r.Record(a))
	}

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, []string{"Blank", "Quit", "Help"}, r.Trail())
	assert.Empty(t, NewMemoryRecorder(4).Trail())
}
