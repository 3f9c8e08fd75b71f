package output

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// PipelineProbe exposes the liveness of the dispatch loop.
type PipelineProbe interface {
	Running() bool
	QueueDepth() int
	LastDispatch() time.Time
}

type HealthStatus struct {
	Healthy    bool          `json:"healthy"`
	Status     string        `json:"status"`
	QueueDepth int           `json:"queue_depth"`
	SinceLast  time.Duration `json:"since_last_dispatch_ns"`
	Uptime     time.Duration `json:"uptime_ns"`
	Reason     string        `json:"reason,omitempty"`
}

type HealthChecker struct {
	probe         PipelineProbe
	maxStall      time.Duration
	degradedDepth int
	startTime     time.Time
	now           func() time.Time

	lastCheck     HealthStatus
	lastCheckTime time.Time
	lastCheckMu   sync.RWMutex
	checkInterval time.Duration
}

type HealthCheckerConfig struct {
	// MaxStall is how long the loop may go without dispatching while
	// actions are queued.
	MaxStall      time.Duration
	DegradedDepth int
	CheckInterval time.Duration
}

func DefaultHealthCheckerConfig() HealthCheckerConfig {
	return HealthCheckerConfig{
		MaxStall:      2 * time.Second,
		DegradedDepth: 1000,
		CheckInterval: 5 * time.Second,
	}
}

func NewHealthChecker(probe PipelineProbe, config HealthCheckerConfig) *HealthChecker {
	return &HealthChecker{
		probe:         probe,
		maxStall:      config.MaxStall,
		degradedDepth: config.DegradedDepth,
		checkInterval: config.CheckInterval,
		startTime:     time.Now(),
		now:           time.Now,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.lastCheckMu.RLock()
	if h.checkInterval > 0 && h.now().Sub(h.lastCheckTime) < h.checkInterval {
		cached := h.lastCheck
		h.lastCheckMu.RUnlock()
		return cached
	}
	h.lastCheckMu.RUnlock()

	status := h.performCheck()

	h.lastCheckMu.Lock()
	h.lastCheck = status
	h.lastCheckTime = h.now()
	h.lastCheckMu.Unlock()

	return status
}

func (h *HealthChecker) performCheck() HealthStatus {
	status := HealthStatus{
		Uptime: h.now().Sub(h.startTime),
	}
	if h.probe == nil || !h.probe.Running() {
		status.Status = "OFFLINE"
		status.Reason = "dispatch loop not running"
		return status
	}

	status.QueueDepth = h.probe.QueueDepth()
	if last := h.probe.LastDispatch(); !last.IsZero() {
		status.SinceLast = h.now().Sub(last)
	}

	if status.QueueDepth > 0 && status.SinceLast > h.maxStall {
		status.Status = "STALLED"
		status.Reason = fmt.Sprintf("%d actions queued, last dispatch %v ago", status.QueueDepth, status.SinceLast.Round(time.Millisecond))
		return status
	}

	status.Healthy = true
	if h.degradedDepth > 0 && status.QueueDepth >= h.degradedDepth {
		status.Status = "DEGRADED"
		status.Reason = fmt.Sprintf("queue depth elevated at %d", status.QueueDepth)
	} else {
		status.Status = "HEALTHY"
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	fmt.Fprintf(w, `{"healthy":%t,"status":"%s","queue_depth":%d,"since_last_dispatch_ms":%.2f,"uptime_seconds":%.0f`,
		status.Healthy,
		status.Status,
		status.QueueDepth,
		float64(status.SinceLast)/float64(time.Millisecond),
		status.Uptime.Seconds(),
	)

	if status.Reason != "" {
		fmt.Fprintf(w, `,"reason":"%s"`, status.Reason)
	}
	fmt.Fprint(w, "}")
}
