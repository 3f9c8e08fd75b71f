package ports

import (
	"time"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

// PipelineObserver defines the interface for observing the dispatch pipeline.
// Implemented by the Prometheus adapter.
//
// Thread Safety: Implementations MUST be safe for concurrent calls. Enrichment
// and ban results are reported from background goroutines.
type PipelineObserver interface {
	// ObserveAction records one dispatched action and how long its dispatch took.
	ObserveAction(kind domain.Kind, elapsed time.Duration)

	// ObserveEnrichment records the result of one geolocation lookup.
	//
	// Parameters:
	//   - result: "hit" (served from storage), "resolved", "failed" or "shared"
	ObserveEnrichment(result string, elapsed time.Duration)

	// ObserveBanJob records the outcome of one ban or unban job.
	ObserveBanJob(op string, ok bool)

	// SetQueueDepth reports the number of pending actions on the bus.
	SetQueueDepth(n int)
}

// ViewObserver receives an immutable snapshot of the UI state on every
// Render. Implementations must not block the dispatch loop.
type ViewObserver interface {
	OnView(snapshot domain.ViewSnapshot)
}

// ActionRecorder persists dispatched actions for audit or replay.
type ActionRecorder interface {
	Record(a domain.Action) error
	Flush() error
	Close() error
}
