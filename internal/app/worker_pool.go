package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

// EnrichJob is one address waiting for ban probing and geolocation.
type EnrichJob struct {
	IP     string        `json:"ip"`
	Line   string        `json:"line"`
	Origin domain.Origin `json:"origin"`
	Queued time.Time     `json:"queued"`
}

// JobHandler processes one job on a worker goroutine.
type JobHandler func(ctx context.Context, job EnrichJob)

// WorkerPool runs enrichment jobs on a fixed set of goroutines.
//
// Features:
//   - Fixed worker count for predictable load on the geolocation provider
//   - Backpressure with configurable timeout on Submit
//   - Quarantine for jobs causing panics
//   - Automatic worker restart on panic
//
// Thread Safety: All public methods are safe for concurrent access.
type WorkerPool struct {
	workerCount int
	inputChan   chan EnrichJob
	handler     JobHandler
	bufferSize  int

	submitTimeout time.Duration

	quarantine *QuarantineWriter
	dropped    atomic.Int64
	panics     atomic.Int64

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
	running  bool
	mu       sync.RWMutex
}

type WorkerPoolConfig struct {
	WorkerCount    int           // Number of worker goroutines (default: 4)
	BufferSize     int           // Input channel buffer (default: 1024)
	SubmitTimeout  time.Duration // Backpressure timeout; keep 0 when Submit runs on the dispatch loop
	QuarantinePath string        // Path for quarantine file (empty disables)
}

func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 4,
		BufferSize:  1024,
	}
}

func NewWorkerPool(config WorkerPoolConfig, handler JobHandler) *WorkerPool {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 4
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}

	wp := &WorkerPool{
		workerCount:   config.WorkerCount,
		inputChan:     make(chan EnrichJob, config.BufferSize),
		handler:       handler,
		bufferSize:    config.BufferSize,
		submitTimeout: config.SubmitTimeout,
		stopChan:      make(chan struct{}),
	}

	if config.QuarantinePath != "" {
		quarantine, err := NewQuarantineWriter(config.QuarantinePath)
		if err != nil {
			log.Error().Err(err).Str("path", config.QuarantinePath).Msg("Failed to create quarantine writer")
		} else {
			wp.quarantine = quarantine
		}
	}

	return wp
}

// Start launches the workers. It is idempotent.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	if wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = true
	wp.mu.Unlock()

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}

	log.Debug().
		Int("workers", wp.workerCount).
		Int("buffer", wp.bufferSize).
		Msg("Enrichment pool started")
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	var current *EnrichJob

	defer func() {
		if r := recover(); r != nil {
			wp.panics.Add(1)
			log.Error().
				Interface("panic", r).
				Int("worker_id", id).
				Msg("Worker panic recovered")

			if wp.quarantine != nil && wp.quarantine.Enabled() {
				if err := wp.quarantine.WriteToxicJob(id, r, current); err != nil {
					log.Error().Err(err).Int("worker_id", id).Msg("Failed to quarantine job")
				}
			}

			wp.wg.Add(1)
			go wp.worker(ctx, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wp.stopChan:
			return
		case job, ok := <-wp.inputChan:
			if !ok {
				return
			}
			current = &job
			wp.handler(ctx, job)
			current = nil
		}
	}
}

// Submit queues job without blocking the caller beyond the configured
// backpressure timeout. It returns false when the pool is stopped or full.
func (wp *WorkerPool) Submit(job EnrichJob) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return false
	}

	select {
	case wp.inputChan <- job:
		return true
	default:
	}

	if wp.submitTimeout > 0 {
		timer := time.NewTimer(wp.submitTimeout)
		defer timer.Stop()
		select {
		case wp.inputChan <- job:
			return true
		case <-timer.C:
		}
	}

	wp.dropped.Add(1)
	return false
}

// Stop drains nothing: queued jobs are discarded. It is idempotent.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.mu.Lock()
		wp.running = false
		close(wp.stopChan)
		close(wp.inputChan)
		wp.mu.Unlock()

		wp.wg.Wait()

		if wp.quarantine != nil {
			if err := wp.quarantine.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close quarantine writer")
			}
		}

		if dropped := wp.dropped.Load(); dropped > 0 {
			log.Warn().Int64("dropped", dropped).Msg("Enrichment pool stopped with dropped jobs")
		} else {
			log.Debug().Msg("Enrichment pool stopped")
		}
	})
}

func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

func (wp *WorkerPool) QueueLength() int {
	return len(wp.inputChan)
}

func (wp *WorkerPool) Dropped() int64 {
	return wp.dropped.Load()
}

func (wp *WorkerPool) Panics() int64 {
	return wp.panics.Load()
}
