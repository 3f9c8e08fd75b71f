package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

type countingHandler struct {
	handled atomic.Int64
	panicOn string
	block   chan struct{}
}

func (h *countingHandler) handle(ctx context.Context, job EnrichJob) {
	if h.block != nil {
		<-h.block
	}
	if job.IP == h.panicOn {
		panic("intentional panic for " + job.IP)
	}
	h.handled.Add(1)
}

func testJob(i int) EnrichJob {
	ip := fmt.Sprintf("198.51.100.%d", i%250+1)
	return EnrichJob{IP: ip, Line: "Failed password from " + ip, Origin: domain.OriginJournal, Queued: time.Now()}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorkerPool_Basic(t *testing.T) {
	h := &countingHandler{}
	pool := NewWorkerPool(WorkerPoolConfig{WorkerCount: 4, BufferSize: 100}, h.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	pool.Start(ctx)

	for i := 0; i < 10; i++ {
		if !pool.Submit(testJob(i)) {
			t.Error("Failed to submit job")
		}
	}

	waitFor(t, func() bool { return h.handled.Load() == 10 })
	pool.Stop()

	if pool.Dropped() != 0 {
		t.Errorf("Expected no dropped jobs, got %d", pool.Dropped())
	}
}

func TestWorkerPool_PanicRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.jsonl")
	h := &countingHandler{panicOn: "198.51.100.1"}
	pool := NewWorkerPool(WorkerPoolConfig{WorkerCount: 1, BufferSize: 10, QuarantinePath: path}, h.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	pool.Submit(testJob(0))
	pool.Submit(testJob(1))

	// The single worker is restarted and handles the job behind the toxic one.
	waitFor(t, func() bool { return h.handled.Load() == 1 })

	if !pool.IsRunning() {
		t.Error("Worker pool should still be running after panic")
	}
	if pool.Panics() != 1 {
		t.Errorf("Expected 1 panic, got %d", pool.Panics())
	}
	pool.Stop()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open quarantine: %v", err)
	}
	defer f.Close()

	var entries []QuarantineEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e QuarantineEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("decode quarantine entry: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 quarantined job, got %d", len(entries))
	}
	if entries[0].Job == nil || entries[0].Job.IP != "198.51.100.1" {
		t.Errorf("Unexpected quarantined job: %+v", entries[0].Job)
	}
	if entries[0].PanicError != "intentional panic for 198.51.100.1" {
		t.Errorf("Unexpected panic message %q", entries[0].PanicError)
	}
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(DefaultWorkerPoolConfig(), (&countingHandler{}).handle)

	if pool.Submit(testJob(0)) {
		t.Error("Submit before Start should fail")
	}

	pool.Start(context.Background())
	pool.Stop()
	pool.Stop()

	if pool.Submit(testJob(0)) {
		t.Error("Submit after Stop should fail")
	}
	if pool.IsRunning() {
		t.Error("Pool should not be running after stop")
	}
}

func TestWorkerPool_FullQueueDrops(t *testing.T) {
	h := &countingHandler{block: make(chan struct{})}
	pool := NewWorkerPool(WorkerPoolConfig{WorkerCount: 1, BufferSize: 2, SubmitTimeout: 10 * time.Millisecond}, h.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	// One job occupies the worker, two fill the buffer.
	pool.Submit(testJob(0))
	waitFor(t, func() bool { return pool.QueueLength() == 0 })
	pool.Submit(testJob(1))
	pool.Submit(testJob(2))

	if pool.Submit(testJob(3)) {
		t.Error("Submit to a full queue should fail")
	}
	if pool.Dropped() != 1 {
		t.Errorf("Expected 1 dropped job, got %d", pool.Dropped())
	}
	if pool.QueueLength() != 2 {
		t.Errorf("Expected queue length 2, got %d", pool.QueueLength())
	}

	close(h.block)
	waitFor(t, func() bool { return h.handled.Load() == 3 })
	pool.Stop()
}

func TestWorkerPool_ConcurrentSubmit(t *testing.T) {
	h := &countingHandler{}
	pool := NewWorkerPool(WorkerPoolConfig{WorkerCount: 8, BufferSize: 1000, SubmitTimeout: time.Second}, h.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var wg sync.WaitGroup
	submitCount := 100
	goroutines := 10

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < submitCount; i++ {
				pool.Submit(testJob(g*submitCount + i))
			}
		}(g)
	}
	wg.Wait()

	expected := int64(submitCount * goroutines)
	waitFor(t, func() bool { return h.handled.Load() == expected })
	pool.Stop()
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{WorkerCount: 4, BufferSize: 100}, (&countingHandler{}).handle)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)
	for i := 0; i < 50; i++ {
		pool.Submit(testJob(i))
	}

	done := make(chan struct{})
	go func() {
		cancel()
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Error("Shutdown took too long")
	}
}
