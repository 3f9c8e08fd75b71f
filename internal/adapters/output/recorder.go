// Package output provides the outbound adapters of succeed2ban.
//
// This file implements action recorders:
//   - JSONRecorder: Buffered JSON-lines action log (file or stdout)
//   - MemoryRecorder: In-memory ring buffer of recent actions, logged as a
//     trail when a session ends abnormally
//
// Features:
//   - Buffered I/O for high throughput (64KB buffer)
//   - Periodic automatic flushing (1 second)
//   - File sync on flush for durability
//   - Ring buffer for memory-bounded storage
//
// Each JSON line is one action envelope ({"kind": ..., "data": ...}), so a
// recorded session can be decoded back with domain.DecodeAction.
//
// Thread Safety: All implementations are safe for concurrent Record() calls.
package output

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// JSONRecorder writes dispatched actions as JSON lines.
type JSONRecorder struct {
	bufWriter *bufio.Writer // Buffered writer (64KB)
	file      *os.File      // File handle (nil for stdout)
	skip      map[domain.Kind]bool
	mu        sync.Mutex    // Protects writes
	stopFlush chan struct{} // Stop periodic flush
	closeOnce sync.Once
}

var _ ports.ActionRecorder = (*JSONRecorder)(nil)

// JSONRecorderConfig configures the action log.
type JSONRecorderConfig struct {
	FilePath string        // Output file path (empty for discard)
	Stdout   bool          // Write to stdout
	Skip     []domain.Kind // Kinds never recorded (e.g. Tick, Render)
}

// NewJSONRecorder creates a JSON-lines action log.
//
// Output Priority:
//  1. Stdout if config.Stdout is true
//  2. File if config.FilePath is set
//  3. io.Discard otherwise
//
// File Permissions: 0600 (owner read/write only)
func NewJSONRecorder(config JSONRecorderConfig) (*JSONRecorder, error) {
	var writer io.Writer
	var file *os.File

	if config.Stdout {
		writer = os.Stdout
	} else if config.FilePath != "" {
		var err error
		file, err = os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		writer = file
	} else {
		writer = io.Discard
	}

	return newJSONRecorder(writer, file, config.Skip), nil
}

func newJSONRecorder(w io.Writer, file *os.File, skip []domain.Kind) *JSONRecorder {
	const bufferSize = 64 * 1024
	r := &JSONRecorder{
		bufWriter: bufio.NewWriterSize(w, bufferSize),
		file:      file,
		skip:      make(map[domain.Kind]bool, len(skip)),
		stopFlush: make(chan struct{}),
	}
	for _, k := range skip {
		r.skip[k] = true
	}

	go r.periodicFlush()
	return r
}

// periodicFlush flushes the buffer every second until Close() is called.
func (r *JSONRecorder) periodicFlush() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush()
		case <-r.stopFlush:
			return
		}
	}
}

// Record appends one action envelope.
func (r *JSONRecorder) Record(a domain.Action) error {
	if r.skip[a.Kind()] {
		return nil
	}
	line, err := domain.EncodeAction(a)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.bufWriter.Write(line); err != nil {
		return err
	}
	return r.bufWriter.WriteByte('\n')
}

// Flush forces buffered data to disk.
func (r *JSONRecorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.bufWriter.Flush(); err != nil {
		return err
	}
	if r.file != nil {
		return r.file.Sync()
	}
	return nil
}

// Close stops periodic flushing, flushes remaining data and closes the file.
func (r *JSONRecorder) Close() error {
	r.closeOnce.Do(func() { close(r.stopFlush) })

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.bufWriter.Flush(); err != nil {
		return err
	}
	if r.file != nil {
		if err := r.file.Sync(); err != nil {
			return err
		}
		return r.file.Close()
	}
	return nil
}

// MemoryRecorder stores recent actions in a fixed-size ring buffer.
//
// Thread Safety: Safe for concurrent access via RWMutex.
type MemoryRecorder struct {
	actions    []domain.Action // Ring buffer storage
	head       int             // Next write position
	count      int             // Current action count
	maxActions int             // Buffer capacity
	skip       map[domain.Kind]bool
	mu         sync.RWMutex // Protects all fields
}

var _ ports.ActionRecorder = (*MemoryRecorder)(nil)

// NewMemoryRecorder creates an in-memory action buffer holding up to
// maxActions entries (default: 1000 if <= 0). Skipped kinds are never stored.
func NewMemoryRecorder(maxActions int, skip ...domain.Kind) *MemoryRecorder {
	if maxActions <= 0 {
		maxActions = 1000
	}
	r := &MemoryRecorder{
		actions:    make([]domain.Action, maxActions),
		maxActions: maxActions,
		skip:       make(map[domain.Kind]bool, len(skip)),
	}
	for _, k := range skip {
		r.skip[k] = true
	}
	return r
}

// Record stores an action, overwriting the oldest when full.
func (r *MemoryRecorder) Record(a domain.Action) error {
	if r.skip[a.Kind()] {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actions[r.head] = a
	r.head = (r.head + 1) % r.maxActions
	if r.count < r.maxActions {
		r.count++
	}
	return nil
}

func (r *MemoryRecorder) Flush() error { return nil }

func (r *MemoryRecorder) Close() error { return nil }

// Actions returns all stored actions, oldest first.
func (r *MemoryRecorder) Actions() []domain.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Action, r.count)
	if r.count == 0 {
		return result
	}

	start := 0
	if r.count == r.maxActions {
		start = r.head
	}
	for i := 0; i < r.count; i++ {
		result[i] = r.actions[(start+i)%r.maxActions]
	}
	return result
}

// Kinds returns the kinds of all stored actions, oldest first.
func (r *MemoryRecorder) Kinds() []domain.Kind {
	actions := r.Actions()
	kinds := make([]domain.Kind, len(actions))
	for i, a := range actions {
		kinds[i] = a.Kind()
	}
	return kinds
}

// Count returns the current number of stored actions.
func (r *MemoryRecorder) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Trail returns the kinds of the stored actions as strings, oldest first.
func (r *MemoryRecorder) Trail() []string {
	kinds := r.Kinds()
	trail := make([]string, len(kinds))
	for i, k := range kinds {
		trail[i] = string(k)
	}
	return trail
}
