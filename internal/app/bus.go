// Package app holds the dispatch core of succeed2ban: the action bus, the
// serialized dispatch loop and the components it drives.
//
// Every state mutation (storage and view state) happens on the dispatch
// goroutine. Watchers, enrichment tasks, ban jobs, scheduled actions and
// tickers only ever talk to the core through Bus.Send.
package app

import (
	"context"
	"sync"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// ErrBusClosed is returned by Send and Recv once the bus is closed.
var ErrBusClosed = errors.New(errors.KindOrchestration, "action bus closed")

// Bus is an unbounded FIFO of actions with many producers and one consumer.
//
// Thread Safety: Send, Len and Close are safe for concurrent use. Recv is
// meant for a single consumer.
type Bus struct {
	mu     sync.Mutex
	queue  []domain.Action
	notify chan struct{} // capacity 1, signals a non-empty queue
	done   chan struct{}
	closed bool
}

var _ ports.Sender = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Send enqueues a. It never blocks.
func (b *Bus) Send(a domain.Action) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.queue = append(b.queue, a)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

// Recv blocks until an action is available. Actions queued before Close are
// still delivered; after that Recv returns ErrBusClosed.
func (b *Bus) Recv(ctx context.Context) (domain.Action, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			a := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return a, nil
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return nil, ErrBusClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.notify:
		case <-b.done:
		}
	}
}

// Len returns the number of queued actions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close rejects further sends. It is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
