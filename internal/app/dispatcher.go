package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// Component reacts to dispatched actions. Update runs on the dispatch
// goroutine and must not block on I/O other than the store. A non-nil
// follow-up is queued on the bus; an error becomes an Error action.
// Components ignore actions they do not handle.
type Component interface {
	Update(ctx context.Context, a domain.Action) (domain.Action, error)
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(ctx context.Context, a domain.Action) (domain.Action, error)

func (f ComponentFunc) Update(ctx context.Context, a domain.Action) (domain.Action, error) {
	return f(ctx, a)
}

// Dispatcher is the single consumer of the bus.
//
// Thread Safety: Register, SetObserver and AddRecorder must be called before
// Run. The probe methods are safe for concurrent use.
type Dispatcher struct {
	bus        *Bus
	components []Component
	observer   ports.PipelineObserver
	recorders  []ports.ActionRecorder

	running      atomic.Bool
	lastDispatch atomic.Int64
	dispatched   atomic.Int64
	mu           sync.Mutex
}

func NewDispatcher(bus *Bus, components ...Component) *Dispatcher {
	return &Dispatcher{bus: bus, components: components}
}

// Register appends components. Actions are offered in registration order.
func (d *Dispatcher) Register(components ...Component) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components = append(d.components, components...)
}

func (d *Dispatcher) SetObserver(o ports.PipelineObserver) {
	d.observer = o
}

func (d *Dispatcher) AddRecorder(r ports.ActionRecorder) {
	d.recorders = append(d.recorders, r)
}

// Run dispatches actions until Quit has been offered to every component,
// the bus is closed or ctx ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New(errors.KindOrchestration, "dispatcher already running")
	}
	defer d.running.Store(false)

	d.mu.Lock()
	components := append([]Component(nil), d.components...)
	d.mu.Unlock()

	log.Debug().Int("components", len(components)).Msg("Dispatch loop started")

	for {
		a, err := d.bus.Recv(ctx)
		if err != nil {
			if errors.Is(err, ErrBusClosed) || ctx.Err() != nil {
				log.Debug().Err(err).Msg("Dispatch loop stopped")
				return nil
			}
			return err
		}

		d.dispatch(ctx, components, a)

		if a == domain.Quit {
			log.Info().Int64("dispatched", d.dispatched.Load()).Msg("Dispatch loop finished")
			return nil
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, components []Component, a domain.Action) {
	start := time.Now()

	for _, c := range components {
		follow, err := c.Update(ctx, a)
		if err != nil {
			log.Error().Err(err).Str("action", string(a.Kind())).Msg("Component failed")
			follow = domain.Error{Reason: err.Error()}
		}
		if follow == nil {
			continue
		}
		if err := d.bus.Send(follow); err != nil {
			log.Warn().Err(err).Str("follow_up", string(follow.Kind())).Msg("Follow-up dropped")
		}
	}

	elapsed := time.Since(start)
	d.dispatched.Add(1)
	d.lastDispatch.Store(time.Now().UnixNano())

	if d.observer != nil {
		d.observer.ObserveAction(a.Kind(), elapsed)
		d.observer.SetQueueDepth(d.bus.Len())
	}
	for _, r := range d.recorders {
		if err := r.Record(a); err != nil {
			log.Debug().Err(err).Msg("Action record failed")
		}
	}
}

func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

func (d *Dispatcher) QueueDepth() int {
	return d.bus.Len()
}

func (d *Dispatcher) LastDispatch() time.Time {
	ns := d.lastDispatch.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Dispatched returns the number of actions dispatched so far.
func (d *Dispatcher) Dispatched() int64 {
	return d.dispatched.Load()
}
