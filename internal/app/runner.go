package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// Options are the collaborators of an App. Fail2ban and Journal may be nil
// to disable that watcher.
type Options struct {
	Store      ports.Store
	Geolocator ports.Geolocator
	Bans       ports.BanManager
	Fail2ban   SourceFactory
	Journal    SourceFactory
	Observer   ports.PipelineObserver
	Recorders  []ports.ActionRecorder
	Views      []ports.ViewObserver
	Config     Config
}

// App wires the bus, the dispatch loop and its components, and owns their
// goroutines.
type App struct {
	bus          *Bus
	dispatcher   *Dispatcher
	enricher     *Enricher
	orchestrator *Orchestrator
	supervisor   *Supervisor
	view         *View

	tickInterval   time.Duration
	renderInterval time.Duration

	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	running bool
	mu      sync.RWMutex
}

func New(opts Options) *App {
	cfg := opts.Config
	bus := NewBus()

	enricher := NewEnricher(opts.Geolocator, opts.Bans, bus, cfg.EnricherConfig())
	ingestor := NewIngestor(opts.Store, enricher)
	orchestrator := NewOrchestrator(opts.Store, opts.Bans, bus, cfg.Fail2ban.Timeout)
	supervisor := NewSupervisor(bus, opts.Fail2ban, opts.Journal)

	view := NewView(opts.Store, bus, ViewConfig{Capacity: cfg.UI.LogCapacity, Theme: cfg.UI.Theme})
	view.SetPendingSource(orchestrator.Pending)
	view.SetWatcherSource(supervisor.Status)
	for _, o := range opts.Views {
		view.AddObserver(o)
	}

	dispatcher := NewDispatcher(bus,
		NewStartup(opts.Store),
		ingestor,
		orchestrator,
		NewStats(opts.Store, bus),
		supervisor,
		view,
	)
	if opts.Observer != nil {
		dispatcher.SetObserver(opts.Observer)
		enricher.SetObserver(opts.Observer)
		ingestor.SetObserver(opts.Observer)
		orchestrator.SetObserver(opts.Observer)
	}
	for _, r := range opts.Recorders {
		dispatcher.AddRecorder(r)
	}

	return &App{
		bus:            bus,
		dispatcher:     dispatcher,
		enricher:       enricher,
		orchestrator:   orchestrator,
		supervisor:     supervisor,
		view:           view,
		tickInterval:   interval(cfg.UI.TickRate, time.Second),
		renderInterval: interval(cfg.UI.FrameRate, time.Second/30),
		done:           make(chan struct{}),
	}
}

func interval(perSecond float64, fallback time.Duration) time.Duration {
	if perSecond <= 0 {
		return fallback
	}
	return time.Duration(float64(time.Second) / perSecond)
}

// Sender is the bus, for outer surfaces that emit actions.
func (a *App) Sender() ports.Sender {
	return a.bus
}

// AddView registers a snapshot consumer. It must be called before Start.
func (a *App) AddView(o ports.ViewObserver) {
	a.view.AddObserver(o)
}

// Start launches the dispatch loop, the ban worker, the enrichment pool and
// the tickers, then kicks off the startup sequence.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.mu.Unlock()

	ctx, a.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	a.supervisor.Bind(gctx)
	a.enricher.Start(gctx)

	g.Go(func() error {
		defer a.cancel()
		return a.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return a.orchestrator.Run(gctx)
	})
	g.Go(func() error {
		a.tick(gctx, a.tickInterval, domain.Tick)
		return nil
	})
	g.Go(func() error {
		a.tick(gctx, a.renderInterval, domain.Render)
		return nil
	})

	go func() {
		err := g.Wait()
		a.shutdown()
		a.err = err
		close(a.done)
	}()

	log.Info().Msg("succeed2ban started")
	return a.bus.Send(domain.StartupConnect)
}

func (a *App) tick(ctx context.Context, every time.Duration, s domain.Signal) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.bus.Send(s); err != nil {
				return
			}
		}
	}
}

func (a *App) shutdown() {
	a.orchestrator.Close()
	a.enricher.Stop()
	a.bus.Close()
	a.supervisor.Wait()

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

// Stop sends Quit and waits for the loop to drain, forcing cancellation
// after timeout.
func (a *App) Stop(timeout time.Duration) {
	a.mu.RLock()
	running := a.running
	a.mu.RUnlock()
	if !running {
		return
	}

	log.Info().Msg("Stopping gracefully...")
	if err := a.bus.Send(domain.Quit); err != nil {
		a.cancel()
	}

	select {
	case <-a.done:
	case <-time.After(timeout):
		log.Warn().Msg("Shutdown timeout, cancelling")
		a.cancel()
		<-a.done
	}
	log.Info().Msg("Stopped")
}

// Done is closed once every goroutine has exited.
func (a *App) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the app has stopped and returns the first error.
func (a *App) Wait() error {
	<-a.done
	return a.err
}

func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

func (a *App) Running() bool           { return a.dispatcher.Running() }
func (a *App) QueueDepth() int         { return a.dispatcher.QueueDepth() }
func (a *App) LastDispatch() time.Time { return a.dispatcher.LastDispatch() }

// WaitForSignal blocks until SIGINT or SIGTERM, or until the app stops on
// its own, then stops it.
func (a *App) WaitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		a.Stop(5 * time.Second)
	case <-a.done:
	}
}

// Run starts the app and blocks until a signal or Quit.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	a.WaitForSignal()
	return a.Wait()
}
