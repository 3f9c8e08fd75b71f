package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// SourceFactory builds a fresh line source for every watcher start.
type SourceFactory func() ports.LineSource

type watcher struct {
	name    string
	factory SourceFactory
	stopped domain.Signal

	source  ports.LineSource
	cancel  context.CancelFunc
	running bool
	// stale counts stopped tasks whose Stopped action has not arrived yet.
	stale int
}

// Supervisor starts and stops the log watchers. Each watcher task forwards
// lines as IONotify and pushes its Stopped action when it ends.
type Supervisor struct {
	sender   ports.Sender
	fail2ban *watcher
	journal  *watcher

	base   context.Context
	wg     sync.WaitGroup
	status domain.WatcherStatus
	mu     sync.RWMutex
}

// NewSupervisor wires the two watchers. A nil factory disables that watcher.
func NewSupervisor(sender ports.Sender, fail2ban, journal SourceFactory) *Supervisor {
	return &Supervisor{
		sender:   sender,
		fail2ban: &watcher{name: "fail2ban", factory: fail2ban, stopped: domain.StoppedF2BWatcher},
		journal:  &watcher{name: "journal", factory: journal, stopped: domain.StoppedJCtlWatcher},
		base:     context.Background(),
	}
}

// Bind sets the parent context for watcher tasks.
func (s *Supervisor) Bind(ctx context.Context) {
	s.base = ctx
}

func (s *Supervisor) Update(ctx context.Context, a domain.Action) (domain.Action, error) {
	switch a {
	case domain.StartupDone:
		s.start(s.fail2ban)
		s.start(s.journal)
	case domain.StartF2BWatcher:
		s.start(s.fail2ban)
	case domain.StopF2BWatcher:
		s.stop(s.fail2ban)
	case domain.StoppedF2BWatcher:
		s.ended(s.fail2ban)
	case domain.StartJCtlWatcher:
		s.start(s.journal)
	case domain.StopJCtlWatcher:
		s.stop(s.journal)
	case domain.StoppedJCtlWatcher:
		s.ended(s.journal)
	case domain.Quit:
		s.stop(s.fail2ban)
		s.stop(s.journal)
	}
	return nil, nil
}

func (s *Supervisor) start(w *watcher) {
	if w.running || w.factory == nil {
		return
	}

	ctx, cancel := context.WithCancel(s.base)
	w.source = w.factory()
	w.cancel = cancel
	w.running = true
	s.publish()

	lines, errs := w.source.Start(ctx)
	s.wg.Add(1)
	go s.forward(w, lines, errs)

	log.Info().Str("watcher", w.name).Msg("Watcher started")
}

func (s *Supervisor) forward(w *watcher, lines <-chan string, errs <-chan error) {
	defer s.wg.Done()
	origin := w.source.Origin()

	for line := range lines {
		if err := s.sender.Send(domain.IONotify{Line: line, Origin: origin}); err != nil {
			log.Debug().Err(err).Str("watcher", w.name).Msg("Watcher output dropped")
			return
		}
	}
	for err := range errs {
		if err == nil {
			continue
		}
		log.Error().Err(err).Str("watcher", w.name).Msg("Watcher failed")
		_ = s.sender.Send(domain.Error{Reason: w.name + " watcher: " + err.Error()})
	}
	_ = s.sender.Send(w.stopped)
}

func (s *Supervisor) stop(w *watcher) {
	if !w.running {
		return
	}
	w.cancel()
	if err := w.source.Stop(); err != nil {
		log.Warn().Err(err).Str("watcher", w.name).Msg("Watcher stop failed")
	}
	w.running = false
	w.stale++
	s.publish()
	log.Info().Str("watcher", w.name).Msg("Watcher stopping")
}

// ended handles a Stopped action. A Stopped from a task that was already
// stopped on request only settles the stale count.
func (s *Supervisor) ended(w *watcher) {
	if w.stale > 0 {
		w.stale--
		return
	}
	if w.running {
		w.cancel()
		w.running = false
		s.publish()
		log.Warn().Str("watcher", w.name).Msg("Watcher ended")
	}
}

func (s *Supervisor) publish() {
	s.mu.Lock()
	s.status = domain.WatcherStatus{Fail2ban: s.fail2ban.running, Journal: s.journal.running}
	s.mu.Unlock()
}

// Status reports which watchers are running.
func (s *Supervisor) Status() domain.WatcherStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Wait blocks until every watcher task has ended.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
