package app

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
)

// BanState is the per-address state of a ban or unban request.
type BanState int

const (
	BanIdle BanState = iota
	BanRequested
	BanSucceeded
	BanFailed
)

func (s BanState) String() string {
	switch s {
	case BanRequested:
		return "requested"
	case BanSucceeded:
		return "succeeded"
	case BanFailed:
		return "failed"
	default:
		return "idle"
	}
}

const (
	opBan   = "ban"
	opUnban = "unban"
)

type banRequest struct {
	state BanState
	op    string
	id    string
}

// Orchestrator runs ban and unban requests on a single serial worker and
// applies their outcome to the store on the dispatch loop.
//
// Update runs on the dispatch goroutine; Run is the worker. Pending is safe
// for concurrent use.
type Orchestrator struct {
	store    ports.Store
	bans     ports.BanManager
	sender   ports.Sender
	observer ports.PipelineObserver
	timeout  time.Duration

	jobs     *Bus
	requests map[string]*banRequest
	mu       sync.RWMutex
	newID    func() string
}

func NewOrchestrator(store ports.Store, bans ports.BanManager, sender ports.Sender, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Orchestrator{
		store:    store,
		bans:     bans,
		sender:   sender,
		timeout:  timeout,
		jobs:     NewBus(),
		requests: make(map[string]*banRequest),
		newID:    uuid.NewString,
	}
}

func (o *Orchestrator) SetObserver(obs ports.PipelineObserver) {
	o.observer = obs
}

func (o *Orchestrator) Update(ctx context.Context, a domain.Action) (domain.Action, error) {
	switch a := a.(type) {
	case domain.BanIP:
		return domain.RequestBan{IP: a.IP.Address}, nil
	case domain.UnbanIP:
		return domain.RequestUnban{IP: a.IP.Address}, nil
	case domain.RequestBan:
		return o.request(a.IP, a.RequestID, opBan)
	case domain.RequestUnban:
		return o.request(a.IP, a.RequestID, opUnban)
	case domain.Banned:
		return o.complete(ctx, a.IP, a.RequestID, opBan, a.OK, a.Reason)
	case domain.Unbanned:
		return o.complete(ctx, a.IP, a.RequestID, opUnban, a.OK, a.Reason)
	}
	return nil, nil
}

func (o *Orchestrator) request(ip, id, op string) (domain.Action, error) {
	if addr, err := netip.ParseAddr(ip); err != nil || !addr.Is4() {
		return domain.Error{Reason: op + " request without a valid address: " + ip}, nil
	}

	o.mu.Lock()
	if r, ok := o.requests[ip]; ok && r.state == BanRequested {
		o.mu.Unlock()
		return domain.Error{Reason: r.op + " of " + ip + " already in progress"}, nil
	}
	if id == "" {
		id = o.newID()
	}
	o.requests[ip] = &banRequest{state: BanRequested, op: op, id: id}
	o.mu.Unlock()

	var job domain.Action = domain.RequestBan{IP: ip, RequestID: id}
	if op == opUnban {
		job = domain.RequestUnban{IP: ip, RequestID: id}
	}
	if err := o.jobs.Send(job); err != nil {
		o.setState(ip, BanFailed)
		return nil, errors.Wrapf(err, errors.KindOrchestration, "queue %s of %s", op, ip)
	}

	log.Info().Str("ip", ip).Str("op", op).Str("request_id", id).Msg("Ban job queued")
	return nil, nil
}

func (o *Orchestrator) complete(ctx context.Context, ip, id, op string, ok bool, reason string) (domain.Action, error) {
	if o.observer != nil {
		o.observer.ObserveBanJob(op, ok)
	}

	if !ok {
		o.setState(ip, BanFailed)
		log.Warn().Str("ip", ip).Str("op", op).Str("request_id", id).Str("reason", reason).Msg("Ban job failed")
		return domain.Error{Reason: op + " of " + ip + " failed: " + reason}, nil
	}
	o.setState(ip, BanSucceeded)

	err := o.store.Update(ctx, func(tx ports.Store) error {
		rec, found, err := tx.GetIP(ctx, ip)
		if err != nil || !found {
			return err
		}
		var changed bool
		if op == opBan {
			changed = rec.MarkBanned()
		} else {
			changed = rec.MarkUnbanned()
		}
		if !changed {
			return nil
		}
		return tx.UpsertIP(ctx, rec)
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindStorage, "record %s of %s", op, ip)
	}

	log.Info().Str("ip", ip).Str("op", op).Str("request_id", id).Msg("Ban job succeeded")
	return nil, nil
}

func (o *Orchestrator) setState(ip string, s BanState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.requests[ip]; ok {
		r.state = s
	}
}

// State returns the request state for ip.
func (o *Orchestrator) State(ip string) BanState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if r, ok := o.requests[ip]; ok {
		return r.state
	}
	return BanIdle
}

// Pending maps every address with an in-flight request to its operation.
func (o *Orchestrator) Pending() map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	pending := make(map[string]string)
	for ip, r := range o.requests {
		if r.state == BanRequested {
			pending[ip] = r.op
		}
	}
	return pending
}

// Run executes queued jobs one at a time, in order, until ctx ends or Close
// is called.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		job, err := o.jobs.Recv(ctx)
		if err != nil {
			if errors.Is(err, ErrBusClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		o.execute(ctx, job)
	}
}

func (o *Orchestrator) execute(ctx context.Context, job domain.Action) {
	jobCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var result domain.Action
	switch j := job.(type) {
	case domain.RequestBan:
		err := o.bans.Ban(jobCtx, j.IP)
		result = domain.Banned{IP: j.IP, RequestID: j.RequestID, OK: err == nil, Reason: reasonOf(err)}
	case domain.RequestUnban:
		err := o.bans.Unban(jobCtx, j.IP)
		result = domain.Unbanned{IP: j.IP, RequestID: j.RequestID, OK: err == nil, Reason: reasonOf(err)}
	default:
		return
	}

	if err := o.sender.Send(result); err != nil {
		log.Debug().Err(err).Str("action", string(result.Kind())).Msg("Ban result dropped")
	}
}

// Close stops accepting jobs. Already queued jobs still run unless ctx ends.
func (o *Orchestrator) Close() {
	o.jobs.Close()
}

func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
