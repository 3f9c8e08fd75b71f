package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
	"github.com/xoelrdgz/succeed2ban/pkg/lru"
)

// EnricherConfig tunes the asynchronous enrichment path.
type EnricherConfig struct {
	Pool WorkerPoolConfig
	// LookupTimeout bounds one geolocation call.
	LookupTimeout time.Duration
	// Cooldown suppresses new lookups for an address whose last lookup
	// failed. Zero disables it.
	Cooldown     time.Duration
	CooldownSize int
}

func DefaultEnricherConfig() EnricherConfig {
	return EnricherConfig{
		Pool:          DefaultWorkerPoolConfig(),
		LookupTimeout: 5 * time.Second,
		Cooldown:      time.Minute,
		CooldownSize:  4096,
	}
}

// Enricher resolves unknown addresses off the dispatch loop and reports the
// result as a GotGeo action. It never touches the store.
type Enricher struct {
	geo      ports.Geolocator
	bans     ports.BanManager
	sender   ports.Sender
	observer ports.PipelineObserver
	timeout  time.Duration

	group    singleflight.Group
	cooldown *lru.Cache[string, struct{}]
	pool     *WorkerPool
	now      func() time.Time
}

func NewEnricher(geo ports.Geolocator, bans ports.BanManager, sender ports.Sender, config EnricherConfig) *Enricher {
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = 5 * time.Second
	}
	e := &Enricher{
		geo:     geo,
		bans:    bans,
		sender:  sender,
		timeout: config.LookupTimeout,
		now:     time.Now,
	}
	if config.Cooldown > 0 {
		size := config.CooldownSize
		if size <= 0 {
			size = 4096
		}
		e.cooldown = lru.New[string, struct{}](size, lru.WithTTL(config.Cooldown))
	}
	e.pool = NewWorkerPool(config.Pool, e.handle)
	return e
}

func (e *Enricher) SetObserver(o ports.PipelineObserver) {
	e.observer = o
}

func (e *Enricher) Start(ctx context.Context) { e.pool.Start(ctx) }

func (e *Enricher) Stop() { e.pool.Stop() }

// CoolingDown reports whether lookups for ip are currently suppressed.
func (e *Enricher) CoolingDown(ip string) bool {
	return e.cooldown != nil && e.cooldown.Contains(ip)
}

// Submit queues a lookup. It returns false when the job was not accepted.
func (e *Enricher) Submit(job EnrichJob) bool {
	if job.Queued.IsZero() {
		job.Queued = e.now()
	}
	return e.pool.Submit(job)
}

func (e *Enricher) handle(ctx context.Context, job EnrichJob) {
	start := time.Now()

	banned := e.probe(ctx, job.IP)

	v, err, shared := e.group.Do(job.IP, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.geo.Lookup(lookupCtx, job.IP)
	})
	if err != nil {
		if e.cooldown != nil {
			e.cooldown.Put(job.IP, struct{}{})
		}
		e.observe("failed", time.Since(start))
		log.Warn().Err(err).Str("ip", job.IP).Str("provider", e.geo.Name()).Msg("Geolocation failed")
		e.send(domain.InternalLog{Message: "geolocation failed for " + job.IP + ": " + err.Error()})
		return
	}

	result := "resolved"
	if shared {
		result = "shared"
	}
	e.observe(result, time.Since(start))

	geo := v.(domain.GeoData)
	e.send(domain.GotGeo{
		IP:     domain.NewObservedIP(job.IP, geo, banned, e.now()),
		Line:   job.Line,
		Origin: job.Origin,
	})
}

// probe treats an undeterminable ban status as not banned.
func (e *Enricher) probe(ctx context.Context, ip string) bool {
	if e.bans == nil {
		return false
	}
	banned, err := e.bans.CheckBanned(ctx, ip)
	if err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("Ban status probe failed, assuming not banned")
		return false
	}
	return banned
}

func (e *Enricher) observe(result string, elapsed time.Duration) {
	if e.observer != nil {
		e.observer.ObserveEnrichment(result, elapsed)
	}
}

func (e *Enricher) send(a domain.Action) {
	if err := e.sender.Send(a); err != nil {
		log.Debug().Err(err).Str("action", string(a.Kind())).Msg("Enrichment result dropped")
	}
}

// Ingestor turns watcher lines into persisted records. It handles IONotify
// and GotGeo on the dispatch loop.
type Ingestor struct {
	store    ports.Store
	enricher *Enricher
	observer ports.PipelineObserver
	now      func() time.Time
}

func NewIngestor(store ports.Store, enricher *Enricher) *Ingestor {
	return &Ingestor{store: store, enricher: enricher, now: time.Now}
}

func (in *Ingestor) SetObserver(o ports.PipelineObserver) {
	in.observer = o
}

func (in *Ingestor) Update(ctx context.Context, a domain.Action) (domain.Action, error) {
	switch a := a.(type) {
	case domain.IONotify:
		return in.notify(ctx, a)
	case domain.GotGeo:
		return in.persist(ctx, a)
	}
	return nil, nil
}

func (in *Ingestor) notify(ctx context.Context, a domain.IONotify) (domain.Action, error) {
	ip, ok := domain.ExtractIPv4(a.Line)
	if !ok {
		return nil, nil
	}

	stored, found, err := in.store.GetIP(ctx, ip)
	if err != nil {
		return nil, err
	}
	if found {
		if in.observer != nil {
			in.observer.ObserveEnrichment("hit", 0)
		}
		return domain.GotGeo{IP: stored, Line: a.Line, Origin: a.Origin, FromStore: true}, nil
	}

	if in.enricher.CoolingDown(ip) {
		log.Debug().Str("ip", ip).Msg("Skipping lookup during failure cooldown")
		return nil, nil
	}
	if !in.enricher.Submit(EnrichJob{IP: ip, Line: a.Line, Origin: a.Origin}) {
		return domain.InternalLog{Message: "enrichment queue full, dropped line for " + ip}, nil
	}
	return nil, nil
}

// persist runs the first-seen write path as one unit of work. Existence is
// re-checked here because two misses for the same address may both resolve.
func (in *Ingestor) persist(ctx context.Context, a domain.GotGeo) (domain.Action, error) {
	now := in.now()
	flags := domain.Classify(a.Line, a.Origin)

	var persisted domain.IP
	err := in.store.Update(ctx, func(tx ports.Store) error {
		existing, found, err := tx.GetIP(ctx, a.IP.Address)
		if err != nil {
			return err
		}

		if found {
			existing.Warnings++
			if flags.IsBan && existing.MarkBanned() {
				log.Info().Str("ip", existing.Address).Msg("Ban observed in log")
			}
			persisted = existing
		} else {
			persisted = a.IP
			if a.FromStore {
				// The row vanished (lists cleared) after the cache check.
				persisted = domain.NewObservedIP(a.IP.Address, geoOf(a.IP), a.IP.IsBanned, now)
			}
			if err := observeDimensions(ctx, tx, persisted); err != nil {
				return err
			}
		}

		if err := tx.UpsertIP(ctx, persisted); err != nil {
			return err
		}
		_, err = tx.AppendMessage(ctx, domain.Message{
			Timestamp: now,
			Text:      a.Line,
			IP:        persisted.Address,
			IsJournal: flags.IsJournal,
			IsBan:     flags.IsBan,
		})
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindStorage, "persist %s", a.IP.Address)
	}

	return domain.PassGeo{IP: persisted, Line: a.Line, Origin: a.Origin, FromStore: a.FromStore}, nil
}

// observeDimensions applies one first-seen observation to the four
// dimension rows of ip, creating absent rows.
func observeDimensions(ctx context.Context, tx ports.Store, ip domain.IP) error {
	isp, _, err := tx.GetISP(ctx, ip.ISP)
	if err != nil {
		return err
	}
	isp.Name = ip.ISP
	isp.Observe(ip.IsBanned)
	if err := tx.UpsertISP(ctx, isp); err != nil {
		return err
	}

	country, _, err := tx.GetCountry(ctx, ip.Country)
	if err != nil {
		return err
	}
	country.Name = ip.Country
	if ip.CountryCode != "" {
		country.Code = ip.CountryCode
	}
	country.Observe(ip.IsBanned)
	if err := tx.UpsertCountry(ctx, country); err != nil {
		return err
	}

	region, _, err := tx.GetRegion(ctx, ip.Region, ip.Country)
	if err != nil {
		return err
	}
	region.Name, region.Country = ip.Region, ip.Country
	region.Observe(ip.IsBanned)
	if err := tx.UpsertRegion(ctx, region); err != nil {
		return err
	}

	city, _, err := tx.GetCity(ctx, ip.City, ip.Region, ip.Country)
	if err != nil {
		return err
	}
	city.Name, city.Region, city.Country = ip.City, ip.Region, ip.Country
	city.Observe(ip.IsBanned)
	return tx.UpsertCity(ctx, city)
}

func geoOf(ip domain.IP) domain.GeoData {
	return domain.GeoData{
		Query:       ip.Address,
		Lat:         ip.Lat,
		Lon:         ip.Lon,
		ISP:         ip.ISP,
		Country:     ip.Country,
		CountryCode: ip.CountryCode,
		City:        ip.City,
		Region:      ip.Region,
	}
}
