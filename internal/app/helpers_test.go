package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/succeed2ban/internal/adapters/storage"
	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/errors"
)

const (
	exampleAddr = "203.0.113.7"
	exampleLine = "Mar 1 00:00:01 host sshd[311]: Failed password for root from 203.0.113.7 port 52110 ssh2"
)

var exampleGeo = domain.GeoData{
	Query:       exampleAddr,
	Lat:         1.0,
	Lon:         2.0,
	ISP:         "ExampleISP",
	Country:     "Exampleland",
	CountryCode: "EX",
	City:        "Exampletown",
	Region:      "ExRegion",
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeGeo struct {
	mu    sync.Mutex
	data  map[string]domain.GeoData
	err   error
	gate  chan struct{}
	calls atomic.Int64
}

func (g *fakeGeo) Name() string { return "fake" }

func (g *fakeGeo) Lookup(ctx context.Context, ip string) (domain.GeoData, error) {
	g.calls.Add(1)
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return domain.GeoData{}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return domain.GeoData{}, g.err
	}
	geo, ok := g.data[ip]
	if !ok {
		return domain.GeoData{}, errors.Errorf(errors.KindEnrichment, "no data for %s", ip)
	}
	return geo, nil
}

type fakeBans struct {
	mu       sync.Mutex
	banned   map[string]bool
	probeErr error
	banErr   error
	order    []string
	probes   atomic.Int64
}

func (b *fakeBans) CheckBanned(ctx context.Context, ip string) (bool, error) {
	b.probes.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.probeErr != nil {
		return false, b.probeErr
	}
	return b.banned[ip], nil
}

func (b *fakeBans) Ban(ctx context.Context, ip string) error {
	return b.apply("ban "+ip, ip, true)
}

func (b *fakeBans) Unban(ctx context.Context, ip string) error {
	return b.apply("unban "+ip, ip, false)
}

func (b *fakeBans) apply(entry, ip string, banned bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.order = append(b.order, entry)
	if b.banErr != nil {
		return b.banErr
	}
	if b.banned == nil {
		b.banned = make(map[string]bool)
	}
	b.banned[ip] = banned
	return nil
}

func (b *fakeBans) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

// recv takes the next action from the bus or fails the test.
func recv(t *testing.T, bus *Bus) domain.Action {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a, err := bus.Recv(ctx)
	require.NoError(t, err, "no action arrived")
	return a
}

// assertQuiet checks that nothing arrives on the bus for a short while.
func assertQuiet(t *testing.T, bus *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	a, err := bus.Recv(ctx)
	require.Error(t, err, "unexpected action %v", a)
}

// persistLine runs the first-seen write path for a record directly.
func persistLine(t *testing.T, in *Ingestor, ip domain.IP, line string, origin domain.Origin) domain.PassGeo {
	t.Helper()
	follow, err := in.Update(context.Background(), domain.GotGeo{IP: ip, Line: line, Origin: origin})
	require.NoError(t, err)
	pass, ok := follow.(domain.PassGeo)
	require.True(t, ok, "expected PassGeo, got %T", follow)
	return pass
}

func observedIP(addr, isp, country, region, city string, banned bool) domain.IP {
	return domain.NewObservedIP(addr, domain.GeoData{
		Query:       addr,
		ISP:         isp,
		Country:     country,
		CountryCode: fmt.Sprintf("%.2s", country),
		Region:      region,
		City:        city,
	}, banned, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
}

type recordingView struct {
	mu        sync.Mutex
	snapshots []domain.ViewSnapshot
}

func (r *recordingView) OnView(s domain.ViewSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recordingView) last() (domain.ViewSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return domain.ViewSnapshot{}, false
	}
	return r.snapshots[len(r.snapshots)-1], true
}

type countingObserver struct {
	actions     atomic.Int64
	enrichments sync.Map
	banJobs     atomic.Int64
}

func (o *countingObserver) ObserveAction(domain.Kind, time.Duration) { o.actions.Add(1) }

func (o *countingObserver) ObserveEnrichment(result string, _ time.Duration) {
	n, _ := o.enrichments.LoadOrStore(result, new(atomic.Int64))
	n.(*atomic.Int64).Add(1)
}

func (o *countingObserver) ObserveBanJob(string, bool) { o.banJobs.Add(1) }

func (o *countingObserver) SetQueueDepth(int) {}

func (o *countingObserver) enrichment(result string) int64 {
	n, ok := o.enrichments.Load(result)
	if !ok {
		return 0
	}
	return n.(*atomic.Int64).Load()
}
