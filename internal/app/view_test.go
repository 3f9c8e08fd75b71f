package app

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

type viewHarness struct {
	view  *View
	bus   *Bus
	in    *Ingestor
	store interface {
		ListIPs(context.Context, int) ([]domain.IP, error)
		ListMessages(context.Context, int) ([]domain.Message, error)
		ListDistinct(context.Context, domain.Dimension) ([]domain.DimensionStats, error)
	}
	rec *recordingView
}

func newViewHarness(t *testing.T, capacity int) *viewHarness {
	t.Helper()
	store := openStore(t)
	bus := NewBus()
	rec := &recordingView{}
	v := NewView(store, bus, ViewConfig{Capacity: capacity, Theme: "default"})
	v.AddObserver(rec)
	return &viewHarness{view: v, bus: bus, in: NewIngestor(store, nil), store: store, rec: rec}
}

func (h *viewHarness) send(t *testing.T, a domain.Action) domain.Action {
	t.Helper()
	follow, err := h.view.Update(context.Background(), a)
	require.NoError(t, err)
	return follow
}

// observe persists a record and hands the result to the view.
func (h *viewHarness) observe(t *testing.T, addr string) {
	t.Helper()
	ip := observedIP(addr, "ExampleISP", "Exampleland", "ExRegion", "Exampletown", false)
	pass := persistLine(t, h.in, ip, "Failed password for root from "+addr, domain.OriginJournal)
	h.send(t, pass)
}

func TestViewClearListsConfirmed(t *testing.T) {
	h := newViewHarness(t, 10)
	ctx := context.Background()
	h.observe(t, "198.51.100.1")
	h.observe(t, "198.51.100.2")

	assert.Equal(t, domain.ConfirmClearLists, h.send(t, domain.ClearLists))
	assert.Equal(t, domain.ModeConfirmClear, h.view.Snapshot().Mode)

	follow := h.send(t, domain.ConfirmedClearLists)
	assert.IsType(t, domain.InternalLog{}, follow)

	ips, err := h.store.ListIPs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, ips)
	msgs, err := h.store.ListMessages(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	for _, dim := range domain.Dimensions {
		rows, err := h.store.ListDistinct(ctx, dim)
		require.NoError(t, err)
		assert.Empty(t, rows, "dimension %s", dim)
	}

	snap := h.view.Snapshot()
	assert.Empty(t, snap.IPs)
	assert.Empty(t, snap.Logs)
	assert.Equal(t, -1, snap.IPCursor)
	assert.Equal(t, domain.ModeNormal, snap.Mode)
}

func TestViewClearListsAborted(t *testing.T) {
	h := newViewHarness(t, 10)
	h.observe(t, "198.51.100.1")

	h.send(t, domain.ClearLists)
	h.send(t, domain.AbortClearLists)
	assert.Equal(t, domain.ModeNormal, h.view.Snapshot().Mode)

	// A late confirmation after the abort must not clear anything.
	assert.Nil(t, h.send(t, domain.ConfirmedClearLists))

	ips, err := h.store.ListIPs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, ips, 1)
	assert.Len(t, h.view.Snapshot().IPs, 1)
}

func TestViewConfirmWithoutRequestIsIgnored(t *testing.T) {
	h := newViewHarness(t, 10)
	h.observe(t, "198.51.100.1")

	assert.Nil(t, h.send(t, domain.ConfirmedClearLists))
	ips, err := h.store.ListIPs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, ips, 1)
}

func TestViewCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		wantErr  bool
	}{
		{"zero", 0, true},
		{"negative", -5, true},
		{"above maximum", MaxLogCapacity + 1, true},
		{"minimum", 1, false},
		{"maximum", MaxLogCapacity, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newViewHarness(t, 50)
			h.send(t, domain.SetCapacity)

			follow := h.send(t, domain.SubmittedCapacity{Capacity: tt.capacity})
			snap := h.view.Snapshot()
			if tt.wantErr {
				assert.IsType(t, domain.Error{}, follow)
				assert.Equal(t, 50, snap.Capacity)
				assert.Equal(t, domain.ModeCapacity, snap.Mode)
				return
			}
			assert.Nil(t, follow)
			assert.Equal(t, tt.capacity, snap.Capacity)
			assert.Equal(t, domain.ModeNormal, snap.Mode)
		})
	}
}

func TestViewCapacityTrims(t *testing.T) {
	h := newViewHarness(t, 10)
	for i := 1; i <= 5; i++ {
		h.observe(t, fmt.Sprintf("198.51.100.%d", i))
	}
	h.send(t, domain.LogsLast)
	require.Equal(t, 4, h.view.Snapshot().LogCursor)

	h.send(t, domain.SubmittedCapacity{Capacity: 3})
	snap := h.view.Snapshot()
	require.Len(t, snap.IPs, 3)
	assert.Len(t, snap.Logs, 3)
	assert.Equal(t, "198.51.100.5", snap.IPs[0].Address, "newest entries are kept")
	assert.Equal(t, 2, snap.LogCursor)

	h.observe(t, "198.51.100.6")
	assert.Len(t, h.view.Snapshot().IPs, 3)
}

func TestViewQuery(t *testing.T) {
	h := newViewHarness(t, 10)

	h.send(t, domain.EnterQuery)
	assert.Equal(t, domain.ModeQuery, h.view.Snapshot().Mode)

	assert.Equal(t, domain.InvalidQuery, h.send(t, domain.SubmitQuery{Query: "not an address"}))
	assert.Equal(t, domain.InvalidQuery, h.send(t, domain.SubmitQuery{Query: "2001:db8::1"}))
	assert.Equal(t, domain.StatsGetIP{IP: "192.0.2.4"}, h.send(t, domain.SubmitQuery{Query: "  192.0.2.4 "}))

	rec := observedIP("192.0.2.4", "ExampleISP", "Exampleland", "ExRegion", "Exampletown", false)
	h.send(t, domain.StatsGotIP{IP: rec})
	snap := h.view.Snapshot()
	require.NotNil(t, snap.QueryResult)
	assert.Equal(t, "192.0.2.4", snap.QueryResult.Address)

	h.send(t, domain.QueryNotFound{Query: "192.0.2.5"})
	assert.Nil(t, h.view.Snapshot().QueryResult)
}

func TestViewRenderAndSuspend(t *testing.T) {
	h := newViewHarness(t, 10)

	h.send(t, domain.Render)
	require.Len(t, h.rec.snapshots, 1)

	h.send(t, domain.Suspend)
	h.send(t, domain.Render)
	assert.Len(t, h.rec.snapshots, 1, "suspended view must not publish")

	h.send(t, domain.Resume)
	h.send(t, domain.Render)
	assert.Len(t, h.rec.snapshots, 2)
	last, ok := h.rec.last()
	require.True(t, ok)
	assert.False(t, last.Suspended)
}

func TestViewBanSelected(t *testing.T) {
	h := newViewHarness(t, 10)
	h.observe(t, "198.51.100.1")
	h.observe(t, "198.51.100.2")

	h.send(t, domain.EnterBan)
	assert.IsType(t, domain.Error{}, h.send(t, domain.RequestBanSelected), "nothing is selected yet")

	h.send(t, domain.IPsNext)
	h.send(t, domain.IPsNext)
	follow := h.send(t, domain.RequestBanSelected)
	ban, ok := follow.(domain.BanIP)
	require.True(t, ok)
	assert.Equal(t, "198.51.100.1", ban.IP.Address)
	assert.Equal(t, domain.ModeNormal, h.view.Snapshot().Mode)

	h.send(t, domain.Banned{IP: "198.51.100.1", OK: true})
	snap := h.view.Snapshot()
	selected, ok := snap.SelectedIP()
	require.True(t, ok)
	assert.True(t, selected.IsBanned)
	assert.Equal(t, 1, selected.BannedTimes)

	h.send(t, domain.Unbanned{IP: "198.51.100.1", OK: false, Reason: "boom"})
	selected, _ = h.view.Snapshot().SelectedIP()
	assert.True(t, selected.IsBanned, "failed unban leaves the entry untouched")

	follow = h.send(t, domain.RequestUnbanSelected)
	assert.IsType(t, domain.UnbanIP{}, follow)
}

func TestViewPassGeoUpdatesExistingEntry(t *testing.T) {
	h := newViewHarness(t, 10)
	h.observe(t, "198.51.100.1")
	h.observe(t, "198.51.100.2")
	h.send(t, domain.IPsNext)
	h.observe(t, "198.51.100.1")

	snap := h.view.Snapshot()
	require.Len(t, snap.IPs, 2)
	assert.Len(t, snap.Logs, 3)
	assert.Equal(t, "198.51.100.2", snap.IPs[0].Address)
	assert.Equal(t, 2, snap.IPs[1].Warnings)
	assert.Equal(t, 0, snap.IPCursor, "updating an entry in place keeps the selection")

	h.observe(t, "198.51.100.3")
	snap = h.view.Snapshot()
	assert.Equal(t, 1, snap.IPCursor, "a new entry shifts the selection down")
	selected, _ := snap.SelectedIP()
	assert.Equal(t, "198.51.100.2", selected.Address)
}

func TestViewModes(t *testing.T) {
	h := newViewHarness(t, 10)

	h.send(t, domain.EnterTakeAction)
	h.send(t, domain.Help)
	assert.Equal(t, domain.ModeHelp, h.view.Snapshot().Mode)
	h.send(t, domain.Help)
	assert.Equal(t, domain.ModeTakeAction, h.view.Snapshot().Mode)

	h.send(t, domain.ActionsPrevious)
	action, ok := h.view.Snapshot().SelectedAction()
	require.True(t, ok)
	assert.Equal(t, domain.OpResize, action, "the action cursor wraps")

	assert.Equal(t, domain.StatsGet{Dimension: domain.DimensionCountry}, h.send(t, domain.StatsShow))
	assert.Equal(t, domain.ModeStats, h.view.Snapshot().Mode)
	h.send(t, domain.StatsHide)
	assert.Equal(t, domain.ModeNormal, h.view.Snapshot().Mode)

	h.send(t, domain.EnterProcessing)
	h.send(t, domain.ExitProcessing)
	h.send(t, domain.ExitProcessing)
	assert.Zero(t, h.view.Snapshot().Processing)

	h.send(t, domain.Blank)
	assert.True(t, h.view.Snapshot().Blank)
}

func TestViewStartupReloadsStoredIPs(t *testing.T) {
	h := newViewHarness(t, 10)
	h.observe(t, "198.51.100.1")

	fresh := NewView(h.view.store, h.bus, ViewConfig{Capacity: 10})
	_, err := fresh.Update(context.Background(), domain.StartupConnected)
	require.NoError(t, err)
	_, err = fresh.Update(context.Background(), domain.StartupDone)
	require.NoError(t, err)

	snap := fresh.Snapshot()
	assert.True(t, snap.StartedUp)
	require.Len(t, snap.IPs, 1)
	assert.Equal(t, "198.51.100.1", snap.IPs[0].Address)
}

func TestViewInternalLog(t *testing.T) {
	h := newViewHarness(t, 10)
	h.send(t, domain.Error{Reason: "ban of 192.0.2.1 failed"})
	for i := 0; i < internalLogCapacity+5; i++ {
		h.send(t, domain.InternalLog{Message: fmt.Sprintf("entry %d", i)})
	}

	internal := h.view.Snapshot().InternalLog
	assert.Len(t, internal, internalLogCapacity)
	assert.Contains(t, internal[len(internal)-1], fmt.Sprintf("entry %d", internalLogCapacity+4))
}
