package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

func seedStats(t *testing.T) (*Stats, *Bus) {
	t.Helper()
	store := openStore(t)
	in := NewIngestor(store, nil)

	persistLine(t, in, observedIP("198.51.100.1", "NetA", "Spain", "Galicia", "Vigo", false), "from 198.51.100.1", domain.OriginJournal)
	persistLine(t, in, observedIP("198.51.100.2", "NetA", "Spain", "Galicia", "Lugo", true), "from 198.51.100.2", domain.OriginJournal)
	persistLine(t, in, observedIP("198.51.100.3", "NetB", "Mexico", "Galicia", "Vigo", false), "from 198.51.100.3", domain.OriginJournal)
	persistLine(t, in, observedIP("198.51.100.1", "NetA", "Spain", "Galicia", "Vigo", false), "again 198.51.100.1", domain.OriginJournal)

	bus := NewBus()
	return NewStats(store, bus), bus
}

func TestStatsGet(t *testing.T) {
	s, _ := seedStats(t)
	ctx := context.Background()

	follow, err := s.Update(ctx, domain.StatsGet{Dimension: domain.DimensionRegion})
	require.NoError(t, err)
	got, ok := follow.(domain.StatsGot)
	require.True(t, ok)
	assert.Equal(t, domain.DimensionRegion, got.Dimension)
	assert.Equal(t, domain.Kind("StatsGotRegion"), got.Kind())
	require.Len(t, got.Entries, 2, "same-named regions in different countries stay apart")

	byCountry := map[string]domain.DimensionStats{}
	for _, e := range got.Entries {
		byCountry[e.Record.Key.Country] = e
	}
	assert.Equal(t, domain.Counters{Banned: 1, Warnings: 2}, byCountry["Spain"].Record.Counters)
	assert.Len(t, byCountry["Spain"].Messages, 3)
	assert.Equal(t, domain.Counters{Warnings: 1}, byCountry["Mexico"].Record.Counters)
	assert.Len(t, byCountry["Mexico"].Messages, 1)
}

func TestStatsBlockFansOut(t *testing.T) {
	s, bus := seedStats(t)
	ctx := context.Background()

	follow, err := s.Update(ctx, domain.StatsBlock{Key: domain.DimensionKey{Dimension: domain.DimensionISP, Name: "NetA"}})
	require.NoError(t, err)
	assert.IsType(t, domain.InternalLog{}, follow)

	var got []string
	for i := 0; i < 2; i++ {
		req, ok := recv(t, bus).(domain.RequestBan)
		require.True(t, ok)
		got = append(got, req.IP)
	}
	assert.ElementsMatch(t, []string{"198.51.100.1", "198.51.100.2"}, got)
	assertQuiet(t, bus)
}

func TestStatsUnblockScopedCity(t *testing.T) {
	s, bus := seedStats(t)

	key := domain.DimensionKey{Dimension: domain.DimensionCity, Name: "Vigo", Region: "Galicia", Country: "Mexico"}
	_, err := s.Update(context.Background(), domain.StatsUnblock{Key: key})
	require.NoError(t, err)

	assert.Equal(t, domain.RequestUnban{IP: "198.51.100.3"}, recv(t, bus))
	assertQuiet(t, bus)
}

func TestStatsBlockWithoutAddresses(t *testing.T) {
	s, bus := seedStats(t)

	follow, err := s.Update(context.Background(), domain.StatsBlock{Key: domain.DimensionKey{Dimension: domain.DimensionCountry, Name: "Atlantis"}})
	require.NoError(t, err)
	assert.IsType(t, domain.InternalLog{}, follow)
	assertQuiet(t, bus)
}

func TestStatsGetIP(t *testing.T) {
	s, _ := seedStats(t)
	ctx := context.Background()

	follow, err := s.Update(ctx, domain.StatsGetIP{IP: "198.51.100.1"})
	require.NoError(t, err)
	got, ok := follow.(domain.StatsGotIP)
	require.True(t, ok)
	assert.Equal(t, 2, got.IP.Warnings)

	follow, err = s.Update(ctx, domain.StatsGetIP{IP: "192.0.2.1"})
	require.NoError(t, err)
	assert.Equal(t, domain.QueryNotFound{Query: "192.0.2.1"}, follow)
}
