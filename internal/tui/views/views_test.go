package views

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

func testPalette() Palette {
	s := lipgloss.NewStyle()
	return Palette{Primary: s, PrimaryDim: s, Warn: s, Alert: s, Info: s, Text: s, Muted: s, Dim: s, Ghost: s, Selected: s}
}

func TestWindow(t *testing.T) {
	tests := []struct {
		n, cursor, visible int
		start, end         int
	}{
		{5, 0, 10, 0, 5},
		{20, 0, 10, 0, 10},
		{20, 9, 10, 0, 10},
		{20, 10, 10, 1, 11},
		{20, 19, 10, 10, 20},
		{20, 3, 0, 0, 20},
	}
	for _, tt := range tests {
		start, end := window(tt.n, tt.cursor, tt.visible)
		assert.Equal(t, tt.start, start, "start for %+v", tt)
		assert.Equal(t, tt.end, end, "end for %+v", tt)
	}
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab  ", padRight("ab", 4))
	assert.Equal(t, "Españ", padRight("España", 5))
	assert.Equal(t, "Perú ", padRight("Perú", 5))
}

func TestLogFeedRender(t *testing.T) {
	p := testPalette()
	f := NewLogFeed(120, 5)
	assert.Contains(t, f.Render(p, nil, 0), "Waiting")

	at := time.Date(2026, 1, 2, 10, 11, 12, 0, time.UTC)
	out := f.Render(p, []domain.LogLine{
		{At: at, Text: "Ban 203.0.113.7\x1b[31m", IP: "203.0.113.7", Origin: domain.OriginFail2ban, IsBan: true, Country: "Spain"},
		{At: at, Text: "Failed password", IP: "198.51.100.4", Origin: domain.OriginJournal},
	}, 0)
	assert.Contains(t, out, "10:11:12")
	assert.Contains(t, out, "BAN")
	assert.Contains(t, out, "JCT")
	assert.Contains(t, out, "Spain")
	assert.NotContains(t, out, "\x1b[31m")
}

func TestIPListRenderPending(t *testing.T) {
	p := testPalette()
	v := NewIPList(120, 5)
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	out := v.Render(p, []domain.IP{
		{Address: "203.0.113.7", IsBanned: true, Warnings: 1234, CreatedAt: now.Add(-time.Hour)},
		{Address: "198.51.100.4", Warnings: 1},
	}, 0, map[string]string{"198.51.100.4": "ban"}, now)

	assert.Contains(t, out, "BANNED")
	assert.Contains(t, out, "1,234")
	assert.Contains(t, out, "ban…")
	assert.Contains(t, out, "1 hour ago")
}

func TestStatsTableRender(t *testing.T) {
	p := testPalette()
	st := NewStatsTable(120, 10)
	now := time.Now()

	out := st.Render(p, domain.DimensionRegion, []domain.DimensionStats{{
		Record: domain.DimensionRecord{
			Key:      domain.DimensionKey{Dimension: domain.DimensionRegion, Name: "Galicia", Country: "Spain"},
			Counters: domain.Counters{Warnings: 3, Banned: 1},
		},
		Messages: []domain.Message{{Timestamp: now.Add(-2 * time.Minute)}},
	}}, 0, now)

	assert.Contains(t, out, "REGION")
	assert.Contains(t, out, "Galicia")
	assert.Contains(t, out, "minutes ago")
	assert.Contains(t, st.Render(p, domain.DimensionISP, nil, 0, now), "No rows")
}

func TestActivity(t *testing.T) {
	a := NewActivity(10)
	a.Update(3)
	a.Update(7)
	assert.Equal(t, 7.0, a.Current())

	a.SetWidth(4)
	assert.Len(t, a.Data, 4)
	assert.Equal(t, 7.0, a.Current())

	a.SetWidth(8)
	assert.Len(t, a.Data, 8)
	assert.Equal(t, 3.0, a.Data[6])
	assert.True(t, strings.Contains(a.Render(testPalette()), "7 lines/s"))
}
