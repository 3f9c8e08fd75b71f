package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/pkg/sanitize"
)

// StatsTable renders the aggregated rows of one dimension.
type StatsTable struct {
	Width        int
	VisibleCount int
}

func NewStatsTable(width, visibleCount int) *StatsTable {
	return &StatsTable{Width: width, VisibleCount: visibleCount}
}

func (t *StatsTable) Render(p Palette, dim domain.Dimension, entries []domain.DimensionStats, cursor int, now time.Time) string {
	var tabs []string
	for _, d := range domain.Dimensions {
		name := strings.ToUpper(string(d))
		if d == dim {
			tabs = append(tabs, p.Selected.Bold(true).Render(" "+name+" "))
		} else {
			tabs = append(tabs, p.Muted.Render(" "+name+" "))
		}
	}
	lines := []string{"  " + strings.Join(tabs, p.Ghost.Render("│")), ""}

	if len(entries) == 0 {
		lines = append(lines, p.Dim.Italic(true).Render("  No rows"))
		return strings.Join(lines, "\n")
	}

	nameWidth := max(t.Width-52, 16)
	lines = append(lines, p.Muted.Bold(true).Render(fmt.Sprintf("  %-*s %-4s %9s %7s %6s  %s",
		nameWidth, "NAME", "CODE", "WARNINGS", "BANNED", "LINES", "LAST")))
	lines = append(lines, p.Dim.Render("  "+strings.Repeat("─", max(t.Width-4, 0))))

	maxWarnings := 0
	for _, e := range entries {
		maxWarnings = max(maxWarnings, e.Record.Warnings)
	}

	start, end := window(len(entries), cursor, t.VisibleCount)
	for i := start; i < end; i++ {
		e := entries[i]
		prefix := "  "
		nameStyle := p.Text
		if i == cursor {
			prefix = "▶ "
			nameStyle = p.Selected.Bold(true)
		}

		last := "-"
		if n := len(e.Messages); n > 0 {
			newest := e.Messages[0].Timestamp
			for _, m := range e.Messages[1:] {
				if m.Timestamp.After(newest) {
					newest = m.Timestamp
				}
			}
			last = humanize.RelTime(newest, now, "ago", "from now")
		}

		lines = append(lines, fmt.Sprintf("%s%s %-4s %s %s %6s  %s",
			prefix,
			nameStyle.Render(padRight(sanitize.ForTerminal(e.Record.Key.String()), nameWidth)),
			sanitize.Line(e.Record.Code, 4),
			p.countStyle(e.Record.Warnings, maxWarnings).Render(fmt.Sprintf("%9s", humanize.Comma(int64(e.Record.Warnings)))),
			p.Alert.Render(fmt.Sprintf("%7s", humanize.Comma(int64(e.Record.Banned)))),
			humanize.Comma(int64(len(e.Messages))),
			p.Muted.Render(last),
		))
	}

	if len(entries) > end-start {
		lines = append(lines, p.Dim.Render(fmt.Sprintf("  [%d-%d of %d]", start+1, end, len(entries))))
	}
	return strings.Join(lines, "\n")
}
