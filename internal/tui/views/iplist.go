package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/pkg/sanitize"
)

// IPList renders the observed addresses, most recently created first.
type IPList struct {
	Width        int
	VisibleCount int
}

func NewIPList(width, visibleCount int) *IPList {
	return &IPList{Width: width, VisibleCount: visibleCount}
}

func (v *IPList) Render(p Palette, ips []domain.IP, cursor int, pending map[string]string, now time.Time) string {
	if len(ips) == 0 {
		return p.Dim.Italic(true).Render("  No addresses observed")
	}

	var lines []string
	lines = append(lines, p.Muted.Bold(true).Render(fmt.Sprintf(" %-3s %-16s %-12s %-4s %-8s %-14s %-12s %s",
		"#", "IP", "WARNINGS", "BANS", "STATE", "COUNTRY", "SEEN", "ISP")))
	lines = append(lines, p.Dim.Render(strings.Repeat("─", max(v.Width, 0))))

	maxWarnings := 0
	for _, ip := range ips {
		maxWarnings = max(maxWarnings, ip.Warnings)
	}

	start, end := window(len(ips), cursor, v.VisibleCount)
	for i := start; i < end; i++ {
		ip := ips[i]
		isSelected := i == cursor

		idx := p.Muted.Render(fmt.Sprintf("%2d.", i+1))
		if isSelected {
			idx = p.Selected.Render(fmt.Sprintf("%2d▶", i+1))
		}

		ipStyle := p.countStyle(ip.Warnings, maxWarnings)
		if isSelected {
			ipStyle = p.Selected.Bold(true)
		}

		barWidth := 6
		fillWidth := 0
		if maxWarnings > 0 {
			fillWidth = min(ip.Warnings*barWidth/maxWarnings, barWidth)
		}
		bar := strings.Repeat("█", fillWidth) + strings.Repeat("░", barWidth-fillWidth)
		warnings := p.countStyle(ip.Warnings, maxWarnings).Render(fmt.Sprintf("%s %5s", bar, humanize.Comma(int64(ip.Warnings))))

		state, stateStyle := "-", p.Dim
		if ip.IsBanned {
			state, stateStyle = "BANNED", p.Alert.Bold(true)
		}
		if op, ok := pending[ip.Address]; ok {
			state, stateStyle = op+"…", p.Info
		}

		seen := "-"
		if !ip.CreatedAt.IsZero() {
			seen = humanize.RelTime(ip.CreatedAt, now, "ago", "from now")
		}

		isp := sanitize.Line(ip.ISP, max(v.Width-82, 10))

		lines = append(lines, fmt.Sprintf(" %s %s %s %s %s %s %s %s",
			idx,
			ipStyle.Render(padRight(sanitize.Address(ip.Address), 16)),
			warnings,
			p.Text.Render(fmt.Sprintf("%4d", ip.BannedTimes)),
			stateStyle.Render(padRight(state, 8)),
			p.Text.Render(padRight(sanitize.Line(ip.Country, 14), 14)),
			p.Muted.Render(padRight(seen, 12)),
			p.Muted.Render(isp),
		))
	}

	if len(ips) > end-start {
		lines = append(lines, p.Dim.Render(fmt.Sprintf("  [showing %d-%d of %d IPs]", start+1, end, len(ips))))
	}

	return strings.Join(lines, "\n")
}

// padRight pads or cuts s to length runes.
func padRight(s string, length int) string {
	r := []rune(s)
	if len(r) >= length {
		return string(r[:length])
	}
	return s + strings.Repeat(" ", length-len(r))
}
