package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type Status struct {
	Width     int
	StartTime time.Time
	frame     int
}

func NewStatus(width int) *Status {
	return &Status{Width: width, StartTime: time.Now()}
}

// Advance moves the processing spinner one frame.
func (s *Status) Advance() {
	s.frame = (s.frame + 1) % len(spinner)
}

func (s *Status) Render(p Palette, snap domain.ViewSnapshot, theme string, now time.Time) string {
	sep := p.Ghost.Render(" │ ")

	busy := p.Dim.Render("·")
	if snap.Processing > 0 {
		busy = p.Info.Bold(true).Render(spinner[s.frame])
	}

	banned := 0
	for _, ip := range snap.IPs {
		if ip.IsBanned {
			banned++
		}
	}
	bannedStyle := p.Primary
	if banned > 0 {
		bannedStyle = p.Alert.Bold(true)
	}

	pendingStyle := p.Dim
	if len(snap.Pending) > 0 {
		pendingStyle = p.Info.Bold(true)
	}

	items := []string{
		p.Muted.Render("MODE:") + " " + p.Primary.Bold(true).Render(strings.ToUpper(string(snap.Mode))) + " " + busy,
		s.watcher(p, "F2B", snap.Watchers.Fail2ban),
		s.watcher(p, "JCT", snap.Watchers.Journal),
		p.Muted.Render("IPS:") + " " + p.Primary.Render(humanize.Comma(int64(len(snap.IPs)))),
		p.Muted.Render("BAN:") + " " + bannedStyle.Render(humanize.Comma(int64(banned))),
		p.Muted.Render("PEND:") + " " + pendingStyle.Render(fmt.Sprintf("%d", len(snap.Pending))),
		p.Muted.Render("LOG:") + " " + p.Primary.Render(fmt.Sprintf("%d/%d", len(snap.Logs), snap.Capacity)),
		p.Muted.Render("UP:") + " " + p.Primary.Render(fmtUptime(now.Sub(s.StartTime).Round(time.Second))),
		p.Muted.Render("THEME:") + " " + p.Muted.Render(theme),
	}

	return lipgloss.NewStyle().
		Width(s.Width).
		Padding(0, 1).
		Background(p.Background).
		Render(strings.Join(items, sep))
}

func (s *Status) watcher(p Palette, name string, running bool) string {
	icon, style := "○", p.Alert
	if running {
		icon, style = "●", p.Primary.Bold(true)
	}
	return p.Muted.Render(name+":") + " " + style.Render(icon)
}

func fmtUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
