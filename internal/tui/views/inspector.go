package views

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/pkg/sanitize"
)

// Inspector shows one IP record in full: the query result or the current
// selection.
type Inspector struct {
	Width   int
	Height  int
	ScrollY int
}

func NewInspector() *Inspector {
	return &Inspector{Width: 80, Height: 24}
}

func (in *Inspector) SetDimensions(width, height int) {
	in.Width = width
	in.Height = height
}

func (in *Inspector) ScrollUp() {
	if in.ScrollY > 0 {
		in.ScrollY--
	}
}

func (in *Inspector) ScrollDown() {
	in.ScrollY++
}

func (in *Inspector) Render(p Palette, ip domain.IP, title, pending string, logs []domain.LogLine, now time.Time) string {
	contentWidth := max(in.Width-4, 20)

	label := p.Warn.Width(14)
	value := p.Text
	code := p.Primary

	var lines []string
	lines = append(lines, p.Primary.Bold(true).Render("╔═══ "+title+" ═══╗"))
	lines = append(lines, p.Dim.Render(strings.Repeat("─", contentWidth)))

	state := value.Render("not banned")
	if ip.IsBanned {
		state = p.Alert.Bold(true).Render("BANNED")
	}
	if pending != "" {
		state += " " + p.Info.Render("("+pending+" in progress)")
	}

	field := func(name, v string) {
		lines = append(lines, fmt.Sprintf("%s %s", label.Render(name), v))
	}
	field("Address:", p.Alert.Bold(true).Render(sanitize.Address(ip.Address)))
	field("State:", state)
	field("Banned times:", value.Render(humanize.Comma(int64(ip.BannedTimes))))
	field("Warnings:", value.Render(humanize.Comma(int64(ip.Warnings))))
	field("First seen:", value.Render(fmt.Sprintf("%s (%s)",
		ip.CreatedAt.Format("2006-01-02 15:04:05"), humanize.RelTime(ip.CreatedAt, now, "ago", "from now"))))
	field("ISP:", value.Render(sanitize.Line(ip.ISP, contentWidth-16)))
	field("Location:", value.Render(sanitize.Line(fmt.Sprintf("%s, %s, %s (%s)", ip.City, ip.Region, ip.Country, ip.CountryCode), contentWidth-16)))
	field("Coordinates:", value.Render(fmt.Sprintf("%.4f, %.4f", ip.Lat, ip.Lon)))

	var recent []domain.LogLine
	for _, l := range logs {
		if l.IP == ip.Address {
			recent = append(recent, l)
		}
	}
	if len(recent) > 0 {
		lines = append(lines, "")
		lines = append(lines, p.Dim.Render(strings.Repeat("─", contentWidth)))
		lines = append(lines, p.Primary.Bold(true).Render("▶ RECENT LINES"))
		for _, l := range recent {
			lines = append(lines, p.Muted.Render(l.At.Format("15:04:05"))+" "+code.Render(sanitize.Line(l.Text, contentWidth-9)))
		}
	}

	lines = append(lines, "")
	lines = append(lines, p.Dim.Render(strings.Repeat("─", contentWidth)))
	lines = append(lines, p.Primary.Bold(true).Render("▶ RECORD"))
	if raw, err := json.MarshalIndent(ip, "", "  "); err == nil {
		for _, line := range strings.Split(string(raw), "\n") {
			lines = append(lines, code.Render(sanitize.Line(line, contentWidth)))
		}
	}

	lines = append(lines, "")
	lines = append(lines, p.Dim.Render("[ESC] Close   [↑/↓] Scroll"))

	if in.ScrollY >= len(lines) {
		in.ScrollY = len(lines) - 1
	}
	if in.ScrollY > 0 {
		lines = lines[in.ScrollY:]
	}
	if in.Height > 2 && len(lines) > in.Height-2 {
		lines = lines[:in.Height-2]
	}

	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(p.Border).
		Padding(0, 1).
		Width(in.Width).
		Render(strings.Join(lines, "\n"))
}
