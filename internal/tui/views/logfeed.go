package views

import (
	"fmt"
	"strings"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/pkg/sanitize"
)

// LogFeed renders the live log list, newest entry first.
type LogFeed struct {
	Width        int
	VisibleCount int
}

func NewLogFeed(width, visibleCount int) *LogFeed {
	return &LogFeed{Width: width, VisibleCount: visibleCount}
}

// window returns the [start, end) slice of n entries that keeps cursor
// visible.
func window(n, cursor, visible int) (int, int) {
	if visible <= 0 || n <= visible {
		return 0, n
	}
	start := 0
	if cursor >= visible {
		start = cursor - visible + 1
	}
	return start, min(start+visible, n)
}

func (f *LogFeed) Render(p Palette, logs []domain.LogLine, cursor int) string {
	if len(logs) == 0 {
		return p.Dim.Italic(true).Render("  Waiting for log lines...")
	}

	var lines []string
	lines = append(lines, p.Muted.Bold(true).Render(
		fmt.Sprintf("  %-8s  %-3s  %-15s  %-12s  %s", "TIME", "SRC", "IP", "COUNTRY", "MESSAGE")))
	lines = append(lines, p.Dim.Render("  "+strings.Repeat("─", max(f.Width-4, 0))))

	start, end := window(len(logs), cursor, f.VisibleCount)
	for i := start; i < end; i++ {
		l := logs[i]
		isSelected := i == cursor
		prefix := "  "
		if isSelected {
			prefix = "▶ "
		}

		timeStr := p.Dim.Render(l.At.Format("15:04:05"))
		if isSelected {
			timeStr = p.Selected.Render(l.At.Format("15:04:05"))
		}

		src, srcStyle := "JCT", p.Info
		if l.Origin == domain.OriginFail2ban {
			src, srcStyle = "F2B", p.Warn
		}
		if l.IsBan {
			src, srcStyle = "BAN", p.Alert.Bold(true)
		}

		ipStyle := p.Text
		if !l.FromStore {
			ipStyle = p.Primary.Bold(true)
		}
		if isSelected {
			ipStyle = p.Selected.Bold(true)
		}

		country := padRight(sanitize.Line(l.Country, 12), 12)
		msg := sanitize.Line(l.Text, max(f.Width-52, 10))

		lines = append(lines, fmt.Sprintf("%s%s  %s  %s  %s  %s",
			prefix,
			timeStr,
			srcStyle.Render(src),
			ipStyle.Render(fmt.Sprintf("%-15s", sanitize.Address(l.IP))),
			country,
			p.Muted.Render(msg),
		))
	}

	if len(logs) > end-start {
		lines = append(lines, p.Dim.Render(fmt.Sprintf("  [%d-%d of %d]", start+1, end, len(logs))))
	}

	return strings.Join(lines, "\n")
}
