package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
	"github.com/xoelrdgz/succeed2ban/internal/ports"
	"github.com/xoelrdgz/succeed2ban/internal/tui/views"
	"github.com/xoelrdgz/succeed2ban/pkg/sanitize"
)

const (
	sampleInterval  = time.Second
	internalLogTail = 3
)

// App is the terminal front end. It renders the snapshots published by the
// dispatch loop and turns key presses into actions on the bus.
type App struct {
	sender ports.Sender
	model  *Model
	theme  Theme

	activity  *views.Activity
	logs      *views.LogFeed
	ips       *views.IPList
	stats     *views.StatsTable
	status    *views.Status
	inspector *views.Inspector

	snapshots chan domain.ViewSnapshot
	done      <-chan struct{}

	ready    bool
	quitting bool
	now      func() time.Time
}

// NewApp creates the front end. done is closed once the application has
// stopped, which ends the program.
func NewApp(sender ports.Sender, done <-chan struct{}) *App {
	return &App{
		sender:    sender,
		model:     NewModel(),
		theme:     ThemeFor(""),
		activity:  views.NewActivity(80),
		logs:      views.NewLogFeed(100, 10),
		ips:       views.NewIPList(100, 10),
		stats:     views.NewStatsTable(100, 20),
		status:    views.NewStatus(100),
		inspector: views.NewInspector(),
		snapshots: make(chan domain.ViewSnapshot, 1),
		done:      done,
		now:       time.Now,
	}
}

type snapshotMsg domain.ViewSnapshot
type sampleMsg time.Time
type doneMsg struct{}

// OnView publishes a snapshot. Older unread snapshots are replaced.
func (a *App) OnView(s domain.ViewSnapshot) {
	for {
		select {
		case a.snapshots <- s:
			return
		default:
		}
		select {
		case <-a.snapshots:
		default:
		}
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.listen(), a.sample())
}

func (a *App) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-a.snapshots:
			return snapshotMsg(s)
		case <-a.done:
			return doneMsg{}
		}
	}
}

func (a *App) sample() tea.Cmd {
	return tea.Tick(sampleInterval, func(t time.Time) tea.Msg { return sampleMsg(t) })
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a, a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.ready = true
		a.resize(msg.Width, msg.Height)
		return a, a.send(domain.Resize{Width: msg.Width, Height: msg.Height})

	case tea.ResumeMsg:
		return a, a.send(domain.Resume)

	case snapshotMsg:
		a.model.Apply(domain.ViewSnapshot(msg))
		a.theme = ThemeFor(a.model.Snapshot.Theme)
		if a.model.Snapshot.Processing > 0 {
			a.status.Advance()
		}
		return a, a.listen()

	case sampleMsg:
		a.activity.Update(a.model.Sample())
		return a, a.sample()

	case doneMsg:
		a.quitting = true
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) resize(width, height int) {
	a.model.SetDimensions(width, height)
	a.activity.SetWidth(max(width-24, 10))
	a.logs.Width = width - 4
	a.ips.Width = width - 4
	a.stats.Width = width - 4
	a.status.Width = width
	a.inspector.SetDimensions(width-4, height-2)

	content := max(height-14, 6)
	a.ips.VisibleCount = content / 2
	a.logs.VisibleCount = content - content/2
	a.stats.VisibleCount = content
}

// send puts an action on the bus. A closed bus ends the program.
func (a *App) send(act domain.Action) tea.Cmd {
	if act == nil {
		return nil
	}
	if err := a.sender.Send(act); err != nil {
		log.Debug().Err(err).Str("action", string(act.Kind())).Msg("Action bus closed")
		a.quitting = true
		return tea.Quit
	}
	return nil
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	key := msg.String()
	snap := a.model.Snapshot

	switch {
	case key == "ctrl+c":
		return a.send(domain.Quit)
	case key == "ctrl+z":
		if cmd := a.send(domain.Suspend); cmd != nil {
			return cmd
		}
		return tea.Suspend
	case !a.model.HasSnapshot:
		return nil
	case snap.Blank:
		return a.send(domain.Blank)
	case a.model.Inspecting:
		switch key {
		case "esc", "q", "i":
			a.model.Inspecting = false
		case "up", "k":
			a.inspector.ScrollUp()
		case "down", "j":
			a.inspector.ScrollDown()
		}
		return nil
	}

	switch snap.Mode {
	case domain.ModeQuery:
		switch msg.Type {
		case tea.KeyEnter:
			return a.send(domain.SubmitQuery{Query: a.model.Input})
		case tea.KeyEsc:
			return a.send(domain.ExitQuery)
		case tea.KeyBackspace:
			a.model.Backspace()
		case tea.KeyTab:
			if snap.QueryResult != nil {
				a.openInspector()
			}
		case tea.KeyRunes:
			a.model.Type(string(msg.Runes))
		}
		return nil

	case domain.ModeCapacity:
		switch msg.Type {
		case tea.KeyEnter:
			n, err := strconv.Atoi(a.model.Input)
			if err != nil {
				n = 0
			}
			return a.send(domain.SubmittedCapacity{Capacity: n})
		case tea.KeyEsc:
			return a.send(domain.EnterNormal)
		case tea.KeyBackspace:
			a.model.Backspace()
		case tea.KeyRunes:
			for _, r := range msg.Runes {
				if r >= '0' && r <= '9' {
					a.model.Type(string(r))
				}
			}
		}
		return nil

	case domain.ModeStats:
		switch key {
		case "tab":
			return a.send(domain.StatsGet{Dimension: nextDimension(snap.StatsDimension)})
		case "j", "down":
			a.model.StatsDown()
		case "k", "up":
			a.model.StatsUp()
		case "b":
			if row, ok := a.model.SelectedStats(); ok {
				return a.send(domain.StatsBlock{Key: row.Record.Key})
			}
		case "u":
			if row, ok := a.model.SelectedStats(); ok {
				return a.send(domain.StatsUnblock{Key: row.Record.Key})
			}
		case "esc", "q":
			return a.send(domain.StatsHide)
		}
		return nil

	case domain.ModeNormal:
		if key == "i" {
			a.openInspector()
			return nil
		}
	}

	return a.send(keyAction(snap, key))
}

func (a *App) openInspector() {
	if _, _, ok := a.model.InspectTarget(); ok {
		a.model.Inspecting = true
		a.inspector.ScrollY = 0
	}
}

func (a *App) View() string {
	if a.quitting {
		return "\n  Session terminated.\n\n"
	}

	p := a.theme.Palette()
	snap := a.model.Snapshot

	if !a.ready || !a.model.HasSnapshot || !snap.StartedUp {
		return a.renderSplash(p)
	}
	if snap.Blank {
		return "\n  " + p.Ghost.Render("press any key")
	}
	if a.model.Inspecting {
		if ip, title, ok := a.model.InspectTarget(); ok {
			return a.inspector.Render(p, ip, title, snap.Pending[ip.Address], snap.Logs, a.now())
		}
	}

	width := a.model.Width
	var b strings.Builder
	b.WriteString(a.renderHeader(p))
	b.WriteString("\n")
	b.WriteString(p.Dim.Render(strings.Repeat("─", width)))
	b.WriteString("\n")
	b.WriteString(a.activity.Render(p))
	b.WriteString("\n\n")

	switch snap.Mode {
	case domain.ModeHelp:
		b.WriteString(a.renderHelp(p))
	case domain.ModeStats:
		b.WriteString(a.stats.Render(p, snap.StatsDimension, snap.Stats, a.model.StatsCursor, a.now()))
	default:
		b.WriteString(p.Muted.Render(fmt.Sprintf("  ADDRESSES (%s)", humanize.Comma(int64(len(snap.IPs))))))
		b.WriteString("\n")
		b.WriteString(a.ips.Render(p, snap.IPs, snap.IPCursor, snap.Pending, a.now()))
		b.WriteString("\n\n")
		b.WriteString(p.Muted.Render(fmt.Sprintf("  LOG %d/%d", len(snap.Logs), snap.Capacity)))
		b.WriteString("\n")
		b.WriteString(a.logs.Render(p, snap.Logs, snap.LogCursor))
	}

	b.WriteString("\n\n")
	if prompt := a.renderPrompt(p); prompt != "" {
		b.WriteString(prompt)
		b.WriteString("\n")
	}
	b.WriteString(a.renderInternalLog(p))
	b.WriteString(a.status.Render(p, snap, a.theme.Name, a.now()))
	b.WriteString("\n")
	b.WriteString(a.renderHint(p))
	return b.String()
}

func (a *App) renderSplash(p views.Palette) string {
	state := "connecting to store..."
	if a.model.HasSnapshot {
		state = "starting up..."
	}
	body := lipgloss.JoinVertical(lipgloss.Center,
		p.Primary.Bold(true).Render(logo),
		"",
		p.Muted.Render(state),
	)
	if a.model.Width <= 0 || a.model.Height <= 0 {
		return body
	}
	return lipgloss.Place(a.model.Width, a.model.Height, lipgloss.Center, lipgloss.Center, body)
}

func (a *App) renderHeader(p views.Palette) string {
	snap := a.model.Snapshot
	state := p.Primary.Bold(true).Render("WATCHING")
	switch {
	case !snap.Watchers.Fail2ban && !snap.Watchers.Journal:
		state = p.Warn.Bold(true).Render("IDLE")
	case len(snap.Pending) > 0:
		state = p.Alert.Bold(true).Render("ACTING")
	}
	return fmt.Sprintf("  %s  %s  %s %s",
		p.Primary.Bold(true).Render("SUCCEED2BAN"),
		state,
		p.Dim.Render("LINES:"),
		p.Text.Render(humanize.Comma(a.model.TotalLines())),
	)
}

func (a *App) renderHelp(p views.Palette) string {
	var lines []string
	for _, section := range helpBindings {
		lines = append(lines, p.Muted.Bold(true).Render("  "+strings.ToUpper(section.mode)))
		for _, bd := range section.bindings {
			lines = append(lines, fmt.Sprintf("    %s %s",
				p.PrimaryDim.Render(padKeys(bd.keys)),
				p.Text.Render(bd.desc)))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func padKeys(s string) string {
	const width = 16
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func (a *App) renderPrompt(p views.Palette) string {
	snap := a.model.Snapshot
	cursor := p.Primary.Blink(true).Render("█")

	switch snap.Mode {
	case domain.ModeQuery:
		line := fmt.Sprintf("  %s %s%s", p.Info.Bold(true).Render("QUERY>"), p.Text.Render(sanitize.ForTerminal(a.model.Input)), cursor)
		if r := snap.QueryResult; r != nil {
			line += "\n  " + p.Primary.Render(fmt.Sprintf("%s  %s  %s  warnings %s  banned %s",
				sanitize.Address(r.Address),
				sanitize.Line(r.Country, 24),
				sanitize.Line(r.ISP, 32),
				humanize.Comma(int64(r.Warnings)),
				humanize.Comma(int64(r.BannedTimes)),
			)) + p.Dim.Render("  [tab] inspect")
		} else if snap.Query != "" {
			line += "\n  " + p.Warn.Render("no record for "+sanitize.Line(snap.Query, maxInputLength))
		}
		return line

	case domain.ModeCapacity:
		return fmt.Sprintf("  %s %s%s %s",
			p.Info.Bold(true).Render("CAPACITY>"),
			p.Text.Render(a.model.Input), cursor,
			p.Dim.Render(fmt.Sprintf("(current %d)", snap.Capacity)))

	case domain.ModeConfirmClear:
		return "  " + p.Alert.Bold(true).Render("Clear every IP, log line and statistic? [y/N]")

	case domain.ModeTakeAction:
		var items []string
		for i, op := range snap.Actions {
			if i == snap.ActionCursor {
				items = append(items, p.Selected.Bold(true).Render(" "+op+" "))
			} else {
				items = append(items, p.Muted.Render(" "+op+" "))
			}
		}
		return "  " + strings.Join(items, p.Ghost.Render("│"))

	case domain.ModeBan, domain.ModeUnban:
		verb := "BAN"
		if snap.Mode == domain.ModeUnban {
			verb = "UNBAN"
		}
		target := "-"
		if ip, ok := snap.SelectedIP(); ok {
			target = sanitize.Address(ip.Address)
		}
		return fmt.Sprintf("  %s %s %s", p.Alert.Bold(true).Render(verb), p.Text.Render(target), p.Dim.Render("[enter] confirm  [esc] back"))
	}
	return ""
}

func (a *App) renderInternalLog(p views.Palette) string {
	entries := a.model.Snapshot.InternalLog
	if len(entries) == 0 {
		return ""
	}
	start := max(len(entries)-internalLogTail, 0)
	var b strings.Builder
	for _, e := range entries[start:] {
		style := p.Muted
		if strings.HasPrefix(e, "error") {
			style = p.Alert
		}
		b.WriteString("  ")
		b.WriteString(style.Render(sanitize.Line(e, max(a.model.Width-4, 20))))
		b.WriteString("\n")
	}
	return b.String()
}

func (a *App) renderHint(p views.Palette) string {
	key := p.PrimaryDim
	return p.Dim.Render(fmt.Sprintf("  %s select  %s act  %s inspect  %s stats  %s help  %s quit",
		key.Render("j/k"), key.Render("ENTER"), key.Render("i"), key.Render("s"), key.Render("?"), key.Render("q")))
}

func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
