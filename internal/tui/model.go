package tui

import (
	"time"

	"github.com/xoelrdgz/succeed2ban/internal/domain"
)

const maxInputLength = 45

// Model holds the presentation-only state: the latest published snapshot and
// what the terminal adds on top of it (text input, the stats cursor, the
// inspector and the activity counter).
type Model struct {
	Width  int
	Height int

	Snapshot    domain.ViewSnapshot
	HasSnapshot bool

	Input       string
	StatsCursor int
	Inspecting  bool

	lastLine   time.Time
	newLines   int
	totalLines int64
}

func NewModel() *Model {
	return &Model{Width: 120, Height: 40}
}

// Apply stores a snapshot and derives the local state from it.
func (m *Model) Apply(s domain.ViewSnapshot) {
	prev := m.Snapshot.Mode
	m.Snapshot = s
	m.HasSnapshot = true

	for _, l := range s.Logs {
		if !l.At.After(m.lastLine) {
			break
		}
		m.newLines++
		m.totalLines++
	}
	if len(s.Logs) > 0 && s.Logs[0].At.After(m.lastLine) {
		m.lastLine = s.Logs[0].At
	}

	if s.Mode != prev && (s.Mode == domain.ModeQuery || s.Mode == domain.ModeCapacity) {
		m.Input = ""
	}
	if s.Mode != domain.ModeStats || m.StatsCursor >= len(s.Stats) {
		m.StatsCursor = max(0, min(m.StatsCursor, len(s.Stats)-1))
	}
	if m.Inspecting {
		if _, _, ok := m.InspectTarget(); !ok {
			m.Inspecting = false
		}
	}
}

// Sample returns the number of lines seen since the previous call.
func (m *Model) Sample() float64 {
	n := m.newLines
	m.newLines = 0
	return float64(n)
}

func (m *Model) TotalLines() int64 {
	return m.totalLines
}

// Type appends printable input, bounded in length.
func (m *Model) Type(s string) {
	if len(m.Input)+len(s) > maxInputLength {
		return
	}
	m.Input += s
}

func (m *Model) Backspace() {
	if r := []rune(m.Input); len(r) > 0 {
		m.Input = string(r[:len(r)-1])
	}
}

func (m *Model) StatsUp() {
	if m.StatsCursor > 0 {
		m.StatsCursor--
	}
}

func (m *Model) StatsDown() {
	if m.StatsCursor < len(m.Snapshot.Stats)-1 {
		m.StatsCursor++
	}
}

// SelectedStats returns the stats row under the cursor.
func (m *Model) SelectedStats() (domain.DimensionStats, bool) {
	if m.StatsCursor < 0 || m.StatsCursor >= len(m.Snapshot.Stats) {
		return domain.DimensionStats{}, false
	}
	return m.Snapshot.Stats[m.StatsCursor], true
}

// InspectTarget is the record the inspector shows: the query result while
// querying, otherwise the selected IP.
func (m *Model) InspectTarget() (domain.IP, string, bool) {
	if m.Snapshot.Mode == domain.ModeQuery && m.Snapshot.QueryResult != nil {
		return *m.Snapshot.QueryResult, "QUERY RESULT", true
	}
	if ip, ok := m.Snapshot.SelectedIP(); ok {
		return ip, "IP INSPECTOR", true
	}
	return domain.IP{}, "", false
}

func (m *Model) SetDimensions(width, height int) {
	m.Width = width
	m.Height = height
}
