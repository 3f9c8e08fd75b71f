package views

import "github.com/charmbracelet/lipgloss"

// Palette is the set of styles a view renders with. The tui package builds
// one per theme.
type Palette struct {
	Primary    lipgloss.Style
	PrimaryDim lipgloss.Style
	Warn       lipgloss.Style
	Alert      lipgloss.Style
	Info       lipgloss.Style
	Text       lipgloss.Style
	Muted      lipgloss.Style
	Dim        lipgloss.Style
	Ghost      lipgloss.Style
	Selected   lipgloss.Style
	Border     lipgloss.Color
	Background lipgloss.Color
}

// countStyle picks a style for n relative to the largest value shown.
func (p Palette) countStyle(n, maxN int) lipgloss.Style {
	switch {
	case n > 20 || (maxN > 0 && float64(n)/float64(maxN) > 0.7):
		return p.Alert.Bold(true)
	case n > 10 || (maxN > 0 && float64(n)/float64(maxN) > 0.4):
		return p.Warn.Bold(true)
	case n > 5:
		return p.Primary
	default:
		return p.PrimaryDim
	}
}
