package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/xoelrdgz/succeed2ban/internal/tui/views"
)

// Theme is a named color set. SelectTheme actions switch between them.
type Theme struct {
	Name       string
	Bg         lipgloss.Color
	BgAlt      lipgloss.Color
	Border     lipgloss.Color
	Primary    lipgloss.Color
	PrimaryDim lipgloss.Color
	Amber      lipgloss.Color
	Red        lipgloss.Color
	Cyan       lipgloss.Color
	Text       lipgloss.Color
	Muted      lipgloss.Color
	Dim        lipgloss.Color
	Ghost      lipgloss.Color
	Select     lipgloss.Color
	SelectFg   lipgloss.Color
}

var (
	phosphor = Theme{
		Name:       "default",
		Bg:         lipgloss.Color("#0a0a0a"),
		BgAlt:      lipgloss.Color("#0f0f0f"),
		Border:     lipgloss.Color("#1a3a1a"),
		Primary:    lipgloss.Color("#00ff41"),
		PrimaryDim: lipgloss.Color("#00aa2a"),
		Amber:      lipgloss.Color("#ffb000"),
		Red:        lipgloss.Color("#ff3333"),
		Cyan:       lipgloss.Color("#00b8ff"),
		Text:       lipgloss.Color("#e5e5e5"),
		Muted:      lipgloss.Color("#707070"),
		Dim:        lipgloss.Color("#404040"),
		Ghost:      lipgloss.Color("#252525"),
		Select:     lipgloss.Color("#003300"),
		SelectFg:   lipgloss.Color("#00ff41"),
	}

	amber = Theme{
		Name:       "amber",
		Bg:         lipgloss.Color("#0d0800"),
		BgAlt:      lipgloss.Color("#140c00"),
		Border:     lipgloss.Color("#3a2a00"),
		Primary:    lipgloss.Color("#ffb000"),
		PrimaryDim: lipgloss.Color("#b07a00"),
		Amber:      lipgloss.Color("#ffd866"),
		Red:        lipgloss.Color("#ff5f40"),
		Cyan:       lipgloss.Color("#ffe0a0"),
		Text:       lipgloss.Color("#f5e6c8"),
		Muted:      lipgloss.Color("#8a7550"),
		Dim:        lipgloss.Color("#4a3d20"),
		Ghost:      lipgloss.Color("#2a2210"),
		Select:     lipgloss.Color("#332200"),
		SelectFg:   lipgloss.Color("#ffb000"),
	}

	mono = Theme{
		Name:       "mono",
		Bg:         lipgloss.Color("#000000"),
		BgAlt:      lipgloss.Color("#111111"),
		Border:     lipgloss.Color("#555555"),
		Primary:    lipgloss.Color("#ffffff"),
		PrimaryDim: lipgloss.Color("#bbbbbb"),
		Amber:      lipgloss.Color("#dddddd"),
		Red:        lipgloss.Color("#ffffff"),
		Cyan:       lipgloss.Color("#cccccc"),
		Text:       lipgloss.Color("#eeeeee"),
		Muted:      lipgloss.Color("#888888"),
		Dim:        lipgloss.Color("#555555"),
		Ghost:      lipgloss.Color("#333333"),
		Select:     lipgloss.Color("#444444"),
		SelectFg:   lipgloss.Color("#ffffff"),
	}
)

// ThemeNames lists the themes in cycling order.
var ThemeNames = []string{phosphor.Name, amber.Name, mono.Name}

var themes = map[string]Theme{
	phosphor.Name: phosphor,
	amber.Name:    amber,
	mono.Name:     mono,
}

// ThemeFor returns the named theme, falling back to the default one.
func ThemeFor(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return phosphor
}

// NextTheme returns the theme after name in cycling order.
func NextTheme(name string) string {
	for i, n := range ThemeNames {
		if n == name {
			return ThemeNames[(i+1)%len(ThemeNames)]
		}
	}
	return ThemeNames[0]
}

func (t Theme) Palette() views.Palette {
	return views.Palette{
		Primary:    lipgloss.NewStyle().Foreground(t.Primary),
		PrimaryDim: lipgloss.NewStyle().Foreground(t.PrimaryDim),
		Warn:       lipgloss.NewStyle().Foreground(t.Amber),
		Alert:      lipgloss.NewStyle().Foreground(t.Red),
		Info:       lipgloss.NewStyle().Foreground(t.Cyan),
		Text:       lipgloss.NewStyle().Foreground(t.Text),
		Muted:      lipgloss.NewStyle().Foreground(t.Muted),
		Dim:        lipgloss.NewStyle().Foreground(t.Dim),
		Ghost:      lipgloss.NewStyle().Foreground(t.Ghost),
		Selected:   lipgloss.NewStyle().Background(t.Select).Foreground(t.SelectFg),
		Border:     t.Border,
		Background: t.BgAlt,
	}
}

const logo = `▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄▄
█  ╔═╗╦ ╦╔═╗╔═╗╔═╗╔═╗╔╦╗ ┌─┐ ┌┐ ┌─┐┌┐┌  █
█  ╚═╗║ ║║  ║  ║╣ ║╣  ║║ ┌─┘ ├┴┐├─┤│││  █
█  ╚═╝╚═╝╚═╝╚═╝╚═╝╚═╝═╩╝ └─┘ └─┘┴ ┴┘└┘  █
▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀▀`
