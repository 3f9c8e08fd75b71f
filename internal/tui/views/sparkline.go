package views

import (
	"fmt"
	"strings"
)

var signalChars = []rune{'⎽', '⎼', '─', '⎻', '⎺'}

var barChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Activity is a scrolling trace of observed lines per second.
type Activity struct {
	Data        []float64
	Width       int
	OscilloMode bool
}

func NewActivity(width int) *Activity {
	if width <= 0 {
		width = 60
	}
	return &Activity{
		Data:        make([]float64, width),
		Width:       width,
		OscilloMode: true,
	}
}

func (a *Activity) Update(value float64) {
	a.Data = append(a.Data[1:], value)
}

func (a *Activity) SetWidth(width int) {
	if width <= 0 || width == a.Width {
		return
	}
	old := a.Data
	a.Width = width
	a.Data = make([]float64, width)
	start := max(len(old)-width, 0)
	copy(a.Data[width-len(old[start:]):], old[start:])
}

// Current is the newest sample.
func (a *Activity) Current() float64 {
	if len(a.Data) == 0 {
		return 0
	}
	return a.Data[len(a.Data)-1]
}

func (a *Activity) scale() float64 {
	maxVal := 5.0
	for _, v := range a.Data {
		maxVal = max(maxVal, v)
	}
	return maxVal
}

func (a *Activity) Render(p Palette) string {
	current := a.Current()
	color := p.Primary
	switch {
	case current > 20:
		color = p.Alert
	case current > 5:
		color = p.Warn
	}

	var trace strings.Builder
	trace.WriteString(" ")

	chars := signalChars
	if !a.OscilloMode {
		chars = barChars
	}
	maxVal := a.scale()
	for i, v := range a.Data {
		if a.OscilloMode && i > 0 && i%10 == 0 {
			trace.WriteString(p.Ghost.Render("│"))
			continue
		}
		if v == 0 {
			trace.WriteString(p.Dim.Render(string(chars[0])))
			continue
		}
		level := min(int(v/maxVal*float64(len(chars)-1)), len(chars)-1)
		trace.WriteString(color.Render(string(chars[level])))
	}

	trace.WriteString(color.Bold(true).Render(fmt.Sprintf(" ▶ %.0f lines/s", current)))
	return trace.String()
}
