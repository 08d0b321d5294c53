package viz

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type Styles struct {
	Tag     lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Danger  lipgloss.Style
	barHigh lipgloss.Style
	barMid  lipgloss.Style
	barLow  lipgloss.Style
}

// NewStyles builds styles for theme t. The renderer decides whether colors
// are emitted, based on the writer it was created for.
func NewStyles(t Theme, r *lipgloss.Renderer) Styles {
	return Styles{
		Tag:     r.NewStyle().Bold(true).Foreground(t.Primary),
		Value:   r.NewStyle().Bold(true).Foreground(t.Accent),
		Muted:   r.NewStyle().Foreground(t.Muted),
		Success: r.NewStyle().Bold(true).Foreground(t.Success),
		Warning: r.NewStyle().Bold(true).Foreground(t.Warning),
		Danger:  r.NewStyle().Bold(true).Foreground(t.Error),
		barHigh: r.NewStyle().Foreground(t.Success),
		barMid:  r.NewStyle().Foreground(t.Accent),
		barLow:  r.NewStyle().Foreground(t.Warning),
	}
}

// StylesFor returns theme styles for output written to w.
func StylesFor(t Theme, w io.Writer) Styles {
	return NewStyles(t, lipgloss.NewRenderer(w))
}

var (
	DefaultStyles = NewStyles(ThemeDefault, lipgloss.DefaultRenderer())

	// PlainStyles never emit escape sequences.
	PlainStyles = StylesFor(ThemeDefault, io.Discard)
)

// ProgressBar renders a block progress bar for a fraction in [0, 1].
func (s Styles) ProgressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	switch {
	case fraction > 0.8:
		return s.barHigh.Render(bar)
	case fraction > 0.4:
		return s.barMid.Render(bar)
	default:
		return s.barLow.Render(bar)
	}
}
