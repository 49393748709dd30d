package report

import "github.com/charmbracelet/lipgloss"

var (
	Cyan   = lipgloss.Color("#00E5FF") // headings
	Yellow = lipgloss.Color("#FFB500") // warnings
	Green  = lipgloss.Color("#2AFFAA") // active / long
	Red    = lipgloss.Color("#FF5555") // errors / short
	Muted  = lipgloss.Color("#6C7280")
)

// Styles used by the address report.
type Styles struct {
	Title   lipgloss.Style
	Rule    lipgloss.Style
	Active  lipgloss.Style
	Idle    lipgloss.Style
	Invalid lipgloss.Style
	Long    lipgloss.Style
	Short   lipgloss.Style
	Muted   lipgloss.Style
	Warning lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(Cyan),
		Rule:    lipgloss.NewStyle().Foreground(Muted),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(Green),
		Idle:    lipgloss.NewStyle().Foreground(Muted),
		Invalid: lipgloss.NewStyle().Foreground(Red),
		Long:    lipgloss.NewStyle().Foreground(Green),
		Short:   lipgloss.NewStyle().Foreground(Red),
		Muted:   lipgloss.NewStyle().Foreground(Muted),
		Warning: lipgloss.NewStyle().Foreground(Yellow),
	}
}
