package headless

import "github.com/charmbracelet/lipgloss"

// Theme holds the styles used for everything written to stderr.
type Theme struct {
	ToolLabel  lipgloss.Style
	ToolResult lipgloss.Style
	Status     lipgloss.Style
	Error      lipgloss.Style
}

var (
	Green     = lipgloss.Color("#00FF41")
	MedGreen  = lipgloss.Color("#00C832")
	DarkGreen = lipgloss.Color("#008F11")
	MidGray   = lipgloss.Color("#3a3a4e")
	Red       = lipgloss.Color("#FF4136")
)

// ThemeFor returns the named theme. "plain" disables styling; anything
// else gets the green palette.
func ThemeFor(name string) Theme {
	if name == "plain" {
		return Theme{}
	}
	return Theme{
		ToolLabel: lipgloss.NewStyle().
			Foreground(MedGreen).
			Bold(true),
		ToolResult: lipgloss.NewStyle().
			Foreground(MidGray),
		Status: lipgloss.NewStyle().
			Foreground(DarkGreen).
			Italic(true),
		Error: lipgloss.NewStyle().
			Foreground(Red).
			Bold(true),
	}
}
