package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/c360/formflow/health"
)

// styles colors output when it goes to a terminal and stays plain otherwise
type styles struct {
	title     lipgloss.Style
	dim       lipgloss.Style
	healthy   lipgloss.Style
	warning   lipgloss.Style
	condition lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		dim:       r.NewStyle().Foreground(lipgloss.Color("243")),
		healthy:   r.NewStyle().Foreground(lipgloss.Color("46")),
		warning:   r.NewStyle().Foreground(lipgloss.Color("220")),
		condition: r.NewStyle().Foreground(lipgloss.Color("81")),
	}
}

func (s styles) status(status string) string {
	if status == health.StateHealthy {
		return s.healthy.Render(status)
	}
	return s.warning.Render(status)
}
