package ui

import "github.com/charmbracelet/lipgloss"

var (
	ColorAccent = lipgloss.Color("6")
	ColorWarn   = lipgloss.Color("3")
	ColorPass   = lipgloss.Color("2")
	ColorFail   = lipgloss.Color("1")
	ColorMuted  = lipgloss.Color("8")

	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
)

// RenderAccent highlights s in the accent color when color is enabled.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderWarn renders s as a warning.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderPass renders s as a success indicator.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderFail renders s as a failure indicator.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderMuted renders s de-emphasized.
func RenderMuted(s string) string { return render(mutedStyle, s) }

func render(style lipgloss.Style, s string) string {
	if !ShouldUseColor() {
		return s
	}
	return style.Render(s)
}
