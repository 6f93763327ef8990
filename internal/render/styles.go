// Package render formats run reports, run history and the daily brief for
// the terminal with Lip Gloss and Glamour.
package render

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	TextPrimaryColor   = lipgloss.AdaptiveColor{Light: "#333333", Dark: "#CCCCCC"}
	TextMutedColor     = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#696969"}
	AccentColor        = lipgloss.AdaptiveColor{Light: "#1A5276", Dark: "#3498DB"}
	StatusSuccessColor = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	StatusWarningColor = lipgloss.AdaptiveColor{Light: "#C48A00", Dark: "#FECA57"}
	StatusErrorColor   = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
)

var (
	TitleStyle = lipgloss.NewStyle().Foreground(AccentColor).Bold(true)
	LabelStyle = lipgloss.NewStyle().Foreground(TextMutedColor).Width(12)
	ValueStyle = lipgloss.NewStyle().Foreground(TextPrimaryColor)
	MutedStyle = lipgloss.NewStyle().Foreground(TextMutedColor)
	OKStyle    = lipgloss.NewStyle().Foreground(StatusSuccessColor).Bold(true)
	WarnStyle  = lipgloss.NewStyle().Foreground(StatusWarningColor).Bold(true)
	ErrorStyle = lipgloss.NewStyle().Foreground(StatusErrorColor).Bold(true)

	HeaderStyle = lipgloss.NewStyle().Foreground(TextMutedColor).Bold(true).Underline(true)
)
