package render

import (
	"github.com/charmbracelet/glamour"
)

// noMarginStyle removes document margins.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// DefaultWidth is the word wrap used when the terminal width is unknown.
const DefaultWidth = 100

// Markdown renders markdown for the terminal. style is "dark", "light" or
// "notty"; empty means dark. A fixed style avoids querying the terminal.
func Markdown(md string, width int, style string) (string, error) {
	if style == "" {
		style = "dark"
	}
	if width <= 0 {
		width = DefaultWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}
