// Package ui renders CLI output with lipgloss.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#076678", Dark: "#83a598"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#79740e", Dark: "#b8bb26"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#b57614", Dark: "#fabd2f"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#9d0006", Dark: "#fb4934"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#7c6f64", Dark: "#928374"}
	ColorHeader = lipgloss.AdaptiveColor{Light: "#af3a03", Dark: "#fe8019"}
)

var (
	styleAccent = lipgloss.NewStyle().Foreground(ColorAccent)
	stylePass   = lipgloss.NewStyle().Foreground(ColorPass)
	styleWarn   = lipgloss.NewStyle().Foreground(ColorWarn)
	styleFail   = lipgloss.NewStyle().Foreground(ColorFail)
	styleMuted  = lipgloss.NewStyle().Foreground(ColorMuted)
	styleHeader = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	styleBold   = lipgloss.NewStyle().Bold(true)
)

// Init picks the color profile for stdout. Output that is not a terminal,
// or NO_COLOR being set, disables color.
func Init() {
	if !IsTerminal(os.Stdout) || strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func RenderAccent(s string) string { return styleAccent.Render(s) }
func RenderPass(s string) string   { return stylePass.Render(s) }
func RenderWarn(s string) string   { return styleWarn.Render(s) }
func RenderFail(s string) string   { return styleFail.Render(s) }
func RenderMuted(s string) string  { return styleMuted.Render(s) }
func RenderBold(s string) string   { return styleBold.Render(s) }

// Header renders an underlined section title.
func Header(text string) string {
	line := strings.Repeat("─", lipgloss.Width(text))
	return fmt.Sprintf("%s\n%s", styleHeader.Render(text), styleMuted.Render(line))
}

// Checkbox renders a done marker.
func Checkbox(done bool) string {
	if done {
		return stylePass.Render("[x]")
	}
	return styleMuted.Render("[ ]")
}

// Table renders rows in aligned columns under a header line. Cell widths
// are measured without ANSI sequences, so cells may be pre-styled.
func Table(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}
	const gap = 2

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(headers) && i < len(row); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style func(...string) string) {
		for i := range headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if style != nil {
				b.WriteString(style(cell))
			} else {
				b.WriteString(cell)
			}
			if i < len(headers)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+gap))
			}
		}
		b.WriteString("\n")
	}

	writeRow(headers, styleHeader.Render)
	sep := make([]string, len(headers))
	for i, w := range widths {
		sep[i] = strings.Repeat("─", w)
	}
	writeRow(sep, styleMuted.Render)
	for _, row := range rows {
		writeRow(row, nil)
	}
	return b.String()
}
