package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E87400"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5f6368")).Width(10)
	valueStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00635D"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D93025"))
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#1a73e8"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).BorderForeground(lipgloss.Color("#E87400"))
)

// Blank prints an empty line, matching the spacing serve.go's RunE uses
// around the startup banner.
func Blank() { fmt.Println() }

// Header prints a boxed title, icon unused for now but kept so call sites
// can label multiple sections consistently.
func Header(icon, title string) {
	fmt.Println(boxStyle.Render(titleStyle.Render(title)))
}

// Summary prints aligned label/value pairs from alternating args.
func Summary(kv ...string) {
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Printf("  %s %s\n", labelStyle.Render(kv[i]), valueStyle.Render(kv[i+1]))
	}
}

// Step prints a single in-progress line.
func Step(icon, msg string) {
	fmt.Println(stepStyle.Render("→"), msg)
}

// Success prints a completion line to stdout.
func Success(msg string) {
	fmt.Println(successStyle.Render("✓"), msg)
}

// Error prints a failure line to stderr.
func Error(msg string) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("✗"), msg)
}

// modeString renders an enabled/disabled label for boolean flags the
// startup Summary displays.
func modeString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
