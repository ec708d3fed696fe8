package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// formatError returns a styled error with an optional hint line.
func formatError(title, detail, hint string) string {
	out := errorStyle.Render("Error: "+title) + "\n"
	if detail != "" {
		out += "  " + detail + "\n"
	}
	if hint != "" {
		out += "  " + hintStyle.Render("Hint: "+hint) + "\n"
	}
	return out
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successStyle.Render(fmt.Sprintf(format, args...)))
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, warnStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

func heading(w io.Writer, s string) {
	fmt.Fprintln(w, boldStyle.Render(s))
}

// row prints one indented "label  value  detail" line.
func row(w io.Writer, label, value, detail string) {
	line := fmt.Sprintf("  %-24s %s", label, value)
	if detail != "" {
		line += " " + dimStyle.Render(detail)
	}
	fmt.Fprintln(w, line)
}
