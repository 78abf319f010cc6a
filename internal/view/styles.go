package view

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ------- styling helpers (Lip Gloss) -------
var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	doneStyle     = lipgloss.NewStyle().Faint(true).Strikethrough(true)

	boxChecked   = "☑"
	boxUnchecked = "☐"
)

func OK(msg string) {
	fmt.Println(successStyle.Render("✔ " + msg))
}

func Fail(msg string) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("✖ "+msg))
}

func Muted(msg string) string { return mutedStyle.Render(msg) }

func panel(inner string) string {
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(0, 1)
	return border.Render(inner)
}

func progressBar(done, total, width int) string {
	if width <= 0 {
		width = 28
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + fmt.Sprintf(" %d/%d", done, total)
}

func header(active, completed, total int) string {
	return fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		titleStyle.Render("Tasks"),
		pendingStyle.Render("•"), active,
		successStyle.Render("✔"), completed,
		accentStyle.Render("Total"), total,
	)
}

func taskLine(t taskRow, selected bool) string {
	box, text := mutedStyle.Render(boxUnchecked), t.task.Title
	if t.task.Completed {
		box, text = successStyle.Render(boxChecked), doneStyle.Render(t.task.Title)
	}
	prefix := "  "
	if selected {
		prefix = selectedStyle.Render("> ")
	}
	return fmt.Sprintf("%s%s %s %s", prefix, mutedStyle.Render(fmt.Sprintf("%2d.", t.index)), box, text)
}
