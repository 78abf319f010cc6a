package view

import (
	"strings"

	"github.com/dromkey/todolist/internal/client"
)

// RenderLists prints both partitions the way the interactive view does. Rows
// carry their number in the unfiltered ls order, which is what edit, done and
// rm expect.
func RenderLists(all []client.Task, search string) string {
	active, completed := numbered(all, search)

	var b strings.Builder
	b.WriteString(header(len(active), len(completed), len(all)) + "\n")
	b.WriteString(mutedStyle.Render(progressBar(len(completed), len(all), 28)) + "\n\n")

	section := func(name string, rows []taskRow) {
		b.WriteString(accentStyle.Render(name) + "\n")
		if len(rows) == 0 {
			b.WriteString(mutedStyle.Render("  (none)") + "\n")
		}
		for _, r := range rows {
			b.WriteString(taskLine(r, false) + "\n")
		}
	}
	section("Active", active)
	b.WriteString("\n")
	section("Completed", completed)
	return strings.TrimRight(b.String(), "\n")
}

// Pick resolves a 1-based display number to a task.
func Pick(all []client.Task, search string, n int) (client.Task, bool) {
	ordered := Ordered(all, search)
	if n < 1 || n > len(ordered) {
		return client.Task{}, false
	}
	return ordered[n-1], true
}
