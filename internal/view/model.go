package view

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dromkey/todolist/internal/client"
)

const requestTimeout = 10 * time.Second

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeEdit
	modeSearch
)

type (
	tasksMsg   struct{ tasks []client.Task }
	mutatedMsg struct{ note string }
)

type errMsg struct {
	err      error
	mutation bool // failed write; the list is refetched
}

type taskRow struct {
	index int // 1-based, as shown
	task  client.Task
}

type keyMap struct {
	Up, Down, Add, Edit, Complete, Delete, Search, Refresh, Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Add, k.Edit, k.Complete, k.Delete, k.Search, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Add, k.Edit, k.Complete, k.Delete},
		{k.Search, k.Refresh, k.Quit},
	}
}

func defaultKeys() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Add:      key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add")),
		Edit:     key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit")),
		Complete: key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "complete")),
		Delete:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Model is the interactive task list. Its state is ephemeral: the draft in
// the input, the task being edited, the search term and the loading flag.
// The task list itself always comes from the server.
type Model struct {
	session *Session

	tasks     []client.Task
	active    []taskRow
	completed []taskRow
	cursor    int

	mode    mode
	input   textinput.Model
	search  string
	editID  string
	loading bool
	status  string
	failed  bool

	loggedOut bool

	spinner spinner.Model
	keys    keyMap
	help    help.Model
	width   int
}

func New(s *Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		session: s,
		input:   ti,
		spinner: sp,
		keys:    defaultKeys(),
		help:    help.New(),
		loading: true,
		width:   80,
	}
}

// LoggedOut reports whether the model quit because the server rejected the
// session.
func (m Model) LoggedOut() bool { return m.loggedOut }

func (m Model) Search() string { return m.search }

func (m Model) Loading() bool { return m.loading }

func (m Model) Status() string { return m.status }

// Visible returns the tasks currently shown, active first.
func (m Model) Visible() (active, completed []client.Task) {
	for _, r := range m.active {
		active = append(active, r.task)
	}
	for _, r := range m.completed {
		completed = append(completed, r.task)
	}
	return active, completed
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.spinner.Tick)
}

func (m Model) fetch() tea.Cmd {
	api := m.session.API
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		list, err := api.ListTasks(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return tasksMsg{list}
	}
}

// mutate runs op and asks for a full refetch afterwards; the view never
// patches its local list.
func (m Model) mutate(note string, op func(ctx context.Context, api TaskAPI) error) tea.Cmd {
	api := m.session.API
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := op(ctx, api); err != nil {
			return errMsg{err: err, mutation: true}
		}
		return mutatedMsg{note}
	}
}

func (m *Model) startLoading(cmd tea.Cmd) tea.Cmd {
	m.loading = true
	return tea.Batch(cmd, m.spinner.Tick)
}

func (m *Model) repartition() {
	m.active, m.completed = numbered(m.tasks, m.search)
	n := m.rows()
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) rows() int { return len(m.active) + len(m.completed) }

func (m Model) selected() (client.Task, bool) {
	switch {
	case m.cursor < len(m.active):
		return m.active[m.cursor].task, true
	case m.cursor < m.rows():
		return m.completed[m.cursor-len(m.active)].task, true
	}
	return client.Task{}, false
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tasksMsg:
		m.loading = false
		m.tasks = msg.tasks
		m.repartition()
		return m, nil

	case mutatedMsg:
		m.status, m.failed = msg.note, false
		return m, m.startLoading(m.fetch())

	case errMsg:
		m.loading = false
		if IsUnauthorized(msg.err) {
			_ = m.session.Logout()
			m.loggedOut = true
			return m, tea.Quit
		}
		m.status, m.failed = msg.err.Error(), true
		if msg.mutation {
			// the list may have changed underneath us, e.g. a task deleted elsewhere
			return m, m.startLoading(m.fetch())
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeAdd, modeEdit:
			return m.updateInput(msg)
		case modeSearch:
			return m.updateSearch(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.rows()-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		m.input.Placeholder = "Search active tasks..."
		m.input.SetValue(m.search)
		m.input.CursorEnd()
		return m, m.input.Focus()
	case msg.Type == tea.KeyEsc && m.search != "":
		m.search = ""
		m.repartition()
	}

	// everything below talks to the server; one request at a time
	if m.loading {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Refresh):
		m.status = ""
		return m, m.startLoading(m.fetch())
	case key.Matches(msg, m.keys.Add):
		m.mode = modeAdd
		m.status = ""
		m.input.Placeholder = "New task title..."
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Edit):
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.mode = modeEdit
		m.editID = t.ID
		m.status = ""
		m.input.Placeholder = "Edit task title..."
		m.input.SetValue(t.Title)
		m.input.CursorEnd()
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Complete):
		t, ok := m.selected()
		if !ok || t.Completed {
			return m, nil
		}
		id := t.ID
		return m, m.startLoading(m.mutate("completed", func(ctx context.Context, api TaskAPI) error {
			_, err := api.CompleteTask(ctx, id)
			return err
		}))
	case key.Matches(msg, m.keys.Delete):
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		id := t.ID
		return m, m.startLoading(m.mutate("deleted", func(ctx context.Context, api TaskAPI) error {
			return api.DeleteTask(ctx, id)
		}))
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.leaveInput()
		return m, nil
	case tea.KeyEnter:
		title := strings.TrimSpace(m.input.Value())
		if title == "" {
			m.status, m.failed = "Title cannot be empty", true
			return m, nil
		}
		adding, id := m.mode == modeAdd, m.editID
		m.leaveInput()
		if adding {
			return m, m.startLoading(m.mutate("added", func(ctx context.Context, api TaskAPI) error {
				_, err := api.CreateTask(ctx, title)
				return err
			}))
		}
		return m, m.startLoading(m.mutate("updated", func(ctx context.Context, api TaskAPI) error {
			_, err := api.UpdateTitle(ctx, id, title)
			return err
		}))
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.search = ""
		m.leaveInput()
		m.repartition()
		return m, nil
	case tea.KeyEnter:
		m.leaveInput()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.search = m.input.Value()
	m.repartition()
	return m, cmd
}

func (m *Model) leaveInput() {
	m.mode = modeBrowse
	m.editID = ""
	m.input.SetValue("")
	m.input.Blur()
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(header(len(m.active), len(m.completed), len(m.tasks)))
	if m.loading {
		b.WriteString("  " + m.spinner.View())
	}
	b.WriteString("\n")
	done := 0
	for _, t := range m.tasks {
		if t.Completed {
			done++
		}
	}
	b.WriteString(mutedStyle.Render(progressBar(done, len(m.tasks), 28)) + "\n")
	if m.search != "" && m.mode != modeSearch {
		b.WriteString(accentStyle.Render("/ "+m.search) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(accentStyle.Render("Active") + "\n")
	if len(m.active) == 0 {
		b.WriteString(mutedStyle.Render("  (none)") + "\n")
	}
	for i, r := range m.active {
		b.WriteString(taskLine(r, i == m.cursor && m.mode == modeBrowse) + "\n")
	}
	b.WriteString("\n" + accentStyle.Render("Completed") + "\n")
	if len(m.completed) == 0 {
		b.WriteString(mutedStyle.Render("  (none)") + "\n")
	}
	for i, r := range m.completed {
		b.WriteString(taskLine(r, len(m.active)+i == m.cursor && m.mode == modeBrowse) + "\n")
	}

	if m.mode != modeBrowse {
		label := map[mode]string{modeAdd: "Add task", modeEdit: "Edit task", modeSearch: "Search"}[m.mode]
		bar := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
		b.WriteString(bar.Render(label+"\n"+m.input.View()) + "\n")
	}

	if m.status != "" {
		style := successStyle
		if m.failed {
			style = errorStyle
		}
		b.WriteString(style.Render(m.status) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return panel(b.String())
}
