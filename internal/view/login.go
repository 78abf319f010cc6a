package view

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// LoginForm asks for a username and password. It only collects input; the
// caller decides whether to register or log in with it.
type LoginForm struct {
	title     string
	inputs    [2]textinput.Model
	focus     int
	submitted bool
	err       string
}

func NewLoginForm(title, username string) LoginForm {
	user := textinput.New()
	user.Prompt = "Username: "
	user.CharLimit = 64
	user.SetValue(username)

	pass := textinput.New()
	pass.Prompt = "Password: "
	pass.CharLimit = 72
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	f := LoginForm{title: title, inputs: [2]textinput.Model{user, pass}}
	if username != "" {
		f.focus = 1
	}
	f.inputs[f.focus].Focus()
	return f
}

// Credentials returns what was entered. ok is false when the form was
// cancelled.
func (f LoginForm) Credentials() (username, password string, ok bool) {
	return strings.TrimSpace(f.inputs[0].Value()), f.inputs[1].Value(), f.submitted
}

func (f LoginForm) Init() tea.Cmd { return textinput.Blink }

func (f LoginForm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch k.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return f, tea.Quit
		case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
			return f, f.switchFocus()
		case tea.KeyEnter:
			if f.focus == 0 {
				return f, f.switchFocus()
			}
			user, pass, _ := f.Credentials()
			if user == "" || pass == "" {
				f.err = "Username and password are required"
				return f, nil
			}
			f.submitted = true
			return f, tea.Quit
		}
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f *LoginForm) switchFocus() tea.Cmd {
	f.inputs[f.focus].Blur()
	f.focus = 1 - f.focus
	return f.inputs[f.focus].Focus()
}

func (f LoginForm) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(f.title) + "\n\n")
	b.WriteString(f.inputs[0].View() + "\n")
	b.WriteString(f.inputs[1].View() + "\n\n")
	if f.err != "" {
		b.WriteString(errorStyle.Render(f.err) + "\n")
	}
	b.WriteString(mutedStyle.Render("tab switch • enter submit • esc cancel"))
	return panel(b.String())
}
