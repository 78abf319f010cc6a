// Package cli dispatches the client subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/client"
	"github.com/dromkey/todolist/internal/view"
)

const DefaultAPI = "http://localhost:5000/api"

// PromptFunc asks for credentials. ok is false when the user cancelled.
type PromptFunc func(title, username string) (user, pass string, ok bool, err error)

// Options carry root flags and the pieces tests replace.
type Options struct {
	API    string
	Tokens client.TokenFile
	Prompt PromptFunc
}

func (o Options) prompt() PromptFunc {
	if o.Prompt != nil {
		return o.Prompt
	}
	return formPrompt
}

// Run dispatches subcommands and returns an exit code (0 ok, 1 error, 2 usage).
func Run(args []string, opt Options) int {
	if opt.API == "" {
		opt.API = DefaultAPI
	}
	if len(args) == 0 {
		return doUI(opt)
	}
	cmd, a := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		PrintHelp()
		return 0

	case "register":
		return doRegister(opt, strings.Join(a, " "))

	case "login":
		return doLogin(opt, strings.Join(a, " "))

	case "logout":
		return doLogout(opt)

	case "status":
		return doStatus(opt)

	case "ui":
		return doUI(opt)

	case "ls":
		return doList(opt, strings.Join(a, " "))

	case "add":
		if len(a) == 0 {
			view.Fail("usage: todolist add <title...>")
			return 2
		}
		return doAdd(opt, strings.Join(a, " "))

	case "edit":
		if len(a) < 2 {
			view.Fail("usage: todolist edit <index> <title...>")
			return 2
		}
		n, ok := index("edit", a[0])
		if !ok {
			return 2
		}
		return doEdit(opt, n, strings.Join(a[1:], " "))

	case "done", "rm":
		if len(a) != 1 {
			view.Fail("usage: todolist " + cmd + " <index>")
			return 2
		}
		n, ok := index(cmd, a[0])
		if !ok {
			return 2
		}
		if cmd == "done" {
			return doComplete(opt, n)
		}
		return doRemove(opt, n)
	}

	view.Fail("unknown subcommand: " + cmd)
	fmt.Fprintln(os.Stderr)
	PrintHelp()
	return 2
}

func PrintHelp() {
	fmt.Printf(`todolist - personal task list

Usage:
  todolist [-api URL] <subcommand> [args]

Subcommands:
  register [user]          Create an account
  login [user]             Log in and store the session token
  logout                   Forget the stored token
  status                   Show the stored session
  ui                       Interactive view (default)
  ls [search]              List active and completed tasks
  add <title...>           Add a task
  edit <index> <title...>  Rename the task at the 1-based index
  done <index>             Mark the task at the index completed
  rm <index>               Delete the task at the index

Indexes are the numbers ls prints: active tasks first, then completed ones.
A filtered ls keeps each task's unfiltered number.
The token can also be supplied in %s.
`, client.TokenEnv)
}

func index(cmd, s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		view.Fail(cmd + ": not a number: " + s)
		return 0, false
	}
	return n, true
}

func timeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// -------------- account subcommands ----------------

func doRegister(opt Options, username string) int {
	user, pass, ok, err := opt.prompt()("Create account", username)
	if err != nil {
		view.Fail("prompt: " + err.Error())
		return 1
	}
	if !ok {
		return 1
	}
	c := client.New(opt.API)
	ctx, cancel := timeout()
	defer cancel()
	if _, err := c.Register(ctx, user, pass); err != nil {
		view.Fail("register: " + err.Error())
		return 1
	}
	view.OK("registered " + user)
	return login(opt, c, user, pass)
}

func doLogin(opt Options, username string) int {
	user, pass, ok, err := opt.prompt()("Log in", username)
	if err != nil {
		view.Fail("prompt: " + err.Error())
		return 1
	}
	if !ok {
		return 1
	}
	return login(opt, client.New(opt.API), user, pass)
}

func login(opt Options, c *client.Client, user, pass string) int {
	ctx, cancel := timeout()
	defer cancel()
	res, err := c.Login(ctx, user, pass)
	if err != nil {
		view.Fail("login: " + err.Error())
		return 1
	}
	exp := res.ExpiresAt
	if err := opt.Tokens.Save(res.Token, res.User.Username, &exp); err != nil {
		view.Fail("save token: " + err.Error())
		return 1
	}
	view.OK("logged in as " + res.User.Username)
	return 0
}

func doLogout(opt Options) int {
	ti, _ := opt.Tokens.Load()
	if ti != nil && ti.Source == "env" {
		view.OK("token is provided by " + client.TokenEnv + " (nothing to delete)")
		return 0
	}
	if err := opt.Tokens.Delete(); err != nil {
		view.Fail("logout: " + err.Error())
		return 1
	}
	view.OK("logged out")
	return 0
}

func doStatus(opt Options) int {
	ti, err := opt.Tokens.Load()
	if err != nil {
		view.Fail(err.Error())
		return 1
	}
	if ti == nil {
		fmt.Println(view.Muted("not logged in"))
		fmt.Println("Run: todolist login")
		return 0
	}
	if ti.Username != "" {
		fmt.Printf("user: %s\n", ti.Username)
	}
	fmt.Printf("source: %s\n", ti.Source)
	switch {
	case ti.ExpiresAt == nil:
		fmt.Println("expires: (unknown)")
	case ti.Expired(time.Now()):
		fmt.Printf("expired: %s\n", ti.ExpiresAt.UTC().Format(time.RFC3339))
	default:
		fmt.Printf("expires: %s\n", ti.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return 0
}

// ensureAuth returns a client carrying the stored token.
func ensureAuth(opt Options) (*client.Client, *client.TokenInfo, int) {
	ti, err := opt.Tokens.Load()
	if err != nil {
		view.Fail(err.Error())
		return nil, nil, 1
	}
	if ti == nil {
		view.Fail("not logged in. Run: todolist login")
		return nil, nil, 1
	}
	if ti.Expired(time.Now()) {
		_ = opt.Tokens.Delete()
		view.Fail("session expired. Run: todolist login")
		return nil, nil, 1
	}
	c := client.New(opt.API)
	c.SetToken(ti.Token)
	return c, ti, 0
}

// failRequest reports err and forgets the token when the server rejected it.
func failRequest(opt Options, what string, err error) int {
	if errors.Is(err, apperr.ErrUnauthorized) {
		_ = opt.Tokens.Delete()
		view.Fail("session is no longer valid. Run: todolist login")
		return 1
	}
	view.Fail(what + ": " + err.Error())
	return 1
}

// -------------- task subcommands ----------------

func doUI(opt Options) int {
	c, ti, code := ensureAuth(opt)
	if c == nil {
		return code
	}
	s := &view.Session{API: c, Tokens: opt.Tokens, Username: ti.Username}
	final, err := tea.NewProgram(view.New(s), tea.WithAltScreen()).Run()
	if err != nil {
		view.Fail("ui: " + err.Error())
		return 1
	}
	if m, ok := final.(view.Model); ok && m.LoggedOut() {
		view.Fail("session is no longer valid. Run: todolist login")
		return 1
	}
	return 0
}

func doList(opt Options, search string) int {
	c, _, code := ensureAuth(opt)
	if c == nil {
		return code
	}
	ctx, cancel := timeout()
	defer cancel()
	list, err := c.ListTasks(ctx)
	if err != nil {
		return failRequest(opt, "list", err)
	}
	fmt.Println(view.RenderLists(list, search))
	return 0
}

func doAdd(opt Options, title string) int {
	title = strings.TrimSpace(title)
	if title == "" {
		view.Fail("add: empty title")
		return 2
	}
	c, _, code := ensureAuth(opt)
	if c == nil {
		return code
	}
	ctx, cancel := timeout()
	defer cancel()
	if _, err := c.CreateTask(ctx, title); err != nil {
		return failRequest(opt, "add", err)
	}
	view.OK("added")
	return 0
}

// pick resolves a 1-based index against the unfiltered ls order.
func pick(ctx context.Context, opt Options, c *client.Client, n int) (client.Task, int) {
	list, err := c.ListTasks(ctx)
	if err != nil {
		return client.Task{}, failRequest(opt, "list", err)
	}
	t, ok := view.Pick(list, "", n)
	if !ok {
		view.Fail(fmt.Sprintf("index out of range: have %d, got %d", len(list), n))
		fmt.Fprintln(os.Stderr, view.Muted("Hint: run `todolist ls` to see valid indexes"))
		return client.Task{}, 2
	}
	return t, 0
}

func doEdit(opt Options, n int, title string) int {
	title = strings.TrimSpace(title)
	if title == "" {
		view.Fail("edit: empty title")
		return 2
	}
	c, _, code := ensureAuth(opt)
	if c == nil {
		return code
	}
	ctx, cancel := timeout()
	defer cancel()
	t, code := pick(ctx, opt, c, n)
	if code != 0 {
		return code
	}
	if _, err := c.UpdateTitle(ctx, t.ID, title); err != nil {
		return failRequest(opt, "edit", err)
	}
	view.OK("updated")
	return 0
}

func doComplete(opt Options, n int) int {
	c, _, code := ensureAuth(opt)
	if c == nil {
		return code
	}
	ctx, cancel := timeout()
	defer cancel()
	t, code := pick(ctx, opt, c, n)
	if code != 0 {
		return code
	}
	if t.Completed {
		view.OK("already completed")
		return 0
	}
	if _, err := c.CompleteTask(ctx, t.ID); err != nil {
		return failRequest(opt, "done", err)
	}
	view.OK("completed")
	return 0
}

func doRemove(opt Options, n int) int {
	c, _, code := ensureAuth(opt)
	if c == nil {
		return code
	}
	ctx, cancel := timeout()
	defer cancel()
	t, code := pick(ctx, opt, c, n)
	if code != 0 {
		return code
	}
	if err := c.DeleteTask(ctx, t.ID); err != nil {
		return failRequest(opt, "rm", err)
	}
	view.OK("removed")
	return 0
}

// formPrompt shows the login form on the terminal.
func formPrompt(title, username string) (string, string, bool, error) {
	final, err := tea.NewProgram(view.NewLoginForm(title, username)).Run()
	if err != nil {
		return "", "", false, err
	}
	f, ok := final.(view.LoginForm)
	if !ok {
		return "", "", false, nil
	}
	user, pass, submitted := f.Credentials()
	return user, pass, submitted, nil
}
