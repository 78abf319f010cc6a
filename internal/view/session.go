// Package view is the terminal task view: it renders the active and
// completed partitions and drives every change through the HTTP API.
package view

import (
	"context"
	"errors"
	"strings"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/client"
)

// TaskAPI is the part of *client.Client the view depends on.
type TaskAPI interface {
	ListTasks(ctx context.Context) ([]client.Task, error)
	CreateTask(ctx context.Context, title string) (client.Task, error)
	UpdateTitle(ctx context.Context, id, title string) (client.Task, error)
	CompleteTask(ctx context.Context, id string) (client.Task, error)
	DeleteTask(ctx context.Context, id string) error
	SetToken(token string)
}

type TokenStore interface {
	Delete() error
}

// Session is everything the view needs to act on behalf of the user. It is
// passed in explicitly; the view keeps no package-level state.
type Session struct {
	API      TaskAPI
	Tokens   TokenStore
	Username string
}

// Logout drops the token both in memory and on disk.
func (s *Session) Logout() error {
	s.API.SetToken("")
	if s.Tokens == nil {
		return nil
	}
	return s.Tokens.Delete()
}

// IsUnauthorized reports whether err means the session is no longer valid.
func IsUnauthorized(err error) bool {
	return errors.Is(err, apperr.ErrUnauthorized)
}

// Partition splits tasks for display. Active tasks are filtered by a
// case-insensitive substring match on search; completed tasks never are.
// Input order is preserved in both halves.
func Partition(all []client.Task, search string) (active, completed []client.Task) {
	needle := strings.ToLower(strings.TrimSpace(search))
	for _, t := range all {
		if t.Completed {
			completed = append(completed, t)
			continue
		}
		if needle == "" || strings.Contains(strings.ToLower(t.Title), needle) {
			active = append(active, t)
		}
	}
	return active, completed
}

// Ordered is the display order used for numbering: active, then completed.
func Ordered(all []client.Task, search string) []client.Task {
	active, completed := Partition(all, search)
	return append(active, completed...)
}

// numbered partitions all for display and numbers every row by its position
// in Ordered(all, ""), so a number read off a filtered list still resolves
// through Pick with an empty search.
func numbered(all []client.Task, search string) (active, completed []taskRow) {
	pos := make(map[string]int, len(all))
	for i, t := range Ordered(all, "") {
		pos[t.ID] = i + 1
	}
	act, done := Partition(all, search)
	for _, t := range act {
		active = append(active, taskRow{index: pos[t.ID], task: t})
	}
	for _, t := range done {
		completed = append(completed, taskRow{index: pos[t.ID], task: t})
	}
	return active, completed
}
