// Package tasks is the task lifecycle: every operation is scoped to the owner
// resolved by the auth gate, and the ownership check itself lives in the
// store filter.
package tasks

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/store"
)

const MaxTitleLen = 500

type Service struct {
	store store.TaskStore
	now   func() time.Time
}

func NewService(s store.TaskStore) *Service {
	return &Service{store: s, now: time.Now}
}

func (s *Service) Create(ctx context.Context, owner, title string) (store.Task, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return store.Task{}, err
	}
	return s.store.CreateTask(ctx, store.Task{
		OwnerID:   owner,
		Title:     title,
		Completed: false,
		CreatedAt: s.now().UTC(),
	})
}

func (s *Service) List(ctx context.Context, owner string) ([]store.Task, error) {
	tasks, err := s.store.ListTasks(ctx, owner)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []store.Task{}
	}
	return tasks, nil
}

func (s *Service) Get(ctx context.Context, owner, id string) (store.Task, error) {
	return s.store.GetTask(ctx, owner, id)
}

func (s *Service) UpdateTitle(ctx context.Context, owner, id, title string) (store.Task, error) {
	title, err := cleanTitle(title)
	if err != nil {
		return store.Task{}, err
	}
	return s.store.UpdateTaskTitle(ctx, owner, id, title)
}

// MarkCompleted is idempotent. There is no way back to active.
func (s *Service) MarkCompleted(ctx context.Context, owner, id string) (store.Task, error) {
	return s.store.CompleteTask(ctx, owner, id)
}

func (s *Service) Delete(ctx context.Context, owner, id string) error {
	return s.store.DeleteTask(ctx, owner, id)
}

func cleanTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperr.Validation("title must not be empty")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return "", apperr.Validation("title must be at most %d characters", MaxTitleLen)
	}
	return title, nil
}
