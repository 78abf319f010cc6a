// Package memstore is an in-process store. It backs the tests and the
// memory:// connection string.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/store"
)

type Store struct {
	mu      sync.RWMutex
	users   map[string]store.User // by username
	tasks   map[string]*entry
	nextSeq uint64
}

type entry struct {
	seq  uint64
	task store.Task
}

func New() *Store {
	return &Store{
		users: make(map[string]store.User),
		tasks: make(map[string]*entry),
	}
}

func (s *Store) CreateUser(ctx context.Context, u store.User) (store.User, error) {
	if err := ctx.Err(); err != nil {
		return store.User{}, apperr.Unavailable("create user", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Username]; ok {
		return store.User{}, apperr.Conflict("username %q is already taken", u.Username)
	}
	u.ID = uuid.NewString()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.Username] = u
	return u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (store.User, error) {
	if err := ctx.Err(); err != nil {
		return store.User{}, apperr.Unavailable("find user", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return store.User{}, apperr.NotFound("user")
	}
	return u, nil
}

func (s *Store) CreateTask(ctx context.Context, t store.Task) (store.Task, error) {
	if err := ctx.Err(); err != nil {
		return store.Task{}, apperr.Unavailable("create task", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.nextSeq++
	s.tasks[t.ID] = &entry{seq: s.nextSeq, task: t}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]store.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Unavailable("list tasks", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	owned := make([]*entry, 0)
	for _, e := range s.tasks {
		if e.task.OwnerID == ownerID {
			owned = append(owned, e)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].seq < owned[j].seq })

	out := make([]store.Task, len(owned))
	for i, e := range owned {
		out[i] = e.task
	}
	return out, nil
}

func (s *Store) GetTask(ctx context.Context, ownerID, id string) (store.Task, error) {
	if err := ctx.Err(); err != nil {
		return store.Task{}, apperr.Unavailable("get task", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.owned(ownerID, id)
	if !ok {
		return store.Task{}, apperr.NotFound("task")
	}
	return e.task, nil
}

func (s *Store) UpdateTaskTitle(ctx context.Context, ownerID, id, title string) (store.Task, error) {
	return s.mutate(ctx, "update task", ownerID, id, func(t *store.Task) { t.Title = title })
}

func (s *Store) CompleteTask(ctx context.Context, ownerID, id string) (store.Task, error) {
	return s.mutate(ctx, "complete task", ownerID, id, func(t *store.Task) { t.Completed = true })
}

func (s *Store) DeleteTask(ctx context.Context, ownerID, id string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Unavailable("delete task", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owned(ownerID, id); !ok {
		return apperr.NotFound("task")
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close(context.Context) error { return nil }

// mutate applies fn under the write lock, so a concurrent delete either
// happens before (and fn sees nothing) or after (and removes the result).
func (s *Store) mutate(ctx context.Context, op, ownerID, id string, fn func(*store.Task)) (store.Task, error) {
	if err := ctx.Err(); err != nil {
		return store.Task{}, apperr.Unavailable(op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.owned(ownerID, id)
	if !ok {
		return store.Task{}, apperr.NotFound("task")
	}
	fn(&e.task)
	return e.task, nil
}

// owned must be called with s.mu held.
func (s *Store) owned(ownerID, id string) (*entry, bool) {
	e, ok := s.tasks[id]
	if !ok || e.task.OwnerID != ownerID {
		return nil, false
	}
	return e, true
}
