// Package store holds the persisted records and the contracts every storage
// backend implements.
package store

import (
	"context"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never sent to clients
	CreatedAt    time.Time `json:"createdAt"`
}

type Task struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserStore persists credentials. CreateUser returns apperr.ErrConflict when
// the username is taken and UserByUsername returns apperr.ErrNotFound when it
// is not.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
}

// TaskStore persists tasks. Every method that takes an id also takes the
// owner, and a task owned by someone else is reported as apperr.ErrNotFound.
type TaskStore interface {
	CreateTask(ctx context.Context, t Task) (Task, error)
	// ListTasks returns the owner's tasks in insertion order.
	ListTasks(ctx context.Context, ownerID string) ([]Task, error)
	GetTask(ctx context.Context, ownerID, id string) (Task, error)
	UpdateTaskTitle(ctx context.Context, ownerID, id, title string) (Task, error)
	CompleteTask(ctx context.Context, ownerID, id string) (Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error
}

type Store interface {
	UserStore
	TaskStore
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
