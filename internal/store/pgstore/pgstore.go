// Package pgstore implements store.Store on PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            UUID PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS tasks (
	seq        BIGSERIAL UNIQUE,
	id         UUID PRIMARY KEY,
	owner_id   UUID NOT NULL REFERENCES users(id),
	title      TEXT NOT NULL,
	completed  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tasks_owner_idx ON tasks (owner_id, seq);`

const taskColumns = "id, owner_id, title, completed, created_at"

type Store struct {
	DB *sql.DB
}

// Open connects to dsn and creates the tables when they are missing.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	log.Println("connected to PostgreSQL")
	return &Store{DB: db}, nil
}

func (s *Store) CreateUser(ctx context.Context, u store.User) (store.User, error) {
	u.ID = uuid.NewString()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO users (id, username, password_hash, created_at) VALUES ($1, $2, $3, $4)",
		u.ID, u.Username, u.PasswordHash, u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return store.User{}, apperr.Conflict("username %q is already taken", u.Username)
		}
		return store.User{}, classify("create user", err)
	}
	return u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (store.User, error) {
	var u store.User
	err := s.DB.QueryRowContext(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = $1", username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, apperr.NotFound("user")
	} else if err != nil {
		return store.User{}, classify("find user", err)
	}
	return u, nil
}

func (s *Store) CreateTask(ctx context.Context, t store.Task) (store.Task, error) {
	t.ID = uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx,
		"INSERT INTO tasks (id, owner_id, title, completed, created_at) VALUES ($1, $2, $3, $4, $5)",
		t.ID, t.OwnerID, t.Title, t.Completed, t.CreatedAt)
	if err != nil {
		return store.Task{}, taskInsertError(err)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]store.Task, error) {
	if !validID(ownerID) {
		return []store.Task{}, nil
	}
	rows, err := s.DB.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE owner_id = $1 ORDER BY seq ASC", ownerID)
	if err != nil {
		return nil, classify("list tasks", err)
	}
	defer rows.Close()

	tasks := []store.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, classify("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list tasks", err)
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, ownerID, id string) (store.Task, error) {
	if !validID(ownerID) || !validID(id) {
		return store.Task{}, apperr.NotFound("task")
	}
	row := s.DB.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = $1 AND owner_id = $2", id, ownerID)
	return s.oneTask(row, "get task")
}

func (s *Store) UpdateTaskTitle(ctx context.Context, ownerID, id, title string) (store.Task, error) {
	if !validID(ownerID) || !validID(id) {
		return store.Task{}, apperr.NotFound("task")
	}
	row := s.DB.QueryRowContext(ctx,
		"UPDATE tasks SET title = $1 WHERE id = $2 AND owner_id = $3 RETURNING "+taskColumns,
		title, id, ownerID)
	return s.oneTask(row, "update task")
}

func (s *Store) CompleteTask(ctx context.Context, ownerID, id string) (store.Task, error) {
	if !validID(ownerID) || !validID(id) {
		return store.Task{}, apperr.NotFound("task")
	}
	row := s.DB.QueryRowContext(ctx,
		"UPDATE tasks SET completed = TRUE WHERE id = $1 AND owner_id = $2 RETURNING "+taskColumns,
		id, ownerID)
	return s.oneTask(row, "complete task")
}

func (s *Store) DeleteTask(ctx context.Context, ownerID, id string) error {
	if !validID(ownerID) || !validID(id) {
		return apperr.NotFound("task")
	}
	res, err := s.DB.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return classify("delete task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("delete task", err)
	}
	if n == 0 {
		return apperr.NotFound("task")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return apperr.Unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close(context.Context) error { return s.DB.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (store.Task, error) {
	var t store.Task
	err := r.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Completed, &t.CreatedAt)
	return t, err
}

func (s *Store) oneTask(row *sql.Row, op string) (store.Task, error) {
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Task{}, apperr.NotFound("task")
	} else if err != nil {
		return store.Task{}, classify(op, err)
	}
	return t, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ErrUnknownOwner is returned when a task names an owner the users table does
// not hold, e.g. a still-valid token for a removed account.
var ErrUnknownOwner = &apperr.Error{Kind: apperr.ErrUnauthorized, Msg: "account no longer exists"}

func taskInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return ErrUnknownOwner
	}
	return classify("create task", err)
}

func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Class() == "08" || pqErr.Code.Class() == "57" {
			return apperr.Unavailable(op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return apperr.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
