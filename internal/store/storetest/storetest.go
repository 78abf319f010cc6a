// Package storetest is a conformance suite run against every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/store"
)

// Run exercises s. Usernames are suffixed with the current time so the suite
// can run against a shared database.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	suffix := fmt.Sprintf("-%d", time.Now().UnixNano())

	newUser := func(t *testing.T, name string) store.User {
		t.Helper()
		u, err := s.CreateUser(context.Background(), store.User{Username: name + suffix, PasswordHash: "hash"})
		if err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
		return u
	}

	t.Run("UserRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		u := newUser(t, "alice")
		got, err := s.UserByUsername(ctx, u.Username)
		if err != nil {
			t.Fatalf("UserByUsername failed: %v", err)
		}
		if got.ID != u.ID || got.PasswordHash != "hash" {
			t.Errorf("unexpected user: %+v", got)
		}
		if _, err := s.CreateUser(ctx, store.User{Username: u.Username, PasswordHash: "x"}); !errors.Is(err, apperr.ErrConflict) {
			t.Errorf("expected ErrConflict on duplicate, got %v", err)
		}
		if _, err := s.UserByUsername(ctx, "missing"+suffix); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TaskLifecycle", func(t *testing.T) {
		ctx := context.Background()
		owner := newUser(t, "owner")
		other := newUser(t, "other")

		first, err := s.CreateTask(ctx, store.Task{OwnerID: owner.ID, Title: "first"})
		if err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
		if _, err := s.CreateTask(ctx, store.Task{OwnerID: owner.ID, Title: "second"}); err != nil {
			t.Fatalf("CreateTask failed: %v", err)
		}
		if first.Completed || first.ID == "" || first.OwnerID != owner.ID {
			t.Errorf("unexpected created task: %+v", first)
		}

		list, err := s.ListTasks(ctx, owner.ID)
		if err != nil {
			t.Fatalf("ListTasks failed: %v", err)
		}
		if len(list) != 2 || list[0].Title != "first" || list[1].Title != "second" {
			t.Fatalf("unexpected list: %+v", list)
		}
		if theirs, err := s.ListTasks(ctx, other.ID); err != nil || len(theirs) != 0 {
			t.Fatalf("other owner sees %d tasks (err %v)", len(theirs), err)
		}

		updated, err := s.UpdateTaskTitle(ctx, owner.ID, first.ID, "renamed")
		if err != nil {
			t.Fatalf("UpdateTaskTitle failed: %v", err)
		}
		if updated.Title != "renamed" || updated.Completed {
			t.Errorf("unexpected updated task: %+v", updated)
		}

		for i := 0; i < 2; i++ {
			done, err := s.CompleteTask(ctx, owner.ID, first.ID)
			if err != nil {
				t.Fatalf("CompleteTask #%d failed: %v", i+1, err)
			}
			if !done.Completed || done.Title != "renamed" {
				t.Errorf("unexpected completed task: %+v", done)
			}
		}

		if _, err := s.UpdateTaskTitle(ctx, other.ID, first.ID, "x"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound for other owner, got %v", err)
		}
		if err := s.DeleteTask(ctx, other.ID, first.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound for other owner, got %v", err)
		}

		if err := s.DeleteTask(ctx, owner.ID, first.ID); err != nil {
			t.Fatalf("DeleteTask failed: %v", err)
		}
		if err := s.DeleteTask(ctx, owner.ID, first.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("second delete: expected ErrNotFound, got %v", err)
		}
		if _, err := s.GetTask(ctx, owner.ID, first.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("GetTask after delete: expected ErrNotFound, got %v", err)
		}
		if _, err := s.CompleteTask(ctx, owner.ID, first.ID); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("CompleteTask after delete: expected ErrNotFound, got %v", err)
		}
	})

	t.Run("MalformedIDIsNotFound", func(t *testing.T) {
		ctx := context.Background()
		owner := newUser(t, "malformed")
		if _, err := s.GetTask(ctx, owner.ID, "not-an-id"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.DeleteTask(ctx, owner.ID, "not-an-id"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
