package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/auth"
	"github.com/dromkey/todolist/internal/store"
	"github.com/dromkey/todolist/internal/tasks"
)

const storeTimeout = 5 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds the services shared by every endpoint.
type Handlers struct {
	Accounts *auth.Accounts
	Tasks    *tasks.Service
	Health   Pinger
}

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type titleReq struct {
	Title *string `json:"title"`
}

type loginResp struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      store.User `json:"user"`
}

// POST /api/auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	user, err := h.Accounts.Register(ctx, req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// POST /api/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	sess, err := h.Accounts.Login(ctx, req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResp{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: sess.User})
}

// GET /api/health
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Health.Ping(ctx); err != nil {
		writeError(w, r, apperr.Unavailable("health", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GET /api/tasks  (only tasks of authenticated user)
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	list, err := h.Tasks.List(ctx, uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/tasks
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	title, err := readTitle(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	task, err := h.Tasks.Create(ctx, uid, title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// GET /api/tasks/{id}
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	task, err := h.Tasks.Get(ctx, uid, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// PUT /api/tasks/{id} changes the title only.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	title, err := readTitle(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	task, err := h.Tasks.UpdateTitle(ctx, uid, mux.Vars(r)["id"], title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// PATCH /api/tasks/{id} marks the task completed. The body is ignored.
func (h *Handlers) CompleteTask(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	task, err := h.Tasks.MarkCompleted(ctx, uid, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DELETE /api/tasks/{id}
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	if err := h.Tasks.Delete(ctx, uid, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireUser guards against a handler being mounted outside the auth gate.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid, ok := UserID(r.Context())
	if !ok {
		unauthorized(w, "not authenticated")
	}
	return uid, ok
}

func readTitle(w http.ResponseWriter, r *http.Request) (string, error) {
	var req titleReq
	if err := decodeJSON(w, r, &req); err != nil {
		return "", err
	}
	if req.Title == nil {
		return "", apperr.Validation("title is required")
	}
	return *req.Title, nil
}
