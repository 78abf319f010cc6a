// Package api is the JSON HTTP surface: routing, CORS, the auth gate and the
// mapping from error kinds to status codes.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

type Options struct {
	Tokens      TokenVerifier
	CORSOrigins []string
}

// NewRouter mounts every endpoint under /api.
func NewRouter(h *Handlers, opt Options) http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	api := r.PathPrefix("/api").Subrouter()

	// public endpoints
	api.HandleFunc("/health", h.Check).Methods(http.MethodGet)
	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	// protected routes
	private := api.NewRoute().Subrouter()
	private.Use(AuthGate(opt.Tokens))
	private.HandleFunc("/tasks", h.ListTasks).Methods(http.MethodGet)
	private.HandleFunc("/tasks", h.CreateTask).Methods(http.MethodPost)
	private.HandleFunc("/tasks/{id}", h.GetTask).Methods(http.MethodGet)
	private.HandleFunc("/tasks/{id}", h.UpdateTask).Methods(http.MethodPut)
	private.HandleFunc("/tasks/{id}", h.CompleteTask).Methods(http.MethodPatch)
	private.HandleFunc("/tasks/{id}", h.DeleteTask).Methods(http.MethodDelete)

	c := cors.New(cors.Options{
		AllowedOrigins: opt.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
