package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dromkey/todolist/internal/api"
	"github.com/dromkey/todolist/internal/auth"
	"github.com/dromkey/todolist/internal/config"
	"github.com/dromkey/todolist/internal/database"
	"github.com/dromkey/todolist/internal/tasks"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := database.Open(ctx, cfg.DatabaseURL, cfg.DBName)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Printf("store close: %v", err)
		}
	}()

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	h := &api.Handlers{
		Accounts: auth.NewAccounts(st, tokens),
		Tasks:    tasks.NewService(st),
		Health:   st,
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(h, api.Options{Tokens: tokens, CORSOrigins: cfg.CORSOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("server running on %s (token ttl %s)", srv.Addr, cfg.TokenTTL)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: %v", err)
		}
	case <-ctx.Done():
		log.Println("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}
