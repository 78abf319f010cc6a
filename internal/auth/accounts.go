// Package auth issues and verifies session tokens and owns the
// registration/login flow on top of a credential store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/store"
)

const (
	maxUsernameLen = 64
	maxPasswordLen = 72 // bcrypt ignores anything longer
)

// ErrBadCredentials is returned for an unknown username and for a wrong
// password alike.
var ErrBadCredentials = &apperr.Error{Kind: apperr.ErrUnauthorized, Msg: "invalid username or password"}

// Session is the result of a successful login.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      store.User `json:"user"`
}

type Accounts struct {
	users  store.UserStore
	tokens *TokenService
	cost   int
}

func NewAccounts(users store.UserStore, tokens *TokenService) *Accounts {
	return &Accounts{users: users, tokens: tokens, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (a *Accounts) WithHashCost(cost int) *Accounts {
	a.cost = cost
	return a
}

func (a *Accounts) Register(ctx context.Context, username, password string) (store.User, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return store.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	return a.users.CreateUser(ctx, store.User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	})
}

func (a *Accounts) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, apperr.Validation("username and password are required")
	}

	user, err := a.users.UserByUsername(ctx, username)
	if errors.Is(err, apperr.ErrNotFound) {
		return Session{}, ErrBadCredentials
	} else if err != nil {
		return Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrBadCredentials
	}

	token, expires, err := a.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}

func validateCredentials(username, password string) error {
	switch {
	case username == "":
		return apperr.Validation("username is required")
	case utf8.RuneCountInString(username) > maxUsernameLen:
		return apperr.Validation("username must be at most %d characters", maxUsernameLen)
	case password == "":
		return apperr.Validation("password is required")
	case len(password) > maxPasswordLen:
		return apperr.Validation("password must be at most %d bytes", maxPasswordLen)
	}
	return nil
}
