package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dromkey/todolist/internal/apperr"
)

// Verification failures. Callers reject all of them the same way; they are
// distinct so logs and tests can tell them apart.
var (
	ErrMalformed        = &apperr.Error{Kind: apperr.ErrUnauthorized, Msg: "malformed token"}
	ErrInvalidSignature = &apperr.Error{Kind: apperr.ErrUnauthorized, Msg: "invalid token signature"}
	ErrExpired          = &apperr.Error{Kind: apperr.ErrUnauthorized, Msg: "token expired"}
)

// Claims is the payload of every session token.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	return &TokenService{secret: secret, ttl: ttl, now: time.Now}
}

// WithClock returns a copy of ts that reads the time from now.
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *ts
	cp.now = now
	return &cp
}

func (ts *TokenService) TTL() time.Duration { return ts.ttl }

func (ts *TokenService) Issue(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("issue token: empty user id")
	}
	issued := ts.now()
	expires := issued.Add(ts.ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	// NumericDate has second precision; report what the token actually says.
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks the signature and expiry of tokenString and returns the user
// id it was issued for.
func (ts *TokenService) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return ts.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "", ErrInvalidSignature
	default:
		return "", ErrMalformed
	}
	if claims.UserID == "" {
		return "", ErrMalformed
	}
	return claims.UserID, nil
}
