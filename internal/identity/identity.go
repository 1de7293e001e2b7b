// Package identity resolves the authenticated job board user for a request.
//
// The job board issues HS256 tokens whose claims carry the numeric user id
// in "sub", the account type in "role" and a display name in "username".
// The middleware verifies the token and mirrors the user into the store so
// that conversations can reference it.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/jobchat/internal/domain"
	"github.com/ashureev/jobchat/internal/shared"
	"github.com/ashureev/jobchat/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

// TokenQueryParam carries the token for clients that cannot set headers (websockets).
const TokenQueryParam = "token"

var (
	ErrTokenMissing = errors.New("missing token")
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

type contextKey int

const userKey contextKey = iota

// Claims are the identity claims issued by the job board.
type Claims struct {
	Role     domain.Role `json:"role"`
	Username string      `json:"username"`
	jwt.RegisteredClaims
}

// Verifier validates and issues identity tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the given HMAC secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign issues a token for user. A non-positive ttl produces a token without expiry.
func (v *Verifier) Sign(user *domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role:     user.Role,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(user.ID, 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Parse verifies tokenString and returns the user it identifies.
func (v *Verifier) Parse(tokenString string) (*domain.User, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: subject %q is not a user id", ErrTokenInvalid, claims.Subject)
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	username := strings.TrimSpace(claims.Username)
	if username == "" {
		username = "user-" + claims.Subject
	}
	return &domain.User{ID: id, Username: username, Role: claims.Role}, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header,
// falling back to the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.Fields(auth)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get(TokenQueryParam))
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext extracts the authenticated user, or nil.
func UserFromContext(ctx context.Context) *domain.User {
	if v, ok := ctx.Value(userKey).(*domain.User); ok {
		return v
	}
	return nil
}

// Require returns the authenticated user or an unauthenticated error.
func Require(ctx context.Context) (*domain.User, error) {
	if user := UserFromContext(ctx); user != nil {
		return user, nil
	}
	return nil, shared.Unauthenticated("Authentication credentials were not provided.")
}

// ensureUser mirrors the token's user into the store, writing only when
// the stored copy is missing or stale.
func ensureUser(ctx context.Context, repo store.Repository, user *domain.User) error {
	existing, err := repo.GetUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Username == user.Username && existing.Role == user.Role {
		user.CreatedAt = existing.CreatedAt
		user.UpdatedAt = existing.UpdatedAt
		return nil
	}

	now := time.Now()
	user.UpdatedAt = now
	if existing != nil {
		user.CreatedAt = existing.CreatedAt
	} else {
		user.CreatedAt = now
	}
	return repo.UpsertUser(ctx, user)
}

// Middleware authenticates every request. Requests without a valid token
// are rejected with 401.
func Middleware(repo store.Repository, v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := v.Parse(TokenFromRequest(r))
			if err != nil {
				msg := `{"error":"Invalid token."}`
				switch {
				case errors.Is(err, ErrTokenMissing):
					msg = `{"error":"Authentication credentials were not provided."}`
				case errors.Is(err, ErrTokenExpired):
					msg = `{"error":"Token has expired."}`
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}

			if err := ensureUser(r.Context(), repo, user); err != nil {
				writeError(w, http.StatusInternalServerError, `{"error":"failed to initialize user"}`)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body + "\n"))
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
