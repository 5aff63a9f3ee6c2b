// Package auth resolves the signed-in user of a request.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/log"
)

var ErrNoUser = errors.New("no signed-in user")

// Identity headers set by the upstream auth proxy
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)

// User is the signed-in user. Only ID scopes data.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Provider resolves the current user of a request.
type Provider interface {
	CurrentUser(r *http.Request) (User, error)
}

// HeaderProvider trusts identity headers set by a reverse proxy that has
// already authenticated the caller.
type HeaderProvider struct{}

func (HeaderProvider) CurrentUser(r *http.Request) (User, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return User{}, ErrNoUser
	}
	return User{
		ID:          id,
		Email:       strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
	}, nil
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// FromContext returns the user stored by Middleware.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	return u, ok
}

// Middleware rejects requests without a user with 401 and stores the user
// in the request context otherwise. The request logger is tagged with the
// user id.
func Middleware(p Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := log.FromContext(r.Context())

			u, err := p.CurrentUser(r)
			if err != nil {
				logger.Debug("Request without signed-in user", log.FieldPath, r.URL.Path, log.FieldError, err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"authentication required"}`))
				return
			}

			ctx := WithUser(r.Context(), u)
			ctx = context.WithValue(ctx, log.LoggerContextKey, logger.With(log.FieldUserID, u.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
