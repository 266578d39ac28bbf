package auth

import (
	"context"
	"strings"

	"github.com/blagoySimandov/careerpilot/internal/apperr"
)

// User is the caller named by a verified bearer token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

func newUser(id, email string) *User {
	return &User{ID: id, Email: strings.ToLower(strings.TrimSpace(email))}
}

// Owns reports whether userID names this caller.
func (u *User) Owns(userID string) bool {
	return u != nil && userID != "" && u.ID == userID
}

type userContextKey struct{}

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func GetUserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}

// RequireSubject checks that the authenticated caller is acting on its own userID.
func RequireSubject(ctx context.Context, userID string) (*User, error) {
	user, ok := GetUserFromContext(ctx)
	if !ok {
		return nil, apperr.Unauthorized(unauthorizedMessage)
	}
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if !user.Owns(userID) {
		return nil, apperr.Forbidden("authenticated user does not match userId")
	}
	return user, nil
}
