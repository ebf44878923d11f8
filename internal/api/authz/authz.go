package authz

import (
	"context"
	"errors"

	"github.com/codr1/courtbook/internal/models"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// AuthUser is the caller identity established by the auth middleware.
type AuthUser struct {
	MemberID  int64
	FirstName string
	LastName  string
	Role      models.Role
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

func IsAdmin(user *AuthUser) bool {
	return user != nil && user.Role == models.RoleAdmin
}

// Actor converts the user into the identity the admission controller authorizes against.
func (u *AuthUser) Actor() models.Actor {
	if u == nil {
		return models.Actor{}
	}
	return models.Actor{
		MemberID:  u.MemberID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      u.Role,
	}
}

// RequireUser returns the authenticated user or ErrUnauthenticated.
func RequireUser(ctx context.Context) (*AuthUser, error) {
	user := UserFromContext(ctx)
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

func RequireAdmin(ctx context.Context) error {
	user, err := RequireUser(ctx)
	if err != nil {
		return err
	}
	if !IsAdmin(user) {
		return ErrForbidden
	}
	return nil
}
