// Package identity talks to the external identity provider that owns
// credentials. The service never stores passwords itself.
package identity

import (
	"context"
	"errors"
)

var (
	ErrUserExists         = errors.New("identity: user already exists")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrUserNotFound       = errors.New("identity: user not found")
	ErrUnavailable        = errors.New("identity: provider unavailable")
)

type CreateUserInput struct {
	Email    string
	Password string
	// Confirmed marks the email verified at creation; the OTP flow has
	// already proven ownership.
	Confirmed bool
	Metadata  map[string]string
}

type Provider interface {
	// CreateUser returns the provider's id for the new identity.
	CreateUser(ctx context.Context, in CreateUserInput) (string, error)
	// DeleteUser removes the identity. Deleting an unknown id is not an error.
	DeleteUser(ctx context.Context, id string) error
	// SignIn checks credentials and returns the identity id.
	SignIn(ctx context.Context, email, password string) (string, error)
	UpdatePassword(ctx context.Context, id, password string) error
}
