package identity

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound       = errors.New("identity: user not found")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrEmailAlreadyInUse  = errors.New("identity: email already in use")
	ErrEmailNotVerified   = errors.New("identity: email not verified")
	ErrInvalidToken       = errors.New("identity: invalid or expired token")
)

// Token is the minimal identity the provider exposes to the rest of the
// system. Credentials never leave the provider.
type Token struct {
	UID           string
	Email         string
	EmailVerified bool
}

// Provider is the contract with the external identity system.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Token, error)
	SignUp(ctx context.Context, email, password, displayName string) (Token, error)
	SignOut(ctx context.Context, uid string) error
	SendPasswordReset(ctx context.Context, email string) error
	SendVerificationEmail(ctx context.Context, uid string) error
}
