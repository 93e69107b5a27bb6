package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"farmdash/internal/email"
	"farmdash/internal/store"
	"farmdash/internal/util"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// collectionAccounts holds provider-internal credential records. It is not
// part of the stable application collections; only this package reads it.
const collectionAccounts = "identityAccounts"

const resetTokenTTL = 1 * time.Hour

type account struct {
	UID               string                   `json:"uid"`
	Email             string                   `json:"email"`
	DisplayName       string                   `json:"displayName"`
	PasswordHash      string                   `json:"passwordHash"`
	EmailVerified     bool                     `json:"emailVerified"`
	VerificationToken util.Optional[string]    `json:"verificationToken"`
	ResetToken        util.Optional[string]    `json:"resetToken"`
	ResetExpiresAt    util.Optional[time.Time] `json:"resetExpiresAt"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

// LocalProvider is a store-backed Provider with bcrypt credentials. It
// stands in for a hosted identity service behind the same interface.
type LocalProvider struct {
	logger              *slog.Logger
	store               store.DocumentStore
	sender              email.Sender
	requireVerification bool
}

func NewLocalProvider(logger *slog.Logger, docs store.DocumentStore, sender email.Sender, requireVerification bool) LocalProvider {
	return LocalProvider{
		logger:              logger.With("component", "identity"),
		store:               docs,
		sender:              sender,
		requireVerification: requireVerification,
	}
}

func (p *LocalProvider) SignUp(ctx context.Context, emailAddr, password, displayName string) (Token, error) {
	var token Token

	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))
	if _, err := p.findByEmail(ctx, emailAddr); err == nil {
		return token, ErrEmailAlreadyInUse
	} else if !errors.Is(err, ErrUserNotFound) {
		return token, fmt.Errorf("failed to check existing account: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return token, fmt.Errorf("failed to hash password: %w", err)
	}

	verificationToken, err := util.RandomString(32)
	if err != nil {
		return token, fmt.Errorf("failed to generate verification token: %w", err)
	}

	now := time.Now().UTC()
	acc := account{
		UID:               uuid.NewString(),
		Email:             emailAddr,
		DisplayName:       displayName,
		PasswordHash:      string(passwordHash),
		EmailVerified:     false,
		VerificationToken: util.Some(verificationToken),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := p.store.Put(ctx, collectionAccounts, acc.UID, acc); err != nil {
		return token, fmt.Errorf("failed to create account: %w", err)
	}

	if err := p.sender.SendVerificationEmail(ctx, acc.Email, verificationToken); err != nil {
		// Account exists; the user can request a new verification mail.
		p.logger.Error("failed to send verification email", "email", acc.Email, "error", err)
	}

	return Token{UID: acc.UID, Email: acc.Email, EmailVerified: acc.EmailVerified}, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, emailAddr, password string) (Token, error) {
	var token Token

	acc, err := p.findByEmail(ctx, strings.TrimSpace(strings.ToLower(emailAddr)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return token, ErrInvalidCredentials
		}
		return token, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return token, ErrInvalidCredentials
	}

	if p.requireVerification && !acc.EmailVerified {
		return token, ErrEmailNotVerified
	}

	return Token{UID: acc.UID, Email: acc.Email, EmailVerified: acc.EmailVerified}, nil
}

func (p *LocalProvider) SignOut(ctx context.Context, uid string) error {
	// Sessions live in the web layer; the provider has no server-side state
	// to tear down.
	p.logger.Debug("sign out", "uid", uid)
	return nil
}

func (p *LocalProvider) SendPasswordReset(ctx context.Context, emailAddr string) error {
	acc, err := p.findByEmail(ctx, strings.TrimSpace(strings.ToLower(emailAddr)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Do not reveal whether the address exists.
			p.logger.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	resetToken, err := util.RandomString(32)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	acc.ResetToken = util.Some(resetToken)
	acc.ResetExpiresAt = util.Some(time.Now().UTC().Add(resetTokenTTL))
	acc.UpdatedAt = time.Now().UTC()

	if err := p.store.Put(ctx, collectionAccounts, acc.UID, acc); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := p.sender.SendPasswordResetEmail(ctx, acc.Email, resetToken); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}

func (p *LocalProvider) SendVerificationEmail(ctx context.Context, uid string) error {
	var acc account
	if err := p.store.Get(ctx, collectionAccounts, uid, &acc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load account %s: %w", uid, err)
	}

	verificationToken, err := util.RandomString(32)
	if err != nil {
		return fmt.Errorf("failed to generate verification token: %w", err)
	}

	acc.VerificationToken = util.Some(verificationToken)
	acc.UpdatedAt = time.Now().UTC()

	if err := p.store.Put(ctx, collectionAccounts, acc.UID, acc); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}

	if err := p.sender.SendVerificationEmail(ctx, acc.Email, verificationToken); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (p *LocalProvider) VerifyEmail(ctx context.Context, uid, token string) (Token, error) {
	var acc account
	if err := p.store.Get(ctx, collectionAccounts, uid, &acc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Token{}, ErrUserNotFound
		}
		return Token{}, fmt.Errorf("failed to load account %s: %w", uid, err)
	}

	expected, ok := acc.VerificationToken.Get()
	if !ok || token == "" || expected != token {
		return Token{}, ErrInvalidToken
	}

	acc.EmailVerified = true
	acc.VerificationToken = util.None[string]()
	acc.UpdatedAt = time.Now().UTC()

	if err := p.store.Put(ctx, collectionAccounts, acc.UID, acc); err != nil {
		return Token{}, fmt.Errorf("failed to mark email verified: %w", err)
	}

	return Token{UID: acc.UID, Email: acc.Email, EmailVerified: true}, nil
}

// ResetPassword consumes a reset token and replaces the password hash.
func (p *LocalProvider) ResetPassword(ctx context.Context, emailAddr, token, newPassword string) error {
	acc, err := p.findByEmail(ctx, strings.TrimSpace(strings.ToLower(emailAddr)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	expected, ok := acc.ResetToken.Get()
	expiresAt, hasExpiry := acc.ResetExpiresAt.Get()
	if !ok || token == "" || expected != token || !hasExpiry || time.Now().After(expiresAt) {
		return ErrInvalidToken
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	acc.PasswordHash = string(passwordHash)
	acc.ResetToken = util.None[string]()
	acc.ResetExpiresAt = util.None[time.Time]()
	acc.UpdatedAt = time.Now().UTC()

	if err := p.store.Put(ctx, collectionAccounts, acc.UID, acc); err != nil {
		return fmt.Errorf("failed to store new password: %w", err)
	}
	return nil
}

func (p *LocalProvider) findByEmail(ctx context.Context, emailAddr string) (account, error) {
	raws, err := p.store.Query(ctx, collectionAccounts,
		[]store.Filter{store.Where("email", emailAddr)}, nil)
	if err != nil {
		return account{}, err
	}
	if len(raws) == 0 {
		return account{}, ErrUserNotFound
	}

	accounts, err := store.Decode[account](raws)
	if err != nil {
		return account{}, err
	}
	return accounts[0], nil
}
