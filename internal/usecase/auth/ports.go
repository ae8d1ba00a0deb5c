package auth

import (
	"context"

	domain "sampleapp/backend/internal/domain/auth"
)

// CredentialManager hashes secrets, mints tokens and checks them against digests.
type CredentialManager interface {
	Digest(secret string) (string, error)
	NewToken() (string, error)
	Verify(presented, digest string) bool
}

// ActivationMailer delivers the account activation link.
type ActivationMailer interface {
	SendActivation(ctx context.Context, user *domain.User, token string) error
}

// LoginLimiter throttles password attempts per email.
type LoginLimiter interface {
	Allow(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}
