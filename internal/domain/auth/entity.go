package auth

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials indicates a login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailExists signals a duplicate email registration.
	ErrEmailExists = errors.New("email already registered")
	// ErrTokenInvalid means a supplied token cannot be validated.
	ErrTokenInvalid = errors.New("token invalid or expired")
	// ErrUserNotFound indicates missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidRole indicates the provided role is not supported.
	ErrInvalidRole = errors.New("invalid role")
	// ErrPasswordMismatch indicates the current password is incorrect.
	ErrPasswordMismatch = errors.New("current password does not match")
	// ErrPasswordUnchanged indicates the new password matches the current one.
	ErrPasswordUnchanged = errors.New("new password must be different from current password")
	// ErrAccountNotActivated is returned when an unactivated account tries to log in.
	ErrAccountNotActivated = errors.New("account not activated")
	// ErrActivationInvalid covers unknown emails, bad tokens and already activated accounts.
	ErrActivationInvalid = errors.New("invalid activation link")
	// ErrRememberInvalid means a remember-me cookie no longer matches.
	ErrRememberInvalid = errors.New("remember token invalid")
	// ErrTooManyAttempts signals login throttling.
	ErrTooManyAttempts = errors.New("too many login attempts")
)

// ValidationError reports a field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

// UserRole identifies the privileges assigned to a user.
type UserRole string

const (
	// RoleUser represents a standard application user.
	RoleUser UserRole = "user"
	// RoleAdmin represents an administrative user.
	RoleAdmin UserRole = "admin"
)

// DigestKind names one of the stored credential digests.
type DigestKind int

const (
	DigestPassword DigestKind = iota
	DigestRemember
	DigestActivation
)

func (k DigestKind) String() string {
	switch k {
	case DigestPassword:
		return "password"
	case DigestRemember:
		return "remember"
	case DigestActivation:
		return "activation"
	default:
		return "unknown"
	}
}

// User models the authentication entity persisted in storage.
//
// Digest fields hold bcrypt digests only. An empty RememberDigest means no
// remember-me session is active.
type User struct {
	ID               string
	Email            string
	Name             string
	Role             UserRole
	PasswordHash     string
	RememberDigest   string
	ActivationDigest string
	Activated        bool
	ActivatedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Digest returns the stored digest of the given kind, or "" when absent.
func (u *User) Digest(kind DigestKind) string {
	switch kind {
	case DigestPassword:
		return u.PasswordHash
	case DigestRemember:
		return u.RememberDigest
	case DigestActivation:
		return u.ActivationDigest
	default:
		return ""
	}
}

// Activate marks the account active. It reports false and keeps the original
// timestamp when the account was already active.
func (u *User) Activate(at time.Time) bool {
	if u.Activated {
		return false
	}
	u.Activated = true
	u.ActivatedAt = &at
	return true
}

// Sanitized returns a copy without any credential digests.
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.PasswordHash = ""
	out.RememberDigest = ""
	out.ActivationDigest = ""
	return &out
}

// Credentials captures raw credential input for login.
type Credentials struct {
	Email    string
	Password string
}
