package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "sampleapp/backend/internal/domain/auth"
	"sampleapp/backend/internal/logging"

	"github.com/google/uuid"
)

// Service coordinates authentication workflows between domain and infrastructure.
type Service struct {
	users   domain.UserRepository
	tokens  TokenManager
	creds   CredentialManager
	mailer  ActivationMailer
	limiter LoginLimiter
	policy  domain.Policy
	logger  logging.Logger
	nowFunc func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithMailer sets the activation mailer. Without one, registration skips delivery.
func WithMailer(m ActivationMailer) Option {
	return func(s *Service) { s.mailer = m }
}

// WithLoginLimiter enables login throttling.
func WithLoginLimiter(l LoginLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithPolicy overrides the default validation limits.
func WithPolicy(p domain.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger sets the service logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService constructs an auth service.
func NewService(users domain.UserRepository, tokens TokenManager, creds CredentialManager, opts ...Option) *Service {
	s := &Service{
		users:   users,
		tokens:  tokens,
		creds:   creds,
		policy:  domain.DefaultPolicy(),
		logger:  logging.Discard(),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
}

// LoginResult carries the issued access token and, for remember-me logins,
// the raw remember token destined for the client cookie.
type LoginResult struct {
	AccessToken   string
	RememberToken string
	User          *domain.User
}

// Register creates an inactive user, stores the activation digest and mails
// the raw activation token. The returned user carries no digests.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	name := strings.TrimSpace(input.Name)
	email := domain.NormalizeEmail(input.Email)

	if err := s.policy.ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.policy.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := s.policy.ValidatePassword(input.Password); err != nil {
		return nil, err
	}
	if input.PasswordConfirmation != "" && input.PasswordConfirmation != input.Password {
		return nil, &domain.ValidationError{Field: "password_confirmation", Message: "doesn't match password"}
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	passwordHash, err := s.creds.Digest(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	activationToken, err := s.creds.NewToken()
	if err != nil {
		return nil, fmt.Errorf("activation token: %w", err)
	}
	activationDigest, err := s.creds.Digest(activationToken)
	if err != nil {
		return nil, fmt.Errorf("hash activation token: %w", err)
	}

	now := s.nowFunc().UTC()
	user := &domain.User{
		ID:               uuid.NewString(),
		Email:            email,
		Name:             name,
		Role:             domain.RoleUser,
		PasswordHash:     passwordHash,
		ActivationDigest: activationDigest,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if s.mailer != nil {
		if err := s.mailer.SendActivation(ctx, user, activationToken); err != nil {
			// Without the mail the account could never be activated, so drop
			// it and let the user register again. The caller logs the error.
			if delErr := s.users.Delete(context.WithoutCancel(ctx), user.ID); delErr != nil {
				return nil, fmt.Errorf("send activation mail: %w (removing user: %v)", err, delErr)
			}
			return nil, fmt.Errorf("send activation mail: %w", err)
		}
	}
	s.logger.Info(ctx, "user registered", "user_id", user.ID)

	return user.Sanitized(), nil
}

// Login validates credentials and returns an access token. With rememberMe a
// fresh remember token is issued, otherwise any remembered session is forgotten.
func (s *Service) Login(ctx context.Context, creds domain.Credentials, rememberMe bool) (*LoginResult, error) {
	email := domain.NormalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, email); err != nil {
			if errors.Is(err, domain.ErrTooManyAttempts) {
				return nil, err
			}
			// Throttling is best effort; a limiter outage must not block logins.
			s.logger.Warn(ctx, "login limiter unavailable", "error", err)
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.Authenticated(user, domain.DigestPassword, creds.Password) {
		s.logger.Info(ctx, "login rejected", "user_id", user.ID)
		return nil, domain.ErrInvalidCredentials
	}
	if !user.Activated {
		return nil, domain.ErrAccountNotActivated
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, email); err != nil {
			s.logger.Warn(ctx, "login limiter reset failed", "error", err)
		}
	}

	result, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	if rememberMe {
		token, err := s.Remember(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		result.RememberToken = token
	} else if err := s.Forget(ctx, user.ID); err != nil {
		return nil, err
	}

	return result, nil
}

// Remember generates a new remember token, stores its digest and returns the
// raw token. Any previously issued remember token stops verifying.
func (s *Service) Remember(ctx context.Context, userID string) (string, error) {
	token, err := s.creds.NewToken()
	if err != nil {
		return "", fmt.Errorf("remember token: %w", err)
	}
	digest, err := s.creds.Digest(token)
	if err != nil {
		return "", fmt.Errorf("hash remember token: %w", err)
	}
	if err := s.users.UpdateRememberDigest(ctx, userID, digest, s.nowFunc().UTC()); err != nil {
		return "", err
	}
	return token, nil
}

// Forget clears the remember digest so no remember token verifies.
func (s *Service) Forget(ctx context.Context, userID string) error {
	return s.users.UpdateRememberDigest(ctx, userID, "", s.nowFunc().UTC())
}

// Authenticated reports whether token matches the user's digest of the given kind.
// An absent digest never matches.
func (s *Service) Authenticated(user *domain.User, kind domain.DigestKind, token string) bool {
	if user == nil {
		return false
	}
	return s.creds.Verify(token, user.Digest(kind))
}

// RestoreSession exchanges a remember-me cookie pair for a new access token.
func (s *Service) RestoreSession(ctx context.Context, userID, rememberToken string) (*LoginResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || rememberToken == "" {
		return nil, domain.ErrRememberInvalid
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrRememberInvalid
		}
		return nil, err
	}
	if !s.Authenticated(user, domain.DigestRemember, rememberToken) {
		return nil, domain.ErrRememberInvalid
	}

	return s.issue(user)
}

// ActivateAccount consumes an activation link. Unknown emails, wrong tokens
// and accounts that are already active all fail the same way.
func (s *Service) ActivateAccount(ctx context.Context, email, token string) (*LoginResult, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || token == "" {
		return nil, domain.ErrActivationInvalid
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrActivationInvalid
		}
		return nil, err
	}
	if user.Activated || !s.Authenticated(user, domain.DigestActivation, token) {
		return nil, domain.ErrActivationInvalid
	}

	now := s.nowFunc().UTC()
	user.Activate(now)
	if err := s.users.Activate(ctx, user.ID, now); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "account activated", "user_id", user.ID)

	return s.issue(user)
}

// Logout forgets the remembered session of the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	return s.Forget(ctx, userID)
}

// VerifyToken validates a bearer token and returns the associated user.
func (s *Service) VerifyToken(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}

	return user.Sanitized(), nil
}

// RenewToken swaps a still-valid access token for a fresh one.
func (s *Service) RenewToken(ctx context.Context, token string) (*LoginResult, error) {
	user, err := s.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// ChangePassword replaces the password after checking the current one. Any
// remembered session is forgotten.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !s.Authenticated(user, domain.DigestPassword, currentPassword) {
		return domain.ErrPasswordMismatch
	}
	if currentPassword == newPassword {
		return domain.ErrPasswordUnchanged
	}
	if err := s.policy.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.creds.Digest(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.nowFunc().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return err
	}
	if err := s.users.UpdateRememberDigest(ctx, user.ID, "", now); err != nil {
		return err
	}
	s.logger.Info(ctx, "password changed", "user_id", user.ID)
	return nil
}

func (s *Service) issue(user *domain.User) (*LoginResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: token, User: user.Sanitized()}, nil
}
