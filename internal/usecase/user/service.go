package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "sampleapp/backend/internal/domain/auth"

	"github.com/google/uuid"
)

// Hasher digests secrets and mints random tokens.
type Hasher interface {
	Digest(secret string) (string, error)
	NewToken() (string, error)
}

// Service provides user management use cases for administrative workflows.
type Service struct {
	repo    domain.UserRepository
	hasher  Hasher
	policy  domain.Policy
	nowFunc func() time.Time
}

// NewService constructs a user service around the provided repository.
func NewService(repo domain.UserRepository, hasher Hasher, policy domain.Policy) *Service {
	return &Service{
		repo:    repo,
		hasher:  hasher,
		policy:  policy,
		nowFunc: time.Now,
	}
}

// Filter captures supported filters for listing users.
type Filter struct {
	Role string
}

// CreateInput defines the payload to create a new user.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// UpdateInput defines the payload to update a user. A nil Password leaves
// the stored password untouched.
type UpdateInput struct {
	Email    *string
	Name     *string
	Role     *string
	Password *string
}

// List returns users matching the supplied filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]*domain.User, error) {
	domainFilter := domain.UserFilter{}
	if trimmed := strings.TrimSpace(strings.ToLower(filter.Role)); trimmed != "" {
		role, err := ensureRole(trimmed, false)
		if err != nil {
			return nil, err
		}
		domainFilter.Role = role
	}

	users, err := s.repo.List(ctx, domainFilter)
	if err != nil {
		return nil, err
	}
	return sanitizeUsers(users), nil
}

// Get retrieves a single user by its identifier.
func (s *Service) Get(ctx context.Context, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("user id is required")
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Sanitized(), nil
}

// Create persists a new user. Accounts created by an administrator are
// active immediately; an activation digest is still recorded.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.User, error) {
	email := domain.NormalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)

	if err := s.policy.ValidateName(name); err != nil {
		return nil, err
	}
	if err := s.policy.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := s.policy.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	role, err := ensureRole(input.Role, true)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := s.hasher.Digest(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	activationToken, err := s.hasher.NewToken()
	if err != nil {
		return nil, fmt.Errorf("activation token: %w", err)
	}
	activationDigest, err := s.hasher.Digest(activationToken)
	if err != nil {
		return nil, fmt.Errorf("hash activation token: %w", err)
	}

	now := s.nowFunc().UTC()
	user := &domain.User{
		ID:               uuid.NewString(),
		Email:            email,
		Name:             name,
		Role:             role,
		PasswordHash:     hashed,
		ActivationDigest: activationDigest,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	user.Activate(now)

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user.Sanitized(), nil
}

// Update modifies the persisted user.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("user id is required")
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Email != nil {
		email := domain.NormalizeEmail(*input.Email)
		if err := s.policy.ValidateEmail(email); err != nil {
			return nil, err
		}
		user.Email = email
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := s.policy.ValidateName(name); err != nil {
			return nil, err
		}
		user.Name = name
	}
	if input.Role != nil {
		role, err := ensureRole(*input.Role, true)
		if err != nil {
			return nil, err
		}
		user.Role = role
	}

	var newHash string
	if input.Password != nil {
		if err := s.policy.ValidatePassword(*input.Password); err != nil {
			return nil, err
		}
		if newHash, err = s.hasher.Digest(*input.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	user.UpdatedAt = s.nowFunc().UTC()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	if newHash != "" {
		if err := s.repo.UpdatePassword(ctx, user.ID, newHash, user.UpdatedAt); err != nil {
			return nil, err
		}
		if err := s.repo.UpdateRememberDigest(ctx, user.ID, "", user.UpdatedAt); err != nil {
			return nil, err
		}
	}

	return user.Sanitized(), nil
}

// Activate marks the user active. Repeated calls keep the first activation time.
func (s *Service) Activate(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	if user.Activate(now) {
		if err := s.repo.Activate(ctx, user.ID, now); err != nil {
			return nil, err
		}
		user.UpdatedAt = now
	}
	return user.Sanitized(), nil
}

// Delete removes the target user.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("user id is required")
	}
	return s.repo.Delete(ctx, id)
}

func ensureRole(raw string, defaultToUser bool) (domain.UserRole, error) {
	role := domain.UserRole(strings.TrimSpace(strings.ToLower(raw)))
	if role == "" {
		if defaultToUser {
			return domain.RoleUser, nil
		}
		return "", nil
	}
	switch role {
	case domain.RoleUser, domain.RoleAdmin:
		return role, nil
	default:
		return "", domain.ErrInvalidRole
	}
}

func sanitizeUsers(items []*domain.User) []*domain.User {
	out := make([]*domain.User, 0, len(items))
	for _, item := range items {
		out = append(out, item.Sanitized())
	}
	return out
}
