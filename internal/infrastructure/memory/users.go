// Package memory implements the repositories in memory for local runs and
// tests. The object store is used by tests only.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domain "sampleapp/backend/internal/domain/auth"
)

// UserRepository keeps users in a map guarded by a mutex. Stored values are
// copied on the way in and out so callers cannot mutate shared state.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewUserRepository creates an empty repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*domain.User)}
}

var _ domain.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailTaken(user.Email, "") {
		return domain.ErrEmailExists
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.User
	for _, u := range r.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[user.ID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if r.emailTaken(user.Email, user.ID) {
		return domain.ErrEmailExists
	}
	existing.Email = user.Email
	existing.Name = user.Name
	existing.Role = user.Role
	existing.UpdatedAt = user.UpdatedAt
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	return r.mutate(id, func(u *domain.User) {
		u.PasswordHash = passwordHash
		u.UpdatedAt = updatedAt
	})
}

func (r *UserRepository) UpdateRememberDigest(ctx context.Context, id, digest string, updatedAt time.Time) error {
	return r.mutate(id, func(u *domain.User) {
		u.RememberDigest = digest
		u.UpdatedAt = updatedAt
	})
}

func (r *UserRepository) Activate(ctx context.Context, id string, activatedAt time.Time) error {
	return r.mutate(id, func(u *domain.User) {
		if u.Activate(activatedAt) {
			u.UpdatedAt = activatedAt
		}
	})
}

func (r *UserRepository) mutate(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	return nil
}

func (r *UserRepository) emailTaken(email, exceptID string) bool {
	for id, u := range r.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func cloneUser(u *domain.User) *domain.User {
	out := *u
	if u.ActivatedAt != nil {
		at := *u.ActivatedAt
		out.ActivatedAt = &at
	}
	return &out
}
