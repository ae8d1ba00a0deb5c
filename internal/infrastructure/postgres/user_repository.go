package postgres

import (
	"context"
	"errors"
	"time"

	domain "sampleapp/backend/internal/domain/auth"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, name, role, password_hash, remember_digest, activation_digest,
       activated, activated_at, created_at, updated_at`

// UserRepository persists users in PostgreSQL.
type UserRepository struct {
	db Querier
}

// NewUserRepository constructs a repository.
func NewUserRepository(db Querier) *UserRepository {
	return &UserRepository{db: db}
}

var _ domain.UserRepository = (*UserRepository)(nil)

// Create inserts a new user record. Digests must already be computed.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
INSERT INTO users (id, email, name, role, password_hash, remember_digest, activation_digest,
                   activated, activated_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		user.PasswordHash,
		nullable(user.RememberDigest),
		user.ActivationDigest,
		user.Activated,
		user.ActivatedAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailExists
		}
		return err
	}
	return nil
}

// GetByEmail fetches a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return r.getOne(ctx, query, email)
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// List returns users filtered by the provided criteria.
func (r *UserRepository) List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users `
	var args []any
	if filter.Role != "" {
		query += "WHERE role = $1 "
		args = append(args, filter.Role)
	}
	query += "ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Update modifies profile fields of an existing user. Credential columns are
// written only through their dedicated methods.
func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
UPDATE users
SET email = $2, name = $3, role = $4, updated_at = $5
WHERE id = $1
`
	return r.exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.Role,
		user.UpdatedAt,
	)
}

// Delete removes a user by id. The picture row goes with it via ON DELETE CASCADE.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
}

// UpdatePassword updates the stored password hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, query, id, passwordHash, updatedAt)
}

// UpdateRememberDigest sets remember_digest, or NULL when digest is empty.
func (r *UserRepository) UpdateRememberDigest(ctx context.Context, id, digest string, updatedAt time.Time) error {
	const query = `UPDATE users SET remember_digest = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, query, id, nullable(digest), updatedAt)
}

// Activate flips the activation flag. activated_at is only ever written once.
func (r *UserRepository) Activate(ctx context.Context, id string, activatedAt time.Time) error {
	const query = `
UPDATE users
SET activated = TRUE,
    activated_at = COALESCE(activated_at, $2),
    updated_at = CASE WHEN activated THEN updated_at ELSE $2 END
WHERE id = $1
`
	return r.exec(ctx, query, id, activatedAt)
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	ct, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailExists
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u        domain.User
		remember *string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Role,
		&u.PasswordHash,
		&remember,
		&u.ActivationDigest,
		&u.Activated,
		&u.ActivatedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if remember != nil {
		u.RememberDigest = *remember
	}
	return &u, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
