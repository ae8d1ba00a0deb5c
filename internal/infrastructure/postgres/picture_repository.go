package postgres

import (
	"context"
	"errors"

	domain "sampleapp/backend/internal/domain/picture"

	"github.com/jackc/pgx/v5"
)

// PictureRepository persists picture metadata in PostgreSQL.
type PictureRepository struct {
	db Querier
}

// NewPictureRepository constructs a repository.
func NewPictureRepository(db Querier) *PictureRepository {
	return &PictureRepository{db: db}
}

var _ domain.Repository = (*PictureRepository)(nil)

// Upsert inserts the picture or replaces the user's existing one. On conflict
// the original id and created_at are kept and written back into p.
func (r *PictureRepository) Upsert(ctx context.Context, p *domain.Picture) error {
	const query = `
INSERT INTO pictures (id, user_id, storage_key, filename, content_type, width, height, size_bytes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (user_id) DO UPDATE
SET storage_key = EXCLUDED.storage_key,
    filename = EXCLUDED.filename,
    content_type = EXCLUDED.content_type,
    width = EXCLUDED.width,
    height = EXCLUDED.height,
    size_bytes = EXCLUDED.size_bytes,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at
`
	return r.db.QueryRow(ctx, query,
		p.ID,
		p.UserID,
		p.StorageKey,
		p.Filename,
		p.ContentType,
		p.Width,
		p.Height,
		p.SizeBytes,
		p.CreatedAt,
		p.UpdatedAt,
	).Scan(&p.ID, &p.CreatedAt)
}

// GetByUserID fetches the picture attached to a user.
func (r *PictureRepository) GetByUserID(ctx context.Context, userID string) (*domain.Picture, error) {
	const query = `
SELECT id, user_id, storage_key, filename, content_type, width, height, size_bytes, created_at, updated_at
FROM pictures WHERE user_id = $1
`
	var p domain.Picture
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.ID,
		&p.UserID,
		&p.StorageKey,
		&p.Filename,
		&p.ContentType,
		&p.Width,
		&p.Height,
		&p.SizeBytes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// DeleteByUserID removes a user's picture row.
func (r *PictureRepository) DeleteByUserID(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pictures WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
