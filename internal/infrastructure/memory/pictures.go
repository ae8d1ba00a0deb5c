package memory

import (
	"context"
	"sync"

	domain "sampleapp/backend/internal/domain/picture"
)

// PictureRepository stores one picture per user.
type PictureRepository struct {
	mu       sync.RWMutex
	pictures map[string]domain.Picture
}

func NewPictureRepository() *PictureRepository {
	return &PictureRepository{pictures: make(map[string]domain.Picture)}
}

var _ domain.Repository = (*PictureRepository)(nil)

func (r *PictureRepository) Upsert(ctx context.Context, p *domain.Picture) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.pictures[p.UserID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	}
	r.pictures[p.UserID] = *p
	return nil
}

func (r *PictureRepository) GetByUserID(ctx context.Context, userID string) (*domain.Picture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pictures[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *PictureRepository) DeleteByUserID(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pictures[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.pictures, userID)
	return nil
}
