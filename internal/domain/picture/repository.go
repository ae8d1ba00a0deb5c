package picture

import "context"

// Repository defines persistence behaviours for pictures. A user owns at most one.
type Repository interface {
	Upsert(ctx context.Context, picture *Picture) error
	GetByUserID(ctx context.Context, userID string) (*Picture, error)
	DeleteByUserID(ctx context.Context, userID string) error
}
