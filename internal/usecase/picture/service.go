package picture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	domain "sampleapp/backend/internal/domain/picture"
	"sampleapp/backend/internal/infrastructure/imaging"
	"sampleapp/backend/internal/logging"

	"github.com/google/uuid"
)

// ObjectStore holds picture bytes under a key.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Limits bounds uploaded pictures.
type Limits struct {
	MaxWidth  int
	MaxHeight int
	MaxBytes  int64
	MaxPixels int64
	URLExpiry time.Duration
}

// Service encapsulates profile picture use cases.
type Service struct {
	repo    domain.Repository
	store   ObjectStore
	limits  Limits
	logger  logging.Logger
	nowFunc func() time.Time
}

// NewService constructs a picture service.
func NewService(repo domain.Repository, store ObjectStore, limits Limits, logger logging.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		repo:    repo,
		store:   store,
		limits:  limits,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Upload validates, resizes and stores the user's picture, replacing any
// previous one.
func (s *Service) Upload(ctx context.Context, userID, filename string, body io.Reader) (*domain.Picture, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	filename = sanitizeFilename(filename)
	if !domain.ExtensionAllowed(filename) {
		return nil, domain.ErrUnsupportedFormat
	}

	data, err := io.ReadAll(io.LimitReader(body, s.limits.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.limits.MaxBytes {
		return nil, domain.ErrTooLarge
	}

	img, err := imaging.ResizeToLimit(bytes.NewReader(data), s.limits.MaxWidth, s.limits.MaxHeight, s.limits.MaxPixels)
	if err != nil {
		if errors.Is(err, imaging.ErrDimensions) {
			return nil, domain.ErrTooLarge
		}
		if errors.Is(err, imaging.ErrDecode) {
			return nil, domain.ErrInvalidImage
		}
		return nil, err
	}

	previous, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	key := path.Join(domain.StoreDir("user", "picture", userID), filename)
	if err := s.store.Put(ctx, key, img.ContentType, img.Body); err != nil {
		return nil, fmt.Errorf("store picture: %w", err)
	}

	now := s.nowFunc().UTC()
	pic := &domain.Picture{
		ID:          uuid.NewString(),
		UserID:      userID,
		StorageKey:  key,
		Filename:    filename,
		ContentType: img.ContentType,
		Width:       img.Width,
		Height:      img.Height,
		SizeBytes:   int64(len(img.Body)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Upsert(ctx, pic); err != nil {
		return nil, err
	}

	if previous != nil && previous.StorageKey != key {
		if err := s.store.Delete(ctx, previous.StorageKey); err != nil {
			s.logger.Warn(ctx, "remove replaced picture failed", "user_id", userID, "error", err)
		}
	}
	s.logger.Info(ctx, "picture uploaded", "user_id", userID, "width", img.Width, "height", img.Height)

	return s.withURL(ctx, pic)
}

// Get returns the user's picture with a time-limited download URL.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Picture, error) {
	pic, err := s.repo.GetByUserID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	return s.withURL(ctx, pic)
}

// Delete removes the user's picture record and its stored object.
func (s *Service) Delete(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	pic, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, pic.StorageKey); err != nil {
		return fmt.Errorf("delete stored picture: %w", err)
	}
	return nil
}

func (s *Service) withURL(ctx context.Context, pic *domain.Picture) (*domain.Picture, error) {
	url, err := s.store.PresignGet(ctx, pic.StorageKey, s.limits.URLExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign picture: %w", err)
	}
	pic.URL = url
	return pic, nil
}

// sanitizeFilename keeps the base name and drops characters unsafe in object keys.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
