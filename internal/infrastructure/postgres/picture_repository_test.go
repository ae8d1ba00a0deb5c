package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	domain "sampleapp/backend/internal/domain/picture"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPictureRepoWithMock(t *testing.T) (*PictureRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPictureRepository(mock), mock
}

func TestPictureRepository_Upsert_KeepsOriginalIdentity(t *testing.T) {
	repo, mock := newPictureRepoWithMock(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	pic := &domain.Picture{
		ID:          "p-new",
		UserID:      "u-1",
		StorageKey:  "uploads/user/picture/u-1/me.png",
		Filename:    "me.png",
		ContentType: "image/png",
		Width:       40,
		Height:      20,
		SizeBytes:   int64(512),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+pictures.*ON\s+CONFLICT\s+\(user_id\)\s+DO\s+UPDATE.*RETURNING\s+id,\s*created_at`).
		WithArgs("p-new", "u-1", "uploads/user/picture/u-1/me.png", "me.png", "image/png", 40, 20, int64(512), now, now).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow("p-old", created))

	require.NoError(t, repo.Upsert(context.Background(), pic))
	assert.Equal(t, "p-old", pic.ID)
	assert.Equal(t, created, pic.CreatedAt)
	assert.Equal(t, now, pic.UpdatedAt)
}

func TestPictureRepository_GetByUserID(t *testing.T) {
	repo, mock := newPictureRepoWithMock(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	columns := []string{"id", "user_id", "storage_key", "filename", "content_type", "width", "height", "size_bytes", "created_at", "updated_at"}

	mock.ExpectQuery(`FROM\s+pictures\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs("u-1").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("p-1", "u-1", "uploads/user/picture/u-1/me.gif", "me.gif", "image/gif", 10, 10, int64(99), now, now))
	mock.ExpectQuery(`FROM\s+pictures\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs("u-2").
		WillReturnRows(pgxmock.NewRows(columns))

	got, err := repo.GetByUserID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.ID)
	assert.Equal(t, "uploads/user/picture/u-1/me.gif", got.StorageKey)
	assert.Equal(t, int64(99), got.SizeBytes)

	_, err = repo.GetByUserID(context.Background(), "u-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPictureRepository_DeleteByUserID(t *testing.T) {
	repo, mock := newPictureRepoWithMock(t)
	query := regexp.QuoteMeta(`DELETE FROM pictures WHERE user_id = $1`)

	mock.ExpectExec(query).WithArgs("u-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(query).WithArgs("u-1").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, repo.DeleteByUserID(context.Background(), "u-1"))
	assert.ErrorIs(t, repo.DeleteByUserID(context.Background(), "u-1"), domain.ErrNotFound)
}
