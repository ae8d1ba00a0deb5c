package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	root := t.TempDir()
	store, err := NewFileStore(root, "http://app.test/")
	require.NoError(t, err)
	return store, root
}

func TestFileStore_PutPresignDelete(t *testing.T) {
	store, root := newTestFileStore(t)
	ctx := context.Background()
	key := "uploads/user/picture/u1/me.png"

	require.NoError(t, store.Put(ctx, key, "image/png", []byte("first")))
	require.NoError(t, store.Put(ctx, key, "image/png", []byte("second")))

	data, err := os.ReadFile(filepath.Join(root, "uploads", "user", "picture", "u1", "me.png"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "uploads", "user", "picture", "u1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	u, err := store.PresignGet(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "http://app.test/uploads/user/picture/u1/me.png", u)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))
	_, err = store.PresignGet(ctx, key, time.Minute)
	require.Error(t, err)
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	store, _ := newTestFileStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../outside.png", "/etc/passwd", "uploads/../../x.png"} {
		require.ErrorIs(t, store.Put(ctx, key, "image/png", []byte("x")), ErrInvalidKey, key)
	}
}

func TestFileStore_Handler(t *testing.T) {
	store, _ := newTestFileStore(t)
	key := "uploads/user/picture/u1/me.png"
	require.NoError(t, store.Put(context.Background(), key, "image/png", []byte("pixels")))

	mux := http.NewServeMux()
	mux.Handle("/uploads/", store.Handler())

	serve := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec
	}

	rec := serve(http.MethodGet, "/"+key)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pixels", rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/uploads/user/picture/u1/").Code)
	assert.Equal(t, http.StatusNotFound, serve(http.MethodGet, "/uploads/user/picture/u1/missing.png").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(http.MethodDelete, "/"+key).Code)
}
