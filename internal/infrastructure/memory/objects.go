package memory

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"
)

// ErrObjectNotFound is returned by ObjectStore.Get for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// Object is a stored blob.
type Object struct {
	ContentType string
	Body        []byte
}

// ObjectStore keeps blobs in memory and hands out fake signed URLs.
type ObjectStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object
}

func NewObjectStore(baseURL string) *ObjectStore {
	return &ObjectStore{baseURL: baseURL, objects: make(map[string]Object)}
}

func (s *ObjectStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = Object{ContentType: contentType, Body: append([]byte(nil), body...)}
	return nil
}

func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

func (s *ObjectStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.objects[key]; !ok {
		return "", ErrObjectNotFound
	}
	u, err := url.JoinPath(s.baseURL, key)
	if err != nil {
		return "", err
	}
	return u + "?expires=" + url.QueryEscape(time.Now().Add(ttl).UTC().Format(time.RFC3339)), nil
}

// Get returns a stored object.
func (s *ObjectStore) Get(key string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return Object{}, ErrObjectNotFound
	}
	return obj, nil
}

// Len reports how many objects are stored.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
