// Package memory keeps export jobs, artifacts and request logs in-memory for
// development and tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/apilog-dashboard/internal/backend"
)

// BlobStore stores artifacts in-memory and returns pseudo URIs. It also
// stands in for the cloud destination, issuing expiring links under an
// optional public base URL.
type BlobStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	types   map[string]string
	baseURL string
	now     func() time.Time
}

// NewBlobStore creates a new in-memory blob store. baseURL, when set, roots
// the links returned by SignedURL.
func NewBlobStore(baseURL string) *BlobStore {
	return &BlobStore{
		data:    make(map[string][]byte),
		types:   make(map[string]string),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// PutObject persists the content and returns a URI.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = byteData
	s.types[path] = contentType
	return fmt.Sprintf("memory://%s", path), nil
}

// GetObject returns a copy of the stored content.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, backend.ErrNotFound)
	}
	return bytes.Clone(data), nil
}

// ContentType returns the content type recorded for path.
func (s *BlobStore) ContentType(path string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.types[path]
}

// SignedURL returns a link to path carrying its expiry time.
func (s *BlobStore) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.data[path]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("sign %s: %w", path, backend.ErrNotFound)
	}
	expires := strconv.FormatInt(s.now().Add(ttl).Unix(), 10)
	if s.baseURL == "" {
		return "memory://" + path + "?expires=" + expires, nil
	}
	return s.baseURL + "/" + path + "?" + url.Values{"expires": {expires}}.Encode(), nil
}
