// Package preview turns image bytes into URLs that a view can display.
package preview

import (
	"encoding/base64"
	"errors"
	"mime"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned by MemoryStore.Open for unknown or released URLs.
var ErrNotFound = errors.New("preview: not found")

// Store publishes image data under a URL and releases it when the view no
// longer needs it.
type Store interface {
	Publish(contentType string, data []byte) (string, error)
	Release(url string)
}

// DataURLStore embeds the data in a data: URL. It holds no resources.
type DataURLStore struct{}

// Publish encodes data as a base64 data URL.
func (DataURLStore) Publish(contentType string, data []byte) (string, error) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(contentType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(contentType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String(), nil
}

// Release is a no-op.
func (DataURLStore) Release(string) {}

// Blob is a published preview.
type Blob struct {
	ContentType string
	Data        []byte
}

const memoryScheme = "preview://"

// MemoryStore keeps blobs in memory under preview://<uuid> URLs until they
// are released.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]Blob
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]Blob)}
}

// Publish stores data and returns its URL.
func (s *MemoryStore) Publish(contentType string, data []byte) (string, error) {
	url := memoryScheme + uuid.NewString()
	s.mu.Lock()
	s.blobs[url] = Blob{ContentType: contentType, Data: data}
	s.mu.Unlock()
	return url, nil
}

// Release frees the blob behind url. Unknown URLs are ignored.
func (s *MemoryStore) Release(url string) {
	s.mu.Lock()
	delete(s.blobs, url)
	s.mu.Unlock()
}

// Open returns the blob published under url.
func (s *MemoryStore) Open(url string) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[url]
	if !ok {
		return Blob{}, ErrNotFound
	}
	return blob, nil
}

// Len reports how many blobs are currently held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
