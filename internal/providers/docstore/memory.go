package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// Memory is an in-process Store for local development and tests.
type Memory struct {
	mu     sync.RWMutex
	images map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{images: make(map[string][]byte)}
}

func (m *Memory) Store(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("image is empty")
	}
	path := "mem://" + uuid.NewString()
	copied := make([]byte, len(image))
	copy(copied, image)

	m.mu.Lock()
	m.images[path] = copied
	m.mu.Unlock()
	return path, nil
}

func (m *Memory) Fetch(ctx context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	image, ok := m.images[path]
	m.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := make([]byte, len(image))
	copy(copied, image)
	return copied, nil
}
