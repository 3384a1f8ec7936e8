package storage

import (
	"context"
	"sync"

	"multimodal-agent/internal/domain"
	"multimodal-agent/internal/domain/ports/repository"
)

var _ repository.ArtifactStore = (*MemoryStore)(nil)

// MemoryStore is the in-process artifact store used in dev mode and tests.
// It enforces the same write-once contract as the MinIO store.
type MemoryStore struct {
	mu sync.RWMutex
	// written tracks (jobID, key) pairs; blobs maps ref -> payload.
	written map[string]string
	blobs   map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		written: make(map[string]string),
		blobs:   make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(ctx context.Context, jobID, key string, data []byte, contentType string) (string, error) {
	if jobID == "" || key == "" {
		return "", domain.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pair := jobID + "/" + key
	if _, ok := s.written[pair]; ok {
		return "", domain.ErrConflict
	}
	ref := "jobs/" + pair
	cp := make([]byte, len(data))
	copy(cp, data)
	s.written[pair] = ref
	s.blobs[ref] = cp
	return ref, nil
}

func (s *MemoryStore) Resolve(ctx context.Context, jobID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.written[jobID+"/"+key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return ref, nil
}

func (s *MemoryStore) Get(ctx context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
