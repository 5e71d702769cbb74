package blockstore

import (
	"context"
	"sync"

	"github.com/subconsciousnetwork/noosphere-sub002/link"
)

// MemoryStore is an in-process Store backed by a map, grounded on the
// teacher's storageinterface.go read/write split but with no notion of a
// massif index: every block lives under its own content hash. Used for
// tests and short-lived sphere contexts that never persist.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: make(map[string][]byte)}
}

func (s *MemoryStore) GetBlock(ctx context.Context, h link.ContentHash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[string(h.Bytes())]
	if !ok {
		return nil, ErrBlockNotFound
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (s *MemoryStore) HasBlock(ctx context.Context, h link.ContentHash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[string(h.Bytes())]
	return ok, nil
}

func (s *MemoryStore) PutBlock(ctx context.Context, codec link.Codec, bytes []byte) (link.ContentHash, error) {
	h, err := link.Sum(codec, bytes)
	if err != nil {
		return link.ContentHash{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blocks[string(h.Bytes())]; !exists {
		stored := make([]byte, len(bytes))
		copy(stored, bytes)
		s.blocks[string(h.Bytes())] = stored
	}
	return h, nil
}

func (s *MemoryStore) PutLinks(ctx context.Context, roots []link.ContentHash, blocks map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range blocks {
		if _, exists := s.blocks[key]; exists {
			continue
		}
		stored := make([]byte, len(b))
		copy(stored, b)
		s.blocks[key] = stored
	}
	return nil
}

func (s *MemoryStore) Flush(ctx context.Context) error { return nil }

// Len reports how many blocks are currently stored, a test convenience.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks)
}
