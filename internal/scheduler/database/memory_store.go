package database

import (
	"sync"

	"github.com/armadaproject/batchsched/internal/common/batchcontext"
)

// MemoryStateStore is a StateStore that lives only as long as the process.
// Documents are stored encoded, so callers never share state with the store.
type MemoryStateStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{docs: make(map[string][]byte)}
}

func (s *MemoryStateStore) Read(_ *batchcontext.Context, key string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decodeDocument(s.docs[key])
}

func (s *MemoryStateStore) Write(_ *batchcontext.Context, key string, doc Document, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if merge {
		existing, err := decodeDocument(s.docs[key])
		if err != nil {
			return err
		}
		doc = Merge(existing, doc)
	}
	bytes, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	s.docs[key] = bytes
	return nil
}
