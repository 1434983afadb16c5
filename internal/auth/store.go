package auth

import (
	"context"
	"sync"
)

// Store keeps the token and its expiry across process restarts. Both
// entries are written and cleared together.
type Store interface {
	Load(ctx context.Context) (Record, bool, error)
	Save(ctx context.Context, record Record) error
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu     sync.Mutex
	record *Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return Record{}, false, nil
	}
	return *s.record, true, nil
}

func (s *MemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = &record
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}
