package tokenstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore returns a process-local store, used for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

func (s *memoryStore) ReadAll(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (s *memoryStore) Get(_ context.Context, token string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[token]
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	return r, nil
}

func (s *memoryStore) Bind(_ context.Context, token, deviceID string, at time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[token]
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	if r.Bound() {
		return r, ErrAlreadyBound
	}
	r.DeviceID = deviceID
	r.RegisteredAt = at.UTC()
	s.records[token] = r
	return r, nil
}

func (s *memoryStore) Reset(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[token]
	if !ok {
		return ErrTokenNotFound
	}
	r.DeviceID = ""
	r.RegisteredAt = time.Time{}
	s.records[token] = r
	return nil
}

func (s *memoryStore) Issue(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[token]; ok {
		return ErrTokenExists
	}
	s.records[token] = Record{Token: token, CreatedAt: s.now().UTC()}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[token]; !ok {
		return ErrTokenNotFound
	}
	delete(s.records, token)
	return nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }

func (s *memoryStore) Close() error { return nil }
