package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/feedrank/internal/domain/model"
	"github.com/okian/feedrank/pkg/metrics"
)

// MemoryStore keeps posts in a map. Callers always receive and hand over
// copies, so no pointer into the store escapes.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[int32]*model.Post
	opts  options
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		posts: make(map[int32]*model.Post),
		opts:  o,
	}
}

// LoadPost returns a copy of the stored post.
func (s *MemoryStore) LoadPost(ctx context.Context, id int32) (*model.Post, error) {
	defer observe(DriverMemory, "load", time.Now())

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Persist replaces the stored post with a copy of p.
func (s *MemoryStore) Persist(ctx context.Context, p *model.Post) error {
	defer observe(DriverMemory, "persist", time.Now())

	if err := validatePost(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[p.ID]; !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return ErrNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	s.posts[p.ID] = p.Clone()
	return nil
}

// Create inserts or replaces p.
func (s *MemoryStore) Create(ctx context.Context, p *model.Post) error {
	defer observe(DriverMemory, "create", time.Now())

	if err := validatePost(p); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.posts[p.ID] = p.Clone()
	return nil
}

// Delete removes a post. Deleting an unknown id is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
}

// Count returns the number of stored posts.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts), nil
}

// Driver returns DriverMemory.
func (s *MemoryStore) Driver() string { return DriverMemory }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
