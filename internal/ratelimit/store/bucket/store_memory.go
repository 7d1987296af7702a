package bucket

import (
	"context"
	"sync"
	"time"

	"carepilot/internal/ratelimit/models"
)

// InMemoryBucketStore counts requests per key in fixed windows. Counts are
// local to the process; use RedisBucketStore to share them across instances.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	start time.Time
	count int
}

func NewInMemoryBucketStore() *InMemoryBucketStore {
	return &InMemoryBucketStore{
		buckets: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

// Allow counts one request against key. The count is read and incremented
// under one lock, so no two callers in this process see the same count.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := s.now()
	start := models.Window(now, window)

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.buckets[key]
	if w == nil || !w.start.Equal(start) {
		w = &fixedWindow{start: start}
		s.buckets[key] = w
		s.sweep(start)
	}
	w.count++
	return models.NewResult(w.count, limit, start, window, now), nil
}

// Reset clears the counter for a key.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// GetCurrentCount returns the count in the current window for a key.
func (s *InMemoryBucketStore) GetCurrentCount(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.buckets[key]
	if w == nil || !w.start.Equal(models.Window(s.now(), window)) {
		return 0, nil
	}
	return w.count, nil
}

// sweep drops windows that ended before current. Must be called with s.mu held.
func (s *InMemoryBucketStore) sweep(current time.Time) {
	for key, w := range s.buckets {
		if w.start.Before(current) {
			delete(s.buckets, key)
		}
	}
}
