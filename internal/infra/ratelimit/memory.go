package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a per-process fallback backend. Each instance has an
// independent view of the counters, so it is only correct for
// single-instance and dev/test deployments; config validation refuses a
// production setup without the Redis backend.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) CheckAndIncrement(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.Sub(e.windowStart) >= e.window {
		s.entries[key] = &memoryEntry{count: 1, windowStart: now, window: window}
		return limit >= 1, nil
	}

	e.count++
	return e.count <= limit, nil
}

// Cleanup drops entries whose window has fully elapsed, keeping memory use
// bounded on long-lived processes.
func (s *MemoryStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, e := range s.entries {
		if now.Sub(e.windowStart) >= e.window {
			delete(s.entries, key)
		}
	}
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}
