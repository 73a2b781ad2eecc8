package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/teacherrate/internal/cache"
)

const memorySweepInterval = time.Minute

// RateStore counts hits for a key within a fixed window and reports how long
// until the window resets.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// memoryRateStore is a process-local RateStore. Expired windows are swept
// lazily from Increment, so no background goroutine outlives the router.
type memoryRateStore struct {
	mu        sync.Mutex
	windows   map[string]rateWindow
	nextSweep time.Time
	clock     func() time.Time
}

type rateWindow struct {
	hits    int
	resetAt time.Time
}

// NewMemoryRateStore constructs an in-memory rate store.
func NewMemoryRateStore() RateStore {
	return newMemoryRateStore(time.Now)
}

func newMemoryRateStore(clock func() time.Time) *memoryRateStore {
	return &memoryRateStore{windows: make(map[string]rateWindow), clock: clock}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.After(s.nextSweep) {
		for k, w := range s.windows {
			if !now.Before(w.resetAt) {
				delete(s.windows, k)
			}
		}
		s.nextSweep = now.Add(memorySweepInterval)
	}

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = rateWindow{resetAt: now.Add(window)}
	}
	w.hits++
	s.windows[key] = w

	return w.hits, w.resetAt.Sub(now), nil
}

func (s *memoryRateStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// cacheRateStore keeps counters in a shared cache.Store so limits hold across
// instances.
type cacheRateStore struct {
	store cache.Store
}

// NewCacheRateStore wraps a cache store, Redis or database backed, in a RateStore.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &cacheRateStore{store: store}
}

func (s *cacheRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
