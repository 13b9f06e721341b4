// Package ratelimit throttles API clients with fixed-window counters kept in
// a pluggable Store.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Store counts hits per key within a fixed time window.
type Store interface {
	// Increment adds one hit for key in the window containing now and
	// returns the hit count for that window so far.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// bucketKey names the window that t falls into. Every store derives its keys
// the same way so counts agree across stores.
func bucketKey(key string, window time.Duration, t time.Time) (string, time.Time) {
	idx := t.UnixNano() / int64(window)
	expires := time.Unix(0, (idx+1)*int64(window))
	return key + ":" + strconv.FormatInt(idx, 10), expires
}

// MemoryStore keeps counters in process memory. Expired windows are removed
// by a cleanup goroutine; call Stop to release it.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
	cleanup  *time.Ticker
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

type counter struct {
	hits    int64
	expires time.Time
}

// NewMemoryStore creates a MemoryStore that sweeps expired windows every
// cleanupInterval.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]*counter),
		now:      time.Now,
		cleanup:  time.NewTicker(cleanupInterval),
		stopCh:   make(chan struct{}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cleanupLoop()
	}()

	return s
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	now := s.now()
	k, expires := bucketKey(key, window, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[k]
	if !ok {
		c = &counter{expires: expires}
		s.counters[k] = c
	}
	c.hits++
	return c.hits, nil
}

// Len returns the number of live counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func (s *MemoryStore) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, c := range s.counters {
		if !now.Before(c.expires) {
			delete(s.counters, k)
		}
	}
}

func (s *MemoryStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanup.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cleanup.Stop()
		s.wg.Wait()
	})
}

// Close stops the cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.Stop()
	return nil
}
