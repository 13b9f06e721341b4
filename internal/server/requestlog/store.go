// Package requestlog keeps the most recent API requests, with the sanitizer
// outcome of each, in an in-memory ring buffer.
package requestlog

import (
	"strings"
	"sync"
	"time"
)

// Entry represents a single HTTP request log entry.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Status     int       `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	BytesIn    int64     `json:"bytes_in"`
	BytesOut   int64     `json:"bytes_out"`
	ClientIP   string    `json:"client_ip"`
	Strategy   string    `json:"strategy,omitempty"`
	Removed    int       `json:"removed"`
	ErrorCode  string    `json:"error_code,omitempty"`
}

// Store is a thread-safe ring buffer for request logs.
type Store struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

// NewStore creates a new request log store with the given capacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Store{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Add appends a new entry to the store.
func (s *Store) Add(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.head] = entry
	s.head = (s.head + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
}

// FilterOptions specifies criteria for filtering log entries.
type FilterOptions struct {
	Method     string
	PathPrefix string
	Strategy   string
	MinStatus  int
	MaxStatus  int
	// MinRemoved keeps only requests whose sanitizer removed at least this
	// many items.
	MinRemoved int
	Since      time.Time
	Limit      int
	Offset     int
}

// ListResult is one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// List returns log entries matching the filter options.
// Entries are returned in reverse chronological order (newest first).
func (s *Store) List(opts FilterOptions) ListResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	var filtered []Entry

	// Iterate in reverse order (newest first)
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.capacity) % s.capacity
		entry := s.entries[idx]

		if matches(entry, opts) {
			filtered = append(filtered, entry)
		}
	}

	total := len(filtered)

	// Apply pagination
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}

	return ListResult{
		Entries: filtered[start:end],
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	}
}

func matches(entry Entry, opts FilterOptions) bool {
	switch {
	case opts.Method != "" && !strings.EqualFold(entry.Method, opts.Method):
		return false
	case opts.PathPrefix != "" && !strings.HasPrefix(entry.Path, opts.PathPrefix):
		return false
	case opts.Strategy != "" && entry.Strategy != opts.Strategy:
		return false
	case opts.MinStatus != 0 && entry.Status < opts.MinStatus:
		return false
	case opts.MaxStatus != 0 && entry.Status > opts.MaxStatus:
		return false
	case entry.Removed < opts.MinRemoved:
		return false
	case !opts.Since.IsZero() && entry.Timestamp.Before(opts.Since):
		return false
	}
	return true
}

// Count returns the number of entries currently in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

type Stats struct {
	Capacity int `json:"capacity"`
	Count    int `json:"count"`
	// Removed is the total number of items the sanitizer dropped across
	// the buffered requests.
	Removed int `json:"removed"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Capacity: s.capacity,
		Count:    s.count,
	}
	for i := 0; i < s.count; i++ {
		stats.Removed += s.entries[i].Removed
	}
	return stats
}
