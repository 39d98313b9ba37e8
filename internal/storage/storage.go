package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"propresize/internal/pipeline"
)

// ErrNotFound is returned for unknown, released or expired result IDs.
var ErrNotFound = errors.New("result not found")

// Entry is a finished resize held for download.
type Entry struct {
	ID        string
	Name      string // original upload filename
	Result    *pipeline.ResizeResult
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Results is an in-memory registry of finished resizes. Entries live until
// they are released or their TTL passes; nothing is written to disk.
type Results struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewResults creates a registry whose entries expire after ttl.
func NewResults(ttl time.Duration) *Results {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Results{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Put stores res and returns its entry with a fresh ID.
func (s *Results) Put(name string, res *pipeline.ResizeResult) *Entry {
	now := s.now()
	e := &Entry{
		ID:        uuid.NewString(),
		Name:      name,
		Result:    res,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	s.entries[e.ID] = e
	s.mu.Unlock()
	return e
}

// Get returns the entry for id if it exists and has not expired.
func (s *Results) Get(id string) (*Entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || !s.now().Before(e.ExpiresAt) {
		return nil, ErrNotFound
	}
	return e, nil
}

// Release drops the entry for id. Releasing twice returns ErrNotFound.
func (s *Results) Release(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

// Sweep removes entries that expired at or before now and returns how many
// were removed.
func (s *Results) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if !now.Before(e.ExpiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (s *Results) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
