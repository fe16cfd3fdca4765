package data

import (
	"os"
	"sort"
	"sync"
	"time"

	"battery-estimator/internal/estimate"

	"github.com/google/uuid"
)

// DefaultResultTTL is how long a stored result stays retrievable.
const DefaultResultTTL = time.Hour

// StoredResult is a finished estimation kept for later retrieval.
type StoredResult struct {
	ID        string            `json:"id"`
	Batch     string            `json:"batch"`
	Battery   int               `json:"battery"`
	Cycle     int               `json:"cycle"`
	Outcome   *estimate.Outcome `json:"outcome"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// ResultStore keeps estimation outcomes in memory, keyed by a random ID.
// A nil *ResultStore stores nothing.
type ResultStore struct {
	mu    sync.RWMutex
	store map[string]*StoredResult
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewResultStore returns a store whose entries expire after ttl.
// A non-positive ttl selects DefaultResultTTL.
func NewResultStore(ttl time.Duration) *ResultStore {
	return newResultStore(ttl, time.Now)
}

func newResultStore(ttl time.Duration, now func() time.Time) *ResultStore {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	s := &ResultStore{
		store: make(map[string]*StoredResult),
		ttl:   ttl,
		now:   now,
		stop:  make(chan struct{}),
	}
	go s.cleanup(cleanupInterval(ttl))
	return s
}

// NewResultStoreFromEnv reads the TTL from RESULT_TTL (a Go duration).
func NewResultStoreFromEnv() *ResultStore {
	ttl := DefaultResultTTL
	if v := os.Getenv("RESULT_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			ttl = parsed
		}
	}
	return NewResultStore(ttl)
}

// Put stores out and returns its ID.
func (s *ResultStore) Put(batch string, battery, cycle int, out *estimate.Outcome) string {
	if s == nil {
		return ""
	}
	now := s.now()
	r := &StoredResult{
		ID:        uuid.NewString(),
		Batch:     batch,
		Battery:   battery,
		Cycle:     cycle,
		Outcome:   out,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[r.ID] = r
	return r.ID
}

// Get returns a stored result if present and not expired.
func (s *ResultStore) Get(id string) (*StoredResult, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.store[id]
	if !ok || s.now().After(r.ExpiresAt) {
		return nil, false
	}
	return r, true
}

// List returns live results, newest first.
func (s *ResultStore) List() []*StoredResult {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]*StoredResult, 0, len(s.store))
	for _, r := range s.store {
		if !now.After(r.ExpiresAt) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Clear removes all entries.
func (s *ResultStore) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = make(map[string]*StoredResult)
}

// Close stops the cleanup goroutine.
func (s *ResultStore) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.stop) })
}

func (s *ResultStore) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evict()
		}
	}
}

func (s *ResultStore) evict() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, r := range s.store {
		if now.After(r.ExpiresAt) {
			delete(s.store, id)
		}
	}
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if every := ttl / 4; every < 5*time.Minute {
		return max(every, time.Second)
	}
	return 5 * time.Minute
}
