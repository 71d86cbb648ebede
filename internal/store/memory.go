package store

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	list      []string
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store used when Redis is disabled and in
// unit tests. Semantics mirror the Redis commands the trackers use,
// including lazy TTL expiry.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*memoryEntry
	// now is swappable in tests to simulate clock advance.
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*memoryEntry),
		now:  time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// get returns a live entry or nil, dropping expired ones. Caller holds mu.
func (s *MemoryStore) get(key string) *memoryEntry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(s.now()) {
		delete(s.data, key)
		return nil
	}
	return e
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.data[key] = e
	return nil
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		e = &memoryEntry{}
		s.data[key] = e
	}
	cur, _ := strconv.ParseInt(e.value, 10, 64)
	cur += n
	e.value = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (s *MemoryStore) IncrByFloat(_ context.Context, key string, f float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		e = &memoryEntry{}
		s.data[key] = e
	}
	cur, _ := strconv.ParseFloat(e.value, 64)
	cur += f
	e.value = strconv.FormatFloat(cur, 'f', -1, 64)
	return cur, nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.get(key); e != nil && ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	return nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil || e.expiresAt.IsZero() {
		return -1, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *MemoryStore) LPush(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		e = &memoryEntry{}
		s.data[key] = e
	}
	e.list = append([]string{value}, e.list...)
	return nil
}

func (s *MemoryStore) LTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		return nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		e.list = nil
		return nil
	}
	e.list = e.list[start : stop+1]
	return nil
}

func (s *MemoryStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(key)
	if e == nil {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}
