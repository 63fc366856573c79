package cache

import (
	"container/list"
	"context"
	"sync"
)

// MemoryStore is a thread-safe LRU Store for hosts that do not want summaries
// on disk. Capacity bounds resident summaries; eviction is least recently
// used by email identity.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lru      *list.List
}

type lruEntry struct {
	key   string
	value Entry
}

// NewMemoryStore creates a store holding at most capacity entries
// (default 512 when capacity <= 0).
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 512
	}
	return &MemoryStore{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
	}
}

func (s *MemoryStore) Get(_ context.Context, emailID string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[emailID]
	if !ok {
		return Entry{}, false, nil
	}
	s.lru.MoveToFront(elem)
	return elem.Value.(*lruEntry).value, true, nil
}

func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[entry.EmailID]; ok {
		s.lru.MoveToFront(elem)
		elem.Value.(*lruEntry).value = entry
		return nil
	}

	elem := s.lru.PushFront(&lruEntry{key: entry.EmailID, value: entry})
	s.items[entry.EmailID] = elem

	if s.lru.Len() > s.capacity {
		oldest := s.lru.Back()
		if oldest != nil {
			s.lru.Remove(oldest)
			delete(s.items, oldest.Value.(*lruEntry).key)
		}
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, emailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[emailID]; ok {
		s.lru.Remove(elem)
		delete(s.items, emailID)
	}
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*list.Element, s.capacity)
	s.lru.Init()
	return nil
}

// Len returns the number of resident entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

var _ Store = (*MemoryStore)(nil)
