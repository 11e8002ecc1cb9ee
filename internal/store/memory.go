package store

import (
	"sync"

	"github.com/nhle/carrylink/internal/model"
)

// MemoryStore implements Store in process memory. It lives for the
// application session and is emptied, never replaced, on sign-out.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications []model.Notification
	index         map[string]int
	subscribers   map[int]chan struct{}
	nextSubID     int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index:       make(map[string]int),
		subscribers: make(map[int]chan struct{}),
	}
}

// Add inserts n at the head of the store if no entry shares its ID.
func (s *MemoryStore) Add(n model.Notification) bool {
	s.mu.Lock()
	if _, exists := s.index[n.ID]; exists {
		s.mu.Unlock()
		return false
	}

	next := make([]model.Notification, 0, len(s.notifications)+1)
	next = append(next, n)
	next = append(next, s.notifications...)
	s.notifications = next
	s.reindex()
	s.mu.Unlock()

	s.notify()
	return true
}

// Set replaces the store contents wholesale. The input order is kept;
// a repeated ID keeps only its first occurrence.
func (s *MemoryStore) Set(list []model.Notification) {
	s.mu.Lock()
	next := make([]model.Notification, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, n := range list {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		next = append(next, n)
	}
	s.notifications = next
	s.reindex()
	s.mu.Unlock()

	s.notify()
}

// Merge refreshes the store from list without losing local state. Read
// flags never go back to false, and entries the store holds that list
// lacks, such as ones delivered after list was fetched, stay at the head.
func (s *MemoryStore) Merge(list []model.Notification) {
	s.mu.Lock()
	fetched := make(map[string]bool, len(list))
	for _, n := range list {
		fetched[n.ID] = true
	}

	next := make([]model.Notification, 0, len(s.notifications)+len(list))
	for _, n := range s.notifications {
		if !fetched[n.ID] {
			next = append(next, n)
		}
	}
	seen := make(map[string]bool, len(list))
	for _, n := range list {
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if i, ok := s.index[n.ID]; ok && s.notifications[i].Read {
			n.Read = true
		}
		next = append(next, n)
	}
	s.notifications = next
	s.reindex()
	s.mu.Unlock()

	s.notify()
}

// MarkAsRead sets Read on the matching entry. Calling it again, or with
// an unknown id, changes nothing.
func (s *MemoryStore) MarkAsRead(id string) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok || s.notifications[i].Read {
		s.mu.Unlock()
		return
	}
	s.notifications[i].Read = true
	s.mu.Unlock()

	s.notify()
}

// MarkAllAsRead sets Read on every entry.
func (s *MemoryStore) MarkAllAsRead() {
	s.mu.Lock()
	changed := false
	for i := range s.notifications {
		if !s.notifications[i].Read {
			s.notifications[i].Read = true
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// Remove deletes the entry with id.
func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.notifications = append(s.notifications[:i:i], s.notifications[i+1:]...)
	s.reindex()
	s.mu.Unlock()

	s.notify()
}

// Clear empties the store.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.notifications = nil
	s.index = make(map[string]int)
	s.mu.Unlock()

	s.notify()
}

// Contains reports whether an entry with id exists.
func (s *MemoryStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// Get returns the entry with id.
func (s *MemoryStore) Get(id string) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.Notification{}, false
	}
	return s.notifications[i], true
}

// UnreadCount returns the number of unread entries.
func (s *MemoryStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// Len returns the number of entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

// Snapshot returns a copy of all entries.
func (s *MemoryStore) Snapshot() []model.Notification {
	return s.Latest(-1)
}

// Latest returns a copy of at most n entries from the head. A negative
// n returns every entry.
func (s *MemoryStore) Latest(n int) []model.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n < 0 || n > len(s.notifications) {
		n = len(s.notifications)
	}
	out := make([]model.Notification, n)
	copy(out, s.notifications[:n])
	return out
}

// LatestUnread returns the unread entry closest to the head.
func (s *MemoryStore) LatestUnread() (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, n := range s.notifications {
		if !n.Read {
			return n, true
		}
	}
	return model.Notification{}, false
}

// Subscribe registers a change listener.
func (s *MemoryStore) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// reindex rebuilds the id index. Callers must hold mu.
func (s *MemoryStore) reindex() {
	s.index = make(map[string]int, len(s.notifications))
	for i, n := range s.notifications {
		s.index[n.ID] = i
	}
}

// notify signals every subscriber without blocking.
func (s *MemoryStore) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending for this subscriber.
		}
	}
}
