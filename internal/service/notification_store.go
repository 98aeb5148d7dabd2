package service

import (
	"sort"
	"sync"

	"github.com/prperemyshlev/shop-session/internal/domain"
)

// NotificationStore is the in-memory notification list: unique by id, newest
// first, with an unread count that always equals the unread records.
type NotificationStore struct {
	mu      sync.RWMutex
	records []domain.Notification
	index   map[string]int
	unread  int
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{index: make(map[string]int)}
}

// ReplaceAll loads records only while the store is empty, so a slow backup
// pull never clobbers live state. It reports whether the records were applied.
func (s *NotificationStore) ReplaceAll(records []domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) > 0 {
		return false
	}

	seen := make(map[string]struct{}, len(records))
	next := make([]domain.Notification, 0, len(records))
	for _, n := range records {
		n.Normalize()
		if n.Validate() != nil {
			continue
		}
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		next = append(next, n)
	}

	sort.SliceStable(next, func(i, j int) bool {
		return next[i].CreatedAt.After(next[j].CreatedAt)
	})

	s.records = next
	s.reindexLocked()
	s.recountLocked()
	return true
}

// UpsertOne prepends n unless its id is already present. It returns false for
// a duplicate delivery.
func (s *NotificationStore) UpsertOne(n domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[n.ID]; ok {
		return false
	}

	s.records = append([]domain.Notification{n}, s.records...)
	s.reindexLocked()
	if !n.IsRead {
		s.unread++
	}
	return true
}

// MarkRead marks one record read. Unknown or already read ids are ignored.
func (s *NotificationStore) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok || s.records[i].IsRead {
		return false
	}
	s.records[i].IsRead = true
	s.unread = max(s.unread-1, 0)
	return true
}

// MarkAllRead marks every record read
func (s *NotificationStore) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		s.records[i].IsRead = true
	}
	s.unread = 0
}

// Reset empties the store
func (s *NotificationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.index = make(map[string]int)
	s.unread = 0
}

// List returns a copy of the records, newest first
func (s *NotificationStore) List() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Notification, len(s.records))
	copy(out, s.records)
	return out
}

func (s *NotificationStore) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

func (s *NotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *NotificationStore) reindexLocked() {
	s.index = make(map[string]int, len(s.records))
	for i, n := range s.records {
		s.index[n.ID] = i
	}
}

func (s *NotificationStore) recountLocked() {
	s.unread = 0
	for _, n := range s.records {
		if !n.IsRead {
			s.unread++
		}
	}
}
