package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/sse"
)

// NotificationAPI is the slice of the backend client the notification store uses.
type NotificationAPI interface {
	ListNotifications(ctx context.Context, userID string, req domain.PageRequest) (domain.Page[domain.Notification], error)
	UnreadNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
}

// NotificationStore caches the current user's notifications.
//
// The unread counter starts from the server's count. Every id seen through
// REST is assumed to be part of that count; only an unread id first seen
// through a push raises it. Repeated deliveries of one id therefore count once.
//
// Responses to requests started before Clear are discarded.
type NotificationStore struct {
	loading
	api           NotificationAPI
	deps          Deps
	notifications *Collection[domain.Notification]
	now           func() time.Time

	mu          sync.RWMutex
	epoch       uint64
	cursor      domain.Cursor
	unreadOrder []string
	unread      int64
	counted     map[string]struct{}
}

// NewNotificationStore creates a notification store.
func NewNotificationStore(api NotificationAPI, deps Deps) *NotificationStore {
	deps = deps.withDefaults()
	return &NotificationStore{
		api:  api,
		deps: deps,
		notifications: NewCollection("notifications",
			func(n *domain.Notification) string { return n.ID },
			func(n *domain.Notification) time.Time { return n.Version() },
		).WithIndex("type", func(n *domain.Notification) []string {
			return []string{string(n.Type)}
		}).OnStale(deps.staleHook()),
		now:     time.Now,
		counted: make(map[string]struct{}),
	}
}

// FetchPage loads one page of notifications with page semantics.
func (s *NotificationStore) FetchPage(ctx context.Context, userID string, req domain.PageRequest) ([]domain.Notification, error) {
	defer s.start()()

	epoch := s.currentEpoch()
	page, err := s.api.ListNotifications(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return page.Items, nil
	}
	var stored []domain.Notification
	if req.Page == 0 {
		stored = s.notifications.Reset(page.Items)
	} else {
		stored = s.notifications.Extend(page.Items)
	}
	s.cursor = page.Cursor
	for _, n := range stored {
		s.counted[n.ID] = struct{}{}
	}
	s.mu.Unlock()
	return stored, nil
}

// FetchUnread loads the complete unread list; its length becomes the counter.
func (s *NotificationStore) FetchUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	defer s.start()()

	epoch := s.currentEpoch()
	list, err := s.api.UnreadNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}

	order := make([]string, 0, len(list))
	out := make([]domain.Notification, 0, len(list))
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return list, nil
	}
	for _, n := range list {
		stored, _ := s.notifications.Put(n, Detached)
		if slices.Contains(order, stored.ID) {
			continue
		}
		order = append(order, stored.ID)
		out = append(out, stored)
		s.counted[stored.ID] = struct{}{}
	}
	s.setUnreadOrderLocked(order)
	s.unread = int64(len(order))
	unread := s.unread
	s.mu.Unlock()

	s.deps.Emitter.Emit(sse.NewNotificationCountEvent(userID, unread))
	return out, nil
}

// FetchUnreadCount loads the server's unread counter.
func (s *NotificationStore) FetchUnreadCount(ctx context.Context, userID string) (int64, error) {
	defer s.start()()

	epoch := s.currentEpoch()
	count, err := s.api.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return count, nil
	}
	s.unread = max(count, 0)
	for _, id := range s.notifications.IDs() {
		s.counted[id] = struct{}{}
	}
	for _, id := range s.unreadOrder {
		s.counted[id] = struct{}{}
	}
	s.mu.Unlock()

	s.deps.Emitter.Emit(sse.NewNotificationCountEvent(userID, count))
	return count, nil
}

// MarkAsRead marks one notification read. The counter drops by one, never below zero,
// unless the notification was already known to be read.
func (s *NotificationStore) MarkAsRead(ctx context.Context, id, userID string) error {
	defer s.start()()

	epoch := s.currentEpoch()
	if err := s.api.MarkNotificationRead(ctx, id, userID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil
	}
	alreadyRead := false
	if held, ok := s.notifications.Get(id); ok {
		alreadyRead = held.IsRead
	}
	now := s.now()
	stored, changed := s.notifications.Patch(id, func(n *domain.Notification) bool {
		if n.IsRead {
			return false
		}
		n.IsRead = true
		n.ReadAt = &now
		return true
	})

	s.setUnreadOrderLocked(slices.DeleteFunc(s.unreadOrder, func(o string) bool { return o == id }))
	if !alreadyRead {
		s.unread = max(s.unread-1, 0)
	}
	unread := s.unread

	if changed {
		s.deps.Emitter.Emit(sse.NewNotificationReadEvent(stored))
	}
	s.deps.Emitter.Emit(sse.NewNotificationCountEvent(userID, unread))
	return nil
}

// MarkAllAsRead marks every notification read and zeroes the counter.
func (s *NotificationStore) MarkAllAsRead(ctx context.Context, userID string) error {
	defer s.start()()

	epoch := s.currentEpoch()
	if err := s.api.MarkAllNotificationsRead(ctx, userID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil
	}
	now := s.now()
	changed := s.notifications.PatchWhere(
		func(n *domain.Notification) bool { return !n.IsRead },
		func(n *domain.Notification) bool {
			n.IsRead = true
			n.ReadAt = &now
			return true
		})

	s.setUnreadOrderLocked(nil)
	s.unread = 0

	for _, n := range changed {
		s.deps.Emitter.Emit(sse.NewNotificationReadEvent(n))
	}
	s.deps.Emitter.Emit(sse.NewNotificationCountEvent(userID, 0))
	return nil
}

// MergeFromPush adds a pushed notification. New ids are prepended while the
// first page is shown; an unread id seen for the first time raises the counter.
func (s *NotificationStore) MergeFromPush(n domain.Notification) Outcome {
	where := Detached
	if s.Cursor().Page == 0 {
		where = Prepend
	}
	stored, outcome := s.notifications.Put(n, where)
	if outcome == Stale {
		return outcome
	}

	s.mu.Lock()
	_, seen := s.counted[stored.ID]
	raised := !seen && !stored.IsRead
	if raised {
		s.counted[stored.ID] = struct{}{}
		s.unread++
		s.setUnreadOrderLocked(slices.Insert(s.unreadOrder, 0, stored.ID))
	}
	unread := s.unread
	s.mu.Unlock()

	if outcome == Inserted {
		s.deps.Emitter.Emit(sse.NewNotificationCreatedEvent(stored))
	}
	if raised {
		s.deps.Emitter.Emit(sse.NewNotificationCountEvent(stored.RecipientID, unread))
	}
	return outcome
}

// UnreadCount returns the unread counter.
func (s *NotificationStore) UnreadCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Unread returns the cached unread notifications, newest first.
func (s *NotificationStore) Unread() []domain.Notification {
	s.mu.RLock()
	ids := slices.Clone(s.unreadOrder)
	s.mu.RUnlock()

	out := make([]domain.Notification, 0, len(ids))
	for _, id := range ids {
		if n, ok := s.notifications.Get(id); ok && !n.IsRead {
			out = append(out, n)
		}
	}
	return out
}

// List returns the ordered notification view.
func (s *NotificationStore) List() []domain.Notification {
	return s.notifications.List()
}

// Get returns a cached notification.
func (s *NotificationStore) Get(id string) (domain.Notification, bool) {
	return s.notifications.Get(id)
}

// Filter returns cached notifications of type t (any type when empty),
// optionally restricted to unread ones.
func (s *NotificationStore) Filter(t domain.NotificationType, unreadOnly bool) []domain.Notification {
	return s.notifications.Filter(func(n *domain.Notification) bool {
		if t != "" && n.Type != t {
			return false
		}
		return !unreadOnly || !n.IsRead
	})
}

// Stats summarizes the notification view.
func (s *NotificationStore) Stats() domain.NotificationStats {
	stats := domain.NotificationStats{ByType: make(map[domain.NotificationType]int)}
	for _, n := range s.notifications.List() {
		stats.Total++
		if !n.IsRead {
			stats.Unread++
		}
		stats.ByType[n.Type]++
	}
	return stats
}

// Cursor returns the pagination state of the last page load.
func (s *NotificationStore) Cursor() domain.Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Clear forgets everything. It runs on sign-out.
func (s *NotificationStore) Clear() {
	s.mu.Lock()
	s.epoch++
	s.notifications.Clear()
	s.cursor = domain.Cursor{}
	s.unreadOrder = nil
	s.unread = 0
	s.counted = make(map[string]struct{})
	s.mu.Unlock()
}

func (s *NotificationStore) currentEpoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// setUnreadOrderLocked replaces the unread view and keeps its entities
// pinned in the collection so a first-page reload cannot evict them.
func (s *NotificationStore) setUnreadOrderLocked(order []string) {
	s.unreadOrder = order
	s.notifications.Pin("unread", order)
}
