// Package memstore provides an in-memory implementation of the persistent store used by the swap engine and
// the notification dispatcher. It is used for local development and in tests; every method holds a single
// mutex, so each call is atomic with respect to every other call.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/google/uuid"
)

// Store is an in-memory persistent store.
type Store struct {
	mu            sync.Mutex
	users         map[string]model.User
	swaps         map[string]*model.SwapRequest
	notifications map[string]*model.Notification
	feedback      map[string]*model.Feedback
	seq           int64
	seqOf         map[string]int64
}

// New returns a new, empty in-memory store.
func New() *Store {
	return &Store{
		users:         make(map[string]model.User),
		swaps:         make(map[string]*model.SwapRequest),
		notifications: make(map[string]*model.Notification),
		feedback:      make(map[string]*model.Feedback),
		seqOf:         make(map[string]int64),
	}
}

// PutUser adds or replaces a user.
func (s *Store) PutUser(user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// nextID assigns a new identifier and remembers its insertion order.
func (s *Store) nextID() string {
	id := uuid.New().String()
	s.seq++
	s.seqOf[id] = s.seq
	return id
}

// newerFirst orders records by creation time and then by insertion order, newest first.
func (s *Store) newerFirst(aID string, aTime time.Time, bID string, bTime time.Time) bool {
	if !aTime.Equal(bTime) {
		return aTime.After(bTime)
	}
	return s.seqOf[aID] > s.seqOf[bID]
}

func page[T any](items []T, limit, offset uint64) []T {
	if offset >= uint64(len(items)) {
		return make([]T, 0)
	}
	items = items[offset:]
	if limit > 0 && limit < uint64(len(items)) {
		items = items[:limit]
	}
	return items
}

// GetUser obtains the profile summary for a user.
func (s *Store) GetUser(_ context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, common.NewNotFoundError("user %s not found", userID)
	}
	return &user, nil
}

// CreateSwapRequest stores a new swap request unless an equivalent pending request already exists between
// the same two users.
func (s *Store) CreateSwapRequest(_ context.Context, req *model.SwapRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.swaps {
		if existing.Status != model.SwapPending {
			continue
		}
		same := existing.SenderID == req.SenderID && existing.ReceiverID == req.ReceiverID &&
			existing.OfferedSkill == req.OfferedSkill && existing.RequestedSkill == req.RequestedSkill
		mirrored := existing.SenderID == req.ReceiverID && existing.ReceiverID == req.SenderID &&
			existing.OfferedSkill == req.RequestedSkill && existing.RequestedSkill == req.OfferedSkill
		if same || mirrored {
			return common.NewInvalidArgumentError(
				"a pending request for %s and %s already exists between these users",
				req.OfferedSkill, req.RequestedSkill,
			)
		}
	}

	req.ID = s.nextID()
	stored := *req
	s.swaps[req.ID] = &stored
	return nil
}

// GetSwapRequest obtains a single swap request.
func (s *Store) GetSwapRequest(_ context.Context, swapID string) (*model.SwapRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.swaps[swapID]
	if !ok {
		return nil, common.NewNotFoundError("swap request %s not found", swapID)
	}
	result := *req
	return &result, nil
}

// TransitionSwapRequest moves a swap request from one status to another if it is still in the expected status.
func (s *Store) TransitionSwapRequest(
	_ context.Context,
	swapID string,
	from, to model.SwapStatus,
	at time.Time,
) (*model.SwapRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.swaps[swapID]
	if !ok || req.Status != from {
		return nil, false, nil
	}
	req.Status = to
	req.UpdatedAt = at
	if to == model.SwapCompleted {
		completedAt := at
		req.CompletedAt = &completedAt
	}
	result := *req
	return &result, true, nil
}

// ListSwapRequests lists swap requests for a user, newest first.
func (s *Store) ListSwapRequests(_ context.Context, filter model.SwapFilter) ([]model.SwapRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := make([]model.SwapRequest, 0)
	for _, req := range s.swaps {
		switch filter.Role {
		case model.SwapRoleSender:
			if req.SenderID != filter.UserID {
				continue
			}
		case model.SwapRoleReceiver:
			if req.ReceiverID != filter.UserID {
				continue
			}
		default:
			if !req.Involves(filter.UserID) {
				continue
			}
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		requests = append(requests, *req)
	}
	sort.Slice(requests, func(i, j int) bool {
		return s.newerFirst(requests[i].ID, requests[i].CreatedAt, requests[j].ID, requests[j].CreatedAt)
	})
	return page(requests, filter.Limit, filter.Offset), nil
}

// CreateFeedback stores feedback for a swap request.
func (s *Store) CreateFeedback(_ context.Context, feedback *model.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.feedback {
		if existing.SwapID == feedback.SwapID && existing.GiverID == feedback.GiverID {
			return common.NewInvalidArgumentError("feedback has already been given for swap request %s", feedback.SwapID)
		}
	}

	feedback.ID = s.nextID()
	stored := *feedback
	s.feedback[feedback.ID] = &stored
	return nil
}

// countUnread must be called with the mutex held.
func (s *Store) countUnread(userID string) int64 {
	var count int64
	for _, notification := range s.notifications {
		if notification.UserID == userID && !notification.IsRead {
			count++
		}
	}
	return count
}

// CreateNotification saves a notification and returns the user's unread count.
func (s *Store) CreateNotification(_ context.Context, notification *model.Notification) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification.ID = s.nextID()
	stored := *notification
	s.notifications[notification.ID] = &stored
	return s.countUnread(notification.UserID), nil
}

// CountUnreadNotifications counts a user's unread notifications.
func (s *Store) CountUnreadNotifications(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countUnread(userID), nil
}

// MarkNotificationRead marks one of a user's notifications as read and returns the remaining unread count.
func (s *Store) MarkNotificationRead(_ context.Context, notificationID, userID string, readAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification, ok := s.notifications[notificationID]
	if !ok || notification.UserID != userID {
		return 0, common.NewNotFoundError("notification %s not found", notificationID)
	}
	if !notification.IsRead {
		notification.IsRead = true
		stamp := readAt
		notification.ReadAt = &stamp
	}
	return s.countUnread(userID), nil
}

// MarkAllNotificationsRead marks all of a user's notifications as read and returns the remaining unread count.
func (s *Store) MarkAllNotificationsRead(_ context.Context, userID string, readAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, notification := range s.notifications {
		if notification.UserID == userID && !notification.IsRead {
			notification.IsRead = true
			stamp := readAt
			notification.ReadAt = &stamp
		}
	}
	return s.countUnread(userID), nil
}

// DeleteNotification removes one of a user's notifications and returns the remaining unread count.
func (s *Store) DeleteNotification(_ context.Context, notificationID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notification, ok := s.notifications[notificationID]
	if !ok || notification.UserID != userID {
		return 0, common.NewNotFoundError("notification %s not found", notificationID)
	}
	delete(s.notifications, notificationID)
	return s.countUnread(userID), nil
}

// DeleteNotifications clears a user's notifications and returns the remaining unread count.
func (s *Store) DeleteNotifications(_ context.Context, userID string, readOnly bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, notification := range s.notifications {
		if notification.UserID != userID || (readOnly && !notification.IsRead) {
			continue
		}
		delete(s.notifications, id)
	}
	return s.countUnread(userID), nil
}

// ListNotifications lists a user's notifications, newest first.
func (s *Store) ListNotifications(
	_ context.Context,
	userID string,
	filter model.NotificationFilter,
) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notifications := make([]model.Notification, 0)
	for _, notification := range s.notifications {
		if notification.UserID != userID {
			continue
		}
		if filter.UnreadOnly && notification.IsRead {
			continue
		}
		if filter.Type != "" && notification.Type != filter.Type {
			continue
		}
		notifications = append(notifications, *notification)
	}
	sort.Slice(notifications, func(i, j int) bool {
		a, b := notifications[i], notifications[j]
		return s.newerFirst(a.ID, a.CreatedAt, b.ID, b.CreatedAt)
	})
	return page(notifications, filter.Limit, filter.Offset), nil
}
