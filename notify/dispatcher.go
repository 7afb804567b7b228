// Package notify records notifications for users and keeps their live connections up to date with new
// notifications and unread counts.
package notify

import (
	"context"
	"strings"
	"time"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/metrics"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/cyverse-de/skill-swap/registry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// The names of the events sent over live connections.
const (
	EventNotification      = "notification"
	EventNotificationCount = "notificationCount"
)

// Store describes the persistent store operations that the dispatcher needs. Every method that changes a
// user's notifications returns the user's unread count as computed by the same store transaction.
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	CreateNotification(ctx context.Context, notification *model.Notification) (int64, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID string, readAt time.Time) (int64, error)
	MarkAllNotificationsRead(ctx context.Context, userID string, readAt time.Time) (int64, error)
	DeleteNotification(ctx context.Context, notificationID, userID string) (int64, error)
	DeleteNotifications(ctx context.Context, userID string, readOnly bool) (int64, error)
	ListNotifications(ctx context.Context, userID string, filter model.NotificationFilter) ([]model.Notification, error)
}

// Publisher delivers an event to a user's live connections. Implementations must not block on slow
// subscribers and must not report delivery failures.
type Publisher interface {
	Publish(userID, event string, payload interface{})
}

// Mailer hands notifications off for e-mail delivery.
type Mailer interface {
	RequestEmail(ctx context.Context, user *model.User, notification *model.Notification) error
}

// NotificationEvent is the payload of a notification event.
type NotificationEvent struct {
	ID        string                 `json:"id"`
	Type      model.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	Timestamp string                 `json:"timestamp"`
	IsRead    bool                   `json:"isRead"`
}

// CountEvent is the payload of a notification count event.
type CountEvent struct {
	Count int64 `json:"count"`
}

// NewNotificationEvent builds the live event for a notification.
func NewNotificationEvent(notification *model.Notification) NotificationEvent {
	return NotificationEvent{
		ID:        notification.ID,
		Type:      notification.Type,
		Title:     notification.Title,
		Message:   notification.Message,
		Payload:   notification.Payload,
		CreatedAt: notification.CreatedAt,
		Timestamp: common.FormatTimestamp(notification.CreatedAt),
		IsRead:    notification.IsRead,
	}
}

// Dispatcher creates notifications and pushes them to live connections.
type Dispatcher struct {
	store     Store
	publisher Publisher
	registry  *registry.Registry
	mailer    Mailer
	locks     *userLocks
	now       func() time.Time
	log       *logrus.Entry
}

// New creates a new dispatcher. Events are published through the publisher, or directly to the registry if
// the publisher is nil.
func New(store Store, publisher Publisher, reg *registry.Registry, log *logrus.Entry) *Dispatcher {
	if publisher == nil {
		publisher = reg
	}
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		registry:  reg,
		locks:     newUserLocks(),
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

// WithMailer enables e-mail hand-off for templates that ask for it.
func (d *Dispatcher) WithMailer(mailer Mailer) *Dispatcher {
	d.mailer = mailer
	return d
}

func (d *Dispatcher) publishCount(userID string, count int64) {
	d.publisher.Publish(userID, EventNotificationCount, CountEvent{Count: count})
}

// Emit records a new unread notification for a user and pushes it, along with the user's unread count, to the
// user's live connections. Each call creates exactly one notification.
func (d *Dispatcher) Emit(
	ctx context.Context,
	userID string,
	notificationType model.NotificationType,
	title, message string,
	payload map[string]interface{},
) (*model.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, common.NewInvalidArgumentError("a notification requires a target user")
	}
	if !notificationType.Valid() {
		return nil, common.NewInvalidArgumentError("unknown notification type: %s", notificationType)
	}
	if strings.TrimSpace(title) == "" {
		return nil, common.NewInvalidArgumentError("a notification requires a title")
	}

	notification := &model.Notification{
		UserID:    userID,
		Type:      notificationType,
		Title:     title,
		Message:   message,
		Payload:   payload,
		IsRead:    false,
		CreatedAt: d.now(),
	}

	unlock := d.locks.lock(userID)
	defer unlock()

	unread, err := d.store.CreateNotification(ctx, notification)
	if err != nil {
		return nil, errors.Wrap(err, "unable to emit the notification")
	}
	metrics.NotificationsEmitted.WithLabelValues(string(notificationType)).Inc()

	d.publisher.Publish(userID, EventNotification, NewNotificationEvent(notification))
	d.publishCount(userID, unread)

	d.log.WithFields(logrus.Fields{
		"user":         userID,
		"type":         notificationType,
		"notification": notification.ID,
		"unread":       unread,
	}).Debug("notification emitted")

	return notification, nil
}

// Notify renders a template and emits the resulting notification. The template data becomes the payload.
func (d *Dispatcher) Notify(
	ctx context.Context,
	userID string,
	key TemplateKey,
	data map[string]interface{},
) (*model.Notification, error) {
	tmpl, err := LookupTemplate(key)
	if err != nil {
		return nil, err
	}
	title, message, err := tmpl.Render(data)
	if err != nil {
		return nil, err
	}

	notification, err := d.Emit(ctx, userID, tmpl.Type, title, message, data)
	if err != nil {
		return nil, err
	}

	if tmpl.Email {
		d.requestEmail(ctx, notification)
	}

	return notification, nil
}

// requestEmail hands a notification off for e-mail delivery. Failures are only logged.
func (d *Dispatcher) requestEmail(ctx context.Context, notification *model.Notification) {
	if d.mailer == nil {
		return
	}
	log := d.log.WithFields(logrus.Fields{"user": notification.UserID, "notification": notification.ID})

	user, err := d.store.GetUser(ctx, notification.UserID)
	if err != nil {
		log.WithError(err).Warn("unable to look up the user for an e-mail notification")
		return
	}
	if err = common.ValidateEmailAddress(user.Email); err != nil {
		log.WithError(err).Debug("skipping e-mail notification for a user without a valid address")
		return
	}
	if err = d.mailer.RequestEmail(ctx, user, notification); err != nil {
		log.WithError(err).Error("unable to request an e-mail notification")
	}
}

// MarkRead marks one of a user's notifications as read and pushes the new unread count.
func (d *Dispatcher) MarkRead(ctx context.Context, notificationID, userID string) (int64, error) {
	unlock := d.locks.lock(userID)
	defer unlock()

	unread, err := d.store.MarkNotificationRead(ctx, notificationID, userID, d.now())
	if err != nil {
		return 0, errors.Wrap(err, "unable to mark the notification as read")
	}
	d.publishCount(userID, unread)

	return unread, nil
}

// MarkAllRead marks all of a user's notifications as read and pushes the new unread count.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	unlock := d.locks.lock(userID)
	defer unlock()

	unread, err := d.store.MarkAllNotificationsRead(ctx, userID, d.now())
	if err != nil {
		return 0, errors.Wrap(err, "unable to mark all notifications as read")
	}
	d.publishCount(userID, unread)

	return unread, nil
}

// Delete removes one of a user's notifications and pushes the new unread count.
func (d *Dispatcher) Delete(ctx context.Context, notificationID, userID string) (int64, error) {
	unlock := d.locks.lock(userID)
	defer unlock()

	unread, err := d.store.DeleteNotification(ctx, notificationID, userID)
	if err != nil {
		return 0, errors.Wrap(err, "unable to delete the notification")
	}
	d.publishCount(userID, unread)

	return unread, nil
}

// Clear removes all of a user's notifications, or only the ones already read, and pushes the new unread count.
func (d *Dispatcher) Clear(ctx context.Context, userID string, readOnly bool) (int64, error) {
	unlock := d.locks.lock(userID)
	defer unlock()

	unread, err := d.store.DeleteNotifications(ctx, userID, readOnly)
	if err != nil {
		return 0, errors.Wrap(err, "unable to clear notifications")
	}
	d.publishCount(userID, unread)

	return unread, nil
}

// List lists a user's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, userID string, filter model.NotificationFilter) ([]model.Notification, error) {
	notifications, err := d.store.ListNotifications(ctx, userID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list notifications")
	}
	return notifications, nil
}

// UnreadCount returns the number of a user's unread notifications.
func (d *Dispatcher) UnreadCount(ctx context.Context, userID string) (int64, error) {
	unread, err := d.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "unable to count unread notifications")
	}
	return unread, nil
}

// Connect registers a live connection for a user and sends it the user's current unread count, so a client
// that reconnects sees everything that was recorded while it was away.
func (d *Dispatcher) Connect(ctx context.Context, userID string, conn registry.Conn) (*registry.Subscription, error) {
	unlock := d.locks.lock(userID)
	defer unlock()

	unread, err := d.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "unable to count unread notifications")
	}

	sub := d.registry.Join(userID, conn)
	sub.Send(EventNotificationCount, CountEvent{Count: unread})

	return sub, nil
}
