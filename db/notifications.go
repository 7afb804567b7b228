package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// notificationColumns lists the columns selected for a notification listing, in scan order.
var notificationColumns = []string{
	"n.id",
	"n.user_id",
	"t.name",
	"n.title",
	"n.message",
	"n.payload",
	"n.is_read",
	"n.created_at",
	"n.read_at",
}

// CountUnreadNotifications counts the number of notifications for the user that haven't been marked as read.
func CountUnreadNotifications(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	wrapMsg := "unable to count unread notifications"
	var total int64

	// Build the statement to count the unread notifications.
	statement, args, err := psql.
		Select("count(*)").
		From("notifications").
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"is_read": false}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	err = tx.QueryRowContext(ctx, statement, args...).Scan(&total)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return total, nil
}

// SaveNotification saves a single notification into the database, scanning the assigned ID into the
// notification structure.
func SaveNotification(ctx context.Context, tx *sql.Tx, notification *model.Notification) error {
	wrapMsg := "unable to save notification"

	// Get the notification type ID.
	notificationTypeID, err := GetNotificationTypeID(ctx, tx, notification.Type)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Encode the payload. A missing payload is stored as NULL.
	var payload interface{}
	if notification.Payload != nil {
		encoded, err := json.Marshal(notification.Payload)
		if err != nil {
			return errors.Wrap(err, wrapMsg)
		}
		payload = string(encoded)
	}

	// Build the statement to insert the notification.
	statement, args, err := psql.
		Insert("notifications").
		Columns(
			"notification_type_id",
			"user_id",
			"title",
			"message",
			"payload",
			"is_read",
			"created_at").
		Values(
			notificationTypeID,
			notification.UserID,
			notification.Title,
			notification.Message,
			payload,
			notification.IsRead,
			notification.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the insert statement, scanning the ID into the notification structure.
	row := tx.QueryRowContext(ctx, statement, args...)
	err = row.Scan(&notification.ID)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// MarkNotificationRead marks a single notification belonging to a user as read. The original read time is
// kept if the notification was already read. A NotFoundError is returned if the user has no such
// notification.
func MarkNotificationRead(ctx context.Context, tx *sql.Tx, notificationID, userID string, readAt time.Time) error {
	wrapMsg := "unable to mark the notification as read"

	// Build the update statement.
	statement, args, err := psql.
		Update("notifications").
		Set("is_read", true).
		Set("read_at", sq.Expr("coalesce(read_at, ?)", readAt)).
		Where(sq.Eq{"id": notificationID, "user_id": userID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the statement and verify that the notification was found.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if rowsAffected == 0 {
		return common.NewNotFoundError("notification %s not found", notificationID)
	}

	return nil
}

// MarkAllNotificationsRead marks every unread notification belonging to a user as read, returning the
// number of notifications that were updated.
func MarkAllNotificationsRead(ctx context.Context, tx *sql.Tx, userID string, readAt time.Time) (int64, error) {
	wrapMsg := "unable to mark all notifications as read"

	// Build the update statement.
	statement, args, err := psql.
		Update("notifications").
		Set("is_read", true).
		Set("read_at", readAt).
		Where(sq.Eq{"user_id": userID, "is_read": false}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}

// DeleteNotification removes a single notification belonging to a user. A NotFoundError is returned if the
// user has no such notification.
func DeleteNotification(ctx context.Context, tx *sql.Tx, notificationID, userID string) error {
	wrapMsg := "unable to delete the notification"

	// Build the delete statement.
	statement, args, err := psql.
		Delete("notifications").
		Where(sq.Eq{"id": notificationID, "user_id": userID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the statement and verify that the notification was found.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if rowsAffected == 0 {
		return common.NewNotFoundError("notification %s not found", notificationID)
	}

	return nil
}

// DeleteNotifications removes all of a user's notifications, or only the ones that have been read.
func DeleteNotifications(ctx context.Context, tx *sql.Tx, userID string, readOnly bool) (int64, error) {
	wrapMsg := "unable to delete notifications"

	// Build the delete statement.
	builder := psql.Delete("notifications").Where(sq.Eq{"user_id": userID})
	if readOnly {
		builder = builder.Where(sq.Eq{"is_read": true})
	}
	statement, args, err := builder.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	result, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return rowsAffected, nil
}

// ListNotifications lists a user's notifications, newest first.
func ListNotifications(
	ctx context.Context,
	tx *sql.Tx,
	userID string,
	filter model.NotificationFilter,
) ([]model.Notification, error) {
	wrapMsg := "unable to list notifications"

	// Build the query.
	builder := psql.
		Select(notificationColumns...).
		From("notifications n").
		Join("notification_types t ON n.notification_type_id = t.id").
		Where(sq.Eq{"n.user_id": userID}).
		OrderBy("n.created_at DESC", "n.id DESC")
	if filter.UnreadOnly {
		builder = builder.Where(sq.Eq{"n.is_read": false})
	}
	if filter.Type != "" {
		builder = builder.Where(sq.Eq{"t.name": string(filter.Type)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		builder = builder.Offset(filter.Offset)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	// Build the listing.
	notifications := make([]model.Notification, 0)
	for rows.Next() {
		var (
			notification model.Notification
			payload      []byte
			readAt       sql.NullTime
		)
		err = rows.Scan(
			&notification.ID,
			&notification.UserID,
			&notification.Type,
			&notification.Title,
			&notification.Message,
			&payload,
			&notification.IsRead,
			&notification.CreatedAt,
			&readAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		if len(payload) > 0 {
			if err = json.Unmarshal(payload, &notification.Payload); err != nil {
				return nil, errors.Wrap(err, wrapMsg)
			}
		}
		if readAt.Valid {
			notification.ReadAt = &readAt.Time
		}
		notifications = append(notifications, notification)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return notifications, nil
}

// CreateNotification saves a notification and returns the user's unread count as of the same transaction.
func (c *Client) CreateNotification(ctx context.Context, notification *model.Notification) (int64, error) {
	var unread int64
	err := c.inTx(ctx, "unable to create the notification", func(tx *sql.Tx) error {
		var err error
		if err = SaveNotification(ctx, tx, notification); err != nil {
			return err
		}
		unread, err = CountUnreadNotifications(ctx, tx, notification.UserID)
		return err
	})
	return unread, err
}

// CountUnreadNotifications counts a user's unread notifications.
func (c *Client) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var unread int64
	err := c.inTx(ctx, "unable to count unread notifications", func(tx *sql.Tx) error {
		var err error
		unread, err = CountUnreadNotifications(ctx, tx, userID)
		return err
	})
	return unread, err
}

// MarkNotificationRead marks one of a user's notifications as read and returns the remaining unread count.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID, userID string, readAt time.Time) (int64, error) {
	var unread int64
	err := c.inTx(ctx, "unable to mark the notification as read", func(tx *sql.Tx) error {
		var err error
		if err = MarkNotificationRead(ctx, tx, notificationID, userID, readAt); err != nil {
			return err
		}
		unread, err = CountUnreadNotifications(ctx, tx, userID)
		return err
	})
	return unread, err
}

// MarkAllNotificationsRead marks all of a user's notifications as read and returns the remaining unread count.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, userID string, readAt time.Time) (int64, error) {
	var unread int64
	err := c.inTx(ctx, "unable to mark all notifications as read", func(tx *sql.Tx) error {
		var err error
		if _, err = MarkAllNotificationsRead(ctx, tx, userID, readAt); err != nil {
			return err
		}
		unread, err = CountUnreadNotifications(ctx, tx, userID)
		return err
	})
	return unread, err
}

// DeleteNotification removes one of a user's notifications and returns the remaining unread count.
func (c *Client) DeleteNotification(ctx context.Context, notificationID, userID string) (int64, error) {
	var unread int64
	err := c.inTx(ctx, "unable to delete the notification", func(tx *sql.Tx) error {
		var err error
		if err = DeleteNotification(ctx, tx, notificationID, userID); err != nil {
			return err
		}
		unread, err = CountUnreadNotifications(ctx, tx, userID)
		return err
	})
	return unread, err
}

// DeleteNotifications clears a user's notifications and returns the remaining unread count.
func (c *Client) DeleteNotifications(ctx context.Context, userID string, readOnly bool) (int64, error) {
	var unread int64
	err := c.inTx(ctx, "unable to delete notifications", func(tx *sql.Tx) error {
		var err error
		if _, err = DeleteNotifications(ctx, tx, userID, readOnly); err != nil {
			return err
		}
		unread, err = CountUnreadNotifications(ctx, tx, userID)
		return err
	})
	return unread, err
}

// ListNotifications lists a user's notifications.
func (c *Client) ListNotifications(
	ctx context.Context,
	userID string,
	filter model.NotificationFilter,
) ([]model.Notification, error) {
	var notifications []model.Notification
	err := c.inTx(ctx, "unable to list notifications", func(tx *sql.Tx) error {
		var err error
		notifications, err = ListNotifications(ctx, tx, userID, filter)
		return err
	})
	return notifications, err
}
