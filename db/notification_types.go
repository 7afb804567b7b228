package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cyverse-de/skill-swap/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// GetNotificationTypeID obtains the ID of the notification type with the given name. An error
// is returned if the database can't be queried or the notification type doesn't exist.
func GetNotificationTypeID(ctx context.Context, tx *sql.Tx, notificationType model.NotificationType) (string, error) {
	wrapMsg := fmt.Sprintf("unable to get the notification type ID for `%s`", notificationType)

	// Build the SQL query and arguments.
	query, args, err := psql.
		Select("id::text").
		From("notification_types").
		Where(sq.Eq{"name": string(notificationType)}).
		ToSql()
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var id string
	row := tx.QueryRowContext(ctx, query, args...)
	err = row.Scan(&id)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	return id, nil
}

// RegisterNotificationType adds a notification type to the database if it isn't registered already.
func RegisterNotificationType(ctx context.Context, tx *sql.Tx, notificationType model.NotificationType) error {
	wrapMsg := fmt.Sprintf("unable to register the notification type `%s`", notificationType)

	// Build the statement.
	statement, args, err := psql.
		Insert("notification_types").
		Columns("name").
		Values(string(notificationType)).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	_, err = tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// RegisterNotificationTypes registers every known notification type.
func (c *Client) RegisterNotificationTypes(ctx context.Context, notificationTypes ...model.NotificationType) error {
	return c.inTx(ctx, "unable to register notification types", func(tx *sql.Tx) error {
		for _, notificationType := range notificationTypes {
			if err := RegisterNotificationType(ctx, tx, notificationType); err != nil {
				return err
			}
		}
		return nil
	})
}
