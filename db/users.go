package db

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// GetUser obtains the profile summary for the user with the given ID. A NotFoundError is returned if the
// user doesn't exist.
func GetUser(ctx context.Context, tx *sql.Tx, userID string) (*model.User, error) {
	wrapMsg := "unable to look up the user"

	// Build the query.
	query, args, err := psql.
		Select("id", "name", "coalesce(email, '')", "is_active", "is_public").
		From("users").
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var user model.User
	err = tx.QueryRowContext(ctx, query, args...).
		Scan(&user.ID, &user.Name, &user.Email, &user.IsActive, &user.IsPublic)
	if err == sql.ErrNoRows {
		return nil, common.NewNotFoundError("user %s not found", userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return &user, nil
}

// GetUser obtains the profile summary for a user.
func (c *Client) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var user *model.User
	err := c.inTx(ctx, "unable to look up the user", func(tx *sql.Tx) error {
		var err error
		user, err = GetUser(ctx, tx, userID)
		return err
	})
	return user, err
}
