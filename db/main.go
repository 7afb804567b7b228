package db

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/dbutil"
	"github.com/cyverse-de/skill-swap/common"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// psql is the statement builder used for every query in this package.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// InitDatabase establishes a database connection and verifies tha the database can be reached.
func InitDatabase(driverName, databaseURI string) (*sql.DB, error) {
	wrapMsg := "unable to initialize the database"

	// Create a database connector to establish the connection.
	connector, err := dbutil.NewDefaultConnector("1m")
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Establish the database connection.
	db, err := connector.Connect(driverName, databaseURI)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return db, nil
}

// Client implements the persistent store used by the swap engine and the notification dispatcher on top of
// a PostgreSQL database. Every exported method runs in its own transaction.
type Client struct {
	db *sql.DB
}

// NewClient returns a new database client.
func NewClient(db *sql.DB) *Client {
	return &Client{db: db}
}

// inTx runs a function inside a database transaction. Errors from the common error taxonomy are returned
// unchanged; anything else is reported as the store being unavailable.
func (c *Client) inTx(ctx context.Context, wrapMsg string, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return common.NewUnavailableError(err, "%s: unable to begin a database transaction", wrapMsg)
	}
	defer tx.Rollback() // nolint:errcheck

	if err = fn(tx); err != nil {
		return classify(err, wrapMsg)
	}

	if err = tx.Commit(); err != nil {
		return common.NewUnavailableError(err, "%s: unable to commit the database transaction", wrapMsg)
	}

	return nil
}

// classify passes taxonomy errors through and converts everything else to an UnavailableError.
func classify(err error, wrapMsg string) error {
	switch {
	case common.IsInvalidArgument(err), common.IsNotFound(err), common.IsForbidden(err),
		common.IsInvalidState(err), common.IsUnavailable(err):
		return err
	default:
		return common.NewUnavailableError(err, "%s", wrapMsg)
	}
}
