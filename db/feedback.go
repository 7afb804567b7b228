package db

import (
	"context"
	"database/sql"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// uniqueViolation is the PostgreSQL error code reported when a unique constraint is violated.
const uniqueViolation = "23505"

// SaveFeedback stores feedback for a swap request, scanning the assigned ID into the feedback structure. An
// InvalidArgumentError is returned if the giver has already left feedback for the swap request.
func SaveFeedback(ctx context.Context, tx *sql.Tx, feedback *model.Feedback) error {
	wrapMsg := "unable to save feedback"

	// Build the statement.
	statement, args, err := psql.
		Insert("feedback").
		Columns("swap_id", "giver_id", "receiver_id", "rating", "comment", "created_at").
		Values(
			feedback.SwapID,
			feedback.GiverID,
			feedback.ReceiverID,
			feedback.Rating,
			feedback.Comment,
			feedback.CreatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	err = tx.QueryRowContext(ctx, statement, args...).Scan(&feedback.ID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return common.NewInvalidArgumentError("feedback has already been given for swap request %s", feedback.SwapID)
	}
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// CreateFeedback stores feedback for a swap request.
func (c *Client) CreateFeedback(ctx context.Context, feedback *model.Feedback) error {
	return c.inTx(ctx, "unable to save feedback", func(tx *sql.Tx) error {
		return SaveFeedback(ctx, tx, feedback)
	})
}
