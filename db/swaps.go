package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/pkg/errors"

	sq "github.com/Masterminds/squirrel"
)

// swapColumns lists the columns of the swap_requests table in scan order.
var swapColumns = []string{
	"id",
	"sender_id",
	"receiver_id",
	"offered_skill",
	"requested_skill",
	"coalesce(message, '')",
	"status",
	"created_at",
	"updated_at",
	"completed_at",
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSwapRequest(row rowScanner) (*model.SwapRequest, error) {
	var (
		req         model.SwapRequest
		completedAt sql.NullTime
	)
	err := row.Scan(
		&req.ID,
		&req.SenderID,
		&req.ReceiverID,
		&req.OfferedSkill,
		&req.RequestedSkill,
		&req.Message,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}
	return &req, nil
}

// pairLockKey returns a key that identifies a pair of users regardless of their order.
func pairLockKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

// LockUserPair acquires a transaction-scoped advisory lock for a pair of users, serializing swap request
// submissions between them.
func LockUserPair(ctx context.Context, tx *sql.Tx, a, b string) error {
	wrapMsg := "unable to lock the user pair"

	// Build the statement.
	statement, args, err := psql.
		Select().
		Column(sq.Expr("pg_advisory_xact_lock(hashtext(?))", pairLockKey(a, b))).
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	if _, err = tx.ExecContext(ctx, statement, args...); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// CountPendingDuplicates counts the pending swap requests between two users that cover the same pair of
// skills, in either direction.
func CountPendingDuplicates(ctx context.Context, tx *sql.Tx, req *model.SwapRequest) (int64, error) {
	wrapMsg := "unable to look for duplicate swap requests"

	// Build the query.
	query, args, err := psql.
		Select("count(*)").
		From("swap_requests").
		Where(sq.Eq{"status": string(model.SwapPending)}).
		Where(sq.Or{
			sq.Eq{
				"sender_id":       req.SenderID,
				"receiver_id":     req.ReceiverID,
				"offered_skill":   req.OfferedSkill,
				"requested_skill": req.RequestedSkill,
			},
			sq.Eq{
				"sender_id":       req.ReceiverID,
				"receiver_id":     req.SenderID,
				"offered_skill":   req.RequestedSkill,
				"requested_skill": req.OfferedSkill,
			},
		}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	var count int64
	if err = tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	return count, nil
}

// InsertSwapRequest inserts a swap request, scanning the assigned ID into the request structure.
func InsertSwapRequest(ctx context.Context, tx *sql.Tx, req *model.SwapRequest) error {
	wrapMsg := "unable to insert the swap request"

	// Build the statement.
	statement, args, err := psql.
		Insert("swap_requests").
		Columns(
			"sender_id",
			"receiver_id",
			"offered_skill",
			"requested_skill",
			"message",
			"status",
			"created_at",
			"updated_at").
		Values(
			req.SenderID,
			req.ReceiverID,
			req.OfferedSkill,
			req.RequestedSkill,
			req.Message,
			string(req.Status),
			req.CreatedAt,
			req.UpdatedAt).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	if err = tx.QueryRowContext(ctx, statement, args...).Scan(&req.ID); err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// GetSwapRequest obtains a single swap request. A NotFoundError is returned if it doesn't exist.
func GetSwapRequest(ctx context.Context, tx *sql.Tx, swapID string) (*model.SwapRequest, error) {
	wrapMsg := "unable to look up the swap request"

	// Build the query.
	query, args, err := psql.
		Select(swapColumns...).
		From("swap_requests").
		Where(sq.Eq{"id": swapID}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	// Query the database.
	req, err := scanSwapRequest(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, common.NewNotFoundError("swap request %s not found", swapID)
	}
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return req, nil
}

// TransitionSwapRequest moves a swap request from one status to another in a single conditional update.
// The boolean return value is false if the request was not in the expected status when the update ran.
func TransitionSwapRequest(
	ctx context.Context,
	tx *sql.Tx,
	swapID string,
	from, to model.SwapStatus,
	at time.Time,
) (*model.SwapRequest, bool, error) {
	wrapMsg := fmt.Sprintf("unable to move the swap request from %s to %s", from, to)

	// Build the statement.
	builder := psql.
		Update("swap_requests").
		Set("status", string(to)).
		Set("updated_at", at)
	if to == model.SwapCompleted {
		builder = builder.Set("completed_at", at)
	}
	statement, args, err := builder.
		Where(sq.Eq{"id": swapID, "status": string(from)}).
		Suffix("RETURNING " + strings.Join(swapColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, false, errors.Wrap(err, wrapMsg)
	}

	// Execute the statement.
	req, err := scanSwapRequest(tx.QueryRowContext(ctx, statement, args...))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, wrapMsg)
	}

	return req, true, nil
}

// ListSwapRequests lists the swap requests that a user has sent or received, newest first.
func ListSwapRequests(ctx context.Context, tx *sql.Tx, filter model.SwapFilter) ([]model.SwapRequest, error) {
	wrapMsg := "unable to list swap requests"

	// Build the query.
	builder := psql.
		Select(swapColumns...).
		From("swap_requests").
		OrderBy("created_at DESC", "id DESC")
	switch filter.Role {
	case model.SwapRoleSender:
		builder = builder.Where(sq.Eq{"sender_id": filter.UserID})
	case model.SwapRoleReceiver:
		builder = builder.Where(sq.Eq{"receiver_id": filter.UserID})
	default:
		builder = builder.Where(sq.Or{sq.Eq{"sender_id": filter.UserID}, sq.Eq{"receiver_id": filter.UserID}})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
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
	requests := make([]model.SwapRequest, 0)
	for rows.Next() {
		req, err := scanSwapRequest(rows)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		requests = append(requests, *req)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return requests, nil
}

// CreateSwapRequest stores a new swap request unless an equivalent pending request already exists between
// the same two users. The duplicate check and the insert are serialized per user pair.
func (c *Client) CreateSwapRequest(ctx context.Context, req *model.SwapRequest) error {
	return c.inTx(ctx, "unable to create the swap request", func(tx *sql.Tx) error {
		if err := LockUserPair(ctx, tx, req.SenderID, req.ReceiverID); err != nil {
			return err
		}
		count, err := CountPendingDuplicates(ctx, tx, req)
		if err != nil {
			return err
		}
		if count > 0 {
			return common.NewInvalidArgumentError(
				"a pending request for %s and %s already exists between these users",
				req.OfferedSkill, req.RequestedSkill,
			)
		}
		return InsertSwapRequest(ctx, tx, req)
	})
}

// GetSwapRequest obtains a single swap request.
func (c *Client) GetSwapRequest(ctx context.Context, swapID string) (*model.SwapRequest, error) {
	var req *model.SwapRequest
	err := c.inTx(ctx, "unable to look up the swap request", func(tx *sql.Tx) error {
		var err error
		req, err = GetSwapRequest(ctx, tx, swapID)
		return err
	})
	return req, err
}

// TransitionSwapRequest moves a swap request from one status to another if it is still in the expected status.
func (c *Client) TransitionSwapRequest(
	ctx context.Context,
	swapID string,
	from, to model.SwapStatus,
	at time.Time,
) (*model.SwapRequest, bool, error) {
	var (
		req *model.SwapRequest
		ok  bool
	)
	err := c.inTx(ctx, "unable to update the swap request", func(tx *sql.Tx) error {
		var err error
		req, ok, err = TransitionSwapRequest(ctx, tx, swapID, from, to, at)
		return err
	})
	return req, ok, err
}

// ListSwapRequests lists swap requests for a user.
func (c *Client) ListSwapRequests(ctx context.Context, filter model.SwapFilter) ([]model.SwapRequest, error) {
	var requests []model.SwapRequest
	err := c.inTx(ctx, "unable to list swap requests", func(tx *sql.Tx) error {
		var err error
		requests, err = ListSwapRequests(ctx, tx, filter)
		return err
	})
	return requests, err
}
