package swaps

import (
	"context"
	"strings"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/cyverse-de/skill-swap/notify"
	"github.com/sirupsen/logrus"
)

// The range of ratings that feedback may carry.
const (
	MinRating = 1
	MaxRating = 5
)

// GiveFeedback records the caller's rating of a completed swap and notifies the other party. Each party may
// leave feedback once per swap.
func (e *Engine) GiveFeedback(
	ctx context.Context,
	swapID, callerID string,
	rating int,
	comment string,
) (*model.Feedback, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, common.NewInvalidArgumentError("the rating must be between %d and %d", MinRating, MaxRating)
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > MaxMessageLength {
		return nil, common.NewInvalidArgumentError("the comment may be at most %d characters long", MaxMessageLength)
	}

	req, err := e.store.GetSwapRequest(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !req.Involves(callerID) {
		return nil, common.NewForbiddenError("only the parties of a swap request may give feedback")
	}
	if req.Status != model.SwapCompleted {
		return nil, common.NewInvalidStateError(
			"feedback can only be given for completed swaps (current status: %s)", req.Status,
		)
	}

	feedback := &model.Feedback{
		SwapID:     swapID,
		GiverID:    callerID,
		ReceiverID: req.Counterpart(callerID),
		Rating:     rating,
		Comment:    comment,
		CreatedAt:  e.now(),
	}
	if err = e.store.CreateFeedback(ctx, feedback); err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{"swap": swapID, "giver": callerID, "rating": rating}).Info("feedback recorded")

	data := swapData(req)
	data["feedbackId"] = feedback.ID
	data["giverName"] = e.displayName(ctx, callerID)
	data["rating"] = rating
	e.notify(ctx, feedback.ReceiverID, notify.TemplateFeedbackReceived, data)

	return feedback, nil
}
