// Package swaps implements the swap request lifecycle:
//
//	PENDING -> ACCEPTED | REJECTED | CANCELLED
//	ACCEPTED -> COMPLETED
//
// Every transition is applied as a conditional update against the status that was checked, so two
// concurrent transitions of the same request can't both succeed.
package swaps

import (
	"context"
	"strings"
	"time"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/metrics"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/cyverse-de/skill-swap/notify"
	"github.com/sirupsen/logrus"
)

// MaxMessageLength is the maximum length of the optional message attached to a swap request.
const MaxMessageLength = 1000

// Store describes the persistent store operations that the engine needs.
type Store interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	CreateSwapRequest(ctx context.Context, req *model.SwapRequest) error
	GetSwapRequest(ctx context.Context, swapID string) (*model.SwapRequest, error)
	TransitionSwapRequest(ctx context.Context, swapID string, from, to model.SwapStatus, at time.Time) (*model.SwapRequest, bool, error)
	ListSwapRequests(ctx context.Context, filter model.SwapFilter) ([]model.SwapRequest, error)
	CreateFeedback(ctx context.Context, feedback *model.Feedback) error
}

// Notifier sends templated notifications.
type Notifier interface {
	Notify(ctx context.Context, userID string, key notify.TemplateKey, data map[string]interface{}) (*model.Notification, error)
}

// Engine owns the swap request state machine.
type Engine struct {
	store    Store
	notifier Notifier
	now      func() time.Time
	log      *logrus.Entry
}

// New creates a new swap lifecycle engine.
func New(store Store, notifier Notifier, log *logrus.Entry) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// displayName returns the name to use for a user in notification text, falling back to the user ID.
func (e *Engine) displayName(ctx context.Context, userID string) string {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil || user.Name == "" {
		return userID
	}
	return user.Name
}

// notify sends a notification after a transition has been stored. Failures are logged and otherwise ignored
// because the transition itself has already succeeded.
func (e *Engine) notify(ctx context.Context, userID string, key notify.TemplateKey, data map[string]interface{}) {
	if _, err := e.notifier.Notify(ctx, userID, key, data); err != nil {
		e.log.WithFields(logrus.Fields{
			"user":     userID,
			"template": key,
			"swap":     data["swapId"],
		}).WithError(err).Error("unable to send a swap notification")
	}
}

func swapData(req *model.SwapRequest) map[string]interface{} {
	return map[string]interface{}{
		"swapId":         req.ID,
		"senderId":       req.SenderID,
		"receiverId":     req.ReceiverID,
		"offeredSkill":   req.OfferedSkill,
		"requestedSkill": req.RequestedSkill,
		"status":         string(req.Status),
	}
}

// Submit creates a new pending swap request and notifies the receiver.
func (e *Engine) Submit(
	ctx context.Context,
	senderID, receiverID, offeredSkill, requestedSkill, message string,
) (*model.SwapRequest, error) {
	senderID = strings.TrimSpace(senderID)
	receiverID = strings.TrimSpace(receiverID)
	offeredSkill = strings.TrimSpace(offeredSkill)
	requestedSkill = strings.TrimSpace(requestedSkill)
	message = strings.TrimSpace(message)

	switch {
	case senderID == "" || receiverID == "":
		return nil, common.NewInvalidArgumentError("a swap request needs both a sender and a receiver")
	case senderID == receiverID:
		return nil, common.NewInvalidArgumentError("you cannot send a swap request to yourself")
	case offeredSkill == "" || requestedSkill == "":
		return nil, common.NewInvalidArgumentError("a swap request needs both an offered and a requested skill")
	case len(message) > MaxMessageLength:
		return nil, common.NewInvalidArgumentError("the message may be at most %d characters long", MaxMessageLength)
	}

	receiver, err := e.store.GetUser(ctx, receiverID)
	if common.IsNotFound(err) {
		return nil, common.NewInvalidArgumentError("user %s is not available for skill swaps", receiverID)
	}
	if err != nil {
		return nil, err
	}
	if !receiver.IsActive || !receiver.IsPublic {
		return nil, common.NewInvalidArgumentError("user %s is not available for skill swaps", receiverID)
	}

	now := e.now()
	req := &model.SwapRequest{
		SenderID:       senderID,
		ReceiverID:     receiverID,
		OfferedSkill:   offeredSkill,
		RequestedSkill: requestedSkill,
		Message:        message,
		Status:         model.SwapPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err = e.store.CreateSwapRequest(ctx, req); err != nil {
		return nil, err
	}
	metrics.SwapTransitions.WithLabelValues(string(model.SwapPending)).Inc()

	e.log.WithFields(logrus.Fields{"swap": req.ID, "sender": senderID, "receiver": receiverID}).
		Info("swap request submitted")

	data := swapData(req)
	data["senderName"] = e.displayName(ctx, senderID)
	e.notify(ctx, receiverID, notify.TemplateRequestReceived, data)

	return req, nil
}

// transition moves a request from one status to another on behalf of a caller. The authorized function
// reports whether the caller may perform the action at all.
func (e *Engine) transition(
	ctx context.Context,
	swapID, callerID, action string,
	from, to model.SwapStatus,
	authorized func(req *model.SwapRequest) bool,
	forbidden string,
) (*model.SwapRequest, error) {
	req, err := e.store.GetSwapRequest(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !authorized(req) {
		return nil, common.NewForbiddenError("%s", forbidden)
	}
	if req.Status != from {
		return nil, invalidState(action, from, req.Status)
	}

	updated, ok, err := e.store.TransitionSwapRequest(ctx, swapID, from, to, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// Somebody else moved the request between the read and the conditional update.
		current, err := e.store.GetSwapRequest(ctx, swapID)
		if err != nil {
			return nil, err
		}
		return nil, invalidState(action, from, current.Status)
	}

	metrics.SwapTransitions.WithLabelValues(string(to)).Inc()
	e.log.WithFields(logrus.Fields{"swap": swapID, "caller": callerID, "from": from, "to": to}).
		Info("swap request updated")

	return updated, nil
}

func invalidState(action string, required, current model.SwapStatus) error {
	if required == model.SwapPending {
		return common.NewInvalidStateError(
			"cannot %s a non-pending request (current status: %s)", action, current,
		)
	}
	return common.NewInvalidStateError(
		"cannot %s a request that is not %s (current status: %s)", action, strings.ToLower(string(required)), current,
	)
}

// Accept accepts a pending request. Only the receiver may accept a request. The sender is notified.
func (e *Engine) Accept(ctx context.Context, swapID, callerID string) (*model.SwapRequest, error) {
	req, err := e.transition(ctx, swapID, callerID, "accept", model.SwapPending, model.SwapAccepted,
		func(req *model.SwapRequest) bool { return req.ReceiverID == callerID },
		"only the receiver of a swap request may accept it",
	)
	if err != nil {
		return nil, err
	}

	data := swapData(req)
	data["receiverName"] = e.displayName(ctx, req.ReceiverID)
	e.notify(ctx, req.SenderID, notify.TemplateRequestAccepted, data)

	return req, nil
}

// Reject rejects a pending request. Only the receiver may reject a request. The sender is notified.
func (e *Engine) Reject(ctx context.Context, swapID, callerID string) (*model.SwapRequest, error) {
	req, err := e.transition(ctx, swapID, callerID, "reject", model.SwapPending, model.SwapRejected,
		func(req *model.SwapRequest) bool { return req.ReceiverID == callerID },
		"only the receiver of a swap request may reject it",
	)
	if err != nil {
		return nil, err
	}

	data := swapData(req)
	data["receiverName"] = e.displayName(ctx, req.ReceiverID)
	e.notify(ctx, req.SenderID, notify.TemplateRequestRejected, data)

	return req, nil
}

// Cancel withdraws a pending request. Only the sender may cancel a request, and nobody is notified.
func (e *Engine) Cancel(ctx context.Context, swapID, callerID string) (*model.SwapRequest, error) {
	return e.transition(ctx, swapID, callerID, "cancel", model.SwapPending, model.SwapCancelled,
		func(req *model.SwapRequest) bool { return req.SenderID == callerID },
		"only the sender of a swap request may cancel it",
	)
}

// Complete marks an accepted request as completed. Either party may complete it, and both are notified.
func (e *Engine) Complete(ctx context.Context, swapID, callerID string) (*model.SwapRequest, error) {
	req, err := e.transition(ctx, swapID, callerID, "complete", model.SwapAccepted, model.SwapCompleted,
		func(req *model.SwapRequest) bool { return req.Involves(callerID) },
		"only the parties of a swap request may complete it",
	)
	if err != nil {
		return nil, err
	}

	senderName := e.displayName(ctx, req.SenderID)
	receiverName := e.displayName(ctx, req.ReceiverID)

	// Each party is told about the swap from their own side of it.
	forSender := swapData(req)
	forSender["partnerName"] = receiverName
	forSender["yourSkill"] = req.OfferedSkill
	forSender["theirSkill"] = req.RequestedSkill
	e.notify(ctx, req.SenderID, notify.TemplateSwapCompleted, forSender)

	forReceiver := swapData(req)
	forReceiver["partnerName"] = senderName
	forReceiver["yourSkill"] = req.RequestedSkill
	forReceiver["theirSkill"] = req.OfferedSkill
	e.notify(ctx, req.ReceiverID, notify.TemplateSwapCompleted, forReceiver)

	return req, nil
}

// Get returns a single swap request. Only its parties may see it.
func (e *Engine) Get(ctx context.Context, swapID, callerID string) (*model.SwapRequest, error) {
	req, err := e.store.GetSwapRequest(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if !req.Involves(callerID) {
		return nil, common.NewForbiddenError("only the parties of a swap request may view it")
	}
	return req, nil
}

// List returns the caller's swap requests.
func (e *Engine) List(ctx context.Context, callerID string, filter model.SwapFilter) ([]model.SwapRequest, error) {
	filter.UserID = callerID
	switch filter.Role {
	case model.SwapRoleAny, model.SwapRoleSender, model.SwapRoleReceiver:
	default:
		return nil, common.NewInvalidArgumentError("unknown swap request role: %s", filter.Role)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, common.NewInvalidArgumentError("unknown swap request status: %s", filter.Status)
	}
	return e.store.ListSwapRequests(ctx, filter)
}
