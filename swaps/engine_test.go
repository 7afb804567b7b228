package swaps

import (
	"context"
	"sync"
	"testing"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/memstore"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/cyverse-de/skill-swap/notify"
	"github.com/cyverse-de/skill-swap/registry"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPublisher remembers the last unread count published for each user.
type countingPublisher struct {
	mu     sync.Mutex
	counts map[string][]int64
}

func (p *countingPublisher) Publish(userID, event string, payload interface{}) {
	if event != notify.EventNotificationCount {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[userID] = append(p.counts[userID], payload.(notify.CountEvent).Count)
}

type fixture struct {
	ctx        context.Context
	store      *memstore.Store
	dispatcher *notify.Dispatcher
	publisher  *countingPublisher
	engine     *Engine
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

func newFixture() *fixture {
	store := memstore.New()
	for _, user := range []model.User{
		{ID: "alice", Name: "Alice", IsActive: true, IsPublic: true},
		{ID: "bob", Name: "Bob", IsActive: true, IsPublic: true},
		{ID: "carol", Name: "Carol", IsActive: true, IsPublic: true},
		{ID: "dormant", Name: "Dormant", IsActive: false, IsPublic: true},
		{ID: "hidden", Name: "Hidden", IsActive: true, IsPublic: false},
	} {
		store.PutUser(user)
	}
	publisher := &countingPublisher{counts: make(map[string][]int64)}
	dispatcher := notify.New(store, publisher, registry.New(16, quietLogger()), quietLogger())
	return &fixture{
		ctx:        context.Background(),
		store:      store,
		dispatcher: dispatcher,
		publisher:  publisher,
		engine:     New(store, dispatcher, quietLogger()),
	}
}

func (f *fixture) submit(t *testing.T) *model.SwapRequest {
	t.Helper()
	req, err := f.engine.Submit(f.ctx, "alice", "bob", "Guitar", "Excel", "Let's trade!")
	require.NoError(t, err)
	return req
}

func (f *fixture) notifications(t *testing.T, userID string, notificationType model.NotificationType) []model.Notification {
	t.Helper()
	listing, err := f.dispatcher.List(f.ctx, userID, model.NotificationFilter{UnreadOnly: true, Type: notificationType})
	require.NoError(t, err)
	return listing
}

func TestSubmitCreatesPendingRequestAndNotifiesReceiver(t *testing.T) {
	assert := assert.New(t)
	f := newFixture()

	req := f.submit(t)
	assert.NotEmpty(req.ID)
	assert.Equal(model.SwapPending, req.Status)
	assert.Nil(req.CompletedAt)

	received := f.notifications(t, "bob", model.NotificationRequestReceived)
	if assert.Len(received, 1) {
		assert.Equal(req.ID, received[0].Payload["swapId"])
		assert.Contains(received[0].Message, "Alice")
	}
	assert.Empty(f.notifications(t, "alice", ""))
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture()

	tests := []struct {
		name                                 string
		sender, receiver, offered, requested string
	}{
		{"self", "alice", "alice", "Guitar", "Excel"},
		{"blank receiver", "alice", " ", "Guitar", "Excel"},
		{"blank skill", "alice", "bob", "Guitar", ""},
		{"inactive receiver", "alice", "dormant", "Guitar", "Excel"},
		{"private receiver", "alice", "hidden", "Guitar", "Excel"},
		{"unknown receiver", "alice", "nobody", "Guitar", "Excel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Submit(f.ctx, tt.sender, tt.receiver, tt.offered, tt.requested, "")
			assert.True(t, common.IsInvalidArgument(err), "expected an InvalidArgumentError, got %v", err)
		})
	}
}

func TestSubmitRejectsDuplicateAndMirroredRequests(t *testing.T) {
	f := newFixture()
	f.submit(t)

	_, err := f.engine.Submit(f.ctx, "alice", "bob", "Guitar", "Excel", "")
	assert.True(t, common.IsInvalidArgument(err), "duplicate: expected an InvalidArgumentError, got %v", err)

	_, err = f.engine.Submit(f.ctx, "bob", "alice", "Excel", "Guitar", "")
	assert.True(t, common.IsInvalidArgument(err), "mirrored: expected an InvalidArgumentError, got %v", err)

	// A different pair of skills between the same users is a different request.
	_, err = f.engine.Submit(f.ctx, "alice", "bob", "Guitar", "Cooking", "")
	assert.NoError(t, err)
}

func TestSubmitAllowsResubmissionAfterRejection(t *testing.T) {
	f := newFixture()
	req := f.submit(t)
	_, err := f.engine.Reject(f.ctx, req.ID, "bob")
	require.NoError(t, err)

	_, err = f.engine.Submit(f.ctx, "alice", "bob", "Guitar", "Excel", "")
	assert.NoError(t, err)
}

func TestAcceptNotifiesSender(t *testing.T) {
	assert := assert.New(t)
	f := newFixture()
	req := f.submit(t)

	accepted, err := f.engine.Accept(f.ctx, req.ID, "bob")
	require.NoError(t, err)
	assert.Equal(model.SwapAccepted, accepted.Status)
	assert.Len(f.notifications(t, "alice", model.NotificationRequestAccepted), 1)
}

func TestRejectNotifiesSender(t *testing.T) {
	assert := assert.New(t)
	f := newFixture()
	req := f.submit(t)

	rejected, err := f.engine.Reject(f.ctx, req.ID, "bob")
	require.NoError(t, err)
	assert.Equal(model.SwapRejected, rejected.Status)
	assert.Len(f.notifications(t, "alice", model.NotificationRequestRejected), 1)
}

func TestCancelDoesNotNotify(t *testing.T) {
	assert := assert.New(t)
	f := newFixture()
	req := f.submit(t)
	before, _ := f.dispatcher.UnreadCount(f.ctx, "bob")

	cancelled, err := f.engine.Cancel(f.ctx, req.ID, "alice")
	require.NoError(t, err)
	assert.Equal(model.SwapCancelled, cancelled.Status)

	after, _ := f.dispatcher.UnreadCount(f.ctx, "bob")
	assert.Equal(before, after)
	assert.Empty(f.notifications(t, "alice", ""))
}

func TestRoleGuards(t *testing.T) {
	f := newFixture()
	req := f.submit(t)

	_, err := f.engine.Accept(f.ctx, req.ID, "alice")
	assert.True(t, common.IsForbidden(err), "sender accepting: %v", err)
	_, err = f.engine.Reject(f.ctx, req.ID, "carol")
	assert.True(t, common.IsForbidden(err), "outsider rejecting: %v", err)
	_, err = f.engine.Cancel(f.ctx, req.ID, "bob")
	assert.True(t, common.IsForbidden(err), "receiver cancelling: %v", err)
	_, err = f.engine.Get(f.ctx, req.ID, "carol")
	assert.True(t, common.IsForbidden(err), "outsider viewing: %v", err)

	_, err = f.engine.Accept(f.ctx, req.ID, "bob")
	require.NoError(t, err)
	_, err = f.engine.Complete(f.ctx, req.ID, "carol")
	assert.True(t, common.IsForbidden(err), "outsider completing: %v", err)

	_, err = f.engine.Accept(f.ctx, "missing", "bob")
	assert.True(t, common.IsNotFound(err), "missing request: %v", err)
}

func TestOnlyStateMachineEdgesAreAllowed(t *testing.T) {
	type step func(f *fixture, id string) error
	accept := func(f *fixture, id string) error { _, err := f.engine.Accept(f.ctx, id, "bob"); return err }
	reject := func(f *fixture, id string) error { _, err := f.engine.Reject(f.ctx, id, "bob"); return err }
	cancel := func(f *fixture, id string) error { _, err := f.engine.Cancel(f.ctx, id, "alice"); return err }
	complete := func(f *fixture, id string) error { _, err := f.engine.Complete(f.ctx, id, "alice"); return err }

	actions := map[string]step{"accept": accept, "reject": reject, "cancel": cancel, "complete": complete}
	setups := map[model.SwapStatus][]step{
		model.SwapPending:   nil,
		model.SwapAccepted:  {accept},
		model.SwapRejected:  {reject},
		model.SwapCancelled: {cancel},
		model.SwapCompleted: {accept, complete},
	}
	targets := map[string]model.SwapStatus{
		"accept": model.SwapAccepted, "reject": model.SwapRejected,
		"cancel": model.SwapCancelled, "complete": model.SwapCompleted,
	}

	for status, setup := range setups {
		for name, action := range actions {
			f := newFixture()
			req := f.submit(t)
			for _, s := range setup {
				require.NoError(t, s(f, req.ID))
			}

			err := action(f, req.ID)
			if status.CanTransition(targets[name]) {
				assert.NoErrorf(t, err, "%s from %s", name, status)
			} else {
				assert.Truef(t, common.IsInvalidState(err), "%s from %s: expected InvalidState, got %v", name, status, err)
				current, getErr := f.engine.Get(f.ctx, req.ID, "alice")
				require.NoError(t, getErr)
				assert.Equalf(t, status, current.Status, "%s from %s changed the status", name, status)
			}
		}
	}
}

func TestInvalidStateMessagesAreSpecific(t *testing.T) {
	f := newFixture()
	req := f.submit(t)
	_, err := f.engine.Reject(f.ctx, req.ID, "bob")
	require.NoError(t, err)

	_, err = f.engine.Accept(f.ctx, req.ID, "bob")
	assert.EqualError(t, err, "cannot accept a non-pending request (current status: REJECTED)")
}

func TestConcurrentAcceptAndRejectExactlyOneWins(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := newFixture()
		req := f.submit(t)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[0] = f.engine.Accept(f.ctx, req.ID, "bob")
		}()
		go func() {
			defer wg.Done()
			_, errs[1] = f.engine.Reject(f.ctx, req.ID, "bob")
		}()
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
			} else {
				assert.True(t, common.IsInvalidState(err), "expected InvalidState, got %v", err)
			}
		}
		require.Equal(t, 1, successes, "exactly one transition must succeed")

		current, err := f.engine.Get(f.ctx, req.ID, "bob")
		require.NoError(t, err)
		if errs[0] == nil {
			assert.Equal(t, model.SwapAccepted, current.Status)
		} else {
			assert.Equal(t, model.SwapRejected, current.Status)
		}
	}
}

func TestCompleteNotifiesBothParties(t *testing.T) {
	assert := assert.New(t)
	f := newFixture()
	req := f.submit(t)
	_, err := f.engine.Accept(f.ctx, req.ID, "bob")
	require.NoError(t, err)

	aliceBefore, _ := f.dispatcher.UnreadCount(f.ctx, "alice")
	bobBefore, _ := f.dispatcher.UnreadCount(f.ctx, "bob")

	completed, err := f.engine.Complete(f.ctx, req.ID, "alice")
	require.NoError(t, err)
	assert.Equal(model.SwapCompleted, completed.Status)
	assert.NotNil(completed.CompletedAt)

	aliceAfter, _ := f.dispatcher.UnreadCount(f.ctx, "alice")
	bobAfter, _ := f.dispatcher.UnreadCount(f.ctx, "bob")
	assert.Equal(aliceBefore+1, aliceAfter)
	assert.Equal(bobBefore+1, bobAfter)

	forAlice := f.notifications(t, "alice", model.NotificationSwapCompleted)
	forBob := f.notifications(t, "bob", model.NotificationSwapCompleted)
	if assert.Len(forAlice, 1) && assert.Len(forBob, 1) {
		assert.Contains(forAlice[0].Message, "Your skill swap with Bob (your Guitar for their Excel)")
		assert.Contains(forBob[0].Message, "Your skill swap with Alice (your Excel for their Guitar)")
	}

	// The live counts pushed to each user match the store.
	counts := f.publisher.counts
	assert.Equal(aliceAfter, counts["alice"][len(counts["alice"])-1])
	assert.Equal(bobAfter, counts["bob"][len(counts["bob"])-1])
}

func TestSwapLifecycleEndToEnd(t *testing.T) {
	assert := assert.New(t)
	f := newFixture()

	req := f.submit(t)
	statuses := []model.SwapStatus{req.Status}

	accepted, err := f.engine.Accept(f.ctx, req.ID, "bob")
	require.NoError(t, err)
	statuses = append(statuses, accepted.Status)

	// Feedback is only possible once the swap is complete.
	_, err = f.engine.GiveFeedback(f.ctx, req.ID, "alice", 5, "Great lessons")
	assert.True(common.IsInvalidState(err), "expected InvalidState, got %v", err)

	completed, err := f.engine.Complete(f.ctx, req.ID, "bob")
	require.NoError(t, err)
	statuses = append(statuses, completed.Status)
	assert.Equal([]model.SwapStatus{model.SwapPending, model.SwapAccepted, model.SwapCompleted}, statuses)

	feedback, err := f.engine.GiveFeedback(f.ctx, req.ID, "alice", 5, "Great lessons")
	require.NoError(t, err)
	assert.Equal("bob", feedback.ReceiverID)

	received := f.notifications(t, "bob", model.NotificationFeedbackReceived)
	if assert.Len(received, 1) {
		assert.Equal("Alice rated your skill swap 5 out of 5.", received[0].Message)
	}

	// Each party may only leave feedback once.
	_, err = f.engine.GiveFeedback(f.ctx, req.ID, "alice", 4, "")
	assert.True(common.IsInvalidArgument(err), "expected InvalidArgument, got %v", err)

	_, err = f.engine.GiveFeedback(f.ctx, req.ID, "bob", 4, "")
	assert.NoError(err)
}

func TestFeedbackValidation(t *testing.T) {
	f := newFixture()
	req := f.submit(t)

	_, err := f.engine.GiveFeedback(f.ctx, req.ID, "alice", 0, "")
	assert.True(t, common.IsInvalidArgument(err))
	_, err = f.engine.GiveFeedback(f.ctx, req.ID, "alice", 6, "")
	assert.True(t, common.IsInvalidArgument(err))
	_, err = f.engine.GiveFeedback(f.ctx, req.ID, "carol", 3, "")
	assert.True(t, common.IsForbidden(err))
	_, err = f.engine.GiveFeedback(f.ctx, "missing", "alice", 3, "")
	assert.True(t, common.IsNotFound(err))
}

func TestListFiltersByRoleAndStatus(t *testing.T) {
	assert := assert.New(t)
	f := newFixture()
	first := f.submit(t)
	_, err := f.engine.Submit(f.ctx, "carol", "alice", "Chess", "Guitar", "")
	require.NoError(t, err)
	_, err = f.engine.Accept(f.ctx, first.ID, "bob")
	require.NoError(t, err)

	all, err := f.engine.List(f.ctx, "alice", model.SwapFilter{})
	assert.NoError(err)
	assert.Len(all, 2)

	sent, err := f.engine.List(f.ctx, "alice", model.SwapFilter{Role: model.SwapRoleSender})
	assert.NoError(err)
	if assert.Len(sent, 1) {
		assert.Equal(first.ID, sent[0].ID)
	}

	pending, err := f.engine.List(f.ctx, "alice", model.SwapFilter{Status: model.SwapPending})
	assert.NoError(err)
	if assert.Len(pending, 1) {
		assert.Equal("carol", pending[0].SenderID)
	}

	_, err = f.engine.List(f.ctx, "alice", model.SwapFilter{Status: "BOGUS"})
	assert.True(common.IsInvalidArgument(err))
}
