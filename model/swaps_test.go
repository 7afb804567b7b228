package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwapStatusTransitions(t *testing.T) {
	assert := assert.New(t)

	allowed := map[SwapStatus][]SwapStatus{
		SwapPending:  {SwapAccepted, SwapRejected, SwapCancelled},
		SwapAccepted: {SwapCompleted},
	}
	all := []SwapStatus{SwapPending, SwapAccepted, SwapRejected, SwapCancelled, SwapCompleted}

	for _, from := range all {
		for _, to := range all {
			expected := false
			for _, next := range allowed[from] {
				if next == to {
					expected = true
				}
			}
			assert.Equalf(expected, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestSwapStatusTerminal(t *testing.T) {
	assert := assert.New(t)

	assert.False(SwapPending.Terminal())
	assert.False(SwapAccepted.Terminal())
	assert.True(SwapRejected.Terminal())
	assert.True(SwapCancelled.Terminal())
	assert.True(SwapCompleted.Terminal())
	assert.False(SwapStatus("BOGUS").Valid())
}

func TestSwapRequestCounterpart(t *testing.T) {
	assert := assert.New(t)

	req := &SwapRequest{SenderID: "alice", ReceiverID: "bob"}
	assert.Equal("bob", req.Counterpart("alice"))
	assert.Equal("alice", req.Counterpart("bob"))
	assert.True(req.Involves("alice"))
	assert.False(req.Involves("carol"))
}
