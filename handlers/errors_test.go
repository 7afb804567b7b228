package handlers

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHandlerErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		message       string
		recoverable   bool
		unrecoverable bool
	}{
		{
			name:        "recoverable",
			err:         NewRecoverableError("broker %s for %d seconds", "unreachable", 30),
			message:     "broker unreachable for 30 seconds",
			recoverable: true,
		},
		{
			name:          "unrecoverable",
			err:           NewUnrecoverableError("invalid live event for user %q", "sarahr"),
			message:       `invalid live event for user "sarahr"`,
			unrecoverable: true,
		},
		{
			name:        "wrapped recoverable",
			err:         errors.Wrap(NewRecoverableError("channel closed"), "unable to publish"),
			message:     "unable to publish: channel closed",
			recoverable: true,
		},
		{
			name:          "wrapped unrecoverable",
			err:           errors.Wrap(NewUnrecoverableError("no user"), "unable to relay"),
			message:       "unable to relay: no user",
			unrecoverable: true,
		},
		{
			name:    "unmarked",
			err:     errors.New("connection reset"),
			message: "connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
			assert.Equal(t, tt.recoverable, IsRecoverable(tt.err), "recoverable")

			var unrecoverable UnrecoverableError
			assert.Equal(t, tt.unrecoverable, errors.As(tt.err, &unrecoverable), "unrecoverable")
		})
	}
}
